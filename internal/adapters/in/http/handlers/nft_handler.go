// internal/adapters/in/http/handlers/nft_handler.go
package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/adapters/in/http/handlers/common"
	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/application/usecase"
	nftdom "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/nft"
)

// NFTHandler lists the NFTs an account holds (GET /nfts/{account}[?issuer=]).
type NFTHandler struct {
	lister usecase.TokenLister
}

func NewNFTHandler(lister usecase.TokenLister) *NFTHandler {
	return &NFTHandler{lister: lister}
}

func (h *NFTHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.lister.ListTokens(r.Context(), chi.URLParam(r, "account"))
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	if issuer := strings.TrimSpace(r.URL.Query().Get("issuer")); issuer != "" {
		tokens = nftdom.FilterByIssuer(tokens, issuer)
	}
	if tokens == nil {
		tokens = []nftdom.Token{}
	}
	common.WriteJSON(w, http.StatusOK, map[string]any{"nfts": tokens})
}
