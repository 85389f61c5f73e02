// internal/application/usecase/moderation_usecase.go
package usecase

import (
	"context"
	"errors"
	"log"
	"strings"

	regdom "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/registration"
)

// ProjectImageRemover deletes an uploaded project image by its public URL.
// URLs it does not own are ignored.
type ProjectImageRemover interface {
	DeleteByURL(ctx context.Context, publicURL string) error
}

// ModerationUsecase edits or removes registrations on behalf of a moderator.
// Changes reach viewers through the store's change feed.
type ModerationUsecase struct {
	Repo   regdom.Repository
	Images ProjectImageRemover // nil: images are left in place
}

func NewModerationUsecase(repo regdom.Repository) *ModerationUsecase {
	return &ModerationUsecase{Repo: repo}
}

func (uc *ModerationUsecase) WithImages(images ProjectImageRemover) *ModerationUsecase {
	uc.Images = images
	return uc
}

func (uc *ModerationUsecase) Update(ctx context.Context, moderatorUID, id string, p regdom.Patch) (regdom.Registration, error) {
	if uc == nil || uc.Repo == nil {
		return regdom.Registration{}, errors.New("moderation usecase: repo not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return regdom.Registration{}, regdom.ErrNotFound
	}
	if p.IsEmpty() {
		return regdom.Registration{}, regdom.ErrEmptyPatch
	}

	updated, err := uc.Repo.Update(ctx, id, p)
	if err != nil {
		return regdom.Registration{}, err
	}
	log.Printf("[moderation] updated id=%s by=%s", id, moderatorUID)
	return updated, nil
}

func (uc *ModerationUsecase) Delete(ctx context.Context, moderatorUID, id string) error {
	if uc == nil || uc.Repo == nil {
		return errors.New("moderation usecase: repo not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return regdom.ErrNotFound
	}
	cur, err := uc.Repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := uc.Repo.Delete(ctx, id); err != nil {
		return err
	}
	log.Printf("[moderation] deleted id=%s by=%s", id, moderatorUID)

	// 画像の削除は best-effort（行の削除は確定済み）
	if uc.Images != nil && cur.ProjectImageURL != nil {
		if err := uc.Images.DeleteByURL(ctx, *cur.ProjectImageURL); err != nil {
			log.Printf("[moderation] WARN: project image not deleted id=%s: %v", id, err)
		}
	}
	return nil
}
