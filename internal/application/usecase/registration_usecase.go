// internal/application/usecase/registration_usecase.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/common"
	regdom "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/registration"
)

// RegistrationCreator is the write side the submission flow needs.
// Create must return regdom.ErrConflict when the wallet already has a row.
type RegistrationCreator interface {
	Create(ctx context.Context, r regdom.Registration) (regdom.Registration, error)
}

// ProjectImageStorage stores project images and returns their public URL.
type ProjectImageStorage interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (publicURL string, err error)
	Delete(ctx context.Context, key string) error
}

// RegistrationNotifier is told about every new registration (best-effort).
type RegistrationNotifier interface {
	NotifyRegistration(ctx context.Context, r regdom.Registration) error
}

// ImageUpload is the optional project image of a submission.
type ImageUpload struct {
	Filename string
	Data     []byte
}

// SubmitInput is the user-supplied part of a submission.
type SubmitInput struct {
	Form  regdom.Form
	Image *ImageUpload
}

const notifyTimeout = 15 * time.Second

// RegistrationUsecase implements the registration submission flow.
type RegistrationUsecase struct {
	Sessions *SessionManager
	Repo     RegistrationCreator
	Images   ProjectImageStorage  // nil: uploads disabled
	Notifier RegistrationNotifier // nil: no notification

	MaxImageBytes int64
	Now           func() time.Time
}

func NewRegistrationUsecase(sessions *SessionManager, repo RegistrationCreator) *RegistrationUsecase {
	return &RegistrationUsecase{
		Sessions:      sessions,
		Repo:          repo,
		MaxImageBytes: regdom.DefaultMaxImageBytes,
		Now:           func() time.Time { return time.Now().UTC() },
	}
}

func (uc *RegistrationUsecase) WithImages(s ProjectImageStorage) *RegistrationUsecase {
	uc.Images = s
	return uc
}

func (uc *RegistrationUsecase) WithNotifier(n RegistrationNotifier) *RegistrationUsecase {
	uc.Notifier = n
	return uc
}

// Submit registers the session's wallet + selected token with the given form.
//
// All preconditions are checked before any network call. On success the session
// is marked submitted; a Disconnect is required before it can submit again.
func (uc *RegistrationUsecase) Submit(ctx context.Context, sessionID string, in SubmitInput) (regdom.Registration, error) {
	if uc == nil || uc.Sessions == nil || uc.Repo == nil {
		return regdom.Registration{}, errors.New("registration usecase: not configured")
	}

	s, err := uc.Sessions.Get(sessionID)
	if err != nil {
		return regdom.Registration{}, err
	}

	// 1) preconditions
	account, token, gen, err := s.verifiedSelection()
	if err != nil {
		return regdom.Registration{}, err
	}
	draft, err := regdom.NewDraft(account, token.TokenID, token.ImageURL, in.Form, nil)
	if err != nil {
		return regdom.Registration{}, err
	}
	var contentType, ext string
	if in.Image != nil {
		contentType, ext, err = uc.checkImage(in.Image.Data)
		if err != nil {
			return regdom.Registration{}, err
		}
	}

	ctx, span := otel.Tracer("bop/usecase").Start(ctx, "RegistrationUsecase.Submit")
	defer span.End()
	span.SetAttributes(
		attribute.String("xrpl.account", account),
		attribute.String("nft.token_id", token.TokenID),
		attribute.Bool("registration.has_image", in.Image != nil),
	)

	// 2) optional image upload
	var uploadedKey string
	if in.Image != nil {
		if uc.Images == nil {
			return regdom.Registration{}, regdom.ErrUploadUnavailable
		}
		key := fmt.Sprintf("%s-%d.%s", account, uc.now().UnixMilli(), ext)
		url, err := uc.Images.Upload(ctx, key, contentType, in.Image.Data)
		if err != nil {
			log.Printf("[registration] image upload failed key=%s: %v", key, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "upload failed")
			if _, ok := common.KindOf(err); ok {
				return regdom.Registration{}, err
			}
			return regdom.Registration{}, common.Wrap(regdom.ErrUploadFailed, err)
		}
		uploadedKey = key
		draft.ProjectImageURL = &url
	}

	// 3) insert（一意性はストアの制約で担保）
	created, err := uc.Repo.Create(ctx, draft)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		if uploadedKey != "" {
			uc.discardImage(uploadedKey)
		}
		if errors.Is(err, regdom.ErrConflict) {
			log.Printf("[registration] duplicate wallet=%s", account)
		} else {
			log.Printf("[registration] insert failed wallet=%s: %v", account, err)
		}
		return regdom.Registration{}, err
	}

	if !s.markSubmitted(gen) {
		log.Printf("[registration] session %s was reset during submission", s.ID())
	}
	log.Printf("[registration] created id=%s wallet=%s token=%s", created.ID, created.WalletAddress, created.NFTTokenID)

	uc.notify(ctx, created)
	return created, nil
}

// checkImage enforces the size limit and sniffs the content type.
func (uc *RegistrationUsecase) checkImage(data []byte) (contentType, ext string, err error) {
	limit := uc.MaxImageBytes
	if limit <= 0 {
		limit = regdom.DefaultMaxImageBytes
	}
	if int64(len(data)) > limit {
		return "", "", regdom.ErrImageTooLarge
	}
	return SniffImage(data)
}

// SniffImage returns the content type and object-key extension of an allowed image.
func SniffImage(data []byte) (contentType, ext string, err error) {
	if len(data) == 0 {
		return "", "", regdom.ErrUnsupportedImage
	}
	ct := http.DetectContentType(data)
	ext, ok := regdom.AllowedImageTypes[ct]
	if !ok {
		return "", "", regdom.ErrUnsupportedImage
	}
	return ct, ext, nil
}

func (uc *RegistrationUsecase) discardImage(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := uc.Images.Delete(ctx, key); err != nil {
		log.Printf("[registration] WARN: orphan image not deleted key=%s: %v", key, err)
	}
}

func (uc *RegistrationUsecase) notify(ctx context.Context, r regdom.Registration) {
	if uc.Notifier == nil {
		return
	}
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	go func() {
		defer cancel()
		if err := uc.Notifier.NotifyRegistration(bg, r); err != nil {
			log.Printf("[registration] WARN: moderator notification failed id=%s: %v", r.ID, err)
		}
	}()
}

func (uc *RegistrationUsecase) now() time.Time {
	if uc.Now != nil {
		return uc.Now()
	}
	return time.Now().UTC()
}
