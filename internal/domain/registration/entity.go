// internal/domain/registration/entity.go
package registration

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/wallet"
)

// Policy
const (
	MaxProjectNameLen = 50
	MaxDescriptionLen = 280

	// DefaultMaxImageBytes is the project image upload limit (5MB).
	DefaultMaxImageBytes int64 = 5 * 1024 * 1024
)

// AllowedImageTypes maps sniffed content types to the file extension used for the object key.
var AllowedImageTypes = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// Registration is one community project entry; at most one per wallet address.
type Registration struct {
	ID              string    `json:"id"`
	WalletAddress   string    `json:"walletAddress"`
	NFTTokenID      string    `json:"nftTokenId"`
	NFTImageURL     *string   `json:"nftImageUrl"`
	ProjectName     string    `json:"projectName"`
	ProjectImageURL *string   `json:"projectImageUrl"`
	Description     string    `json:"description"`
	TwitterURL      *string   `json:"twitterUrl"`
	DiscordURL      *string   `json:"discordUrl"`
	WebsiteURL      *string   `json:"websiteUrl"`
	CreatedAt       time.Time `json:"createdAt"`
}

// DisplayImageURL: project image first, NFT image second (card 表示用).
func (r Registration) DisplayImageURL() *string {
	if r.ProjectImageURL != nil && strings.TrimSpace(*r.ProjectImageURL) != "" {
		return r.ProjectImageURL
	}
	if r.NFTImageURL != nil && strings.TrimSpace(*r.NFTImageURL) != "" {
		return r.NFTImageURL
	}
	return nil
}

// Form is the user-supplied part of a registration.
type Form struct {
	ProjectName string
	Description string
	TwitterURL  string
	DiscordURL  string
	WebsiteURL  string
}

// ValidateForm trims the form and checks required fields and length limits.
func ValidateForm(f Form) (Form, error) {
	out := Form{
		ProjectName: strings.TrimSpace(f.ProjectName),
		Description: strings.TrimSpace(f.Description),
		TwitterURL:  strings.TrimSpace(f.TwitterURL),
		DiscordURL:  strings.TrimSpace(f.DiscordURL),
		WebsiteURL:  strings.TrimSpace(f.WebsiteURL),
	}
	if out.ProjectName == "" || out.Description == "" {
		return Form{}, ErrMissingFields
	}
	if utf8.RuneCountInString(out.ProjectName) > MaxProjectNameLen {
		return Form{}, ErrProjectNameTooLong
	}
	if utf8.RuneCountInString(out.Description) > MaxDescriptionLen {
		return Form{}, ErrDescriptionTooLong
	}
	return out, nil
}

// NewDraft builds the row to insert. ID and CreatedAt are assigned by the store.
func NewDraft(walletAddress, tokenID string, nftImageURL *string, f Form, projectImageURL *string) (Registration, error) {
	addr, err := wallet.NormalizeAddress(walletAddress)
	if err != nil {
		return Registration{}, err
	}
	tid := strings.TrimSpace(tokenID)
	if tid == "" {
		return Registration{}, ErrTokenNotSelected
	}
	form, err := ValidateForm(f)
	if err != nil {
		return Registration{}, err
	}
	return Registration{
		WalletAddress:   addr,
		NFTTokenID:      tid,
		NFTImageURL:     nilIfBlank(nftImageURL),
		ProjectName:     form.ProjectName,
		ProjectImageURL: nilIfBlank(projectImageURL),
		Description:     form.Description,
		TwitterURL:      optional(form.TwitterURL),
		DiscordURL:      optional(form.DiscordURL),
		WebsiteURL:      optional(form.WebsiteURL),
	}, nil
}

// Patch is a moderation edit. nil = unchanged; "" clears an optional field.
type Patch struct {
	ProjectName     *string `json:"projectName,omitempty"`
	Description     *string `json:"description,omitempty"`
	ProjectImageURL *string `json:"projectImageUrl,omitempty"`
	TwitterURL      *string `json:"twitterUrl,omitempty"`
	DiscordURL      *string `json:"discordUrl,omitempty"`
	WebsiteURL      *string `json:"websiteUrl,omitempty"`
}

// IsEmpty reports whether p changes nothing.
func (p Patch) IsEmpty() bool {
	return p.ProjectName == nil && p.Description == nil && p.ProjectImageURL == nil &&
		p.TwitterURL == nil && p.DiscordURL == nil && p.WebsiteURL == nil
}

// ApplyTo returns r with p applied, re-validating required fields.
func (p Patch) ApplyTo(r Registration) (Registration, error) {
	form := Form{ProjectName: r.ProjectName, Description: r.Description}
	if p.ProjectName != nil {
		form.ProjectName = *p.ProjectName
	}
	if p.Description != nil {
		form.Description = *p.Description
	}
	valid, err := ValidateForm(form)
	if err != nil {
		return Registration{}, err
	}
	r.ProjectName = valid.ProjectName
	r.Description = valid.Description
	if p.ProjectImageURL != nil {
		r.ProjectImageURL = optional(strings.TrimSpace(*p.ProjectImageURL))
	}
	if p.TwitterURL != nil {
		r.TwitterURL = optional(strings.TrimSpace(*p.TwitterURL))
	}
	if p.DiscordURL != nil {
		r.DiscordURL = optional(strings.TrimSpace(*p.DiscordURL))
	}
	if p.WebsiteURL != nil {
		r.WebsiteURL = optional(strings.TrimSpace(*p.WebsiteURL))
	}
	return r, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	v := s
	return &v
}

func nilIfBlank(p *string) *string {
	if p == nil {
		return nil
	}
	return optional(strings.TrimSpace(*p))
}
