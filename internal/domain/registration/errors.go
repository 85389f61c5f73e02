package registration

import "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/common"

// Submission rejections (checked before any network call).
var (
	ErrWalletNotVerified  = common.Validation("Wallet not verified: please verify your wallet first")
	ErrTokenNotSelected   = common.Validation("Please select one of your NFTs")
	ErrMissingFields      = common.Validation("Please fill in all required fields")
	ErrProjectNameTooLong = common.Validation("Project name must be 50 characters or fewer")
	ErrDescriptionTooLong = common.Validation("Description must be 280 characters or fewer")
	ErrImageTooLarge      = common.Validation("Please upload an image smaller than 5MB")
	ErrUnsupportedImage   = common.Validation("Unsupported image type (png, jpg, gif or webp only)")
	ErrAlreadySubmitted   = common.Validation("This session has already submitted a registration; reset to register again")
	ErrEmptyPatch         = common.Validation("Nothing to update")
)

// Store / upload outcomes.
var (
	ErrConflict          = common.Conflict("This wallet has already registered a community")
	ErrNotFound          = common.NotFound("Registration not found")
	ErrUploadFailed      = common.Transient("Failed to upload image")
	ErrUploadUnavailable = common.Transient("Image upload is not configured")
)
