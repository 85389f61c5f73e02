// internal/domain/registration/repository_port.go
package registration

import "context"

// Repository は community_registrations の永続化ポートです。
// wallet_address の一意性はストア側の制約で保証する（Create は ErrConflict を返す）。
type Repository interface {
	// ListAll returns every registration ordered by CreatedAt desc.
	ListAll(ctx context.Context) ([]Registration, error)
	// Create inserts r and returns it with ID / CreatedAt assigned.
	Create(ctx context.Context, r Registration) (Registration, error)
	GetByID(ctx context.Context, id string) (Registration, error)
	// Update / Delete are moderation-only operations.
	Update(ctx context.Context, id string, p Patch) (Registration, error)
	Delete(ctx context.Context, id string) error
}

// ChangeFeed は行単位の変更イベント（insert/update/delete）を購読するポートです。
type ChangeFeed interface {
	Subscribe(ctx context.Context) (Subscription, error)
}

// Subscription delivers change events until it is closed or fails.
// Events is closed when the subscription ends; Err then reports why (nil after Close).
type Subscription interface {
	Events() <-chan ChangeEvent
	Err() error
	Close() error
}

// Store is a repository with its change feed.
type Store interface {
	Repository
	ChangeFeed
	Close() error
}
