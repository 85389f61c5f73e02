package resolver

import "errors"

// Internal only: the resolver absorbs these into a degraded result.
var (
	errFetcherNotConfigured = errors.New("resolver: metadata fetcher not configured")
	errNotAnObject          = errors.New("resolver: metadata document is not a JSON object")
)
