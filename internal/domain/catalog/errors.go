package catalog

import "errors"

// Catalog errors.
var (
	// ErrCacheMiss means no cache envelope is stored.
	ErrCacheMiss = errors.New("catalog cache miss")
	// ErrCatalogUnavailable means neither a live build nor a cached
	// envelope produced any packages.
	ErrCatalogUnavailable = errors.New("catalog unavailable")
	// ErrMalformedPayload marks a source response with an unexpected shape.
	ErrMalformedPayload = errors.New("malformed payload")
)
