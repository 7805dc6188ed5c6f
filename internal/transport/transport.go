// Package transport handles HTTP communication with the NYC Open Data API.
package transport

import (
	"context"
	"net/url"
)

// Transport abstracts the upstream HTTP layer so feed sources can be
// tested without a network.
type Transport interface {
	// GetJSON performs a GET against path with the given query and
	// unmarshals the response body into out.
	GetJSON(ctx context.Context, path string, query url.Values, out any) error

	// PostJSON performs a POST with a JSON body and unmarshals the
	// response into out. A nil out discards the response body.
	PostJSON(ctx context.Context, path string, payload any, out any) error
}
