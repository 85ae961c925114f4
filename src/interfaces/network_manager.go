package interfaces

import "context"

// -----------------------------------------------------------------------------
// INetworkManager abstracts outbound HTTP so sources can be tested without a
// live provider.
// -----------------------------------------------------------------------------

type INetworkManager interface {
	// Get performs a GET request with query params and returns the body.
	Get(ctx context.Context, url string, params map[string]string) ([]byte, error)
}
