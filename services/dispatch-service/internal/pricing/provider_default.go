//go:build !protogen

package pricing

// NewGRPCProvider is a no-op in builds without generated pricing stubs;
// callers fall back to the static table.
func NewGRPCProvider(_ string) (Provider, error) {
	return nil, nil
}
