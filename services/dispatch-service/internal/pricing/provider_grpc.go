//go:build protogen

package pricing

import (
	"context"
	"time"

	"github.com/fieldserve/dispatch/libs/grpcx"
	pricingv1 "github.com/fieldserve/dispatch/protos/gen/pricing/v1"
)

type grpcProvider struct {
	client pricingv1.PricingServiceClient
}

// NewGRPCProvider dials the tenant pricing service. Returns (nil, nil) when
// no address is configured so callers can fall back to the static table.
func NewGRPCProvider(addr string) (Provider, error) {
	if addr == "" {
		return nil, nil
	}
	conn, err := grpcx.Dial(context.Background(), addr, grpcx.DialOptions{Timeout: 3 * time.Second})
	if err != nil {
		return nil, err
	}
	return &grpcProvider{client: pricingv1.NewPricingServiceClient(conn)}, nil
}

func (p *grpcProvider) Quote(ctx context.Context, profile Profile) (Quote, error) {
	resp, err := p.client.GetQuote(ctx, &pricingv1.QuoteRequest{
		Category:   profile.Category,
		Bedrooms:   int32(profile.Bedrooms),
		SquareFeet: int32(profile.SquareFeet),
	})
	if err != nil {
		return Quote{}, err
	}
	if !resp.GetMatched() {
		return Quote{}, ErrNoMatch
	}
	return Quote{
		DurationMinutes: int(resp.GetDurationMinutes()),
		PriceCents:      resp.GetPriceCents(),
	}, nil
}
