package scheduler

import (
	"context"
	"fmt"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
)

// Clock reports whether the market is open for trading.
type Clock interface {
	IsOpen(ctx context.Context) (bool, error)
}

// AlwaysOpen is a Clock for mock data and tests.
type AlwaysOpen struct{}

func (AlwaysOpen) IsOpen(context.Context) (bool, error) { return true, nil }

type clockClient interface {
	GetClock() (*alpaca.Clock, error)
}

// AlpacaClock asks the Alpaca trading API for the market clock.
type AlpacaClock struct {
	Client clockClient
}

// NewAlpacaClock creates a clock backed by the Alpaca trading API.
func NewAlpacaClock(apiKey, apiSecret, baseURL string) *AlpacaClock {
	return &AlpacaClock{Client: alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})}
}

func (c *AlpacaClock) IsOpen(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	clock, err := c.Client.GetClock()
	if err != nil {
		return false, fmt.Errorf("alpaca clock: %w", err)
	}
	return clock.IsOpen, nil
}
