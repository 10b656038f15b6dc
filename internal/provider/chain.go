package provider

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lox/tripweather/internal/models"
)

// Chain tries each provider covering a coordinate in order and returns the
// first success. Providers without a Coverage method cover everything.
type Chain struct {
	providers []Provider
	logger    *slog.Logger
}

func NewChain(logger *slog.Logger, providers ...Provider) *Chain {
	return &Chain{
		providers: providers,
		logger:    logger.With("component", "chain"),
	}
}

func (c *Chain) Name() string {
	return "chain"
}

func (c *Chain) FetchForecast(ctx context.Context, req models.ForecastRequest) (*models.Timeseries, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var lastErr error
	for _, p := range c.providers {
		if cov, ok := p.(Coverage); ok && !cov.Covers(req.Latitude, req.Longitude) {
			continue
		}
		ts, err := p.FetchForecast(ctx, req)
		if err == nil {
			return ts, nil
		}
		var verr *models.ValidationError
		if errors.As(err, &verr) || ctx.Err() != nil {
			return nil, err
		}
		c.logger.Warn("chain: provider failed, trying next", "provider", p.Name(), "error", err)
		lastErr = err
	}

	if lastErr == nil {
		return nil, &models.ConfigurationError{Reason: "no provider covers the coordinate"}
	}
	return nil, lastErr
}
