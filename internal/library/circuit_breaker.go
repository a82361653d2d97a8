// Hearth - Household Management and Library Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hearth

package library

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/hearth/internal/logging"
	"github.com/tomtom215/hearth/internal/metrics"
	"github.com/tomtom215/hearth/internal/models"
)

// BreakerProvider wraps a Provider with a circuit breaker so a provider
// outage stops producing slow failing round-trips after a few cycles.
//
// The breaker uses real time for its interval and timeout windows; tests
// exercise the wrapped adapter directly.
type BreakerProvider struct {
	inner Provider
	cb    *gobreaker.CircuitBreaker[*models.AccountSnapshot]
	name  string
}

// NewBreakerProvider wraps the given adapter. Breaker settings:
//   - max 1 probe request in half-open state
//   - 10 minute measurement window in closed state
//   - 15 minute open period before probing again
//   - opens after 3 consecutive failures
//
// Thresholds are lower than a high-traffic service would use because sync
// touches each provider a handful of times per day.
func NewBreakerProvider(inner Provider) *BreakerProvider {
	name := "library-" + string(inner.Type())

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[*models.AccountSnapshot](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    10 * time.Minute,
		Timeout:     15 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)

			logging.Info().
				Str("breaker", name).
				Str("from", fromStr).
				Str("to", toStr).
				Msg("Circuit breaker state transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &BreakerProvider{inner: inner, cb: cb, name: name}
}

// Type implements Provider.
func (b *BreakerProvider) Type() models.ProviderType {
	return b.inner.Type()
}

// FetchAccount implements Provider with breaker protection.
func (b *BreakerProvider) FetchAccount(ctx context.Context, cred *models.LibraryCredential) (*models.AccountSnapshot, error) {
	snapshot, err := b.cb.Execute(func() (*models.AccountSnapshot, error) {
		return b.inner.FetchAccount(ctx, cred)
	})

	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
	}

	return snapshot, err
}

func stateToString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return -1
	}
}
