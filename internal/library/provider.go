// Hearth - Household Management and Library Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hearth

// Package library implements the provider adapters that talk to third-party
// library catalog services.
//
// Two providers are supported:
//
//   - Biblionix: a vendor ILS backend. Session-token authentication over a
//     login POST, account state as an XML document.
//   - BiblioCommons: a consumer web front end. Form login with an
//     authenticity token, session cookies, and a JSON checkouts gateway.
//
// Both adapters normalize into models.AccountSnapshot so the sync
// orchestrator never branches on provider shape.
package library

import (
	"context"
	"errors"
	"net"

	"github.com/tomtom215/hearth/internal/models"
)

// Adapter errors. Adapters wrap these so callers can classify failures
// without string matching.
var (
	// ErrAuthFailed means the provider rejected the credential or never
	// issued the expected session artifacts.
	ErrAuthFailed = errors.New("library authentication failed")

	// ErrMalformedResponse means the provider answered with a shape the
	// adapter does not understand. Hard failure for that credential.
	ErrMalformedResponse = errors.New("malformed provider response")

	// ErrRenewalFailed means the provider declined a renewal command.
	ErrRenewalFailed = errors.New("renewal failed")
)

// Provider is the uniform capability both adapters expose: fetch the current
// loan list (and any reported fee balance) for one credential.
type Provider interface {
	// Type returns the provider tag this adapter serves.
	Type() models.ProviderType

	// FetchAccount authenticates and retrieves the credential's current
	// account snapshot. Implementations perform no database writes.
	FetchAccount(ctx context.Context, cred *models.LibraryCredential) (*models.AccountSnapshot, error)
}

// Registry resolves a stored provider tag to its adapter.
type Registry struct {
	providers map[models.ProviderType]Provider
}

// NewRegistry builds a registry from the given adapters.
func NewRegistry(providers ...Provider) *Registry {
	m := make(map[models.ProviderType]Provider, len(providers))
	for _, p := range providers {
		m[p.Type()] = p
	}
	return &Registry{providers: m}
}

// For returns the adapter for a provider tag.
func (r *Registry) For(t models.ProviderType) (Provider, bool) {
	p, ok := r.providers[t]
	return p, ok
}

// IsTimeout reports whether an adapter error was caused by a timeout,
// either a network deadline or context expiry.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
