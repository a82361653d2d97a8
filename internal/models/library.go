// Hearth - Household Management and Library Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hearth

// Package models defines the data records shared across Hearth's packages:
// library credentials, the cached book rows rebuilt on every sync, and the
// normalized loan shape both provider adapters produce.
package models

import (
	"errors"
	"fmt"
	"time"
)

// ProviderType selects which adapter protocol to use for a credential.
type ProviderType string

// Supported provider types.
const (
	// ProviderBiblionix is the vendor ILS backend spoken to over XML.
	ProviderBiblionix ProviderType = "biblionix"

	// ProviderBiblioCommons is the consumer web front end spoken to over
	// session cookies and a JSON gateway.
	ProviderBiblioCommons ProviderType = "bibliocommons"
)

// ErrUnknownProvider is returned when a stored provider tag matches no adapter.
var ErrUnknownProvider = errors.New("unknown library provider type")

// ParseProviderType validates a stored provider tag.
func ParseProviderType(s string) (ProviderType, error) {
	switch ProviderType(s) {
	case ProviderBiblionix, ProviderBiblioCommons:
		return ProviderType(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
	}
}

// LibraryCredential describes one configured library account.
//
// The password is stored in cleartext: both providers require the original
// secret on every login, so it cannot be hashed. This is a known weakness
// carried over from the system this replaces.
type LibraryCredential struct {
	ID          string       `json:"id"`
	Library     string       `json:"library"` // provider-specific subdomain/URL fragment
	Username    string       `json:"username"`
	Password    string       `json:"-"`
	DisplayName string       `json:"display_name"`
	Provider    ProviderType `json:"provider"`
	Balance     int          `json:"balance"` // outstanding fees in cents
	CreatedAt   time.Time    `json:"created_at"`
}

// LibraryBook is one cached loan row. The books table is truncated and
// repopulated on every sync cycle; rows carry no history.
type LibraryBook struct {
	ID           string    `json:"id"`
	CredentialID string    `json:"credential_id"`
	Title        string    `json:"title"`
	Due          time.Time `json:"due"`
	Renewable    bool      `json:"renewable"`
	ItemID       string    `json:"item_id"`
	Medium       string    `json:"medium"`

	// DisplayName is the owning credential's display name, populated on
	// joined reads only.
	DisplayName string `json:"display_name,omitempty"`
}

// DueOn reports whether the book is due on or before the given date.
// Comparison is by calendar date, not instant.
func (b *LibraryBook) DueOn(asOf time.Time) bool {
	y1, m1, d1 := b.Due.Date()
	y2, m2, d2 := asOf.Date()
	due := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	ref := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	return !due.After(ref)
}

// Loan is the normalized "current loan" record both adapters return.
type Loan struct {
	Title     string
	Subtitle  string
	Due       time.Time
	Renewable bool
	ItemID    string
	Medium    string
}

// DisplayTitle joins title and subtitle the way the catalog pages do.
func (l *Loan) DisplayTitle() string {
	if l.Subtitle == "" {
		return l.Title
	}
	return l.Title + " / " + l.Subtitle
}

// AccountSnapshot is one credential's state as reported by its provider.
type AccountSnapshot struct {
	Loans []Loan

	// Balance is the outstanding fee balance in cents, if the provider
	// reported one. Nil means the provider said nothing about fees.
	Balance *int
}
