// Hearth - Household Management and Library Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hearth

package models

import (
	"errors"
	"testing"
	"time"
)

func TestParseProviderType(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    ProviderType
		wantErr bool
	}{
		{name: "biblionix", in: "biblionix", want: ProviderBiblionix},
		{name: "bibliocommons", in: "bibliocommons", want: ProviderBiblioCommons},
		{name: "unknown", in: "overdrive", wantErr: true},
		{name: "empty", in: "", wantErr: true},
		{name: "case sensitive", in: "Biblionix", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseProviderType(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseProviderType(%q) expected error, got %q", tt.in, got)
				}
				if !errors.Is(err, ErrUnknownProvider) {
					t.Errorf("error should wrap ErrUnknownProvider, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseProviderType(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseProviderType(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLibraryBookDueOn(t *testing.T) {
	book := LibraryBook{
		Due: time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name string
		asOf time.Time
		want bool
	}{
		{name: "day before", asOf: time.Date(2026, 8, 27, 23, 0, 0, 0, time.UTC), want: false},
		{name: "due date morning", asOf: time.Date(2026, 8, 28, 0, 0, 1, 0, time.UTC), want: true},
		{name: "due date evening", asOf: time.Date(2026, 8, 28, 23, 59, 0, 0, time.UTC), want: true},
		{name: "day after", asOf: time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := book.DueOn(tt.asOf); got != tt.want {
				t.Errorf("DueOn(%v) = %v, want %v", tt.asOf, got, tt.want)
			}
		})
	}
}

func TestLoanDisplayTitle(t *testing.T) {
	tests := []struct {
		name string
		loan Loan
		want string
	}{
		{name: "no subtitle", loan: Loan{Title: "Dune"}, want: "Dune"},
		{
			name: "with subtitle",
			loan: Loan{Title: "Cosmos", Subtitle: "a personal voyage"},
			want: "Cosmos / a personal voyage",
		},
		{name: "empty title", loan: Loan{Subtitle: "orphan"}, want: " / orphan"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.loan.DisplayTitle(); got != tt.want {
				t.Errorf("DisplayTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}
