// Hearth - Household Management and Library Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hearth

package library

import (
	"fmt"
	"strings"
	"time"
)

// biblionixDueLayout is the vendor's due-date format: MM-DD-YYYY, but the
// separator is U+2011 (non-breaking hyphen), not ASCII "-". The vendor is
// consistent about this; any other separator is a malformed response.
const biblionixDueLayout = "01‑02‑2006"

// parseBiblionixDue converts the vendor's raw due-date string to a calendar
// date in UTC.
func parseBiblionixDue(raw string) (time.Time, error) {
	t, err := time.Parse(biblionixDueLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad due date %q: %v", ErrMalformedResponse, raw, err)
	}
	return t, nil
}

// checkoutDueLayout is the ISO date the BiblioCommons gateway returns.
const checkoutDueLayout = "2006-01-02"

// parseCheckoutDue converts a gateway due-date string to a calendar date.
func parseCheckoutDue(raw string) (time.Time, error) {
	t, err := time.Parse(checkoutDueLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad due date %q: %v", ErrMalformedResponse, raw, err)
	}
	return t, nil
}

// stripSoftHyphens removes U+00AD soft hyphens, which Biblionix scatters
// through titles and medium names for line breaking.
func stripSoftHyphens(s string) string {
	return strings.ReplaceAll(s, "\u00ad", "")
}
