// Hearth - Household Management and Library Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hearth

package library

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/hearth/internal/models"
)

// defaultBiblionixBase is the vendor URL template; %s is the credential's
// library subdomain.
const defaultBiblionixBase = "https://%s.biblionix.com"

// maxResponseBody limits how much of a provider response is read. Both
// providers return small documents; anything larger is hostile or broken.
const maxResponseBody = 4 << 20 // 4MB

// BiblionixClient talks to the Biblionix ILS ajax backend.
//
// Protocol per credential:
//  1. POST /catalog/ajax_backend/login.xml.pl with the username/password
//     form; the response is an XML element carrying a "session" attribute.
//  2. POST /catalog/ajax_backend/account.xml.pl with the session token as
//     both form field and cookie; the response lists <item> loans and
//     <alerts> entries that may carry an outstanding balance.
type BiblionixClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter

	// BaseTemplate overrides the vendor URL template. Tests point this at
	// a local server; production leaves it empty.
	BaseTemplate string
}

// NewBiblionixClient creates a Biblionix adapter with the given per-request
// timeout. Requests are rate limited to one per 500ms per process to stay
// polite toward the vendor's shared backend.
func NewBiblionixClient(timeout time.Duration) *BiblionixClient {
	return &BiblionixClient{
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
	}
}

// Type implements Provider.
func (c *BiblionixClient) Type() models.ProviderType {
	return models.ProviderBiblionix
}

// baseURL resolves the vendor base URL for one library subdomain.
func (c *BiblionixClient) baseURL(library string) string {
	template := c.BaseTemplate
	if template == "" {
		template = defaultBiblionixBase
	}
	return fmt.Sprintf(template, library)
}

// biblionixLogin is the root element of the login response. Only the
// session attribute matters.
type biblionixLogin struct {
	Session string `xml:"session,attr"`
}

// biblionixAccount is the account response document.
type biblionixAccount struct {
	Items  []biblionixItem  `xml:"item"`
	Alerts []biblionixAlert `xml:"alerts"`
}

type biblionixItem struct {
	ID        string `xml:"id,attr"`
	Title     string `xml:"title,attr"`
	DueRaw    string `xml:"due_raw,attr"`
	Renewable string `xml:"renewable,attr"`
	Medium    string `xml:"medium,attr"`
}

type biblionixAlert struct {
	Balance *int `xml:"balance,attr"`
}

// biblionixRenew is the account_command response for a renew command.
type biblionixRenew struct {
	Success string `xml:"success,attr"`
	Item    *struct {
		Due string `xml:"due,attr"`
	} `xml:"item"`
}

// FetchAccount implements Provider.
func (c *BiblionixClient) FetchAccount(ctx context.Context, cred *models.LibraryCredential) (*models.AccountSnapshot, error) {
	session, err := c.authenticate(ctx, cred)
	if err != nil {
		return nil, err
	}

	var account biblionixAccount
	form := url.Values{"session": {session}}
	if err := c.postXML(ctx, c.baseURL(cred.Library)+"/catalog/ajax_backend/account.xml.pl", form, session, &account); err != nil {
		return nil, fmt.Errorf("account fetch: %w", err)
	}

	snapshot := &models.AccountSnapshot{}
	for _, alert := range account.Alerts {
		if alert.Balance != nil {
			balance := *alert.Balance
			snapshot.Balance = &balance
		}
	}

	for _, item := range account.Items {
		due, err := parseBiblionixDue(item.DueRaw)
		if err != nil {
			return nil, err
		}
		snapshot.Loans = append(snapshot.Loans, models.Loan{
			Title:     stripSoftHyphens(item.Title),
			Due:       due,
			Renewable: item.Renewable == "1",
			ItemID:    item.ID,
			Medium:    stripSoftHyphens(item.Medium),
		})
	}

	return snapshot, nil
}

// Renew asks the vendor to renew one checkout and returns the new due date.
func (c *BiblionixClient) Renew(ctx context.Context, cred *models.LibraryCredential, itemID string) (time.Time, error) {
	session, err := c.authenticate(ctx, cred)
	if err != nil {
		return time.Time{}, err
	}

	// The vendor requires an account fetch before it accepts commands on
	// a fresh session.
	var account biblionixAccount
	form := url.Values{"session": {session}}
	if err := c.postXML(ctx, c.baseURL(cred.Library)+"/catalog/ajax_backend/account.xml.pl", form, session, &account); err != nil {
		return time.Time{}, fmt.Errorf("account fetch before renew: %w", err)
	}

	var renew biblionixRenew
	renewForm := url.Values{
		"command":  {"renew"},
		"checkout": {itemID},
	}
	if err := c.postXML(ctx, c.baseURL(cred.Library)+"/catalog/ajax_backend/account_command.xml.pl", renewForm, session, &renew); err != nil {
		return time.Time{}, fmt.Errorf("renew command: %w", err)
	}

	if renew.Success != "1" || renew.Item == nil {
		return time.Time{}, fmt.Errorf("%w: item %s", ErrRenewalFailed, itemID)
	}

	return parseBiblionixDue(renew.Item.Due)
}

// authenticate performs the login POST and extracts the session token.
func (c *BiblionixClient) authenticate(ctx context.Context, cred *models.LibraryCredential) (string, error) {
	form := url.Values{
		"username": {cred.Username},
		"password": {cred.Password},
	}

	var login biblionixLogin
	if err := c.postXML(ctx, c.baseURL(cred.Library)+"/catalog/ajax_backend/login.xml.pl", form, "", &login); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}

	if login.Session == "" {
		return "", fmt.Errorf("%w: no session attribute in login response", ErrAuthFailed)
	}

	return login.Session, nil
}

// postXML posts a form and decodes the XML response into out. When session
// is non-empty it is attached as the vendor's session cookie.
func (c *BiblionixClient) postXML(ctx context.Context, endpoint string, form url.Values, session string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if session != "" {
		req.AddCookie(&http.Cookie{Name: "session", Value: session})
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }() //nolint:errcheck // Best effort cleanup

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d from %s", ErrMalformedResponse, resp.StatusCode, endpoint)
	}

	body := io.LimitReader(resp.Body, maxResponseBody)
	if err := xml.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return nil
}
