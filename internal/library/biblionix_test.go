// Hearth - Household Management and Library Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hearth

package library

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tomtom215/hearth/internal/models"
)

// newBiblionixTestClient points a client at a local stand-in for the
// vendor backend and disables the polite rate limit delay.
func newBiblionixTestClient(serverURL string) *BiblionixClient {
	c := NewBiblionixClient(5 * time.Second)
	// The test server has no per-library vhosts; the subdomain becomes a
	// path prefix instead.
	c.BaseTemplate = serverURL + "/%s"
	return c
}

func biblionixCred() *models.LibraryCredential {
	return &models.LibraryCredential{
		ID:          "cred-1",
		Library:     "testville",
		Username:    "alice",
		Password:    "hunter2",
		DisplayName: "Alice",
		Provider:    models.ProviderBiblionix,
	}
}

func TestBiblionixFetchAccount(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/testville/catalog/ajax_backend/login.xml.pl", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse login form: %v", err)
		}
		if got := r.PostForm.Get("username"); got != "alice" {
			t.Errorf("login username = %q, want alice", got)
		}
		_, _ = w.Write([]byte(`<response session="sess-123"/>`))
	})
	mux.HandleFunc("/testville/catalog/ajax_backend/account.xml.pl", func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("session")
		if err != nil || cookie.Value != "sess-123" {
			t.Errorf("account request missing session cookie, got %v, %v", cookie, err)
		}
		_, _ = w.Write([]byte(`<account>
			<item id="101" title="The Snowy` + "­" + ` Day" due_raw="09` + "‑" + `01` + "‑" + `2026" renewable="1" medium="Board` + "­" + ` Book"/>
			<item id="102" title="Goodnight Moon" due_raw="09` + "‑" + `15` + "‑" + `2026" renewable="0" medium=""/>
			<alerts balance="250"/>
		</account>`))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := newBiblionixTestClient(server.URL)
	snapshot, err := client.FetchAccount(context.Background(), biblionixCred())
	if err != nil {
		t.Fatalf("FetchAccount: %v", err)
	}

	if snapshot.Balance == nil || *snapshot.Balance != 250 {
		t.Errorf("Balance = %v, want 250", snapshot.Balance)
	}
	if len(snapshot.Loans) != 2 {
		t.Fatalf("got %d loans, want 2", len(snapshot.Loans))
	}

	first := snapshot.Loans[0]
	if first.Title != "The Snowy Day" {
		t.Errorf("Title = %q, soft hyphens should be stripped", first.Title)
	}
	if first.Medium != "Board Book" {
		t.Errorf("Medium = %q, soft hyphens should be stripped", first.Medium)
	}
	if !first.Renewable {
		t.Error("first loan should be renewable")
	}
	if first.ItemID != "101" {
		t.Errorf("ItemID = %q, want 101", first.ItemID)
	}
	wantDue := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	if !first.Due.Equal(wantDue) {
		t.Errorf("Due = %v, want %v", first.Due, wantDue)
	}

	if snapshot.Loans[1].Renewable {
		t.Error("second loan should not be renewable")
	}
}

func TestBiblionixFetchAccountAuthFailed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/testville/catalog/ajax_backend/login.xml.pl", func(w http.ResponseWriter, r *http.Request) {
		// Rejected logins come back without a session attribute.
		_, _ = w.Write([]byte(`<response/>`))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := newBiblionixTestClient(server.URL)
	_, err := client.FetchAccount(context.Background(), biblionixCred())
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestBiblionixFetchAccountMalformedDueDate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/testville/catalog/ajax_backend/login.xml.pl", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<response session="sess-123"/>`))
	})
	mux.HandleFunc("/testville/catalog/ajax_backend/account.xml.pl", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<account><item id="101" title="Bad" due_raw="not a date" renewable="0" medium=""/></account>`))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := newBiblionixTestClient(server.URL)
	_, err := client.FetchAccount(context.Background(), biblionixCred())
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestBiblionixRenew(t *testing.T) {
	var commandForm map[string]string

	mux := http.NewServeMux()
	mux.HandleFunc("/testville/catalog/ajax_backend/login.xml.pl", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<response session="sess-123"/>`))
	})
	mux.HandleFunc("/testville/catalog/ajax_backend/account.xml.pl", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<account><item id="101" title="X" due_raw="09` + "‑" + `01` + "‑" + `2026" renewable="1" medium=""/></account>`))
	})
	mux.HandleFunc("/testville/catalog/ajax_backend/account_command.xml.pl", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse command form: %v", err)
		}
		commandForm = map[string]string{
			"command":  r.PostForm.Get("command"),
			"checkout": r.PostForm.Get("checkout"),
		}
		_, _ = w.Write([]byte(`<response success="1"><item due="09` + "‑" + `22` + "‑" + `2026"/></response>`))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := newBiblionixTestClient(server.URL)
	newDue, err := client.Renew(context.Background(), biblionixCred(), "101")
	if err != nil {
		t.Fatalf("Renew: %v", err)
	}

	if commandForm["command"] != "renew" || commandForm["checkout"] != "101" {
		t.Errorf("renew command form = %v", commandForm)
	}
	wantDue := time.Date(2026, 9, 22, 0, 0, 0, 0, time.UTC)
	if !newDue.Equal(wantDue) {
		t.Errorf("new due = %v, want %v", newDue, wantDue)
	}
}

func TestBiblionixRenewRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/testville/catalog/ajax_backend/login.xml.pl", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<response session="sess-123"/>`))
	})
	mux.HandleFunc("/testville/catalog/ajax_backend/account.xml.pl", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<account/>`))
	})
	mux.HandleFunc("/testville/catalog/ajax_backend/account_command.xml.pl", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<response success="0"/>`))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := newBiblionixTestClient(server.URL)
	_, err := client.Renew(context.Background(), biblionixCred(), "101")
	if !errors.Is(err, ErrRenewalFailed) {
		t.Fatalf("expected ErrRenewalFailed, got %v", err)
	}
}
