// Hearth - Household Management and Library Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hearth

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/hearth/internal/config"
	"github.com/tomtom215/hearth/internal/database"
	"github.com/tomtom215/hearth/internal/models"
	"github.com/tomtom215/hearth/internal/scheduler"
	syncpkg "github.com/tomtom215/hearth/internal/sync"
)

// fakeStore is an in-memory Store for handler tests.
type fakeStore struct {
	creds   []models.LibraryCredential
	books   []models.LibraryBook
	pingErr error
}

func (s *fakeStore) CreateCredential(_ context.Context, cred *models.LibraryCredential) error {
	cred.ID = "cred-new"
	cred.CreatedAt = time.Now()
	s.creds = append(s.creds, *cred)
	return nil
}

func (s *fakeStore) ListCredentials(context.Context) ([]models.LibraryCredential, error) {
	return s.creds, nil
}

func (s *fakeStore) DeleteCredential(_ context.Context, id string) error {
	for i := range s.creds {
		if s.creds[i].ID == id {
			s.creds = append(s.creds[:i], s.creds[i+1:]...)
			return nil
		}
	}
	return database.ErrCredentialNotFound
}

func (s *fakeStore) ListBooks(context.Context) ([]models.LibraryBook, error) {
	return s.books, nil
}

func (s *fakeStore) Ping(context.Context) error { return s.pingErr }

// fakeJobs records enqueued job names.
type fakeJobs struct {
	enqueued []string
	err      error
}

func (j *fakeJobs) Enqueue(name string) error {
	if j.err != nil {
		return j.err
	}
	j.enqueued = append(j.enqueued, name)
	return nil
}

func (j *fakeJobs) Jobs() []scheduler.JobInfo {
	return []scheduler.JobInfo{{Name: scheduler.JobLibrarySync, Interval: "6h0m0s"}}
}

func (j *fakeJobs) History() []scheduler.JobRun {
	return []scheduler.JobRun{{Job: scheduler.JobLibrarySync, Trigger: scheduler.TriggerInterval, Result: "success"}}
}

// fakeRenewer maps item ids to canned errors.
type fakeRenewer struct {
	err    error
	itemID string
}

func (r *fakeRenewer) RenewItem(_ context.Context, itemID string) error {
	r.itemID = itemID
	return r.err
}

func newTestServer(t *testing.T, store *fakeStore, jobs *fakeJobs, renewer *fakeRenewer) *httptest.Server {
	t.Helper()

	mw := NewMiddleware(&config.SecurityConfig{
		RateLimitReqs:   1000,
		RateLimitWindow: time.Minute,
	})
	router := NewRouter(NewHandlers(store, jobs, renewer), mw)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

// decodeEnvelope parses the standard response envelope.
func decodeEnvelope(t *testing.T, resp *http.Response) models.APIResponse {
	t.Helper()
	defer func() { _ = resp.Body.Close() }() //nolint:errcheck // Best effort cleanup

	var envelope models.APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return envelope
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t, &fakeStore{}, &fakeJobs{}, &fakeRenewer{})

	resp, err := http.Get(server.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	envelope := decodeEnvelope(t, resp)
	if envelope.Status != "success" {
		t.Errorf("envelope status = %q", envelope.Status)
	}
}

func TestCreateCredential(t *testing.T) {
	store := &fakeStore{}
	jobs := &fakeJobs{}
	server := newTestServer(t, store, jobs, &fakeRenewer{})

	body := `{"library":"testville","username":"alice","password":"pw","display_name":"Alice","provider":"biblionix"}`
	resp, err := http.Post(server.URL+"/api/v1/library/credentials", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST credential: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	_ = resp.Body.Close() //nolint:errcheck // Body unused

	if len(store.creds) != 1 {
		t.Fatalf("store has %d credentials, want 1", len(store.creds))
	}
	// A credential change queues an immediate sync.
	if len(jobs.enqueued) != 1 || jobs.enqueued[0] != scheduler.JobLibrarySync {
		t.Errorf("enqueued = %v, want one sync", jobs.enqueued)
	}
}

func TestCreateCredentialValidation(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{
			name:     "missing password",
			body:     `{"library":"x","username":"a","display_name":"A","provider":"biblionix"}`,
			wantCode: "VALIDATION_ERROR",
		},
		{
			name:     "unknown provider",
			body:     `{"library":"x","username":"a","password":"p","display_name":"A","provider":"overdrive"}`,
			wantCode: "UNKNOWN_PROVIDER",
		},
		{
			name:     "not json",
			body:     `not json at all`,
			wantCode: "INVALID_REQUEST",
		},
		{
			name:     "unknown field",
			body:     `{"library":"x","username":"a","password":"p","display_name":"A","provider":"biblionix","admin":true}`,
			wantCode: "INVALID_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			jobs := &fakeJobs{}
			server := newTestServer(t, store, jobs, &fakeRenewer{})

			resp, err := http.Post(server.URL+"/api/v1/library/credentials", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("POST credential: %v", err)
			}
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}

			envelope := decodeEnvelope(t, resp)
			if envelope.Error == nil || envelope.Error.Code != tt.wantCode {
				t.Errorf("error = %+v, want code %s", envelope.Error, tt.wantCode)
			}
			if len(store.creds) != 0 {
				t.Error("invalid request should not store a credential")
			}
			if len(jobs.enqueued) != 0 {
				t.Error("invalid request should not queue a sync")
			}
		})
	}
}

func TestDeleteCredential(t *testing.T) {
	store := &fakeStore{creds: []models.LibraryCredential{{ID: "cred-1"}}}
	jobs := &fakeJobs{}
	server := newTestServer(t, store, jobs, &fakeRenewer{})

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/api/v1/library/credentials/cred-1", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE credential: %v", err)
	}
	_ = resp.Body.Close() //nolint:errcheck // Body unused

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if len(store.creds) != 0 {
		t.Error("credential should be removed")
	}
	if len(jobs.enqueued) != 1 {
		t.Errorf("enqueued = %v, deletion should queue a sync", jobs.enqueued)
	}
}

func TestDeleteCredentialNotFound(t *testing.T) {
	server := newTestServer(t, &fakeStore{}, &fakeJobs{}, &fakeRenewer{})

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/api/v1/library/credentials/ghost", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE credential: %v", err)
	}
	_ = resp.Body.Close() //nolint:errcheck // Body unused

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestListBooks(t *testing.T) {
	store := &fakeStore{books: []models.LibraryBook{
		{ID: "b1", Title: "Dune", Due: time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)},
	}}
	server := newTestServer(t, store, &fakeJobs{}, &fakeRenewer{})

	resp, err := http.Get(server.URL + "/api/v1/library/books")
	if err != nil {
		t.Fatalf("GET books: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	envelope := decodeEnvelope(t, resp)
	books, ok := envelope.Data.([]any)
	if !ok || len(books) != 1 {
		t.Errorf("data = %v, want one book", envelope.Data)
	}
}

func TestSyncNowAccepted(t *testing.T) {
	jobs := &fakeJobs{}
	server := newTestServer(t, &fakeStore{}, jobs, &fakeRenewer{})

	resp, err := http.Post(server.URL+"/api/v1/library/sync-now", "application/json", nil)
	if err != nil {
		t.Fatalf("POST sync-now: %v", err)
	}
	_ = resp.Body.Close() //nolint:errcheck // Body unused

	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want 202", resp.StatusCode)
	}
	if len(jobs.enqueued) != 1 || jobs.enqueued[0] != scheduler.JobLibrarySync {
		t.Errorf("enqueued = %v", jobs.enqueued)
	}
}

func TestNotifyNowWhenDisabled(t *testing.T) {
	jobs := &fakeJobs{err: scheduler.ErrUnknownJob}
	server := newTestServer(t, &fakeStore{}, jobs, &fakeRenewer{})

	resp, err := http.Post(server.URL+"/api/v1/library/notify-now", "application/json", nil)
	if err != nil {
		t.Fatalf("POST notify-now: %v", err)
	}
	_ = resp.Body.Close() //nolint:errcheck // Body unused

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when the notify job is not registered", resp.StatusCode)
	}
}

func TestSyncNowQueueFull(t *testing.T) {
	jobs := &fakeJobs{err: scheduler.ErrQueueFull}
	server := newTestServer(t, &fakeStore{}, jobs, &fakeRenewer{})

	resp, err := http.Post(server.URL+"/api/v1/library/sync-now", "application/json", nil)
	if err != nil {
		t.Fatalf("POST sync-now: %v", err)
	}
	_ = resp.Body.Close() //nolint:errcheck // Body unused

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestRenewBook(t *testing.T) {
	tests := []struct {
		name       string
		renewErr   error
		wantStatus int
	}{
		{name: "success", wantStatus: http.StatusOK},
		{name: "unknown item", renewErr: database.ErrCredentialNotFound, wantStatus: http.StatusNotFound},
		{name: "unsupported provider", renewErr: syncpkg.ErrRenewalUnsupported, wantStatus: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			renewer := &fakeRenewer{err: tt.renewErr}
			server := newTestServer(t, &fakeStore{}, &fakeJobs{}, renewer)

			resp, err := http.Post(server.URL+"/api/v1/library/books/101/renew", "application/json", nil)
			if err != nil {
				t.Fatalf("POST renew: %v", err)
			}
			_ = resp.Body.Close() //nolint:errcheck // Body unused

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if renewer.itemID != "101" {
				t.Errorf("renewer called with %q, want 101", renewer.itemID)
			}
		})
	}
}

func TestJobsEndpoint(t *testing.T) {
	server := newTestServer(t, &fakeStore{}, &fakeJobs{}, &fakeRenewer{})

	resp, err := http.Get(server.URL + "/api/v1/jobs")
	if err != nil {
		t.Fatalf("GET jobs: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	envelope := decodeEnvelope(t, resp)
	data, ok := envelope.Data.(map[string]any)
	if !ok {
		t.Fatalf("data = %T, want object", envelope.Data)
	}
	if _, ok := data["jobs"]; !ok {
		t.Error("response missing jobs list")
	}
	if _, ok := data["history"]; !ok {
		t.Error("response missing run history")
	}
}
