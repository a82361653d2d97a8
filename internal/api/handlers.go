// Hearth - Household Management and Library Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hearth

// Package api provides the HTTP surface: library credential management,
// the cached book list, and ad-hoc job control.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/hearth/internal/database"
	"github.com/tomtom215/hearth/internal/library"
	"github.com/tomtom215/hearth/internal/logging"
	"github.com/tomtom215/hearth/internal/models"
	"github.com/tomtom215/hearth/internal/scheduler"
	syncpkg "github.com/tomtom215/hearth/internal/sync"
)

// Store defines the database operations the handlers need.
type Store interface {
	CreateCredential(ctx context.Context, cred *models.LibraryCredential) error
	ListCredentials(ctx context.Context) ([]models.LibraryCredential, error)
	DeleteCredential(ctx context.Context, id string) error
	ListBooks(ctx context.Context) ([]models.LibraryBook, error)
	Ping(ctx context.Context) error
}

// JobController is the scheduler surface exposed over the API.
type JobController interface {
	Enqueue(name string) error
	Jobs() []scheduler.JobInfo
	History() []scheduler.JobRun
}

// ItemRenewer renews one cached checkout synchronously.
type ItemRenewer interface {
	RenewItem(ctx context.Context, itemID string) error
}

var validate = validator.New()

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	store   Store
	jobs    JobController
	renewer ItemRenewer
}

// NewHandlers creates the API handlers.
func NewHandlers(store Store, jobs JobController, renewer ItemRenewer) *Handlers {
	return &Handlers{store: store, jobs: jobs, renewer: renewer}
}

// Health reports process and database health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	dbStatus := "ok"
	status := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		dbStatus = "unavailable"
		status = http.StatusServiceUnavailable
	}

	respondSuccess(w, status, map[string]string{
		"status":   "ok",
		"database": dbStatus,
	})
}

// createCredentialRequest is the POST body for a new library credential.
type createCredentialRequest struct {
	Library     string `json:"library" validate:"required"`
	Username    string `json:"username" validate:"required"`
	Password    string `json:"password" validate:"required"`
	DisplayName string `json:"display_name" validate:"required"`
	Provider    string `json:"provider" validate:"required"`
}

// ListCredentials returns all stored credentials, secrets omitted.
func (h *Handlers) ListCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := h.store.ListCredentials(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to list credentials", err)
		return
	}
	respondSuccess(w, http.StatusOK, creds)
}

// CreateCredential stores a credential and queues a sync so its books
// appear without waiting for the next interval.
func (h *Handlers) CreateCredential(w http.ResponseWriter, r *http.Request) {
	var req createCredentialRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Request body is not valid JSON", err)
		return
	}
	if err := validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	provider, err := models.ParseProviderType(req.Provider)
	if err != nil {
		respondError(w, http.StatusBadRequest, "UNKNOWN_PROVIDER", "Provider must be biblionix or bibliocommons", err)
		return
	}

	cred := &models.LibraryCredential{
		Library:     req.Library,
		Username:    req.Username,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Provider:    provider,
	}
	if err := h.store.CreateCredential(r.Context(), cred); err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to store credential", err)
		return
	}

	h.enqueueSync()
	respondSuccess(w, http.StatusCreated, cred)
}

// DeleteCredential removes a credential and its cached books, then queues
// a sync to settle the remaining accounts.
func (h *Handlers) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.store.DeleteCredential(r.Context(), id); err != nil {
		if errors.Is(err, database.ErrCredentialNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "Credential not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete credential", err)
		return
	}

	h.enqueueSync()
	respondSuccess(w, http.StatusOK, nil)
}

// ListBooks returns the cached checkouts across all accounts.
func (h *Handlers) ListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.store.ListBooks(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to list books", err)
		return
	}
	respondSuccess(w, http.StatusOK, books)
}

// RenewBook renews one checkout against its provider and returns once the
// cached due date is updated.
func (h *Handlers) RenewBook(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	err := h.renewer.RenewItem(r.Context(), itemID)
	switch {
	case err == nil:
		respondSuccess(w, http.StatusOK, nil)
	case errors.Is(err, database.ErrCredentialNotFound), errors.Is(err, database.ErrBookNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", "No cached book with that item id", nil)
	case errors.Is(err, syncpkg.ErrRenewalUnsupported):
		respondError(w, http.StatusConflict, "RENEWAL_UNSUPPORTED", "This provider does not support renewal", nil)
	case errors.Is(err, library.ErrRenewalFailed):
		respondError(w, http.StatusBadGateway, "RENEWAL_REJECTED", "The library rejected the renewal", err)
	default:
		respondError(w, http.StatusBadGateway, "PROVIDER_ERROR", "Failed to reach the library", err)
	}
}

// SyncNow queues an immediate sync run.
func (h *Handlers) SyncNow(w http.ResponseWriter, r *http.Request) {
	h.enqueueJob(w, scheduler.JobLibrarySync)
}

// NotifyNow queues an immediate due-book notification run.
func (h *Handlers) NotifyNow(w http.ResponseWriter, r *http.Request) {
	h.enqueueJob(w, scheduler.JobDueNotify)
}

// Jobs returns the registered jobs and recent run history.
func (h *Handlers) Jobs(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, map[string]any{
		"jobs":    h.jobs.Jobs(),
		"history": h.jobs.History(),
	})
}

// enqueueJob queues a named job and maps queue errors to HTTP statuses.
func (h *Handlers) enqueueJob(w http.ResponseWriter, name string) {
	err := h.jobs.Enqueue(name)
	switch {
	case err == nil:
		respondSuccess(w, http.StatusAccepted, map[string]string{"job": name, "state": "queued"})
	case errors.Is(err, scheduler.ErrUnknownJob):
		respondError(w, http.StatusNotFound, "JOB_NOT_FOUND", "No such job is registered", nil)
	case errors.Is(err, scheduler.ErrQueueFull):
		respondError(w, http.StatusServiceUnavailable, "QUEUE_FULL", "Job queue is full, try again later", nil)
	default:
		respondError(w, http.StatusInternalServerError, "QUEUE_ERROR", "Failed to queue job", err)
	}
}

// enqueueSync queues the post-mutation sync. Best effort; the interval
// trigger covers a dropped run.
func (h *Handlers) enqueueSync() {
	if err := h.jobs.Enqueue(scheduler.JobLibrarySync); err != nil {
		logging.Warn().Err(err).Msg("Failed to queue sync after credential change")
	}
}
