// Hearth - Household Management and Library Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hearth

// Package sync implements the library sync orchestrator: the job that
// rebuilds the local book cache from every configured library account.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/hearth/internal/library"
	"github.com/tomtom215/hearth/internal/logging"
	"github.com/tomtom215/hearth/internal/metrics"
	"github.com/tomtom215/hearth/internal/models"
)

// Store defines the database operations the orchestrator needs.
// Implemented by *database.DB; tests use fakes.
type Store interface {
	ListCredentials(ctx context.Context) ([]models.LibraryCredential, error)
	TruncateBooks(ctx context.Context) error
	InsertBook(ctx context.Context, book *models.LibraryBook) error
	UpdateCredentialBalance(ctx context.Context, id string, balance int) error
	GetCredentialByItemID(ctx context.Context, itemID string) (*models.LibraryCredential, error)
	UpdateBookDue(ctx context.Context, itemID string, due time.Time) error
}

// Renewer issues a renewal command for one checkout. Only the Biblionix
// adapter supports this.
type Renewer interface {
	Renew(ctx context.Context, cred *models.LibraryCredential, itemID string) (time.Time, error)
}

// ErrRenewalUnsupported is returned when a renewal is requested for a
// credential whose provider has no renewal operation.
var ErrRenewalUnsupported = errors.New("provider does not support renewal")

// Manager orchestrates sync cycles.
//
// A cycle truncates the book cache, then walks the stored credentials in
// insertion order, dispatching each to its provider adapter. Failures are
// contained per credential: a timeout or malformed response skips that
// credential and the loop continues. A credential that fails after the
// truncate simply has no rows until the next cycle - an accepted
// incompleteness window, not an error.
type Manager struct {
	store    Store
	registry *library.Registry
	renewer  Renewer
	logger   zerolog.Logger
}

// NewManager creates a sync orchestrator. renewer may be nil when no
// provider supporting renewal is configured.
func NewManager(store Store, registry *library.Registry, renewer Renewer) *Manager {
	return &Manager{
		store:    store,
		registry: registry,
		renewer:  renewer,
		logger:   logging.Logger().With().Str("component", "library-sync").Logger(),
	}
}

// Sync rebuilds the book cache. Running it twice against unchanged remote
// state yields an identical cache; truncate-and-reinsert is naturally
// idempotent.
func (m *Manager) Sync(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.SyncDuration.Observe(time.Since(start).Seconds())
	}()

	m.logger.Info().Msg("Syncing library data")

	if err := m.store.TruncateBooks(ctx); err != nil {
		return fmt.Errorf("truncate book cache: %w", err)
	}

	creds, err := m.store.ListCredentials(ctx)
	if err != nil {
		return fmt.Errorf("list credentials: %w", err)
	}

	for i := range creds {
		m.syncCredential(ctx, &creds[i])
	}

	metrics.SyncLastSuccess.SetToCurrentTime()
	m.logger.Info().Dur("duration", time.Since(start)).Int("credentials", len(creds)).Msg("Library sync finished")
	return nil
}

// syncCredential refreshes one credential. All failure paths log and
// return; nothing here aborts the overall cycle.
func (m *Manager) syncCredential(ctx context.Context, cred *models.LibraryCredential) {
	logger := m.logger.With().
		Str("credential", cred.DisplayName).
		Str("provider", string(cred.Provider)).
		Logger()

	logger.Info().Msg("Syncing library data for credential")

	provider, ok := m.registry.For(cred.Provider)
	if !ok {
		logger.Warn().Msg("Provider type is not implemented, skipping")
		metrics.SyncErrors.WithLabelValues(string(cred.Provider), "unknown_provider").Inc()
		return
	}

	snapshot, err := provider.FetchAccount(ctx, cred)
	if err != nil {
		errType := "provider"
		if library.IsTimeout(err) {
			errType = "timeout"
		}
		logger.Error().Err(err).Str("error_type", errType).Msg("Library sync failed for credential")
		metrics.SyncErrors.WithLabelValues(string(cred.Provider), errType).Inc()
		return
	}

	// Balance resets to zero each cycle, then takes the provider's value
	// if it reported one.
	balance := 0
	if snapshot.Balance != nil {
		balance = *snapshot.Balance
	}
	if err := m.store.UpdateCredentialBalance(ctx, cred.ID, balance); err != nil {
		logger.Error().Err(err).Msg("Failed to update credential balance")
		metrics.SyncErrors.WithLabelValues(string(cred.Provider), "database").Inc()
		return
	}

	inserted := 0
	for i := range snapshot.Loans {
		loan := &snapshot.Loans[i]
		book := &models.LibraryBook{
			CredentialID: cred.ID,
			Title:        loan.DisplayTitle(),
			Due:          loan.Due,
			Renewable:    loan.Renewable,
			ItemID:       loan.ItemID,
			Medium:       loan.Medium,
		}
		if err := m.store.InsertBook(ctx, book); err != nil {
			logger.Error().Err(err).Str("title", loan.Title).Msg("Failed to insert book")
			metrics.SyncErrors.WithLabelValues(string(cred.Provider), "database").Inc()
			continue
		}
		inserted++
	}

	metrics.SyncBooksTotal.WithLabelValues(string(cred.Provider)).Add(float64(inserted))
	logger.Info().Int("books", inserted).Msg("Credential synced")
}

// RenewItem renews one cached checkout and updates its cached due date.
// The credential is located through the cached row's item id.
func (m *Manager) RenewItem(ctx context.Context, itemID string) error {
	cred, err := m.store.GetCredentialByItemID(ctx, itemID)
	if err != nil {
		return fmt.Errorf("locate credential for item %s: %w", itemID, err)
	}

	if cred.Provider != models.ProviderBiblionix || m.renewer == nil {
		return fmt.Errorf("%w: %s", ErrRenewalUnsupported, cred.Provider)
	}

	m.logger.Info().Str("item_id", itemID).Str("credential", cred.DisplayName).Msg("Attempting to renew item")

	newDue, err := m.renewer.Renew(ctx, cred, itemID)
	if err != nil {
		return fmt.Errorf("renew item %s: %w", itemID, err)
	}

	if err := m.store.UpdateBookDue(ctx, itemID, newDue); err != nil {
		return fmt.Errorf("update due date for item %s: %w", itemID, err)
	}

	m.logger.Info().Str("item_id", itemID).Time("due", newDue).Msg("Item renewed")
	return nil
}
