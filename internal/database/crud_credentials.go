// Hearth - Household Management and Library Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hearth

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/hearth/internal/models"
)

// Credential errors
var (
	ErrCredentialNotFound = errors.New("library credential not found")
)

// CreateCredential inserts a new library credential. A missing ID or
// CreatedAt is filled in before the insert.
func (db *DB) CreateCredential(ctx context.Context, cred *models.LibraryCredential) error {
	if cred.ID == "" {
		cred.ID = uuid.New().String()
	}
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now()
	}

	query := `INSERT INTO library_credentials (
		id, library, username, password, display_name, provider, balance, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.conn.ExecContext(ctx, query,
		cred.ID, cred.Library, cred.Username, cred.Password,
		cred.DisplayName, string(cred.Provider), cred.Balance, cred.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create credential: %w", err)
	}

	return nil
}

// GetCredential retrieves a credential by ID.
func (db *DB) GetCredential(ctx context.Context, id string) (*models.LibraryCredential, error) {
	query := `SELECT id, library, username, password, display_name, provider, balance, created_at
	FROM library_credentials WHERE id = ?`

	row := db.conn.QueryRowContext(ctx, query, id)
	return scanCredential(row)
}

// GetCredentialByItemID finds the credential owning a cached book row.
// Used by the renewal path, which is keyed by provider item id.
func (db *DB) GetCredentialByItemID(ctx context.Context, itemID string) (*models.LibraryCredential, error) {
	query := `SELECT c.id, c.library, c.username, c.password, c.display_name, c.provider, c.balance, c.created_at
	FROM library_credentials c
	JOIN library_books b ON b.credential_id = c.id
	WHERE b.item_id = ?`

	row := db.conn.QueryRowContext(ctx, query, itemID)
	return scanCredential(row)
}

// ListCredentials returns all credentials in insertion order.
func (db *DB) ListCredentials(ctx context.Context) ([]models.LibraryCredential, error) {
	query := `SELECT id, library, username, password, display_name, provider, balance, created_at
	FROM library_credentials ORDER BY created_at, id`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer func() { _ = rows.Close() }() //nolint:errcheck // Best effort cleanup

	var creds []models.LibraryCredential
	for rows.Next() {
		var c models.LibraryCredential
		var provider string
		if err := rows.Scan(&c.ID, &c.Library, &c.Username, &c.Password,
			&c.DisplayName, &provider, &c.Balance, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		c.Provider = models.ProviderType(provider)
		creds = append(creds, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("credential iteration failed: %w", err)
	}

	return creds, nil
}

// UpdateCredentialBalance sets the cached fee balance for a credential.
func (db *DB) UpdateCredentialBalance(ctx context.Context, id string, balance int) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE library_credentials SET balance = ? WHERE id = ?`, balance, id)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check balance update: %w", err)
	}
	if affected == 0 {
		return ErrCredentialNotFound
	}

	return nil
}

// DeleteCredential removes a credential and its cached books.
// DuckDB has no ON DELETE CASCADE, so the cascade is applied here.
func (db *DB) DeleteCredential(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM library_books WHERE credential_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete credential books: %w", err)
	}

	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM library_credentials WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check credential delete: %w", err)
	}
	if affected == 0 {
		return ErrCredentialNotFound
	}

	return nil
}

// scanCredential scans a single credential row.
func scanCredential(row *sql.Row) (*models.LibraryCredential, error) {
	var c models.LibraryCredential
	var provider string
	err := row.Scan(&c.ID, &c.Library, &c.Username, &c.Password,
		&c.DisplayName, &provider, &c.Balance, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan credential: %w", err)
	}
	c.Provider = models.ProviderType(provider)
	return &c, nil
}
