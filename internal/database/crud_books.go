// Hearth - Household Management and Library Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hearth

package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/hearth/internal/models"
)

// Book errors
var (
	ErrBookNotFound = errors.New("library book not found")
)

// TruncateBooks empties the book cache. Called at the start of every sync
// cycle; readers between the truncate and the reinserts may observe a
// partially empty cache, which is accepted.
func (db *DB) TruncateBooks(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM library_books`); err != nil {
		return fmt.Errorf("failed to truncate book cache: %w", err)
	}
	return nil
}

// InsertBook inserts one cached loan row. A missing ID is generated; rows
// are ephemeral so IDs are never referenced across sync cycles.
func (db *DB) InsertBook(ctx context.Context, book *models.LibraryBook) error {
	if book.ID == "" {
		book.ID = uuid.New().String()
	}

	query := `INSERT INTO library_books (
		id, credential_id, title, due, renewable, item_id, medium
	) VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := db.conn.ExecContext(ctx, query,
		book.ID, book.CredentialID, book.Title, book.Due,
		book.Renewable, book.ItemID, book.Medium,
	)
	if err != nil {
		return fmt.Errorf("failed to insert book: %w", err)
	}

	return nil
}

// ListBooks returns all cached books joined with their credential's display
// name, ordered by due date.
func (db *DB) ListBooks(ctx context.Context) ([]models.LibraryBook, error) {
	query := `SELECT b.id, b.credential_id, b.title, b.due, b.renewable, b.item_id, b.medium, c.display_name
	FROM library_books b
	JOIN library_credentials c ON c.id = b.credential_id
	ORDER BY b.due, b.title`

	return db.queryBooks(ctx, query)
}

// ListDueBooks returns cached books whose due date is on or before the given
// day. The comparison is by calendar date.
func (db *DB) ListDueBooks(ctx context.Context, asOf time.Time) ([]models.LibraryBook, error) {
	query := `SELECT b.id, b.credential_id, b.title, b.due, b.renewable, b.item_id, b.medium, c.display_name
	FROM library_books b
	JOIN library_credentials c ON c.id = b.credential_id
	WHERE b.due <= ?
	ORDER BY b.due, b.title`

	day := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	return db.queryBooks(ctx, query, day)
}

// CountBooksForCredential reports how many cached rows one credential owns.
func (db *DB) CountBooksForCredential(ctx context.Context, credentialID string) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM library_books WHERE credential_id = ?`, credentialID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count books: %w", err)
	}
	return count, nil
}

// UpdateBookDue sets a new due date for a cached row after a successful
// renewal, keyed by the provider item id.
func (db *DB) UpdateBookDue(ctx context.Context, itemID string, due time.Time) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE library_books SET due = ? WHERE item_id = ?`, due, itemID)
	if err != nil {
		return fmt.Errorf("failed to update due date: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check due date update: %w", err)
	}
	if affected == 0 {
		return ErrBookNotFound
	}

	return nil
}

// queryBooks runs a book query and scans the joined rows.
func (db *DB) queryBooks(ctx context.Context, query string, args ...any) ([]models.LibraryBook, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query books: %w", err)
	}
	defer func() { _ = rows.Close() }() //nolint:errcheck // Best effort cleanup

	var books []models.LibraryBook
	for rows.Next() {
		var b models.LibraryBook
		if err := rows.Scan(&b.ID, &b.CredentialID, &b.Title, &b.Due,
			&b.Renewable, &b.ItemID, &b.Medium, &b.DisplayName); err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("book iteration failed: %w", err)
	}

	return books, nil
}
