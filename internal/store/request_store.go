package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/mail-syncback/internal/model"
)

// requestColumns lists syncback_requests columns in scan order.
const requestColumns = `id, account_id, kind, props, status, error, attempts, created_at, updated_at`

// EnqueueRequest inserts a new syncback request with status "new".
// Generates a UUID if ID is empty.
func (s *SQLiteStore) EnqueueRequest(
	ctx context.Context,
	req model.SyncbackRequest,
) (string, error) {
	if req.Kind == "" {
		return "", fmt.Errorf("syncback request kind must not be empty")
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	props := string(req.Props)
	if props == "" {
		props = "{}"
	}
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO syncback_requests (
			id, account_id, kind, props, status, error, attempts, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, '', 0, ?, ?)`,
		req.ID, req.AccountID, req.Kind, props, model.RequestStatusNew, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("enqueueing %s request: %w", req.Kind, err)
	}
	return req.ID, nil
}

// GetRequest retrieves a single syncback request by ID.
func (s *SQLiteStore) GetRequest(
	ctx context.Context,
	id string,
) (*model.SyncbackRequest, error) {
	row := s.db.QueryRowxContext(ctx,
		"SELECT "+requestColumns+" FROM syncback_requests WHERE id = ?", id,
	)

	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("syncback request %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting syncback request %s: %w", id, err)
	}
	return &req, nil
}

// PendingRequests returns up to limit requests with status "new", oldest
// first.
func (s *SQLiteStore) PendingRequests(
	ctx context.Context,
	limit int,
) ([]model.SyncbackRequest, error) {
	if limit < 1 {
		limit = 20
	}

	rows, err := s.db.QueryxContext(ctx,
		"SELECT "+requestColumns+` FROM syncback_requests
		WHERE status = ?
		ORDER BY created_at, id
		LIMIT ?`, model.RequestStatusNew, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying pending syncback requests: %w", err)
	}
	defer rows.Close()

	var reqs []model.SyncbackRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning syncback request row: %w", err)
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

// MarkRequest records the outcome of one attempt at a request. The
// attempt counter is incremented on every call.
func (s *SQLiteStore) MarkRequest(ctx context.Context, id, status, errMsg string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE syncback_requests
		SET status = ?, error = ?, attempts = attempts + 1, updated_at = ?
		WHERE id = ?`,
		status, errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("marking syncback request %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("syncback request %s: %w", id, ErrNotFound)
	}
	return nil
}

// rowScanner is satisfied by both *sqlx.Row and *sqlx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRequest scans a syncback request in requestColumns order.
func scanRequest(r rowScanner) (model.SyncbackRequest, error) {
	var (
		req   model.SyncbackRequest
		props string
	)

	err := r.Scan(
		&req.ID, &req.AccountID, &req.Kind, &props,
		&req.Status, &req.Error, &req.Attempts,
		&req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return model.SyncbackRequest{}, err
	}

	req.Props = []byte(props)
	return req, nil
}
