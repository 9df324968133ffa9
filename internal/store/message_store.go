package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/mail-syncback/internal/model"
)

// messageRow mirrors the messages table. Address lists and references are
// stored as JSON text.
type messageRow struct {
	ID              string    `db:"id"`
	AccountID       string    `db:"account_id"`
	HeaderMessageID string    `db:"header_message_id"`
	Subject         string    `db:"subject"`
	From            string    `db:"from_addrs"`
	To              string    `db:"to_addrs"`
	Cc              string    `db:"cc_addrs"`
	Bcc             string    `db:"bcc_addrs"`
	ReplyTo         string    `db:"reply_to_addrs"`
	Date            time.Time `db:"date"`
	Body            string    `db:"body"`
	HTMLBody        string    `db:"html_body"`
	InReplyTo       string    `db:"in_reply_to"`
	Refs            string    `db:"refs"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// UpsertFolder inserts a folder or updates the role of an existing one
// with the same account and path. An empty role keeps the stored one. It
// returns the folder's ID.
func (s *SQLiteStore) UpsertFolder(ctx context.Context, folder model.Folder) (string, error) {
	if strings.TrimSpace(folder.Path) == "" {
		return "", fmt.Errorf("folder path must not be empty")
	}
	if folder.ID == "" {
		folder.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO folders (id, account_id, path, role) VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id, path) DO UPDATE
		SET role = CASE WHEN excluded.role = '' THEN folders.role ELSE excluded.role END`,
		folder.ID, folder.AccountID, folder.Path, folder.Role,
	)
	if err != nil {
		return "", fmt.Errorf("upserting folder %q: %w", folder.Path, err)
	}

	var id string
	err = s.db.GetContext(ctx, &id,
		"SELECT id FROM folders WHERE account_id = ? AND path = ?",
		folder.AccountID, folder.Path,
	)
	if err != nil {
		return "", fmt.Errorf("reading folder id for %q: %w", folder.Path, err)
	}
	return id, nil
}

// UpsertLabel inserts a label or updates the role of an existing one with
// the same account and name. An empty role keeps the stored one. It
// returns the label's ID.
func (s *SQLiteStore) UpsertLabel(ctx context.Context, label model.Label) (string, error) {
	if strings.TrimSpace(label.Name) == "" {
		return "", fmt.Errorf("label name must not be empty")
	}
	if label.ID == "" {
		label.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO labels (id, account_id, name, role) VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id, name) DO UPDATE
		SET role = CASE WHEN excluded.role = '' THEN labels.role ELSE excluded.role END`,
		label.ID, label.AccountID, label.Name, label.Role,
	)
	if err != nil {
		return "", fmt.Errorf("upserting label %q: %w", label.Name, err)
	}

	var id string
	err = s.db.GetContext(ctx, &id,
		"SELECT id FROM labels WHERE account_id = ? AND name = ?",
		label.AccountID, label.Name,
	)
	if err != nil {
		return "", fmt.Errorf("reading label id for %q: %w", label.Name, err)
	}
	return id, nil
}

// FindFolderByRole returns the account's folder with the given role.
func (s *SQLiteStore) FindFolderByRole(
	ctx context.Context,
	accountID, role string,
) (*model.Folder, error) {
	var folder model.Folder
	err := s.db.GetContext(ctx, &folder, `
		SELECT id, account_id, path, role FROM folders
		WHERE account_id = ? AND role = ?
		ORDER BY path LIMIT 1`, accountID, role,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s folder for account %s: %w", role, accountID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("finding %s folder for account %s: %w", role, accountID, err)
	}
	return &folder, nil
}

// SaveMessage inserts or replaces a canonical message together with its
// folder and label associations. It returns the message ID, generating
// one when msg.ID is empty.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg model.Message) (string, error) {
	if strings.TrimSpace(msg.HeaderMessageID) == "" {
		return "", fmt.Errorf("message header id must not be empty")
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	msg.UpdatedAt = now
	if msg.Date.IsZero() {
		msg.Date = now
	}

	row, err := toMessageRow(msg)
	if err != nil {
		return "", err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT OR REPLACE INTO messages (
			id, account_id, header_message_id, subject,
			from_addrs, to_addrs, cc_addrs, bcc_addrs, reply_to_addrs,
			date, body, html_body, in_reply_to, refs,
			created_at, updated_at
		) VALUES (
			:id, :account_id, :header_message_id, :subject,
			:from_addrs, :to_addrs, :cc_addrs, :bcc_addrs, :reply_to_addrs,
			:date, :body, :html_body, :in_reply_to, :refs,
			:created_at, :updated_at
		)`, row)
	if err != nil {
		return "", fmt.Errorf("saving message %s: %w", msg.ID, err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM message_folders WHERE message_id = ?", msg.ID,
	); err != nil {
		return "", fmt.Errorf("clearing folders for message %s: %w", msg.ID, err)
	}
	for _, f := range msg.Folders {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO message_folders (message_id, folder_id) VALUES (?, ?)",
			msg.ID, f.ID,
		); err != nil {
			return "", fmt.Errorf("linking message %s to folder %s: %w", msg.ID, f.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM message_labels WHERE message_id = ?", msg.ID,
	); err != nil {
		return "", fmt.Errorf("clearing labels for message %s: %w", msg.ID, err)
	}
	for _, l := range msg.Labels {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO message_labels (message_id, label_id) VALUES (?, ?)",
			msg.ID, l.ID,
		); err != nil {
			return "", fmt.Errorf("linking message %s to label %s: %w", msg.ID, l.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing message %s: %w", msg.ID, err)
	}
	return msg.ID, nil
}

// FindMessage retrieves an account's canonical message by ID with its
// folder and label associations loaded. A missing message, or one owned by
// another account, yields an error wrapping ErrNotFound.
func (s *SQLiteStore) FindMessage(
	ctx context.Context,
	accountID, id string,
) (*model.Message, error) {
	var row messageRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, account_id, header_message_id, subject,
			from_addrs, to_addrs, cc_addrs, bcc_addrs, reply_to_addrs,
			date, body, html_body, in_reply_to, refs,
			created_at, updated_at
		FROM messages WHERE id = ? AND account_id = ?`, id, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %s in account %s: %w", id, accountID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting message %s: %w", id, err)
	}

	msg, err := row.toModel()
	if err != nil {
		return nil, err
	}

	msg.Folders = []model.Folder{}
	err = s.db.SelectContext(ctx, &msg.Folders, `
		SELECT f.id, f.account_id, f.path, f.role
		FROM folders f
		JOIN message_folders mf ON mf.folder_id = f.id
		WHERE mf.message_id = ?
		ORDER BY f.path`, id)
	if err != nil {
		return nil, fmt.Errorf("loading folders for message %s: %w", id, err)
	}

	msg.Labels = []model.Label{}
	err = s.db.SelectContext(ctx, &msg.Labels, `
		SELECT l.id, l.account_id, l.name, l.role
		FROM labels l
		JOIN message_labels ml ON ml.label_id = l.id
		WHERE ml.message_id = ?
		ORDER BY l.name`, id)
	if err != nil {
		return nil, fmt.Errorf("loading labels for message %s: %w", id, err)
	}

	return msg, nil
}

// toMessageRow flattens a model.Message for storage.
func toMessageRow(msg model.Message) (messageRow, error) {
	row := messageRow{
		ID:              msg.ID,
		AccountID:       msg.AccountID,
		HeaderMessageID: msg.HeaderMessageID,
		Subject:         msg.Subject,
		Date:            msg.Date.UTC(),
		Body:            msg.Body,
		HTMLBody:        msg.HTMLBody,
		InReplyTo:       msg.InReplyTo,
		CreatedAt:       msg.CreatedAt.UTC(),
		UpdatedAt:       msg.UpdatedAt.UTC(),
	}

	fields := []struct {
		dst  *string
		src  any
		name string
	}{
		{&row.From, msg.From, "from"},
		{&row.To, msg.To, "to"},
		{&row.Cc, msg.Cc, "cc"},
		{&row.Bcc, msg.Bcc, "bcc"},
		{&row.ReplyTo, msg.ReplyTo, "reply_to"},
		{&row.Refs, msg.References, "references"},
	}
	for _, f := range fields {
		b, err := json.Marshal(f.src)
		if err != nil {
			return messageRow{}, fmt.Errorf("marshaling %s for message %s: %w", f.name, msg.ID, err)
		}
		*f.dst = string(b)
	}

	return row, nil
}

// toModel expands a stored row into a model.Message without associations.
func (r messageRow) toModel() (*model.Message, error) {
	msg := &model.Message{
		ID:              r.ID,
		AccountID:       r.AccountID,
		HeaderMessageID: r.HeaderMessageID,
		Subject:         r.Subject,
		Date:            r.Date,
		Body:            r.Body,
		HTMLBody:        r.HTMLBody,
		InReplyTo:       r.InReplyTo,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}

	fields := []struct {
		src  string
		dst  any
		name string
	}{
		{r.From, &msg.From, "from"},
		{r.To, &msg.To, "to"},
		{r.Cc, &msg.Cc, "cc"},
		{r.Bcc, &msg.Bcc, "bcc"},
		{r.ReplyTo, &msg.ReplyTo, "reply_to"},
		{r.Refs, &msg.References, "references"},
	}
	for _, f := range fields {
		if f.src == "" || f.src == "null" {
			continue
		}
		if err := json.Unmarshal([]byte(f.src), f.dst); err != nil {
			return nil, fmt.Errorf("unmarshaling %s for message %s: %w", f.name, r.ID, err)
		}
	}

	return msg, nil
}
