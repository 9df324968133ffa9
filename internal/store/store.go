package store

import (
	"context"
	"errors"

	"github.com/nhle/mail-syncback/internal/model"
)

// ErrNotFound is returned (wrapped) when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface for accounts, mailboxes,
// canonical messages, and the syncback request queue.
type Store interface {
	// === Accounts ===

	UpsertAccount(ctx context.Context, acct model.Account) error
	GetAccount(ctx context.Context, id string) (*model.Account, error)

	// === Folders and labels ===

	UpsertFolder(ctx context.Context, folder model.Folder) (string, error)
	UpsertLabel(ctx context.Context, label model.Label) (string, error)
	FindFolderByRole(ctx context.Context, accountID, role string) (*model.Folder, error)

	// === Messages ===

	SaveMessage(ctx context.Context, msg model.Message) (string, error)
	FindMessage(ctx context.Context, accountID, id string) (*model.Message, error)

	// === Syncback requests ===

	EnqueueRequest(ctx context.Context, req model.SyncbackRequest) (string, error)
	GetRequest(ctx context.Context, id string) (*model.SyncbackRequest, error)
	PendingRequests(ctx context.Context, limit int) ([]model.SyncbackRequest, error)
	MarkRequest(ctx context.Context, id, status, errMsg string) error
}
