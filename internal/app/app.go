// Package app wires configuration, storage, IMAP collaborators, and the
// syncback runner into one unit the CLI drives.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/nhle/mail-syncback/internal/credential"
	"github.com/nhle/mail-syncback/internal/logging"
	"github.com/nhle/mail-syncback/internal/mailbox"
	"github.com/nhle/mail-syncback/internal/mime"
	"github.com/nhle/mail-syncback/internal/model"
	"github.com/nhle/mail-syncback/internal/store"
	"github.com/nhle/mail-syncback/internal/syncback"
)

// Option customizes App construction.
type Option func(*options)

type options struct {
	dialer    mailbox.Dialer
	passwords mailbox.PasswordFunc
}

// WithDialer replaces the IMAP dialer.
func WithDialer(d mailbox.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithPasswords replaces the keyring password lookup.
func WithPasswords(f mailbox.PasswordFunc) Option {
	return func(o *options) { o.passwords = f }
}

// App holds the wired application.
type App struct {
	cfg        *model.AppConfig
	store      *store.SQLiteStore
	log        zerolog.Logger
	mailbox    *mailbox.Service
	reconciler *syncback.SentFolderReconciler
	dispatcher *syncback.Dispatcher
	runner     *syncback.Runner
}

// New opens the store, registers the configured accounts, and wires the
// syncback handlers.
func New(ctx context.Context, cfg *model.AppConfig, log zerolog.Logger, opts ...Option) (*App, error) {
	o := options{passwords: credential.IMAPPassword}
	for _, opt := range opts {
		opt(&o)
	}
	if o.dialer == nil {
		o.dialer = mailbox.NewIMAPDialer(o.passwords, log.With().Str("component", "imap").Logger())
	}

	if cfg.Database.Path != ":memory:" {
		dir := filepath.Dir(cfg.Database.Path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	if err := registerAccounts(ctx, s, cfg.Accounts, log); err != nil {
		_ = s.Close()
		return nil, err
	}

	svc := mailbox.NewService(o.dialer, s, log.With().Str("component", "mailbox").Logger())
	reconciler := syncback.NewSentFolderReconciler(
		s, svc, mime.NewBuilder(), svc,
		log.With().Str("component", "reconciler").Logger(),
	)

	dispatcher := syncback.NewDispatcher()
	dispatcher.Register(syncback.KindEnsureMessageInSentFolder, reconciler)

	return &App{
		cfg:        cfg,
		store:      s,
		log:        log,
		mailbox:    svc,
		reconciler: reconciler,
		dispatcher: dispatcher,
		runner:     syncback.NewRunner(s, dispatcher, cfg.Worker, log),
	}, nil
}

// registerAccounts mirrors configured accounts into the store so requests
// can resolve them.
func registerAccounts(
	ctx context.Context,
	s store.Store,
	accounts []model.Account,
	log zerolog.Logger,
) error {
	for _, acct := range accounts {
		if err := s.UpsertAccount(ctx, acct); err != nil {
			return fmt.Errorf("registering account %s: %w", acct.ID, err)
		}
		acctLog := logging.ForAccount(log, &acct)
		acctLog.Debug().Msg("account registered")
	}
	return nil
}

// Store returns the underlying store.
func (a *App) Store() store.Store { return a.store }

// Runner returns the request runner.
func (a *App) Runner() *syncback.Runner { return a.runner }

// Close releases the store.
func (a *App) Close() error {
	return a.store.Close()
}

// Enqueue queues an EnsureMessageInSentFolder request and returns its ID.
func (a *App) Enqueue(ctx context.Context, accountID string, props syncback.EnsureInSentProps) (string, error) {
	if accountID == "" || props.MessageID == "" {
		return "", &syncback.ConfigurationError{Message: "account and message id are required"}
	}

	raw, err := json.Marshal(props)
	if err != nil {
		return "", fmt.Errorf("encoding request props: %w", err)
	}

	id, err := a.store.EnqueueRequest(ctx, model.SyncbackRequest{
		AccountID: accountID,
		Kind:      string(syncback.KindEnsureMessageInSentFolder),
		Props:     raw,
	})
	if err != nil {
		return "", err
	}

	a.log.Info().
		Str("request_id", id).
		Str("account_id", accountID).
		Str("message_id", props.MessageID).
		Msg("syncback request queued")
	return id, nil
}

// Reconcile runs sent-folder reconciliation for one message immediately.
func (a *App) Reconcile(
	ctx context.Context,
	accountID string,
	props syncback.EnsureInSentProps,
) (*model.Message, error) {
	acct, err := a.store.GetAccount(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		acct = nil
	} else if err != nil {
		return nil, err
	}
	return a.reconciler.Reconcile(ctx, acct, props)
}

// SyncFolders refreshes the stored mailbox list and roles for an account.
func (a *App) SyncFolders(ctx context.Context, accountID string) ([]model.Folder, error) {
	acct, err := a.store.GetAccount(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &syncback.ConfigurationError{
			Message: fmt.Sprintf("account %s not available", accountID),
		}
	}
	if err != nil {
		return nil, err
	}
	return a.mailbox.SyncFolders(ctx, acct, a.store)
}

// ImportMessage stores a canonical message for an account. Folders and
// labels are matched by path and name and created when missing.
func (a *App) ImportMessage(ctx context.Context, accountID string, msg model.Message) (string, error) {
	if _, err := a.store.GetAccount(ctx, accountID); errors.Is(err, store.ErrNotFound) {
		return "", &syncback.ConfigurationError{
			Message: fmt.Sprintf("account %s not available", accountID),
		}
	} else if err != nil {
		return "", err
	}

	msg.AccountID = accountID

	for i := range msg.Folders {
		f := &msg.Folders[i]
		f.AccountID = accountID
		id, err := a.store.UpsertFolder(ctx, *f)
		if err != nil {
			return "", err
		}
		f.ID = id
	}
	for i := range msg.Labels {
		l := &msg.Labels[i]
		l.AccountID = accountID
		id, err := a.store.UpsertLabel(ctx, *l)
		if err != nil {
			return "", err
		}
		l.ID = id
	}

	id, err := a.store.SaveMessage(ctx, msg)
	if err != nil {
		return "", err
	}

	a.log.Info().
		Str("account_id", accountID).
		Str("message_id", id).
		Str("header_message_id", msg.HeaderMessageID).
		Msg("message imported")
	return id, nil
}

// Request returns a queued syncback request.
func (a *App) Request(ctx context.Context, id string) (*model.SyncbackRequest, error) {
	return a.store.GetRequest(ctx, id)
}
