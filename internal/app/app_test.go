package app

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mail-syncback/internal/mailbox"
	"github.com/nhle/mail-syncback/internal/model"
	"github.com/nhle/mail-syncback/internal/syncback"
)

// memorySession is an in-memory IMAP session holding one mailbox's
// appended messages.
type memorySession struct {
	selected string
	appended map[string][][]byte
}

func (s *memorySession) List() ([]*imap.ListData, error) {
	return []*imap.ListData{
		{Mailbox: "INBOX"},
		{Mailbox: "Sent", Attrs: []imap.MailboxAttr{imap.MailboxAttrSent}},
	}, nil
}

func (s *memorySession) Select(mailbox string) error {
	s.selected = mailbox
	return nil
}

func (s *memorySession) Search(criteria *imap.SearchCriteria) ([]imap.UID, error) {
	var uids []imap.UID
	for i, raw := range s.appended[s.selected] {
		if matches(raw, criteria) {
			uids = append(uids, imap.UID(i+1))
		}
	}
	return uids, nil
}

func matches(raw []byte, criteria *imap.SearchCriteria) bool {
	for _, h := range criteria.Header {
		field := strings.ToLower(h.Key + ": " + h.Value)
		if !strings.Contains(strings.ToLower(string(raw)), field) {
			return false
		}
	}
	return true
}

func (s *memorySession) Move([]imap.UID, string) error { return nil }

func (s *memorySession) Expunge([]imap.UID) error { return nil }

func (s *memorySession) Append(mailbox string, raw []byte, _ []imap.Flag, _ time.Time) error {
	s.appended[mailbox] = append(s.appended[mailbox], raw)
	return nil
}

func (s *memorySession) Logout() error { return nil }

type memoryDialer struct {
	sess *memorySession
}

func (d *memoryDialer) Dial(context.Context, *model.Account) (mailbox.Session, error) {
	return d.sess, nil
}

func newTestApp(t *testing.T) (*App, *memorySession) {
	t.Helper()

	cfg := &model.AppConfig{
		Database: model.DatabaseConfig{Path: filepath.Join(t.TempDir(), "db", "syncback.db")},
		Worker:   model.WorkerConfig{PollIntervalSec: 60, BatchSize: 10, MaxAttempts: 3},
		Accounts: []model.Account{{
			ID:       "work",
			Email:    "me@example.com",
			Provider: model.ProviderIMAP,
			IMAPHost: "imap.example.com",
			IMAPPort: "993",
			IMAPTLS:  true,
		}, {
			ID:       "home",
			Email:    "me@home.example",
			Provider: model.ProviderIMAP,
			IMAPHost: "imap.home.example",
			IMAPPort: "993",
			IMAPTLS:  true,
		}},
	}

	sess := &memorySession{appended: map[string][][]byte{}}
	a, err := New(context.Background(), cfg, zerolog.Nop(), WithDialer(&memoryDialer{sess: sess}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	return a, sess
}

func saveMessage(t *testing.T, a *App) string {
	t.Helper()

	id, err := a.Store().SaveMessage(context.Background(), model.Message{
		AccountID:       "work",
		HeaderMessageID: "<abc@x>",
		Subject:         "Quarterly report",
		From:            []model.Address{{Email: "me@example.com"}},
		To:              []model.Address{{Email: "boss@example.com"}},
		Date:            time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Body:            "See attached.",
	})
	require.NoError(t, err)
	return id
}

func TestNew_RegistersAccounts(t *testing.T) {
	a, _ := newTestApp(t)

	acct, err := a.Store().GetAccount(context.Background(), "work")
	require.NoError(t, err)
	assert.Equal(t, model.ProviderIMAP, acct.Provider)
	assert.Equal(t, "imap.example.com", acct.IMAPHost)
}

func TestReconcile_AppendsOnce(t *testing.T) {
	a, sess := newTestApp(t)
	id := saveMessage(t, a)

	props := syncback.EnsureInSentProps{MessageID: id}

	msg, err := a.Reconcile(context.Background(), "work", props)
	require.NoError(t, err)
	assert.Equal(t, id, msg.ID)
	require.Len(t, sess.appended["Sent"], 1)
	assert.Contains(t, string(sess.appended["Sent"][0]), "Quarterly report")

	// A retry finds the canonical copy and leaves the mailbox alone.
	_, err = a.Reconcile(context.Background(), "work", props)
	require.NoError(t, err)
	assert.Len(t, sess.appended["Sent"], 1)
}

func TestReconcile_UnknownAccount(t *testing.T) {
	a, sess := newTestApp(t)
	id := saveMessage(t, a)

	_, err := a.Reconcile(context.Background(), "nobody", syncback.EnsureInSentProps{MessageID: id})
	assert.True(t, syncback.IsConfigurationError(err))
	assert.Empty(t, sess.appended)
}

func TestReconcile_MessageOfAnotherAccount(t *testing.T) {
	a, sess := newTestApp(t)
	id := saveMessage(t, a)

	_, err := a.Reconcile(context.Background(), "home", syncback.EnsureInSentProps{MessageID: id})
	assert.True(t, syncback.IsNotFound(err))
	assert.Empty(t, sess.appended)
}

func TestEnqueueAndRun(t *testing.T) {
	a, sess := newTestApp(t)
	id := saveMessage(t, a)

	reqID, err := a.Enqueue(context.Background(), "work", syncback.EnsureInSentProps{MessageID: id})
	require.NoError(t, err)

	n, err := a.Runner().RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	req, err := a.Store().GetRequest(context.Background(), reqID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusSucceeded, req.Status)
	assert.Len(t, sess.appended["Sent"], 1)
}

func TestEnqueue_RequiresIDs(t *testing.T) {
	a, _ := newTestApp(t)

	_, err := a.Enqueue(context.Background(), "work", syncback.EnsureInSentProps{})
	assert.True(t, syncback.IsConfigurationError(err))
}

func TestSyncFolders(t *testing.T) {
	a, _ := newTestApp(t)

	folders, err := a.SyncFolders(context.Background(), "work")
	require.NoError(t, err)
	require.Len(t, folders, 2)

	sent, err := a.Store().FindFolderByRole(context.Background(), "work", model.RoleSent)
	require.NoError(t, err)
	assert.Equal(t, "Sent", sent.Path)

	_, err = a.SyncFolders(context.Background(), "nobody")
	assert.True(t, syncback.IsConfigurationError(err))
}

func TestImportMessage(t *testing.T) {
	a, sess := newTestApp(t)
	ctx := context.Background()

	id, err := a.ImportMessage(ctx, "work", model.Message{
		AccountID:       "someone-else",
		HeaderMessageID: "<imported@x>",
		Subject:         "Imported",
		To:              []model.Address{{Email: "boss@example.com"}},
		Body:            "body",
		Folders:         []model.Folder{{Path: "Sent", Role: model.RoleSent}},
		Labels:          []model.Label{{Name: "Important"}},
	})
	require.NoError(t, err)

	msg, err := a.Store().FindMessage(ctx, "work", id)
	require.NoError(t, err)
	assert.Equal(t, "work", msg.AccountID)
	require.Len(t, msg.Folders, 1)
	assert.Equal(t, "Sent", msg.Folders[0].Path)
	require.Len(t, msg.Labels, 1)
	assert.Equal(t, "Important", msg.Labels[0].Name)

	// The imported Sent folder resolves without a LIST round trip.
	_, err = a.Reconcile(ctx, "work", syncback.EnsureInSentProps{MessageID: id})
	require.NoError(t, err)
	assert.Len(t, sess.appended["Sent"], 1)

	_, err = a.ImportMessage(ctx, "nobody", model.Message{HeaderMessageID: "<x@y>"})
	assert.True(t, syncback.IsConfigurationError(err))
}

func TestRequest(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()

	id, err := a.Enqueue(ctx, "work", syncback.EnsureInSentProps{MessageID: "m-1"})
	require.NoError(t, err)

	req, err := a.Request(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusNew, req.Status)
	assert.Equal(t, string(syncback.KindEnsureMessageInSentFolder), req.Kind)
}
