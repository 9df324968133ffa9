package mailbox

import (
	"context"
	"fmt"
	"strings"

	"github.com/emersion/go-imap/v2"

	"github.com/nhle/mail-syncback/internal/model"
)

// FolderSaver persists discovered mailboxes.
type FolderSaver interface {
	UpsertFolder(ctx context.Context, folder model.Folder) (string, error)
}

// SyncFolders lists the account's mailboxes, assigns roles, and saves
// every selectable one. Later role lookups then skip the LIST round trip.
func (s *Service) SyncFolders(
	ctx context.Context,
	acct *model.Account,
	saver FolderSaver,
) ([]model.Folder, error) {
	sess, err := s.dialer.Dial(ctx, acct)
	if err != nil {
		return nil, err
	}
	defer func() { _ = sess.Logout() }()

	mailboxes, err := sess.List()
	if err != nil {
		return nil, err
	}

	roles := assignRoles(mailboxes)

	folders := make([]model.Folder, 0, len(mailboxes))
	for _, mb := range mailboxes {
		if mb == nil ||
			hasAttr(mb.Attrs, imap.MailboxAttrNoSelect) ||
			hasAttr(mb.Attrs, imap.MailboxAttrNonExistent) {
			continue
		}

		folder := model.Folder{
			AccountID: acct.ID,
			Path:      mb.Mailbox,
			Role:      roles[mb.Mailbox],
		}
		id, err := saver.UpsertFolder(ctx, folder)
		if err != nil {
			return nil, fmt.Errorf("saving folder %s: %w", mb.Mailbox, err)
		}
		folder.ID = id
		folders = append(folders, folder)
	}

	s.log.Info().
		Str("account_id", acct.ID).
		Int("folders", len(folders)).
		Msg("folders synced")
	return folders, nil
}

// assignRoles maps mailbox names to roles, one mailbox per role.
func assignRoles(mailboxes []*imap.ListData) map[string]string {
	roles := make(map[string]string)
	for _, mb := range mailboxes {
		if mb != nil && strings.EqualFold(mb.Mailbox, "INBOX") {
			roles[mb.Mailbox] = model.RoleInbox
		}
	}
	for _, role := range []string{
		model.RoleSent, model.RoleTrash, model.RoleAll, model.RoleDrafts, model.RoleSpam,
	} {
		if name, ok := pickMailbox(mailboxes, role); ok {
			if _, taken := roles[name]; !taken {
				roles[name] = role
			}
		}
	}
	return roles
}
