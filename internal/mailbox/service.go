// Package mailbox implements the provider-side collaborators of sent-folder
// reconciliation over IMAP: deleting the copies a provider filed on its
// own and appending the canonical copy.
package mailbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/rs/zerolog"

	"github.com/nhle/mail-syncback/internal/mime"
	"github.com/nhle/mail-syncback/internal/model"
	"github.com/nhle/mail-syncback/internal/store"
)

// FolderFinder resolves locally known mailboxes by role.
type FolderFinder interface {
	FindFolderByRole(ctx context.Context, accountID, role string) (*model.Folder, error)
}

// Service deletes provider sent duplicates and stores canonical sent
// copies. It opens one IMAP session per call.
type Service struct {
	dialer  Dialer
	folders FolderFinder
	log     zerolog.Logger
}

// NewService creates a Service. folders may be nil, in which case
// mailboxes are always discovered with LIST.
func NewService(dialer Dialer, folders FolderFinder, log zerolog.Logger) *Service {
	return &Service{dialer: dialer, folders: folders, log: log}
}

// DeleteProviderSentDuplicates removes every copy of the message with the
// given Message-ID from the account. Matches are moved from All Mail to
// Trash and expunged there, since deleting outside Trash only drops a
// label on Gmail. Finding nothing is not an error.
func (s *Service) DeleteProviderSentDuplicates(
	ctx context.Context,
	acct *model.Account,
	headerMessageID string,
) error {
	log := s.log.With().
		Str("account_id", acct.ID).
		Str("header_message_id", headerMessageID).
		Logger()

	sess, err := s.dialer.Dial(ctx, acct)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Logout() }()

	allMail, err := s.resolveMailbox(ctx, sess, acct, model.RoleAll)
	if err != nil {
		return err
	}
	trash, err := s.resolveMailbox(ctx, sess, acct, model.RoleTrash)
	if err != nil {
		return err
	}

	criteria := byMessageID(headerMessageID)

	if err := sess.Select(allMail); err != nil {
		return err
	}
	uids, err := sess.Search(criteria)
	if err != nil {
		return err
	}
	if len(uids) == 0 {
		log.Debug().Str("mailbox", allMail).Msg("no provider sent copies to delete")
		return nil
	}
	if err := sess.Move(uids, trash); err != nil {
		return err
	}

	if err := sess.Select(trash); err != nil {
		return err
	}
	trashed, err := sess.Search(criteria)
	if err != nil {
		return err
	}
	if len(trashed) > 0 {
		if err := sess.Expunge(trashed); err != nil {
			return err
		}
	}

	log.Info().
		Int("moved", len(uids)).
		Int("expunged", len(trashed)).
		Msg("deleted provider sent copies")
	return nil
}

// StoreSentCopy appends raw to the account's Sent mailbox flagged \Seen.
// The append is skipped when a canonical copy with the same Message-ID is
// already there, so retrying after a partial failure does not duplicate
// it. Copies filed by the provider lack the canonical header and do not
// count.
func (s *Service) StoreSentCopy(
	ctx context.Context,
	acct *model.Account,
	raw []byte,
	headerMessageID string,
) error {
	log := s.log.With().
		Str("account_id", acct.ID).
		Str("header_message_id", headerMessageID).
		Logger()

	sess, err := s.dialer.Dial(ctx, acct)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Logout() }()

	sent, err := s.resolveMailbox(ctx, sess, acct, model.RoleSent)
	if err != nil {
		return err
	}

	if err := sess.Select(sent); err != nil {
		return err
	}
	criteria := byMessageID(headerMessageID)
	criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{
		Key: mime.CanonicalHeader,
	})
	existing, err := sess.Search(criteria)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		log.Info().Str("mailbox", sent).Msg("canonical sent copy already present")
		return nil
	}

	if err := sess.Append(sent, raw, []imap.Flag{imap.FlagSeen}, messageDate(raw)); err != nil {
		return err
	}

	log.Info().Str("mailbox", sent).Int("bytes", len(raw)).Msg("stored canonical sent copy")
	return nil
}

// resolveMailbox finds the mailbox for role, preferring the local folder
// store over the server's LIST response.
func (s *Service) resolveMailbox(
	ctx context.Context,
	sess Session,
	acct *model.Account,
	role string,
) (string, error) {
	if s.folders != nil {
		folder, err := s.folders.FindFolderByRole(ctx, acct.ID, role)
		switch {
		case err == nil:
			return folder.Path, nil
		case !errors.Is(err, store.ErrNotFound):
			s.log.Warn().Err(err).
				Str("account_id", acct.ID).
				Str("role", role).
				Msg("folder lookup failed, falling back to LIST")
		}
	}

	mailboxes, err := sess.List()
	if err != nil {
		return "", err
	}
	name, ok := pickMailbox(mailboxes, role)
	if !ok {
		return "", fmt.Errorf("%s mailbox for account %s: %w", role, acct.ID, ErrMailboxNotFound)
	}
	return name, nil
}

func byMessageID(headerMessageID string) *imap.SearchCriteria {
	return &imap.SearchCriteria{
		Header: []imap.SearchCriteriaHeaderField{
			{Key: "Message-ID", Value: headerMessageID},
		},
	}
}

// messageDate returns the Date header of raw, or the zero time when it is
// missing or unparsable so the server assigns the internal date.
func messageDate(raw []byte) time.Time {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return time.Time{}
	}
	date, err := (&mail.Header{Header: entity.Header}).Date()
	if err != nil {
		return time.Time{}
	}
	return date
}
