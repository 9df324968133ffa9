package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/rs/zerolog"

	"github.com/nhle/mail-syncback/internal/model"
)

// AuthError indicates that the IMAP server rejected the account's
// credentials.
type AuthError struct {
	AccountID string
	Message   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.AccountID, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// Session is the subset of IMAP operations the sent-folder collaborators
// need. Each Session wraps one authenticated connection.
type Session interface {
	// List returns every mailbox, with SPECIAL-USE attributes when the
	// server supports them.
	List() ([]*imap.ListData, error)

	// Select opens mailbox read-write.
	Select(mailbox string) error

	// Search returns UIDs in the selected mailbox matching criteria.
	Search(criteria *imap.SearchCriteria) ([]imap.UID, error)

	// Move moves messages from the selected mailbox to dest.
	Move(uids []imap.UID, dest string) error

	// Expunge flags messages in the selected mailbox \Deleted and
	// expunges them.
	Expunge(uids []imap.UID) error

	// Append uploads raw into mailbox.
	Append(mailbox string, raw []byte, flags []imap.Flag, date time.Time) error

	// Logout ends the session and closes the connection.
	Logout() error
}

// Dialer opens a Session for an account.
type Dialer interface {
	Dial(ctx context.Context, acct *model.Account) (Session, error)
}

// PasswordFunc resolves the IMAP password for an account.
type PasswordFunc func(accountID string) (string, error)

// IMAPDialer dials real IMAP servers with go-imap v2.
type IMAPDialer struct {
	passwords PasswordFunc
	log       zerolog.Logger
}

// NewIMAPDialer creates a dialer that looks up passwords with passwords.
func NewIMAPDialer(passwords PasswordFunc, log zerolog.Logger) *IMAPDialer {
	return &IMAPDialer{passwords: passwords, log: log}
}

// dialTimeout bounds TCP connection setup when ctx carries no deadline.
const dialTimeout = 30 * time.Second

// Dial establishes a connection to the account's IMAP server,
// authenticates, and returns the session. The connection is closed when
// ctx is done, which aborts any IMAP command still waiting on the server.
// The caller is responsible for calling Logout on the returned session.
func (d *IMAPDialer) Dial(ctx context.Context, acct *model.Account) (Session, error) {
	if acct.IMAPHost == "" {
		return nil, fmt.Errorf("account %s has no IMAP host", acct.ID)
	}

	password, err := d.passwords(acct.ID)
	if err != nil {
		return nil, fmt.Errorf("loading IMAP password for %s: %w", acct.ID, err)
	}

	addr := net.JoinHostPort(acct.IMAPHost, acct.IMAPPort)
	opts := &imapclient.Options{
		DebugWriter: &protocolWriter{log: d.log},
	}

	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	tlsConfig := &tls.Config{ServerName: acct.IMAPHost}

	var client *imapclient.Client
	if acct.IMAPTLS {
		tlsConn := tls.Client(conn, tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			stop()
			_ = conn.Close()
			return nil, fmt.Errorf("TLS handshake with %s: %w", addr, ctxErr(ctx, err))
		}
		client = imapclient.New(tlsConn, opts)
	} else {
		opts.TLSConfig = tlsConfig
		client, err = imapclient.NewStartTLS(conn, opts)
		if err != nil {
			stop()
			_ = conn.Close()
			return nil, fmt.Errorf("starting TLS with %s: %w", addr, ctxErr(ctx, err))
		}
	}

	if err := client.Login(acct.LoginName(), password).Wait(); err != nil {
		stop()
		_ = client.Close()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("logging in to %s: %w", addr, ctx.Err())
		}
		return nil, &AuthError{
			AccountID: acct.ID,
			Message: fmt.Sprintf(
				"authentication failed for %s: %v", acct.LoginName(), err,
			),
		}
	}

	return &imapSession{c: client, stop: stop}, nil
}

// ctxErr prefers the context's error over the I/O error its cancellation
// caused.
func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// imapSession implements Session on an imapclient.Client.
type imapSession struct {
	c    *imapclient.Client
	stop func() bool
}

func (s *imapSession) List() ([]*imap.ListData, error) {
	var opts *imap.ListOptions
	if s.c.Caps().Has(imap.CapSpecialUse) {
		opts = &imap.ListOptions{ReturnSpecialUse: true}
	}

	mailboxes, err := s.c.List("", "*", opts).Collect()
	if err != nil {
		return nil, fmt.Errorf("listing mailboxes: %w", err)
	}
	return mailboxes, nil
}

func (s *imapSession) Select(mailbox string) error {
	if _, err := s.c.Select(mailbox, nil).Wait(); err != nil {
		return fmt.Errorf("selecting %s: %w", mailbox, err)
	}
	return nil
}

func (s *imapSession) Search(criteria *imap.SearchCriteria) ([]imap.UID, error) {
	data, err := s.c.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}
	return data.AllUIDs(), nil
}

func (s *imapSession) Move(uids []imap.UID, dest string) error {
	if _, err := s.c.Move(imap.UIDSetNum(uids...), dest).Wait(); err != nil {
		return fmt.Errorf("moving %d messages to %s: %w", len(uids), dest, err)
	}
	return nil
}

func (s *imapSession) Expunge(uids []imap.UID) error {
	uidSet := imap.UIDSetNum(uids...)

	storeCmd := s.c.Store(uidSet, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagDeleted},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("flagging %d messages deleted: %w", len(uids), err)
	}

	// Without UIDPLUS, EXPUNGE also removes anything else already
	// flagged \Deleted in the mailbox.
	var expungeCmd *imapclient.ExpungeCommand
	if s.c.Caps().Has(imap.CapUIDPlus) {
		expungeCmd = s.c.UIDExpunge(uidSet)
	} else {
		expungeCmd = s.c.Expunge()
	}
	if err := expungeCmd.Close(); err != nil {
		return fmt.Errorf("expunging: %w", err)
	}
	return nil
}

func (s *imapSession) Append(
	mailbox string, raw []byte, flags []imap.Flag, date time.Time,
) error {
	cmd := s.c.Append(mailbox, int64(len(raw)), &imap.AppendOptions{
		Flags: flags,
		Time:  date,
	})
	if _, err := cmd.Write(raw); err != nil {
		_ = cmd.Close()
		return fmt.Errorf("writing message to %s: %w", mailbox, err)
	}
	if err := cmd.Close(); err != nil {
		return fmt.Errorf("closing append to %s: %w", mailbox, err)
	}
	if _, err := cmd.Wait(); err != nil {
		return fmt.Errorf("appending to %s: %w", mailbox, err)
	}
	return nil
}

func (s *imapSession) Logout() error {
	err := s.c.Logout().Wait()
	s.stop()
	_ = s.c.Close()
	return err
}

// protocolWriter logs raw IMAP traffic at trace level with LOGIN
// arguments redacted.
type protocolWriter struct {
	log zerolog.Logger
}

func (w *protocolWriter) Write(p []byte) (int, error) {
	if w.log.GetLevel() > zerolog.TraceLevel {
		return len(p), nil
	}

	data := strings.TrimSpace(string(p))
	if strings.Contains(strings.ToUpper(data), " LOGIN ") {
		data = "[LOGIN command redacted]"
	}
	w.log.Trace().Str("imap_data", data).Msg("imap protocol")
	return len(p), nil
}
