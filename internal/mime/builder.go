// Package mime renders canonical messages as RFC 5322 bytes suitable for
// an IMAP APPEND.
package mime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/nhle/mail-syncback/internal/model"
)

// CanonicalHeader marks a message appended by the syncback worker, as
// opposed to a copy the provider filed on its own.
const CanonicalHeader = "X-Syncback-Canonical"

// ErrMissingMessageID is returned for a message without a Message-ID
// header value; such a copy could never be correlated again.
var ErrMissingMessageID = errors.New("message has no Message-ID")

// Builder builds raw messages from canonical message records.
type Builder struct {
	now func() time.Time
}

// NewBuilder returns a Builder.
func NewBuilder() *Builder {
	return &Builder{now: time.Now}
}

// BuildRawMessage renders msg as it should appear in the account's Sent
// mailbox. Bcc recipients are kept, as in any sent copy. The From header
// falls back to the account address when the message has none.
func (b *Builder) BuildRawMessage(
	_ context.Context,
	acct *model.Account,
	msg *model.Message,
) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("building message: nil message")
	}
	msgID := trimAngles(msg.HeaderMessageID)
	if msgID == "" {
		return nil, fmt.Errorf("building message %s: %w", msg.ID, ErrMissingMessageID)
	}

	var h mail.Header
	h.Set("MIME-Version", "1.0")
	h.SetMessageID(msgID)
	h.SetSubject(msg.Subject)

	date := msg.Date
	if date.IsZero() {
		date = b.now()
	}
	h.SetDate(date)

	from := msg.From
	if len(from) == 0 && acct != nil {
		from = []model.Address{{Name: acct.Name, Email: acct.Email}}
	}
	setAddresses(&h, "From", from)
	setAddresses(&h, "To", msg.To)
	setAddresses(&h, "Cc", msg.Cc)
	setAddresses(&h, "Bcc", msg.Bcc)
	setAddresses(&h, "Reply-To", msg.ReplyTo)

	if id := trimAngles(msg.InReplyTo); id != "" {
		h.SetMsgIDList("In-Reply-To", []string{id})
	}
	if len(msg.References) > 0 {
		refs := make([]string, 0, len(msg.References))
		for _, r := range msg.References {
			if id := trimAngles(r); id != "" {
				refs = append(refs, id)
			}
		}
		if len(refs) > 0 {
			h.SetMsgIDList("References", refs)
		}
	}
	h.Set(CanonicalHeader, "1")

	var buf bytes.Buffer
	var err error
	if msg.HTMLBody == "" {
		err = writeSinglePart(&buf, h, msg.Body)
	} else {
		err = writeAlternative(&buf, h, msg.Body, msg.HTMLBody)
	}
	if err != nil {
		return nil, fmt.Errorf("building message %s: %w", msg.ID, err)
	}

	return buf.Bytes(), nil
}

// writeSinglePart writes a text/plain message.
func writeSinglePart(w io.Writer, h mail.Header, body string) error {
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	bw, err := mail.CreateSingleInlineWriter(w, h)
	if err != nil {
		return fmt.Errorf("creating message writer: %w", err)
	}
	if _, err := io.WriteString(bw, body); err != nil {
		return fmt.Errorf("writing body: %w", err)
	}
	return bw.Close()
}

// writeAlternative writes a message with text/plain and text/html parts.
func writeAlternative(w io.Writer, h mail.Header, text, html string) error {
	mw, err := mail.CreateWriter(w, h)
	if err != nil {
		return fmt.Errorf("creating message writer: %w", err)
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return fmt.Errorf("creating inline writer: %w", err)
	}

	parts := []struct {
		contentType string
		body        string
	}{
		{"text/plain", text},
		{"text/html", html},
	}
	for _, p := range parts {
		var ph mail.InlineHeader
		ph.SetContentType(p.contentType, map[string]string{"charset": "utf-8"})

		pw, err := iw.CreatePart(ph)
		if err != nil {
			return fmt.Errorf("creating %s part: %w", p.contentType, err)
		}
		if _, err := io.WriteString(pw, p.body); err != nil {
			return fmt.Errorf("writing %s part: %w", p.contentType, err)
		}
		if err := pw.Close(); err != nil {
			return fmt.Errorf("closing %s part: %w", p.contentType, err)
		}
	}

	if err := iw.Close(); err != nil {
		return fmt.Errorf("closing inline writer: %w", err)
	}
	return mw.Close()
}

func setAddresses(h *mail.Header, key string, addrs []model.Address) {
	if len(addrs) == 0 {
		return
	}
	list := make([]*mail.Address, 0, len(addrs))
	for _, a := range addrs {
		list = append(list, &mail.Address{Name: a.Name, Address: a.Email})
	}
	h.SetAddressList(key, list)
}

func trimAngles(id string) string {
	return strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(id), "<"), ">")
}
