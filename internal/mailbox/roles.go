package mailbox

import (
	"errors"
	"strings"

	"github.com/emersion/go-imap/v2"

	"github.com/nhle/mail-syncback/internal/model"
)

// ErrMailboxNotFound is returned when no mailbox on the server matches a
// role.
var ErrMailboxNotFound = errors.New("mailbox not found")

// roleAttrs maps mailbox roles to RFC 6154 SPECIAL-USE attributes.
var roleAttrs = map[string]imap.MailboxAttr{
	model.RoleSent:   imap.MailboxAttrSent,
	model.RoleTrash:  imap.MailboxAttrTrash,
	model.RoleAll:    imap.MailboxAttrAll,
	model.RoleDrafts: imap.MailboxAttrDrafts,
	model.RoleSpam:   imap.MailboxAttrJunk,
}

// wellKnownNames lists common mailbox names per role for servers that do
// not advertise SPECIAL-USE attributes.
var wellKnownNames = map[string][]string{
	model.RoleSent: {
		"[Gmail]/Sent Mail",
		"[Google Mail]/Sent Mail",
		"Sent",
		"Sent Items",
		"Sent Messages",
		"Sent Mail",
		"INBOX.Sent",
		"INBOX/Sent",
		"INBOX.Sent Items",
		"Gesendet",
		"Gesendete Elemente",
	},
	model.RoleTrash: {
		"[Gmail]/Trash",
		"[Gmail]/Bin",
		"[Google Mail]/Trash",
		"[Google Mail]/Bin",
		"Trash",
		"Deleted Items",
		"Deleted Messages",
		"INBOX.Trash",
		"INBOX/Trash",
	},
	model.RoleAll: {
		"[Gmail]/All Mail",
		"[Google Mail]/All Mail",
		"All Mail",
		"Archive",
	},
}

// pickMailbox chooses the mailbox for role from a LIST response. A
// SPECIAL-USE attribute wins over a well-known name; mailboxes flagged
// \Noselect or \NonExistent are never chosen.
func pickMailbox(mailboxes []*imap.ListData, role string) (string, bool) {
	selectable := make([]*imap.ListData, 0, len(mailboxes))
	for _, mb := range mailboxes {
		if mb == nil ||
			hasAttr(mb.Attrs, imap.MailboxAttrNoSelect) ||
			hasAttr(mb.Attrs, imap.MailboxAttrNonExistent) {
			continue
		}
		selectable = append(selectable, mb)
	}

	if attr, ok := roleAttrs[role]; ok {
		for _, mb := range selectable {
			if hasAttr(mb.Attrs, attr) {
				return mb.Mailbox, true
			}
		}
	}

	for _, name := range wellKnownNames[role] {
		for _, mb := range selectable {
			if strings.EqualFold(mb.Mailbox, name) {
				return mb.Mailbox, true
			}
		}
	}

	return "", false
}

// hasAttr checks if a mailbox has a specific IMAP attribute.
func hasAttr(attrs []imap.MailboxAttr, target imap.MailboxAttr) bool {
	for _, attr := range attrs {
		if strings.EqualFold(string(attr), string(target)) {
			return true
		}
	}
	return false
}
