package model

import "time"

// Mailbox role constants shared by folders and labels.
const (
	RoleInbox  = "inbox"
	RoleSent   = "sent"
	RoleTrash  = "trash"
	RoleAll    = "all"
	RoleDrafts = "drafts"
	RoleSpam   = "spam"
)

// Folder is an IMAP mailbox known locally for an account.
type Folder struct {
	ID        string `json:"id" db:"id"`
	AccountID string `json:"account_id" db:"account_id"`
	Path      string `json:"path" db:"path"`

	// Role is one of the Role* constants, or empty for user folders.
	Role string `json:"role" db:"role"`
}

// Label is a Gmail label known locally for an account.
type Label struct {
	ID        string `json:"id" db:"id"`
	AccountID string `json:"account_id" db:"account_id"`
	Name      string `json:"name" db:"name"`
	Role      string `json:"role" db:"role"`
}

// Address is a single mailbox address with an optional display name.
type Address struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// Message is the local canonical record of a message the account sent.
// Mailbox copies on the provider are correlated to it by HeaderMessageID.
type Message struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`

	// HeaderMessageID is the Message-ID header value, angle brackets
	// included (e.g. "<abc@example.com>").
	HeaderMessageID string `json:"header_message_id"`

	Subject string    `json:"subject"`
	From    []Address `json:"from"`
	To      []Address `json:"to"`
	Cc      []Address `json:"cc,omitempty"`
	Bcc     []Address `json:"bcc,omitempty"`
	ReplyTo []Address `json:"reply_to,omitempty"`
	Date    time.Time `json:"date"`

	Body     string `json:"body"`
	HTMLBody string `json:"html_body,omitempty"`

	InReplyTo  string   `json:"in_reply_to,omitempty"`
	References []string `json:"references,omitempty"`

	// Folders and Labels are populated by lookups that load associations.
	Folders []Folder `json:"folders"`
	Labels  []Label  `json:"labels"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
