package model

// Provider identifies the mail provider behind an account.
type Provider string

const (
	// ProviderGmail files a copy of every sent message in the Sent
	// mailbox on its own.
	ProviderGmail Provider = "gmail"

	// ProviderIMAP covers every other IMAP provider. Nothing is written
	// to Sent unless the client appends it.
	ProviderIMAP Provider = "imap"
)

// Valid reports whether p is one of the known providers.
func (p Provider) Valid() bool {
	switch p {
	case ProviderGmail, ProviderIMAP:
		return true
	default:
		return false
	}
}

// AutoCreatesSentCopy reports whether the provider stores sent messages
// in the Sent mailbox without being asked.
func (p Provider) AutoCreatesSentCopy() bool {
	return p == ProviderGmail
}

// Account is a configured mailbox.
type Account struct {
	ID       string   `json:"id" db:"id" mapstructure:"id" yaml:"id"`
	Email    string   `json:"email" db:"email" mapstructure:"email" yaml:"email"`
	Name     string   `json:"name" db:"name" mapstructure:"name" yaml:"name"`
	Provider Provider `json:"provider" db:"provider" mapstructure:"provider" yaml:"provider"`

	IMAPHost string `json:"imap_host" db:"imap_host" mapstructure:"imap_host" yaml:"imap_host"`
	IMAPPort string `json:"imap_port" db:"imap_port" mapstructure:"imap_port" yaml:"imap_port"`
	IMAPTLS  bool   `json:"imap_tls" db:"imap_tls" mapstructure:"imap_tls" yaml:"imap_tls"`

	// Username defaults to Email when empty.
	Username string `json:"username" db:"username" mapstructure:"username" yaml:"username"`
}

// LoginName returns the IMAP login for the account.
func (a *Account) LoginName() string {
	if a.Username != "" {
		return a.Username
	}
	return a.Email
}
