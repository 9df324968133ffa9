package syncback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nhle/mail-syncback/internal/model"
	"github.com/nhle/mail-syncback/internal/store"
)

// MessageFinder looks up an account's canonical messages with folders and
// labels loaded.
type MessageFinder interface {
	FindMessage(ctx context.Context, accountID, id string) (*model.Message, error)
}

// DuplicateDeleter removes every mailbox entry whose Message-ID header
// matches headerMessageID.
type DuplicateDeleter interface {
	DeleteProviderSentDuplicates(ctx context.Context, acct *model.Account, headerMessageID string) error
}

// MessageBuilder renders a canonical message as raw RFC 5322 bytes.
type MessageBuilder interface {
	BuildRawMessage(ctx context.Context, acct *model.Account, msg *model.Message) ([]byte, error)
}

// SentStorer files a raw message in the account's Sent mailbox.
type SentStorer interface {
	StoreSentCopy(ctx context.Context, acct *model.Account, raw []byte, headerMessageID string) error
}

// EnsureInSentProps is the input of an EnsureMessageInSentFolder request.
type EnsureInSentProps struct {
	MessageID string `json:"messageId"`

	// SentPerRecipient is set when the message went out as one send per
	// recipient, which leaves one provider copy per recipient.
	SentPerRecipient bool `json:"sentPerRecipient"`
}

// SentFolderReconciler leaves exactly one copy of a sent message in the
// account's Sent mailbox.
//
//	provider            per-recipient  delete copies   append canonical
//	auto (gmail)        no             -               -
//	auto (gmail)        yes            best effort     yes
//	other               any            -               yes
type SentFolderReconciler struct {
	messages MessageFinder
	deleter  DuplicateDeleter
	builder  MessageBuilder
	storer   SentStorer
	log      zerolog.Logger
}

// NewSentFolderReconciler wires a reconciler to its collaborators.
func NewSentFolderReconciler(
	messages MessageFinder,
	deleter DuplicateDeleter,
	builder MessageBuilder,
	storer SentStorer,
	log zerolog.Logger,
) *SentFolderReconciler {
	return &SentFolderReconciler{
		messages: messages,
		deleter:  deleter,
		builder:  builder,
		storer:   storer,
		log:      log,
	}
}

// Reconcile brings the Sent mailbox of acct to a single copy of the
// message and returns the stored message unchanged.
func (r *SentFolderReconciler) Reconcile(
	ctx context.Context,
	acct *model.Account,
	props EnsureInSentProps,
) (*model.Message, error) {
	if acct == nil {
		return nil, &ConfigurationError{Message: "account not available"}
	}
	if !acct.Provider.Valid() {
		return nil, &ConfigurationError{
			Message: fmt.Sprintf("account %s has unknown provider %q", acct.ID, acct.Provider),
		}
	}

	msg, err := r.messages.FindMessage(ctx, acct.ID, props.MessageID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && (msg == nil || msg.AccountID != acct.ID)) {
		return nil, &NotFoundError{MessageID: props.MessageID}
	}
	if err != nil {
		return nil, fmt.Errorf("looking up message %s: %w", props.MessageID, err)
	}

	log := r.log.With().
		Str("account_id", acct.ID).
		Str("message_id", msg.ID).
		Str("header_message_id", msg.HeaderMessageID).
		Bool("sent_per_recipient", props.SentPerRecipient).
		Logger()

	autoCopy := acct.Provider.AutoCreatesSentCopy()

	if autoCopy && props.SentPerRecipient {
		if cleanupErr := r.deleteDuplicates(ctx, acct, msg.HeaderMessageID); cleanupErr != nil {
			log.Error().Err(cleanupErr).Msg("failed to delete provider sent copies")
		}
	}

	if !autoCopy || props.SentPerRecipient {
		if err := r.insertCanonical(ctx, acct, msg); err != nil {
			return nil, err
		}
		log.Info().Msg("canonical sent copy in place")
	} else {
		log.Debug().Msg("provider sent copy is canonical")
	}

	return msg, nil
}

// deleteDuplicates removes the per-recipient copies the provider filed.
// Its failure never stops reconciliation.
func (r *SentFolderReconciler) deleteDuplicates(
	ctx context.Context,
	acct *model.Account,
	headerMessageID string,
) *DuplicateCleanupError {
	if err := r.deleter.DeleteProviderSentDuplicates(ctx, acct, headerMessageID); err != nil {
		return &DuplicateCleanupError{HeaderMessageID: headerMessageID, Err: err}
	}
	return nil
}

func (r *SentFolderReconciler) insertCanonical(
	ctx context.Context,
	acct *model.Account,
	msg *model.Message,
) error {
	raw, err := r.builder.BuildRawMessage(ctx, acct, msg)
	if err != nil {
		return &InsertionError{MessageID: msg.ID, Stage: StageBuild, Err: err}
	}
	if err := r.storer.StoreSentCopy(ctx, acct, raw, msg.HeaderMessageID); err != nil {
		return &InsertionError{MessageID: msg.ID, Stage: StageStore, Err: err}
	}
	return nil
}

// Execute runs an EnsureMessageInSentFolder request.
func (r *SentFolderReconciler) Execute(
	ctx context.Context,
	acct *model.Account,
	req model.SyncbackRequest,
) (any, error) {
	var props EnsureInSentProps
	if len(req.Props) > 0 {
		if err := json.Unmarshal(req.Props, &props); err != nil {
			return nil, &ConfigurationError{
				Message: fmt.Sprintf("request %s: invalid props: %v", req.ID, err),
			}
		}
	}
	if props.MessageID == "" {
		return nil, &ConfigurationError{
			Message: fmt.Sprintf("request %s: messageId is required", req.ID),
		}
	}

	return r.Reconcile(ctx, acct, props)
}
