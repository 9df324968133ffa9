package syncback

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nhle/mail-syncback/internal/model"
)

// Kind names a syncback task type.
type Kind string

// KindEnsureMessageInSentFolder reconciles the Sent mailbox after a send.
const KindEnsureMessageInSentFolder Kind = "EnsureMessageInSentFolder"

// Handler executes one syncback request for an account. The result is a
// JSON-serializable snapshot.
type Handler interface {
	Execute(ctx context.Context, acct *model.Account, req model.SyncbackRequest) (any, error)
}

// Dispatcher routes requests to the handler registered for their kind.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[Kind]Handler
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[Kind]Handler)}
}

// Register binds h to kind, replacing any earlier handler.
func (d *Dispatcher) Register(kind Kind, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = h
}

// Kinds returns the registered kinds in sorted order.
func (d *Dispatcher) Kinds() []Kind {
	d.mu.RLock()
	defer d.mu.RUnlock()

	kinds := make([]Kind, 0, len(d.handlers))
	for k := range d.handlers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Dispatch runs req with the handler for its kind. An unregistered kind
// is a ConfigurationError.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	acct *model.Account,
	req model.SyncbackRequest,
) (any, error) {
	d.mu.RLock()
	h, ok := d.handlers[Kind(req.Kind)]
	d.mu.RUnlock()

	if !ok {
		return nil, &ConfigurationError{
			Message: fmt.Sprintf("no handler for request kind %q", req.Kind),
		}
	}
	return h.Execute(ctx, acct, req)
}
