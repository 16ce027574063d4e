// Package payment abstracts the external processors that settle guest
// sessions, pass invoices and wallet top-ups.
package payment

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/smartgate/server/internal/smartgate/types"
)

// ErrDeclined is returned when the processor answered but refused the charge.
var ErrDeclined = errors.New("payment declined")

type ChargeRequest struct {
	Amount      types.Cents
	Currency    string
	Reference   string // e.g. "guest:GST-..." or "wallet:USR-..."
	Description string
	Metadata    map[string]string
}

type Receipt struct {
	Reference string
	Status    string
	Currency  string
}

// Processor charges an external account. Implementations must honour ctx
// cancellation.
type Processor interface {
	Name() string
	Charge(ctx context.Context, req ChargeRequest) (Receipt, error)
}

// Registry resolves a payment source name to its Processor.
type Registry struct {
	processors map[string]Processor
}

func NewRegistry(ps ...Processor) *Registry {
	r := &Registry{processors: make(map[string]Processor, len(ps))}
	for _, p := range ps {
		r.processors[strings.ToLower(p.Name())] = p
	}
	return r
}

func (r *Registry) Get(source string) (Processor, bool) {
	if r == nil {
		return nil, false
	}
	p, ok := r.processors[strings.ToLower(strings.TrimSpace(source))]
	return p, ok
}

// Sources lists registered processor names in sorted order.
func (r *Registry) Sources() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.processors))
	for name := range r.processors {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
