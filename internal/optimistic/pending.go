package optimistic

import "context"

// Pending tracks one dispatched mutation until it is reconciled.
type Pending struct {
	kind Kind
	done chan struct{}
	err  error
}

func newPending(kind Kind) *Pending {
	return &Pending{kind: kind, done: make(chan struct{})}
}

// Kind returns the action kind.
func (p *Pending) Kind() Kind { return p.kind }

// Done is closed once the mutation has been applied or rejected.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Err returns the failure, or nil on success. Only meaningful after Done.
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Wait blocks until the mutation is reconciled or ctx ends.
// Returns the mutation's failure, or ctx.Err().
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pending) resolve(err error) {
	p.err = err
	close(p.done)
}
