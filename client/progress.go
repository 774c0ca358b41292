package client

import (
	"context"
	"sync"

	"github.com/wippyai/reader-bridge/wire"
)

// ProgressState is the client's view of a running operation.
type ProgressState struct {
	// Fraction is the completion in [0, 1], or nil while unknown.
	Fraction    *float64
	Cancellable bool
}

// Progress follows one progress id of an isolate. Pass it to a data or
// virtual file request to observe that request.
type Progress struct {
	isolate  *Isolate
	onChange func(ProgressState)
	state    ProgressState
	id       int64
	mu       sync.Mutex
}

// ID returns the progress id sent with requests.
func (p *Progress) ID() int64 {
	return p.id
}

// State returns the latest state received from the manager.
func (p *Progress) State() ProgressState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Cancel asks the manager to cancel the operation. It does nothing if the
// operation is not cancellable or has already finished.
func (p *Progress) Cancel(ctx context.Context) error {
	_, err := p.isolate.Call(ctx, wire.MethodCancelProgress, p.id)
	return err
}

// Close stops tracking updates for the id.
func (p *Progress) Close() {
	p.isolate.forgetProgress(p.id)
}

func (p *Progress) update(fn func(*ProgressState)) {
	p.mu.Lock()
	fn(&p.state)
	state := p.state
	p.mu.Unlock()
	if p.onChange != nil {
		p.onChange(state)
	}
}
