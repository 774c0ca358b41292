package progress

import "sync"

// DropNotifier runs a callback the first time Notify is called.
type DropNotifier struct {
	fn   func()
	once sync.Once
}

// NewDropNotifier wraps fn.
func NewDropNotifier(fn func()) *DropNotifier {
	return &DropNotifier{fn: fn}
}

// Notify fires the callback once; later calls do nothing.
func (n *DropNotifier) Notify() {
	n.once.Do(func() {
		if n.fn != nil {
			n.fn()
		}
	})
}
