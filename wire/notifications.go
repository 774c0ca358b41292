package wire

import (
	readerbridge "github.com/wippyai/reader-bridge"
)

// Notification method names sent from the manager to a client isolate.
const (
	MethodSetProgressCancellable = "setProgressCancellable"
	MethodUpdateProgress         = "updateProgress"
)

// SetProgressCancellable tells the client whether the operation behind a
// progress id can currently be canceled.
type SetProgressCancellable struct {
	ProgressID  int64 `mapstructure:"progressId"`
	Cancellable bool  `mapstructure:"cancellable"`
}

// ToValue renders the notification arguments.
func (n SetProgressCancellable) ToValue() readerbridge.Value {
	return map[string]readerbridge.Value{
		"progressId":  n.ProgressID,
		"cancellable": n.Cancellable,
	}
}

// ProgressUpdate carries a completion fraction in [0, 1], or nil when the
// progress is indeterminate.
type ProgressUpdate struct {
	Fraction   *float64 `mapstructure:"fraction"`
	ProgressID int64    `mapstructure:"progressId"`
}

// ToValue renders the notification arguments. An indeterminate update
// carries an explicit nil fraction.
func (n ProgressUpdate) ToValue() readerbridge.Value {
	var fraction readerbridge.Value
	if n.Fraction != nil {
		fraction = *n.Fraction
	}
	return map[string]readerbridge.Value{
		"progressId": n.ProgressID,
		"fraction":   fraction,
	}
}

// DecodeSetProgressCancellable parses setProgressCancellable arguments.
func DecodeSetProgressCancellable(args readerbridge.Value) (SetProgressCancellable, error) {
	var n SetProgressCancellable
	err := DecodeArgs(MethodSetProgressCancellable, args, &n)
	return n, err
}

// DecodeProgressUpdate parses updateProgress arguments.
func DecodeProgressUpdate(args readerbridge.Value) (ProgressUpdate, error) {
	m, ok := args.(map[string]readerbridge.Value)
	if ok {
		if f, present := m["fraction"]; present && f == nil {
			id, err := DecodeInt(MethodUpdateProgress, m["progressId"])
			return ProgressUpdate{ProgressID: id}, err
		}
	}
	var n ProgressUpdate
	err := DecodeArgs(MethodUpdateProgress, args, &n)
	return n, err
}
