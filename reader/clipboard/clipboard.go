// Package clipboard exposes the system clipboard's text as a data reader.
package clipboard

import (
	"context"
	"sync"

	"github.com/atotto/clipboard"

	readerbridge "github.com/wippyai/reader-bridge"
	"github.com/wippyai/reader-bridge/errors"
	"github.com/wippyai/reader-bridge/reader"
)

// FormatText is the only format offered.
const FormatText = "text/plain"

// Source reads the clipboard's current text.
type Source func() (string, error)

// SystemSource reads the system clipboard.
func SystemSource() (string, error) {
	if clipboard.Unsupported {
		return "", errors.Unsupported(errors.PhaseReader, "no clipboard utility available")
	}
	return clipboard.ReadAll()
}

// Reader is a snapshot of the clipboard taken on first use: one text item,
// or no items when the clipboard is empty.
type Reader struct {
	source Source
	err    error
	text   string
	once   sync.Once
}

// New creates a reader over the system clipboard.
func New() *Reader {
	return NewFromSource(SystemSource)
}

// NewFromSource creates a reader that snapshots source.
func NewFromSource(source Source) *Reader {
	return &Reader{source: source}
}

func (r *Reader) snapshot() (string, error) {
	r.once.Do(func() {
		r.text, r.err = r.source()
		if r.err != nil {
			r.err = errors.Wrap(errors.PhaseReader, errors.KindIO, r.err, "read clipboard")
		}
	})
	return r.text, r.err
}

func (r *Reader) Items(_ context.Context) ([]reader.ItemHandle, error) {
	text, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	if text == "" {
		return []reader.ItemHandle{}, nil
	}
	return []reader.ItemHandle{1}, nil
}

func (r *Reader) ItemFormats(ctx context.Context, item reader.ItemHandle) ([]string, error) {
	if err := r.check(item); err != nil {
		return nil, err
	}
	return []string{FormatText}, nil
}

func (r *Reader) ItemFormatIsSynthesized(_ context.Context, item reader.ItemHandle, format string) (bool, error) {
	if err := r.checkFormat(item, format); err != nil {
		return false, err
	}
	return false, nil
}

func (r *Reader) ItemSuggestedName(_ context.Context, item reader.ItemHandle) (*string, error) {
	if err := r.check(item); err != nil {
		return nil, err
	}
	return nil, nil
}

func (r *Reader) ItemData(_ context.Context, item reader.ItemHandle, format string, progress reader.Progress) (readerbridge.Value, error) {
	if err := r.checkFormat(item, format); err != nil {
		return nil, err
	}
	if progress != nil {
		progress.ReportProgress(1)
	}
	return r.text, nil
}

func (r *Reader) CanGetVirtualFile(_ context.Context, item reader.ItemHandle, _ string) (bool, error) {
	if err := r.check(item); err != nil {
		return false, err
	}
	return false, nil
}

func (r *Reader) VirtualFile(_ context.Context, item reader.ItemHandle, format, _ string, _ reader.Progress) (string, error) {
	if err := r.check(item); err != nil {
		return "", err
	}
	return "", reader.FormatUnsupported(item, format)
}

func (r *Reader) check(item reader.ItemHandle) error {
	text, err := r.snapshot()
	if err != nil {
		return err
	}
	if item != 1 || text == "" {
		return reader.ItemNotFound(item)
	}
	return nil
}

func (r *Reader) checkFormat(item reader.ItemHandle, format string) error {
	if err := r.check(item); err != nil {
		return err
	}
	if format != FormatText {
		return reader.FormatUnsupported(item, format)
	}
	return nil
}

var _ reader.Reader = (*Reader)(nil)
