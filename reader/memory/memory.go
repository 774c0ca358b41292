// Package memory provides a reader over a fixed, in-memory payload.
package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	readerbridge "github.com/wippyai/reader-bridge"
	"github.com/wippyai/reader-bridge/errors"
	"github.com/wippyai/reader-bridge/reader"
)

// Format is one representation of an item.
type Format struct {
	Name        string
	Data        []byte
	Synthesized bool
	// Virtual marks formats that can be materialized as a file.
	Virtual bool
}

// Item is one entry of the payload. Item handles are assigned in order,
// starting at 1.
type Item struct {
	Name    string
	Formats []Format
}

// ReadHook runs before ItemData and VirtualFile return. A non-nil error
// replaces the result.
type ReadHook func(ctx context.Context, item reader.ItemHandle, format string, progress reader.Progress) error

// Reader serves a fixed set of items.
type Reader struct {
	hook   ReadHook
	items  []Item
	closes atomic.Int32
}

// New creates a reader over items.
func New(items ...Item) *Reader {
	return &Reader{items: items}
}

// WithReadHook installs hook and returns r.
func (r *Reader) WithReadHook(hook ReadHook) *Reader {
	r.hook = hook
	return r
}

// Close records that the bridge released the reader.
func (r *Reader) Close() error {
	r.closes.Add(1)
	return nil
}

// Closes returns how many times Close has been called.
func (r *Reader) Closes() int {
	return int(r.closes.Load())
}

func (r *Reader) Items(_ context.Context) ([]reader.ItemHandle, error) {
	handles := make([]reader.ItemHandle, len(r.items))
	for i := range r.items {
		handles[i] = reader.ItemHandle(i + 1)
	}
	return handles, nil
}

func (r *Reader) ItemFormats(_ context.Context, item reader.ItemHandle) ([]string, error) {
	it, err := r.item(item)
	if err != nil {
		return nil, err
	}
	formats := make([]string, len(it.Formats))
	for i, f := range it.Formats {
		formats[i] = f.Name
	}
	return formats, nil
}

func (r *Reader) ItemFormatIsSynthesized(_ context.Context, item reader.ItemHandle, format string) (bool, error) {
	f, err := r.format(item, format)
	if err != nil {
		return false, err
	}
	return f.Synthesized, nil
}

func (r *Reader) ItemSuggestedName(_ context.Context, item reader.ItemHandle) (*string, error) {
	it, err := r.item(item)
	if err != nil {
		return nil, err
	}
	if it.Name == "" {
		return nil, nil
	}
	name := it.Name
	return &name, nil
}

func (r *Reader) ItemData(ctx context.Context, item reader.ItemHandle, format string, progress reader.Progress) (readerbridge.Value, error) {
	f, err := r.format(item, format)
	if err != nil {
		return nil, err
	}
	if r.hook != nil {
		if err := r.hook(ctx, item, format, progress); err != nil {
			return nil, err
		}
	}
	return f.Data, nil
}

func (r *Reader) CanGetVirtualFile(_ context.Context, item reader.ItemHandle, format string) (bool, error) {
	it, err := r.item(item)
	if err != nil {
		return false, err
	}
	for _, f := range it.Formats {
		if f.Name == format {
			return f.Virtual, nil
		}
	}
	return false, nil
}

func (r *Reader) VirtualFile(ctx context.Context, item reader.ItemHandle, format, targetFolder string, progress reader.Progress) (string, error) {
	f, err := r.format(item, format)
	if err != nil {
		return "", err
	}
	if !f.Virtual {
		return "", errors.Unsupported(errors.PhaseReader, fmt.Sprintf("item %d format %q is not a virtual file", item, format))
	}
	if r.hook != nil {
		if err := r.hook(ctx, item, format, progress); err != nil {
			return "", err
		}
	}

	name := r.items[item-1].Name
	if name == "" {
		name = fmt.Sprintf("item-%d", item)
	}
	path := filepath.Join(targetFolder, filepath.Base(name))
	if err := os.WriteFile(path, f.Data, 0o644); err != nil {
		return "", errors.Wrap(errors.PhaseReader, errors.KindIO, err, "write virtual file")
	}
	if progress != nil {
		progress.ReportProgress(1)
	}
	return path, nil
}

func (r *Reader) item(item reader.ItemHandle) (*Item, error) {
	if item < 1 || int(item) > len(r.items) {
		return nil, reader.ItemNotFound(item)
	}
	return &r.items[item-1], nil
}

func (r *Reader) format(item reader.ItemHandle, format string) (*Format, error) {
	it, err := r.item(item)
	if err != nil {
		return nil, err
	}
	for i := range it.Formats {
		if it.Formats[i].Name == format {
			return &it.Formats[i], nil
		}
	}
	return nil, reader.FormatUnsupported(item, format)
}

var _ reader.Reader = (*Reader)(nil)
