package client

import (
	"context"
	"runtime"
	"sync/atomic"

	readerbridge "github.com/wippyai/reader-bridge"
	"github.com/wippyai/reader-bridge/bridge"
	"github.com/wippyai/reader-bridge/errors"
	"github.com/wippyai/reader-bridge/resource"
	"github.com/wippyai/reader-bridge/wire"
)

// ReaderProxy is the client-side handle to a registered reader. The reader
// is released when Dispose is called or, failing that, once the proxy has
// been garbage collected.
type ReaderProxy struct {
	isolate  *Isolate
	token    *resource.FinalizableHandle
	handle   int64
	disposed atomic.Bool
}

func newReaderProxy(i *Isolate, reg bridge.RegisteredDataReader) *ReaderProxy {
	p := &ReaderProxy{
		isolate: i,
		token:   reg.FinalizableHandle,
		handle:  int64(reg.Handle),
	}
	if p.token != nil {
		runtime.AddCleanup(p, func(t *resource.FinalizableHandle) { t.Finalize() }, p.token)
	}
	return p
}

// Handle returns the reader handle used on the wire.
func (p *ReaderProxy) Handle() int64 {
	return p.handle
}

// Dispose releases the reader. Later calls do nothing.
func (p *ReaderProxy) Dispose(ctx context.Context) error {
	if !p.disposed.CompareAndSwap(false, true) {
		return nil
	}
	_, err := p.isolate.Call(ctx, wire.MethodDisposeReader, p.handle)
	return err
}

// Items lists the reader's items.
func (p *ReaderProxy) Items(ctx context.Context) ([]int64, error) {
	v, err := p.call(ctx, wire.GetItems{ReaderHandle: p.handle})
	if err != nil {
		return nil, err
	}
	return handleList(v)
}

// Formats lists the formats of item.
func (p *ReaderProxy) Formats(ctx context.Context, item int64) ([]string, error) {
	v, err := p.call(ctx, wire.GetItemFormats{ItemHandle: item, ReaderHandle: p.handle})
	if err != nil {
		return nil, err
	}
	return stringList(v)
}

// IsSynthesized reports whether format is derived by the platform.
func (p *ReaderProxy) IsSynthesized(ctx context.Context, item int64, format string) (bool, error) {
	v, err := p.call(ctx, wire.ItemFormatIsSynthesized{Format: format, ItemHandle: item, ReaderHandle: p.handle})
	if err != nil {
		return false, err
	}
	return boolean(v)
}

// SuggestedName returns the item's name hint. ok is false when the reader
// has none.
func (p *ReaderProxy) SuggestedName(ctx context.Context, item int64) (name string, ok bool, err error) {
	v, err := p.call(ctx, wire.GetItemSuggestedName{ItemHandle: item, ReaderHandle: p.handle})
	if err != nil || v == nil {
		return "", false, err
	}
	s, isString := v.(string)
	if !isString {
		return "", false, unexpected(wire.MethodGetItemSuggestedName, v)
	}
	return s, true, nil
}

// Data fetches item in format. progress may be nil.
func (p *ReaderProxy) Data(ctx context.Context, item int64, format string, progress *Progress) (readerbridge.Value, error) {
	id, done := p.progressID(progress)
	defer done()
	return p.call(ctx, wire.GetItemData{
		Format:       format,
		ItemHandle:   item,
		ReaderHandle: p.handle,
		ProgressID:   id,
	})
}

// CanGetVirtualFile reports whether item can be materialized as a file.
func (p *ReaderProxy) CanGetVirtualFile(ctx context.Context, item int64, format string) (bool, error) {
	v, err := p.call(ctx, wire.CanGetVirtualFile{Format: format, ItemHandle: item, ReaderHandle: p.handle})
	if err != nil {
		return false, err
	}
	return boolean(v)
}

// VirtualFile materializes item into targetFolder and returns the file's
// path. progress may be nil.
func (p *ReaderProxy) VirtualFile(ctx context.Context, item int64, format, targetFolder string, progress *Progress) (string, error) {
	id, done := p.progressID(progress)
	defer done()
	v, err := p.call(ctx, wire.GetVirtualFile{
		Format:       format,
		TargetFolder: targetFolder,
		ItemHandle:   item,
		ReaderHandle: p.handle,
		ProgressID:   id,
	})
	if err != nil {
		return "", err
	}
	path, ok := v.(string)
	if !ok {
		return "", unexpected(wire.MethodGetVirtualFile, v)
	}
	return path, nil
}

func (p *ReaderProxy) call(ctx context.Context, req wire.Request) (readerbridge.Value, error) {
	v, err := p.isolate.Call(ctx, req.Method(), wire.Encode(req))
	runtime.KeepAlive(p)
	return v, err
}

// progressID returns the id to send for progress, allocating a throwaway
// one when the caller is not interested.
func (p *ReaderProxy) progressID(progress *Progress) (int64, func()) {
	if progress != nil {
		return progress.ID(), func() {}
	}
	tmp := p.isolate.NewProgress(nil)
	return tmp.ID(), tmp.Close
}

func handleList(v readerbridge.Value) ([]int64, error) {
	switch v := v.(type) {
	case []int64:
		return v, nil
	case []readerbridge.Value:
		out := make([]int64, len(v))
		for i, x := range v {
			n, err := wire.DecodeInt(wire.MethodGetItems, x)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	}
	return nil, unexpected(wire.MethodGetItems, v)
}

func stringList(v readerbridge.Value) ([]string, error) {
	switch v := v.(type) {
	case []string:
		return v, nil
	case []readerbridge.Value:
		out := make([]string, len(v))
		for i, x := range v {
			s, ok := x.(string)
			if !ok {
				return nil, unexpected(wire.MethodGetItemFormats, v)
			}
			out[i] = s
		}
		return out, nil
	}
	return nil, unexpected(wire.MethodGetItemFormats, v)
}

func boolean(v readerbridge.Value) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, unexpected("", v)
	}
	return b, nil
}

func unexpected(method string, v readerbridge.Value) error {
	return errors.New(errors.PhaseDecode, errors.KindInvalidInput).
		Method(method).
		Value(v).
		Detail("unexpected result type %T", v).
		Build()
}
