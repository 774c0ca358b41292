package bridge

import (
	"context"
	stderrors "errors"
	"time"

	"go.uber.org/zap"

	readerbridge "github.com/wippyai/reader-bridge"
	"github.com/wippyai/reader-bridge/errors"
	"github.com/wippyai/reader-bridge/progress"
	"github.com/wippyai/reader-bridge/reader"
	"github.com/wippyai/reader-bridge/resource"
	"github.com/wippyai/reader-bridge/telemetry"
	"github.com/wippyai/reader-bridge/wire"
)

// methodUnknown labels metrics for calls whose method is not recognized.
const methodUnknown = "unknown"

// OnMethodCall handles one call from a client isolate and returns its
// result. Handlers that need a reader resolve it first and fail with
// reader_not_found without touching any other state.
func (m *Manager) OnMethodCall(ctx context.Context, call wire.MethodCall) (readerbridge.Value, error) {
	start := time.Now()
	result, err := m.handle(ctx, call)

	label, outcome := call.Method, telemetry.OutcomeOK
	if err != nil {
		outcome = telemetry.OutcomeError
		if stderrors.Is(err, errors.ErrInvalidMethod) {
			label = methodUnknown
		}
		m.logger.Debug("method call failed",
			zap.String("method", call.Method),
			zap.Stringer("isolate", call.Isolate),
			zap.Error(err))
	}
	m.metrics.ObserveRequest(label, outcome, time.Since(start))
	return result, err
}

func (m *Manager) handle(ctx context.Context, call wire.MethodCall) (readerbridge.Value, error) {
	if m.closed.Load() {
		return nil, errors.Closed("reader manager")
	}

	req, err := wire.DecodeRequest(call.Method, call.Args)
	if err != nil {
		return nil, err
	}

	switch r := req.(type) {
	case wire.DisposeReader:
		return nil, m.onLoop(ctx, func() { m.dispose(resource.Handle(r.ReaderHandle)) }, nil)
	case wire.CancelProgress:
		return nil, m.onLoop(ctx, func() {
			if m.progress.Cancel(call.Isolate, r.ProgressID) {
				m.logger.Debug("progress canceled", zap.Int64("progress", r.ProgressID))
			}
		}, nil)
	case wire.ReaderRequest:
		return m.handleReader(ctx, call.Isolate, r)
	default:
		return nil, errors.InvalidMethod(call.Method)
	}
}

// handleReader runs a request against a borrowed reader. The borrow keeps
// the reader open even if it is disposed while the request runs.
func (m *Manager) handleReader(ctx context.Context, isolate readerbridge.IsolateID, req wire.ReaderRequest) (readerbridge.Value, error) {
	var (
		b   *resource.Borrow[*registered]
		p   *progress.ReadProgress
		err error
	)
	lookup := func() {
		b, err = m.borrow(req.Reader())
		if err != nil {
			return
		}
		switch r := req.(type) {
		case wire.GetItemData:
			p = m.newProgress(isolate, r.ProgressID)
		case wire.GetVirtualFile:
			p = m.newProgress(isolate, r.ProgressID)
		}
	}
	undo := func() {
		if b != nil {
			b.Return()
		}
		if p != nil {
			p.Release()
		}
	}
	if doErr := m.onLoop(ctx, lookup, undo); doErr != nil {
		return nil, doErr
	}
	if err != nil {
		return nil, err
	}
	defer undo()

	rd := b.Value().reader
	switch r := req.(type) {
	case wire.GetItems:
		items, err := rd.Items(ctx)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = []reader.ItemHandle{}
		}
		return items, nil
	case wire.GetItemFormats:
		formats, err := rd.ItemFormats(ctx, r.ItemHandle)
		if err != nil {
			return nil, err
		}
		if formats == nil {
			formats = []string{}
		}
		return formats, nil
	case wire.ItemFormatIsSynthesized:
		return rd.ItemFormatIsSynthesized(ctx, r.ItemHandle, r.Format)
	case wire.GetItemSuggestedName:
		name, err := rd.ItemSuggestedName(ctx, r.ItemHandle)
		if err != nil || name == nil {
			return nil, err
		}
		return *name, nil
	case wire.GetItemData:
		return rd.ItemData(ctx, r.ItemHandle, r.Format, p)
	case wire.CanGetVirtualFile:
		return rd.CanGetVirtualFile(ctx, r.ItemHandle, r.Format)
	case wire.GetVirtualFile:
		return rd.VirtualFile(ctx, r.ItemHandle, r.Format, r.TargetFolder, p)
	default:
		return nil, errors.InvalidMethod(req.Method())
	}
}
