package reader

import (
	"context"

	readerbridge "github.com/wippyai/reader-bridge"
	"github.com/wippyai/reader-bridge/errors"
)

// ItemHandle identifies an item within one reader.
type ItemHandle = int64

// Progress is the part of a progress channel a reader talks to. All
// methods may be called from any goroutine.
type Progress interface {
	// SetCancellationHandler installs (or with nil, removes) the function
	// that interrupts the operation.
	SetCancellationHandler(handler func())
	// ReportProgress reports a completion fraction in [0, 1].
	ReportProgress(fraction float64)
	// ReportIndeterminate reports that completion is currently unknown.
	ReportIndeterminate()
}

// Reader enumerates the items and formats of a clipboard or drag-and-drop
// payload. Implementations may optionally implement io.Closer; Close is
// called once the bridge and every in-flight request have let go.
type Reader interface {
	// Items lists the payload's items.
	Items(ctx context.Context) ([]ItemHandle, error)

	// ItemFormats lists the formats an item is available in.
	ItemFormats(ctx context.Context, item ItemHandle) ([]string, error)

	// ItemFormatIsSynthesized reports whether format is derived by the
	// platform rather than provided by the source.
	ItemFormatIsSynthesized(ctx context.Context, item ItemHandle, format string) (bool, error)

	// ItemSuggestedName returns a file name hint for the item, or nil.
	ItemSuggestedName(ctx context.Context, item ItemHandle) (*string, error)

	// ItemData returns the item's data in format. progress may be nil.
	ItemData(ctx context.Context, item ItemHandle, format string, progress Progress) (readerbridge.Value, error)

	// CanGetVirtualFile reports whether the item can be materialized as a
	// file in format.
	CanGetVirtualFile(ctx context.Context, item ItemHandle, format string) (bool, error)

	// VirtualFile materializes the item into targetFolder and returns the
	// resulting path.
	VirtualFile(ctx context.Context, item ItemHandle, format, targetFolder string, progress Progress) (string, error)
}

// ErrCanceled is returned by readers whose operation was interrupted
// through the progress cancellation handler.
var ErrCanceled = errors.Canceled("read")

// ItemNotFound is the error readers return for an unknown item handle.
func ItemNotFound(item ItemHandle) error {
	return errors.New(errors.PhaseReader, errors.KindNotFound).
		Detail("item %d not found", item).
		Value(item).
		Build()
}

// FormatUnsupported is the error readers return for a format an item
// does not provide.
func FormatUnsupported(item ItemHandle, format string) error {
	return errors.New(errors.PhaseReader, errors.KindUnsupported).
		Detail("item %d has no format %q", item, format).
		Value(format).
		Build()
}
