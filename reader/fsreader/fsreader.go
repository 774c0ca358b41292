// Package fsreader exposes a set of filesystem paths, such as files dropped
// onto a window, as a data reader. Regular files can be materialized into a
// target folder as virtual files with progress and cancellation.
package fsreader

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	readerbridge "github.com/wippyai/reader-bridge"
	"github.com/wippyai/reader-bridge/errors"
	"github.com/wippyai/reader-bridge/reader"
)

// FormatURIList is offered for every item: the item's file:// URI.
const FormatURIList = "text/uri-list"

// DefaultChunkSize is the copy buffer used for virtual files (64 KB).
const DefaultChunkSize = 64 * 1024

const fallbackMIME = "application/octet-stream"

// Reader serves a fixed list of paths. Item handles follow path order,
// starting at 1.
type Reader struct {
	logger    *zap.Logger
	paths     []string
	chunkSize int
	closed    atomic.Bool
}

// Option configures a Reader.
type Option func(*Reader)

// WithChunkSize sets the virtual file copy buffer size.
func WithChunkSize(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.chunkSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Reader) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a reader over paths. Relative paths are resolved against
// the working directory.
func New(paths []string, opts ...Option) (*Reader, error) {
	r := &Reader{
		logger:    zap.NewNop(),
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseReader, errors.KindInvalidInput, err, "resolve "+p)
		}
		r.paths = append(r.paths, abs)
	}
	return r, nil
}

// Close marks the reader released. Later calls fail.
func (r *Reader) Close() error {
	if r.closed.CompareAndSwap(false, true) {
		r.logger.Debug("reader closed", zap.Int("items", len(r.paths)))
	}
	return nil
}

func (r *Reader) Items(_ context.Context) ([]reader.ItemHandle, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	handles := make([]reader.ItemHandle, len(r.paths))
	for i := range r.paths {
		handles[i] = reader.ItemHandle(i + 1)
	}
	return handles, nil
}

func (r *Reader) ItemFormats(_ context.Context, item reader.ItemHandle) ([]string, error) {
	path, info, err := r.stat(item)
	if err != nil {
		return nil, err
	}
	formats := []string{FormatURIList}
	if info.Mode().IsRegular() {
		formats = append(formats, contentType(path))
	}
	return formats, nil
}

// ItemFormatIsSynthesized reports true for the content type, which is
// guessed from the file extension rather than supplied by the source.
func (r *Reader) ItemFormatIsSynthesized(ctx context.Context, item reader.ItemHandle, format string) (bool, error) {
	formats, err := r.ItemFormats(ctx, item)
	if err != nil {
		return false, err
	}
	for _, f := range formats {
		if f == format {
			return format != FormatURIList, nil
		}
	}
	return false, reader.FormatUnsupported(item, format)
}

func (r *Reader) ItemSuggestedName(_ context.Context, item reader.ItemHandle) (*string, error) {
	path, err := r.path(item)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(path)
	return &name, nil
}

func (r *Reader) ItemData(_ context.Context, item reader.ItemHandle, format string, progress reader.Progress) (readerbridge.Value, error) {
	path, info, err := r.stat(item)
	if err != nil {
		return nil, err
	}

	switch {
	case format == FormatURIList:
		return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String(), nil
	case info.Mode().IsRegular() && format == contentType(path):
		if progress != nil {
			progress.ReportIndeterminate()
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseReader, errors.KindIO, err, "read item")
		}
		if progress != nil {
			progress.ReportProgress(1)
		}
		return data, nil
	default:
		return nil, reader.FormatUnsupported(item, format)
	}
}

func (r *Reader) CanGetVirtualFile(_ context.Context, item reader.ItemHandle, format string) (bool, error) {
	path, info, err := r.stat(item)
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular() && format == contentType(path), nil
}

// VirtualFile copies the item into targetFolder. The copy can be canceled
// through progress until the last chunk is written; a canceled copy leaves
// no partial file behind.
func (r *Reader) VirtualFile(ctx context.Context, item reader.ItemHandle, format, targetFolder string, progress reader.Progress) (string, error) {
	ok, err := r.CanGetVirtualFile(ctx, item, format)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", reader.FormatUnsupported(item, format)
	}
	src := r.paths[item-1]

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if progress != nil {
		progress.SetCancellationHandler(cancel)
		defer progress.SetCancellationHandler(nil)
	}

	dst, out, err := createUnique(targetFolder, filepath.Base(src))
	if err != nil {
		return "", errors.Wrap(errors.PhaseReader, errors.KindIO, err, "create virtual file")
	}

	logger := r.logger.With(zap.Int64("item", item), zap.String("target", dst))
	logger.Debug("virtual file copy started")

	if err := r.copyFile(ctx, src, out, progress); err != nil {
		out.Close()
		os.Remove(dst)
		if ctx.Err() != nil {
			logger.Debug("virtual file copy canceled")
			return "", reader.ErrCanceled
		}
		return "", errors.Wrap(errors.PhaseReader, errors.KindIO, err, "copy virtual file")
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", errors.Wrap(errors.PhaseReader, errors.KindIO, err, "close virtual file")
	}

	logger.Debug("virtual file copy finished")
	return dst, nil
}

func (r *Reader) copyFile(ctx context.Context, src string, out io.Writer, progress reader.Progress) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	total := info.Size()

	buf := make([]byte, r.chunkSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, rerr := in.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return err
			}
			written += int64(n)
			if progress != nil && total > 0 {
				progress.ReportProgress(float64(written) / float64(total))
			}
		}
		if stderrors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return rerr
		}
	}
	if progress != nil && total == 0 {
		progress.ReportProgress(1)
	}
	return ctx.Err()
}

func (r *Reader) checkOpen() error {
	if r.closed.Load() {
		return errors.Closed("fsreader")
	}
	return nil
}

func (r *Reader) path(item reader.ItemHandle) (string, error) {
	if err := r.checkOpen(); err != nil {
		return "", err
	}
	if item < 1 || int(item) > len(r.paths) {
		return "", reader.ItemNotFound(item)
	}
	return r.paths[item-1], nil
}

func (r *Reader) stat(item reader.ItemHandle) (string, os.FileInfo, error) {
	path, err := r.path(item)
	if err != nil {
		return "", nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", nil, errors.Wrap(errors.PhaseReader, errors.KindIO, err, "stat item")
	}
	return path, info, nil
}

// contentType guesses the MIME type from the extension, without parameters.
func contentType(path string) string {
	t := mime.TypeByExtension(filepath.Ext(path))
	if t == "" {
		return fallbackMIME
	}
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}

// createUnique creates name in dir, adding " (n)" before the extension
// while the name is taken.
func createUnique(dir, name string) (string, *os.File, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 0; ; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}
		path := filepath.Join(dir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return path, f, nil
		}
		if !os.IsExist(err) {
			return "", nil, err
		}
	}
}

var _ reader.Reader = (*Reader)(nil)
