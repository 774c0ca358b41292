package fsreader

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/wippyai/reader-bridge/errors"
	"github.com/wippyai/reader-bridge/reader"
)

type fakeProgress struct {
	mu          sync.Mutex
	handler     func()
	cancellable []bool
	fractions   []float64
	cancelAfter int
}

func (p *fakeProgress) SetCancellationHandler(h func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = h
	p.cancellable = append(p.cancellable, h != nil)
}

func (p *fakeProgress) ReportProgress(f float64) {
	p.mu.Lock()
	p.fractions = append(p.fractions, f)
	fire := p.cancelAfter > 0 && len(p.fractions) == p.cancelAfter
	h := p.handler
	p.mu.Unlock()
	if fire && h != nil {
		h()
	}
}

func (p *fakeProgress) ReportIndeterminate() {}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestReader_Formats(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	txt := writeFile(t, src, "a.txt", "hello")
	sub := filepath.Join(src, "folder")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	r, err := New([]string{txt, sub})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	items, err := r.Items(ctx)
	if err != nil || len(items) != 2 {
		t.Fatalf("Items = %v, %v", items, err)
	}

	formats, err := r.ItemFormats(ctx, 1)
	if err != nil {
		t.Fatalf("ItemFormats: %v", err)
	}
	if len(formats) != 2 || formats[0] != FormatURIList || formats[1] != "text/plain" {
		t.Fatalf("file formats = %v", formats)
	}

	formats, err = r.ItemFormats(ctx, 2)
	if err != nil || len(formats) != 1 || formats[0] != FormatURIList {
		t.Fatalf("directory formats = %v, %v", formats, err)
	}

	synth, err := r.ItemFormatIsSynthesized(ctx, 1, "text/plain")
	if err != nil || !synth {
		t.Fatalf("content type synthesized = %v, %v", synth, err)
	}
	synth, err = r.ItemFormatIsSynthesized(ctx, 1, FormatURIList)
	if err != nil || synth {
		t.Fatalf("uri-list synthesized = %v, %v", synth, err)
	}

	name, err := r.ItemSuggestedName(ctx, 1)
	if err != nil || name == nil || *name != "a.txt" {
		t.Fatalf("suggested name = %v, %v", name, err)
	}
}

func TestReader_ItemData(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	txt := writeFile(t, src, "a.txt", "hello")

	r, _ := New([]string{txt})

	uri, err := r.ItemData(ctx, 1, FormatURIList, nil)
	if err != nil {
		t.Fatalf("ItemData(uri-list): %v", err)
	}
	if s, ok := uri.(string); !ok || !strings.HasPrefix(s, "file://") || !strings.HasSuffix(s, "/a.txt") {
		t.Fatalf("uri = %v", uri)
	}

	p := &fakeProgress{}
	data, err := r.ItemData(ctx, 1, "text/plain", p)
	if err != nil {
		t.Fatalf("ItemData(text/plain): %v", err)
	}
	if string(data.([]byte)) != "hello" {
		t.Fatalf("data = %q", data)
	}
	if len(p.fractions) != 1 || p.fractions[0] != 1 {
		t.Fatalf("fractions = %v", p.fractions)
	}

	if _, err := r.ItemData(ctx, 1, "image/png", nil); err == nil {
		t.Fatal("unsupported format should fail")
	}
	_, err = r.ItemData(ctx, 5, FormatURIList, nil)
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindNotFound {
		t.Fatalf("Expected not_found, got %v", err)
	}
}

func TestReader_VirtualFile(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	dst := t.TempDir()
	content := strings.Repeat("0123456789", 10)
	txt := writeFile(t, src, "data.txt", content)

	r, _ := New([]string{txt}, WithChunkSize(16))

	p := &fakeProgress{}
	path, err := r.VirtualFile(ctx, 1, "text/plain", dst, p)
	if err != nil {
		t.Fatalf("VirtualFile: %v", err)
	}
	if path != filepath.Join(dst, "data.txt") {
		t.Fatalf("path = %s", path)
	}
	got, err := os.ReadFile(path)
	if err != nil || string(got) != content {
		t.Fatalf("copied content mismatch: %v", err)
	}

	if len(p.fractions) != 7 || p.fractions[len(p.fractions)-1] != 1 {
		t.Fatalf("fractions = %v", p.fractions)
	}
	for i := 1; i < len(p.fractions); i++ {
		if p.fractions[i] < p.fractions[i-1] {
			t.Fatalf("progress went backwards: %v", p.fractions)
		}
	}
	if len(p.cancellable) != 2 || !p.cancellable[0] || p.cancellable[1] {
		t.Fatalf("cancellable = %v, want [true false]", p.cancellable)
	}

	second, err := r.VirtualFile(ctx, 1, "text/plain", dst, nil)
	if err != nil {
		t.Fatalf("second VirtualFile: %v", err)
	}
	if second != filepath.Join(dst, "data (1).txt") {
		t.Fatalf("collision name = %s", second)
	}
}

func TestReader_VirtualFileCanceled(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	dst := t.TempDir()
	txt := writeFile(t, src, "big.txt", strings.Repeat("x", 1024))

	r, _ := New([]string{txt}, WithChunkSize(8))

	p := &fakeProgress{cancelAfter: 2}
	_, err := r.VirtualFile(ctx, 1, "text/plain", dst, p)
	if !stderrors.Is(err, reader.ErrCanceled) {
		t.Fatalf("Expected ErrCanceled, got %v", err)
	}

	entries, _ := os.ReadDir(dst)
	if len(entries) != 0 {
		t.Fatalf("canceled copy left %d files behind", len(entries))
	}
}

func TestReader_CanGetVirtualFile(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	txt := writeFile(t, src, "a.txt", "x")

	r, _ := New([]string{txt, src})

	if ok, _ := r.CanGetVirtualFile(ctx, 1, "text/plain"); !ok {
		t.Fatal("regular file should be a virtual file")
	}
	if ok, _ := r.CanGetVirtualFile(ctx, 1, FormatURIList); ok {
		t.Fatal("uri-list is not a virtual file format")
	}
	if ok, _ := r.CanGetVirtualFile(ctx, 2, FormatURIList); ok {
		t.Fatal("directory is not a virtual file")
	}
}

func TestReader_Closed(t *testing.T) {
	r, _ := New([]string{"x"})
	r.Close()
	r.Close()

	_, err := r.Items(context.Background())
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindClosed {
		t.Fatalf("Expected closed error, got %v", err)
	}
}
