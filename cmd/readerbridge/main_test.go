package main

import (
	"bytes"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestRunMain_Usage(t *testing.T) {
	var stderr bytes.Buffer
	if code := runMain(nil, &stderr); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "Usage: readerbridge") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestRunMain_BadFlag(t *testing.T) {
	var stderr bytes.Buffer
	if code := runMain([]string{"-no-such-flag"}, &stderr); code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}

func TestRunMain_BadLogLevel(t *testing.T) {
	var stderr bytes.Buffer
	if code := runMain([]string{"-log-level", "loud", t.TempDir()}, &stderr); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "Error:") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestPreview_TruncatesOnRuneBoundary(t *testing.T) {
	s := "a" + strings.Repeat("é", previewLimit)
	got := preview("text/plain", s)
	if !utf8.ValidString(got) {
		t.Fatalf("preview is not valid UTF-8: %q", got[len(got)-8:])
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatal("long preview should be marked as truncated")
	}
	if body := strings.TrimPrefix(got, "text/plain:\n\n"); len(body) > previewLimit+len("…") {
		t.Fatalf("preview body is %d bytes", len(body))
	}
}

func TestPreview_Short(t *testing.T) {
	if got := preview("text/plain", "hi"); got != "text/plain:\n\nhi" {
		t.Fatalf("preview = %q", got)
	}
	if got := preview("image/png", []byte{1, 2, 3}); got != "image/png: 3 bytes" {
		t.Fatalf("preview = %q", got)
	}
}
