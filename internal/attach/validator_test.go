// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attach

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jeranaias/parley-tui/internal/model"
)

// writeFile creates a test file under dir and returns its path.
func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestIngestTextFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", []byte("hello world"))

	atts, err := NewValidator().IngestBatch([]string{path})
	if err != nil {
		t.Fatalf("IngestBatch() error: %v", err)
	}
	if len(atts) != 1 {
		t.Fatalf("got %d attachments, expected 1", len(atts))
	}

	att := atts[0]
	if att.Name != "notes.txt" || att.MIME != "text/plain" {
		t.Errorf("attachment = %q %q", att.Name, att.MIME)
	}
	if att.Text != "hello world" || len(att.Data) != 0 {
		t.Errorf("text content should land in Text, not Data")
	}
	if att.Size != int64(len("hello world")) {
		t.Errorf("Size = %d", att.Size)
	}
	if !strings.HasPrefix(att.ID, "att_") {
		t.Errorf("ID = %q, expected att_ prefix", att.ID)
	}
}

func TestIngestBinaryFile(t *testing.T) {
	dir := t.TempDir()
	// PNG magic bytes so content sniffing resolves the type.
	png := append([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 64)...)
	path := writeFile(t, dir, "chart.png", png)

	atts, err := NewValidator().IngestBatch([]string{path})
	if err != nil {
		t.Fatalf("IngestBatch() error: %v", err)
	}
	att := atts[0]
	if att.MIME != "image/png" {
		t.Errorf("MIME = %q, expected image/png", att.MIME)
	}
	if att.Text != "" || len(att.Data) != len(png) {
		t.Errorf("binary content should land in Data, not Text")
	}
}

func TestRejectOversizedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "big.txt", []byte(strings.Repeat("x", 100)))

	_, err := NewValidator().WithMaxBytes(50).IngestBatch([]string{path})
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("error = %v, expected ErrTooLarge", err)
	}

	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Name != "big.txt" {
		t.Errorf("error should name the offending file, got %v", err)
	}
}

func TestRejectDisallowedType(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tool.exe", []byte{0x4D, 0x5A, 0x90, 0x00})

	_, err := NewValidator().IngestBatch([]string{path})
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, expected ErrUnsupportedType", err)
	}
}

func TestRejectEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "void.txt", nil)

	_, err := NewValidator().IngestBatch([]string{path})
	if !errors.Is(err, ErrEmptyFile) {
		t.Fatalf("error = %v, expected ErrEmptyFile", err)
	}
}

// TestBatchFailsAtomically verifies one invalid file rejects the whole
// batch: no attachments survive, valid files included.
func TestBatchFailsAtomically(t *testing.T) {
	dir := t.TempDir()
	good1 := writeFile(t, dir, "a.txt", []byte("fine"))
	bad := writeFile(t, dir, "bad.exe", []byte{0x4D, 0x5A})
	good2 := writeFile(t, dir, "b.txt", []byte("also fine"))

	atts, err := NewValidator().IngestBatch([]string{good1, bad, good2})
	if err == nil {
		t.Fatal("batch with an invalid file must fail")
	}
	if atts != nil {
		t.Errorf("failed batch returned %d attachments, expected none", len(atts))
	}
}

func TestValidateBatchPolicy(t *testing.T) {
	v := NewValidator().WithMaxBytes(1000)

	records := []model.Attachment{
		{Name: "ok.txt", MIME: "text/plain", Size: 10},
		{Name: "big.txt", MIME: "text/plain", Size: 2000},
	}
	if err := v.ValidateBatch(records); !errors.Is(err, ErrTooLarge) {
		t.Errorf("error = %v, expected ErrTooLarge", err)
	}

	if err := v.ValidateBatch(records[:1]); err != nil {
		t.Errorf("valid batch rejected: %v", err)
	}
}

func TestCustomAllowList(t *testing.T) {
	v := NewValidator().WithAllowedTypes([]string{"application/pdf"})

	if err := v.check("doc.pdf", "application/pdf", 10); err != nil {
		t.Errorf("allowed type rejected: %v", err)
	}
	if err := v.check("notes.txt", "text/plain", 10); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("error = %v, expected ErrUnsupportedType", err)
	}
}

func TestNormalizeMIME(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"text/plain; charset=utf-8", "text/plain"},
		{"TEXT/HTML", "text/html"},
		{" application/json ", "application/json"},
	}
	for _, tc := range tests {
		if got := normalizeMIME(tc.in); got != tc.want {
			t.Errorf("normalizeMIME(%q) = %q, expected %q", tc.in, got, tc.want)
		}
	}
}

func TestPreviewTruncation(t *testing.T) {
	long := strings.Repeat("é", previewRunes+50)
	got := previewOf(long)
	if []rune(got)[0] != 'é' {
		t.Fatal("preview mangled multibyte runes")
	}
	if len([]rune(got)) != previewRunes+3 {
		t.Errorf("preview length = %d runes", len([]rune(got)))
	}
}
