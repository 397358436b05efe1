// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attach

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/jeranaias/parley-tui/internal/model"
)

// DefaultMaxBytes is the per-file size ceiling (10MB).
const DefaultMaxBytes = 10 * 1024 * 1024

// previewRunes caps the inline preview of text attachments.
const previewRunes = 200

// Validation failure categories.
var (
	// ErrTooLarge indicates a file over the size ceiling.
	ErrTooLarge = errors.New("file too large")

	// ErrUnsupportedType indicates a MIME type outside the allow-list.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrEmptyFile indicates a zero-byte file.
	ErrEmptyFile = errors.New("empty file")
)

// ValidationError wraps a failure with the file it belongs to.
type ValidationError struct {
	Name string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("attachment %s: %v", e.Name, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// defaultAllowedTypes is the MIME allow-list. Text-bearing and common
// document/image types only; executables and archives stay out.
var defaultAllowedTypes = map[string]bool{
	"text/plain":       true,
	"text/markdown":    true,
	"text/csv":         true,
	"text/html":        true,
	"application/json": true,
	"application/xml":  true,
	"application/pdf":  true,
	"image/png":        true,
	"image/jpeg":       true,
	"image/gif":        true,
	"image/webp":       true,
}

// =============================================================================
// VALIDATOR
// =============================================================================

// Validator enforces the attachment intake policy.
type Validator struct {
	maxBytes int64
	allowed  map[string]bool
}

// NewValidator creates a validator with the default ceiling and allow-list.
func NewValidator() *Validator {
	return &Validator{
		maxBytes: DefaultMaxBytes,
		allowed:  defaultAllowedTypes,
	}
}

// WithMaxBytes overrides the per-file size ceiling.
func (v *Validator) WithMaxBytes(n int64) *Validator {
	if n > 0 {
		v.maxBytes = n
	}
	return v
}

// WithAllowedTypes replaces the MIME allow-list.
func (v *Validator) WithAllowedTypes(types []string) *Validator {
	allowed := make(map[string]bool, len(types))
	for _, t := range types {
		allowed[strings.ToLower(strings.TrimSpace(t))] = true
	}
	v.allowed = allowed
	return v
}

// IngestBatch reads and validates every path. The batch fails atomically:
// the first invalid file returns a ValidationError and no attachments.
func (v *Validator) IngestBatch(paths []string) ([]model.Attachment, error) {
	attachments := make([]model.Attachment, 0, len(paths))
	for _, path := range paths {
		att, err := v.ingest(path)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, att)
	}
	return attachments, nil
}

// ValidateBatch checks already-loaded records against the same policy,
// with the same all-or-nothing contract.
func (v *Validator) ValidateBatch(attachments []model.Attachment) error {
	for _, att := range attachments {
		if err := v.check(att.Name, att.MIME, att.Size); err != nil {
			return err
		}
	}
	return nil
}

// ingest loads one file into an attachment record.
func (v *Validator) ingest(path string) (model.Attachment, error) {
	name := filepath.Base(path)

	info, err := os.Stat(path)
	if err != nil {
		return model.Attachment{}, &ValidationError{Name: name, Err: err}
	}
	// Size check before the read so an oversized file never enters memory.
	if info.Size() > v.maxBytes {
		return model.Attachment{}, &ValidationError{Name: name, Err: fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, info.Size(), v.maxBytes)}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return model.Attachment{}, &ValidationError{Name: name, Err: err}
	}

	mimeType := detectMIME(name, data)
	if err := v.check(name, mimeType, int64(len(data))); err != nil {
		return model.Attachment{}, err
	}

	att := model.NewAttachment(name, mimeType, int64(len(data)))
	if isTextMIME(mimeType) && utf8.Valid(data) {
		att.Text = string(data)
		att.Preview = previewOf(att.Text)
	} else {
		att.Data = data
	}
	return att, nil
}

// check applies the policy to one record.
func (v *Validator) check(name, mimeType string, size int64) error {
	if size == 0 {
		return &ValidationError{Name: name, Err: ErrEmptyFile}
	}
	if size > v.maxBytes {
		return &ValidationError{Name: name, Err: fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, size, v.maxBytes)}
	}
	if !v.allowed[normalizeMIME(mimeType)] {
		return &ValidationError{Name: name, Err: fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)}
	}
	return nil
}

// =============================================================================
// MIME DETECTION
// =============================================================================

// detectMIME resolves a file's MIME type from its extension first, falling
// back to content sniffing. Extension wins: sniffing reports text/plain for
// every text-bearing format.
func detectMIME(name string, data []byte) string {
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); byExt != "" {
		return normalizeMIME(byExt)
	}
	return normalizeMIME(http.DetectContentType(data))
}

// isTextMIME reports whether content of this type is stored as text
// rather than raw bytes.
func isTextMIME(mimeType string) bool {
	switch {
	case strings.HasPrefix(mimeType, "text/"):
		return true
	case mimeType == "application/json", mimeType == "application/xml":
		return true
	}
	return false
}

// normalizeMIME strips parameters like "; charset=utf-8" and lowercases.
func normalizeMIME(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

// previewOf truncates text to the preview budget at a rune boundary.
func previewOf(text string) string {
	runes := []rune(text)
	if len(runes) <= previewRunes {
		return text
	}
	return string(runes[:previewRunes]) + "..."
}
