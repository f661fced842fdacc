// Package extract turns uploaded files into plain text for chunking.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"docquery/internal/domain"
)

// Supported reports whether the filename's extension is an accepted
// upload type.
func Supported(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf", ".txt", ".md":
		return true
	}
	return false
}

// Text reads r fully and extracts plain text according to the
// filename's extension. A document with no extractable text yields an
// empty string, not an error; the caller decides whether that is
// acceptable.
func Text(filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return pdfText(r)
	case ".txt", ".md":
		b, err := io.ReadAll(r)
		if err != nil {
			return "", fmt.Errorf("read text file failed: %w", err)
		}
		if !utf8.Valid(b) {
			return "", fmt.Errorf("%w: file is not valid UTF-8", domain.ErrInvalidInput)
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("%w: unsupported file type %q", domain.ErrInvalidInput, ext)
	}
}

func pdfText(r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read pdf failed: %w", err)
	}
	if len(b) == 0 {
		return "", nil
	}
	pdfReader, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return "", fmt.Errorf("%w: parse pdf: %v", domain.ErrInvalidInput, err)
	}
	plainReader, err := pdfReader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: extract pdf text: %v", domain.ErrInvalidInput, err)
	}
	out, err := io.ReadAll(plainReader)
	if err != nil {
		return "", fmt.Errorf("read extracted pdf text failed: %w", err)
	}
	return string(out), nil
}
