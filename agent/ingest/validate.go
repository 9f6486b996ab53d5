// Package ingest turns uploaded policy PDFs into indexed chunks.
package ingest

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	contractx "github.com/tanpawarit/PolicyPilot/agent/contract"
)

var pdfMagic = []byte("%PDF")

// ValidationError is an upload rejection. Detail is safe to show to clients.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string { return e.Detail }

func (e *ValidationError) Is(target error) bool { return target == contractx.ErrValidation }

// Validate checks an upload before anything touches the disk.
func Validate(filename, category string, content []byte) (contractx.Category, error) {
	cat, ok := contractx.ParseCategory(category)
	if !ok {
		return "", &ValidationError{Detail: fmt.Sprintf("Invalid category. Allowed: %v", contractx.CategoryNames())}
	}
	name := strings.TrimSpace(filename)
	if name == "" || !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		return "", &ValidationError{Detail: "A PDF file is required"}
	}
	if !bytes.HasPrefix(content, pdfMagic) {
		return "", &ValidationError{Detail: "File must be a PDF"}
	}
	return cat, nil
}

// safeBase strips any directory components a client put in the file name.
func safeBase(filename string) string {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(filename), `\`, "/"))
	if base == "." || base == "/" || base == "" {
		return "upload.pdf"
	}
	return base
}
