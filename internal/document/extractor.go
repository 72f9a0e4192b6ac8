package document

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/neuralchat/ragserver/internal/apperr"
	"github.com/neuralchat/ragserver/pkg/textextract"
)

type TextExtractor interface {
	Extract(ctx context.Context, data []byte, filename string) (*textextract.ExtractedText, error)
	SupportedTypes() []string
}

type extractor struct{}

func NewTextExtractor() TextExtractor {
	return &extractor{}
}

// Extract returns the text of a supported upload. Failures come back as
// apperr values: unsupported extensions as UnsupportedFormat, unreadable or
// empty content as Validation.
func (e *extractor) Extract(ctx context.Context, data []byte, filename string) (*textextract.ExtractedText, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := CheckFilename(filename); err != nil {
		return nil, err
	}

	result, err := textextract.Extract(data, filename)
	switch {
	case errors.Is(err, textextract.ErrUndecodable):
		return nil, &apperr.Error{Kind: apperr.KindValidation, Detail: "file '" + filename + "' is not decodable text", Err: err}
	case err != nil:
		return nil, &apperr.Error{Kind: apperr.KindValidation, Detail: "could not extract text from '" + filename + "'", Err: err}
	}

	if strings.TrimSpace(result.Content) == "" {
		return nil, apperr.Validation("no extractable text in '%s'", filename)
	}
	return result, nil
}

func (e *extractor) SupportedTypes() []string {
	return textextract.SupportedTypes()
}

// CheckFilename rejects names whose extension cannot be ingested, before
// any bytes are read.
func CheckFilename(filename string) error {
	if strings.TrimSpace(filename) == "" {
		return apperr.Validation("no file name provided")
	}
	if !textextract.IsSupported(filename) {
		ext := strings.ToLower(filepath.Ext(filename))
		if ext == "" {
			ext = "(none)"
		}
		return apperr.UnsupportedFormat("Unsupported file type '%s'. Allowed: %s",
			ext, strings.Join(textextract.SupportedTypes(), ", "))
	}
	return nil
}
