package converter

import (
	"context"
	"fmt"
	"os"
	"strings"

	"file-conversion-service/internal/codec"
	"file-conversion-service/internal/entity"
)

// Document converts text-bearing formats. Sources are normalized to plain
// text first, then re-rendered into the target container. Binary sources
// go through the codec provider's extraction capability; when extraction
// is unavailable the converter degrades to a clearly labelled placeholder
// document instead of failing the job (fail-soft).
type Document struct {
	codec codec.Provider
}

func NewDocument(p codec.Provider) *Document {
	return &Document{codec: p}
}

// Formats the converter can read without codec help.
var textLikeSources = map[string]struct{}{
	"txt": {}, "md": {}, "html": {},
}

func isTextLike(formatToken string) bool {
	_, ok := textLikeSources[formatToken]
	return ok
}

func (d *Document) Convert(ctx context.Context, inputPath, targetFormat string, opts entity.ConvertOptions) (Result, error) {
	src := sourceFormatOf(inputPath)

	text, err := d.loadText(ctx, inputPath, src)
	if err != nil {
		return Result{}, err
	}

	data, err := renderTextDocument(text, targetFormat, src+" conversion")
	if err != nil {
		return Result{}, err
	}
	return writeOutput(outputPathFor(inputPath, targetFormat), data)
}

func (d *Document) loadText(ctx context.Context, inputPath, src string) (string, error) {
	if isTextLike(src) {
		raw, err := os.ReadFile(inputPath)
		if err != nil {
			return "", fmt.Errorf("read source: %w", err)
		}
		return normalizeText(string(raw)), nil
	}

	text, err := d.codec.ExtractText(ctx, inputPath)
	if err != nil {
		// fail-soft: emit a placeholder naming the source rather than
		// failing the whole job
		return placeholderText(inputPath, src, err), nil
	}
	return normalizeText(text), nil
}

func normalizeText(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

func placeholderText(inputPath, src string, cause error) string {
	return fmt.Sprintf(
		"Placeholder document.\n\nThe source file (%s format) could not be read by the text extraction service.\nIts content has not been preserved in this conversion.\n\nReason: %v\n",
		src, cause,
	)
}
