package converter

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"file-conversion-service/internal/entity"
)

// Generic is the lossy fallback used when no category has a bespoke rule
// for the pair: the original content is passed through, wrapped in a
// minimally valid container of the target format with a metadata note.
type Generic struct{}

func NewGeneric() *Generic {
	return &Generic{}
}

func (c *Generic) Convert(ctx context.Context, inputPath, targetFormat string, opts entity.ConvertOptions) (Result, error) {
	raw, err := os.ReadFile(inputPath)
	if err != nil {
		return Result{}, fmt.Errorf("read source: %w", err)
	}

	src := sourceFormatOf(inputPath)
	note := fmt.Sprintf("Lossy fallback conversion of %s (%s, %d bytes).",
		filepath.Base(inputPath), src, len(raw))

	var body string
	if utf8.Valid(raw) {
		body = note + "\n\n" + normalizeText(string(raw))
	} else {
		body = note + "\n\nOriginal binary content, base64 encoded:\n" +
			base64.StdEncoding.EncodeToString(raw)
	}

	data, err := renderTextDocument(body, targetFormat, src+" fallback")
	if err != nil {
		return Result{}, err
	}
	return writeOutput(outputPathFor(inputPath, targetFormat), data)
}
