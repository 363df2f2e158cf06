package converter

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"path/filepath"
	"strings"

	"file-conversion-service/internal/codec"
	"file-conversion-service/internal/entity"
)

// Outline handles presentations and ebooks. There is no slide or chapter
// reconstruction: text-like targets get direct text extraction, everything
// else is synthesized structurally as a single section noting the original
// format.
type Outline struct {
	codec codec.Provider
	kind  string // "presentation" or "ebook"
}

func NewPresentation(p codec.Provider) *Outline {
	return &Outline{codec: p, kind: "presentation"}
}

func NewEbook(p codec.Provider) *Outline {
	return &Outline{codec: p, kind: "ebook"}
}

func (c *Outline) Convert(ctx context.Context, inputPath, targetFormat string, opts entity.ConvertOptions) (Result, error) {
	src := sourceFormatOf(inputPath)

	switch targetFormat {
	case "txt", "html", "pdf", "md":
		text, err := c.codec.ExtractText(ctx, inputPath)
		if err != nil {
			return Result{}, err
		}
		data, err := renderTextDocument(normalizeText(text), targetFormat, src+" conversion")
		if err != nil {
			return Result{}, err
		}
		return writeOutput(outputPathFor(inputPath, targetFormat), data)
	default:
		data := c.synthesize(filepath.Base(inputPath), src, targetFormat)
		return writeOutput(outputPathFor(inputPath, targetFormat), data)
	}
}

// synthesize emits a one-section structural outline naming the source.
func (c *Outline) synthesize(sourceName, src, target string) []byte {
	section := "section"
	if c.kind == "ebook" {
		section = "chapter"
	}

	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	fmt.Fprintf(&b, "<%s source=%q source-format=%q target-format=%q>\n",
		c.kind, html.EscapeString(sourceName), src, target)
	fmt.Fprintf(&b, "  <%s index=\"1\">\n", section)
	fmt.Fprintf(&b, "    <title>Converted from %s</title>\n", strings.ToUpper(src))
	fmt.Fprintf(&b, "    <note>Structural conversion only; original %s content was not re-authored.</note>\n", c.kind)
	fmt.Fprintf(&b, "  </%s>\n", section)
	fmt.Fprintf(&b, "</%s>\n", c.kind)
	return b.Bytes()
}
