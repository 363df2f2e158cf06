// Package format holds the static capability table: which formats exist,
// which category each belongs to, and which conversion pairs are supported.
// The table is built once at init and is read-only afterwards.
package format

import (
	"sort"
	"strings"
)

type Category string

const (
	CategoryDocument     Category = "document"
	CategoryImage        Category = "image"
	CategorySpreadsheet  Category = "spreadsheet"
	CategoryPresentation Category = "presentation"
	CategoryEbook        Category = "ebook"
)

// Categories in a stable order for listing.
var Categories = []Category{
	CategoryDocument,
	CategoryImage,
	CategorySpreadsheet,
	CategoryPresentation,
	CategoryEbook,
}

var extensions = map[Category][]string{
	CategoryDocument:     {"txt", "md", "html", "pdf", "rtf", "doc", "docx", "odt"},
	CategoryImage:        {"jpg", "jpeg", "png", "gif", "bmp", "webp", "tiff"},
	CategorySpreadsheet:  {"xlsx", "xls", "csv", "ods", "tsv", "json"},
	CategoryPresentation: {"pptx", "ppt", "odp"},
	CategoryEbook:        {"epub", "mobi", "fb2"},
}

// Universal lossy fallback targets: any known format may degrade into one
// of these even when the categories differ.
var fallbackTargets = map[string]struct{}{
	"txt":  {},
	"html": {},
	"pdf":  {},
}

var categoryByFormat map[string]Category

func init() {
	categoryByFormat = make(map[string]Category)
	for cat, exts := range extensions {
		for _, ext := range exts {
			categoryByFormat[ext] = cat
		}
	}
}

// Normalize lower-cases a format token and strips a leading dot, so both
// "PDF" and ".pdf" resolve to the same table entry. Case is never a reason
// to reject a token.
func Normalize(token string) string {
	token = strings.ToLower(strings.TrimSpace(token))
	return strings.TrimPrefix(token, ".")
}

// CategoryOf reports the category a format belongs to.
func CategoryOf(formatToken string) (Category, bool) {
	cat, ok := categoryByFormat[Normalize(formatToken)]
	return cat, ok
}

// IsFallbackTarget reports whether a format is one of the universal lossy
// degradation targets (txt, html, pdf).
func IsFallbackTarget(formatToken string) bool {
	_, ok := fallbackTargets[Normalize(formatToken)]
	return ok
}

// IsSupported answers whether a source->target conversion pair is in the
// capability matrix: same-category pairs are supported, and any known
// source may fall back to txt/html/pdf. Pure lookup, no side effects.
func IsSupported(source, target string) bool {
	src := Normalize(source)
	dst := Normalize(target)
	if src == "" || dst == "" {
		return false
	}

	srcCat, ok := categoryByFormat[src]
	if !ok {
		return false
	}
	dstCat, ok := categoryByFormat[dst]
	if !ok {
		return false
	}

	if srcCat == dstCat {
		return true
	}
	return IsFallbackTarget(dst)
}

// ListFormats returns the known formats grouped by category. The returned
// slices are copies; callers may not mutate registry state.
func ListFormats() map[Category][]string {
	out := make(map[Category][]string, len(extensions))
	for cat, exts := range extensions {
		formats := make([]string, len(exts))
		copy(formats, exts)
		sort.Strings(formats)
		out[cat] = formats
	}
	return out
}
