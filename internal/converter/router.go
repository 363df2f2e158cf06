package converter

import (
	"errors"

	"file-conversion-service/internal/codec"
	"file-conversion-service/internal/format"
)

// ErrUnsupportedConversion is returned synchronously at routing time; an
// unsupported pair never creates a job and never reaches the scheduler.
var ErrUnsupportedConversion = errors.New("unsupported conversion pair")

type categoryPair struct {
	src, dst format.Category
}

// Router picks the strategy for a pair. Dispatch is keyed by the category
// pair, not by concatenated format strings.
type Router struct {
	table   map[categoryPair]Strategy
	generic Strategy
}

func NewRouter(p codec.Provider) *Router {
	document := NewDocument(p)
	image := NewImage(p)
	spreadsheet := NewSpreadsheet(p)
	presentation := NewPresentation(p)
	ebook := NewEbook(p)

	doc := format.CategoryDocument
	img := format.CategoryImage
	sheet := format.CategorySpreadsheet
	pres := format.CategoryPresentation
	book := format.CategoryEbook

	return &Router{
		table: map[categoryPair]Strategy{
			{doc, doc}:     document,
			{img, img}:     image,
			{sheet, sheet}: spreadsheet,
			{pres, pres}:   presentation,
			{book, book}:   ebook,

			// category converters with bespoke handling of the universal
			// lossy targets (txt/html/pdf live in the document category)
			{sheet, doc}: spreadsheet,
			{pres, doc}:  presentation,
			{book, doc}:  ebook,
		},
		generic: NewGeneric(),
	}
}

// Route returns the strategy for source->target or fails with
// ErrUnsupportedConversion before any job exists.
func (r *Router) Route(source, target string) (Strategy, error) {
	src := format.Normalize(source)
	dst := format.Normalize(target)

	if !format.IsSupported(src, dst) {
		return nil, ErrUnsupportedConversion
	}

	srcCat, _ := format.CategoryOf(src)
	dstCat, _ := format.CategoryOf(dst)

	if s, ok := r.table[categoryPair{srcCat, dstCat}]; ok {
		return s, nil
	}
	if format.IsFallbackTarget(dst) {
		return r.generic, nil
	}
	return nil, ErrUnsupportedConversion
}
