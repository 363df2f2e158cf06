// Package codec defines the capability surface the conversion engine needs
// from an external codec provider. The engine never depends on a specific
// vendor library, only on this interface.
package codec

import (
	"context"
	"errors"
	"fmt"
)

// Table is the in-memory tabular model: rows of cells. Row zero is treated
// as the header row by structural exporters.
type Table [][]string

// Options carries the optional encode parameters accepted by raster
// operations. Zero values mean "provider default".
type Options struct {
	Quality int
	Width   int
	Height  int
}

type Provider interface {
	// ExtractText pulls the text content out of a binary document.
	ExtractText(ctx context.Context, path string) (string, error)

	// EncodeRaster re-encodes image bytes into the requested format.
	EncodeRaster(ctx context.Context, data []byte, format string, opts Options) ([]byte, error)

	// ParseTabular materializes a spreadsheet file into the tabular model.
	ParseTabular(ctx context.Context, path string) (Table, error)

	// RenderTabular serializes the tabular model into a tabular format.
	RenderTabular(ctx context.Context, table Table, format string) ([]byte, error)
}

// Error is a codec failure. Transient failures (network, provider 5xx) are
// eligible for retry; permanent ones are not.
type Error struct {
	Op        string
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("codec %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether err is a codec error worth retrying.
func IsTransient(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Transient
}
