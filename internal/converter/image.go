package converter

import (
	"context"
	"fmt"
	"log"
	"os"

	"file-conversion-service/internal/codec"
	"file-conversion-service/internal/entity"
)

// Image re-encodes raster files through the codec provider. Targets the
// provider does not emit directly go through a two-step pipeline: encode
// to a lossless PNG intermediate first, then re-encode into the final
// target. The intermediate is removed on every path.
type Image struct {
	codec codec.Provider
}

func NewImage(p codec.Provider) *Image {
	return &Image{codec: p}
}

var directRasterTargets = map[string]struct{}{
	"png": {}, "jpg": {}, "jpeg": {}, "gif": {}, "bmp": {},
}

func (c *Image) Convert(ctx context.Context, inputPath, targetFormat string, opts entity.ConvertOptions) (Result, error) {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return Result{}, fmt.Errorf("read source: %w", err)
	}

	encOpts := codec.Options{Quality: opts.Quality, Width: opts.Width, Height: opts.Height}

	if _, direct := directRasterTargets[targetFormat]; !direct {
		data, err = c.throughIntermediate(ctx, inputPath, data)
		if err != nil {
			return Result{}, err
		}
	}

	out, err := c.codec.EncodeRaster(ctx, data, targetFormat, encOpts)
	if err != nil {
		return Result{}, err
	}
	return writeOutput(outputPathFor(inputPath, targetFormat), out)
}

// throughIntermediate stages the source through a lossless PNG on disk and
// hands the staged bytes back for the final encode.
func (c *Image) throughIntermediate(ctx context.Context, inputPath string, data []byte) ([]byte, error) {
	staged, err := c.codec.EncodeRaster(ctx, data, "png", codec.Options{})
	if err != nil {
		return nil, err
	}

	interPath := outputPathFor(inputPath, "intermediate.png")
	if err := os.WriteFile(interPath, staged, 0o644); err != nil {
		return nil, fmt.Errorf("write intermediate: %w", err)
	}
	defer func() {
		if err := os.Remove(interPath); err != nil && !os.IsNotExist(err) {
			log.Printf("[converter] cleanup intermediate %s: %v", interPath, err)
		}
	}()

	return os.ReadFile(interPath)
}
