// Package converter holds the per-category conversion strategies and the
// router that picks one for a (source, target) pair.
package converter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"file-conversion-service/internal/entity"
)

// Result describes the single output artifact a strategy produced.
type Result struct {
	OutputPath      string
	OutputSizeBytes int64
}

// Strategy is one category's conversion policy. Every implementation
// writes exactly one output file and removes any intermediates it created,
// on success and on failure.
type Strategy interface {
	Convert(ctx context.Context, inputPath, targetFormat string, opts entity.ConvertOptions) (Result, error)
}

// Input files are spooled as <dir>/<jobID>.in.<ext>; the artifact lands
// next to them as <dir>/<jobID>.<target>. Keeping names derived from the
// job id keeps every job's files collision-free.
func outputPathFor(inputPath, target string) string {
	dir, name := filepath.Split(inputPath)
	if idx := strings.Index(name, ".in."); idx >= 0 {
		name = name[:idx]
	} else {
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	return filepath.Join(dir, name+"."+target)
}

// sourceFormatOf derives the source format token from the spooled input
// file name.
func sourceFormatOf(inputPath string) string {
	return strings.TrimPrefix(filepath.Ext(inputPath), ".")
}

func writeOutput(path string, data []byte) (Result, error) {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Result{}, fmt.Errorf("write output: %w", err)
	}
	return Result{OutputPath: path, OutputSizeBytes: int64(len(data))}, nil
}
