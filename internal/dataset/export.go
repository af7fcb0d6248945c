package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go/compress"
	"github.com/rs/zerolog"

	"nse-history/internal/model"
)

const (
	artifactExt  = ".parquet"
	artifactDate = "20060102"
)

// ExportOptions parameterise the Exporter.
type ExportOptions struct {
	Dir         string
	Prefix      string
	Compression string
	Dedupe      bool
	// Now names the artifact; defaults to time.Now.
	Now func() time.Time
}

// Exporter merges results into one dated parquet artifact and removes older ones.
type Exporter struct {
	opts   ExportOptions
	logger zerolog.Logger
}

// NewExporter constructs an Exporter.
func NewExporter(opts ExportOptions, logger zerolog.Logger) *Exporter {
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if opts.Prefix == "" {
		opts.Prefix = "nse_data"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Exporter{opts: opts, logger: logger.With().Str("component", "dataset").Logger()}
}

// FileName is the artifact name for the calendar day of t.
func (e *Exporter) FileName(t time.Time) string {
	return ArtifactName(e.opts.Prefix, t)
}

// ArtifactName is <prefix>_<YYYYMMDD>.parquet.
func ArtifactName(prefix string, t time.Time) string {
	return prefix + "_" + t.Format(artifactDate) + artifactExt
}

// Export merges the successful results, writes the artifact and prunes older artifacts.
// It returns nil without touching the filesystem when no result succeeded.
func (e *Exporter) Export(results []model.SymbolResult) (*model.OutputArtifact, error) {
	ds, ok := Merge(results, MergeOptions{Dedupe: e.opts.Dedupe})
	if !ok {
		e.logger.Warn().Msg("no successful results; nothing to export")
		return nil, nil
	}

	codec, err := Codec(e.opts.Compression)
	if err != nil {
		return nil, err
	}

	now := e.opts.Now()
	path := filepath.Join(e.opts.Dir, e.FileName(now))
	metadata := map[string]string{
		"generated_at": now.UTC().Format(time.RFC3339),
		"symbol_count": strconv.Itoa(ds.SymbolCount()),
	}

	size, err := writeAtomic(path, ds, codec, metadata)
	if err != nil {
		return nil, err
	}

	artifact := &model.OutputArtifact{
		Path:        path,
		RowCount:    ds.Len(),
		SymbolCount: ds.SymbolCount(),
		ByteSize:    size,
		Columns:     ds.Columns(),
		Duplicates:  ds.Duplicates,
		CreatedAt:   now,
	}
	e.logger.Info().Str("path", path).Int("rows", artifact.RowCount).
		Int("symbols", artifact.SymbolCount).Int64("bytes", size).
		Int("duplicates", ds.Duplicates).Msg("artifact written")

	removed, err := Prune(e.opts.Dir, e.opts.Prefix, path)
	if err != nil {
		return artifact, err
	}
	artifact.Removed = removed
	for _, old := range removed {
		e.logger.Info().Str("path", old).Msg("deleted old artifact")
	}
	return artifact, nil
}

// writeAtomic writes to a hidden temp file beside path and renames it into place.
func writeAtomic(path string, ds *Dataset, codec compress.Codec, metadata map[string]string) (int64, error) {
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create export dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp artifact: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := writeParquet(tmp, ds, codec, metadata); err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return 0, fmt.Errorf("replace artifact: %w", err)
	}
	committed = true

	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat artifact: %w", err)
	}
	return info.Size(), nil
}

// Prune removes every <prefix>_*.parquet in dir except keep and returns the removed paths.
func Prune(dir, prefix, keep string) ([]string, error) {
	matches, err := Artifacts(dir, prefix)
	if err != nil {
		return nil, err
	}

	keepAbs, err := filepath.Abs(keep)
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, m := range matches {
		abs, err := filepath.Abs(m)
		if err != nil {
			return removed, err
		}
		if abs == keepAbs {
			continue
		}
		if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("remove old artifact %s: %w", m, err)
		}
		removed = append(removed, m)
	}
	return removed, nil
}

// Artifacts lists regular files in dir matching <prefix>_*.parquet, newest name first.
func Artifacts(dir, prefix string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"_*"+artifactExt))
	if err != nil {
		return nil, fmt.Errorf("glob artifacts: %w", err)
	}

	out := matches[:0]
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		out = append(out, m)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out, nil
}

// Current returns the newest artifact in dir.
func Current(dir, prefix string) (string, error) {
	matches, err := Artifacts(dir, prefix)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no %s_*%s artifact in %s", prefix, artifactExt, dir)
	}
	return matches[0], nil
}
