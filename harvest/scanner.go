package harvest

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/brunobiangulo/distill/store"
)

// excludedDirNames is the fixed prune set for the local scanner walk,
// alongside any hidden directory (leading dot).
var excludedDirNames = map[string]bool{
	"node_modules": true,
	".git":         true,
	"__pycache__":  true,
	"venv":         true,
	".venv":        true,
	"dist":         true,
	"build":        true,
	"target":       true,
}

// scannerExtensionCategory maps a supported file extension to a category,
// mirroring the extractor Registry's own format coverage (parser/parser.go).
var scannerExtensionCategory = map[string]string{
	".pdf":  "document",
	".docx": "document",
	".doc":  "document",
	".pptx": "presentation",
	".xlsx": "spreadsheet",
	".csv":  "spreadsheet",
	".txt":  "text",
	".md":   "text",
	".html": "text",
	".htm":  "text",
}

const (
	minScanFileSize = 1
	maxScanFileSize = 100 << 20 // 100 MB
	scanBatchSize   = 100
)

// Scanner walks a local directory tree, synthesizing L1 records for every
// supported file and batching them into a distillation store.
type Scanner struct {
	Store *store.Store
	State *StateDB
}

// NewScanner builds a Scanner bound to a distillation store and a state db
// (used to persist/resume the walk via a "local_scan" Progress row).
func NewScanner(s *store.Store, state *StateDB) *Scanner {
	return &Scanner{Store: s, State: state}
}

const localScanSource = "local_scan"

// Scan walks root, synthesizing and batching L1 records. If resume is
// true and a prior scan left a last_file marker, the walk skips every
// entry up to and including that file before resuming real work; the
// walk order is deterministic, so last_file is a valid resume anchor.
func (sc *Scanner) Scan(ctx context.Context, root string, resume bool) (Progress, error) {
	progress, err := sc.State.Load(ctx, localScanSource)
	if err != nil {
		return Progress{}, err
	}
	if !resume {
		progress = Progress{Source: localScanSource, Status: StatusRunning}
	} else {
		progress.Status = StatusRunning
	}

	skipping := resume && progress.LastFile != ""
	var batch []store.L1Metadata
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		inserted, err := sc.Store.DistillBatchMetadata(ctx, batch)
		if err != nil {
			return fmt.Errorf("local scan: batch insert: %w", err)
		}
		progress.TotalInserted += inserted
		if err := sc.State.Save(context.WithoutCancel(ctx), progress); err != nil {
			slog.Warn("local scan: progress save failed", "error", err)
		}
		batch = batch[:0]
		return nil
	}

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("local scan: walk error, skipping entry", "path", path, "error", err)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		name := d.Name()
		if d.IsDir() {
			if path != root && (excludedDirNames[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}

		if skipping {
			if path == progress.LastFile {
				skipping = false
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(name))
		category, ok := scannerExtensionCategory[ext]
		if !ok {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			slog.Warn("local scan: stat failed, skipping entry", "path", path, "error", err)
			return nil
		}
		if info.Size() < minScanFileSize || info.Size() > maxScanFileSize {
			return nil
		}

		absPath, err := filepath.Abs(path)
		if err != nil {
			absPath = path
		}
		batch = append(batch, synthesizeLocalRecord(absPath, name, category, info.ModTime()))
		progress.TotalFetched++
		progress.LastFile = path

		if len(batch) >= scanBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
		return nil
	})
	if walkErr != nil {
		progress.Status = StatusPaused
		_ = sc.State.Save(context.WithoutCancel(ctx), progress)
		return progress, walkErr
	}

	if err := flush(); err != nil {
		progress.Status = StatusPaused
		_ = sc.State.Save(context.WithoutCancel(ctx), progress)
		return progress, err
	}

	progress.Status = StatusCompleted
	if err := sc.State.Save(context.WithoutCancel(ctx), progress); err != nil {
		return progress, err
	}
	return progress, nil
}

func synthesizeLocalRecord(absPath, name, category string, modTime time.Time) store.L1Metadata {
	title := strings.TrimSuffix(name, filepath.Ext(name))
	sum := md5.Sum([]byte(absPath))
	docID := hex.EncodeToString(sum[:])[:16]
	return store.L1Metadata{
		DocID:      docID,
		Title:      title,
		Year:       modTime.Year(),
		Category:   category,
		SourceType: "local_file",
		Origin:     "local_mac",
		URL:        absPath,
	}
}
