package distill

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/brunobiangulo/distill/chunker"
	"github.com/brunobiangulo/distill/compress"
	"github.com/brunobiangulo/distill/executor"
	"github.com/brunobiangulo/distill/llm"
	"github.com/brunobiangulo/distill/objectstore"
	"github.com/brunobiangulo/distill/parser"
	"github.com/brunobiangulo/distill/store"
)

// maxIngestFileSize caps single-file ingestion the same way the local
// scanner caps its walk.
const maxIngestFileSize = 100 << 20

// IngestedChunk is one unit of chunked text produced during ingestion,
// carrying the chunk identity and size bookkeeping the data model names.
type IngestedChunk struct {
	ChunkID      string `json:"chunk_id"` // {doc_id}_chunk_{index:04}
	DocID        string `json:"doc_id"`
	Content      string `json:"content"`
	RawContent   string `json:"raw_content"`
	Language     string `json:"language"`
	SectionTitle string `json:"section_title"`
	ContentType  string `json:"content_type"`
	CharCount    int    `json:"char_count"`
	WordCount    int    `json:"word_count"`
	TokensApprox int    `json:"tokens_approx"` // char_count / 4
	Index        int    `json:"index"`
	TotalChunks  int    `json:"total_chunks"`
}

// IngestedDocument records the outcome of ingesting one file. Extraction
// and preprocessing failures land here with Status "error" and a zero
// ChunkCount; ingestion of the remaining files continues.
type IngestedDocument struct {
	DocID      string          `json:"doc_id"`
	Path       string          `json:"path"`
	Format     string          `json:"format"`
	Status     string          `json:"status"` // "distilled" or "error"
	Error      string          `json:"error,omitempty"`
	Language   string          `json:"language"`
	ChunkCount int             `json:"chunk_count"`
	WordCount  int             `json:"word_count"`
	Chunks     []IngestedChunk `json:"-"`
}

// Ingester is the full-text ingestion pipeline: raw bytes -> Extractor ->
// Preprocessor -> (NLP and Embedding) -> Distillation Store. The Harvester
// and Local Scanner bypass it, producing metadata-only records; the
// Ingester is the path that fills in L2..L5.
type Ingester struct {
	registry *parser.Registry
	pre      *chunker.Preprocessor
	embedder *llm.Engine
	store    *store.Store
	storage  objectstore.Backend
	pool     *executor.ProcessPool

	// ArchiveRaw mirrors each source file into the object store under
	// raw/{doc_id}, compressed, when a storage backend is configured.
	ArchiveRaw bool
}

// NewIngester wires the extractor registry, preprocessor, optional
// embedder, and optional object-store archive into one pipeline handle.
// embedder and storage may be nil.
func NewIngester(s *store.Store, embedder *llm.Engine, storage objectstore.Backend, chunking ChunkingConfig, poolWorkers int) *Ingester {
	return &Ingester{
		registry: parser.NewRegistry(),
		pre: chunker.New(chunker.Config{
			MaxTokens:     chunking.MaxTokens,
			OverlapTokens: chunking.OverlapTokens,
		}),
		embedder:   embedder,
		store:      s,
		storage:    storage,
		pool:       executor.NewProcessPool(poolWorkers),
		ArchiveRaw: storage != nil,
	}
}

// ingestExtensionCategory assigns a coarse category by file extension,
// the same mapping the local scanner applies to metadata-only records.
var ingestExtensionCategory = map[string]string{
	".pdf":   "document",
	".docx":  "document",
	".epub":  "book",
	".txt":   "text",
	".md":    "text",
	".rst":   "text",
	".html":  "text",
	".htm":   "text",
	".json":  "data",
	".jsonl": "data",
	".csv":   "spreadsheet",
	".xlsx":  "spreadsheet",
}

// IngestFile runs the full pipeline over one file. Extraction and
// preprocessing failures are recorded on the returned IngestedDocument
// (Status "error", ChunkCount 0) rather than returned as an error; the
// error return is reserved for store-level write failures.
func (in *Ingester) IngestFile(ctx context.Context, path string) (*IngestedDocument, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	sum := md5.Sum([]byte(absPath))
	docID := hex.EncodeToString(sum[:])[:16]

	ext := strings.ToLower(filepath.Ext(absPath))
	format := parser.DetectFormat(ext, "")
	doc := &IngestedDocument{DocID: docID, Path: absPath, Format: format}

	info, err := os.Stat(absPath)
	if err != nil {
		doc.Status = "error"
		doc.Error = err.Error()
		return doc, nil
	}
	if info.Size() == 0 || info.Size() > maxIngestFileSize {
		doc.Status = "error"
		doc.Error = fmt.Sprintf("file size %d outside (0, %d]", info.Size(), int64(maxIngestFileSize))
		return doc, nil
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		doc.Status = "error"
		doc.Error = err.Error()
		return doc, nil
	}

	extractor, err := in.registry.Get(format)
	if err != nil {
		doc.Status = "error"
		doc.Error = err.Error()
		return doc, nil
	}
	raw, err := extractor.Extract(ctx, data)
	if err != nil {
		doc.Status = "error"
		doc.Error = err.Error()
		slog.Warn("extraction failed", "path", absPath, "format", format, "error", err)
		return doc, nil
	}

	chunks, lang, md := in.pre.Process(raw, nil)
	if len(chunks) == 0 {
		doc.Status = "error"
		doc.Error = ErrPreprocessEmpty.Error()
		return doc, nil
	}
	doc.Language = lang.Language

	cleaned := in.pre.Clean(raw)
	doc.WordCount = len(strings.Fields(cleaned))
	doc.Chunks = make([]IngestedChunk, len(chunks))
	for i, c := range chunks {
		doc.Chunks[i] = IngestedChunk{
			ChunkID:      fmt.Sprintf("%s_chunk_%04d", docID, c.Index),
			DocID:        docID,
			Content:      c.Text,
			RawContent:   c.Text,
			Language:     lang.Language,
			SectionTitle: c.SectionTitle,
			ContentType:  c.ContentType,
			CharCount:    len(c.Text),
			WordCount:    len(strings.Fields(c.Text)),
			TokensApprox: len(c.Text) / 4,
			Index:        c.Index,
			TotalChunks:  len(chunks),
		}
	}
	doc.ChunkCount = len(chunks)

	year := md.Year
	if year == 0 {
		year = info.ModTime().Year()
	}
	meta := store.L1Metadata{
		DocID:      docID,
		Title:      strings.TrimSuffix(info.Name(), filepath.Ext(info.Name())),
		Author:     md.Author,
		Year:       year,
		Language:   lang.Language,
		Category:   categoryForExtension(ext),
		SourceType: "local_file",
		ISBN:       md.ISBN,
		DOI:        md.DOI,
		Origin:     "local_mac",
		URL:        absPath,
	}

	var embedding []float32
	if in.embedder != nil {
		head := cleaned
		if len(head) > 8000 {
			head = head[:8000]
		}
		if vecs := in.embedder.Embed(ctx, []string{meta.Title + "\n" + head}); len(vecs) == 1 {
			embedding = vecs[0]
		}
	}

	if _, err := in.store.Distill(ctx, docID, cleaned, meta, embedding, true); err != nil {
		return doc, fmt.Errorf("distill: ingesting %s: %w", absPath, err)
	}
	doc.Status = "distilled"

	if in.ArchiveRaw && in.storage != nil {
		in.archiveRaw(ctx, docID, absPath, data)
	}
	return doc, nil
}

// archiveRaw mirrors the source bytes into the object store, compressed.
// Failures are logged, never fatal: the distilled record is already
// committed.
func (in *Ingester) archiveRaw(ctx context.Context, docID, absPath string, data []byte) {
	framed, err := compress.CompressProfile(data, "balanced")
	if err != nil {
		slog.Warn("raw archive compression failed", "doc_id", docID, "error", err)
		return
	}
	key := "raw/" + docID
	if _, err := in.storage.Put(ctx, key, framed, map[string]string{"source_path": absPath}); err != nil {
		slog.Warn("raw archive upload failed", "doc_id", docID, "key", key, "error", err)
	}
}

// IngestDir walks root collecting every supported file, then ingests them
// in parallel on the CPU pool, preserving walk order in the returned
// slice. progressCB, when non-nil, observes per-item completion.
func (in *Ingester) IngestDir(ctx context.Context, root string, progressCB func(executor.BatchProgress)) ([]*IngestedDocument, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || excludedIngestDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if _, ok := ingestExtensionCategory[ext]; !ok {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("distill: walking %s: %w", root, err)
	}

	results, errs := executor.Map(ctx, in.pool, paths, func(ctx context.Context, p string) (*IngestedDocument, error) {
		return in.IngestFile(ctx, p)
	}, executor.MapOptions{MaxRetries: 1, ProgressCB: progressCB})

	docs := make([]*IngestedDocument, 0, len(paths))
	for i, d := range results {
		if d == nil {
			d = &IngestedDocument{Path: paths[i], Status: "error"}
			if errs[i] != nil {
				d.Error = errs[i].Error()
			}
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// excludedIngestDirs matches the local scanner's prune set.
var excludedIngestDirs = map[string]bool{
	"node_modules": true,
	"__pycache__":  true,
	"venv":         true,
	"dist":         true,
	"build":        true,
	"target":       true,
}

func categoryForExtension(ext string) string {
	if c, ok := ingestExtensionCategory[ext]; ok {
		return c
	}
	return "text"
}
