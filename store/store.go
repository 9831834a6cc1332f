// Package store implements the distillation store: the five-level
// (L1 metadata, L2 quantized embedding, L3 summary, L4 knowledge graph, L5
// full text) schema backed by a single SQLite database plus an FTS5
// auxiliary index and a sqlite-vec ANN index.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/brunobiangulo/distill/chunker"
	"github.com/brunobiangulo/distill/compress"
	"github.com/brunobiangulo/distill/nlp"
	"github.com/brunobiangulo/distill/quantize"
)

func init() {
	sqlite_vec.Auto()
}

// shardMaxBytes bounds how large a single append-only vector shard file
// grows before the Store rolls over to a new one.
const shardMaxBytes = 64 << 20

// L1Metadata is the metadata level: title, author, year, language,
// category/sub-discipline, source type, normalized identifiers,
// reliability, origin, and URL.
type L1Metadata struct {
	DocID         string
	Title         string
	Author        string
	Year          int // 0 means null/unknown
	Language      string
	Category      string
	SubDiscipline string
	SourceType    string
	ISBN          string
	DOI           string
	ISSN          string
	Publisher     string
	Keywords      string // comma-joined, <=10
	Reliability   float64
	PeerReviewed  bool
	Origin        string
	URL           string
}

// L3Summary is the extractive-summary level.
type L3Summary struct {
	Abstract        string
	KeyConcepts     string // comma-joined, <=10
	PrimaryDomain   string
	SecondaryDomain string
	RelevanceScore  float64
}

// L4KnowledgeGraph is the compact per-document entity/relation level.
type L4KnowledgeGraph struct {
	Entities  []nlp.Entity
	Relations []json.RawMessage // always empty for now
	Concepts  string
}

// L5FullText is the optional compressed full-text level.
type L5FullText struct {
	FilePath   string
	ByteSize   int64
	Compressed bool
	WordCount  int
}

// DistilledDoc bundles every level produced by a single Distill call.
type DistilledDoc struct {
	L1 L1Metadata
	L2 *L2Pointer
	L3 L3Summary
	L4 L4KnowledgeGraph
	L5 *L5FullText
}

// L2Pointer is the on-disk pointer row for a quantized embedding: the
// shard file, byte offset and size, the pre-quantization L2 norm, and the
// model that produced it. A norm of 0 denotes "no embedding".
type L2Pointer struct {
	ShardFile  string
	Offset     int64
	VectorSize int
	Norm       float32
	ModelName  string
}

// Store is the process-wide handle onto the distillation database, its
// vector shard files, and its compressed full-text files.
type Store struct {
	db            *sql.DB
	embeddingDim  int
	dbPath        string
	dataDir       string
	embeddingsDir string
	fulltextDir   string
	nlp           *nlp.Pipeline

	shardMu     sync.Mutex
	shardFile   *os.File
	shardPath   string
	shardOffset int64
}

// New opens (or creates) the distillation database at dbPath, alongside an
// embeddings/ and fulltext/ directory next to it, and runs the five-level
// schema plus migrations.
func New(dbPath string, embeddingDim int) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	embeddingsDir := filepath.Join(dir, "embeddings")
	fulltextDir := filepath.Join(dir, "fulltext")
	for _, d := range []string{embeddingsDir, fulltextDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating %s: %w", d, err)
		}
	}

	s := &Store{
		db:            db,
		embeddingDim:  embeddingDim,
		dbPath:        dbPath,
		dataDir:       dir,
		embeddingsDir: embeddingsDir,
		fulltextDir:   fulltextDir,
		nlp:           nlp.New(nlp.LevelSpacy),
	}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if err := s.openShard(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening vector shard: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection and the active shard
// file.
func (s *Store) Close() error {
	s.shardMu.Lock()
	if s.shardFile != nil {
		s.shardFile.Close()
	}
	s.shardMu.Unlock()
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB { return s.db }

// EmbeddingDim returns the configured embedding dimension.
func (s *Store) EmbeddingDim() int { return s.embeddingDim }

// ---------------------------------------------------------------------------
// Vector shard management.
// ---------------------------------------------------------------------------

func (s *Store) openShard() error {
	entries, err := os.ReadDir(s.embeddingsDir)
	if err != nil {
		return err
	}
	var latest string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "shard-") && strings.HasSuffix(e.Name(), ".bin") {
			if e.Name() > latest {
				latest = e.Name()
			}
		}
	}
	if latest == "" {
		latest = "shard-0000.bin"
	}
	path := filepath.Join(s.embeddingsDir, latest)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	s.shardFile = f
	s.shardPath = latest
	s.shardOffset = info.Size()
	return nil
}

// appendVector writes the packed int8 bytes to the active shard file,
// rolling over to a new shard when the current one exceeds shardMaxBytes.
// Returns the (shard file name, byte offset) the bytes were written at.
func (s *Store) appendVector(packed []byte) (string, int64, error) {
	s.shardMu.Lock()
	defer s.shardMu.Unlock()

	if s.shardOffset >= shardMaxBytes {
		s.shardFile.Close()
		next := nextShardName(s.shardPath)
		f, err := os.OpenFile(filepath.Join(s.embeddingsDir, next), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
		if err != nil {
			return "", 0, err
		}
		s.shardFile = f
		s.shardPath = next
		s.shardOffset = 0
	}

	offset := s.shardOffset
	n, err := s.shardFile.Write(packed)
	if err != nil {
		return "", 0, err
	}
	s.shardOffset += int64(n)
	return s.shardPath, offset, nil
}

func (s *Store) readVector(shardFile string, offset int64, size int) ([]byte, error) {
	f, err := os.Open(filepath.Join(s.embeddingsDir, shardFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, size)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return nil, err
	}
	return buf, nil
}

func nextShardName(current string) string {
	var n int
	fmt.Sscanf(current, "shard-%04d.bin", &n)
	return fmt.Sprintf("shard-%04d.bin", n+1)
}

func serializeInt8(v []int8) []byte {
	b := make([]byte, len(v))
	for i, x := range v {
		b[i] = byte(x)
	}
	return b
}

func deserializeInt8(b []byte) []int8 {
	v := make([]int8, len(b))
	for i, x := range b {
		v[i] = int8(x)
	}
	return v
}

// ---------------------------------------------------------------------------
// Distill: the full L1..L5 write path.
// ---------------------------------------------------------------------------

// Distill writes L1 metadata, optionally L2 (quantized embedding), L3/L4
// (computed from text via the NLP pipeline), and L5 (compressed full text,
// only if keepFulltext) for a single document, atomically: any failure
// rolls back every level for this doc_id. embedding may be nil.
func (s *Store) Distill(ctx context.Context, docID, text string, meta L1Metadata, embedding []float32, keepFulltext bool) (*DistilledDoc, error) {
	meta.DocID = docID
	result := nlp.NLPResult{}
	if strings.TrimSpace(text) != "" {
		result = s.nlp.Analyze(text)
	}

	l3 := L3Summary{
		Abstract:        truncate(result.Summary, 500),
		KeyConcepts:     joinTop(result.Keywords, 10),
		PrimaryDomain:   meta.Category,
		SecondaryDomain: secondDomain(result.Topics, meta.Category),
		RelevanceScore:  clamp01(result.LanguageConfidence),
	}
	l4 := L4KnowledgeGraph{
		Entities: result.Entities,
		Concepts: joinTop(result.Keywords, 10),
	}
	for _, ref := range chunker.DetectStandardRefs(text) {
		if len(l4.Entities) >= 64 {
			break
		}
		l4.Entities = append(l4.Entities, nlp.Entity{Text: ref, Type: "STANDARD"})
	}

	var l2ptr *L2Pointer
	var packed []byte
	var norm float32
	if len(embedding) > 0 {
		q, n := quantize.Quantize(embedding)
		packed = serializeInt8(q)
		norm = n
	}

	var l5 *L5FullText
	var framed []byte
	if keepFulltext && strings.TrimSpace(text) != "" {
		var err error
		framed, err = compress.CompressProfile([]byte(text), "text")
		if err != nil {
			return nil, fmt.Errorf("compressing fulltext for %s: %w", docID, err)
		}
		l5 = &L5FullText{
			FilePath:   filepath.Join(s.fulltextDir, docID+".bin"),
			ByteSize:   int64(len(framed)),
			Compressed: true,
			WordCount:  result.WordCount,
		}
	}

	// Vector bytes and fulltext bytes are written to append-only files
	// before the transaction: they are idempotently overwritten/reused on
	// retry, so an aborted transaction only orphans bytes, never corrupts
	// state the store reads back.
	if len(packed) > 0 {
		shardFile, offset, err := s.appendVector(packed)
		if err != nil {
			return nil, fmt.Errorf("writing vector shard for %s: %w", docID, err)
		}
		l2ptr = &L2Pointer{ShardFile: shardFile, Offset: offset, VectorSize: len(packed), Norm: norm, ModelName: "default"}
	}
	if l5 != nil {
		if err := os.WriteFile(l5.FilePath, framed, 0o644); err != nil {
			return nil, fmt.Errorf("writing fulltext for %s: %w", docID, err)
		}
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := upsertL1(ctx, tx, meta); err != nil {
			return err
		}
		rowid, err := l1Rowid(ctx, tx, docID)
		if err != nil {
			return err
		}
		if l2ptr != nil {
			if err := upsertL2(ctx, tx, docID, *l2ptr); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO vec_l2 (doc_rowid, embedding) VALUES (?, ?)`,
				rowid, packed); err != nil {
				return fmt.Errorf("indexing vector: %w", err)
			}
		}
		if err := upsertL3(ctx, tx, docID, l3); err != nil {
			return err
		}
		if err := upsertL4(ctx, tx, docID, l4); err != nil {
			return err
		}
		if l5 != nil {
			if err := upsertL5(ctx, tx, docID, *l5); err != nil {
				return err
			}
		}
		return upsertFTS(ctx, tx, meta, l3)
	})
	if err != nil {
		return nil, err
	}

	return &DistilledDoc{L1: meta, L2: l2ptr, L3: l3, L4: l4, L5: l5}, nil
}

// DistillMetadataOnly writes just the L1 row plus an FTS entry, bypassing
// every text-derived level. Used by Harvester and Local Scanner, which
// only ever observe API/filesystem metadata, never document bodies.
func (s *Store) DistillMetadataOnly(ctx context.Context, meta L1Metadata) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := upsertL1(ctx, tx, meta); err != nil {
			return err
		}
		return upsertFTS(ctx, tx, meta, L3Summary{})
	})
}

// DistillBatchMetadata bulk-inserts L1-only records in a single
// transaction and reports how many were genuinely new. Idempotent on
// doc_id: re-inserting the same batch reports 0 newly inserted the
// second time.
func (s *Store) DistillBatchMetadata(ctx context.Context, metas []L1Metadata) (inserted int, err error) {
	if len(metas) == 0 {
		return 0, nil
	}
	existing := map[string]bool{}
	ids := make([]string, len(metas))
	for i, m := range metas {
		ids[i] = m.DocID
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT doc_id FROM l1_metadata WHERE doc_id IN (%s)", repeatPlaceholders(len(ids))),
		toArgs(ids)...)
	if err != nil {
		return 0, fmt.Errorf("checking existing doc_ids: %w", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		existing[id] = true
	}
	rows.Close()

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		for _, m := range metas {
			if err := upsertL1(ctx, tx, m); err != nil {
				return err
			}
			if err := upsertFTS(ctx, tx, m, L3Summary{}); err != nil {
				return err
			}
			if !existing[m.DocID] {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// ---------------------------------------------------------------------------
// Level write helpers.
// ---------------------------------------------------------------------------

func upsertL1(ctx context.Context, tx *sql.Tx, m L1Metadata) error {
	var year any
	if m.Year != 0 {
		year = m.Year
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO l1_metadata (doc_id, title, author, year, language, category, sub_discipline,
			source_type, isbn, doi, issn, publisher, keywords, reliability, peer_reviewed, origin, url, distilled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(doc_id) DO UPDATE SET
			title=excluded.title, author=excluded.author, year=excluded.year,
			language=excluded.language, category=excluded.category, sub_discipline=excluded.sub_discipline,
			source_type=excluded.source_type, isbn=excluded.isbn, doi=excluded.doi, issn=excluded.issn,
			publisher=excluded.publisher, keywords=excluded.keywords, reliability=excluded.reliability,
			peer_reviewed=excluded.peer_reviewed, origin=excluded.origin, url=excluded.url,
			distilled_at=CURRENT_TIMESTAMP
	`, m.DocID, m.Title, m.Author, year, m.Language, m.Category, m.SubDiscipline,
		m.SourceType, normalizeISBN(m.ISBN), normalizeDOI(m.DOI), m.ISSN, m.Publisher,
		m.Keywords, m.Reliability, m.PeerReviewed, m.Origin, m.URL)
	return err
}

func l1Rowid(ctx context.Context, tx *sql.Tx, docID string) (int64, error) {
	var rowid int64
	err := tx.QueryRowContext(ctx, `SELECT rowid FROM l1_metadata WHERE doc_id = ?`, docID).Scan(&rowid)
	return rowid, err
}

func upsertL2(ctx context.Context, tx *sql.Tx, docID string, p L2Pointer) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO l2_embeddings (doc_id, shard_file, offset, vector_size, norm, model_name)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET
			shard_file=excluded.shard_file, offset=excluded.offset, vector_size=excluded.vector_size,
			norm=excluded.norm, model_name=excluded.model_name
	`, docID, p.ShardFile, p.Offset, p.VectorSize, p.Norm, p.ModelName)
	return err
}

func upsertL3(ctx context.Context, tx *sql.Tx, docID string, l3 L3Summary) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO l3_summaries (doc_id, abstract, key_concepts, primary_domain, secondary_domain, relevance_score)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET
			abstract=excluded.abstract, key_concepts=excluded.key_concepts,
			primary_domain=excluded.primary_domain, secondary_domain=excluded.secondary_domain,
			relevance_score=excluded.relevance_score
	`, docID, l3.Abstract, l3.KeyConcepts, l3.PrimaryDomain, l3.SecondaryDomain, l3.RelevanceScore)
	return err
}

func upsertL4(ctx context.Context, tx *sql.Tx, docID string, l4 L4KnowledgeGraph) error {
	entitiesJSON, err := json.Marshal(l4.Entities)
	if err != nil {
		return err
	}
	relationsJSON := []byte("[]")
	if len(l4.Relations) > 0 {
		relationsJSON, err = json.Marshal(l4.Relations)
		if err != nil {
			return err
		}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO l4_knowledge_graph (doc_id, entities_json, relations_json, concepts)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET
			entities_json=excluded.entities_json, relations_json=excluded.relations_json,
			concepts=excluded.concepts
	`, docID, string(entitiesJSON), string(relationsJSON), l4.Concepts)
	return err
}

func upsertL5(ctx context.Context, tx *sql.Tx, docID string, l5 L5FullText) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO l5_fulltext (doc_id, file_path, byte_size, compressed, word_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET
			file_path=excluded.file_path, byte_size=excluded.byte_size,
			compressed=excluded.compressed, word_count=excluded.word_count
	`, docID, l5.FilePath, l5.ByteSize, l5.Compressed, l5.WordCount)
	return err
}

func upsertFTS(ctx context.Context, tx *sql.Tx, m L1Metadata, l3 L3Summary) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM distilled_fts WHERE doc_id = ?`, m.DocID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO distilled_fts (doc_id, title, author, keywords, abstract, key_concepts, category)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.DocID, m.Title, m.Author, m.Keywords, l3.Abstract, l3.KeyConcepts, m.Category)
	return err
}

// ---------------------------------------------------------------------------
// Reads.
// ---------------------------------------------------------------------------

// GetL1 fetches a document's metadata level by id.
func (s *Store) GetL1(ctx context.Context, docID string) (*L1Metadata, error) {
	var m L1Metadata
	var year sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT doc_id, title, author, year, language, category, sub_discipline, source_type,
			isbn, doi, issn, publisher, keywords, reliability, peer_reviewed, origin, url
		FROM l1_metadata WHERE doc_id = ?
	`, docID).Scan(&m.DocID, &m.Title, &m.Author, &year, &m.Language, &m.Category, &m.SubDiscipline,
		&m.SourceType, &m.ISBN, &m.DOI, &m.ISSN, &m.Publisher, &m.Keywords, &m.Reliability,
		&m.PeerReviewed, &m.Origin, &m.URL)
	if err == sql.ErrNoRows {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	m.Year = int(year.Int64)
	return &m, nil
}

// GetFullText reads and decompresses the L5 full-text body for a document,
// returning (text, false, nil) if the document has no retained full text.
func (s *Store) GetFullText(ctx context.Context, docID string) (string, bool, error) {
	var filePath string
	err := s.db.QueryRowContext(ctx, `SELECT file_path FROM l5_fulltext WHERE doc_id = ?`, docID).Scan(&filePath)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	framed, err := os.ReadFile(filePath)
	if err != nil {
		return "", false, fmt.Errorf("reading fulltext file %s: %w", filePath, err)
	}
	raw, err := compress.Decompress(framed)
	if err != nil {
		return "", false, fmt.Errorf("decompressing fulltext for %s: %w", docID, err)
	}
	return string(raw), true, nil
}

// GetEmbedding reads back a document's quantized int8 vector and norm.
func (s *Store) GetEmbedding(ctx context.Context, docID string) ([]int8, float32, bool, error) {
	var p L2Pointer
	err := s.db.QueryRowContext(ctx, `
		SELECT shard_file, offset, vector_size, norm, model_name FROM l2_embeddings WHERE doc_id = ?
	`, docID).Scan(&p.ShardFile, &p.Offset, &p.VectorSize, &p.Norm, &p.ModelName)
	if err == sql.ErrNoRows {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, err
	}
	raw, err := s.readVector(p.ShardFile, p.Offset, p.VectorSize)
	if err != nil {
		return nil, 0, false, err
	}
	return deserializeInt8(raw), p.Norm, true, nil
}

// GetL3 fetches a document's summary level, if present.
func (s *Store) GetL3(ctx context.Context, docID string) (*L3Summary, error) {
	var l3 L3Summary
	err := s.db.QueryRowContext(ctx, `
		SELECT abstract, key_concepts, primary_domain, secondary_domain, relevance_score
		FROM l3_summaries WHERE doc_id = ?
	`, docID).Scan(&l3.Abstract, &l3.KeyConcepts, &l3.PrimaryDomain, &l3.SecondaryDomain, &l3.RelevanceScore)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l3, nil
}

// SuggestTitles returns up to limit titles whose prefix matches q, for the
// Search Engine's suggestion feature.
func (s *Store) SuggestTitles(ctx context.Context, q string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT title FROM l1_metadata WHERE title LIKE ? ORDER BY title LIMIT ?`,
		q+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// filterClauses translates SearchParams' equality/range filters into SQL
// predicates over an l1_metadata row aliased as l.
func filterClauses(p SearchParams) ([]string, []any) {
	var where []string
	var args []any
	if p.Category != "" {
		where = append(where, "l.category = ?")
		args = append(args, p.Category)
	}
	if p.Language != "" {
		where = append(where, "l.language = ?")
		args = append(args, p.Language)
	}
	if p.Origin != "" {
		where = append(where, "l.origin = ?")
		args = append(args, p.Origin)
	}
	if p.YearFrom != 0 {
		where = append(where, "l.year >= ?")
		args = append(args, p.YearFrom)
	}
	if p.YearTo != 0 {
		where = append(where, "l.year <= ?")
		args = append(args, p.YearTo)
	}
	return where, args
}

// SearchCount reports how many documents match the query text plus
// filters, unbounded by any fetch limit. An empty or unparseable query
// counts as zero matches.
func (s *Store) SearchCount(ctx context.Context, p SearchParams) (int, error) {
	matchExpr := buildFTSMatch(p.Query)
	if matchExpr == "" {
		return 0, nil
	}
	query := `
		SELECT COUNT(*)
		FROM distilled_fts f
		JOIN l1_metadata l ON l.doc_id = f.doc_id
		WHERE distilled_fts MATCH ?
	`
	args := []any{matchExpr}
	where, filterArgs := filterClauses(p)
	for _, w := range where {
		query += " AND " + w
	}
	args = append(args, filterArgs...)

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		if isFTSSyntaxError(err) {
			return 0, nil
		}
		return 0, err
	}
	return count, nil
}

// FacetCounts aggregates per-value counts for the given column over the
// documents matching the same query text and filter set as a Search call,
// so facet totals never exceed the search's own match count.
func (s *Store) FacetCounts(ctx context.Context, column string, p SearchParams) (map[string]int, error) {
	allowed := map[string]bool{"category": true, "language": true, "origin": true, "source_type": true}
	if !allowed[column] {
		return nil, fmt.Errorf("facet on unsupported column %q", column)
	}

	var query string
	var args []any
	where, filterArgs := filterClauses(p)

	if matchExpr := buildFTSMatch(p.Query); matchExpr != "" {
		query = fmt.Sprintf(`
			SELECT COALESCE(l.%s, ''), COUNT(*)
			FROM distilled_fts f
			JOIN l1_metadata l ON l.doc_id = f.doc_id
			WHERE distilled_fts MATCH ?
		`, column)
		args = append(args, matchExpr)
	} else {
		query = fmt.Sprintf("SELECT COALESCE(l.%s, ''), COUNT(*) FROM l1_metadata l WHERE 1=1", column)
	}
	for _, w := range where {
		query += " AND " + w
	}
	args = append(args, filterArgs...)
	query += fmt.Sprintf(" GROUP BY l.%s", column)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		if isFTSSyntaxError(err) {
			return map[string]int{}, nil
		}
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var k string
		var c int
		if err := rows.Scan(&k, &c); err != nil {
			return nil, err
		}
		out[k] = c
	}
	return out, rows.Err()
}

// SearchParams bundles the search engine's filter predicates: a lexical
// query text plus optional equality filters.
type SearchParams struct {
	Query    string
	Category string
	Language string
	YearFrom int
	YearTo   int
	Origin   string
	Limit    int
}

// SearchRow is a single row returned by Search, including the raw BM25
// magnitude (lower is better, per the engine's ascending convention).
type SearchRow struct {
	DocID string
	Meta  L1Metadata
	BM25  float64
}

// Search runs the FTS5 BM25 query with the given filters applied,
// returning rows ordered ascending by BM25 score. An unparseable FTS
// query returns an empty result set rather than an error.
func (s *Store) Search(ctx context.Context, p SearchParams) ([]SearchRow, error) {
	if p.Limit <= 0 {
		p.Limit = 20
	}

	matchExpr := buildFTSMatch(p.Query)
	if matchExpr == "" {
		return nil, nil
	}

	query := `
		SELECT f.doc_id, bm25(distilled_fts) AS score,
			l.title, l.author, l.year, l.language, l.category, l.sub_discipline, l.source_type,
			l.isbn, l.doi, l.issn, l.publisher, l.keywords, l.reliability, l.peer_reviewed, l.origin, l.url
		FROM distilled_fts f
		JOIN l1_metadata l ON l.doc_id = f.doc_id
		WHERE distilled_fts MATCH ?
	`
	args := []any{matchExpr}
	where, filterArgs := filterClauses(p)
	for _, w := range where {
		query += " AND " + w
	}
	args = append(args, filterArgs...)
	query += " ORDER BY score ASC LIMIT ?"
	args = append(args, p.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		// FTS5 raises a query-syntax error for unparseable MATCH
		// expressions; callers get an empty result, not a failure.
		if isFTSSyntaxError(err) {
			slog.Debug("store: unparseable FTS query, returning empty result", "query", p.Query, "error", err)
			return nil, nil
		}
		return nil, err
	}
	defer rows.Close()

	var out []SearchRow
	for rows.Next() {
		var r SearchRow
		var year sql.NullInt64
		if err := rows.Scan(&r.DocID, &r.BM25,
			&r.Meta.Title, &r.Meta.Author, &year, &r.Meta.Language, &r.Meta.Category, &r.Meta.SubDiscipline,
			&r.Meta.SourceType, &r.Meta.ISBN, &r.Meta.DOI, &r.Meta.ISSN, &r.Meta.Publisher, &r.Meta.Keywords,
			&r.Meta.Reliability, &r.Meta.PeerReviewed, &r.Meta.Origin, &r.Meta.URL); err != nil {
			return nil, err
		}
		r.Meta.DocID = r.DocID
		r.Meta.Year = int(year.Int64)
		if r.BM25 < 0 {
			r.BM25 = -r.BM25
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// VectorResult is a single nearest-neighbor match, scored by cosine
// similarity over the packed int8 representation.
type VectorResult struct {
	DocID string
	Meta  L1Metadata
	Score float64
}

// VectorSearch quantizes the query embedding and runs an ANN candidate
// search through the sqlite-vec index, then re-scores every candidate with
// an exact int8 cosine (quantize.CosineInt8) before returning the top k —
// the ANN index picks candidates fast, the quantizer makes the final score
// exact.
func (s *Store) VectorSearch(ctx context.Context, queryEmbedding []float32, k int) ([]VectorResult, error) {
	if k <= 0 {
		k = 10
	}
	qq, _ := quantize.Quantize(queryEmbedding)
	qBytes := serializeInt8(qq)

	candidateK := k * 4
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.doc_rowid, l.doc_id, l.title, l.author, l.year, l.language, l.category,
			l.sub_discipline, l.source_type, l.isbn, l.doi, l.issn, l.publisher, l.keywords,
			l.reliability, l.peer_reviewed, l.origin, l.url
		FROM vec_l2 v
		JOIN l1_metadata l ON l.rowid = v.doc_rowid
		WHERE v.embedding MATCH ? AND k = ?
	`, qBytes, candidateK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []VectorResult
	for rows.Next() {
		var rowid int64
		var r VectorResult
		var year sql.NullInt64
		if err := rows.Scan(&rowid, &r.DocID, &r.Meta.Title, &r.Meta.Author, &year, &r.Meta.Language,
			&r.Meta.Category, &r.Meta.SubDiscipline, &r.Meta.SourceType, &r.Meta.ISBN, &r.Meta.DOI,
			&r.Meta.ISSN, &r.Meta.Publisher, &r.Meta.Keywords, &r.Meta.Reliability, &r.Meta.PeerReviewed,
			&r.Meta.Origin, &r.Meta.URL); err != nil {
			return nil, err
		}
		r.Meta.DocID = r.DocID
		r.Meta.Year = int(year.Int64)
		candidates = append(candidates, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range candidates {
		packed, _, ok, err := s.GetEmbedding(ctx, candidates[i].DocID)
		if err != nil || !ok {
			continue
		}
		candidates[i].Score = quantize.CosineInt8(qq, packed)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// Stats reports per-level counts, per-origin/category/language breakdowns,
// and the on-disk database size.
type Stats struct {
	L1Count     int
	L2Count     int
	L3Count     int
	L4Count     int
	L5Count     int
	ByOrigin    map[string]int
	ByCategory  map[string]int
	ByLanguage  map[string]int
	DBSizeBytes int64
}

func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{ByOrigin: map[string]int{}, ByCategory: map[string]int{}, ByLanguage: map[string]int{}}

	counts := []struct {
		table string
		dest  *int
	}{
		{"l1_metadata", &st.L1Count},
		{"l2_embeddings", &st.L2Count},
		{"l3_summaries", &st.L3Count},
		{"l4_knowledge_graph", &st.L4Count},
		{"l5_fulltext", &st.L5Count},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", c.table)).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", c.table, err)
		}
	}

	if err := groupCount(ctx, s.db, "origin", st.ByOrigin); err != nil {
		return nil, err
	}
	if err := groupCount(ctx, s.db, "category", st.ByCategory); err != nil {
		return nil, err
	}
	if err := groupCount(ctx, s.db, "language", st.ByLanguage); err != nil {
		return nil, err
	}

	if info, err := os.Stat(s.dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}
	return st, nil
}

func groupCount(ctx context.Context, db *sql.DB, column string, dest map[string]int) error {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(
		"SELECT COALESCE(%s, ''), COUNT(*) FROM l1_metadata GROUP BY %s", column, column))
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		var c int
		if err := rows.Scan(&k, &c); err != nil {
			return err
		}
		dest[k] = c
	}
	return rows.Err()
}

// ---------------------------------------------------------------------------
// Shared helpers.
// ---------------------------------------------------------------------------

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func repeatPlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func normalizeDOI(doi string) string {
	return strings.ToLower(strings.TrimSpace(doi))
}

func normalizeISBN(isbn string) string {
	var b strings.Builder
	for _, r := range isbn {
		if r >= '0' && r <= '9' || r == 'X' || r == 'x' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func joinTop(items []string, n int) string {
	if len(items) > n {
		items = items[:n]
	}
	return strings.Join(items, ",")
}

func secondDomain(topics []string, primary string) string {
	for _, t := range topics {
		if t != primary {
			return t
		}
	}
	return ""
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// buildFTSMatch builds the MATCH expression: single-word queries gain a
// prefix wildcard; multi-word queries are ANDed with a wildcard on the
// last token.
func buildFTSMatch(q string) string {
	q = strings.TrimSpace(q)
	if q == "" {
		return ""
	}
	words := strings.Fields(q)
	for i, w := range words {
		words[i] = sanitizeFTSToken(w)
	}
	var nonEmpty []string
	for _, w := range words {
		if w != "" {
			nonEmpty = append(nonEmpty, w)
		}
	}
	if len(nonEmpty) == 0 {
		return ""
	}
	if len(nonEmpty) == 1 {
		return nonEmpty[0] + "*"
	}
	last := len(nonEmpty) - 1
	nonEmpty[last] = nonEmpty[last] + "*"
	return strings.Join(nonEmpty, " AND ")
}

func sanitizeFTSToken(w string) string {
	var b strings.Builder
	for _, r := range w {
		if r == '"' || r == '*' || r == '(' || r == ')' || r == ':' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isFTSSyntaxError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "fts5")
}

// ErrDocumentNotFound is returned when a doc_id has no L1 row.
var ErrDocumentNotFound = fmt.Errorf("store: document not found")
