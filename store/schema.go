package store

import "fmt"

// schemaSQL returns the DDL for the five distillation levels plus their
// full-text index. embeddingDim controls the vec0 virtual table's L2
// vector width.
func schemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
-- Level 1: metadata, one row per distilled document.
CREATE TABLE IF NOT EXISTS l1_metadata (
    doc_id TEXT PRIMARY KEY,
    title TEXT,
    author TEXT,
    year INTEGER,
    language TEXT,
    category TEXT,
    sub_discipline TEXT,
    source_type TEXT,
    isbn TEXT,
    doi TEXT,
    issn TEXT,
    publisher TEXT,
    keywords TEXT,
    reliability REAL DEFAULT 0,
    peer_reviewed BOOLEAN DEFAULT 0,
    origin TEXT,
    url TEXT,
    distilled_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Level 2: a pointer to an append-only shard file holding the quantized
-- int8 vector; the bytes themselves never live in this table.
CREATE TABLE IF NOT EXISTS l2_embeddings (
    doc_id TEXT PRIMARY KEY REFERENCES l1_metadata(doc_id) ON DELETE CASCADE,
    shard_file TEXT NOT NULL,
    offset INTEGER NOT NULL,
    vector_size INTEGER NOT NULL,
    norm REAL NOT NULL,
    model_name TEXT
);

-- KNN index over the same vectors, keyed by l1_metadata's rowid so it can
-- be joined back to doc_id without an integer/text primary key mismatch.
CREATE VIRTUAL TABLE IF NOT EXISTS vec_l2 USING vec0(
    doc_rowid INTEGER PRIMARY KEY,
    embedding int8[%d]
);

-- Level 3: distilled summary.
CREATE TABLE IF NOT EXISTS l3_summaries (
    doc_id TEXT PRIMARY KEY REFERENCES l1_metadata(doc_id) ON DELETE CASCADE,
    abstract TEXT,
    key_concepts TEXT,
    primary_domain TEXT,
    secondary_domain TEXT,
    relevance_score REAL DEFAULT 0
);

-- Level 4: knowledge graph, one row per document (entities/relations are
-- JSON arrays rather than normalized tables — the graph is scoped to a
-- single document's distillation, not a corpus-wide graph).
CREATE TABLE IF NOT EXISTS l4_knowledge_graph (
    doc_id TEXT PRIMARY KEY REFERENCES l1_metadata(doc_id) ON DELETE CASCADE,
    entities_json TEXT NOT NULL DEFAULT '[]',
    relations_json TEXT NOT NULL DEFAULT '[]',
    concepts TEXT
);

-- Level 5: full text, kept only for documents explicitly retained.
CREATE TABLE IF NOT EXISTS l5_fulltext (
    doc_id TEXT PRIMARY KEY REFERENCES l1_metadata(doc_id) ON DELETE CASCADE,
    file_path TEXT NOT NULL,
    byte_size INTEGER NOT NULL,
    compressed BOOLEAN DEFAULT 1,
    word_count INTEGER
);

-- Full-text index over metadata and summary fields, BM25-ranked with
-- diacritics removed so accented and unaccented queries both match.
CREATE VIRTUAL TABLE IF NOT EXISTS distilled_fts USING fts5(
    doc_id UNINDEXED,
    title,
    author,
    keywords,
    abstract,
    key_concepts,
    category,
    tokenize='unicode61 remove_diacritics 2'
);

CREATE INDEX IF NOT EXISTS idx_l1_category ON l1_metadata(category);
CREATE INDEX IF NOT EXISTS idx_l1_year ON l1_metadata(year);
CREATE INDEX IF NOT EXISTS idx_l1_language ON l1_metadata(language);
CREATE INDEX IF NOT EXISTS idx_l1_origin ON l1_metadata(origin);
CREATE INDEX IF NOT EXISTS idx_l1_doi ON l1_metadata(doi);
CREATE INDEX IF NOT EXISTS idx_l1_isbn ON l1_metadata(isbn);
CREATE INDEX IF NOT EXISTS idx_l1_author ON l1_metadata(author);
CREATE INDEX IF NOT EXISTS idx_l1_reliability ON l1_metadata(reliability);
`, embeddingDim)
}
