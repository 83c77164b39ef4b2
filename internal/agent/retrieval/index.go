package retrieval

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/auto-support-pilot/server/internal/agent/model"
	errx "github.com/auto-support-pilot/server/internal/core/error"
	logx "github.com/auto-support-pilot/server/pkg/logger"
)

// Index is a persistent passage index over the knowledge-base folder.
// Chunks and their embeddings live in SQLite; ranking happens in memory,
// by cosine similarity when an Embedder is set and by BM25 otherwise. The
// index is populated from the document folder on first use whenever it is
// empty.
type Index struct {
	db           *sql.DB
	documentPath string
	embedder     Embedder

	mu       sync.Mutex
	snapshot *snapshot
}

// snapshot is the in-memory view of the chunks table.
type snapshot struct {
	keyword *corpus
	vectors [][]float32 // aligned with keyword.texts; nil without an embedder
}

type storedChunk struct {
	id        int64
	content   string
	embedding []byte
	model     string
}

// OpenIndex opens or creates the index database. embedder may be nil, in
// which case passages are ranked by keyword.
func OpenIndex(ctx context.Context, cfg model.RetrievalConfig, embedder Embedder) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.IndexPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	db, err := sql.Open("sqlite", cfg.IndexPath)
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	ix := &Index{db: db, documentPath: cfg.DocumentPath, embedder: embedder}
	if err := ix.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return ix, nil
}

func (ix *Index) ensureSchema(ctx context.Context) error {
	if _, err := ix.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS chunks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source TEXT NOT NULL,
			position INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding BLOB,
			embedding_model TEXT NOT NULL DEFAULT ''
		)`); err != nil {
		return err
	}

	// indexes created before embeddings were stored lack the vector columns
	cols, err := ix.columns(ctx)
	if err != nil {
		return err
	}
	if !cols["embedding"] {
		if _, err := ix.db.ExecContext(ctx, "ALTER TABLE chunks ADD COLUMN embedding BLOB"); err != nil {
			return err
		}
	}
	if !cols["embedding_model"] {
		if _, err := ix.db.ExecContext(ctx, "ALTER TABLE chunks ADD COLUMN embedding_model TEXT NOT NULL DEFAULT ''"); err != nil {
			return err
		}
	}
	return nil
}

func (ix *Index) columns(ctx context.Context) (map[string]bool, error) {
	rows, err := ix.db.QueryContext(ctx, "SELECT name FROM pragma_table_info('chunks')")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// Search returns up to topK passages most relevant to query.
func (ix *Index) Search(ctx context.Context, query string, topK int) ([]string, error) {
	snap, err := ix.load(ctx)
	if err != nil {
		return nil, err
	}
	if ix.embedder == nil {
		return snap.keyword.search(query, topK), nil
	}
	if topK <= 0 || snap.keyword.size() == 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	vec, err := ix.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return rankByCosine(vec, snap.vectors, snap.keyword.texts, topK), nil
}

// Count returns the number of stored chunks.
func (ix *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := ix.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, errx.WrapSQL(err)
	}
	return n, nil
}

// Close closes the database.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// load returns the in-memory snapshot, ingesting the document folder when
// the table is empty and embedding any chunk that has no vector for the
// current model. An empty or failed result is not cached, so documents added
// later are picked up and failed embeddings are retried.
func (ix *Index) load(ctx context.Context) (*snapshot, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.snapshot != nil {
		return ix.snapshot, nil
	}

	n, err := ix.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if err := ix.ingest(ctx); err != nil {
			return nil, err
		}
	}

	chunks, err := ix.readChunks(ctx)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.content)
	}
	snap := &snapshot{keyword: newCorpus(texts)}

	if ix.embedder != nil {
		if err := ix.embedMissing(ctx, chunks); err != nil {
			return nil, err
		}
		snap.vectors = make([][]float32, 0, len(chunks))
		for _, c := range chunks {
			vec, err := decodeVector(c.embedding)
			if err != nil {
				return nil, fmt.Errorf("chunk %d: %w", c.id, err)
			}
			snap.vectors = append(snap.vectors, vec)
		}
	}

	if snap.keyword.size() > 0 {
		ix.snapshot = snap
	}
	return snap, nil
}

func (ix *Index) ingest(ctx context.Context) error {
	docs, err := LoadDocuments(ix.documentPath)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return errx.WrapSQL(err)
	}
	defer tx.Rollback()

	for _, d := range docs {
		chunks := Chunk(d.Text)
		for pos, content := range chunks {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO chunks (source, position, content) VALUES (?, ?, ?)",
				d.Source, pos, content,
			); err != nil {
				return errx.WrapSQL(err)
			}
		}
		logx.Info().Str("source", d.Source).Int("chunks", len(chunks)).Msg("document indexed")
	}
	if err := tx.Commit(); err != nil {
		return errx.WrapSQL(err)
	}
	return nil
}

// embedMissing embeds the chunks that have no vector for the embedder's
// model, stores the vectors and updates chunks in place.
func (ix *Index) embedMissing(ctx context.Context, chunks []storedChunk) error {
	current := ix.embedder.Model()
	var pending []int
	for i, c := range chunks {
		if len(c.embedding) == 0 || c.model != current {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	texts := make([]string, 0, len(pending))
	for _, i := range pending {
		texts = append(texts, chunks[i].content)
	}
	vecs, err := ix.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vecs) != len(pending) {
		return fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vecs), len(pending))
	}

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return errx.WrapSQL(err)
	}
	defer tx.Rollback()

	for k, i := range pending {
		blob := encodeVector(vecs[k])
		if _, err := tx.ExecContext(ctx,
			"UPDATE chunks SET embedding = ?, embedding_model = ? WHERE id = ?",
			blob, current, chunks[i].id,
		); err != nil {
			return errx.WrapSQL(err)
		}
		chunks[i].embedding = blob
		chunks[i].model = current
	}
	if err := tx.Commit(); err != nil {
		return errx.WrapSQL(err)
	}
	logx.Info().Str("model", current).Int("chunks", len(pending)).Msg("chunks embedded")
	return nil
}

func (ix *Index) readChunks(ctx context.Context) ([]storedChunk, error) {
	rows, err := ix.db.QueryContext(ctx, "SELECT id, content, embedding, embedding_model FROM chunks ORDER BY id")
	if err != nil {
		return nil, errx.WrapSQL(err)
	}
	defer rows.Close()

	var chunks []storedChunk
	for rows.Next() {
		var c storedChunk
		if err := rows.Scan(&c.id, &c.content, &c.embedding, &c.model); err != nil {
			return nil, errx.WrapSQL(err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errx.WrapSQL(err)
	}
	return chunks, nil
}

var _ model.Retriever = (*Index)(nil)
