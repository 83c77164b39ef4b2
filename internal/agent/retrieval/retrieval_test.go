package retrieval

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auto-support-pilot/server/internal/agent/model"
)

const returnsPolicy = `Returns are accepted within 30 days of delivery.

Refunds are issued to the original payment method within 5 business days.`

const warrantyMarkdown = "# Warranty\n\nAll **belts** carry a one year warranty against manufacturing defects.\n\n" +
	"## Claims\n\n- Keep your receipt\n- Contact support with the order id\n\n" +
	"```\nwarranty-code: BELT-1Y\n```\n"

func writeDocs(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestLoadDocuments(t *testing.T) {
	dir := writeDocs(t, map[string]string{
		"returns.txt":  returnsPolicy,
		"warranty.md":  warrantyMarkdown,
		"brochure.pdf": "%PDF-1.4",
		"empty.txt":    "   ",
	})
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	docs, err := LoadDocuments(dir)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "returns.txt", docs[0].Source)
	assert.Equal(t, "warranty.md", docs[1].Source)

	md := docs[1].Text
	assert.Contains(t, md, "All belts carry a one year warranty")
	assert.Contains(t, md, "Keep your receipt")
	assert.Contains(t, md, "warranty-code: BELT-1Y")
	assert.NotContains(t, md, "**")
	assert.NotContains(t, md, "# ")
}

func TestLoadDocumentsMissingFolder(t *testing.T) {
	docs, err := LoadDocuments(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestChunk(t *testing.T) {
	chunks := Chunk(returnsPolicy)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Returns are accepted within 30 days of delivery.\nRefunds are issued to the original payment method within 5 business days.", chunks[0])

	long := strings.Repeat("word ", 400)
	for _, c := range Chunk(long + "\n\n" + long) {
		assert.LessOrEqual(t, len(c), maxChunkChars)
	}
	assert.Empty(t, Chunk("\n\n  \n"))
}

func TestCorpusSearch(t *testing.T) {
	c := newCorpus([]string{
		"Returns are accepted within 30 days of delivery.",
		"All belts carry a one year warranty.",
		"Our stores open at 9am.",
	})

	assert.Equal(t, []string{"All belts carry a one year warranty."}, c.search("is my belts warranty valid?", 2))
	assert.Equal(t, []string{"Returns are accepted within 30 days of delivery."}, c.search("RETURNS", 2))
	assert.Empty(t, c.search("the is a", 2))
	assert.Empty(t, c.search("laptop", 2))
	assert.Len(t, c.search("returns warranty stores", 2), 2)
	assert.Empty(t, c.search("returns", 0))
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"ord", "002", "status"}, tokenize("Where is ORD-002's status?"))
	assert.Empty(t, tokenize("  ?! "))
}

func TestIndexPopulatesOnFirstSearch(t *testing.T) {
	ctx := context.Background()
	docs := writeDocs(t, map[string]string{"returns.txt": returnsPolicy, "warranty.md": warrantyMarkdown})
	cfg := model.RetrievalConfig{IndexPath: filepath.Join(t.TempDir(), "vectordb", "index.db"), DocumentPath: docs}

	ix, err := OpenIndex(ctx, cfg, nil)
	require.NoError(t, err)
	defer ix.Close()

	n, err := ix.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := ix.Search(ctx, "how long do refunds take?", 2)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Contains(t, got[0], "Refunds are issued")

	n, err = ix.Count(ctx)
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestIndexDoesNotReingest(t *testing.T) {
	ctx := context.Background()
	docs := writeDocs(t, map[string]string{"returns.txt": returnsPolicy})
	cfg := model.RetrievalConfig{IndexPath: filepath.Join(t.TempDir(), "index.db"), DocumentPath: docs}

	first, err := OpenIndex(ctx, cfg, nil)
	require.NoError(t, err)
	_, err = first.Search(ctx, "returns", 2)
	require.NoError(t, err)
	before, err := first.Count(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	// a new document is ignored once the index has content
	require.NoError(t, os.WriteFile(filepath.Join(docs, "stores.txt"), []byte("Stores open at 9am."), 0o644))

	second, err := OpenIndex(ctx, cfg, nil)
	require.NoError(t, err)
	defer second.Close()
	got, err := second.Search(ctx, "stores open", 2)
	require.NoError(t, err)
	assert.Empty(t, got)
	after, err := second.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestIndexEmptyFolder(t *testing.T) {
	ctx := context.Background()
	cfg := model.RetrievalConfig{
		IndexPath:    filepath.Join(t.TempDir(), "index.db"),
		DocumentPath: filepath.Join(t.TempDir(), "missing"),
	}
	ix, err := OpenIndex(ctx, cfg, nil)
	require.NoError(t, err)
	defer ix.Close()

	got, err := ix.Search(ctx, "returns", 2)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadDocumentsExtractsPDF(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("testdata", "damaged_parcels.pdf"))
	require.NoError(t, err)
	dir := writeDocs(t, map[string]string{
		"damaged_parcels.pdf": string(raw),
		"broken.pdf":          "%PDF-1.4 truncated",
		"returns.txt":         returnsPolicy,
	})

	docs, err := LoadDocuments(dir)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "damaged_parcels.pdf", docs[0].Source)
	assert.Contains(t, docs[0].Text, "Damaged parcels qualify for store credit")
	assert.Equal(t, "returns.txt", docs[1].Source)
}

// conceptEmbedder maps words onto a few concept axes so that synonyms
// land close together, which keyword ranking cannot do.
type conceptEmbedder struct {
	model   string
	fail    error
	mu      sync.Mutex
	batches int
	texts   int
}

var concepts = map[string]int{
	"refund": 0, "refunds": 0, "money": 0, "payment": 0, "reimbursed": 0,
	"ship": 1, "shipping": 1, "parcels": 1, "courier": 1, "package": 1, "arrive": 1,
	"stores": 2, "open": 2, "hours": 2,
}

func (e *conceptEmbedder) Model() string { return e.model }

func (e *conceptEmbedder) vector(text string) []float32 {
	v := make([]float32, 4)
	for _, tok := range tokenize(text) {
		if axis, ok := concepts[tok]; ok {
			v[axis]++
		} else {
			v[3] += 0.01
		}
	}
	return v
}

func (e *conceptEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.batches++
	e.texts += len(texts)
	e.mu.Unlock()
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		out = append(out, e.vector(t))
	}
	return out, nil
}

func (e *conceptEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if e.fail != nil {
		return nil, e.fail
	}
	return e.vector(text), nil
}

func (e *conceptEmbedder) embedded() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.texts
}

const shippingPolicy = "Parcels ship within two business days by courier."

func TestIndexRanksByEmbedding(t *testing.T) {
	ctx := context.Background()
	docs := writeDocs(t, map[string]string{"returns.txt": returnsPolicy, "shipping.txt": shippingPolicy})
	cfg := model.RetrievalConfig{IndexPath: filepath.Join(t.TempDir(), "index.db"), DocumentPath: docs}
	emb := &conceptEmbedder{model: "concept-v1"}

	ix, err := OpenIndex(ctx, cfg, emb)
	require.NoError(t, err)
	defer ix.Close()

	// no query word appears in either document
	got, err := ix.Search(ctx, "when do I get my money back?", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Contains(t, got[0], "Refunds are issued")

	got, err = ix.Search(ctx, "has my package left?", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, shippingPolicy, got[0])

	assert.Equal(t, 2, emb.embedded())

	got, err = ix.Search(ctx, "   ", 2)
	require.NoError(t, err)
	assert.Empty(t, got)
	got, err = ix.Search(ctx, "refund", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestIndexStoresEmbeddings(t *testing.T) {
	ctx := context.Background()
	docs := writeDocs(t, map[string]string{"returns.txt": returnsPolicy, "shipping.txt": shippingPolicy})
	cfg := model.RetrievalConfig{IndexPath: filepath.Join(t.TempDir(), "index.db"), DocumentPath: docs}

	first := &conceptEmbedder{model: "concept-v1"}
	ix, err := OpenIndex(ctx, cfg, first)
	require.NoError(t, err)
	_, err = ix.Search(ctx, "refund", 1)
	require.NoError(t, err)
	require.NoError(t, ix.Close())
	assert.Equal(t, 2, first.embedded())

	// reopening with the same model reads the stored vectors
	same := &conceptEmbedder{model: "concept-v1"}
	ix, err = OpenIndex(ctx, cfg, same)
	require.NoError(t, err)
	got, err := ix.Search(ctx, "courier", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{shippingPolicy}, got)
	require.NoError(t, ix.Close())
	assert.Zero(t, same.embedded())

	// a different model re-embeds every chunk once
	next := &conceptEmbedder{model: "concept-v2"}
	ix, err = OpenIndex(ctx, cfg, next)
	require.NoError(t, err)
	defer ix.Close()
	_, err = ix.Search(ctx, "refund", 1)
	require.NoError(t, err)
	_, err = ix.Search(ctx, "courier", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, next.embedded())
}

func TestIndexMigratesKeywordOnlySchema(t *testing.T) {
	ctx := context.Background()
	docs := writeDocs(t, map[string]string{"shipping.txt": shippingPolicy})
	cfg := model.RetrievalConfig{IndexPath: filepath.Join(t.TempDir(), "index.db"), DocumentPath: docs}

	db, err := sql.Open("sqlite", cfg.IndexPath)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		position INTEGER NOT NULL,
		content TEXT NOT NULL
	)`)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO chunks (source, position, content) VALUES ('shipping.txt', 0, ?)", shippingPolicy)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	emb := &conceptEmbedder{model: "concept-v1"}
	ix, err := OpenIndex(ctx, cfg, emb)
	require.NoError(t, err)
	defer ix.Close()

	got, err := ix.Search(ctx, "parcels", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{shippingPolicy}, got)
	assert.Equal(t, 1, emb.embedded())
}

func TestIndexQueryEmbeddingError(t *testing.T) {
	ctx := context.Background()
	docs := writeDocs(t, map[string]string{"returns.txt": returnsPolicy})
	cfg := model.RetrievalConfig{IndexPath: filepath.Join(t.TempDir(), "index.db"), DocumentPath: docs}
	quota := errors.New("quota exceeded")

	ix, err := OpenIndex(ctx, cfg, &conceptEmbedder{model: "concept-v1", fail: quota})
	require.NoError(t, err)
	defer ix.Close()

	_, err = ix.Search(ctx, "refund", 2)
	require.ErrorIs(t, err, quota)
}
