package retrieval

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	logx "github.com/auto-support-pilot/server/pkg/logger"
)

const maxChunkChars = 800

// Document is one loaded source file.
type Document struct {
	Source string
	Text   string
}

// LoadDocuments reads the .txt, .md and .pdf files directly inside dir.
// Other files and subdirectories are skipped, as are PDFs that cannot be
// parsed. A missing dir yields no documents.
func LoadDocuments(dir string) ([]Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			logx.Info().Str("path", dir).Msg("document folder does not exist")
			return nil, nil
		}
		return nil, fmt.Errorf("read document folder: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var docs []Document
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".txt" && ext != ".md" && ext != ".pdf" {
			logx.Debug().Str("file", e.Name()).Msg("skipping unsupported document")
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		var body string
		switch ext {
		case ".md":
			body = markdownText(raw)
		case ".pdf":
			body, err = pdfText(raw)
			if err != nil {
				logx.Warn().Err(err).Str("file", e.Name()).Msg("skipping unreadable pdf")
				continue
			}
		default:
			body = string(raw)
		}
		if strings.TrimSpace(body) == "" {
			continue
		}
		docs = append(docs, Document{Source: e.Name(), Text: body})
	}
	return docs, nil
}

// markdownText flattens markdown to plain text with a blank line after
// every block, so chunking sees the same paragraphs a reader does.
func markdownText(src []byte) string {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var buf bytes.Buffer
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch v := n.(type) {
		case *ast.Text:
			if entering {
				buf.Write(v.Segment.Value(src))
				if v.SoftLineBreak() || v.HardLineBreak() {
					buf.WriteByte(' ')
				}
			}
		case *ast.String:
			if entering {
				buf.Write(v.Value)
			}
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					buf.Write(seg.Value(src))
				}
				buf.WriteString("\n\n")
			}
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.Heading, *ast.TextBlock:
			if !entering {
				buf.WriteString("\n\n")
			}
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

// pdfText extracts the text of every page, one paragraph per page.
func pdfText(raw []byte) (text string, err error) {
	// the pdf reader panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	var buf strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		buf.WriteString(content)
		buf.WriteString("\n\n")
	}
	return buf.String(), nil
}

// Chunk splits text on blank lines and packs consecutive paragraphs into
// chunks of at most maxChunkChars. Longer paragraphs are split on spaces.
func Chunk(body string) []string {
	var chunks []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
	}

	for _, para := range splitParagraphs(body) {
		for _, piece := range splitLong(para, maxChunkChars) {
			if cur.Len() > 0 && cur.Len()+1+len(piece) > maxChunkChars {
				flush()
			}
			if cur.Len() > 0 {
				cur.WriteByte('\n')
			}
			cur.WriteString(piece)
		}
	}
	flush()
	return chunks
}

func splitParagraphs(body string) []string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	var out []string
	for _, p := range strings.Split(body, "\n\n") {
		p = strings.Join(strings.Fields(p), " ")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitLong(para string, limit int) []string {
	if len(para) <= limit {
		return []string{para}
	}
	var out []string
	for len(para) > limit {
		cut := strings.LastIndexFunc(para[:limit], unicode.IsSpace)
		if cut <= 0 {
			cut = limit
		}
		out = append(out, strings.TrimSpace(para[:cut]))
		para = strings.TrimSpace(para[cut:])
	}
	if para != "" {
		out = append(out, para)
	}
	return out
}
