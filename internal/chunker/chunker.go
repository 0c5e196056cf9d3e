// Package chunker turns fetched repository files into overlapping text chunks
// sized for embedding.
package chunker

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/bull/gitglean/internal/github"
	"github.com/bull/gitglean/internal/markdown"
)

const (
	DefaultChunkSize    = 256
	DefaultChunkOverlap = 32
)

// Chunk is a contiguous slice of one source file.
type Chunk struct {
	SourcePath    string
	RepositoryURL string
	PageContent   string
	SequenceIndex int    // position of the chunk within its file, from 0
	HeaderPath    string // markdown heading trail; empty for other files
}

// Chunker splits documents with a recursive character splitter: it prefers to
// break on blank lines, then newlines, then spaces, and falls back to single
// characters for text with no separators at all.
type Chunker struct {
	splitter textsplitter.RecursiveCharacter
	sections bool
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithMarkdownSections makes markdown files split at H1/H2 headings before the
// character splitter runs, so no chunk straddles two sections.
func WithMarkdownSections(enabled bool) Option {
	return func(c *Chunker) { c.sections = enabled }
}

// New creates a chunker. Non-positive sizes fall back to the defaults.
func New(chunkSize, chunkOverlap int, opts ...Option) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = DefaultChunkOverlap
	}
	c := &Chunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
		sections: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Split chunks every document in order. Chunks of one file are contiguous in
// the result and numbered from 0. Empty documents contribute nothing.
func (c *Chunker) Split(docs []github.Document) ([]Chunk, error) {
	var chunks []Chunk
	for _, doc := range docs {
		fileChunks, err := c.SplitDocument(doc)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, fileChunks...)
	}
	return chunks, nil
}

// SplitDocument chunks a single document.
func (c *Chunker) SplitDocument(doc github.Document) ([]Chunk, error) {
	if strings.TrimSpace(doc.Content) == "" {
		return nil, nil
	}

	sections := []markdown.Section{{Content: doc.Content}}
	if c.sections && markdown.IsMarkdown(doc.SourcePath) {
		sections = markdown.Split([]byte(doc.Content))
	}

	var chunks []Chunk
	for _, section := range sections {
		texts, err := c.splitter.SplitText(section.Content)
		if err != nil {
			return nil, fmt.Errorf("split %s: %w", doc.SourcePath, err)
		}
		for _, text := range texts {
			chunks = append(chunks, Chunk{
				SourcePath:    doc.SourcePath,
				RepositoryURL: doc.RepositoryURL,
				PageContent:   text,
				SequenceIndex: len(chunks),
				HeaderPath:    section.HeaderPath,
			})
		}
	}
	return chunks, nil
}

// EmbeddingText is the text sent to the embedding model for a chunk: newlines
// are replaced with spaces. The stored page content is left untouched.
func EmbeddingText(c Chunk) string {
	return strings.ReplaceAll(c.PageContent, "\n", " ")
}

// EmbeddingTexts applies EmbeddingText to every chunk, keeping order.
func EmbeddingTexts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = EmbeddingText(c)
	}
	return out
}
