// Package services contains domain business logic.
package services

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ersonp/lore-memory/internal/domain/entities"
	"github.com/ersonp/lore-memory/internal/domain/ports"
)

const (
	// DefaultChunkSize is the default size for text chunks.
	DefaultChunkSize = 2000
	// DefaultChunkOverlap is the default overlap between chunks.
	DefaultChunkOverlap = 200
)

// ExtractionOptions controls extraction behavior.
type ExtractionOptions struct {
	// Chapter stamps candidates the extractor left without a chapter.
	Chapter int
	// DryRun extracts candidates without ingesting them.
	DryRun bool
}

// ExtractionResult contains the result of extraction.
type ExtractionResult struct {
	Candidates []entities.CandidateFact
	// Results holds one entry per candidate unless DryRun was set.
	Results []BatchItemResult
}

// ExtractionService turns narrative text into candidate facts and ingests
// them.
type ExtractionService struct {
	llm    ports.LLMClient
	store  *FactStore
	logger *slog.Logger
}

// NewExtractionService creates a new extraction service.
func NewExtractionService(llm ports.LLMClient, store *FactStore, logger *slog.Logger) *ExtractionService {
	return &ExtractionService{
		llm:    llm,
		store:  store,
		logger: orDiscard(logger),
	}
}

// Extract extracts and ingests candidates from an in-memory text.
func (s *ExtractionService) Extract(ctx context.Context, text string, opts ExtractionOptions) (*ExtractionResult, error) {
	return s.ExtractFromReader(ctx, strings.NewReader(text), opts)
}

// ExtractFromReader streams text from r in paragraph-aligned chunks, asks the
// extractor for candidates per chunk and ingests them in order.
func (s *ExtractionService) ExtractFromReader(ctx context.Context, r io.Reader, opts ExtractionOptions) (*ExtractionResult, error) {
	if opts.Chapter < 1 {
		return nil, fmt.Errorf("%w: chapter must be >= 1, got %d", entities.ErrInvalidFact, opts.Chapter)
	}

	var candidates []entities.CandidateFact
	chunk := 0
	processChunk := func(text string) error {
		chunk++
		// One call per chunk: the extractor has a token limit.
		found, err := s.llm.ExtractCandidates(ctx, text, opts.Chapter)
		if err != nil {
			return fmt.Errorf("extracting candidates from chunk %d: %w", chunk, err)
		}
		for i := range found {
			if found[i].ValidFrom == 0 {
				found[i].ValidFrom = opts.Chapter
			}
		}
		s.logger.Debug("extracted candidates", "chunk", chunk, "count", len(found))
		candidates = append(candidates, found...)
		return nil
	}

	chunker := newStreamChunker(r, DefaultChunkSize, DefaultChunkOverlap)
	if err := chunker.run(processChunk); err != nil {
		return nil, err
	}

	result := &ExtractionResult{Candidates: candidates}
	if opts.DryRun || len(candidates) == 0 {
		return result, nil
	}

	results, err := s.store.IngestBatch(ctx, candidates)
	result.Results = results
	if err != nil {
		return result, err
	}
	return result, nil
}

// streamChunker accumulates paragraphs from a reader into overlapping chunks.
type streamChunker struct {
	scanner   *bufio.Scanner
	size      int
	overlap   int
	chunk     strings.Builder
	paragraph strings.Builder
}

func newStreamChunker(r io.Reader, size, overlap int) *streamChunker {
	scanner := bufio.NewScanner(r)
	// Allow up to 1MB lines
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &streamChunker{scanner: scanner, size: size, overlap: overlap}
}

func (c *streamChunker) run(emit func(string) error) error {
	for c.scanner.Scan() {
		line := c.scanner.Text()
		if strings.TrimSpace(line) == "" {
			if err := c.endParagraph(emit); err != nil {
				return err
			}
			continue
		}
		if c.paragraph.Len() > 0 {
			c.paragraph.WriteString("\n")
		}
		c.paragraph.WriteString(line)
	}
	if err := c.scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	if err := c.endParagraph(emit); err != nil {
		return err
	}
	if c.chunk.Len() > 0 {
		return emit(c.chunk.String())
	}
	return nil
}

func (c *streamChunker) endParagraph(emit func(string) error) error {
	para := c.paragraph.String()
	c.paragraph.Reset()
	if para == "" {
		return nil
	}

	if c.chunk.Len() > 0 && c.chunk.Len()+len(para)+2 > c.size {
		full := c.chunk.String()
		if err := emit(full); err != nil {
			return err
		}
		c.chunk.Reset()
		c.chunk.WriteString(overlapTail(full, c.overlap))
	}
	if c.chunk.Len() > 0 {
		c.chunk.WriteString("\n\n")
	}
	c.chunk.WriteString(para)
	return nil
}

// overlapTail returns at most the last n bytes of text, starting at the
// beginning of a word. A tail made of a single partial word is dropped.
func overlapTail(text string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(text) <= n {
		return text
	}

	start := len(text) - n
	for start < len(text) && !utf8.RuneStart(text[start]) {
		start++
	}
	if prev, _ := utf8.DecodeLastRuneInString(text[:start]); !unicode.IsSpace(prev) {
		next := strings.IndexFunc(text[start:], unicode.IsSpace)
		if next < 0 {
			return ""
		}
		start += next
	}
	return strings.TrimLeftFunc(text[start:], unicode.IsSpace)
}
