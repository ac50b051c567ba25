package handlers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ersonp/lore-memory/internal/domain/services"
)

// ExtractHandler handles extracting facts from narrative files.
type ExtractHandler struct {
	extractionService *services.ExtractionService
}

// NewExtractHandler creates a new extract handler.
func NewExtractHandler(extractionService *services.ExtractionService) *ExtractHandler {
	return &ExtractHandler{
		extractionService: extractionService,
	}
}

// ExtractOptions controls extraction behavior.
type ExtractOptions struct {
	Chapter int  // Chapter the passage belongs to
	DryRun  bool // Only extract, don't ingest
}

// ExtractResult contains the result of extracting one file.
type ExtractResult struct {
	FilePath string
	*services.ExtractionResult
}

// ExtractBatchResult contains the result of extracting a directory.
type ExtractBatchResult struct {
	TotalFiles      int
	TotalCandidates int
	FileResults     []*ExtractResult
	Errors          []error
}

// Handle extracts and ingests facts from a file. The file is streamed
// rather than loaded into memory.
func (h *ExtractHandler) Handle(ctx context.Context, filePath string, opts ExtractOptions) (*ExtractResult, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("accessing file: %w", err)
	}

	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", absPath)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer file.Close()

	result, err := h.extractionService.ExtractFromReader(ctx, file, services.ExtractionOptions{
		Chapter: opts.Chapter,
		DryRun:  opts.DryRun,
	})
	if err != nil {
		return nil, fmt.Errorf("extracting facts: %w", err)
	}

	return &ExtractResult{
		FilePath:         absPath,
		ExtractionResult: result,
	}, nil
}

// HandleDirectory extracts all matching files in a directory, in lexical
// order, all stamped with the same chapter.
func (h *ExtractHandler) HandleDirectory(ctx context.Context, dirPath string, pattern string, recursive bool, progressFn func(file string), opts ExtractOptions) (*ExtractBatchResult, error) {
	absPath, err := filepath.Abs(dirPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("accessing path: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", absPath)
	}

	files, err := findFiles(absPath, pattern, recursive)
	if err != nil {
		return nil, fmt.Errorf("finding files: %w", err)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no files matching pattern %q found in %s", pattern, absPath)
	}

	result := &ExtractBatchResult{
		FileResults: make([]*ExtractResult, 0, len(files)),
	}

	for _, file := range files {
		if progressFn != nil {
			progressFn(file)
		}

		fileResult, err := h.Handle(ctx, file, opts)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("%s: %w", file, err))
			continue
		}

		result.FileResults = append(result.FileResults, fileResult)
		result.TotalFiles++
		result.TotalCandidates += len(fileResult.Candidates)
	}

	return result, nil
}

// findFiles finds all files matching the pattern in the directory.
func findFiles(dirPath string, pattern string, recursive bool) ([]string, error) {
	var files []string

	walkFn := func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if !recursive && path != dirPath {
				return filepath.SkipDir
			}
			return nil
		}

		matched, err := filepath.Match(pattern, d.Name())
		if err != nil {
			return err
		}

		if matched {
			files = append(files, path)
		}

		return nil
	}

	if err := filepath.WalkDir(dirPath, walkFn); err != nil {
		return nil, err
	}

	return files, nil
}

// IsDirectory checks if the given path is a directory.
func IsDirectory(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// IsGlobPattern checks if the path contains glob characters.
func IsGlobPattern(path string) bool {
	return strings.ContainsAny(path, "*?[")
}
