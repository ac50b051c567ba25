package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/ersonp/lore-memory/internal/domain/services"
	"github.com/ersonp/lore-memory/internal/infrastructure/parsers"
)

// ImportHandler handles ingesting candidate facts from JSON or CSV files.
type ImportHandler struct {
	service *services.ImportService
}

// NewImportHandler creates a new import handler.
func NewImportHandler(service *services.ImportService) *ImportHandler {
	return &ImportHandler{
		service: service,
	}
}

// ImportOptions controls import behavior.
type ImportOptions struct {
	Format  string // "json", "csv", or "auto"
	DryRun  bool   // Validate without saving
	Chapter int    // valid_from for rows that carry none
}

// Handle imports candidate facts from a file.
func (h *ImportHandler) Handle(ctx context.Context, filePath string, opts ImportOptions) (*services.ImportResult, error) {
	var parser parsers.Parser
	if opts.Format == "" || opts.Format == "auto" {
		parser = parsers.ForFile(filePath)
	} else {
		parser = parsers.ForFormat(opts.Format)
	}

	if parser == nil {
		return nil, fmt.Errorf("unsupported format for file: %s", filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer file.Close()

	raw, err := parser.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("parsing file: %w", err)
	}

	if len(raw) == 0 {
		return &services.ImportResult{}, nil
	}

	return h.service.Import(ctx, raw, services.ImportOptions{
		DryRun:  opts.DryRun,
		Chapter: opts.Chapter,
	})
}
