package tools

import (
	"context"

	"github.com/petasbytes/recagent/internal/fsops"
)

type ListCatalogsInput struct {
	Path     string `json:"path,omitempty" jsonschema_description:"Optional directory under the data root (defaults to the root)."`
	Page     int    `json:"page,omitempty" jsonschema_description:"1-based page number (default 1)."`
	PageSize int    `json:"page_size,omitempty" jsonschema_description:"Page size (default 50)."`
}

// defaultCatalogPageSize is the fallback page size when page_size <= 0.
const defaultCatalogPageSize = 50

var ListCatalogsDefinition = ToolDefinition{
	Name:        "list_catalogs",
	Description: "List the catalog JSON files available under the data root (non-recursive).",
	InputSchema: GenerateSchema[ListCatalogsInput](),
	Function:    ListCatalogs,
}

// ListCatalogs pages through *.json files in a data directory.
// Out-of-range pages return an empty list.
func ListCatalogs(_ context.Context, args map[string]any) (any, error) {
	in, err := decodeArgs[ListCatalogsInput](args)
	if err != nil {
		return nil, err
	}
	page := max(in.Page, 1)
	pageSize := in.PageSize
	if pageSize <= 0 {
		pageSize = defaultCatalogPageSize
	}

	names, err := fsops.ListFiles(in.Path, ".json")
	if err != nil {
		return catalogFailure(err)
	}
	start := (page - 1) * pageSize
	if start >= len(names) {
		return map[string]any{"status": "success", "catalogs": []string{}, "total": len(names)}, nil
	}
	end := min(start+pageSize, len(names))
	return map[string]any{"status": "success", "catalogs": names[start:end], "total": len(names)}, nil
}

// Defaults returns the catalog tool set.
func Defaults() []ToolDefinition {
	return []ToolDefinition{TopKDefinition, ItemDetailsDefinition, ListCatalogsDefinition}
}
