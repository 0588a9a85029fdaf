package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/petasbytes/recagent/internal/safety"
)

const maxK = 50

type TopKInput struct {
	User    int     `json:"user" jsonschema_description:"Numeric id of the user to recommend for."`
	K       int     `json:"k" jsonschema_description:"Number of items to return (1-50)."`
	Filters Filters `json:"filters,omitempty" jsonschema_description:"Optional constraints on the returned items."`
	Catalog string  `json:"catalog,omitempty" jsonschema_description:"Catalog file under the data root (default catalog.json)."`
}

type ItemDetailsInput struct {
	ItemIDs []int  `json:"item_ids" jsonschema_description:"Ids of the items to describe."`
	Catalog string `json:"catalog,omitempty" jsonschema_description:"Catalog file under the data root (default catalog.json)."`
}

var TopKDefinition = ToolDefinition{
	Name:        "get_top_k_recommendations",
	Description: "Return the k most relevant unseen catalog items for a user, optionally filtered by genre and release year.",
	InputSchema: GenerateSchema[TopKInput](),
	Function:    TopK,
}

var ItemDetailsDefinition = ToolDefinition{
	Name:        "get_item_details",
	Description: "Return title, genres, year and popularity for the given catalog item ids.",
	InputSchema: GenerateSchema[ItemDetailsInput](),
	Function:    ItemDetails,
}

// TopK ranks catalog items for a user. A missing catalog is reported as a failure payload.
func TopK(_ context.Context, args map[string]any) (any, error) {
	in, err := decodeArgs[TopKInput](args)
	if err != nil {
		return nil, err
	}
	if in.K < 1 || in.K > maxK {
		return nil, fmt.Errorf("k must be between 1 and %d, got %d", maxK, in.K)
	}
	cat, err := LoadCatalog(in.Catalog)
	if err != nil {
		return catalogFailure(err)
	}
	items := cat.TopK(in.User, in.K, in.Filters)
	if len(items) == 0 {
		return Failure("no items match the requested filters"), nil
	}
	return map[string]any{"status": "success", "user": in.User, "items": items}, nil
}

// ItemDetails looks items up by id.
func ItemDetails(_ context.Context, args map[string]any) (any, error) {
	in, err := decodeArgs[ItemDetailsInput](args)
	if err != nil {
		return nil, err
	}
	if len(in.ItemIDs) == 0 {
		return nil, errors.New("item_ids is empty")
	}
	cat, err := LoadCatalog(in.Catalog)
	if err != nil {
		return catalogFailure(err)
	}
	found, missing := cat.ByIDs(in.ItemIDs)
	if len(found) == 0 {
		return Failure("none of the requested items exist"), nil
	}
	return map[string]any{"status": "success", "items": found, "missing": missing}, nil
}

// catalogFailure turns sandbox and missing-file errors into failure payloads; anything else is an execution error.
func catalogFailure(err error) (any, error) {
	var te safety.ToolError
	if errors.As(err, &te) {
		return Failure(te.Message), nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return Failure("catalog not found"), nil
	}
	return nil, err
}
