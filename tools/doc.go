// Package tools defines tool contracts, the name-keyed registry and the catalog tools.
//
// Includes:
//   - ToolDefinition: name, description, JSON input schema, executor.
//   - GenerateSchema[T](): derive JSON Schema from Go structs.
//   - Registry: O(1) lookup, explicit ErrToolNotFound, executor failures as *ToolExecutionError.
//   - Catalog tools: get_top_k_recommendations, get_item_details, list_catalogs.
//
// Expected "not applicable" outcomes are returned as {"status":"failure","message":...}
// values rather than errors.
package tools
