package api

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the status API.
func buildOpenAPIDoc(version string, secured bool) map[string]any {
	if version == "" {
		version = "dev"
	}

	var security []any
	if secured {
		security = []any{map[string]any{"BearerAuth": []string{}}}
	}

	get := func(id, summary string, responses map[string]any, protected bool) map[string]any {
		op := map[string]any{
			"operationId": id,
			"summary":     summary,
			"responses":   responses,
		}
		if protected && security != nil {
			op["security"] = security
		}
		return map[string]any{"get": op}
	}

	doc := map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "knock status API",
			"version": version,
		},
		"paths": map[string]any{
			"/healthz": get("healthz", "Worker state and counters", map[string]any{
				"200": map[string]any{"description": "Healthy"},
			}, false),
			"/executions": get("executions", "Most recent executions, newest first", map[string]any{
				"200": map[string]any{"description": "Execution list"},
				"400": map[string]any{"description": "Bad limit"},
				"401": map[string]any{"description": "Missing or invalid token"},
			}, true),
			"/events": get("events", "Server-sent event stream of dispatcher activity", map[string]any{
				"200": map[string]any{"description": "text/event-stream"},
				"401": map[string]any{"description": "Missing or invalid token"},
			}, true),
		},
	}

	if secured {
		doc["components"] = map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		}
	}
	return doc
}
