package main

import (
	"encoding/json"
	"fmt"
)

func (s *Server) handleInitialize(params json.RawMessage) (*InitializeResult, *Error) {
	var initParams InitializeParams
	if params != nil {
		if err := json.Unmarshal(params, &initParams); err != nil {
			return nil, &Error{
				Code:    InvalidParams,
				Message: "Invalid initialize parameters",
				Data:    err.Error(),
			}
		}
	}

	s.initialized = true

	return &InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: ServerCapabilities{
			Tools:     &ToolsCapability{},
			Resources: &ResourcesCapability{},
			Prompts:   &PromptsCapability{},
		},
		ServerInfo: ServerInfo{
			Name:    ServerName,
			Version: ServerVersion,
		},
	}, nil
}

func (s *Server) handleListTools() (*ListToolsResult, *Error) {
	return &ListToolsResult{
		Tools: []Tool{
			{
				Name:        "list_schemas",
				Description: "List all schemas in the current database, excluding system schemas",
				InputSchema: InputSchema{
					Type:       "object",
					Properties: map[string]Property{},
					Required:   []string{},
				},
			},
			{
				Name:        "list_tables",
				Description: "List all tables in a specific schema",
				InputSchema: InputSchema{
					Type: "object",
					Properties: map[string]Property{
						"schema_name": {
							Type:        "string",
							Description: "The schema name to list tables from (default: \"public\")",
						},
					},
					Required: []string{},
				},
			},
			{
				Name:        "describe_table",
				Description: "Get detailed information about a table including columns, types, and constraints",
				InputSchema: InputSchema{
					Type: "object",
					Properties: map[string]Property{
						"table_name": {
							Type:        "string",
							Description: "The name of the table to describe",
						},
						"schema_name": {
							Type:        "string",
							Description: "The schema name (default: \"public\")",
						},
					},
					Required: []string{"table_name"},
				},
			},
			{
				Name:        "get_sample_data",
				Description: "Get sample data from a table",
				InputSchema: InputSchema{
					Type: "object",
					Properties: map[string]Property{
						"table_name": {
							Type:        "string",
							Description: "The name of the table to sample from",
						},
						"schema_name": {
							Type:        "string",
							Description: "The schema name (default: \"public\")",
						},
						"limit": {
							Type:        "integer",
							Description: "Maximum number of rows to return (default: 10)",
						},
					},
					Required: []string{"table_name"},
				},
			},
			{
				Name:        "execute_sql_query",
				Description: "Execute a custom SQL query (SELECT statements only for safety)",
				InputSchema: InputSchema{
					Type: "object",
					Properties: map[string]Property{
						"query": {
							Type:        "string",
							Description: "The SQL query to execute (must be a SELECT statement)",
						},
					},
					Required: []string{"query"},
				},
			},
			{
				Name:        "get_database_overview",
				Description: "Get a comprehensive overview of the entire database structure",
				InputSchema: InputSchema{
					Type:       "object",
					Properties: map[string]Property{},
					Required:   []string{},
				},
			},
		},
	}, nil
}

func (s *Server) handleCallTool(params json.RawMessage) (*CallToolResult, *Error) {
	var callParams CallToolParams
	if err := json.Unmarshal(params, &callParams); err != nil {
		return nil, &Error{
			Code:    InvalidParams,
			Message: "Invalid parameters",
			Data:    err.Error(),
		}
	}

	args := callParams.Arguments

	switch callParams.Name {
	case "list_schemas":
		return s.listSchemas(), nil
	case "list_tables":
		return s.listTables(stringArg(args, "schema_name", "public")), nil
	case "describe_table":
		tableName, ok := requiredStringArg(args, "table_name")
		if !ok {
			return nil, missingParam("table_name")
		}
		return s.describeTable(tableName, stringArg(args, "schema_name", "public")), nil
	case "get_sample_data":
		tableName, ok := requiredStringArg(args, "table_name")
		if !ok {
			return nil, missingParam("table_name")
		}
		return s.sampleData(tableName, stringArg(args, "schema_name", "public"),
			intArg(args, "limit", DefaultSampleLimit)), nil
	case "execute_sql_query":
		query, ok := requiredStringArg(args, "query")
		if !ok {
			return nil, missingParam("query")
		}
		return s.executeSQLQuery(query), nil
	case "get_database_overview":
		return s.databaseOverview(), nil
	default:
		return nil, &Error{
			Code:    MethodNotFound,
			Message: fmt.Sprintf("Unknown tool: %s", callParams.Name),
		}
	}
}

func (s *Server) listSchemas() *CallToolResult {
	ctx, cancel := s.queryContext()
	defer cancel()

	schemas, err := s.inspector.ListSchemas(ctx)
	if err != nil {
		return errorResult("Error listing schemas: %v", err)
	}
	return jsonResult(schemas)
}

func (s *Server) listTables(schemaName string) *CallToolResult {
	ctx, cancel := s.queryContext()
	defer cancel()

	tables, err := s.inspector.ListTables(ctx, schemaName)
	if err != nil {
		return errorResult("Error listing tables in schema '%s': %v", schemaName, err)
	}
	return jsonResult(tables)
}

func (s *Server) describeTable(tableName, schemaName string) *CallToolResult {
	ctx, cancel := s.queryContext()
	defer cancel()

	description, err := s.inspector.DescribeTable(ctx, tableName, schemaName)
	if err != nil {
		return errorResult("Error describing table '%s.%s': %v", schemaName, tableName, err)
	}
	return jsonResult(description)
}

func (s *Server) sampleData(tableName, schemaName string, limit int) *CallToolResult {
	ctx, cancel := s.queryContext()
	defer cancel()

	rows, err := s.inspector.SampleData(ctx, tableName, schemaName, limit)
	if err != nil {
		return errorResult("Error getting sample data from '%s.%s': %v", schemaName, tableName, err)
	}
	return jsonResult(rows)
}

func (s *Server) executeSQLQuery(query string) *CallToolResult {
	ctx, cancel := s.queryContext()
	defer cancel()

	rows, err := s.inspector.RunQuery(ctx, query)
	if err != nil {
		return errorResult("Error executing query: %v", err)
	}
	return jsonResult(rows)
}

func (s *Server) databaseOverview() *CallToolResult {
	ctx, cancel := s.queryContext()
	defer cancel()

	overview, err := s.inspector.Overview(ctx)
	if err != nil {
		return errorResult("Error getting database overview: %v", err)
	}
	return jsonResult(overview)
}

func (s *Server) handleListResources() (*ListResourcesResult, *Error) {
	return &ListResourcesResult{
		Resources: []Resource{
			{
				URI:      StructureResourceURI,
				Name:     "Complete database structure",
				MimeType: "application/json",
			},
		},
	}, nil
}

func (s *Server) handleReadResource(params json.RawMessage) (*ReadResourceResult, *Error) {
	var readParams ReadResourceParams
	if err := json.Unmarshal(params, &readParams); err != nil {
		return nil, &Error{
			Code:    InvalidParams,
			Message: "Invalid parameters",
			Data:    err.Error(),
		}
	}

	if readParams.URI != StructureResourceURI {
		return nil, &Error{
			Code:    InvalidParams,
			Message: fmt.Sprintf("Unknown resource URI: %s", readParams.URI),
		}
	}

	ctx, cancel := s.queryContext()
	defer cancel()

	structure, err := s.inspector.Structure(ctx)
	if err != nil {
		return nil, &Error{
			Code:    InternalError,
			Message: fmt.Sprintf("Error getting database structure: %v", err),
		}
	}

	structureJSON, err := json.MarshalIndent(structure, "", "  ")
	if err != nil {
		return nil, &Error{
			Code:    InternalError,
			Message: fmt.Sprintf("Failed to marshal structure: %v", err),
		}
	}

	return &ReadResourceResult{
		Contents: []ResourceContent{
			{
				URI:      readParams.URI,
				MimeType: "application/json",
				Text:     string(structureJSON),
			},
		},
	}, nil
}

func (s *Server) handleListPrompts() (*ListPromptsResult, *Error) {
	return &ListPromptsResult{
		Prompts: []Prompt{
			{
				Name:        SQLGenerationPromptName,
				Description: "Prompt for SQL query generation based on the current database structure",
			},
		},
	}, nil
}

func (s *Server) handleGetPrompt(params json.RawMessage) (*GetPromptResult, *Error) {
	var getParams GetPromptParams
	if err := json.Unmarshal(params, &getParams); err != nil {
		return nil, &Error{
			Code:    InvalidParams,
			Message: "Invalid parameters",
			Data:    err.Error(),
		}
	}

	if getParams.Name != SQLGenerationPromptName {
		return nil, &Error{
			Code:    InvalidParams,
			Message: fmt.Sprintf("Unknown prompt: %s", getParams.Name),
		}
	}

	ctx, cancel := s.queryContext()
	defer cancel()

	overview, err := s.inspector.Overview(ctx)
	if err != nil {
		return nil, &Error{
			Code:    InternalError,
			Message: fmt.Sprintf("Error generating SQL prompt: %v", err),
		}
	}

	prompt, err := renderSQLGenerationPrompt(overview)
	if err != nil {
		return nil, &Error{
			Code:    InternalError,
			Message: fmt.Sprintf("Error generating SQL prompt: %v", err),
		}
	}

	return &GetPromptResult{
		Description: "SQL generation guidance seeded with the database overview",
		Messages: []PromptMessage{
			{
				Role:    "user",
				Content: Content{Type: "text", Text: prompt},
			},
		},
	}, nil
}

// Argument and result helpers

func stringArg(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func requiredStringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key].(string)
	return v, ok && v != ""
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}

func missingParam(name string) *Error {
	return &Error{
		Code:    InvalidParams,
		Message: fmt.Sprintf("Missing or invalid '%s' parameter", name),
	}
}

func errorResult(format string, args ...any) *CallToolResult {
	return &CallToolResult{
		Content: []Content{{Type: "text", Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

func jsonResult(v any) *CallToolResult {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("Error encoding result: %v", err)
	}
	return &CallToolResult{
		Content: []Content{{Type: "text", Text: string(payload)}},
	}
}
