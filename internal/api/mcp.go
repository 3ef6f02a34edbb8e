package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/nlpmodel/internal/directory"
	"github.com/kalambet/nlpmodel/internal/model"
	"github.com/kalambet/nlpmodel/internal/sqlgen"
	"github.com/kalambet/nlpmodel/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Users     UserDirectory
	Schema    SchemaSource
	Extractor SortExtractor
}

// NewMCPServer creates an MCP server with the directory and schema tools
// registered.
func NewMCPServer(deps MCPDeps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"nlpmodel",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("nlpmodel: user directory and database schema metadata for natural-language query building."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("lookup_user",
			mcp.WithDescription("Look up a user by numeric id and return the descriptor plus a short profile summary."),
			mcp.WithNumber("id", mcp.Description("User id"), mcp.Required()),
		),
		mcpLookupUser(deps),
	)

	s.AddTool(
		mcp.NewTool("describe_table",
			mcp.WithDescription("Describe a database table: columns, types, nullability, primary keys and default sort."),
			mcp.WithString("table", mcp.Description("Table name"), mcp.Required()),
		),
		mcpDescribeTable(deps),
	)

	s.AddTool(
		mcp.NewTool("extract_sort",
			mcp.WithDescription("Resolve a natural-language sort phrase (e.g. \"newest first\") to a column and direction."),
			mcp.WithString("table", mcp.Description("Table the sort applies to"), mcp.Required()),
			mcp.WithString("text", mcp.Description("Sort phrase as written by the user"), mcp.Required()),
			mcp.WithString("subject", mcp.Description("Optional column phrase, e.g. \"created at\"")),
			mcp.WithBoolean("ascending", mcp.Description("Explicit direction; overrides words in text")),
		),
		mcpExtractSort(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"schema://tables",
			"Schema Tables",
			mcp.WithResourceDescription("All known tables with columns and default sorts as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceTables(deps),
	)

	return s
}

func mcpLookupUser(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := int64Arg(req, "id")
		if err != nil {
			return mcpError(err.Error()), nil
		}

		u, err := deps.Users.Lookup(id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("user %d not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("lookup failed: %v", err)), nil
		}

		b, err := json.Marshal(struct {
			User    model.User `json:"user"`
			Summary string     `json:"summary"`
		}{u, directory.Summarize(u)})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal user: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpDescribeTable(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("table")
		if err != nil {
			return mcpError("table is required"), nil
		}

		t, res := mcpTable(ctx, deps, name)
		if res != nil {
			return res, nil
		}

		b, err := json.Marshal(sqlgen.ViewTable(t))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal table: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpExtractSort(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("table")
		if err != nil {
			return mcpError("table is required"), nil
		}
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}

		tok := sqlgen.Token{
			Text:    text,
			Subject: req.GetString("subject", ""),
		}
		if asc, ok := req.GetArguments()["ascending"].(bool); ok {
			tok.Ascending = model.Some(asc)
		}

		t, res := mcpTable(ctx, deps, name)
		if res != nil {
			return res, nil
		}

		s, err := deps.Extractor.ExtractSort(t, tok)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		b, err := json.Marshal(sqlgen.ViewSort(s))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal sort: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

// mcpTable resolves name against the current schema. A non-nil result is an
// error to hand back to the client.
func mcpTable(ctx context.Context, deps MCPDeps, name string) (sqlgen.Table, *mcp.CallToolResult) {
	schema, err := deps.Schema.Schema(ctx)
	if err != nil {
		return sqlgen.Table{}, mcpError(fmt.Sprintf("schema unavailable: %v", err))
	}
	t, err := schema.Table(name)
	if err != nil {
		return sqlgen.Table{}, mcpError(err.Error())
	}
	return t, nil
}

func mcpResourceTables(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		schema, err := deps.Schema.Schema(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load schema: %w", err)
		}

		views := make([]sqlgen.TableView, 0, len(schema.Tables()))
		for _, t := range schema.Tables() {
			views = append(views, sqlgen.ViewTable(t))
		}

		b, err := json.Marshal(views)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal tables: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

// int64Arg reads a required integer argument. Any sign is accepted; ids past
// 2^53 survive only when sent as json.Number or a decimal string.
func int64Arg(req mcp.CallToolRequest, key string) (int64, error) {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return 0, fmt.Errorf("%s is required", key)
	}
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%s must be an integer", key)
		}
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case json.Number:
		id, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer", key)
		}
		return id, nil
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer", key)
		}
		return id, nil
	default:
		return 0, fmt.Errorf("%s must be an integer", key)
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
