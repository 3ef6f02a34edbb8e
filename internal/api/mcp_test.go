package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/nlpmodel/internal/directory"
	"github.com/kalambet/nlpmodel/internal/model"
	"github.com/kalambet/nlpmodel/internal/sqlgen"
	"github.com/kalambet/nlpmodel/internal/storage"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, *fakeSchema) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	dir := directory.New(store, time.Minute)
	jane := model.NewUser(1, model.Some("Jane"), model.Some("Doe"), model.None[string](), model.None[string](),
		model.Some(map[string]string{"plan": "pro"}), false, 1700000000000)
	if err := dir.Register(jane); err != nil {
		t.Fatal(err)
	}

	schema := &fakeSchema{schema: testSchema()}
	return MCPDeps{
		Users:     dir,
		Schema:    schema,
		Extractor: sqlgen.NewExtractor(),
	}, schema
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestMCPTool_LookupUser(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpLookupUser(deps)

	result, err := handler(context.Background(), makeCallToolRequest("lookup_user", map[string]interface{}{
		"id": float64(1),
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var got struct {
		User    model.User `json:"user"`
		Summary string     `json:"summary"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if got.User.ID() != 1 {
		t.Errorf("user id = %d, want 1", got.User.ID())
	}
	if got.User.Email().IsPresent() {
		t.Error("email should stay absent")
	}
	if !strings.Contains(got.Summary, "User: Jane Doe.") {
		t.Errorf("summary = %q", got.Summary)
	}
}

func TestMCPTool_LookupUser_Errors(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpLookupUser(deps)

	result, _ := handler(context.Background(), makeCallToolRequest("lookup_user", map[string]interface{}{}))
	if !result.IsError {
		t.Error("expected error for missing id")
	}

	result, _ = handler(context.Background(), makeCallToolRequest("lookup_user", map[string]interface{}{"id": float64(99)}))
	if !result.IsError || !strings.Contains(toolText(t, result), "not found") {
		t.Errorf("missing user result = %q", toolText(t, result))
	}
}

func TestMCPTool_LookupUser_NegativeAndLargeIDs(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	neg := model.NewUser(-5, model.None[string](), model.None[string](), model.None[string](), model.None[string](),
		model.None[map[string]string](), false, 0)
	big := model.NewUser(9007199254740993, model.Some("Big"), model.None[string](), model.None[string](), model.None[string](),
		model.None[map[string]string](), false, 0)
	for _, u := range []model.User{neg, big} {
		if err := deps.Users.Register(u); err != nil {
			t.Fatal(err)
		}
	}
	handler := mcpLookupUser(deps)

	tests := []struct {
		name   string
		id     interface{}
		wantID int64
	}{
		{"negative number", float64(-5), -5},
		{"json number past float precision", json.Number("9007199254740993"), 9007199254740993},
		{"decimal string", "9007199254740993", 9007199254740993},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := handler(context.Background(), makeCallToolRequest("lookup_user", map[string]interface{}{"id": tt.id}))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.IsError {
				t.Fatalf("unexpected tool error: %s", toolText(t, result))
			}
			var got struct {
				User model.User `json:"user"`
			}
			if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
				t.Fatal(err)
			}
			if got.User.ID() != tt.wantID {
				t.Errorf("user id = %d, want %d", got.User.ID(), tt.wantID)
			}
		})
	}

	result, _ := handler(context.Background(), makeCallToolRequest("lookup_user", map[string]interface{}{"id": 1.5}))
	if !result.IsError || !strings.Contains(toolText(t, result), "integer") {
		t.Errorf("fractional id result = %q", toolText(t, result))
	}
}

func TestMCPTool_DescribeTable(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpDescribeTable(deps)

	result, err := handler(context.Background(), makeCallToolRequest("describe_table", map[string]interface{}{
		"table": "orders",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var tv sqlgen.TableView
	if err := json.Unmarshal([]byte(toolText(t, result)), &tv); err != nil {
		t.Fatal(err)
	}
	if tv.Name != "orders" || len(tv.Columns) != 3 {
		t.Errorf("table view = %+v", tv)
	}
	if !tv.Columns[0].PrimaryKey || !tv.Columns[2].Nullable {
		t.Errorf("column flags lost: %+v", tv.Columns)
	}

	result, _ = handler(context.Background(), makeCallToolRequest("describe_table", map[string]interface{}{
		"table": "nope",
	}))
	if !result.IsError {
		t.Error("expected error for unknown table")
	}
}

func TestMCPTool_ExtractSort(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpExtractSort(deps)

	tests := []struct {
		name    string
		args    map[string]interface{}
		wantErr bool
		wantCol string
		wantAsc bool
	}{
		{
			name:    "words",
			args:    map[string]interface{}{"table": "orders", "text": "lowest total"},
			wantCol: "total",
			wantAsc: true,
		},
		{
			name:    "explicit direction",
			args:    map[string]interface{}{"table": "orders", "text": "oldest", "subject": "created_at", "ascending": false},
			wantCol: "created_at",
			wantAsc: false,
		},
		{
			name:    "unknown column",
			args:    map[string]interface{}{"table": "orders", "text": "by colour"},
			wantErr: true,
		},
		{
			name:    "missing text",
			args:    map[string]interface{}{"table": "orders"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := handler(context.Background(), makeCallToolRequest("extract_sort", tt.args))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.IsError != tt.wantErr {
				t.Fatalf("IsError = %v, want %v: %s", result.IsError, tt.wantErr, toolText(t, result))
			}
			if tt.wantErr {
				return
			}
			var sv sqlgen.SortView
			if err := json.Unmarshal([]byte(toolText(t, result)), &sv); err != nil {
				t.Fatal(err)
			}
			if sv.Column != tt.wantCol || sv.Ascending != tt.wantAsc {
				t.Errorf("sort = %+v, want %s asc=%v", sv, tt.wantCol, tt.wantAsc)
			}
		})
	}
}

func TestMCPResource_Tables(t *testing.T) {
	deps, schema := newTestMCPDeps(t)
	handler := mcpResourceTables(deps)

	contents, err := handler(context.Background(), makeReadResourceRequest("schema://tables"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if tc.URI != "schema://tables" || tc.MIMEType != "application/json" {
		t.Errorf("URI=%q MIMEType=%q", tc.URI, tc.MIMEType)
	}
	if !strings.Contains(tc.Text, `"name":"orders"`) {
		t.Errorf("resource text = %s", tc.Text)
	}

	schema.err = errors.New("db down")
	if _, err := handler(context.Background(), makeReadResourceRequest("schema://tables")); err == nil {
		t.Error("expected error when schema is unavailable")
	}
}

func TestNewMCPServer(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	if s := NewMCPServer(deps, "test"); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}
