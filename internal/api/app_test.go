package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/nlpmodel/internal/directory"
	"github.com/kalambet/nlpmodel/internal/model"
	"github.com/kalambet/nlpmodel/internal/sqlgen"
	"github.com/kalambet/nlpmodel/internal/storage"
)

const testToken = "test-token-12345"

// fakeSchema is a SchemaSource over a fixed schema.
type fakeSchema struct {
	schema     sqlgen.Schema
	err        error
	refreshErr error
	refreshes  int
	builtAt    time.Time
}

func (f *fakeSchema) Schema(context.Context) (sqlgen.Schema, error) {
	return f.schema, f.err
}

func (f *fakeSchema) Refresh(context.Context) (sqlgen.Schema, error) {
	if f.refreshErr != nil {
		return sqlgen.Schema{}, f.refreshErr
	}
	f.refreshes++
	f.builtAt = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return f.schema, nil
}

func (f *fakeSchema) BuiltAt() time.Time { return f.builtAt }

func testSchema() sqlgen.Schema {
	id := sqlgen.NewColumn("orders", sqlgen.ColumnInfo{Name: "id", DataType: "INTEGER", PrimaryKey: true})
	created := sqlgen.NewColumn("orders", sqlgen.ColumnInfo{Name: "created_at", DataType: "TIMESTAMP"})
	total := sqlgen.NewColumn("orders", sqlgen.ColumnInfo{Name: "total", DataType: "REAL", Nullable: true})
	orders := sqlgen.NewTable("orders", []sqlgen.Column{id, created, total}, []sqlgen.Sort{sqlgen.NewSort(created, false)})
	return sqlgen.NewSchema([]sqlgen.Table{orders})
}

func setupAppHandler(t *testing.T) (http.Handler, *directory.Directory, *fakeSchema) {
	t.Helper()
	dir := directory.New(newTestStore(t), time.Minute)
	schema := &fakeSchema{schema: testSchema()}

	handler := NewAppHandler(AppDeps{
		Users:     dir,
		Schema:    schema,
		Extractor: sqlgen.NewExtractor(),
		Token:     testToken,
	})
	return handler, dir, schema
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func errorType(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return body.Error.Type
}

func TestHealth_NoAuth(t *testing.T) {
	h, _, _ := setupAppHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var body map[string]string
	json.NewDecoder(rr.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("body = %v, want status=ok", body)
	}
}

func TestAuth_Required(t *testing.T) {
	h, _, _ := setupAppHandler(t)

	for _, token := range []string{"", "wrong-token"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, authReq(http.MethodGet, "/users", "", token))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("token %q: status = %d, want 401", token, rr.Code)
		}
		if got := errorType(t, rr); got != "authentication_error" {
			t.Errorf("token %q: error type = %q", token, got)
		}
	}
}

func TestRequestID(t *testing.T) {
	h, _, _ := setupAppHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected a generated X-Request-ID")
	}

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want abc-123", got)
	}
}

func TestUsers_CreateGetDelete(t *testing.T) {
	h, _, _ := setupAppHandler(t)

	body := `{"id":7,"first_name":"Jane","last_name":null,"email":"jane@example.com","properties":{"team":"core"},"is_admin":true,"signup_timestamp":1700000000000}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/users", body, testToken))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d; body = %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/users/7", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var got model.User
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if v, _ := got.FirstName().Get(); v != "Jane" {
		t.Errorf("FirstName = %q", v)
	}
	if got.LastName().IsPresent() {
		t.Error("LastName should be absent")
	}
	if !got.IsAdmin() || got.SignupTimestamp() != 1700000000000 {
		t.Errorf("IsAdmin=%v SignupTimestamp=%d", got.IsAdmin(), got.SignupTimestamp())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/users/7/summary", "", testToken))
	if !strings.Contains(rr.Body.String(), "Jane <jane@example.com>") {
		t.Errorf("summary body = %s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodDelete, "/users/7", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/users/7", "", testToken))
	if rr.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rr.Code)
	}
}

func TestUsers_Errors(t *testing.T) {
	h, _, _ := setupAppHandler(t)

	tests := []struct {
		name   string
		method string
		url    string
		body   string
		code   int
	}{
		{"bad id", http.MethodGet, "/users/abc", "", http.StatusBadRequest},
		{"missing user", http.MethodGet, "/users/404", "", http.StatusNotFound},
		{"missing summary", http.MethodGet, "/users/404/summary", "", http.StatusNotFound},
		{"delete missing", http.MethodDelete, "/users/404", "", http.StatusNotFound},
		{"bad body", http.MethodPost, "/users", "{", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, authReq(tt.method, tt.url, tt.body, testToken))
			if rr.Code != tt.code {
				t.Errorf("status = %d, want %d; body = %s", rr.Code, tt.code, rr.Body.String())
			}
		})
	}
}

func TestUsers_ListEmptyIsArray(t *testing.T) {
	h, dir, _ := setupAppHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/users", "", testToken))
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("empty list body = %q, want []", rr.Body.String())
	}

	for i := int64(1); i <= 3; i++ {
		dir.Register(model.NewUser(i, model.None[string](), model.None[string](), model.None[string](), model.None[string](),
			model.None[map[string]string](), false, 0))
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/users?limit=2&offset=1", "", testToken))
	var users []model.User
	if err := json.NewDecoder(rr.Body).Decode(&users); err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 {
		t.Errorf("len(users) = %d, want 2", len(users))
	}
}

func TestSchema_Tables(t *testing.T) {
	h, _, _ := setupAppHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/schema/tables", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var tables []sqlgen.TableView
	if err := json.NewDecoder(rr.Body).Decode(&tables); err != nil {
		t.Fatal(err)
	}
	if len(tables) != 1 || tables[0].Name != "orders" || len(tables[0].Columns) != 3 {
		t.Fatalf("tables = %+v", tables)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/schema/tables/ORDERS", "", testToken))
	var tv sqlgen.TableView
	if err := json.NewDecoder(rr.Body).Decode(&tv); err != nil {
		t.Fatal(err)
	}
	if len(tv.DefaultSort) != 1 || tv.DefaultSort[0].Column != "created_at" || tv.DefaultSort[0].Ascending {
		t.Errorf("default sort = %+v", tv.DefaultSort)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/schema/tables/missing", "", testToken))
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing table status = %d, want 404", rr.Code)
	}
}

func TestSchema_Unavailable(t *testing.T) {
	h, _, schema := setupAppHandler(t)
	schema.err = errors.New("db down")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/schema/tables", "", testToken))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}

func TestSchema_Refresh(t *testing.T) {
	h, _, schema := setupAppHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/schema/refresh", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	if schema.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", schema.refreshes)
	}
	if !strings.Contains(rr.Body.String(), "2024-01-02T03:04:05Z") {
		t.Errorf("body = %s, want built_at", rr.Body.String())
	}

	schema.refreshErr = errors.New("boom")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/schema/refresh", "", testToken))
	if rr.Code != http.StatusBadGateway {
		t.Errorf("failed refresh status = %d, want 502", rr.Code)
	}
}

func TestSchema_ExtractSort(t *testing.T) {
	h, _, _ := setupAppHandler(t)

	tests := []struct {
		name    string
		table   string
		body    string
		code    int
		wantCol string
		wantAsc bool
		errType string
	}{
		{name: "direction word", table: "orders", body: `{"text":"highest total first"}`, code: 200, wantCol: "total", wantAsc: false},
		{name: "explicit ascending", table: "orders", body: `{"text":"newest","subject":"created at","ascending":true}`, code: 200, wantCol: "created_at", wantAsc: true},
		{name: "table default", table: "orders", body: `{"text":"by created_at","ascending":null}`, code: 200, wantCol: "created_at", wantAsc: false},
		{name: "unknown column", table: "orders", body: `{"text":"by colour"}`, code: 422, errType: "unresolved_column"},
		{name: "empty token", table: "orders", body: `{"text":"  "}`, code: 400, errType: "invalid_request_error"},
		{name: "missing table", table: "nope", body: `{"text":"id"}`, code: 404, errType: "not_found"},
		{name: "bad json", table: "orders", body: `{`, code: 400, errType: "invalid_request_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, authReq(http.MethodPost, "/schema/tables/"+tt.table+"/sort", tt.body, testToken))
			if rr.Code != tt.code {
				t.Fatalf("status = %d, want %d; body = %s", rr.Code, tt.code, rr.Body.String())
			}
			if tt.code != http.StatusOK {
				if got := errorType(t, rr); got != tt.errType {
					t.Errorf("error type = %q, want %q", got, tt.errType)
				}
				return
			}
			var sv sqlgen.SortView
			if err := json.NewDecoder(rr.Body).Decode(&sv); err != nil {
				t.Fatal(err)
			}
			if sv.Column != tt.wantCol || sv.Ascending != tt.wantAsc {
				t.Errorf("sort = %+v, want %s asc=%v", sv, tt.wantCol, tt.wantAsc)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	h := NewAppHandler(AppDeps{
		Users:       directory.New(newTestStore(t), time.Minute),
		Schema:      &fakeSchema{schema: testSchema()},
		Extractor:   sqlgen.NewExtractor(),
		Token:       testToken,
		CORSOrigins: []string{"http://localhost:3000"},
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/users", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("preflight Allow-Origin = %q", got)
	}
	if rr.Code == http.StatusUnauthorized {
		t.Error("preflight must not require the bearer token")
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin got Allow-Origin = %q", got)
	}
}

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}
