package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/kalambet/nlpmodel/internal/directory"
	"github.com/kalambet/nlpmodel/internal/model"
	"github.com/kalambet/nlpmodel/internal/sqlgen"
	"github.com/kalambet/nlpmodel/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// UserDirectory is the subset of *directory.Directory the API needs.
type UserDirectory interface {
	Lookup(id int64) (model.User, error)
	Register(u model.User) error
	Remove(id int64) error
	List(limit, offset int) ([]model.User, error)
}

// SchemaSource is the subset of *sqlgen.Registry the API needs.
type SchemaSource interface {
	Schema(ctx context.Context) (sqlgen.Schema, error)
	Refresh(ctx context.Context) (sqlgen.Schema, error)
	BuiltAt() time.Time
}

// SortExtractor resolves a sort token against a table.
type SortExtractor interface {
	ExtractSort(table sqlgen.Table, token sqlgen.Token) (sqlgen.Sort, error)
}

type AppDeps struct {
	Users     UserDirectory
	Schema    SchemaSource
	Extractor SortExtractor
	Token     string
	// CORSOrigins lists browser origins allowed to call the API; empty
	// disables CORS handling.
	CORSOrigins []string
}

// NewAppHandler returns the HTTP API. /health is public; every other route
// requires the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	if len(deps.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: deps.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
			AllowedHeaders: []string{"Authorization", "Content-Type", requestIDHeader},
			ExposedHeaders: []string{requestIDHeader},
		}).Handler)
	}

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/users", handleListUsers(deps))
		r.Post("/users", handleCreateUser(deps))
		r.Get("/users/{id}", handleGetUser(deps))
		r.Delete("/users/{id}", handleDeleteUser(deps))
		r.Get("/users/{id}/summary", handleUserSummary(deps))

		r.Get("/schema/tables", handleListTables(deps))
		r.Get("/schema/tables/{name}", handleGetTable(deps))
		r.Post("/schema/refresh", handleRefreshSchema(deps))
		r.Post("/schema/tables/{name}/sort", handleExtractSort(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleListUsers(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		users, err := deps.Users.List(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list users: %v", err)
			return
		}
		if users == nil {
			users = []model.User{}
		}
		writeJSON(w, http.StatusOK, users)
	}
}

func handleCreateUser(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var u model.User
		if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if err := deps.Users.Register(u); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save user: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, u)
	}
}

func handleGetUser(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := lookupUser(w, r, deps)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

func handleUserSummary(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := lookupUser(w, r, deps)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":      u.ID(),
			"summary": directory.Summarize(u),
		})
	}
}

func handleDeleteUser(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := userID(w, r)
		if !ok {
			return
		}

		err := deps.Users.Remove(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "user %d not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete user: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func lookupUser(w http.ResponseWriter, r *http.Request, deps AppDeps) (model.User, bool) {
	id, ok := userID(w, r)
	if !ok {
		return model.User{}, false
	}
	u, err := deps.Users.Lookup(id)
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "user %d not found", id)
		return model.User{}, false
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to get user: %v", err)
		return model.User{}, false
	}
	return u, true
}

func userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid user id %q", raw)
		return 0, false
	}
	return id, true
}

func handleListTables(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := deps.Schema.Schema(r.Context())
		if err != nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "schema unavailable: %v", err)
			return
		}
		views := make([]sqlgen.TableView, 0, len(s.Tables()))
		for _, t := range s.Tables() {
			views = append(views, sqlgen.ViewTable(t))
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func handleGetTable(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, ok := schemaTable(w, r, deps)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, sqlgen.ViewTable(t))
	}
}

func handleRefreshSchema(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := deps.Schema.Refresh(r.Context())
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "schema refresh failed: %v", err)
			return
		}
		slog.Info("schema refreshed", "tables", len(s.Tables()), "request_id", RequestIDFrom(r.Context()))
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "refreshed",
			"tables":   len(s.Tables()),
			"built_at": deps.Schema.BuiltAt().UTC().Format(time.RFC3339),
		})
	}
}

func handleExtractSort(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var tok sqlgen.Token
		if err := json.NewDecoder(r.Body).Decode(&tok); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		t, ok := schemaTable(w, r, deps)
		if !ok {
			return
		}

		s, err := deps.Extractor.ExtractSort(t, tok)
		if err != nil {
			code, errType := sortErrorStatus(err)
			httpError(w, code, errType, "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, sqlgen.ViewSort(s))
	}
}

func schemaTable(w http.ResponseWriter, r *http.Request, deps AppDeps) (sqlgen.Table, bool) {
	s, err := deps.Schema.Schema(r.Context())
	if err != nil {
		httpError(w, http.StatusServiceUnavailable, "api_error", "schema unavailable: %v", err)
		return sqlgen.Table{}, false
	}
	t, err := s.Table(chi.URLParam(r, "name"))
	if errors.Is(err, sqlgen.ErrTableNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
		return sqlgen.Table{}, false
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
		return sqlgen.Table{}, false
	}
	return t, true
}

func sortErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, sqlgen.ErrEmptyToken):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, sqlgen.ErrColumnNotFound):
		return http.StatusUnprocessableEntity, "unresolved_column"
	default:
		return http.StatusInternalServerError, "api_error"
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
