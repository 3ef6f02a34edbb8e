package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/kalambet/nlpmodel/internal/api"
	"github.com/kalambet/nlpmodel/internal/config"
	"github.com/kalambet/nlpmodel/internal/directory"
	"github.com/kalambet/nlpmodel/internal/sqlgen"
	"github.com/kalambet/nlpmodel/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the nlpmodel server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running nlpmodel server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show nlpmodel system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", true, "serve MCP tools over stdio alongside HTTP")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "nlpmodel.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func parseLogLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// openIntrospector returns the schema source selected by cfg and a func that
// releases it. The sqlite driver with no DSN introspects the directory
// database itself.
func openIntrospector(ctx context.Context, cfg config.SchemaConfig, store *storage.Store) (sqlgen.Introspector, func(), error) {
	switch strings.ToLower(cfg.Driver) {
	case "postgres":
		pool, err := sqlgen.OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return sqlgen.NewPostgresIntrospector(pool, ""), pool.Close, nil
	default:
		if cfg.DSN == "" {
			return sqlgen.NewSQLiteIntrospector(store.DB()), func() {}, nil
		}
		db, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite schema source: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("connecting to sqlite schema source: %w", err)
		}
		return sqlgen.NewSQLiteIntrospector(db), func() { db.Close() }, nil
	}
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "nlpmodel version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)})))

	apiToken, err := config.GetAPIToken(config.NewSecretStore())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Refuse to start twice on the same port.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("nlpmodel is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("nlpmodel is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printStep("Opening storage in %s", cfg.Storage.DataDir)
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	ttl, _ := cfg.Directory.TTL()
	users := directory.New(store, ttl)

	printStep("Connecting to %s schema source", cfg.Schema.Driver)
	src, closeSrc, err := openIntrospector(ctx, cfg.Schema, store)
	if err != nil {
		return err
	}
	defer closeSrc()

	hints, err := sqlgen.ParseSortHints(cfg.Schema.DefaultSorts)
	if err != nil {
		return fmt.Errorf("parsing schema.default_sorts: %w", err)
	}
	builder := sqlgen.NewBuilder(src, sqlgen.BuilderOptions{
		Include:      config.Tables(cfg.Schema.Include),
		Exclude:      config.Tables(cfg.Schema.Exclude),
		DefaultSorts: hints,
	})
	interval, _ := cfg.Schema.RefreshEvery()
	registry := sqlgen.NewRegistry(builder, interval)
	go registry.Run(ctx)

	extractor := sqlgen.NewExtractor()

	handler := api.NewAppHandler(api.AppDeps{
		Users:       users,
		Schema:      registry,
		Extractor:   extractor,
		Token:       apiToken,
		CORSOrigins: config.Tables(cfg.Server.CORSOrigins),
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Users:     users,
			Schema:    registry,
			Extractor: extractor,
		}, version)
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "nlpmodel listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("nlpmodel is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop nlpmodel (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to nlpmodel (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	printStatus("Schema driver", "%s", cfg.Schema.Driver)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)

	client, err := newAPIClient()
	if err != nil {
		printStatus("Server", "unknown (%v)", err)
		return nil
	}
	reportServerStatus(ctx, client, cfg.Server.Port)
	return nil
}

func reportServerStatus(ctx context.Context, client *apiClient, port int) {
	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped")
		return
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		return
	}
	printStatus("Server", "running on port %d", port)

	if resp, err := client.get(ctx, "/users?limit=100"); err == nil {
		var users []struct {
			ID int64 `json:"id"`
		}
		if decodeJSON(resp, &users) == nil {
			printStatus("Users", "%s", countLabel(len(users), 100))
		}
	}
	if resp, err := client.get(ctx, "/schema/tables"); err == nil {
		var tables []sqlgen.TableView
		if decodeJSON(resp, &tables) == nil {
			printStatus("Tables", "%d", len(tables))
		}
	}
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
