// Command redfeed runs the browser-automation tool server. Tools are exposed
// over MCP, either on stdio (the default) or as a streamable HTTP endpoint.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/redfeed/dbopen"
	"github.com/hazyhaar/redfeed/kit"
	"github.com/hazyhaar/redfeed/observability"
	"github.com/hazyhaar/redfeed/operator"
	"github.com/hazyhaar/redfeed/session"
	"github.com/hazyhaar/redfeed/shield"
)

const version = "1.0.0"

func main() {
	cfg, err := operator.LoadConfig(env("REDFEED_CONFIG", ""))
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	// Env overrides on top of the file.
	cfg.ApplyEnv()

	// Logging.
	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	// Stdout carries the MCP protocol on the stdio transport.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Invocation log DB.
	db, err := dbopen.Open(cfg.DBPath, dbopen.WithMkdirAll(), dbopen.WithSchema(observability.Schema))
	if err != nil {
		slog.Error("invocation db", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	invLog := observability.NewInvocationLogger(db, 256)
	defer invLog.Close()

	// Session plumbing and the tool service.
	store := session.NewStore(cfg.CookiesDir)
	mgr := session.NewManager(store, nil, logger)
	svc := operator.NewService(cfg, mgr, invLog, logger)

	mcpSrv := mcp.NewServer(&mcp.Implementation{
		Name:    "redfeed",
		Version: version,
	}, nil)
	svc.RegisterMCP(mcpSrv)

	switch cfg.Transport {
	case "http":
		runHTTP(ctx, cfg, mcpSrv)
	default:
		runStdio(ctx, mcpSrv)
	}
}

func runStdio(ctx context.Context, mcpSrv *mcp.Server) {
	slog.Info("serving MCP on stdio")
	if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		slog.Error("stdio transport", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func runHTTP(ctx context.Context, cfg *operator.Config, mcpSrv *mcp.Server) {
	handler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return mcpSrv
	}, nil)

	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack() {
		r.Use(mw)
	}
	r.Use(transportTag)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	r.Handle("/mcp", handler)
	r.Handle("/mcp/*", handler)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// Tool calls drive full browser sessions; login waits run minutes.
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// transportTag marks requests as HTTP-borne for the invocation log.
func transportTag(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(kit.WithTransport(r.Context(), "http")))
	})
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
