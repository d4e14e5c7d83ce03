package operator

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/redfeed/kit"
	"github.com/hazyhaar/redfeed/observability"
	"github.com/hazyhaar/redfeed/session"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Transport != "stdio" {
		t.Fatalf("transport = %q, want stdio", cfg.Transport)
	}
	if cfg.Addr != ":8090" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
	if cfg.CookiesDir == "" {
		t.Fatalf("cookies dir not defaulted")
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("MCP_TRANSPORT", "http")
	t.Setenv("COOKIES_PATH", "/var/lib/redfeed/alice.json")
	t.Setenv("TRACE", "1")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.ApplyEnv()

	if cfg.Transport != "http" {
		t.Fatalf("transport = %q, want http", cfg.Transport)
	}
	if cfg.CookiesPath != "/var/lib/redfeed/alice.json" {
		t.Fatalf("cookies path = %q", cfg.CookiesPath)
	}
	if !cfg.Trace {
		t.Fatalf("trace not enabled from env")
	}
	// Knobs without an env value keep their defaults.
	if cfg.Addr != ":8090" || cfg.LogLevel != "info" {
		t.Fatalf("addr/level = %q/%q", cfg.Addr, cfg.LogLevel)
	}

	t.Setenv("TRACE", "false")
	cfg.ApplyEnv()
	if cfg.Trace {
		t.Fatalf("TRACE=false did not disable tracing")
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("transport: http\naddr: \":9000\"\nprofile: alice\ntrace: true\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Transport != "http" || cfg.Addr != ":9000" {
		t.Fatalf("transport/addr = %q/%q", cfg.Transport, cfg.Addr)
	}
	if cfg.Profile != "alice" || !cfg.Trace {
		t.Fatalf("profile/trace = %q/%v", cfg.Profile, cfg.Trace)
	}
	// Unset fields still fall through to defaults.
	if cfg.DBPath != "db/redfeed.db" {
		t.Fatalf("db path = %q", cfg.DBPath)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/config.yaml"); err == nil {
		t.Fatalf("want error for missing config file")
	}
}

func TestInvocationOverridePrecedence(t *testing.T) {
	cfg := &Config{
		Profile:   "server-default",
		ChromeBin: "/usr/bin/chromium",
		DebugDir:  "/tmp/debug",
		Trace:     true,
	}
	cfg.applyDefaults()
	svc := NewService(cfg, nil, nil, nil)

	// No overrides: server defaults flow through.
	inv := svc.invocation(Overrides{}, false)
	if inv.Profile != "server-default" || inv.Bin != "/usr/bin/chromium" {
		t.Fatalf("defaults not applied: %+v", inv)
	}
	if !inv.Trace {
		t.Fatalf("trace default not applied")
	}

	// Per-call values win.
	off := false
	inv = svc.invocation(Overrides{
		Profile:   "bob",
		ChromeBin: "/opt/chrome",
		Trace:     &off,
	}, true)
	if inv.Profile != "bob" || inv.Bin != "/opt/chrome" {
		t.Fatalf("overrides not applied: %+v", inv)
	}
	if inv.Trace {
		t.Fatalf("explicit trace=false did not override the default")
	}
	if !inv.AllowNoSession {
		t.Fatalf("login flows must allow a missing session")
	}
	// Unset override fields still fall through.
	if inv.DebugDir != "/tmp/debug" {
		t.Fatalf("unset override clobbered the default: %+v", inv)
	}
}

func setupInvLogger(t *testing.T) *observability.InvocationLogger {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	if err := observability.Init(db); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return observability.NewInvocationLogger(db, 16)
}

func TestInstrumentRecordsInvocations(t *testing.T) {
	inv := setupInvLogger(t)
	cfg, _ := LoadConfig("")
	svc := NewService(cfg, nil, inv, nil)

	ok := svc.instrument(func(ctx context.Context, req any) (any, error) {
		return "fine", nil
	})
	fail := svc.instrument(func(ctx context.Context, req any) (any, error) {
		return nil, errors.New("selector drift")
	})

	ctx := kit.WithTool(kit.WithProfile(context.Background(), "alice"), "feeds_list")
	if _, err := ok(ctx, nil); err != nil {
		t.Fatalf("endpoint: %v", err)
	}
	ctx = kit.WithTool(context.Background(), "post_comment")
	if _, err := fail(ctx, nil); err == nil {
		t.Fatalf("instrument swallowed the endpoint error")
	}

	inv.Close()

	tool := "feeds_list"
	recs, err := inv.Query(context.Background(), &observability.Filter{ToolName: &tool})
	if err != nil || len(recs) != 1 {
		t.Fatalf("feeds_list record: %v, %v", recs, err)
	}
	if recs[0].Profile != "alice" || recs[0].Status != "success" {
		t.Fatalf("record = %+v", recs[0])
	}

	status := "error"
	failed, err := inv.Query(context.Background(), &observability.Filter{Status: &status})
	if err != nil || len(failed) != 1 {
		t.Fatalf("error record: %v, %v", failed, err)
	}
	if failed[0].ToolName != "post_comment" {
		t.Fatalf("record = %+v", failed[0])
	}
}

func TestServiceRunsThroughManager(t *testing.T) {
	// A CheckLogin call against a manager with no saved session should reach
	// the handler (login flows tolerate absence) rather than fail fast.
	store := session.NewStore(t.TempDir())
	called := false
	factory := func(ctx context.Context, ec session.EngineConfig) (session.Engine, error) {
		called = true
		return nil, errors.New("no browser in tests")
	}
	mgr := session.NewManager(store, factory, nil)
	cfg, _ := LoadConfig("")
	svc := NewService(cfg, mgr, nil, nil)

	_, err := svc.CheckLogin(context.Background(), Overrides{})
	if err == nil {
		t.Fatalf("want launch error")
	}
	if !called {
		t.Fatalf("engine factory never reached; missing-session check blocked a login flow")
	}

	// A feeds call with no session must fail before launching anything.
	called = false
	_, err = svc.FeedsList(context.Background(), Overrides{})
	if !errors.Is(err, session.ErrNotLoggedIn) {
		t.Fatalf("want ErrNotLoggedIn, got %v", err)
	}
	if called {
		t.Fatalf("browser launched despite missing session")
	}
}

func TestInstrumentDuration(t *testing.T) {
	inv := setupInvLogger(t)
	cfg, _ := LoadConfig("")
	svc := NewService(cfg, nil, inv, nil)

	slow := svc.instrument(func(ctx context.Context, req any) (any, error) {
		time.Sleep(20 * time.Millisecond)
		return nil, nil
	})
	if _, err := slow(kit.WithTool(context.Background(), "slow_tool"), nil); err != nil {
		t.Fatal(err)
	}
	inv.Close()

	tool := "slow_tool"
	recs, err := inv.Query(context.Background(), &observability.Filter{ToolName: &tool})
	if err != nil || len(recs) != 1 {
		t.Fatalf("query: %v, %v", recs, err)
	}
	if recs[0].DurationMs < 15 {
		t.Fatalf("duration = %dms, want >= 15ms", recs[0].DurationMs)
	}
}
