package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/seantiz/sqlworker/internal/database"
	"github.com/seantiz/sqlworker/internal/database/sqldb"
	"github.com/seantiz/sqlworker/internal/engine"
	"github.com/seantiz/sqlworker/internal/store"
)

const testDatabase = "world"

type testEnv struct {
	srv     *Server
	pool    *engine.Pool
	journal *store.SQLiteStore
}

// newTestEnv starts a one-worker pool over a temporary sqlite database
// with an in-memory journal.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	c, err := sqldb.Open(sqldb.DialectSQLite, filepath.Join(t.TempDir(), "world.db"), logger)
	if err != nil {
		t.Fatalf("sqldb.Open: %v", err)
	}
	reg := database.NewRegistry()
	reg.Register(testDatabase, c)
	t.Cleanup(func() { reg.Close() })

	journal, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { journal.Close() })

	broker := engine.NewBroker()
	p, err := engine.Open(context.Background(), c, engine.Options{
		Name:    testDatabase,
		Workers: 1,
		Journal: journal,
		Broker:  broker,
		Logger:  logger,
	})
	if err != nil {
		t.Fatalf("engine.Open: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		p.Stop(ctx)
	})

	pools := map[string]*engine.Pool{testDatabase: p}
	return &testEnv{
		srv:     NewServer(":0", reg, pools, journal, broker, logger),
		pool:    p,
		journal: journal,
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return newTestEnv(t).srv
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t)
	srv.Router().Get("/test", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/test")
	if err != nil {
		t.Fatalf("GET /test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestPanicRecovery(t *testing.T) {
	srv := newTestServer(t)
	srv.Router().Get("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/panic")
	if err != nil {
		t.Fatalf("GET /panic: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestCORSHeaders(t *testing.T) {
	srv := newTestServer(t)
	srv.Router().Get("/test", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	req, _ := http.NewRequest("OPTIONS", ts.URL+"/test", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS /test: %v", err)
	}
	defer resp.Body.Close()

	if v := resp.Header.Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", v, "*")
	}
}

func TestPoolSelection(t *testing.T) {
	a, b := &engine.Pool{}, &engine.Pool{}

	single := &Server{pools: map[string]*engine.Pool{"a": a}}
	if name, p, err := single.pool(""); err != nil || name != "a" || p != a {
		t.Errorf("pool(\"\") with one pool = %q, %p, %v; want a", name, p, err)
	}

	multi := &Server{pools: map[string]*engine.Pool{"a": a, "b": b}}
	if _, _, err := multi.pool(""); err != errDatabaseRequired {
		t.Errorf("pool(\"\") with two pools error = %v, want errDatabaseRequired", err)
	}
	if name, p, err := multi.pool("b"); err != nil || name != "b" || p != b {
		t.Errorf("pool(b) = %q, %p, %v; want b", name, p, err)
	}
	if _, _, err := multi.pool("c"); err == nil {
		t.Error("pool(c) error = nil, want unknown database")
	}
	if got := multi.poolNames(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("poolNames() = %v, want [a b]", got)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	srv := newTestServer(t)
	srv.addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
