package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/hazz-dev/checkhttp/internal/checker"
	"github.com/hazz-dev/checkhttp/internal/checking"
	"github.com/hazz-dev/checkhttp/internal/config"
	"github.com/hazz-dev/checkhttp/internal/scheduler"
	"github.com/hazz-dev/checkhttp/internal/server"
	"github.com/hazz-dev/checkhttp/internal/storage"
)

// TestIntegration_FullFlow verifies the complete pipeline:
// config -> scheduler -> checker -> storage -> API
func TestIntegration_FullFlow(t *testing.T) {
	// 1. Start a fake HTTP target
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer target.Close()

	// 2. Open in-memory SQLite
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening storage: %v", err)
	}
	defer db.Close()

	// 3. Parse config
	cfg, err := config.Parse([]byte(fmt.Sprintf(`
checks:
  - name: test-api
    url: %q
    interval: 1h
    timeout: 5s
    status_codes: [200]
    response_time: {warn: 2, crit: 4}
    body_matchers:
      - string: healthy
    header_matchers:
      - key: {string: content-type}
        value: {regex: json}
`, target.URL)))
	if err != nil {
		t.Fatalf("parsing config: %v", err)
	}

	// 4. Create scheduler with the real checker factory
	factory := func(chk config.Check) (checker.Checker, error) {
		return checker.New(chk, nil)
	}
	sched := scheduler.New(cfg.Checks, db, factory, nil)

	// 5. Build API server and forward scheduler results to stream subscribers
	apiServer := server.New(db, cfg.Checks, sched, cfg.Server, nil)
	results := make(chan checker.Result, 4)
	sched.SetOnResult(func(r checker.Result, _ *checking.Severity) {
		apiServer.Publish(r)
		results <- r
	})

	// 6. Start scheduler, the first run happens immediately
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)

	select {
	case r := <-results:
		if r.State != checking.Ok {
			t.Fatalf("expected OK, got %s:\n%s", r.State, r.Output())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no check result after 5s")
	}

	latest, err := db.LatestRun(ctx, "test-api")
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if latest == nil {
		t.Fatal("no run stored")
	}
	if !strings.HasPrefix(latest.Summary, "HTTP OK - HTTP/1.1 200 OK") {
		t.Errorf("unexpected summary %q", latest.Summary)
	}
	if !strings.Contains(latest.Perfdata, "size=20B;;;0;") {
		t.Errorf("unexpected perfdata %q", latest.Perfdata)
	}
	if !strings.Contains(latest.Perfdata, ";2;4;0;5") {
		t.Errorf("expected response time levels in perfdata, got %q", latest.Perfdata)
	}

	t.Run("health endpoint", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/health", nil)
		w := httptest.NewRecorder()
		apiServer.Router().ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", w.Code)
		}
		var resp map[string]string
		json.NewDecoder(w.Body).Decode(&resp)
		if resp["status"] != "ok" {
			t.Errorf("expected status 'ok', got %q", resp["status"])
		}
	})

	t.Run("list checks", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/checks", nil)
		w := httptest.NewRecorder()
		apiServer.Router().ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d; body: %s", w.Code, w.Body.String())
		}

		var resp struct {
			Data []struct {
				Name  string `json:"name"`
				State string `json:"state"`
			} `json:"data"`
		}
		json.NewDecoder(w.Body).Decode(&resp)

		if len(resp.Data) != 1 {
			t.Fatalf("expected 1 check, got %d", len(resp.Data))
		}
		if resp.Data[0].Name != "test-api" {
			t.Errorf("expected name 'test-api', got %q", resp.Data[0].Name)
		}
		if resp.Data[0].State != "OK" {
			t.Errorf("expected state 'OK', got %q", resp.Data[0].State)
		}
	})

	t.Run("check history", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/checks/test-api/history", nil)
		w := httptest.NewRecorder()
		apiServer.Router().ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d; body: %s", w.Code, w.Body.String())
		}

		var resp struct {
			Data struct {
				Total int   `json:"total"`
				Runs  []any `json:"runs"`
			} `json:"data"`
		}
		json.NewDecoder(w.Body).Decode(&resp)
		if resp.Data.Total < 1 {
			t.Errorf("expected at least 1 run in history, got %d", resp.Data.Total)
		}
	})

	t.Run("on-demand run is streamed", func(t *testing.T) {
		httpSrv := httptest.NewServer(apiServer.Router())
		defer httpSrv.Close()

		wsCtx, wsCancel := context.WithTimeout(ctx, 5*time.Second)
		defer wsCancel()
		conn, _, err := websocket.Dial(wsCtx, "ws"+strings.TrimPrefix(httpSrv.URL, "http")+"/api/stream", nil)
		if err != nil {
			t.Fatalf("dialing stream: %v", err)
		}
		defer conn.CloseNow()

		// The hub registers the subscriber after the handshake completes.
		deadline := time.Now().Add(2 * time.Second)
		for apiServer.Subscribers() == 0 && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}

		resp, err := http.Post(httpSrv.URL+"/api/checks/test-api/run", "application/json", nil)
		if err != nil {
			t.Fatalf("POST run: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}

		_, msg, err := conn.Read(wsCtx)
		if err != nil {
			t.Fatalf("reading stream: %v", err)
		}
		var run struct {
			Check string `json:"check"`
			State string `json:"state"`
		}
		if err := json.Unmarshal(msg, &run); err != nil {
			t.Fatalf("decoding stream message: %v", err)
		}
		if run.Check != "test-api" || run.State != "OK" {
			t.Errorf("unexpected streamed run %+v", run)
		}
	})

	// Graceful shutdown
	cancel()
	sched.Wait()

	runs, total, err := db.History(context.Background(), "test-api", 10, 0)
	if err != nil {
		t.Fatalf("DB unusable after shutdown: %v", err)
	}
	if total != 2 || len(runs) != 2 {
		t.Errorf("expected 2 stored runs (scheduled + on-demand), got %d", total)
	}
}
