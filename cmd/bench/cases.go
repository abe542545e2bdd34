// README: Bench checks: environment, migration, session alarm flow, saved locations and throughput.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}

	return results
}

const arrivalCaseName = "Session: arrival disarms"

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: Postgres connect", Run: checkPostgres},
		{Name: "Env: Redis connect", Run: checkRedis},
		{Name: "Migration: apply (optional)", Run: applyMigration},
		{Name: "Migration: tables exist", Run: checkTables},
		{Name: "API: health", Run: checkHealth},
		{Name: "Session: alarm flow", Run: sessionFlow},
		{Name: arrivalCaseName, Run: arrivalFlow},
		{Name: "Session: history trail", Run: historyFlow},
		{Name: "Saved locations: CRUD", Run: savedLocationFlow},
		{Name: "Perf: position push throughput", Run: positionThroughput},
	}
}

func checkPostgres(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusFail, Note: "db not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.db.Ping(ctx); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

func checkRedis(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: statusFail, Note: "redis not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

func applyMigration(ctx context.Context, r *Runner) Result {
	if !r.cfg.ApplyMigration {
		return Result{Status: statusSkip, Note: "apply-migration=false"}
	}
	if r.db == nil {
		return Result{Status: statusFail, Note: "db not configured"}
	}
	sql, err := os.ReadFile(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for _, s := range splitSQL(string(sql)) {
		if _, err := r.db.Exec(ctx, s); err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
	}
	return Result{Status: statusPass}
}

func checkTables(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusFail, Note: "db not configured"}
	}
	tables, err := extractTables(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for _, t := range tables {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
			t,
		).Scan(&exists)
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		if !exists {
			return Result{Status: statusFail, Note: "missing table: " + t}
		}
	}
	return Result{Status: statusPass}
}

func checkHealth(ctx context.Context, r *Runner) Result {
	start := time.Now()
	status, _, err := r.call(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if status != http.StatusOK {
		return Result{Status: statusFail, Note: fmt.Sprintf("status=%d", status)}
	}
	return Result{Status: statusPass, Latency: time.Since(start)}
}

// step is one request of a scripted flow and the status it must return.
type step struct {
	method string
	path   string
	body   any
	want   int
}

// runSteps executes steps in order, substituting {id} with the session id.
func (r *Runner) runSteps(ctx context.Context, id string, steps []step) Result {
	start := time.Now()
	for i, s := range steps {
		path := strings.ReplaceAll(s.path, "{id}", id)
		status, body, err := r.call(ctx, s.method, path, s.body)
		if err != nil {
			return Result{Status: statusFail, Note: fmt.Sprintf("step %d: %v", i+1, err)}
		}
		if status != s.want {
			return Result{Status: statusFail, Note: fmt.Sprintf("step %d %s %s: status=%d want=%d body=%s", i+1, s.method, path, status, s.want, bytes.TrimSpace(body))}
		}
	}
	return Result{Status: statusPass, Latency: time.Since(start)}
}

func sessionFlow(ctx context.Context, r *Runner) Result {
	id, err := r.createSession(ctx)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return r.runSteps(ctx, id, []step{
		{http.MethodPost, "/api/sessions/{id}/alarm", nil, http.StatusConflict},
		{http.MethodPut, "/api/sessions/{id}/destination", map[string]any{
			"name": "Taipei 101", "address": "No. 7, Section 5, Xinyi Road", "latitude": 25.0330, "longitude": 121.5654,
		}, http.StatusOK},
		{http.MethodPut, "/api/sessions/{id}/position", map[string]any{"latitude": 25.2130, "longitude": 121.5654}, http.StatusOK},
		{http.MethodPost, "/api/sessions/{id}/alarm", nil, http.StatusOK},
		{http.MethodGet, "/api/sessions/{id}", nil, http.StatusOK},
		{http.MethodDelete, "/api/sessions/{id}/alarm", nil, http.StatusOK},
		{http.MethodDelete, "/api/sessions/{id}", nil, http.StatusOK},
		{http.MethodGet, "/api/sessions/{id}", nil, http.StatusNotFound},
	})
}

// arrivalFlow arms next to the destination and waits for the server's poll
// loop to fire Arrived and disarm.
func arrivalFlow(ctx context.Context, r *Runner) Result {
	id, err := r.createSession(ctx)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	defer func() { _, _, _ = r.call(ctx, http.MethodDelete, "/api/sessions/"+id, nil) }()

	res := r.runSteps(ctx, id, []step{
		{http.MethodPut, "/api/sessions/{id}/destination", map[string]any{"name": "Gate", "latitude": 25.0330, "longitude": 121.5654}, http.StatusOK},
		{http.MethodPut, "/api/sessions/{id}/position", map[string]any{"latitude": 25.0331, "longitude": 121.5654}, http.StatusOK},
		{http.MethodPost, "/api/sessions/{id}/alarm", nil, http.StatusOK},
	})
	if res.Status != statusPass {
		return res
	}

	start := time.Now()
	deadline := time.Now().Add(r.cfg.ArrivalWait)
	for time.Now().Before(deadline) {
		_, body, err := r.call(ctx, http.MethodGet, "/api/sessions/"+id, nil)
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		var st struct {
			State     string `json:"state"`
			LastEvent *struct {
				Kind string `json:"kind"`
			} `json:"last_event"`
		}
		if err := json.Unmarshal(body, &st); err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		if st.LastEvent != nil && st.LastEvent.Kind == "arrived" {
			if st.State != "disarmed" {
				return Result{Status: statusFail, Note: "arrived but state=" + st.State}
			}
			return Result{Status: statusPass, Latency: time.Since(start)}
		}
		select {
		case <-ctx.Done():
			return Result{Status: statusFail, Note: ctx.Err().Error()}
		case <-time.After(500 * time.Millisecond):
		}
	}
	return Result{Status: statusFail, Note: "no arrival before deadline"}
}

// historyFlow pushes one fix and reads it back from the history route.
func historyFlow(ctx context.Context, r *Runner) Result {
	id, err := r.createSession(ctx)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	defer func() { _, _, _ = r.call(ctx, http.MethodDelete, "/api/sessions/"+id, nil) }()

	start := time.Now()
	status, _, err := r.call(ctx, http.MethodPut, "/api/sessions/"+id+"/position", map[string]any{"latitude": 25.0478, "longitude": 121.5170})
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if status != http.StatusOK {
		return Result{Status: statusFail, Note: fmt.Sprintf("position status=%d", status)}
	}
	status, body, err := r.call(ctx, http.MethodGet, fmt.Sprintf("/api/sessions/%s/history?limit=%d", id, r.cfg.HistoryLimit), nil)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if status != http.StatusOK {
		return Result{Status: statusFail, Note: fmt.Sprintf("history status=%d", status)}
	}
	var hist struct {
		Snapshots []json.RawMessage `json:"snapshots"`
		LastKnown *struct {
			Latitude float64 `json:"latitude"`
		} `json:"last_known"`
	}
	if err := json.Unmarshal(body, &hist); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if hist.LastKnown == nil {
		return Result{Status: statusFail, Note: "no last known fix"}
	}
	return Result{Status: statusPass, Latency: time.Since(start), Note: fmt.Sprintf("snapshots=%d", len(hist.Snapshots))}
}

func savedLocationFlow(ctx context.Context, r *Runner) Result {
	start := time.Now()
	status, body, err := r.call(ctx, http.MethodPost, "/api/locations", map[string]any{
		"name": "Bench", "address": "1 Bench Rd", "latitude": 1.0, "longitude": 2.0,
	})
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if status != http.StatusCreated {
		return Result{Status: statusFail, Note: fmt.Sprintf("create status=%d", status)}
	}
	var created struct {
		Location struct {
			ID int64 `json:"id"`
		} `json:"location"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	path := fmt.Sprintf("/api/locations/%d", created.Location.ID)
	res := r.runSteps(ctx, "", []step{
		{http.MethodGet, path, nil, http.StatusOK},
		{http.MethodPatch, path, map[string]any{"is_active": true}, http.StatusOK},
		{http.MethodPatch, path, map[string]any{"latitude": 120.0}, http.StatusBadRequest},
		{http.MethodGet, "/api/locations", nil, http.StatusOK},
		{http.MethodDelete, path, nil, http.StatusOK},
		{http.MethodGet, path, nil, http.StatusNotFound},
	})
	if res.Status == statusPass {
		res.Latency = time.Since(start)
	}
	return res
}

func positionThroughput(ctx context.Context, r *Runner) Result {
	id, err := r.createSession(ctx)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	defer func() { _, _, _ = r.call(ctx, http.MethodDelete, "/api/sessions/"+id, nil) }()

	end := time.Now().Add(r.cfg.Duration)
	var count, errCount int64
	wg := sync.WaitGroup{}

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n := 0
			for time.Now().Before(end) {
				n++
				p := map[string]any{"latitude": 25.0 + float64(i)*0.001, "longitude": 121.5 + float64(n%100)*0.0001}
				status, _, err := r.call(ctx, http.MethodPut, "/api/sessions/"+id+"/position", p)
				if err != nil || status != http.StatusOK {
					atomic.AddInt64(&errCount, 1)
					continue
				}
				atomic.AddInt64(&count, 1)
			}
		}(i)
	}
	wg.Wait()

	if count == 0 {
		return Result{Status: statusFail, Note: "no requests completed"}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: statusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
}

func (r *Runner) createSession(ctx context.Context) (string, error) {
	status, body, err := r.call(ctx, http.MethodPost, "/api/sessions", nil)
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated {
		return "", fmt.Errorf("create session: status=%d", status)
	}
	var resp struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	return resp.SessionID, nil
}

func (r *Runner) call(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	return resp.StatusCode, b, err
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}

func splitSQL(sql string) []string {
	lines := strings.Split(sql, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "--") || l == "" {
			continue
		}
		filtered = append(filtered, line)
	}
	cleaned := strings.Join(filtered, "\n")
	parts := strings.Split(cleaned, ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
