package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/dental-gateway/internal/domain"
	"github.com/tbourn/dental-gateway/internal/repo"
	"github.com/tbourn/dental-gateway/internal/services"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

// testEnv points the CLI at a fresh SQLite file and returns its path.
func testEnv(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.db")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", path)
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("QUEUE_DRIVER", "log")
	t.Setenv("RATE_LIMIT_BACKEND", "memory")
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd("test", "none", "unknown")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(args, "--env-file="))
	err := cmd.Execute()
	return out.String(), err
}

func TestKeyLifecycle(t *testing.T) {
	testEnv(t)

	out, err := runCLI(t, "key", "create", "--company", "acme", "--name", "PACS bridge", "--rate-limit", "60", "--json")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var created keyView
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		t.Fatalf("decode create: %v\n%s", err, out)
	}
	if !strings.HasPrefix(created.Secret, "dt_") || created.Prefix != created.Secret[:10] {
		t.Fatalf("secret=%q prefix=%q", created.Secret, created.Prefix)
	}
	if created.CompanyID != "acme" || created.Name != "PACS bridge" || !created.Active {
		t.Fatalf("created = %+v", created)
	}
	if created.RateLimit == nil || *created.RateLimit != 60 {
		t.Fatalf("rate limit = %v", created.RateLimit)
	}

	out, err = runCLI(t, "key", "list", "--company", "acme", "--json")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if strings.Contains(out, services.HashAPIKey(created.Secret)) || strings.Contains(out, created.Secret) {
		t.Fatalf("list leaked key material:\n%s", out)
	}
	var listed []keyView
	if err := json.Unmarshal([]byte(out), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != created.ID {
		t.Fatalf("listed = %+v", listed)
	}

	out, err = runCLI(t, "key", "rotate", created.ID, "--json")
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	var rotated keyView
	if err := json.Unmarshal([]byte(out), &rotated); err != nil {
		t.Fatalf("decode rotate: %v", err)
	}
	if rotated.ID != created.ID || rotated.Secret == "" || rotated.Secret == created.Secret {
		t.Fatalf("rotated = %+v", rotated)
	}

	out, err = runCLI(t, "key", "revoke", created.ID)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if !strings.Contains(out, "Revoked API key "+created.ID) {
		t.Fatalf("revoke output = %q", out)
	}

	out, err = runCLI(t, "key", "list", "--company", "acme")
	if err != nil {
		t.Fatalf("list text: %v", err)
	}
	if !strings.Contains(out, created.ID) || !strings.Contains(out, " no ") || !strings.Contains(out, "60") {
		t.Fatalf("list text output:\n%s", out)
	}
}

func TestKeyCommands_Errors(t *testing.T) {
	testEnv(t)

	if _, err := runCLI(t, "key", "rotate", "00000000-0000-0000-0000-000000000000"); !errors.Is(err, services.ErrKeyNotFound) {
		t.Fatalf("rotate unknown: %v", err)
	}
	if _, err := runCLI(t, "key", "revoke", "00000000-0000-0000-0000-000000000000"); !errors.Is(err, services.ErrKeyNotFound) {
		t.Fatalf("revoke unknown: %v", err)
	}
	if _, err := runCLI(t, "key", "create", "--name", "x"); err == nil {
		t.Fatal("create without --company should fail")
	}
	if _, err := runCLI(t, "key", "create", "--company", "acme", "--rate-limit", "0"); err == nil {
		t.Fatal("create with --rate-limit 0 should fail")
	}

	out, err := runCLI(t, "key", "list", "--company", "nobody")
	if err != nil {
		t.Fatalf("list empty: %v", err)
	}
	if !strings.Contains(out, "No API keys") {
		t.Fatalf("empty list output = %q", out)
	}
}

func TestKeyCommands_InvalidConfig(t *testing.T) {
	testEnv(t)
	t.Setenv("DB_DRIVER", "oracle")

	_, err := runCLI(t, "key", "list", "--company", "acme")
	if err == nil || !strings.Contains(err.Error(), "DB_DRIVER") {
		t.Fatalf("err = %v", err)
	}
}

func TestUsage(t *testing.T) {
	path := testEnv(t)

	db, err := repo.OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx := context.Background()
	at := func(day int) time.Time { return time.Date(2025, 3, day, 12, 0, 0, 0, time.UTC) }
	rows := []domain.APILog{
		{CompanyID: "acme", APIKeyID: "k1", Endpoint: "/v1/submit-analysis", StatusCode: 200, IsBillable: true, RequestTimestamp: at(2)},
		{CompanyID: "acme", APIKeyID: "k1", Endpoint: "/v1/get-result", StatusCode: 200, RequestTimestamp: at(3)},
		{CompanyID: "acme", APIKeyID: "k1", Endpoint: "/v1/submit-analysis", StatusCode: 200, IsBillable: true, RequestTimestamp: at(20)},
		{CompanyID: "other", APIKeyID: "k2", Endpoint: "/v1/submit-analysis", StatusCode: 200, IsBillable: true, RequestTimestamp: at(2)},
	}
	for i := range rows {
		if err := repo.CreateAPILog(ctx, db, &rows[i]); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	sqlDB, _ := db.DB()
	_ = sqlDB.Close()

	out, err := runCLI(t, "usage", "--company", "acme", "--from", "2025-03-01", "--to", "2025-03-10", "--json")
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	var got struct {
		Total    int64 `json:"total"`
		Billable int64 `json:"billable"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if got.Total != 2 || got.Billable != 1 {
		t.Fatalf("usage = %+v", got)
	}

	out, err = runCLI(t, "usage", "--company", "acme", "--from", "2025-03-01", "--to", "2025-04-01")
	if err != nil {
		t.Fatalf("usage text: %v", err)
	}
	if !strings.Contains(out, "Calls:    3") || !strings.Contains(out, "Billable: 2") {
		t.Fatalf("usage text output:\n%s", out)
	}
}

func TestUsageWindow(t *testing.T) {
	ref := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

	cases := []struct {
		name       string
		from, to   string
		start, end time.Time
		wantErr    bool
	}{
		{name: "defaults to month to date", start: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), end: ref},
		{name: "dates", from: "2025-01-01", to: "2025-02-01",
			start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), end: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
		{name: "rfc3339 offset normalized", from: "2025-03-01T02:00:00+02:00",
			start: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), end: ref},
		{name: "bad date", from: "March", wantErr: true},
		{name: "empty window", from: "2025-03-14", to: "2025-03-14", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start, end, err := usageWindow(tc.from, tc.to, ref)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("usageWindow: %v", err)
			}
			if !start.Equal(tc.start) || !end.Equal(tc.end) {
				t.Fatalf("window = [%v, %v), want [%v, %v)", start, end, tc.start, tc.end)
			}
		})
	}
}

func TestSubmitAndPoll(t *testing.T) {
	type seen struct {
		key, idem, patient, ctype, filename string
	}
	var (
		mu  sync.Mutex
		got seen
	)
	last := func() seen {
		mu.Lock()
		defer mu.Unlock()
		return got
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/submit-analysis":
			s := seen{key: r.Header.Get("X-API-Key"), idem: r.Header.Get("Idempotency-Key")}
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("parse: %v", err)
				return
			}
			s.patient = r.FormValue("patient_ref")
			_, fh, err := r.FormFile("image")
			if err != nil {
				t.Errorf("image: %v", err)
				return
			}
			s.ctype = fh.Header.Get("Content-Type")
			s.filename = fh.Filename
			mu.Lock()
			got = s
			mu.Unlock()
			_, _ = io.WriteString(w, `{"success":true,"data":{"job_id":"job-1","status":"pending","created_at":"2025-03-14T09:26:53Z"}}`)
		case "/v1/get-result":
			_, _ = io.WriteString(w, `{"success":true,"data":{"job_id":"job-1","status":"completed","radiograph_type":"panoramic","result":{"teeth":[]}}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	t.Setenv("GATEWAY_URL", srv.URL)
	t.Setenv("GATEWAY_API_KEY", "dt_env")

	// No extension: the type comes from the content.
	img := filepath.Join(t.TempDir(), "scan")
	if err := os.WriteFile(img, pngMagic, 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, "submit", img, "--patient-ref", "P-1", "--idempotency-key", "retry-1", "--api-key", "dt_flag")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if g := last(); g != (seen{key: "dt_flag", idem: "retry-1", patient: "P-1", ctype: "image/png", filename: "scan"}) {
		t.Fatalf("server saw %+v", g)
	}
	if !strings.Contains(out, `"job_id": "job-1"`) {
		t.Fatalf("submit output:\n%s", out)
	}

	out, err = runCLI(t, "submit", img, "--wait", "--interval", "1ms")
	if err != nil {
		t.Fatalf("submit --wait: %v", err)
	}
	if k := last().key; k != "dt_env" || !strings.Contains(out, `"status": "completed"`) {
		t.Fatalf("key=%q output:\n%s", k, out)
	}

	out, err = runCLI(t, "poll", "job-1")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if !strings.Contains(out, `"radiograph_type": "panoramic"`) {
		t.Fatalf("poll output:\n%s", out)
	}
}

func TestPoll_FailedJobIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"error","error_message":"unreadable image"}`)
	}))
	defer srv.Close()

	out, err := runCLI(t, "poll", "job-9", "--url", srv.URL, "--api-key", "k")
	if err == nil || !strings.Contains(err.Error(), "unreadable image") {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(out, `"status": "failed"`) {
		t.Fatalf("output:\n%s", out)
	}
}

func TestClientCommands_RequireAPIKey(t *testing.T) {
	t.Setenv("GATEWAY_API_KEY", "")
	_, err := runCLI(t, "poll", "job-1", "--url", "http://127.0.0.1:1")
	if err == nil || !strings.Contains(err.Error(), "API key is required") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	if err := loadEnvFile(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing file should be ignored: %v", err)
	}

	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("GATEWAY_TEST_ONLY=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GATEWAY_TEST_ONLY", "")
	os.Unsetenv("GATEWAY_TEST_ONLY")
	if err := loadEnvFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv("GATEWAY_TEST_ONLY"); got != "from-file" {
		t.Fatalf("GATEWAY_TEST_ONLY = %q", got)
	}
}
