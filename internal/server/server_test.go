package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"ferry/internal/config"
	"ferry/internal/db"
	"ferry/internal/domain"
	"ferry/internal/engine"
	"ferry/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, auth AuthConfig) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default(), zerolog.Nop())
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: auth})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func createLocation(t *testing.T, srv *testServer, name, path string) domain.Location {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/locations", map[string]any{
		"name":      name,
		"path":      path,
		"available": true,
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create location %s: %d %s", name, res.StatusCode, string(data))
	}
	var resp LocationResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("unmarshal location: %v", err)
	}
	return resp.Location
}

func TestTransferLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	srcRoot := t.TempDir()
	dstRoot := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcRoot, "report.txt"), []byte("quarterly"), 0o644); err != nil {
		t.Fatal(err)
	}

	src := createLocation(t, srv, "src", srcRoot)
	dst := createLocation(t, srv, "dst", dstRoot)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/intents", map[string]any{
		"source_id":       src.ID,
		"destination_ids": []string{dst.ID},
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create intent: %d %s", res.StatusCode, string(data))
	}
	var created IntentResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal intent: %v", err)
	}
	intentID := created.Intent.ID

	scanRes, scanData := doJSON(t, client, http.MethodPost, srv.URL+"/v0/intents/"+intentID+"/scan", nil, nil)
	if scanRes.StatusCode != http.StatusOK {
		t.Fatalf("scan: %d %s", scanRes.StatusCode, string(scanData))
	}
	var scanned ScanResponse
	if err := json.Unmarshal(scanData, &scanned); err != nil {
		t.Fatalf("unmarshal scan: %v", err)
	}
	if scanned.Result.JobsCreated != 1 {
		t.Fatalf("jobs created %d, want 1", scanned.Result.JobsCreated)
	}

	runRes, runData := doJSON(t, client, http.MethodPost, srv.URL+"/v0/intents/"+intentID+"/run", nil, nil)
	if runRes.StatusCode != http.StatusOK {
		t.Fatalf("run: %d %s", runRes.StatusCode, string(runData))
	}
	var ran RunResponse
	if err := json.Unmarshal(runData, &ran); err != nil {
		t.Fatalf("unmarshal run: %v", err)
	}
	if ran.Result.Completed != 1 {
		t.Fatalf("completed %d, want 1", ran.Result.Completed)
	}
	if ran.Intent.Status != domain.IntentComplete {
		t.Fatalf("intent status %s, want complete", ran.Intent.Status)
	}

	data, err := os.ReadFile(filepath.Join(dstRoot, "report.txt"))
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}
	if string(data) != "quarterly" {
		t.Fatalf("dest content %q", data)
	}

	jobsRes, jobsData := doJSON(t, client, http.MethodGet, srv.URL+"/v0/intents/"+intentID+"/jobs?status=complete", nil, nil)
	if jobsRes.StatusCode != http.StatusOK {
		t.Fatalf("jobs: %d %s", jobsRes.StatusCode, string(jobsData))
	}
	var jobs JobListResponse
	if err := json.Unmarshal(jobsData, &jobs); err != nil {
		t.Fatalf("unmarshal jobs: %v", err)
	}
	if len(jobs.Jobs) != 1 {
		t.Fatalf("complete jobs %d, want 1", len(jobs.Jobs))
	}
}

func TestReviewFlowOverAPI(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	srcRoot := t.TempDir()
	dstRoot := t.TempDir()
	path := filepath.Join(srcRoot, "fleeting.dat")
	if err := os.WriteFile(path, []byte("gone soon"), 0o644); err != nil {
		t.Fatal(err)
	}

	src := createLocation(t, srv, "src", srcRoot)
	dst := createLocation(t, srv, "dst", dstRoot)

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/intents", map[string]any{
		"source_id":       src.ID,
		"destination_ids": []string{dst.ID},
	}, nil)
	var created IntentResponse
	_ = json.Unmarshal(data, &created)
	intentID := created.Intent.ID

	if res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v0/intents/"+intentID+"/scan", nil, nil); res.StatusCode != http.StatusOK {
		t.Fatalf("scan: %d %s", res.StatusCode, string(body))
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	runRes, runData := doJSON(t, client, http.MethodPost, srv.URL+"/v0/intents/"+intentID+"/run", nil, nil)
	if runRes.StatusCode != http.StatusOK {
		t.Fatalf("run: %d %s", runRes.StatusCode, string(runData))
	}
	var ran RunResponse
	_ = json.Unmarshal(runData, &ran)
	if ran.Result.NeedsReview != 1 {
		t.Fatalf("needs_review %d, want 1", ran.Result.NeedsReview)
	}

	revRes, revData := doJSON(t, client, http.MethodGet, srv.URL+"/v0/reviews", nil, nil)
	if revRes.StatusCode != http.StatusOK {
		t.Fatalf("reviews: %d %s", revRes.StatusCode, string(revData))
	}
	var reviews ReviewListResponse
	if err := json.Unmarshal(revData, &reviews); err != nil {
		t.Fatalf("unmarshal reviews: %v", err)
	}
	if len(reviews.Reviews) != 1 {
		t.Fatalf("open reviews %d, want 1", len(reviews.Reviews))
	}
	item := reviews.Reviews[0]

	// accept is not offered for source_missing
	badRes, badData := doJSON(t, client, http.MethodPost, srv.URL+"/v0/reviews/"+item.ID+"/resolve", map[string]any{
		"resolution": "accept",
	}, nil)
	if badRes.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unoffered option, got %d %s", badRes.StatusCode, string(badData))
	}

	okRes, okData := doJSON(t, client, http.MethodPost, srv.URL+"/v0/reviews/"+item.ID+"/resolve", map[string]any{
		"resolution": "skip",
	}, nil)
	if okRes.StatusCode != http.StatusOK {
		t.Fatalf("resolve: %d %s", okRes.StatusCode, string(okData))
	}
	var resolved ReviewResponse
	if err := json.Unmarshal(okData, &resolved); err != nil {
		t.Fatalf("unmarshal resolved: %v", err)
	}
	if resolved.Review.Resolution == nil || *resolved.Review.Resolution != "skip" {
		t.Fatalf("resolution not recorded: %+v", resolved.Review)
	}

	// Resolving twice conflicts.
	dupRes, dupData := doJSON(t, client, http.MethodPost, srv.URL+"/v0/reviews/"+item.ID+"/resolve", map[string]any{
		"resolution": "skip",
	}, nil)
	if dupRes.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for double resolve, got %d %s", dupRes.StatusCode, string(dupData))
	}
}

func TestAuthEnforcement(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{JWTSecret: "test-secret"})
	defer cleanup()
	client := srv.Client()

	// No credentials: denied.
	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/intents", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}

	// Health stays open.
	healthRes, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if healthRes.StatusCode != http.StatusOK {
		t.Fatalf("health: %d", healthRes.StatusCode)
	}

	// Mint a dev token, then the same request passes.
	loginRes, loginData := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"subject": "tester",
	}, nil)
	if loginRes.StatusCode != http.StatusOK {
		t.Fatalf("dev login: %d %s", loginRes.StatusCode, string(loginData))
	}
	var login map[string]string
	if err := json.Unmarshal(loginData, &login); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	authRes, authData := doJSON(t, client, http.MethodGet, srv.URL+"/v0/intents", nil, map[string]string{
		"Authorization": "Bearer " + login["token"],
	})
	if authRes.StatusCode != http.StatusOK {
		t.Fatalf("authorized list: %d %s", authRes.StatusCode, string(authData))
	}

	// Garbage token: denied.
	badRes, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/intents", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if badRes.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", badRes.StatusCode)
	}
}
