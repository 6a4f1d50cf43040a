package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"policylens/dedup"
	"policylens/logger"
	"policylens/pipeline"
	"policylens/store"
	"policylens/types"
)

func newTestServer(t *testing.T, refresh RefreshFunc) (*Server, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	s := store.New(db, nil, logger.NewNop())
	if err := s.AutoMigrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewServer(s, dedup.NewMemoryIndex(), refresh, logger.NewNop()), s
}

func seedRecord(t *testing.T, s *store.Store, url string) store.UpsertResult {
	t.Helper()
	res, err := s.Upsert(context.Background(), types.Item{
		SourceName:   "bbc_news",
		CanonicalURL: url,
		ContentHash:  "hash1",
		Title:        "AI Act adopted",
		BodyText:     "the council adopted the regulation",
		PublishedAt:  time.Date(2026, 8, 19, 9, 0, 0, 0, time.UTC),
		FetchedAt:    time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return res
}

func doRequest(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	router := NewRouter(srv)

	w := doRequest(router, http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "healthy" {
		t.Errorf("body = %v", body)
	}
}

func TestListRecords(t *testing.T) {
	srv, s := newTestServer(t, nil)
	seedRecord(t, s, "https://example.com/a")
	seedRecord(t, s, "https://example.com/b")
	router := NewRouter(srv)

	w := doRequest(router, http.MethodGet, "/api/records")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 2 {
		t.Errorf("count = %d, want 2", body.Count)
	}
}

func TestRecordLookup(t *testing.T) {
	srv, s := newTestServer(t, nil)
	seedRecord(t, s, "https://example.com/a")
	router := NewRouter(srv)

	w := doRequest(router, http.MethodGet, "/api/records/lookup?url=https://example.com/a")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doRequest(router, http.MethodGet, "/api/records/lookup?url=https://example.com/missing")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing record status = %d, want 404", w.Code)
	}

	w = doRequest(router, http.MethodGet, "/api/records/lookup")
	if w.Code != http.StatusBadRequest {
		t.Errorf("no url param status = %d, want 400", w.Code)
	}
}

func TestVersionEntities(t *testing.T) {
	srv, s := newTestServer(t, nil)
	res := seedRecord(t, s, "https://example.com/a")
	if err := s.ReplaceEntities(context.Background(), res.Version.ID, []types.ExtractedEntity{
		{Kind: "policy", Name: "AI Act", Confidence: 0.9, ModelVersion: "m1"},
	}); err != nil {
		t.Fatal(err)
	}
	router := NewRouter(srv)

	w := doRequest(router, http.MethodGet, "/api/records/"+res.Record.ID.String()+"/versions/1/entities")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var body struct {
		ExtractionStatus string `json:"extraction_status"`
		Entities         []struct {
			Name string `json:"name"`
		} `json:"entities"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Entities) != 1 || body.Entities[0].Name != "AI Act" {
		t.Errorf("entities = %+v", body.Entities)
	}

	w = doRequest(router, http.MethodGet, "/api/records/"+res.Record.ID.String()+"/versions/9/entities")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing version status = %d, want 404", w.Code)
	}

	w = doRequest(router, http.MethodGet, "/api/records/not-a-uuid/versions/1/entities")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", w.Code)
	}
}

func TestReextract(t *testing.T) {
	srv, s := newTestServer(t, nil)
	res := seedRecord(t, s, "https://example.com/a")
	router := NewRouter(srv)

	w := doRequest(router, http.MethodPost, "/api/records/"+res.Record.ID.String()+"/reextract")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doRequest(router, http.MethodPost, "/api/records/"+uuid.NewString()+"/reextract")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown record status = %d, want 404", w.Code)
	}
}

func TestQuarantineEndpoint(t *testing.T) {
	srv, s := newTestServer(t, nil)
	sink := store.NewQuarantineSink(s)
	if err := sink.Quarantine(context.Background(), pipeline.RejectedItem{
		Item:   types.Item{CanonicalURL: "https://example.com/bad", SourceName: "bbc_news"},
		Stage:  "validate",
		Reason: "missing_field:title",
		At:     time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}
	router := NewRouter(srv)

	w := doRequest(router, http.MethodGet, "/api/quarantine")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 1 {
		t.Errorf("count = %d, want 1", body.Count)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	var triggered atomic.Bool
	done := make(chan struct{})
	srv, _ := newTestServer(t, func(context.Context) error {
		triggered.Store(true)
		close(done)
		return nil
	})
	router := NewRouter(srv)

	w := doRequest(router, http.MethodPost, "/api/runs/refresh")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh never ran")
	}
	if !triggered.Load() {
		t.Error("refresh flag not set")
	}
}

func TestRefreshEndpointWithoutWiring(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	router := NewRouter(srv)

	w := doRequest(router, http.MethodPost, "/api/runs/refresh")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}
