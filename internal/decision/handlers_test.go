package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type captureSink struct {
	assessments []*RiskAssessment
}

func (c *captureSink) DecisionMade(a *RiskAssessment) {
	c.assessments = append(c.assessments, a)
}

func setupHandlerTest(t *testing.T, probability float64) (*gin.Engine, *MemoryStore, *captureSink) {
	t.Helper()
	store := NewMemoryStore()
	sink := &captureSink{}
	engine := NewEngine(&stubScorer{probability: probability}, nil)
	handler := NewHandler(engine, store, sink)

	router := gin.New()
	v1 := router.Group("/v1")
	handler.RegisterRoutes(v1)
	return router, store, sink
}

func postDecision(router *gin.Engine, body any) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/v1/decisions", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestDecideEndpoint_Allowed(t *testing.T) {
	router, _, sink := setupHandlerTest(t, 0.1)

	w := postDecision(router, map[string]any{
		"category": "grocery_pos",
		"amt":      45.50,
		"history":  []float64{40, 50, 42, 48},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Assessment RiskAssessment `json:"assessment"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.Assessment.Label != LabelAllowed {
		t.Errorf("Expected allowed, got %s", resp.Assessment.Label)
	}
	if len(sink.assessments) != 1 {
		t.Errorf("Expected 1 event emitted, got %d", len(sink.assessments))
	}
}

func TestDecideEndpoint_SpikeChallenge(t *testing.T) {
	router, _, _ := setupHandlerTest(t, 0.1)

	w := postDecision(router, map[string]any{
		"category": "misc_net",
		"amt":      2000.0,
		"history":  []float64{100, 120, 110, 90},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp struct {
		Assessment RiskAssessment `json:"assessment"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.Assessment.Label != LabelChallenge {
		t.Errorf("Expected challenge, got %s", resp.Assessment.Label)
	}
	if !resp.Assessment.SpikeFlag {
		t.Error("Expected spike flag in response")
	}
	if resp.Assessment.AvgLastN == nil || *resp.Assessment.AvgLastN != 105.0 {
		t.Errorf("Expected avgLastN 105, got %v", resp.Assessment.AvgLastN)
	}
}

func TestDecideEndpoint_MissingCategory(t *testing.T) {
	router, _, sink := setupHandlerTest(t, 0.1)

	w := postDecision(router, map[string]any{"amt": 100.0})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", w.Code)
	}
	if len(sink.assessments) != 0 {
		t.Error("Expected no event for a rejected request")
	}
}

func TestDecideEndpoint_InvalidFields(t *testing.T) {
	router, _, _ := setupHandlerTest(t, 0.1)

	cases := []map[string]any{
		{"category": "misc_net", "amt": -5.0},
		{"category": "misc_net", "hour": 24},
		{"category": "misc_net", "hour": -1},
		{"category": "misc_net", "dow": 7},
	}
	for i, body := range cases {
		w := postDecision(router, body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Case %d: expected 400, got %d", i, w.Code)
		}
	}
}

func TestDecideEndpoint_NegativeHistory(t *testing.T) {
	router, _, _ := setupHandlerTest(t, 0.1)

	w := postDecision(router, map[string]any{
		"category": "misc_net",
		"amt":      100.0,
		"history":  []float64{100, -50, 90},
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for negative history, got %d", w.Code)
	}
}

func TestDecideEndpoint_MalformedJSON(t *testing.T) {
	router, _, _ := setupHandlerTest(t, 0.1)

	req := httptest.NewRequest(http.MethodPost, "/v1/decisions", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", w.Code)
	}
}

func TestListRecentEndpoint(t *testing.T) {
	router, store, _ := setupHandlerTest(t, 0.1)

	for i := 0; i < 5; i++ {
		_ = store.Record(context.Background(), &RiskAssessment{
			ID:    fmt.Sprintf("dec_%d", i),
			Label: LabelAllowed,
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/decisions?limit=3", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp struct {
		Assessments []*RiskAssessment `json:"assessments"`
		Count       int               `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.Count != 3 {
		t.Errorf("Expected count 3, got %d", resp.Count)
	}
	if resp.Assessments[0].ID != "dec_4" {
		t.Errorf("Expected newest first, got %s", resp.Assessments[0].ID)
	}
}

func TestListRecentEndpoint_CursorPagination(t *testing.T) {
	router, store, _ := setupHandlerTest(t, 0.1)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_ = store.Record(context.Background(), &RiskAssessment{
			ID:          fmt.Sprintf("dec_%d", i),
			Label:       LabelAllowed,
			EvaluatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}

	type listResp struct {
		Assessments []*RiskAssessment `json:"assessments"`
		Count       int               `json:"count"`
		HasMore     bool              `json:"has_more"`
		NextCursor  string            `json:"next_cursor"`
	}
	fetch := func(query string) listResp {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, "/v1/decisions?"+query, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var resp listResp
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to parse response: %v", err)
		}
		return resp
	}

	page1 := fetch("limit=2")
	if page1.Count != 2 || !page1.HasMore || page1.NextCursor == "" {
		t.Fatalf("Unexpected first page: %+v", page1)
	}
	if page1.Assessments[0].ID != "dec_4" {
		t.Errorf("Expected newest first, got %s", page1.Assessments[0].ID)
	}

	page2 := fetch("limit=2&cursor=" + page1.NextCursor)
	if page2.Count != 2 || page2.Assessments[0].ID != "dec_2" {
		t.Fatalf("Unexpected second page: %+v", page2)
	}

	page3 := fetch("limit=2&cursor=" + page2.NextCursor)
	if page3.Count != 1 || page3.HasMore || page3.Assessments[0].ID != "dec_0" {
		t.Fatalf("Unexpected last page: %+v", page3)
	}
}

func TestListRecentEndpoint_BadCursor(t *testing.T) {
	router, _, _ := setupHandlerTest(t, 0.1)

	req := httptest.NewRequest(http.MethodGet, "/v1/decisions?cursor=%21%21not-base64", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for a bad cursor, got %d", w.Code)
	}
}

func TestListRecentEndpoint_NilStore(t *testing.T) {
	engine := NewEngine(&stubScorer{probability: 0.1}, nil)
	handler := NewHandler(engine, nil, nil)

	router := gin.New()
	handler.RegisterRoutes(router.Group("/v1"))

	req := httptest.NewRequest(http.MethodGet, "/v1/decisions", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.Count != 0 {
		t.Errorf("Expected count 0, got %d", resp.Count)
	}
}

func TestListRecentEndpoint_IgnoresBadLimit(t *testing.T) {
	router, store, _ := setupHandlerTest(t, 0.1)
	_ = store.Record(context.Background(), &RiskAssessment{ID: "dec_1", Label: LabelAllowed})

	for _, limit := range []string{"abc", "-1", "0", "9999"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/decisions?limit="+limit, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("limit=%s: expected 200, got %d", limit, w.Code)
		}
	}
}
