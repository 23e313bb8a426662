package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"mercator-hq/permitgate/pkg/evidence"
	"mercator-hq/permitgate/pkg/evidence/recorder"
	"mercator-hq/permitgate/pkg/evidence/storage"
	"mercator-hq/permitgate/pkg/rules/condition"
	"mercator-hq/permitgate/pkg/rules/engine"
	"mercator-hq/permitgate/pkg/rules/parser"
	"mercator-hq/permitgate/pkg/rules/policy"
	"mercator-hq/permitgate/pkg/rules/source"
	"mercator-hq/permitgate/pkg/server/types"
	"mercator-hq/permitgate/pkg/telemetry/health"
	"mercator-hq/permitgate/pkg/telemetry/logging"
)

const testBundle = `
version: "2026-03"
attributes:
  - name: width_ft
    kind: number
    unit: ft
  - name: road_type
    kind: enum
    values: [interstate, local]
policies:
  - id: wide-load
    category: escort
    when:
      - {attr: width_ft, op: gt, value: 12}
    output:
      front_escorts: 1
  - id: slow-wide
    category: speed
    when:
      - {attr: width_ft, op: gt, value: 14}
    output:
      max_speed_mph: 45
  - id: night-draft
    category: hours
    status: draft
    output:
      night_travel_prohibited: true
`

func loadedStore(t *testing.T) *source.Store {
	t.Helper()
	store := source.NewStore(source.NewMemorySource("test", parser.Document{Name: "bundle.yaml", Data: []byte(testBundle)}))
	if err := store.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	return store
}

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng, err := engine.New(nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return eng
}

// failingEngine fails every evaluation of one category.
type failingEngine struct {
	*engine.Engine
	category policy.Category
}

func (f failingEngine) Evaluate(ctx context.Context, cat policy.Category, snap *engine.Snapshot, fact condition.Fact, opts ...engine.EvalOption) (*engine.EvaluationResult, error) {
	if cat == f.category {
		return nil, errors.New("merge failed")
	}
	return f.Engine.Evaluate(ctx, cat, snap, fact, opts...)
}

type captureRecorder struct {
	mu  sync.Mutex
	evs []recorder.Evaluation
}

func (c *captureRecorder) Record(_ context.Context, ev recorder.Evaluation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evs = append(c.evs, ev)
	return nil
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req = req.WithContext(logging.WithRequestID(req.Context(), "req-42"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("invalid JSON response: %v\n%s", err, rec.Body.String())
	}
	return v
}

func TestEvaluateHandler_SingleCategory(t *testing.T) {
	capture := &captureRecorder{}
	h := &EvaluateHandler{Snapshots: loadedStore(t), Engine: testEngine(t), Evidence: capture}

	rec := post(t, h, `{"category":"escort","fact":{"width_ft":13,"road_type":"local"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	resp := decode[struct {
		RequestID     string `json:"request_id"`
		BundleVersion string `json:"bundle_version"`
		Results       []struct {
			Category string         `json:"category"`
			Outcome  string         `json:"outcome"`
			Matched  []string       `json:"matched_policy_ids"`
			Output   map[string]any `json:"output"`
		} `json:"results"`
	}](t, rec)

	if resp.RequestID != "req-42" || resp.BundleVersion != "2026-03" {
		t.Errorf("response header fields = %+v", resp)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("results = %+v", resp.Results)
	}
	got := resp.Results[0]
	if got.Outcome != "matched" || len(got.Matched) != 1 || got.Matched[0] != "wide-load" {
		t.Errorf("result = %+v", got)
	}
	if got.Output["front_escorts"] != float64(1) || got.Output["rear_escorts"] != float64(0) {
		t.Errorf("output = %v", got.Output)
	}

	if len(capture.evs) != 1 || capture.evs[0].RequestID != "req-42" || capture.evs[0].Category != "escort" {
		t.Errorf("evidence = %+v", capture.evs)
	}
}

func TestEvaluateHandler_AllPublishedCategories(t *testing.T) {
	h := &EvaluateHandler{Snapshots: loadedStore(t), Engine: testEngine(t)}

	rec := post(t, h, `{"fact":{"width_ft":10}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[types.EvaluateResponse](t, rec)

	var cats []string
	for _, r := range resp.Results {
		cats = append(cats, string(r.Category))
		if r.Outcome != engine.OutcomeNoMatch {
			t.Errorf("%s outcome = %s", r.Category, r.Outcome)
		}
	}
	// hours only has a draft policy
	if strings.Join(cats, ",") != "escort,speed" {
		t.Errorf("categories = %v", cats)
	}
}

func TestEvaluateHandler_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantType string
	}{
		{"empty body", ``, http.StatusBadRequest, types.ErrorTypeInvalidRequest},
		{"bad json", `{"fact":`, http.StatusBadRequest, types.ErrorTypeInvalidRequest},
		{"unknown field", `{"fact":{},"facts":[]}`, http.StatusBadRequest, types.ErrorTypeInvalidRequest},
		{"missing fact", `{"category":"escort"}`, http.StatusBadRequest, types.ErrorTypeInvalidRequest},
		{"unknown category", `{"category":"tolls","fact":{}}`, http.StatusBadRequest, types.ErrorTypeInvalidRequest},
		{"unknown attribute", `{"fact":{"widht_ft":13}}`, http.StatusUnprocessableEntity, types.ErrorTypeInvalidFact},
		{"kind mismatch", `{"fact":{"width_ft":"wide"}}`, http.StatusUnprocessableEntity, types.ErrorTypeInvalidFact},
		{"enum outside values", `{"fact":{"road_type":"gravel"}}`, http.StatusUnprocessableEntity, types.ErrorTypeInvalidFact},
	}

	h := &EvaluateHandler{Snapshots: loadedStore(t), Engine: testEngine(t), MaxBodyBytes: 1 << 10}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, h, tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			resp := decode[types.ErrorResponse](t, rec)
			if resp.Error.Type != tt.wantType {
				t.Errorf("error type = %q, want %q", resp.Error.Type, tt.wantType)
			}
		})
	}
}

func TestEvaluateHandler_FactErrorDetails(t *testing.T) {
	h := &EvaluateHandler{Snapshots: loadedStore(t), Engine: testEngine(t)}
	rec := post(t, h, `{"fact":{"widht_ft":13,"road_type":"gravel"}}`)

	resp := decode[types.ErrorResponse](t, rec)
	if len(resp.Error.Details) != 2 {
		t.Fatalf("details = %v", resp.Error.Details)
	}
	if !strings.Contains(resp.Error.Details[1], "width_ft") {
		t.Errorf("unknown attribute should suggest width_ft: %q", resp.Error.Details[1])
	}
}

func TestEvaluateHandler_BodyTooLarge(t *testing.T) {
	h := &EvaluateHandler{Snapshots: loadedStore(t), Engine: testEngine(t), MaxBodyBytes: 16}
	rec := post(t, h, `{"fact":{"width_ft":13,"road_type":"local"}}`)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestEvaluateHandler_EvaluationFailure(t *testing.T) {
	capture := &captureRecorder{}
	h := &EvaluateHandler{
		Snapshots: loadedStore(t),
		Engine:    failingEngine{Engine: testEngine(t), category: "speed"},
		Evidence:  capture,
	}

	rec := post(t, h, `{"fact":{"width_ft":16}}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[types.EvaluateResponse](t, rec)
	byCat := map[policy.Category]types.CategoryResult{}
	for _, r := range resp.Results {
		byCat[r.Category] = r
	}
	if byCat["escort"].Outcome != engine.OutcomeMatched {
		t.Errorf("escort = %+v", byCat["escort"])
	}
	speed := byCat["speed"]
	if speed.Outcome != engine.OutcomeError || speed.Error != "merge failed" || len(speed.MatchedPolicyIDs) != 0 {
		t.Errorf("failed category must report an error, got %+v", speed)
	}

	var recorded int
	for _, ev := range capture.evs {
		if ev.Category == "speed" && ev.Err != nil {
			recorded++
		}
	}
	if recorded != 1 {
		t.Errorf("the failure should be recorded as evidence once, got %d", recorded)
	}
}

func TestEvaluateHandler_NoSnapshot(t *testing.T) {
	store := source.NewStore(source.NewMemorySource("empty"))
	h := &EvaluateHandler{Snapshots: store, Engine: testEngine(t)}
	if rec := post(t, h, `{"fact":{}}`); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestEvaluateHandler_Trace(t *testing.T) {
	h := &EvaluateHandler{Snapshots: loadedStore(t), Engine: testEngine(t)}
	rec := post(t, h, `{"category":"escort","fact":{"width_ft":13},"trace":true}`)
	resp := decode[types.EvaluateResponse](t, rec)
	if resp.Results[0].Trace == nil || len(resp.Results[0].Trace.Policies) != 1 {
		t.Errorf("trace = %+v", resp.Results[0].Trace)
	}
}

func TestBatchHandler(t *testing.T) {
	capture := &captureRecorder{}
	h := &BatchHandler{Snapshots: loadedStore(t), Engine: testEngine(t), Evidence: capture, MaxBatchSize: 10}

	rec := post(t, h, `{"category":"escort","facts":[{"width_ft":13},{"width_ft":"x"},{"width_ft":8}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[types.BatchResponse](t, rec)

	if len(resp.Items) != 3 || resp.Errors != 1 {
		t.Fatalf("items = %+v, errors = %d", resp.Items, resp.Errors)
	}
	want := []engine.Outcome{engine.OutcomeMatched, engine.OutcomeError, engine.OutcomeNoMatch}
	for i, item := range resp.Items {
		if item.Index != i || item.Outcome != want[i] {
			t.Errorf("item %d = %+v, want outcome %s", i, item, want[i])
		}
	}
	if len(resp.Items[1].FactErrors) != 1 {
		t.Errorf("rejected fact errors = %v", resp.Items[1].FactErrors)
	}
	if len(capture.evs) != 2 {
		t.Errorf("evidence for %d facts, want 2 evaluated", len(capture.evs))
	}
}

func TestBatchHandler_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"missing category", `{"facts":[{}]}`, http.StatusBadRequest},
		{"empty facts", `{"category":"escort","facts":[]}`, http.StatusBadRequest},
		{"too many", `{"category":"escort","facts":[{},{},{}]}`, http.StatusBadRequest},
		{"unknown category", `{"category":"tolls","facts":[{}]}`, http.StatusBadRequest},
	}
	h := &BatchHandler{Snapshots: loadedStore(t), Engine: testEngine(t), MaxBatchSize: 2}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := post(t, h, tt.body); rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
		})
	}
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestPoliciesHandler(t *testing.T) {
	h := &PoliciesHandler{Snapshots: loadedStore(t)}

	tests := []struct {
		target   string
		wantCode int
		wantIDs  string
	}{
		{"/v1/policies", http.StatusOK, "wide-load,slow-wide,night-draft"},
		{"/v1/policies?category=speed", http.StatusOK, "slow-wide"},
		{"/v1/policies?status=draft", http.StatusOK, "night-draft"},
		{"/v1/policies?category=tolls", http.StatusBadRequest, ""},
		{"/v1/policies?status=retired", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := get(t, h, tt.target)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			resp := decode[types.PoliciesResponse](t, rec)
			var ids []string
			for _, p := range resp.Policies {
				ids = append(ids, p.ID)
			}
			if strings.Join(ids, ",") != tt.wantIDs {
				t.Errorf("ids = %v, want %s", ids, tt.wantIDs)
			}
			if resp.Total != 3 || resp.Published != 2 {
				t.Errorf("counts = %d/%d", resp.Total, resp.Published)
			}
		})
	}
}

func TestAttributesAndCategories(t *testing.T) {
	store := loadedStore(t)

	attrs := decode[types.AttributesResponse](t, get(t, &AttributesHandler{Snapshots: store}, "/v1/attributes"))
	if len(attrs.Attributes) != 2 || attrs.Attributes[0].Name != "road_type" {
		t.Fatalf("attributes = %+v", attrs.Attributes)
	}
	road := attrs.Attributes[0]
	if road.Kind != "enum" || len(road.Values) != 2 || len(road.Operators) == 0 {
		t.Errorf("road_type = %+v", road)
	}

	rec := get(t, &CategoriesHandler{Snapshots: store}, "/v1/categories")
	var cats struct {
		Categories []struct {
			Name   string `json:"name"`
			Fields map[string]struct {
				Strategy string `json:"strategy"`
				Default  any    `json:"default"`
			} `json:"fields"`
		} `json:"categories"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &cats); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, c := range cats.Categories {
		if c.Name == "escort" {
			found = true
			if c.Fields["front_escorts"].Strategy != "max" || c.Fields["front_escorts"].Default != float64(0) {
				t.Errorf("front_escorts = %+v", c.Fields["front_escorts"])
			}
		}
	}
	if !found {
		t.Error("escort category missing")
	}
}

func TestReloadHandler(t *testing.T) {
	src := source.NewMemorySource("test", parser.Document{Name: "bundle.yaml", Data: []byte(testBundle)})
	store := source.NewStore(src)
	h := &ReloadHandler{Store: store}

	if rec := post(t, h, ""); rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if store.Snapshot() == nil {
		t.Fatal("reload did not install a snapshot")
	}

	src.Set(parser.Document{Name: "broken.yaml", Data: []byte("policies: [")})
	rec := post(t, h, "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[types.ErrorResponse](t, rec)
	if resp.Error.Code != types.CodeReloadFailed || len(resp.Error.Details) == 0 {
		t.Errorf("error = %+v", resp.Error)
	}
	if store.Snapshot().Version != "2026-03" {
		t.Error("failed reload must keep the previous snapshot")
	}

	status := decode[source.Status](t, get(t, &StatusHandler{Store: store}, "/v1/status"))
	if status.Reloads != 1 || status.Failures != 1 || status.LastError == "" {
		t.Errorf("status = %+v", status)
	}
}

func TestHealthAndReady(t *testing.T) {
	if rec := get(t, NewHealthHandler(), "/health"); rec.Code != http.StatusOK {
		t.Errorf("health = %d", rec.Code)
	}

	empty := source.NewStore(source.NewMemorySource("empty"))
	rec := get(t, NewReadyHandler(empty, nil), "/ready")
	if rec.Code != http.StatusServiceUnavailable || !bytes.Contains(rec.Body.Bytes(), []byte(`"no policy bundle loaded"`)) {
		t.Errorf("ready without bundle = %d %s", rec.Code, rec.Body.String())
	}

	rec = get(t, NewReadyHandler(loadedStore(t), nil), "/ready")
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte(`"bundle_version":"2026-03"`)) {
		t.Errorf("ready = %d %s", rec.Code, rec.Body.String())
	}

	checker := health.New(time.Second)
	checker.RegisterCheck("evidence", func(ctx context.Context) error { return errors.New("database is locked") })
	rec = get(t, NewReadyHandler(loadedStore(t), checker), "/ready")
	if rec.Code != http.StatusServiceUnavailable || !bytes.Contains(rec.Body.Bytes(), []byte(`"database is locked"`)) {
		t.Errorf("ready with failing evidence check = %d %s", rec.Code, rec.Body.String())
	}
}

func TestEvidenceHandler(t *testing.T) {
	store := storage.NewMemoryStorage()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, outcome := range []string{evidence.OutcomeMatched, evidence.OutcomeNoMatch, evidence.OutcomeMatched} {
		err := store.Store(context.Background(), &evidence.Record{
			ID:               string(rune('a' + i)),
			Timestamp:        base.Add(time.Duration(i) * time.Hour),
			Category:         "escort",
			Fact:             json.RawMessage(`{}`),
			MatchedPolicyIDs: []string{},
			Outcome:          outcome,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	h := &EvidenceHandler{Storage: store, DefaultLimit: 1, MaxLimit: 10}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/evidence", h.List)
	mux.HandleFunc("GET /v1/evidence/{id}", h.Get)

	rec := get(t, mux, "/v1/evidence?outcome=matched")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	list := decode[evidenceList](t, rec)
	if list.Total != 2 || len(list.Records) != 1 || list.Records[0].ID != "c" || list.Limit != 1 {
		t.Errorf("list = %+v", list)
	}

	list = decode[evidenceList](t, get(t, mux, "/v1/evidence?order=asc&limit=5&start=2026-03-01T00:30:00Z"))
	if len(list.Records) != 2 || list.Records[0].ID != "b" {
		t.Errorf("filtered list = %+v", list)
	}

	for _, target := range []string{"/v1/evidence?limit=11", "/v1/evidence?start=yesterday", "/v1/evidence?offset=x", "/v1/evidence?outcome=allowed"} {
		if rec := get(t, mux, target); rec.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d", target, rec.Code)
		}
	}

	if rec := get(t, mux, "/v1/evidence/b"); rec.Code != http.StatusOK {
		t.Errorf("get status = %d", rec.Code)
	}
	if rec := get(t, mux, "/v1/evidence/zzz"); rec.Code != http.StatusNotFound {
		t.Errorf("missing record status = %d", rec.Code)
	}

	disabled := &EvidenceHandler{}
	if rec := get(t, http.HandlerFunc(disabled.List), "/v1/evidence"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("disabled status = %d", rec.Code)
	}
}
