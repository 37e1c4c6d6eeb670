package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/hamed0406/servicemonitor/internal/alert"
	"github.com/hamed0406/servicemonitor/internal/domain"
	"github.com/hamed0406/servicemonitor/internal/health"
	apimw "github.com/hamed0406/servicemonitor/internal/httpapi/middleware"
	"github.com/hamed0406/servicemonitor/internal/monitor"
	"github.com/hamed0406/servicemonitor/internal/probe"
	"github.com/hamed0406/servicemonitor/internal/repo"
	"github.com/hamed0406/servicemonitor/internal/repo/memory"
	"github.com/hamed0406/servicemonitor/internal/scheduler"
)

// ---- test helpers ----

type memNotifier struct {
	mu     sync.Mutex
	events []alert.Event
}

func (m *memNotifier) Notify(_ context.Context, ev alert.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

type fakeResolver struct{ ips []net.IPAddr }

func (f fakeResolver) LookupIPAddr(context.Context, string) ([]net.IPAddr, error) {
	return f.ips, nil
}
func (f fakeResolver) LookupCNAME(_ context.Context, host string) (string, error) {
	return host + ".", nil
}
func (f fakeResolver) LookupNS(context.Context, string) ([]*net.NS, error) { return nil, nil }

type recordingForget struct{ calls []string }

func (f *recordingForget) Forget(group, name string) { f.calls = append(f.calls, group+"/"+name) }

type failingEvaluator struct{}

func (failingEvaluator) EvaluateGroup(context.Context, string) (health.Summary, error) {
	return health.Summary{}, errors.New("store offline")
}

type fixture struct {
	ts       *httptest.Server
	store    *memory.Store
	notifier *memNotifier
	forget   *recordingForget
}

// setup wires a server whose probes always return res.
func setup(t *testing.T, res probe.Result) *fixture {
	t.Helper()
	log := zap.NewNop()
	store := memory.New()
	locks := repo.NewGroupLocks()

	checker := probe.CheckerFunc(func(context.Context, domain.Service, *probe.Session) probe.Result { return res })
	eng := health.New(store, locks, probe.Table{domain.KindHTTP: checker, domain.KindSocket: checker},
		health.Config{}, log)

	nt := &memNotifier{}
	srv := NewServer(log, monitor.NewRegistry(store, locks, log), eng, scheduler.NewAlerter(nt, scheduler.AlerterConfig{}, log))
	srv.Resolver = fakeResolver{ips: []net.IPAddr{{IP: net.ParseIP("192.0.2.10")}}}
	fg := &recordingForget{}
	srv.Forget = fg

	keys := apimw.Keys{
		Public: []string{"pub_test"},
		Admin:  []string{"adm_test"},
	}
	// very high rate limits to avoid flakiness in tests
	h := srv.Router(keys, nil, Limits{10_000, 10_000, 10_000, 10_000})
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return &fixture{ts: ts, store: store, notifier: nt, forget: fg}
}

func (f *fixture) do(t *testing.T, method, path, key string, body any) *http.Response {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, _ := http.NewRequest(method, f.ts.URL+path, rd)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func healthyResult() probe.Result {
	code := 200
	ttfb := 0.05
	return probe.Result{Healthy: true, StatusCode: &code, ElapsedSeconds: &ttfb}
}

// ---- tests ----

func TestAddService_OK_Duplicate_Invalid(t *testing.T) {
	f := setup(t, healthyResult())

	// 1) Add OK
	resp := f.do(t, http.MethodPost, "/api/groups/ops/services", "adm_test",
		map[string]any{"name": "site", "url": "https://example.com"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("want 201, got %d", resp.StatusCode)
	}
	var added struct {
		Service struct {
			Name          string `json:"name"`
			URL           string `json:"url"`
			TransportKind string `json:"transport_kind"`
			Status        string `json:"status"`
			Text          string `json:"text"`
		} `json:"service"`
		DNS struct {
			Host  string   `json:"host"`
			Class string   `json:"class"`
			IPs   []string `json:"ips"`
		} `json:"dns"`
	}
	decode(t, resp, &added)
	if added.Service.Name != "site" || added.Service.Status != "unknown" || added.Service.TransportKind != "http" {
		t.Fatalf("unexpected service: %+v", added.Service)
	}
	if added.Service.Text != "site is UNKNOWN\nStatus: n/a" {
		t.Fatalf("unexpected text: %q", added.Service.Text)
	}
	if added.DNS.Host != "example.com" || added.DNS.Class != string(probe.DNSResolves) || len(added.DNS.IPs) != 1 {
		t.Fatalf("unexpected dns: %+v", added.DNS)
	}

	// 2) Duplicate (any letter case) should be 409
	resp2 := f.do(t, http.MethodPost, "/api/groups/ops/services", "adm_test",
		map[string]any{"name": "SITE", "target": "https://other.example"})
	if resp2.StatusCode != http.StatusConflict {
		t.Fatalf("want 409 on duplicate, got %d", resp2.StatusCode)
	}

	// 3) Invalid input should be 400
	bad := []map[string]any{
		{"name": "", "url": "https://x.example"},
		{"name": "db", "target": "db.internal", "kind": "socket"},
		{"name": "db", "target": "db.internal", "kind": "udp", "port": 53},
		{"name": "p", "url": "https://x.example", "port": 70000},
	}
	for _, b := range bad {
		r := f.do(t, http.MethodPost, "/api/groups/ops/services", "adm_test", b)
		if r.StatusCode != http.StatusBadRequest {
			t.Fatalf("want 400 for %v, got %d", b, r.StatusCode)
		}
	}

	recs, _ := f.store.FetchAll(context.Background(), "ops")
	if len(recs) != 1 {
		t.Fatalf("want one stored record, got %d", len(recs))
	}
}

func TestAddService_BadPayloadAndGroup(t *testing.T) {
	f := setup(t, healthyResult())

	req, _ := http.NewRequest(http.MethodPost, f.ts.URL+"/api/groups/ops/services", bytes.NewReader([]byte("{")))
	req.Header.Set("X-API-Key", "adm_test")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400 on malformed json, got %d", resp.StatusCode)
	}

	r := f.do(t, http.MethodPost, "/api/groups/..bad/services", "adm_test",
		map[string]any{"name": "a", "url": "https://a.example"})
	if r.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400 on invalid group id, got %d", r.StatusCode)
	}
}

func TestListAndRemove(t *testing.T) {
	f := setup(t, healthyResult())

	port := 5432
	f.do(t, http.MethodPost, "/api/groups/ops/services", "adm_test",
		map[string]any{"name": "web", "url": "https://example.com"})
	f.do(t, http.MethodPost, "/api/groups/ops/services", "adm_test",
		map[string]any{"name": "db", "target": "db.internal", "kind": "socket", "port": port})

	// list (public)
	resp := f.do(t, http.MethodGet, "/api/groups/ops/services", "pub_test", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200 list, got %d", resp.StatusCode)
	}
	var list []struct {
		Name string `json:"name"`
		Port *int   `json:"port"`
		Text string `json:"text"`
	}
	decode(t, resp, &list)
	if len(list) != 2 || list[0].Name != "web" || list[1].Name != "db" {
		t.Fatalf("unexpected list: %+v", list)
	}
	if list[1].Port == nil || *list[1].Port != port || list[1].Text != "db is UNKNOWN" {
		t.Fatalf("unexpected socket entry: %+v", list[1])
	}

	// remove (admin), case-insensitive and idempotent
	for i := 0; i < 2; i++ {
		r := f.do(t, http.MethodDelete, "/api/groups/ops/services/WEB", "adm_test", nil)
		if r.StatusCode != http.StatusNoContent {
			t.Fatalf("want 204 on remove #%d, got %d", i+1, r.StatusCode)
		}
	}
	if len(f.forget.calls) != 2 || f.forget.calls[0] != "ops/WEB" {
		t.Fatalf("forget calls: %v", f.forget.calls)
	}

	resp2 := f.do(t, http.MethodGet, "/api/groups/ops/services", "pub_test", nil)
	list = nil
	decode(t, resp2, &list)
	if len(list) != 1 || list[0].Name != "db" {
		t.Fatalf("unexpected list after remove: %+v", list)
	}
}

func TestList_EmptyGroupIsEmptyArray(t *testing.T) {
	f := setup(t, healthyResult())
	resp := f.do(t, http.MethodGet, "/api/groups/new/services", "pub_test", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	var raw json.RawMessage
	decode(t, resp, &raw)
	if string(bytes.TrimSpace(raw)) != "[]" {
		t.Fatalf("want [], got %s", raw)
	}
}

func TestCheck_EvaluatesAndDispatches(t *testing.T) {
	f := setup(t, probe.Failed())

	f.do(t, http.MethodPost, "/api/groups/ops/services", "adm_test",
		map[string]any{"name": "web", "url": "https://example.com"})

	resp := f.do(t, http.MethodPost, "/api/groups/ops/check", "adm_test", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	var out struct {
		Group    string `json:"group"`
		Services []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"services"`
		Events []struct {
			Kind    string `json:"kind"`
			Service string `json:"service"`
			Title   string `json:"title"`
		} `json:"events"`
	}
	decode(t, resp, &out)
	if out.Group != "ops" || len(out.Services) != 1 || out.Services[0].Status != "unhealthy" {
		t.Fatalf("unexpected services: %+v", out)
	}
	if len(out.Events) != 1 || out.Events[0].Kind != string(alert.KindDown) || out.Events[0].Title != "🤕 web is down" {
		t.Fatalf("unexpected events: %+v", out.Events)
	}
	if len(f.notifier.events) != 1 {
		t.Fatalf("want one notification, got %d", len(f.notifier.events))
	}

	// a sustained outage produces no new events
	resp2 := f.do(t, http.MethodPost, "/api/groups/ops/check", "adm_test", nil)
	out.Events = nil
	decode(t, resp2, &out)
	if len(out.Events) != 0 {
		t.Fatalf("want no events on second check, got %+v", out.Events)
	}
}

func TestCheck_EngineFailureIs500(t *testing.T) {
	log := zap.NewNop()
	store := memory.New()
	srv := NewServer(log, monitor.NewRegistry(store, nil, log), failingEvaluator{}, nil)
	h := srv.Router(apimw.Keys{}, nil, Limits{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/groups/ops/check", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("want 500, got %d", rr.Code)
	}
}
