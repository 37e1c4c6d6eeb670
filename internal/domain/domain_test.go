package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func intp(i int) *int              { return &i }
func floatp(f float64) *float64    { return &f }
func timep(t time.Time) *time.Time { return &t }

func TestService_RecordJSONRoundTrip(t *testing.T) {
	want := Service{
		Name:                       "api",
		URL:                        "https://example.com",
		Port:                       intp(443),
		Kind:                       KindHTTP,
		Enabled:                    true,
		Status:                     StatusCertExpired,
		LastTimeHealthy:            timep(time.Date(2025, 8, 18, 12, 0, 0, 123456000, time.UTC)),
		LastHTTPResponseStatusCode: intp(503),
		TimeToFirstByte:            floatp(0.25),
		ExpireDate:                 timep(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)),
	}

	b, err := json.Marshal(want.ToRecord())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got, err := FromRecord(rec)
	if err != nil {
		t.Fatalf("FromRecord: %v", err)
	}

	if got.Name != want.Name || got.URL != want.URL || got.Kind != want.Kind ||
		got.Enabled != want.Enabled || got.Status != want.Status {
		t.Fatalf("mismatch after round-trip:\nwant=%+v\ngot =%+v", want, got)
	}
	if got.Port == nil || *got.Port != 443 {
		t.Fatalf("port: got %v", got.Port)
	}
	if got.LastHTTPResponseStatusCode == nil || *got.LastHTTPResponseStatusCode != 503 {
		t.Fatalf("status code: got %v", got.LastHTTPResponseStatusCode)
	}
	if got.TimeToFirstByte == nil || *got.TimeToFirstByte != 0.25 {
		t.Fatalf("ttfb: got %v", got.TimeToFirstByte)
	}
	if got.LastTimeHealthy == nil || !got.LastTimeHealthy.Equal(*want.LastTimeHealthy) {
		t.Fatalf("last_time_healthy: want %v got %v", want.LastTimeHealthy, got.LastTimeHealthy)
	}
	if got.ExpireDate == nil || !got.ExpireDate.Equal(*want.ExpireDate) {
		t.Fatalf("expire_date: want %v got %v", want.ExpireDate, got.ExpireDate)
	}
}

func TestService_RecordRoundTripNulls(t *testing.T) {
	want, err := NewService("db", "db.internal", intp(5432), KindSocket)
	if err != nil {
		t.Fatal(err)
	}
	got, err := FromRecord(want.ToRecord())
	if err != nil {
		t.Fatal(err)
	}
	if got.LastTimeHealthy != nil || got.ExpireDate != nil || got.TimeToFirstByte != nil ||
		got.LastHTTPResponseStatusCode != nil {
		t.Fatalf("expected nil optional fields, got %+v", got)
	}
	if got.Status != StatusUnknown || !got.Enabled || got.Kind != KindSocket {
		t.Fatalf("unexpected defaults: %+v", got)
	}
}

func TestRecord_TimestampEncoding(t *testing.T) {
	s := Service{
		Name: "x", URL: "x.com", Kind: KindHTTP, Status: StatusHealthy,
		LastTimeHealthy: timep(time.Date(2024, 2, 29, 23, 59, 58, 1000, time.UTC)),
	}
	rec := s.ToRecord()
	if rec.LastTimeHealthy == nil || *rec.LastTimeHealthy != "2024-02-29T23:59:58.000001" {
		t.Fatalf("unexpected encoding: %v", rec.LastTimeHealthy)
	}
}

func TestFromRecord_Legacy(t *testing.T) {
	raw := `{"service_type":"request","name":"old","domain":"old.example.com","port":443,"status":"healthy",
	         "last_time_healthy":"not-a-date","expire_date":"2024-05-01T10:00:00"}`
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		t.Fatal(err)
	}
	s, err := FromRecord(rec)
	if err != nil {
		t.Fatalf("FromRecord: %v", err)
	}
	if s.Kind != KindHTTP || s.URL != "old.example.com" || !s.Enabled {
		t.Fatalf("legacy decode wrong: %+v", s)
	}
	if s.LastTimeHealthy != nil {
		t.Fatalf("unparseable timestamp should decode to nil, got %v", s.LastTimeHealthy)
	}
	if s.ExpireDate == nil || s.ExpireDate.Month() != time.May {
		t.Fatalf("second-precision timestamp should decode, got %v", s.ExpireDate)
	}
	if s.TargetURL() != "https://old.example.com:443" {
		t.Fatalf("target url: %s", s.TargetURL())
	}
}

func TestFromRecord_InvalidStatus(t *testing.T) {
	for _, st := range []string{"", "down", "HEALTHY"} {
		_, err := FromRecord(Record{Name: "a", URL: "a.com", Status: st})
		if !errors.Is(err, ErrInvalidStatus) {
			t.Fatalf("status %q: want ErrInvalidStatus, got %v", st, err)
		}
	}
}

func TestFromRecords_StopsOnInvalid(t *testing.T) {
	_, err := FromRecords([]Record{
		{Name: "a", URL: "a.com", Status: "healthy"},
		{Name: "b", URL: "b.com", Status: "bogus"},
	})
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("want ErrInvalidStatus, got %v", err)
	}
}

func TestNewService_Validation(t *testing.T) {
	cases := []struct {
		name   string
		svc    string
		target string
		port   *int
		kind   TransportKind
		ok     bool
	}{
		{"http without port", "web", "https://example.com", nil, KindHTTP, true},
		{"socket with port", "ssh", "example.com", intp(22), KindSocket, true},
		{"socket without port", "ssh", "example.com", nil, KindSocket, false},
		{"socket with scheme", "ssh", "tcp://example.com", intp(22), KindSocket, false},
		{"empty name", " ", "example.com", nil, KindHTTP, false},
		{"name with space", "my api", "example.com", nil, KindHTTP, false},
		{"empty target", "web", "", nil, KindHTTP, false},
		{"port out of range", "web", "example.com", intp(70000), KindHTTP, false},
		{"unknown kind", "web", "example.com", nil, TransportKind("udp"), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := NewService(c.svc, c.target, c.port, c.kind)
			if c.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !c.ok && !errors.Is(err, ErrInvalidService) {
				t.Fatalf("want ErrInvalidService, got %v", err)
			}
		})
	}
}

func TestService_TargetURL(t *testing.T) {
	cases := []struct {
		url  string
		port *int
		want string
	}{
		{"https://example.com/health", nil, "https://example.com/health"},
		{"example.com", intp(443), "https://example.com:443"},
		{"example.com", intp(8080), "http://example.com:8080"},
		{"example.com", nil, "http://example.com"},
	}
	for _, c := range cases {
		s := Service{URL: c.url, Port: c.port, Kind: KindHTTP}
		if got := s.TargetURL(); got != c.want {
			t.Fatalf("TargetURL(%q,%v)=%q want %q", c.url, c.port, got, c.want)
		}
	}
}

func TestParseTransportKind(t *testing.T) {
	cases := map[string]TransportKind{"socket": KindSocket, "TCP": KindSocket, "request": KindHTTP, "http": KindHTTP, "": KindHTTP}
	for in, want := range cases {
		got, err := ParseTransportKind(in)
		if err != nil || got != want {
			t.Fatalf("ParseTransportKind(%q)=%q,%v want %q", in, got, err, want)
		}
	}
	if _, err := ParseTransportKind("udp"); err == nil {
		t.Fatal("expected error for udp")
	}
}

func TestSameName(t *testing.T) {
	if !SameName("API", "api ") {
		t.Fatal("names should match case-insensitively")
	}
	if SameName("api", "api2") {
		t.Fatal("different names matched")
	}
}

func TestService_Render(t *testing.T) {
	s := Service{
		Name: "web", URL: "https://example.com", Kind: KindHTTP, Enabled: true,
		Status:                     StatusUnhealthy,
		LastHTTPResponseStatusCode: intp(502),
		LastTimeHealthy:            timep(time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)),
		ExpireDate:                 timep(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)),
	}
	out := s.Render()
	for _, want := range []string{"web is UNHEALTHY", "Status: 502", "Last time healthy: 04/03/2025 05:06:07", "Cert expires: 02/01/2026 00:00:00"} {
		if !strings.Contains(out, want) {
			t.Fatalf("render missing %q:\n%s", want, out)
		}
	}

	s.Status = StatusHealthy
	s.TimeToFirstByte = floatp(0.1234)
	out = s.Render()
	if !strings.Contains(out, "ttfb: 0.123s") || strings.Contains(out, "Last time healthy") {
		t.Fatalf("healthy render wrong:\n%s", out)
	}

	if RenderList(nil) != "There is nothing to see here" {
		t.Fatal("empty list text")
	}
}

func TestService_CloneIsDeep(t *testing.T) {
	s := Service{Name: "a", Port: intp(1), TimeToFirstByte: floatp(1)}
	c := s.Clone()
	*c.Port = 2
	*c.TimeToFirstByte = 2
	if *s.Port != 1 || *s.TimeToFirstByte != 1 {
		t.Fatal("clone shares pointers with original")
	}
}
