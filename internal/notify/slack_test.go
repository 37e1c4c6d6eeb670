package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hamed0406/servicemonitor/internal/alert"
	"github.com/hamed0406/servicemonitor/internal/domain"
)

func downEvent() alert.Event {
	code := 502
	return alert.Event{
		Kind:    alert.KindDown,
		GroupID: "-100123",
		Service: domain.Service{Name: "api", URL: "https://api.example.com", Kind: domain.KindHTTP,
			Enabled: true, Status: domain.StatusUnhealthy, LastHTTPResponseStatusCode: &code},
	}
}

func TestSlack_OK(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		_ = json.NewDecoder(r.Body).Decode(&payload)
		got = payload["text"]
		w.WriteHeader(200)
	}))
	defer ts.Close()

	s := NewSlack(ts.URL)
	if s == nil {
		t.Fatal("expected slack client")
	}
	if err := s.Notify(context.Background(), downEvent()); err != nil {
		t.Fatalf("send err: %v", err)
	}
	if !strings.HasPrefix(got, "*") || !strings.Contains(got, "api is down") || !strings.Contains(got, "502") {
		t.Fatalf("payload not as expected: %q", got)
	}
}

func TestSlack_Non2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer ts.Close()

	if err := NewSlack(ts.URL).Notify(context.Background(), downEvent()); err == nil {
		t.Fatalf("expected error on non-2xx")
	}
}

func TestNewSlack_DisabledWithoutWebhook(t *testing.T) {
	if NewSlack("") != nil {
		t.Fatal("want nil notifier without webhook")
	}
}
