package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hamed0406/servicemonitor/internal/alert"
	"github.com/hamed0406/servicemonitor/internal/domain"
	"github.com/hamed0406/servicemonitor/internal/monitor"
	"github.com/hamed0406/servicemonitor/internal/probe"
	"github.com/hamed0406/servicemonitor/internal/repo"
)

// serviceView is a stored record plus its human-readable rendering.
type serviceView struct {
	domain.Record
	Text string `json:"text"`
}

func newServiceView(s domain.Service) serviceView {
	return serviceView{Record: s.ToRecord(), Text: s.Render()}
}

type addPayload struct {
	Name   string `json:"name"`
	Target string `json:"target"`
	URL    string `json:"url"` // alias of target
	Port   *int   `json:"port"`
	Kind   string `json:"kind"`
}

type addResponse struct {
	Service serviceView      `json:"service"`
	DNS     *probe.DNSReport `json:"dns,omitempty"`
}

type eventView struct {
	Kind            alert.Kind `json:"kind"`
	Service         string     `json:"service"`
	At              time.Time  `json:"at"`
	TimeDownSeconds *float64   `json:"time_down_seconds,omitempty"`
	DaysLeft        *int       `json:"days_left,omitempty"`
	Title           string     `json:"title"`
	Text            string     `json:"text"`
}

type checkResponse struct {
	Group    string        `json:"group"`
	Services []serviceView `json:"services"`
	Events   []eventView   `json:"events"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	group := chi.URLParam(r, "group")
	svcs, err := s.Registry.List(r.Context(), group)
	if err != nil {
		s.fail(w, "list_failed", group, err)
		return
	}
	out := make([]serviceView, 0, len(svcs))
	for _, svc := range svcs {
		out = append(out, newServiceView(svc))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	group := chi.URLParam(r, "group")
	var p addPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	target := p.Target
	if target == "" {
		target = p.URL
	}
	kind, err := domain.ParseTransportKind(p.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	svc, err := s.Registry.Add(r.Context(), group, monitor.AddRequest{
		Name:   p.Name,
		Target: target,
		Port:   p.Port,
		Kind:   kind,
	})
	if err != nil {
		s.fail(w, "add_failed", group, err)
		return
	}

	resp := addResponse{Service: newServiceView(svc)}
	if s.Resolver != nil {
		rep := probe.CheckDNS(r.Context(), s.Resolver, probe.HostOf(svc.URL))
		if rep.Class != probe.DNSResolves {
			s.Logger.Info("dns_check",
				zap.String("group", group),
				zap.String("host", rep.Host),
				zap.String("class", string(rep.Class)),
				zap.Strings("nameservers", rep.Nameservers),
				zap.String("cname", rep.CNAME),
				zap.String("resolver_error", rep.Error),
			)
		}
		resp.DNS = &rep
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	group := chi.URLParam(r, "group")
	name := chi.URLParam(r, "name")
	if err := s.Registry.Remove(r.Context(), group, name); err != nil {
		s.fail(w, "remove_failed", group, err)
		return
	}
	if s.Forget != nil {
		s.Forget.Forget(group, name)
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCheck runs a cycle for the group right away and dispatches the
// events it produced, exactly like a scheduler tick would.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	group := chi.URLParam(r, "group")
	if err := repo.ValidateGroupID(group); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sum, err := s.Engine.EvaluateGroup(r.Context(), group)
	if err != nil {
		s.fail(w, "check_failed", group, err)
		return
	}

	var events []alert.Event
	if s.Alerter != nil {
		// Delivery should not be cut short by the client going away.
		events = s.Alerter.Dispatch(context.WithoutCancel(r.Context()), sum)
	}

	resp := checkResponse{
		Group:    group,
		Services: make([]serviceView, 0, len(sum.Services)),
		Events:   make([]eventView, 0, len(events)),
	}
	for _, svc := range sum.Services {
		resp.Services = append(resp.Services, newServiceView(svc))
	}
	for _, ev := range events {
		v := eventView{
			Kind:     ev.Kind,
			Service:  ev.Service.Name,
			At:       ev.At.UTC(),
			DaysLeft: ev.DaysLeft,
			Title:    ev.Title(),
			Text:     ev.Text(),
		}
		if ev.TimeDown != nil {
			secs := ev.TimeDown.Seconds()
			v.TimeDownSeconds = &secs
		}
		resp.Events = append(resp.Events, v)
	}
	writeJSON(w, http.StatusOK, resp)
}

// fail maps domain and repository errors onto status codes.
func (s *Server) fail(w http.ResponseWriter, event, group string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidService), errors.Is(err, repo.ErrInvalidGroupID):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrDuplicateName):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.Logger.Error(event, zap.String("group", group), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
