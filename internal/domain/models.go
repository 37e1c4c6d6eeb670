package domain

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

var (
	ErrDuplicateName  = errors.New("service name already registered")
	ErrInvalidService = errors.New("invalid service")
	ErrInvalidStatus  = errors.New("invalid service status")
)

// Status is the health state of a service. It only changes as the outcome
// of an evaluation cycle.
type Status string

const (
	StatusUnknown     Status = "unknown"
	StatusHealthy     Status = "healthy"
	StatusUnhealthy   Status = "unhealthy"
	StatusCertExpired Status = "cert_expired"
)

func (s Status) Valid() bool {
	switch s {
	case StatusUnknown, StatusHealthy, StatusUnhealthy, StatusCertExpired:
		return true
	}
	return false
}

// Failing reports whether s is one of the failure states.
func (s Status) Failing() bool {
	return s == StatusUnhealthy || s == StatusCertExpired
}

// TransportKind selects the probe strategy used for a service.
type TransportKind string

const (
	KindSocket TransportKind = "socket"
	KindHTTP   TransportKind = "http"
)

// ParseTransportKind accepts the current names plus the legacy "request"
// alias for HTTP.
func ParseTransportKind(s string) (TransportKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "socket", "tcp":
		return KindSocket, nil
	case "http", "https", "request", "":
		return KindHTTP, nil
	}
	return "", fmt.Errorf("%w: unknown transport kind %q", ErrInvalidService, s)
}

// Service is a monitored target owned by one subscriber group.
type Service struct {
	Name    string
	URL     string // full URL for http, host name or IP for socket
	Port    *int
	Kind    TransportKind
	Enabled bool
	Status  Status

	LastTimeHealthy            *time.Time
	LastHTTPResponseStatusCode *int
	TimeToFirstByte            *float64 // seconds
	ExpireDate                 *time.Time
}

// NewService builds an enabled service in the unknown state and validates it.
func NewService(name, target string, port *int, kind TransportKind) (Service, error) {
	s := Service{
		Name:    strings.TrimSpace(name),
		URL:     strings.TrimSpace(target),
		Port:    port,
		Kind:    kind,
		Enabled: true,
		Status:  StatusUnknown,
	}
	if err := s.Validate(); err != nil {
		return Service{}, err
	}
	return s, nil
}

func (s Service) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidService)
	}
	if strings.ContainsAny(s.Name, " \t\r\n/") {
		return fmt.Errorf("%w: name %q must not contain spaces or slashes", ErrInvalidService, s.Name)
	}
	if s.URL == "" {
		return fmt.Errorf("%w: url or domain is required", ErrInvalidService)
	}
	if s.Port != nil && (*s.Port < 1 || *s.Port > 65535) {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidService, *s.Port)
	}
	switch s.Kind {
	case KindSocket:
		if s.Port == nil {
			return fmt.Errorf("%w: socket services need a port", ErrInvalidService)
		}
		if strings.Contains(s.URL, "://") {
			return fmt.Errorf("%w: socket target must be a host, got %q", ErrInvalidService, s.URL)
		}
	case KindHTTP:
	default:
		return fmt.Errorf("%w: unknown transport kind %q", ErrInvalidService, s.Kind)
	}
	if !s.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, s.Status)
	}
	return nil
}

// SameName compares service names the way the registry does.
func SameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Address returns host:port for socket probing.
func (s Service) Address() string {
	port := 0
	if s.Port != nil {
		port = *s.Port
	}
	return net.JoinHostPort(s.URL, strconv.Itoa(port))
}

// TargetURL returns the URL an HTTP probe should request. A target that
// already carries a scheme is used as is; otherwise https is inferred for
// port 443 and http for anything else.
func (s Service) TargetURL() string {
	if strings.Contains(s.URL, "://") {
		return s.URL
	}
	scheme := "http"
	if s.Port != nil && *s.Port == 443 {
		scheme = "https"
	}
	if s.Port == nil {
		return scheme + "://" + s.URL
	}
	return scheme + "://" + net.JoinHostPort(s.URL, strconv.Itoa(*s.Port))
}

func (s Service) String() string {
	if s.Kind == KindSocket {
		return fmt.Sprintf("%s <%s>", s.Name, s.Address())
	}
	return fmt.Sprintf("%s <%s>", s.Name, s.TargetURL())
}

// Clone returns a copy that shares no pointers with s.
func (s Service) Clone() Service {
	c := s
	c.Port = clonePtr(s.Port)
	c.LastTimeHealthy = clonePtr(s.LastTimeHealthy)
	c.LastHTTPResponseStatusCode = clonePtr(s.LastHTTPResponseStatusCode)
	c.TimeToFirstByte = clonePtr(s.TimeToFirstByte)
	c.ExpireDate = clonePtr(s.ExpireDate)
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
