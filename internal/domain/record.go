package domain

import (
	"fmt"
	"time"
)

// TimeLayout is the stable timestamp encoding used in persisted records.
// Timestamps are stored as naive UTC.
const TimeLayout = "2006-01-02T15:04:05.000000"

// Record is the flat, storage-portable shape of a Service.
//
//	name                            string
//	url                             string   (legacy key: domain)
//	port                            int|null
//	transport_kind                  "socket"|"http" (legacy key: service_type, "request" = http)
//	enabled                         bool, absent = true
//	status                          "unknown"|"healthy"|"unhealthy"|"cert_expired"
//	last_time_healthy               TimeLayout|null
//	last_http_response_status_code  int|null
//	time_to_first_byte              float|null
//	expire_date                     TimeLayout|null
type Record struct {
	Name                       string   `json:"name"`
	URL                        string   `json:"url,omitempty"`
	Port                       *int     `json:"port"`
	TransportKind              string   `json:"transport_kind,omitempty"`
	Enabled                    *bool    `json:"enabled"`
	Status                     string   `json:"status"`
	LastTimeHealthy            *string  `json:"last_time_healthy"`
	LastHTTPResponseStatusCode *int     `json:"last_http_response_status_code"`
	TimeToFirstByte            *float64 `json:"time_to_first_byte"`
	ExpireDate                 *string  `json:"expire_date"`

	// Legacy keys, read only.
	Domain      string `json:"domain,omitempty"`
	ServiceType string `json:"service_type,omitempty"`
}

func (s Service) ToRecord() Record {
	enabled := s.Enabled
	return Record{
		Name:                       s.Name,
		URL:                        s.URL,
		Port:                       clonePtr(s.Port),
		TransportKind:              string(s.Kind),
		Enabled:                    &enabled,
		Status:                     string(s.Status),
		LastTimeHealthy:            encodeTime(s.LastTimeHealthy),
		LastHTTPResponseStatusCode: clonePtr(s.LastHTTPResponseStatusCode),
		TimeToFirstByte:            clonePtr(s.TimeToFirstByte),
		ExpireDate:                 encodeTime(s.ExpireDate),
	}
}

// FromRecord decodes a persisted record. Unparseable optional timestamps
// become nil; an unknown status is an error.
func FromRecord(r Record) (Service, error) {
	status := Status(r.Status)
	if !status.Valid() {
		return Service{}, fmt.Errorf("%w: %q for service %q", ErrInvalidStatus, r.Status, r.Name)
	}

	rawKind := r.TransportKind
	if rawKind == "" {
		rawKind = r.ServiceType
	}
	kind, err := ParseTransportKind(rawKind)
	if err != nil {
		return Service{}, fmt.Errorf("service %q: %w", r.Name, err)
	}

	url := r.URL
	if url == "" {
		url = r.Domain
	}

	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}

	return Service{
		Name:                       r.Name,
		URL:                        url,
		Port:                       clonePtr(r.Port),
		Kind:                       kind,
		Enabled:                    enabled,
		Status:                     status,
		LastTimeHealthy:            decodeTime(r.LastTimeHealthy),
		LastHTTPResponseStatusCode: clonePtr(r.LastHTTPResponseStatusCode),
		TimeToFirstByte:            clonePtr(r.TimeToFirstByte),
		ExpireDate:                 decodeTime(r.ExpireDate),
	}, nil
}

// FromRecords decodes a whole group, failing on the first invalid record.
func FromRecords(rs []Record) ([]Service, error) {
	out := make([]Service, 0, len(rs))
	for _, r := range rs {
		s, err := FromRecord(r)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func ToRecords(ss []Service) []Record {
	out := make([]Record, 0, len(ss))
	for _, s := range ss {
		out = append(out, s.ToRecord())
	}
	return out
}

func encodeTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.UTC().Format(TimeLayout)
	return &v
}

func decodeTime(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := time.ParseInLocation(TimeLayout, *s, time.UTC)
	if err != nil {
		// older files were written without the fractional part
		t, err = time.ParseInLocation("2006-01-02T15:04:05", *s, time.UTC)
		if err != nil {
			return nil
		}
	}
	return &t
}

// Clone returns a copy of r that shares no pointers with it.
func (r Record) Clone() Record {
	c := r
	c.Port = clonePtr(r.Port)
	c.Enabled = clonePtr(r.Enabled)
	c.LastTimeHealthy = clonePtr(r.LastTimeHealthy)
	c.LastHTTPResponseStatusCode = clonePtr(r.LastHTTPResponseStatusCode)
	c.TimeToFirstByte = clonePtr(r.TimeToFirstByte)
	c.ExpireDate = clonePtr(r.ExpireDate)
	return c
}
