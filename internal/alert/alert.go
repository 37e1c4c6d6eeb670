// Package alert turns an evaluation summary into notification events.
package alert

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/hamed0406/servicemonitor/internal/domain"
	"github.com/hamed0406/servicemonitor/internal/health"
)

type Kind string

const (
	KindDown             Kind = "DOWN"
	KindRecovered        Kind = "RECOVERED"
	KindCertExpiringSoon Kind = "CERT_EXPIRING_SOON"
	KindCertExpired      Kind = "CERT_EXPIRED"
)

// DefaultThresholds are the days-left values that trigger an expiry warning.
var DefaultThresholds = []int{7, 1}

// Event is a structured notification. Notifiers decide how to render it.
type Event struct {
	Kind     Kind
	GroupID  string
	Service  domain.Service
	At       time.Time
	TimeDown *time.Duration // RECOVERED only, when known
	DaysLeft *int           // CERT_EXPIRING_SOON only
}

// Decide is pure: the same summary, clock and thresholds always give the
// same events. Expiry warnings carry no memory of earlier cycles.
func Decide(sum health.Summary, now time.Time, thresholds []int) []Event {
	var out []Event
	at := sum.EvaluatedAt
	if at.IsZero() {
		at = now
	}

	for _, s := range sum.BecameUnhealthy {
		kind := KindDown
		if s.Status == domain.StatusCertExpired {
			kind = KindCertExpired
		}
		out = append(out, Event{Kind: kind, GroupID: sum.GroupID, Service: s, At: at})
	}
	for _, s := range sum.BecameHealthy {
		ev := Event{Kind: KindRecovered, GroupID: sum.GroupID, Service: s, At: at}
		if d, ok := sum.TimeDown[s.Name]; ok {
			ev.TimeDown = &d
		}
		out = append(out, ev)
	}

	want := make(map[int]bool, len(thresholds))
	for _, d := range thresholds {
		want[d] = true
	}
	for _, s := range sum.Services {
		if !s.Enabled || s.ExpireDate == nil || !s.ExpireDate.After(now) {
			continue
		}
		days := int(s.ExpireDate.Sub(now) / (24 * time.Hour))
		if want[days] {
			out = append(out, Event{Kind: KindCertExpiringSoon, GroupID: sum.GroupID, Service: s, At: at, DaysLeft: &days})
		}
	}
	return out
}

// ParseThresholds reads a comma separated day list such as "7,1".
func ParseThresholds(list []string) ([]int, error) {
	out := make([]int, 0, len(list))
	for _, raw := range list {
		d, err := strconv.Atoi(raw)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("invalid expiry threshold %q", raw)
		}
		out = append(out, d)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out, nil
}

// Title is a one-line headline.
func (e Event) Title() string {
	switch e.Kind {
	case KindDown:
		return fmt.Sprintf("🤕 %s is down", e.Service.Name)
	case KindCertExpired:
		return fmt.Sprintf("🤕 %s certificate is expired", e.Service.Name)
	case KindRecovered:
		return fmt.Sprintf("✅ %s is back to normal", e.Service.Name)
	case KindCertExpiringSoon:
		return fmt.Sprintf("⚠️ %s certificate expires soon", e.Service.Name)
	}
	return string(e.Kind) + " " + e.Service.Name
}

// Text is the default message body.
func (e Event) Text() string {
	code := "nothing"
	if e.Service.LastHTTPResponseStatusCode != nil {
		code = strconv.Itoa(*e.Service.LastHTTPResponseStatusCode)
	}
	target := e.Service.String()

	switch e.Kind {
	case KindDown, KindCertExpired:
		return fmt.Sprintf("%s\nIt returned %s", target, code)
	case KindRecovered:
		suffix := ""
		if e.TimeDown != nil {
			suffix = " after " + e.TimeDown.String()
		}
		return fmt.Sprintf("%s\nBack up%s, it returned %s", target, suffix, code)
	case KindCertExpiringSoon:
		days := 0
		if e.DaysLeft != nil {
			days = *e.DaysLeft
		}
		exp := ""
		if e.Service.ExpireDate != nil {
			exp = e.Service.ExpireDate.UTC().Format("02/01/2006 15:04:05")
		}
		return fmt.Sprintf("%s\nCertificate expires in %d day(s) on %s", target, days, exp)
	}
	return target
}
