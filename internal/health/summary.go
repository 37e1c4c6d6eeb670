package health

import (
	"time"

	"github.com/hamed0406/servicemonitor/internal/domain"
	"github.com/hamed0406/servicemonitor/internal/probe"
)

// Summary reports what changed in one group during one evaluation cycle.
type Summary struct {
	GroupID         string
	EvaluatedAt     time.Time
	BecameUnhealthy []domain.Service
	BecameHealthy   []domain.Service
	// TimeDown is keyed by service name and only holds services whose
	// previous healthy time was known.
	TimeDown map[string]time.Duration
	// Services is the full persisted set after the cycle, disabled ones
	// included.
	Services []domain.Service
}

// Empty reports whether the cycle produced no transitions.
func (s Summary) Empty() bool {
	return len(s.BecameUnhealthy) == 0 && len(s.BecameHealthy) == 0
}

type transition int

const (
	steady transition = iota
	wentDown
	cameUp
)

type outcome struct {
	svc       domain.Service
	change    transition
	down      time.Duration
	downKnown bool
}

// reconcile applies one probe result to the service's previous state.
// An expired certificate wins over a healthy response.
func reconcile(prev domain.Service, res probe.Result, now time.Time) outcome {
	next := prev.Clone()
	if res.StatusCode != nil {
		code := *res.StatusCode
		next.LastHTTPResponseStatusCode = &code
	}

	expired := res.ExpireDate != nil && !res.ExpireDate.After(now)
	if !res.Healthy || expired {
		next.Status = domain.StatusUnhealthy
		if expired {
			next.Status = domain.StatusCertExpired
			exp := *res.ExpireDate
			next.ExpireDate = &exp
		}
		out := outcome{svc: next}
		if !prev.Status.Failing() {
			out.change = wentDown
		}
		return out
	}

	out := outcome{}
	if prev.Status != domain.StatusHealthy {
		out.change = cameUp
		if prev.LastTimeHealthy != nil {
			out.down = now.Sub(prev.LastTimeHealthy.Truncate(time.Second))
			out.downKnown = true
		}
	}
	ts := now
	next.Status = domain.StatusHealthy
	next.LastTimeHealthy = &ts
	next.TimeToFirstByte = nil
	if res.ElapsedSeconds != nil {
		v := *res.ElapsedSeconds
		next.TimeToFirstByte = &v
	}
	next.ExpireDate = nil
	if res.ExpireDate != nil {
		v := *res.ExpireDate
		next.ExpireDate = &v
	}
	out.svc = next
	return out
}
