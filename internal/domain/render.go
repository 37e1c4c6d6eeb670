package domain

import (
	"fmt"
	"strconv"
	"strings"
)

const displayLayout = "02/01/2006 15:04:05"

// Render returns the listing text for one service.
func (s Service) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s is %s", s.Name, strings.ToUpper(string(s.Status)))
	if !s.Enabled {
		b.WriteString(" (disabled)")
	}

	code := "n/a"
	if s.LastHTTPResponseStatusCode != nil {
		code = strconv.Itoa(*s.LastHTTPResponseStatusCode)
	}
	if s.Kind == KindHTTP {
		fmt.Fprintf(&b, "\nStatus: %s", code)
	}

	switch {
	case s.Status == StatusHealthy && s.TimeToFirstByte != nil:
		fmt.Fprintf(&b, "\nttfb: %.3fs", *s.TimeToFirstByte)
	case s.Status.Failing() && s.LastTimeHealthy != nil:
		fmt.Fprintf(&b, "\nLast time healthy: %s", s.LastTimeHealthy.UTC().Format(displayLayout))
	}
	if s.ExpireDate != nil {
		fmt.Fprintf(&b, "\nCert expires: %s", s.ExpireDate.UTC().Format(displayLayout))
	}
	return b.String()
}

// RenderList joins the listing text of every service.
func RenderList(ss []Service) string {
	if len(ss) == 0 {
		return "There is nothing to see here"
	}
	parts := make([]string, 0, len(ss))
	for _, s := range ss {
		parts = append(parts, s.Render())
	}
	return strings.Join(parts, "\n\n")
}
