package probe

import (
	"crypto/tls"
	"crypto/x509"
	"net"
	"net/http"
	"time"
)

// Options configures the HTTP session shared by one evaluation cycle.
type Options struct {
	RetryAttempts      int           // extra tries after a connection-level failure
	RetryBackoff       time.Duration // pause between tries
	InsecureSkipVerify bool
	RootCAs            *x509.CertPool // nil means the system pool
	DialTimeout        time.Duration
}

// Session owns the pooled HTTP client used by every HTTP probe of a cycle.
// It is read-only while probes run and must be closed when the cycle ends.
type Session struct {
	Client    *http.Client
	transport *http.Transport
}

// NewSession builds a client whose connection pool is sized for poolSize
// concurrent probes.
func NewSession(opts Options, poolSize int) *Session {
	if poolSize < 1 {
		poolSize = 1
	}
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          poolSize,
		MaxIdleConnsPerHost:   poolSize,
		MaxConnsPerHost:       poolSize,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: opts.InsecureSkipVerify,
			RootCAs:            opts.RootCAs,
		},
	}

	return &Session{
		Client: &http.Client{
			Transport: &retryTransport{
				next:     tr,
				attempts: opts.RetryAttempts,
				backoff:  opts.RetryBackoff,
			},
		},
		transport: tr,
	}
}

// Close releases the idle connections held by the session.
func (s *Session) Close() {
	if s == nil || s.transport == nil {
		return
	}
	s.transport.CloseIdleConnections()
}
