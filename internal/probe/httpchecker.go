package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/servicemonitor/internal/domain"
)

// UserAgent is sent with every HTTP probe. Some origins reject requests
// without a browser-like agent.
const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/91.0.4472.114 Safari/537.36"

const maxDrain = 64 << 10

// HTTPChecker issues a GET to the service's target URL. Any status outside
// 500..511 counts as healthy.
type HTTPChecker struct {
	Log *zap.Logger
	now func() time.Time
}

func NewHTTPChecker(log *zap.Logger) *HTTPChecker {
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPChecker{Log: log, now: time.Now}
}

func (h *HTTPChecker) Check(ctx context.Context, svc domain.Service, sess *Session) Result {
	target := svc.TargetURL()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		h.Log.Warn("probe_failed", zap.String("service", svc.Name), zap.String("url", target),
			zap.String("reason", "invalid_url"), zap.Error(err))
		return Failed()
	}
	req.Header.Set("User-Agent", UserAgent)

	client := http.DefaultClient
	if sess != nil && sess.Client != nil {
		client = sess.Client
	}

	start := h.now()
	resp, err := client.Do(req)
	if err != nil {
		h.Log.Warn("probe_failed", zap.String("service", svc.Name), zap.String("url", target),
			zap.String("reason", classify(err)), zap.Error(err))
		return Failed()
	}
	elapsed := h.now().Sub(start).Seconds()
	defer resp.Body.Close()
	_, _ = io.CopyN(io.Discard, resp.Body, maxDrain)

	code := resp.StatusCode
	res := Result{
		Healthy:        !serverError(code),
		ElapsedSeconds: &elapsed,
		StatusCode:     &code,
	}
	if resp.TLS != nil && len(resp.TLS.PeerCertificates) > 0 {
		exp := resp.TLS.PeerCertificates[0].NotAfter.UTC()
		res.ExpireDate = &exp
	}
	h.Log.Debug("probe_done", zap.String("service", svc.Name), zap.Int("status", code),
		zap.Float64("elapsed_s", elapsed))
	return res
}

func serverError(code int) bool {
	return code >= 500 && code <= 511
}

// classify maps a transport error to a short reason for logs and metrics.
func classify(err error) string {
	var (
		dnsErr      *net.DNSError
		netErr      net.Error
		unknownAuth x509.UnknownAuthorityError
		invalidCert x509.CertificateInvalidError
		hostErr     x509.HostnameError
		verifyErr   *tls.CertificateVerificationError
		recordErr   tls.RecordHeaderError
	)
	switch {
	case errors.As(err, &dnsErr):
		return "dns"
	case errors.Is(err, syscall.ECONNREFUSED):
		return "refused"
	case errors.As(err, &unknownAuth), errors.As(err, &invalidCert), errors.As(err, &hostErr),
		errors.As(err, &verifyErr), errors.As(err, &recordErr):
		return "tls"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	}
	return "error"
}
