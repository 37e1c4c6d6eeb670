package probe

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"time"
)

// DNSClass summarizes how a host name resolves.
type DNSClass string

const (
	DNSResolves    DNSClass = "RESOLVES"
	DNSNXDomain    DNSClass = "NXDOMAIN"
	DNSNoARecord   DNSClass = "NO_A_RECORD"
	DNSServFail    DNSClass = "SERVFAIL_or_TIMEOUT"
	DNSInvalidName DNSClass = "INVALID_NAME"
)

var dnsTimeout = 3 * time.Second

// DNSReport is advisory output returned when a service is registered.
type DNSReport struct {
	Host        string   `json:"host"`
	Class       DNSClass `json:"class"`
	IPs         []string `json:"ips,omitempty"`
	CNAME       string   `json:"cname,omitempty"`
	Nameservers []string `json:"nameservers,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// Resolver is the subset of *net.Resolver used by CheckDNS.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
	LookupCNAME(ctx context.Context, host string) (string, error)
	LookupNS(ctx context.Context, name string) ([]*net.NS, error)
}

// HostOf extracts the host name from a URL or returns target unchanged.
func HostOf(target string) string {
	target = strings.TrimSpace(target)
	if !strings.Contains(target, "://") {
		if h, _, err := net.SplitHostPort(target); err == nil {
			return h
		}
		return target
	}
	u, err := url.Parse(target)
	if err != nil || u.Hostname() == "" {
		return target
	}
	return u.Hostname()
}

// CheckDNS classifies host using r (net.DefaultResolver when nil).
func CheckDNS(ctx context.Context, r Resolver, host string) DNSReport {
	rep := DNSReport{Host: strings.TrimSpace(host)}
	if rep.Host == "" || strings.ContainsAny(rep.Host, "/ ") {
		rep.Class = DNSInvalidName
		return rep
	}
	if ip := net.ParseIP(rep.Host); ip != nil {
		rep.Class = DNSResolves
		rep.IPs = []string{ip.String()}
		return rep
	}
	if r == nil {
		r = net.DefaultResolver
	}
	ctx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()

	addrs, err := r.LookupIPAddr(ctx, rep.Host)
	switch {
	case err == nil && len(addrs) > 0:
		rep.Class = DNSResolves
		for _, a := range addrs {
			rep.IPs = append(rep.IPs, a.IP.String())
		}
	case err != nil:
		rep.Error = err.Error()
		var de *net.DNSError
		if errors.As(err, &de) {
			if de.IsNotFound {
				rep.Class = DNSNXDomain
			} else if de.IsTemporary || de.IsTimeout {
				rep.Class = DNSServFail
			}
		}
	}

	if cname, err := r.LookupCNAME(ctx, rep.Host); err == nil && !strings.EqualFold(cname, rep.Host+".") {
		rep.CNAME = strings.TrimSuffix(cname, ".")
	}

	ns, nsErr := r.LookupNS(ctx, rep.Host)
	if nsErr == nil && len(ns) > 0 {
		for _, n := range ns {
			rep.Nameservers = append(rep.Nameservers, strings.TrimSuffix(n.Host, "."))
		}
		// the zone exists, it just has no address records
		if rep.Class == DNSNXDomain {
			rep.Class = DNSNoARecord
		}
	}

	if rep.Class == "" {
		switch {
		case len(rep.IPs) > 0:
			rep.Class = DNSResolves
		case len(rep.Nameservers) > 0:
			rep.Class = DNSNoARecord
		case rep.Error != "":
			rep.Class = DNSServFail
		default:
			rep.Class = DNSNXDomain
		}
	}
	return rep
}
