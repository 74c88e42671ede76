package netwatch

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/multierr"
)

const defaultResolvConf = "/etc/resolv.conf"

// resolver looks up A and AAAA records for hostname targets.
type resolver struct {
	server     string // host:port, empty reads resolvConf
	resolvConf string
	timeout    time.Duration
	client     *dns.Client
}

func newResolver(server string, timeout time.Duration) *resolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &resolver{
		server:     server,
		resolvConf: defaultResolvConf,
		timeout:    timeout,
		client:     &dns.Client{Net: "udp", Timeout: timeout},
	}
}

func (r *resolver) serverAddr() (string, error) {
	if r.server != "" {
		if _, _, err := net.SplitHostPort(r.server); err != nil {
			return net.JoinHostPort(r.server, "53"), nil
		}
		return r.server, nil
	}

	conf, err := dns.ClientConfigFromFile(r.resolvConf)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", r.resolvConf, err)
	}
	if len(conf.Servers) == 0 {
		return "", fmt.Errorf("no nameservers in %s", r.resolvConf)
	}
	return net.JoinHostPort(conf.Servers[0], conf.Port), nil
}

// validHostname reports whether host can be looked up at all.
func validHostname(host string) bool {
	if host == "" {
		return false
	}
	_, ok := dns.IsDomainName(host)
	return ok
}

// resolve returns every address of host. Literal addresses are returned
// as-is without a query.
func (r *resolver) resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{addr.Unmap()}, nil
	}
	if strings.EqualFold(strings.TrimSuffix(host, "."), "localhost") {
		return []netip.Addr{netip.IPv6Loopback(), netip.MustParseAddr("127.0.0.1")}, nil
	}
	if !validHostname(host) {
		return nil, fmt.Errorf("invalid hostname %q", host)
	}

	server, err := r.serverAddr()
	if err != nil {
		return nil, err
	}

	var addrs []netip.Addr
	var errs error
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		found, err := r.query(ctx, server, host, qtype)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		addrs = append(addrs, found...)
	}

	if len(addrs) == 0 {
		if errs == nil {
			errs = fmt.Errorf("no addresses found for %q", host)
		}
		return nil, errs
	}
	return addrs, nil
}

func (r *resolver) query(ctx context.Context, server, host string, qtype uint16) ([]netip.Addr, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), qtype)
	m.RecursionDesired = true

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	in, _, err := r.client.ExchangeContext(ctx, m, server)
	if err != nil {
		return nil, fmt.Errorf("%s %s via %s: %w", dns.TypeToString[qtype], host, server, err)
	}
	if in.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("%s %s via %s: %s", dns.TypeToString[qtype], host, server, dns.RcodeToString[in.Rcode])
	}

	var addrs []netip.Addr
	for _, rr := range in.Answer {
		var ip net.IP
		switch v := rr.(type) {
		case *dns.A:
			ip = v.A
		case *dns.AAAA:
			ip = v.AAAA
		default:
			continue
		}
		if addr, ok := netip.AddrFromSlice(ip); ok {
			addrs = append(addrs, addr.Unmap())
		}
	}
	return addrs, nil
}
