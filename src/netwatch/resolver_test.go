package netwatch

import (
	"context"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startDNS serves records from an in-process server and returns its
// address.
func startDNS(t *testing.T, records map[string][]string) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	mux := dns.NewServeMux()
	mux.HandleFunc(".", func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(req)
		q := req.Question[0]
		answers, ok := records[q.Name]
		if !ok {
			m.SetRcode(req, dns.RcodeNameError)
		}
		for _, ip := range answers {
			addr := netip.MustParseAddr(ip)
			hdr := dns.RR_Header{Name: q.Name, Class: dns.ClassINET, Ttl: 60}
			switch {
			case addr.Is4() && q.Qtype == dns.TypeA:
				hdr.Rrtype = dns.TypeA
				m.Answer = append(m.Answer, &dns.A{Hdr: hdr, A: addr.AsSlice()})
			case addr.Is6() && q.Qtype == dns.TypeAAAA:
				hdr.Rrtype = dns.TypeAAAA
				m.Answer = append(m.Answer, &dns.AAAA{Hdr: hdr, AAAA: addr.AsSlice()})
			}
		}
		_ = w.WriteMsg(m)
	})

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: mux, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })

	return pc.LocalAddr().String()
}

func TestResolveARecordsAndAAAA(t *testing.T) {
	server := startDNS(t, map[string][]string{
		"relay.example.": {"192.0.2.10", "2001:db8::10"},
	})
	r := newResolver(server, time.Second)

	addrs, err := r.resolve(context.Background(), "relay.example")
	require.NoError(t, err)
	assert.ElementsMatch(t, []netip.Addr{
		netip.MustParseAddr("192.0.2.10"),
		netip.MustParseAddr("2001:db8::10"),
	}, addrs)
}

func TestResolveUnknownName(t *testing.T) {
	server := startDNS(t, map[string][]string{})
	r := newResolver(server, time.Second)

	_, err := r.resolve(context.Background(), "missing.example")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NXDOMAIN")
}

func TestResolveLiteralSkipsQuery(t *testing.T) {
	r := newResolver("192.0.2.1:1", time.Millisecond)

	addrs, err := r.resolve(context.Background(), "10.1.2.3")
	require.NoError(t, err)
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("10.1.2.3")}, addrs)

	addrs, err = r.resolve(context.Background(), "localhost")
	require.NoError(t, err)
	assert.Len(t, addrs, 2)
}

func TestResolveRejectsInvalidNames(t *testing.T) {
	r := newResolver("192.0.2.1:1", time.Millisecond)
	_, err := r.resolve(context.Background(), "")
	assert.Error(t, err)
	assert.False(t, validHostname(""))
	assert.True(t, validHostname("relay.damus.io"))
}

func TestServerFromResolvConf(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resolv.conf")
	require.NoError(t, os.WriteFile(path, []byte("nameserver 192.0.2.53\n"), 0644))

	r := newResolver("", time.Second)
	r.resolvConf = path
	server, err := r.serverAddr()
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.53:53", server)

	r = newResolver("192.0.2.54", time.Second)
	server, err = r.serverAddr()
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.54:53", server)
}
