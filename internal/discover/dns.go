// Package discover implements the two optional seed-discovery strategies
// described in the join handshake's surrounding design: LAN multicast
// solicitation and DNS SRV lookup. Neither strategy registers a peer by
// itself -- both only produce candidate addresses that internal/join.Dial
// still runs its mandatory reverse-lookup handshake against.
package discover

import (
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

// srvService is the SRV service name overlay nodes advertise under.
const srvService = "_dnet._tcp"

// DNSSeeds resolves "_dnet._tcp.<domain>" against resolver (host:port) and
// returns "host:port" seed addresses from the SRV answer, ordered as the
// resolver returned them. Grounded directly on protonuke's dnsClient
// (src/protonuke/dns.go): build a dns.Msg, call dns.Exchange against a
// resolver, inspect the reply.
func DNSSeeds(domain, resolver string) ([]string, error) {
	name := dns.Fqdn(fmt.Sprintf("%s.%s", srvService, domain))

	m := new(dns.Msg)
	m.SetQuestion(name, dns.TypeSRV)

	in, err := dns.Exchange(m, resolver)
	if err != nil {
		return nil, err
	}

	var addrs []string
	for _, rr := range in.Answer {
		srv, ok := rr.(*dns.SRV)
		if !ok {
			continue
		}
		target := strings.TrimSuffix(srv.Target, ".")
		addrs = append(addrs, fmt.Sprintf("%s:%d", target, srv.Port))
	}

	return addrs, nil
}
