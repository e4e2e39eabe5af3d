// Package dnsprobe answers "is this domain already delegated?" with a single NS query.
//
// A positive answer is definitive (the name is registered) and lets the
// checker skip the rate-limited availability endpoint. Anything else,
// including NXDOMAIN from a recursive resolver, is inconclusive.
package dnsprobe

import (
	"context"
	"fmt"
	"time"

	"github.com/miekg/dns"
)

type Prober struct {
	server string
	client *dns.Client
}

// New returns a prober querying server (host:port) over UDP.
func New(server string, timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Prober{
		server: server,
		client: &dns.Client{Net: "udp", Timeout: timeout},
	}
}

// Registered reports whether the domain has NS records.
func (p *Prober) Registered(ctx context.Context, domain string) (bool, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(domain), dns.TypeNS)
	m.RecursionDesired = true

	in, _, err := p.client.ExchangeContext(ctx, m, p.server)
	if err != nil {
		return false, fmt.Errorf("ns query %s: %w", domain, err)
	}
	if in.Rcode != dns.RcodeSuccess {
		return false, nil
	}
	for _, rr := range in.Answer {
		if _, ok := rr.(*dns.NS); ok {
			return true, nil
		}
	}
	return false, nil
}
