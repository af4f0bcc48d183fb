// Package dnsservice implements the DNS Service of spec.md section
// 4.8: a single lookup(hostname) call resolving over SOCK_STREAM /
// IPPROTO_TCP with family AF_INET, grounded on the getaddrinfo wiring
// in original_source/src/core.hh's dnsLookup method (core.hh:1785).
package dnsservice

import (
	"context"
	"net"

	"github.com/rs/zerolog"

	"github.com/runtimecore/core/coreapi"
)

// Resolver abstracts net.Resolver for tests that need to substitute a
// fake lookup without touching a real network.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Service implements the DNS operations of spec.md section 4.8.
type Service struct {
	log      zerolog.Logger
	dispatch func(func())
	resolver Resolver
}

// New constructs a Service using net.DefaultResolver. dispatch should
// be (*reactor.Reactor).Dispatch in production; nil runs completion
// inline, for tests.
func New(log zerolog.Logger, dispatch func(func())) *Service {
	return &Service{log: log, dispatch: dispatch, resolver: net.DefaultResolver}
}

// NewWithResolver is New, but lets tests substitute a fake Resolver.
func NewWithResolver(log zerolog.Logger, dispatch func(func()), resolver Resolver) *Service {
	return &Service{log: log, dispatch: dispatch, resolver: resolver}
}

func (s *Service) complete(fn func()) {
	if s.dispatch == nil {
		fn()
		return
	}
	s.dispatch(fn)
}

// Lookup resolves hostname to its first IPv4 address, matching the
// AF_INET-only resolution spec.md section 4.8 specifies.
func (s *Service) Lookup(ctx context.Context, seq, hostname string, reply func(coreapi.Result)) {
	go func() {
		addrs, err := s.resolver.LookupIPAddr(ctx, hostname)
		s.complete(func() {
			if err != nil {
				reply(coreapi.Failed("dns.lookup", seq, coreapi.PlatformError(coreapi.NoID, err)))
				return
			}
			for _, a := range addrs {
				if v4 := a.IP.To4(); v4 != nil {
					reply(coreapi.OK("dns.lookup", seq, map[string]any{"data": v4.String()}))
					return
				}
			}
			reply(coreapi.Failed("dns.lookup", seq, coreapi.NewError(coreapi.KindNotSupported, "no AF_INET address found for "+hostname)))
		})
	}()
}
