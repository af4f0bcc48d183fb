package dnsservice

import (
	"context"
	"net"
	"testing"

	"github.com/rs/zerolog"

	"github.com/runtimecore/core/coreapi"
)

type fakeResolver struct {
	addrs []net.IPAddr
	err   error
}

func (f *fakeResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	return f.addrs, f.err
}

func TestLookupReturnsFirstIPv4(t *testing.T) {
	s := NewWithResolver(zerolog.Nop(), nil, &fakeResolver{addrs: []net.IPAddr{
		{IP: net.ParseIP("2001:db8::1")},
		{IP: net.ParseIP("93.184.216.34")},
	}})

	done := make(chan coreapi.Result, 1)
	s.Lookup(context.Background(), "1", "example.com", func(r coreapi.Result) { done <- r })
	res := <-done
	if res.Err != nil {
		t.Fatalf("lookup failed: %v", res.Err)
	}
	if res.Data.(map[string]any)["data"] != "93.184.216.34" {
		t.Fatalf("unexpected result: %+v", res.Data)
	}
}

func TestLookupFailurePropagates(t *testing.T) {
	s := NewWithResolver(zerolog.Nop(), nil, &fakeResolver{err: &net.DNSError{Err: "no such host", Name: "nope.invalid"}})

	done := make(chan coreapi.Result, 1)
	s.Lookup(context.Background(), "1", "nope.invalid", func(r coreapi.Result) { done <- r })
	res := <-done
	if res.Err == nil {
		t.Fatal("expected an error result")
	}
}

func TestLookupNoIPv4ReportsNotSupported(t *testing.T) {
	s := NewWithResolver(zerolog.Nop(), nil, &fakeResolver{addrs: []net.IPAddr{{IP: net.ParseIP("2001:db8::1")}}})

	done := make(chan coreapi.Result, 1)
	s.Lookup(context.Background(), "1", "v6only.example", func(r coreapi.Result) { done <- r })
	res := <-done
	if res.Err == nil || res.Err.Kind != coreapi.KindNotSupported {
		t.Fatalf("expected NotSupported, got %+v", res)
	}
}
