// Package netinfo implements Network Introspection (spec.md section
// 4.9): a synchronous interfaces() call with no reactor involvement,
// grounded on the getifaddrs walk in original_source/src/core.hh
// (core.hh:1833/1866).
package netinfo

import (
	"net"

	"github.com/runtimecore/core/coreapi"
)

// Interfaces lists every active network interface's addresses, keyed
// by interface name, split into IPv4 and IPv6 families. Each family
// also carries a fixed "local" key ("0.0.0.0" for IPv4, "::1" for
// IPv6), matching
// the {"ipv4":{"name":addr,...,"local":"0.0.0.0"}} shape spec.md
// section 4.9 specifies.
func Interfaces() (coreapi.Result, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return coreapi.Result{}, err
	}

	ipv4 := map[string]string{"local": "0.0.0.0"}
	ipv6 := map[string]string{"local": "::1"}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ip := addrOf(a)
			if ip == nil {
				continue
			}
			if v4 := ip.To4(); v4 != nil {
				ipv4[iface.Name] = v4.String()
			} else {
				ipv6[iface.Name] = ip.String()
			}
		}
	}

	return coreapi.OK("net.interfaces", coreapi.UnsolicitedSeq, map[string]any{
		"ipv4": ipv4,
		"ipv6": ipv6,
	}), nil
}

func addrOf(a net.Addr) net.IP {
	switch v := a.(type) {
	case *net.IPNet:
		return v.IP
	case *net.IPAddr:
		return v.IP
	default:
		return nil
	}
}

// Lookup runs Interfaces() and replies synchronously, matching
// spec.md section 4.9's "returned synchronously; no reactor
// involvement" — this operation never touches the Dispatcher.
func Lookup(seq string, reply func(coreapi.Result)) {
	res, err := Interfaces()
	if err != nil {
		reply(coreapi.Failed("net.interfaces", seq, coreapi.PlatformError(coreapi.NoID, err)))
		return
	}
	res.Sequence = seq
	reply(res)
}
