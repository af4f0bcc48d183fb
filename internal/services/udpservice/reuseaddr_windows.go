//go:build windows

package udpservice

import "syscall"

// reuseAddrControl is a no-op on Windows: SO_REUSEADDR has different,
// looser semantics there (it permits silent port hijacking rather than
// the unix "rebind while a socket is in TIME_WAIT" behavior this
// module wants), so Bind relies on the platform's own default instead
// of requesting it explicitly.
func reuseAddrControl(_, _ string, _ syscall.RawConn) error {
	return nil
}
