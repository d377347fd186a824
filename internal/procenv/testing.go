package procenv

import "net"

// ResetForTesting clears the prepared state so tests can call Prepare again.
// It must not be used outside tests.
func ResetForTesting() {
	mu.Lock()
	defer mu.Unlock()
	prepared = false
	applied = Settings{}
	net.DefaultResolver.PreferGo = false
}
