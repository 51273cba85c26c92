package vault

// reentrancyGuard is a two-state latch protecting operations that perform
// an outbound value transfer. It is not a lock: a second entry while the
// latch is held is an error, never a wait.
//
// The guard only makes sense inside the ledger's mutual-exclusion domain;
// it catches logical re-entry (the gateway calling back into the ledger
// mid-withdrawal), not cross-goroutine races.
type reentrancyGuard struct {
	entered bool
}

// enter flips the latch, or reports ErrReentrancyDetected when the latch
// is already held.
func (g *reentrancyGuard) enter() error {
	if g.entered {
		return ErrReentrancyDetected
	}
	g.entered = true
	return nil
}

// exit releases the latch unconditionally. Callers must arrange for exit
// to run on every path out of the guarded operation, normally via defer.
func (g *reentrancyGuard) exit() {
	g.entered = false
}
