package sync

import "sync/atomic"

// RunLevel models the kernel's IRQL: the priority level the current
// CPU is executing at. PASSIVE_LEVEL is the lowest; DISPATCH_LEVEL is
// the level PFN-DB initialization runs at.
type RunLevel uint8

const (
	PassiveLevel  RunLevel = 0
	ApcLevel      RunLevel = 1
	DispatchLevel RunLevel = 2
)

var currentRunLevel uint32

// CurrentRunLevel returns the runlevel the current CPU is executing
// at.
func CurrentRunLevel() RunLevel {
	return RunLevel(atomic.LoadUint32(&currentRunLevel))
}

// RaisedRunLevel is the token returned by RaiseRunLevel. Go has no
// destructors, so the RAII pairing the kernel expresses in the native
// implementation as construct/drop is expressed here as
// construct/defer Lower: callers are expected to write
// `defer sync.RaiseRunLevel(target).Lower()` immediately after raising.
type RaisedRunLevel struct {
	previous RunLevel
	lowered  bool
}

// RaiseRunLevel raises the current CPU's runlevel to target and
// returns a token that restores the previous level when Lower is
// called. Raising to a level at or below the current one is a no-op
// whose token still restores correctly.
func RaiseRunLevel(target RunLevel) *RaisedRunLevel {
	previous := CurrentRunLevel()
	if target > previous {
		atomic.StoreUint32(&currentRunLevel, uint32(target))
	}
	return &RaisedRunLevel{previous: previous}
}

// Lower restores the runlevel captured when RaiseRunLevel was called.
// Calling Lower more than once has no additional effect.
func (r *RaisedRunLevel) Lower() {
	if r.lowered {
		return
	}
	atomic.StoreUint32(&currentRunLevel, uint32(r.previous))
	r.lowered = true
}

// Previous reports the runlevel that was in effect before this raise.
func (r *RaisedRunLevel) Previous() RunLevel {
	return r.previous
}
