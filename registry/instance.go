package registry

import (
	"sync"
	"time"

	"github.com/sarchlab/dtesn/core"
)

// An Instance is one live DTESN computation owned by a Client. Identity
// fields are fixed at publish time and safe to read concurrently. Membranes
// is guarded by the embedded mutex; membrane create, divide and dissolve
// hold the mutex across their whole operation so the depth bound cannot be
// raced past.
type Instance struct {
	sync.Mutex

	ID        uint64
	Slot      int
	Params    core.CreateParams
	CreatedAt time.Time
	Ref       core.ProviderRef

	// Membranes is the live membrane count. It starts at the configured
	// count and moves with membrane create/divide/dissolve.
	Membranes uint32

	// Private is scratch space for engine or provider extensions. It
	// follows the instance's lifetime.
	Private interface{}
}

// MembraneCount returns the live membrane count, taking the instance lock.
func (i *Instance) MembraneCount() uint32 {
	i.Lock()
	defer i.Unlock()

	return i.Membranes
}

// Handle returns the handle that names this instance.
func (i *Instance) Handle() core.Handle {
	return core.Handle{Slot: i.Slot, ID: i.ID}
}
