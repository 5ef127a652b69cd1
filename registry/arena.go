package registry

// An arena is the fixed-capacity instance table. Slots are found by linear
// scan and the lowest free index always wins, so allocation order is
// deterministic. A reserved slot is invisible to lookups but not free: it
// is held for a create whose provider call is still in flight. All arena
// methods run under the client's table lock.
type arena struct {
	slots    []*Instance
	reserved []bool
	live     int
}

func newArena(capacity int) *arena {
	return &arena{
		slots:    make([]*Instance, capacity),
		reserved: make([]bool, capacity),
	}
}

func (a *arena) capacity() int {
	return len(a.slots)
}

func (a *arena) liveCount() int {
	return a.live
}

// reserve claims the lowest free slot and returns its index, or -1 when the
// table is full.
func (a *arena) reserve() int {
	for i := range a.slots {
		if a.slots[i] == nil && !a.reserved[i] {
			a.reserved[i] = true
			return i
		}
	}

	return -1
}

// release frees a reservation whose create did not complete.
func (a *arena) release(slot int) {
	a.reserved[slot] = false
}

// publish installs an instance into its reserved slot.
func (a *arena) publish(slot int, inst *Instance) {
	a.slots[slot] = inst
	a.reserved[slot] = false
	a.live++
}

// get returns the instance in a slot, or nil.
func (a *arena) get(slot int) *Instance {
	if slot < 0 || slot >= len(a.slots) {
		return nil
	}

	return a.slots[slot]
}

// remove empties a slot and returns what it held.
func (a *arena) remove(slot int) *Instance {
	inst := a.get(slot)
	if inst == nil {
		return nil
	}

	a.slots[slot] = nil
	a.live--

	return inst
}

// snapshot returns the live instances in slot order.
func (a *arena) snapshot() []*Instance {
	out := make([]*Instance, 0, a.live)
	for _, inst := range a.slots {
		if inst != nil {
			out = append(out, inst)
		}
	}

	return out
}
