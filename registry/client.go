// Package registry provides the Client, the explicitly constructed context
// object that owns the instance table, the global performance counters, and
// the connection to the compute provider. Every other DTESN component
// operates through a Client.
package registry

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sarchlab/dtesn/core"
	"github.com/sarchlab/dtesn/perf"
)

// A Client is one initialized DTESN runtime context. Instances live in a
// fixed-capacity table; handles name table slots and are validated against
// the instance id on every lookup. The table lock and the counter lock
// inside the recorder are independent and never nested, and no provider
// call happens while either is held.
//
// Hooks must be registered before the client is shared across goroutines.
type Client struct {
	core.HookableBase

	id       string
	provider core.Provider
	recorder *perf.Recorder

	tableLock sync.Mutex
	table     *arena
	nextID    uint64

	closed     atomic.Bool
	debugLevel atomic.Int32

	errLock sync.Mutex
	lastErr error

	asyncQueueSize int
	workerThreads  int
	flags          uint32
}

// ID returns the client's session identifier.
func (c *Client) ID() string {
	return c.id
}

// Provider returns the compute provider backing this client.
func (c *Client) Provider() core.Provider {
	return c.provider
}

// Recorder returns the client's performance recorder.
func (c *Client) Recorder() *perf.Recorder {
	return c.recorder
}

// AsyncQueueSize returns the configured async operation queue depth.
func (c *Client) AsyncQueueSize() int {
	return c.asyncQueueSize
}

// WorkerThreads returns the configured async worker count.
func (c *Client) WorkerThreads() int {
	return c.workerThreads
}

// Flags returns the library initialization flags.
func (c *Client) Flags() uint32 {
	return c.flags
}

// Capacity returns the instance table size.
func (c *Client) Capacity() int {
	c.tableLock.Lock()
	defer c.tableLock.Unlock()

	return c.table.capacity()
}

// Instances returns the live instances in slot order.
func (c *Client) Instances() []*Instance {
	c.tableLock.Lock()
	defer c.tableLock.Unlock()

	return c.table.snapshot()
}

// BeginCall marks the start of a public operation and fires the CallStart
// hook. Engine packages route their operations through BeginCall/EndCall so
// every component lands in the same counters.
func (c *Client) BeginCall(op string) time.Time {
	c.InvokeHook(core.HookCtx{Domain: c, Pos: core.HookPosCallStart, Item: op})

	return time.Now()
}

// EndCall finishes a public operation: it feeds the counters, keeps the
// sticky last error, and fires the CallEnd hook. It runs on error paths
// exactly as on success paths.
func (c *Client) EndCall(op string, start time.Time, err error) {
	end := time.Now()
	c.recorder.RecordDuration(end.Sub(start), err == nil)

	if err != nil {
		c.errLock.Lock()
		c.lastErr = err
		c.errLock.Unlock()
	}

	c.InvokeHook(core.HookCtx{
		Domain: c,
		Pos:    core.HookPosCallEnd,
		Item:   perf.CallRecord{Op: op, Start: start, End: end, OK: err == nil},
	})
}

// LastError returns the most recent failure seen by any call on this
// client. Successful calls leave it unchanged.
func (c *Client) LastError() error {
	c.errLock.Lock()
	defer c.errLock.Unlock()

	return c.lastErr
}

// SetDebugLevel sets the verbosity of log notices and returns the previous
// level. Level 1 reports errors only; instance and client lifecycle notices
// start at level 3.
func (c *Client) SetDebugLevel(level int) int {
	return int(c.debugLevel.Swap(int32(level)))
}

// DebugLevel returns the current debug level.
func (c *Client) DebugLevel() int {
	return int(c.debugLevel.Load())
}

// Lookup resolves a handle to its live instance. Handles whose slot was
// emptied or reused after a destroy are rejected with ErrInvalidHandle.
func (c *Client) Lookup(h core.Handle) (*Instance, error) {
	if c.closed.Load() {
		return nil, core.ErrNotInitialized
	}

	c.tableLock.Lock()
	defer c.tableLock.Unlock()

	inst := c.table.get(h.Slot)
	if inst == nil || inst.ID != h.ID {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidHandle, h)
	}

	return inst, nil
}

// Create validates the parameters, claims the lowest free table slot, and
// asks the provider for a new instance. The slot is reclaimed if the
// provider refuses, so a failed create leaves no partial state.
func (c *Client) Create(params core.CreateParams) (core.Handle, error) {
	start := c.BeginCall("create")
	h, err := c.create(params)
	c.EndCall("create", start, err)

	return h, err
}

func (c *Client) create(params core.CreateParams) (core.Handle, error) {
	if c.closed.Load() {
		return core.Handle{}, core.ErrNotInitialized
	}

	if err := params.Validate(); err != nil {
		return core.Handle{}, err
	}

	c.tableLock.Lock()
	slot := c.table.reserve()
	c.tableLock.Unlock()

	if slot < 0 {
		return core.Handle{}, fmt.Errorf("%w: no free instance slot",
			core.ErrCapacity)
	}

	ref, err := c.provider.CreateInstance(params)
	if err != nil {
		c.tableLock.Lock()
		c.table.release(slot)
		c.tableLock.Unlock()

		return core.Handle{}, core.WrapProviderErr("create", err)
	}

	inst := &Instance{
		Slot:      slot,
		Params:    params,
		CreatedAt: time.Now(),
		Ref:       ref,
		Membranes: params.MembraneCount,
	}

	c.tableLock.Lock()
	inst.ID = c.nextID
	c.nextID++
	c.table.publish(slot, inst)
	c.tableLock.Unlock()

	h := inst.Handle()

	if c.debugLevel.Load() >= 3 {
		log.Printf("dtesn: created instance %d (ref=%d)", inst.ID, inst.Ref)
	}

	c.InvokeHook(core.HookCtx{Domain: c, Pos: core.HookPosInstanceCreate, Item: h})

	return h, nil
}

// Destroy removes an instance from the table and releases its provider
// reference. The release is best-effort: its failure is reported, but the
// slot is freed regardless and the handle is dead either way.
func (c *Client) Destroy(h core.Handle) error {
	start := c.BeginCall("destroy")
	err := c.destroy(h)
	c.EndCall("destroy", start, err)

	return err
}

func (c *Client) destroy(h core.Handle) error {
	if c.closed.Load() {
		return core.ErrNotInitialized
	}

	// The slot is claimed before the provider release so a racing destroy
	// on the same handle cannot release the reference twice.
	c.tableLock.Lock()
	inst := c.table.get(h.Slot)
	if inst == nil || inst.ID != h.ID {
		c.tableLock.Unlock()
		return fmt.Errorf("%w: %s", core.ErrInvalidHandle, h)
	}
	c.table.remove(h.Slot)
	c.tableLock.Unlock()

	err := c.provider.DestroyInstance(inst.Ref)

	if c.debugLevel.Load() >= 3 {
		log.Printf("dtesn: destroyed instance %d (ref=%d)", inst.ID, inst.Ref)
	}

	c.InvokeHook(core.HookCtx{Domain: c, Pos: core.HookPosInstanceDestroy, Item: h})

	if err != nil {
		return core.WrapProviderErr("destroy", err)
	}

	return nil
}

// Evolve advances an instance with the given input. A zero timeout applies
// DefaultTimeout; the timeout bounds only the provider call, which cannot
// be cancelled once issued.
func (c *Client) Evolve(h core.Handle, input []float32, steps uint32,
	mode core.EvolveMode, timeout time.Duration) error {
	start := c.BeginCall("evolve")
	err := c.evolve(h, input, steps, mode, timeout)
	c.EndCall("evolve", start, err)

	return err
}

func (c *Client) evolve(h core.Handle, input []float32, steps uint32,
	mode core.EvolveMode, timeout time.Duration) error {
	inst, err := c.Lookup(h)
	if err != nil {
		return err
	}

	if len(input) == 0 || steps == 0 {
		return fmt.Errorf("%w: evolve requires input data and at least one step",
			core.ErrInvalidArgument)
	}

	if uint32(len(input)) > inst.Params.InputDim {
		return fmt.Errorf("%w: input length %d exceeds input dim %d",
			core.ErrInvalidArgument, len(input), inst.Params.InputDim)
	}

	if timeout <= 0 {
		timeout = core.DefaultTimeout
	}

	spec := core.EvolveSpec{Input: input, Steps: steps, Mode: mode, Timeout: timeout}
	if err := c.provider.Evolve(inst.Ref, spec); err != nil {
		return core.WrapProviderErr("evolve", err)
	}

	return nil
}

// State returns a snapshot of one instance. Identity and the aggregate
// membrane count are filled client-side; everything else comes from the
// provider.
func (c *Client) State(h core.Handle) (core.StateInfo, error) {
	start := c.BeginCall("get_state")
	info, err := c.state(h)
	c.EndCall("get_state", start, err)

	return info, err
}

func (c *Client) state(h core.Handle) (core.StateInfo, error) {
	inst, err := c.Lookup(h)
	if err != nil {
		return core.StateInfo{}, err
	}

	info, err := c.provider.StateInfo(inst.Ref)
	if err != nil {
		return core.StateInfo{}, core.WrapProviderErr("get_state", err)
	}

	info.InstanceID = inst.ID
	info.MembraneCount = inst.MembraneCount()

	return info, nil
}

// Stats returns the global performance counters. A handle may be passed
// for symmetry with the instance-scoped interface, but no per-instance
// breakdown exists; the same global counters are returned either way.
func (c *Client) Stats(h *core.Handle) core.PerfStats {
	start := c.BeginCall("get_performance_stats")

	stats := c.recorder.Snapshot()

	c.tableLock.Lock()
	stats.ActiveInstances = uint32(c.table.liveCount())
	c.tableLock.Unlock()

	c.EndCall("get_performance_stats", start, nil)

	return stats
}

// ResetStats zeroes the global counters when called without a handle.
// Per-instance reset has no backing state and is a no-op.
func (c *Client) ResetStats(h *core.Handle) {
	start := c.BeginCall("reset_performance_stats")

	if h == nil {
		c.recorder.Reset()
	}

	c.EndCall("reset_performance_stats", start, nil)
}

// Close tears down the client. Every live instance is released with the
// provider (best-effort) and the table is emptied. Callers serialize Close
// against in-flight operations; a closed client rejects every operation,
// including a second Close, with ErrNotInitialized.
func (c *Client) Close() error {
	start := c.BeginCall("cleanup")

	if c.closed.Swap(true) {
		c.EndCall("cleanup", start, core.ErrNotInitialized)
		return core.ErrNotInitialized
	}

	c.tableLock.Lock()
	instances := c.table.snapshot()
	for _, inst := range instances {
		c.table.remove(inst.Slot)
	}
	c.tableLock.Unlock()

	for _, inst := range instances {
		err := c.provider.DestroyInstance(inst.Ref)
		if err != nil && c.debugLevel.Load() >= 1 {
			log.Printf("dtesn: releasing instance %d during cleanup: %v",
				inst.ID, err)
		}
	}

	if c.debugLevel.Load() >= 3 {
		log.Printf("dtesn: client %s closed", c.id)
	}

	c.EndCall("cleanup", start, nil)

	return nil
}
