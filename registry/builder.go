package registry

import (
	"github.com/rs/xid"

	"github.com/sarchlab/dtesn/core"
	"github.com/sarchlab/dtesn/perf"
)

// Builder can be used to build a Client.
type Builder struct {
	provider       core.Provider
	maxInstances   int
	asyncQueueSize int
	workerThreads  int
	flags          uint32
}

// MakeBuilder creates a new builder with the default configuration.
func MakeBuilder() Builder {
	return Builder{
		maxInstances:   core.MaxConcurrentInstances,
		asyncQueueSize: core.MaxAsyncOperations,
		workerThreads:  4,
	}
}

// WithProvider sets the compute provider that backs every instance.
func (b Builder) WithProvider(p core.Provider) Builder {
	b.provider = p
	return b
}

// WithMaxInstances caps the instance table size.
func (b Builder) WithMaxInstances(n int) Builder {
	b.maxInstances = n
	return b
}

// WithAsyncQueueSize sets the queue depth an async session layered on this
// client will use.
func (b Builder) WithAsyncQueueSize(n int) Builder {
	b.asyncQueueSize = n
	return b
}

// WithWorkerThreads sets the worker count an async session layered on this
// client will use.
func (b Builder) WithWorkerThreads(n int) Builder {
	b.workerThreads = n
	return b
}

// WithFlags sets the library initialization flags.
func (b Builder) WithFlags(flags uint32) Builder {
	b.flags = flags
	return b
}

func (b Builder) parametersMustBeValid() {
	if b.provider == nil {
		panic("a client requires a compute provider")
	}

	if b.maxInstances <= 0 || b.maxInstances > core.MaxConcurrentInstances {
		panic("max instances must be within (0, 1000]")
	}

	if b.asyncQueueSize <= 0 || b.asyncQueueSize > core.MaxAsyncOperations {
		panic("async queue size must be within (0, 256]")
	}

	if b.workerThreads <= 0 {
		panic("worker thread count must be positive")
	}
}

// Build builds the client.
func (b Builder) Build() *Client {
	b.parametersMustBeValid()

	c := &Client{
		id:             xid.New().String(),
		provider:       b.provider,
		recorder:       perf.NewRecorder(),
		table:          newArena(b.maxInstances),
		nextID:         1,
		asyncQueueSize: b.asyncQueueSize,
		workerThreads:  b.workerThreads,
		flags:          b.flags,
	}
	c.HookableBase = *core.NewHookableBase()
	c.debugLevel.Store(1)

	return c
}

// NewClient creates a client with the default configuration. It is
// shorthand for MakeBuilder().WithProvider(p).Build().
func NewClient(p core.Provider) *Client {
	return MakeBuilder().WithProvider(p).Build()
}
