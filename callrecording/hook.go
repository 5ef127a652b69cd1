package callrecording

import (
	"sync"
	"time"

	"github.com/sarchlab/dtesn/core"
	"github.com/sarchlab/dtesn/perf"
)

// Tables the hook records into.
const (
	CallTable      = "api_calls"
	LifecycleTable = "instance_lifecycle"
)

// CallEntry is one recorded public operation.
type CallEntry struct {
	Op         string
	StartNano  int64
	EndNano    int64
	DurationNs int64
	OK         bool
}

// LifecycleEntry is one instance creation or destruction.
type LifecycleEntry struct {
	Event    string
	Slot     int
	Instance uint64
	TimeNano int64
}

// A Hook streams a client's finished calls and instance lifecycle events
// into a Recorder. Calls can finish on any goroutine, so the hook
// serializes access to the recorder; register it on the client with
// AcceptHook.
type Hook struct {
	lock     sync.Mutex
	recorder Recorder
}

// NewHook creates the recording hook and its tables.
func NewHook(recorder Recorder) *Hook {
	recorder.CreateTable(CallTable, CallEntry{})
	recorder.CreateTable(LifecycleTable, LifecycleEntry{})

	return &Hook{recorder: recorder}
}

// Func records call-end and lifecycle events; other positions are ignored.
func (h *Hook) Func(ctx core.HookCtx) {
	switch ctx.Pos {
	case core.HookPosCallEnd:
		record, ok := ctx.Item.(perf.CallRecord)
		if !ok {
			return
		}

		h.lock.Lock()
		h.recorder.InsertData(CallTable, CallEntry{
			Op:         record.Op,
			StartNano:  record.Start.UnixNano(),
			EndNano:    record.End.UnixNano(),
			DurationNs: int64(record.Duration()),
			OK:         record.OK,
		})
		h.lock.Unlock()

	case core.HookPosInstanceCreate:
		h.recordLifecycle("create", ctx.Item)

	case core.HookPosInstanceDestroy:
		h.recordLifecycle("destroy", ctx.Item)
	}
}

func (h *Hook) recordLifecycle(event string, item interface{}) {
	handle, ok := item.(core.Handle)
	if !ok {
		return
	}

	h.lock.Lock()
	h.recorder.InsertData(LifecycleTable, LifecycleEntry{
		Event:    event,
		Slot:     handle.Slot,
		Instance: handle.ID,
		TimeNano: time.Now().UnixNano(),
	})
	h.lock.Unlock()
}

// Flush forces buffered entries out to the database.
func (h *Hook) Flush() {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.recorder.Flush()
}
