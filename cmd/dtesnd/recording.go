package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"

	"github.com/sarchlab/dtesn/callrecording"
	"github.com/sarchlab/dtesn/core"
	"github.com/sarchlab/dtesn/memprovider"
)

// openCallLog creates the daemon's call log database and returns both ends
// of it, sharing one connection so a flush is immediately queryable. An
// empty path picks a unique generated name. The file must not already
// exist.
func openCallLog(path string) (callrecording.Recorder, callrecording.Reader) {
	if path == "" {
		path = "dtesnd_calls_" + xid.New().String()
	}

	filename := path + ".sqlite3"

	_, err := os.Stat(filename)
	if err == nil {
		log.Fatalf("Error: call log %s already exists", filename)
	}

	db, err := sql.Open("sqlite3", filename)
	dieOnErr(err)

	fmt.Fprintf(os.Stderr, "Recording calls into %s\n", filename)

	recorder := callrecording.NewWithDB(db)

	reader := callrecording.NewReaderWithDB(db)
	reader.MapTable(callrecording.CallTable, callrecording.CallEntry{})
	reader.MapTable(callrecording.LifecycleTable, callrecording.LifecycleEntry{})

	return recorder, reader
}

var (
	_ core.Provider         = (*recordingBackend)(nil)
	_ core.TopologyProvider = (*recordingBackend)(nil)
	_ core.AccelProvider    = (*recordingBackend)(nil)
)

// recordingBackend wraps the in-process provider so every served operation
// lands in the call log with its timing and outcome. Remote instances have
// no client-side slot, so lifecycle rows carry the provider ref only.
type recordingBackend struct {
	lock     sync.Mutex
	backend  *memprovider.Provider
	recorder callrecording.Recorder
}

func newRecordingBackend(
	backend *memprovider.Provider,
	recorder callrecording.Recorder,
) *recordingBackend {
	recorder.CreateTable(callrecording.CallTable, callrecording.CallEntry{})
	recorder.CreateTable(callrecording.LifecycleTable, callrecording.LifecycleEntry{})

	return &recordingBackend{backend: backend, recorder: recorder}
}

func (b *recordingBackend) record(op string, start time.Time, err error) {
	end := time.Now()

	b.lock.Lock()
	b.recorder.InsertData(callrecording.CallTable, callrecording.CallEntry{
		Op:         op,
		StartNano:  start.UnixNano(),
		EndNano:    end.UnixNano(),
		DurationNs: int64(end.Sub(start)),
		OK:         err == nil,
	})
	b.lock.Unlock()
}

func (b *recordingBackend) lifecycle(event string, ref core.ProviderRef) {
	b.lock.Lock()
	b.recorder.InsertData(callrecording.LifecycleTable, callrecording.LifecycleEntry{
		Event:    event,
		Instance: uint64(ref),
		TimeNano: time.Now().UnixNano(),
	})
	b.lock.Unlock()
}

func (b *recordingBackend) flush() {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.recorder.Flush()
}

func (b *recordingBackend) CreateInstance(
	params core.CreateParams,
) (core.ProviderRef, error) {
	start := time.Now()
	ref, err := b.backend.CreateInstance(params)
	b.record("create", start, err)

	if err == nil {
		b.lifecycle("create", ref)
	}

	return ref, err
}

func (b *recordingBackend) DestroyInstance(ref core.ProviderRef) error {
	start := time.Now()
	err := b.backend.DestroyInstance(ref)
	b.record("destroy", start, err)

	if err == nil {
		b.lifecycle("destroy", ref)
	}

	return err
}

func (b *recordingBackend) Evolve(ref core.ProviderRef, spec core.EvolveSpec) error {
	start := time.Now()
	err := b.backend.Evolve(ref, spec)
	b.record("evolve", start, err)

	return err
}

func (b *recordingBackend) StateInfo(ref core.ProviderRef) (core.StateInfo, error) {
	start := time.Now()
	info, err := b.backend.StateInfo(ref)
	b.record("get_state", start, err)

	return info, err
}

func (b *recordingBackend) BSeriesCompute(ref core.ProviderRef,
	spec core.BSeriesSpec, result []float64) error {
	start := time.Now()
	err := b.backend.BSeriesCompute(ref, spec, result)
	b.record("bseries_compute", start, err)

	return err
}

func (b *recordingBackend) ESN(ref core.ProviderRef, op core.ESNOp) error {
	start := time.Now()
	err := b.backend.ESN(ref, op)
	b.record("esn_op", start, err)

	return err
}

func (b *recordingBackend) MembraneOp(
	ref core.ProviderRef,
	op core.MembraneOp,
) (uint32, error) {
	start := time.Now()
	id, err := b.backend.MembraneOp(ref, op)
	b.record("membrane_op", start, err)

	return id, err
}

func (b *recordingBackend) MembraneTopology(
	ref core.ProviderRef,
	membraneID uint32,
) (core.MembraneInfo, error) {
	start := time.Now()
	info, err := b.backend.MembraneTopology(ref, membraneID)
	b.record("membrane_topology", start, err)

	return info, err
}

func (b *recordingBackend) EnableAcceleration(ref core.ProviderRef,
	accelType core.AccelType, deviceID uint32) error {
	start := time.Now()
	err := b.backend.EnableAcceleration(ref, accelType, deviceID)
	b.record("enable_acceleration", start, err)

	return err
}

func (b *recordingBackend) AccelDevices() ([]core.AccelDevice, error) {
	start := time.Now()
	devices, err := b.backend.AccelDevices()
	b.record("accel_devices", start, err)

	return devices, err
}
