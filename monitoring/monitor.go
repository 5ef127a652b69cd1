// Package monitoring turns a DTESN client into a web server so the
// instance table, performance counters and async queue can be inspected
// from outside the process while the runtime works.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/dtesn/async"
	"github.com/sarchlab/dtesn/oeis"
	"github.com/sarchlab/dtesn/registry"
)

// Monitor exposes a DTESN client over HTTP and allows external inspection
// of the runtime.
type Monitor struct {
	client     *registry.Client
	session    *async.Session
	portNumber int
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterClient registers the client to be monitored. Routes that read the
// instance table or the counters report 404 until a client is registered.
func (m *Monitor) RegisterClient(c *registry.Client) {
	m.client = c
}

// RegisterSession registers an async session so its queue shows up under
// /api/async. Leaving it unset is fine; the endpoint then reports 404.
func (m *Monitor) RegisterSession(s *async.Session) {
	m.session = s
}

// StartServer starts the monitor as a web server with a custom port if
// wanted.
func (m *Monitor) StartServer() {
	r := m.router()
	http.Handle("/", r)

	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	m.portNumber = listener.Addr().(*net.TCPAddr).Port
	fmt.Fprintf(
		os.Stderr,
		"Monitoring DTESN runtime with http://localhost:%d\n",
		m.portNumber)

	go func() {
		err = http.Serve(listener, nil)
		dieOnErr(err)
	}()
}

// Port returns the port the server listens on. Before StartServer it is
// the configured port, which may be 0 for a random one.
func (m *Monitor) Port() int {
	return m.portNumber
}

func (m *Monitor) router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/instances", m.listInstances)
	r.HandleFunc("/api/instance/{id}", m.listInstanceDetails)
	r.HandleFunc("/api/field/{json}", m.listFieldValue)
	r.HandleFunc("/api/stats", m.listStats)
	r.HandleFunc("/api/stats/reset", m.resetStats)
	r.HandleFunc("/api/oeis/{n}", m.lookupOEIS)
	r.HandleFunc("/api/async", m.listAsyncQueue)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)

	return r
}

func (m *Monitor) listInstances(w http.ResponseWriter, _ *http.Request) {
	if m.clientMissing(w) {
		return
	}

	fmt.Fprint(w, "[")
	for i, inst := range m.client.Instances() {
		if i > 0 {
			fmt.Fprint(w, ",")
		}

		fmt.Fprintf(w, "%d", inst.ID)
	}
	fmt.Fprint(w, "]")
}

func (m *Monitor) listInstanceDetails(w http.ResponseWriter, r *http.Request) {
	idString := mux.Vars(r)["id"]

	instance := m.findInstanceOr404(w, idString)
	if instance == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(instance)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

type fieldReq struct {
	InstanceID uint64 `json:"instance_id,omitempty"`
	FieldName  string `json:"field_name,omitempty"`
}

func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	jsonString := mux.Vars(r)["json"]
	req := fieldReq{}

	err := json.Unmarshal([]byte(jsonString), &req)
	if err != nil {
		dieOnErr(err)
	}

	fields := strings.Split(req.FieldName, ".")

	instance := m.findInstanceOr404(
		w, strconv.FormatUint(req.InstanceID, 10))
	if instance == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(instance)
	serializer.SetMaxDepth(1)

	err = serializer.SetEntryPoint(fields)
	dieOnErr(err)

	err = serializer.Serialize(w)
	dieOnErr(err)
}

type statsRsp struct {
	TotalAPICalls        uint64 `json:"total_api_calls"`
	TotalExecutionTimeNs int64  `json:"total_execution_time_ns"`
	AvgCallOverheadNs    int64  `json:"avg_call_overhead_ns"`
	MinCallTimeNs        int64  `json:"min_call_time_ns"`
	MaxCallTimeNs        int64  `json:"max_call_time_ns"`
	ActiveInstances      uint32 `json:"active_instances"`
	FailedCalls          uint32 `json:"failed_calls"`
	MemoryUsageBytes     uint64 `json:"memory_usage_bytes"`
}

func (m *Monitor) listStats(w http.ResponseWriter, _ *http.Request) {
	if m.clientMissing(w) {
		return
	}

	stats := m.client.Stats(nil)

	rsp := statsRsp{
		TotalAPICalls:        stats.TotalAPICalls,
		TotalExecutionTimeNs: stats.TotalExecutionTime.Nanoseconds(),
		AvgCallOverheadNs:    stats.AvgCallOverhead.Nanoseconds(),
		MinCallTimeNs:        stats.MinCallTime.Nanoseconds(),
		MaxCallTimeNs:        stats.MaxCallTime.Nanoseconds(),
		ActiveInstances:      stats.ActiveInstances,
		FailedCalls:          stats.FailedCalls,
		MemoryUsageBytes:     stats.MemoryUsageBytes,
	}

	bytes, err := json.Marshal(rsp)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func (m *Monitor) resetStats(w http.ResponseWriter, _ *http.Request) {
	if m.clientMissing(w) {
		return
	}

	m.client.ResetStats(nil)
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) lookupOEIS(w http.ResponseWriter, r *http.Request) {
	nString := mux.Vars(r)["n"]

	n, err := strconv.ParseUint(nString, 10, 32)
	if err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	count, err := oeis.CountFor(uint32(n))
	if err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	fmt.Fprintf(w, "{\"n\":%d,\"count\":%d}", n, count)
}

type asyncRsp struct {
	Submitted     uint64 `json:"submitted"`
	Completed     uint64 `json:"completed"`
	Cancelled     uint64 `json:"cancelled"`
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	Workers       int    `json:"workers"`
}

func (m *Monitor) listAsyncQueue(w http.ResponseWriter, _ *http.Request) {
	if m.session == nil {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("No async session registered"))
		dieOnErr(err)
		return
	}

	stats := m.session.Stats()

	rsp := asyncRsp{
		Submitted:     stats.Submitted,
		Completed:     stats.Completed,
		Cancelled:     stats.Cancelled,
		QueueDepth:    stats.QueueDepth,
		QueueCapacity: stats.QueueCapacity,
		Workers:       stats.Workers,
	}

	bytes, err := json.Marshal(rsp)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	rsp := resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	}

	bytes, err := json.Marshal(rsp)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	dieOnErr(err)

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	bytes, err := json.Marshal(prof)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func (m *Monitor) clientMissing(w http.ResponseWriter) bool {
	if m.client != nil {
		return false
	}

	w.WriteHeader(http.StatusNotFound)
	_, err := w.Write([]byte("No client registered"))
	dieOnErr(err)

	return true
}

func (m *Monitor) findInstanceOr404(
	w http.ResponseWriter,
	idString string,
) *registry.Instance {
	if m.clientMissing(w) {
		return nil
	}

	id, err := strconv.ParseUint(idString, 10, 64)
	if err != nil {
		id = 0
	}

	var instance *registry.Instance
	for _, inst := range m.client.Instances() {
		if inst.ID == id {
			instance = inst
		}
	}

	if instance == nil {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("Instance not found"))
		dieOnErr(err)
	}

	return instance
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
