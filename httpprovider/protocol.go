package httpprovider

// Operation codes. The names follow the provider contract: one code plus
// one parameter block per request.
const (
	opCreate           = "create"
	opDestroy          = "destroy"
	opEvolve           = "evolve"
	opGetState         = "get_state"
	opBSeriesCompute   = "bseries_compute"
	opESN              = "esn_op"
	opMembrane         = "membrane_op"
	opMembraneTopology = "membrane_topology"
	opEnableAccel      = "enable_acceleration"
	opAccelDevices     = "accel_devices"
)

// Daemon-side failure codes for requests that never reach the provider.
// They stay in the errno style the reference provider uses.
const (
	codeBadRequest = -22
	codeNoSys      = -38
)

// maxResultLen bounds the caller-declared result buffer so a broken peer
// cannot force arbitrary allocations.
const maxResultLen = 1 << 20

type request struct {
	Op  string `json:"op"`
	Ref uint64 `json:"ref,omitempty"`

	Create   *createBlock   `json:"create,omitempty"`
	Evolve   *evolveBlock   `json:"evolve,omitempty"`
	BSeries  *bseriesBlock  `json:"bseries,omitempty"`
	ESN      *esnBlock      `json:"esn,omitempty"`
	Membrane *membraneBlock `json:"membrane,omitempty"`
	Accel    *accelBlock    `json:"accel,omitempty"`
}

type createBlock struct {
	Depth         uint32 `json:"depth"`
	MaxOrder      uint32 `json:"max_order"`
	NeuronCount   uint32 `json:"neuron_count"`
	MembraneCount uint32 `json:"membrane_count"`
	InputDim      uint32 `json:"input_dim"`
	OutputDim     uint32 `json:"output_dim"`
	Flags         uint32 `json:"flags,omitempty"`
}

type evolveBlock struct {
	Input     []float32 `json:"input"`
	Steps     uint32    `json:"steps"`
	Mode      uint32    `json:"mode"`
	TimeoutNs int64     `json:"timeout_ns,omitempty"`
}

type bseriesBlock struct {
	Order        uint32    `json:"order"`
	Coefficients []float64 `json:"coefficients"`
	TreeCount    uint32    `json:"tree_count"`
	ResultLen    int       `json:"result_len"`
}

type esnBlock struct {
	Kind int `json:"kind"`

	Input  []float32 `json:"input,omitempty"`
	State  []float32 `json:"state,omitempty"`
	Output []float32 `json:"output,omitempty"`

	Samples        uint32    `json:"samples,omitempty"`
	InputDim       uint32    `json:"input_dim,omitempty"`
	OutputDim      uint32    `json:"output_dim,omitempty"`
	ReservoirSize  uint32    `json:"reservoir_size,omitempty"`
	States         []float32 `json:"states,omitempty"`
	Targets        []float32 `json:"targets,omitempty"`
	LearningRate   float32   `json:"learning_rate,omitempty"`
	Regularization float32   `json:"regularization,omitempty"`

	SpectralRadius float32 `json:"spectral_radius,omitempty"`
	InputScaling   float32 `json:"input_scaling,omitempty"`
	LeakRate       float32 `json:"leak_rate,omitempty"`
}

type membraneBlock struct {
	Kind       int    `json:"kind"`
	MembraneID uint32 `json:"membrane_id,omitempty"`
	ParentID   uint32 `json:"parent_id,omitempty"`
	Steps      uint32 `json:"steps,omitempty"`
	Data       []byte `json:"data,omitempty"`
}

type accelBlock struct {
	Type     uint32 `json:"type"`
	DeviceID uint32 `json:"device_id"`
}

// response carries the outcome of one operation. Code 0 means success;
// a negative code passes the provider's status through verbatim.
type response struct {
	Code  int    `json:"code"`
	Error string `json:"error,omitempty"`

	Ref        uint64         `json:"ref,omitempty"`
	State      *stateBlock    `json:"state,omitempty"`
	Result     []float64      `json:"result,omitempty"`
	ESNState   []float32      `json:"esn_state,omitempty"`
	ESNOutput  []float32      `json:"esn_output,omitempty"`
	MembraneID uint32         `json:"membrane_id,omitempty"`
	Topology   *topologyBlock `json:"topology,omitempty"`
	Devices    []deviceBlock  `json:"devices,omitempty"`
}

type stateBlock struct {
	Depth            uint32 `json:"depth"`
	MaxOrder         uint32 `json:"max_order"`
	NeuronCount      uint32 `json:"neuron_count"`
	MembraneCount    uint32 `json:"membrane_count"`
	InputDim         uint32 `json:"input_dim"`
	OutputDim        uint32 `json:"output_dim"`
	TotalEvolutions  uint64 `json:"total_evolutions"`
	MemoryUsageBytes uint64 `json:"memory_usage_bytes"`
}

type topologyBlock struct {
	ID       uint32   `json:"id"`
	ParentID uint32   `json:"parent_id"`
	Children []uint32 `json:"children,omitempty"`
}

type deviceBlock struct {
	ID          uint32 `json:"id"`
	Type        uint32 `json:"type"`
	Name        string `json:"name"`
	MemoryBytes uint64 `json:"memory_bytes"`
	Available   bool   `json:"available"`
}
