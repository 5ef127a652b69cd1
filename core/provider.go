package core

import "time"

// A ProviderRef is the provider's opaque name for one instance, such as a
// file descriptor number or a connection-scoped id. The client stores and
// returns it without interpreting it.
type ProviderRef uint64

// An EvolveSpec carries one whole-instance evolution request.
type EvolveSpec struct {
	Input   []float32
	Steps   uint32
	Mode    EvolveMode
	Timeout time.Duration
}

// A BSeriesSpec carries one B-series coefficient computation request. The
// result buffer is sized by the caller to A000081(Order).
type BSeriesSpec struct {
	Order        uint32
	Coefficients []float64
	TreeCount    uint32
}

// ESNOpKind tags the reservoir operation an ESNOp requests.
type ESNOpKind int

const (
	// ESNUpdate advances the reservoir one step; Input and State are
	// consulted and State is rewritten in place.
	ESNUpdate ESNOpKind = iota

	// ESNTrain fits the output layer from collected states; Samples,
	// InputDim, OutputDim, ReservoirSize, States, Targets, LearningRate
	// and Regularization are consulted.
	ESNTrain

	// ESNPredict computes a readout; Input, State and Output are
	// consulted and Output is rewritten in place.
	ESNPredict

	// ESNSetParameters reconfigures reservoir dynamics; SpectralRadius,
	// InputScaling and LeakRate are consulted.
	ESNSetParameters
)

// An ESNOp is one reservoir request. Kind selects which field group the
// provider reads; the rest stay zero.
type ESNOp struct {
	Kind ESNOpKind

	// Update and Predict.
	Input  []float32
	State  []float32
	Output []float32

	// Train.
	Samples        uint32
	InputDim       uint32
	OutputDim      uint32
	ReservoirSize  uint32
	States         []float32
	Targets        []float32
	LearningRate   float32
	Regularization float32

	// SetParameters.
	SpectralRadius float32
	InputScaling   float32
	LeakRate       float32
}

// MembraneOpKind tags the membrane operation a MembraneOp requests.
type MembraneOpKind int

const (
	MembraneCreate MembraneOpKind = iota
	MembraneEvolve
	MembraneCommunicate
	MembraneDissolve
	MembraneDivide
)

// A MembraneOp is one P-system request. For communicate, ParentID carries
// the target membrane id and Data the message. The provider returns the new
// membrane id for create and divide, zero otherwise.
type MembraneOp struct {
	Kind       MembraneOpKind
	MembraneID uint32
	ParentID   uint32
	Steps      uint32
	Data       []byte
}

// A Provider executes the privileged DTESN computations on behalf of the
// client: tree evolution, spectral computation, and membrane transitions.
// Implementations may be in-process, a co-process reached over a socket, or
// a kernel module reached through system calls. All request validation
// happens before a Provider method is invoked; a Provider failure is
// authoritative and is never retried by the client.
type Provider interface {
	CreateInstance(params CreateParams) (ProviderRef, error)
	DestroyInstance(ref ProviderRef) error
	Evolve(ref ProviderRef, spec EvolveSpec) error
	StateInfo(ref ProviderRef) (StateInfo, error)
	BSeriesCompute(ref ProviderRef, spec BSeriesSpec, result []float64) error
	ESN(ref ProviderRef, op ESNOp) error
	MembraneOp(ref ProviderRef, op MembraneOp) (uint32, error)
}

// MembraneInfo describes one membrane's position in the hierarchy.
type MembraneInfo struct {
	ID       uint32
	ParentID uint32
	Children []uint32
}

// A TopologyProvider reports real membrane parent/child relations.
// Providers that only track aggregate counts do not implement it; callers
// then fall back to a flat approximation of the hierarchy.
type TopologyProvider interface {
	MembraneTopology(ref ProviderRef, membraneID uint32) (MembraneInfo, error)
}

// AccelType names a class of acceleration hardware.
type AccelType uint32

const (
	AccelNone         AccelType = 0x0
	AccelSIMD         AccelType = 0x1
	AccelGPU          AccelType = 0x2
	AccelFPGA         AccelType = 0x4
	AccelNeuromorphic AccelType = 0x8
)

// An AccelDevice describes one acceleration device a provider can target.
type AccelDevice struct {
	ID          uint32
	Type        AccelType
	Name        string
	MemoryBytes uint64
	Available   bool
}

// An AccelProvider can offload instance computation to acceleration
// hardware. Providers without acceleration support simply do not implement
// this interface.
type AccelProvider interface {
	EnableAcceleration(ref ProviderRef, accelType AccelType, deviceID uint32) error
	AccelDevices() ([]AccelDevice, error)
}
