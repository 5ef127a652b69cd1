// Package memprovider implements the compute provider contract in process.
// It is the library form of the DTESN back-end: reservoir dynamics, B-series
// weights, and membrane topology are all computed locally with simplified
// numerics, deterministically for a given seed. It doubles as the functional
// test double for everything built on a Client.
package memprovider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sarchlab/dtesn/core"
)

// Provider-side status codes, errno-flavoured. They travel inside
// ProviderError and survive the client's wrapping.
const (
	codeNoEnt  = -2
	codeBadRef = -9
	codeInval  = -22
)

// A Builder configures and creates in-memory providers.
type Builder struct {
	seed    int64
	devices []core.AccelDevice
}

// MakeBuilder returns a builder with a fixed default seed and one SIMD
// device, so default providers behave identically run to run.
func MakeBuilder() Builder {
	return Builder{
		seed: 42,
		devices: []core.AccelDevice{{
			ID:          0,
			Type:        core.AccelSIMD,
			Name:        "simd0",
			MemoryBytes: 64 << 20,
			Available:   true,
		}},
	}
}

// WithSeed sets the seed that derives every instance's initial weights.
func (b Builder) WithSeed(seed int64) Builder {
	b.seed = seed
	return b
}

// WithAccelDevices replaces the advertised acceleration device list.
func (b Builder) WithAccelDevices(devices ...core.AccelDevice) Builder {
	b.devices = devices
	return b
}

// Build creates the provider.
func (b Builder) Build() *Provider {
	return &Provider{
		seed:      b.seed,
		devices:   b.devices,
		instances: make(map[core.ProviderRef]*instance),
	}
}

var (
	_ core.Provider         = (*Provider)(nil)
	_ core.TopologyProvider = (*Provider)(nil)
	_ core.AccelProvider    = (*Provider)(nil)
)

// A Provider keeps every instance's reservoir and membrane state in memory.
// All operations are serialized on the embedded mutex.
type Provider struct {
	sync.Mutex

	seed      int64
	nextRef   core.ProviderRef
	instances map[core.ProviderRef]*instance
	devices   []core.AccelDevice
}

// instance is the provider-side state of one DTESN computation.
type instance struct {
	params core.CreateParams

	inputWeights     []float32
	reservoirWeights []float32
	outputWeights    []float32
	state            []float32

	spectralRadius float32
	inputScaling   float32
	leakRate       float32

	membranes    map[uint32]*membraneNode
	nextMembrane uint32

	evolutions uint64
	accel      core.AccelType
}

func providerErr(op string, code int, format string, args ...interface{}) error {
	return &core.ProviderError{Op: op, Code: code, Err: fmt.Errorf(format, args...)}
}

func (p *Provider) lookup(op string, ref core.ProviderRef) (*instance, error) {
	inst, ok := p.instances[ref]
	if !ok {
		return nil, providerErr(op, codeBadRef, "unknown instance ref %d", ref)
	}

	return inst, nil
}

// CreateInstance allocates reservoir weights and the initial membrane
// population for a new instance and returns its reference.
func (p *Provider) CreateInstance(params core.CreateParams) (core.ProviderRef, error) {
	p.Lock()
	defer p.Unlock()

	p.nextRef++
	ref := p.nextRef

	inst := &instance{
		params:         params,
		spectralRadius: 0.95,
		inputScaling:   1.0,
		leakRate:       0.3,
		membranes:      make(map[uint32]*membraneNode),
	}

	inst.initWeights(p.seed, ref)
	inst.initMembranes(params.MembraneCount)

	if params.Flags&core.CreateAccelerated != 0 {
		for _, d := range p.devices {
			if d.Available {
				inst.accel = d.Type
				break
			}
		}
	}

	p.instances[ref] = inst

	return ref, nil
}

// DestroyInstance releases an instance's state.
func (p *Provider) DestroyInstance(ref core.ProviderRef) error {
	p.Lock()
	defer p.Unlock()

	if _, err := p.lookup("destroy", ref); err != nil {
		return err
	}

	delete(p.instances, ref)

	return nil
}

// Refs lists the references of all live instances in creation order.
func (p *Provider) Refs() []core.ProviderRef {
	p.Lock()
	defer p.Unlock()

	refs := make([]core.ProviderRef, 0, len(p.instances))
	for ref := range p.instances {
		refs = append(refs, ref)
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i] < refs[j] })

	return refs
}

// StateInfo reports an instance's configuration, evolution count, and the
// bytes its buffers actually occupy.
func (p *Provider) StateInfo(ref core.ProviderRef) (core.StateInfo, error) {
	p.Lock()
	defer p.Unlock()

	inst, err := p.lookup("get_state", ref)
	if err != nil {
		return core.StateInfo{}, err
	}

	buffers := len(inst.inputWeights) + len(inst.reservoirWeights) +
		len(inst.outputWeights) + len(inst.state)

	return core.StateInfo{
		Depth:            inst.params.Depth,
		MaxOrder:         inst.params.MaxOrder,
		NeuronCount:      inst.params.NeuronCount,
		MembraneCount:    uint32(len(inst.membranes)),
		InputDim:         inst.params.InputDim,
		OutputDim:        inst.params.OutputDim,
		TotalEvolutions:  inst.evolutions,
		MemoryUsageBytes: uint64(buffers)*4 + 1024,
	}, nil
}

// BSeriesCompute fills result with one coefficient per tree. The weighting
// is the standard placeholder scheme shared with the client-side tree
// helpers, so both provider forms agree numerically.
func (p *Provider) BSeriesCompute(ref core.ProviderRef, spec core.BSeriesSpec,
	result []float64) error {
	p.Lock()
	defer p.Unlock()

	if _, err := p.lookup("bseries_compute", ref); err != nil {
		return err
	}

	if len(spec.Coefficients) == 0 {
		return providerErr("bseries_compute", codeInval, "no coefficients")
	}

	if uint32(len(result)) < spec.TreeCount {
		return providerErr("bseries_compute", codeInval,
			"result buffer %d below tree count %d", len(result), spec.TreeCount)
	}

	for tree := uint32(0); tree < spec.TreeCount; tree++ {
		weight := 1.0 / (float64(tree) + 1.0)

		var sum float64
		pow := 1.0
		for i := uint32(0); i < spec.Order && i < 10; i++ {
			c := spec.Coefficients[int(i)%len(spec.Coefficients)]
			sum += c * weight * pow
			pow *= 2.0
		}

		result[tree] = sum
	}

	return nil
}

// EnableAcceleration places an instance on one of the advertised devices.
// AccelNone detaches the instance from its device.
func (p *Provider) EnableAcceleration(ref core.ProviderRef,
	accelType core.AccelType, deviceID uint32) error {
	p.Lock()
	defer p.Unlock()

	inst, err := p.lookup("enable_acceleration", ref)
	if err != nil {
		return err
	}

	if accelType == core.AccelNone {
		inst.accel = core.AccelNone
		return nil
	}

	for _, d := range p.devices {
		if d.ID != deviceID {
			continue
		}

		if !d.Available {
			return providerErr("enable_acceleration", codeInval,
				"device %d is not available", deviceID)
		}

		if d.Type != accelType {
			return providerErr("enable_acceleration", codeInval,
				"device %d is not of type %#x", deviceID, accelType)
		}

		inst.accel = accelType

		return nil
	}

	return providerErr("enable_acceleration", codeNoEnt,
		"unknown device %d", deviceID)
}

// AccelDevices lists the devices this provider advertises.
func (p *Provider) AccelDevices() ([]core.AccelDevice, error) {
	p.Lock()
	defer p.Unlock()

	devices := make([]core.AccelDevice, len(p.devices))
	copy(devices, p.devices)

	return devices, nil
}

// Acceleration reports the device class an instance currently runs on.
func (p *Provider) Acceleration(ref core.ProviderRef) (core.AccelType, error) {
	p.Lock()
	defer p.Unlock()

	inst, err := p.lookup("acceleration", ref)
	if err != nil {
		return core.AccelNone, err
	}

	return inst.accel, nil
}
