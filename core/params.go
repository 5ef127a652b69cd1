package core

import (
	"fmt"
	"time"

	"github.com/sarchlab/dtesn/oeis"
)

// Runtime limits. Depth and order bound the enumeration-constrained
// subsystems; the remaining limits cap per-instance buffer sizes and the
// registry table.
const (
	MaxDepth               = 16
	MaxOrder               = 10
	MaxNeurons             = 4096
	MaxMembranes           = 1024
	MaxInputSize           = 1024
	MaxOutputSize          = 1024
	MaxConcurrentInstances = 1000
	MaxAsyncOperations     = 256
)

// DefaultTimeout is applied to evolve-style calls when the caller passes a
// zero timeout.
const DefaultTimeout = 5 * time.Second

// CreateFlags modify instance creation.
type CreateFlags uint32

const (
	// CreateValidateOEIS enforces MembraneCount == A000081(Depth) at
	// creation time.
	CreateValidateOEIS CreateFlags = 0x1

	// CreateAccelerated asks the provider to place the instance on an
	// acceleration device when one is available.
	CreateAccelerated CreateFlags = 0x2
)

// EvolveMode selects how the provider advances an instance.
type EvolveMode uint32

const (
	// EvolveDefault advances reservoir and membrane dynamics together.
	EvolveDefault EvolveMode = 0x0

	// EvolveReservoirOnly advances reservoir state without membrane
	// transitions.
	EvolveReservoirOnly EvolveMode = 0x1

	// EvolveMembraneOnly runs membrane transitions without touching the
	// reservoir.
	EvolveMembraneOnly EvolveMode = 0x2
)

// CreateParams describes the instance to create.
type CreateParams struct {
	Depth         uint32
	MaxOrder      uint32
	NeuronCount   uint32
	MembraneCount uint32
	InputDim      uint32
	OutputDim     uint32
	Flags         CreateFlags
}

// Validate checks the parameter block against the runtime limits. The
// membrane-count enumeration check runs only when CreateValidateOEIS is set.
func (p CreateParams) Validate() error {
	if p.Depth < 1 || p.Depth > MaxDepth {
		return fmt.Errorf("%w: depth %d outside [1, %d]",
			ErrInvalidDepth, p.Depth, MaxDepth)
	}

	if p.MaxOrder < 1 || p.MaxOrder > MaxOrder {
		return fmt.Errorf("%w: max order %d outside [1, %d]",
			ErrInvalidOrder, p.MaxOrder, MaxOrder)
	}

	if p.NeuronCount > MaxNeurons {
		return fmt.Errorf("%w: neuron count %d exceeds %d",
			ErrInvalidArgument, p.NeuronCount, MaxNeurons)
	}

	if p.MembraneCount > MaxMembranes {
		return fmt.Errorf("%w: membrane count %d exceeds %d",
			ErrInvalidArgument, p.MembraneCount, MaxMembranes)
	}

	if p.InputDim > MaxInputSize || p.OutputDim > MaxOutputSize {
		return fmt.Errorf("%w: input dim %d or output dim %d exceeds limits",
			ErrInvalidArgument, p.InputDim, p.OutputDim)
	}

	if p.Flags&CreateValidateOEIS != 0 {
		want, err := oeis.CountFor(p.Depth)
		if err != nil {
			return fmt.Errorf("%w: depth %d outside enumeration table",
				ErrInvalidDepth, p.Depth)
		}

		if p.MembraneCount != want {
			return fmt.Errorf("%w: depth %d expects %d membranes, got %d",
				ErrOEISViolation, p.Depth, want, p.MembraneCount)
		}
	}

	return nil
}

// StateInfo is a point-in-time snapshot of one instance as the provider
// sees it.
type StateInfo struct {
	InstanceID       uint64
	Depth            uint32
	MaxOrder         uint32
	NeuronCount      uint32
	MembraneCount    uint32
	InputDim         uint32
	OutputDim        uint32
	TotalEvolutions  uint64
	MemoryUsageBytes uint64
}
