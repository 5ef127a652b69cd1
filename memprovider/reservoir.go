package memprovider

import (
	"math"
	"math/rand"

	"github.com/sarchlab/dtesn/core"
)

// initWeights fills the weight matrices from a generator derived from the
// provider seed and the instance ref, so the same configuration always
// produces the same reservoir.
func (i *instance) initWeights(seed int64, ref core.ProviderRef) {
	n := int(i.params.NeuronCount)
	in := int(i.params.InputDim)
	out := int(i.params.OutputDim)

	rng := rand.New(rand.NewSource(seed ^ int64(ref)*0x9e3779b9))

	i.inputWeights = make([]float32, n*in)
	for j := range i.inputWeights {
		i.inputWeights[j] = rng.Float32() - 0.5
	}

	i.reservoirWeights = make([]float32, n*n)
	for j := range i.reservoirWeights {
		i.reservoirWeights[j] = rng.Float32() - 0.5
	}

	scaleToRadius(i.reservoirWeights, i.spectralRadius)

	i.outputWeights = make([]float32, out*n)
	i.state = make([]float32, n)
}

// scaleToRadius rescales weights so their estimated spectral radius matches
// target. The estimate is the max-magnitude entry scaled by the matrix size,
// a stand-in for a real eigenvalue computation.
func scaleToRadius(weights []float32, target float32) {
	if len(weights) == 0 || target <= 0 {
		return
	}

	var maxAbs float64
	for _, w := range weights {
		if a := math.Abs(float64(w)); a > maxAbs {
			maxAbs = a
		}
	}

	current := maxAbs * math.Sqrt(float64(len(weights)))
	if current <= 0 {
		return
	}

	scale := float32(float64(target) / current)
	for j := range weights {
		weights[j] *= scale
	}
}

// updateReservoir advances the reservoir one leaky-tanh step. The caller's
// state window is both the previous state and the destination; entries
// beyond the window fall back to the internal state vector.
func (i *instance) updateReservoir(input, window []float32) {
	n := int(i.params.NeuronCount)

	prev := make([]float32, n)
	copy(prev, i.state)
	copy(prev, window)

	next := make([]float32, n)
	leak := float64(i.leakRate)

	in := int(i.params.InputDim)

	for r := 0; r < n; r++ {
		var act float64

		for c, v := range input {
			if c >= in {
				break
			}

			act += float64(i.inputWeights[r*in+c]) *
				float64(v) * float64(i.inputScaling)
		}

		for c := 0; c < n; c++ {
			act += float64(i.reservoirWeights[r*n+c]) * float64(prev[c])
		}

		next[r] = float32((1-leak)*float64(prev[r]) + leak*math.Tanh(act))
	}

	copy(i.state, next)
	copy(window, next)
}

// readout computes the trained output layer against a state window.
func (i *instance) readout(window, output []float32) {
	n := int(i.params.NeuronCount)
	out := int(i.params.OutputDim)

	for o := range output {
		if o >= out {
			break
		}

		var sum float64
		for j := 0; j < n && j < len(window); j++ {
			sum += float64(i.outputWeights[o*n+j]) * float64(window[j])
		}

		output[o] = float32(sum)
	}
}

// fitReadout fits the output weights from collected states with a diagonal
// ridge approximation of the batch least-squares readout.
func (i *instance) fitReadout(op core.ESNOp) error {
	n := int(i.params.NeuronCount)
	rs := int(op.ReservoirSize)
	samples := int(op.Samples)
	out := int(op.OutputDim)

	if samples == 0 || rs == 0 || out == 0 {
		return providerErr("esn_train", codeInval, "empty training geometry")
	}

	if len(op.States) < samples*rs || len(op.Targets) < samples*out {
		return providerErr("esn_train", codeInval,
			"training buffers below %d samples", samples)
	}

	reg := float64(op.Regularization)

	for o := 0; o < out && o < int(i.params.OutputDim); o++ {
		for j := 0; j < rs && j < n; j++ {
			var num, den float64
			for s := 0; s < samples; s++ {
				st := float64(op.States[s*rs+j])
				num += float64(op.Targets[s*out+o]) * st
				den += st * st
			}

			i.outputWeights[o*n+j] = float32(num / (den + reg*float64(samples)))
		}
	}

	return nil
}

// ESN dispatches one reservoir request.
func (p *Provider) ESN(ref core.ProviderRef, op core.ESNOp) error {
	p.Lock()
	defer p.Unlock()

	inst, err := p.lookup("esn", ref)
	if err != nil {
		return err
	}

	switch op.Kind {
	case core.ESNUpdate:
		if len(op.Input) == 0 || len(op.State) == 0 {
			return providerErr("esn_update", codeInval, "empty input or state")
		}

		inst.updateReservoir(op.Input, op.State)

		return nil

	case core.ESNTrain:
		return inst.fitReadout(op)

	case core.ESNPredict:
		if len(op.Output) == 0 {
			return providerErr("esn_predict", codeInval, "empty output")
		}

		inst.readout(op.State, op.Output)

		return nil

	case core.ESNSetParameters:
		scaleToRadius(inst.reservoirWeights, op.SpectralRadius)
		inst.spectralRadius = op.SpectralRadius
		inst.inputScaling = op.InputScaling
		inst.leakRate = op.LeakRate

		return nil
	}

	return providerErr("esn", codeInval, "unknown op kind %d", op.Kind)
}

// Evolve advances an instance. Reservoir and membrane dynamics run per the
// requested mode; the timeout is advisory here since every step completes
// in bounded time.
func (p *Provider) Evolve(ref core.ProviderRef, spec core.EvolveSpec) error {
	p.Lock()
	defer p.Unlock()

	inst, err := p.lookup("evolve", ref)
	if err != nil {
		return err
	}

	if len(spec.Input) == 0 || spec.Steps == 0 {
		return providerErr("evolve", codeInval, "empty input or zero steps")
	}

	for step := uint32(0); step < spec.Steps; step++ {
		if spec.Mode != core.EvolveMembraneOnly {
			inst.updateReservoir(spec.Input, inst.state)
		}

		if spec.Mode != core.EvolveReservoirOnly {
			inst.stepMembranes()
		}
	}

	inst.evolutions += uint64(spec.Steps)

	return nil
}
