// Package esn manages the echo state network reservoir of DTESN instances:
// state updates, readout training, prediction, and reservoir parameter
// control.
package esn

import (
	"fmt"
	"math"

	"github.com/sarchlab/dtesn/core"
	"github.com/sarchlab/dtesn/registry"
)

const (
	// MaxTrainingSamples caps one training call's sample count.
	MaxTrainingSamples = 100000

	// MaxBatchSize caps one batch prediction call.
	MaxBatchSize = 10000

	defaultLearningRate   = 0.01
	defaultRegularization = 0.001
)

// ReservoirInfo describes the reservoir configuration of one instance.
// Spectral radius and connectivity are nominal values until the provider
// reports measured ones.
type ReservoirInfo struct {
	NeuronCount    uint32
	SpectralRadius float32
	Connectivity   float32
}

// An Engine drives the reservoir subsystem of DTESN instances through a
// client.
type Engine struct {
	client *registry.Client
}

// NewEngine creates an ESN engine bound to a client.
func NewEngine(c *registry.Client) *Engine {
	return &Engine{client: c}
}

func validateDimensions(inst *registry.Instance,
	inputSize, stateSize, outputSize uint32) error {
	if inputSize > inst.Params.InputDim {
		return fmt.Errorf("%w: input size %d exceeds instance input dim %d",
			core.ErrInvalidArgument, inputSize, inst.Params.InputDim)
	}

	if outputSize > inst.Params.OutputDim {
		return fmt.Errorf("%w: output size %d exceeds instance output dim %d",
			core.ErrInvalidArgument, outputSize, inst.Params.OutputDim)
	}

	if stateSize > inst.Params.NeuronCount {
		return fmt.Errorf("%w: state size %d exceeds reservoir of %d neurons",
			core.ErrInvalidArgument, stateSize, inst.Params.NeuronCount)
	}

	if inputSize == 0 || stateSize == 0 {
		return fmt.Errorf("%w: input and state must be non-empty",
			core.ErrInvalidArgument)
	}

	return nil
}

// Update advances the reservoir one step with the given input. The state
// vector is rewritten in place with the post-update reservoir state.
func (e *Engine) Update(h core.Handle, input, state []float32) error {
	start := e.client.BeginCall("esn_update")
	err := e.updateChecked(h, input, state)
	e.client.EndCall("esn_update", start, err)

	return err
}

func (e *Engine) updateChecked(h core.Handle, input, state []float32) error {
	inst, err := e.client.Lookup(h)
	if err != nil {
		return err
	}

	return e.update(inst, input, state)
}

func (e *Engine) update(inst *registry.Instance, input, state []float32) error {
	err := validateDimensions(inst, uint32(len(input)), uint32(len(state)), 0)
	if err != nil {
		return err
	}

	op := core.ESNOp{Kind: core.ESNUpdate, Input: input, State: state}
	if err := e.client.Provider().ESN(inst.Ref, op); err != nil {
		return core.WrapProviderErr("esn_update", err)
	}

	return nil
}

// Train fits the output layer from a training sequence. The reservoir is
// run through every sample in order, threading state from one sample to the
// next, and the collected states are handed to the provider in a single
// training request. Inputs is sample-major with stride inputDim; targets
// with stride outputDim.
func (e *Engine) Train(h core.Handle, inputs, targets []float32,
	samples, inputDim, outputDim uint32) error {
	start := e.client.BeginCall("esn_train")
	err := e.train(h, inputs, targets, samples, inputDim, outputDim)
	e.client.EndCall("esn_train", start, err)

	return err
}

func (e *Engine) train(h core.Handle, inputs, targets []float32,
	samples, inputDim, outputDim uint32) error {
	inst, err := e.client.Lookup(h)
	if err != nil {
		return err
	}

	err = validateTrainingData(inputs, targets, samples, inputDim, outputDim)
	if err != nil {
		return err
	}

	err = validateDimensions(inst, inputDim, inst.Params.NeuronCount, outputDim)
	if err != nil {
		return err
	}

	reservoir := inst.Params.NeuronCount
	accumulated := make([]float32, uint64(samples)*uint64(reservoir))
	state := make([]float32, reservoir)

	for sample := uint32(0); sample < samples; sample++ {
		row := inputs[sample*inputDim : (sample+1)*inputDim]

		if err := e.update(inst, row, state); err != nil {
			return err
		}

		copy(accumulated[sample*reservoir:(sample+1)*reservoir], state)
	}

	op := core.ESNOp{
		Kind:           core.ESNTrain,
		Samples:        samples,
		InputDim:       inputDim,
		OutputDim:      outputDim,
		ReservoirSize:  reservoir,
		States:         accumulated,
		Targets:        targets,
		LearningRate:   defaultLearningRate,
		Regularization: defaultRegularization,
	}

	if err := e.client.Provider().ESN(inst.Ref, op); err != nil {
		return core.WrapProviderErr("esn_train", err)
	}

	return nil
}

func validateTrainingData(inputs, targets []float32,
	samples, inputDim, outputDim uint32) error {
	if len(inputs) == 0 || len(targets) == 0 {
		return fmt.Errorf("%w: training data must be non-empty",
			core.ErrInvalidArgument)
	}

	if samples == 0 || inputDim == 0 || outputDim == 0 {
		return fmt.Errorf("%w: samples and dimensions must be positive",
			core.ErrInvalidArgument)
	}

	if samples > MaxTrainingSamples {
		return fmt.Errorf("%w: %d samples exceed the %d cap",
			core.ErrInvalidArgument, samples, MaxTrainingSamples)
	}

	if uint64(len(inputs)) < uint64(samples)*uint64(inputDim) {
		return fmt.Errorf("%w: input data holds %d values, %d samples need %d",
			core.ErrInvalidArgument, len(inputs), samples, samples*inputDim)
	}

	if uint64(len(targets)) < uint64(samples)*uint64(outputDim) {
		return fmt.Errorf("%w: target data holds %d values, %d samples need %d",
			core.ErrInvalidArgument, len(targets), samples, samples*outputDim)
	}

	// Scan the leading samples for NaN and infinities before committing to
	// a full reservoir run.
	for i := uint32(0); i < 10 && i < samples; i++ {
		for j := uint32(0); j < inputDim; j++ {
			if !finite(inputs[i*inputDim+j]) {
				return fmt.Errorf("%w: non-finite input at sample %d",
					core.ErrInvalidArgument, i)
			}
		}

		for j := uint32(0); j < outputDim; j++ {
			if !finite(targets[i*outputDim+j]) {
				return fmt.Errorf("%w: non-finite target at sample %d",
					core.ErrInvalidArgument, i)
			}
		}
	}

	return nil
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Predict runs one input through the reservoir and computes the readout
// into output. A scratch state is used, so the instance's live state is
// advanced exactly once.
func (e *Engine) Predict(h core.Handle, input, output []float32) error {
	start := e.client.BeginCall("esn_predict")
	err := e.predictChecked(h, input, output)
	e.client.EndCall("esn_predict", start, err)

	return err
}

func (e *Engine) predictChecked(h core.Handle, input, output []float32) error {
	inst, err := e.client.Lookup(h)
	if err != nil {
		return err
	}

	return e.predict(inst, input, output)
}

func (e *Engine) predict(inst *registry.Instance, input, output []float32) error {
	if len(output) == 0 {
		return fmt.Errorf("%w: empty output buffer", core.ErrInvalidArgument)
	}

	err := validateDimensions(inst, uint32(len(input)),
		inst.Params.NeuronCount, uint32(len(output)))
	if err != nil {
		return err
	}

	state := make([]float32, inst.Params.NeuronCount)
	if err := e.update(inst, input, state); err != nil {
		return err
	}

	op := core.ESNOp{
		Kind:   core.ESNPredict,
		Input:  input,
		State:  state,
		Output: output,
	}

	if err := e.client.Provider().ESN(inst.Ref, op); err != nil {
		return core.WrapProviderErr("esn_predict", err)
	}

	return nil
}

// BatchPredict predicts every sample of a batch in order. InputBatch is
// sample-major with stride inputDim, outputBatch with stride outputDim. The
// first failing sample aborts the batch; earlier outputs are left filled.
func (e *Engine) BatchPredict(h core.Handle, inputBatch []float32,
	batchSize, inputDim uint32, outputBatch []float32, outputDim uint32) error {
	start := e.client.BeginCall("esn_batch_predict")
	err := e.batchPredict(h, inputBatch, batchSize, inputDim, outputBatch, outputDim)
	e.client.EndCall("esn_batch_predict", start, err)

	return err
}

func (e *Engine) batchPredict(h core.Handle, inputBatch []float32,
	batchSize, inputDim uint32, outputBatch []float32, outputDim uint32) error {
	inst, err := e.client.Lookup(h)
	if err != nil {
		return err
	}

	if len(inputBatch) == 0 || len(outputBatch) == 0 {
		return fmt.Errorf("%w: batch buffers must be non-empty",
			core.ErrInvalidArgument)
	}

	if batchSize == 0 || batchSize > MaxBatchSize {
		return fmt.Errorf("%w: batch size %d outside [1, %d]",
			core.ErrInvalidArgument, batchSize, MaxBatchSize)
	}

	err = validateDimensions(inst, inputDim, inst.Params.NeuronCount, outputDim)
	if err != nil {
		return err
	}

	if uint64(len(inputBatch)) < uint64(batchSize)*uint64(inputDim) {
		return fmt.Errorf("%w: input batch holds %d values, need %d",
			core.ErrInvalidArgument, len(inputBatch), batchSize*inputDim)
	}

	if uint64(len(outputBatch)) < uint64(batchSize)*uint64(outputDim) {
		return fmt.Errorf("%w: output batch holds %d values, need %d",
			core.ErrInvalidArgument, len(outputBatch), batchSize*outputDim)
	}

	for i := uint32(0); i < batchSize; i++ {
		input := inputBatch[i*inputDim : (i+1)*inputDim]
		output := outputBatch[i*outputDim : (i+1)*outputDim]

		if err := e.predict(inst, input, output); err != nil {
			return err
		}
	}

	return nil
}

// ResetState drives the reservoir with a zero input so the provider settles
// it back toward the zero state.
func (e *Engine) ResetState(h core.Handle) error {
	start := e.client.BeginCall("esn_reset_state")
	err := e.resetState(h)
	e.client.EndCall("esn_reset_state", start, err)

	return err
}

func (e *Engine) resetState(h core.Handle) error {
	inst, err := e.client.Lookup(h)
	if err != nil {
		return err
	}

	zeroInput := make([]float32, inst.Params.InputDim)
	zeroState := make([]float32, inst.Params.NeuronCount)

	return e.update(inst, zeroInput, zeroState)
}

// ReservoirInfo reports the reservoir configuration of one instance.
func (e *Engine) ReservoirInfo(h core.Handle) (ReservoirInfo, error) {
	start := e.client.BeginCall("esn_get_reservoir_info")
	info, err := e.reservoirInfo(h)
	e.client.EndCall("esn_get_reservoir_info", start, err)

	return info, err
}

func (e *Engine) reservoirInfo(h core.Handle) (ReservoirInfo, error) {
	inst, err := e.client.Lookup(h)
	if err != nil {
		return ReservoirInfo{}, err
	}

	return ReservoirInfo{
		NeuronCount:    inst.Params.NeuronCount,
		SpectralRadius: 0.95,
		Connectivity:   0.1,
	}, nil
}

// SetParameters reconfigures reservoir dynamics. Spectral radius must lie
// in (0, 2), input scaling in (0, 10], leak rate in (0, 1].
func (e *Engine) SetParameters(h core.Handle,
	spectralRadius, inputScaling, leakRate float32) error {
	start := e.client.BeginCall("esn_set_parameters")
	err := e.setParameters(h, spectralRadius, inputScaling, leakRate)
	e.client.EndCall("esn_set_parameters", start, err)

	return err
}

func (e *Engine) setParameters(h core.Handle,
	spectralRadius, inputScaling, leakRate float32) error {
	inst, err := e.client.Lookup(h)
	if err != nil {
		return err
	}

	if spectralRadius <= 0 || spectralRadius >= 2 {
		return fmt.Errorf("%w: spectral radius %g outside (0, 2)",
			core.ErrInvalidArgument, spectralRadius)
	}

	if inputScaling <= 0 || inputScaling > 10 {
		return fmt.Errorf("%w: input scaling %g outside (0, 10]",
			core.ErrInvalidArgument, inputScaling)
	}

	if leakRate <= 0 || leakRate > 1 {
		return fmt.Errorf("%w: leak rate %g outside (0, 1]",
			core.ErrInvalidArgument, leakRate)
	}

	op := core.ESNOp{
		Kind:           core.ESNSetParameters,
		SpectralRadius: spectralRadius,
		InputScaling:   inputScaling,
		LeakRate:       leakRate,
	}

	if err := e.client.Provider().ESN(inst.Ref, op); err != nil {
		return core.WrapProviderErr("esn_set_parameters", err)
	}

	return nil
}

// MemoryUsage estimates the bytes held by one instance's reservoir: the
// three weight matrices, the state vector, and fixed bookkeeping overhead.
func (e *Engine) MemoryUsage(h core.Handle) (uint64, error) {
	start := e.client.BeginCall("esn_get_memory_usage")
	bytes, err := e.memoryUsage(h)
	e.client.EndCall("esn_get_memory_usage", start, err)

	return bytes, err
}

func (e *Engine) memoryUsage(h core.Handle) (uint64, error) {
	inst, err := e.client.Lookup(h)
	if err != nil {
		return 0, err
	}

	n := uint64(inst.Params.NeuronCount)
	in := uint64(inst.Params.InputDim)
	out := uint64(inst.Params.OutputDim)

	const floatSize = 4
	reservoirWeights := n * n * floatSize
	inputWeights := in * n * floatSize
	outputWeights := n * out * floatSize
	stateVector := n * floatSize

	const bookkeeping = 1024

	return reservoirWeights + inputWeights + outputWeights +
		stateVector + bookkeeping, nil
}
