package httpprovider

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/sarchlab/dtesn/core"
)

// A Handler serves the provider contract over HTTP on behalf of one
// Provider implementation. The daemon mounts it on /api/op; every request
// is one POSTed operation envelope.
type Handler struct {
	provider core.Provider
}

// NewHandler creates a handler fronting the given provider.
func NewHandler(p core.Provider) *Handler {
	return &Handler{provider: p}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	req := request{}
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	rsp := h.dispatch(&req)

	w.Header().Set("Content-Type", "application/json")
	err = json.NewEncoder(w).Encode(rsp)
	dieOnErr(err)
}

func (h *Handler) dispatch(req *request) response {
	switch req.Op {
	case opCreate:
		return h.create(req)
	case opDestroy:
		return h.destroy(req)
	case opEvolve:
		return h.evolve(req)
	case opGetState:
		return h.state(req)
	case opBSeriesCompute:
		return h.bseries(req)
	case opESN:
		return h.esn(req)
	case opMembrane:
		return h.membrane(req)
	case opMembraneTopology:
		return h.topology(req)
	case opEnableAccel:
		return h.enableAccel(req)
	case opAccelDevices:
		return h.accelDevices(req)
	default:
		return badRequest(fmt.Sprintf("unknown operation %q", req.Op))
	}
}

func (h *Handler) create(req *request) response {
	if req.Create == nil {
		return badRequest("create block missing")
	}

	b := req.Create
	ref, err := h.provider.CreateInstance(core.CreateParams{
		Depth:         b.Depth,
		MaxOrder:      b.MaxOrder,
		NeuronCount:   b.NeuronCount,
		MembraneCount: b.MembraneCount,
		InputDim:      b.InputDim,
		OutputDim:     b.OutputDim,
		Flags:         core.CreateFlags(b.Flags),
	})
	if err != nil {
		return failure(err)
	}

	return response{Ref: uint64(ref)}
}

func (h *Handler) destroy(req *request) response {
	err := h.provider.DestroyInstance(core.ProviderRef(req.Ref))
	if err != nil {
		return failure(err)
	}

	return response{}
}

func (h *Handler) evolve(req *request) response {
	if req.Evolve == nil {
		return badRequest("evolve block missing")
	}

	b := req.Evolve
	err := h.provider.Evolve(core.ProviderRef(req.Ref), core.EvolveSpec{
		Input:   b.Input,
		Steps:   b.Steps,
		Mode:    core.EvolveMode(b.Mode),
		Timeout: time.Duration(b.TimeoutNs),
	})
	if err != nil {
		return failure(err)
	}

	return response{}
}

func (h *Handler) state(req *request) response {
	info, err := h.provider.StateInfo(core.ProviderRef(req.Ref))
	if err != nil {
		return failure(err)
	}

	return response{State: &stateBlock{
		Depth:            info.Depth,
		MaxOrder:         info.MaxOrder,
		NeuronCount:      info.NeuronCount,
		MembraneCount:    info.MembraneCount,
		InputDim:         info.InputDim,
		OutputDim:        info.OutputDim,
		TotalEvolutions:  info.TotalEvolutions,
		MemoryUsageBytes: info.MemoryUsageBytes,
	}}
}

func (h *Handler) bseries(req *request) response {
	if req.BSeries == nil {
		return badRequest("bseries block missing")
	}

	b := req.BSeries
	if b.ResultLen < 0 || b.ResultLen > maxResultLen {
		return badRequest("result length out of range")
	}

	result := make([]float64, b.ResultLen)
	err := h.provider.BSeriesCompute(core.ProviderRef(req.Ref), core.BSeriesSpec{
		Order:        b.Order,
		Coefficients: b.Coefficients,
		TreeCount:    b.TreeCount,
	}, result)
	if err != nil {
		return failure(err)
	}

	return response{Result: result}
}

func (h *Handler) esn(req *request) response {
	if req.ESN == nil {
		return badRequest("esn block missing")
	}

	b := req.ESN
	op := core.ESNOp{
		Kind:           core.ESNOpKind(b.Kind),
		Input:          b.Input,
		State:          b.State,
		Output:         b.Output,
		Samples:        b.Samples,
		InputDim:       b.InputDim,
		OutputDim:      b.OutputDim,
		ReservoirSize:  b.ReservoirSize,
		States:         b.States,
		Targets:        b.Targets,
		LearningRate:   b.LearningRate,
		Regularization: b.Regularization,
		SpectralRadius: b.SpectralRadius,
		InputScaling:   b.InputScaling,
		LeakRate:       b.LeakRate,
	}

	err := h.provider.ESN(core.ProviderRef(req.Ref), op)
	if err != nil {
		return failure(err)
	}

	// The provider mutates state and output in place; echo them back.
	return response{ESNState: op.State, ESNOutput: op.Output}
}

func (h *Handler) membrane(req *request) response {
	if req.Membrane == nil {
		return badRequest("membrane block missing")
	}

	b := req.Membrane
	id, err := h.provider.MembraneOp(core.ProviderRef(req.Ref), core.MembraneOp{
		Kind:       core.MembraneOpKind(b.Kind),
		MembraneID: b.MembraneID,
		ParentID:   b.ParentID,
		Steps:      b.Steps,
		Data:       b.Data,
	})
	if err != nil {
		return failure(err)
	}

	return response{MembraneID: id}
}

func (h *Handler) topology(req *request) response {
	if req.Membrane == nil {
		return badRequest("membrane block missing")
	}

	tp, ok := h.provider.(core.TopologyProvider)
	if !ok {
		return response{Code: codeNoSys, Error: "provider does not track topology"}
	}

	info, err := tp.MembraneTopology(
		core.ProviderRef(req.Ref), req.Membrane.MembraneID)
	if err != nil {
		return failure(err)
	}

	return response{Topology: &topologyBlock{
		ID:       info.ID,
		ParentID: info.ParentID,
		Children: info.Children,
	}}
}

func (h *Handler) enableAccel(req *request) response {
	if req.Accel == nil {
		return badRequest("accel block missing")
	}

	ap, ok := h.provider.(core.AccelProvider)
	if !ok {
		return response{Code: codeNoSys, Error: "provider has no acceleration support"}
	}

	err := ap.EnableAcceleration(core.ProviderRef(req.Ref),
		core.AccelType(req.Accel.Type), req.Accel.DeviceID)
	if err != nil {
		return failure(err)
	}

	return response{}
}

func (h *Handler) accelDevices(*request) response {
	ap, ok := h.provider.(core.AccelProvider)
	if !ok {
		return response{Code: codeNoSys, Error: "provider has no acceleration support"}
	}

	devices, err := ap.AccelDevices()
	if err != nil {
		return failure(err)
	}

	blocks := make([]deviceBlock, 0, len(devices))
	for _, d := range devices {
		blocks = append(blocks, deviceBlock{
			ID:          d.ID,
			Type:        uint32(d.Type),
			Name:        d.Name,
			MemoryBytes: d.MemoryBytes,
			Available:   d.Available,
		})
	}

	return response{Devices: blocks}
}

// failure encodes a provider error, passing its code through verbatim. A
// zero code would alias success, so unclassified failures report -1.
func failure(err error) response {
	code := -1
	var pe *core.ProviderError
	if errors.As(err, &pe) && pe.Code != 0 {
		code = pe.Code
	}

	return response{Code: code, Error: err.Error()}
}

func badRequest(msg string) response {
	return response{Code: codeBadRequest, Error: msg}
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
