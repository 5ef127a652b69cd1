// Package httpprovider reaches a DTESN back-end served by a co-process
// over HTTP. The wire protocol is one POST endpoint carrying an operation
// code plus a parameter block, matching the provider contract one to one:
// Handler is the serving side, Provider the calling side, so a single
// package owns both ends of the protocol.
package httpprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sarchlab/dtesn/core"
)

// DefaultAddr is where a locally running dtesnd listens.
const DefaultAddr = "http://localhost:3001"

// Builder can be used to build an HTTP provider.
type Builder struct {
	addr   string
	client *http.Client
}

// MakeBuilder creates a builder targeting the default daemon address.
func MakeBuilder() Builder {
	return Builder{
		addr:   DefaultAddr,
		client: http.DefaultClient,
	}
}

// WithAddr sets the daemon base address, such as "http://dtesn-host:3001".
func (b Builder) WithAddr(addr string) Builder {
	b.addr = strings.TrimSuffix(addr, "/")
	return b
}

// WithHTTPClient replaces the underlying HTTP client. Per-call deadlines
// are still applied through the request context.
func (b Builder) WithHTTPClient(c *http.Client) Builder {
	b.client = c
	return b
}

// Build builds the provider.
func (b Builder) Build() *Provider {
	return &Provider{
		addr:   b.addr,
		client: b.client,
	}
}

// A Provider forwards every operation to a dtesnd co-process. Evolve
// honors the per-call timeout from its spec; every other operation runs
// under the default timeout. Failures reported by the remote provider
// come back as ProviderError with the original code; transport failures
// are plain errors.
type Provider struct {
	addr   string
	client *http.Client
}

var (
	_ core.Provider         = (*Provider)(nil)
	_ core.TopologyProvider = (*Provider)(nil)
	_ core.AccelProvider    = (*Provider)(nil)
)

// CreateInstance allocates an instance on the daemon.
func (p *Provider) CreateInstance(params core.CreateParams) (core.ProviderRef, error) {
	req := &request{Op: opCreate, Create: &createBlock{
		Depth:         params.Depth,
		MaxOrder:      params.MaxOrder,
		NeuronCount:   params.NeuronCount,
		MembraneCount: params.MembraneCount,
		InputDim:      params.InputDim,
		OutputDim:     params.OutputDim,
		Flags:         uint32(params.Flags),
	}}

	rsp, err := p.do(req, 0)
	if err != nil {
		return 0, err
	}

	return core.ProviderRef(rsp.Ref), nil
}

// DestroyInstance releases an instance on the daemon.
func (p *Provider) DestroyInstance(ref core.ProviderRef) error {
	_, err := p.do(&request{Op: opDestroy, Ref: uint64(ref)}, 0)
	return err
}

// Evolve advances an instance. The requested timeout bounds the whole HTTP
// exchange.
func (p *Provider) Evolve(ref core.ProviderRef, spec core.EvolveSpec) error {
	req := &request{Op: opEvolve, Ref: uint64(ref), Evolve: &evolveBlock{
		Input:     spec.Input,
		Steps:     spec.Steps,
		Mode:      uint32(spec.Mode),
		TimeoutNs: spec.Timeout.Nanoseconds(),
	}}

	_, err := p.do(req, spec.Timeout)
	return err
}

// StateInfo fetches an instance snapshot.
func (p *Provider) StateInfo(ref core.ProviderRef) (core.StateInfo, error) {
	rsp, err := p.do(&request{Op: opGetState, Ref: uint64(ref)}, 0)
	if err != nil {
		return core.StateInfo{}, err
	}

	if rsp.State == nil {
		return core.StateInfo{}, transportErrf("state block missing in response")
	}

	s := rsp.State
	return core.StateInfo{
		Depth:            s.Depth,
		MaxOrder:         s.MaxOrder,
		NeuronCount:      s.NeuronCount,
		MembraneCount:    s.MembraneCount,
		InputDim:         s.InputDim,
		OutputDim:        s.OutputDim,
		TotalEvolutions:  s.TotalEvolutions,
		MemoryUsageBytes: s.MemoryUsageBytes,
	}, nil
}

// BSeriesCompute runs a coefficient computation and fills result.
func (p *Provider) BSeriesCompute(
	ref core.ProviderRef,
	spec core.BSeriesSpec,
	result []float64,
) error {
	req := &request{Op: opBSeriesCompute, Ref: uint64(ref), BSeries: &bseriesBlock{
		Order:        spec.Order,
		Coefficients: spec.Coefficients,
		TreeCount:    spec.TreeCount,
		ResultLen:    len(result),
	}}

	rsp, err := p.do(req, 0)
	if err != nil {
		return err
	}

	if len(rsp.Result) != len(result) {
		return transportErrf("result length %d, want %d",
			len(rsp.Result), len(result))
	}
	copy(result, rsp.Result)

	return nil
}

// ESN runs one reservoir operation. State and output mutations made by
// the daemon are copied back into the caller's buffers.
func (p *Provider) ESN(ref core.ProviderRef, op core.ESNOp) error {
	req := &request{Op: opESN, Ref: uint64(ref), ESN: &esnBlock{
		Kind:           int(op.Kind),
		Input:          op.Input,
		State:          op.State,
		Output:         op.Output,
		Samples:        op.Samples,
		InputDim:       op.InputDim,
		OutputDim:      op.OutputDim,
		ReservoirSize:  op.ReservoirSize,
		States:         op.States,
		Targets:        op.Targets,
		LearningRate:   op.LearningRate,
		Regularization: op.Regularization,
		SpectralRadius: op.SpectralRadius,
		InputScaling:   op.InputScaling,
		LeakRate:       op.LeakRate,
	}}

	rsp, err := p.do(req, 0)
	if err != nil {
		return err
	}

	if op.State != nil {
		copy(op.State, rsp.ESNState)
	}
	if op.Output != nil {
		copy(op.Output, rsp.ESNOutput)
	}

	return nil
}

// MembraneOp runs one P-system operation and returns the daemon's
// membrane id result.
func (p *Provider) MembraneOp(
	ref core.ProviderRef,
	op core.MembraneOp,
) (uint32, error) {
	req := &request{Op: opMembrane, Ref: uint64(ref), Membrane: &membraneBlock{
		Kind:       int(op.Kind),
		MembraneID: op.MembraneID,
		ParentID:   op.ParentID,
		Steps:      op.Steps,
		Data:       op.Data,
	}}

	rsp, err := p.do(req, 0)
	if err != nil {
		return 0, err
	}

	return rsp.MembraneID, nil
}

// MembraneTopology reports the daemon's parent/child relations for one
// membrane.
func (p *Provider) MembraneTopology(
	ref core.ProviderRef,
	membraneID uint32,
) (core.MembraneInfo, error) {
	req := &request{Op: opMembraneTopology, Ref: uint64(ref),
		Membrane: &membraneBlock{MembraneID: membraneID}}

	rsp, err := p.do(req, 0)
	if err != nil {
		return core.MembraneInfo{}, err
	}

	if rsp.Topology == nil {
		return core.MembraneInfo{}, transportErrf("topology block missing in response")
	}

	return core.MembraneInfo{
		ID:       rsp.Topology.ID,
		ParentID: rsp.Topology.ParentID,
		Children: rsp.Topology.Children,
	}, nil
}

// EnableAcceleration offloads an instance to a daemon-side device.
func (p *Provider) EnableAcceleration(
	ref core.ProviderRef,
	accelType core.AccelType,
	deviceID uint32,
) error {
	req := &request{Op: opEnableAccel, Ref: uint64(ref), Accel: &accelBlock{
		Type:     uint32(accelType),
		DeviceID: deviceID,
	}}

	_, err := p.do(req, 0)
	return err
}

// AccelDevices lists the daemon's acceleration devices.
func (p *Provider) AccelDevices() ([]core.AccelDevice, error) {
	rsp, err := p.do(&request{Op: opAccelDevices}, 0)
	if err != nil {
		return nil, err
	}

	devices := make([]core.AccelDevice, 0, len(rsp.Devices))
	for _, d := range rsp.Devices {
		devices = append(devices, core.AccelDevice{
			ID:          d.ID,
			Type:        core.AccelType(d.Type),
			Name:        d.Name,
			MemoryBytes: d.MemoryBytes,
			Available:   d.Available,
		})
	}

	return devices, nil
}

// do runs one request/response exchange. A non-positive timeout applies
// the default.
func (p *Provider) do(req *request, timeout time.Duration) (*response, error) {
	if timeout <= 0 {
		timeout = core.DefaultTimeout
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, transportErrf("encode %s: %v", req.Op, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodPost, p.addr+"/api/op", bytes.NewReader(body))
	if err != nil {
		return nil, transportErrf("build %s request: %v", req.Op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpRsp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, transportErrf("%s: %v", req.Op, err)
	}
	defer httpRsp.Body.Close()

	if httpRsp.StatusCode != http.StatusOK {
		return nil, transportErrf("%s: unexpected status %s", req.Op, httpRsp.Status)
	}

	rsp := &response{}
	err = json.NewDecoder(httpRsp.Body).Decode(rsp)
	if err != nil {
		return nil, transportErrf("decode %s response: %v", req.Op, err)
	}

	if rsp.Code != 0 {
		return nil, &core.ProviderError{
			Op:   req.Op,
			Code: rsp.Code,
			Err:  errors.New(rsp.Error),
		}
	}

	return rsp, nil
}

func transportErrf(format string, args ...any) error {
	return fmt.Errorf("provider transport: "+format, args...)
}
