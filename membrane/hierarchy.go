// Package membrane manages the P-system compartments of DTESN instances:
// creation, evolution, division, dissolution, and message passing. Membrane
// growth is bounded by A000081 at the instance's configured depth.
package membrane

import (
	"fmt"

	"github.com/sarchlab/dtesn/core"
	"github.com/sarchlab/dtesn/oeis"
	"github.com/sarchlab/dtesn/registry"
)

// TopologyInfo describes one membrane's position in the hierarchy. When the
// provider does not report topology, the result is a flat approximation
// with every membrane parented to the root, and Approximate is set.
type TopologyInfo struct {
	MembraneID  uint32
	ParentID    uint32
	ChildCount  uint32
	Children    []uint32
	Approximate bool
}

// A Hierarchy drives the membrane subsystem of DTESN instances through a
// client. Operations that change the membrane count hold the instance's own
// lock from validation through provider call to count update, so concurrent
// growth cannot overshoot the depth bound.
type Hierarchy struct {
	client *registry.Client
}

// NewHierarchy creates a membrane hierarchy engine bound to a client.
func NewHierarchy(c *registry.Client) *Hierarchy {
	return &Hierarchy{client: c}
}

// validateID checks that an id can name a live membrane. Ids are dense and
// start at 1; id 0 is the root context marker and never a membrane itself.
func validateID(id, liveCount uint32) error {
	if id < 1 || id > liveCount {
		return fmt.Errorf("%w: membrane id %d outside live population of %d",
			core.ErrMembrane, id, liveCount)
	}

	return nil
}

// checkGrowth validates that growing to newCount stays within the membrane
// cap and the A000081 bound for the instance's depth.
func checkGrowth(depth, newCount uint32) error {
	if newCount > core.MaxMembranes {
		return fmt.Errorf("%w: %d membranes exceed the %d limit",
			core.ErrCapacity, newCount, core.MaxMembranes)
	}

	bound, err := oeis.CountFor(depth)
	if err != nil {
		return fmt.Errorf("%w: depth %d outside enumeration table",
			core.ErrInvalidDepth, depth)
	}

	if newCount > bound {
		return fmt.Errorf("%w: depth %d admits %d membranes, growth would reach %d",
			core.ErrOEISViolation, depth, bound, newCount)
	}

	return nil
}

// Create attaches a new membrane under parentID and returns the
// provider-assigned id. Parent id 0 attaches under the implicit root; a
// nonzero parent must name a live membrane.
func (m *Hierarchy) Create(h core.Handle, parentID uint32) (uint32, error) {
	start := m.client.BeginCall("membrane_create")
	id, err := m.create(h, parentID)
	m.client.EndCall("membrane_create", start, err)

	return id, err
}

func (m *Hierarchy) create(h core.Handle, parentID uint32) (uint32, error) {
	inst, err := m.client.Lookup(h)
	if err != nil {
		return 0, err
	}

	inst.Lock()
	defer inst.Unlock()

	if parentID > 0 {
		if err := validateID(parentID, inst.Membranes); err != nil {
			return 0, err
		}
	}

	if err := checkGrowth(inst.Params.Depth, inst.Membranes+1); err != nil {
		return 0, err
	}

	op := core.MembraneOp{Kind: core.MembraneCreate, ParentID: parentID, Steps: 1}
	id, err := m.client.Provider().MembraneOp(inst.Ref, op)
	if err != nil {
		return 0, core.WrapProviderErr("membrane_create", err)
	}

	inst.Membranes++

	return id, nil
}

// Evolve runs a membrane's rules for the given number of steps. The data
// payload is passed through to the provider opaque.
func (m *Hierarchy) Evolve(h core.Handle, membraneID, steps uint32, data []byte) error {
	start := m.client.BeginCall("membrane_evolve")
	err := m.evolve(h, membraneID, steps, data)
	m.client.EndCall("membrane_evolve", start, err)

	return err
}

func (m *Hierarchy) evolve(h core.Handle, membraneID, steps uint32, data []byte) error {
	inst, err := m.client.Lookup(h)
	if err != nil {
		return err
	}

	if steps == 0 {
		return fmt.Errorf("%w: evolve requires at least one step",
			core.ErrInvalidArgument)
	}

	if err := validateID(membraneID, inst.MembraneCount()); err != nil {
		return err
	}

	op := core.MembraneOp{
		Kind:       core.MembraneEvolve,
		MembraneID: membraneID,
		Steps:      steps,
		Data:       data,
	}

	if _, err := m.client.Provider().MembraneOp(inst.Ref, op); err != nil {
		return core.WrapProviderErr("membrane_evolve", err)
	}

	return nil
}

// Communicate sends a message from one membrane to another as a single
// provider operation.
func (m *Hierarchy) Communicate(h core.Handle, sourceID, targetID uint32,
	message []byte) error {
	start := m.client.BeginCall("membrane_communicate")
	err := m.communicate(h, sourceID, targetID, message)
	m.client.EndCall("membrane_communicate", start, err)

	return err
}

func (m *Hierarchy) communicate(h core.Handle, sourceID, targetID uint32,
	message []byte) error {
	inst, err := m.client.Lookup(h)
	if err != nil {
		return err
	}

	if len(message) == 0 {
		return fmt.Errorf("%w: empty message", core.ErrInvalidArgument)
	}

	if sourceID == targetID {
		return fmt.Errorf("%w: source and target are both membrane %d",
			core.ErrInvalidArgument, sourceID)
	}

	live := inst.MembraneCount()
	if err := validateID(sourceID, live); err != nil {
		return err
	}

	if err := validateID(targetID, live); err != nil {
		return err
	}

	op := core.MembraneOp{
		Kind:       core.MembraneCommunicate,
		MembraneID: sourceID,
		ParentID:   targetID,
		Steps:      1,
		Data:       message,
	}

	if _, err := m.client.Provider().MembraneOp(inst.Ref, op); err != nil {
		return core.WrapProviderErr("membrane_communicate", err)
	}

	return nil
}

// Dissolve removes a membrane. The root (id 1) can never be dissolved; the
// hierarchy always keeps its root.
func (m *Hierarchy) Dissolve(h core.Handle, membraneID uint32) error {
	start := m.client.BeginCall("membrane_dissolve")
	err := m.dissolve(h, membraneID)
	m.client.EndCall("membrane_dissolve", start, err)

	return err
}

func (m *Hierarchy) dissolve(h core.Handle, membraneID uint32) error {
	inst, err := m.client.Lookup(h)
	if err != nil {
		return err
	}

	inst.Lock()
	defer inst.Unlock()

	if err := validateID(membraneID, inst.Membranes); err != nil {
		return err
	}

	if membraneID <= 1 {
		return fmt.Errorf("%w: membrane %d is the root and cannot be dissolved",
			core.ErrMembrane, membraneID)
	}

	op := core.MembraneOp{Kind: core.MembraneDissolve, MembraneID: membraneID, Steps: 1}
	if _, err := m.client.Provider().MembraneOp(inst.Ref, op); err != nil {
		return core.WrapProviderErr("membrane_dissolve", err)
	}

	if inst.Membranes > 0 {
		inst.Membranes--
	}

	return nil
}

// Divide splits a membrane, producing a sibling, and returns the new id.
// Division grows the population and is bounded exactly like Create.
func (m *Hierarchy) Divide(h core.Handle, membraneID uint32) (uint32, error) {
	start := m.client.BeginCall("membrane_divide")
	id, err := m.divide(h, membraneID)
	m.client.EndCall("membrane_divide", start, err)

	return id, err
}

func (m *Hierarchy) divide(h core.Handle, membraneID uint32) (uint32, error) {
	inst, err := m.client.Lookup(h)
	if err != nil {
		return 0, err
	}

	inst.Lock()
	defer inst.Unlock()

	if err := validateID(membraneID, inst.Membranes); err != nil {
		return 0, err
	}

	if err := checkGrowth(inst.Params.Depth, inst.Membranes+1); err != nil {
		return 0, err
	}

	op := core.MembraneOp{Kind: core.MembraneDivide, MembraneID: membraneID, Steps: 1}
	id, err := m.client.Provider().MembraneOp(inst.Ref, op)
	if err != nil {
		return 0, core.WrapProviderErr("membrane_divide", err)
	}

	inst.Membranes++

	return id, nil
}

// Count returns the live membrane count of one instance.
func (m *Hierarchy) Count(h core.Handle) (uint32, error) {
	start := m.client.BeginCall("membrane_get_count")
	count, err := m.count(h)
	m.client.EndCall("membrane_get_count", start, err)

	return count, err
}

func (m *Hierarchy) count(h core.Handle) (uint32, error) {
	inst, err := m.client.Lookup(h)
	if err != nil {
		return 0, err
	}

	return inst.MembraneCount(), nil
}

// Topology reports one membrane's parent and children. Providers that track
// topology answer exactly; otherwise the result is the flat approximation
// in which the root parents every other membrane.
func (m *Hierarchy) Topology(h core.Handle, membraneID uint32) (TopologyInfo, error) {
	start := m.client.BeginCall("membrane_get_hierarchy")
	info, err := m.topology(h, membraneID)
	m.client.EndCall("membrane_get_hierarchy", start, err)

	return info, err
}

func (m *Hierarchy) topology(h core.Handle, membraneID uint32) (TopologyInfo, error) {
	inst, err := m.client.Lookup(h)
	if err != nil {
		return TopologyInfo{}, err
	}

	live := inst.MembraneCount()
	if err := validateID(membraneID, live); err != nil {
		return TopologyInfo{}, err
	}

	if tp, ok := m.client.Provider().(core.TopologyProvider); ok {
		mi, err := tp.MembraneTopology(inst.Ref, membraneID)
		if err != nil {
			return TopologyInfo{}, core.WrapProviderErr("membrane_get_hierarchy", err)
		}

		return TopologyInfo{
			MembraneID: mi.ID,
			ParentID:   mi.ParentID,
			ChildCount: uint32(len(mi.Children)),
			Children:   mi.Children,
		}, nil
	}

	info := TopologyInfo{MembraneID: membraneID, Approximate: true}
	if membraneID == 1 {
		info.ChildCount = live - 1
	} else {
		info.ParentID = 1
	}

	return info, nil
}

// ValidateOEIS reports whether the live membrane count matches A000081 at
// the instance's depth. Depths beyond the enumeration table are reported as
// non-compliant rather than failing.
func (m *Hierarchy) ValidateOEIS(h core.Handle) (bool, error) {
	start := m.client.BeginCall("membrane_validate_oeis")
	ok, err := m.validateOEIS(h)
	m.client.EndCall("membrane_validate_oeis", start, err)

	return ok, err
}

func (m *Hierarchy) validateOEIS(h core.Handle) (bool, error) {
	inst, err := m.client.Lookup(h)
	if err != nil {
		return false, err
	}

	want, err := oeis.CountFor(inst.Params.Depth)
	if err != nil {
		return false, nil
	}

	return inst.MembraneCount() == want, nil
}
