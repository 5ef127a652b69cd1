package memprovider

import (
	"sort"

	"github.com/sarchlab/dtesn/core"
)

// membraneNode is one compartment in the provider-side hierarchy. Parent 0
// marks the root.
type membraneNode struct {
	id       uint32
	parent   uint32
	children []uint32
	ruleRuns uint64
}

// initMembranes builds the starting population: membrane 1 is the root and
// every other initial membrane is its direct child.
func (i *instance) initMembranes(count uint32) {
	for id := uint32(1); id <= count; id++ {
		node := &membraneNode{id: id}
		if id > 1 {
			node.parent = 1
			i.membranes[1].children = append(i.membranes[1].children, id)
		}

		i.membranes[id] = node
	}

	i.nextMembrane = count
}

// stepMembranes runs one transition round over the whole population.
func (i *instance) stepMembranes() {
	for _, node := range i.membranes {
		node.ruleRuns++
	}
}

func (i *instance) membrane(op string, id uint32) (*membraneNode, error) {
	node, ok := i.membranes[id]
	if !ok {
		return nil, providerErr(op, codeNoEnt, "unknown membrane %d", id)
	}

	return node, nil
}

func (i *instance) createMembrane(parentID uint32) (uint32, error) {
	if parentID == 0 && len(i.membranes) > 0 {
		// Attaching under the implicit root.
		parentID = 1
	}

	if parentID > 0 {
		if _, err := i.membrane("membrane_create", parentID); err != nil {
			return 0, err
		}
	}

	i.nextMembrane++
	id := i.nextMembrane

	i.membranes[id] = &membraneNode{id: id, parent: parentID}
	if parentID > 0 {
		parent := i.membranes[parentID]
		parent.children = append(parent.children, id)
	}

	return id, nil
}

func (i *instance) dissolveMembrane(id uint32) error {
	node, err := i.membrane("membrane_dissolve", id)
	if err != nil {
		return err
	}

	if node.parent == 0 {
		return providerErr("membrane_dissolve", codeInval,
			"membrane %d is the root", id)
	}

	// Children survive dissolution and move up to the dissolved membrane's
	// parent.
	parent := i.membranes[node.parent]
	parent.children = removeID(parent.children, id)

	for _, child := range node.children {
		i.membranes[child].parent = node.parent
		parent.children = append(parent.children, child)
	}

	delete(i.membranes, id)

	return nil
}

func (i *instance) divideMembrane(id uint32) (uint32, error) {
	node, err := i.membrane("membrane_divide", id)
	if err != nil {
		return 0, err
	}

	// The divided membrane's sibling shares its parent; dividing the root
	// produces a child of the root instead of a second root.
	parentID := node.parent
	if parentID == 0 {
		parentID = node.id
	}

	i.nextMembrane++
	newID := i.nextMembrane

	i.membranes[newID] = &membraneNode{id: newID, parent: parentID}
	parent := i.membranes[parentID]
	parent.children = append(parent.children, newID)

	return newID, nil
}

func removeID(ids []uint32, id uint32) []uint32 {
	for n, candidate := range ids {
		if candidate == id {
			return append(ids[:n], ids[n+1:]...)
		}
	}

	return ids
}

// MembraneOp dispatches one P-system request. Create and divide return the
// new membrane id.
func (p *Provider) MembraneOp(ref core.ProviderRef, op core.MembraneOp) (uint32, error) {
	p.Lock()
	defer p.Unlock()

	inst, err := p.lookup("membrane_op", ref)
	if err != nil {
		return 0, err
	}

	switch op.Kind {
	case core.MembraneCreate:
		return inst.createMembrane(op.ParentID)

	case core.MembraneEvolve:
		node, err := inst.membrane("membrane_evolve", op.MembraneID)
		if err != nil {
			return 0, err
		}

		node.ruleRuns += uint64(op.Steps)

		return 0, nil

	case core.MembraneCommunicate:
		if _, err := inst.membrane("membrane_communicate", op.MembraneID); err != nil {
			return 0, err
		}

		if _, err := inst.membrane("membrane_communicate", op.ParentID); err != nil {
			return 0, err
		}

		if len(op.Data) == 0 {
			return 0, providerErr("membrane_communicate", codeInval, "empty message")
		}

		return 0, nil

	case core.MembraneDissolve:
		return 0, inst.dissolveMembrane(op.MembraneID)

	case core.MembraneDivide:
		return inst.divideMembrane(op.MembraneID)
	}

	return 0, providerErr("membrane_op", codeInval, "unknown op kind %d", op.Kind)
}

// MembraneTopology reports one membrane's real parent and children.
func (p *Provider) MembraneTopology(ref core.ProviderRef,
	membraneID uint32) (core.MembraneInfo, error) {
	p.Lock()
	defer p.Unlock()

	inst, err := p.lookup("membrane_topology", ref)
	if err != nil {
		return core.MembraneInfo{}, err
	}

	node, err := inst.membrane("membrane_topology", membraneID)
	if err != nil {
		return core.MembraneInfo{}, err
	}

	children := make([]uint32, len(node.children))
	copy(children, node.children)
	sort.Slice(children, func(a, b int) bool { return children[a] < children[b] })

	return core.MembraneInfo{
		ID:       node.id,
		ParentID: node.parent,
		Children: children,
	}, nil
}
