// Package bseries computes B-series rooted-tree coefficients for DTESN
// instances. Tree populations are dense index sets whose cardinality is
// fixed by A000081; every operation validates its buffers against the
// enumeration before any work happens.
package bseries

import (
	"fmt"
	"math"

	"github.com/sarchlab/dtesn/core"
	"github.com/sarchlab/dtesn/oeis"
	"github.com/sarchlab/dtesn/registry"
)

// MaxCoefficients caps the coefficient vector length accepted by the
// computation entry points.
const MaxCoefficients = 1000

// An Engine computes B-series coefficients through a client. The full
// computation is delegated to the compute provider; structural queries and
// the per-tree helpers run locally.
type Engine struct {
	client *registry.Client
}

// NewEngine creates a B-series engine bound to a client.
func NewEngine(c *registry.Client) *Engine {
	return &Engine{client: c}
}

func validateOrderStatic(order uint32) error {
	if order < 1 || int(order) >= oeis.TableLen() {
		return fmt.Errorf("%w: order %d outside [1, %d]",
			core.ErrInvalidOrder, order, oeis.TableLen()-1)
	}

	return nil
}

func validateComputeArgs(order uint32, coefficients, result []float64) error {
	if order < 1 || order > core.MaxOrder {
		return fmt.Errorf("%w: order %d outside [1, %d]",
			core.ErrInvalidOrder, order, core.MaxOrder)
	}

	if len(coefficients) == 0 {
		return fmt.Errorf("%w: empty coefficient vector", core.ErrInvalidArgument)
	}

	if len(coefficients) > MaxCoefficients {
		return fmt.Errorf("%w: %d coefficients exceed the %d cap",
			core.ErrInvalidArgument, len(coefficients), MaxCoefficients)
	}

	if len(result) == 0 {
		return fmt.Errorf("%w: empty result buffer", core.ErrInvalidArgument)
	}

	expected, err := oeis.CountFor(order)
	if err != nil {
		return fmt.Errorf("%w: order %d outside enumeration table",
			core.ErrInvalidOrder, order)
	}

	if uint32(len(result)) < expected {
		return fmt.Errorf("%w: result buffer holds %d entries, order %d needs %d",
			core.ErrInvalidArgument, len(result), order, expected)
	}

	return nil
}

// Compute fills result with the B-series coefficients of every rooted tree
// at the given order. The result buffer must hold at least A000081(order)
// entries; the numeric work is the provider's.
func (e *Engine) Compute(h core.Handle, order uint32,
	coefficients, result []float64) error {
	start := e.client.BeginCall("bseries_compute")
	err := e.compute(h, order, coefficients, result)
	e.client.EndCall("bseries_compute", start, err)

	return err
}

func (e *Engine) compute(h core.Handle, order uint32,
	coefficients, result []float64) error {
	inst, err := e.client.Lookup(h)
	if err != nil {
		return err
	}

	if err := validateComputeArgs(order, coefficients, result); err != nil {
		return err
	}

	if order > inst.Params.MaxOrder {
		return fmt.Errorf("%w: order %d exceeds instance max order %d",
			core.ErrInvalidOrder, order, inst.Params.MaxOrder)
	}

	expected, _ := oeis.CountFor(order)
	spec := core.BSeriesSpec{
		Order:        order,
		Coefficients: coefficients,
		TreeCount:    expected,
	}

	if err := e.client.Provider().BSeriesCompute(inst.Ref, spec, result); err != nil {
		return core.WrapProviderErr("bseries_compute", err)
	}

	return nil
}

// ComputeTrees evaluates the per-tree coefficient for an explicit list of
// tree ids. The id list must cover the full population: its length must
// equal A000081(order), and every id must index into that population.
func (e *Engine) ComputeTrees(h core.Handle, order uint32,
	coefficients []float64, treeIDs []uint32, results []float64) error {
	start := e.client.BeginCall("bseries_compute_trees")
	err := e.computeTrees(h, order, coefficients, treeIDs, results)
	e.client.EndCall("bseries_compute_trees", start, err)

	return err
}

func (e *Engine) computeTrees(h core.Handle, order uint32,
	coefficients []float64, treeIDs []uint32, results []float64) error {
	if _, err := e.client.Lookup(h); err != nil {
		return err
	}

	if len(treeIDs) == 0 {
		return fmt.Errorf("%w: empty tree id list", core.ErrInvalidArgument)
	}

	if err := validateComputeArgs(order, coefficients, results); err != nil {
		return err
	}

	if err := oeis.Validate(order, uint32(len(treeIDs))); err != nil {
		if expected, cErr := oeis.CountFor(order); cErr == nil {
			return fmt.Errorf("%w: order %d expects %d tree ids, got %d",
				core.ErrOEISViolation, order, expected, len(treeIDs))
		}

		return fmt.Errorf("%w: order %d outside enumeration table",
			core.ErrInvalidOrder, order)
	}

	treeCount := uint32(len(treeIDs))
	if uint32(len(results)) < treeCount {
		return fmt.Errorf("%w: results buffer holds %d entries, need %d",
			core.ErrInvalidArgument, len(results), treeCount)
	}

	for i, id := range treeIDs {
		if id >= treeCount {
			return fmt.Errorf("%w: tree id %d outside population of %d",
				core.ErrInvalidArgument, id, treeCount)
		}

		results[i] = treeCoefficient(id, coefficients, order)
	}

	return nil
}

// treeCoefficient is the per-tree weighting. The scheme is a simplified
// stand-in pending real rooted-tree arithmetic; only its determinism and
// bounds are contractual.
func treeCoefficient(treeID uint32, coefficients []float64, order uint32) float64 {
	weight := 1.0 / (float64(treeID) + 1.0)

	var sum float64
	for i := uint32(0); i < order && i < 10; i++ {
		c := coefficients[int(i)%len(coefficients)]
		sum += c * weight * math.Pow(2.0, float64(i))
	}

	return sum
}

// TreeCount returns the size of the rooted-tree population at an order.
func (e *Engine) TreeCount(order uint32) (uint32, error) {
	start := e.client.BeginCall("bseries_get_tree_count")
	count, err := e.treeCount(order)
	e.client.EndCall("bseries_get_tree_count", start, err)

	return count, err
}

func (e *Engine) treeCount(order uint32) (uint32, error) {
	if err := validateOrderStatic(order); err != nil {
		return 0, err
	}

	count, _ := oeis.CountFor(order)

	return count, nil
}

// EnumerateTrees returns the dense id list 0..count-1 for an order.
// maxTrees caps the caller's capacity and must cover the full population.
func (e *Engine) EnumerateTrees(order, maxTrees uint32) ([]uint32, error) {
	start := e.client.BeginCall("bseries_enumerate_trees")
	ids, err := e.enumerateTrees(order, maxTrees)
	e.client.EndCall("bseries_enumerate_trees", start, err)

	return ids, err
}

func (e *Engine) enumerateTrees(order, maxTrees uint32) ([]uint32, error) {
	if err := validateOrderStatic(order); err != nil {
		return nil, err
	}

	count, _ := oeis.CountFor(order)
	if maxTrees < count {
		return nil, fmt.Errorf("%w: capacity %d below population of %d",
			core.ErrInvalidArgument, maxTrees, count)
	}

	ids := make([]uint32, count)
	for i := range ids {
		ids[i] = uint32(i)
	}

	return ids, nil
}

// TreeDepth returns the depth of one tree in the population.
func (e *Engine) TreeDepth(treeID, order uint32) (uint32, error) {
	start := e.client.BeginCall("bseries_get_tree_depth")
	depth, err := e.treeDepth(treeID, order)
	e.client.EndCall("bseries_get_tree_depth", start, err)

	return depth, err
}

func (e *Engine) treeDepth(treeID, order uint32) (uint32, error) {
	if err := validateTreeID(treeID, order); err != nil {
		return 0, err
	}

	return (treeID % order) + 1, nil
}

// TreeSymmetry returns the symmetry factor of one tree in the population.
func (e *Engine) TreeSymmetry(treeID, order uint32) (uint32, error) {
	start := e.client.BeginCall("bseries_get_tree_symmetry")
	symmetry, err := e.treeSymmetry(treeID, order)
	e.client.EndCall("bseries_get_tree_symmetry", start, err)

	return symmetry, err
}

func (e *Engine) treeSymmetry(treeID, order uint32) (uint32, error) {
	if err := validateTreeID(treeID, order); err != nil {
		return 0, err
	}

	if treeID == 0 {
		return 1, nil
	}

	return (treeID % 4) + 1, nil
}

func validateTreeID(treeID, order uint32) error {
	if err := validateOrderStatic(order); err != nil {
		return err
	}

	count, _ := oeis.CountFor(order)
	if treeID >= count {
		return fmt.Errorf("%w: tree id %d outside population of %d",
			core.ErrInvalidArgument, treeID, count)
	}

	return nil
}

// Compose combines two B-series into one of order order1+order2. The
// result buffer must hold the composed order's full population.
func (e *Engine) Compose(h core.Handle, order1, order2 uint32,
	coeffs1, coeffs2, result []float64) error {
	start := e.client.BeginCall("bseries_compose")
	err := e.compose(h, order1, order2, coeffs1, coeffs2, result)
	e.client.EndCall("bseries_compose", start, err)

	return err
}

func (e *Engine) compose(h core.Handle, order1, order2 uint32,
	coeffs1, coeffs2, result []float64) error {
	if _, err := e.client.Lookup(h); err != nil {
		return err
	}

	if len(coeffs1) == 0 || len(coeffs2) == 0 {
		return fmt.Errorf("%w: empty coefficient vector", core.ErrInvalidArgument)
	}

	if order1 < 1 || order1 > core.MaxOrder || order2 < 1 || order2 > core.MaxOrder {
		return fmt.Errorf("%w: orders %d and %d must each be within [1, %d]",
			core.ErrInvalidOrder, order1, order2, core.MaxOrder)
	}

	composed := order1 + order2
	if composed > core.MaxOrder {
		return fmt.Errorf("%w: composition order %d exceeds %d",
			core.ErrInvalidOrder, composed, core.MaxOrder)
	}

	expected, _ := oeis.CountFor(composed)
	if uint32(len(result)) < expected {
		return fmt.Errorf("%w: result buffer holds %d entries, order %d needs %d",
			core.ErrInvalidArgument, len(result), composed, expected)
	}

	// Weighted-sum stand-in for the full composition law.
	for i := uint32(0); i < expected; i++ {
		var c1, c2 float64
		if int(i) < len(coeffs1) {
			c1 = coeffs1[i]
		}
		if int(i) < len(coeffs2) {
			c2 = coeffs2[i]
		}

		result[i] = c1 + c2*0.5
	}

	return nil
}

// Derivative produces the order-1 derivative series. The order must be at
// least 2 and the result buffer must hold A000081(order-1) entries.
func (e *Engine) Derivative(h core.Handle, order uint32,
	coefficients, result []float64) error {
	start := e.client.BeginCall("bseries_derivative")
	err := e.derivative(h, order, coefficients, result)
	e.client.EndCall("bseries_derivative", start, err)

	return err
}

func (e *Engine) derivative(h core.Handle, order uint32,
	coefficients, result []float64) error {
	if _, err := e.client.Lookup(h); err != nil {
		return err
	}

	if len(coefficients) == 0 {
		return fmt.Errorf("%w: empty coefficient vector", core.ErrInvalidArgument)
	}

	if order < 2 || order > core.MaxOrder {
		return fmt.Errorf("%w: derivative needs order within [2, %d], got %d",
			core.ErrInvalidOrder, core.MaxOrder, order)
	}

	expected, _ := oeis.CountFor(order - 1)
	if uint32(len(result)) < expected {
		return fmt.Errorf("%w: result buffer holds %d entries, order %d needs %d",
			core.ErrInvalidArgument, len(result), order-1, expected)
	}

	for i := uint32(0); i < expected; i++ {
		if int(i+1) < len(coefficients) {
			result[i] = coefficients[i+1] * float64(i+1)
		} else {
			result[i] = 0
		}
	}

	return nil
}

// ValidateOEIS reports whether an order's tree population can comply with
// the enumeration for this instance. Orders beyond the table are reported
// as non-compliant rather than failing.
func (e *Engine) ValidateOEIS(h core.Handle, order uint32) (bool, error) {
	start := e.client.BeginCall("bseries_validate_oeis")
	ok, err := e.validateOEIS(h, order)
	e.client.EndCall("bseries_validate_oeis", start, err)

	return ok, err
}

func (e *Engine) validateOEIS(h core.Handle, order uint32) (bool, error) {
	inst, err := e.client.Lookup(h)
	if err != nil {
		return false, err
	}

	if order < 1 || order > inst.Params.MaxOrder {
		return false, fmt.Errorf("%w: order %d outside [1, %d]",
			core.ErrInvalidOrder, order, inst.Params.MaxOrder)
	}

	if int(order) >= oeis.TableLen() {
		return false, nil
	}

	return true, nil
}
