package core_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sarchlab/dtesn/core"
	"github.com/stretchr/testify/assert"
)

func TestStrerror_Taxonomy(t *testing.T) {
	cases := map[string]struct {
		err  error
		want string
	}{
		"success":         {nil, "Success"},
		"not initialized": {core.ErrNotInitialized, "Client not initialized"},
		"already":         {core.ErrAlreadyInitialized, "Client already initialized"},
		"depth":           {core.ErrInvalidDepth, "Invalid tree depth"},
		"order":           {core.ErrInvalidOrder, "Invalid B-series order"},
		"oeis":            {core.ErrOEISViolation, "OEIS A000081 compliance violation"},
		"capacity":        {core.ErrCapacity, "Capacity exceeded"},
		"handle":          {core.ErrInvalidHandle, "Invalid instance handle"},
		"membrane":        {core.ErrMembrane, "P-system membrane operation error"},
		"oom":             {core.ErrOutOfMemory, "Out of memory"},
		"argument":        {core.ErrInvalidArgument, "Invalid argument"},
		"unknown":         {errors.New("something else"), "Unknown error"},
	}

	for name, c := range cases {
		assert.Equal(t, c.want, core.Strerror(c.err), name)
	}
}

func TestStrerror_WrappedErrorsStillMap(t *testing.T) {
	err := fmt.Errorf("%w: depth 0 outside [1, 16]", core.ErrInvalidDepth)
	assert.Equal(t, "Invalid tree depth", core.Strerror(err))
}

func TestStrerror_ProviderCodePassesThrough(t *testing.T) {
	err := &core.ProviderError{Op: "evolve", Code: -22}
	assert.Equal(t, "Compute provider failure (code -22)", core.Strerror(err))
}

func TestProviderError_MatchesSentinel(t *testing.T) {
	err := &core.ProviderError{Op: "create", Code: -5, Err: errors.New("backend down")}

	assert.ErrorIs(t, err, core.ErrProvider)
	assert.Contains(t, err.Error(), "create")
	assert.Contains(t, err.Error(), "-5")
}

func TestWrapProviderErr_KeepsOriginalCode(t *testing.T) {
	inner := &core.ProviderError{Op: "esn", Code: -17}
	outer := core.WrapProviderErr("train", inner)

	var pe *core.ProviderError
	assert.ErrorAs(t, outer, &pe)
	assert.Equal(t, -17, pe.Code)
	assert.Equal(t, "train", pe.Op)
}

func TestWrapProviderErr_NilStaysNil(t *testing.T) {
	assert.NoError(t, core.WrapProviderErr("noop", nil))
}

func TestWrapProviderErr_PlainErrorGetsGenericCode(t *testing.T) {
	outer := core.WrapProviderErr("evolve", errors.New("connection reset"))

	var pe *core.ProviderError
	assert.ErrorAs(t, outer, &pe)
	assert.Equal(t, -1, pe.Code)
	assert.ErrorIs(t, outer, core.ErrProvider)
}
