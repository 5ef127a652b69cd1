package registry

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gomock "go.uber.org/mock/gomock"

	"github.com/sarchlab/dtesn/core"
	"github.com/sarchlab/dtesn/perf"
)

type hookRecorder struct {
	ctxs []core.HookCtx
}

func (h *hookRecorder) Func(ctx core.HookCtx) {
	h.ctxs = append(h.ctxs, ctx)
}

func (h *hookRecorder) at(pos *core.HookPos) []core.HookCtx {
	var out []core.HookCtx
	for _, ctx := range h.ctxs {
		if ctx.Pos == pos {
			out = append(out, ctx)
		}
	}
	return out
}

var _ = Describe("Client", func() {
	var (
		mockCtrl *gomock.Controller
		provider *MockProvider
		client   *Client
		params   core.CreateParams
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		provider = NewMockProvider(mockCtrl)
		client = MakeBuilder().
			WithProvider(provider).
			WithMaxInstances(4).
			Build()
		params = core.CreateParams{
			Depth:         3,
			MaxOrder:      4,
			NeuronCount:   32,
			MembraneCount: 2,
			InputDim:      4,
			OutputDim:     2,
		}
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	Context("create", func() {
		It("should publish an instance on provider success", func() {
			provider.EXPECT().
				CreateInstance(params).
				Return(core.ProviderRef(7), nil)

			h, err := client.Create(params)

			Expect(err).ToNot(HaveOccurred())
			Expect(h.Valid()).To(BeTrue())
			Expect(h.ID).To(Equal(uint64(1)))

			inst, err := client.Lookup(h)
			Expect(err).ToNot(HaveOccurred())
			Expect(inst.Ref).To(Equal(core.ProviderRef(7)))
			Expect(inst.MembraneCount()).To(Equal(uint32(2)))
		})

		It("should reject bad parameters before reaching the provider", func() {
			bad := params
			bad.Depth = 0

			_, err := client.Create(bad)

			Expect(err).To(MatchError(core.ErrInvalidDepth))
		})

		It("should gate the membrane enumeration check on the flag", func() {
			okParams := params
			okParams.Depth = 1
			okParams.MembraneCount = 1
			okParams.Flags = core.CreateValidateOEIS
			provider.EXPECT().
				CreateInstance(okParams).
				Return(core.ProviderRef(1), nil)

			_, err := client.Create(okParams)
			Expect(err).ToNot(HaveOccurred())

			badParams := okParams
			badParams.MembraneCount = 2

			_, err = client.Create(badParams)
			Expect(err).To(MatchError(core.ErrOEISViolation))

			// Without the flag the same mismatch is accepted.
			badParams.Flags = 0
			provider.EXPECT().
				CreateInstance(badParams).
				Return(core.ProviderRef(2), nil)

			_, err = client.Create(badParams)
			Expect(err).ToNot(HaveOccurred())
		})

		It("should fail with a capacity error when the table is full", func() {
			provider.EXPECT().
				CreateInstance(params).
				Return(core.ProviderRef(1), nil).
				Times(4)

			for i := 0; i < 4; i++ {
				_, err := client.Create(params)
				Expect(err).ToNot(HaveOccurred())
			}

			_, err := client.Create(params)
			Expect(err).To(MatchError(core.ErrCapacity))
		})

		It("should reuse a slot freed by destroy", func() {
			provider.EXPECT().
				CreateInstance(params).
				Return(core.ProviderRef(1), nil).
				Times(5)
			provider.EXPECT().
				DestroyInstance(core.ProviderRef(1)).
				Return(nil)

			handles := make([]core.Handle, 4)
			for i := range handles {
				h, err := client.Create(params)
				Expect(err).ToNot(HaveOccurred())
				handles[i] = h
			}

			Expect(client.Destroy(handles[1])).To(Succeed())

			h, err := client.Create(params)
			Expect(err).ToNot(HaveOccurred())
			Expect(h.Slot).To(Equal(handles[1].Slot),
				"the lowest free slot wins")
			Expect(h.ID).ToNot(Equal(handles[1].ID))
		})

		It("should not consume a slot when the provider fails", func() {
			providerErr := &core.ProviderError{Op: "create", Code: -12}
			provider.EXPECT().
				CreateInstance(params).
				Return(core.ProviderRef(0), providerErr)

			_, err := client.Create(params)
			Expect(err).To(MatchError(core.ErrProvider))

			provider.EXPECT().
				CreateInstance(params).
				Return(core.ProviderRef(9), nil)

			h, err := client.Create(params)
			Expect(err).ToNot(HaveOccurred())
			Expect(h.Slot).To(Equal(0), "the failed create left slot 0 free")
		})
	})

	Context("destroy", func() {
		It("should reject unknown handles", func() {
			err := client.Destroy(core.Handle{Slot: 0, ID: 42})

			Expect(err).To(MatchError(core.ErrInvalidHandle))
		})

		It("should invalidate the handle even if the provider release fails", func() {
			provider.EXPECT().
				CreateInstance(params).
				Return(core.ProviderRef(3), nil)
			provider.EXPECT().
				DestroyInstance(core.ProviderRef(3)).
				Return(errors.New("backend gone"))

			h, err := client.Create(params)
			Expect(err).ToNot(HaveOccurred())

			err = client.Destroy(h)
			Expect(err).To(MatchError(core.ErrProvider))

			_, err = client.Lookup(h)
			Expect(err).To(MatchError(core.ErrInvalidHandle))
		})

		It("should reject a stale handle after slot reuse", func() {
			provider.EXPECT().
				CreateInstance(params).
				Return(core.ProviderRef(1), nil).
				Times(2)
			provider.EXPECT().
				DestroyInstance(core.ProviderRef(1)).
				Return(nil)

			h1, _ := client.Create(params)
			Expect(client.Destroy(h1)).To(Succeed())

			h2, _ := client.Create(params)
			Expect(h2.Slot).To(Equal(h1.Slot))

			err := client.Destroy(h1)
			Expect(err).To(MatchError(core.ErrInvalidHandle))

			_, err = client.Lookup(h2)
			Expect(err).ToNot(HaveOccurred())
		})
	})

	Context("evolve", func() {
		var h core.Handle

		BeforeEach(func() {
			provider.EXPECT().
				CreateInstance(params).
				Return(core.ProviderRef(5), nil)
			h, _ = client.Create(params)
		})

		It("should validate arguments before delegating", func() {
			err := client.Evolve(h, nil, 1, core.EvolveDefault, 0)
			Expect(err).To(MatchError(core.ErrInvalidArgument))

			err = client.Evolve(h, []float32{1}, 0, core.EvolveDefault, 0)
			Expect(err).To(MatchError(core.ErrInvalidArgument))

			tooWide := make([]float32, params.InputDim+1)
			err = client.Evolve(h, tooWide, 1, core.EvolveDefault, 0)
			Expect(err).To(MatchError(core.ErrInvalidArgument))
		})

		It("should apply the default timeout when none is given", func() {
			provider.EXPECT().
				Evolve(core.ProviderRef(5), core.EvolveSpec{
					Input:   []float32{1, 2},
					Steps:   3,
					Mode:    core.EvolveDefault,
					Timeout: core.DefaultTimeout,
				}).
				Return(nil)

			err := client.Evolve(h, []float32{1, 2}, 3, core.EvolveDefault, 0)
			Expect(err).ToNot(HaveOccurred())
		})

		It("should pass an explicit timeout through", func() {
			provider.EXPECT().
				Evolve(core.ProviderRef(5), core.EvolveSpec{
					Input:   []float32{1},
					Steps:   1,
					Mode:    core.EvolveReservoirOnly,
					Timeout: 250 * time.Millisecond,
				}).
				Return(nil)

			err := client.Evolve(h, []float32{1}, 1,
				core.EvolveReservoirOnly, 250*time.Millisecond)
			Expect(err).ToNot(HaveOccurred())
		})

		It("should wrap provider failures", func() {
			provider.EXPECT().
				Evolve(core.ProviderRef(5), gomock.Any()).
				Return(&core.ProviderError{Op: "evolve", Code: -62})

			err := client.Evolve(h, []float32{1}, 1, core.EvolveDefault, 0)

			var pe *core.ProviderError
			Expect(errors.As(err, &pe)).To(BeTrue())
			Expect(pe.Code).To(Equal(-62))
		})
	})

	Context("state", func() {
		It("should fill identity and membrane count client-side", func() {
			provider.EXPECT().
				CreateInstance(params).
				Return(core.ProviderRef(5), nil)
			provider.EXPECT().
				StateInfo(core.ProviderRef(5)).
				Return(core.StateInfo{TotalEvolutions: 12}, nil)

			h, _ := client.Create(params)
			info, err := client.State(h)

			Expect(err).ToNot(HaveOccurred())
			Expect(info.InstanceID).To(Equal(h.ID))
			Expect(info.MembraneCount).To(Equal(uint32(2)))
			Expect(info.TotalEvolutions).To(Equal(uint64(12)))
		})
	})

	Context("performance counters", func() {
		It("should count one failing and one succeeding call", func() {
			provider.EXPECT().
				CreateInstance(params).
				Return(core.ProviderRef(1), nil)

			_, err := client.Create(params)
			Expect(err).ToNot(HaveOccurred())

			err = client.Evolve(core.Handle{Slot: 0, ID: 99}, []float32{1}, 1,
				core.EvolveDefault, 0)
			Expect(err).To(HaveOccurred())

			stats := client.Stats(nil)
			Expect(stats.TotalAPICalls).To(Equal(uint64(2)))
			Expect(stats.FailedCalls).To(Equal(uint32(1)))
			Expect(stats.AvgCallOverhead).To(Equal(
				stats.TotalExecutionTime / 2))
			Expect(stats.ActiveInstances).To(Equal(uint32(1)))
		})

		It("should seed min and max from the first call", func() {
			client.ResetStats(nil)

			stats := client.Stats(nil)
			Expect(stats.TotalAPICalls).To(Equal(uint64(1)),
				"only the reset call itself is on the books")
			Expect(stats.MinCallTime).To(Equal(stats.MaxCallTime))
		})

		It("should ignore a reset aimed at one instance", func() {
			provider.EXPECT().
				CreateInstance(params).
				Return(core.ProviderRef(1), nil)

			h, _ := client.Create(params)
			client.ResetStats(&h)

			stats := client.Stats(nil)
			Expect(stats.TotalAPICalls).To(Equal(uint64(2)),
				"create and the scoped reset stay counted")
		})
	})

	Context("sticky last error", func() {
		It("should keep the most recent failure across successes", func() {
			_, err := client.Create(core.CreateParams{})
			Expect(err).To(HaveOccurred())

			provider.EXPECT().
				CreateInstance(params).
				Return(core.ProviderRef(1), nil)
			_, err = client.Create(params)
			Expect(err).ToNot(HaveOccurred())

			Expect(client.LastError()).To(MatchError(core.ErrInvalidDepth))
		})

		It("should start clean", func() {
			Expect(client.LastError()).To(BeNil())
		})
	})

	Context("debug level", func() {
		It("should return the previous level on set", func() {
			Expect(client.SetDebugLevel(3)).To(Equal(1),
				"the default level reports errors only")
			Expect(client.SetDebugLevel(0)).To(Equal(3))
			Expect(client.DebugLevel()).To(Equal(0))
		})
	})

	Context("close", func() {
		It("should release every live instance", func() {
			provider.EXPECT().
				CreateInstance(params).
				Return(core.ProviderRef(1), nil).
				Times(3)
			provider.EXPECT().
				DestroyInstance(core.ProviderRef(1)).
				Return(nil).
				Times(3)

			for i := 0; i < 3; i++ {
				_, err := client.Create(params)
				Expect(err).ToNot(HaveOccurred())
			}

			Expect(client.Close()).To(Succeed())
			Expect(client.Instances()).To(BeEmpty())
		})

		It("should reject operations after close", func() {
			Expect(client.Close()).To(Succeed())

			_, err := client.Create(params)
			Expect(err).To(MatchError(core.ErrNotInitialized))

			err = client.Evolve(core.Handle{Slot: 0, ID: 1}, []float32{1}, 1,
				core.EvolveDefault, 0)
			Expect(err).To(MatchError(core.ErrNotInitialized))

			Expect(client.Close()).To(MatchError(core.ErrNotInitialized))
		})
	})

	Context("hooks", func() {
		It("should deliver call records at the call end position", func() {
			rec := &hookRecorder{}
			client.AcceptHook(rec)

			provider.EXPECT().
				CreateInstance(params).
				Return(core.ProviderRef(1), nil)

			h, _ := client.Create(params)

			starts := rec.at(core.HookPosCallStart)
			Expect(starts).To(HaveLen(1))
			Expect(starts[0].Item).To(Equal("create"))

			ends := rec.at(core.HookPosCallEnd)
			Expect(ends).To(HaveLen(1))
			call := ends[0].Item.(perf.CallRecord)
			Expect(call.Op).To(Equal("create"))
			Expect(call.OK).To(BeTrue())

			created := rec.at(core.HookPosInstanceCreate)
			Expect(created).To(HaveLen(1))
			Expect(created[0].Item).To(Equal(h))
		})

		It("should mark failing calls in the record", func() {
			rec := &hookRecorder{}
			client.AcceptHook(rec)

			_, err := client.Create(core.CreateParams{})
			Expect(err).To(HaveOccurred())

			ends := rec.at(core.HookPosCallEnd)
			Expect(ends).To(HaveLen(1))
			Expect(ends[0].Item.(perf.CallRecord).OK).To(BeFalse())
		})
	})
})
