package registry

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("arena", func() {
	var a *arena

	BeforeEach(func() {
		a = newArena(3)
	})

	It("should hand out the lowest free slot first", func() {
		Expect(a.reserve()).To(Equal(0))
		Expect(a.reserve()).To(Equal(1))
		Expect(a.reserve()).To(Equal(2))
		Expect(a.reserve()).To(Equal(-1))
	})

	It("should keep reserved slots invisible to lookups", func() {
		slot := a.reserve()

		Expect(a.get(slot)).To(BeNil())
		Expect(a.liveCount()).To(Equal(0))
	})

	It("should free a released reservation", func() {
		slot := a.reserve()
		a.release(slot)

		Expect(a.reserve()).To(Equal(slot))
	})

	It("should track live instances through publish and remove", func() {
		slot := a.reserve()
		inst := &Instance{ID: 1, Slot: slot}
		a.publish(slot, inst)

		Expect(a.liveCount()).To(Equal(1))
		Expect(a.get(slot)).To(BeIdenticalTo(inst))

		removed := a.remove(slot)
		Expect(removed).To(BeIdenticalTo(inst))
		Expect(a.liveCount()).To(Equal(0))
		Expect(a.get(slot)).To(BeNil())
	})

	It("should prefer the lowest slot after interior removals", func() {
		for i := 0; i < 3; i++ {
			slot := a.reserve()
			a.publish(slot, &Instance{ID: uint64(i + 1), Slot: slot})
		}

		a.remove(1)
		a.remove(0)

		Expect(a.reserve()).To(Equal(0))
		Expect(a.reserve()).To(Equal(1))
	})

	It("should ignore out-of-range slots", func() {
		Expect(a.get(-1)).To(BeNil())
		Expect(a.get(3)).To(BeNil())
		Expect(a.remove(2)).To(BeNil())
	})

	It("should snapshot live instances in slot order", func() {
		for i := 0; i < 3; i++ {
			slot := a.reserve()
			a.publish(slot, &Instance{ID: uint64(10 + i), Slot: slot})
		}
		a.remove(1)

		snap := a.snapshot()
		Expect(snap).To(HaveLen(2))
		Expect(snap[0].ID).To(Equal(uint64(10)))
		Expect(snap[1].ID).To(Equal(uint64(12)))
	})
})
