package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/dtesn/async"
	"github.com/sarchlab/dtesn/core"
	"github.com/sarchlab/dtesn/memprovider"
	"github.com/sarchlab/dtesn/registry"
)

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, path, nil)
	h.ServeHTTP(w, r)

	return w
}

func sampleParams() core.CreateParams {
	return core.CreateParams{
		Depth:         4,
		MaxOrder:      5,
		NeuronCount:   16,
		MembraneCount: 3,
		InputDim:      4,
		OutputDim:     2,
	}
}

var _ = Describe("Monitor", func() {
	var (
		m      *Monitor
		client *registry.Client
		router http.Handler
	)

	BeforeEach(func() {
		client = registry.MakeBuilder().
			WithProvider(memprovider.MakeBuilder().Build()).
			Build()

		m = NewMonitor()
		m.RegisterClient(client)
		router = m.router()
	})

	AfterEach(func() {
		client.Close()
	})

	It("should list instance ids", func() {
		_, err := client.Create(sampleParams())
		Expect(err).To(BeNil())
		_, err = client.Create(sampleParams())
		Expect(err).To(BeNil())

		w := get(router, "/api/instances")

		Expect(w.Code).To(Equal(200))
		Expect(w.Body.String()).To(Equal("[1,2]"))
	})

	It("should list nothing when no instance exists", func() {
		w := get(router, "/api/instances")

		Expect(w.Body.String()).To(Equal("[]"))
	})

	It("should serialize instance details", func() {
		_, err := client.Create(sampleParams())
		Expect(err).To(BeNil())

		w := get(router, "/api/instance/1")

		Expect(w.Code).To(Equal(200))
		Expect(w.Body.String()).NotTo(BeEmpty())
	})

	It("should report 404 for an unknown instance", func() {
		w := get(router, "/api/instance/99")

		Expect(w.Code).To(Equal(http.StatusNotFound))
		Expect(w.Body.String()).To(Equal("Instance not found"))
	})

	It("should serve a single field of an instance", func() {
		_, err := client.Create(sampleParams())
		Expect(err).To(BeNil())

		req := url.PathEscape(`{"instance_id":1,"field_name":"ID"}`)
		w := get(router, "/api/field/"+req)

		Expect(w.Code).To(Equal(200))
		Expect(w.Body.String()).NotTo(BeEmpty())
	})

	It("should serve performance counters", func() {
		_, err := client.Create(sampleParams())
		Expect(err).To(BeNil())

		w := get(router, "/api/stats")

		Expect(w.Code).To(Equal(200))

		rsp := statsRsp{}
		Expect(json.Unmarshal(w.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.TotalAPICalls).To(BeNumerically(">=", 1))
		Expect(rsp.ActiveInstances).To(Equal(uint32(1)))
	})

	It("should reset performance counters", func() {
		for i := 0; i < 5; i++ {
			_, err := client.Create(sampleParams())
			Expect(err).To(BeNil())
		}

		before := statsRsp{}
		w := get(router, "/api/stats")
		Expect(json.Unmarshal(w.Body.Bytes(), &before)).To(Succeed())

		get(router, "/api/stats/reset")

		after := statsRsp{}
		w = get(router, "/api/stats")
		Expect(json.Unmarshal(w.Body.Bytes(), &after)).To(Succeed())

		Expect(after.TotalAPICalls).To(BeNumerically("<", before.TotalAPICalls))
		Expect(after.ActiveInstances).To(Equal(uint32(5)))
	})

	It("should expose the rooted-tree enumeration", func() {
		w := get(router, "/api/oeis/4")

		Expect(w.Code).To(Equal(200))
		Expect(w.Body.String()).To(Equal(`{"n":4,"count":4}`))
	})

	It("should reject enumeration indices outside the table", func() {
		w := get(router, "/api/oeis/99")

		Expect(w.Code).To(Equal(400))
	})

	It("should reject non-numeric enumeration indices", func() {
		w := get(router, "/api/oeis/four")

		Expect(w.Code).To(Equal(400))
	})

	It("should report 404 on client routes before a client is registered", func() {
		bare := NewMonitor().router()

		for _, path := range []string{
			"/api/instances",
			"/api/instance/1",
			"/api/stats",
			"/api/stats/reset",
		} {
			w := get(bare, path)

			Expect(w.Code).To(Equal(http.StatusNotFound))
			Expect(w.Body.String()).To(Equal("No client registered"))
		}
	})

	It("should report 404 when no async session is registered", func() {
		w := get(router, "/api/async")

		Expect(w.Code).To(Equal(http.StatusNotFound))
		Expect(w.Body.String()).To(Equal("No async session registered"))
	})

	It("should expose the async queue", func() {
		session := async.NewSession(client)
		defer session.Close()
		m.RegisterSession(session)

		h, err := client.Create(sampleParams())
		Expect(err).To(BeNil())

		op, err := session.SubmitEvolve(
			h, []float32{1, 2}, 3, core.EvolveDefault, 0, nil)
		Expect(err).To(BeNil())
		Expect(op.Wait(0)).To(Succeed())

		w := get(router, "/api/async")

		Expect(w.Code).To(Equal(200))

		rsp := asyncRsp{}
		Expect(json.Unmarshal(w.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.Submitted).To(Equal(uint64(1)))
		Expect(rsp.Completed).To(Equal(uint64(1)))
		Expect(rsp.QueueDepth).To(Equal(0))
		Expect(rsp.QueueCapacity).To(Equal(core.MaxAsyncOperations))
		Expect(rsp.Workers).To(Equal(4))
	})

	It("should report process resources", func() {
		w := get(router, "/api/resource")

		Expect(w.Code).To(Equal(200))

		rsp := resourceRsp{}
		Expect(json.Unmarshal(w.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.MemorySize).To(BeNumerically(">", 0))
	})

	It("should refuse privileged port numbers", func() {
		m.WithPortNumber(80)

		Expect(m.Port()).To(Equal(0))
	})

	It("should accept regular port numbers", func() {
		m.WithPortNumber(8080)

		Expect(m.Port()).To(Equal(8080))
	})
})
