package generic_test

import (
	"context"
	"fmt"
	"time"

	"github.com/lawrencejones/sinkrouter/pkg/sinks"
	"github.com/lawrencejones/sinkrouter/pkg/sinks/generic"

	kitlog "github.com/go-kit/kit/log"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gbytes"
)

var _ = Describe("BufferedSink", func() {
	var (
		ctx      context.Context
		capacity int
		backend  *fakeInserter
		sink     *generic.BufferedSink[int]
		cancel   func()
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		capacity = 2
		backend = newFakeInserter()
	})

	JustBeforeEach(func() {
		sink = generic.NewBufferedSink[int](backend, capacity)
	})

	AfterEach(func() {
		cancel()
	})

	accept := func(items ...int) {
		for _, item := range items {
			result, err := sink.Accept(ctx, item)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsReady()).To(BeTrue(), "expected item %d to be accepted", item)
		}
	}

	flush := func() (sinks.Poll, error) {
		return sink.Flush(ctx)
	}

	Describe(".Accept", func() {
		It("buffers without inserting", func() {
			accept(1, 2)

			Expect(sink.Buffered()).To(Equal([]int{1, 2}))
			Consistently(backend.Batches, 20*time.Millisecond).Should(BeEmpty())
		})

		It("hands back items once full", func() {
			accept(1, 2)

			result, err := sink.Accept(ctx, 3)
			Expect(err).NotTo(HaveOccurred())

			item, ok := result.Item()
			Expect(ok).To(BeTrue(), "buffer is full, so the item should be rejected")
			Expect(item).To(Equal(3))
			Expect(sink.Buffered()).To(Equal([]int{1, 2}))
		})

		It("accepts again once the buffer is in flight", func() {
			resume := backend.Pause()
			defer close(resume)

			accept(1, 2)
			Expect(flush()).To(Equal(sinks.Pending))
			Expect(sink.InFlight()).To(Equal(2))

			accept(3)
			Expect(sink.Buffered()).To(Equal([]int{3}))
		})
	})

	Describe(".Flush", func() {
		It("is ready when nothing was accepted", func() {
			Expect(flush()).To(Equal(sinks.Ready))
			Expect(backend.Batches()).To(BeEmpty())
		})

		It("stays ready once the insert has been collected", func() {
			accept(1)
			Eventually(flush).Should(Equal(sinks.Ready))

			Expect(flush()).To(Equal(sinks.Ready))
			Expect(sink.InFlight()).To(Equal(0))
			Expect(backend.Batches()).To(Equal([][]int{{1}}), "should insert only once")
		})

		It("is pending until the insert completes", func() {
			resume := backend.Pause()

			accept(1, 2)
			Expect(flush()).To(Equal(sinks.Pending))
			Consistently(flush, 20*time.Millisecond).Should(Equal(sinks.Pending))

			close(resume)
			Eventually(flush).Should(Equal(sinks.Ready))
			Expect(backend.Batches()).To(Equal([][]int{{1, 2}}))
		})

		It("inserts everything accepted while a previous insert was in flight", func() {
			accept(1, 2)
			flush()
			accept(3)

			Eventually(flush).Should(Equal(sinks.Ready))
			Expect(backend.Store()).To(Equal([]int{1, 2, 3}))
		})

		Context("when the insert fails", func() {
			var (
				succeed func()
			)

			BeforeEach(func() {
				succeed = backend.Fail(fmt.Errorf("hot dang"))
			})

			It("returns the error, and keeps the batch for a later flush", func() {
				accept(1, 2)
				flush()

				Eventually(func() error {
					_, err := flush()
					return err
				}).Should(MatchError("hot dang"))

				Expect(sink.Buffered()).To(Equal([]int{1, 2}))

				succeed()
				Eventually(flush).Should(Equal(sinks.Ready))
				Expect(backend.Store()).To(Equal([]int{1, 2}))
			})

			It("puts the failed batch ahead of newer items", func() {
				accept(1, 2)
				flush()
				accept(3)

				Eventually(func() error {
					_, err := flush()
					return err
				}).Should(HaveOccurred())

				Expect(sink.Buffered()).To(Equal([]int{1, 2, 3}))
			})
		})

		Context("when only some batches fail", func() {
			It("keeps only the items that weren't inserted", func() {
				succeed := backend.Fail(fmt.Errorf("hot dang"))

				accept(1, 2)
				flush()
				accept(3, 4)
				Eventually(func() error {
					_, err := flush()
					return err
				}).Should(HaveOccurred())

				succeed()
				backend.FailAfter(1, fmt.Errorf("second batch failed"))

				Expect(flush()).To(Equal(sinks.Pending), "should start inserting all 4 items")
				Eventually(func() error {
					_, err := flush()
					return err
				}).Should(MatchError("second batch failed"))

				Expect(backend.Batches()).To(Equal([][]int{{1, 2}}), "inserts in capacity sized batches")
				Expect(sink.Buffered()).To(Equal([]int{3, 4}))
			})
		})
	})
})

var _ = Describe("BuildSink", func() {
	var (
		ctx     = context.Background()
		output  *gbytes.Buffer
		backend *generic.MemoryInserter[string]
	)

	BeforeEach(func() {
		output = gbytes.NewBuffer()
		backend = generic.NewMemoryInserter[string]()
	})

	It("buffers and instruments the inserter", func() {
		sink := generic.BuildSink[string]("dogs", backend,
			generic.SinkBuilder.WithBuffer(3),
			generic.SinkBuilder.WithInstrumentation(kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(output)), true),
		)

		for _, dog := range []string{"scooby", "clifford", "lassie"} {
			result, err := sink.Accept(ctx, dog)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsReady()).To(BeTrue())
		}

		result, _ := sink.Accept(ctx, "snoopy")
		Expect(result.IsReady()).To(BeFalse(), "buffer size was 3")

		Eventually(func() sinks.Poll {
			poll, err := sink.Flush(ctx)
			Expect(err).NotTo(HaveOccurred())
			return poll
		}).Should(Equal(sinks.Ready))

		Expect(backend.Batches()).To(Equal([][]string{{"scooby", "clifford", "lassie"}}))
		Eventually(output).Should(gbytes.Say(`route=dogs trace_id=\S+ event=insert`))
	})
})
