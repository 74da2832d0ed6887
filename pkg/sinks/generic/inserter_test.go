package generic_test

import (
	"context"

	"github.com/lawrencejones/sinkrouter/pkg/sinks"
	"github.com/lawrencejones/sinkrouter/pkg/sinks/generic"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("MemoryInserter", func() {
	var (
		ctx      context.Context
		inserter *generic.MemoryInserter[string]
		cancel   func()
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		inserter = generic.NewMemoryInserter[string]()
	})

	AfterEach(func() {
		cancel()
	})

	Describe(".Insert", func() {
		It("adds successive batches to the in-memory store", func() {
			count, err := inserter.Insert(ctx, []string{"scooby", "clifford"})
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(2))

			count, err = inserter.Insert(ctx, []string{"tom"})
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(1))

			Expect(inserter.Batches()).To(Equal([][]string{{"scooby", "clifford"}, {"tom"}}))
			Expect(inserter.Store()).To(Equal([]string{"scooby", "clifford", "tom"}))
		})

		Context("with expired context", func() {
			BeforeEach(func() {
				cancel()
			})

			It("inserts nothing", func() {
				_, err := inserter.Insert(ctx, []string{"scooby"})
				Expect(err).To(MatchError("context canceled"))
				Expect(inserter.Store()).To(BeEmpty())
			})
		})
	})
})

var _ = Describe("MemorySink", func() {
	var (
		ctx  = context.Background()
		sink *generic.MemorySink[int]
	)

	BeforeEach(func() {
		sink = generic.NewMemorySink[int]()
	})

	It("accepts everything in order and is always ready", func() {
		for _, item := range []int{3, 1, 2} {
			result, err := sink.Accept(ctx, item)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsReady()).To(BeTrue())
		}

		Expect(sink.Flush(ctx)).To(Equal(sinks.Ready))
		Expect(sink.Items()).To(Equal([]int{3, 1, 2}))
		Expect(sink.Len()).To(Equal(3))
	})

	It("clones without sharing state", func() {
		sink.Accept(ctx, 1)
		clone := sink.Clone()
		clone.Accept(ctx, 2)

		Expect(sink.Items()).To(Equal([]int{1}))
		Expect(clone.Items()).To(Equal([]int{1, 2}))
	})
})
