package generic_test

import (
	"context"
	"fmt"

	"github.com/lawrencejones/sinkrouter/pkg/sinks/generic"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("InsertResult", func() {
	var (
		ctx    context.Context
		cancel func()
		result generic.InsertResult
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		result = generic.NewInsertResult()
	})

	AfterEach(func() {
		cancel()
	})

	type resolveable interface {
		Resolve(int, error) generic.InsertResult
	}

	Describe(".Get", func() {
		It("returns result once resolved", func() {
			result.(resolveable).Resolve(3, nil)
			count, err := result.Get(ctx)

			Expect(err).To(BeNil())
			Expect(count).To(Equal(3))
		})

		It("returns the error it was resolved with", func() {
			result.(resolveable).Resolve(0, fmt.Errorf("oops"))
			_, err := result.Get(ctx)

			Expect(err).To(MatchError("oops"))
		})

		Context("with expired context", func() {
			BeforeEach(func() {
				cancel()
			})

			It("returns context expired error", func() {
				_, err := result.Get(ctx)
				Expect(err).To(MatchError("context canceled"))
			})

			Context("when already resolved", func() {
				BeforeEach(func() {
					result.(resolveable).Resolve(3, nil)
				})

				// When the context has expired but we've already done the work, there is no need
				// for us to throwaway the result. We may as well return it, and have the parent
				// function decide on an appropriate action.
				It("returns result anyway", func() {
					Expect(result.Get(ctx)).To(Equal(3))
				})
			})
		})
	})

	Describe(".Done", func() {
		It("is false until resolved", func() {
			Expect(result.Done()).To(BeFalse())
			result.(resolveable).Resolve(1, nil)
			Expect(result.Done()).To(BeTrue())
		})

		It("is true for the empty result", func() {
			Expect(generic.EmptyInsertResult.Done()).To(BeTrue())
		})
	})
})
