package bigquery_test

import (
	"context"
	"fmt"

	"github.com/lawrencejones/sinkrouter/pkg/sinks/bigquery"

	bq "cloud.google.com/go/bigquery"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

type row struct {
	ID   string
	Name string
}

func (r row) Save() (map[string]bq.Value, string, error) {
	return map[string]bq.Value{"id": r.ID, "name": r.Name}, r.ID, nil
}

type fakePutter struct {
	puts []interface{}
	err  error
}

func (f *fakePutter) Put(_ context.Context, src interface{}) error {
	if f.err != nil {
		return f.err
	}

	f.puts = append(f.puts, src)
	return nil
}

var _ = Describe("Inserter", func() {
	var (
		ctx    = context.Background()
		putter *fakePutter
	)

	BeforeEach(func() {
		putter = &fakePutter{}
	})

	It("puts the whole batch at once", func() {
		rows := []row{{"1", "scooby"}, {"2", "clifford"}}

		count, err := bigquery.NewInserter[row](putter).Insert(ctx, rows)
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(2))
		Expect(putter.puts).To(Equal([]interface{}{rows}))
	})

	It("fails the batch if the put fails", func() {
		putter.err = fmt.Errorf("quota exceeded")

		count, err := bigquery.NewInserter[row](putter).Insert(ctx, []row{{"1", "scooby"}})
		Expect(count).To(Equal(0))
		Expect(err).To(MatchError("failed to insert rows: quota exceeded"))
	})
})
