package postgres_test

import (
	"context"
	"time"

	"github.com/lawrencejones/sinkrouter/pkg/dbtest"
	"github.com/lawrencejones/sinkrouter/pkg/sinks"
	"github.com/lawrencejones/sinkrouter/pkg/sinks/postgres"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	. "github.com/onsi/gomega/gstruct"
)

var _ = Describe("Postgres (integration)", func() {
	var (
		ctx    context.Context
		cancel func()
		schema = "postgres_sink_test"
	)

	db := dbtest.Configure(
		dbtest.WithSchema(schema),
		dbtest.WithTable(schema+".cats", "name text primary key", "lives integer not null"),
	)

	BeforeEach(func() {
		dbtest.SkipUnlessConfigured()
		ctx, cancel = db.Setup(context.Background(), 10*time.Second)
	})

	AfterEach(func() {
		if cancel != nil {
			cancel()
		}
	})

	flush := func(sink sinks.Sink[cat]) error {
		for {
			poll, err := sink.Flush(ctx)
			if err != nil || poll == sinks.Ready {
				return err
			}

			time.Sleep(10 * time.Millisecond)
		}
	}

	It("copies every accepted item into the table", func() {
		opts := postgres.Options{Table: schema + ".cats", Columns: []string{"name", "lives"}, BufferSize: 2}
		sink, err := postgres.New(logger, "cats", db.GetConnection(ctx), opts, catValues)
		Expect(err).NotTo(HaveOccurred())

		for _, c := range []cat{{"tom", 9}, {"garfield", 1}, {"felix", 3}} {
			for {
				result, err := sink.Accept(ctx, c)
				Expect(err).NotTo(HaveOccurred())
				if result.IsReady() {
					break
				}

				Expect(flush(sink)).To(Succeed())
			}
		}

		Expect(flush(sink)).To(Succeed())

		rows, err := db.GetDB().QueryContext(ctx, `select name, lives from cats order by name;`)
		Expect(err).NotTo(HaveOccurred())
		defer rows.Close()

		var cats []cat
		for rows.Next() {
			var c cat
			Expect(rows.Scan(&c.Name, &c.Lives)).To(Succeed())
			cats = append(cats, c)
		}

		Expect(rows.Err()).NotTo(HaveOccurred())
		Expect(cats).To(ConsistOf(
			MatchAllFields(Fields{"Name": Equal("felix"), "Lives": Equal(3)}),
			MatchAllFields(Fields{"Name": Equal("garfield"), "Lives": Equal(1)}),
			MatchAllFields(Fields{"Name": Equal("tom"), "Lives": Equal(9)}),
		))
	})

	It("reports constraint violations with their SQLSTATE", func() {
		inserter := postgres.NewInserter(db.GetConnection(ctx), postgres.ParseIdentifier(schema+".cats"), []string{"name", "lives"}, catValues)

		_, err := inserter.Insert(ctx, []cat{{"tom", 9}, {"tom", 8}})
		Expect(err).To(MatchError(ContainSubstring("postgres error 23505")))
	})
})

var catValues = func(c cat) []interface{} {
	return []interface{}{c.Name, c.Lives}
}
