package database

import (
	"io/fs"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = DescribeTable("migrateURL",
	func(dsn, want string) {
		Expect(migrateURL(dsn)).To(Equal(want))
	},
	Entry("postgres scheme", "postgres://u:p@h:5432/d?sslmode=disable", "pgx5://u:p@h:5432/d?sslmode=disable"),
	Entry("postgresql scheme", "postgresql://h/d", "pgx5://h/d"),
	Entry("already pgx5", "pgx5://h/d", "pgx5://h/d"),
)

var _ = Describe("embedded migrations", func() {
	It("pairs every up file with a down file", func() {
		names, err := fs.Glob(migrationsFS, "migrations/*.sql")
		Expect(err).NotTo(HaveOccurred())
		Expect(names).NotTo(BeEmpty())

		ups, downs := map[string]bool{}, map[string]bool{}
		for _, n := range names {
			switch {
			case strings.HasSuffix(n, ".up.sql"):
				ups[strings.TrimSuffix(n, ".up.sql")] = true
			case strings.HasSuffix(n, ".down.sql"):
				downs[strings.TrimSuffix(n, ".down.sql")] = true
			}
		}
		Expect(ups).To(Equal(downs))
	})
})
