package cache_test

import (
	"context"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pactline/backend/internal/cache"
	"github.com/pactline/backend/internal/models"
)

var _ = Describe("ViewCache", func() {
	It("namespaces keys by organization", func() {
		org := uuid.MustParse("11111111-1111-1111-1111-111111111111")
		id := uuid.MustParse("22222222-2222-2222-2222-222222222222")
		Expect(cache.Key(org, id)).To(Equal("contracts:view:11111111-1111-1111-1111-111111111111:22222222-2222-2222-2222-222222222222"))
		Expect(cache.Key(uuid.New(), id)).NotTo(Equal(cache.Key(org, id)))
	})

	It("is a no-op when disabled", func() {
		ctx := context.Background()
		for _, v := range []*cache.ViewCache{nil, cache.NewViewCache(nil, 0, nil)} {
			d := &models.ContractDetail{Contract: models.Contract{ID: uuid.New()}}
			v.Set(ctx, uuid.New(), d)
			_, ok := v.Get(ctx, uuid.New(), d.ID)
			Expect(ok).To(BeFalse())
			Expect(func() { v.Invalidate(ctx, uuid.New(), d.ID) }).NotTo(Panic())
		}
	})
})
