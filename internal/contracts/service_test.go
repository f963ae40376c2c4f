package contracts_test

import (
	"context"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pactline/backend/internal/apperr"
	"github.com/pactline/backend/internal/content"
	"github.com/pactline/backend/internal/contracts"
	"github.com/pactline/backend/internal/fingerprint"
	"github.com/pactline/backend/internal/models"
)

var _ = Describe("Service", func() {
	var (
		ctx      context.Context
		store    *memStore
		notifier *recordingNotifier
		svc      *contracts.Service
		orgID    uuid.UUID
		op       models.OperationContext
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = newMemStore()
		notifier = &recordingNotifier{}
		svc = contracts.NewService(store, nil, notifier, nil)
		orgID = uuid.New()
		op = opFor(orgID)
	})

	Describe("Create", func() {
		It("stores a draft at version 1 with the content fingerprint", func() {
			c, err := svc.Create(ctx, op, "", ndaContent(), false)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Version).To(Equal(1))
			Expect(c.Status).To(Equal(models.StatusDraft))
			Expect(c.Title).To(Equal("NDA"))
			Expect(c.CurrentHash).To(Equal(fingerprint.Of(ndaContent())))
			Expect(*c.OrganizationID).To(Equal(orgID))
			Expect(store.eventsOf(c.ID)).To(ConsistOf(HaveField("Type", models.EventCreated)))
		})

		It("requires an organization", func() {
			_, err := svc.Create(ctx, models.OperationContext{ActorID: uuid.New()}, "", ndaContent(), false)
			Expect(err).To(MatchError(apperr.ErrUnauthorized))
		})

		It("rejects invalid content", func() {
			_, err := svc.Create(ctx, op, "", content.Content{Title: "Empty"}, false)
			Expect(err).To(MatchError(apperr.ErrValidation))
		})
	})

	Describe("Update", func() {
		var created *models.Contract

		BeforeEach(func() {
			var err error
			created, err = svc.Create(ctx, op, "", ndaContent(), false)
			Expect(err).NotTo(HaveOccurred())
		})

		It("bumps the version by one and recomputes the fingerprint", func() {
			edited := withClause(ndaContent())
			updated, err := svc.Update(ctx, op, created.ID, contracts.UpdateInput{Content: edited})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Version).To(Equal(created.Version + 1))
			Expect(updated.CurrentHash).To(Equal(fingerprint.Of(edited)))
			Expect(updated.CurrentHash).NotTo(Equal(created.CurrentHash))
			Expect(notifier.changed).To(HaveLen(1))
		})

		It("keeps version and fingerprint in step over repeated edits", func() {
			body := ndaContent()
			for i := 0; i < 3; i++ {
				body = body.Clone()
				body.Blocks = append(body.Blocks, content.Clause{ID: uuid.NewString(), Content: "more"})
				updated, err := svc.Update(ctx, op, created.ID, contracts.UpdateInput{Content: body})
				Expect(err).NotTo(HaveOccurred())
				Expect(updated.Version).To(Equal(i + 2))
				Expect(fingerprint.Verify(updated.Content, updated.CurrentHash)).To(Succeed())
			}
		})

		It("rejects a stale expected version", func() {
			stale := 7
			_, err := svc.Update(ctx, op, created.ID, contracts.UpdateInput{Content: withClause(ndaContent()), ExpectedVersion: &stale})
			Expect(err).To(MatchError(apperr.ErrConflict))
		})

		It("refuses edits once the contract left draft", func() {
			pending := clone(created)
			pending.Status = models.StatusPending
			store.put(pending)

			_, err := svc.Update(ctx, op, created.ID, contracts.UpdateInput{Content: withClause(ndaContent())})
			Expect(err).To(MatchError(contracts.ErrNotEditable))
			Expect(err).To(MatchError(apperr.ErrConflict))

			current, err := store.Get(ctx, orgID, created.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(current.Version).To(Equal(1))
		})

		It("hides contracts of other organizations", func() {
			_, err := svc.Update(ctx, opFor(uuid.New()), created.ID, contracts.UpdateInput{Content: withClause(ndaContent())})
			Expect(err).To(MatchError(apperr.ErrNotFound))
		})
	})

	Describe("Get", func() {
		It("serves from the cache when it has the view", func() {
			cached := &models.ContractDetail{Contract: models.Contract{ID: uuid.New(), Title: "cached"}}
			cache := &mockCache{getFn: func(_ context.Context, _, _ uuid.UUID) (*models.ContractDetail, bool) { return cached, true }}
			svc = contracts.NewService(store, cache, nil, nil)

			d, err := svc.Get(ctx, op, cached.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(d).To(BeIdenticalTo(cached))
			Expect(cache.sets).To(BeZero())
		})

		It("fills the cache on a miss", func() {
			cache := &mockCache{}
			svc = contracts.NewService(store, cache, nil, nil)
			c, err := svc.Create(ctx, op, "", ndaContent(), false)
			Expect(err).NotTo(HaveOccurred())

			d, err := svc.Get(ctx, op, c.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(d.ID).To(Equal(c.ID))
			Expect(cache.sets).To(Equal(1))
		})

		It("returns not found without an organization", func() {
			_, err := svc.Get(ctx, models.OperationContext{ActorID: uuid.New()}, uuid.New())
			Expect(err).To(MatchError(apperr.ErrNotFound))
		})
	})

	Describe("Duplicate", func() {
		var tpl *models.Contract

		BeforeEach(func() {
			body := ndaContent()
			tpl = &models.Contract{
				ID: uuid.New(), Title: "NDA template", Content: body, CurrentHash: fingerprint.Of(body),
				Status: models.StatusDraft, Version: 4, IsTemplate: true,
			}
			store.put(tpl)
		})

		It("creates an independent draft at version 1", func() {
			dup, err := svc.Duplicate(ctx, op, tpl.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(dup.ID).NotTo(Equal(tpl.ID))
			Expect(dup.Version).To(Equal(1))
			Expect(dup.IsTemplate).To(BeFalse())
			Expect(dup.CurrentHash).To(Equal(tpl.CurrentHash))

			_, err = svc.Update(ctx, op, dup.ID, contracts.UpdateInput{Content: withClause(ndaContent())})
			Expect(err).NotTo(HaveOccurred())

			source, err := store.GetTemplate(ctx, orgID, tpl.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(source.Version).To(Equal(4))
			Expect(source.CurrentHash).To(Equal(fingerprint.Of(ndaContent())))
			Expect(source.Content.Blocks).To(HaveLen(1))
		})

		It("refuses a template whose content no longer matches its fingerprint", func() {
			store.tamper(tpl.ID, "NDA (edited in place)")
			_, err := svc.Duplicate(ctx, op, tpl.ID)
			Expect(err).To(MatchError(apperr.ErrIntegrityViolation))
			Expect(store.eventsOf(tpl.ID)).To(BeEmpty(), "system templates have no owner to audit")
		})

		It("does not reveal another organization's template", func() {
			other := uuid.New()
			private := &models.Contract{
				ID: uuid.New(), OrganizationID: &other, Title: "Private", Content: ndaContent(),
				CurrentHash: fingerprint.Of(ndaContent()), Status: models.StatusDraft, Version: 1, IsTemplate: true,
			}
			store.put(private)
			_, err := svc.Duplicate(ctx, op, private.ID)
			Expect(err).To(MatchError(apperr.ErrNotFound))
		})
	})

	Describe("Revise", func() {
		It("starts a new draft from a pending contract and links it", func() {
			c, err := svc.Create(ctx, op, "", ndaContent(), false)
			Expect(err).NotTo(HaveOccurred())
			pending := clone(c)
			pending.Status = models.StatusPending
			store.put(pending)

			rev, err := svc.Revise(ctx, op, c.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(rev.Status).To(Equal(models.StatusDraft))
			Expect(rev.Version).To(Equal(1))
			Expect(rev.RevisionOf).To(HaveValue(Equal(c.ID)))
			Expect(store.eventsOf(c.ID)).To(ContainElement(HaveField("Type", models.EventRevised)))
		})

		It("rejects drafts", func() {
			c, err := svc.Create(ctx, op, "", ndaContent(), false)
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.Revise(ctx, op, c.ID)
			Expect(err).To(MatchError(apperr.ErrConflict))
		})
	})

	Describe("Verify and Certificate", func() {
		var c *models.Contract

		BeforeEach(func() {
			var err error
			c, err = svc.Create(ctx, op, "", ndaContent(), false)
			Expect(err).NotTo(HaveOccurred())
		})

		It("reports a matching fingerprint", func() {
			res, err := svc.Verify(ctx, op, c.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Valid).To(BeTrue())
			Expect(res.ComputedHash).To(Equal(res.StoredHash))
		})

		It("flags tampering and records an audit event", func() {
			store.tamper(c.ID, "Tampered")
			res, err := svc.Verify(ctx, op, c.ID)
			Expect(err).To(MatchError(apperr.ErrIntegrityViolation))
			Expect(res.Valid).To(BeFalse())
			Expect(store.eventsOf(c.ID)).To(ContainElement(HaveField("Type", models.EventIntegrityFailed)))

			_, err = svc.Certificate(ctx, op, c.ID)
			Expect(err).To(MatchError(apperr.ErrIntegrityViolation))
		})

		It("builds a certificate for intact content", func() {
			cert, err := svc.Certificate(ctx, op, c.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(cert.Verified).To(BeTrue())
			Expect(cert.Complete).To(BeFalse())
			Expect(cert.Fingerprint).To(Equal(c.CurrentHash))
		})
	})

	Describe("scenario A: create then edit", func() {
		It("moves from version 1 to 2 with a new fingerprint and stays a draft", func() {
			c, err := svc.Create(ctx, op, "", ndaContent(), false)
			Expect(err).NotTo(HaveOccurred())
			h1 := c.CurrentHash
			Expect(c.Version).To(Equal(1))
			Expect(c.Status).To(Equal(models.StatusDraft))

			updated, err := svc.Update(ctx, op, c.ID, contracts.UpdateInput{Content: withClause(ndaContent())})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Version).To(Equal(2))
			Expect(updated.CurrentHash).NotTo(Equal(h1))
			Expect(updated.Status).To(Equal(models.StatusDraft))
		})
	})

	Describe("scenario C: template listing", func() {
		It("returns only system templates to an organization without its own", func() {
			system := []string{"Mutual NDA", "Service Agreement"}
			for _, title := range system {
				body := ndaContent()
				store.put(&models.Contract{ID: uuid.New(), Title: title, Content: body, CurrentHash: fingerprint.Of(body),
					Status: models.StatusDraft, Version: 1, IsTemplate: true})
			}
			other := uuid.New()
			store.put(&models.Contract{ID: uuid.New(), OrganizationID: &other, Title: "Other org template",
				Content: ndaContent(), CurrentHash: fingerprint.Of(ndaContent()), Status: models.StatusDraft, Version: 1, IsTemplate: true})
			_, err := svc.Create(ctx, op, "", ndaContent(), false)
			Expect(err).NotTo(HaveOccurred())

			list, err := svc.List(ctx, op, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(2))
			for _, s := range list {
				Expect(s.OrganizationID).To(BeNil())
				Expect(s.IsTemplate).To(BeTrue())
			}
		})

		It("returns no contracts to a caller without an organization", func() {
			list, err := svc.List(ctx, models.OperationContext{ActorID: uuid.New()}, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(BeEmpty())
		})
	})
})
