package realtime_test

import (
	"context"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pactline/backend/internal/apperr"
	"github.com/pactline/backend/internal/auth"
	"github.com/pactline/backend/internal/models"
	"github.com/pactline/backend/internal/realtime"
)

type staticScopes struct {
	orgID uuid.UUID
}

func (s staticScopes) Resolve(_ context.Context, userID uuid.UUID, email string) (models.OperationContext, error) {
	return models.OperationContext{ActorID: userID, ActorEmail: email, OrganizationID: s.orgID}, nil
}

// orgContracts returns contracts owned by one organization.
type orgContracts struct {
	owned map[uuid.UUID]uuid.UUID
}

func (o orgContracts) Get(_ context.Context, op models.OperationContext, id uuid.UUID) (*models.ContractDetail, error) {
	if owner, ok := o.owned[id]; !ok || owner != op.OrganizationID {
		return nil, apperr.ErrNotFound
	}
	return &models.ContractDetail{Contract: models.Contract{ID: id}}, nil
}

var _ = Describe("NewAuthorizer", func() {
	var (
		ctx       context.Context
		jwt       *auth.JWTService
		orgID     uuid.UUID
		contract  uuid.UUID
		authorize realtime.Authorizer
	)

	BeforeEach(func() {
		ctx = context.Background()
		jwt = auth.NewJWTService("test-secret", 1)
		orgID = uuid.New()
		contract = uuid.New()
		authorize = realtime.NewAuthorizer(jwt, staticScopes{orgID: orgID}, orgContracts{owned: map[uuid.UUID]uuid.UUID{contract: orgID}})
	})

	It("lets a signer watch their own contract only", func() {
		token, _, err := jwt.GenerateSigner(contract, "alice@x.com", time.Minute)
		Expect(err).NotTo(HaveOccurred())

		subject, err := authorize(ctx, token, contract)
		Expect(err).NotTo(HaveOccurred())
		Expect(subject).To(Equal("signer:alice@x.com"))

		_, err = authorize(ctx, token, uuid.New())
		Expect(err).To(MatchError(apperr.ErrUnauthorized))
	})

	It("lets members watch their organization's contracts", func() {
		user := uuid.New()
		token, err := jwt.Generate(user, "ada@example.com")
		Expect(err).NotTo(HaveOccurred())

		subject, err := authorize(ctx, token, contract)
		Expect(err).NotTo(HaveOccurred())
		Expect(subject).To(Equal("user:" + user.String()))

		_, err = authorize(ctx, token, uuid.New())
		Expect(err).To(MatchError(apperr.ErrNotFound))
	})

	It("rejects garbage tokens", func() {
		_, err := authorize(ctx, "not-a-jwt", contract)
		Expect(err).To(MatchError(apperr.ErrUnauthorized))
	})
})

var _ = Describe("ContractChannel", func() {
	It("scopes the channel to one contract", func() {
		id := uuid.New()
		Expect(realtime.ContractChannel(id)).To(Equal("contracts:events:" + id.String()))
		Expect(realtime.ContractChannel(uuid.New())).NotTo(Equal(realtime.ContractChannel(id)))
	})
})
