package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pactline/backend/internal/auth"
	"github.com/pactline/backend/internal/middleware"
	"github.com/pactline/backend/internal/models"
)

type mockResolver struct {
	resolveFn func(userID uuid.UUID, email string) (models.OperationContext, error)
}

func (m mockResolver) Resolve(_ context.Context, userID uuid.UUID, email string) (models.OperationContext, error) {
	return m.resolveFn(userID, email)
}

var _ = Describe("JWT and Scope", func() {
	var (
		jwt      *auth.JWTService
		resolver mockResolver
		router   *gin.Engine
		seen     models.OperationContext
	)

	get := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		jwt = auth.NewJWTService("test-secret", 1)
		orgID := uuid.New()
		resolver = mockResolver{resolveFn: func(userID uuid.UUID, email string) (models.OperationContext, error) {
			return models.OperationContext{ActorID: userID, ActorEmail: email, OrganizationID: orgID}, nil
		}}
		seen = models.OperationContext{}
	})

	JustBeforeEach(func() {
		router = gin.New()
		router.GET("/me", middleware.JWT(jwt), middleware.Scope(resolver, nil), func(c *gin.Context) {
			op, ok := middleware.Operation(c)
			Expect(ok).To(BeTrue())
			seen = op
			c.Status(http.StatusNoContent)
		})
	})

	It("resolves the operation context for a valid account token", func() {
		id := uuid.New()
		token, err := jwt.Generate(id, "ada@example.com")
		Expect(err).NotTo(HaveOccurred())

		w := get(token)
		Expect(w.Code).To(Equal(http.StatusNoContent))
		Expect(seen.ActorID).To(Equal(id))
		Expect(seen.ActorEmail).To(Equal("ada@example.com"))
		Expect(seen.HasOrganization()).To(BeTrue())
	})

	It("rejects missing and signer tokens", func() {
		Expect(get("").Code).To(Equal(http.StatusUnauthorized))

		signer, _, err := jwt.GenerateSigner(uuid.New(), "alice@x.com", time.Minute)
		Expect(err).NotTo(HaveOccurred())
		Expect(get(signer).Code).To(Equal(http.StatusUnauthorized))
	})

	Context("when resolution fails", func() {
		BeforeEach(func() {
			resolver = mockResolver{resolveFn: func(uuid.UUID, string) (models.OperationContext, error) {
				return models.OperationContext{}, errors.New("db down")
			}}
		})

		It("aborts with an internal error", func() {
			token, _ := jwt.Generate(uuid.New(), "ada@example.com")
			Expect(get(token).Code).To(Equal(http.StatusInternalServerError))
		})
	})
})
