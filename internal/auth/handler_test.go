package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pactline/backend/internal/apperr"
	"github.com/pactline/backend/internal/auth"
	"github.com/pactline/backend/internal/models"
	"github.com/pactline/backend/pkg/utils"
)

type memUsers struct {
	byEmail map[string]*models.User
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	u, ok := m.byEmail[email]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) Create(_ context.Context, email, hash, name string) (*models.User, error) {
	if _, ok := m.byEmail[email]; ok {
		return nil, auth.ErrEmailTaken
	}
	u := &models.User{ID: uuid.New(), Email: email, Password: hash, FullName: name}
	m.byEmail[email] = u
	return u, nil
}

type mockEnsurer struct {
	ensureFn func(userID uuid.UUID) (*models.Organization, error)
	calls    int
	names    []string
}

func (m *mockEnsurer) EnsureOrganization(_ context.Context, userID uuid.UUID, name string) (*models.Organization, error) {
	m.calls++
	m.names = append(m.names, name)
	if m.ensureFn != nil {
		return m.ensureFn(userID)
	}
	return &models.Organization{ID: uuid.New(), Name: "Personal"}, nil
}

type tokenBody struct {
	Success bool `json:"success"`
	Data    struct {
		Token        string               `json:"token"`
		User         models.UserPublic    `json:"user"`
		Organization *models.Organization `json:"organization"`
	} `json:"data"`
	Error string `json:"error"`
}

var _ = Describe("Handler", func() {
	var (
		users   *memUsers
		ensurer *mockEnsurer
		jwt     *auth.JWTService
		router  *gin.Engine
	)

	post := func(path string, body any) (*httptest.ResponseRecorder, tokenBody) {
		raw, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		var out tokenBody
		Expect(json.Unmarshal(w.Body.Bytes(), &out)).To(Succeed())
		return w, out
	}

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		users = &memUsers{byEmail: map[string]*models.User{}}
		ensurer = &mockEnsurer{}
		jwt = auth.NewJWTService("test-secret", 1)
		h := auth.NewHandler(users, ensurer, jwt, nil)
		router = gin.New()
		router.POST("/auth/register", h.Register)
		router.POST("/auth/login", h.Login)
	})

	It("registers, provisions an organization and issues a token", func() {
		w, body := post("/auth/register", gin.H{"email": "Ada@Example.com", "password": "correct horse", "full_name": "Ada"})
		Expect(w.Code).To(Equal(http.StatusCreated))
		Expect(body.Data.User.Email).To(Equal("ada@example.com"))
		Expect(body.Data.Organization).NotTo(BeNil())
		Expect(ensurer.calls).To(Equal(1))
		Expect(ensurer.names).To(Equal([]string{"Ada"}))

		claims, err := jwt.ValidateUser(body.Data.Token)
		Expect(err).NotTo(HaveOccurred())
		Expect(claims.UserID).To(Equal(body.Data.User.ID))
	})

	It("names the organization after the email when the full name is blank", func() {
		w, _ := post("/auth/register", gin.H{"email": "grace@example.com", "password": "correct horse", "full_name": "   "})
		Expect(w.Code).To(Equal(http.StatusCreated))
		Expect(ensurer.names).To(Equal([]string{"grace"}))
	})

	It("rejects passwords bcrypt would truncate", func() {
		w, body := post("/auth/register", gin.H{"email": "ada@example.com", "password": strings.Repeat("x", 73), "full_name": "Ada"})
		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(body.Success).To(BeFalse())
		Expect(users.byEmail).To(BeEmpty())
	})

	It("rejects a taken email", func() {
		post("/auth/register", gin.H{"email": "ada@example.com", "password": "correct horse", "full_name": "Ada"})
		w, body := post("/auth/register", gin.H{"email": "ada@example.com", "password": "correct horse", "full_name": "Ada"})
		Expect(w.Code).To(Equal(http.StatusConflict))
		Expect(body.Success).To(BeFalse())
	})

	It("logs in and re-runs provisioning", func() {
		hash, err := utils.HashPassword("correct horse")
		Expect(err).NotTo(HaveOccurred())
		users.byEmail["ada@example.com"] = &models.User{ID: uuid.New(), Email: "ada@example.com", Password: hash, FullName: "Ada"}

		w, body := post("/auth/login", gin.H{"email": "ada@example.com", "password": "correct horse"})
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(body.Data.Token).NotTo(BeEmpty())
		Expect(ensurer.calls).To(Equal(1))
	})

	It("still issues a token when provisioning fails", func() {
		ensurer.ensureFn = func(uuid.UUID) (*models.Organization, error) { return nil, errors.New("db down") }
		w, body := post("/auth/register", gin.H{"email": "ada@example.com", "password": "correct horse", "full_name": "Ada"})
		Expect(w.Code).To(Equal(http.StatusCreated))
		Expect(body.Data.Token).NotTo(BeEmpty())
		Expect(body.Data.Organization).To(BeNil())
	})

	It("gives unknown emails and wrong passwords the same answer", func() {
		hash, _ := utils.HashPassword("correct horse")
		users.byEmail["ada@example.com"] = &models.User{ID: uuid.New(), Email: "ada@example.com", Password: hash}

		w1, b1 := post("/auth/login", gin.H{"email": "ada@example.com", "password": "wrong password"})
		w2, b2 := post("/auth/login", gin.H{"email": "nobody@example.com", "password": "wrong password"})
		Expect(w1.Code).To(Equal(http.StatusUnauthorized))
		Expect(w2.Code).To(Equal(http.StatusUnauthorized))
		Expect(b1.Error).To(Equal(b2.Error))
	})
})
