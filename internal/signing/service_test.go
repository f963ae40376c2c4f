package signing_test

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pactline/backend/internal/apperr"
	"github.com/pactline/backend/internal/models"
	"github.com/pactline/backend/internal/signing"
	"github.com/pactline/backend/pkg/utils"
)

// rawToken pulls the raw token back out of a queued link.
func rawToken(link string) string {
	u, err := url.Parse(link)
	Expect(err).NotTo(HaveOccurred())
	return u.Query().Get("token")
}

var _ = Describe("Service", func() {
	var (
		ctx     context.Context
		store   *memStore
		limiter *mockLimiter
		links   *mockLinkQueue
		svc     *signing.Service
		now     time.Time
		id      uuid.UUID
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = newMemStore()
		limiter = &mockLimiter{}
		links = &mockLinkQueue{}
		now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		id = uuid.New()
		store.contracts[id] = &memContract{
			status:       models.StatusPending,
			creatorEmail: "owner@acme.test",
			member:       true,
			invited:      map[string]bool{"alice@x.com": true},
			signed:       map[string]bool{},
		}
		svc = signing.NewService(store, limiter, links, mockSessions{}, signing.Config{
			PublicURL:    "https://app.pactline.test",
			LinkTTL:      15 * time.Minute,
			SessionTTL:   30 * time.Minute,
			ResendLimit:  3,
			ResendWindow: time.Hour,
		}, nil)
		svc.SetClock(func() time.Time { return now })
	})

	Describe("Authorize", func() {
		It("accepts invited emails regardless of case", func() {
			Expect(svc.Authorize(ctx, id, "Alice@X.com")).To(Succeed())
		})

		It("accepts the creator while they are a member", func() {
			Expect(svc.Authorize(ctx, id, "owner@acme.test")).To(Succeed())
		})

		It("rejects the creator once they left the organization", func() {
			store.contracts[id].member = false
			Expect(svc.Authorize(ctx, id, "owner@acme.test")).To(MatchError(signing.ErrNotAuthorizedToSign))
		})

		It("gives uninvited emails and unknown contracts the same answer", func() {
			uninvited := svc.Authorize(ctx, id, "bob@x.com")
			unknown := svc.Authorize(ctx, uuid.New(), "alice@x.com")
			Expect(uninvited).To(MatchError(signing.ErrNotAuthorizedToSign))
			Expect(unknown).To(MatchError(signing.ErrNotAuthorizedToSign))
			Expect(uninvited).To(MatchError(apperr.ErrUnauthorized))
		})

		It("rejects malformed emails", func() {
			Expect(svc.Authorize(ctx, id, "alice")).To(MatchError(signing.ErrNotAuthorizedToSign))
		})
	})

	Describe("Challenge", func() {
		It("queues a link and stores only the token hash", func() {
			Expect(svc.Challenge(ctx, id, "alice@x.com", "")).To(Succeed())
			Expect(links.sent).To(HaveLen(1))
			sent := links.sent[0]
			Expect(sent.RecipientEmail).To(Equal("alice@x.com"))
			Expect(sent.RedirectURL).To(HavePrefix("https://app.pactline.test/sign/verify?token="))
			Expect(sent.ExpiresAt).To(Equal(now.Add(15 * time.Minute)))

			raw := rawToken(sent.RedirectURL)
			Expect(raw).NotTo(BeEmpty())
			Expect(store.tokens).To(HaveKey(utils.HashToken(raw)))
			Expect(store.tokens).NotTo(HaveKey(raw))
			Expect(store.tokens[utils.HashToken(raw)].ReturnPath).To(Equal("/sign/" + id.String()))
		})

		It("refuses uninvited emails without queueing anything", func() {
			Expect(svc.Challenge(ctx, id, "bob@x.com", "")).To(MatchError(signing.ErrNotAuthorizedToSign))
			Expect(links.sent).To(BeEmpty())
			Expect(store.tokens).To(BeEmpty())
		})

		It("refuses drafts with the generic answer", func() {
			store.contracts[id].status = models.StatusDraft
			Expect(svc.Challenge(ctx, id, "alice@x.com", "")).To(MatchError(signing.ErrNotAuthorizedToSign))
			Expect(links.sent).To(BeEmpty())
		})

		It("answers the creator of a draft exactly like a stranger", func() {
			store.contracts[id].status = models.StatusDraft
			creatorErr := svc.Challenge(ctx, id, "owner@acme.test", "")
			strangerErr := svc.Challenge(ctx, id, "mallory@x.com", "")
			Expect(creatorErr).To(MatchError(signing.ErrNotAuthorizedToSign))
			Expect(creatorErr).To(Equal(strangerErr))
		})

		It("refuses encoded return paths that would leave the site", func() {
			Expect(svc.Challenge(ctx, id, "alice@x.com", "/%2F%2Fevil.test")).To(MatchError(signing.ErrInvalidReturnPath))
			Expect(store.tokens).To(BeEmpty())
		})

		It("rejects absolute return paths", func() {
			Expect(svc.Challenge(ctx, id, "alice@x.com", "https://evil.test/")).To(MatchError(apperr.ErrValidation))
		})

		It("rate limits per pair", func() {
			limiter.allowFn = func(string) (bool, error) { return false, nil }
			Expect(svc.Challenge(ctx, id, "alice@x.com", "")).To(MatchError(apperr.ErrRateLimited))
			Expect(limiter.keys).To(ConsistOf("signing:challenge:" + id.String() + ":alice@x.com"))
		})

		It("fails open when the limiter is unavailable", func() {
			limiter.allowFn = func(string) (bool, error) { return false, errors.New("redis down") }
			Expect(svc.Challenge(ctx, id, "alice@x.com", "")).To(Succeed())
		})

		It("surfaces queue failures", func() {
			links.err = errors.New("queue down")
			Expect(svc.Challenge(ctx, id, "alice@x.com", "")).To(HaveOccurred())
		})
	})

	Describe("Consume", func() {
		issue := func() string {
			Expect(svc.Challenge(ctx, id, "alice@x.com", "/sign/"+id.String())).To(Succeed())
			return rawToken(links.sent[len(links.sent)-1].RedirectURL)
		}

		It("opens a session exactly once", func() {
			raw := issue()
			sess, err := svc.Consume(ctx, raw)
			Expect(err).NotTo(HaveOccurred())
			Expect(sess.ContractID).To(Equal(id))
			Expect(sess.Email).To(Equal("alice@x.com"))
			Expect(sess.Token).To(ContainSubstring(id.String()))
			Expect(sess.Redirect).To(Equal("/sign/" + id.String() + "?email=alice%40x.com"))

			_, err = svc.Consume(ctx, raw)
			Expect(err).To(MatchError(signing.ErrLinkUsed))
		})

		It("invalidates older links when a new one is issued", func() {
			first := issue()
			second := issue()
			_, err := svc.Consume(ctx, first)
			Expect(err).To(MatchError(signing.ErrLinkSuperseded))
			_, err = svc.Consume(ctx, second)
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects expired links", func() {
			raw := issue()
			now = now.Add(15 * time.Minute)
			_, err := svc.Consume(ctx, raw)
			Expect(err).To(MatchError(signing.ErrLinkExpired))
		})

		It("rejects unknown and empty tokens", func() {
			_, err := svc.Consume(ctx, "nope")
			Expect(err).To(MatchError(signing.ErrLinkInvalid))
			_, err = svc.Consume(ctx, "  ")
			Expect(err).To(MatchError(signing.ErrLinkInvalid))
		})

		It("re-checks authorization at redemption", func() {
			raw := issue()
			delete(store.contracts[id].invited, "alice@x.com")
			_, err := svc.Consume(ctx, raw)
			Expect(err).To(MatchError(signing.ErrNotAuthorizedToSign))
		})
	})

	Describe("View", func() {
		It("reports signed once the signer has a signature", func() {
			v, err := svc.View(ctx, id, "alice@x.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(v.State).To(Equal(signing.StateLinkConsumed))

			store.contracts[id].signed["alice@x.com"] = true
			v, err = svc.View(ctx, id, "alice@x.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(v.State).To(Equal(signing.StateSigned))
		})
	})
})

var _ = DescribeTable("SanitizeReturnPath",
	func(in, want string, ok bool) {
		id := uuid.MustParse("00000000-0000-0000-0000-000000000001")
		got, err := signing.SanitizeReturnPath(in, id)
		if !ok {
			Expect(err).To(MatchError(signing.ErrInvalidReturnPath))
			return
		}
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(want))
	},
	Entry("empty defaults to the signing page", "", "/sign/00000000-0000-0000-0000-000000000001", true),
	Entry("signing page", "/sign/abc", "/sign/abc", true),
	Entry("doubled slashes collapse", "/sign//abc", "/sign/abc", true),
	Entry("page outside /sign/", "/dashboard", "", false),
	Entry("absolute URL", "https://evil.test/x", "", false),
	Entry("protocol relative", "//evil.test/x", "", false),
	Entry("backslash", "/\\evil.test", "", false),
	Entry("encoded slashes", "/%2F%2Fevil.test", "", false),
	Entry("encoded backslash", "/%5Cevil.test", "", false),
	Entry("encoded slashes under /sign/", "/sign/%2F%2Fevil.test", "", false),
	Entry("dot segments out of /sign/", "/sign/../../evil.test", "", false),
	Entry("query string", "/sign/abc?next=x", "", false),
	Entry("no leading slash", "sign/abc", "", false),
)
