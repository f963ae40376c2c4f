package fingerprint_test

import (
	"encoding/json"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pactline/backend/internal/apperr"
	"github.com/pactline/backend/internal/content"
	"github.com/pactline/backend/internal/fingerprint"
)

func nda() content.Content {
	return content.Content{
		Title: "NDA",
		Blocks: []content.Block{
			content.Header{ID: "1", Content: "NDA"},
			content.Clause{ID: "2", Content: "The parties agree to keep secrets."},
			content.ListItem{ID: "3", Content: "Term: 2 years"},
			content.Footer{ID: "4", Content: "Signed below"},
		},
		Metadata: map[string]string{"jurisdiction": "SE", "locale": "en"},
	}
}

var _ = Describe("Of", func() {
	It("is deterministic for the same content", func() {
		Expect(fingerprint.Of(nda())).To(Equal(fingerprint.Of(nda())))
	})

	It("is stable across a JSON round trip", func() {
		raw, err := json.Marshal(nda())
		Expect(err).NotTo(HaveOccurred())
		var decoded content.Content
		Expect(json.Unmarshal(raw, &decoded)).To(Succeed())
		Expect(fingerprint.Of(decoded)).To(Equal(fingerprint.Of(nda())))
	})

	It("does not depend on metadata insertion order", func() {
		a := nda()
		a.Metadata = map[string]string{"a": "1", "b": "2", "c": "3"}
		b := nda()
		b.Metadata = map[string]string{"c": "3", "a": "1", "b": "2"}
		Expect(fingerprint.Of(a)).To(Equal(fingerprint.Of(b)))
	})

	It("produces a 256-bit hex digest with a sha256 prefix", func() {
		d := fingerprint.Of(nda())
		Expect(string(d)).To(HavePrefix("sha256:"))
		Expect(strings.TrimPrefix(string(d), "sha256:")).To(MatchRegexp(`^[0-9a-f]{64}$`))
		Expect(d.Valid()).To(BeTrue())
	})

	DescribeTable("changes on any edit",
		func(mutate func(c *content.Content)) {
			edited := nda()
			mutate(&edited)
			Expect(fingerprint.Of(edited)).NotTo(Equal(fingerprint.Of(nda())))
		},
		Entry("title character", func(c *content.Content) { c.Title = "NDa" }),
		Entry("block text character", func(c *content.Content) {
			c.Blocks[1] = content.Clause{ID: "2", Content: "The parties agree to keep secrets!"}
		}),
		Entry("block id", func(c *content.Content) {
			c.Blocks[0] = content.Header{ID: "1a", Content: "NDA"}
		}),
		Entry("block type", func(c *content.Content) {
			c.Blocks[1] = content.ListItem{ID: "2", Content: "The parties agree to keep secrets."}
		}),
		Entry("reorder", func(c *content.Content) {
			c.Blocks[1], c.Blocks[2] = c.Blocks[2], c.Blocks[1]
		}),
		Entry("insertion", func(c *content.Content) {
			c.Blocks = append(c.Blocks, content.Clause{ID: "5", Content: "Extra"})
		}),
		Entry("deletion", func(c *content.Content) { c.Blocks = c.Blocks[:3] }),
		Entry("metadata value", func(c *content.Content) { c.Metadata["locale"] = "sv" }),
		Entry("trailing whitespace in text", func(c *content.Content) {
			c.Blocks[3] = content.Footer{ID: "4", Content: "Signed below "}
		}),
	)

	It("does not let text shift between adjacent blocks unnoticed", func() {
		a := content.Content{Title: "T", Blocks: []content.Block{
			content.Clause{ID: "1", Content: "ab"}, content.Clause{ID: "2", Content: "c"},
		}}
		b := content.Content{Title: "T", Blocks: []content.Block{
			content.Clause{ID: "1", Content: "a"}, content.Clause{ID: "2", Content: "bc"},
		}}
		Expect(fingerprint.Of(a)).NotTo(Equal(fingerprint.Of(b)))
	})
})

var _ = Describe("Verify", func() {
	It("accepts the digest of the same content", func() {
		Expect(fingerprint.Verify(nda(), fingerprint.Of(nda()))).To(Succeed())
	})

	It("reports an integrity violation on mismatch", func() {
		edited := nda()
		edited.Title = "Changed"
		err := fingerprint.Verify(edited, fingerprint.Of(nda()))
		Expect(err).To(MatchError(apperr.ErrIntegrityViolation))
	})
})

var _ = Describe("Digest.Valid", func() {
	It("rejects malformed digests", func() {
		Expect(fingerprint.Digest("").Valid()).To(BeFalse())
		Expect(fingerprint.Digest("sha256:abc").Valid()).To(BeFalse())
		Expect(fingerprint.Digest("md5:" + strings.Repeat("a", 64)).Valid()).To(BeFalse())
		Expect(fingerprint.Digest("sha256:" + strings.Repeat("A", 64)).Valid()).To(BeFalse())
	})
})
