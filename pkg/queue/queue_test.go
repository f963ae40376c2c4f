package queue_test

import (
	"encoding/json"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pactline/backend/pkg/queue"
)

var _ = Describe("Job.Decode", func() {
	It("decodes the payload into its typed form", func() {
		want := queue.SignatureArchivePayload{SignatureID: uuid.New(), ContractID: uuid.New()}
		raw, err := json.Marshal(want)
		Expect(err).NotTo(HaveOccurred())

		job := &queue.Job{Type: queue.JobTypeSignatureArchive, Payload: raw}
		var got queue.SignatureArchivePayload
		Expect(job.Decode(&got)).To(Succeed())
		Expect(got).To(Equal(want))
	})

	It("names the job type on failure", func() {
		job := &queue.Job{Type: queue.JobTypeSigningLink, Payload: json.RawMessage(`"nope"`)}
		var got queue.SigningLinkPayload
		Expect(job.Decode(&got)).To(MatchError(ContainSubstring("signing_link_email")))
	})
})
