package mailer

import (
	"context"
	"errors"
	"net/mail"
	"net/smtp"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pactline/backend/config"
)

var _ = Describe("SMTPSender", func() {
	var (
		sender *SMTPSender
		addr   string
		from   string
		to     []string
		msg    []byte
	)

	BeforeEach(func() {
		addr, from, to, msg = "", "", nil, nil
		sender = NewSMTPSender(config.EmailConfig{
			FromAddress: "no-reply@pactline.test",
			FromName:    "Pactline",
			SMTPHost:    "smtp.pactline.test",
			SMTPPort:    587,
			SMTPUser:    "mailer",
			SMTPPass:    "secret",
		})
		sender.send = func(a string, _ smtp.Auth, f string, t []string, m []byte) error {
			addr, from, to, msg = a, f, t, m
			return nil
		}
	})

	It("delivers the link through the relay", func() {
		Expect(sender.SendMagicLink(context.Background(), "alice@x.com", "https://app.pactline.test/sign/verify?token=abc")).To(Succeed())
		Expect(addr).To(Equal("smtp.pactline.test:587"))
		Expect(from).To(Equal("no-reply@pactline.test"))
		Expect(to).To(Equal([]string{"alice@x.com"}))
		Expect(string(msg)).To(ContainSubstring("Subject: " + SigningLinkSubject))
		Expect(string(msg)).To(ContainSubstring("https://app.pactline.test/sign/verify?token=abc"))
		Expect(sender.auth).NotTo(BeNil())
	})

	It("wraps relay failures", func() {
		sender.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("421 try later") }
		err := sender.SendMagicLink(context.Background(), "alice@x.com", "https://x")
		Expect(err).To(MatchError(ContainSubstring("421 try later")))
	})

	It("does not send on a cancelled context", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		Expect(sender.SendMagicLink(ctx, "alice@x.com", "https://x")).To(MatchError(context.Canceled))
		Expect(msg).To(BeNil())
	})
})

var _ = Describe("Compose", func() {
	It("writes RFC 5322 headers before the body", func() {
		at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		msg := string(Compose(mail.Address{Name: "Pactline", Address: "no-reply@pactline.test"}, "alice@x.com", "Hello", "Body", at))
		Expect(msg).To(HavePrefix(`From: "Pactline" <no-reply@pactline.test>` + "\r\n"))
		Expect(msg).To(ContainSubstring("To: alice@x.com\r\n"))
		Expect(msg).To(ContainSubstring("Date: Sun, 01 Mar 2026 12:00:00 +0000\r\n"))
		Expect(msg).To(HaveSuffix("\r\n\r\nBody"))
	})
})

var _ = Describe("New", func() {
	It("falls back to logging without a relay", func() {
		Expect(New(config.EmailConfig{}, nil)).To(BeAssignableToTypeOf(&LogSender{}))
		Expect(New(config.EmailConfig{SMTPHost: "smtp.pactline.test", SMTPPort: 25}, nil)).To(BeAssignableToTypeOf(&SMTPSender{}))
	})
})
