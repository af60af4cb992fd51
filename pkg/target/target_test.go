package target_test

import (
	"net/url"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/timespace/pkg/target"
)

var _ = Describe("Parse", func() {
	DescribeTable("rejects malformed locators",
		func(raw string) {
			t, err := target.Parse(raw)
			Expect(err).To(MatchError(target.ErrMalformedTarget))
			Expect(t.IsZero()).To(BeTrue())
		},
		Entry("empty", ""),
		Entry("whitespace", "   "),
		Entry("relative path", "/stream?message=hi"),
		Entry("unsupported scheme", "ftp://example.com/stream"),
		Entry("missing host", "http:///stream"),
		Entry("bad escape", "http://example.com/%zz"),
	)

	It("accepts an http URL with a query", func() {
		t, err := target.Parse("http://127.0.0.1:8000/stream?message=Hello%21")
		Expect(err).NotTo(HaveOccurred())
		Expect(t.String()).To(Equal("http://127.0.0.1:8000/stream?message=Hello%21"))
		Expect(t.Query("message")).To(Equal("Hello!"))
	})

	It("trims surrounding whitespace", func() {
		t, err := target.Parse("  https://example.com/stream \n")
		Expect(err).NotTo(HaveOccurred())
		Expect(t.String()).To(Equal("https://example.com/stream"))
	})

	It("panics in MustParse for malformed input", func() {
		Expect(func() { target.MustParse("") }).To(Panic())
	})
})

var _ = Describe("Builder", func() {
	It("rejects a malformed base", func() {
		_, err := target.NewBuilder("not a url")
		Expect(err).To(MatchError(target.ErrMalformedTarget))
	})

	It("url-encodes the message into the default parameter", func() {
		b, err := target.NewBuilder("http://127.0.0.1:8000/stream")
		Expect(err).NotTo(HaveOccurred())

		t := b.WithMessage("what's on my calendar & why?")
		u, err := url.Parse(t.String())
		Expect(err).NotTo(HaveOccurred())
		Expect(u.Path).To(Equal("/stream"))
		Expect(u.Query().Get("message")).To(Equal("what's on my calendar & why?"))
	})

	It("keeps existing query parameters on the base", func() {
		b, err := target.NewBuilder("http://127.0.0.1:8000/stream?model=fast")
		Expect(err).NotTo(HaveOccurred())

		t := b.WithMessage("hi")
		Expect(t.Query("model")).To(Equal("fast"))
		Expect(t.Query("message")).To(Equal("hi"))
	})

	It("replaces a message already present on the base", func() {
		b, err := target.NewBuilder("http://127.0.0.1:8000/stream?message=old")
		Expect(err).NotTo(HaveOccurred())
		Expect(b.WithMessage("new").Query("message")).To(Equal("new"))
	})

	It("adds the thread identifier to every target", func() {
		id := target.NewThreadID()
		b, err := target.NewBuilder("http://127.0.0.1:8000/stream",
			target.WithThread("", id),
			target.WithMessageParam("q"),
		)
		Expect(err).NotTo(HaveOccurred())
		Expect(b.ThreadID()).To(Equal(id))

		t := b.WithMessage("hello")
		Expect(t.Query("thread_id")).To(Equal(id))
		Expect(t.Query("q")).To(Equal("hello"))
		Expect(b.Base().Query("thread_id")).To(Equal(id))
		Expect(b.Base().Query("q")).To(BeEmpty())
	})

	It("generates distinct UUID thread identifiers", func() {
		a, b := target.NewThreadID(), target.NewThreadID()
		Expect(a).NotTo(Equal(b))
		_, err := uuid.Parse(a)
		Expect(err).NotTo(HaveOccurred())
	})

	It("builds equal targets for equal messages", func() {
		b, err := target.NewBuilder("http://127.0.0.1:8000/stream")
		Expect(err).NotTo(HaveOccurred())
		Expect(b.WithMessage("same")).To(Equal(b.WithMessage("same")))
	})
})
