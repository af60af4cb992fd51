package cliui_test

import (
	"bytes"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/timespace/pkg/cliui"
)

var _ = Describe("cliui", func() {
	Describe("Step", func() {
		It("prints a success line and returns nil", func() {
			var buf bytes.Buffer
			err := cliui.Step(&buf, "Connecting", func() error {
				time.Sleep(10 * time.Millisecond)
				return nil
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(buf.String()).To(ContainSubstring("Connecting"))
			Expect(buf.String()).To(ContainSubstring(cliui.SuccessMark))
			Expect(buf.String()).To(HaveSuffix("\n"))
		})

		It("returns the error and prints a failure mark", func() {
			var buf bytes.Buffer
			boom := errors.New("boom")
			err := cliui.Step(&buf, "Connecting", func() error { return boom })
			Expect(err).To(MatchError(boom))
			Expect(buf.String()).To(ContainSubstring(cliui.FailMark))
		})
	})

	Describe("Mark", func() {
		It("picks the mark from the error", func() {
			Expect(cliui.Mark(nil)).To(Equal(cliui.SuccessMark))
			Expect(cliui.Mark(errors.New("x"))).To(Equal(cliui.FailMark))
		})
	})

	Describe("FormatDuration", func() {
		It("uses milliseconds below a second", func() {
			Expect(cliui.FormatDuration(12 * time.Millisecond)).To(Equal("12ms"))
		})

		It("uses seconds with one decimal above a second", func() {
			Expect(cliui.FormatDuration(3200 * time.Millisecond)).To(Equal("3.2s"))
		})
	})

	Describe("RenderMarkdownWidth", func() {
		It("keeps the text of the document", func() {
			out, err := cliui.RenderMarkdownWidth("# Title\n\nsome *body* text", 40)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("Title"))
			Expect(out).To(ContainSubstring("body"))
		})

		It("falls back to the default width", func() {
			out, err := cliui.RenderMarkdownWidth("plain", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("plain"))
		})
	})
})
