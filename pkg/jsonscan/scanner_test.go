package jsonscan_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/brookhq/brook/pkg/jsonscan"
)

var _ = Describe("Scanner", func() {
	var s *jsonscan.Scanner

	BeforeEach(func() {
		s = jsonscan.New()
	})

	It("captures a whole object delivered in one chunk", func() {
		raw, ok := s.Feed(`{"title":"Trip"}`)
		Expect(ok).To(BeTrue())
		Expect(string(raw)).To(Equal(`{"title":"Trip"}`))
		Expect(s.Done()).To(BeTrue())
	})

	It("captures an object surrounded by prose", func() {
		raw, ok := s.Feed(`Hello {"a":1} world`)
		Expect(ok).To(BeTrue())
		Expect(string(raw)).To(Equal(`{"a":1}`))
	})

	It("captures an object split across many chunks", func() {
		for _, chunk := range []string{"Hello ", `{"a"`, ":1"} {
			_, ok := s.Feed(chunk)
			Expect(ok).To(BeFalse())
		}

		raw, ok := s.Feed("} world")
		Expect(ok).To(BeTrue())
		Expect(string(raw)).To(Equal(`{"a":1}`))
	})

	It("captures single-character chunks", func() {
		input := `here it is: {"k":{"n":[1,2]}} done`
		var captured string
		for _, c := range input {
			if raw, ok := s.Feed(string(c)); ok {
				captured = string(raw)
			}
		}
		Expect(captured).To(Equal(`{"k":{"n":[1,2]}}`))
	})

	It("handles nested objects", func() {
		raw, ok := s.Feed(`{"outer":{"inner":{"deep":true}}}`)
		Expect(ok).To(BeTrue())
		Expect(string(raw)).To(Equal(`{"outer":{"inner":{"deep":true}}}`))
	})

	It("ignores braces inside string literals", func() {
		raw, ok := s.Feed(`{"text":"}{ not structure }{"}`)
		Expect(ok).To(BeTrue())
		Expect(string(raw)).To(Equal(`{"text":"}{ not structure }{"}`))
	})

	It("handles escaped quotes inside string literals", func() {
		raw, ok := s.Feed(`{"text":"say \"}\" loudly"}`)
		Expect(ok).To(BeTrue())
		Expect(string(raw)).To(Equal(`{"text":"say \"}\" loudly"}`))
	})

	It("handles an escape split across a chunk boundary", func() {
		_, ok := s.Feed(`{"text":"a\`)
		Expect(ok).To(BeFalse())

		raw, ok := s.Feed(`""}`)
		Expect(ok).To(BeTrue())
		Expect(string(raw)).To(Equal(`{"text":"a\""}`))
	})

	It("emits at most once and ignores later objects", func() {
		raw, ok := s.Feed(`{"first":1}`)
		Expect(ok).To(BeTrue())
		Expect(string(raw)).To(Equal(`{"first":1}`))

		raw, ok = s.Feed(`{"second":2}`)
		Expect(ok).To(BeFalse())
		Expect(raw).To(BeNil())
		Expect(s.Done()).To(BeTrue())
	})

	It("discards a balanced candidate that does not parse and recovers", func() {
		_, ok := s.Feed(`{broken}`)
		Expect(ok).To(BeFalse())
		Expect(s.Done()).To(BeFalse())

		raw, ok := s.Feed(` then {"good":true}`)
		Expect(ok).To(BeTrue())
		Expect(string(raw)).To(Equal(`{"good":true}`))
	})

	It("returns nothing for plain prose", func() {
		_, ok := s.Feed("no structure here at all")
		Expect(ok).To(BeFalse())
		Expect(s.Done()).To(BeFalse())
		Expect(s.State()).To(Equal(jsonscan.Scanning))
	})

	It("returns nothing for an unterminated object", func() {
		_, ok := s.Feed(`{"open":`)
		Expect(ok).To(BeFalse())
		Expect(s.Done()).To(BeFalse())
	})

	It("handles multi-byte characters inside strings", func() {
		raw, ok := s.Feed(`نص {"عنوان":"رحلة"} نهاية`)
		Expect(ok).To(BeTrue())
		Expect(string(raw)).To(Equal(`{"عنوان":"رحلة"}`))
	})

	It("handles empty chunks", func() {
		_, ok := s.Feed("")
		Expect(ok).To(BeFalse())

		raw, ok := s.Feed(`{"a":1}`)
		Expect(ok).To(BeTrue())
		Expect(string(raw)).To(Equal(`{"a":1}`))
	})
})
