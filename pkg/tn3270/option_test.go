package tn3270_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/OpenTraceLab/OpenTraceBSC/pkg/tn3270"
)

const probe byte = 200 // an option the client does not know

// prime drives a fresh set's option into the requested current and desired
// state using only the public API.
func prime(code byte, current, desired tn3270.OptionState) *tn3270.OptionSet {
	s := tn3270.NewOptionSet()
	s.SetDesired(code, tn3270.StateEnabled)
	switch current {
	case tn3270.StateEnabled:
		s.Receive(tn3270.DO, code)
	case tn3270.StateDisabled:
		s.SetDesired(code, tn3270.StateDisabled)
		s.Receive(tn3270.DO, code)
	}
	s.SetDesired(code, desired)
	o, _ := s.Get(code)
	Expect(o.State).To(Equal(current))
	Expect(o.Desired).To(Equal(desired))
	return s
}

var _ = Describe("Option negotiation", func() {
	const (
		unknown  = tn3270.StateUnknown
		disabled = tn3270.StateDisabled
		enabled  = tn3270.StateEnabled
	)

	DescribeTable("responds per the negotiation table",
		func(cmd byte, current, desired tn3270.OptionState, reply byte, newState, newDesired tn3270.OptionState) {
			s := prime(probe, current, desired)
			got := s.Receive(cmd, probe)
			if reply == 0 {
				Expect(got).To(BeNil())
			} else {
				Expect(got).To(Equal([]byte{tn3270.IAC, reply, probe}))
			}
			o, _ := s.Get(probe)
			Expect(o.State).To(Equal(newState))
			Expect(o.Desired).To(Equal(newDesired))
		},
		Entry("WILL unknown, want off", tn3270.WILL, unknown, disabled, tn3270.DONT, disabled, disabled),
		Entry("WILL off, want off", tn3270.WILL, disabled, disabled, tn3270.DONT, disabled, disabled),
		Entry("WILL on, want off", tn3270.WILL, enabled, disabled, tn3270.DONT, disabled, disabled),
		Entry("WILL unknown, want on", tn3270.WILL, unknown, enabled, tn3270.DO, enabled, enabled),
		Entry("WILL off, want on", tn3270.WILL, disabled, enabled, tn3270.DO, enabled, enabled),
		Entry("WILL on, want on", tn3270.WILL, enabled, enabled, tn3270.DO, enabled, enabled),

		Entry("WONT unknown, want off", tn3270.WONT, unknown, disabled, tn3270.DONT, disabled, disabled),
		Entry("WONT off, want off", tn3270.WONT, disabled, disabled, byte(0), disabled, disabled),
		Entry("WONT on, want off", tn3270.WONT, enabled, disabled, tn3270.DONT, disabled, disabled),
		Entry("WONT unknown, want on", tn3270.WONT, unknown, enabled, tn3270.DONT, disabled, disabled),
		Entry("WONT off, want on", tn3270.WONT, disabled, enabled, tn3270.DONT, disabled, disabled),
		Entry("WONT on, want on", tn3270.WONT, enabled, enabled, tn3270.DONT, disabled, disabled),

		Entry("DO unknown, want off", tn3270.DO, unknown, disabled, tn3270.WONT, disabled, disabled),
		Entry("DO off, want off", tn3270.DO, disabled, disabled, tn3270.WONT, disabled, disabled),
		Entry("DO on, want off", tn3270.DO, enabled, disabled, tn3270.WONT, disabled, disabled),
		Entry("DO unknown, want on", tn3270.DO, unknown, enabled, tn3270.WILL, enabled, enabled),
		Entry("DO off, want on", tn3270.DO, disabled, enabled, tn3270.WILL, enabled, enabled),
		Entry("DO on, want on", tn3270.DO, enabled, enabled, byte(0), enabled, enabled),

		Entry("DONT unknown, want off", tn3270.DONT, unknown, disabled, tn3270.WONT, disabled, disabled),
		Entry("DONT off, want off", tn3270.DONT, disabled, disabled, byte(0), disabled, disabled),
		Entry("DONT on, want off", tn3270.DONT, enabled, disabled, tn3270.WONT, disabled, disabled),
		Entry("DONT unknown, want on", tn3270.DONT, unknown, enabled, tn3270.WONT, disabled, disabled),
		Entry("DONT off, want on", tn3270.DONT, disabled, enabled, tn3270.WONT, disabled, disabled),
		Entry("DONT on, want on", tn3270.DONT, enabled, enabled, tn3270.WONT, disabled, disabled),
	)

	It("desires the TN3270 options by default", func() {
		s := tn3270.NewOptionSet()
		for _, code := range []byte{tn3270.OptBinary, tn3270.OptEOR, tn3270.OptTType} {
			o, ok := s.Get(code)
			Expect(ok).To(BeTrue())
			Expect(o.Desired).To(Equal(tn3270.StateEnabled))
			Expect(o.State).To(Equal(tn3270.StateUnknown))
		}
	})

	It("adds unknown options as disabled", func() {
		s := tn3270.NewOptionSet()
		_, ok := s.Get(probe)
		Expect(ok).To(BeFalse())

		Expect(s.Receive(tn3270.WILL, probe)).To(Equal([]byte{tn3270.IAC, tn3270.DONT, probe}))
		o, ok := s.Get(probe)
		Expect(ok).To(BeTrue())
		Expect(o.Name).To(Equal("UNSUPPORTED_200"))
	})

	It("only negotiates a changed desire", func() {
		s := tn3270.NewOptionSet()
		Expect(s.SetDesired(tn3270.OptEOR, tn3270.StateEnabled)).To(BeNil())
		Expect(s.SetDesired(tn3270.OptEOR, tn3270.StateDisabled)).To(Equal([]byte{tn3270.IAC, tn3270.WONT, tn3270.OptEOR}))
		Expect(s.SetDesired(tn3270.OptEOR, tn3270.StateEnabled)).To(Equal([]byte{tn3270.IAC, tn3270.WILL, tn3270.OptEOR}))
	})

	It("names states", func() {
		Expect(tn3270.StateUnknown.String()).To(Equal("unknown"))
		Expect(tn3270.OptionState(7).String()).To(Equal("OptionState(7)"))
	})
})
