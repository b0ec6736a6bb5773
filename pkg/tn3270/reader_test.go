package tn3270_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/OpenTraceLab/OpenTraceBSC/pkg/tn3270"
)

type command struct{ cmd, option byte }

type subneg struct {
	option byte
	data   []byte
}

type recorder struct {
	commands []command
	subnegs  []subneg
	records  [][]byte
}

func (r *recorder) HandleCommand(cmd, option byte) {
	r.commands = append(r.commands, command{cmd, option})
}

func (r *recorder) HandleSubNegotiation(option byte, data []byte) {
	r.subnegs = append(r.subnegs, subneg{option, data})
}

func (r *recorder) HandleRecord(record []byte) {
	r.records = append(r.records, record)
}

var _ = Describe("Parser", func() {
	var (
		rec    *recorder
		parser *tn3270.Parser
	)

	BeforeEach(func() {
		rec = &recorder{}
		parser = tn3270.NewParser(rec)
	})

	It("delivers data on IAC EOR", func() {
		parser.Feed([]byte{0xF5, 0xC3, tn3270.IAC, tn3270.EOR})
		Expect(rec.records).To(Equal([][]byte{{0xF5, 0xC3}}))
		Expect(parser.Buffered()).To(Equal(0))
	})

	It("unescapes IAC IAC", func() {
		parser.Feed([]byte{0x01, tn3270.IAC, tn3270.IAC, 0x02, tn3270.IAC, tn3270.EOR})
		Expect(rec.records).To(Equal([][]byte{{0x01, 0xFF, 0x02}}))
	})

	It("holds partial commands across reads", func() {
		parser.Feed([]byte{tn3270.IAC})
		Expect(rec.commands).To(BeEmpty())
		parser.Feed([]byte{tn3270.DO})
		Expect(rec.commands).To(BeEmpty())
		parser.Feed([]byte{tn3270.OptEOR, 0x40})
		Expect(rec.commands).To(Equal([]command{{tn3270.DO, tn3270.OptEOR}}))
		Expect(parser.Buffered()).To(Equal(1))
	})

	It("holds a sub negotiation until IAC SE", func() {
		parser.Feed([]byte{tn3270.IAC, tn3270.SB, tn3270.OptTType})
		parser.Feed([]byte{tn3270.SEND, tn3270.IAC})
		Expect(rec.subnegs).To(BeEmpty())
		parser.Feed([]byte{tn3270.SE})
		Expect(rec.subnegs).To(HaveLen(1))
		Expect(rec.subnegs[0].option).To(Equal(tn3270.OptTType))
		Expect(rec.subnegs[0].data).To(Equal([]byte{tn3270.SEND}))
	})

	It("keeps negotiation out of the record", func() {
		parser.Feed([]byte{0x11, tn3270.IAC, tn3270.WILL, tn3270.OptBinary, 0x22, tn3270.IAC, tn3270.NOP, 0x33, tn3270.IAC, tn3270.EOR})
		Expect(rec.records).To(Equal([][]byte{{0x11, 0x22, 0x33}}))
		Expect(rec.commands).To(Equal([]command{{tn3270.WILL, tn3270.OptBinary}, {tn3270.NOP, 0}}))
	})

	It("splits several records in one read", func() {
		parser.Feed([]byte{0x01, tn3270.IAC, tn3270.EOR, 0x02, tn3270.IAC, tn3270.EOR, 0x03})
		Expect(rec.records).To(Equal([][]byte{{0x01}, {0x02}}))
		Expect(parser.Buffered()).To(Equal(1))
	})
})

var _ = Describe("EscapeRecord", func() {
	It("doubles IAC and terminates with EOR", func() {
		Expect(tn3270.EscapeRecord([]byte{0x7D, 0xFF, 0x40})).To(Equal([]byte{0x7D, 0xFF, 0xFF, 0x40, 0xFF, 0xEF}))
	})

	It("round trips through the parser", func() {
		rec := &recorder{}
		p := tn3270.NewParser(rec)
		data := []byte{0xFF, 0xFF, 0x00, 0xEF, 0xFF}
		p.Feed(tn3270.EscapeRecord(data))
		Expect(rec.records).To(Equal([][]byte{data}))
	})
})
