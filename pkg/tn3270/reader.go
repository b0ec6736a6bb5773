package tn3270

import (
	"bytes"
)

// Handler receives what the Parser extracts from the server stream.
type Handler interface {
	HandleCommand(cmd, option byte)
	HandleSubNegotiation(option byte, data []byte)
	HandleRecord(record []byte)
}

// Parser splits a Telnet byte stream into commands and EOR-terminated
// records. Incomplete commands are held until more bytes arrive.
type Parser struct {
	buf     bytes.Buffer // unparsed input
	record  bytes.Buffer // data of the record being assembled
	handler Handler
}

func NewParser(h Handler) *Parser {
	return &Parser{handler: h}
}

// Feed parses chunk.
func (p *Parser) Feed(chunk []byte) {
	p.buf.Write(chunk)
	p.process()
}

// Buffered returns the number of record bytes waiting for IAC EOR.
func (p *Parser) Buffered() int {
	return p.record.Len()
}

func (p *Parser) process() {
	for {
		data := p.buf.Bytes()
		iacIndex := bytes.IndexByte(data, IAC)
		if iacIndex == -1 {
			p.record.Write(p.buf.Next(p.buf.Len()))
			return
		}
		if iacIndex > 0 {
			p.record.Write(p.buf.Next(iacIndex))
			data = p.buf.Bytes()
		}

		if len(data) < 2 {
			return
		}

		switch cmd := data[1]; cmd {
		case IAC:
			p.record.WriteByte(IAC)
			p.buf.Next(2)

		case WILL, WONT, DO, DONT:
			if len(data) < 3 {
				return
			}
			p.handler.HandleCommand(cmd, data[2])
			p.buf.Next(3)

		case SB:
			seIndex := bytes.Index(data, []byte{IAC, SE})
			if seIndex == -1 {
				return
			}
			if seIndex >= 3 {
				sub := append([]byte(nil), data[3:seIndex]...)
				p.handler.HandleSubNegotiation(data[2], sub)
			}
			p.buf.Next(seIndex + 2)

		case EOR:
			record := append([]byte(nil), p.record.Bytes()...)
			p.record.Reset()
			p.buf.Next(2)
			p.handler.HandleRecord(record)

		default:
			p.handler.HandleCommand(cmd, 0)
			p.buf.Next(2)
		}
	}
}
