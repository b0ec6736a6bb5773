package bsc

// MakeFrameEot builds the line reset frame. The canonical shape carries no
// trailing pad; the dongle adds line pads on transmit.
func MakeFrameEot() *Frame {
	return NewFrame(SYN, EOT)
}

// MakeFrameAck builds ACK0 when n is 0 and ACK1 otherwise.
func MakeFrameAck(n int) *Frame {
	if n == 0 {
		return NewFrame(SYN, DLE, ACK0)
	}
	return NewFrame(SYN, DLE, ACK1)
}

// MakeFrameNak builds a negative acknowledgement for a damaged text block.
func MakeFrameNak() *Frame {
	return NewFrame(SYN, NAK)
}

// MakeFramePollSelectAddress builds SYN cu cu dev dev ENQ from address
// characters.
func MakeFramePollSelectAddress(cuChar, devChar byte) *Frame {
	return NewFrame(SYN, cuChar, cuChar, devChar, devChar, ENQ)
}

// MakeFrameSelectAddress builds a select sequence. The control unit uses its
// select character and the terminal its poll character.
func MakeFrameSelectAddress(cu, dev int) (*Frame, error) {
	cuChar, err := SelectChar(cu)
	if err != nil {
		return nil, err
	}
	devChar, err := PollChar(dev)
	if err != nil {
		return nil, err
	}
	return MakeFramePollSelectAddress(cuChar, devChar), nil
}

// MakeFramePollAddress builds a specific poll sequence using poll characters
// for both the control unit and the terminal.
func MakeFramePollAddress(cu, dev int) (*Frame, error) {
	cuChar, err := PollChar(cu)
	if err != nil {
		return nil, err
	}
	devChar, err := PollChar(dev)
	if err != nil {
		return nil, err
	}
	return MakeFramePollSelectAddress(cuChar, devChar), nil
}

// MakeFrameCommand builds a text block carrying data. The block ends with ETX
// when last is set and ETB otherwise. In transparent mode the block is framed
// by DLE STX ... DLE ETX/ETB and literal DLE bytes in data are doubled.
// The BCC follows the terminator.
func MakeFrameCommand(data []byte, last, transparent bool) *Frame {
	f := NewFrame(SYN)

	if transparent {
		f.AppendEscaped(STX)
	} else {
		f.AppendDataByte(STX)
	}

	for _, b := range data {
		f.AppendDataByte(b)
	}

	end := ETB
	if last {
		end = ETX
	}
	if transparent {
		f.AppendEscaped(end)
	} else {
		f.AppendDataByte(end)
	}
	return f
}
