package bsc

import "fmt"

// FrameType classifies a received frame. It is always derived from the frame
// bytes and never stored.
type FrameType int

const (
	FrameEOT             FrameType = 1
	FrameENQ             FrameType = 2
	FrameACK             FrameType = 3
	FrameNAK             FrameType = 4
	FrameWACK            FrameType = 5
	FrameRVI             FrameType = 6
	FramePollSelect      FrameType = 7
	FrameText            FrameType = 9
	FrameTransparentText FrameType = 10
	FrameBad             FrameType = -1

	// Synthetic outcomes of a response wait.
	ResponseTimeout    FrameType = -2
	ResponseOtherError FrameType = -99
)

var frameTypeNames = map[FrameType]string{
	FrameEOT:             "EOT",
	FrameENQ:             "ENQ",
	FrameACK:             "ACK",
	FrameNAK:             "NAK",
	FrameWACK:            "WACK",
	FrameRVI:             "RVI",
	FramePollSelect:      "POLL_SELECT",
	FrameText:            "TEXT",
	FrameTransparentText: "TRANSPARENT_TEXT",
	FrameBad:             "BAD",
	ResponseTimeout:      "RESPONSE_TIMEOUT",
	ResponseOtherError:   "RESPONSE_OTHER_ERROR",
}

func (t FrameType) String() string {
	if name, ok := frameTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("FrameType(%d)", int(t))
}

// IsText reports whether the frame carries a text block.
func (t FrameType) IsText() bool {
	return t == FrameText || t == FrameTransparentText
}
