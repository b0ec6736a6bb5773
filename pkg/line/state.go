package line

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceBSC/pkg/bsc"
)

// ExchangeState tracks one request/response exchange on the line. The line
// is half duplex, so there is a single current state rather than one per
// terminal.
type ExchangeState uint8

const (
	StateIdle ExchangeState = iota
	StateSent
	StateAwaitingResponse
	StateAcked
	StateNaked
	StateTimedOut
	StateLineBusy
	StatePendingStatus
	StateDone
)

var stateNames = map[ExchangeState]string{
	StateIdle:             "IDLE",
	StateSent:             "SENT",
	StateAwaitingResponse: "AWAITING_RESPONSE",
	StateAcked:            "ACKED",
	StateNaked:            "NAKED",
	StateTimedOut:         "TIMED_OUT",
	StateLineBusy:         "LINE_BUSY",
	StatePendingStatus:    "PENDING_STATUS",
	StateDone:             "DONE",
}

func (s ExchangeState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ExchangeState(%d)", s)
}

// Terminal reports whether s classifies a response. Every terminal state
// falls back to IDLE before the next exchange.
func (s ExchangeState) Terminal() bool {
	return s >= StateAcked
}

var responseStates = map[bsc.FrameType]ExchangeState{
	bsc.FrameACK:        StateAcked,
	bsc.FrameNAK:        StateNaked,
	bsc.FrameENQ:        StateNaked,
	bsc.ResponseTimeout: StateTimedOut,
	bsc.FrameWACK:       StateLineBusy,
	bsc.FrameRVI:        StatePendingStatus,
	bsc.FrameEOT:        StateDone,
}

// StateForResponse maps a classified response to the exchange state it
// ends in. Text and unexpected frames leave the exchange IDLE.
func StateForResponse(t bsc.FrameType) ExchangeState {
	if s, ok := responseStates[t]; ok {
		return s
	}
	return StateIdle
}

// Outcome summarizes one poll or send cycle for one terminal.
type Outcome uint8

const (
	OutcomeNoData         Outcome = iota // poll answered with EOT only
	OutcomeDelivered                     // poll produced a record
	OutcomeIdle                          // nothing queued to send
	OutcomeSent                          // every block acknowledged
	OutcomeBusy                          // WACK at select, payload requeued
	OutcomePendingStatus                 // RVI at select, payload requeued
	OutcomeUnavailable                   // no answer, payload requeued on select
	OutcomeRejected                      // unexpected answer at select, payload requeued
	OutcomeAborted                       // cycle abandoned, data discarded
	OutcomeStopped                       // stop observed before the cycle ran
)

var outcomeNames = map[Outcome]string{
	OutcomeNoData:        "no-data",
	OutcomeDelivered:     "delivered",
	OutcomeIdle:          "idle",
	OutcomeSent:          "sent",
	OutcomeBusy:          "busy",
	OutcomePendingStatus: "pending-status",
	OutcomeUnavailable:   "unavailable",
	OutcomeRejected:      "rejected",
	OutcomeAborted:       "aborted",
	OutcomeStopped:       "stopped",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Outcome(%d)", o)
}
