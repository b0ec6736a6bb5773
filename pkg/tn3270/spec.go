package tn3270

// TN3270 rides on plain Telnet (RFC 854) with three options negotiated:
// BINARY (RFC 856), TERMINAL-TYPE (RFC 1091) and END-OF-RECORD (RFC 885).
// Every 3270 datastream record is terminated by IAC EOR.

const (
	EOR  byte = 239 // End of record
	SE   byte = 240 // Sub negotiation end
	NOP  byte = 241 // No operation
	GA   byte = 249 // Go ahead
	SB   byte = 250 // Sub negotiation begin
	WILL byte = 251
	WONT byte = 252
	DO   byte = 253
	DONT byte = 254
	IAC  byte = 255 // Interpret as command

	// TERMINAL-TYPE sub negotiation
	IS   byte = 0
	SEND byte = 1

	// Options
	OptBinary byte = 0
	OptTType  byte = 24
	OptEOR    byte = 25
)

// DefaultTerminalType is reported when none is configured.
const DefaultTerminalType = "IBM-3279-4-E"

// CommandNames maps Telnet command bytes to their names.
var CommandNames = map[byte]string{
	EOR:  "EOR",
	SE:   "SE",
	NOP:  "NOP",
	GA:   "GA",
	SB:   "SB",
	WILL: "WILL",
	WONT: "WONT",
	DO:   "DO",
	DONT: "DONT",
	IAC:  "IAC",
}

// OptionNames maps the negotiated options to their names.
var OptionNames = map[byte]string{
	OptBinary: "BINARY",
	OptTType:  "TERMINAL_TYPE",
	OptEOR:    "EOR",
}
