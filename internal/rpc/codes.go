// Package rpc adapts the internal command/ack protocol onto the numeric
// RPC ack codes. It treats the actual RPC transport as an opaque
// external sink, exposing only the polling adapter and the code
// translation that any such transport would need.
package rpc

import "github.com/skytelescope/mirrortherm/internal/command"

// Code is a wire-level RPC acknowledgement code
type Code int

const (
	InProgress   Code = 301
	Complete     Code = 303
	NotPermitted Code = -300
	Aborted      Code = -303
	Failed       Code = -302
)

// subcodeBase anchors the reject-kind sub-codes:
// -320 InvalidState, -321 InvalidParameter, -322 AlreadyInProgress,
// -323 ExecutionBlocked, -324 AlreadyInState (RejectKind's declared
// order is the offset from subcodeBase).
const subcodeBase = -320

// TranslateAck maps one command.Ack onto its RPC wire representation:
// a terminal code, and for rejections a sub-code identifying the reason.
func TranslateAck(ack command.Ack) (code Code, subcode int, hasSubcode bool) {
	switch ack.State {
	case command.AckInProgress:
		return InProgress, 0, false
	case command.AckComplete:
		return Complete, 0, false
	case command.AckNotPermitted:
		return NotPermitted, subcodeBase - int(ack.Kind), true
	case command.AckFailed:
		return Failed, subcodeBase - int(ack.Kind), true
	default:
		return Failed, 0, false
	}
}
