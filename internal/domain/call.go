package domain

import "encoding/json"

const MaxCallIDLen = 64

type CallID string

type CallState string

const (
	CallRinging  CallState = "ringing"
	CallActive   CallState = "active"
	CallDeclined CallState = "declined"
	CallTimedOut CallState = "timed_out"
	CallEnded    CallState = "ended"
)

func (s CallState) Terminal() bool {
	return s != CallRinging && s != CallActive
}

type SignalKind string

const (
	SignalOffer     SignalKind = "offer"
	SignalAnswer    SignalKind = "answer"
	SignalCandidate SignalKind = "ice-candidate"
)

// SignalingPayload is relayed between exactly two endpoints and never stored.
type SignalingPayload struct {
	FromID UserID          `json:"fromId"`
	ToID   UserID          `json:"toId"`
	CallID CallID          `json:"callId,omitempty"`
	Kind   SignalKind      `json:"kind"`
	Body   json.RawMessage `json:"body"`
}
