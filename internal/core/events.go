package core

import (
	"encoding/json"

	"github.com/dkeye/Parley/internal/domain"
)

// Event types emitted to clients.
const (
	EventAuthenticated    = "authenticated"
	EventPong             = "pong"
	EventWhoAmI           = "whoami"
	EventError            = "error"
	EventPresenceChanged  = "presence-changed"
	EventMessageSent      = "message-sent"
	EventMessageDelivered = "message-delivered"
	EventCallRinging      = "call-ringing"
	EventCallInvited      = "call-invited"
	EventCallJoined       = "call-joined"
	EventCallDeclined     = "call-declined"
	EventCallLeft         = "call-left"
	EventCallEnded        = "call-ended"
	EventCallTimeout      = "call-timeout"
	EventSignalRelayed    = "signaling-relayed"
)

type PresenceEvent struct {
	Type   string                `json:"type"`
	UserID domain.UserID         `json:"userId"`
	Status domain.PresenceStatus `json:"status"`
}

type MessageEvent struct {
	Type string `json:"type"`
	domain.Message
}

type CallEvent struct {
	Type         string           `json:"type"`
	CallID       domain.CallID    `json:"callId"`
	UserID       domain.UserID    `json:"userId,omitempty"`
	InitiatorID  domain.UserID    `json:"initiatorId,omitempty"`
	IsGroup      bool             `json:"isGroup,omitempty"`
	GroupID      domain.GroupID   `json:"groupId,omitempty"`
	State        domain.CallState `json:"state,omitempty"`
	Participants []domain.UserID  `json:"participants,omitempty"`
	// Started is set on the join that moved the call from ringing to active.
	Started bool `json:"started,omitempty"`
}

type SignalEvent struct {
	Type string `json:"type"`
	domain.SignalingPayload
}

type ErrorEvent struct {
	Type  string `json:"type"`
	Code  string `json:"code"`
	Error string `json:"error"`
	Ref   string `json:"ref,omitempty"`
}

func NewErrorEvent(ref string, err error) ErrorEvent {
	return ErrorEvent{Type: EventError, Code: domain.ErrorCode(err), Error: err.Error(), Ref: ref}
}

func Encode(v any) (Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Frame(b), nil
}
