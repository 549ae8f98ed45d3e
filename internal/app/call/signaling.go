package call

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// ValidateSignal checks that body has the shape WebRTC expects for kind.
// The body itself is relayed untouched.
func ValidateSignal(kind domain.SignalKind, body json.RawMessage) error {
	if len(body) == 0 {
		return fmt.Errorf("missing signaling body: %w", domain.ErrValidation)
	}
	switch kind {
	case domain.SignalOffer, domain.SignalAnswer:
		var sd webrtc.SessionDescription
		if err := json.Unmarshal(body, &sd); err != nil {
			return fmt.Errorf("bad session description: %v: %w", err, domain.ErrValidation)
		}
		want := webrtc.SDPTypeOffer
		if kind == domain.SignalAnswer {
			want = webrtc.SDPTypeAnswer
		}
		if sd.Type != want {
			return fmt.Errorf("session description type %q for %s: %w", sd.Type.String(), kind, domain.ErrValidation)
		}
		if sd.SDP == "" {
			return fmt.Errorf("empty sdp: %w", domain.ErrValidation)
		}
	case domain.SignalCandidate:
		var ci webrtc.ICECandidateInit
		if err := json.Unmarshal(body, &ci); err != nil {
			return fmt.Errorf("bad ice candidate: %v: %w", err, domain.ErrValidation)
		}
	default:
		return fmt.Errorf("unknown signaling kind %q: %w", kind, domain.ErrValidation)
	}
	return nil
}

// RelaySignaling delivers p to the live connections of p.ToID. FromID is
// always the authenticated sender. A recipient with no live connection
// silently drops the payload; the returned count is then zero.
func (c *Coordinator) RelaySignaling(from domain.UserID, p domain.SignalingPayload) (int, error) {
	p.FromID = from
	if from == 0 || p.ToID == 0 || p.ToID == from {
		return 0, fmt.Errorf("bad signaling endpoints: %w", domain.ErrValidation)
	}
	if err := ValidateSignal(p.Kind, p.Body); err != nil {
		return 0, err
	}
	if c.opts.StrictSignaling {
		if err := c.checkEndpoints(p); err != nil {
			return 0, err
		}
	}

	sent := c.notify.NotifyUser(p.ToID, core.SignalEvent{Type: core.EventSignalRelayed, SignalingPayload: p})
	if sent == 0 {
		log.Debug().Str("module", "call.signal").Str("from", from.String()).Str("to", p.ToID.String()).Str("kind", string(p.Kind)).Msg("recipient offline, payload dropped")
	}
	return sent, nil
}

func (c *Coordinator) checkEndpoints(p domain.SignalingPayload) error {
	s, err := c.lookup(p.CallID)
	if err != nil {
		return fmt.Errorf("signaling outside a call: %w", domain.ErrAuthorization)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() || !s.isParticipant(p.FromID) || !s.isParticipant(p.ToID) {
		return fmt.Errorf("signaling endpoints not in call %q: %w", p.CallID, domain.ErrAuthorization)
	}
	return nil
}
