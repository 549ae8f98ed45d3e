package call

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/dkeye/Parley/internal/domain"
)

const testSDP = "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"

func offerBody(t *testing.T, typ string) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(map[string]string{"type": typ, "sdp": testSDP})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestValidateSignal(t *testing.T) {
	cases := []struct {
		name string
		kind domain.SignalKind
		body json.RawMessage
		ok   bool
	}{
		{"offer", domain.SignalOffer, offerBody(t, "offer"), true},
		{"answer", domain.SignalAnswer, offerBody(t, "answer"), true},
		{"offer typed answer", domain.SignalOffer, offerBody(t, "answer"), false},
		{"empty sdp", domain.SignalOffer, json.RawMessage(`{"type":"offer","sdp":""}`), false},
		{"candidate", domain.SignalCandidate, json.RawMessage(`{"candidate":"candidate:1 1 udp 2122260223 10.0.0.1 54321 typ host","sdpMid":"0","sdpMLineIndex":0}`), true},
		{"candidate not object", domain.SignalCandidate, json.RawMessage(`"nope"`), false},
		{"unknown kind", "renegotiate", json.RawMessage(`{}`), false},
		{"missing body", domain.SignalOffer, nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateSignal(tc.kind, tc.body)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("err = %v, want validation", err)
			}
		})
	}
}

func TestRelaySignalingPassThrough(t *testing.T) {
	c, rec := newTestCoordinator(t, Options{})
	body := offerBody(t, "offer")

	sent, err := c.RelaySignaling(1, domain.SignalingPayload{FromID: 99, ToID: 2, Kind: domain.SignalOffer, Body: body})
	if err != nil || sent != 1 {
		t.Fatalf("RelaySignaling = %d, %v", sent, err)
	}
	got := rec.signals(2)
	if len(got) != 1 {
		t.Fatalf("recipient got %d payloads", len(got))
	}
	if got[0].FromID != 1 {
		t.Fatalf("fromId = %d, want the authenticated sender", got[0].FromID)
	}
	if string(got[0].Body) != string(body) {
		t.Fatal("body must be relayed verbatim")
	}
}

func TestRelaySignalingOfflineDropped(t *testing.T) {
	c, rec := newTestCoordinator(t, Options{})
	rec.setOffline(2)
	sent, err := c.RelaySignaling(1, domain.SignalingPayload{ToID: 2, Kind: domain.SignalOffer, Body: offerBody(t, "offer")})
	if err != nil || sent != 0 {
		t.Fatalf("RelaySignaling = %d, %v; want silent drop", sent, err)
	}
}

func TestRelaySignalingRejectsBadEndpoints(t *testing.T) {
	c, _ := newTestCoordinator(t, Options{})
	for _, to := range []domain.UserID{0, 1} {
		if _, err := c.RelaySignaling(1, domain.SignalingPayload{ToID: to, Kind: domain.SignalOffer, Body: offerBody(t, "offer")}); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("to=%d err = %v", to, err)
		}
	}
}

func TestStrictSignaling(t *testing.T) {
	c, rec := newTestCoordinator(t, Options{StrictSignaling: true})
	body := offerBody(t, "offer")

	if _, err := c.RelaySignaling(1, domain.SignalingPayload{ToID: 2, Kind: domain.SignalOffer, Body: body}); !errors.Is(err, domain.ErrAuthorization) {
		t.Fatalf("no call: err = %v", err)
	}
	c.Initiate(context.Background(), 1, "c", 2, false)
	if _, err := c.RelaySignaling(1, domain.SignalingPayload{ToID: 3, CallID: "c", Kind: domain.SignalOffer, Body: body}); !errors.Is(err, domain.ErrAuthorization) {
		t.Fatalf("outsider recipient: err = %v", err)
	}
	if _, err := c.RelaySignaling(1, domain.SignalingPayload{ToID: 2, CallID: "c", Kind: domain.SignalOffer, Body: body}); err != nil {
		t.Fatalf("participants: %v", err)
	}
	if len(rec.signals(2)) != 1 || len(rec.signals(3)) != 0 {
		t.Fatal("only the in-call payload should be delivered")
	}
}
