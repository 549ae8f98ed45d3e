package orch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/Parley/internal/app/call"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/testutil"
)

func newTestOrch(t *testing.T) (*Orchestrator, *testutil.Store) {
	t.Helper()
	st := testutil.NewStore()
	st.AddUser(1, "alice")
	st.AddUser(2, "bob")
	st.AddUser(3, "carol")
	st.AddGroup(7, 1, 2, 3)
	o := New(Deps{
		Users:    st,
		Messages: st,
		Groups:   st,
		Auth:     testutil.Tokens{"tok-1": 1, "tok-2": 2, "tok-3": 3, "tok-ghost": 99},
		Calls:    call.Options{RingTimeout: time.Minute},
	})
	t.Cleanup(o.Shutdown)
	return o, st
}

func authed(t *testing.T, o *Orchestrator, token string) *testutil.Conn {
	t.Helper()
	c := testutil.NewConn()
	if _, err := o.Authenticate(context.Background(), c, token); err != nil {
		t.Fatalf("Authenticate(%s): %v", token, err)
	}
	return c
}

func TestAuthenticate(t *testing.T) {
	o, _ := newTestOrch(t)
	ctx := context.Background()

	c := testutil.NewConn()
	user, err := o.Authenticate(ctx, c, "Bearer tok-1")
	if err != nil {
		t.Fatal(err)
	}
	if user.ID != 1 || user.Status != domain.StatusOnline || c.UserID() != 1 {
		t.Fatalf("user = %+v conn user = %d", user, c.UserID())
	}
	if !o.Registry.Online(1) || o.Presence.Status(1) != domain.StatusOnline {
		t.Fatal("user should be registered and online")
	}
	if _, err := o.Authenticate(ctx, c, "tok-1"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("second auth err = %v", err)
	}
}

func TestAuthenticateFailures(t *testing.T) {
	o, _ := newTestOrch(t)
	ctx := context.Background()
	for _, token := range []string{"", "Bearer ", "nope", "tok-ghost"} {
		c := testutil.NewConn()
		if _, err := o.Authenticate(ctx, c, token); !errors.Is(err, domain.ErrAuthentication) {
			t.Fatalf("token %q err = %v", token, err)
		}
		if c.UserID() != 0 {
			t.Fatalf("token %q bound the connection", token)
		}
	}
	if len(o.Registry.All()) != 0 {
		t.Fatal("failed auth registered a connection")
	}
}

func TestDisconnectCleanup(t *testing.T) {
	o, st := newTestOrch(t)
	ctx := context.Background()
	watcher := authed(t, o, "tok-2")

	a1 := authed(t, o, "tok-1")
	a2 := authed(t, o, "tok-1")
	watcher.Reset()

	o.OnDisconnect(ctx, a1)
	if !o.Registry.Online(1) {
		t.Fatal("user with one connection left must stay online")
	}
	if n := len(watcher.OfType(t, core.EventPresenceChanged)); n != 0 {
		t.Fatalf("closing one of two connections published %d events", n)
	}

	o.OnDisconnect(ctx, a2)
	o.OnDisconnect(ctx, a2)
	evs := watcher.OfType(t, core.EventPresenceChanged)
	if len(evs) != 1 || evs[0].Int("userId") != 1 || evs[0].Str("status") != "offline" {
		t.Fatalf("presence events = %+v", evs)
	}

	last := st.Statuses()[len(st.Statuses())-1]
	if last.User != 1 || last.Status != domain.StatusOffline {
		t.Fatalf("last persisted status = %+v", last)
	}
}

func TestDisconnectLeavesCalls(t *testing.T) {
	o, _ := newTestOrch(t)
	ctx := context.Background()
	a := authed(t, o, "tok-1")
	b := authed(t, o, "tok-2")

	if _, err := o.Calls.Initiate(ctx, 1, "c", 2, false); err != nil {
		t.Fatal(err)
	}
	if _, err := o.Calls.Accept(2, "c"); err != nil {
		t.Fatal(err)
	}
	o.OnDisconnect(ctx, a)
	if _, ok := o.Calls.Session("c"); ok {
		t.Fatal("call should end when a party of two goes offline")
	}
	if len(b.OfType(t, core.EventCallEnded)) != 1 {
		t.Fatal("remaining party should get call-ended")
	}
}

// A and B connect; A's message reaches B while B is online and is still
// persisted once B has gone.
func TestDirectMessageScenario(t *testing.T) {
	o, st := newTestOrch(t)
	ctx := context.Background()
	authed(t, o, "tok-1")
	b := authed(t, o, "tok-2")

	if _, err := o.Router.SendDirect(ctx, 1, 2, "hi"); err != nil {
		t.Fatal(err)
	}
	got := b.OfType(t, core.EventMessageDelivered)
	if len(got) != 1 || got[0].Int("fromId") != 1 || got[0].Int("toId") != 2 || got[0].Str("body") != "hi" {
		t.Fatalf("B received %+v", got)
	}

	o.OnDisconnect(ctx, b)
	b.Reset()
	msg, err := o.Router.SendDirect(ctx, 1, 2, "bye")
	if err != nil || msg.ID == 0 {
		t.Fatalf("SendDirect to offline user = %+v, %v", msg, err)
	}
	if len(b.Events(t)) != 0 {
		t.Fatal("offline B must not receive anything")
	}
	if n := len(st.Messages()); n != 2 {
		t.Fatalf("persisted %d messages, want 2", n)
	}
}

func TestShutdownClosesConnections(t *testing.T) {
	o, _ := newTestOrch(t)
	a := authed(t, o, "tok-1")
	o.Calls.Initiate(context.Background(), 1, "c", 2, false)
	o.Shutdown()
	if !a.Closed() {
		t.Fatal("connection left open")
	}
	if o.Calls.ActiveCalls() != 0 {
		t.Fatal("calls left after shutdown")
	}
}
