package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

// recorder is an in-memory Notifier. Users in offline get nothing.
type recorder struct {
	mu      sync.Mutex
	events  map[domain.UserID][]any
	offline map[domain.UserID]bool
}

func newRecorder() *recorder {
	return &recorder{events: make(map[domain.UserID][]any), offline: make(map[domain.UserID]bool)}
}

func (r *recorder) NotifyUser(user domain.UserID, v any) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.offline[user] {
		return 0
	}
	r.events[user] = append(r.events[user], v)
	return 1
}

func (r *recorder) setOffline(user domain.UserID) {
	r.mu.Lock()
	r.offline[user] = true
	r.mu.Unlock()
}

func (r *recorder) calls(user domain.UserID, typ string) []core.CallEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.CallEvent
	for _, v := range r.events[user] {
		if ev, ok := v.(core.CallEvent); ok && ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) signals(user domain.UserID) []core.SignalEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.SignalEvent
	for _, v := range r.events[user] {
		if ev, ok := v.(core.SignalEvent); ok {
			out = append(out, ev)
		}
	}
	return out
}

type groups map[domain.GroupID][]domain.UserID

func (g groups) Members(_ context.Context, group domain.GroupID, user domain.UserID) ([]domain.UserID, error) {
	members, ok := g[group]
	if !ok {
		return nil, fmt.Errorf("group %s: %w", group, domain.ErrAuthorization)
	}
	for _, m := range members {
		if m == user {
			return members, nil
		}
	}
	return nil, fmt.Errorf("not a member: %w", domain.ErrAuthorization)
}

func newTestCoordinator(t *testing.T, opts Options) (*Coordinator, *recorder) {
	t.Helper()
	rec := newRecorder()
	c := NewCoordinator(rec, groups{7: {1, 2, 3}}, opts)
	t.Cleanup(c.Close)
	return c, rec
}

func sameIDs(got []domain.UserID, want ...domain.UserID) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestInitiateDirectInvitesCallee(t *testing.T) {
	c, rec := newTestCoordinator(t, Options{})
	info, err := c.Initiate(context.Background(), 1, "c1", 2, false)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if info.State != domain.CallRinging || !sameIDs(info.Participants, 1, 2) || !sameIDs(info.Joined, 1) {
		t.Fatalf("info = %+v", info)
	}
	inv := rec.calls(2, core.EventCallInvited)
	if len(inv) != 1 || inv[0].CallID != "c1" || inv[0].InitiatorID != 1 {
		t.Fatalf("callee invitations = %+v", inv)
	}
	if len(rec.calls(1, core.EventCallInvited)) != 0 {
		t.Fatal("caller must not be invited")
	}
}

func TestInitiateValidation(t *testing.T) {
	c, _ := newTestCoordinator(t, Options{})
	ctx := context.Background()
	long := domain.CallID(make([]byte, domain.MaxCallIDLen+1))
	cases := []struct {
		name    string
		id      domain.CallID
		target  int64
		isGroup bool
		want    error
	}{
		{"empty id", "", 2, false, domain.ErrValidation},
		{"long id", long, 2, false, domain.ErrValidation},
		{"no target", "x", 0, false, domain.ErrValidation},
		{"self", "x", 1, false, domain.ErrValidation},
		{"non-member group", "x", 8, true, domain.ErrAuthorization},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := c.Initiate(ctx, 1, tc.id, tc.target, tc.isGroup); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
	if c.ActiveCalls() != 0 {
		t.Fatal("rejected initiations must not create sessions")
	}
}

func TestInitiateCollision(t *testing.T) {
	c, _ := newTestCoordinator(t, Options{})
	ctx := context.Background()
	if _, err := c.Initiate(ctx, 1, "dup", 2, false); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Initiate(ctx, 3, "dup", 2, false); !errors.Is(err, domain.ErrCallExists) {
		t.Fatalf("err = %v, want ErrCallExists", err)
	}
}

func TestConcurrentAcceptStartsOnce(t *testing.T) {
	c, rec := newTestCoordinator(t, Options{})
	if _, err := c.Initiate(context.Background(), 1, "g", 7, true); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for _, u := range []domain.UserID{2, 3} {
		wg.Add(1)
		go func(u domain.UserID) {
			defer wg.Done()
			if _, err := c.Accept(u, "g"); err != nil {
				t.Error(err)
			}
		}(u)
	}
	wg.Wait()

	started := 0
	for _, ev := range rec.calls(1, core.EventCallJoined) {
		if ev.Started {
			started++
		}
	}
	if started != 1 {
		t.Fatalf("ringing->active reported %d times, want 1", started)
	}
	info, ok := c.Session("g")
	if !ok || info.State != domain.CallActive || !sameIDs(info.Joined, 1, 2, 3) {
		t.Fatalf("session = %+v, %v", info, ok)
	}
}

func TestAcceptIsIdempotent(t *testing.T) {
	c, rec := newTestCoordinator(t, Options{})
	c.Initiate(context.Background(), 1, "c", 2, false)
	c.Accept(2, "c")
	c.Accept(2, "c")
	if n := len(rec.calls(1, core.EventCallJoined)); n != 1 {
		t.Fatalf("caller saw %d joins, want 1", n)
	}
}

func TestAcceptRejectsOutsiders(t *testing.T) {
	c, _ := newTestCoordinator(t, Options{})
	c.Initiate(context.Background(), 1, "c", 2, false)
	if _, err := c.Accept(3, "c"); !errors.Is(err, domain.ErrAuthorization) {
		t.Fatalf("err = %v, want authorization", err)
	}
	if _, err := c.Accept(2, "nope"); !errors.Is(err, domain.ErrCallNotFound) {
		t.Fatalf("err = %v, want call not found", err)
	}
}

func TestGroupCallJoinedScenario(t *testing.T) {
	c, rec := newTestCoordinator(t, Options{RingTimeout: 50 * time.Millisecond})
	if _, err := c.Initiate(context.Background(), 1, "grp", 7, true); err != nil {
		t.Fatal(err)
	}
	for _, u := range []domain.UserID{2, 3} {
		if n := len(rec.calls(u, core.EventCallInvited)); n != 1 {
			t.Fatalf("user %d invitations = %d", u, n)
		}
	}
	if _, err := c.Accept(2, "grp"); err != nil {
		t.Fatal(err)
	}
	for _, u := range []domain.UserID{2, 3} {
		joined := rec.calls(u, core.EventCallJoined)
		if len(joined) != 1 || joined[0].UserID != 2 || !sameIDs(joined[0].Participants, 1, 2) {
			t.Fatalf("user %d call-joined = %+v", u, joined)
		}
	}

	time.Sleep(150 * time.Millisecond)
	if len(rec.calls(1, core.EventCallTimeout)) != 0 {
		t.Fatal("timeout fired after acceptance")
	}
	if info, ok := c.Session("grp"); !ok || info.State != domain.CallActive {
		t.Fatalf("session = %+v, %v", info, ok)
	}
}

func TestRingingTimeout(t *testing.T) {
	c, rec := newTestCoordinator(t, Options{RingTimeout: 20 * time.Millisecond})
	c.Initiate(context.Background(), 1, "t", 2, false)

	deadline := time.Now().Add(2 * time.Second)
	for c.ActiveCalls() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.ActiveCalls() != 0 {
		t.Fatal("timed out session not freed")
	}
	if n := len(rec.calls(1, core.EventCallTimeout)); n != 1 {
		t.Fatalf("caller timeouts = %d, want 1", n)
	}
	ended := rec.calls(2, core.EventCallEnded)
	if len(ended) != 1 || ended[0].State != domain.CallTimedOut {
		t.Fatalf("callee call-ended = %+v", ended)
	}
	if _, err := c.Accept(2, "t"); !errors.Is(err, domain.ErrCallNotFound) {
		t.Fatalf("accept after timeout err = %v", err)
	}
}

func TestTimeoutAcceptRace(t *testing.T) {
	for i := 0; i < 50; i++ {
		c, rec := newTestCoordinator(t, Options{RingTimeout: time.Millisecond})
		id := domain.CallID(fmt.Sprintf("race-%d", i))
		c.Initiate(context.Background(), 1, id, 2, false)
		time.Sleep(time.Millisecond)
		_, err := c.Accept(2, id)
		time.Sleep(5 * time.Millisecond)

		timedOut := len(rec.calls(1, core.EventCallTimeout)) == 1
		_, active := c.Session(id)
		switch {
		case err == nil && (timedOut || !active):
			t.Fatalf("accepted call %s also timed out", id)
		case err != nil && (!timedOut || active):
			t.Fatalf("rejected accept %s but call not timed out: %v", id, err)
		}
	}
}

func TestDeclineAllEndsRingingCall(t *testing.T) {
	c, rec := newTestCoordinator(t, Options{})
	c.Initiate(context.Background(), 1, "g", 7, true)

	if err := c.Decline(2, "g"); err != nil {
		t.Fatal(err)
	}
	if len(rec.calls(1, core.EventCallDeclined)) != 1 || len(rec.calls(3, core.EventCallDeclined)) != 1 {
		t.Fatal("decline should be broadcast to the others")
	}
	if c.ActiveCalls() != 1 {
		t.Fatal("call must keep ringing while someone has not answered")
	}
	if err := c.Decline(3, "g"); err != nil {
		t.Fatal(err)
	}
	if c.ActiveCalls() != 0 {
		t.Fatal("call should end once every invitee declined")
	}
	ended := rec.calls(1, core.EventCallEnded)
	if len(ended) != 1 || ended[0].State != domain.CallDeclined {
		t.Fatalf("caller call-ended = %+v", ended)
	}
}

func TestDeclineAfterOthersJoined(t *testing.T) {
	c, rec := newTestCoordinator(t, Options{})
	c.Initiate(context.Background(), 1, "g", 7, true)
	c.Accept(2, "g")
	if err := c.Decline(3, "g"); err != nil {
		t.Fatal(err)
	}
	if info, ok := c.Session("g"); !ok || info.State != domain.CallActive {
		t.Fatal("decline must not end an active call")
	}
	if len(rec.calls(2, core.EventCallDeclined)) != 1 {
		t.Fatal("joined participant should see the decline")
	}
}

func TestLeaveEndsCallBelowTwo(t *testing.T) {
	c, rec := newTestCoordinator(t, Options{})
	c.Initiate(context.Background(), 1, "g", 7, true)
	c.Accept(2, "g")
	c.Accept(3, "g")

	if err := c.Leave(3, "g"); err != nil {
		t.Fatal(err)
	}
	left := rec.calls(1, core.EventCallLeft)
	if len(left) != 1 || left[0].UserID != 3 || !sameIDs(left[0].Participants, 1, 2) {
		t.Fatalf("call-left = %+v", left)
	}
	if c.ActiveCalls() != 1 {
		t.Fatal("two participants left, call should continue")
	}
	if err := c.Leave(2, "g"); err != nil {
		t.Fatal(err)
	}
	if c.ActiveCalls() != 0 {
		t.Fatal("call should end with one participant")
	}
	if len(rec.calls(1, core.EventCallEnded)) != 1 {
		t.Fatal("remaining participant should get call-ended")
	}
	if err := c.Leave(1, "g"); !errors.Is(err, domain.ErrCallNotFound) {
		t.Fatalf("leave after end err = %v", err)
	}
}

func TestLeaveRequiresJoin(t *testing.T) {
	c, _ := newTestCoordinator(t, Options{})
	c.Initiate(context.Background(), 1, "c", 2, false)
	if err := c.Leave(2, "c"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestEndFreesSession(t *testing.T) {
	c, rec := newTestCoordinator(t, Options{})
	c.Initiate(context.Background(), 1, "c", 2, false)
	c.Accept(2, "c")
	if err := c.End("c", 2); err != nil {
		t.Fatal(err)
	}
	if len(rec.calls(1, core.EventCallEnded)) != 1 {
		t.Fatal("other participant should get call-ended")
	}
	if len(rec.calls(2, core.EventCallEnded)) != 0 {
		t.Fatal("the ender should not be notified")
	}
	if err := c.End("c", 1); !errors.Is(err, domain.ErrCallNotFound) {
		t.Fatalf("second end err = %v", err)
	}
	// the id is free again
	if _, err := c.Initiate(context.Background(), 1, "c", 2, false); err != nil {
		t.Fatalf("reuse of ended id: %v", err)
	}
}

func TestEndByOutsiderRejected(t *testing.T) {
	c, _ := newTestCoordinator(t, Options{})
	c.Initiate(context.Background(), 1, "c", 2, false)
	if err := c.End("c", 9); !errors.Is(err, domain.ErrAuthorization) {
		t.Fatalf("err = %v, want authorization", err)
	}
}

func TestInvite(t *testing.T) {
	c, rec := newTestCoordinator(t, Options{})
	c.Initiate(context.Background(), 1, "c", 2, false)
	c.Accept(2, "c")

	if _, err := c.Invite(4, "c", 5); !errors.Is(err, domain.ErrAuthorization) {
		t.Fatalf("outsider invite err = %v", err)
	}
	info, err := c.Invite(2, "c", 5)
	if err != nil {
		t.Fatal(err)
	}
	if !sameIDs(info.Participants, 1, 2, 5) {
		t.Fatalf("participants = %v", info.Participants)
	}
	if len(rec.calls(5, core.EventCallInvited)) != 1 {
		t.Fatal("target should be invited")
	}
	if _, err := c.Accept(5, "c"); err != nil {
		t.Fatal(err)
	}
	joined := rec.calls(1, core.EventCallJoined)
	if last := joined[len(joined)-1]; last.UserID != 5 || last.Started || !sameIDs(last.Participants, 1, 2, 5) {
		t.Fatalf("last call-joined = %+v", last)
	}
}

func TestUserOffline(t *testing.T) {
	c, rec := newTestCoordinator(t, Options{})
	ctx := context.Background()
	c.Initiate(ctx, 1, "ringing", 2, false)
	c.Initiate(ctx, 3, "active", 1, false)
	c.Accept(1, "active")

	rec.setOffline(1)
	c.UserOffline(1)
	if c.ActiveCalls() != 0 {
		t.Fatalf("%d calls left after the user went offline", c.ActiveCalls())
	}
	if len(rec.calls(2, core.EventCallEnded)) != 1 || len(rec.calls(3, core.EventCallEnded)) != 1 {
		t.Fatal("remaining participants should get call-ended")
	}
}

func TestInviteOfflineParticipantsNotQueued(t *testing.T) {
	c, rec := newTestCoordinator(t, Options{})
	rec.setOffline(3)
	c.Initiate(context.Background(), 1, "g", 7, true)
	if len(rec.calls(3, core.EventCallInvited)) != 0 {
		t.Fatal("offline participant must not be queued an invitation")
	}
	if _, err := c.Accept(3, "g"); err != nil {
		t.Fatalf("offline participant may still accept later: %v", err)
	}
}

func TestCloseStopsTimers(t *testing.T) {
	rec := newRecorder()
	c := NewCoordinator(rec, groups{}, Options{RingTimeout: 10 * time.Millisecond})
	c.Initiate(context.Background(), 1, "c", 2, false)
	c.Close()
	time.Sleep(30 * time.Millisecond)
	if len(rec.calls(1, core.EventCallTimeout)) != 0 {
		t.Fatal("timer fired after Close")
	}
	if c.ActiveCalls() != 0 {
		t.Fatal("Close should drop every session")
	}
}
