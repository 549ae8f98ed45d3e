package app

import (
	"sync"
	"testing"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/testutil"
)

func TestRegistryRegisterDeregisterEdges(t *testing.T) {
	reg := NewRegistry()
	a1 := testutil.NewUserConn(1)
	a2 := testutil.NewUserConn(1)

	if !reg.Register(a1) {
		t.Fatal("first connection should report 0->1")
	}
	if reg.Register(a2) {
		t.Fatal("second connection should not report 0->1")
	}
	if reg.Register(a1) {
		t.Fatal("duplicate register should be a no-op")
	}
	if got := len(reg.Resolve(1)); got != 2 {
		t.Fatalf("Resolve = %d conns, want 2", got)
	}

	if user, offline := reg.Deregister(a1); user != 1 || offline {
		t.Fatalf("Deregister(a1) = %v,%v want 1,false", user, offline)
	}
	if !reg.Online(1) {
		t.Fatal("user with one connection left should be online")
	}
	if user, offline := reg.Deregister(a2); user != 1 || !offline {
		t.Fatalf("Deregister(a2) = %v,%v want 1,true", user, offline)
	}
	if reg.Online(1) {
		t.Fatal("user should be offline")
	}
	if user, _ := reg.Deregister(a2); user != 0 {
		t.Fatal("deregistering an unknown connection should be a no-op")
	}
}

func TestRegistryIgnoresUnauthenticated(t *testing.T) {
	reg := NewRegistry()
	if reg.Register(testutil.NewConn()) {
		t.Fatal("unauthenticated connection registered")
	}
	if len(reg.All()) != 0 {
		t.Fatal("registry should be empty")
	}
}

func TestRegistryOnlineUsersSorted(t *testing.T) {
	reg := NewRegistry()
	for _, u := range []domain.UserID{42, 7, 100, 7} {
		reg.Register(testutil.NewUserConn(u))
	}
	got := reg.OnlineUsers()
	want := []domain.UserID{7, 42, 100}
	if len(got) != len(want) {
		t.Fatalf("OnlineUsers = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("OnlineUsers = %v, want %v", got, want)
		}
	}
}

func TestRegistryConcurrentEdgesReportedOnce(t *testing.T) {
	reg := NewRegistry()
	const n = 64
	conns := make([]*testutil.Conn, n)
	for i := range conns {
		conns[i] = testutil.NewUserConn(5)
	}

	var mu sync.Mutex
	up, down := 0, 0
	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *testutil.Conn) {
			defer wg.Done()
			if reg.Register(c) {
				mu.Lock()
				up++
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()
	for _, c := range conns {
		wg.Add(1)
		go func(c *testutil.Conn) {
			defer wg.Done()
			if _, offline := reg.Deregister(c); offline {
				mu.Lock()
				down++
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()
	if up != 1 || down != 1 {
		t.Fatalf("edges up=%d down=%d, want 1 and 1", up, down)
	}
}

func TestRegistryClose(t *testing.T) {
	reg := NewRegistry()
	a, b := testutil.NewUserConn(1), testutil.NewUserConn(2)
	reg.Register(a)
	reg.Register(b)
	reg.Close()
	if !a.Closed() || !b.Closed() {
		t.Fatal("Close should close every connection")
	}
}
