package room

import (
	"strings"
	"sync"
	"testing"
	"time"

	"laneduel/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestCreateRoom(t *testing.T) {
	clock := newFakeClock()
	m := NewManager(clock, 0)

	r, p := m.CreateRoom("Alice", 0, "conn-1")

	if len(r.Code) != CodeLength {
		t.Fatalf("code %q has length %d, want %d", r.Code, len(r.Code), CodeLength)
	}
	for _, ch := range r.Code {
		if !strings.ContainsRune(codeAlphabet, ch) {
			t.Fatalf("code %q contains %q outside the alphabet", r.Code, ch)
		}
	}
	if r.Status != domain.RoomWaiting {
		t.Fatalf("status = %q, want waiting", r.Status)
	}
	if r.TurnSeconds != domain.DefaultTurnSeconds {
		t.Fatalf("turn seconds = %d, want default %d", r.TurnSeconds, domain.DefaultTurnSeconds)
	}
	if want := clock.Now().Add(domain.RoomExpiry); !r.ExpiresAt.Equal(want) {
		t.Fatalf("expires at %v, want %v", r.ExpiresAt, want)
	}
	if p.Name != "Alice" || !p.Connected || p.ConnID != "conn-1" {
		t.Fatalf("player = %+v", p)
	}
	if r.Players[0] != p || r.Players[1] != nil {
		t.Fatal("creator must occupy slot 0 alone")
	}
}

func TestCreateRoomTimerClamping(t *testing.T) {
	m := NewManager(newFakeClock(), 0)

	cases := []struct{ in, want int }{
		{0, domain.DefaultTurnSeconds},
		{5, domain.MinTurnSeconds},
		{300, domain.MaxTurnSeconds},
		{45, 45},
	}
	for _, tc := range cases {
		r, _ := m.CreateRoom("x", tc.in, "c")
		if r.TurnSeconds != tc.want {
			t.Fatalf("timer %d clamped to %d, want %d", tc.in, r.TurnSeconds, tc.want)
		}
	}
}

func TestCreateRoomConfiguredDefault(t *testing.T) {
	m := NewManager(newFakeClock(), 45)
	r, _ := m.CreateRoom("x", 0, "c")
	if r.TurnSeconds != 45 {
		t.Fatalf("turn seconds = %d, want configured 45", r.TurnSeconds)
	}
}

func TestDisplayNameSanitized(t *testing.T) {
	m := NewManager(newFakeClock(), 0)

	_, p := m.CreateRoom("   ", 0, "c")
	if p.Name != domain.DefaultDisplayName {
		t.Fatalf("blank name became %q, want %q", p.Name, domain.DefaultDisplayName)
	}

	long := strings.Repeat("a", 100)
	_, p = m.CreateRoom(long, 0, "c")
	if len(p.Name) != domain.MaxDisplayNameLen {
		t.Fatalf("long name kept length %d, want %d", len(p.Name), domain.MaxDisplayNameLen)
	}
}

func TestJoinRoom(t *testing.T) {
	m := NewManager(newFakeClock(), 0)
	r, _ := m.CreateRoom("Alice", 0, "c1")

	joined, p2, err := m.JoinRoom(r.Code, "Bob", "c2")
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if joined.Code != r.Code {
		t.Fatal("joined a different room")
	}
	if !joined.ExpiresAt.IsZero() {
		t.Fatal("expiry must be cleared once both players are seated")
	}
	if p2.Role == joined.Players[0].Role {
		t.Fatal("both players got the same role")
	}

	// третьему места нет
	if _, _, err := m.JoinRoom(r.Code, "Carol", "c3"); err != domain.ErrRoomFull {
		t.Fatalf("third join error = %v, want room-full", err)
	}
}

func TestJoinMissingRoom(t *testing.T) {
	m := NewManager(newFakeClock(), 0)
	if _, _, err := m.JoinRoom("NOPE1234", "Bob", "c"); err != domain.ErrRoomNotFound {
		t.Fatalf("error = %v, want room-not-found", err)
	}
}

func TestJoinExpiredRoom(t *testing.T) {
	clock := newFakeClock()
	m := NewManager(clock, 0)
	r, _ := m.CreateRoom("Alice", 0, "c1")

	clock.advance(domain.RoomExpiry + time.Second)

	if _, _, err := m.JoinRoom(r.Code, "Bob", "c2"); err != domain.ErrRoomExpired {
		t.Fatalf("error = %v, want room-expired", err)
	}
	// просроченная комната удаляется при обнаружении
	if _, ok := m.Get(r.Code); ok {
		t.Fatal("expired room still stored")
	}
}

func TestExpiryClearedAfterJoin(t *testing.T) {
	clock := newFakeClock()
	m := NewManager(clock, 0)
	r, _ := m.CreateRoom("Alice", 0, "c1")
	if _, _, err := m.JoinRoom(r.Code, "Bob", "c2"); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	// после входа второго игрока комната больше никогда не истекает
	clock.advance(24 * time.Hour)
	m.sweepExpired()
	if _, ok := m.Get(r.Code); !ok {
		t.Fatal("occupied room was swept")
	}
}

func TestReadyUp(t *testing.T) {
	m := NewManager(newFakeClock(), 0)
	r, p1 := m.CreateRoom("Alice", 0, "c1")
	_, p2, _ := m.JoinRoom(r.Code, "Bob", "c2")

	both, err := m.ReadyUp(r.Code, p1.ID)
	if err != nil || both {
		t.Fatalf("first ready: both=%v err=%v", both, err)
	}
	if _, err := m.ReadyUp(r.Code, "stranger"); err != domain.ErrUnauthorized {
		t.Fatalf("stranger ready error = %v, want unauthorized", err)
	}
	both, err = m.ReadyUp(r.Code, p2.ID)
	if err != nil || !both {
		t.Fatalf("second ready: both=%v err=%v", both, err)
	}

	// переход waiting->ready атомарен внутри ReadyUp
	got, _ := m.Get(r.Code)
	if got.Status != domain.RoomReady {
		t.Fatalf("status = %q, want ready", got.Status)
	}

	// повторный ready не выдает второй bothReady и не создает второй матч
	if _, err := m.ReadyUp(r.Code, p1.ID); err != domain.ErrAlreadyPlaying {
		t.Fatalf("duplicate ready error = %v, want already-playing", err)
	}

	m.SetStatus(r.Code, domain.RoomPlaying)
	if _, err := m.ReadyUp(r.Code, p1.ID); err != domain.ErrAlreadyPlaying {
		t.Fatalf("mid-game ready error = %v, want already-playing", err)
	}
}

func TestReadyUpOnFinishedRoom(t *testing.T) {
	m := NewManager(newFakeClock(), 0)
	r, p1 := m.CreateRoom("Alice", 0, "c1")
	_, p2, _ := m.JoinRoom(r.Code, "Bob", "c2")
	m.ReadyUp(r.Code, p1.ID)
	m.ReadyUp(r.Code, p2.ID)
	m.SetStatus(r.Code, domain.RoomFinished)

	// флаги готовности остались от сыгранного матча: запоздавший ready
	// одного игрока не должен перезапустить комнату
	both, err := m.ReadyUp(r.Code, p1.ID)
	if err != domain.ErrAlreadyPlaying || both {
		t.Fatalf("ready on finished room: both=%v err=%v, want already-playing", both, err)
	}
}

func TestSetConnected(t *testing.T) {
	m := NewManager(newFakeClock(), 0)
	r, p := m.CreateRoom("Alice", 0, "c1")

	m.SetConnected(r.Code, p.ID, "")
	if got, _ := m.Get(r.Code); got.Players[0].Connected {
		t.Fatal("player still marked connected")
	}

	m.SetConnected(r.Code, p.ID, "c9")
	got, _ := m.Get(r.Code)
	if !got.Players[0].Connected || got.Players[0].ConnID != "c9" {
		t.Fatal("reconnect did not rebind the connection")
	}
}

func TestSweepRemovesOnlyExpiredWaitingRooms(t *testing.T) {
	clock := newFakeClock()
	m := NewManager(clock, 0)

	old, _ := m.CreateRoom("Old", 0, "c1")
	clock.advance(domain.RoomExpiry - time.Second)
	fresh, _ := m.CreateRoom("Fresh", 0, "c2")
	clock.advance(2 * time.Second)

	m.sweepExpired()

	if _, ok := m.Get(old.Code); ok {
		t.Fatal("expired room survived the sweep")
	}
	if _, ok := m.Get(fresh.Code); !ok {
		t.Fatal("fresh room was swept")
	}
}

func TestSweepRemovesAbandonedFinishedRooms(t *testing.T) {
	m := NewManager(newFakeClock(), 0)
	r, p1 := m.CreateRoom("Alice", 0, "c1")
	_, p2, _ := m.JoinRoom(r.Code, "Bob", "c2")
	m.SetStatus(r.Code, domain.RoomFinished)

	m.sweepExpired()
	if _, ok := m.Get(r.Code); !ok {
		t.Fatal("finished room with live sockets was swept")
	}

	m.SetConnected(r.Code, p1.ID, "")
	m.SetConnected(r.Code, p2.ID, "")
	m.sweepExpired()
	if _, ok := m.Get(r.Code); ok {
		t.Fatal("abandoned finished room survived the sweep")
	}
}

func TestTimeSuffixedCodeStaysInAlphabet(t *testing.T) {
	code := timeSuffixedCode(time.Unix(1_700_000_000, 987_654_321))
	if len(code) != CodeLength {
		t.Fatalf("fallback code %q has length %d, want %d", code, len(code), CodeLength)
	}
	for _, ch := range code {
		if !strings.ContainsRune(codeAlphabet, ch) {
			t.Fatalf("fallback code %q contains %q outside the alphabet", code, ch)
		}
	}
}

func TestRoomCodesUnique(t *testing.T) {
	m := NewManager(newFakeClock(), 0)
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		r, _ := m.CreateRoom("x", 0, "c")
		if seen[r.Code] {
			t.Fatalf("duplicate code %q", r.Code)
		}
		seen[r.Code] = true
	}
}
