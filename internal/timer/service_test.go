package timer

import (
	"sync"
	"testing"
	"time"
)

// ручные часы: ни один тест не спит
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

type fakeTimer struct {
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

// fakeScheduler собирает колбэки и стреляет их вручную по advance
type fakeScheduler struct {
	clock *fakeClock

	mu     sync.Mutex
	timers []*fakeTimer
}

func newFakeScheduler(clock *fakeClock) *fakeScheduler {
	return &fakeScheduler{clock: clock}
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) CancelFunc {
	s.mu.Lock()
	ft := &fakeTimer{at: s.clock.Now().Add(d), f: f}
	s.timers = append(s.timers, ft)
	s.mu.Unlock()

	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		if ft.fired || ft.stopped {
			return false
		}
		ft.stopped = true
		return true
	}
}

// fireDue запускает все созревшие колбэки вне собственного лока, чтобы
// колбэк мог сам планировать новые таймеры.
func (s *fakeScheduler) fireDue() {
	now := s.clock.Now()
	for {
		s.mu.Lock()
		var due *fakeTimer
		for _, ft := range s.timers {
			if !ft.fired && !ft.stopped && !ft.at.After(now) {
				due = ft
				break
			}
		}
		if due != nil {
			due.fired = true
		}
		s.mu.Unlock()

		if due == nil {
			return
		}
		due.f()
	}
}

func newTestService() (*Service, *fakeClock, *fakeScheduler) {
	clock := newFakeClock()
	sched := newFakeScheduler(clock)
	return NewService(clock, sched), clock, sched
}

func advance(clock *fakeClock, sched *fakeScheduler, d time.Duration) {
	clock.advance(d)
	sched.fireDue()
}

func TestArmTurnFires(t *testing.T) {
	s, clock, sched := newTestService()

	var fired []int
	deadline := s.ArmTurn("R1", 1, 30*time.Second, func(turn int) {
		fired = append(fired, turn)
	})

	if want := clock.Now().Add(30 * time.Second); !deadline.Equal(want) {
		t.Fatalf("deadline = %v, want %v", deadline, want)
	}
	if !s.BeforeDeadline("R1") {
		t.Fatal("fresh timer must be before its deadline")
	}

	advance(clock, sched, 29*time.Second)
	if len(fired) != 0 {
		t.Fatal("fired before the deadline")
	}

	advance(clock, sched, 2*time.Second)
	if len(fired) != 1 || fired[0] != 1 {
		t.Fatalf("fired = %v, want [1]", fired)
	}
	if s.BeforeDeadline("R1") {
		t.Fatal("consumed timer must fail the deadline check")
	}
}

func TestRearmCancelsPrevious(t *testing.T) {
	s, clock, sched := newTestService()

	var fired []int
	record := func(turn int) { fired = append(fired, turn) }

	s.ArmTurn("R1", 1, 10*time.Second, record)
	s.ArmTurn("R1", 2, 10*time.Second, record)

	advance(clock, sched, 11*time.Second)
	if len(fired) != 1 || fired[0] != 2 {
		t.Fatalf("fired = %v, want only turn 2", fired)
	}
}

func TestCancelTurn(t *testing.T) {
	s, clock, sched := newTestService()

	fired := false
	s.ArmTurn("R1", 1, 10*time.Second, func(int) { fired = true })
	s.CancelTurn("R1")

	advance(clock, sched, 20*time.Second)
	if fired {
		t.Fatal("cancelled timer fired")
	}
	if s.BeforeDeadline("R1") {
		t.Fatal("cancelled room must fail the deadline check")
	}
	if _, ok := s.Deadline("R1"); ok {
		t.Fatal("cancelled room still reports a deadline")
	}
}

func TestPauseResumePreservesRemaining(t *testing.T) {
	s, clock, sched := newTestService()

	fired := false
	s.ArmTurn("R1", 1, 30*time.Second, func(int) { fired = true })

	advance(clock, sched, 10*time.Second)
	s.PauseTurn("R1")

	// во время паузы дедлайн не наступает
	advance(clock, sched, time.Minute)
	if fired {
		t.Fatal("paused timer fired")
	}
	if !s.BeforeDeadline("R1") {
		t.Fatal("paused timer must pass the deadline check")
	}

	deadline, ok := s.ResumeTurn("R1")
	if !ok {
		t.Fatal("resume failed")
	}
	if want := clock.Now().Add(20 * time.Second); !deadline.Equal(want) {
		t.Fatalf("resumed deadline = %v, want %v", deadline, want)
	}

	advance(clock, sched, 21*time.Second)
	if !fired {
		t.Fatal("resumed timer never fired")
	}
}

func TestResumeWithoutPause(t *testing.T) {
	s, _, _ := newTestService()
	if _, ok := s.ResumeTurn("R1"); ok {
		t.Fatal("resume of an absent timer must report failure")
	}
}

func TestDisconnectGraceFires(t *testing.T) {
	s, clock, sched := newTestService()

	fired := false
	if exceeded := s.StartDisconnect("R1", "p1", func() { fired = true }); exceeded {
		t.Fatal("fresh budget reported exceeded")
	}

	advance(clock, sched, GracePeriod-time.Second)
	if fired {
		t.Fatal("grace fired early")
	}
	advance(clock, sched, 2*time.Second)
	if !fired {
		t.Fatal("grace never fired")
	}
	// окно целиком записано в потраченный бюджет
	if got := s.CumulativeDisconnected("R1", "p1"); got != GracePeriod {
		t.Fatalf("cumulative = %v, want %v", got, GracePeriod)
	}
}

func TestReconnectBanksElapsed(t *testing.T) {
	s, clock, sched := newTestService()

	s.StartDisconnect("R1", "p1", func() { t.Fatal("grace fired despite reconnect") })
	advance(clock, sched, 5*time.Second)

	total, exceeded := s.ClearDisconnect("R1", "p1")
	if total != 5*time.Second || exceeded {
		t.Fatalf("total = %v exceeded = %v", total, exceeded)
	}

	// таймер снят: дальше время не капает
	advance(clock, sched, time.Minute)
	if got := s.CumulativeDisconnected("R1", "p1"); got != 5*time.Second {
		t.Fatalf("cumulative after clear = %v, want 5s", got)
	}
}

func TestDisconnectWindowCappedByBudget(t *testing.T) {
	s, clock, sched := newTestService()

	// выедаем бюджет до остатка меньше одного окна
	for i := 0; i < 3; i++ {
		s.StartDisconnect("R1", "p1", func() {})
		advance(clock, sched, GracePeriod)
	}
	// потрачено 45s, остаток 15s; еще раз 10s
	s.StartDisconnect("R1", "p1", func() {})
	advance(clock, sched, 10*time.Second)
	total, exceeded := s.ClearDisconnect("R1", "p1")
	if total != 55*time.Second || exceeded {
		t.Fatalf("total = %v exceeded = %v", total, exceeded)
	}

	// остаток 5s: окно должно сработать через 5s, не через полные 15s
	fired := false
	s.StartDisconnect("R1", "p1", func() { fired = true })
	advance(clock, sched, 5*time.Second)
	if !fired {
		t.Fatal("capped window did not fire at budget exhaustion")
	}

	// бюджет исчерпан: следующий дисконнект - немедленный форфейт
	if exceeded := s.StartDisconnect("R1", "p1", func() {}); !exceeded {
		t.Fatal("spent budget must report exceeded")
	}
}

func TestClearReportsExceededBudget(t *testing.T) {
	s, clock, sched := newTestService()

	s.StartDisconnect("R1", "p1", func() {})
	advance(clock, sched, 10*time.Second)
	s.ClearDisconnect("R1", "p1")

	s.StartDisconnect("R1", "p1", func() {})
	clock.advance(55 * time.Second) // вернулся позже дедлайна, но колбэк еще не стрелял
	_, exceeded := s.ClearDisconnect("R1", "p1")
	if !exceeded {
		t.Fatal("65s of total disconnect must exceed the budget")
	}
}

func TestBudgetsIndependentPerPlayer(t *testing.T) {
	s, clock, sched := newTestService()

	s.StartDisconnect("R1", "p1", func() {})
	advance(clock, sched, GracePeriod)

	if got := s.CumulativeDisconnected("R1", "p2"); got != 0 {
		t.Fatalf("p2 cumulative = %v, want 0", got)
	}
	if got := s.CumulativeDisconnected("R2", "p1"); got != 0 {
		t.Fatalf("other room cumulative = %v, want 0", got)
	}
}

func TestCleanupRoomResetsEverything(t *testing.T) {
	s, clock, sched := newTestService()

	turnFired := false
	discFired := false
	s.ArmTurn("R1", 1, 10*time.Second, func(int) { turnFired = true })
	s.StartDisconnect("R1", "p1", func() { discFired = true })
	advance(clock, sched, 5*time.Second)

	s.CleanupRoom("R1")

	advance(clock, sched, time.Minute)
	if turnFired || discFired {
		t.Fatal("cleanup left live timers behind")
	}
	if got := s.CumulativeDisconnected("R1", "p1"); got != 0 {
		t.Fatalf("cumulative after cleanup = %v, want 0", got)
	}
}
