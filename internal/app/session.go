package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"classquiz-service/internal/domain"
)

type timerMode int

const (
	timerPerQuestion timerMode = iota
	timerGlobal
)

// Session is the in-memory actor for one live quiz run. Every command,
// scoring upsert and broadcast for the session happens with mu held, so
// commands are serialized in arrival order; independent sessions run in
// parallel. Fields are accessed by the controller in the same package.
type Session struct {
	id  string
	now func() time.Time

	mu          sync.Mutex
	seeded      bool
	status      domain.QuizStatus
	current     int
	total       int
	mode        timerMode
	perQuestion int // seconds per question round
	deadline    time.Time
	ticks       int
	stopTimer   context.CancelFunc
	progress    map[string]map[int]bool
	subscribers map[chan domain.Event]struct{}
}

// NewSession is exported for infrastructure layers that need to seed sessions.
func NewSession(id string) *Session {
	return NewSessionWithClock(id, time.Now)
}

// NewSessionWithClock allows deterministic timestamps in tests.
func NewSessionWithClock(id string, now func() time.Time) *Session {
	return &Session{
		id:          id,
		now:         now,
		status:      domain.StatusWaiting,
		progress:    make(map[string]map[int]bool),
		subscribers: make(map[chan domain.Event]struct{}),
	}
}

// IsEmpty reports whether nobody is subscribed to a finished session.
func (s *Session) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers) == 0 && s.status == domain.StatusFinished
}

// seedLocked initializes the actor from the persisted quiz. After a process
// restart a started quiz resumes at its persisted pointer with a fresh
// countdown window; the progress map is rebuilt empty, an accepted loss.
func (s *Session) seedLocked(quiz domain.Quiz, defaultTimer int) {
	if s.seeded {
		return
	}
	s.seeded = true
	s.status = quiz.Status
	s.current = quiz.CurrentQuestion
	s.total = len(quiz.Questions)
	s.initTimerLocked(quiz, defaultTimer)
	if s.status == domain.StatusStarted {
		s.resetCountdownLocked()
	}
}

func (s *Session) initTimerLocked(quiz domain.Quiz, defaultTimer int) {
	if quiz.Duration > 0 {
		s.mode = timerGlobal
		s.perQuestion = quiz.Duration * 60
		return
	}
	s.mode = timerPerQuestion
	s.perQuestion = quiz.TimerPerQuestion
	if s.perQuestion <= 0 {
		s.perQuestion = defaultTimer
	}
}

// startLocked performs the waiting -> started transition.
func (s *Session) startLocked(quiz domain.Quiz, defaultTimer int) {
	s.seeded = true
	s.status = domain.StatusStarted
	s.current = 0
	s.total = len(quiz.Questions)
	s.ticks = 0
	s.initTimerLocked(quiz, defaultTimer)
	s.resetCountdownLocked()
}

// canAdvanceLocked validates a pointer move without applying it, so callers
// can persist the new index first and mutate only once the store accepted it.
func (s *Session) canAdvanceLocked(index int) error {
	if index != s.current+1 || index >= s.total {
		return domain.ErrQuestionOutOfRange
	}
	return nil
}

// advanceLocked moves the canonical pointer strictly one step forward.
func (s *Session) advanceLocked(index int) error {
	if err := s.canAdvanceLocked(index); err != nil {
		return err
	}
	s.current = index
	if s.mode == timerPerQuestion {
		s.resetCountdownLocked()
	}
	return nil
}

// resetCountdownLocked restarts the countdown window. In global mode this is
// only ever called once, on start; the single deadline runs the session.
func (s *Session) resetCountdownLocked() {
	s.deadline = s.now().Add(time.Duration(s.perQuestion) * time.Second)
}

// addTimeLocked extends the countdown. Callers validate positivity; time is
// never taken away.
func (s *Session) addTimeLocked(seconds int) {
	s.deadline = s.deadline.Add(time.Duration(seconds) * time.Second)
}

// remainingLocked reports authoritative remaining seconds, floored at zero.
func (s *Session) remainingLocked() int {
	rem := int(s.deadline.Sub(s.now()).Seconds())
	if rem < 0 {
		return 0
	}
	return rem
}

// finishLocked is the terminal transition; it cancels the timer loop.
func (s *Session) finishLocked() {
	s.status = domain.StatusFinished
	if s.stopTimer != nil {
		s.stopTimer()
		s.stopTimer = nil
	}
	s.progress = make(map[string]map[int]bool)
}

func (s *Session) recordAnswerLocked(studentID string, questionIndex int) {
	if s.progress[studentID] == nil {
		s.progress[studentID] = make(map[int]bool)
	}
	s.progress[studentID][questionIndex] = true
}

// progressSnapshotLocked returns answered question indexes per student,
// sorted, for rebuilding a reconnecting client's view.
func (s *Session) progressSnapshotLocked() map[string][]int {
	out := make(map[string][]int, len(s.progress))
	for studentID, answered := range s.progress {
		idxs := make([]int, 0, len(answered))
		for idx := range answered {
			idxs = append(idxs, idx)
		}
		sort.Ints(idxs)
		out[studentID] = idxs
	}
	return out
}

// Subscribe returns a channel receiving this session's broadcast events.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcastLocked(ev domain.Event) {
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			// Drop the oldest pending event so a slow client cannot
			// block the broadcast.
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}
