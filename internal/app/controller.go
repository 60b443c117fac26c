package app

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"classquiz-service/internal/domain"
	"github.com/google/uuid"
)

// Actor identifies who issued a live command. The role decides which
// commands are accepted; identity comes from the boundary, not from here.
type Actor struct {
	ID       string
	Username string
	Role     domain.Role
}

// JoinSnapshot is sent to the joining party only, so a reconnecting client
// can rebuild its view without replaying history.
type JoinSnapshot struct {
	Status           domain.QuizStatus    `json:"status"`
	QuestionIndex    int                  `json:"questionIndex"`
	TotalQuestions   int                  `json:"totalQuestions"`
	RemainingSeconds int                  `json:"remainingSeconds"`
	Participants     []domain.Participant `json:"participants"`
	Progress         map[string][]int     `json:"progress,omitempty"`
}

// Settings tunes the live timers. Zero values fall back to defaults.
type Settings struct {
	DefaultTimerSeconds int // per-question countdown when the quiz leaves it unset
	HeartbeatSeconds    int // ticks between authoritative time-sync broadcasts
}

const (
	defaultTimerSeconds = 30
	heartbeatSeconds    = 5
)

// Controller orchestrates live quiz sessions: it owns the event protocol
// and is the only component with broadcast authority.
type Controller struct {
	sessions SessionRepository
	quizzes  QuizStore
	attempts AttemptStore
	rooms    *RoomRegistry
	board    *Aggregator

	defaultTimer int
	heartbeat    int
	now          func() time.Time
	newID        func() string

	rndMu sync.Mutex // rnd is shared across sessions
	rnd   *rand.Rand
}

func NewController(sessions SessionRepository, quizzes QuizStore, attempts AttemptStore, settings Settings) *Controller {
	return NewControllerWithClock(sessions, quizzes, attempts, settings, time.Now)
}

// NewControllerWithClock allows deterministic time in tests.
func NewControllerWithClock(sessions SessionRepository, quizzes QuizStore, attempts AttemptStore, settings Settings, now func() time.Time) *Controller {
	if settings.DefaultTimerSeconds <= 0 {
		settings.DefaultTimerSeconds = defaultTimerSeconds
	}
	if settings.HeartbeatSeconds <= 0 {
		settings.HeartbeatSeconds = heartbeatSeconds
	}
	return &Controller{
		sessions:     sessions,
		quizzes:      quizzes,
		attempts:     attempts,
		rooms:        NewRoomRegistry(),
		board:        NewAggregator(attempts),
		defaultTimer: settings.DefaultTimerSeconds,
		heartbeat:    settings.HeartbeatSeconds,
		now:          now,
		newID:        uuid.NewString,
		rnd:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Join registers or refreshes a participant and broadcasts the membership
// list. Safe to call repeatedly: a reconnect marks the same identity online
// again instead of adding a duplicate.
func (c *Controller) Join(ctx context.Context, quizID string, actor Actor) (JoinSnapshot, error) {
	quiz, err := c.quizzes.FindQuiz(ctx, quizID)
	if err != nil {
		return JoinSnapshot{}, err
	}
	if quiz.Status == domain.StatusFinished {
		return JoinSnapshot{}, domain.ErrSessionFinished
	}

	session := c.sessions.GetOrCreate(quizID)
	session.mu.Lock()
	defer session.mu.Unlock()

	session.seedLocked(quiz, c.defaultTimer)
	if session.status == domain.StatusStarted {
		c.startTimerLocked(session)
	}

	list := c.rooms.Join(quizID, domain.Participant{
		ID:       actor.ID,
		Username: actor.Username,
		Role:     actor.Role,
		Online:   true,
	})
	session.broadcastLocked(domain.Event{Type: domain.EventParticipants, Payload: list})

	snap := JoinSnapshot{
		Status:         session.status,
		QuestionIndex:  session.current,
		TotalQuestions: session.total,
		Participants:   list,
	}
	if session.status == domain.StatusStarted {
		snap.RemainingSeconds = session.remainingLocked()
	}
	switch actor.Role {
	case domain.RoleTeacher:
		snap.Progress = session.progressSnapshotLocked()
	default:
		// A reconnecting student gets their own answered set back.
		if answered := session.progressSnapshotLocked()[actor.ID]; len(answered) > 0 {
			snap.Progress = map[string][]int{actor.ID: answered}
		}
	}
	return snap, nil
}

// Leave marks the participant offline and rebroadcasts the membership list.
// The record is kept so a reconnect recovers the same slot.
func (c *Controller) Leave(quizID string, participantID string) {
	session, ok := c.sessions.Get(quizID)
	if !ok {
		return
	}
	session.mu.Lock()
	if list, changed := c.rooms.MarkOffline(quizID, participantID); changed {
		session.broadcastLocked(domain.Event{Type: domain.EventParticipants, Payload: list})
	}
	session.mu.Unlock()

	c.sessions.DeleteIfEmpty(quizID)
}

// Subscribe returns a channel receiving the session's broadcast events,
// primed with the current membership list.
func (c *Controller) Subscribe(_ context.Context, quizID string) (<-chan domain.Event, func(), error) {
	session, ok := c.sessions.Get(quizID)
	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	ch, cancel := session.Subscribe()
	session.mu.Lock()
	session.broadcastLocked(domain.Event{Type: domain.EventParticipants, Payload: c.rooms.List(quizID)})
	session.mu.Unlock()
	return ch, cancel, nil
}

// Start performs the waiting -> started transition. Any other live session
// owned by the same teacher is force-finished first. Calling Start on an
// already running session re-broadcasts the current state so late clients
// synchronize.
func (c *Controller) Start(ctx context.Context, quizID string, actor Actor) error {
	if actor.Role != domain.RoleTeacher {
		return domain.ErrTeacherOnly
	}
	quiz, err := c.quizzes.FindQuiz(ctx, quizID)
	if err != nil {
		return err
	}

	session := c.sessions.GetOrCreate(quizID)
	session.mu.Lock()
	defer session.mu.Unlock()
	session.seedLocked(quiz, c.defaultTimer)

	switch session.status {
	case domain.StatusFinished:
		return domain.ErrSessionFinished
	case domain.StatusStarted:
		session.broadcastLocked(domain.Event{Type: domain.EventStarted, Payload: struct{}{}})
		session.broadcastLocked(domain.Event{Type: domain.EventQuestionChanged, Payload: domain.QuestionChanged{QuestionIndex: session.current}})
		session.broadcastLocked(domain.Event{Type: domain.EventTimeSync, Payload: domain.TimeSync{RemainingSeconds: session.remainingLocked()}})
		return nil
	}

	if err := c.quizzes.FinishLiveByOwner(ctx, quiz.OwnerID, quiz.ID); err != nil {
		return err
	}
	if quiz.JoinCode == "" {
		code, err := c.uniqueJoinCode(ctx)
		if err != nil {
			return err
		}
		quiz.JoinCode = code
	}
	quiz.Status = domain.StatusStarted
	quiz.IsLive = true
	quiz.CurrentQuestion = 0
	if err := c.quizzes.SaveQuiz(ctx, quiz); err != nil {
		return err
	}

	session.startLocked(quiz, c.defaultTimer)
	c.startTimerLocked(session)

	session.broadcastLocked(domain.Event{Type: domain.EventStarted, Payload: struct{}{}})
	session.broadcastLocked(domain.Event{Type: domain.EventQuestionChanged, Payload: domain.QuestionChanged{QuestionIndex: 0}})
	session.broadcastLocked(domain.Event{Type: domain.EventTimeSync, Payload: domain.TimeSync{RemainingSeconds: session.remainingLocked()}})
	return nil
}

// Advance moves the canonical question pointer one step forward and resets
// the per-question countdown. Backward or past-the-end moves are rejected.
func (c *Controller) Advance(ctx context.Context, quizID string, actor Actor, index int) error {
	if actor.Role != domain.RoleTeacher {
		return domain.ErrTeacherOnly
	}
	session, ok := c.sessions.Get(quizID)
	if !ok {
		return c.missingSessionError(ctx, quizID)
	}
	session.mu.Lock()
	defer session.mu.Unlock()

	if err := c.requireStartedLocked(session); err != nil {
		return err
	}
	if err := session.canAdvanceLocked(index); err != nil {
		return err
	}

	// Persist before mutating: a store failure must leave the pointer where
	// it was so the identical command can be retried.
	quiz, err := c.quizzes.FindQuiz(ctx, quizID)
	if err != nil {
		return err
	}
	quiz.CurrentQuestion = index
	if err := c.quizzes.SaveQuiz(ctx, quiz); err != nil {
		return err
	}
	if err := session.advanceLocked(index); err != nil {
		return err
	}

	session.broadcastLocked(domain.Event{Type: domain.EventQuestionChanged, Payload: domain.QuestionChanged{QuestionIndex: index}})
	session.broadcastLocked(domain.Event{Type: domain.EventTimeSync, Payload: domain.TimeSync{RemainingSeconds: session.remainingLocked()}})
	return nil
}

// SubmitAnswer applies the scoring rule and upserts the answer into the
// student's attempt. Resubmission for the same question replaces the prior
// entry and adjusts the score by the delta, so retries are idempotent.
func (c *Controller) SubmitAnswer(ctx context.Context, quizID string, actor Actor, sub domain.AnswerSubmission) (domain.AnswerFeedback, error) {
	session, ok := c.sessions.Get(quizID)
	if !ok {
		return domain.AnswerFeedback{}, c.missingSessionError(ctx, quizID)
	}
	session.mu.Lock()
	defer session.mu.Unlock()

	if err := c.requireStartedLocked(session); err != nil {
		return domain.AnswerFeedback{}, err
	}

	quiz, err := c.quizzes.FindQuiz(ctx, quizID)
	if err != nil {
		return domain.AnswerFeedback{}, err
	}
	if sub.QuestionIndex < 0 || sub.QuestionIndex >= len(quiz.Questions) {
		return domain.AnswerFeedback{}, domain.ErrQuestionOutOfRange
	}
	question := quiz.Questions[sub.QuestionIndex]
	correct, points := domain.Score(question, sub.Answer)

	now := c.now()
	attempt, err := c.attempts.FindAttempt(ctx, quizID, actor.ID)
	switch {
	case errors.Is(err, domain.ErrAttemptNotFound):
		attempt = domain.Attempt{
			ID:        c.newID(),
			QuizID:    quizID,
			StudentID: actor.ID,
			Username:  actor.Username,
			StartedAt: now,
		}
	case err != nil:
		return domain.AnswerFeedback{}, err
	}

	record := domain.RecordedAnswer{
		QuestionText:   question.Text,
		SelectedOption: sub.Answer,
		CorrectOption:  question.CorrectAnswer,
		IsCorrect:      correct,
	}
	replaced := false
	for i := range attempt.Answers {
		if attempt.Answers[i].QuestionText != question.Text {
			continue
		}
		_, oldPoints := domain.Score(question, attempt.Answers[i].SelectedOption)
		attempt.Score += points - oldPoints
		attempt.Answers[i] = record
		replaced = true
		break
	}
	if !replaced {
		attempt.Answers = append(attempt.Answers, record)
		attempt.Score += points
	}
	attempt.TotalQuestions = len(quiz.Questions)
	attempt.Status = domain.AttemptInProgress
	attempt.CompletedAt = now
	if attempt.Username == "" {
		attempt.Username = actor.Username
	}

	if err := c.attempts.UpsertAttempt(ctx, attempt); err != nil {
		return domain.AnswerFeedback{}, err
	}
	session.recordAnswerLocked(actor.ID, sub.QuestionIndex)
	session.broadcastLocked(domain.Event{Type: domain.EventProgress, Payload: domain.ProgressUpdate{
		StudentID:     actor.ID,
		Username:      attempt.Username,
		QuestionIndex: sub.QuestionIndex,
		Answered:      true,
	}})

	entries, err := c.board.Compute(ctx, quizID)
	if err != nil {
		// The attempt is persisted; the client may retry safely.
		return domain.AnswerFeedback{}, err
	}
	session.broadcastLocked(domain.Event{Type: domain.EventLeaderboard, Payload: domain.LeaderboardUpdate{
		QuizID:        quizID,
		QuestionIndex: sub.QuestionIndex,
		Entries:       entries,
	}})

	return domain.AnswerFeedback{
		QuestionIndex: sub.QuestionIndex,
		Correct:       correct,
		Awarded:       points,
		TotalScore:    attempt.Score,
	}, nil
}

// AddQuestion appends a question mid-session and announces it. The current
// pointer and already-recorded attempts are untouched.
func (c *Controller) AddQuestion(ctx context.Context, quizID string, actor Actor, question domain.Question) error {
	if actor.Role != domain.RoleTeacher {
		return domain.ErrTeacherOnly
	}
	session, ok := c.sessions.Get(quizID)
	if !ok {
		return c.missingSessionError(ctx, quizID)
	}
	session.mu.Lock()
	defer session.mu.Unlock()

	if err := c.requireStartedLocked(session); err != nil {
		return err
	}

	quiz, err := c.quizzes.FindQuiz(ctx, quizID)
	if err != nil {
		return err
	}
	quiz.Questions = append(quiz.Questions, question)
	if err := c.quizzes.SaveQuiz(ctx, quiz); err != nil {
		return err
	}

	session.total = len(quiz.Questions)
	session.broadcastLocked(domain.Event{Type: domain.EventQuestionAdded, Payload: domain.QuestionAdded{
		Question:       question,
		QuestionIndex:  len(quiz.Questions) - 1,
		TotalQuestions: len(quiz.Questions),
	}})
	return nil
}

// AddTime grants bonus seconds on the authoritative countdown; it never
// shortens it.
func (c *Controller) AddTime(ctx context.Context, quizID string, actor Actor, seconds int) error {
	if actor.Role != domain.RoleTeacher {
		return domain.ErrTeacherOnly
	}
	if seconds <= 0 {
		return domain.ErrInvalidBonus
	}
	session, ok := c.sessions.Get(quizID)
	if !ok {
		return c.missingSessionError(ctx, quizID)
	}
	session.mu.Lock()
	defer session.mu.Unlock()

	if err := c.requireStartedLocked(session); err != nil {
		return err
	}
	session.addTimeLocked(seconds)
	session.broadcastLocked(domain.Event{Type: domain.EventTimeSync, Payload: domain.TimeSync{RemainingSeconds: session.remainingLocked()}})
	return nil
}

// End finishes the session, freezes the final leaderboard onto the quiz
// record and broadcasts the terminal signal. Every later command against
// the session is rejected.
func (c *Controller) End(ctx context.Context, quizID string, actor Actor) error {
	if actor.Role != domain.RoleTeacher {
		return domain.ErrTeacherOnly
	}
	session, ok := c.sessions.Get(quizID)
	if !ok {
		return c.missingSessionError(ctx, quizID)
	}
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.status == domain.StatusFinished {
		return domain.ErrSessionFinished
	}
	return c.finishLocked(ctx, quizID, session)
}

// Leaderboard serves reads outside the live loop: the frozen standings for
// a finished session, a live recompute otherwise.
func (c *Controller) Leaderboard(ctx context.Context, quizID string) ([]domain.LeaderboardEntry, error) {
	quiz, err := c.quizzes.FindQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if quiz.Status == domain.StatusFinished && quiz.FinalLeaderboard != nil {
		return quiz.FinalLeaderboard, nil
	}
	return c.board.Compute(ctx, quizID)
}

// finishLocked persists the final standings, completes open attempts and
// broadcasts the terminal signal. On persistence failure nothing is
// broadcast and the command may be retried.
func (c *Controller) finishLocked(ctx context.Context, quizID string, session *Session) error {
	entries, err := c.board.Compute(ctx, quizID)
	if err != nil {
		return err
	}
	quiz, err := c.quizzes.FindQuiz(ctx, quizID)
	if err != nil {
		return err
	}
	quiz.Status = domain.StatusFinished
	quiz.IsLive = false
	quiz.FinalLeaderboard = entries
	if err := c.quizzes.SaveQuiz(ctx, quiz); err != nil {
		return err
	}

	attempts, err := c.attempts.ListAttempts(ctx, quizID)
	if err != nil {
		return err
	}
	for _, at := range attempts {
		if at.Status == domain.AttemptCompleted {
			continue
		}
		at.Status = domain.AttemptCompleted
		if err := c.attempts.UpsertAttempt(ctx, at); err != nil {
			return err
		}
	}

	session.finishLocked()
	session.broadcastLocked(domain.Event{Type: domain.EventEnded, Payload: domain.SessionEnded{FinalLeaderboard: entries}})
	c.rooms.Drop(quizID)
	return nil
}

// startTimerLocked spawns the per-session tick loop once.
func (c *Controller) startTimerLocked(session *Session) {
	if session.stopTimer != nil || session.status != domain.StatusStarted {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	session.stopTimer = cancel
	go c.runTimer(ctx, session.id)
}

func (c *Controller) runTimer(ctx context.Context, quizID string) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.tick(context.Background(), quizID) {
				return
			}
		}
	}
}

// tick is one authoritative timer step: it auto-finishes a session whose
// global duration ran out and emits the periodic time-sync heartbeat.
// Returns true when the loop should stop.
func (c *Controller) tick(ctx context.Context, quizID string) bool {
	session, ok := c.sessions.Get(quizID)
	if !ok {
		return true
	}
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.status != domain.StatusStarted {
		return true
	}
	session.ticks++
	remaining := session.remainingLocked()

	if session.mode == timerGlobal && remaining <= 0 {
		if err := c.finishLocked(ctx, quizID, session); err != nil {
			log.Printf("live: auto-finish of %s failed, will retry: %v", quizID, err)
			return false
		}
		return true
	}
	if session.ticks%c.heartbeat == 0 {
		session.broadcastLocked(domain.Event{Type: domain.EventTimeSync, Payload: domain.TimeSync{RemainingSeconds: remaining}})
	}
	return false
}

func (c *Controller) requireStartedLocked(session *Session) error {
	switch session.status {
	case domain.StatusFinished:
		return domain.ErrSessionFinished
	case domain.StatusWaiting:
		return domain.ErrSessionNotStarted
	}
	return nil
}

// uniqueJoinCode draws codes until one is free. With a six-digit space the
// retry loop terminates in practice; the bound guards a pathological store.
func (c *Controller) uniqueJoinCode(ctx context.Context) (string, error) {
	for i := 0; i < 10; i++ {
		c.rndMu.Lock()
		code := domain.NewJoinCode(c.rnd)
		c.rndMu.Unlock()
		_, err := c.quizzes.FindQuizByCode(ctx, code)
		if errors.Is(err, domain.ErrQuizNotFound) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", errors.New("join code space exhausted")
}

// missingSessionError distinguishes a finished-and-collected session (a
// stale event, silently ignored upstream) from a genuinely unknown one.
func (c *Controller) missingSessionError(ctx context.Context, quizID string) error {
	if quiz, err := c.quizzes.FindQuiz(ctx, quizID); err == nil && quiz.Status == domain.StatusFinished {
		return domain.ErrSessionFinished
	}
	return domain.ErrSessionNotFound
}
