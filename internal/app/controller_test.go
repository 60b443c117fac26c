package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"classquiz-service/internal/app"
	"classquiz-service/internal/domain"
	"classquiz-service/internal/infra/memory"
)

var (
	teacher = app.Actor{ID: "teacher-1", Username: "Ms. Reed", Role: domain.RoleTeacher}
	alice   = app.Actor{ID: "u1", Username: "Alice", Role: domain.RoleStudent}
	bob     = app.Actor{ID: "u2", Username: "Bob", Role: domain.RoleStudent}
	cara    = app.Actor{ID: "u3", Username: "Cara", Role: domain.RoleStudent}
)

func testQuiz() domain.Quiz {
	return domain.Quiz{
		ID:      "quiz-1",
		Title:   "Geography",
		OwnerID: teacher.ID,
		Status:  domain.StatusWaiting,
		Questions: []domain.Question{
			{Text: "Capital of France?", Options: []string{"Paris", "Lyon"}, CorrectAnswer: "Paris", Points: 10},
			{Text: "Capital of Japan?", Options: []string{"Kyoto", "Tokyo"}, CorrectAnswer: "Tokyo", Points: 10},
		},
		TimerPerQuestion: 30,
	}
}

func newTestController(quizzes ...domain.Quiz) (*app.Controller, *memory.QuizStore, *memory.AttemptStore) {
	seed := make(map[string]domain.Quiz)
	for _, q := range quizzes {
		seed[q.ID] = q
	}
	quizStore := memory.NewQuizStore(seed)
	attempts := memory.NewAttemptStore()
	ctrl := app.NewController(memory.NewSessionStore(), quizStore, attempts, app.Settings{})
	return ctrl, quizStore, attempts
}

func mustJoin(t *testing.T, ctrl *app.Controller, quizID string, actor app.Actor) app.JoinSnapshot {
	t.Helper()
	snap, err := ctrl.Join(context.Background(), quizID, actor)
	if err != nil {
		t.Fatalf("join %s: %v", actor.ID, err)
	}
	return snap
}

func waitForEvent(t *testing.T, ch <-chan domain.Event, want domain.EventType) domain.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestStartAndScoringFlow(t *testing.T) {
	ctx := context.Background()
	ctrl, quizStore, _ := newTestController(testQuiz())

	mustJoin(t, ctrl, "quiz-1", teacher)
	mustJoin(t, ctrl, "quiz-1", alice)
	mustJoin(t, ctrl, "quiz-1", bob)
	mustJoin(t, ctrl, "quiz-1", cara)

	if err := ctrl.Start(ctx, "quiz-1", teacher); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	stored, err := quizStore.FindQuiz(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("find quiz: %v", err)
	}
	if stored.Status != domain.StatusStarted || !stored.IsLive {
		t.Fatalf("expected started live quiz, got status=%s live=%v", stored.Status, stored.IsLive)
	}
	if len(stored.JoinCode) != 6 {
		t.Fatalf("expected a generated join code, got %q", stored.JoinCode)
	}

	feedback, err := ctrl.SubmitAnswer(ctx, "quiz-1", alice, domain.AnswerSubmission{QuestionIndex: 0, Answer: "Paris"})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !feedback.Correct || feedback.Awarded != 10 || feedback.TotalScore != 10 {
		t.Fatalf("unexpected feedback %+v", feedback)
	}

	feedback, err = ctrl.SubmitAnswer(ctx, "quiz-1", bob, domain.AnswerSubmission{QuestionIndex: 0, Answer: "Lyon"})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if feedback.Correct || feedback.Awarded != 0 || feedback.TotalScore != 0 {
		t.Fatalf("unexpected feedback for wrong answer %+v", feedback)
	}

	// Cara matches Alice's score later, so the earlier completion wins.
	if _, err := ctrl.SubmitAnswer(ctx, "quiz-1", cara, domain.AnswerSubmission{QuestionIndex: 0, Answer: "Paris"}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	entries, err := ctrl.Leaderboard(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("leaderboard failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %+v", entries)
	}
	if entries[0].StudentID != alice.ID || entries[0].CurrentScore != 10 || entries[0].Rank != 1 {
		t.Fatalf("expected Alice leading with 10, got %+v", entries)
	}
	if entries[1].StudentID != cara.ID || entries[2].StudentID != bob.ID {
		t.Fatalf("unexpected order %+v", entries)
	}
}

func TestResubmissionReplacesAnswer(t *testing.T) {
	ctx := context.Background()
	ctrl, _, attempts := newTestController(testQuiz())

	mustJoin(t, ctrl, "quiz-1", teacher)
	mustJoin(t, ctrl, "quiz-1", alice)
	if err := ctrl.Start(ctx, "quiz-1", teacher); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if _, err := ctrl.SubmitAnswer(ctx, "quiz-1", alice, domain.AnswerSubmission{QuestionIndex: 0, Answer: "Lyon"}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	feedback, err := ctrl.SubmitAnswer(ctx, "quiz-1", alice, domain.AnswerSubmission{QuestionIndex: 0, Answer: "Paris"})
	if err != nil {
		t.Fatalf("resubmit failed: %v", err)
	}
	if feedback.TotalScore != 10 {
		t.Fatalf("expected corrected total 10, got %d", feedback.TotalScore)
	}

	attempt, err := attempts.FindAttempt(ctx, "quiz-1", alice.ID)
	if err != nil {
		t.Fatalf("find attempt: %v", err)
	}
	if len(attempt.Answers) != 1 {
		t.Fatalf("resubmission appended instead of replacing: %+v", attempt.Answers)
	}
	if attempt.Score != 10 {
		t.Fatalf("expected score 10, got %d", attempt.Score)
	}

	// Repeating the identical answer is a no-op on the score.
	feedback, err = ctrl.SubmitAnswer(ctx, "quiz-1", alice, domain.AnswerSubmission{QuestionIndex: 0, Answer: "Paris"})
	if err != nil {
		t.Fatalf("duplicate submit failed: %v", err)
	}
	if feedback.TotalScore != 10 {
		t.Fatalf("duplicate submission changed the total, got %d", feedback.TotalScore)
	}
	attempt, _ = attempts.FindAttempt(ctx, "quiz-1", alice.ID)
	if attempt.Score != 10 || len(attempt.Answers) != 1 {
		t.Fatalf("duplicate submission altered the attempt: score=%d answers=%d", attempt.Score, len(attempt.Answers))
	}

	// Downgrading a correct answer takes the points back.
	feedback, err = ctrl.SubmitAnswer(ctx, "quiz-1", alice, domain.AnswerSubmission{QuestionIndex: 0, Answer: "Lyon"})
	if err != nil {
		t.Fatalf("resubmit failed: %v", err)
	}
	if feedback.TotalScore != 0 {
		t.Fatalf("expected score back at 0, got %d", feedback.TotalScore)
	}
}

func TestStartIsTeacherOnly(t *testing.T) {
	ctx := context.Background()
	ctrl, _, _ := newTestController(testQuiz())
	mustJoin(t, ctrl, "quiz-1", alice)

	if err := ctrl.Start(ctx, "quiz-1", alice); !errors.Is(err, domain.ErrTeacherOnly) {
		t.Fatalf("expected teacher-only rejection, got %v", err)
	}
	if err := ctrl.End(ctx, "quiz-1", alice); !errors.Is(err, domain.ErrTeacherOnly) {
		t.Fatalf("expected teacher-only rejection, got %v", err)
	}
	if err := ctrl.Advance(ctx, "quiz-1", alice, 1); !errors.Is(err, domain.ErrTeacherOnly) {
		t.Fatalf("expected teacher-only rejection, got %v", err)
	}
}

func TestSubmitBeforeStart(t *testing.T) {
	ctx := context.Background()
	ctrl, _, _ := newTestController(testQuiz())
	mustJoin(t, ctrl, "quiz-1", alice)

	_, err := ctrl.SubmitAnswer(ctx, "quiz-1", alice, domain.AnswerSubmission{QuestionIndex: 0, Answer: "Paris"})
	if !errors.Is(err, domain.ErrSessionNotStarted) {
		t.Fatalf("expected not-started rejection, got %v", err)
	}
}

func TestAdvancePersistsPointer(t *testing.T) {
	ctx := context.Background()
	ctrl, quizStore, _ := newTestController(testQuiz())
	mustJoin(t, ctrl, "quiz-1", teacher)
	if err := ctrl.Start(ctx, "quiz-1", teacher); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if err := ctrl.Advance(ctx, "quiz-1", teacher, 1); err != nil {
		t.Fatalf("advance failed: %v", err)
	}
	stored, _ := quizStore.FindQuiz(ctx, "quiz-1")
	if stored.CurrentQuestion != 1 {
		t.Fatalf("expected persisted pointer 1, got %d", stored.CurrentQuestion)
	}

	if err := ctrl.Advance(ctx, "quiz-1", teacher, 0); !errors.Is(err, domain.ErrQuestionOutOfRange) {
		t.Fatalf("expected backward rejection, got %v", err)
	}
}

func TestStartForceFinishesOtherLiveQuiz(t *testing.T) {
	ctx := context.Background()
	first := testQuiz()
	first.Status = domain.StatusStarted
	first.IsLive = true
	second := testQuiz()
	second.ID = "quiz-2"

	ctrl, quizStore, _ := newTestController(first, second)
	mustJoin(t, ctrl, "quiz-2", teacher)
	if err := ctrl.Start(ctx, "quiz-2", teacher); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	stored, _ := quizStore.FindQuiz(ctx, "quiz-1")
	if stored.Status != domain.StatusFinished || stored.IsLive {
		t.Fatalf("expected the other live quiz force-finished, got status=%s live=%v", stored.Status, stored.IsLive)
	}
}

func TestAddQuestionMidSession(t *testing.T) {
	ctx := context.Background()
	ctrl, quizStore, _ := newTestController(testQuiz())

	mustJoin(t, ctrl, "quiz-1", teacher)
	mustJoin(t, ctrl, "quiz-1", alice)
	if err := ctrl.Start(ctx, "quiz-1", teacher); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	ch, cancel, err := ctrl.Subscribe(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	extra := domain.Question{Text: "Capital of Italy?", Options: []string{"Rome", "Milan"}, CorrectAnswer: "Rome"}
	if err := ctrl.AddQuestion(ctx, "quiz-1", teacher, extra); err != nil {
		t.Fatalf("add question failed: %v", err)
	}

	ev := waitForEvent(t, ch, domain.EventQuestionAdded)
	added := ev.Payload.(domain.QuestionAdded)
	if added.QuestionIndex != 2 || added.TotalQuestions != 3 {
		t.Fatalf("unexpected announcement %+v", added)
	}

	stored, _ := quizStore.FindQuiz(ctx, "quiz-1")
	if len(stored.Questions) != 3 {
		t.Fatalf("expected 3 persisted questions, got %d", len(stored.Questions))
	}

	// The injected question is immediately answerable, with the default
	// points value.
	feedback, err := ctrl.SubmitAnswer(ctx, "quiz-1", alice, domain.AnswerSubmission{QuestionIndex: 2, Answer: "Rome"})
	if err != nil {
		t.Fatalf("submit on injected question failed: %v", err)
	}
	if !feedback.Correct || feedback.Awarded != domain.DefaultQuestionPoints {
		t.Fatalf("unexpected feedback %+v", feedback)
	}
}

// flakyQuizStore fails writes on demand to exercise persistence-error paths.
type flakyQuizStore struct {
	app.QuizStore
	failSave bool
}

var errStoreUnavailable = errors.New("store unavailable")

func (s *flakyQuizStore) SaveQuiz(ctx context.Context, quiz domain.Quiz) error {
	if s.failSave {
		return errStoreUnavailable
	}
	return s.QuizStore.SaveQuiz(ctx, quiz)
}

func TestAdvanceRetriesAfterStoreFailure(t *testing.T) {
	ctx := context.Background()
	quiz := testQuiz()
	store := &flakyQuizStore{QuizStore: memory.NewQuizStore(map[string]domain.Quiz{quiz.ID: quiz})}
	ctrl := app.NewController(memory.NewSessionStore(), store, memory.NewAttemptStore(), app.Settings{})

	mustJoin(t, ctrl, "quiz-1", teacher)
	if err := ctrl.Start(ctx, "quiz-1", teacher); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	store.failSave = true
	if err := ctrl.Advance(ctx, "quiz-1", teacher, 1); !errors.Is(err, errStoreUnavailable) {
		t.Fatalf("expected store error, got %v", err)
	}
	stored, _ := store.FindQuiz(ctx, "quiz-1")
	if stored.CurrentQuestion != 0 {
		t.Fatalf("failed advance moved the persisted pointer to %d", stored.CurrentQuestion)
	}

	// The identical command must succeed once the store recovers.
	store.failSave = false
	if err := ctrl.Advance(ctx, "quiz-1", teacher, 1); err != nil {
		t.Fatalf("retry after store failure rejected: %v", err)
	}
	stored, _ = store.FindQuiz(ctx, "quiz-1")
	if stored.CurrentQuestion != 1 {
		t.Fatalf("expected persisted pointer 1, got %d", stored.CurrentQuestion)
	}
}

func TestConcurrentStartsAssignDistinctCodes(t *testing.T) {
	ctx := context.Background()
	var quizzes []domain.Quiz
	for i := 0; i < 8; i++ {
		q := testQuiz()
		q.ID = fmt.Sprintf("quiz-%d", i)
		q.OwnerID = fmt.Sprintf("teacher-%d", i)
		quizzes = append(quizzes, q)
	}
	ctrl, store, _ := newTestController(quizzes...)

	var wg sync.WaitGroup
	for i := range quizzes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := app.Actor{ID: quizzes[i].OwnerID, Username: "Reed", Role: domain.RoleTeacher}
			if _, err := ctrl.Join(ctx, quizzes[i].ID, actor); err != nil {
				t.Errorf("join %s: %v", quizzes[i].ID, err)
				return
			}
			if err := ctrl.Start(ctx, quizzes[i].ID, actor); err != nil {
				t.Errorf("start %s: %v", quizzes[i].ID, err)
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, q := range quizzes {
		stored, err := store.FindQuiz(ctx, q.ID)
		if err != nil {
			t.Fatalf("find quiz: %v", err)
		}
		if len(stored.JoinCode) != 6 {
			t.Fatalf("quiz %s missing a join code: %q", q.ID, stored.JoinCode)
		}
		if seen[stored.JoinCode] {
			t.Fatalf("duplicate join code %s", stored.JoinCode)
		}
		seen[stored.JoinCode] = true
	}
}

func TestAddTimeValidation(t *testing.T) {
	ctx := context.Background()
	ctrl, _, _ := newTestController(testQuiz())
	mustJoin(t, ctrl, "quiz-1", teacher)
	if err := ctrl.Start(ctx, "quiz-1", teacher); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if err := ctrl.AddTime(ctx, "quiz-1", teacher, 0); !errors.Is(err, domain.ErrInvalidBonus) {
		t.Fatalf("expected bonus validation, got %v", err)
	}
	if err := ctrl.AddTime(ctx, "quiz-1", alice, 10); !errors.Is(err, domain.ErrTeacherOnly) {
		t.Fatalf("expected teacher-only rejection, got %v", err)
	}
	if err := ctrl.AddTime(ctx, "quiz-1", teacher, 15); err != nil {
		t.Fatalf("add time failed: %v", err)
	}
}

func TestAddTimeRequiresRunningSession(t *testing.T) {
	ctx := context.Background()
	ctrl, _, _ := newTestController(testQuiz())
	mustJoin(t, ctrl, "quiz-1", teacher)

	// There is no countdown to extend before the session starts.
	if err := ctrl.AddTime(ctx, "quiz-1", teacher, 10); !errors.Is(err, domain.ErrSessionNotStarted) {
		t.Fatalf("expected not-started rejection, got %v", err)
	}
}

func TestEndFreezesLeaderboard(t *testing.T) {
	ctx := context.Background()
	ctrl, quizStore, attempts := newTestController(testQuiz())

	mustJoin(t, ctrl, "quiz-1", teacher)
	mustJoin(t, ctrl, "quiz-1", alice)
	if err := ctrl.Start(ctx, "quiz-1", teacher); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := ctrl.SubmitAnswer(ctx, "quiz-1", alice, domain.AnswerSubmission{QuestionIndex: 0, Answer: "Paris"}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if err := ctrl.End(ctx, "quiz-1", teacher); err != nil {
		t.Fatalf("end failed: %v", err)
	}

	stored, _ := quizStore.FindQuiz(ctx, "quiz-1")
	if stored.Status != domain.StatusFinished || stored.IsLive {
		t.Fatalf("expected finished quiz, got status=%s live=%v", stored.Status, stored.IsLive)
	}
	if len(stored.FinalLeaderboard) != 1 || stored.FinalLeaderboard[0].StudentID != alice.ID {
		t.Fatalf("expected frozen standings, got %+v", stored.FinalLeaderboard)
	}

	attempt, err := attempts.FindAttempt(ctx, "quiz-1", alice.ID)
	if err != nil {
		t.Fatalf("find attempt: %v", err)
	}
	if attempt.Status != domain.AttemptCompleted {
		t.Fatalf("expected completed attempt, got %s", attempt.Status)
	}

	// Late commands land after the terminal transition.
	if _, err := ctrl.SubmitAnswer(ctx, "quiz-1", alice, domain.AnswerSubmission{QuestionIndex: 1, Answer: "Tokyo"}); !errors.Is(err, domain.ErrSessionFinished) {
		t.Fatalf("expected finished rejection, got %v", err)
	}
	if err := ctrl.End(ctx, "quiz-1", teacher); !errors.Is(err, domain.ErrSessionFinished) {
		t.Fatalf("expected finished rejection, got %v", err)
	}
	if _, err := ctrl.Join(ctx, "quiz-1", bob); !errors.Is(err, domain.ErrSessionFinished) {
		t.Fatalf("expected join rejection, got %v", err)
	}

	// The frozen standings keep serving reads.
	entries, err := ctrl.Leaderboard(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("leaderboard failed: %v", err)
	}
	if len(entries) != 1 || entries[0].StudentID != alice.ID {
		t.Fatalf("expected frozen leaderboard, got %+v", entries)
	}
}

func TestSubscribeReceivesLifecycle(t *testing.T) {
	ctx := context.Background()
	ctrl, _, _ := newTestController(testQuiz())

	mustJoin(t, ctrl, "quiz-1", alice)
	ch, cancel, err := ctrl.Subscribe(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	mustJoin(t, ctrl, "quiz-1", teacher)
	if err := ctrl.Start(ctx, "quiz-1", teacher); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitForEvent(t, ch, domain.EventStarted)
	ev := waitForEvent(t, ch, domain.EventQuestionChanged)
	if ev.Payload.(domain.QuestionChanged).QuestionIndex != 0 {
		t.Fatalf("expected first question announcement, got %+v", ev.Payload)
	}
	waitForEvent(t, ch, domain.EventTimeSync)

	if _, err := ctrl.SubmitAnswer(ctx, "quiz-1", alice, domain.AnswerSubmission{QuestionIndex: 0, Answer: "Paris"}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	waitForEvent(t, ch, domain.EventProgress)
	lb := waitForEvent(t, ch, domain.EventLeaderboard)
	update := lb.Payload.(domain.LeaderboardUpdate)
	if len(update.Entries) != 1 || update.Entries[0].CurrentScore != 10 {
		t.Fatalf("unexpected leaderboard update %+v", update)
	}

	if err := ctrl.End(ctx, "quiz-1", teacher); err != nil {
		t.Fatalf("end failed: %v", err)
	}
	ended := waitForEvent(t, ch, domain.EventEnded)
	if len(ended.Payload.(domain.SessionEnded).FinalLeaderboard) != 1 {
		t.Fatalf("expected final standings in terminal event")
	}
}

func TestTeacherSnapshotCarriesProgress(t *testing.T) {
	ctx := context.Background()
	ctrl, _, _ := newTestController(testQuiz())

	mustJoin(t, ctrl, "quiz-1", teacher)
	mustJoin(t, ctrl, "quiz-1", alice)
	if err := ctrl.Start(ctx, "quiz-1", teacher); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := ctrl.SubmitAnswer(ctx, "quiz-1", alice, domain.AnswerSubmission{QuestionIndex: 0, Answer: "Paris"}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	snap := mustJoin(t, ctrl, "quiz-1", teacher)
	if snap.Status != domain.StatusStarted || snap.RemainingSeconds <= 0 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if got := snap.Progress[alice.ID]; len(got) != 1 || got[0] != 0 {
		t.Fatalf("expected Alice's progress in teacher snapshot, got %+v", snap.Progress)
	}

	student := mustJoin(t, ctrl, "quiz-1", bob)
	if student.Progress != nil {
		t.Fatalf("students must not see the progress map, got %+v", student.Progress)
	}

	// A reconnecting student recovers only their own answered set.
	rejoined := mustJoin(t, ctrl, "quiz-1", alice)
	if len(rejoined.Progress) != 1 || len(rejoined.Progress[alice.ID]) != 1 {
		t.Fatalf("expected Alice's own progress on reconnect, got %+v", rejoined.Progress)
	}
}
