package domain

import "time"

// Role tags a connected participant. Which live commands are accepted is
// decided by the controller based on this tag.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// QuizStatus is the live lifecycle of a quiz session.
type QuizStatus string

const (
	StatusWaiting  QuizStatus = "waiting"
	StatusStarted  QuizStatus = "started"
	StatusFinished QuizStatus = "finished"
)

// QuestionType distinguishes how clients render a question.
type QuestionType string

const (
	TypeMultipleChoice QuestionType = "multiple-choice"
	TypeTrueFalse      QuestionType = "true-false"
	TypeInput          QuestionType = "input"
)

// Question is a single quiz question. Immutable once a session has started,
// except for append-only injection by the teacher.
type Question struct {
	Text          string       `json:"questionText"`
	Options       []string     `json:"options"`
	CorrectAnswer string       `json:"correctAnswer"`
	Points        int          `json:"points"` // defaults to 10 if zero
	Type          QuestionType `json:"type"`
}

// Quiz is the session definition: an ordered question list plus live state.
// Status and CurrentQuestion are owned by the session state machine.
type Quiz struct {
	ID               string             `json:"id"`
	Title            string             `json:"title"`
	OwnerID          string             `json:"createdBy"`
	JoinCode         string             `json:"joinCode"`
	Questions        []Question         `json:"questions"`
	IsLive           bool               `json:"isLive"`
	TimerPerQuestion int                `json:"timerPerQuestion"` // seconds, 0 = use default
	Duration         int                `json:"duration"`         // minutes, 0 = disabled; overrides per-question timer
	Status           QuizStatus         `json:"status"`
	CurrentQuestion  int                `json:"currentQuestion"`
	FinalLeaderboard []LeaderboardEntry `json:"finalLeaderboard,omitempty"`
	CreatedAt        time.Time          `json:"createdAt"`
}

// RecordedAnswer is one answered question inside an attempt, keyed by
// question text so a resubmission replaces the prior entry.
type RecordedAnswer struct {
	QuestionText   string `json:"questionText"`
	SelectedOption string `json:"selectedOption"`
	CorrectOption  string `json:"correctOption"`
	IsCorrect      bool   `json:"isCorrect"`
}

// AttemptStatus tracks whether a student is still answering.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in-progress"
	AttemptCompleted  AttemptStatus = "completed"
)

// Attempt is a student's evolving record for one quiz. At most one exists
// per (quiz, student) pair.
type Attempt struct {
	ID             string           `json:"id"`
	QuizID         string           `json:"quizId"`
	StudentID      string           `json:"studentId"`
	Username       string           `json:"username"`
	Score          int              `json:"score"`
	TotalQuestions int              `json:"totalQuestions"`
	Answers        []RecordedAnswer `json:"answers"`
	Status         AttemptStatus    `json:"status"`
	StartedAt      time.Time        `json:"startedAt"`
	CompletedAt    time.Time        `json:"completedAt"` // time of the last scoring change
}

// LeaderboardEntry is a ranked view over one attempt. Recomputed from the
// attempt set, never stored incrementally, so recomputation is idempotent.
type LeaderboardEntry struct {
	StudentID     string `json:"studentId"`
	Username      string `json:"username"`
	CurrentScore  int    `json:"currentScore"`
	AnsweredCount int    `json:"answeredCount"`
	Rank          int    `json:"rank"`
}

// Participant is an ephemeral room membership record. Never persisted;
// marked offline instead of removed so a reconnect recovers its slot.
type Participant struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	Online   bool   `json:"online"`
}

// AnswerSubmission models a live answer from a student client.
type AnswerSubmission struct {
	QuestionIndex int    `json:"questionIndex"`
	Answer        string `json:"answer"`
	TimeRemaining int    `json:"timeRemaining"` // client-side countdown value, informational only
}

// AnswerFeedback is the submitting student's private result.
type AnswerFeedback struct {
	QuestionIndex int  `json:"questionIndex"`
	Correct       bool `json:"correct"`
	Awarded       int  `json:"awarded"`
	TotalScore    int  `json:"totalScore"`
}
