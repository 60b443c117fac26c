package domain

// EventType names a broadcast-worthy change inside a live session.
type EventType string

const (
	EventParticipants    EventType = "participants"
	EventStarted         EventType = "quiz_started"
	EventQuestionChanged EventType = "question_changed"
	EventLeaderboard     EventType = "leaderboard"
	EventQuestionAdded   EventType = "question_added"
	EventProgress        EventType = "student_progress"
	EventTimeSync        EventType = "time_sync"
	EventEnded           EventType = "quiz_ended"
)

// Event is the envelope fanned out to every subscriber of a session.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// QuestionChanged carries the new canonical question pointer.
type QuestionChanged struct {
	QuestionIndex int `json:"questionIndex"`
}

// LeaderboardUpdate is broadcast after every scoring change.
type LeaderboardUpdate struct {
	QuizID        string             `json:"quizId"`
	QuestionIndex int                `json:"questionIndex"`
	Entries       []LeaderboardEntry `json:"entries"`
}

// QuestionAdded announces a question injected mid-session.
type QuestionAdded struct {
	Question       Question `json:"question"`
	QuestionIndex  int      `json:"questionIndex"`
	TotalQuestions int      `json:"totalQuestions"`
}

// ProgressUpdate tells the teacher view which question a student answered.
type ProgressUpdate struct {
	StudentID     string `json:"studentId"`
	Username      string `json:"username"`
	QuestionIndex int    `json:"questionIndex"`
	Answered      bool   `json:"answered"`
}

// TimeSync is the authoritative remaining-time heartbeat. Client-local
// countdowns are cosmetic between heartbeats.
type TimeSync struct {
	RemainingSeconds int `json:"remainingSeconds"`
}

// SessionEnded carries the frozen final standings.
type SessionEnded struct {
	FinalLeaderboard []LeaderboardEntry `json:"finalLeaderboard"`
}
