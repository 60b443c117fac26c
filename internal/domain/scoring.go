package domain

// DefaultQuestionPoints is awarded when a question carries no explicit value.
const DefaultQuestionPoints = 10

// Score decides correctness and points for a submitted option. Comparison is
// exact: an empty or mismatching answer is incorrect and worth nothing.
func Score(q Question, selected string) (bool, int) {
	if selected == "" || selected != q.CorrectAnswer {
		return false, 0
	}
	points := q.Points
	if points == 0 {
		points = DefaultQuestionPoints
	}
	return true, points
}
