package domain

import "time"

// QuizStatus is the publication state of a quiz in the catalog.
type QuizStatus string

const (
	QuizDraft     QuizStatus = "draft"
	QuizPublished QuizStatus = "published"
	QuizArchived  QuizStatus = "archived"
)

// QuizType is informational for the attempt core.
type QuizType string

const (
	QuizClassic QuizType = "classic"
	QuizExam    QuizType = "exam"
	QuizSurvey  QuizType = "survey"
)

// AccessMode is the admission policy of a quiz.
type AccessMode string

const (
	AccessPublic   AccessMode = "public"
	AccessPrivate  AccessMode = "private"
	AccessPassword AccessMode = "password"
)

// QuestionType selects the grading strategy for a question.
type QuestionType string

const (
	QuestionMCQ       QuestionType = "mcq"
	QuestionTrueFalse QuestionType = "true_false"
	QuestionOpen      QuestionType = "open"
)

// AttemptStatus tracks an attempt from start to close.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
)

// QuizSettings holds the admission and scoring rules of a quiz.
// A quiz without settings is fully open with no time bound.
type QuizSettings struct {
	// TimeLimit is in minutes.
	TimeLimit *int `json:"timeLimit,omitempty"`
	// PassingScore is a percentage of the quiz's maximum score.
	PassingScore     *float64   `json:"passingScore,omitempty"`
	ShuffleQuestions bool       `json:"shuffleQuestions"`
	ShowResults      bool       `json:"showResults"`
	AccessMode       AccessMode `json:"accessMode"`
	AccessCode       string     `json:"accessCode,omitempty"`
	StartAt          *time.Time `json:"startAt,omitempty"`
	EndAt            *time.Time `json:"endAt,omitempty"`
}

// QuestionOption is one selectable answer of a choice question.
type QuestionOption struct {
	ID         string `json:"id"`
	QuestionID string `json:"questionId"`
	Content    string `json:"content"`
	IsCorrect  bool   `json:"isCorrect"`
	Position   int    `json:"position"`
}

// Question is a read-only catalog snapshot of a quiz question.
type Question struct {
	ID       string           `json:"id"`
	QuizID   string           `json:"quizId"`
	Type     QuestionType     `json:"type"`
	Content  string           `json:"content"`
	Points   int              `json:"points"`
	Position int              `json:"position"`
	Options  []QuestionOption `json:"options"`
}

// Option returns the option with the given ID, if it belongs to the question.
func (q Question) Option(optionID string) (QuestionOption, bool) {
	for _, opt := range q.Options {
		if opt.ID == optionID {
			return opt, true
		}
	}
	return QuestionOption{}, false
}

// Quiz is the catalog snapshot the attempt core reads from.
type Quiz struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Status    QuizStatus    `json:"status"`
	Type      QuizType      `json:"type"`
	AuthorID  string        `json:"authorId"`
	Settings  *QuizSettings `json:"settings,omitempty"`
	Questions []Question    `json:"questions"`
	DeletedAt *time.Time    `json:"deletedAt,omitempty"`
}

// Question looks up a question by ID within the quiz.
func (q Quiz) Question(questionID string) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == questionID {
			return question, true
		}
	}
	return Question{}, false
}

// MaxScore is the sum of all question points, open questions included.
func (q Quiz) MaxScore() int {
	total := 0
	for _, question := range q.Questions {
		total += question.Points
	}
	return total
}

// Attempt is one learner's pass at a quiz.
type Attempt struct {
	ID            string        `json:"id"`
	QuizID        string        `json:"quizId"`
	UserID        string        `json:"userId"`
	Status        AttemptStatus `json:"status"`
	StartTime     time.Time     `json:"startTime"`
	EndTime       *time.Time    `json:"endTime,omitempty"`
	Deadline      *time.Time    `json:"deadline,omitempty"`
	Score         *int          `json:"score,omitempty"` // nil until graded
	MaxScore      int           `json:"maxScore"`
	QuestionOrder []string      `json:"questionOrder"`
}

// Percent returns the score normalized against MaxScore, or 0 when ungraded
// or when the quiz carries no points.
func (a Attempt) Percent() float64 {
	if a.Score == nil || a.MaxScore <= 0 {
		return 0
	}
	return float64(*a.Score) * 100 / float64(a.MaxScore)
}

// Answer is the single answer row for an (attempt, question) pair.
type Answer struct {
	ID            string    `json:"id"`
	AttemptID     string    `json:"attemptId"`
	QuestionID    string    `json:"questionId"`
	OptionID      *string   `json:"optionId,omitempty"`
	AnswerContent *string   `json:"answerContent,omitempty"`
	IsCorrect     *bool     `json:"isCorrect,omitempty"` // nil while pending
	PointsAwarded int       `json:"pointsAwarded"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Certificate is an immutable proof of a passing attempt.
type Certificate struct {
	ID        string    `json:"id"`
	AttemptID string    `json:"attemptId"`
	UserID    string    `json:"userId"`
	QuizID    string    `json:"quizId"`
	Code      string    `json:"code"`
	Score     int       `json:"score"`
	IssuedAt  time.Time `json:"issuedAt"`
}

// LeaderboardEntry is one ranked completed attempt.
type LeaderboardEntry struct {
	AttemptID   string    `json:"attemptId"`
	UserID      string    `json:"userId"`
	Score       int       `json:"score"`
	CompletedAt time.Time `json:"completedAt"`
	Rank        int       `json:"rank"`
}

// Leaderboard captures the ordered ranking of a quiz.
type Leaderboard struct {
	QuizID    string             `json:"quizId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Role is the coarse identity role supplied by the authentication layer.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Actor is an already-authenticated caller.
type Actor struct {
	UserID string
	Role   Role
}

// EventType names attempt lifecycle notifications.
type EventType string

const (
	EventQuizStarted   EventType = "quiz.started"
	EventQuizCompleted EventType = "quiz.completed"
	EventQuizGraded    EventType = "quiz.graded"
)

// Event is a fire-and-forget notification about an attempt.
type Event struct {
	Type       EventType `json:"event"`
	QuizID     string    `json:"quizId"`
	AttemptID  string    `json:"attemptId"`
	UserID     string    `json:"userId"`
	Score      *int      `json:"score,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}
