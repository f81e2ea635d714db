package models

import (
	"time"

	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted" // awaiting manual grading
	AttemptGraded     AttemptStatus = "graded"
	AttemptAbandoned  AttemptStatus = "abandoned"
)

// IsTerminal reports whether the attempt can no longer change state
// through learner actions.
func (s AttemptStatus) IsTerminal() bool {
	return s == AttemptGraded || s == AttemptAbandoned
}

// AssessmentAttempt is one learner's run through an assessment. A partial
// unique index on (assessment_id, learner_id) WHERE status = 'in_progress'
// enforces at most one active attempt; see pkg.InitDatabase.
type AssessmentAttempt struct {
	ID            uint          `json:"id" gorm:"primaryKey"`
	AssessmentID  uint          `json:"assessment_id" gorm:"not null;index;uniqueIndex:idx_attempt_number"`
	LearnerID     string        `json:"learner_id" gorm:"not null;index;size:255;uniqueIndex:idx_attempt_number"`
	EnrollmentID  *string       `json:"enrollment_id" gorm:"size:255"`
	AttemptNumber int           `json:"attempt_number" gorm:"not null;uniqueIndex:idx_attempt_number"`
	Status        AttemptStatus `json:"status" gorm:"default:in_progress;index"`

	// Timing. TimeLimitSeconds is frozen from the policy at start so a
	// later policy change cannot shorten a running attempt.
	StartedAt        time.Time  `json:"started_at" gorm:"not null"`
	LastActivityAt   time.Time  `json:"last_activity_at" gorm:"not null;index"`
	SubmittedAt      *time.Time `json:"submitted_at"`
	TimeSpentSeconds int        `json:"time_spent_seconds"`
	TimeLimitSeconds *int       `json:"time_limit_seconds"`

	// Scoring
	RawScore        float64 `json:"raw_score"`
	PossibleScore   float64 `json:"possible_score"`
	PercentageScore float64 `json:"percentage_score"`
	Passed          *bool   `json:"passed"` // nil until grading is complete
	GradingComplete bool    `json:"grading_complete"`

	// RequiresManualGrading is set at submission when subjective questions
	// are still waiting for a grader, and cleared once the manual pass
	// finishes.
	RequiresManualGrading bool `json:"requires_manual_grading"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Assessment Assessment       `json:"-" gorm:"foreignKey:AssessmentID"`
	Questions  []QuestionRecord `json:"questions" gorm:"foreignKey:AttemptID"`
}

func (AssessmentAttempt) TableName() string {
	return "assessment_attempts"
}

// QuestionRecord pairs a frozen question snapshot with the learner's
// response and its grade.
type QuestionRecord struct {
	ID        uint `json:"id" gorm:"primaryKey"`
	AttemptID uint `json:"attempt_id" gorm:"not null;index;uniqueIndex:idx_attempt_position"`
	// QuestionID references the bank entry the snapshot was taken from.
	QuestionID uint `json:"question_id" gorm:"not null;index"`
	Position   int  `json:"position" gorm:"not null;uniqueIndex:idx_attempt_position"`

	// Frozen QuestionSnapshot, immutable after the attempt starts.
	Snapshot datatypes.JSON `json:"snapshot" gorm:"type:jsonb;not null"`

	// Learner response (shape depends on question type), nil until answered.
	Response datatypes.JSON `json:"response" gorm:"type:jsonb"`

	// Grading
	PointsPossible float64    `json:"points_possible" gorm:"not null"`
	PointsEarned   *float64   `json:"points_earned"` // nil = not yet graded
	IsCorrect      *bool      `json:"is_correct"`
	GradedBy       *string    `json:"graded_by" gorm:"size:255"` // nil for auto-graded
	GradedAt       *time.Time `json:"graded_at"`
	Feedback       *string    `json:"feedback" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Attempt AssessmentAttempt `json:"-" gorm:"foreignKey:AttemptID"`
}

func (QuestionRecord) TableName() string {
	return "question_records"
}

// IsGraded reports whether the record carries a grade, auto or manual.
func (r *QuestionRecord) IsGraded() bool {
	return r.PointsEarned != nil
}
