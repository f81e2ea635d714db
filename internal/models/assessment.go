package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SelectionMode string

const (
	SelectionSequential SelectionMode = "sequential"
	SelectionRandom     SelectionMode = "random"
)

type RevealAnswersMode string

const (
	RevealNever        RevealAnswersMode = "never"
	RevealAfterSubmit  RevealAnswersMode = "after_submit"
	RevealAfterGrading RevealAnswersMode = "after_grading"
)

// Assessment is the published definition an attempt is taken against.
// Authoring happens in an external system; this service only reads it.
type Assessment struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	Title       string  `json:"title" gorm:"not null;size:200;index" validate:"required,min=1,max=200"`
	Description *string `json:"description" gorm:"type:text" validate:"omitempty,max=1000"`
	Published   bool    `json:"published" gorm:"not null;default:false;index"`

	// Selection policy
	BankIDs       datatypes.JSON   `json:"bank_ids" gorm:"type:jsonb"` // []uint
	QuestionCount int              `json:"question_count" gorm:"not null" validate:"required,min=1"`
	SelectionMode SelectionMode    `json:"selection_mode" gorm:"default:sequential" validate:"omitempty,oneof=sequential random"`
	TagFilter     datatypes.JSON   `json:"tag_filter" gorm:"type:jsonb"` // []string, empty = no filter
	Difficulty    *DifficultyLevel `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`

	// Timing policy
	TimeLimitSeconds   *int `json:"time_limit_seconds" validate:"omitempty,min=60"` // nil = untimed
	ShowTimer          bool `json:"show_timer" gorm:"default:true"`
	AutoSubmitOnExpiry bool `json:"auto_submit_on_expiry" gorm:"default:false"`

	// Attempts policy. MaxAttempts == 0 means unlimited.
	MaxAttempts int `json:"max_attempts" gorm:"default:1" validate:"min=0,max=100"`

	// Scoring policy
	PassingScore  float64           `json:"passing_score" gorm:"not null" validate:"min=0,max=100"` // percentage
	PartialCredit bool              `json:"partial_credit" gorm:"default:false"`
	ShowScore     bool              `json:"show_score" gorm:"default:true"`
	RevealAnswers RevealAnswersMode `json:"reveal_answers" gorm:"default:never" validate:"omitempty,oneof=never after_submit after_grading"`

	// Feedback policy
	ShowFeedback bool `json:"show_feedback" gorm:"default:true"`

	// Metadata
	CreatedBy string         `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Attempts []AssessmentAttempt `json:"-" gorm:"foreignKey:AssessmentID"`
}

func (Assessment) TableName() string {
	return "assessments"
}
