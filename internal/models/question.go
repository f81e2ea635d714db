package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	ShortAnswer    QuestionType = "short_answer"
	FillInBlank    QuestionType = "fill_blank"
	Essay          QuestionType = "essay"
)

type DifficultyLevel string

const (
	DifficultyEasy   DifficultyLevel = "easy"
	DifficultyMedium DifficultyLevel = "medium"
	DifficultyHard   DifficultyLevel = "hard"
)

// IsAutoGradeable reports whether answers of this type are scored by the
// engine. Essay responses always wait for a manual grade.
func (t QuestionType) IsAutoGradeable() bool {
	return t != Essay
}

// Question is a bank entry owned by the external authoring system.
type Question struct {
	ID     uint         `json:"id" gorm:"primaryKey"`
	BankID uint         `json:"bank_id" gorm:"not null;index"`
	Type   QuestionType `json:"type" gorm:"not null;index"`
	Text   string       `json:"text" gorm:"type:text;not null" validate:"required"`
	Points float64      `json:"points" gorm:"default:10" validate:"min=0.5,max=100"`
	Order  int          `json:"order" gorm:"default:0"`

	// Type-specific payload, including the correct answer data.
	Content datatypes.JSON `json:"content" gorm:"type:jsonb"`

	// Categorization
	Difficulty DifficultyLevel `json:"difficulty" gorm:"default:medium;index"`
	Tags       datatypes.JSON  `json:"tags" gorm:"type:jsonb"` // []string

	// Metadata
	Explanation *string   `json:"explanation" gorm:"type:text"`
	CreatedBy   string    `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Question) TableName() string {
	return "questions"
}

// TagList decodes the Tags JSON column, nil when unset.
func (q *Question) TagList() []string {
	if len(q.Tags) == 0 {
		return nil
	}
	var tags []string
	if err := json.Unmarshal(q.Tags, &tags); err != nil {
		return nil
	}
	return tags
}

// QuestionSnapshot is the frozen copy of a question embedded in an attempt.
// Later edits to the bank entry never reach an existing attempt.
type QuestionSnapshot struct {
	QuestionID  uint            `json:"question_id"`
	Type        QuestionType    `json:"type"`
	Text        string          `json:"text"`
	Points      float64         `json:"points"`
	Content     json.RawMessage `json:"content"`
	Explanation *string         `json:"explanation,omitempty"`
}

// ===== QUESTION CONTENT SCHEMAS =====

type MultipleChoiceContent struct {
	Options         []MCOption `json:"options" validate:"min=2,max=10"`
	CorrectAnswers  []string   `json:"correct_answers" validate:"min=1"` // option IDs
	MultipleCorrect bool       `json:"multiple_correct"`
}

type MCOption struct {
	ID    string `json:"id"`
	Text  string `json:"text" validate:"required"`
	Order int    `json:"order"`
}

type TrueFalseContent struct {
	CorrectAnswer bool `json:"correct_answer"`
}

type ShortAnswerContent struct {
	AcceptedAnswers []string `json:"accepted_answers" validate:"min=1"`
	CaseSensitive   bool     `json:"case_sensitive"`
	MaxLength       int      `json:"max_length" validate:"omitempty,min=1,max=500"`
}

type FillBlankContent struct {
	Template      string              `json:"template"` // "The capital of {blank1} is {blank2}"
	Blanks        map[string]BlankDef `json:"blanks" validate:"min=1"`
	CaseSensitive bool                `json:"case_sensitive"`
}

type BlankDef struct {
	AcceptedAnswers []string `json:"accepted_answers" validate:"min=1"`
	Points          int      `json:"points" validate:"min=1"`
}

type EssayContent struct {
	MinWords       *int     `json:"min_words"`
	MaxWords       *int     `json:"max_words"`
	RubricCriteria []string `json:"rubric_criteria"`
}
