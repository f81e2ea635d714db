package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"

	"gorm.io/datatypes"

	"github.com/quizforge/assessment-engine/internal/models"
	"github.com/quizforge/assessment-engine/internal/repositories"
)

// SnapshotBuilder selects questions from the configured banks and freezes
// them into immutable per-attempt records.
type SnapshotBuilder struct {
	// shuffle permutes indices for random selection. Tests inject a
	// deterministic implementation; production uses math/rand.
	shuffle func(n int, swap func(i, j int))
}

func NewSnapshotBuilder() *SnapshotBuilder {
	return &SnapshotBuilder{shuffle: rand.Shuffle}
}

// Build loads the candidate pool, applies the selection policy, and returns
// question records ready to attach to a new attempt. The pool must be at
// least as large as the configured question count; the builder never
// silently returns a shorter attempt.
func (b *SnapshotBuilder) Build(ctx context.Context, repo repositories.Repository, assessment *models.Assessment) ([]models.QuestionRecord, error) {
	bankIDs, err := decodeBankIDs(assessment.BankIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to decode bank ids: %w", err)
	}

	filters := repositories.QuestionFilters{
		Difficulty: assessment.Difficulty,
	}
	if len(assessment.TagFilter) > 0 {
		var tags []string
		if err := json.Unmarshal(assessment.TagFilter, &tags); err != nil {
			return nil, fmt.Errorf("failed to decode tag filter: %w", err)
		}
		filters.Tags = tags
	}

	pool, err := repo.Question().GetByBankIDs(ctx, bankIDs, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to load question pool: %w", err)
	}

	if len(pool) < assessment.QuestionCount {
		return nil, ErrInsufficientQuestions
	}

	selected := b.selectQuestions(pool, assessment)

	records := make([]models.QuestionRecord, 0, len(selected))
	for i, question := range selected {
		snapshot := models.QuestionSnapshot{
			QuestionID:  question.ID,
			Type:        question.Type,
			Text:        question.Text,
			Points:      question.Points,
			Content:     json.RawMessage(question.Content),
			Explanation: question.Explanation,
		}

		data, err := json.Marshal(snapshot)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal question snapshot: %w", err)
		}

		records = append(records, models.QuestionRecord{
			QuestionID:     question.ID,
			Position:       i,
			Snapshot:       datatypes.JSON(data),
			PointsPossible: question.Points,
		})
	}

	return records, nil
}

// selectQuestions applies the selection mode. Sequential takes the first N
// in bank order; random draws N without replacement and keeps the drawn
// order as the presentation order.
func (b *SnapshotBuilder) selectQuestions(pool []*models.Question, assessment *models.Assessment) []*models.Question {
	count := assessment.QuestionCount

	if assessment.SelectionMode != models.SelectionRandom {
		return pool[:count]
	}

	shuffled := make([]*models.Question, len(pool))
	copy(shuffled, pool)
	b.shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	return shuffled[:count]
}

func decodeBankIDs(raw datatypes.JSON) ([]uint, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var ids []uint
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}
