package services

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/quizforge/assessment-engine/internal/events"
	"github.com/quizforge/assessment-engine/internal/models"
	"github.com/quizforge/assessment-engine/internal/repositories"
	"github.com/quizforge/assessment-engine/internal/validator"
)

// fakeRepository is an in-memory repositories.Repository for service tests.
type fakeRepository struct {
	assessments *fakeAssessmentRepo
	questions   *fakeQuestionRepo
	attempts    *fakeAttemptRepo
	users       *fakeUserRepo
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		assessments: &fakeAssessmentRepo{store: map[uint]*models.Assessment{}},
		questions:   &fakeQuestionRepo{},
		attempts:    &fakeAttemptRepo{store: map[uint]*models.AssessmentAttempt{}},
		users:       &fakeUserRepo{store: map[string]*models.User{}},
	}
}

func (f *fakeRepository) Assessment() repositories.AssessmentRepository { return f.assessments }
func (f *fakeRepository) Question() repositories.QuestionRepository    { return f.questions }
func (f *fakeRepository) Attempt() repositories.AttemptRepository      { return f.attempts }
func (f *fakeRepository) User() repositories.UserRepository            { return f.users }

func (f *fakeRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(f)
}

func (f *fakeRepository) Ping(ctx context.Context) error { return nil }
func (f *fakeRepository) Close() error                   { return nil }

type fakeAssessmentRepo struct {
	store map[uint]*models.Assessment
}

func (f *fakeAssessmentRepo) GetByID(ctx context.Context, id uint) (*models.Assessment, error) {
	a, ok := f.store[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return a, nil
}

func (f *fakeAssessmentRepo) GetPublishedByID(ctx context.Context, id uint) (*models.Assessment, error) {
	a, ok := f.store[id]
	if !ok || !a.Published {
		return nil, repositories.ErrNotFound
	}
	return a, nil
}

type fakeQuestionRepo struct {
	pool []*models.Question
}

func (f *fakeQuestionRepo) GetByID(ctx context.Context, id uint) (*models.Question, error) {
	for _, q := range f.pool {
		if q.ID == id {
			return q, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (f *fakeQuestionRepo) GetByBankIDs(ctx context.Context, bankIDs []uint, filters repositories.QuestionFilters) ([]*models.Question, error) {
	banks := make(map[uint]bool, len(bankIDs))
	for _, id := range bankIDs {
		banks[id] = true
	}

	var out []*models.Question
	for _, q := range f.pool {
		if len(banks) > 0 && !banks[q.BankID] {
			continue
		}
		if filters.Difficulty != nil && q.Difficulty != *filters.Difficulty {
			continue
		}
		if !hasAllTags(q.TagList(), filters.Tags) {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

func hasAllTags(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	for _, t := range want {
		if !set[t] {
			return false
		}
	}
	return true
}

type fakeAttemptRepo struct {
	store  map[uint]*models.AssessmentAttempt
	nextID uint
}

func (f *fakeAttemptRepo) Create(ctx context.Context, attempt *models.AssessmentAttempt) error {
	for _, existing := range f.store {
		if existing.AssessmentID == attempt.AssessmentID &&
			existing.LearnerID == attempt.LearnerID &&
			existing.Status == models.AttemptInProgress {
			return repositories.ErrDuplicateActiveAttempt
		}
	}

	f.nextID++
	attempt.ID = f.nextID
	for i := range attempt.Questions {
		attempt.Questions[i].AttemptID = attempt.ID
	}
	f.store[attempt.ID] = attempt
	return nil
}

func (f *fakeAttemptRepo) GetByID(ctx context.Context, id uint) (*models.AssessmentAttempt, error) {
	return f.GetByIDWithRecords(ctx, id)
}

func (f *fakeAttemptRepo) GetByIDWithRecords(ctx context.Context, id uint) (*models.AssessmentAttempt, error) {
	attempt, ok := f.store[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return attempt, nil
}

func (f *fakeAttemptRepo) GetActiveAttempt(ctx context.Context, assessmentID uint, learnerID string) (*models.AssessmentAttempt, error) {
	for _, a := range f.store {
		if a.AssessmentID == assessmentID && a.LearnerID == learnerID && a.Status == models.AttemptInProgress {
			return a, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (f *fakeAttemptRepo) GetByAssessmentAndLearner(ctx context.Context, assessmentID uint, learnerID string, filters repositories.AttemptFilters) ([]*models.AssessmentAttempt, int64, error) {
	var out []*models.AssessmentAttempt
	for _, a := range f.store {
		if a.AssessmentID == assessmentID && a.LearnerID == learnerID {
			out = append(out, a)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeAttemptRepo) CountByLearner(ctx context.Context, assessmentID uint, learnerID string) (int64, error) {
	var count int64
	for _, a := range f.store {
		if a.AssessmentID == assessmentID && a.LearnerID == learnerID {
			count++
		}
	}
	return count, nil
}

func (f *fakeAttemptRepo) Update(ctx context.Context, attempt *models.AssessmentAttempt) error {
	if _, ok := f.store[attempt.ID]; !ok {
		return repositories.ErrNotFound
	}
	f.store[attempt.ID] = attempt
	return nil
}

func (f *fakeAttemptRepo) UpdateRecord(ctx context.Context, record *models.QuestionRecord) error {
	attempt, ok := f.store[record.AttemptID]
	if !ok {
		return repositories.ErrNotFound
	}
	for i := range attempt.Questions {
		if attempt.Questions[i].Position == record.Position {
			attempt.Questions[i] = *record
			return nil
		}
	}
	return repositories.ErrNotFound
}

func (f *fakeAttemptRepo) UpdateRecords(ctx context.Context, records []models.QuestionRecord) error {
	for i := range records {
		if err := f.UpdateRecord(ctx, &records[i]); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeAttemptRepo) MarkAbandoned(ctx context.Context, inactiveBefore time.Time) ([]*models.AssessmentAttempt, error) {
	var abandoned []*models.AssessmentAttempt
	for _, a := range f.store {
		if a.Status == models.AttemptInProgress && a.LastActivityAt.Before(inactiveBefore) {
			a.Status = models.AttemptAbandoned
			abandoned = append(abandoned, a)
		}
	}
	return abandoned, nil
}

type fakeUserRepo struct {
	store map[string]*models.User
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := f.store[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserRepo) ExistsByID(ctx context.Context, id string) (bool, error) {
	_, ok := f.store[id]
	return ok, nil
}

// ===== TEST FIXTURES =====

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	repo      *fakeRepository
	publisher *events.MockEventPublisher
	attempts  AttemptService
	grading   GradingService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := newFakeRepository()
	publisher := events.NewMockEventPublisher(testLogger())
	v := validator.New()

	return &testEnv{
		repo:      repo,
		publisher: publisher,
		attempts:  NewAttemptService(repo, testLogger(), v, publisher),
		grading:   NewGradingService(repo, testLogger(), v, publisher),
	}
}

func mustJSON(t *testing.T, v interface{}) datatypes.JSON {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	return datatypes.JSON(data)
}

func mustRawJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	return data
}

// seedAssessment registers a published two-bank assessment with defaults
// suited to the lifecycle tests. Callers tweak fields afterwards.
func seedAssessment(env *testEnv, id uint, questionCount int) *models.Assessment {
	bankIDs, _ := json.Marshal([]uint{1})
	assessment := &models.Assessment{
		ID:            id,
		Title:         "Networking Basics",
		Published:     true,
		BankIDs:       datatypes.JSON(bankIDs),
		QuestionCount: questionCount,
		SelectionMode: models.SelectionSequential,
		MaxAttempts:   3,
		PassingScore:  60,
		ShowScore:     true,
		ShowTimer:     true,
		RevealAnswers: models.RevealNever,
		CreatedBy:     "author-1",
	}
	env.repo.assessments.store[id] = assessment
	return assessment
}

func seedQuestion(env *testEnv, id uint, qType models.QuestionType, points float64, content datatypes.JSON) *models.Question {
	q := &models.Question{
		ID:      id,
		BankID:  1,
		Type:    qType,
		Text:    "question text",
		Points:  points,
		Order:   int(id),
		Content: content,
	}
	env.repo.questions.pool = append(env.repo.questions.pool, q)
	return q
}

func seedObjectivePool(t *testing.T, env *testEnv) {
	seedQuestion(env, 1, models.TrueFalse, 10, mustJSON(t, models.TrueFalseContent{CorrectAnswer: true}))
	seedQuestion(env, 2, models.MultipleChoice, 10, mustJSON(t, models.MultipleChoiceContent{
		Options: []models.MCOption{
			{ID: "a", Text: "TCP"},
			{ID: "b", Text: "UDP"},
		},
		CorrectAnswers: []string{"a"},
	}))
}

func seedUser(env *testEnv, id string, role models.UserRole) {
	env.repo.users.store[id] = &models.User{ID: id, Role: role}
}
