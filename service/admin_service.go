package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"polls-backend/models"
	"polls-backend/repository"
)

const (
	// MaxTextLength 问题和选项文本的最大长度
	MaxTextLength = 200

	// DefaultAdminPageSize 管理端列表默认每页数量
	DefaultAdminPageSize = 100
)

// 发布时间过滤器
const (
	DateFilterAny       = "any"
	DateFilterToday     = "today"
	DateFilterPast7Days = "past_7_days"
	DateFilterThisMonth = "this_month"
	DateFilterThisYear  = "this_year"
)

// CreateQuestionInput 创建问题的输入，空白选项会被忽略
type CreateQuestionInput struct {
	QuestionText string
	PubDate      *time.Time
	Choices      []string
}

// UpdateQuestionInput 更新问题的输入，nil字段保持不变
type UpdateQuestionInput struct {
	QuestionText *string
	PubDate      *time.Time
}

// ListQuestionsInput 管理端列表查询
type ListQuestionsInput struct {
	Search   string
	PubDate  string
	Page     int
	PageSize int
}

// QuestionRow 管理端列表中的一行
type QuestionRow struct {
	models.Question
	WasPublishedRecently bool `json:"was_published_recently"`
}

// QuestionPage 管理端分页结果
type QuestionPage struct {
	Questions []QuestionRow `json:"questions"`
	Total     int64         `json:"total"`
	Page      int           `json:"page"`
	PageSize  int           `json:"page_size"`
}

// AdminService 管理端服务
type AdminService struct {
	repo repository.QuestionRepository
	now  func() time.Time
}

// NewAdminService 创建管理端服务
func NewAdminService(repo repository.QuestionRepository) *AdminService {
	return &AdminService{repo: repo, now: time.Now}
}

// WithClock 替换时间来源
func (s *AdminService) WithClock(now func() time.Time) *AdminService {
	s.now = now
	return s
}

// CreateQuestion 创建问题及其选项
func (s *AdminService) CreateQuestion(ctx context.Context, input CreateQuestionInput) (*QuestionRow, error) {
	text, err := validateText("question_text", input.QuestionText)
	if err != nil {
		return nil, err
	}

	q := &models.Question{QuestionText: text, PubDate: s.now()}
	if input.PubDate != nil {
		q.PubDate = *input.PubDate
	}

	for i, raw := range input.Choices {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		choiceText, err := validateText(fmt.Sprintf("choices[%d]", i), raw)
		if err != nil {
			return nil, err
		}
		q.Choices = append(q.Choices, models.Choice{ChoiceText: choiceText})
	}

	if err := s.repo.CreateQuestion(ctx, q); err != nil {
		return nil, err
	}
	return s.row(q), nil
}

// GetQuestion 获取问题，不检查发布时间
func (s *AdminService) GetQuestion(ctx context.Context, id uint) (*QuestionRow, error) {
	q, err := s.repo.FindQuestion(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return s.row(q), nil
}

// UpdateQuestion 更新问题文本或发布时间
func (s *AdminService) UpdateQuestion(ctx context.Context, id uint, input UpdateQuestionInput) (*QuestionRow, error) {
	q, err := s.repo.FindQuestion(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}

	if input.QuestionText != nil {
		text, err := validateText("question_text", *input.QuestionText)
		if err != nil {
			return nil, err
		}
		q.QuestionText = text
	}
	if input.PubDate != nil {
		q.PubDate = *input.PubDate
	}

	if err := s.repo.SaveQuestion(ctx, q); err != nil {
		return nil, err
	}
	return s.row(q), nil
}

// DeleteQuestion 删除问题及其所有选项
func (s *AdminService) DeleteQuestion(ctx context.Context, id uint) error {
	return mapRepoError(s.repo.DeleteQuestion(ctx, id))
}

// AddChoice 为问题添加选项
func (s *AdminService) AddChoice(ctx context.Context, questionID uint, text string) (*models.Choice, error) {
	choiceText, err := validateText("choice_text", text)
	if err != nil {
		return nil, err
	}
	choice := &models.Choice{QuestionID: questionID, ChoiceText: choiceText}
	if err := s.repo.AddChoice(ctx, choice); err != nil {
		return nil, mapRepoError(err)
	}
	return choice, nil
}

// ListQuestions 按文本和发布时间过滤问题
func (s *AdminService) ListQuestions(ctx context.Context, input ListQuestionsInput) (*QuestionPage, error) {
	from, to, err := DateRange(input.PubDate, s.now())
	if err != nil {
		return nil, err
	}

	page := input.Page
	if page < 1 {
		page = 1
	}
	pageSize := input.PageSize
	if pageSize < 1 || pageSize > DefaultAdminPageSize {
		pageSize = DefaultAdminPageSize
	}

	questions, total, err := s.repo.SearchQuestions(ctx, repository.QuestionFilter{
		Search: strings.TrimSpace(input.Search),
		From:   from,
		To:     to,
		Offset: (page - 1) * pageSize,
		Limit:  pageSize,
	})
	if err != nil {
		return nil, err
	}

	result := &QuestionPage{
		Questions: make([]QuestionRow, len(questions)),
		Total:     total,
		Page:      page,
		PageSize:  pageSize,
	}
	for i := range questions {
		result.Questions[i] = *s.row(&questions[i])
	}
	return result, nil
}

// DateRange 把发布时间过滤器转换为[from, to)区间，按UTC计算
func DateRange(filter string, now time.Time) (*time.Time, *time.Time, error) {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var from, to time.Time
	switch filter {
	case "", DateFilterAny:
		return nil, nil, nil
	case DateFilterToday:
		from, to = today, today.AddDate(0, 0, 1)
	case DateFilterPast7Days:
		from, to = today.AddDate(0, 0, -7), today.AddDate(0, 0, 1)
	case DateFilterThisMonth:
		from = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		to = from.AddDate(0, 1, 0)
	case DateFilterThisYear:
		from = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		to = from.AddDate(1, 0, 0)
	default:
		return nil, nil, fmt.Errorf("%w: unknown pub_date filter %q", ErrInvalidInput, filter)
	}
	return &from, &to, nil
}

func (s *AdminService) row(q *models.Question) *QuestionRow {
	return &QuestionRow{Question: *q, WasPublishedRecently: q.WasPublishedRecently(s.now())}
}

func validateText(field, raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidInput, field)
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return "", fmt.Errorf("%w: %s must be at most %d characters", ErrInvalidInput, field, MaxTextLength)
	}
	return text, nil
}
