package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"polls-backend/logger"
	"polls-backend/models"
	"polls-backend/repository"
)

var (
	// 业务错误定义
	ErrQuestionNotFound = errors.New("question not found")
	ErrInvalidInput     = errors.New("invalid input")
)

const (
	// IndexPageSize 首页最多展示的问题数量
	IndexPageSize = 5

	// NoChoiceMessage 未选择有效选项时返回给用户的提示
	NoChoiceMessage = "You did not select a choice."
)

// ResultsNotifier 投票成功后通知实时结果订阅者
type ResultsNotifier interface {
	NotifyResults(questionID uint)
}

// VoteRecorder 记录投票结果指标
type VoteRecorder interface {
	ObserveVote(accepted bool)
}

// VoteResult 投票结果。Accepted为false时Question和Reason用于重新展示详情页
type VoteResult struct {
	Accepted   bool
	QuestionID uint
	Question   *models.Question
	Reason     string
}

// ChoiceResult 选项统计结果
type ChoiceResult struct {
	ID         uint    `json:"id"`
	ChoiceText string  `json:"choice_text"`
	Votes      int64   `json:"votes"`
	Percentage float64 `json:"percentage"`
}

// QuestionResults 问题的投票结果
type QuestionResults struct {
	ID           uint           `json:"id"`
	QuestionText string         `json:"question_text"`
	PubDate      time.Time      `json:"pub_date"`
	TotalVotes   int64          `json:"total_votes"`
	Choices      []ChoiceResult `json:"choices"`
}

// PollService 公开投票服务
type PollService struct {
	repo     repository.QuestionRepository
	notifier ResultsNotifier
	recorder VoteRecorder
	log      *logger.Logger
	now      func() time.Time
}

// NewPollService 创建投票服务，notifier和recorder可以为nil
func NewPollService(repo repository.QuestionRepository, notifier ResultsNotifier, recorder VoteRecorder, log *logger.Logger) *PollService {
	if log == nil {
		log = logger.Discard()
	}
	return &PollService{
		repo:     repo,
		notifier: notifier,
		recorder: recorder,
		log:      log,
		now:      time.Now,
	}
}

// WithClock 替换时间来源
func (s *PollService) WithClock(now func() time.Time) *PollService {
	s.now = now
	return s
}

// ListVisibleQuestions 返回已发布且有选项的问题，按发布时间升序，最多IndexPageSize个
func (s *PollService) ListVisibleQuestions(ctx context.Context) ([]models.Question, error) {
	return s.repo.ListPublished(ctx, s.now(), IndexPageSize)
}

// GetPublishedQuestion 获取已发布的问题详情，未发布的问题视为不存在
func (s *PollService) GetPublishedQuestion(ctx context.Context, id uint) (*models.Question, error) {
	q, err := s.repo.FindPublishedQuestion(ctx, id, s.now())
	if err != nil {
		return nil, mapRepoError(err)
	}
	return q, nil
}

// GetQuestionResults 获取问题的投票结果，不检查发布时间
func (s *PollService) GetQuestionResults(ctx context.Context, id uint) (*QuestionResults, error) {
	q, err := s.repo.FindQuestion(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return buildResults(q), nil
}

// CastVote 为问题的某个选项投票。choice为表单提交的原始值
func (s *PollService) CastVote(ctx context.Context, questionID uint, choice string) (*VoteResult, error) {
	question, err := s.repo.FindQuestion(ctx, questionID)
	if err != nil {
		return nil, mapRepoError(err)
	}

	if choiceID, ok := ParseID(choice); ok {
		accepted, err := s.repo.IncrementVotes(ctx, questionID, choiceID)
		if err != nil {
			return nil, err
		}
		if accepted {
			s.observeVote(true)
			if s.notifier != nil {
				s.notifier.NotifyResults(questionID)
			}
			return &VoteResult{Accepted: true, QuestionID: questionID}, nil
		}
	}

	s.observeVote(false)
	s.log.WithField("question_id", questionID).WithField("choice", choice).Info("vote rejected")
	return &VoteResult{
		QuestionID: questionID,
		Question:   question,
		Reason:     NoChoiceMessage,
	}, nil
}

func (s *PollService) observeVote(accepted bool) {
	if s.recorder != nil {
		s.recorder.ObserveVote(accepted)
	}
}

// ParseID 解析正整数ID
func ParseID(raw string) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func buildResults(q *models.Question) *QuestionResults {
	total := q.TotalVotes()
	results := &QuestionResults{
		ID:           q.ID,
		QuestionText: q.QuestionText,
		PubDate:      q.PubDate,
		TotalVotes:   total,
		Choices:      make([]ChoiceResult, len(q.Choices)),
	}
	for i, c := range q.Choices {
		percentage := 0.0
		if total > 0 {
			percentage = float64(c.Votes) / float64(total) * 100
		}
		results.Choices[i] = ChoiceResult{
			ID:         c.ID,
			ChoiceText: c.ChoiceText,
			Votes:      c.Votes,
			Percentage: percentage,
		}
	}
	return results
}

func mapRepoError(err error) error {
	if errors.Is(err, repository.ErrQuestionNotFound) {
		return ErrQuestionNotFound
	}
	return err
}
