package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"polls-backend/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrQuestionNotFound 问题不存在错误
var ErrQuestionNotFound = errors.New("question not found")

// QuestionFilter 管理端查询条件
type QuestionFilter struct {
	Search string     // question_text 子串匹配
	From   *time.Time // pub_date >= From
	To     *time.Time // pub_date < To
	Offset int
	Limit  int
}

// QuestionRepository 定义问题和选项的数据访问接口
type QuestionRepository interface {
	// 公开访问
	FindQuestion(ctx context.Context, id uint) (*models.Question, error)
	FindPublishedQuestion(ctx context.Context, id uint, now time.Time) (*models.Question, error)
	ListPublished(ctx context.Context, now time.Time, limit int) ([]models.Question, error)

	// IncrementVotes 原子增加选项票数，只有选项属于该问题时才生效
	IncrementVotes(ctx context.Context, questionID, choiceID uint) (bool, error)

	// 管理端
	CreateQuestion(ctx context.Context, question *models.Question) error
	SaveQuestion(ctx context.Context, question *models.Question) error
	DeleteQuestion(ctx context.Context, id uint) error
	AddChoice(ctx context.Context, choice *models.Choice) error
	SearchQuestions(ctx context.Context, filter QuestionFilter) ([]models.Question, int64, error)
}

// GormQuestionRepository 基于GORM的实现
type GormQuestionRepository struct {
	db *gorm.DB
}

// NewQuestionRepository 创建问题数据仓库
func NewQuestionRepository(db *gorm.DB) *GormQuestionRepository {
	return &GormQuestionRepository{db: db}
}

func orderedChoices(db *gorm.DB) *gorm.DB {
	return db.Order("choices.id ASC")
}

// FindQuestion 根据ID获取问题及其选项，不检查发布时间
func (r *GormQuestionRepository) FindQuestion(ctx context.Context, id uint) (*models.Question, error) {
	var q models.Question
	err := r.db.WithContext(ctx).Preload("Choices", orderedChoices).First(&q, id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &q, nil
}

// FindPublishedQuestion 获取已发布的问题，未发布与不存在同样返回ErrQuestionNotFound
func (r *GormQuestionRepository) FindPublishedQuestion(ctx context.Context, id uint, now time.Time) (*models.Question, error) {
	var q models.Question
	err := r.db.WithContext(ctx).
		Preload("Choices", orderedChoices).
		Where("pub_date <= ?", now.UTC()).
		First(&q, id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &q, nil
}

// ListPublished 返回已发布且至少有一个选项的问题，按发布时间升序
func (r *GormQuestionRepository) ListPublished(ctx context.Context, now time.Time, limit int) ([]models.Question, error) {
	questions := []models.Question{}
	err := r.db.WithContext(ctx).
		Where("pub_date <= ?", now.UTC()).
		Where("EXISTS (SELECT 1 FROM choices WHERE choices.question_id = questions.id)").
		Order("pub_date ASC").
		Order("id ASC").
		Limit(limit).
		Find(&questions).Error
	if err != nil {
		return nil, fmt.Errorf("查询已发布问题失败: %w", err)
	}
	return questions, nil
}

// IncrementVotes 在数据库端执行 votes = votes + 1
func (r *GormQuestionRepository) IncrementVotes(ctx context.Context, questionID, choiceID uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Choice{}).
		Where("id = ? AND question_id = ?", choiceID, questionID).
		UpdateColumn("votes", gorm.Expr("votes + ?", 1))
	if res.Error != nil {
		return false, fmt.Errorf("更新投票计数失败: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// CreateQuestion 在同一事务中创建问题及其选项
func (r *GormQuestionRepository) CreateQuestion(ctx context.Context, question *models.Question) error {
	if err := r.db.WithContext(ctx).Create(question).Error; err != nil {
		return fmt.Errorf("创建问题失败: %w", err)
	}
	return nil
}

// SaveQuestion 更新问题字段，不修改选项
func (r *GormQuestionRepository) SaveQuestion(ctx context.Context, question *models.Question) error {
	res := r.db.WithContext(ctx).Omit(clause.Associations).Save(question)
	if res.Error != nil {
		return fmt.Errorf("更新问题失败: %w", res.Error)
	}
	return nil
}

// DeleteQuestion 删除问题并级联删除其选项
func (r *GormQuestionRepository) DeleteQuestion(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var q models.Question
		if err := tx.First(&q, id).Error; err != nil {
			return notFound(err)
		}
		if err := tx.Select(clause.Associations).Delete(&q).Error; err != nil {
			return fmt.Errorf("删除问题失败: %w", err)
		}
		return nil
	})
}

// AddChoice 为已存在的问题添加选项
func (r *GormQuestionRepository) AddChoice(ctx context.Context, choice *models.Choice) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Question{}).Where("id = ?", choice.QuestionID).Count(&count).Error; err != nil {
			return fmt.Errorf("查询问题失败: %w", err)
		}
		if count == 0 {
			return ErrQuestionNotFound
		}
		if err := tx.Create(choice).Error; err != nil {
			return fmt.Errorf("创建选项失败: %w", err)
		}
		return nil
	})
}

// SearchQuestions 按条件查询问题，按发布时间倒序，同时返回总数
func (r *GormQuestionRepository) SearchQuestions(ctx context.Context, filter QuestionFilter) ([]models.Question, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Question{})
	if filter.Search != "" {
		query = query.Where("question_text LIKE ?", "%"+filter.Search+"%")
	}
	if filter.From != nil {
		query = query.Where("pub_date >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("pub_date < ?", filter.To.UTC())
	}
	// 计数和查询共用条件
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计问题失败: %w", err)
	}

	questions := []models.Question{}
	query = query.Preload("Choices", orderedChoices).Order("pub_date DESC").Order("id DESC").Offset(filter.Offset)
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if err := query.Find(&questions).Error; err != nil {
		return nil, 0, fmt.Errorf("查询问题失败: %w", err)
	}
	return questions, total, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrQuestionNotFound
	}
	return fmt.Errorf("查询问题失败: %w", err)
}
