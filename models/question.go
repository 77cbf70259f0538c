package models

import (
	"time"

	"gorm.io/gorm"
)

// RecentWindow 最近发布的时间窗口
const RecentWindow = 24 * time.Hour

// Question represents a poll question
type Question struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	QuestionText string    `gorm:"size:200;not null" json:"question_text"`
	PubDate      time.Time `gorm:"not null;index" json:"pub_date"`
	Choices      []Choice  `gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE" json:"choices,omitempty"`
}

// Choice represents a vote-counted option owned by a question
type Choice struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	QuestionID uint   `gorm:"not null;index" json:"question_id"`
	ChoiceText string `gorm:"size:200;not null" json:"choice_text"`
	Votes      int64  `gorm:"not null;default:0" json:"votes"`
}

// BeforeSave 统一以UTC存储发布时间，保证不同驱动下的时间比较一致
func (q *Question) BeforeSave(tx *gorm.DB) error {
	q.PubDate = q.PubDate.UTC()
	return nil
}

// IsPublished 判断问题在now时刻是否已发布
func (q *Question) IsPublished(now time.Time) bool {
	return !q.PubDate.After(now)
}

// WasPublishedRecently 判断问题是否在now之前的24小时内发布（两端都包含）
func (q *Question) WasPublishedRecently(now time.Time) bool {
	return !q.PubDate.Before(now.Add(-RecentWindow)) && !q.PubDate.After(now)
}

// TotalVotes 计算所有选项的票数总和
func (q *Question) TotalVotes() int64 {
	var total int64
	for _, c := range q.Choices {
		total += c.Votes
	}
	return total
}
