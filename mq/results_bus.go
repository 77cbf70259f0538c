package mq

import (
	"context"
	"encoding/json"
	"time"

	"polls-backend/logger"
	"polls-backend/service"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ResultsChannel 投票结果变更的发布订阅频道
const ResultsChannel = "polls:results"

// publishTimeout 发布消息的超时时间
const publishTimeout = 2 * time.Second

// ResultsEvent 问题的投票结果发生了变化
type ResultsEvent struct {
	QuestionID uint   `json:"question_id"`
	Origin     string `json:"origin"`
}

// PubSubClient 结果总线用到的Redis操作
type PubSubClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// ResultsBus 把投票结果变更通过Redis广播给所有实例，
// 每个实例收到后通知本地的实时结果订阅者
type ResultsBus struct {
	client PubSubClient
	local  service.ResultsNotifier
	origin string
	log    *logger.Logger
}

// NewResultsBus 创建结果总线，local为本实例的通知对象
func NewResultsBus(client PubSubClient, local service.ResultsNotifier, log *logger.Logger) *ResultsBus {
	return &ResultsBus{
		client: client,
		local:  local,
		origin: uuid.NewString(),
		log:    log,
	}
}

// NotifyResults 通知本实例的订阅者，并发布给其他实例
func (b *ResultsBus) NotifyResults(questionID uint) {
	b.local.NotifyResults(questionID)

	payload, err := json.Marshal(ResultsEvent{QuestionID: questionID, Origin: b.origin})
	if err != nil {
		b.log.WithError(err).Error("序列化结果事件失败")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := b.client.Publish(ctx, ResultsChannel, payload).Err(); err != nil {
		b.log.WithError(err).WithField("question_id", questionID).Warn("发布结果事件失败")
	}
}

// Run 订阅结果频道直到ctx取消
func (b *ResultsBus) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, ResultsChannel)
	defer sub.Close()

	// 等待订阅确认
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	b.log.WithField("channel", ResultsChannel).Info("结果总线已启动")
	b.Consume(ctx, sub.Channel())
	return nil
}

// Consume 处理其他实例发布的事件，忽略本实例发布的事件
func (b *ResultsBus) Consume(ctx context.Context, messages <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}

			var event ResultsEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.log.WithError(err).Warn("解析结果事件失败")
				continue
			}
			if event.Origin == b.origin || event.QuestionID == 0 {
				continue
			}
			b.local.NotifyResults(event.QuestionID)
		}
	}
}

var _ service.ResultsNotifier = (*ResultsBus)(nil)
