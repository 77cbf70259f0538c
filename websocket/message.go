package websocket

import (
	"encoding/json"

	"polls-backend/service"
)

// MessageTypeResults 投票结果消息
const MessageTypeResults = "results"

// Message 定义WebSocket消息格式
type Message struct {
	Type       string                   `json:"type"`
	QuestionID uint                     `json:"question_id"`
	Payload    *service.QuestionResults `json:"payload"`
}

// ToJSON 将WebSocket消息转换为JSON字节数组
func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func resultsMessage(results *service.QuestionResults) *Message {
	return &Message{Type: MessageTypeResults, QuestionID: results.ID, Payload: results}
}
