package websocket

import (
	"context"
	"sync"
	"time"

	"polls-backend/logger"
	"polls-backend/service"

	"github.com/gorilla/websocket"
)

// ResultsLoader 读取问题当前的投票结果
type ResultsLoader func(ctx context.Context, questionID uint) (*service.QuestionResults, error)

// loadTimeout 广播前读取结果的超时时间
const loadTimeout = 5 * time.Second

// Client 代表一个WebSocket连接客户端
type Client struct {
	// 订阅的问题ID
	QuestionID uint

	// WebSocket连接
	conn *websocket.Conn

	// 消息发送通道
	send chan []byte
}

// Hub 维护活跃的客户端集合并向客户端广播消息
type Hub struct {
	// 已注册的客户端，按问题ID分组
	clients map[uint]map[*Client]bool

	load ResultsLoader
	log  *logger.Logger

	// 互斥锁保护clients map
	mu sync.RWMutex
}

// NewHub 创建一个新的Hub
func NewHub(load ResultsLoader, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Discard()
	}
	return &Hub{
		clients: make(map[uint]map[*Client]bool),
		load:    load,
		log:     log,
	}
}

// NotifyResults 读取问题的最新结果并推送给订阅者
func (h *Hub) NotifyResults(questionID uint) {
	if h.ClientCount(questionID) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()

	results, err := h.load(ctx, questionID)
	if err != nil {
		h.log.WithError(err).WithField("question_id", questionID).Error("读取投票结果失败")
		return
	}
	h.Broadcast(resultsMessage(results))
}

// Broadcast 向订阅该问题的所有客户端广播消息
func (h *Hub) Broadcast(message *Message) {
	payload, err := message.ToJSON()
	if err != nil {
		h.log.WithError(err).Error("消息序列化失败")
		return
	}

	// 持有读锁发送，避免与UnregisterClient关闭通道并发
	var slow []*Client
	h.mu.RLock()
	clients := h.clients[message.QuestionID]
	count := len(clients)
	for client := range clients {
		select {
		case client.send <- payload:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	// 发送缓冲区已满的客户端断开连接
	for _, client := range slow {
		h.UnregisterClient(client)
	}
	h.log.WithField("question_id", message.QuestionID).Debugf("广播消息到 %d 个客户端", count)
}

// RegisterClient 注册客户端到Hub
func (h *Hub) RegisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.QuestionID]; !ok {
		h.clients[client.QuestionID] = make(map[*Client]bool)
	}
	h.clients[client.QuestionID][client] = true
}

// UnregisterClient 从Hub中注销客户端并关闭其发送通道，可重复调用
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.QuestionID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.clients, client.QuestionID)
	}
}

// ClientCount 返回订阅该问题的客户端数量
func (h *Hub) ClientCount(questionID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[questionID])
}

var _ service.ResultsNotifier = (*Hub)(nil)
