package websocket

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"polls-backend/repository"
	"polls-backend/service"
	"polls-backend/testutil"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupLiveResults(t *testing.T) (*httptest.Server, *Hub, *service.PollService, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.SetupTestDB(t)
	repo := repository.NewQuestionRepository(db)
	reader := service.NewPollService(repo, nil, nil, nil)
	hub := NewHub(reader.GetQuestionResults, nil)
	polls := service.NewPollService(repo, hub, nil, nil)

	router := gin.New()
	router.GET("/api/polls/:id/results/ws", NewHandler(hub).HandleResults)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return server, hub, polls, db
}

func dial(t *testing.T, server *httptest.Server, questionID uint) *websocket.Conn {
	t.Helper()
	url := fmt.Sprintf("ws%s/api/polls/%d/results/ws", strings.TrimPrefix(server.URL, "http"), questionID)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestLiveResultsAfterVote(t *testing.T) {
	server, hub, polls, db := setupLiveResults(t)
	q := testutil.CreateQuestion(t, db, "What's up?", -1, "Not much", "The sky")

	conn := dial(t, server, q.ID)

	initial := readMessage(t, conn)
	assert.Equal(t, MessageTypeResults, initial.Type)
	assert.Equal(t, q.ID, initial.QuestionID)
	require.NotNil(t, initial.Payload)
	assert.Equal(t, int64(0), initial.Payload.TotalVotes)
	assert.Equal(t, 1, hub.ClientCount(q.ID))

	result, err := polls.CastVote(context.Background(), q.ID, fmt.Sprint(q.Choices[1].ID))
	require.NoError(t, err)
	require.True(t, result.Accepted)

	update := readMessage(t, conn)
	assert.Equal(t, q.ID, update.QuestionID)
	assert.Equal(t, int64(1), update.Payload.TotalVotes)
	require.Len(t, update.Payload.Choices, 2)
	assert.Equal(t, int64(0), update.Payload.Choices[0].Votes)
	assert.Equal(t, int64(1), update.Payload.Choices[1].Votes)
}

func TestLiveResultsOnlyForSubscribedQuestion(t *testing.T) {
	server, _, polls, db := setupLiveResults(t)
	watched := testutil.CreateQuestion(t, db, "Watched", -1, "A")
	other := testutil.CreateQuestion(t, db, "Other", -1, "B")

	conn := dial(t, server, watched.ID)
	readMessage(t, conn)

	_, err := polls.CastVote(context.Background(), other.ID, fmt.Sprint(other.Choices[0].ID))
	require.NoError(t, err)
	_, err = polls.CastVote(context.Background(), watched.ID, fmt.Sprint(watched.Choices[0].ID))
	require.NoError(t, err)

	// 第一条推送就是被订阅问题的结果
	update := readMessage(t, conn)
	assert.Equal(t, watched.ID, update.QuestionID)
	assert.Equal(t, int64(1), update.Payload.TotalVotes)
}

func TestLiveResultsUnknownQuestion(t *testing.T) {
	server, _, _, _ := setupLiveResults(t)

	for _, id := range []string{"9999", "abc"} {
		url := fmt.Sprintf("ws%s/api/polls/%s/results/ws", strings.TrimPrefix(server.URL, "http"), id)
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := NewHub(nil, nil)
	client := &Client{QuestionID: 1, send: make(chan []byte, 1)}
	hub.RegisterClient(client)

	msg := &Message{Type: MessageTypeResults, QuestionID: 1, Payload: &service.QuestionResults{ID: 1}}
	hub.Broadcast(msg)
	assert.Equal(t, 1, hub.ClientCount(1))

	// 缓冲区已满
	hub.Broadcast(msg)
	assert.Equal(t, 0, hub.ClientCount(1))

	_, ok := <-client.send
	assert.True(t, ok)
	_, ok = <-client.send
	assert.False(t, ok, "send channel should be closed")

	// 重复注销不会panic
	hub.UnregisterClient(client)
}

func TestNotifyResultsWithoutSubscribers(t *testing.T) {
	called := false
	hub := NewHub(func(ctx context.Context, id uint) (*service.QuestionResults, error) {
		called = true
		return &service.QuestionResults{ID: id}, nil
	}, nil)

	hub.NotifyResults(1)
	assert.False(t, called)
}
