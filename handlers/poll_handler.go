package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"polls-backend/logger"
	"polls-backend/models"
	"polls-backend/service"

	"github.com/gin-gonic/gin"
)

// ErrorResponse API错误响应
type ErrorResponse struct {
	Error string `json:"error"`
}

// QuestionListResponse 首页响应
type QuestionListResponse struct {
	LatestQuestionList []models.Question `json:"latest_question_list"`
}

// DetailResponse 详情页响应，投票被拒绝时带有ErrorMessage
type DetailResponse struct {
	*models.Question
	ErrorMessage string `json:"error_message,omitempty"`
}

// PollHandler 处理公开的投票请求
type PollHandler struct {
	polls *service.PollService
	log   *logger.Logger
}

// NewPollHandler 创建投票处理器
func NewPollHandler(polls *service.PollService, log *logger.Logger) *PollHandler {
	return &PollHandler{polls: polls, log: log}
}

// RegisterRoutes 注册投票路由
func (h *PollHandler) RegisterRoutes(rg *gin.RouterGroup) {
	polls := rg.Group("/polls")
	{
		polls.GET("", h.Index)
		polls.GET("/:id", h.Detail)
		polls.GET("/:id/results", h.Results)
		polls.POST("/:id/vote", h.Vote)
	}
}

// Index 返回最近发布的问题
func (h *PollHandler) Index(c *gin.Context) {
	questions, err := h.polls.ListVisibleQuestions(c.Request.Context())
	if err != nil {
		h.internalError(c, "获取问题列表失败", err)
		return
	}
	if questions == nil {
		questions = []models.Question{}
	}
	c.JSON(http.StatusOK, QuestionListResponse{LatestQuestionList: questions})
}

// Detail 返回已发布问题的详情
func (h *PollHandler) Detail(c *gin.Context) {
	id, ok := service.ParseID(c.Param("id"))
	if !ok {
		questionNotFound(c)
		return
	}

	question, err := h.polls.GetPublishedQuestion(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "获取问题详情失败", err)
		return
	}
	c.JSON(http.StatusOK, DetailResponse{Question: question})
}

// Results 返回问题的投票结果
func (h *PollHandler) Results(c *gin.Context) {
	id, ok := service.ParseID(c.Param("id"))
	if !ok {
		questionNotFound(c)
		return
	}

	results, err := h.polls.GetQuestionResults(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "获取投票结果失败", err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// Vote 处理表单投票，成功后重定向到结果页
func (h *PollHandler) Vote(c *gin.Context) {
	id, ok := service.ParseID(c.Param("id"))
	if !ok {
		questionNotFound(c)
		return
	}

	result, err := h.polls.CastVote(c.Request.Context(), id, c.PostForm("choice"))
	if err != nil {
		h.respondError(c, "投票失败", err)
		return
	}

	if !result.Accepted {
		c.JSON(http.StatusOK, DetailResponse{Question: result.Question, ErrorMessage: result.Reason})
		return
	}
	c.Redirect(http.StatusFound, fmt.Sprintf("/api/polls/%d/results", id))
}

func (h *PollHandler) respondError(c *gin.Context, msg string, err error) {
	if errors.Is(err, service.ErrQuestionNotFound) {
		questionNotFound(c)
		return
	}
	h.internalError(c, msg, err)
}

func (h *PollHandler) internalError(c *gin.Context, msg string, err error) {
	h.log.FromContext(c).WithError(err).Error(msg)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: msg})
}

func questionNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, ErrorResponse{Error: "Question not found"})
}
