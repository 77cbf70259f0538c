package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"polls-backend/logger"
	"polls-backend/service"

	"github.com/gin-gonic/gin"
)

// AdminKeyHeader 管理端鉴权头
const AdminKeyHeader = "X-Admin-Key"

// ErrorResponse API错误响应
type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse API成功响应
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// CreateQuestionRequest 创建问题请求
type CreateQuestionRequest struct {
	QuestionText string     `json:"question_text" binding:"required"`
	PubDate      *time.Time `json:"pub_date"`
	Choices      []string   `json:"choices"`
}

// UpdateQuestionRequest 更新问题请求，缺省字段保持不变
type UpdateQuestionRequest struct {
	QuestionText *string    `json:"question_text"`
	PubDate      *time.Time `json:"pub_date"`
}

// AddChoiceRequest 添加选项请求
type AddChoiceRequest struct {
	ChoiceText string `json:"choice_text" binding:"required"`
}

// ListQuestionsQuery 管理端列表查询参数
type ListQuestionsQuery struct {
	Search   string `form:"search"`
	PubDate  string `form:"pub_date"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// AdminController 处理管理端API请求
type AdminController struct {
	admin    *service.AdminService
	adminKey string
	log      *logger.Logger
}

// NewAdminController 创建管理端控制器。adminKey为空时所有请求都返回401
func NewAdminController(admin *service.AdminService, adminKey string, log *logger.Logger) *AdminController {
	return &AdminController{admin: admin, adminKey: adminKey, log: log}
}

// RegisterRoutes 注册管理端路由
func (c *AdminController) RegisterRoutes(rg *gin.RouterGroup) {
	admin := rg.Group("/admin", c.RequireAdminKey())
	{
		questions := admin.Group("/questions")
		{
			questions.GET("", c.ListQuestions)
			questions.POST("", c.CreateQuestion)
			questions.GET("/:id", c.GetQuestion)
			questions.PUT("/:id", c.UpdateQuestion)
			questions.DELETE("/:id", c.DeleteQuestion)
			questions.POST("/:id/choices", c.AddChoice)
		}
	}
}

// RequireAdminKey 校验X-Admin-Key
func (c *AdminController) RequireAdminKey() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		key := ctx.GetHeader(AdminKeyHeader)
		if c.adminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(c.adminKey)) != 1 {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
			return
		}
		ctx.Next()
	}
}

// ListQuestions 按文本和发布时间搜索问题
func (c *AdminController) ListQuestions(ctx *gin.Context) {
	var query ListQuestionsQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request: " + err.Error()})
		return
	}

	page, err := c.admin.ListQuestions(ctx.Request.Context(), service.ListQuestionsInput{
		Search:   query.Search,
		PubDate:  query.PubDate,
		Page:     query.Page,
		PageSize: query.PageSize,
	})
	if err != nil {
		c.respondError(ctx, "查询问题失败", err)
		return
	}
	ctx.JSON(http.StatusOK, page)
}

// CreateQuestion 创建问题及其选项
func (c *AdminController) CreateQuestion(ctx *gin.Context) {
	var req CreateQuestionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request: " + err.Error()})
		return
	}

	question, err := c.admin.CreateQuestion(ctx.Request.Context(), service.CreateQuestionInput{
		QuestionText: req.QuestionText,
		PubDate:      req.PubDate,
		Choices:      req.Choices,
	})
	if err != nil {
		c.respondError(ctx, "创建问题失败", err)
		return
	}

	c.log.FromContext(ctx).WithField("question_id", question.ID).Info("问题已创建")
	ctx.JSON(http.StatusCreated, question)
}

// GetQuestion 获取问题，包括未发布的问题
func (c *AdminController) GetQuestion(ctx *gin.Context) {
	id, ok := service.ParseID(ctx.Param("id"))
	if !ok {
		questionNotFound(ctx)
		return
	}

	question, err := c.admin.GetQuestion(ctx.Request.Context(), id)
	if err != nil {
		c.respondError(ctx, "获取问题失败", err)
		return
	}
	ctx.JSON(http.StatusOK, question)
}

// UpdateQuestion 更新问题文本或发布时间
func (c *AdminController) UpdateQuestion(ctx *gin.Context) {
	id, ok := service.ParseID(ctx.Param("id"))
	if !ok {
		questionNotFound(ctx)
		return
	}

	var req UpdateQuestionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request: " + err.Error()})
		return
	}

	question, err := c.admin.UpdateQuestion(ctx.Request.Context(), id, service.UpdateQuestionInput{
		QuestionText: req.QuestionText,
		PubDate:      req.PubDate,
	})
	if err != nil {
		c.respondError(ctx, "更新问题失败", err)
		return
	}
	ctx.JSON(http.StatusOK, question)
}

// DeleteQuestion 删除问题及其所有选项
func (c *AdminController) DeleteQuestion(ctx *gin.Context) {
	id, ok := service.ParseID(ctx.Param("id"))
	if !ok {
		questionNotFound(ctx)
		return
	}

	if err := c.admin.DeleteQuestion(ctx.Request.Context(), id); err != nil {
		c.respondError(ctx, "删除问题失败", err)
		return
	}

	c.log.FromContext(ctx).WithField("question_id", id).Info("问题已删除")
	ctx.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "Question deleted"})
}

// AddChoice 为问题添加选项
func (c *AdminController) AddChoice(ctx *gin.Context) {
	id, ok := service.ParseID(ctx.Param("id"))
	if !ok {
		questionNotFound(ctx)
		return
	}

	var req AddChoiceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request: " + err.Error()})
		return
	}

	choice, err := c.admin.AddChoice(ctx.Request.Context(), id, req.ChoiceText)
	if err != nil {
		c.respondError(ctx, "添加选项失败", err)
		return
	}
	ctx.JSON(http.StatusCreated, choice)
}

func (c *AdminController) respondError(ctx *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, service.ErrQuestionNotFound):
		questionNotFound(ctx)
	case errors.Is(err, service.ErrInvalidInput):
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	default:
		c.log.FromContext(ctx).WithError(err).Error(msg)
		ctx.JSON(http.StatusInternalServerError, ErrorResponse{Error: msg})
	}
}

func questionNotFound(ctx *gin.Context) {
	ctx.JSON(http.StatusNotFound, ErrorResponse{Error: "Question not found"})
}
