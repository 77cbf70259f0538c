package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"polls-backend/logger"
	"polls-backend/models"
	"polls-backend/repository"
	"polls-backend/service"
	"polls-backend/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testAdminKey = "secret"

func setupAdmin(t *testing.T, adminKey string) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.SetupTestDB(t)
	admin := service.NewAdminService(repository.NewQuestionRepository(db))

	router := gin.New()
	NewAdminController(admin, adminKey, logger.Discard()).RegisterRoutes(router.Group("/api"))
	return router, db
}

func doJSON(router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(AdminKeyHeader, testAdminKey)
	router.ServeHTTP(w, req)
	return w
}

func TestRequireAdminKey(t *testing.T) {
	router, _ := setupAdmin(t, testAdminKey)

	for _, key := range []string{"", "wrong"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/admin/questions", nil)
		if key != "" {
			req.Header.Set(AdminKeyHeader, key)
		}
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}

	w := doJSON(router, "GET", "/api/admin/questions", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAdminKey_NotConfigured(t *testing.T) {
	router, _ := setupAdmin(t, "")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/admin/questions", nil)
	req.Header.Set(AdminKeyHeader, "")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminCreateQuestion(t *testing.T) {
	router, db := setupAdmin(t, testAdminKey)

	pubDate := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	w := doJSON(router, "POST", "/api/admin/questions", gin.H{
		"question_text": "What's new?",
		"pub_date":      pubDate,
		"choices":       []string{"Not much", "", "The sky"},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var row service.QuestionRow
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &row))
	assert.NotZero(t, row.ID)
	assert.True(t, pubDate.Equal(row.PubDate))
	assert.True(t, row.WasPublishedRecently)
	assert.Len(t, row.Choices, 2)

	var count int64
	db.Model(&models.Choice{}).Count(&count)
	assert.Equal(t, int64(2), count)
}

func TestAdminCreateQuestion_Invalid(t *testing.T) {
	router, _ := setupAdmin(t, testAdminKey)

	tests := []struct {
		name string
		body interface{}
	}{
		{"MissingText", gin.H{"choices": []string{"A"}}},
		{"BlankText", gin.H{"question_text": "   "}},
		{"BadDate", gin.H{"question_text": "Q", "pub_date": "tomorrow"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(router, "POST", "/api/admin/questions", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestAdminUpdateAndGetQuestion(t *testing.T) {
	router, db := setupAdmin(t, testAdminKey)
	q := testutil.CreateQuestion(t, db, "Old", 5, "A")

	// 未发布的问题在管理端可见
	w := doJSON(router, "GET", fmt.Sprintf("/api/admin/questions/%d", q.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, "PUT", fmt.Sprintf("/api/admin/questions/%d", q.ID), gin.H{"question_text": "New"})
	require.Equal(t, http.StatusOK, w.Code)

	var row service.QuestionRow
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &row))
	assert.Equal(t, "New", row.QuestionText)
	assert.False(t, row.WasPublishedRecently)

	w = doJSON(router, "PUT", "/api/admin/questions/9999", gin.H{"question_text": "New"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(router, "GET", "/api/admin/questions/abc", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminDeleteQuestion(t *testing.T) {
	router, db := setupAdmin(t, testAdminKey)
	q := testutil.CreateQuestion(t, db, "Doomed", -1, "A", "B")

	w := doJSON(router, "DELETE", fmt.Sprintf("/api/admin/questions/%d", q.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var count int64
	db.Model(&models.Choice{}).Where("question_id = ?", q.ID).Count(&count)
	assert.Equal(t, int64(0), count)

	w = doJSON(router, "DELETE", fmt.Sprintf("/api/admin/questions/%d", q.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminAddChoice(t *testing.T) {
	router, db := setupAdmin(t, testAdminKey)
	q := testutil.CreateQuestion(t, db, "Q", -1)

	w := doJSON(router, "POST", fmt.Sprintf("/api/admin/questions/%d/choices", q.ID), gin.H{"choice_text": "Maybe"})
	require.Equal(t, http.StatusCreated, w.Code)

	var choice models.Choice
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &choice))
	assert.Equal(t, q.ID, choice.QuestionID)
	assert.Equal(t, "Maybe", choice.ChoiceText)

	w = doJSON(router, "POST", "/api/admin/questions/9999/choices", gin.H{"choice_text": "Orphan"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminListQuestions(t *testing.T) {
	router, db := setupAdmin(t, testAdminKey)
	testutil.CreateQuestion(t, db, "Favourite colour?", -1, "Blue")
	testutil.CreateQuestion(t, db, "Favourite food?", -400, "Rice")
	testutil.CreateQuestion(t, db, "Weather?", -2, "Sunny")

	w := doJSON(router, "GET", "/api/admin/questions?search=Favourite", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var page service.QuestionPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, int64(2), page.Total)
	require.Len(t, page.Questions, 2)
	assert.Equal(t, "Favourite colour?", page.Questions[0].QuestionText)

	w = doJSON(router, "GET", "/api/admin/questions?pub_date=past_7_days", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, int64(2), page.Total)

	w = doJSON(router, "GET", "/api/admin/questions?pub_date=someday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
