package handlers

import (
	"testing"

	"polls-backend/logger"
	"polls-backend/repository"
	"polls-backend/service"
	"polls-backend/testutil"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupTestEnvironment sets up the Gin router and a file-backed SQLite database for testing.
func SetupTestEnvironment(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.SetupTestDB(t)
	log := logger.Discard()
	polls := service.NewPollService(repository.NewQuestionRepository(db), nil, nil, log)

	router := gin.New()
	api := router.Group("/api")
	NewPollHandler(polls, log).RegisterRoutes(api)
	NewHealthHandler(db, nil).RegisterRoutes(api)

	return router, db
}
