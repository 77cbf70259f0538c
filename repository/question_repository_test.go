package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"polls-backend/models"
	"polls-backend/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestListPublished(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewQuestionRepository(db)
	ctx := context.Background()
	now := time.Now()

	t.Run("Empty", func(t *testing.T) {
		questions, err := repo.ListPublished(ctx, now, 5)
		require.NoError(t, err)
		assert.NotNil(t, questions)
		assert.Len(t, questions, 0)
	})

	past := testutil.CreateQuestion(t, db, "Past question", -30, "A", "B", "C")
	testutil.CreateQuestion(t, db, "Future question", 30, "A")
	testutil.CreateQuestion(t, db, "No choices", -2)

	t.Run("PublishedWithChoicesOnce", func(t *testing.T) {
		questions, err := repo.ListPublished(ctx, now, 5)
		require.NoError(t, err)
		require.Len(t, questions, 1)
		assert.Equal(t, past.ID, questions[0].ID)
	})

	t.Run("OrderedAndCapped", func(t *testing.T) {
		for i := 1; i <= 6; i++ {
			testutil.CreateQuestion(t, db, "Extra", -i, "x")
		}
		questions, err := repo.ListPublished(ctx, now, 5)
		require.NoError(t, err)
		require.Len(t, questions, 5)
		assert.Equal(t, past.ID, questions[0].ID)
		for i := 1; i < len(questions); i++ {
			assert.False(t, questions[i].PubDate.Before(questions[i-1].PubDate))
		}
	})
}

func TestFindPublishedQuestion(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewQuestionRepository(db)
	ctx := context.Background()
	now := time.Now()

	past := testutil.CreateQuestion(t, db, "Past", -1, "A", "B")
	future := testutil.CreateQuestion(t, db, "Future", 1, "A")

	q, err := repo.FindPublishedQuestion(ctx, past.ID, now)
	require.NoError(t, err)
	assert.Equal(t, "Past", q.QuestionText)
	require.Len(t, q.Choices, 2)
	assert.Equal(t, "A", q.Choices[0].ChoiceText)

	_, err = repo.FindPublishedQuestion(ctx, future.ID, now)
	assert.ErrorIs(t, err, ErrQuestionNotFound)

	_, err = repo.FindPublishedQuestion(ctx, 9999, now)
	assert.ErrorIs(t, err, ErrQuestionNotFound)

	// 结果访问不检查发布时间
	q, err = repo.FindQuestion(ctx, future.ID)
	require.NoError(t, err)
	assert.Equal(t, future.ID, q.ID)
}

func TestIncrementVotes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewQuestionRepository(db)
	ctx := context.Background()

	q := testutil.CreateQuestion(t, db, "Q", -1, "A", "B")
	other := testutil.CreateQuestion(t, db, "Other", -1, "X")

	ok, err := repo.IncrementVotes(ctx, q.ID, q.Choices[0].ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), testutil.Votes(t, db, q.Choices[0].ID))
	assert.Equal(t, int64(0), testutil.Votes(t, db, q.Choices[1].ID))

	// 选项不属于该问题
	ok, err = repo.IncrementVotes(ctx, q.ID, other.Choices[0].ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(0), testutil.Votes(t, db, other.Choices[0].ID))
}

func TestIncrementVotesConcurrent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewQuestionRepository(db)
	ctx := context.Background()

	q := testutil.CreateQuestion(t, db, "Q", -1, "A")
	choiceID := q.Choices[0].ID
	require.NoError(t, db.Model(&models.Choice{}).Where("id = ?", choiceID).Update("votes", 7).Error)

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.IncrementVotes(ctx, q.ID, choiceID); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("increment failed: %v", err)
	}
	assert.Equal(t, int64(7+n), testutil.Votes(t, db, choiceID))
}

func TestIncrementVotesIssuesAtomicUpdate(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `choices` SET `votes`=votes \\+ \\? WHERE id = \\? AND question_id = \\?").
		WithArgs(1, 3, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ok, err := NewQuestionRepository(db).IncrementVotes(context.Background(), 2, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteQuestionCascades(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewQuestionRepository(db)
	ctx := context.Background()

	q := testutil.CreateQuestion(t, db, "To be deleted", -1, "A", "B")
	keep := testutil.CreateQuestion(t, db, "Keep", -1, "C")

	require.NoError(t, repo.DeleteQuestion(ctx, q.ID))

	var count int64
	db.Model(&models.Question{}).Where("id = ?", q.ID).Count(&count)
	assert.Equal(t, int64(0), count)
	db.Model(&models.Choice{}).Where("question_id = ?", q.ID).Count(&count)
	assert.Equal(t, int64(0), count)
	db.Model(&models.Choice{}).Where("question_id = ?", keep.ID).Count(&count)
	assert.Equal(t, int64(1), count)

	assert.ErrorIs(t, repo.DeleteQuestion(ctx, q.ID), ErrQuestionNotFound)
}

func TestAddChoice(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewQuestionRepository(db)
	ctx := context.Background()

	q := testutil.CreateQuestion(t, db, "Q", -1)
	choice := &models.Choice{QuestionID: q.ID, ChoiceText: "New"}
	require.NoError(t, repo.AddChoice(ctx, choice))
	assert.NotZero(t, choice.ID)

	err := repo.AddChoice(ctx, &models.Choice{QuestionID: 9999, ChoiceText: "Orphan"})
	assert.ErrorIs(t, err, ErrQuestionNotFound)
}

func TestSearchQuestions(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewQuestionRepository(db)
	ctx := context.Background()

	testutil.CreateQuestion(t, db, "What's up?", -1, "A")
	testutil.CreateQuestion(t, db, "Favourite colour?", -10)
	testutil.CreateQuestion(t, db, "What's next?", 5)

	questions, total, err := repo.SearchQuestions(ctx, QuestionFilter{Search: "what"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, questions, 2)
	// 按发布时间倒序
	assert.Equal(t, "What's next?", questions[0].QuestionText)

	from := time.Now().AddDate(0, 0, -3)
	to := time.Now()
	questions, total, err = repo.SearchQuestions(ctx, QuestionFilter{From: &from, To: &to})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, questions, 1)
	assert.Equal(t, "What's up?", questions[0].QuestionText)
	assert.Len(t, questions[0].Choices, 1)

	questions, total, err = repo.SearchQuestions(ctx, QuestionFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, questions, 1)
	assert.Equal(t, "What's up?", questions[0].QuestionText)
}

func TestSaveQuestionKeepsChoices(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewQuestionRepository(db)
	ctx := context.Background()

	q := testutil.CreateQuestion(t, db, "Old", -1, "A", "B")
	q.QuestionText = "New"
	q.Choices = nil
	require.NoError(t, repo.SaveQuestion(ctx, &q))

	loaded, err := repo.FindQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, "New", loaded.QuestionText)
	assert.Len(t, loaded.Choices, 2)
}
