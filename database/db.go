package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"polls-backend/config"
	"polls-backend/models"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Locker 在锁内执行操作，用于多实例启动时只做一次初始化
type Locker interface {
	WithLock(ctx context.Context, name string, expiry time.Duration, action func() error) error
}

// Open 根据配置打开数据库连接并完成迁移
func Open(cfg *config.Config) (*gorm.DB, error) {
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold:             time.Second, // 慢SQL阈值
			LogLevel:                  gormLogLevel(cfg.LogLevel),
			IgnoreRecordNotFoundError: true, // 忽略ErrRecordNotFound错误
			Colorful:                  false,
		},
	)

	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "mysql":
		dialector = mysql.Open(cfg.MySQLDSN())
	default:
		dialector = sqlite.Open(SQLiteDSN(cfg.DBPath))
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: newLogger})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	if cfg.DBDriver == "sqlite" {
		// SQLite同一时间只允许一个写入者
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("获取数据库连接失败: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// SQLiteDSN 构建开启外键和忙等待的SQLite连接串
func SQLiteDSN(path string) string {
	return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
}

// Migrate 自动迁移模型
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Question{}, &models.Choice{}); err != nil {
		return fmt.Errorf("迁移模型失败: %w", err)
	}
	return nil
}

// SeedSampleData 在数据库为空时创建示例数据，locker不为nil时在分布式锁内执行
func SeedSampleData(ctx context.Context, db *gorm.DB, locker Locker) error {
	seed := func() error {
		return createSampleData(ctx, db)
	}
	if locker == nil {
		return seed()
	}
	return locker.WithLock(ctx, "polls:seed", 10*time.Second, seed)
}

// createSampleData 创建示例数据
func createSampleData(ctx context.Context, db *gorm.DB) error {
	// 检查是否已有数据
	var count int64
	if err := db.WithContext(ctx).Model(&models.Question{}).Count(&count).Error; err != nil {
		return fmt.Errorf("统计问题数量失败: %w", err)
	}
	if count > 0 {
		log.Println("数据库已有数据，跳过示例数据创建")
		return nil
	}

	log.Println("创建示例数据...")

	question := models.Question{
		QuestionText: "What's new?",
		PubDate:      time.Now(),
		Choices: []models.Choice{
			{ChoiceText: "Not much"},
			{ChoiceText: "The sky"},
			{ChoiceText: "Just hacking again"},
		},
	}
	if err := db.WithContext(ctx).Create(&question).Error; err != nil {
		return fmt.Errorf("创建示例问题失败: %w", err)
	}

	log.Println("示例数据创建成功")
	return nil
}

// Ping 检查数据库连接
func Ping(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("数据库未初始化")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭数据库连接
func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("获取数据库连接失败: %v", err)
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Printf("关闭数据库连接失败: %v", err)
		return
	}

	log.Println("数据库连接已关闭")
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		return logger.Info
	case "warn", "info":
		return logger.Warn
	case "error":
		return logger.Error
	default:
		return logger.Silent
	}
}
