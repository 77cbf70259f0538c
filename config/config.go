package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config 服务配置
type Config struct {
	ServerPort  string
	Environment string
	LogLevel    string

	// 数据库配置
	DBDriver   string // sqlite 或 mysql
	DBPath     string
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string

	// Redis配置，RedisAddr为空时不使用Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AdminKey       string
	SeedSampleData bool

	// 限流配置
	RateLimitEnabled bool
	GlobalRateLimit  int
	UserRateLimit    int
}

// Load 读取.env文件（可选）和环境变量
func Load() (*Config, error) {
	// .env不存在时忽略
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:     getEnv("SERVER_PORT", "8090"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DBDriver:       strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DBPath:         getEnv("DB_PATH", "polls.db"),
		DBUser:         getEnv("DB_USER", "pollsuser"),
		DBPassword:     getEnv("DB_PASSWORD", "pollspassword"),
		DBHost:         getEnv("DB_HOST", "mysql"),
		DBPort:         getEnv("DB_PORT", "3306"),
		DBName:         getEnv("DB_NAME", "pollsdb"),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		AdminKey:       getEnv("ADMIN_KEY", ""),
		SeedSampleData: getEnv("SEED_SAMPLE_DATA", "false") == "true",

		RateLimitEnabled: getEnv("ENABLE_RATE_LIMIT", "false") == "true",
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.GlobalRateLimit, err = getEnvInt("GLOBAL_RATE_LIMIT", 100); err != nil {
		return nil, err
	}
	if cfg.UserRateLimit, err = getEnvInt("USER_RATE_LIMIT", 10); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查配置是否合法
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("不支持的数据库驱动: %s", c.DBDriver)
	}
	if c.GlobalRateLimit <= 0 || c.UserRateLimit <= 0 {
		return fmt.Errorf("限流速率必须大于0")
	}
	if c.Environment == "production" && c.AdminKey == "" {
		return fmt.Errorf("生产环境必须设置ADMIN_KEY")
	}
	return nil
}

// MySQLDSN 构建MySQL连接串
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// RedisEnabled 是否配置了Redis
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// getEnv 获取环境变量值或使用默认值
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("无效的环境变量 %s: %w", key, err)
	}
	return n, nil
}
