package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	// HTTP 服务
	ServerAddr       string
	JWTSecret        string
	JWTTTL           time.Duration
	APIClientID      string
	APISecretHash    string // bcrypt 哈希，为空时不签发令牌
	PipelineTimeout  time.Duration
	MaxConcurrentJob int

	// 搜索 API
	SearchAPIURL     string
	SearchTimeout    time.Duration
	SearchCacheTTL   time.Duration
	DefaultQuality   int
	SelectorMax      int
	SelectorRetryGap time.Duration
	SelectorTTL      time.Duration

	// 目录
	CacheDir      string // 下载的原始音频和元数据缓存
	WorkDir       string // 转换/合成产物
	ScreenshotDir string // 调试截图
	MSSTResultDir string // 为空时向上查找 MSST-WebUI-zluda/results

	// 分离 WebUI (MSST)
	SeparationURL         string
	SeparationInterval    time.Duration
	SeparationTimeout     time.Duration
	SeparationUploadDelay time.Duration

	// 变声 / TTS WebUI (Gradio)
	ConversionURL      string
	ConversionModel    string
	TTSVoice           string
	OutputPollAttempts int
	OutputPollInterval time.Duration
	ModelLoadDelay     time.Duration
	SubmitSettleDelay  time.Duration

	// Chrome
	ChromePath     string
	ChromeHeadless bool
	ElementTimeout time.Duration

	// Napcat 机器人桥
	NapcatURL   string
	NapcatToken string

	// Redis配置
	RedisEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MySQL
	DBEnabled  bool
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// MinIO
	MinioEnabled   bool
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MinioRegion    string
	MinioURLTTL    time.Duration

	// 日志
	LogLevel      string
	LogFormat     string
	LogFile       string
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration 接受 "4s"、"5m" 这类写法，纯数字按秒处理
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() 不会覆盖已存在的环境变量
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on existing environment variables and defaults.")
	}

	cacheDir := getEnv("CACHE_DIR", "cache")

	return &Config{
		ServerAddr:       getEnv("SERVER_ADDR", ":5211"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		JWTTTL:           getEnvDuration("JWT_TTL", 24*time.Hour),
		APIClientID:      getEnv("API_CLIENT_ID", "bot"),
		APISecretHash:    os.Getenv("API_SECRET_HASH"),
		PipelineTimeout:  getEnvDuration("PIPELINE_TIMEOUT", 20*time.Minute),
		MaxConcurrentJob: getEnvInt("MAX_CONCURRENT_JOBS", 2),

		SearchAPIURL:     getEnv("SEARCH_API_URL", "https://api.vkeys.cn"),
		SearchTimeout:    getEnvDuration("SEARCH_TIMEOUT", 10*time.Second),
		SearchCacheTTL:   getEnvDuration("SEARCH_CACHE_TTL", 24*time.Hour),
		DefaultQuality:   getEnvInt("DEFAULT_QUALITY", 9),
		SelectorMax:      getEnvInt("SELECTOR_MAX", 10),
		SelectorRetryGap: getEnvDuration("SELECTOR_RETRY_GAP", 3*time.Second),
		SelectorTTL:      getEnvDuration("SELECTOR_TTL", time.Hour),

		CacheDir:      cacheDir,
		WorkDir:       getEnv("WORK_DIR", filepath.Join(cacheDir, "work")),
		ScreenshotDir: getEnv("SCREENSHOT_DIR", filepath.Join(cacheDir, "screenshots")),
		MSSTResultDir: os.Getenv("MSST_RESULTS_DIR"),

		SeparationURL:         getEnv("SEPARATION_URL", "http://127.0.0.1:7861"),
		SeparationInterval:    getEnvDuration("SEPARATION_INTERVAL", 4*time.Second),
		SeparationTimeout:     getEnvDuration("SEPARATION_TIMEOUT", 300*time.Second),
		SeparationUploadDelay: getEnvDuration("SEPARATION_UPLOAD_DELAY", 8*time.Second),

		ConversionURL:      getEnv("CONVERSION_URL", "http://127.0.0.1:7860"),
		ConversionModel:    getEnv("CONVERSION_MODEL", "jo.pth"),
		TTSVoice:           getEnv("TTS_VOICE", "女"),
		OutputPollAttempts: getEnvInt("OUTPUT_POLL_ATTEMPTS", 60),
		OutputPollInterval: getEnvDuration("OUTPUT_POLL_INTERVAL", time.Second),
		ModelLoadDelay:     getEnvDuration("MODEL_LOAD_DELAY", 5*time.Second),
		SubmitSettleDelay:  getEnvDuration("SUBMIT_SETTLE_DELAY", 10*time.Second),

		ChromePath:     os.Getenv("CHROME_PATH"),
		ChromeHeadless: getEnvBool("CHROME_HEADLESS", true),
		ElementTimeout: getEnvDuration("ELEMENT_TIMEOUT", 20*time.Second),

		NapcatURL:   getEnv("NAPCAT_URL", "http://127.0.0.1:4998"),
		NapcatToken: os.Getenv("NAPCAT_TOKEN"),

		RedisEnabled:  getEnvBool("REDIS_ENABLED", false),
		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""), // 默认无密码
		RedisDB:       getEnvInt("REDIS_DB", 0),

		DBEnabled:  getEnvBool("DB_ENABLED", false),
		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "coverfm"),

		MinioEnabled:   getEnvBool("MINIO_ENABLED", false),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "coverfm"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioURLTTL:    getEnvDuration("MINIO_URL_TTL", 7*24*time.Hour),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		LogFile:       getEnv("LOG_FILE", filepath.Join("logs", "coverfm.log")),
		LogMaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
		LogMaxAge:     getEnvInt("LOG_MAX_AGE", 30),
	}
}
