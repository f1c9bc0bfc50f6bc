package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Service
	ServiceRoot       string        // 抽出対象サービスのルートURL
	SessionCookie     string        // 認証済みセッションのCookieヘッダ値（任意）
	DetailMinInterval time.Duration // 詳細エンドポイントの最小呼び出し間隔
	FetchTimeout      time.Duration
	FetchMaxSize      int64

	// Extraction
	DownloadDir             string
	FilenameTemplate        string
	JournalMode             string // html / text / markdown / none
	Quality                 string // "100" 等の数値、"png"、空文字列で無効
	OriginalQuality         bool   // 合成トークンによる解像度制限の解除
	FetchOriginal           bool   // ダウンロード記述子による原寸取得
	IncludePreviews         bool
	PreviewsImages          bool // プレビューを画像MIMEでも出力する
	UseIntermediary         bool
	IntermediaryIDThreshold int64
	ExtractComments         bool
	AutoWatch               bool
	AutoUnwatch             bool

	// Worker
	WorkerInterval      time.Duration
	WorkerMaxConcurrent int
	RunRetentionDays    int

	// Logging
	LogLevel string

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// データベースURLはサブコマンドによっては不要なため、ここでは必須としない。
// 必要なサブコマンドはRequireDatabaseで検証する。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	cfg.ServiceRoot = getEnvString("SERVICE_ROOT", "https://www.deviantart.com")
	cfg.SessionCookie = os.Getenv("SESSION_COOKIE")
	cfg.DetailMinInterval = getEnvDuration("DETAIL_MIN_INTERVAL", 2*time.Second)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 30*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 536870912)

	cfg.DownloadDir = getEnvString("DOWNLOAD_DIR", "./downloads")
	cfg.FilenameTemplate = getEnvString("FILENAME_TEMPLATE", "{username}/{filename}.{extension}")
	cfg.JournalMode = getEnvString("JOURNAL_MODE", "html")
	cfg.Quality = getEnvString("QUALITY", "100")
	cfg.OriginalQuality = getEnvBool("ORIGINAL_QUALITY", false)
	cfg.FetchOriginal = getEnvBool("FETCH_ORIGINAL", true)
	cfg.UseIntermediary = getEnvBool("INTERMEDIARY", true)
	cfg.IntermediaryIDThreshold = getEnvInt64("INTERMEDIARY_ID_THRESHOLD", 790677560)
	cfg.ExtractComments = getEnvBool("EXTRACT_COMMENTS", false)
	cfg.AutoWatch = getEnvBool("AUTO_WATCH", false)
	cfg.AutoUnwatch = getEnvBool("AUTO_UNWATCH", false)

	// INCLUDE_PREVIEWS は true/false に加えて "all" を受け付ける
	previews := strings.ToLower(getEnvString("INCLUDE_PREVIEWS", "false"))
	switch previews {
	case "all":
		cfg.IncludePreviews = true
		cfg.PreviewsImages = true
	case "true", "1":
		cfg.IncludePreviews = true
	}

	cfg.WorkerInterval = getEnvDuration("WORKER_INTERVAL", 1*time.Minute)
	cfg.WorkerMaxConcurrent = getEnvInt("WORKER_MAX_CONCURRENT", 1)
	cfg.RunRetentionDays = getEnvInt("RUN_RETENTION_DAYS", 180)

	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate は読み込んだ値の整合性を検証する。
func (c *Config) validate() error {
	switch c.JournalMode {
	case "html", "text", "markdown", "none":
	default:
		return fmt.Errorf("JOURNAL_MODE が不正です: %q（html / text / markdown / none のいずれか）", c.JournalMode)
	}

	if c.Quality != "" && c.Quality != "png" {
		if _, err := strconv.Atoi(c.Quality); err != nil {
			return fmt.Errorf("QUALITY が不正です: %q（数値または png）", c.Quality)
		}
	}

	if c.DetailMinInterval < 0 {
		return fmt.Errorf("DETAIL_MIN_INTERVAL が不正です: %v", c.DetailMinInterval)
	}

	return nil
}

// RequireDatabase はデータベースURLが設定されていることを検証する。
// worker / serve / migrate サブコマンドの起動時に呼び出す。
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("required environment variables are not set: [DATABASE_URL]")
	}
	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
