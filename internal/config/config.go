package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultMaxUploadBytes caps request bodies, attachments included.
const DefaultMaxUploadBytes int64 = 16 << 20

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr       string `yaml:"listen_addr"`
	Port             string `yaml:"port"`
	DatabaseDriver   string `yaml:"database_driver"`
	DatabasePath     string `yaml:"database_path"`
	SessionSecret    string `yaml:"session_secret"`
	GinMode          string `yaml:"gin_mode"`
	UploadDir        string `yaml:"upload_dir"`
	MaxUploadBytes   int64  `yaml:"max_upload_bytes"`
	LogLevel         string `yaml:"log_level"`
	LogFile          string `yaml:"log_file"`
	SiteName         string `yaml:"site_name"`
	InitUserName     string `yaml:"init_user_name"`
	InitUserEmail    string `yaml:"init_user_email"`
	InitUserPassword string `yaml:"init_user_password"`
}

// Load 从环境变量读取应用配置，并为缺失项提供安全的默认值。
// CONFIG_FILE 指向的 YAML 文件会先被读取，环境变量优先级更高。
func Load() (AppConfig, error) {
	var cfg AppConfig

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		fileCfg, err := readFile(path)
		if err != nil {
			return AppConfig{}, err
		}
		cfg = fileCfg
	}

	cfg.Port = pick(os.Getenv("PORT"), cfg.Port, "8080")
	cfg.ListenAddr = pick(os.Getenv("LISTEN_ADDR"), cfg.ListenAddr, fmt.Sprintf(":%s", cfg.Port))
	cfg.DatabaseDriver = strings.ToLower(pick(os.Getenv("DATABASE_DRIVER"), cfg.DatabaseDriver, "sqlite"))
	cfg.DatabasePath = pick(os.Getenv("DATABASE_PATH"), cfg.DatabasePath, "instance/noir_blog.sqlite3")
	cfg.SessionSecret = pick(os.Getenv("SESSION_SECRET"), cfg.SessionSecret, "noirblog-dev-secret")
	cfg.GinMode = pick(os.Getenv("GIN_MODE"), cfg.GinMode, "release")
	cfg.UploadDir = pick(os.Getenv("UPLOAD_DIR"), cfg.UploadDir, "instance/uploads")
	cfg.LogLevel = strings.ToLower(pick(os.Getenv("LOG_LEVEL"), cfg.LogLevel, "info"))
	cfg.LogFile = pick(os.Getenv("LOG_FILE"), cfg.LogFile, "")
	cfg.SiteName = pick(os.Getenv("SITE_NAME"), cfg.SiteName, "Noir Blog")
	cfg.InitUserName = pick(os.Getenv("INIT_USER_NAME"), cfg.InitUserName, "")
	cfg.InitUserEmail = pick(os.Getenv("INIT_USER_EMAIL"), cfg.InitUserEmail, "")
	cfg.InitUserPassword = pick(os.Getenv("INIT_USER_PASSWORD"), cfg.InitUserPassword, "")

	cfg.MaxUploadBytes = parseBytes(os.Getenv("MAX_UPLOAD_BYTES"), cfg.MaxUploadBytes)

	return cfg, nil
}

func readFile(path string) (AppConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return AppConfig{}, fmt.Errorf("read config file: %w", err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

func pick(env, file, fallback string) string {
	if trimmed := strings.TrimSpace(env); trimmed != "" {
		return trimmed
	}
	if trimmed := strings.TrimSpace(file); trimmed != "" {
		return trimmed
	}
	return fallback
}

func parseBytes(env string, file int64) int64 {
	if trimmed := strings.TrimSpace(env); trimmed != "" {
		if parsed, err := strconv.ParseInt(trimmed, 10, 64); err == nil && parsed > 0 {
			return parsed
		}
	}
	if file > 0 {
		return file
	}
	return DefaultMaxUploadBytes
}
