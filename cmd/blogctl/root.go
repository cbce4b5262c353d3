package main

import (
	"github.com/noirblog/internal/config"
	"github.com/noirblog/internal/db"
	"github.com/noirblog/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	flagDriver string
	flagDSN    string
)

// RootCmd 是 blogctl 的入口命令，数据库参数默认读取与服务端相同的配置。
var RootCmd = &cobra.Command{
	Use:           "blogctl",
	Short:         "Maintenance commands for the Noir Blog database",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&flagDriver, "driver", "", "database driver (sqlite or postgres); defaults to DATABASE_DRIVER")
	RootCmd.PersistentFlags().StringVar(&flagDSN, "dsn", "", "database path or DSN; defaults to DATABASE_PATH")
}

type environment struct {
	cfg    config.AppConfig
	db     *gorm.DB
	logger zerolog.Logger
}

// openEnvironment 打开数据库并执行迁移，所有子命令共用。
func openEnvironment() (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flagDriver != "" {
		cfg.DatabaseDriver = flagDriver
	}
	if flagDSN != "" {
		cfg.DatabasePath = flagDSN
	}

	gdb, err := db.Open(db.Options{Driver: cfg.DatabaseDriver, DSN: cfg.DatabasePath, Silent: true})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(gdb); err != nil {
		return nil, err
	}

	return &environment{
		cfg:    cfg,
		db:     gdb,
		logger: logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile}),
	}, nil
}

func (e *environment) close() {
	if sqlDB, err := e.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
