package app

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/contact-dispatch/internal/config"
	"github.com/contact-dispatch/internal/models"
)

// InitDatabase 打开数据库并执行迁移，sqlite 文件目录不存在时自动创建
func InitDatabase(cfg *config.Config) error {
	driver := strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	if driver == "" || driver == "sqlite" {
		if dir := sqliteDir(cfg.Database.DSN); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
	}
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}, strings.EqualFold(cfg.Server.Mode, "debug")); err != nil {
		return err
	}
	return models.AutoMigrate()
}

func sqliteDir(dsn string) string {
	path := strings.TrimPrefix(strings.TrimSpace(dsn), "file:")
	if idx := strings.Index(path, "?"); idx >= 0 {
		path = path[:idx]
	}
	if path == "" || path == ":memory:" || strings.Contains(dsn, "mode=memory") {
		return ""
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return ""
	}
	return dir
}
