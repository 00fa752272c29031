package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/contact-dispatch/internal/constants"
	"github.com/contact-dispatch/internal/logger"
)

// ImportStrategy 导入脚本表项，Fallback 为失败后改用的脚本
type ImportStrategy struct {
	Key          string
	Collaborator ImportCollaborator
	Fallback     string
}

// ImportRouter 按脚本键分派导入，未知脚本键走通用导入
type ImportRouter struct {
	strategies []ImportStrategy
	generic    ImportCollaborator
}

// NewImportRouter 创建导入路由。huawei 为空时华为增强脚本直接使用通用导入。
func NewImportRouter(generic, huawei ImportCollaborator) *ImportRouter {
	router := &ImportRouter{generic: generic}
	router.strategies = []ImportStrategy{
		{Key: constants.ScriptKeyAuto, Collaborator: generic},
		{Key: constants.ScriptKeyMultiBrand, Collaborator: generic},
	}
	if huawei != nil {
		router.strategies = append(router.strategies, ImportStrategy{
			Key:          constants.ScriptKeyHuaweiEnhanced,
			Collaborator: huawei,
			Fallback:     constants.ScriptKeyMultiBrand,
		})
	} else {
		router.strategies = append(router.strategies, ImportStrategy{
			Key:          constants.ScriptKeyHuaweiEnhanced,
			Collaborator: generic,
		})
	}
	return router
}

// Keys 返回支持的脚本键
func (r *ImportRouter) Keys() []string {
	keys := make([]string, 0, len(r.strategies))
	for _, strategy := range r.strategies {
		keys = append(keys, strategy.Key)
	}
	return keys
}

// Resolve 解析脚本键，未知或为空时返回通用导入
func (r *ImportRouter) Resolve(scriptKey string) ImportStrategy {
	if strategy, ok := r.lookup(scriptKey); ok {
		return strategy
	}
	return ImportStrategy{Key: constants.ScriptKeyAuto, Collaborator: r.generic}
}

func (r *ImportRouter) lookup(scriptKey string) (ImportStrategy, bool) {
	key := strings.ToLower(strings.TrimSpace(scriptKey))
	for _, strategy := range r.strategies {
		if strategy.Key == key {
			return strategy, true
		}
	}
	return ImportStrategy{}, false
}

// Import 执行一次导入尝试。主脚本报错或报告失败时沿回退边执行一次回退脚本。
func (r *ImportRouter) Import(ctx context.Context, scriptKey, deviceID string, artifact Artifact) (ImportOutcome, error) {
	strategy := r.Resolve(scriptKey)
	outcome, err := callCollaborator(ctx, strategy.Collaborator, deviceID, artifact)
	outcome.Strategy = strategy.Key
	if (err == nil && outcome.Success) || strategy.Fallback == "" {
		return outcome, err
	}

	fallback, ok := r.lookup(strategy.Fallback)
	if !ok {
		return outcome, err
	}
	primaryMessage := outcome.Message
	if err != nil {
		primaryMessage = err.Error()
	}
	logger.Warnw("import_router_fallback",
		"device_id", deviceID,
		"batch_id", artifact.BatchID,
		"from", strategy.Key,
		"to", fallback.Key,
		"reason", primaryMessage,
	)

	fallbackOutcome, fallbackErr := callCollaborator(ctx, fallback.Collaborator, deviceID, artifact)
	fallbackOutcome.Strategy = fallback.Key
	if fallbackErr == nil && primaryMessage != "" {
		fallbackOutcome.Message = joinMessage(fmt.Sprintf("%s failed: %s", strategy.Key, primaryMessage), fallbackOutcome.Message)
	}
	return fallbackOutcome, fallbackErr
}

func joinMessage(first, second string) string {
	first = strings.TrimSpace(first)
	second = strings.TrimSpace(second)
	switch {
	case first == "":
		return second
	case second == "":
		return first
	default:
		return first + "; " + second
	}
}
