package router

import (
	"fmt"
	"sort"
	"strings"

	"github.com/contact-dispatch/internal/cache"
	"github.com/contact-dispatch/internal/config"
	adminhandlers "github.com/contact-dispatch/internal/http/handlers/admin"
	"github.com/contact-dispatch/internal/http/response"
	"github.com/contact-dispatch/internal/logger"
	"github.com/contact-dispatch/internal/provider"

	"github.com/gin-gonic/gin"
)

const apiPrefix = "/api/v1"

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "cd"
	}
	executeRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:execute", redisPrefix),
		WindowSeconds: cfg.Security.ExecuteRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.ExecuteRateLimit.MaxRequests,
		MessageKey:    "error.rate_limited",
	}
	allocateRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:allocate", redisPrefix),
		WindowSeconds: cfg.Security.ExecuteRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.ExecuteRateLimit.MaxRequests,
		MessageKey:    "error.rate_limited",
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	apiV1 := r.Group(apiPrefix)
	if cfg.JWT.Enabled {
		apiV1.Use(OperatorJWTMiddleware(cfg.JWT.SecretKey, cfg.JWT.Issuer))
	}
	{
		// 号码池
		apiV1.POST("/numbers/import", adminHandler.ImportNumbers)
		apiV1.GET("/numbers", adminHandler.GetNumbers)
		apiV1.GET("/numbers/stats", adminHandler.GetNumberStats)

		// 区间分配
		apiV1.POST("/allocations/conflicts", adminHandler.CheckConflicts)
		apiV1.POST("/allocations/next-range", adminHandler.NextRange)
		apiV1.POST("/allocations", RateLimitMiddleware(cache.Client(), allocateRule, KeyByIPAndJSONField("device_id")), adminHandler.Allocate)

		// 执行导入
		apiV1.POST("/executions", RateLimitMiddleware(cache.Client(), executeRule, KeyByOperatorOrIP), adminHandler.Execute)

		// 批次
		apiV1.GET("/batches", adminHandler.GetBatches)
		apiV1.GET("/batches/:batch_id", adminHandler.GetBatch)

		// 会话
		apiV1.GET("/sessions", adminHandler.GetSessions)
		apiV1.POST("/sessions/reimport", adminHandler.ReimportSessions)
		apiV1.POST("/sessions/:id/revert", adminHandler.RevertSession)
		apiV1.PUT("/sessions/:id/industry", adminHandler.UpdateSessionIndustry)

		// 设备
		apiV1.POST("/devices/:device_id/pending/process", adminHandler.ProcessPending)
		apiV1.POST("/devices/:device_id/pending/enqueue", adminHandler.EnqueuePending)
		apiV1.GET("/devices/:device_id/bindings", adminHandler.GetDeviceBindings)

		apiV1.GET("/routes", func(ctx *gin.Context) {
			response.Success(ctx, buildRouteCatalog(r))
		})
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}

type routeCatalogItem struct {
	Module string `json:"module"`
	Method string `json:"method"`
	Path   string `json:"path"`
}

func buildRouteCatalog(engine *gin.Engine) []routeCatalogItem {
	if engine == nil {
		return []routeCatalogItem{}
	}

	routes := engine.Routes()
	seen := make(map[string]struct{}, len(routes))
	items := make([]routeCatalogItem, 0, len(routes))

	for _, item := range routes {
		method := strings.ToUpper(strings.TrimSpace(item.Method))
		if method == "" || method == "OPTIONS" || method == "HEAD" {
			continue
		}
		if !strings.HasPrefix(item.Path, apiPrefix+"/") {
			continue
		}
		key := method + ":" + item.Path
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		items = append(items, routeCatalogItem{
			Module: deriveRouteModule(item.Path),
			Method: method,
			Path:   item.Path,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Module == items[j].Module {
			if items[i].Path == items[j].Path {
				return items[i].Method < items[j].Method
			}
			return items[i].Path < items[j].Path
		}
		return items[i].Module < items[j].Module
	})

	return items
}

func deriveRouteModule(path string) string {
	normalized := strings.Trim(strings.TrimPrefix(strings.TrimSpace(path), apiPrefix), "/")
	if normalized == "" {
		return "system"
	}
	return strings.Split(normalized, "/")[0]
}
