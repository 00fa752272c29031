package queue

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/contact-dispatch/internal/config"
	"github.com/contact-dispatch/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// DefaultQueue 默认队列名称
	DefaultQueue = constants.QueueDefault
)

var (
	// ErrQueueDisabled 队列未启用
	ErrQueueDisabled = errors.New("queue disabled")
	// ErrPayloadInvalid 任务载荷无效
	ErrPayloadInvalid = errors.New("invalid task payload")
)

// Client 队列客户端封装
type Client struct {
	client       *asynq.Client
	enabled      bool
	defaultQueue string
}

// NewClient 创建队列客户端
func NewClient(cfg *config.QueueConfig) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		return &Client{enabled: false, defaultQueue: DefaultQueue}, nil
	}
	opt := buildRedisOpt(cfg)
	client := asynq.NewClient(opt)
	return &Client{
		client:       client,
		enabled:      true,
		defaultQueue: DefaultQueue,
	}, nil
}

// Enabled 判断是否启用
func (c *Client) Enabled() bool {
	return c != nil && c.enabled && c.client != nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueDevicePendingImport 推送设备待导入任务，同一设备在 unique 窗口内只保留一个任务
func (c *Client) EnqueueDevicePendingImport(payload DevicePendingImportPayload, unique time.Duration, opts ...asynq.Option) (string, error) {
	if !c.Enabled() {
		return "", ErrQueueDisabled
	}
	if strings.TrimSpace(payload.DeviceID) == "" {
		return "", ErrPayloadInvalid
	}
	task, err := NewDevicePendingImportTask(payload)
	if err != nil {
		return "", err
	}
	options := []asynq.Option{asynq.Queue(c.defaultQueue), asynq.MaxRetry(0)}
	if unique > 0 {
		options = append(options, asynq.Unique(unique))
	}
	options = append(options, opts...)
	info, err := c.client.Enqueue(task, options...)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

// BuildServerConfig 生成队列服务配置
func BuildServerConfig(cfg *config.QueueConfig) (asynq.RedisClientOpt, asynq.Config) {
	opt := buildRedisOpt(cfg)
	concurrency := 1
	if cfg != nil && cfg.Concurrency > 0 {
		concurrency = cfg.Concurrency
	}
	queues := map[string]int{DefaultQueue: 1}
	if cfg != nil && len(cfg.Queues) > 0 {
		queues = cfg.Queues
	}
	return opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      queues,
	}
}

func buildRedisOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	host := "127.0.0.1"
	port := 6379
	password := ""
	db := 0
	if cfg != nil {
		if strings.TrimSpace(cfg.Host) != "" {
			host = strings.TrimSpace(cfg.Host)
		}
		if cfg.Port > 0 {
			port = cfg.Port
		}
		password = cfg.Password
		db = cfg.DB
	}
	return asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	}
}
