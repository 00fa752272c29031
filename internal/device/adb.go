package device

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path"
	"strings"
	"time"

	"github.com/contact-dispatch/internal/config"
	"github.com/contact-dispatch/internal/logger"
)

const (
	defaultADBPath        = "adb"
	defaultRemoteDir      = "/sdcard/Download"
	defaultCommandTimeout = 60 * time.Second
)

// 命令输出中的失败标记
var failureIndicators = []string{
	"Error",
	"Exception",
	"Activity not found",
	"Permission denied",
	"No such file",
	"device offline",
	"not found",
}

// Runner 执行外部命令并返回合并输出
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner 基于 os/exec 的命令执行器
type ExecRunner struct{}

// Run 执行命令
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	output, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	return string(output), err
}

// ADB 设备命令封装
type ADB struct {
	path      string
	remoteDir string
	timeout   time.Duration
	runner    Runner
}

// NewADB 根据配置创建 ADB 封装，runner 为空时使用 ExecRunner
func NewADB(cfg config.DeviceConfig, runner Runner) *ADB {
	adbPath := strings.TrimSpace(cfg.ADBPath)
	if adbPath == "" {
		adbPath = defaultADBPath
	}
	remoteDir := strings.TrimRight(strings.TrimSpace(cfg.RemoteDir), "/")
	if remoteDir == "" {
		remoteDir = defaultRemoteDir
	}
	timeout := cfg.CommandTimeout()
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &ADB{path: adbPath, remoteDir: remoteDir, timeout: timeout, runner: runner}
}

// RemotePath 返回文件在设备上的路径
func (a *ADB) RemotePath(localPath string) string {
	return path.Join(a.remoteDir, path.Base(strings.ReplaceAll(localPath, "\\", "/")))
}

// Push 推送本地文件到设备
func (a *ADB) Push(ctx context.Context, deviceID, localPath, remotePath string) error {
	if _, err := a.Shell(ctx, deviceID, "mkdir", "-p", path.Dir(remotePath)); err != nil {
		logger.Debugw("adb_mkdir_failed", "device_id", deviceID, "dir", path.Dir(remotePath), "error", err)
	}
	output, err := a.run(ctx, "-s", deviceID, "push", localPath, remotePath)
	if err != nil {
		return fmt.Errorf("adb push failed: %w: %s", err, strings.TrimSpace(output))
	}
	return nil
}

// Shell 在设备上执行 shell 命令
func (a *ADB) Shell(ctx context.Context, deviceID string, args ...string) (string, error) {
	full := append([]string{"-s", deviceID, "shell"}, args...)
	output, err := a.run(ctx, full...)
	if err != nil {
		return output, fmt.Errorf("adb shell failed: %w: %s", err, strings.TrimSpace(output))
	}
	return output, nil
}

func (a *ADB) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	output, err := a.runner.Run(ctx, a.path, args...)
	if err == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = ctx.Err()
	}
	return output, err
}

// detectFailure 在命令输出中查找失败标记
func detectFailure(output string) (string, bool) {
	for _, indicator := range failureIndicators {
		if strings.Contains(output, indicator) {
			return indicator, true
		}
	}
	return "", false
}
