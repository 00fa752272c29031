package admin

import "github.com/contact-dispatch/internal/provider"

// Handler 管理端接口处理器入口
// 说明：号码池、分配、执行、会话与设备接口均挂在该处理器上。
type Handler struct {
	*provider.Container
}

// New 创建管理端处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
