package models

import "time"

// ImportSession 导入会话，记录一次批次到设备的导入尝试
type ImportSession struct {
	ID            uint       `gorm:"primarykey" json:"id"`                      // 主键
	BatchID       string     `gorm:"index;size:128;not null" json:"batch_id"`   // 批次号
	DeviceID      string     `gorm:"index;size:128;not null" json:"device_id"`  // 设备ID
	Status        string     `gorm:"index;size:32;not null" json:"status"`      // 状态（pending/success/failed）
	ImportedCount int        `gorm:"not null;default:0" json:"imported_count"`  // 成功数量
	FailedCount   int        `gorm:"not null;default:0" json:"failed_count"`    // 失败数量
	StartedAt     time.Time  `gorm:"index" json:"started_at"`                   // 开始时间
	FinishedAt    *time.Time `json:"finished_at,omitempty"`                     // 结束时间
	ErrorMessage  *string    `gorm:"type:text" json:"error_message,omitempty"`  // 错误信息
	Industry      *string    `gorm:"size:64" json:"industry,omitempty"`         // 行业标签
}

// TableName 指定表名
func (ImportSession) TableName() string {
	return "import_sessions"
}
