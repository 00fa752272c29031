package models

import "time"

// NumberReservation 号码区间占用记录
type NumberReservation struct {
	ID        uint      `gorm:"primarykey" json:"id"`                          // 主键
	Token     string    `gorm:"uniqueIndex;size:64;not null" json:"token"`     // 占用令牌
	DeviceID  string    `gorm:"index;size:128;not null" json:"device_id"`      // 设备ID
	StartID   uint      `gorm:"not null" json:"start_id"`                      // 区间起点
	EndID     uint      `gorm:"not null" json:"end_id"`                        // 区间终点
	Count     int       `gorm:"not null" json:"count"`                         // 实际占用数量
	Status    string    `gorm:"index;size:32;not null" json:"status"`          // 状态（active/committed/released）
	BatchID   *string   `gorm:"size:128" json:"batch_id,omitempty"`            // 提交时的批次号
	CreatedAt time.Time `gorm:"index" json:"created_at"`                       // 创建时间
	UpdatedAt time.Time `json:"updated_at"`                                    // 更新时间
}

// TableName 指定表名
func (NumberReservation) TableName() string {
	return "number_reservations"
}
