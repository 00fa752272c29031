package models

import "time"

// ContactNumber 号码池记录
type ContactNumber struct {
	ID               uint       `gorm:"primarykey" json:"id"`                          // 主键（决定分配顺序）
	Phone            string     `gorm:"uniqueIndex;size:32;not null" json:"phone"`     // 手机号
	Name             string     `gorm:"size:128;not null" json:"name"`                 // 联系人名称
	SourceFile       string     `gorm:"size:512" json:"source_file"`                   // 来源文件
	Industry         *string    `gorm:"index;size:64" json:"industry,omitempty"`       // 行业标签
	Status           string     `gorm:"index;size:32;not null" json:"status"`          // 状态（not_imported/vcf_generated/imported）
	Used             bool       `gorm:"index;not null;default:false" json:"used"`      // 是否已消费
	UsedAt           *time.Time `json:"used_at,omitempty"`                             // 消费时间
	UsedBatch        *string    `gorm:"index;size:128" json:"used_batch,omitempty"`    // 消费批次
	ImportedDeviceID *string    `gorm:"size:128" json:"imported_device_id,omitempty"`  // 导入设备
	ReservationToken *string    `gorm:"index;size:64" json:"reservation_token,omitempty"` // 占用令牌
	ReservedAt       *time.Time `json:"reserved_at,omitempty"`                         // 占用时间
	CreatedAt        time.Time  `gorm:"index" json:"created_at"`                       // 创建时间
	UpdatedAt        time.Time  `json:"updated_at"`                                    // 更新时间
}

// TableName 指定表名
func (ContactNumber) TableName() string {
	return "contact_numbers"
}
