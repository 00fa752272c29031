package models

import "time"

// VcfBatch VCF 批次表，创建后不可变
type VcfBatch struct {
	ID            uint      `gorm:"primarykey" json:"id"`                            // 主键
	BatchID       string    `gorm:"uniqueIndex;size:128;not null" json:"batch_id"`   // 批次号
	DeviceID      string    `gorm:"index;size:128;not null" json:"device_id"`        // 目标设备
	VcfFilePath   string    `gorm:"size:1024" json:"vcf_file_path"`                  // VCF 文件路径
	SourceStartID *uint     `json:"source_start_id,omitempty"`                       // 来源起始号码ID
	SourceEndID   *uint     `json:"source_end_id,omitempty"`                         // 来源结束号码ID
	Industry      *string   `gorm:"size:64" json:"industry,omitempty"`               // 行业标签
	TotalCount    int       `gorm:"not null" json:"total_count"`                     // 号码数量
	CreatedAt     time.Time `gorm:"index" json:"created_at"`                         // 创建时间
}

// TableName 指定表名
func (VcfBatch) TableName() string {
	return "vcf_batches"
}

// VcfBatchMember 批次与号码的成员映射
type VcfBatchMember struct {
	BatchID  string `gorm:"primaryKey;size:128" json:"batch_id"` // 批次号
	NumberID uint   `gorm:"primaryKey;autoIncrement:false;index" json:"number_id"` // 号码ID
}

// TableName 指定表名
func (VcfBatchMember) TableName() string {
	return "vcf_batch_numbers"
}
