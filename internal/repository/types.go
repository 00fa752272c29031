package repository

// ContactNumberListFilter 号码列表过滤条件
type ContactNumberListFilter struct {
	Page     int
	PageSize int
	Status   string
	Industry string
	Search   string
	Used     *bool
}

// VcfBatchListFilter 批次列表过滤条件
type VcfBatchListFilter struct {
	Page     int
	PageSize int
	DeviceID string
	Industry string
}

// ImportSessionListFilter 会话列表过滤条件
type ImportSessionListFilter struct {
	Page     int
	PageSize int
	DeviceID string
	BatchID  string
	Status   string
	Industry string
}

// NumberStats 号码池统计
type NumberStats struct {
	Total      int64            `json:"total"`
	Used       int64            `json:"used"`
	Reserved   int64            `json:"reserved"`
	ByStatus   map[string]int64 `json:"by_status"`
	ByIndustry map[string]int64 `json:"by_industry"`
}
