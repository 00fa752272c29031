package constants

// 号码池状态常量
const (
	NumberStatusNotImported  = "not_imported"
	NumberStatusVcfGenerated = "vcf_generated"
	NumberStatusImported     = "imported"
)

// 导入会话状态常量
const (
	SessionStatusPending = "pending"
	SessionStatusSuccess = "success"
	SessionStatusFailed  = "failed"
)

// 号码占用状态常量
const (
	ReservationStatusActive    = "active"
	ReservationStatusCommitted = "committed"
	ReservationStatusReleased  = "released"
)

// 导入脚本常量
const (
	ScriptKeyAuto           = "auto"
	ScriptKeyMultiBrand     = "multi_brand"
	ScriptKeyHuaweiEnhanced = "huawei_enhanced"
)

// 消费标记策略常量
const (
	ConsumptionMerged   = "merged"
	ConsumptionPerRange = "per_range"
)

// 设备驱动常量
const (
	DeviceDriverADB  = "adb"
	DeviceDriverNoop = "noop"
)

// 批次相关常量
const (
	BatchIDPrefix      = "vcf"
	BatchEmptyRangeTag = "_empty_"
	RunIDPrefix        = "run"
)

// 号码文本解析常量
const (
	DefaultContactNamePrefix = "联系人"
	MaxNumberImportLines     = 200000
)

// 队列与任务常量
const (
	QueueDefault            = "default"
	TaskDevicePendingImport = "device:pending_import"
)

// 缓存键常量
const (
	CacheKeyNumberStats   = "numbers:stats"
	LockKeyAllocation     = "lock:allocation"
	LockKeyDevicePending  = "lock:device_pending"
	RateLimitKeyExecution = "ratelimit:execution"
)
