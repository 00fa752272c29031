package provider

import (
	"strings"

	"github.com/contact-dispatch/internal/cache"
	"github.com/contact-dispatch/internal/config"
	"github.com/contact-dispatch/internal/constants"
	"github.com/contact-dispatch/internal/device"
	"github.com/contact-dispatch/internal/logger"
	"github.com/contact-dispatch/internal/models"
	"github.com/contact-dispatch/internal/queue"
	"github.com/contact-dispatch/internal/repository"
	"github.com/contact-dispatch/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client

	// Repositories
	ContactNumberRepo repository.ContactNumberRepository
	VcfBatchRepo      repository.VcfBatchRepository
	ImportSessionRepo repository.ImportSessionRepository
	ReservationRepo   repository.NumberReservationRepository

	// Device
	GenericImporter service.ImportCollaborator
	HuaweiImporter  service.ImportCollaborator
	DeviceMetrics   service.DeviceMetrics

	// Services
	BindingTracker       *service.BindingTracker
	NumberPoolService    *service.NumberPoolService
	BatchPackager        *service.BatchPackager
	SessionLedger        *service.SessionLedger
	ImportRouter         *service.ImportRouter
	Verifier             *service.Verifier
	ImportExecutor       *service.ImportExecutor
	SessionImportService *service.SessionImportService
	AllocationService    *service.AllocationService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化设备适配
	c.initDevice()

	// 3. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.ContactNumberRepo = repository.NewContactNumberRepository(db)
	c.VcfBatchRepo = repository.NewVcfBatchRepository(db)
	c.ImportSessionRepo = repository.NewImportSessionRepository(db)
	c.ReservationRepo = repository.NewNumberReservationRepository(db)
}

func (c *Container) initDevice() {
	driver := strings.ToLower(strings.TrimSpace(c.Config.Device.Driver))
	if driver == constants.DeviceDriverNoop {
		c.GenericImporter = device.NoopImporter{}
		logger.Infow("provider_device_driver", "driver", driver)
		return
	}
	adb := device.NewADB(c.Config.Device, nil)
	c.GenericImporter = device.NewImporter(adb)
	c.HuaweiImporter = device.NewHuaweiImporter(adb)
	c.DeviceMetrics = device.NewMetrics(adb)
	logger.Infow("provider_device_driver", "driver", constants.DeviceDriverADB, "adb_path", c.Config.Device.ADBPath)
}

func (c *Container) initServices() {
	importCfg := c.Config.Import
	c.BindingTracker = service.NewBindingTracker()
	c.NumberPoolService = service.NewNumberPoolService(c.ContactNumberRepo, c.ReservationRepo, c.VcfBatchRepo)
	c.BatchPackager = service.NewBatchPackager(c.VcfBatchRepo, c.ContactNumberRepo, importCfg.ArtifactDir)
	c.SessionLedger = service.NewSessionLedger(c.ImportSessionRepo, c.VcfBatchRepo, c.ContactNumberRepo)
	c.ImportRouter = service.NewImportRouter(c.GenericImporter, c.HuaweiImporter)
	c.Verifier = service.NewVerifier(c.DeviceMetrics)
	c.ImportExecutor = service.NewImportExecutor(c.BatchPackager, c.ImportRouter, c.Verifier, c.SessionLedger, c.BindingTracker)
	c.SessionImportService = service.NewSessionImportService(c.SessionLedger, c.VcfBatchRepo, c.ImportRouter, c.Verifier, c.NumberPoolService, c.BindingTracker, importCfg.PendingLimit)
	c.AllocationService = service.NewAllocationService(c.NumberPoolService, c.BatchPackager, c.SessionLedger, c.BindingTracker, c.ImportExecutor, importCfg.AllocationLockTTL())
}

// ExecuteOptions 按配置生成执行参数，调用方可覆盖
func (c *Container) ExecuteOptions() service.ExecuteOptions {
	importCfg := c.Config.Import
	return service.ExecuteOptions{
		Consumption:         importCfg.ConsumptionStrategy,
		PerDeviceMaxRetries: importCfg.PerDeviceMaxRetries,
		PerDeviceRetryDelay: importCfg.PerDeviceRetryDelay(),
		InterDeviceDelay:    importCfg.InterDeviceDelay(),
		Strict:              importCfg.StrictVerify,
		ScriptKey:           importCfg.DefaultScriptKey,
	}
}

// PendingOptions 按配置生成待导入处理参数
func (c *Container) PendingOptions() service.PendingOptions {
	return service.PendingOptions{
		ScriptKey: c.Config.Import.DefaultScriptKey,
		Limit:     c.Config.Import.PendingLimit,
		Strict:    c.Config.Import.StrictVerify,
	}
}
