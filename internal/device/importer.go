package device

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/contact-dispatch/internal/logger"
	"github.com/contact-dispatch/internal/service"
)

// 华为设备依次尝试的联系人组件
var huaweiComponents = []string{
	"com.huawei.contacts/.activities.PeopleActivity",
	"com.android.contacts/.activities.PeopleActivity",
	"com.huawei.phoneservice/.contact.ContactsActivity",
}

// Importer 推送 VCF 后通过 VIEW Intent 触发系统导入
type Importer struct {
	adb        *ADB
	components []string
}

// NewImporter 通用导入，由系统选择处理 VCF 的应用
func NewImporter(adb *ADB) *Importer {
	return &Importer{adb: adb}
}

// NewHuaweiImporter 华为增强导入，依次指定联系人组件
func NewHuaweiImporter(adb *ADB) *Importer {
	return &Importer{adb: adb, components: huaweiComponents}
}

// ImportToDevice 推送文件并启动导入
func (i *Importer) ImportToDevice(ctx context.Context, deviceID string, artifact service.Artifact) (service.ImportOutcome, error) {
	if _, err := os.Stat(artifact.Path); err != nil {
		return service.ImportOutcome{Message: fmt.Sprintf("vcf file not found: %s", artifact.Path)}, nil
	}
	remotePath := i.adb.RemotePath(artifact.Path)
	if err := i.adb.Push(ctx, deviceID, artifact.Path, remotePath); err != nil {
		return service.ImportOutcome{Message: err.Error(), FailedCount: artifact.TotalCount}, nil
	}

	components := i.components
	if len(components) == 0 {
		components = []string{""}
	}
	var reasons []string
	for _, component := range components {
		output, err := i.adb.Shell(ctx, deviceID, viewIntentArgs(remotePath, component)...)
		if err == nil {
			if indicator, failed := detectFailure(output); failed {
				err = errors.New(indicator)
			}
		}
		if err == nil {
			logger.Infow("device_import_started",
				"device_id", deviceID,
				"batch_id", artifact.BatchID,
				"component", component,
			)
			return service.ImportOutcome{
				Success:       true,
				Message:       "import intent started",
				ImportedCount: artifact.TotalCount,
			}, nil
		}
		label := component
		if label == "" {
			label = "default"
		}
		reasons = append(reasons, fmt.Sprintf("%s: %v", label, err))
	}
	return service.ImportOutcome{
		Message:     strings.Join(reasons, "; "),
		FailedCount: artifact.TotalCount,
	}, nil
}

func viewIntentArgs(remotePath, component string) []string {
	args := []string{"am", "start", "-a", "android.intent.action.VIEW", "-t", "text/vcard"}
	if component != "" {
		args = append(args, "-n", component)
	}
	return append(args, "-d", "file://"+remotePath)
}

// NoopImporter 空导入，用于演练
type NoopImporter struct{}

// ImportToDevice 直接报告成功
func (NoopImporter) ImportToDevice(ctx context.Context, deviceID string, artifact service.Artifact) (service.ImportOutcome, error) {
	logger.Infow("device_import_noop", "device_id", deviceID, "batch_id", artifact.BatchID, "total", artifact.TotalCount)
	return service.ImportOutcome{Success: true, Message: "noop", ImportedCount: artifact.TotalCount}, nil
}
