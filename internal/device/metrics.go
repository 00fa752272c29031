package device

import (
	"bufio"
	"context"
	"strings"
)

const rawContactsURI = "content://com.android.contacts/raw_contacts"

// Metrics 通过 content provider 统计设备联系人数量
type Metrics struct {
	adb *ADB
}

// NewMetrics 创建设备指标读取器
func NewMetrics(adb *ADB) *Metrics {
	return &Metrics{adb: adb}
}

// ContactCount 返回未删除的原始联系人数量
func (m *Metrics) ContactCount(ctx context.Context, deviceID string) (int, error) {
	output, err := m.adb.Shell(ctx, deviceID,
		"content", "query",
		"--uri", rawContactsURI,
		"--projection", "_id",
		"--where", "deleted=0",
	)
	if err != nil {
		return 0, err
	}
	return countRows(output), nil
}

func countRows(output string) int {
	count := 0
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		if strings.HasPrefix(strings.TrimSpace(scanner.Text()), "Row:") {
			count++
		}
	}
	return count
}
