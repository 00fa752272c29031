package device

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/contact-dispatch/internal/config"
	"github.com/contact-dispatch/internal/service"
)

type scriptedRunner struct {
	commands []string
	reply    func(command string) (string, error)
}

func (r *scriptedRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	command := name + " " + strings.Join(args, " ")
	r.commands = append(r.commands, command)
	if r.reply == nil {
		return "", nil
	}
	return r.reply(command)
}

func writeArtifact(t *testing.T) service.Artifact {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vcf_dev_1_2_1.vcf")
	if err := os.WriteFile(path, []byte("BEGIN:VCARD\r\nEND:VCARD\r\n"), 0o644); err != nil {
		t.Fatalf("write artifact failed: %v", err)
	}
	return service.Artifact{BatchID: "vcf_dev_1_2_1", Path: path, TotalCount: 2}
}

func TestImporterPushesAndStartsViewIntent(t *testing.T) {
	runner := &scriptedRunner{reply: func(string) (string, error) {
		return "Starting: Intent { act=android.intent.action.VIEW }", nil
	}}
	adb := NewADB(config.DeviceConfig{ADBPath: "/opt/adb", RemoteDir: "/sdcard/Download/"}, runner)
	artifact := writeArtifact(t)

	outcome, err := NewImporter(adb).ImportToDevice(context.Background(), "emulator-5554", artifact)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if !outcome.Success || outcome.ImportedCount != 2 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if len(runner.commands) != 3 {
		t.Fatalf("expected mkdir, push, am start; got %v", runner.commands)
	}
	if !strings.HasPrefix(runner.commands[1], "/opt/adb -s emulator-5554 push ") ||
		!strings.HasSuffix(runner.commands[1], " /sdcard/Download/vcf_dev_1_2_1.vcf") {
		t.Fatalf("unexpected push command: %s", runner.commands[1])
	}
	want := "/opt/adb -s emulator-5554 shell am start -a android.intent.action.VIEW -t text/vcard -d file:///sdcard/Download/vcf_dev_1_2_1.vcf"
	if runner.commands[2] != want {
		t.Fatalf("unexpected intent command:\nwant %s\ngot  %s", want, runner.commands[2])
	}
}

func TestHuaweiImporterTriesComponentsInOrder(t *testing.T) {
	runner := &scriptedRunner{reply: func(command string) (string, error) {
		if strings.Contains(command, "com.huawei.contacts") {
			return "Error: Activity not found", nil
		}
		return "Starting: Intent", nil
	}}
	adb := NewADB(config.DeviceConfig{}, runner)

	outcome, err := NewHuaweiImporter(adb).ImportToDevice(context.Background(), "hw-1", writeArtifact(t))
	if err != nil || !outcome.Success {
		t.Fatalf("expected success on second component: %+v %v", outcome, err)
	}
	last := runner.commands[len(runner.commands)-1]
	if !strings.Contains(last, "-n com.android.contacts/.activities.PeopleActivity") {
		t.Fatalf("unexpected last command: %s", last)
	}
}

func TestImporterReportsFailures(t *testing.T) {
	runner := &scriptedRunner{reply: func(command string) (string, error) {
		if strings.Contains(command, " push ") {
			return "adb: error: device offline", errors.New("exit status 1")
		}
		return "", nil
	}}
	adb := NewADB(config.DeviceConfig{}, runner)

	outcome, err := NewImporter(adb).ImportToDevice(context.Background(), "dev-1", writeArtifact(t))
	if err != nil {
		t.Fatalf("transport failures should be reported in outcome, got %v", err)
	}
	if outcome.Success || !strings.Contains(outcome.Message, "adb push failed") || outcome.FailedCount != 2 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	missing, _ := NewImporter(adb).ImportToDevice(context.Background(), "dev-1", service.Artifact{Path: "/nope.vcf"})
	if missing.Success {
		t.Fatalf("missing local file must fail")
	}
}

func TestMetricsCountsRows(t *testing.T) {
	runner := &scriptedRunner{reply: func(string) (string, error) {
		return "Row: 0 _id=1\nRow: 1 _id=4\nRow: 2 _id=9\n", nil
	}}
	count, err := NewMetrics(NewADB(config.DeviceConfig{}, runner)).ContactCount(context.Background(), "dev-1")
	if err != nil || count != 3 {
		t.Fatalf("expected 3 rows, got %d %v", count, err)
	}
	if countRows("No result found.") != 0 {
		t.Fatalf("empty query should count 0")
	}
	if !strings.Contains(runner.commands[0], "content query --uri content://com.android.contacts/raw_contacts") {
		t.Fatalf("unexpected query command: %s", runner.commands[0])
	}
}

func TestNoopImporter(t *testing.T) {
	outcome, err := NoopImporter{}.ImportToDevice(context.Background(), "dev-1", service.Artifact{TotalCount: 5})
	if err != nil || !outcome.Success || outcome.ImportedCount != 5 {
		t.Fatalf("unexpected noop outcome: %+v %v", outcome, err)
	}
}
