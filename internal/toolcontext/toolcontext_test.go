package toolcontext

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func TestLoadConfigFallsBackToDefaultsWithNoFilePresent(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	v := viper.New()
	v.AddConfigPath(t.TempDir())

	cfg, err := LoadConfig(v, fs, t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(cfg.Devices.ScanDirs) != 1 || cfg.Devices.ScanDirs[0] != "/dev" {
		t.Fatalf("expected default scan_dirs of [/dev], got %v", cfg.Devices.ScanDirs)
	}
	if cfg.Global.LockingType != 1 {
		t.Fatalf("expected default locking_type 1, got %d", cfg.Global.LockingType)
	}
}

func TestSystemDirFromEnvDefaultsWhenUnset(t *testing.T) {
	t.Setenv("LVM_SYSTEM_DIR", "")
	if got := SystemDirFromEnv(); got != "/etc/lvm" {
		t.Fatalf("expected /etc/lvm, got %q", got)
	}
	t.Setenv("LVM_SYSTEM_DIR", "/custom/lvm")
	if got := SystemDirFromEnv(); got != "/custom/lvm" {
		t.Fatalf("expected /custom/lvm, got %q", got)
	}
}

func TestBootstrapWiresEveryComponent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Devices.ScanDirs = []string{t.TempDir()}
	cfg.Log.Development = true

	tc, err := Bootstrap(cfg)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if tc.Arena == nil || tc.DevCache == nil || tc.Filter == nil || tc.LabelCache == nil {
		t.Fatal("expected Bootstrap to populate every core component")
	}
	if tc.Segtypes == nil {
		t.Fatal("expected Bootstrap to populate the segment-type registry")
	}
	for _, name := range []string{"lvm1", "pool", "text"} {
		if _, ok := tc.Formats[name]; !ok {
			t.Fatalf("expected a %q format handler to be registered", name)
		}
	}
	if tc.Raid == nil {
		t.Fatal("expected Bootstrap to build a raid manipulator")
	}
	if tc.Metrics == nil {
		t.Fatal("expected Bootstrap to build a metrics registry")
	}
	if tc.Tags.Hostname == "" {
		t.Fatal("expected a non-empty hostname tag")
	}

	if _, err := tc.Locker.Lock("vg0"); err != nil {
		t.Fatalf("Locker.Lock: %v", err)
	}

	if err := tc.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
}

func TestMutexLockerReusesTheSameLockPerVGName(t *testing.T) {
	l := NewMutexLocker()
	unlock, err := l.Lock("vg0")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	unlock()

	// re-locking the same name after unlock must succeed rather than
	// deadlock, proving the per-name mutex table doesn't leak a locked
	// entry.
	unlock2, err := l.Lock("vg0")
	if err != nil {
		t.Fatalf("second Lock: %v", err)
	}
	unlock2()
}
