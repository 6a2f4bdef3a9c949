// Package toolcontext implements component N: the bootstrap sequence
// spec.md §4.N describes (env/config load, arena, device cache, filter
// chain, label cache, segment-type and format registration, host tags)
// and its reverse teardown, grounded on how
// cmd/topolvm-controller/app/root.go and pkg/topolvm-node/cmd/root.go
// wire cobra+viper+klog+zap together before handing off to subMain.
package toolcontext

import (
	"os"
	"runtime"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"

	"github.com/lvm2go/lvm2core/internal/arena"
	"github.com/lvm2go/lvm2core/internal/devcache"
	"github.com/lvm2go/lvm2core/internal/devio"
	"github.com/lvm2go/lvm2core/internal/filter"
	"github.com/lvm2go/lvm2core/internal/format1"
	"github.com/lvm2go/lvm2core/internal/formatpool"
	"github.com/lvm2go/lvm2core/internal/formattext"
	"github.com/lvm2go/lvm2core/internal/label"
	"github.com/lvm2go/lvm2core/internal/lvmerrors"
	"github.com/lvm2go/lvm2core/internal/metadata"
	"github.com/lvm2go/lvm2core/internal/metrics"
	"github.com/lvm2go/lvm2core/internal/raid"
	"github.com/lvm2go/lvm2core/internal/segtype"
)

// HostTags carries the two pieces of host identity spec.md §4.N's
// bootstrap sequence folds into the default tag set: the hostname and
// the kernel release, matching create_instance_format's built-in
// "@<hostname>" tag and the uname(2) release string.
type HostTags struct {
	Hostname      string
	KernelRelease string
}

// ToolContext bundles every component spec.md §1 lists into the one
// long-lived handle a CLI or daemon links against, matching struct
// cmd_context. Destroy must be called exactly once, in reverse
// dependency order of Bootstrap.
type ToolContext struct {
	Config Config
	Log    logr.Logger
	Locker Locker
	Tags   HostTags

	Arena      *arena.Arena
	DevCache   *devcache.Cache
	Filter     *filter.Chain
	Persistent *filter.PersistentFilter
	DevIO      *devio.IO
	LabelCache *label.Cache
	Segtypes   *segtype.Registry
	Formats    map[string]metadata.FormatHandler
	Raid       *raid.Manipulator
	Metrics    *metrics.Registry

	zapLogger *zap.Logger
}

// Bootstrap runs the sequence of spec.md §4.N from a Config the caller
// has already loaded (see SystemDirFromEnv and LoadConfig): configure
// logging, read the host tags, build the arena, device I/O, device cache
// and filter chain, register the segment types, the RAID manipulator and
// the format handlers, then build the label cache and metrics. A failure
// is returned to the caller; Bootstrap does not log it.
func Bootstrap(cfg Config) (*ToolContext, error) {
	zl, err := newZapLogger(cfg.Log)
	if err != nil {
		return nil, lvmerrors.Internalf("toolcontext: building logger: %w", err)
	}
	log := zapr.NewLogger(zl)
	klog.SetLogger(log)

	tc := &ToolContext{
		Config:    cfg,
		Log:       log,
		Locker:    NewMutexLocker(),
		zapLogger: zl,
	}

	hostname, _ := os.Hostname()
	var uname Uname
	_ = uname.Load()
	tc.Tags = HostTags{Hostname: hostname, KernelRelease: uname.Release}

	tc.Arena = arena.New(0)
	tc.DevIO = devio.New(false)

	tc.DevCache = devcache.New(tc.Arena, devcache.OSFS{})
	for _, dir := range cfg.Devices.ScanDirs {
		if err := tc.DevCache.AddDir(dir); err != nil {
			return nil, err
		}
	}

	chain, persistent, err := buildFilterChain(cfg.Devices)
	if err != nil {
		return nil, err
	}
	tc.Filter = chain
	tc.Persistent = persistent

	tc.Segtypes = segtype.NewRegistry()
	if err := segtype.RegisterDefaults(tc.Segtypes); err != nil {
		return nil, err
	}
	tc.Raid = raid.New(tc.Segtypes)

	striped, err := tc.Segtypes.Get("striped")
	if err != nil {
		return nil, err
	}

	tc.Formats = map[string]metadata.FormatHandler{
		"lvm1": format1.New(tc.openBlockDevice, striped),
		"pool": formatpool.New(tc.poolHeaders),
		"text": formattext.New(tc.Segtypes.Get, tc.openTextDevice),
	}

	tc.LabelCache = label.New(format1.Labeller{}, formatpool.Labeller{}, formattext.Labeller{})

	tc.Metrics = metrics.New(tc.LabelCache)

	log.V(1).Info("bootstrap complete", "scan_dirs", cfg.Devices.ScanDirs, "system_dir", cfg.Global.SystemDir)
	return tc, nil
}

// Destroy tears the context down in the reverse order Bootstrap built
// it, matching destroy_toolcontext: flush the persistent filter's
// on-disk cache, then drop every in-memory index. Safe to call on a
// partially-built ToolContext.
func (tc *ToolContext) Destroy() error {
	var firstErr error
	if tc.Persistent != nil {
		if err := tc.Persistent.Dump(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if tc.zapLogger != nil {
		_ = tc.zapLogger.Sync()
	}
	tc.LabelCache = nil
	tc.Formats = nil
	tc.Segtypes = nil
	tc.DevCache = nil
	tc.Arena = nil
	return firstErr
}

func newZapLogger(cfg LogConfig) (*zap.Logger, error) {
	if cfg.Development {
		return zap.NewDevelopment()
	}
	zc := zap.NewProductionConfig()
	if cfg.Level != "" {
		lvl, err := zap.ParseAtomicLevel(cfg.Level)
		if err == nil {
			zc.Level = lvl
		}
	}
	return zc.Build()
}

func buildFilterChain(cfg DevicesConfig) (*filter.Chain, *filter.PersistentFilter, error) {
	var chainFilters []filter.Filter

	if len(cfg.FilterPatterns) > 0 {
		rf, err := filter.NewRegexFilter(cfg.FilterPatterns)
		if err != nil {
			return nil, nil, err
		}
		chainFilters = append(chainFilters, rf)
	}

	sysfsDir := cfg.SysfsDir
	if sysfsDir == "" {
		sysfsDir = "/sys"
	}
	chainFilters = append(chainFilters, filter.NewSysfsFilter(sysfsDir, func(p string) (os.FileInfo, error) {
		return os.Stat(p)
	}))

	minSize := cfg.MinSizeSectors
	chainFilters = append(chainFilters, filter.NewUsableFilter(minSize, devio.GetSize))

	base := filter.NewChain(chainFilters...)

	var persistent *filter.PersistentFilter
	if cfg.CacheFile != "" {
		persistent = filter.NewPersistentFilter(base, cfg.CacheFile)
		if err := persistent.Load(); err != nil {
			return nil, nil, err
		}
		return filter.NewChain(persistent), persistent, nil
	}
	return base, nil, nil
}

func (tc *ToolContext) openBlockDevice(pvName string) (format1.BlockDevice, error) {
	dev, err := tc.DevCache.Get(pvName, tc.Filter)
	if err != nil {
		return nil, err
	}
	if dev == nil {
		return nil, lvmerrors.NotFoundf("toolcontext: %s: not a filtered device", pvName)
	}
	return tc.DevIO.Open(dev, os.O_RDWR)
}

func (tc *ToolContext) openTextDevice(pvName string) (formattext.Device, error) {
	dev, err := tc.DevCache.Get(pvName, tc.Filter)
	if err != nil {
		return nil, err
	}
	if dev == nil {
		return nil, lvmerrors.NotFoundf("toolcontext: %s: not a filtered device", pvName)
	}
	return tc.DevIO.Open(dev, os.O_RDWR)
}

// poolHeaders reads every pool-format member device's header for vgName
// by walking the label cache's vginfo, matching _pool_vg_read's
// read_pool_pds step (which reads one header per device already known
// to the label scan rather than opening devices blind).
func (tc *ToolContext) poolHeaders(vgName string) ([]formatpool.Disk, error) {
	vi := tc.LabelCache.VGNameLookup(vgName)
	if vi == nil {
		return nil, lvmerrors.NotFoundf("toolcontext: vg %s: not present in the label cache", vgName)
	}
	var headers []formatpool.Disk
	for _, info := range vi.Infos() {
		if info.VolumeType != "pool" {
			continue
		}
		dev, err := tc.DevIO.Open(info.Dev, os.O_RDONLY)
		if err != nil {
			return nil, err
		}
		window, err := dev.Read(0, label.WindowSize)
		closeErr := dev.Close()
		if err != nil {
			return nil, err
		}
		if closeErr != nil {
			return nil, closeErr
		}
		disk, err := formatpool.Decode(window)
		if err != nil {
			return nil, err
		}
		headers = append(headers, *disk)
	}
	return headers, nil
}

// Uname holds the subset of uname(2) this module cares about.
type Uname struct {
	Release string
}

// Load populates u from the running kernel via uname(2) on Linux,
// matching the original's Linux-only dependency, without hard-failing
// on non-Linux test hosts.
func (u *Uname) Load() error {
	if runtime.GOOS != "linux" {
		u.Release = "unknown"
		return nil
	}
	var buf unix.Utsname
	if err := unix.Uname(&buf); err != nil {
		return lvmerrors.IOf("uname: %w", err)
	}
	u.Release = cToGoString(buf.Release[:])
	return nil
}

func cToGoString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
