// Package boot implements the dependency-ordered singleton wiring of §2:
// physical page allocator, device-tree probe pipeline, interrupt
// controller, timer, block device registry, FAT root mount, and process
// manager, assembled into the single *syscall.Kernel the dispatcher
// expects and the first user process (init) spawned against it.
//
// No teacher or pack file wires a whole kernel's boot sequence in one
// place (canonical-snapd and gravwell-gravwell come closest, each with a
// single main() that constructs its daemon's dependency graph in
// textbook order before entering its run loop); this package follows that
// shape — explicit constructor calls in §2's fixed order, each singleton
// threaded into the next by parameter rather than a global — with
// config read via github.com/jessevdk/go-flags, the pattern
// cmd/mkbekfs/main.go already established for this module's tools.
package boot

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	flags "github.com/jessevdk/go-flags"

	"bekkernel/blockdev"
	"bekkernel/device"
	"bekkernel/devtree"
	"bekkernel/errs"
	"bekkernel/fat"
	fspkg "bekkernel/fs"
	"bekkernel/intc"
	"bekkernel/interlink"
	"bekkernel/limits"
	"bekkernel/mem"
	"bekkernel/proc"
	"bekkernel/syscall"
	"bekkernel/virtio"
)

// Config is the set of boot-time parameters every bekOS instance needs;
// a host process parses these from argv via ParseConfig.
type Config struct {
	DiskImage    string `short:"d" long:"disk" required:"true" description:"path to the root filesystem disk image (FAT, virtio-blk backed)"`
	DiskReadOnly bool   `long:"disk-readonly" description:"mount the disk image read-only"`
	MemoryMB     int    `long:"mem-mb" default:"64" description:"size of the simulated physical RAM arena, in megabytes"`
	TimerHz      uint64 `long:"timer-hz" default:"19200000" description:"simulated ARM generic timer frequency, in Hz"`
	SPICount     int    `long:"spi-count" default:"32" description:"number of allocatable GIC-400 SPI lines"`
	InitPath     string `long:"init" default:"/sbin/init" description:"path of the first user process, loaded off the mounted root filesystem"`
	LogLevel     string `long:"log-level" default:"info" description:"slog level: debug, info, warn, or error"`
}

// ParseConfig parses args (typically os.Args[1:]) into a Config.
func ParseConfig(args []string) (*Config, error) {
	cfg := &Config{}
	if _, err := flags.ParseArgs(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// System bundles every boot-constructed singleton a host entry point
// (cmd/bekctl, a test) might want to reach beyond the syscall.Kernel
// itself: the interrupt controller and timer aren't part of the syscall
// ABI surface, so they live here rather than on syscall.Kernel.
type System struct {
	Kernel      *syscall.Kernel
	Init        *proc.Process
	Interrupts  *intc.GIC400
	Timer       *intc.ARMGenericTimer
	DeviceTree  *devtree.Node
}

const arenaBase = mem.PhysicalPtr(0x4000_0000)

// Boot performs §2's fifteen-step dependency-ordered wiring and returns
// the assembled System, with its init process already spawned (but not
// run: this host simulation has no userspace CPU mode to jump the loaded
// entry point into, so init's goroutine returns immediately after load —
// see syscall.Boot).
func Boot(cfg *Config) (*System, error) {
	log := newLogger(cfg.LogLevel)

	// Step 1-2: physical page allocator over a simulated RAM arena.
	arena, err := mem.NewArena(arenaBase, uintptr(cfg.MemoryMB)*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("boot: arena: %w", err)
	}
	pages := mem.NewPageAllocator(log, []struct {
		Region mem.PhysicalRegion
		Kind   mem.RegionKind
	}{{Region: arena.Region(), Kind: mem.KindMemory}})

	// Steps 3-5 (table manager, backing regions, space manager) have no
	// boot-time singleton of their own: space.Manager is constructed
	// per-process, the first time as part of syscall.Boot's call into
	// proc.Manager.SpawnUserProcess below.

	// Step 6: device tree, built programmatically (§4.14's own doc
	// comment: no FDT/.dtb blob parser exists in this rewrite).
	tree := buildDeviceTree(cfg)

	// Steps 7-8 (interrupt controller, timer) and 9 (block device
	// registry + virtio wiring) are all driven by the probe pipeline
	// below, via the Factories closures it calls once each node's
	// dependencies resolve.
	var controller *intc.GIC400
	var timer *intc.ARMGenericTimer
	var kernelTime *intc.KernelTime

	devices := device.NewRegistry()
	blocks := blockdev.NewRegistry(log)

	factories := devtree.Factories{
		OnSimpleBus: func(*devtree.Node) error { return nil },
		OnGIC400: func(*devtree.Node) error {
			controller = intc.NewGIC400(cfg.SPICount)
			return nil
		},
		OnFixedClock: func(*devtree.Node) error { return nil },
		OnGenericTimer: func(*devtree.Node) error {
			timer = intc.NewARMGenericTimer(cfg.TimerHz, time.Millisecond)
			kernelTime = intc.NewKernelTime(timer)
			return nil
		},
		OnPL011: func(*devtree.Node, *devtree.Node) error {
			devices.Register("ttyS", device.Console{})
			return nil
		},
		OnVirtioMMIO: func(n *devtree.Node, _ *devtree.Node) error {
			return mountVirtioBlock(n, blocks)
		},
	}

	pipeline := devtree.NewPipeline(log, devtree.StandardProbes(factories)...)
	results := pipeline.Run(tree)
	if failed := firstFailure(tree, results); failed != "" {
		return nil, fmt.Errorf("boot: device probe failed for node %q", failed)
	}
	if controller == nil {
		return nil, fmt.Errorf("boot: no arm,gic-400 node probed")
	}
	if timer == nil {
		return nil, fmt.Errorf("boot: no arm,armv8-timer node probed")
	}

	// Step 10-11: FAT engine + filesystem registry, mounting root off
	// whatever virtio-blk device the pipeline just registered.
	fsReg := fspkg.NewRegistry(log)
	prober := func() (fspkg.Filesystem, errs.Err_t) {
		for _, pair := range blocks.All() {
			if fsys, ferr := fat.TryCreateFrom(pair.Value, log); ferr.Ok() {
				return fsys, errs.ESUCCESS
			}
		}
		return nil, errs.ENODEV
	}
	if merr := fsReg.TryMountRoot(prober); !merr.Ok() {
		return nil, fmt.Errorf("boot: mount root: %s", merr)
	}

	// Step 12 (virtio transport) is already wired into each BlockDevice
	// by mountVirtioBlock above.

	// Step 13: Interlink address map (pipes are constructed per-syscall,
	// with no boot-time singleton of their own).
	addresses := interlink.NewAddressMap()

	// Step 14: process manager, capped by the system-wide resource budgets
	// (§5's "Shared resources" list).
	sysLimits := limits.Default()
	procs := proc.NewManagerWithLimit(sysLimits.Processes)

	// Step 15: the assembled syscall dispatch kernel.
	kernel := &syscall.Kernel{
		Arena:     arena,
		Pages:     pages,
		Devices:   devices,
		Addresses: addresses,
		FS:        fsReg,
		Procs:     procs,
		Clock:     kernelTime,
		Limits:    sysLimits,
	}

	init, ierr := syscall.Boot(kernel, cfg.InitPath)
	if !ierr.Ok() {
		return nil, fmt.Errorf("boot: load init %q: %s", cfg.InitPath, ierr)
	}

	return &System{
		Kernel:     kernel,
		Init:       init,
		Interrupts: controller,
		Timer:      timer,
		DeviceTree: tree,
	}, nil
}

// buildDeviceTree constructs the fixed node topology this host simulation
// boots with: one simple-bus root holding the GIC, a fixed clock, the ARM
// generic timer, a pl011 console, and a single virtio-mmio block device
// backed by cfg.DiskImage.
func buildDeviceTree(cfg *Config) *devtree.Node {
	root := devtree.NewNode("soc", "simple-bus")

	gic := devtree.NewNode("interrupt-controller", "arm,gic-400")
	root.AddChild(gic)

	clock := devtree.NewNode("clk24mhz", "fixed-clock")
	root.AddChild(clock)

	timer := devtree.NewNode("timer", "arm,armv8-timer")
	root.AddChild(timer)

	console := devtree.NewNode("uart0", "arm,pl011")
	console.InterruptParent = gic
	root.AddChild(console)

	disk := devtree.NewNode("virtio_mmio@a003e00", "virtio,mmio")
	disk.InterruptParent = gic
	disk.Properties["image-path"] = []byte(cfg.DiskImage)
	if cfg.DiskReadOnly {
		disk.Properties["read-only"] = []byte{1}
	}
	root.AddChild(disk)

	return root
}

func mountVirtioBlock(n *devtree.Node, blocks *blockdev.Registry) error {
	path := string(n.Properties["image-path"])
	readOnly := len(n.Properties["read-only"]) == 1 && n.Properties["read-only"][0] == 1

	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return err
	}

	dev, err := virtio.NewBlockDevice(f, readOnly)
	if err != nil {
		f.Close()
		return err
	}
	blocks.Register("virtioblk", dev)
	return nil
}

// firstFailure reports the name of the first node the pipeline left in
// devtree.Failure, or "" if every node resolved.
func firstFailure(root *devtree.Node, results *devtree.Results) string {
	var failed string
	root.Walk(func(n *devtree.Node) {
		if failed == "" && results.StatusOf(n) == devtree.Failure {
			failed = n.Name
		}
	})
	return failed
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
