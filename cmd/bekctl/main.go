// Command bekctl drives §2's boot sequence against a disk image and
// reports what came up: the device-tree nodes with their compatible
// strings, the timer frequency, the init process's pid and path, and the
// remaining capacity of each system resource budget. It is the host-side equivalent of booting a real board
// without one on hand — a dry run of boot.Boot for build pipelines and
// manual debugging alike.
//
// Grounded on the teacher's kernel/chentry.go (renamed from this file)
// for the "tiny host cmd tool wrapping one package's entry point" shape,
// and on cmd/mkbekfs/main.go for the github.com/jessevdk/go-flags config
// pattern this module's tools already share.
package main

import (
	"fmt"
	"os"
	"strings"

	"bekkernel/boot"
	"bekkernel/devtree"
)

func main() {
	cfg, err := boot.ParseConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "bekctl:", err)
		os.Exit(1)
	}

	sys, err := boot.Boot(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bekctl: boot failed:", err)
		os.Exit(1)
	}

	fmt.Printf("bekctl: booted against %s\n", cfg.DiskImage)
	fmt.Printf("  device tree:\n")
	sys.DeviceTree.Walk(func(n *devtree.Node) {
		fmt.Printf("    %-28s %s\n", n.Name, strings.Join(n.Compatible, ","))
	})
	fmt.Printf("  timer: %d Hz\n", cfg.TimerHz)
	fmt.Printf("  init: pid=%d path=%s\n", sys.Init.Pid(), cfg.InitPath)
	fmt.Printf("  resource budgets: processes=%d pipes=%d handles=%d blocks=%d\n",
		sys.Kernel.Limits.Processes.Remaining(),
		sys.Kernel.Limits.Pipes.Remaining(),
		sys.Kernel.Limits.Handles.Remaining(),
		sys.Kernel.Limits.Blocks.Remaining(),
	)
}
