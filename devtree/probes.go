package devtree

// Factories bundles the boot-time constructors standard probes call once
// a node's dependencies are satisfied. Each returns an error to map onto
// Failure; devtree itself never imports intc/device/virtio, so boot can
// wire real hardware objects without this package knowing their types
// (the same EntityResolver/SpaceTarget-style decoupling interlink uses for
// entity/space).
type Factories struct {
	OnSimpleBus       func(n *Node) error
	OnGIC400          func(n *Node) error
	OnPL011           func(n *Node, interruptParent *Node) error
	OnFixedClock      func(n *Node) error
	OnGenericTimer    func(n *Node) error
	OnVirtioMMIO      func(n *Node, interruptParent *Node) error
}

// StandardProbes returns the probe list of §4.14: simple-bus, arm,gic-400,
// arm,pl011, fixed-clock, the ARM generic timer, and virtio,mmio.
func StandardProbes(f Factories) []Probe {
	return []Probe{
		simpleBusProbe(f),
		gic400Probe(f),
		fixedClockProbe(f),
		genericTimerProbe(f),
		pl011Probe(f),
		virtioMMIOProbe(f),
	}
}

func simpleBusProbe(f Factories) Probe {
	return func(n *Node, _ *Results) Status {
		if !n.IsCompatible("simple-bus") {
			return Unrecognised
		}
		if f.OnSimpleBus != nil {
			if err := f.OnSimpleBus(n); err != nil {
				return Failure
			}
		}
		return Success
	}
}

func gic400Probe(f Factories) Probe {
	return func(n *Node, _ *Results) Status {
		if !n.IsCompatible("arm,gic-400") {
			return Unrecognised
		}
		if f.OnGIC400 != nil {
			if err := f.OnGIC400(n); err != nil {
				return Failure
			}
		}
		return Success
	}
}

func fixedClockProbe(f Factories) Probe {
	return func(n *Node, _ *Results) Status {
		if !n.IsCompatible("fixed-clock") {
			return Unrecognised
		}
		if f.OnFixedClock != nil {
			if err := f.OnFixedClock(n); err != nil {
				return Failure
			}
		}
		return Success
	}
}

func genericTimerProbe(f Factories) Probe {
	return func(n *Node, _ *Results) Status {
		if !n.IsCompatible("arm,armv8-timer") {
			return Unrecognised
		}
		if f.OnGenericTimer != nil {
			if err := f.OnGenericTimer(n); err != nil {
				return Failure
			}
		}
		return Success
	}
}

// pl011Probe needs its interrupt-parent already Success before it can wire
// its IRQ (§4.14: "Waiting means the probe needs another node... that is
// not yet Success").
func pl011Probe(f Factories) Probe {
	return func(n *Node, results *Results) Status {
		if !n.IsCompatible("arm,pl011") {
			return Unrecognised
		}
		if n.InterruptParent != nil && results.StatusOf(n.InterruptParent) != Success {
			return Waiting
		}
		if f.OnPL011 != nil {
			if err := f.OnPL011(n, n.InterruptParent); err != nil {
				return Failure
			}
		}
		return Success
	}
}

func virtioMMIOProbe(f Factories) Probe {
	return func(n *Node, results *Results) Status {
		if !n.IsCompatible("virtio,mmio") {
			return Unrecognised
		}
		if n.InterruptParent != nil && results.StatusOf(n.InterruptParent) != Success {
			return Waiting
		}
		if f.OnVirtioMMIO != nil {
			if err := f.OnVirtioMMIO(n, n.InterruptParent); err != nil {
				return Failure
			}
		}
		return Success
	}
}
