package devtree

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPL011WaitsThenResolvesOnceGICSucceeds(t *testing.T) {
	root := NewNode("root", "simple-bus")
	gic := NewNode("interrupt-controller", "arm,gic-400")
	uart := NewNode("uart0", "arm,pl011")
	uart.InterruptParent = gic
	// uart is walked before gic, so the first pass leaves it Waiting.
	root.AddChild(uart)
	root.AddChild(gic)

	var gicBuilt, uartBuilt bool
	f := Factories{
		OnSimpleBus: func(*Node) error { return nil },
		OnGIC400:    func(*Node) error { gicBuilt = true; return nil },
		OnPL011:     func(n *Node, parent *Node) error { uartBuilt = true; return nil },
	}
	pipeline := NewPipeline(testLogger(), StandardProbes(f)...)
	results := pipeline.Run(root)

	require.True(t, gicBuilt)
	require.True(t, uartBuilt)
	require.Equal(t, Success, results.StatusOf(gic))
	require.Equal(t, Success, results.StatusOf(uart))
}

func TestUnrecognisedNodeStaysUnrecognised(t *testing.T) {
	root := NewNode("root", "simple-bus")
	mystery := NewNode("widget", "acme,mystery-widget")
	root.AddChild(mystery)

	pipeline := NewPipeline(testLogger(), StandardProbes(Factories{})...)
	results := pipeline.Run(root)

	require.Equal(t, Unrecognised, results.StatusOf(mystery))
}

func TestFailingProbeMarksFailure(t *testing.T) {
	root := NewNode("root", "simple-bus")
	clk := NewNode("clk0", "fixed-clock")
	root.AddChild(clk)

	f := Factories{OnFixedClock: func(*Node) error { return errBoom }}
	pipeline := NewPipeline(testLogger(), StandardProbes(f)...)
	results := pipeline.Run(root)

	require.Equal(t, Failure, results.StatusOf(clk))
}

var errBoom = &boomError{}

type boomError struct{}

func (*boomError) Error() string { return "boom" }
