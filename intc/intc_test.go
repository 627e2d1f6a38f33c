package intc

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func encodeSelection(isPPI bool, id, flags uint32) []byte {
	buf := make([]byte, 12)
	v := uint32(0)
	if isPPI {
		v = 1
	}
	binary.BigEndian.PutUint32(buf[0:4], v)
	binary.BigEndian.PutUint32(buf[4:8], id)
	binary.BigEndian.PutUint32(buf[8:12], flags)
	return buf
}

func TestRegisterEnableAndHandleSPI(t *testing.T) {
	gic := NewGIC400(8)
	h, err := gic.RegisterInterrupt(encodeSelection(false, 0, gicFlagEdge))
	require.True(t, err.Ok())

	fired := 0
	gic.RegisterHandler(h, func() { fired++ })
	require.True(t, gic.Enable(h).Ok())

	gic.Assert(h)
	gic.HandleInterrupt()
	require.Equal(t, 1, fired)
}

func TestDisabledInterruptDoesNotFire(t *testing.T) {
	gic := NewGIC400(8)
	h, _ := gic.RegisterInterrupt(encodeSelection(false, 0, 0))
	fired := 0
	gic.RegisterHandler(h, func() { fired++ })
	gic.Assert(h)
	gic.HandleInterrupt()
	require.Equal(t, 0, fired)
}

func TestTimerRescheduleKeepsFiring(t *testing.T) {
	timer := NewARMGenericTimer(1000, time.Millisecond)
	defer timer.Stop()

	count := 0
	done := make(chan struct{})
	timer.ScheduleCallback(func() CallbackResult {
		count++
		if count >= 3 {
			close(done)
			return Cancel()
		}
		return Reschedule(1)
	}, 1)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer callback never reached count 3")
	}
	require.GreaterOrEqual(t, count, 3)
}

func TestKernelTimeNanosecondsSinceStart(t *testing.T) {
	timer := NewARMGenericTimer(1_000_000, time.Millisecond)
	defer timer.Stop()
	kt := NewKernelTime(timer)
	require.Eventually(t, func() bool {
		return kt.NanosecondsSinceStart() > 0
	}, time.Second, 5*time.Millisecond)
}
