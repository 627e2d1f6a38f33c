package virtio

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bekkernel/blockdev"
	"bekkernel/errs"
)

func newTestFile(t *testing.T, sectors int) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(int64(sectors*logicalBlockSize)))
	t.Cleanup(func() { f.Close() })
	return f
}

func TestTransportNegotiateRequiresVersion1(t *testing.T) {
	sim := NewSimulatedDevice(blkDeviceID, blkVendorID, RequiredFeatures, blkQueueNumMax, nil)
	transport := NewTransport(sim)
	require.Equal(t, errs.ESUCCESS, transport.Probe())

	negotiated, e := transport.Negotiate(RequiredFeatures, SupportedFeatures)
	require.Equal(t, errs.ESUCCESS, e)
	require.NotZero(t, negotiated&RequiredFeatures)
}

func TestTransportNegotiateFailsWithoutRequiredFeature(t *testing.T) {
	sim := NewSimulatedDevice(blkDeviceID, blkVendorID, 0, blkQueueNumMax, nil)
	transport := NewTransport(sim)

	_, e := transport.Negotiate(RequiredFeatures, SupportedFeatures)
	require.NotEqual(t, errs.ESUCCESS, e)
}

func TestBlockDeviceWriteThenReadRoundTrips(t *testing.T) {
	f := newTestFile(t, 4)
	dev, err := NewBlockDevice(f, false)
	require.NoError(t, err)

	payload := make([]byte, logicalBlockSize)
	copy(payload, []byte("hello virtio block device"))

	done := make(chan blockdev.TransferResult, 1)
	dev.ScheduleWrite(0, payload, func(r blockdev.TransferResult) { done <- r })
	require.Equal(t, blockdev.Success, waitResult(t, done))

	readBuf := make([]byte, logicalBlockSize)
	dev.ScheduleRead(0, readBuf, func(r blockdev.TransferResult) { done <- r })
	require.Equal(t, blockdev.Success, waitResult(t, done))
	require.Equal(t, payload, readBuf)
}

func TestBlockDeviceReadOnlyRejectsWrite(t *testing.T) {
	f := newTestFile(t, 1)
	dev, err := NewBlockDevice(f, true)
	require.NoError(t, err)

	done := make(chan blockdev.TransferResult, 1)
	dev.ScheduleWrite(0, make([]byte, logicalBlockSize), func(r blockdev.TransferResult) { done <- r })
	require.Equal(t, blockdev.Failure, waitResult(t, done))
}

func TestBlockDeviceUnalignedTransferFails(t *testing.T) {
	f := newTestFile(t, 1)
	dev, err := NewBlockDevice(f, false)
	require.NoError(t, err)

	done := make(chan blockdev.TransferResult, 1)
	dev.ScheduleRead(1, make([]byte, logicalBlockSize), func(r blockdev.TransferResult) { done <- r })
	require.Equal(t, blockdev.BadAlignment, waitResult(t, done))
}

func waitResult(t *testing.T, ch chan blockdev.TransferResult) blockdev.TransferResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for transfer completion")
		return blockdev.Failure
	}
}
