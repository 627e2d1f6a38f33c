package accnt

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddUserAndSystemAccumulate(t *testing.T) {
	var a Accounting
	a.AddUser(100)
	a.AddUser(50)
	a.AddSystem(30)

	u, s := a.Snapshot()
	require.EqualValues(t, 150, u)
	require.EqualValues(t, 30, s)
}

func TestMergeAddsOtherIntoReceiver(t *testing.T) {
	var parent, child Accounting
	parent.AddUser(10)
	child.AddUser(5)
	child.AddSystem(2)

	parent.Merge(&child)

	u, s := parent.Snapshot()
	require.EqualValues(t, 15, u)
	require.EqualValues(t, 2, s)
}

func TestRusageEncodesTimevalPairs(t *testing.T) {
	var a Accounting
	a.AddUser(1_500_000) // 1.5ms -> 0s, 1500us
	a.AddSystem(2_000_000_000) // 2s -> 2s, 0us

	buf := a.Rusage()
	require.Len(t, buf, 32)

	userSecs := binary.LittleEndian.Uint64(buf[0:8])
	userUsecs := binary.LittleEndian.Uint64(buf[8:16])
	sysSecs := binary.LittleEndian.Uint64(buf[16:24])
	sysUsecs := binary.LittleEndian.Uint64(buf[24:32])

	require.EqualValues(t, 0, userSecs)
	require.EqualValues(t, 1500, userUsecs)
	require.EqualValues(t, 2, sysSecs)
	require.EqualValues(t, 0, sysUsecs)
}
