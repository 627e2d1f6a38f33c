package interlink

import (
	"testing"

	"github.com/stretchr/testify/require"

	"bekkernel/errs"
)

// fakeResolver is an EntityResolver that holds no handles: every test here
// exercises DATA items only, so Lookup/Install are never actually called.
type fakeResolver struct{}

func (fakeResolver) Lookup(int) (EntityRef, bool) { return nil, false }
func (fakeResolver) Install(EntityRef) int         { return -1 }

// fakeSpace is a SpaceTarget that accepts nothing: these tests send no
// MEMORY items either.
type fakeSpace struct{}

func (fakeSpace) CheckRegion(uint64, uint64, bool, bool) bool { return false }
func (fakeSpace) ResolveBacking(uint64, uint64) (Backing, errs.Err_t) {
	return nil, errs.EFAULT
}
func (fakeSpace) PlaceShared(Backing, uint64, bool, bool) (uint64, errs.Err_t) {
	return 0, errs.EFAULT
}

func encodeDataMessage(msgID uint32, payload []byte) []byte {
	buf := make([]byte, headerSize+itemSize+len(payload))
	Header{TotalSize: uint32(len(buf)), PayloadItemCount: 1, MessageID: msgID}.encode(buf[0:headerSize])
	wireItem{Kind: KindData, A: uint64(headerSize + itemSize), B: uint64(len(payload))}.encode(buf[headerSize : headerSize+itemSize])
	copy(buf[headerSize+itemSize:], payload)
	return buf
}

func TestAdvertiseConnectAcceptSendReceiveRoundTrip(t *testing.T) {
	m := NewAddressMap()

	srv, err := m.Advertise("svc.echo")
	require.True(t, err.Ok())

	clientEnd, err := m.Connect("svc.echo")
	require.True(t, err.Ok())

	serverEnd, err := srv.Accept()
	require.True(t, err.Ok())

	require.Equal(t, clientEnd.TraceID(), serverEnd.TraceID())

	payload := []byte("ping")
	msg := encodeDataMessage(1, payload)
	n, werr := clientEnd.Send(msg, fakeResolver{}, fakeSpace{}, true)
	require.True(t, werr.Ok())
	require.Equal(t, len(payload), n)

	out := make([]byte, 256)
	got, rerr := serverEnd.Receive(out, fakeResolver{}, fakeSpace{}, true)
	require.True(t, rerr.Ok())
	require.Equal(t, headerSize+itemSize+len(payload), got)
}

func TestAdvertiseTwiceFails(t *testing.T) {
	m := NewAddressMap()
	_, err := m.Advertise("svc.dup")
	require.True(t, err.Ok())

	_, err = m.Advertise("svc.dup")
	require.Equal(t, errs.EADDRINUSE, err)
}

func TestConnectUnknownAddressFails(t *testing.T) {
	m := NewAddressMap()
	_, err := m.Connect("nobody.home")
	require.Equal(t, errs.ENOENT, err)
}

func TestAcceptWithNoPendingConnectionReturnsEAGAIN(t *testing.T) {
	m := NewAddressMap()
	srv, err := m.Advertise("svc.empty")
	require.True(t, err.Ok())

	_, aerr := srv.Accept()
	require.Equal(t, errs.EAGAIN, aerr)
}

func TestWithdrawRemovesAddress(t *testing.T) {
	m := NewAddressMap()
	_, err := m.Advertise("svc.temp")
	require.True(t, err.Ok())

	m.Withdraw("svc.temp")

	_, err = m.Connect("svc.temp")
	require.Equal(t, errs.ENOENT, err)
}
