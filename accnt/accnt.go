// Package accnt implements per-process CPU-time accounting: nanosecond
// counters for time spent in userspace versus inside the kernel on a
// process's behalf, merged into a parent's totals when a child exits
// (the rusage accumulation every POSIX wait4 performs).
//
// Grounded on the teacher's Accnt_t (same Userns/Sysns nanosecond
// counters, Add's lock-and-merge-into-parent shape), with Fetch/To_rusage
// reworked from the teacher's own native-endian unsafe.Pointer util.Writen
// calls (util.Writen has since been removed — see DESIGN.md) onto explicit
// encoding/binary.LittleEndian, since a userspace rusage copy is exactly
// the kind of fixed-width wire layout that should not depend on the
// host's native byte order.
package accnt

import (
	"encoding/binary"
	"sync/atomic"
)

// Accounting accumulates the nanoseconds of user- and system-time a
// process has consumed. Every field is updated with atomic adds so a
// charger never needs to hold a lock; Merge takes no lock either and
// reads the source record's two totals with separate atomic loads.
type Accounting struct {
	userNS int64
	sysNS  int64
}

// AddUser charges ns nanoseconds of userspace execution.
func (a *Accounting) AddUser(ns int64) {
	atomic.AddInt64(&a.userNS, ns)
}

// AddSystem charges ns nanoseconds of kernel-side execution on the
// process's behalf: syscall handling, blocked-in-Sleep time, and so on.
func (a *Accounting) AddSystem(ns int64) {
	atomic.AddInt64(&a.sysNS, ns)
}

// Snapshot returns the current (userNS, sysNS) totals.
func (a *Accounting) Snapshot() (int64, int64) {
	return atomic.LoadInt64(&a.userNS), atomic.LoadInt64(&a.sysNS)
}

// Merge folds other's totals into a, the rusage-accumulation-into-parent
// step of wait4 (teacher's Accnt_t.Add).
func (a *Accounting) Merge(other *Accounting) {
	u, s := other.Snapshot()
	atomic.AddInt64(&a.userNS, u)
	atomic.AddInt64(&a.sysNS, s)
}

// Rusage encodes a's totals as a pair of (seconds, microseconds) timeval
// records, user first then system — the layout a getrusage-shaped
// syscall copies to userspace (teacher's To_rusage).
func (a *Accounting) Rusage() []byte {
	u, s := a.Snapshot()
	buf := make([]byte, 32)
	putTimeval(buf[0:16], u)
	putTimeval(buf[16:32], s)
	return buf
}

func putTimeval(buf []byte, ns int64) {
	secs := ns / 1e9
	usecs := (ns % 1e9) / 1000
	binary.LittleEndian.PutUint64(buf[0:8], uint64(secs))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(usecs))
}
