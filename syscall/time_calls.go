package syscall

import (
	"time"

	"bekkernel/proc"
)

// sysSleep implements §6.1 Sleep: (microseconds) -> 0 or -errno. The
// simulated process genuinely blocks its goroutine for the requested
// duration, marking itself Waiting for the span so GetPid/Wait callers
// observing process state see it as non-runnable (§4.10).
func sysSleep(k *Kernel, p *proc.Process, a Args) int64 {
	prev := p.SetState(proc.Waiting)
	time.Sleep(time.Duration(a.A1) * time.Microsecond)
	p.SetState(prev)
	return 0
}

// sysGetTicks implements §6.1 GetTicks: () -> tick count.
func sysGetTicks(k *Kernel, p *proc.Process, a Args) int64 {
	if k.Clock == nil {
		return 0
	}
	return int64(k.Clock.GetTicks())
}
