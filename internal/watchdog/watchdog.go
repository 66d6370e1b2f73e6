// Package watchdog implements the systemd sd_notify watchdog protocol so a
// stalled agent gets restarted by the service manager instead of sitting dead.
package watchdog

import (
	"context"
	"net"
	"os"
	"strconv"
	"time"
)

// Watchdog sends WATCHDOG=1 datagrams to the socket systemd passed in the
// environment. The zero value is disabled and every method is a no-op, so
// callers never need to branch on whether they run under systemd.
type Watchdog struct {
	addr     *net.UnixAddr
	interval time.Duration
}

// FromEnv reads NOTIFY_SOCKET and WATCHDOG_USEC. It returns a disabled
// watchdog when either is unset, which is the normal case outside systemd.
func FromEnv() *Watchdog {
	socket := os.Getenv("NOTIFY_SOCKET")
	usec := os.Getenv("WATCHDOG_USEC")
	if socket == "" || usec == "" {
		return &Watchdog{}
	}
	micros, err := strconv.ParseInt(usec, 10, 64)
	if err != nil || micros <= 0 {
		return &Watchdog{}
	}
	if socket[0] == '@' {
		socket = "\x00" + socket[1:]
	}
	return &Watchdog{
		addr:     &net.UnixAddr{Name: socket, Net: "unixgram"},
		interval: time.Duration(micros) * time.Microsecond,
	}
}

// Enabled reports whether systemd asked for keepalives.
func (w *Watchdog) Enabled() bool { return w.addr != nil }

// Interval is the keepalive cadence: half the systemd timeout, as the
// sd_watchdog documentation recommends.
func (w *Watchdog) Interval() time.Duration {
	if w.interval == 0 {
		return 0
	}
	return w.interval / 2
}

// Notify sends one keepalive. Failures are swallowed: a missed datagram at
// worst causes a restart, which is the watchdog doing its job.
func (w *Watchdog) Notify() {
	w.send("WATCHDOG=1")
}

// Run sends keepalives on the half-window cadence until ctx is done. The
// loop runs independently of the poll cadence: backpressure may stretch
// poll ticks far past the supervisor's timeout window, and a slowed-down
// agent is still a live one. Returns immediately when disabled.
func (w *Watchdog) Run(ctx context.Context) {
	if !w.Enabled() {
		return
	}
	ticker := time.NewTicker(w.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Notify()
		}
	}
}

// Ready tells systemd startup finished, for Type=notify units.
func (w *Watchdog) Ready() {
	w.send("READY=1")
}

func (w *Watchdog) send(state string) {
	if w.addr == nil {
		return
	}
	conn, err := net.DialUnix("unixgram", nil, w.addr)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.Write([]byte(state))
}
