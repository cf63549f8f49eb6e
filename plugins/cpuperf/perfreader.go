//go:build linux

package cpuperf

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// perfEventReader implements CounterReader over the kernel's
// perf_event_open syscall, reading the one hardware event with a
// generic, CPU-model-independent code: instructions retired
// (PERF_COUNT_HW_INSTRUCTIONS). Floating point instruction/operation
// counters have no generic perf_event hardware code; PAPI's rapl-style
// abstraction over vendor raw event tables is what the original connector
// relied on for those, and is out of scope here (see cpuperf.go).
type perfEventReader struct {
	mu  sync.Mutex
	fd  int
	ok  bool
}

// NewPerfEventReader opens the instructions-retired hardware counter for
// the calling process. If perf_event_open is unavailable (permissions,
// sandboxed kernel), Available reports false and Read reports every
// counter invalid without an error; the Sampler's Init then fails the
// plugin.
func NewPerfEventReader() CounterReader {
	attr := unix.PerfEventAttr{
		Type:   unix.PERF_TYPE_HARDWARE,
		Size:   uint32(unsafeSizeofPerfEventAttr()),
		Config: unix.PERF_COUNT_HW_INSTRUCTIONS,
	}
	fd, err := unix.PerfEventOpen(&attr, 0, -1, -1, 0)
	if err != nil {
		return &perfEventReader{fd: -1, ok: false}
	}
	_ = unix.IoctlSetInt(fd, unix.PERF_EVENT_IOC_RESET, 0)
	_ = unix.IoctlSetInt(fd, unix.PERF_EVENT_IOC_ENABLE, 0)
	return &perfEventReader{fd: fd, ok: true}
}

func (r *perfEventReader) Available() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ok
}

func (r *perfEventReader) Read() (flpIns, flpOps, totIns int64, flpInsOK, flpOpsOK, totInsOK bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ok {
		return 0, 0, 0, false, false, false, nil
	}
	var buf [8]byte
	n, rerr := unix.Read(r.fd, buf[:])
	if rerr != nil || n != 8 {
		return 0, 0, 0, false, false, false, fmt.Errorf("read perf_event counter: %w", rerr)
	}
	v := int64(buf[0]) | int64(buf[1])<<8 | int64(buf[2])<<16 | int64(buf[3])<<24 |
		int64(buf[4])<<32 | int64(buf[5])<<40 | int64(buf[6])<<48 | int64(buf[7])<<56
	return 0, 0, v, false, false, true, nil
}

func (r *perfEventReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ok {
		return nil
	}
	r.ok = false
	return unix.Close(r.fd)
}

func unsafeSizeofPerfEventAttr() int {
	var a unix.PerfEventAttr
	return int(unsafe.Sizeof(a))
}
