package transport

import (
	"fmt"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// mqAttr mirrors the kernel's struct mq_attr (include/uapi/linux/mqueue.h):
// four long fields plus reserved padding. Used only for O_CREAT opens; the
// kernel ignores it otherwise.
type mqAttr struct {
	Flags   int64
	Maxmsg  int64
	Msgsize int64
	Curmsgs int64
	pad     [4]int64
}

// mqHandle is an open POSIX message queue descriptor. Linux implements
// mqueue descriptors as ordinary file descriptors, so mq_close is just
// close(2) (unix.Close), unlike mq_open/mq_timedsend/mq_timedreceive/
// mq_unlink, which have no typed wrapper in golang.org/x/sys/unix and are
// issued here as raw syscalls against the kernel's syscall-number table.
type mqHandle struct {
	fd int
}

func mqOpen(name string, oflag int, mode uint32, maxMsg, msgSize int64) (mqHandle, error) {
	namePtr, err := unix.BytePtrFromString(name)
	if err != nil {
		return mqHandle{}, err
	}

	var attrPtr *mqAttr
	if oflag&unix.O_CREAT != 0 {
		attrPtr = &mqAttr{Maxmsg: maxMsg, Msgsize: msgSize}
	}

	fd, _, errno := syscall.Syscall6(unix.SYS_MQ_OPEN,
		uintptr(unsafe.Pointer(namePtr)),
		uintptr(oflag),
		uintptr(mode),
		uintptr(unsafe.Pointer(attrPtr)),
		0, 0)
	if errno != 0 {
		return mqHandle{}, fmt.Errorf("transport: mq_open %q: %w", name, errno)
	}
	return mqHandle{fd: int(fd)}, nil
}

func mqUnlink(name string) error {
	namePtr, err := unix.BytePtrFromString(name)
	if err != nil {
		return err
	}
	_, _, errno := syscall.Syscall(unix.SYS_MQ_UNLINK, uintptr(unsafe.Pointer(namePtr)), 0, 0)
	if errno != 0 {
		return fmt.Errorf("transport: mq_unlink %q: %w", name, errno)
	}
	return nil
}

func (h mqHandle) close() error {
	return unix.Close(h.fd)
}

func deadlineToTimespec(deadline time.Time) *unix.Timespec {
	if deadline.IsZero() {
		return nil
	}
	d := deadline.Sub(time.Now())
	if d < 0 {
		d = 0
	}
	abs := time.Now().Add(d)
	ts := unix.NsecToTimespec(abs.UnixNano())
	return &ts
}

func (h mqHandle) timedSend(body []byte, prio uint, deadline time.Time) error {
	var bodyPtr unsafe.Pointer
	if len(body) > 0 {
		bodyPtr = unsafe.Pointer(&body[0])
	}
	_, _, errno := syscall.Syscall6(unix.SYS_MQ_TIMEDSEND,
		uintptr(h.fd),
		uintptr(bodyPtr),
		uintptr(len(body)),
		uintptr(prio),
		uintptr(unsafe.Pointer(deadlineToTimespec(deadline))),
		0)
	if errno != 0 {
		return fmt.Errorf("transport: mq_timedsend: %w", errno)
	}
	return nil
}

func (h mqHandle) timedReceive(buf []byte, deadline time.Time) (int, uint, error) {
	var prio uint32
	n, _, errno := syscall.Syscall6(unix.SYS_MQ_TIMEDRECEIVE,
		uintptr(h.fd),
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(len(buf)),
		uintptr(unsafe.Pointer(&prio)),
		uintptr(unsafe.Pointer(deadlineToTimespec(deadline))),
		0)
	if errno != 0 {
		return 0, 0, fmt.Errorf("transport: mq_timedreceive: %w", errno)
	}
	return int(n), uint(prio), nil
}
