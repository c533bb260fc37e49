// Package transport carries framed messages between a host and a plugin
// over a pair of directed, named POSIX message queues, spilling bodies
// too large for a queue message into a shared-memory block (internal/
// shmpool) and sending only the block's name. A single goroutine owns
// the blocking receive call and feeds decoded frames onto a channel,
// keeping the blocking syscall off of arbitrary caller goroutines, the
// same pinned-receiver shape a pinned I/O-loop uses to keep its
// completion-queue syscall off of caller goroutines.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/behrlich/das-ipc-host/internal/constants"
	"github.com/behrlich/das-ipc-host/internal/shmpool"
	"github.com/behrlich/das-ipc-host/internal/wire"
)

// Sentinel errors surfaced to callers, matching the external failure
// modes enumerated for this component.
var (
	ErrTimeout          = errors.New("transport: receive timed out")
	ErrConnectionClosed = errors.New("transport: connection closed")
	ErrSharedMemoryFail = errors.New("transport: shared-memory block unavailable")
	ErrMessageTooLarge  = errors.New("transport: message exceeds max_message_size even via shared memory")
)

// Frame pairs a decoded header with its body. It has the same fields as
// runloop.Frame but is a distinct type, so a *Transport is used as a
// runloop.Transport through an adapter that converts between the two.
type Frame struct {
	Header wire.Header
	Body   []byte
}

// backend is the minimal queue primitive Transport needs; real traffic
// uses mqueueBackend (POSIX message queues), tests use a fake.
type backend interface {
	send(body []byte, deadline time.Time) error
	receive(deadline time.Time) ([]byte, error)
	close() error
}

// mqueueBackend sends on one named queue and receives on another,
// matching the host/plugin directed-queue-pair convention
// (constants.QueueNames).
type mqueueBackend struct {
	sendName string
	recvName string
	maxSize  int64

	sendHandle mqHandle
	recvHandle mqHandle
}

func openMqueueBackend(sendName, recvName string, maxMessages, maxMessageSize uint32, create bool) (*mqueueBackend, error) {
	// Opened blocking (no O_NONBLOCK): mq_timedsend/mq_timedreceive only
	// honor their deadline argument on a blocking descriptor, returning
	// EAGAIN immediately instead if O_NONBLOCK were set.
	oflagSend := unix.O_WRONLY
	oflagRecv := unix.O_RDONLY
	if create {
		oflagSend |= unix.O_CREAT
		oflagRecv |= unix.O_CREAT
	}

	sendH, err := mqOpen(sendName, oflagSend, 0600, int64(maxMessages), int64(maxMessageSize))
	if err != nil {
		return nil, err
	}
	recvH, err := mqOpen(recvName, oflagRecv, 0600, int64(maxMessages), int64(maxMessageSize))
	if err != nil {
		_ = sendH.close()
		return nil, err
	}

	return &mqueueBackend{
		sendName:   sendName,
		recvName:   recvName,
		maxSize:    int64(maxMessageSize),
		sendHandle: sendH,
		recvHandle: recvH,
	}, nil
}

func (b *mqueueBackend) send(body []byte, deadline time.Time) error {
	return b.sendHandle.timedSend(body, 0, deadline)
}

func (b *mqueueBackend) receive(deadline time.Time) ([]byte, error) {
	buf := make([]byte, b.maxSize)
	n, _, err := b.recvHandle.timedReceive(buf, deadline)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (b *mqueueBackend) close() error {
	err1 := b.sendHandle.close()
	err2 := b.recvHandle.close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Config configures a Transport. SendQueueName/RecvQueueName name the
// two directed queues per constants.QueueNames; Create indicates this
// side owns queue lifetime (the host creates, the plugin opens existing).
type Config struct {
	SendQueueName  string
	RecvQueueName  string
	MaxMessageSize uint32
	MaxMessages    uint32
	Create         bool
	Pool           *shmpool.Pool

	// BlockNamePrefix names this host's shared-memory blocks, per
	// constants.SharedMemName, so two hosts on the same machine never
	// collide on a block name. Defaults to "das-body" when empty.
	BlockNamePrefix string
}

// Transport carries Frames over a directed POSIX message-queue pair,
// routing bodies that don't fit inline through a shared-memory block.
type Transport struct {
	backend         backend
	maxMessageSize  uint32
	pool            *shmpool.Pool
	blockNamePrefix string

	mu     sync.Mutex
	closed bool

	frames chan frameOrErr
	stopCh chan struct{}
	wg     sync.WaitGroup
}

type frameOrErr struct {
	frame Frame
	err   error
}

// New opens the two named queues described by cfg and starts the
// receiver goroutine.
func New(cfg Config) (*Transport, error) {
	maxSize := cfg.MaxMessageSize
	if maxSize == 0 {
		maxSize = constants.DefaultMaxMessageSize
	}
	maxMessages := cfg.MaxMessages
	if maxMessages == 0 {
		maxMessages = constants.DefaultMaxMessages
	}

	be, err := openMqueueBackend(cfg.SendQueueName, cfg.RecvQueueName, maxMessages, maxSize, cfg.Create)
	if err != nil {
		return nil, err
	}

	prefix := cfg.BlockNamePrefix
	if prefix == "" {
		prefix = "das-body"
	}

	t := &Transport{
		backend:         be,
		maxMessageSize:  maxSize,
		pool:            cfg.Pool,
		blockNamePrefix: prefix,
		frames:          make(chan frameOrErr, int(maxMessages)),
		stopCh:          make(chan struct{}),
	}
	t.wg.Add(1)
	go t.receiveLoop()
	return t, nil
}

// newWithBackend is the test seam: it skips opening real message queues.
func newWithBackend(be backend, maxMessageSize uint32, pool *shmpool.Pool) *Transport {
	t := &Transport{
		backend:         be,
		maxMessageSize:  maxMessageSize,
		pool:            pool,
		blockNamePrefix: "das-body",
		frames:          make(chan frameOrErr, 16),
		stopCh:          make(chan struct{}),
	}
	t.wg.Add(1)
	go t.receiveLoop()
	return t
}

// Send encodes f's header and body, routing the body through a
// shared-memory block (internal/shmpool) when it doesn't fit inline.
func (t *Transport) Send(f Frame) error {
	h := f.Header
	body := f.Body

	inlineBudget := int(t.maxMessageSize) - wire.HeaderSize
	if len(body) > inlineBudget {
		if t.pool == nil {
			return ErrSharedMemoryFail
		}
		name := fmt.Sprintf("%s-%d-%d", t.blockNamePrefix, h.CallID, time.Now().UnixNano())
		if len(name) > constants.MaxSharedMemBlockNameLen {
			name = name[:constants.MaxSharedMemBlockNameLen]
		}
		block, err := t.pool.Allocate(name, int64(len(body)))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSharedMemoryFail, err)
		}
		copy(block.Bytes(), body)

		h.SetLargeBody(true)
		nameBytes := []byte(name)
		if len(nameBytes) > inlineBudget {
			return ErrMessageTooLarge
		}
		// BodySize carries only the inline payload length (the block
		// name) here; the logical body length lives on the shmpool
		// block itself, so it never needs to exceed max_message_size
		// for Decode's size check to accept the frame.
		h.BodySize = uint32(len(nameBytes))
		buf := make([]byte, 0, wire.HeaderSize+len(nameBytes))
		buf = append(buf, wire.Encode(h)...)
		buf = append(buf, nameBytes...)
		return t.backend.send(buf, time.Now().Add(constants.DefaultCallTimeout))
	}

	h.SetLargeBody(false)
	h.BodySize = uint32(len(body))
	buf := make([]byte, 0, wire.HeaderSize+len(body))
	buf = append(buf, wire.Encode(h)...)
	buf = append(buf, body...)
	return t.backend.send(buf, time.Now().Add(constants.DefaultCallTimeout))
}

// Receive returns the next frame, blocking until one arrives, ctx is
// cancelled, or the transport is closed.
func (t *Transport) Receive(ctx context.Context) (Frame, error) {
	select {
	case r, ok := <-t.frames:
		if !ok {
			return Frame{}, ErrConnectionClosed
		}
		return r.frame, r.err
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Close stops the receiver goroutine and releases the underlying queue
// descriptors.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	close(t.stopCh)
	t.wg.Wait()
	return t.backend.close()
}

// receiveLoop owns the only blocking receive call on this transport's
// backend, decoding each raw message into a Frame (reassembling a
// large-body message from shared memory) and forwarding it on t.frames.
func (t *Transport) receiveLoop() {
	defer t.wg.Done()
	defer close(t.frames)

	for {
		select {
		case <-t.stopCh:
			return
		default:
		}

		raw, err := t.backend.receive(time.Now().Add(200 * time.Millisecond))
		if err != nil {
			if errors.Is(err, unix.ETIMEDOUT) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			select {
			case t.frames <- frameOrErr{err: err}:
			case <-t.stopCh:
			}
			continue
		}

		frame, err := t.decode(raw)
		select {
		case t.frames <- frameOrErr{frame: frame, err: err}:
		case <-t.stopCh:
			return
		}
	}
}

func (t *Transport) decode(raw []byte) (Frame, error) {
	h, err := wire.Decode(raw, t.maxMessageSize)
	if err != nil {
		return Frame{}, err
	}

	tail := raw[wire.HeaderSize:]
	if !h.HasLargeBody() {
		body := make([]byte, len(tail))
		copy(body, tail)
		return Frame{Header: h, Body: body}, nil
	}

	if t.pool == nil {
		return Frame{}, ErrSharedMemoryFail
	}
	name := string(tail[:h.BodySize])
	block, ok := t.pool.Lookup(name)
	if !ok {
		return Frame{}, fmt.Errorf("%w: block %q not found", ErrSharedMemoryFail, name)
	}
	body := make([]byte, block.Size)
	copy(body, block.Bytes()[:block.Size])
	_ = t.pool.Deallocate(name)
	return Frame{Header: h, Body: body}, nil
}
