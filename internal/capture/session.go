// Package capture owns the capture lifecycle: interface discovery,
// opening the OS capture source, and the background loop that decodes
// frames into the retention buffer.
package capture

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
	"go.uber.org/zap"

	"packetscope/internal/models"
	"packetscope/internal/ring"
)

// State is the capture session lifecycle state.
type State int32

const (
	Idle State = iota
	Starting
	Capturing
	Stopping
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Capturing:
		return "capturing"
	case Stopping:
		return "stopping"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Caller-misuse errors, returned synchronously with no state change and
// no status event.
var (
	ErrAlreadyCapturing = errors.New("capture already in progress")
	ErrNotCapturing     = errors.New("no capture in progress")
)

// Options configures how the capture source is opened.
type Options struct {
	SnapLen     int32
	Promiscuous bool
	PollTimeout time.Duration // pcap read timeout; bounds Stop latency
	BPF         string        // optional kernel-side capture filter
}

// DefaultOptions mirrors a plain libpcap live capture: full-size
// snapshots, promiscuous mode, half-second poll ticks.
func DefaultOptions() Options {
	return Options{SnapLen: 65536, Promiscuous: true, PollTimeout: 500 * time.Millisecond}
}

// Stats are cumulative counters for the current capture source.
type Stats struct {
	Received int
	Dropped  int
}

// captureHandle abstracts the open pcap handle so the session logic can
// be exercised in tests without a live device.
type captureHandle interface {
	packets() <-chan gopacket.Packet
	stats() Stats
	err() error
	close()
}

// openHandle opens the live capture source. Package-level variable so
// tests can substitute a synthetic source (no privileges, no libpcap).
var openHandle = func(device string, opts Options) (captureHandle, error) {
	h, err := pcap.OpenLive(device, opts.SnapLen, opts.Promiscuous, opts.PollTimeout)
	if err != nil {
		return nil, err
	}
	if opts.BPF != "" {
		if err := h.SetBPFFilter(opts.BPF); err != nil {
			h.Close()
			return nil, fmt.Errorf("setting BPF filter %q: %w", opts.BPF, err)
		}
	}
	return &pcapHandle{handle: h, source: gopacket.NewPacketSource(h, h.LinkType())}, nil
}

type pcapHandle struct {
	handle *pcap.Handle
	source *gopacket.PacketSource
}

func (p *pcapHandle) packets() <-chan gopacket.Packet { return p.source.Packets() }

func (p *pcapHandle) stats() Stats {
	st, err := p.handle.Stats()
	if err != nil {
		return Stats{}
	}
	return Stats{Received: st.PacketsReceived, Dropped: st.PacketsDropped + st.PacketsIfDropped}
}

func (p *pcapHandle) err() error { return p.handle.Error() }
func (p *pcapHandle) close()     { p.handle.Close() }

// Session owns the capture lifecycle state machine for one interface at
// a time. The background loop it spawns is the sole writer to the
// retention buffer; status transitions are reported in order on the
// Events channel. Exactly one Session is constructed per process, held
// by the composition root.
type Session struct {
	buf     *ring.Buffer
	catalog Catalog
	opts    Options
	logger  *zap.Logger

	events chan models.CaptureStatus

	mu     sync.Mutex
	state  State
	iface  string
	handle captureHandle
	stopCh chan struct{}
	done   chan struct{}
}

// NewSession creates an idle session writing into buf.
func NewSession(buf *ring.Buffer, opts Options, logger *zap.Logger) *Session {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultOptions().PollTimeout
	}
	if opts.SnapLen <= 0 {
		opts.SnapLen = DefaultOptions().SnapLen
	}
	return &Session{
		buf:    buf,
		opts:   opts,
		logger: logger,
		events: make(chan models.CaptureStatus, 16),
	}
}

// Events returns the ordered capture-status stream. One status is
// emitted per status-changing transition, including async failures.
func (s *Session) Events() <-chan models.CaptureStatus { return s.events }

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ActiveInterface reports the interface of the running capture, or ""
// when no capture is active.
func (s *Session) ActiveInterface() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Capturing || s.state == Starting {
		return s.iface
	}
	return ""
}

// Stats reports the capture source counters, zero when no source is
// open. The lock is held across the counter read: release clears the
// handle under the same lock before closing it, so the read can never
// touch a closed handle.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return Stats{}
	}
	return s.handle.stats()
}

// Start begins capturing on the named interface, or on the host default
// when name is empty. Valid only from Idle or Failed. Interface
// resolution runs synchronously: a missing default returns
// ErrNoDefaultInterface with no state change and no event. The
// potentially slow open runs in the background; its outcome arrives as
// a CaptureStatus. On success the retention buffer is cleared before
// the success status is emitted.
func (s *Session) Start(name string) error {
	s.mu.Lock()
	if s.state != Idle && s.state != Failed {
		s.mu.Unlock()
		return ErrAlreadyCapturing
	}
	if name == "" {
		dflt, err := s.catalog.Default()
		if err != nil {
			s.mu.Unlock()
			return err
		}
		name = dflt
	}

	s.state = Starting
	s.iface = name
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	stopCh, done := s.stopCh, s.done
	s.mu.Unlock()

	s.logger.Info("starting capture", zap.String("interface", name))
	go s.run(name, stopCh, done)
	return nil
}

// Stop ends the running capture. Valid only from Capturing. It returns
// after the capture loop has exited and the OS handle is released, so
// no packet events follow the stop status.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state != Capturing {
		s.mu.Unlock()
		return ErrNotCapturing
	}
	s.state = Stopping
	name := s.iface
	stopCh, done := s.stopCh, s.done
	s.mu.Unlock()

	close(stopCh)
	<-done

	s.mu.Lock()
	s.state = Idle
	s.mu.Unlock()

	s.logger.Info("capture stopped", zap.String("interface", name))
	s.emit(models.CaptureStatus{
		Success:   true,
		Message:   fmt.Sprintf("Capture stopped on %s", name),
		Interface: name,
	})
	return nil
}

// run is the background capture loop. It owns the handle exclusively
// from open to close and is the only goroutine that pushes records.
func (s *Session) run(name string, stopCh, done chan struct{}) {
	defer close(done)

	h, err := openHandle(name, s.opts)
	if err != nil {
		s.fail(name, fmt.Sprintf("Failed to open %s: %v", name, err))
		return
	}

	s.buf.Clear()
	s.mu.Lock()
	s.handle = h
	s.state = Capturing
	s.mu.Unlock()

	s.emit(models.CaptureStatus{
		Success:   true,
		Message:   fmt.Sprintf("Capture started on %s", name),
		Interface: name,
	})

	pktCh := h.packets()
	for {
		select {
		case <-stopCh:
			s.release(h)
			return
		case pkt, ok := <-pktCh:
			if !ok {
				// Source failed mid-session (device gone, read error).
				msg := "capture source closed"
				if srcErr := h.err(); srcErr != nil {
					msg = srcErr.Error()
				}
				s.release(h)
				if !s.stopping() {
					s.fail(name, fmt.Sprintf("Capture failed on %s: %s", name, msg))
				}
				return
			}
			// Records still in flight are kept, but nothing new is
			// accepted once Stop has begun.
			select {
			case <-stopCh:
				s.release(h)
				return
			default:
			}
			rec, ok := decodePacket(pkt)
			if !ok {
				s.logger.Debug("skipping undecodable frame",
					zap.Int("length", len(pkt.Data())))
				continue
			}
			s.buf.Push(rec)
		}
	}
}

func (s *Session) release(h captureHandle) {
	// The handle must be cleared under the lock before it is closed;
	// Stats reads it under the same lock.
	s.mu.Lock()
	s.handle = nil
	s.mu.Unlock()
	h.close()
}

func (s *Session) stopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Stopping
}

// fail moves the session to Failed and reports the reason. The buffer
// is left untouched for inspection.
func (s *Session) fail(name, msg string) {
	s.mu.Lock()
	s.state = Failed
	s.mu.Unlock()

	s.logger.Error("capture failed",
		zap.String("interface", name), zap.String("reason", msg))
	s.emit(models.CaptureStatus{Success: false, Message: msg, Interface: name})
}

// emit delivers a status without ever blocking the capture path. The
// channel is sized for any sane subscriber; if one stalls anyway the
// oldest status is dropped and logged.
func (s *Session) emit(st models.CaptureStatus) {
	select {
	case s.events <- st:
		return
	default:
	}
	select {
	case old := <-s.events:
		// A dropped status can be the one explaining why capture
		// died; make sure it at least reaches the log.
		s.logger.Error("status subscriber stalled, dropping oldest status",
			zap.String("dropped", old.Message))
	default:
	}
	select {
	case s.events <- st:
	default:
	}
}
