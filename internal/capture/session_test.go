package capture

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"packetscope/internal/models"
	"packetscope/internal/ring"
)

// fakeHandle is a synthetic capture source driven by the test.
type fakeHandle struct {
	ch              chan gopacket.Packet
	mu              sync.Mutex
	closed          bool
	readErr         error
	statsAfterClose bool
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{ch: make(chan gopacket.Packet, 16)}
}

func (f *fakeHandle) packets() <-chan gopacket.Packet { return f.ch }
func (f *fakeHandle) stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		// The real handle would be reading freed libpcap state here.
		f.statsAfterClose = true
	}
	return Stats{Received: len(f.ch)}
}
func (f *fakeHandle) close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}
func (f *fakeHandle) err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readErr
}
func (f *fakeHandle) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func stubOpen(t *testing.T, fn func(device string, opts Options) (captureHandle, error)) {
	t.Helper()
	orig := openHandle
	openHandle = fn
	t.Cleanup(func() { openHandle = orig })
}

func newTestSession(t *testing.T, capacity int) (*Session, *ring.Buffer) {
	t.Helper()
	buf := ring.New(capacity)
	return NewSession(buf, DefaultOptions(), zap.NewNop()), buf
}

func waitStatus(t *testing.T, s *Session) models.CaptureStatus {
	t.Helper()
	select {
	case st := <-s.Events():
		return st
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for capture status")
		return models.CaptureStatus{}
	}
}

func assertNoStatus(t *testing.T, s *Session) {
	t.Helper()
	select {
	case st := <-s.Events():
		t.Fatalf("unexpected capture status: %+v", st)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStartCaptureStop(t *testing.T) {
	fake := newFakeHandle()
	stubOpen(t, func(device string, opts Options) (captureHandle, error) {
		assert.Equal(t, "eth0", device)
		return fake, nil
	})

	s, buf := newTestSession(t, 8)
	// Leftovers from a previous session must be cleared by a
	// successful start.
	buf.Push(models.PacketRecord{Protocol: "UDP"})

	require.NoError(t, s.Start("eth0"))

	st := waitStatus(t, s)
	assert.True(t, st.Success)
	assert.Equal(t, "eth0", st.Interface)
	assert.Equal(t, Capturing, s.State())
	assert.Equal(t, "eth0", s.ActiveInterface())
	assert.Equal(t, 0, buf.Len())

	fake.ch <- tcpPacket(t, "10.0.0.1", "10.0.0.2", 1234, 80, 1)
	fake.ch <- udpPacket(t, "10.0.0.2", "10.0.0.1", 53, 53000)
	require.Eventually(t, func() bool { return buf.Len() == 2 }, time.Second, 5*time.Millisecond)

	snap := buf.Snapshot()
	assert.Equal(t, "UDP", snap[0].Protocol) // newest first
	assert.Equal(t, "TCP", snap[1].Protocol)

	require.NoError(t, s.Stop())
	assert.Equal(t, Idle, s.State())
	assert.True(t, fake.isClosed())

	st = waitStatus(t, s)
	assert.True(t, st.Success)
	assert.Equal(t, "eth0", st.Interface)

	// The loop is gone; nothing drains the source and the buffer
	// stays fixed.
	select {
	case fake.ch <- tcpPacket(t, "10.0.0.1", "10.0.0.2", 1, 2, 3):
	default:
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, buf.Len())
}

func TestStartWhileCapturing(t *testing.T) {
	stubOpen(t, func(string, Options) (captureHandle, error) { return newFakeHandle(), nil })

	s, _ := newTestSession(t, 8)
	require.NoError(t, s.Start("eth0"))
	waitStatus(t, s)

	err := s.Start("eth1")
	assert.ErrorIs(t, err, ErrAlreadyCapturing)
	assert.Equal(t, Capturing, s.State())
	assert.Equal(t, "eth0", s.ActiveInterface())
	assertNoStatus(t, s)

	require.NoError(t, s.Stop())
}

func TestStopWhileIdle(t *testing.T) {
	s, _ := newTestSession(t, 8)
	err := s.Stop()
	assert.ErrorIs(t, err, ErrNotCapturing)
	assert.Equal(t, Idle, s.State())
	assertNoStatus(t, s)
}

func TestOpenFailure(t *testing.T) {
	stubOpen(t, func(string, Options) (captureHandle, error) {
		return nil, errors.New("you don't have permission to capture on that device")
	})

	s, buf := newTestSession(t, 8)
	buf.Push(models.PacketRecord{Protocol: "TCP"})

	require.NoError(t, s.Start("eth0"))

	st := waitStatus(t, s)
	assert.False(t, st.Success)
	assert.Contains(t, st.Message, "permission")
	assert.Equal(t, Failed, s.State())
	// A failed open leaves prior history intact.
	assert.Equal(t, 1, buf.Len())

	// The operator may retry from Failed.
	fake := newFakeHandle()
	stubOpen(t, func(string, Options) (captureHandle, error) { return fake, nil })
	require.NoError(t, s.Start("eth0"))
	st = waitStatus(t, s)
	assert.True(t, st.Success)
	assert.Equal(t, Capturing, s.State())
	require.NoError(t, s.Stop())
}

func TestStartDefaultNoInterface(t *testing.T) {
	origNet := netInterfaces
	t.Cleanup(func() { netInterfaces = origNet })
	netInterfaces = func() ([]net.Interface, error) {
		return []net.Interface{{Name: "lo", Flags: net.FlagUp | net.FlagLoopback}}, nil
	}

	s, buf := newTestSession(t, 8)
	buf.Push(models.PacketRecord{Protocol: "TCP"})

	err := s.Start("")
	assert.ErrorIs(t, err, ErrNoDefaultInterface)
	assert.Equal(t, Idle, s.State())
	assert.Equal(t, 1, buf.Len(), "no buffer clear on failed resolution")
	assertNoStatus(t, s)
}

func TestSourceFailureMidSession(t *testing.T) {
	fake := newFakeHandle()
	stubOpen(t, func(string, Options) (captureHandle, error) { return fake, nil })

	s, buf := newTestSession(t, 8)
	require.NoError(t, s.Start("eth0"))
	waitStatus(t, s)

	fake.ch <- tcpPacket(t, "10.0.0.1", "10.0.0.2", 1234, 80, 1)
	require.Eventually(t, func() bool { return buf.Len() == 1 }, time.Second, 5*time.Millisecond)

	fake.mu.Lock()
	fake.readErr = errors.New("the device went away")
	fake.mu.Unlock()
	close(fake.ch)

	st := waitStatus(t, s)
	assert.False(t, st.Success)
	assert.Contains(t, st.Message, "went away")
	require.Eventually(t, func() bool { return s.State() == Failed }, time.Second, 5*time.Millisecond)
	assert.True(t, fake.isClosed())
	// Buffer contents are retained for inspection.
	assert.Equal(t, 1, buf.Len())
}

// TestStatsDuringSourceFailure polls Stats from a foreground goroutine
// while the source dies, the way a UI refresh tick races an async
// failure. The counters read must always complete before the loop
// closes the handle.
func TestStatsDuringSourceFailure(t *testing.T) {
	fake := newFakeHandle()
	stubOpen(t, func(string, Options) (captureHandle, error) { return fake, nil })

	s, _ := newTestSession(t, 8)
	require.NoError(t, s.Start("eth0"))
	waitStatus(t, s)

	statsDone := make(chan struct{})
	go func() {
		defer close(statsDone)
		for i := 0; i < 1000; i++ {
			s.Stats()
		}
	}()

	close(fake.ch)

	st := waitStatus(t, s)
	assert.False(t, st.Success)
	<-statsDone

	assert.Equal(t, Stats{}, s.Stats(), "no handle after failure")

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.False(t, fake.statsAfterClose, "counters were read from a closed handle")
}

func TestEmitDropsOldestWhenStalled(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	s := NewSession(ring.New(8), DefaultOptions(), zap.New(core))

	// Nobody drains; one more status than the channel holds.
	for i := 0; i <= 16; i++ {
		s.emit(models.CaptureStatus{Success: true, Message: fmt.Sprintf("status %d", i)})
	}

	first := <-s.Events()
	assert.Equal(t, "status 1", first.Message, "oldest status is the one dropped")

	entries := logs.FilterMessage("status subscriber stalled, dropping oldest status").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	require.Len(t, entries[0].Context, 1)
	assert.Equal(t, "status 0", entries[0].Context[0].String)
}

func TestStatsWhileCapturing(t *testing.T) {
	fake := newFakeHandle()
	stubOpen(t, func(string, Options) (captureHandle, error) { return fake, nil })

	s, _ := newTestSession(t, 8)
	assert.Equal(t, Stats{}, s.Stats())

	require.NoError(t, s.Start("eth0"))
	waitStatus(t, s)
	_ = s.Stats() // live handle, zero counters on the fake

	require.NoError(t, s.Stop())
	assert.Equal(t, Stats{}, s.Stats())
}
