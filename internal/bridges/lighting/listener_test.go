package lighting

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

func newTestListener(d Dialer) (*StatusListener, *sleepRecorder, *testLogger) {
	l := NewStatusListener(ListenerConfig{Address: "192.0.2.10:5555", Dialer: d})
	sleeps := &sleepRecorder{}
	l.sleep = sleeps.sleep
	logger := &testLogger{}
	l.SetLogger(logger)
	return l, sleeps, logger
}

func TestListenerDefaults(t *testing.T) {
	l := NewStatusListener(ListenerConfig{Address: "localhost:5555"})

	if l.cfg.ReadTimeout != 5*time.Second {
		t.Errorf("ReadTimeout = %v, want 5s", l.cfg.ReadTimeout)
	}
	if l.cfg.RetryBackoff != 10*time.Second {
		t.Errorf("RetryBackoff = %v, want 10s", l.cfg.RetryBackoff)
	}
	if l.cfg.BufferSize != 1024 {
		t.Errorf("BufferSize = %d, want 1024", l.cfg.BufferSize)
	}
	if l.cfg.LogEvery != 3 {
		t.Errorf("LogEvery = %d, want 3", l.cfg.LogEvery)
	}
}

func TestListenerThrottlesConnectErrors(t *testing.T) {
	dialer := failingDialer()
	l, sleeps, logger := newTestListener(dialer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sleeps.onCall = func(n int) error {
		if n == 5 {
			cancel()
		}
		return nil
	}

	l.Run(ctx)

	if got := dialer.callCount(); got != 5 {
		t.Fatalf("dial attempts = %d, want 5", got)
	}
	// Failures 1 and 4 are logged at error level.
	if n := logger.count("error"); n != 2 {
		t.Errorf("errors logged = %d, want 2", n)
	}
	for i, d := range sleeps.durations() {
		if d != 10*time.Second {
			t.Errorf("backoff %d = %v, want 10s", i, d)
		}
	}
	if l.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", l.State())
	}
}

func TestListenerEmitsRecognisedStatus(t *testing.T) {
	frame, _ := Frame("EE0006060F8000190000A8FE").Bytes()
	conn := &fakeConn{reads: []readResult{
		{err: timeoutError{}},
		{data: []byte{0x01, 0x02, 0x03}},
		{data: frame},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dialer := &fakeDialer{dial: func(call int) (net.Conn, error) {
		if call == 1 {
			return conn, nil
		}
		cancel()
		return nil, context.Canceled
	}}
	l, _, logger := newTestListener(dialer)

	var mu sync.Mutex
	var got []Command
	l.SetOnStatus(func(cmd Command) {
		mu.Lock()
		got = append(got, cmd)
		mu.Unlock()
	})

	l.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("status events = %v, want exactly one", got)
	}
	if got[0].Device != DeviceDiningMain || got[0].Action != ActionOff {
		t.Errorf("status = %v, want dining_main off", got[0])
	}
	if !conn.isClosed() {
		t.Error("connection not closed after peer EOF")
	}
	// EOF from the scripted conn is reported as a peer close.
	if n := logger.count("warn"); n != 1 {
		t.Errorf("warnings = %d, want 1", n)
	}
}

func TestListenerReconnectsAfterReadError(t *testing.T) {
	first := &fakeConn{reads: []readResult{{err: errors.New("connection reset by peer")}}}
	second := &fakeConn{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dialer := &fakeDialer{dial: func(call int) (net.Conn, error) {
		switch call {
		case 1:
			return first, nil
		case 2:
			return second, nil
		default:
			cancel()
			return nil, context.Canceled
		}
	}}
	l, _, logger := newTestListener(dialer)

	l.Run(ctx)

	if dialer.callCount() != 3 {
		t.Errorf("dial attempts = %d, want 3", dialer.callCount())
	}
	if n := logger.count("error"); n != 1 {
		t.Errorf("errors logged = %d, want 1 (read error)", n)
	}
}

func TestListenerResetsFailureCountOnConnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// fail, fail, connect (EOF), fail, cancel
	dialer := &fakeDialer{dial: func(call int) (net.Conn, error) {
		switch call {
		case 3:
			return &fakeConn{}, nil
		case 5:
			cancel()
			return nil, context.Canceled
		default:
			return nil, errRefused
		}
	}}
	l, _, logger := newTestListener(dialer)

	l.Run(ctx)

	// Failure 1 logs; after the reset the next failure is "1" again.
	if n := logger.count("error"); n != 2 {
		t.Errorf("errors logged = %d, want 2", n)
	}
}

func TestListenerStopsOnCancel(t *testing.T) {
	l, _, _ := newTestListener(failingDialer())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
