package location

import (
	"errors"
	"sync"
	"testing"
	"time"

	"mappls-navigation/internal/navigation"
)

type sentCommand struct {
	command string
	req     Request
}

type commandLog struct {
	mu   sync.Mutex
	sent []sentCommand
	err  error
}

func (l *commandLog) send(command string, req Request) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.sent = append(l.sent, sentCommand{command, req})
	return nil
}

func (l *commandLog) last() sentCommand {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sent[len(l.sent)-1]
}

func TestBrowserWatchRoundTrip(t *testing.T) {
	log := &commandLog{}
	b := NewBrowser(log.send, navigation.SystemClock())

	var fixes []navigation.GeoFix
	var errs []error
	id, err := b.Watch(navigation.PositionOptions{EnableHighAccuracy: true, Timeout: 10 * time.Second},
		func(f navigation.GeoFix) { fixes = append(fixes, f) },
		func(err error) { errs = append(errs, err) },
	)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	cmd := log.last()
	if cmd.command != CommandWatch || cmd.req.ID != id || !cmd.req.EnableHighAccuracy || cmd.req.Timeout != 10000 {
		t.Errorf("sent %+v", cmd)
	}

	b.DeliverFix(id, navigation.GeoFix{Latitude: 1})
	b.DeliverFix(id, navigation.GeoFix{Latitude: 2})
	b.DeliverError(id, navigation.CodeTimeout, "")
	b.DeliverFix(id+1, navigation.GeoFix{Latitude: 3})

	if len(fixes) != 2 {
		t.Errorf("got %d fixes, want 2", len(fixes))
	}
	if len(errs) != 1 || !errors.Is(errs[0], navigation.ErrTimeout) {
		t.Errorf("errs = %v", errs)
	}

	b.ClearWatch(id)
	if cmd := log.last(); cmd.command != CommandClear || cmd.req.ID != id {
		t.Errorf("sent %+v, want clear", cmd)
	}
	b.DeliverFix(id, navigation.GeoFix{Latitude: 4})
	if len(fixes) != 2 {
		t.Error("fix delivered after ClearWatch")
	}
}

func TestBrowserCurrentPositionIsOneShot(t *testing.T) {
	log := &commandLog{}
	b := NewBrowser(log.send, navigation.SystemClock())

	calls := 0
	b.CurrentPosition(navigation.PositionOptions{EnableHighAccuracy: true},
		func(navigation.GeoFix) { calls++ },
		func(error) { t.Error("unexpected error") },
	)
	id := log.last().req.ID
	if log.last().command != CommandCurrent {
		t.Fatalf("sent %+v", log.last())
	}
	b.DeliverFix(id, navigation.GeoFix{})
	b.DeliverFix(id, navigation.GeoFix{})
	if calls != 1 {
		t.Errorf("onFix called %d times, want 1", calls)
	}
}

func TestBrowserCurrentPositionTimesOut(t *testing.T) {
	b := NewBrowser((&commandLog{}).send, navigation.SystemClock())

	errCh := make(chan error, 1)
	b.CurrentPosition(navigation.PositionOptions{Timeout: time.Millisecond},
		func(navigation.GeoFix) { t.Error("unexpected fix") },
		func(err error) { errCh <- err },
	)

	select {
	case err := <-errCh:
		if !errors.Is(err, navigation.ErrTimeout) {
			t.Errorf("error = %v, want ErrTimeout", err)
		}
	case <-time.After(responseGrace + 2*time.Second):
		t.Fatal("one-shot request never timed out")
	}
}

func TestBrowserErrorCodes(t *testing.T) {
	tests := []struct {
		code int
		want error
	}{
		{0, navigation.ErrUnsupported},
		{navigation.CodePermissionDenied, navigation.ErrPermissionDenied},
		{navigation.CodePositionUnavailable, navigation.ErrPositionUnavailable},
	}
	for _, tt := range tests {
		log := &commandLog{}
		b := NewBrowser(log.send, navigation.SystemClock())
		var got error
		id, _ := b.Watch(navigation.PositionOptions{}, func(navigation.GeoFix) {}, func(err error) { got = err })
		b.DeliverError(id, tt.code, "")
		if !errors.Is(got, tt.want) {
			t.Errorf("code %d: error = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestBrowserSendFailure(t *testing.T) {
	log := &commandLog{err: errors.New("connection closed")}
	b := NewBrowser(log.send, navigation.SystemClock())

	if _, err := b.Watch(navigation.PositionOptions{}, func(navigation.GeoFix) {}, func(error) {}); !errors.Is(err, navigation.ErrPositionUnavailable) {
		t.Errorf("Watch error = %v, want ErrPositionUnavailable", err)
	}

	b.Close()
	if _, err := b.Watch(navigation.PositionOptions{}, func(navigation.GeoFix) {}, func(error) {}); !errors.Is(err, navigation.ErrUnsupported) {
		t.Errorf("Watch after Close error = %v, want ErrUnsupported", err)
	}
}
