package statusbar

import (
	"context"
	"errors"
	"syscall"
	"testing"
)

func TestParsePgrep(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"1234\n", 1234, false},
		{"1234\n5678\n", 1234, false},
		{"", -1, true},
		{"abc\n", -1, true},
	}
	for _, tt := range tests {
		got, err := parsePgrep(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parsePgrep(%q) = %d, %v", tt.in, got, err)
		}
	}
}

func fakeNotifier(pid int, lookupErr error) (*Notifier, *[]syscall.Signal) {
	var sent []syscall.Signal
	n := New("i3blocks", 21)
	n.lookup = func(context.Context, string) (int, error) { return pid, lookupErr }
	n.send = func(p int, sig syscall.Signal) error {
		if p != pid {
			return errors.New("wrong pid")
		}
		sent = append(sent, sig)
		return nil
	}
	return n, &sent
}

func TestNotifySendsRealtimeSignal(t *testing.T) {
	n, sent := fakeNotifier(4242, nil)
	if err := n.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := n.Notify(); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if len(*sent) != 1 || (*sent)[0] != syscall.Signal(55) {
		t.Errorf("sent = %v, want [55]", *sent)
	}
}

func TestNotifyWithoutProcess(t *testing.T) {
	n, sent := fakeNotifier(-1, ErrProcessNotFound)
	if err := n.Refresh(context.Background()); !errors.Is(err, ErrProcessNotFound) {
		t.Fatalf("Refresh error = %v", err)
	}
	if err := n.Notify(); !errors.Is(err, ErrProcessNotFound) {
		t.Errorf("Notify error = %v, want ErrProcessNotFound", err)
	}
	if len(*sent) != 0 {
		t.Errorf("nothing should be sent, got %v", *sent)
	}
	if n.PID() != -1 {
		t.Errorf("PID = %d, want -1", n.PID())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	n, _ := fakeNotifier(7, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
	if n.PID() != 7 {
		t.Errorf("PID = %d, want 7", n.PID())
	}
}
