package logx

import (
	"context"
	"strings"
	"testing"
	"time"
)

type chanSink struct{ ch chan [2]string }

func (c chanSink) Alert(_ context.Context, subject, body string) error {
	c.ch <- [2]string{subject, body}
	return nil
}

func TestAlertSinkForwardsErrorsOnly(t *testing.T) {
	sink := chanSink{ch: make(chan [2]string, 4)}
	svc, log := New(Config{Level: "debug", Alert: AlertConfig{Enabled: true, MinLevel: "error", PerMinute: 60}}, sink)
	defer svc.Close()

	log.Warn("just a warning")
	log.Error("fetch exploded", String("location", "Singapore"))

	select {
	case got := <-sink.ch:
		if !strings.Contains(got[0], "ERROR") || !strings.Contains(got[0], "fetch exploded") {
			t.Fatalf("unexpected subject %q", got[0])
		}
		if !strings.Contains(got[1], "location: Singapore") {
			t.Fatalf("body missing field: %q", got[1])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("alert was not delivered")
	}

	select {
	case got := <-sink.ch:
		t.Fatalf("unexpected extra alert: %v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestFormatAlertNonJSON(t *testing.T) {
	t.Parallel()
	subject, body := formatAlert([]byte("  plain text line \n"))
	if subject != "[praypal] alert" {
		t.Fatalf("subject = %q", subject)
	}
	if body != "plain text line" {
		t.Fatalf("body = %q", body)
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.Info("ignored")
	l.With(String("k", "v")).Error("ignored")
}
