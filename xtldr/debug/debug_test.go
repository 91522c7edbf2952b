package debug

import (
	"bytes"
	"io"
	"testing"

	"github.com/xt-sys/exectos/kernel/errors"
)

func TestParseTargetsScreenAndDefaultCom(t *testing.T) {
	targets, err := ParseTargets("COM1;SCREEN")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(targets))
	}
	if targets[0].Screen || targets[0].Port != 1 {
		t.Fatalf("expected first target to be COM1, got %+v", targets[0])
	}
	if !targets[1].Screen {
		t.Fatalf("expected second target to be SCREEN, got %+v", targets[1])
	}
}

func TestParseTargetsCustomAddressAndBaud(t *testing.T) {
	targets, err := ParseTargets("COM:0x2E8,9600")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(targets) != 1 {
		t.Fatalf("expected 1 target, got %d", len(targets))
	}
	target := targets[0]
	if target.Address != 0x2E8 || target.Baud != 9600 {
		t.Fatalf("expected address 0x2E8 baud 9600; got %+v", target)
	}
}

func TestParseTargetsRejectsUnsupportedPort(t *testing.T) {
	if _, err := ParseTargets("LPT1"); err == nil {
		t.Fatal("expected an error for an unsupported debug port")
	}
}

func TestComPortAddressDefaultsToCom1(t *testing.T) {
	addr, err := Target{}.ComPortAddress()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != 0x3F8 {
		t.Fatalf("expected default COM1 address 0x3F8; got %#x", addr)
	}
}

func TestComPortAddressRejectsOutOfRangePort(t *testing.T) {
	if _, err := (Target{Port: 99}).ComPortAddress(); err == nil {
		t.Fatal("expected an error for an out-of-range COM port number")
	}
}

func TestNewLoggerFansOutToEveryTarget(t *testing.T) {
	var screenBuf, serialBuf bytes.Buffer

	targets := []Target{{Screen: true}, {Port: 1}}
	logger, err := NewLogger(targets, Writers{
		Screen: &screenBuf,
		SerialFor: func(Target) (io.Writer, *errors.Error) {
			return &serialBuf, nil
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	logger.Info().Msg("hello")

	if screenBuf.Len() == 0 {
		t.Fatal("expected the screen writer to receive the log line")
	}
	if serialBuf.Len() == 0 {
		t.Fatal("expected the serial writer to receive the log line")
	}
}

func TestNewLoggerWithNoTargetsIsNoop(t *testing.T) {
	logger, err := NewLogger(nil, Writers{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Info().Msg("discarded")
}
