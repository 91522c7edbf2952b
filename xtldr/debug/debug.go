// Package debug parses the loader's DEBUG= configuration value and
// wires up a zerolog.Logger fanning out to every target it names.
package debug

import (
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xt-sys/exectos/kernel/errors"
)

// comPortAddresses holds the well-known I/O port base for COM1-COM4,
// used when a target names a port number without an explicit address.
var comPortAddresses = [...]uint32{0x3F8, 0x2F8, 0x3E8, 0x2E8}

// Target is one parsed element of a DEBUG= configuration value: either
// a serial port (optionally with an explicit I/O address and baud
// rate) or the screen console.
type Target struct {
	Screen  bool
	Port    uint
	Address uint32
	Baud    uint32
}

// ComPortAddress returns the I/O port base to use for this target:
// the explicit Address if one was supplied, otherwise the well-known
// address for Port (COM1 if Port is 0).
func (t Target) ComPortAddress() (uint32, *errors.Error) {
	if t.Address != 0 {
		return t.Address, nil
	}
	port := t.Port
	if port == 0 {
		port = 1
	}
	if port > uint(len(comPortAddresses)) {
		return 0, errors.ErrInvalidParameter
	}
	return comPortAddresses[port-1], nil
}

// ParseTargets parses a DEBUG= value: semicolon-separated targets,
// each either "SCREEN" or "COM<N>[:0x<base>][,<baud>]".
func ParseTargets(spec string) ([]Target, *errors.Error) {
	var targets []Target

	for _, raw := range strings.Split(spec, ";") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		if strings.EqualFold(raw, "SCREEN") {
			targets = append(targets, Target{Screen: true})
			continue
		}

		target, err := parseComTarget(raw)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}

	return targets, nil
}

func parseComTarget(raw string) (Target, *errors.Error) {
	if !strings.HasPrefix(strings.ToUpper(raw), "COM") {
		return Target{}, errors.New("debug", "unsupported debug port: "+raw, errors.CodeInvalidParameter)
	}
	rest := raw[3:]

	var baudField string
	if idx := strings.IndexByte(rest, ','); idx >= 0 {
		baudField = rest[idx+1:]
		rest = rest[:idx]
	}

	var addressField string
	if idx := strings.IndexByte(rest, ':'); idx >= 0 {
		addressField = rest[idx+1:]
		rest = rest[:idx]
	}

	var target Target
	if rest != "" {
		n, err := strconv.ParseUint(rest, 10, 32)
		if err != nil {
			return Target{}, errors.New("debug", "malformed COM port number: "+raw, errors.CodeInvalidParameter)
		}
		target.Port = uint(n)
	}

	if addressField != "" {
		addressField = strings.TrimPrefix(strings.ToLower(addressField), "0x")
		n, err := strconv.ParseUint(addressField, 16, 32)
		if err != nil {
			return Target{}, errors.New("debug", "malformed COM port address: "+raw, errors.CodeInvalidParameter)
		}
		target.Address = uint32(n)
	}

	if baudField != "" {
		n, err := strconv.ParseUint(baudField, 10, 32)
		if err != nil {
			return Target{}, errors.New("debug", "malformed baud rate: "+raw, errors.CodeInvalidParameter)
		}
		target.Baud = uint32(n)
	}

	return target, nil
}

// Writers maps each parsed target to the io.Writer that reaches it:
// SerialFor resolves a serial Target to its writer; screen is used
// for every Target with Screen set.
type Writers struct {
	Screen    io.Writer
	SerialFor func(Target) (io.Writer, *errors.Error)
}

// NewLogger builds a zerolog.Logger that writes every event to each
// target named by targets, fanning out through w.
func NewLogger(targets []Target, w Writers) (zerolog.Logger, *errors.Error) {
	var writers []io.Writer

	for _, target := range targets {
		if target.Screen {
			if w.Screen == nil {
				return zerolog.Logger{}, errors.ErrNotReady
			}
			writers = append(writers, w.Screen)
			continue
		}

		if w.SerialFor == nil {
			return zerolog.Logger{}, errors.ErrNotReady
		}
		writer, err := w.SerialFor(target)
		if err != nil {
			return zerolog.Logger{}, err
		}
		writers = append(writers, writer)
	}

	if len(writers) == 0 {
		return zerolog.Nop(), nil
	}

	return zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger(), nil
}
