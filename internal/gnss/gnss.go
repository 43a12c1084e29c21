// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package gnss tracks the receiver's latest position fix from an NMEA stream.
package gnss

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"
	"go.uber.org/zap"
)

// Fix represents a single combined GNSS fix suitable for JSON and MQTT.
type Fix struct {
	Time       string    `json:"time"`        // receiver UTC time of day
	Date       string    `json:"date"`        // receiver date
	Latitude   float64   `json:"lat"`         // decimal degrees
	Longitude  float64   `json:"lon"`         // decimal degrees
	SpeedKnots float64   `json:"speed_knots"` // speed over ground
	CourseDeg  float64   `json:"course_deg"`  // course over ground
	Validity   string    `json:"validity"`    // "A" (valid) / "V" (void)
	Satellites int64     `json:"satellites"`  // from GGA, 0 until seen
	AltitudeM  float64   `json:"altitude_m"`  // from GGA
	Received   time.Time `json:"received"`    // local time of the last RMC
}

// Valid reports whether the receiver flagged the fix as usable.
func (f Fix) Valid() bool {
	return f.Validity == nmea.ValidRMC
}

// Tracker accumulates RMC and GGA sentences into the latest fix.
type Tracker struct {
	log *zap.SugaredLogger
	now func() time.Time

	mu   sync.RWMutex
	fix  Fix
	seen bool
}

// NewTracker returns an empty tracker.
func NewTracker(log *zap.SugaredLogger) *Tracker {
	return &Tracker{log: log, now: time.Now}
}

// Update parses one NMEA line. Lines that are not sentences are ignored;
// malformed sentences return an error and leave the fix untouched.
func (t *Tracker) Update(line string) error {
	line = strings.TrimSpace(line)
	// NMEA sentences usually start with '$'
	if line == "" || !strings.HasPrefix(line, "$") {
		return nil
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		return fmt.Errorf("gnss: parse %q: %w", line, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch m := sentence.(type) {
	case nmea.RMC:
		t.fix.Time = m.Time.String()
		t.fix.Date = m.Date.String()
		t.fix.Latitude = m.Latitude
		t.fix.Longitude = m.Longitude
		t.fix.SpeedKnots = m.Speed
		t.fix.CourseDeg = m.Course
		t.fix.Validity = m.Validity
		t.fix.Received = t.now()
		t.seen = true
	case nmea.GGA:
		t.fix.Satellites = m.NumSatellites
		t.fix.AltitudeM = m.Altitude
	default:
		// other sentence types (GSA, GSV, VTG, ...) carry nothing we publish
	}
	return nil
}

// Latest returns the last fix if an RMC sentence has been seen and the
// receiver marked it valid.
func (t *Tracker) Latest() (Fix, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.seen || !t.fix.Valid() {
		return Fix{}, false
	}
	return t.fix, true
}

// Consume reads NMEA lines from r until EOF, a read error, or ctx is done.
// Parse errors from a noisy receiver are logged at debug and skipped.
func (t *Tracker) Consume(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		if err := t.Update(scanner.Text()); err != nil {
			t.log.Debugw("gnss: skipping sentence", "err", err)
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("gnss: read: %w", err)
	}
	return nil
}

// Open opens the receiver's serial port.
func Open(portName string, baud uint) (io.ReadWriteCloser, error) {
	opts := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              baud,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("gnss: open %s: %w", portName, err)
	}
	return port, nil
}
