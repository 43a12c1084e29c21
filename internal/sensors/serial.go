// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	serial "github.com/jacobsa/go-serial/serial"
	"go.uber.org/zap"

	"github.com/relabs-tech/inertial_activity/internal/imu"
)

// SerialSource reads IMU lines streamed by a microcontroller over a serial
// port. A line is either IMURaw JSON or nine comma separated numbers in the
// order ax,ay,az,gx,gy,gz,mx,my,mz.
type SerialSource struct {
	r    io.Reader
	last *latest
	log  *zap.SugaredLogger
}

// OpenSerial opens portName at baud.
func OpenSerial(portName string, baud uint) (io.ReadWriteCloser, error) {
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
		return nil, fmt.Errorf("serial open %s: %w", portName, err)
	}
	return port, nil
}

// NewSerialSource reads from r. Call Run to start consuming.
func NewSerialSource(r io.Reader, staleAfter time.Duration, log *zap.SugaredLogger) *SerialSource {
	return &SerialSource{r: r, last: newLatest(staleAfter), log: log}
}

// Run consumes lines until EOF, a read error or ctx is done. Close the
// underlying port to unblock a pending read.
func (s *SerialSource) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		raw, err := ParseLine(line)
		if err != nil {
			s.log.Debugw("sensors: skipping serial line", "line", line, "err", err)
			continue
		}
		s.last.put(raw.Sample(time.Now()))
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("serial read: %w", err)
	}
	return nil
}

// Next returns the newest unseen sample.
func (s *SerialSource) Next() (imu.Sample, error) {
	return s.last.take()
}

// ParseLine decodes one serial line.
func ParseLine(line string) (imu.IMURaw, error) {
	var raw imu.IMURaw
	if strings.HasPrefix(line, "{") {
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			return imu.IMURaw{}, fmt.Errorf("json: %w", err)
		}
		return raw, nil
	}

	fields := strings.Split(line, ",")
	if len(fields) != 9 {
		return imu.IMURaw{}, fmt.Errorf("want 9 fields, got %d", len(fields))
	}
	dst := []*float64{&raw.Ax, &raw.Ay, &raw.Az, &raw.Gx, &raw.Gy, &raw.Gz, &raw.Mx, &raw.My, &raw.Mz}
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return imu.IMURaw{}, fmt.Errorf("field %d: %w", i, err)
		}
		*dst[i] = v
	}
	raw.Source = "serial"
	return raw, nil
}
