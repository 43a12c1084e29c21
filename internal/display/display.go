// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package display shows the current activity on a 128x64 SSD1306 OLED.
package display

import (
	"context"
	"fmt"
	"image"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/inertial_activity/internal/pipeline"
)

const (
	width      = 128
	height     = 64
	lineHeight = 13
	maxLines   = height / lineHeight
)

// Drawer is the part of *ssd1306.Dev the display uses.
type Drawer interface {
	Bounds() image.Rectangle
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
}

// Render draws up to four lines of text in the 7x13 basic font.
func Render(lines []string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, width, height))

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		if i == maxLines {
			break
		}
		drawer.Dot = fixed.P(0, (i+1)*lineHeight)
		drawer.DrawString(line)
	}
	return img
}

// ReportLines formats a report for the screen: the two best labels with
// their confidence, then the position if there is one.
func ReportLines(r pipeline.Report) []string {
	lines := make([]string, 0, maxLines)
	for i, p := range r.Predictions {
		if i == 2 {
			break
		}
		lines = append(lines, fmt.Sprintf("%-8s %5.1f%%", p.Label, 100*p.Confidence))
	}
	if len(lines) == 0 {
		lines = append(lines, "No prediction")
	}
	if r.Fix != nil {
		latDir, lat := "N", r.Fix.Latitude
		if lat < 0 {
			latDir, lat = "S", -lat
		}
		lonDir, lon := "E", r.Fix.Longitude
		if lon < 0 {
			lonDir, lon = "W", -lon
		}
		lines = append(lines, fmt.Sprintf("%.4f%s", lat, latDir), fmt.Sprintf("%.4f%s", lon, lonDir))
	}
	return lines
}

// SplashLines is shown until the first report arrives.
func SplashLines() []string {
	return []string{"Inertial Pi", "Activity", "Warming up..."}
}

// OLED is a pipeline observer that redraws the screen on every report.
type OLED struct {
	dev Drawer
}

// NewOLED wraps dev and shows the splash screen.
func NewOLED(dev Drawer) (*OLED, error) {
	o := &OLED{dev: dev}
	if err := o.show(SplashLines()); err != nil {
		return nil, fmt.Errorf("display: splash: %w", err)
	}
	return o, nil
}

// Name implements pipeline.Observer.
func (o *OLED) Name() string { return "display" }

// Publish implements pipeline.Observer.
func (o *OLED) Publish(_ context.Context, r pipeline.Report) error {
	return o.show(ReportLines(r))
}

func (o *OLED) show(lines []string) error {
	return o.dev.Draw(o.dev.Bounds(), Render(lines), image.Point{})
}

// OpenSSD1306 initialises an SSD1306 at addr on the named I2C bus. The
// returned closer releases the bus.
func OpenSSD1306(busName string, addr uint16) (*ssd1306.Dev, i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize periph: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open I2C bus %q: %w", busName, err)
	}
	opts := ssd1306.DefaultOpts
	dev, err := ssd1306.NewI2C(&addressedBus{Bus: bus, addr: addr}, &opts)
	if err != nil {
		bus.Close()
		return nil, nil, fmt.Errorf("failed to initialize display at 0x%02X: %w", addr, err)
	}
	return dev, bus, nil
}

// addressedBus redirects every transaction to addr, for panels strapped to
// a non-default address.
type addressedBus struct {
	i2c.Bus
	addr uint16
}

func (b *addressedBus) Tx(_ uint16, w, r []byte) error {
	return b.Bus.Tx(b.addr, w, r)
}
