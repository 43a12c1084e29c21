// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package display

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/relabs-tech/inertial_activity/internal/classifier"
	"github.com/relabs-tech/inertial_activity/internal/gnss"
	"github.com/relabs-tech/inertial_activity/internal/pipeline"
)

type fakePanel struct {
	frames []image.Image
	err    error
}

func (f *fakePanel) Bounds() image.Rectangle { return image.Rect(0, 0, width, height) }

func (f *fakePanel) Draw(_ image.Rectangle, src image.Image, _ image.Point) error {
	f.frames = append(f.frames, src)
	return f.err
}

func lit(img *image1bit.VerticalLSB, rows image.Rectangle) int {
	n := 0
	for y := rows.Min.Y; y < rows.Max.Y; y++ {
		for x := rows.Min.X; x < rows.Max.X; x++ {
			if img.BitAt(x, y) == image1bit.On {
				n++
			}
		}
	}
	return n
}

func TestRender(t *testing.T) {
	img := Render(nil)
	assert.Equal(t, 0, lit(img, img.Bounds()))

	img = Render([]string{"Walking"})
	assert.Positive(t, lit(img, image.Rect(0, 0, width, lineHeight+3)))
	assert.Equal(t, 0, lit(img, image.Rect(0, 2*lineHeight, width, height)))

	// lines beyond the fourth are dropped, not wrapped
	img = Render([]string{"a", "b", "c", "d", "e", "f"})
	assert.Equal(t, image.Rect(0, 0, width, height), img.Bounds())
}

func TestReportLines(t *testing.T) {
	r := pipeline.Report{Predictions: []classifier.Prediction{
		{Label: classifier.Walking, Confidence: 0.812},
		{Label: classifier.Run, Confidence: 0.1},
		{Label: classifier.Still, Confidence: 0.088},
	}}
	assert.Equal(t, []string{"Walking   81.2%", "Run       10.0%"}, ReportLines(r))

	r.Fix = &gnss.Fix{Latitude: -33.8688, Longitude: 151.2093}
	lines := ReportLines(r)
	require.Len(t, lines, 4)
	assert.Equal(t, "33.8688S", lines[2])
	assert.Equal(t, "151.2093E", lines[3])

	assert.Equal(t, []string{"No prediction"}, ReportLines(pipeline.Report{}))
}

func TestOLEDObserver(t *testing.T) {
	panel := &fakePanel{}
	o, err := NewOLED(panel)
	require.NoError(t, err)
	require.Len(t, panel.frames, 1, "splash is drawn at start")
	assert.Equal(t, "display", o.Name())

	require.NoError(t, o.Publish(context.Background(), pipeline.Report{
		Predictions: []classifier.Prediction{{Label: classifier.Train, Confidence: 1}},
	}))
	require.Len(t, panel.frames, 2)

	panel.err = errors.New("i2c nack")
	require.Error(t, o.Publish(context.Background(), pipeline.Report{}))

	_, err = NewOLED(&fakePanel{err: errors.New("i2c nack")})
	require.Error(t, err)
}

func TestAddressedBus(t *testing.T) {
	pb := &i2ctest.Playback{Ops: []i2ctest.IO{{Addr: 0x3D, W: []byte{0x00, 0xAF}}}}
	b := &addressedBus{Bus: pb, addr: 0x3D}
	require.NoError(t, b.Tx(0x3C, []byte{0x00, 0xAF}, nil))
	require.NoError(t, pb.Close())
}
