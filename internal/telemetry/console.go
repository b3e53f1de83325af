// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package telemetry

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"io"
	"os"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

var (
	colorOK     = color.NRGBA{0x00, 0xc0, 0x00, 0xff}
	colorFailed = color.NRGBA{0xd0, 0x00, 0x00, 0xff}
)

// Console prints batches to a terminal. With colors enabled each batch
// starts with a strip of one block per sensor, green when it was read and
// red when it failed.
type Console struct {
	w       io.Writer
	color   bool
	palette *ansi256.Palette
	buf     bytes.Buffer
}

// NewConsole returns a Console writing to f. When color is nil, colors are
// enabled if f is a terminal.
func NewConsole(f *os.File, color *bool) *Console {
	enabled := isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	if color != nil {
		enabled = *color
	}
	if enabled {
		return newConsole(colorable.NewColorable(f), true)
	}
	return newConsole(colorable.NewNonColorable(f), false)
}

func newConsole(w io.Writer, color bool) *Console {
	return &Console{w: w, color: color, palette: ansi256.Default}
}

// Publish implements Sink.
func (c *Console) Publish(ctx context.Context, batch []Reading) error {
	c.buf.Reset()
	if c.color {
		_, _ = c.buf.WriteString("\033[0m")
		seen := map[string]bool{}
		for _, r := range batch {
			if seen[r.Sensor] {
				continue
			}
			seen[r.Sensor] = true
			col := colorOK
			if r.Err != "" {
				col = colorFailed
			}
			_, _ = io.WriteString(&c.buf, c.palette.Block(col))
		}
		_, _ = c.buf.WriteString("\033[0m\n")
	}
	for _, r := range batch {
		ts := r.Time.Format("15:04:05")
		if r.Err != "" {
			fmt.Fprintf(&c.buf, "%s %-12s error: %s\n", ts, r.Sensor, r.Err)
			continue
		}
		fmt.Fprintf(&c.buf, "%s %-12s %-12s %.3f %s\n", ts, r.Sensor, r.Quantity, r.Value, r.Unit)
	}
	_, err := c.buf.WriteTo(c.w)
	return err
}

// Close resets the terminal attributes.
func (c *Console) Close() error {
	if !c.color {
		return nil
	}
	_, err := io.WriteString(c.w, "\033[0m")
	return err
}

var _ Sink = &Console{}
