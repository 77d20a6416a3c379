// Package xcanvas binds a CPU-side drawing surface to an X pixmap. Drawing
// happens locally with image/draw operators and Flush pushes the result to
// the server through the bound graphics context.
package xcanvas

import (
	"fmt"
	"image"
	"image/color"

	"github.com/ItsNotGoodName/x-traybar/internal/xconn"
	"github.com/jezek/xgb/xproto"
	"golang.org/x/image/draw"
)

// Max bytes of pixel data per PutImage request, stays below the X server's
// maximum request length.
const putImageChunk = 65536

func New(conn xconn.Conn, pixmap xproto.Pixmap, gc xproto.Gcontext, depth byte, w, h uint16) *Canvas {
	return &Canvas{
		conn:   conn,
		pixmap: pixmap,
		gc:     gc,
		depth:  depth,
		img:    image.NewRGBA(image.Rect(0, 0, int(w), int(h))),
	}
}

type Canvas struct {
	conn   xconn.Conn
	pixmap xproto.Pixmap
	gc     xproto.Gcontext
	depth  byte
	img    *image.RGBA
}

func (c *Canvas) Bounds() image.Rectangle {
	return c.img.Bounds()
}

func (c *Canvas) Image() *image.RGBA {
	return c.img
}

// Clear resets the surface to fully transparent.
func (c *Canvas) Clear() {
	for i := range c.img.Pix {
		c.img.Pix[i] = 0
	}
}

// DrawImage composites src over the whole surface with the given operator.
func (c *Canvas) DrawImage(op draw.Op, src image.Image) {
	draw.Draw(c.img, c.img.Bounds(), src, src.Bounds().Min, op)
}

// FillColor composites a flat color over the whole surface with the given
// operator.
func (c *Canvas) FillColor(op draw.Op, col color.Color) {
	draw.Draw(c.img, c.img.Bounds(), image.NewUniform(col), image.Point{}, op)
}

// Flush writes the surface into the bound pixmap. Only 32 bits per pixel
// formats are supported; other depths fail so callers can skip the
// composite instead of sending malformed data.
func (c *Canvas) Flush() error {
	if c.depth != 24 && c.depth != 32 {
		return fmt.Errorf("unsupported depth %d for zpixmap flush", c.depth)
	}

	bounds := c.img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil
	}

	stride := width * 4
	rows := putImageChunk / stride
	if rows < 1 {
		rows = 1
	}

	for y := 0; y < height; y += rows {
		n := rows
		if y+n > height {
			n = height - y
		}

		data := make([]byte, n*stride)
		for row := 0; row < n; row++ {
			src := c.img.Pix[(y+row)*c.img.Stride : (y+row)*c.img.Stride+stride]
			dst := data[row*stride:]
			// RGBA to ZPixmap BGRA.
			for i := 0; i < stride; i += 4 {
				dst[i] = src[i+2]
				dst[i+1] = src[i+1]
				dst[i+2] = src[i]
				dst[i+3] = src[i+3]
			}
		}

		if err := c.conn.PutImage(xproto.Drawable(c.pixmap), c.gc, uint16(width), uint16(n), 0, int16(y), c.depth, data); err != nil {
			return err
		}
	}

	return nil
}
