package xcanvas_test

import (
	"image"
	"image/color"
	"testing"

	"github.com/ItsNotGoodName/x-traybar/internal/xcanvas"
	"github.com/ItsNotGoodName/x-traybar/internal/xconn/xconntest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/draw"
)

func newCanvas(w, h uint16) (*xcanvas.Canvas, *xconntest.Conn) {
	conn := xconntest.New()
	return xcanvas.New(conn, 5, 6, 24, w, h), conn
}

func TestClear(t *testing.T) {
	canvas, _ := newCanvas(2, 2)

	canvas.FillColor(draw.Src, color.NRGBA{R: 0xff, A: 0xff})
	canvas.Clear()

	for _, b := range canvas.Image().Pix {
		require.Equal(t, byte(0), b)
	}
}

func TestDrawImage(t *testing.T) {
	canvas, _ := newCanvas(2, 2)

	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			src.SetNRGBA(x, y, color.NRGBA{G: 0xff, A: 0xff})
		}
	}

	canvas.FillColor(draw.Src, color.NRGBA{R: 0xff, A: 0xff})
	canvas.DrawImage(draw.Src, src)

	assert.Equal(t, color.RGBA{G: 0xff, A: 0xff}, canvas.Image().RGBAAt(0, 0), "source operator must replace, not blend")
}

func TestFillColor(t *testing.T) {
	canvas, _ := newCanvas(2, 2)

	canvas.FillColor(draw.Src, color.NRGBA{G: 0xff, A: 0xff})

	// A fully transparent overlay leaves the surface untouched.
	canvas.FillColor(draw.Over, color.NRGBA{})
	assert.Equal(t, color.RGBA{G: 0xff, A: 0xff}, canvas.Image().RGBAAt(1, 1))

	// An opaque overlay replaces it.
	canvas.FillColor(draw.Over, color.NRGBA{B: 0xff, A: 0xff})
	assert.Equal(t, color.RGBA{B: 0xff, A: 0xff}, canvas.Image().RGBAAt(1, 1))
}

func TestFlush(t *testing.T) {
	canvas, conn := newCanvas(2, 2)

	canvas.FillColor(draw.Src, color.NRGBA{R: 0xff, A: 0xff})
	require.NoError(t, canvas.Flush())

	require.Equal(t, []string{"PutImage"}, conn.Ops())

	req := conn.Requests[0]
	assert.Equal(t, uint32(5), req.Target)
	require.Len(t, req.Data, 2*2*4)

	// ZPixmap pixels are BGRA.
	assert.Equal(t, []byte{0x00, 0x00, 0xff, 0xff}, req.Data[:4])
}

func TestFlush_unsupportedDepth(t *testing.T) {
	conn := xconntest.New()
	canvas := xcanvas.New(conn, 5, 6, 16, 2, 2)

	assert.Error(t, canvas.Flush())
	assert.Empty(t, conn.Ops(), "no pixel data must be sent for unsupported depths")
}

func TestFlush_chunked(t *testing.T) {
	canvas, conn := newCanvas(128, 200)

	require.NoError(t, canvas.Flush())

	require.Equal(t, []string{"PutImage", "PutImage"}, conn.Ops())
	assert.Len(t, conn.Requests[0].Data, 128*128*4)
	assert.Len(t, conn.Requests[1].Data, 128*72*4)
}
