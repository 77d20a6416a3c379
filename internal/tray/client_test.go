package tray

import (
	"errors"
	"image"
	"image/color"
	"io"
	"log/slog"
	"testing"

	"github.com/ItsNotGoodName/x-traybar/internal/xconn/xconntest"
	"github.com/ItsNotGoodName/x-traybar/internal/xembed"
	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testParent xproto.Window = 2
	testIcon   xproto.Window = 50

	testVisual   xproto.Visualid = 7
	testColormap xproto.Colormap = 9
)

type fakeSlice struct {
	img *image.RGBA
}

func (s *fakeSlice) Surface() image.Image {
	return s.img
}

type fakeBackground struct {
	fill     color.NRGBA
	observes int
	err      error
}

func (b *fakeBackground) Observe(rect image.Rectangle, win xproto.Window) (Slice, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.observes++

	img := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	for y := 0; y < rect.Dy(); y++ {
		for x := 0; x < rect.Dx(); x++ {
			img.Set(x, y, b.fill)
		}
	}
	return &fakeSlice{img: img}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestConn() *xconntest.Conn {
	conn := xconntest.New()
	conn.SetWindow(testIcon, 24, testVisual, testColormap, image.Pt(24, 24))
	return conn
}

func newTestClient(t *testing.T) (*Client, *xconntest.Conn, *fakeBackground) {
	t.Helper()

	conn := newTestConn()
	bg := &fakeBackground{}

	c, err := New(discardLogger(), conn, bg, testParent, testIcon, Size{W: 16, H: 16}, color.NRGBA{})
	require.NoError(t, err)

	conn.Reset()
	return c, conn, bg
}

func put32s(values ...uint32) []byte {
	data := make([]byte, len(values)*4)
	for i, v := range values {
		xgb.Put32(data[i*4:], v)
	}
	return data
}

func TestNew(t *testing.T) {
	conn := newTestConn()
	bg := &fakeBackground{}

	c, err := New(discardLogger(), conn, bg, testParent, testIcon, Size{W: 16, H: 16}, color.NRGBA{})
	require.NoError(t, err)

	// Wrapper creation, backing pixmap, gcontext, then the first composite.
	assert.Equal(t, []string{
		"CreateWindow",
		"CreatePixmap",
		"ChangeWindowAttributes",
		"CreateGC",
		"PutImage",
		"ClearArea",
		"ClearArea",
		"Sync",
	}, conn.Ops())

	create := conn.Requests[0]
	assert.Equal(t, byte(24), create.Depth, "wrapper must inherit the icon's depth")
	assert.Equal(t, testVisual, create.Visual, "wrapper must inherit the icon's visual")
	assert.Equal(t, uint32(testColormap), create.Values[len(create.Values)-1], "wrapper must inherit the icon's colormap")

	pixmap := conn.Requests[1]
	assert.Equal(t, byte(24), pixmap.Depth)
	assert.Equal(t, []uint32{16, 16}, pixmap.Values)

	assert.Equal(t, uint32(c.Embedder()), conn.Requests[2].Target)
	assert.Equal(t, 1, bg.observes)
	assert.False(t, c.Mapped())
}

func TestNew_pixmapFailure(t *testing.T) {
	conn := newTestConn()
	conn.Errs["CreatePixmap"] = errors.New("boom")

	_, err := New(discardLogger(), conn, &fakeBackground{}, testParent, testIcon, Size{W: 16, H: 16}, color.NRGBA{})
	require.Error(t, err)

	ops := conn.Ops()
	assert.Equal(t, "DestroyWindow", ops[len(ops)-1], "wrapper must not outlive a failed construction")
}

func TestNew_visualFailure(t *testing.T) {
	conn := newTestConn()
	delete(conn.Visuals, testVisual)

	_, err := New(discardLogger(), conn, &fakeBackground{}, testParent, testIcon, Size{W: 16, H: 16}, color.NRGBA{})
	require.Error(t, err)

	ops := conn.Ops()
	assert.Equal(t, []string{"FreeGC", "FreePixmap", "DestroyWindow"}, ops[len(ops)-3:])
}

func TestShouldBeMapped(t *testing.T) {
	for _, tt := range []struct {
		name      string
		hidden    bool
		supported bool
		flags     uint32
		want      bool
	}{
		{"no xembed", false, false, 0, true},
		{"no xembed hidden", true, false, 0, false},
		{"xembed mapped", false, true, xembed.FlagMapped, true},
		{"xembed mapped hidden", true, true, xembed.FlagMapped, false},
		{"xembed unmapped", false, true, 0, false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			c, _, _ := newTestClient(t)
			c.hidden = tt.hidden
			c.xembedSupported = tt.supported
			c.xembedInfo = xembed.Info{Version: 1, Flags: tt.flags}

			assert.Equal(t, tt.want, c.ShouldBeMapped())
		})
	}
}

func TestEnsureState(t *testing.T) {
	c, conn, _ := newTestClient(t)

	require.True(t, c.ShouldBeMapped())

	c.EnsureState()
	assert.Equal(t, []string{"MapWindow", "MapWindow"}, conn.Ops())
	assert.Equal(t, uint32(c.Embedder()), conn.Requests[0].Target, "wrapper must be mapped before the icon")
	assert.Equal(t, uint32(c.Window()), conn.Requests[1].Target)
	assert.True(t, c.Mapped())

	// Idempotent: no protocol traffic without a state change.
	conn.Reset()
	c.EnsureState()
	assert.Empty(t, conn.Ops())
}

func TestEnsureState_hidden(t *testing.T) {
	c, conn, _ := newTestClient(t)

	c.EnsureState()
	require.True(t, c.Mapped())
	conn.Reset()

	c.SetHidden(true)
	require.False(t, c.ShouldBeMapped())

	c.EnsureState()
	assert.Equal(t, []string{"UnmapWindow", "UnmapWindow"}, conn.Ops())
	assert.Equal(t, uint32(c.Window()), conn.Requests[0].Target, "icon must be unmapped before the wrapper")
	assert.Equal(t, uint32(c.Embedder()), conn.Requests[1].Target)
	assert.False(t, c.Mapped())
}

func TestEnsureState_xembedUnmapped(t *testing.T) {
	c, conn, _ := newTestClient(t)

	c.xembedSupported = true
	c.xembedInfo = xembed.Info{Version: 1, Flags: 0}

	require.False(t, c.ShouldBeMapped())

	c.EnsureState()
	assert.Empty(t, conn.Ops())
	assert.False(t, c.Mapped())
}

func TestQueryXembed(t *testing.T) {
	c, conn, _ := newTestClient(t)

	conn.SetProperty(testIcon, xembed.AtomInfo, put32s(1, xembed.FlagMapped))
	c.QueryXembed()

	assert.True(t, c.XembedSupported())
	assert.Equal(t, uint32(1), c.Xembed().Version)
	assert.True(t, c.Xembed().Mapped())
}

func TestQueryXembed_unsupported(t *testing.T) {
	c, _, _ := newTestClient(t)

	c.QueryXembed()

	assert.False(t, c.XembedSupported())
	assert.True(t, c.ShouldBeMapped(), "icons without XEmbed are assumed visible")
}

func TestNotifyXembed(t *testing.T) {
	c, conn, _ := newTestClient(t)

	// No-op without XEmbed support.
	require.NoError(t, c.NotifyXembed())
	assert.Empty(t, conn.Ops())

	c.xembedSupported = true
	c.xembedInfo = xembed.Info{Version: 1, Flags: xembed.FlagMapped}

	require.NoError(t, c.NotifyXembed())
	require.Equal(t, []string{"SendEvent"}, conn.Ops())

	req := conn.Requests[0]
	assert.Equal(t, uint32(c.Window()), req.Target)

	raw := []byte(req.Event)
	require.Len(t, raw, 32)
	assert.Equal(t, byte(33), raw[0], "expected a client message event")
	assert.Equal(t, uint32(c.Embedder()), xgb.Get32(raw[24:]))
	assert.Equal(t, uint32(0), xgb.Get32(raw[28:]), "negotiated version is capped at the embedder's")
}

func TestSetPosition(t *testing.T) {
	c, conn, bg := newTestClient(t)

	c.SetPosition(5, 5)

	assert.Equal(t, []string{
		"ConfigureWindow",
		"ConfigureWindow",
		"PutImage",
		"ClearArea",
		"ClearArea",
		"Sync",
	}, conn.Ops())

	wrapper := conn.Requests[0]
	assert.Equal(t, uint32(c.Embedder()), wrapper.Target)
	assert.Equal(t, []uint32{5, 5, 16, 16}, wrapper.Values)

	icon := conn.Requests[1]
	assert.Equal(t, uint32(c.Window()), icon.Target)
	assert.Equal(t, []uint32{0, 0, 16, 16}, icon.Values, "icon always fills the wrapper at its origin")

	assert.Equal(t, 1, bg.observes)
	assert.Equal(t, image.Pt(5, 5), c.Position())

	// Unchanged position: no configure requests, no re-observation.
	conn.Reset()
	c.SetPosition(5, 5)
	assert.Empty(t, conn.Ops())
	assert.Equal(t, 1, bg.observes)
}

func TestSetPosition_reobservesBeforeComposite(t *testing.T) {
	c, conn, bg := newTestClient(t)

	bg.fill = color.NRGBA{R: 0xff, A: 0xff}
	c.SetPosition(3, 0)

	var put *xconntest.Request
	for i := range conn.Requests {
		if conn.Requests[i].Op == "PutImage" {
			put = &conn.Requests[i]
		}
	}
	require.NotNil(t, put)

	// ZPixmap pixels are BGRA; the new slice must already be composited.
	assert.Equal(t, []byte{0x00, 0x00, 0xff, 0xff}, put.Data[:4])
}

func TestUpdateBackground(t *testing.T) {
	c, conn, _ := newTestClient(t)

	c.UpdateBackground()

	require.Equal(t, []string{"PutImage", "ClearArea", "ClearArea", "Sync"}, conn.Ops())

	// Clearing the wrapper must not generate exposures, that would loop.
	wrapper := conn.Requests[1]
	assert.Equal(t, uint32(c.Embedder()), wrapper.Target)
	assert.Equal(t, uint32(0), wrapper.Values[0])

	icon := conn.Requests[2]
	assert.Equal(t, uint32(c.Window()), icon.Target)
	assert.Equal(t, uint32(1), icon.Values[0])
}

func TestConfigureNotify(t *testing.T) {
	c, conn, _ := newTestClient(t)

	require.NoError(t, c.ConfigureNotify())
	require.Equal(t, []string{"SendEvent"}, conn.Ops())

	req := conn.Requests[0]
	assert.Equal(t, uint32(c.Window()), req.Target)
	assert.Equal(t, []uint32{xproto.EventMaskStructureNotify}, req.Values)

	raw := []byte(req.Event)
	require.Len(t, raw, 32)
	assert.Equal(t, byte(22), raw[0], "expected a configure notify event")
	assert.Equal(t, uint16(16), xgb.Get16(raw[20:]), "width")
	assert.Equal(t, uint16(16), xgb.Get16(raw[22:]), "height")
}

func TestClose(t *testing.T) {
	c, conn, _ := newTestClient(t)

	wrapper := c.Embedder()
	icon := c.Window()

	c.Close()

	ops := conn.Ops()
	require.Equal(t, []string{"ReparentWindow", "DestroyWindow", "FreeGC", "FreePixmap"}, ops)

	reparent := conn.Requests[0]
	assert.Equal(t, uint32(icon), reparent.Target)
	assert.Equal(t, uint32(conn.Root()), reparent.Values[0], "icon must return to the root window")

	assert.Equal(t, uint32(wrapper), conn.Requests[1].Target)

	// Close is idempotent.
	conn.Reset()
	c.Close()
	assert.Empty(t, conn.Ops())
}

func TestMatch(t *testing.T) {
	c, _, _ := newTestClient(t)

	assert.True(t, c.Match(testIcon))
	assert.False(t, c.Match(testParent))
}
