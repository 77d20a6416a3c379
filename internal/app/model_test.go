package app

import (
	"context"
	"image"
	"io"
	"log/slog"
	"testing"

	"github.com/ItsNotGoodName/x-traybar/internal/config"
	"github.com/ItsNotGoodName/x-traybar/internal/xbg"
	"github.com/ItsNotGoodName/x-traybar/internal/xconn"
	"github.com/ItsNotGoodName/x-traybar/internal/xconn/xconntest"
	"github.com/ItsNotGoodName/x-traybar/internal/xembed"
	"github.com/ItsNotGoodName/x-traybar/internal/xwm"
	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	barWindow  xproto.Window = 2
	iconWindow xproto.Window = 50
)

func newModel(t *testing.T) (*Model, *xconntest.Conn) {
	t.Helper()

	conn := xconntest.New()
	conn.SetWindow(barWindow, 24, 7, 9, image.Pt(200, 32))
	conn.SetWindow(iconWindow, 24, 7, 9, image.Pt(24, 24))
	conn.Images[xproto.Drawable(barWindow)] = xconn.Image{Depth: 24, Data: make([]byte, 200*32*4)}

	m := &Model{
		Log:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Conn: conn,
		Bg:   xbg.NewManager(conn, barWindow),
		Bar:  xwm.Window{WID: barWindow, Width: 200, Height: 32},
		Win:  iconWindow,
		Config: config.Config{
			BarHeight:  32,
			IconSize:   24,
			Background: "#00000000",
			Hidden:     false,
		},
	}
	return m, conn
}

func TestModelInit(t *testing.T) {
	m, conn := newModel(t)

	require.NoError(t, m.Init(context.Background()))
	t.Cleanup(m.Close)

	status := m.Status()
	require.NotNil(t, status)
	assert.Equal(t, uint32(iconWindow), status.Window)
	assert.False(t, status.Xembed)
	assert.True(t, status.Mapped)

	// Icon sits centered at the right edge of the bar.
	assert.Equal(t, 200-24-4, status.X)
	assert.Equal(t, 4, status.Y)

	assert.Contains(t, conn.OpsFor(iconWindow), "ReparentWindow")
	assert.Contains(t, conn.OpsFor(iconWindow), "ChangeSaveSet")
}

func TestModelInit_hidden(t *testing.T) {
	m, conn := newModel(t)
	m.Config.Hidden = true

	require.NoError(t, m.Init(context.Background()))
	t.Cleanup(m.Close)

	status := m.Status()
	require.NotNil(t, status)
	assert.False(t, status.Mapped)
	assert.False(t, status.ShouldBeMapped)
	assert.NotContains(t, conn.OpsFor(iconWindow), "MapWindow")
}

func TestModelUpdate_propertyNotify(t *testing.T) {
	m, conn := newModel(t)
	ctx := context.Background()

	require.NoError(t, m.Init(ctx))
	t.Cleanup(m.Close)
	require.True(t, m.Status().Mapped)

	// The icon now asks to be unmapped through its _XEMBED_INFO flags.
	data := make([]byte, 8)
	xgb.Put32(data, 1)
	xgb.Put32(data[4:], 0)
	conn.SetProperty(iconWindow, xembed.AtomInfo, data)

	err := m.Update(ctx, xproto.PropertyNotifyEvent{
		Window: iconWindow,
		Atom:   conn.Atom(xembed.AtomInfo),
	})
	require.NoError(t, err)

	status := m.Status()
	assert.True(t, status.Xembed)
	assert.False(t, status.ShouldBeMapped)
	assert.False(t, status.Mapped)
}

func TestModelUpdate_configureNotify(t *testing.T) {
	m, _ := newModel(t)
	ctx := context.Background()

	require.NoError(t, m.Init(ctx))
	t.Cleanup(m.Close)

	err := m.Update(ctx, xproto.ConfigureNotifyEvent{Window: barWindow, Width: 400, Height: 32})
	require.NoError(t, err)

	assert.Equal(t, 400-24-4, m.Status().X, "icon must follow the bar's right edge")
}

func TestModelUpdate_mapNotify(t *testing.T) {
	m, _ := newModel(t)
	ctx := context.Background()

	require.NoError(t, m.Init(ctx))
	t.Cleanup(m.Close)

	require.NoError(t, m.Update(ctx, xproto.UnmapNotifyEvent{Window: iconWindow}))
	assert.False(t, m.Status().Mapped)

	require.NoError(t, m.Update(ctx, xproto.MapNotifyEvent{Window: iconWindow}))
	assert.True(t, m.Status().Mapped)
}

func TestModelUpdate_reparentAway(t *testing.T) {
	m, _ := newModel(t)
	ctx := context.Background()

	require.NoError(t, m.Init(ctx))
	t.Cleanup(m.Close)

	err := m.Update(ctx, xproto.ReparentNotifyEvent{Window: iconWindow, Parent: 999})
	assert.ErrorIs(t, err, xwm.ErrQuit)
	assert.Nil(t, m.Status())
}

func TestModelUpdate_destroyNotify(t *testing.T) {
	m, conn := newModel(t)
	ctx := context.Background()

	require.NoError(t, m.Init(ctx))
	t.Cleanup(m.Close)

	err := m.Update(ctx, xproto.DestroyNotifyEvent{Window: iconWindow})
	assert.ErrorIs(t, err, xwm.ErrQuit)
	assert.Nil(t, m.Status())

	// The icon was returned to the root window on the way out.
	var reparent *xconntest.Request
	for i := len(conn.Requests) - 1; i >= 0; i-- {
		if conn.Requests[i].Op == "ReparentWindow" {
			reparent = &conn.Requests[i]
			break
		}
	}
	require.NotNil(t, reparent)
	assert.Equal(t, uint32(conn.Root()), reparent.Values[0])
}
