// Package tray embeds a single foreign X window (a tray icon) inside an
// owned wrapper window, following the XEmbed convention.
//
// The wrapper window inherits the depth, visual and colormap of the icon
// window so reparenting always works, even if the icon window uses
// ParentRelative for some of its pixmaps. The wrapper's backing pixmap is
// kept in sync with the background behind it so icons with transparent
// regions blend into the bar.
package tray

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"

	"github.com/ItsNotGoodName/x-traybar/internal/xcanvas"
	"github.com/ItsNotGoodName/x-traybar/internal/xconn"
	"github.com/ItsNotGoodName/x-traybar/internal/xembed"
	"github.com/google/uuid"
	"github.com/jezek/xgb/xproto"
	"golang.org/x/image/draw"
)

type Size struct {
	W uint16
	H uint16
}

// Slice is a handle to an externally owned background region. The provider
// keeps it current; Surface must be re-read after every re-observation.
type Slice interface {
	Surface() image.Image
}

// Background supplies background slices keyed to a window's rectangle.
type Background interface {
	Observe(rect image.Rectangle, win xproto.Window) (Slice, error)
}

// Client is one embedded tray icon. Not safe for concurrent use; all
// methods are expected to run on the X event loop.
type Client struct {
	log  *slog.Logger
	conn xconn.Conn
	bg   Background

	id   string
	name string

	client  xproto.Window
	wrapper xproto.Window
	size    Size
	pos     image.Point

	mapped bool
	hidden bool

	xembedSupported bool
	xembedInfo      xembed.Info

	desiredBackground color.NRGBA
	slice             Slice

	pixmap xproto.Pixmap
	gc     xproto.Gcontext
	canvas *xcanvas.Canvas
}

// New creates the wrapper window for the given icon window and binds its
// backing pixmap, graphics context and drawing surface. Any protocol
// failure aborts construction; nothing of the partially constructed client
// remains on the server.
//
// TODO fall back to painting desiredBackground directly when the backing
// pixmap or drawing surface cannot be created.
func New(log *slog.Logger, conn xconn.Conn, bg Background, parent, win xproto.Window, size Size, desiredBackground color.NRGBA) (*Client, error) {
	geom, err := conn.GetGeometry(win)
	if err != nil {
		return nil, err
	}
	attrs, err := conn.GetWindowAttributes(win)
	if err != nil {
		return nil, err
	}

	name := readName(conn, win)

	log.Debug("Creating wrapper window",
		"window", win, "name", name,
		"depth", geom.Depth, "width", geom.Width, "height", geom.Height)

	wrapper, err := conn.NewWindowID()
	if err != nil {
		return nil, err
	}

	// The border pixel must be set whenever the depth differs from the
	// parent window, even though the border is never drawn.
	err = conn.CreateWindow(geom.Depth, wrapper, parent,
		0, 0, size.W, size.H,
		xproto.WindowClassInputOutput, attrs.Visual,
		xproto.CwBorderPixel|xproto.CwBackingStore|xproto.CwSaveUnder|xproto.CwEventMask|xproto.CwColormap,
		[]uint32{
			conn.BlackPixel(),
			xproto.BackingStoreWhenMapped,
			1,
			xproto.EventMaskSubstructureRedirect |
				xproto.EventMaskPropertyChange |
				xproto.EventMaskStructureNotify |
				xproto.EventMaskExposure,
			uint32(attrs.Colormap),
		})
	if err != nil {
		return nil, fmt.Errorf("create wrapper window: %w", err)
	}

	pixmap, err := conn.NewPixmapID()
	if err != nil {
		destroyWindow(log, conn, wrapper)
		return nil, err
	}
	if err := conn.CreatePixmap(geom.Depth, pixmap, xproto.Drawable(wrapper), size.W, size.H); err != nil {
		destroyWindow(log, conn, wrapper)
		return nil, fmt.Errorf("create background pixmap: %w", err)
	}

	if err := conn.ChangeWindowAttributes(wrapper, xproto.CwBackPixmap, []uint32{uint32(pixmap)}); err != nil {
		freePixmap(log, conn, pixmap)
		destroyWindow(log, conn, wrapper)
		return nil, fmt.Errorf("set wrapper back pixmap: %w", err)
	}

	gc, err := conn.NewGCID()
	if err != nil {
		freePixmap(log, conn, pixmap)
		destroyWindow(log, conn, wrapper)
		return nil, err
	}
	if err := conn.CreateGC(gc, xproto.Drawable(pixmap), xproto.GcGraphicsExposures, []uint32{1}); err != nil {
		freePixmap(log, conn, pixmap)
		destroyWindow(log, conn, wrapper)
		return nil, fmt.Errorf("create background gcontext: %w", err)
	}

	if _, err := conn.VisualType(attrs.Visual); err != nil {
		freeGC(log, conn, gc)
		freePixmap(log, conn, pixmap)
		destroyWindow(log, conn, wrapper)
		return nil, fmt.Errorf("resolve visual for background surface: %w", err)
	}

	c := &Client{
		log:               log,
		conn:              conn,
		bg:                bg,
		id:                uuid.NewString(),
		name:              name,
		client:            win,
		wrapper:           wrapper,
		size:              size,
		desiredBackground: desiredBackground,
		pixmap:            pixmap,
		gc:                gc,
		canvas:            xcanvas.New(conn, pixmap, gc, geom.Depth, size.W, size.H),
	}

	if err := c.observeBackground(); err != nil {
		freeGC(log, conn, gc)
		freePixmap(log, conn, pixmap)
		destroyWindow(log, conn, wrapper)
		return nil, err
	}

	return c, nil
}

func readName(conn xconn.Conn, win xproto.Window) string {
	data, err := conn.GetProperty(win, xproto.AtomWmName, xproto.AtomString, 64)
	if err != nil || len(data) == 0 {
		return ""
	}
	return string(data)
}

func (c *Client) String() string {
	return fmt.Sprintf("tray.Client(%d, %s)", c.client, c.name)
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) Name() string {
	return c.name
}

func (c *Client) Width() uint16 {
	return c.size.W
}

func (c *Client) Height() uint16 {
	return c.size.H
}

func (c *Client) Position() image.Point {
	return c.pos
}

// Window is the foreign icon window.
func (c *Client) Window() xproto.Window {
	return c.client
}

// Embedder is the wrapper window hosting the icon.
func (c *Client) Embedder() xproto.Window {
	return c.wrapper
}

// Match reports whether this is the client for the given icon window.
func (c *Client) Match(win xproto.Window) bool {
	return win == c.client
}

// Mapped returns the host-observed mapped state.
func (c *Client) Mapped() bool {
	return c.mapped
}

// SetMapped records the mapped state observed through Map/UnmapNotify.
func (c *Client) SetMapped(state bool) {
	if c.mapped != state {
		c.log.Debug("Set mapped", "client", c.String(), "mapped", state)
		c.mapped = state
	}
}

// SetHidden sets the host visibility override. Call EnsureState afterwards
// to apply it.
func (c *Client) SetHidden(state bool) {
	c.hidden = state
}

// QueryXembed reads the icon's _XEMBED_INFO property. Never fatal; icons
// without XEmbed support are a normal state.
func (c *Client) QueryXembed() {
	info, ok, err := xembed.Query(c.conn, c.client)
	if err != nil {
		c.log.Debug("XEmbed query failed", "client", c.String(), "error", err)
	}

	c.xembedSupported = ok
	if ok {
		c.xembedInfo = info
		c.log.Debug("XEmbed supported", "client", c.String(), "info", info.String())
	} else {
		c.log.Debug("No XEmbed", "client", c.String())
	}
}

func (c *Client) XembedSupported() bool {
	return c.xembedSupported
}

func (c *Client) Xembed() xembed.Info {
	return c.xembedInfo
}

// NotifyXembed sends the embedded notification to the icon. No-op for
// icons without XEmbed support.
func (c *Client) NotifyXembed() error {
	if !c.xembedSupported {
		return nil
	}

	c.log.Debug("Send embedded notification", "client", c.String())
	return xembed.NotifyEmbedded(c.conn, c.client, c.wrapper, c.xembedInfo.Version)
}

// UpdateClientAttributes selects the icon window events the host needs.
func (c *Client) UpdateClientAttributes() error {
	c.log.Debug("Update client window attributes", "client", c.String())
	return c.conn.ChangeWindowAttributes(c.client,
		xproto.CwEventMask,
		[]uint32{xproto.EventMaskPropertyChange | xproto.EventMaskStructureNotify})
}

// Reparent moves the icon window into the wrapper.
func (c *Client) Reparent() error {
	c.log.Debug("Reparent client", "client", c.String())
	return c.conn.ReparentWindow(c.client, c.wrapper, 0, 0)
}

// AddToSaveSet keeps the icon window alive if this process dies.
func (c *Client) AddToSaveSet() error {
	c.log.Debug("Add client window to the save set", "client", c.String())
	return c.conn.ChangeSaveSet(xproto.SetModeInsert, c.client)
}

// ShouldBeMapped reports whether the current state says the client's
// windows should be mapped.
func (c *Client) ShouldBeMapped() bool {
	return DesiredState(c.hidden, c.xembedSupported, c.xembedInfo).Mapped()
}

// EnsureState makes the window mapping state match the desired state.
// Idempotent: no protocol traffic when they already agree.
func (c *Client) EnsureState() {
	target := DesiredState(c.hidden, c.xembedSupported, c.xembedInfo)
	if target.Mapped() == c.mapped {
		return
	}

	c.log.Debug("Ensure state",
		"client", c.String(), "hidden", c.hidden, "mapped", c.mapped, "target", target.String())

	if target.Mapped() {
		// Wrapper first so the icon is never visible without its container.
		if err := c.conn.MapWindow(c.wrapper); err != nil {
			c.log.Warn("Failed to map wrapper", "client", c.String(), "error", err)
		}
		if err := c.conn.MapWindow(c.client); err != nil {
			c.log.Warn("Failed to map client", "client", c.String(), "error", err)
		}
	} else {
		if err := c.conn.UnmapWindow(c.client); err != nil {
			c.log.Warn("Failed to unmap client", "client", c.String(), "error", err)
		}
		if err := c.conn.UnmapWindow(c.wrapper); err != nil {
			c.log.Warn("Failed to unmap wrapper", "client", c.String(), "error", err)
		}
	}

	c.mapped = target.Mapped()
}

// SetPosition moves the wrapper within its parent. The icon window always
// fills the wrapper exactly at its origin. No-op when the position is
// unchanged.
func (c *Client) SetPosition(x, y int) {
	pos := image.Pt(x, y)
	if pos == c.pos {
		return
	}

	c.log.Debug("Set position", "client", c.String(), "x", x, "y", y)
	c.pos = pos

	err := c.conn.ConfigureWindow(c.wrapper,
		xproto.ConfigWindowX|xproto.ConfigWindowY|xproto.ConfigWindowWidth|xproto.ConfigWindowHeight,
		[]uint32{uint32(x), uint32(y), uint32(c.size.W), uint32(c.size.H)})
	if err != nil {
		c.log.Warn("Failed to configure wrapper", "client", c.String(), "error", err)
	}

	err = c.conn.ConfigureWindow(c.client,
		xproto.ConfigWindowX|xproto.ConfigWindowY|xproto.ConfigWindowWidth|xproto.ConfigWindowHeight,
		[]uint32{0, 0, uint32(c.size.W), uint32(c.size.H)})
	if err != nil {
		c.log.Warn("Failed to configure client", "client", c.String(), "error", err)
	}

	// The position changed, the old slice no longer matches what is behind
	// the wrapper.
	if err := c.observeBackground(); err != nil {
		c.log.Warn("Failed to observe background", "client", c.String(), "error", err)
	}
}

// ConfigureNotify sends a synthetic configure notification reporting the
// icon's effective geometry. Some icons only pick up their size from
// synthetic notifications after being reparented.
func (c *Client) ConfigureNotify() error {
	ev := xproto.ConfigureNotifyEvent{
		Event:            c.client,
		Window:           c.client,
		AboveSibling:     xproto.WindowNone,
		X:                0,
		Y:                0,
		Width:            c.size.W,
		Height:           c.size.H,
		BorderWidth:      0,
		OverrideRedirect: false,
	}

	return c.conn.SendEvent(false, c.client, xproto.EventMaskStructureNotify, string(ev.Bytes()))
}

// UpdateBackground recomposites the backing pixmap from the observed
// background slice and the desired background color, then triggers a
// repaint. Best effort; failures are logged.
func (c *Client) UpdateBackground() {
	c.log.Debug("Update background", "client", c.String())

	c.canvas.Clear()
	c.canvas.DrawImage(draw.Src, c.slice.Surface())
	c.canvas.FillColor(draw.Over, c.desiredBackground)

	if err := c.canvas.Flush(); err != nil {
		c.log.Warn("Failed to flush background surface", "client", c.String(), "error", err)
		return
	}

	c.clearWindow()

	if err := c.conn.Sync(); err != nil {
		c.log.Warn("Failed to sync connection", "client", c.String(), "error", err)
	}
}

func (c *Client) observeBackground() error {
	slice, err := c.bg.Observe(image.Rect(0, 0, int(c.size.W), int(c.size.H)), c.wrapper)
	if err != nil {
		return err
	}
	c.slice = slice

	c.UpdateBackground()
	return nil
}

func (c *Client) clearWindow() {
	// No exposures on the embedder, that would trigger an infinite
	// clear/expose loop.
	if err := c.conn.ClearArea(false, c.wrapper, 0, 0, c.size.W, c.size.H); err != nil {
		c.log.Warn("Failed to clear wrapper", "client", c.String(), "error", err)
	}
	if err := c.conn.ClearArea(true, c.client, 0, 0, c.size.W, c.size.H); err != nil {
		c.log.Warn("Failed to clear client", "client", c.String(), "error", err)
	}
}

// Close returns the icon window to the root window and destroys owned
// protocol resources in reverse creation order. Safe to call more than
// once.
func (c *Client) Close() {
	if c.client != xproto.WindowNone {
		if err := xembed.Unembed(c.conn, c.client, c.conn.Root()); err != nil {
			c.log.Warn("Failed to unembed client", "client", c.String(), "error", err)
		}
		c.client = xproto.WindowNone
	}

	if c.wrapper != xproto.WindowNone {
		destroyWindow(c.log, c.conn, c.wrapper)
		freeGC(c.log, c.conn, c.gc)
		freePixmap(c.log, c.conn, c.pixmap)
		c.wrapper = xproto.WindowNone
	}
}

func destroyWindow(log *slog.Logger, conn xconn.Conn, win xproto.Window) {
	if err := conn.DestroyWindow(win); err != nil {
		log.Warn("Failed to destroy window", "window", win, "error", err)
	}
}

func freePixmap(log *slog.Logger, conn xconn.Conn, pixmap xproto.Pixmap) {
	if err := conn.FreePixmap(pixmap); err != nil {
		log.Warn("Failed to free pixmap", "pixmap", pixmap, "error", err)
	}
}

func freeGC(log *slog.Logger, conn xconn.Conn, gc xproto.Gcontext) {
	if err := conn.FreeGC(gc); err != nil {
		log.Warn("Failed to free gcontext", "gc", gc, "error", err)
	}
}
