// Package xconn wraps the X protocol connection as a synchronous
// request/response service. Every mutating request is checked: it either
// succeeds or returns the X error for that request.
package xconn

import (
	"github.com/jezek/xgb/xproto"
)

type Geometry struct {
	Depth  byte
	Width  uint16
	Height uint16
}

type Attributes struct {
	Visual   xproto.Visualid
	Colormap xproto.Colormap
}

type Image struct {
	Depth byte
	Data  []byte
}

type Conn interface {
	Root() xproto.Window
	BlackPixel() uint32

	NewWindowID() (xproto.Window, error)
	NewPixmapID() (xproto.Pixmap, error)
	NewGCID() (xproto.Gcontext, error)

	GetGeometry(win xproto.Window) (Geometry, error)
	GetWindowAttributes(win xproto.Window) (Attributes, error)
	// VisualType resolves the visual descriptor for a visual id.
	VisualType(visual xproto.Visualid) (xproto.VisualInfo, error)

	CreateWindow(depth byte, wid, parent xproto.Window, x, y int16, w, h uint16, class uint16, visual xproto.Visualid, mask uint32, values []uint32) error
	ChangeWindowAttributes(win xproto.Window, mask uint32, values []uint32) error
	ConfigureWindow(win xproto.Window, mask uint16, values []uint32) error
	MapWindow(win xproto.Window) error
	UnmapWindow(win xproto.Window) error
	ReparentWindow(win, parent xproto.Window, x, y int16) error
	ChangeSaveSet(mode byte, win xproto.Window) error
	ClearArea(exposures bool, win xproto.Window, x, y int16, w, h uint16) error
	DestroyWindow(win xproto.Window) error

	CreatePixmap(depth byte, pid xproto.Pixmap, drawable xproto.Drawable, w, h uint16) error
	FreePixmap(pid xproto.Pixmap) error
	CreateGC(gc xproto.Gcontext, drawable xproto.Drawable, mask uint32, values []uint32) error
	FreeGC(gc xproto.Gcontext) error
	PutImage(drawable xproto.Drawable, gc xproto.Gcontext, w, h uint16, x, y int16, depth byte, data []byte) error
	GetImage(drawable xproto.Drawable, x, y int16, w, h uint16) (Image, error)

	InternAtom(name string) (xproto.Atom, error)
	GetProperty(win xproto.Window, prop, typ xproto.Atom, length uint32) ([]byte, error)
	SendEvent(propagate bool, dest xproto.Window, mask uint32, event string) error
	TranslateCoordinates(src, dst xproto.Window, x, y int16) (int16, int16, error)

	// Sync flushes buffered requests and waits for the server to process
	// them.
	Sync() error
}
