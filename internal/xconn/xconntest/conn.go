// Package xconntest provides an in-memory xconn.Conn that records every
// request so tests can assert on protocol traffic without an X server.
package xconntest

import (
	"fmt"
	"image"

	"github.com/ItsNotGoodName/x-traybar/internal/xconn"
	"github.com/jezek/xgb/xproto"
)

type Request struct {
	Op     string
	Target uint32
	Depth  byte
	Visual xproto.Visualid
	Values []uint32
	Data   []byte
	Event  string
}

func New() *Conn {
	return &Conn{
		RootWindow: 1,
		Geometries: make(map[xproto.Window]xconn.Geometry),
		Attributes: make(map[xproto.Window]xconn.Attributes),
		Visuals:    make(map[xproto.Visualid]xproto.VisualInfo),
		Properties: make(map[xproto.Window]map[xproto.Atom][]byte),
		Images:     make(map[xproto.Drawable]xconn.Image),
		Errs:       make(map[string]error),
		atoms:      make(map[string]xproto.Atom),
		nextID:     100,
	}
}

type Conn struct {
	RootWindow xproto.Window
	Black      uint32

	Geometries map[xproto.Window]xconn.Geometry
	Attributes map[xproto.Window]xconn.Attributes
	Visuals    map[xproto.Visualid]xproto.VisualInfo
	Properties map[xproto.Window]map[xproto.Atom][]byte
	Images     map[xproto.Drawable]xconn.Image

	// Errs forces the named op to fail, e.g. Errs["CreatePixmap"] = err.
	Errs map[string]error

	Requests []Request

	atoms  map[string]xproto.Atom
	nextID uint32
}

var _ xconn.Conn = (*Conn)(nil)

// Ops returns the recorded op names in order.
func (c *Conn) Ops() []string {
	ops := make([]string, 0, len(c.Requests))
	for _, r := range c.Requests {
		ops = append(ops, r.Op)
	}
	return ops
}

// OpsFor returns the recorded op names targeting the given window.
func (c *Conn) OpsFor(win xproto.Window) []string {
	var ops []string
	for _, r := range c.Requests {
		if r.Target == uint32(win) {
			ops = append(ops, r.Op)
		}
	}
	return ops
}

func (c *Conn) Reset() {
	c.Requests = nil
}

// Atom interns an atom without recording a request, for seeding Properties.
func (c *Conn) Atom(name string) xproto.Atom {
	if atom, ok := c.atoms[name]; ok {
		return atom
	}
	c.nextID++
	atom := xproto.Atom(c.nextID)
	c.atoms[name] = atom
	return atom
}

// SetProperty seeds a property on a window.
func (c *Conn) SetProperty(win xproto.Window, name string, data []byte) {
	props, ok := c.Properties[win]
	if !ok {
		props = make(map[xproto.Atom][]byte)
		c.Properties[win] = props
	}
	props[c.Atom(name)] = data
}

// SetWindow seeds geometry and attributes for a foreign window along with a
// resolvable visual descriptor.
func (c *Conn) SetWindow(win xproto.Window, depth byte, visual xproto.Visualid, colormap xproto.Colormap, size image.Point) {
	c.Geometries[win] = xconn.Geometry{Depth: depth, Width: uint16(size.X), Height: uint16(size.Y)}
	c.Attributes[win] = xconn.Attributes{Visual: visual, Colormap: colormap}
	c.Visuals[visual] = xproto.VisualInfo{VisualId: visual, Class: xproto.VisualClassTrueColor, BitsPerRgbValue: 8}
}

func (c *Conn) record(r Request) error {
	c.Requests = append(c.Requests, r)
	return c.Errs[r.Op]
}

func (c *Conn) Root() xproto.Window { return c.RootWindow }

func (c *Conn) BlackPixel() uint32 { return c.Black }

func (c *Conn) NewWindowID() (xproto.Window, error) {
	c.nextID++
	return xproto.Window(c.nextID), c.Errs["NewWindowID"]
}

func (c *Conn) NewPixmapID() (xproto.Pixmap, error) {
	c.nextID++
	return xproto.Pixmap(c.nextID), c.Errs["NewPixmapID"]
}

func (c *Conn) NewGCID() (xproto.Gcontext, error) {
	c.nextID++
	return xproto.Gcontext(c.nextID), c.Errs["NewGCID"]
}

func (c *Conn) GetGeometry(win xproto.Window) (xconn.Geometry, error) {
	if err := c.Errs["GetGeometry"]; err != nil {
		return xconn.Geometry{}, err
	}
	geom, ok := c.Geometries[win]
	if !ok {
		return xconn.Geometry{}, fmt.Errorf("no geometry for window %d", win)
	}
	return geom, nil
}

func (c *Conn) GetWindowAttributes(win xproto.Window) (xconn.Attributes, error) {
	if err := c.Errs["GetWindowAttributes"]; err != nil {
		return xconn.Attributes{}, err
	}
	attrs, ok := c.Attributes[win]
	if !ok {
		return xconn.Attributes{}, fmt.Errorf("no attributes for window %d", win)
	}
	return attrs, nil
}

func (c *Conn) VisualType(visual xproto.Visualid) (xproto.VisualInfo, error) {
	if err := c.Errs["VisualType"]; err != nil {
		return xproto.VisualInfo{}, err
	}
	v, ok := c.Visuals[visual]
	if !ok {
		return xproto.VisualInfo{}, fmt.Errorf("visual %d not found", visual)
	}
	return v, nil
}

func (c *Conn) CreateWindow(depth byte, wid, parent xproto.Window, x, y int16, w, h uint16, class uint16, visual xproto.Visualid, mask uint32, values []uint32) error {
	c.Geometries[wid] = xconn.Geometry{Depth: depth, Width: w, Height: h}
	return c.record(Request{Op: "CreateWindow", Target: uint32(wid), Depth: depth, Visual: visual, Values: values})
}

func (c *Conn) ChangeWindowAttributes(win xproto.Window, mask uint32, values []uint32) error {
	return c.record(Request{Op: "ChangeWindowAttributes", Target: uint32(win), Values: values})
}

func (c *Conn) ConfigureWindow(win xproto.Window, mask uint16, values []uint32) error {
	return c.record(Request{Op: "ConfigureWindow", Target: uint32(win), Values: values})
}

func (c *Conn) MapWindow(win xproto.Window) error {
	return c.record(Request{Op: "MapWindow", Target: uint32(win)})
}

func (c *Conn) UnmapWindow(win xproto.Window) error {
	return c.record(Request{Op: "UnmapWindow", Target: uint32(win)})
}

func (c *Conn) ReparentWindow(win, parent xproto.Window, x, y int16) error {
	return c.record(Request{Op: "ReparentWindow", Target: uint32(win), Values: []uint32{uint32(parent)}})
}

func (c *Conn) ChangeSaveSet(mode byte, win xproto.Window) error {
	return c.record(Request{Op: "ChangeSaveSet", Target: uint32(win), Values: []uint32{uint32(mode)}})
}

func (c *Conn) ClearArea(exposures bool, win xproto.Window, x, y int16, w, h uint16) error {
	var exp uint32
	if exposures {
		exp = 1
	}
	return c.record(Request{Op: "ClearArea", Target: uint32(win), Values: []uint32{exp}})
}

func (c *Conn) DestroyWindow(win xproto.Window) error {
	return c.record(Request{Op: "DestroyWindow", Target: uint32(win)})
}

func (c *Conn) CreatePixmap(depth byte, pid xproto.Pixmap, drawable xproto.Drawable, w, h uint16) error {
	return c.record(Request{Op: "CreatePixmap", Target: uint32(pid), Depth: depth, Values: []uint32{uint32(w), uint32(h)}})
}

func (c *Conn) FreePixmap(pid xproto.Pixmap) error {
	return c.record(Request{Op: "FreePixmap", Target: uint32(pid)})
}

func (c *Conn) CreateGC(gc xproto.Gcontext, drawable xproto.Drawable, mask uint32, values []uint32) error {
	return c.record(Request{Op: "CreateGC", Target: uint32(gc), Values: values})
}

func (c *Conn) FreeGC(gc xproto.Gcontext) error {
	return c.record(Request{Op: "FreeGC", Target: uint32(gc)})
}

func (c *Conn) PutImage(drawable xproto.Drawable, gc xproto.Gcontext, w, h uint16, x, y int16, depth byte, data []byte) error {
	return c.record(Request{Op: "PutImage", Target: uint32(drawable), Data: data})
}

func (c *Conn) GetImage(drawable xproto.Drawable, x, y int16, w, h uint16) (xconn.Image, error) {
	if err := c.Errs["GetImage"]; err != nil {
		return xconn.Image{}, err
	}
	img, ok := c.Images[drawable]
	if !ok {
		return xconn.Image{}, fmt.Errorf("no image for drawable %d", drawable)
	}
	return img, nil
}

func (c *Conn) InternAtom(name string) (xproto.Atom, error) {
	if err := c.Errs["InternAtom"]; err != nil {
		return 0, err
	}
	return c.Atom(name), nil
}

func (c *Conn) GetProperty(win xproto.Window, prop, typ xproto.Atom, length uint32) ([]byte, error) {
	if err := c.Errs["GetProperty"]; err != nil {
		return nil, err
	}
	return c.Properties[win][prop], nil
}

func (c *Conn) SendEvent(propagate bool, dest xproto.Window, mask uint32, event string) error {
	return c.record(Request{Op: "SendEvent", Target: uint32(dest), Values: []uint32{mask}, Event: event})
}

func (c *Conn) TranslateCoordinates(src, dst xproto.Window, x, y int16) (int16, int16, error) {
	if err := c.Errs["TranslateCoordinates"]; err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

func (c *Conn) Sync() error {
	return c.record(Request{Op: "Sync"})
}
