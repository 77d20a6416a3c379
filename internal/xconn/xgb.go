package xconn

import (
	"fmt"
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
)

func NewXGB(conn *xgb.Conn) *XGB {
	return &XGB{
		conn:   conn,
		screen: xproto.Setup(conn).DefaultScreen(conn),
		atoms:  make(map[string]xproto.Atom),
	}
}

// XGB implements Conn over a live X connection.
type XGB struct {
	conn   *xgb.Conn
	screen *xproto.ScreenInfo

	atomsMu sync.Mutex
	atoms   map[string]xproto.Atom
}

func (x *XGB) Root() xproto.Window {
	return x.screen.Root
}

func (x *XGB) BlackPixel() uint32 {
	return x.screen.BlackPixel
}

func (x *XGB) Screen() *xproto.ScreenInfo {
	return x.screen
}

func (x *XGB) NewWindowID() (xproto.Window, error) {
	return xproto.NewWindowId(x.conn)
}

func (x *XGB) NewPixmapID() (xproto.Pixmap, error) {
	return xproto.NewPixmapId(x.conn)
}

func (x *XGB) NewGCID() (xproto.Gcontext, error) {
	return xproto.NewGcontextId(x.conn)
}

func (x *XGB) GetGeometry(win xproto.Window) (Geometry, error) {
	reply, err := xproto.GetGeometry(x.conn, xproto.Drawable(win)).Reply()
	if err != nil {
		return Geometry{}, fmt.Errorf("get geometry of %d: %w", win, err)
	}
	return Geometry{
		Depth:  reply.Depth,
		Width:  reply.Width,
		Height: reply.Height,
	}, nil
}

func (x *XGB) GetWindowAttributes(win xproto.Window) (Attributes, error) {
	reply, err := xproto.GetWindowAttributes(x.conn, win).Reply()
	if err != nil {
		return Attributes{}, fmt.Errorf("get window attributes of %d: %w", win, err)
	}
	return Attributes{
		Visual:   reply.Visual,
		Colormap: reply.Colormap,
	}, nil
}

func (x *XGB) VisualType(visual xproto.Visualid) (xproto.VisualInfo, error) {
	for _, depth := range x.screen.AllowedDepths {
		for _, v := range depth.Visuals {
			if v.VisualId == visual {
				return v, nil
			}
		}
	}
	return xproto.VisualInfo{}, fmt.Errorf("visual %d not found on screen", visual)
}

func (x *XGB) CreateWindow(depth byte, wid, parent xproto.Window, px, py int16, w, h uint16, class uint16, visual xproto.Visualid, mask uint32, values []uint32) error {
	return xproto.CreateWindowChecked(x.conn, depth, wid, parent, px, py, w, h, 0, class, visual, mask, values).Check()
}

func (x *XGB) ChangeWindowAttributes(win xproto.Window, mask uint32, values []uint32) error {
	return xproto.ChangeWindowAttributesChecked(x.conn, win, mask, values).Check()
}

func (x *XGB) ConfigureWindow(win xproto.Window, mask uint16, values []uint32) error {
	return xproto.ConfigureWindowChecked(x.conn, win, mask, values).Check()
}

func (x *XGB) MapWindow(win xproto.Window) error {
	return xproto.MapWindowChecked(x.conn, win).Check()
}

func (x *XGB) UnmapWindow(win xproto.Window) error {
	return xproto.UnmapWindowChecked(x.conn, win).Check()
}

func (x *XGB) ReparentWindow(win, parent xproto.Window, px, py int16) error {
	return xproto.ReparentWindowChecked(x.conn, win, parent, px, py).Check()
}

func (x *XGB) ChangeSaveSet(mode byte, win xproto.Window) error {
	return xproto.ChangeSaveSetChecked(x.conn, mode, win).Check()
}

func (x *XGB) ClearArea(exposures bool, win xproto.Window, px, py int16, w, h uint16) error {
	return xproto.ClearAreaChecked(x.conn, exposures, win, px, py, w, h).Check()
}

func (x *XGB) DestroyWindow(win xproto.Window) error {
	return xproto.DestroyWindowChecked(x.conn, win).Check()
}

func (x *XGB) CreatePixmap(depth byte, pid xproto.Pixmap, drawable xproto.Drawable, w, h uint16) error {
	return xproto.CreatePixmapChecked(x.conn, depth, pid, drawable, w, h).Check()
}

func (x *XGB) FreePixmap(pid xproto.Pixmap) error {
	return xproto.FreePixmapChecked(x.conn, pid).Check()
}

func (x *XGB) CreateGC(gc xproto.Gcontext, drawable xproto.Drawable, mask uint32, values []uint32) error {
	return xproto.CreateGCChecked(x.conn, gc, drawable, mask, values).Check()
}

func (x *XGB) FreeGC(gc xproto.Gcontext) error {
	return xproto.FreeGCChecked(x.conn, gc).Check()
}

func (x *XGB) PutImage(drawable xproto.Drawable, gc xproto.Gcontext, w, h uint16, px, py int16, depth byte, data []byte) error {
	return xproto.PutImageChecked(x.conn, xproto.ImageFormatZPixmap, drawable, gc, w, h, px, py, 0, depth, data).Check()
}

func (x *XGB) GetImage(drawable xproto.Drawable, px, py int16, w, h uint16) (Image, error) {
	reply, err := xproto.GetImage(x.conn, xproto.ImageFormatZPixmap, drawable, px, py, w, h, (1<<32)-1).Reply()
	if err != nil {
		return Image{}, fmt.Errorf("get image of %d: %w", drawable, err)
	}
	return Image{
		Depth: reply.Depth,
		Data:  reply.Data,
	}, nil
}

func (x *XGB) InternAtom(name string) (xproto.Atom, error) {
	x.atomsMu.Lock()
	atom, ok := x.atoms[name]
	x.atomsMu.Unlock()
	if ok {
		return atom, nil
	}

	reply, err := xproto.InternAtom(x.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, fmt.Errorf("intern atom %s: %w", name, err)
	}

	x.atomsMu.Lock()
	x.atoms[name] = reply.Atom
	x.atomsMu.Unlock()
	return reply.Atom, nil
}

func (x *XGB) GetProperty(win xproto.Window, prop, typ xproto.Atom, length uint32) ([]byte, error) {
	reply, err := xproto.GetProperty(x.conn, false, win, prop, typ, 0, length).Reply()
	if err != nil {
		return nil, err
	}
	return reply.Value, nil
}

func (x *XGB) SendEvent(propagate bool, dest xproto.Window, mask uint32, event string) error {
	return xproto.SendEventChecked(x.conn, propagate, dest, mask, event).Check()
}

func (x *XGB) TranslateCoordinates(src, dst xproto.Window, px, py int16) (int16, int16, error) {
	reply, err := xproto.TranslateCoordinates(x.conn, src, dst, px, py).Reply()
	if err != nil {
		return 0, 0, fmt.Errorf("translate coordinates from %d to %d: %w", src, dst, err)
	}
	return reply.DstX, reply.DstY, nil
}

func (x *XGB) Sync() error {
	x.conn.Sync()
	return nil
}
