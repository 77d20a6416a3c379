// Package xbg supplies background slices: renderings of whatever sits
// behind a given rectangle of the bar window. Icons with transparent
// regions are composited over their slice so they blend into the bar.
package xbg

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/ItsNotGoodName/x-traybar/internal/bus"
	"github.com/ItsNotGoodName/x-traybar/internal/xconn"
	"github.com/jezek/xgb/xproto"
)

// Changed is published whenever an observed slice has been re-captured and
// observers should re-composite.
type Changed struct {
	Window xproto.Window
}

func NewManager(conn xconn.Conn, src xproto.Window) *Manager {
	return &Manager{
		conn:      conn,
		src:       src,
		observers: make(map[xproto.Window]*observer),
	}
}

// Manager tracks one slice per observing window and keeps it current. The
// source window's pixels are re-captured on Refresh.
type Manager struct {
	conn xconn.Conn
	src  xproto.Window

	mu        sync.Mutex
	observers map[xproto.Window]*observer
}

type observer struct {
	rect  image.Rectangle
	slice *Slice
}

// Observe returns a slice of the source window's content behind the given
// rectangle of win. Re-observing replaces the previous registration for
// win; the returned slice stays current until Forget.
func (m *Manager) Observe(rect image.Rectangle, win xproto.Window) (*Slice, error) {
	img, err := m.capture(rect, win)
	if err != nil {
		return nil, fmt.Errorf("observe background for %d: %w", win, err)
	}

	slice := &Slice{img: img}

	m.mu.Lock()
	m.observers[win] = &observer{rect: rect, slice: slice}
	m.mu.Unlock()

	return slice, nil
}

// Forget drops the registration for win.
func (m *Manager) Forget(win xproto.Window) {
	m.mu.Lock()
	delete(m.observers, win)
	m.mu.Unlock()
}

// Refresh re-captures every observed slice and publishes a Changed event
// per observer. Call after the source window's content has been redrawn.
func (m *Manager) Refresh() {
	m.mu.Lock()
	wins := make([]xproto.Window, 0, len(m.observers))
	for win := range m.observers {
		wins = append(wins, win)
	}
	m.mu.Unlock()

	for _, win := range wins {
		m.mu.Lock()
		obs, ok := m.observers[win]
		m.mu.Unlock()
		if !ok {
			continue
		}

		img, err := m.capture(obs.rect, win)
		if err != nil {
			slog.Warn("Failed to refresh background slice", "window", win, "error", err)
			continue
		}

		obs.slice.set(img)
		bus.Publish(Changed{Window: win})
	}
}

func (m *Manager) capture(rect image.Rectangle, win xproto.Window) (*image.RGBA, error) {
	// The slice rectangle is relative to win, the source content is not.
	dx, dy, err := m.conn.TranslateCoordinates(win, m.src, int16(rect.Min.X), int16(rect.Min.Y))
	if err != nil {
		return nil, err
	}

	geom, err := m.conn.GetGeometry(m.src)
	if err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))

	area := image.Rect(int(dx), int(dy), int(dx)+rect.Dx(), int(dy)+rect.Dy())
	clamped := area.Intersect(image.Rect(0, 0, int(geom.Width), int(geom.Height)))
	if clamped.Empty() {
		return img, nil
	}

	capture, err := m.conn.GetImage(xproto.Drawable(m.src),
		int16(clamped.Min.X), int16(clamped.Min.Y),
		uint16(clamped.Dx()), uint16(clamped.Dy()))
	if err != nil {
		return nil, err
	}
	if capture.Depth != 24 && capture.Depth != 32 {
		return nil, fmt.Errorf("unsupported capture depth %d", capture.Depth)
	}

	decodeZPixmap(img, clamped.Min.X-area.Min.X, clamped.Min.Y-area.Min.Y, clamped.Dx(), clamped.Dy(), capture)
	return img, nil
}

// decodeZPixmap copies little-endian BGRx pixel data into dst at (x0, y0).
func decodeZPixmap(dst *image.RGBA, x0, y0, w, h int, src xconn.Image) {
	stride := w * 4
	for y := 0; y < h; y++ {
		row := src.Data[y*stride:]
		if len(row) < stride {
			return
		}
		for x := 0; x < w; x++ {
			i := dst.PixOffset(x0+x, y0+y)
			dst.Pix[i] = row[x*4+2]
			dst.Pix[i+1] = row[x*4+1]
			dst.Pix[i+2] = row[x*4]
			if src.Depth == 32 {
				dst.Pix[i+3] = row[x*4+3]
			} else {
				dst.Pix[i+3] = 0xff
			}
		}
	}
}

// Slice is a handle to an observed background region. The manager owns the
// pixels and swaps them on Refresh; holders must re-read Surface after a
// Changed event instead of caching the returned image.
type Slice struct {
	mu  sync.Mutex
	img *image.RGBA
}

func (s *Slice) Surface() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.img
}

func (s *Slice) set(img *image.RGBA) {
	s.mu.Lock()
	s.img = img
	s.mu.Unlock()
}
