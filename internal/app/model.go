package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ItsNotGoodName/x-traybar/internal/bus"
	"github.com/ItsNotGoodName/x-traybar/internal/config"
	"github.com/ItsNotGoodName/x-traybar/internal/tray"
	"github.com/ItsNotGoodName/x-traybar/internal/xbg"
	"github.com/ItsNotGoodName/x-traybar/internal/xconn"
	"github.com/ItsNotGoodName/x-traybar/internal/xembed"
	"github.com/ItsNotGoodName/x-traybar/internal/xwm"
	"github.com/jezek/xgb/xproto"
)

// Model owns the single embedded tray client and reacts to X events.
type Model struct {
	Log    *slog.Logger
	Conn   xconn.Conn
	Bg     *xbg.Manager
	Bar    xwm.Window
	Win    xproto.Window
	Config config.Config

	// mu guards client against the status API reading from another
	// goroutine.
	mu             sync.Mutex
	client         *tray.Client
	xembedInfoAtom xproto.Atom
}

// ClientStatus is a snapshot of the embedded client for the status API.
type ClientStatus struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Window         uint32 `json:"window"`
	Embedder       uint32 `json:"embedder"`
	Width          uint16 `json:"width"`
	Height         uint16 `json:"height"`
	X              int    `json:"x"`
	Y              int    `json:"y"`
	Mapped         bool   `json:"mapped"`
	ShouldBeMapped bool   `json:"should_be_mapped"`
	Xembed         bool   `json:"xembed"`
	XembedVersion  uint32 `json:"xembed_version,omitempty"`
	XembedFlags    uint32 `json:"xembed_flags,omitempty"`
}

// Status returns a snapshot of the embedded client, or nil when it is
// gone.
func (m *Model) Status() *ClientStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client == nil {
		return nil
	}

	pos := m.client.Position()
	return &ClientStatus{
		ID:             m.client.ID(),
		Name:           m.client.Name(),
		Window:         uint32(m.client.Window()),
		Embedder:       uint32(m.client.Embedder()),
		Width:          m.client.Width(),
		Height:         m.client.Height(),
		X:              pos.X,
		Y:              pos.Y,
		Mapped:         m.client.Mapped(),
		ShouldBeMapped: m.client.ShouldBeMapped(),
		Xembed:         m.client.XembedSupported(),
		XembedVersion:  m.client.Xembed().Version,
		XembedFlags:    m.client.Xembed().Flags,
	}
}

func (m *Model) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	atom, err := m.Conn.InternAtom(xembed.AtomInfo)
	if err != nil {
		return err
	}
	m.xembedInfoAtom = atom

	background, err := m.Config.BackgroundColor()
	if err != nil {
		return err
	}

	size := tray.Size{W: uint16(m.Config.IconSize), H: uint16(m.Config.IconSize)}

	client, err := Embed(m.Log, m.Conn, Background{Manager: m.Bg}, m.Bar.WID, m.Win, size, background)
	if err != nil {
		return fmt.Errorf("embed window %d: %w", m.Win, err)
	}
	m.client = client

	client.SetHidden(m.Config.Hidden)
	client.EnsureState()
	client.SetPosition(m.iconX(), m.iconY())

	// Changed events are only published from Bg.Refresh, which runs inside
	// Update and Init with m.mu already held. The callback therefore reads
	// m.client without locking and must never take m.mu itself.
	bus.Subscribe("app.Model", func(ctx context.Context, ev xbg.Changed) error {
		if m.client != nil && ev.Window == m.client.Embedder() {
			m.client.UpdateBackground()
		}
		return nil
	})

	m.Log.Info("Embedded tray icon",
		"id", client.ID(), "name", client.Name(),
		"window", client.Window(), "embedder", client.Embedder(),
		"xembed", client.XembedSupported(), "mapped", client.Mapped())

	return nil
}

func (m *Model) Update(ctx context.Context, msg xwm.Msg) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev := msg.(type) {
	case xproto.PropertyNotifyEvent:
		if m.client != nil && m.client.Match(ev.Window) && ev.Atom == m.xembedInfoAtom {
			m.Log.Debug("XEmbed info changed", "window", ev.Window)
			m.client.QueryXembed()
			m.client.EnsureState()
		}
		return nil
	case xproto.ExposeEvent:
		if ev.Window == m.Bar.WID {
			// The bar content behind the icons changed, re-capture slices.
			m.Bg.Refresh()
		} else if m.client != nil && ev.Window == m.client.Embedder() {
			m.client.UpdateBackground()
		}
		return nil
	case xproto.ConfigureNotifyEvent:
		if ev.Window == m.Bar.WID && ev.Width != m.Bar.Width {
			m.Bar.Width = ev.Width
			if m.client != nil {
				m.client.SetPosition(m.iconX(), m.iconY())
			}
		}
		return nil
	case xproto.MapNotifyEvent:
		if m.client != nil && m.client.Match(ev.Window) {
			m.client.SetMapped(true)
		}
		return nil
	case xproto.UnmapNotifyEvent:
		if m.client != nil && m.client.Match(ev.Window) {
			m.client.SetMapped(false)
		}
		return nil
	case xproto.ReparentNotifyEvent:
		if m.client != nil && m.client.Match(ev.Window) && ev.Parent != m.client.Embedder() {
			m.Log.Info("Tray icon reparented away", "window", ev.Window, "parent", ev.Parent)
			m.removeClient()
			return xwm.ErrQuit
		}
		return nil
	case xproto.DestroyNotifyEvent:
		if m.client != nil && m.client.Match(ev.Window) {
			m.Log.Info("Tray icon destroyed", "window", ev.Window)
			m.removeClient()
			return xwm.ErrQuit
		}
		return nil
	default:
		m.Log.Debug("Unhandled event", "event", fmt.Sprintf("%T", msg))
		return nil
	}
}

// Close tears down the embedded client.
func (m *Model) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeClient()
}

func (m *Model) removeClient() {
	if m.client == nil {
		return
	}
	m.Bg.Forget(m.client.Embedder())
	m.client.Close()
	m.client = nil
}

func (m *Model) iconX() int {
	x := int(m.Bar.Width) - m.Config.IconSize - (int(m.Bar.Height)-m.Config.IconSize)/2
	if x < 0 {
		x = 0
	}
	return x
}

func (m *Model) iconY() int {
	y := (int(m.Bar.Height) - m.Config.IconSize) / 2
	if y < 0 {
		y = 0
	}
	return y
}
