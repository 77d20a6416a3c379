// Package xembed implements the client side of the XEmbed convention used
// by system tray icons. XEmbed is best effort: icons may or may not expose
// _XEMBED_INFO, and absence of the property is a normal state.
package xembed

import (
	"fmt"

	"github.com/ItsNotGoodName/x-traybar/internal/xconn"
	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
)

const (
	AtomInfo  = "_XEMBED_INFO"
	AtomEmbed = "_XEMBED"

	// Version is the highest protocol version this embedder speaks.
	Version uint32 = 0

	embeddedNotify uint32 = 0

	// FlagMapped is the "wants to be mapped" bit of _XEMBED_INFO flags.
	FlagMapped uint32 = 1 << 0
)

// Info is the {version, flags} pair an embeddable window advertises through
// its _XEMBED_INFO property.
type Info struct {
	Version uint32
	Flags   uint32
}

func (i Info) Mapped() bool {
	return i.Flags&FlagMapped != 0
}

func (i Info) String() string {
	return fmt.Sprintf("xembed(version=%d, flags=%#x, mapped=%t)", i.Version, i.Flags, i.Mapped())
}

// Query reads the window's _XEMBED_INFO property. The second return value
// reports whether the window supports XEmbed at all; a missing or short
// property is not an error.
func Query(conn xconn.Conn, win xproto.Window) (Info, bool, error) {
	atom, err := conn.InternAtom(AtomInfo)
	if err != nil {
		return Info{}, false, err
	}

	data, err := conn.GetProperty(win, atom, xproto.GetPropertyTypeAny, 2)
	if err != nil {
		return Info{}, false, err
	}
	if len(data) < 8 {
		return Info{}, false, nil
	}

	return Info{
		Version: xgb.Get32(data),
		Flags:   xgb.Get32(data[4:]),
	}, true, nil
}

// NotifyEmbedded sends the XEMBED_EMBEDDED_NOTIFY client message to win,
// carrying the embedder window and the negotiated protocol version.
func NotifyEmbedded(conn xconn.Conn, win, embedder xproto.Window, version uint32) error {
	atom, err := conn.InternAtom(AtomEmbed)
	if err != nil {
		return err
	}

	if version > Version {
		version = Version
	}

	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: win,
		Type:   atom,
		Data: xproto.ClientMessageDataUnionData32New([]uint32{
			uint32(xproto.TimeCurrentTime),
			embeddedNotify,
			0,
			uint32(embedder),
			version,
		}),
	}

	return conn.SendEvent(false, win, xproto.EventMaskNoEvent, string(ev.Bytes()))
}

// Unembed returns the window to the root window, releasing it from its
// embedder.
func Unembed(conn xconn.Conn, win, root xproto.Window) error {
	return conn.ReparentWindow(win, root, 0, 0)
}
