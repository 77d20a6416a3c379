package app

import (
	"image"
	"image/color"
	"log/slog"

	"github.com/ItsNotGoodName/x-traybar/internal/tray"
	"github.com/ItsNotGoodName/x-traybar/internal/xbg"
	"github.com/ItsNotGoodName/x-traybar/internal/xconn"
	"github.com/jezek/xgb/xproto"
)

// Background adapts xbg.Manager to the tray background interface.
type Background struct {
	Manager *xbg.Manager
}

func (b Background) Observe(rect image.Rectangle, win xproto.Window) (tray.Slice, error) {
	slice, err := b.Manager.Observe(rect, win)
	if err != nil {
		return nil, err
	}
	return slice, nil
}

// Embed runs the docking sequence for a foreign icon window: create the
// wrapper, negotiate XEmbed, take over the window and bring the mapping
// state in line. On failure the wrapper is torn down again.
func Embed(log *slog.Logger, conn xconn.Conn, bg tray.Background, parent, win xproto.Window, size tray.Size, background color.NRGBA) (*tray.Client, error) {
	client, err := tray.New(log, conn, bg, parent, win, size, background)
	if err != nil {
		return nil, err
	}

	client.QueryXembed()

	if err := client.UpdateClientAttributes(); err != nil {
		client.Close()
		return nil, err
	}
	if err := client.Reparent(); err != nil {
		client.Close()
		return nil, err
	}
	if err := client.AddToSaveSet(); err != nil {
		client.Close()
		return nil, err
	}
	if err := client.NotifyXembed(); err != nil {
		client.Close()
		return nil, err
	}
	if err := client.ConfigureNotify(); err != nil {
		client.Close()
		return nil, err
	}

	client.EnsureState()

	return client, nil
}
