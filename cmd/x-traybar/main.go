package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/ItsNotGoodName/x-traybar/internal/api"
	"github.com/ItsNotGoodName/x-traybar/internal/app"
	"github.com/ItsNotGoodName/x-traybar/internal/build"
	"github.com/ItsNotGoodName/x-traybar/internal/bus"
	"github.com/ItsNotGoodName/x-traybar/internal/config"
	"github.com/ItsNotGoodName/x-traybar/internal/core"
	"github.com/ItsNotGoodName/x-traybar/internal/xbg"
	"github.com/ItsNotGoodName/x-traybar/internal/xconn"
	"github.com/ItsNotGoodName/x-traybar/internal/xwm"
	"github.com/ItsNotGoodName/x-traybar/pkg/sutureext"
	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/joho/godotenv"
	"github.com/k0kubun/pp"
	"github.com/phsym/console-slog"
	"github.com/thejerf/suture/v4"
)

type Options struct {
	Debug  bool   `doc:"enable debug"`
	Host   string `doc:"host to listen on"`
	Port   int    `doc:"port to listen on" default:"8080"`
	Config string `doc:"config file" default:".x-traybar.yaml"`
	Window int64  `doc:"x window id of the tray icon to embed"`
}

func main() {
	godotenv.Load()

	cli := humacli.New(func(hooks humacli.Hooks, options *Options) {
		if options.Debug {
			InitLogger(slog.LevelDebug)
		} else {
			InitLogger(slog.LevelInfo)
		}

		OnServe(hooks, func(ctx context.Context) error {
			bus.SetContext(ctx)

			if options.Window == 0 {
				return errors.New("no window id given")
			}

			configFilePath, err := filepath.Abs(options.Config)
			if err != nil {
				return err
			}

			store, err := config.NewStore(config.NewYAML(configFilePath))
			if err != nil {
				return err
			}

			cfg, err := store.GetConfig()
			if err != nil {
				return err
			}
			if options.Debug {
				pp.Println(cfg)
			}

			conn, err := xgb.NewConn()
			if err != nil {
				return err
			}
			defer conn.Close()

			bar, err := xwm.CreateBarWindow(conn, uint16(cfg.BarHeight))
			if err != nil {
				return err
			}

			xc := xconn.NewXGB(conn)

			model := &app.Model{
				Log:    slog.Default(),
				Conn:   xc,
				Bg:     xbg.NewManager(xc, bar.WID),
				Bar:    bar,
				Win:    xproto.Window(options.Window),
				Config: cfg,
			}
			defer model.Close()

			super := sutureext.New("x-traybar")
			sutureext.Add(super, sutureext.NewServiceFunc("api", serveAPI(core.Address(options.Host, options.Port), model)))
			superErrC := super.ServeBackground(ctx)

			eventC := make(chan xwm.Msg)
			go xwm.ReceiveEvents(ctx, conn, eventC)

			if err := xwm.HandleEvents(ctx, model, eventC); err != nil {
				return err
			}

			select {
			case err := <-superErrC:
				if !errors.Is(err, context.Canceled) {
					return err
				}
			default:
			}

			return nil
		})
	})

	cli.Root().Version = build.Current.Version

	cli.Run()
}

func serveAPI(address string, model *app.Model) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		server := &http.Server{
			Addr:    address,
			Handler: api.NewRouter(model),
		}

		go func() {
			<-ctx.Done()
			server.Shutdown(context.Background())
		}()

		slog.Info("Starting HTTP server", "address", address)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return suture.ErrDoNotRestart
	}
}

func InitLogger(level slog.Level) {
	slog.SetDefault(slog.New(console.NewHandler(os.Stderr, &console.HandlerOptions{
		Level: level,
	})))
}

func OnServe(hooks humacli.Hooks, serveFn func(ctx context.Context) error) {
	stopC := make(chan struct{})
	hooks.OnStart(func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		errC := make(chan error, 1)

		go func() { errC <- serveFn(ctx) }()

		select {
		case <-stopC:
			cancel()
		case err := <-errC:
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Fatal(err)
			}
			return
		}

		<-errC
		<-stopC
	})
	hooks.OnStop(func() {
		stopC <- struct{}{}
		stopC <- struct{}{}
	})
}
