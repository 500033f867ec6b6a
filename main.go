package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"LiveBoard/internal/config"
	"LiveBoard/internal/export"
	"LiveBoard/internal/hub"
	lbnet "LiveBoard/internal/net"
	"LiveBoard/internal/session"
	"LiveBoard/internal/state"
)

const Version = "0.2.0"

const usage = `LiveBoard, a shared drawing board for the local network.

Usage:
    liveboard host [--config=<path>] [--addr=<addr>] [--room=<room>] [--no-mdns] [--v=<level>]
    liveboard join <link> [--config=<path>] [--user=<name>] [--replay=<file>] [--save=<file>] [--v=<level>]
    liveboard discover [--timeout=<timeout>] [--v=<level>]
    liveboard render <file> <out> [--width=<px>] [--v=<level>]
    liveboard -h | --help
    liveboard --version

Share links look like localboard://<ip>:<port>/<room>; a bare link joins it.

Options:
    -h --help              Show this screen.
    --version              Show version.
    --config=<path>        YAML config file.
    --addr=<addr>          Listen address, overrides the config.
    --room=<room>          Room to open; a new id is made when omitted.
    --no-mdns              Do not advertise the room on the local network.
    --user=<name>          User id; a random one when omitted.
    --replay=<file>        Draw the strokes of an export into the room.
    --save=<file>          Write the drawing to an export when leaving.
    --timeout=<timeout>    How long to browse, with time units [default: 3s].
    --width=<px>           Scale PNG output down to this width.
    --v=<level>            Log verbosity [default: 0].`

func main() {
	flag.Set("logtostderr", "true")
	flag.CommandLine.Parse(nil)
	defer glog.Flush()

	args := os.Args[1:]
	if len(args) == 1 && strings.HasPrefix(args[0], lbnet.Scheme+"://") {
		args = []string{"join", args[0]}
	}
	opts, err := docopt.ParseArgs(usage, args, Version)
	if err != nil {
		panic(err)
	}
	if v, _ := opts.String("--v"); v != "" {
		flag.Set("v", v)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if host_, _ := opts.Bool("host"); host_ {
		err = runHost(ctx, opts)
	} else if discover_, _ := opts.Bool("discover"); discover_ {
		err = runDiscover(opts)
	} else if render_, _ := opts.Bool("render"); render_ {
		err = runRender(opts)
	} else {
		err = runClient(ctx, opts)
	}
	if err != nil {
		glog.Errorf("%s", err)
		glog.Flush()
		os.Exit(1)
	}
}

func runHost(ctx context.Context, opts docopt.Opts) error {
	path, _ := opts.String("--config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if addr, _ := opts.String("--addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	if room, _ := opts.String("--room"); room != "" {
		cfg.Room = room
	}
	if cfg.Room == "" {
		cfg.Room = ulid.Make().String()
	}
	if noMDNS, _ := opts.Bool("--no-mdns"); noMDNS {
		cfg.Server.Advertise = false
	}

	h := hub.New(hub.Options{
		Width:     cfg.Canvas.Width,
		Height:    cfg.Canvas.Height,
		Transport: cfg.TransportSettings(),
	})
	defer h.Close()
	if _, err := h.Room(cfg.Room); err != nil {
		return err
	}

	listener, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
	}
	port := listener.Addr().(*net.TCPAddr).Port

	link := lbnet.HostLink(port, cfg.Room)
	glog.Infof("[host] room %s, share link %s", cfg.Room, link)
	fmt.Println(link)

	server := &http.Server{Handler: h.Handler()}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	if cfg.Server.Advertise {
		g.Go(func() error {
			mdnsServer, err := lbnet.Advertise(cfg.Room, port)
			if err != nil {
				// the room still works through its share link
				glog.Warningf("[mdns] %s", err)
				return nil
			}
			<-gctx.Done()
			return mdnsServer.Shutdown()
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		glog.Infof("[host] shutting down")
		h.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runClient(ctx context.Context, opts docopt.Opts) error {
	link, _ := opts.String("<link>")
	url, room, err := lbnet.ParseShareLink(link)
	if err != nil {
		return err
	}
	path, _ := opts.String("--config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if user, _ := opts.String("--user"); user != "" {
		cfg.User = user
	}

	sess, err := session.New(session.Options{
		RoomID:    room,
		UserID:    cfg.User,
		Width:     cfg.Canvas.Width,
		Height:    cfg.Canvas.Height,
		Scheduler: cfg.BatchConfig(),
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	client, err := lbnet.Dial(ctx, url, cfg.TransportSettings())
	if err != nil {
		return err
	}
	defer client.Close()
	sess.Attach(client)
	glog.Infof("[client] joined room %s as %s", room, sess.UserID())

	g, gctx := errgroup.WithContext(ctx)
	gctx, leave := context.WithCancel(gctx)
	defer leave()
	g.Go(func() error {
		// a normal close from the host ends the replay too
		defer leave()
		return client.Run(gctx)
	})
	if replay, _ := opts.String("--replay"); replay != "" {
		g.Go(func() error {
			err := replayFile(gctx, sess, replay)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	err = g.Wait()

	if save, _ := opts.String("--save"); save != "" {
		if serr := saveFile(sess, save); serr != nil {
			return errors.Join(err, serr)
		}
		glog.Infof("[client] saved %s", save)
	}
	return err
}

// replayFile draws the strokes of an export as if they were drawn by hand,
// one point per frame.
func replayFile(ctx context.Context, sess *session.Session, path string) error {
	strokes, _, err := readExport(path)
	if err != nil {
		return err
	}
	for i, st := range strokes {
		if err := st.Validate(); err != nil {
			return fmt.Errorf("%s: stroke %d: %w", path, i, err)
		}
	}
	frame := time.NewTicker(time.Second / 60)
	defer frame.Stop()
	wait := func() error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-frame.C:
			return nil
		}
	}

	for _, st := range strokes {
		if st.Tool == state.ToolFill {
			if _, err := sess.FillAt(st.Seed(), st.Color); err != nil {
				return err
			}
			continue
		}
		if _, err := sess.BeginStroke(st.Tool, st.Color, st.Width, st.Points[0]); err != nil {
			return err
		}
		for _, p := range st.Points[1:] {
			if err := wait(); err != nil {
				return err
			}
			if err := sess.ExtendStroke(p); err != nil {
				return err
			}
		}
		if _, err := sess.EndStroke(); err != nil {
			return err
		}
	}
	glog.Infof("[client] replayed %d strokes from %s", len(strokes), path)
	return nil
}

func runDiscover(opts docopt.Opts) error {
	timeoutStr, _ := opts.String("--timeout")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return fmt.Errorf("bad timeout: %w", err)
	}
	found := 0
	err = lbnet.Browse(timeout, func(s lbnet.Service) {
		found++
		fmt.Printf("%s\t%s\n", s.Link(), s.Name)
	})
	if err != nil {
		return err
	}
	if found == 0 {
		glog.Infof("[mdns] no rooms found")
	}
	return nil
}

func runRender(opts docopt.Opts) error {
	in, _ := opts.String("<file>")
	out, _ := opts.String("<out>")
	maxWidth := 0
	if w, _ := opts.String("--width"); w != "" {
		var err error
		if maxWidth, err = strconv.Atoi(w); err != nil {
			return fmt.Errorf("bad width: %w", err)
		}
	}

	strokes, meta, err := readExport(in)
	if err != nil {
		return err
	}
	sess, err := session.New(session.Options{Width: meta.CanvasWidth, Height: meta.CanvasHeight})
	if err != nil {
		return err
	}
	defer sess.Close()
	if err := sess.Load(strokes); err != nil {
		return err
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(out)) {
	case ".pdf":
		err = export.WritePDF(f, strokes, sess.Image())
	case ".png":
		err = export.WritePNG(f, sess.Image(), maxWidth)
	default:
		err = fmt.Errorf("unsupported output %s, use .png or .pdf", out)
	}
	if err != nil {
		return err
	}
	return f.Close()
}

func readExport(path string) ([]state.Stroke, export.Meta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, export.Meta{}, err
	}
	f, err := export.Parse(data)
	if err != nil {
		return nil, export.Meta{}, fmt.Errorf("%s: %w", path, err)
	}
	strokes, err := f.Strokes()
	if err != nil {
		return nil, export.Meta{}, fmt.Errorf("%s: %w", path, err)
	}
	return strokes, f.Meta, nil
}

func saveFile(sess *session.Session, path string) error {
	width, height := sess.Size()
	f, err := export.Build(sess.Strokes(), width, height, time.Now())
	if err != nil {
		return err
	}
	data, err := f.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
