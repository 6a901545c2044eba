// Command cy-echo-server is a minimal demonstration of the reactor +
// Connection hard core: it accepts TCP connections and echoes back
// whatever bytes each peer sends, logging every connect/disconnect.
package main

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xtaci/cyclone/clog"
	"github.com/xtaci/cyclone/conn"
	"github.com/xtaci/cyclone/internal/sysapi"
	"github.com/xtaci/cyclone/reactor"
)

// VERSION is populated via build flags when packaging official binaries.
var VERSION = "SELFBUILD"

func main() {
	app := cli.NewApp()
	app.Name = "cy-echo-server"
	app.Usage = "reactor-based TCP echo server"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "listen,l",
			Value: ":7900",
			Usage: "listen address, eg: \"IP:7900\"",
		},
		cli.StringFlag{
			Name:  "log",
			Value: "",
			Usage: "specify a log file to output, default goes to stderr",
		},
		cli.StringFlag{
			Name:  "debugcsv",
			Value: "",
			Usage: "periodically append per-connection debug values to this CSV file",
		},
		cli.IntFlag{
			Name:  "debugevery",
			Value: 10,
			Usage: "seconds between debug CSV appends",
		},
		cli.BoolFlag{
			Name:  "quiet",
			Usage: "suppress per-connection open/close logs",
		},
		cli.StringFlag{
			Name:  "c",
			Value: "",
			Usage: "config from json file, which will override the command from shell",
		},
	}
	app.Action = run
	if err := app.Run(os.Args); err != nil {
		clog.Fatal("cy-echo-server exited with error", zap.Error(err))
	}
}

func run(c *cli.Context) error {
	config := Config{
		Listen:     c.String("listen"),
		Log:        c.String("log"),
		DebugCSV:   c.String("debugcsv"),
		DebugEvery: c.Int("debugevery"),
		Quiet:      c.Bool("quiet"),
	}
	if path := c.String("c"); path != "" {
		if err := parseJSONConfig(&config, path); err != nil {
			return err
		}
	}

	if config.Log != "" {
		f, err := os.OpenFile(config.Log, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return err
		}
		defer f.Close()
		clog.SetSink(clog.NewCore(zapcore.AddSync(f)))
	}

	color.Cyan("cy-echo-server %s", VERSION)
	clog.Info("starting", zap.String("listen", config.Listen))

	loop, err := reactor.NewLoop()
	if err != nil {
		return err
	}
	defer loop.Close()

	tcpAddr, err := net.ResolveTCPAddr("tcp", config.Listen)
	if err != nil {
		return err
	}
	addr, err := sysapi.AddressFromTCPAddr(tcpAddr)
	if err != nil {
		return err
	}

	sink := conn.NewMapSink()
	var dumper *conn.CSVDumper
	if config.DebugCSV != "" {
		dumper = conn.NewCSVDumper(sink, config.DebugCSV, time.Duration(config.DebugEvery)*time.Second)
		dumper.Start()
		defer dumper.Stop()
	}

	ln, err := conn.Listen(loop, addr, 128)
	if err != nil {
		return err
	}
	defer ln.Close()

	ln.OnAccept = func(c *conn.Connection) {
		if !config.Quiet {
			clog.Info("connection opened",
				zap.String("name", c.Name()), zap.String("peer", c.PeerAddr().String()))
		}
		c.SetOnMessage(func(c *conn.Connection) {
			buf := make([]byte, c.ReadBuffer().Size())
			c.ReadBuffer().ReadBytes(buf)
			c.Send(buf)
		})
		c.SetOnClose(func(c *conn.Connection) {
			if !config.Quiet {
				clog.Info("connection closed", zap.String("name", c.Name()))
			}
		})
		if config.DebugCSV != "" {
			c.Debug(sink)
		}
	}

	installSignalHandlers(loop, func() {
		fmt.Fprintln(os.Stderr, "debug dump:", sink.Keys())
	})

	loop.Loop()
	clog.Info("stopped")
	return nil
}
