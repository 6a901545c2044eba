// Command cy-echo-client dials cy-echo-server, sends a message on a
// ticker, and logs every reply, demonstrating TcpClient's connect/retry
// path and Connection's send/receive path together.
package main

import (
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

var VERSION = "SELFBUILD"

func main() {
	app := cli.NewApp()
	app.Name = "cy-echo-client"
	app.Usage = "reactor-based TCP echo client"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "remote,r", Value: "127.0.0.1:7900", Usage: "server address"},
		cli.StringFlag{Name: "log", Value: "", Usage: "specify a log file to output, default goes to stderr"},
		cli.StringFlag{Name: "message,m", Value: "ping", Usage: "message to send on each tick"},
		cli.IntFlag{Name: "interval", Value: 1, Usage: "seconds between sends"},
		cli.IntFlag{Name: "retryms", Value: 1000, Usage: "milliseconds to wait before retrying a failed connect"},
		cli.StringFlag{Name: "c", Value: "", Usage: "config from json file, which will override the command from shell"},
	}
	app.Action = run
	if err := app.Run(os.Args); err != nil {
		clog.Fatal("cy-echo-client exited with error", zap.Error(err))
	}
}

func run(c *cli.Context) error {
	config := Config{
		Remote:   c.String("remote"),
		Log:      c.String("log"),
		Message:  c.String("message"),
		Interval: c.Int("interval"),
		RetryMs:  c.Int("retryms"),
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

	color.Cyan("cy-echo-client %s", VERSION)
	clog.Info("starting", zap.String("remote", config.Remote))

	loop, err := reactor.NewLoop()
	if err != nil {
		return err
	}
	defer loop.Close()

	tcpAddr, err := net.ResolveTCPAddr("tcp", config.Remote)
	if err != nil {
		return err
	}
	addr, err := sysapi.AddressFromTCPAddr(tcpAddr)
	if err != nil {
		return err
	}

	client := conn.NewClient(loop, nil)
	client.OnMessage = func(c *conn.Connection) {
		buf := make([]byte, c.ReadBuffer().Size())
		c.ReadBuffer().ReadBytes(buf)
		clog.Info("reply", zap.ByteString("data", buf))
	}
	client.OnClose = func(*conn.TcpClient) {
		clog.Warn("connection closed")
	}
	client.OnConnected = func(cl *conn.TcpClient, c *conn.Connection, ok bool) time.Duration {
		if !ok {
			clog.Warn("connect failed, retrying", zap.Duration("after", time.Duration(config.RetryMs)*time.Millisecond))
			return time.Duration(config.RetryMs) * time.Millisecond
		}
		clog.Info("connected", zap.String("peer", c.PeerAddr().String()))
		return 0
	}

	if err := client.Connect(addr); err != nil {
		return err
	}

	go func() {
		ticker := time.NewTicker(time.Duration(config.Interval) * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			client.Send([]byte(config.Message))
		}
	}()

	installSignalHandlers(loop, client.Disconnect)

	loop.Loop()
	clog.Info("stopped")
	return nil
}
