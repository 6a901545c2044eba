package conn

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/xtaci/cyclone/clog"
)

// CSVDumper periodically appends a MapSink's current values to a CSV
// file, one row per tick with a Unix-timestamp column first — the same
// ticker-driven append-only layout std/snmp.go uses for KCP's SNMP
// counters, generalized here to this library's debug-value sink
// instead of a fixed counter struct.
type CSVDumper struct {
	sink     *MapSink
	path     string
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewCSVDumper constructs a dumper that is not yet running; call Start.
func NewCSVDumper(sink *MapSink, path string, interval time.Duration) *CSVDumper {
	return &CSVDumper{sink: sink, path: path, interval: interval}
}

// Start launches the ticker goroutine. A no-op if path or interval is
// empty/zero, matching SnmpLogger's early return.
func (d *CSVDumper) Start() {
	if d.path == "" || d.interval <= 0 {
		return
	}
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.run()
}

func (d *CSVDumper) run() {
	defer close(d.done)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			d.writeOnce()
		}
	}
}

func (d *CSVDumper) writeOnce() {
	f, err := os.OpenFile(d.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		clog.Warn("csv dump open failed", zap.Error(err))
		return
	}
	defer f.Close()

	keys := d.sink.Keys()
	sort.Strings(keys)

	w := csv.NewWriter(f)
	if stat, err := f.Stat(); err == nil && stat.Size() == 0 {
		w.Write(append([]string{"unix"}, keys...))
	}

	row := []string{fmt.Sprint(time.Now().Unix())}
	for _, k := range keys {
		v, _ := d.sink.Value(k)
		row = append(row, fmt.Sprint(v))
	}
	w.Write(row)
	w.Flush()
}

// Stop ends the ticker goroutine and waits for it to exit. A no-op if
// Start was never called or was a no-op itself.
func (d *CSVDumper) Stop() {
	if d.stop == nil {
		return
	}
	close(d.stop)
	<-d.done
}
