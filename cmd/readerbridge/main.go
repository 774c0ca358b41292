package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/wippyai/reader-bridge/bridge"
	"github.com/wippyai/reader-bridge/client"
	"github.com/wippyai/reader-bridge/config"
	"github.com/wippyai/reader-bridge/logging"
	"github.com/wippyai/reader-bridge/reader"
	"github.com/wippyai/reader-bridge/reader/clipboard"
	"github.com/wippyai/reader-bridge/reader/fsreader"
	"github.com/wippyai/reader-bridge/telemetry"
)

func main() {
	os.Exit(runMain(os.Args[1:], os.Stderr))
}

// runMain parses args and runs the command, returning the exit code. It
// returns instead of exiting so deferred cleanup such as the logger flush
// always runs.
func runMain(args []string, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	fs := flag.NewFlagSet("readerbridge", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		text        = fs.Bool("text", false, "Read the system clipboard text instead of paths")
		target      = fs.String("target", cfg.TargetFolder, "Folder to fetch virtual files into (empty: list only)")
		format      = fs.String("format", "", "Format to fetch (default: first virtual file format of each item)")
		metricsAddr = fs.String("metrics", cfg.MetricsAddr, "Serve Prometheus metrics on this address")
		logLevel    = fs.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
		interactive = fs.Bool("i", false, "Interactive mode with TUI")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg.TargetFolder = *target
	cfg.MetricsAddr = *metricsAddr
	cfg.LogLevel = *logLevel

	if !*text && fs.NArg() == 0 {
		fmt.Fprintln(stderr, "Usage: readerbridge [-target dir] [-format f] [-metrics addr] paths...")
		fmt.Fprintln(stderr, "       readerbridge -text")
		fmt.Fprintln(stderr, "       readerbridge -i paths...  (interactive mode)")
		return 1
	}

	logger, err := logging.New(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer logger.Sync()
	bridge.SetLogger(logger)

	if err := run(cfg, logger, *text, *format, *interactive, fs.Args()); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func run(cfg config.Config, logger *zap.Logger, text bool, format string, interactive bool, paths []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	collector := telemetry.Noop()
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		pc, err := telemetry.NewPrometheusCollector(reg)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		collector = pc
		shutdown := serveMetrics(cfg.MetricsAddr, reg, logger)
		defer shutdown()
	}

	hub := client.NewHub([]bridge.Option{
		bridge.WithLogger(logger),
		bridge.WithTelemetry(collector),
	}, client.WithLogger(logger))
	defer hub.Close(context.Background())

	rd, err := openReader(cfg, logger, text, paths)
	if err != nil {
		return err
	}

	iso := hub.Attach()
	proxy, err := iso.Register(ctx, rd)
	if err != nil {
		return fmt.Errorf("register reader: %w", err)
	}
	defer proxy.Dispose(context.Background())

	if interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return fmt.Errorf("interactive mode needs a terminal")
		}
		return runInteractive(ctx, iso, proxy, cfg.TargetFolder, format)
	}

	items, err := describe(ctx, proxy)
	if err != nil {
		return err
	}
	if text {
		return printText(ctx, proxy, items)
	}
	if cfg.TargetFolder == "" {
		return nil
	}
	return fetchAll(ctx, iso, proxy, items, cfg.TargetFolder, format)
}

func openReader(cfg config.Config, logger *zap.Logger, text bool, paths []string) (reader.Reader, error) {
	if text {
		return clipboard.New(), nil
	}
	rd, err := fsreader.New(paths, fsreader.WithChunkSize(cfg.ChunkSize), fsreader.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("open paths: %w", err)
	}
	return rd, nil
}

type formatInfo struct {
	name        string
	synthesized bool
	virtual     bool
}

type itemInfo struct {
	name    string
	formats []formatInfo
	handle  int64
}

// virtualFormat returns the first format that can be fetched as a file,
// restricted to want when it is set.
func (it itemInfo) virtualFormat(want string) string {
	for _, f := range it.formats {
		if f.virtual && (want == "" || f.name == want) {
			return f.name
		}
	}
	return ""
}

// inspect queries every item of the reader.
func inspect(ctx context.Context, proxy *client.ReaderProxy) ([]itemInfo, error) {
	handles, err := proxy.Items(ctx)
	if err != nil {
		return nil, fmt.Errorf("items: %w", err)
	}

	infos := make([]itemInfo, 0, len(handles))
	for _, h := range handles {
		info := itemInfo{handle: h, name: fmt.Sprintf("item-%d", h)}
		if name, ok, err := proxy.SuggestedName(ctx, h); err != nil {
			return nil, fmt.Errorf("item %d name: %w", h, err)
		} else if ok {
			info.name = name
		}

		formats, err := proxy.Formats(ctx, h)
		if err != nil {
			return nil, fmt.Errorf("item %d formats: %w", h, err)
		}
		for _, f := range formats {
			fi := formatInfo{name: f}
			if fi.synthesized, err = proxy.IsSynthesized(ctx, h, f); err != nil {
				return nil, fmt.Errorf("item %d format %s: %w", h, f, err)
			}
			if fi.virtual, err = proxy.CanGetVirtualFile(ctx, h, f); err != nil {
				return nil, fmt.Errorf("item %d format %s: %w", h, f, err)
			}
			info.formats = append(info.formats, fi)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// describe prints every item with its formats and returns what it found.
func describe(ctx context.Context, proxy *client.ReaderProxy) ([]itemInfo, error) {
	items, err := inspect(ctx, proxy)
	if err != nil {
		return nil, err
	}
	fmt.Printf("Items: %d\n", len(items))
	for _, it := range items {
		fmt.Printf("\n  [%d] %s\n", it.handle, it.name)
		for _, f := range it.formats {
			fmt.Printf("      %s%s%s\n", f.name, flagIf(f.synthesized, " (synthesized)"), flagIf(f.virtual, " (virtual file)"))
		}
	}
	return items, nil
}

func printText(ctx context.Context, proxy *client.ReaderProxy, items []itemInfo) error {
	for _, it := range items {
		data, err := proxy.Data(ctx, it.handle, clipboard.FormatText, nil)
		if err != nil {
			return fmt.Errorf("item %d data: %w", it.handle, err)
		}
		fmt.Printf("\n--- %s ---\n%v\n", it.name, data)
	}
	return nil
}

// fetchAll copies every item that has a virtual file format into target,
// in parallel. An interrupt cancels the copies still running.
func fetchAll(ctx context.Context, iso *client.Isolate, proxy *client.ReaderProxy, items []itemInfo, target, format string) error {
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("target folder: %w", err)
	}

	printer := newProgressPrinter(term.IsTerminal(int(os.Stdout.Fd())))
	g, gctx := errgroup.WithContext(context.Background())
	var canceled sync.Map

	for _, it := range items {
		f := it.virtualFormat(format)
		if f == "" {
			fmt.Printf("skip %s: no virtual file format\n", it.name)
			continue
		}

		progress := iso.NewProgress(func(s client.ProgressState) {
			printer.update(it.name, s)
		})
		stopCancel := context.AfterFunc(ctx, func() {
			canceled.Store(it.handle, true)
			if err := progress.Cancel(context.Background()); err != nil {
				printer.line(fmt.Sprintf("cancel %s: %v", it.name, err))
			}
		})

		g.Go(func() error {
			defer stopCancel()
			defer progress.Close()

			path, err := proxy.VirtualFile(gctx, it.handle, f, target, progress)
			switch {
			case err == nil:
				printer.line(fmt.Sprintf("%s -> %s", it.name, path))
				return nil
			case stderrors.Is(err, reader.ErrCanceled):
				printer.line(fmt.Sprintf("%s: canceled", it.name))
				if _, ok := canceled.Load(it.handle); ok {
					return nil
				}
				return err
			default:
				return fmt.Errorf("%s: %w", it.name, err)
			}
		})
	}
	return g.Wait()
}

// progressPrinter renders progress on one status line when stdout is a
// terminal and only prints completed lines otherwise.
type progressPrinter struct {
	states map[string]client.ProgressState
	tty    bool
	mu     sync.Mutex
}

func newProgressPrinter(tty bool) *progressPrinter {
	return &progressPrinter{states: make(map[string]client.ProgressState), tty: tty}
}

func (p *progressPrinter) update(name string, s client.ProgressState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states[name] = s
	if p.tty {
		fmt.Print("\r\033[K" + p.status())
	}
}

func (p *progressPrinter) line(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tty {
		fmt.Print("\r\033[K")
	}
	fmt.Println(msg)
}

func (p *progressPrinter) status() string {
	var s string
	for _, name := range slices.Sorted(maps.Keys(p.states)) {
		st := p.states[name]
		pct := "…"
		if st.Fraction != nil {
			pct = fmt.Sprintf("%3.0f%%", *st.Fraction*100)
		}
		s += fmt.Sprintf("%s %s  ", name, pct)
	}
	return s
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func flagIf(cond bool, s string) string {
	if cond {
		return s
	}
	return ""
}
