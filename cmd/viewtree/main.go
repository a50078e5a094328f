package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/pprof"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/term"

	"github.com/vanderheijden86/viewtree/internal/datasource"
	"github.com/vanderheijden86/viewtree/pkg/config"
	"github.com/vanderheijden86/viewtree/pkg/debug"
	"github.com/vanderheijden86/viewtree/pkg/export"
	"github.com/vanderheijden86/viewtree/pkg/metrics"
	"github.com/vanderheijden86/viewtree/pkg/ui"
	"github.com/vanderheijden86/viewtree/pkg/version"
	"github.com/vanderheijden86/viewtree/pkg/watcher"

	tea "github.com/charmbracelet/bubbletea"
)

const defaultDumpRows = 24

func main() {
	configPath := flag.String("config", "", "Read configuration from this file instead of the XDG default")
	cpuProfile := flag.String("cpu-profile", "", "Write CPU profile to file")
	debugLog := flag.String("debug-log", "", "Append debug output to this file")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. 127.0.0.1:9464)")
	dump := flag.Bool("dump", false, "Print the visible rows once and exit")
	snapshot := flag.String("svg", "", "Write a snapshot of the expanded tree to this path (.svg or .png) and exit")
	help := flag.Bool("help", false, "Show help")
	versionFlag := flag.Bool("version", false, "Show version")
	flag.Parse()

	// CPU profiling support
	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Could not start CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	if *help {
		fmt.Println("Usage: viewtree [options] [source ...]")
		fmt.Println("\nBrowse JSON and SQLite trees in a virtualized terminal view.")
		fmt.Println("A source is a file, a directory of files, or a name from the config.")
		flag.PrintDefaults()
		os.Exit(0)
	}

	if *versionFlag {
		fmt.Printf("viewtree %s\n", version.Version)
		os.Exit(0)
	}

	if err := run(options{
		configPath:  *configPath,
		debugLog:    *debugLog,
		metricsAddr: *metricsAddr,
		dump:        *dump,
		snapshot:    *snapshot,
		args:        flag.Args(),
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath  string
	debugLog    string
	metricsAddr string
	dump        bool
	snapshot    string
	args        []string
}

func run(opts options) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	if opts.debugLog != "" {
		closer, err := debug.OpenLogFile(opts.debugLog)
		if err != nil {
			return fmt.Errorf("opening debug log: %w", err)
		}
		defer closer.Close()
	}

	if opts.metricsAddr != "" {
		cfg.Metrics.Addr = opts.metricsAddr
	}
	if cfg.Metrics.Addr != "" {
		stop, err := serveMetrics(cfg.Metrics.Addr)
		if err != nil {
			return err
		}
		defer stop()
	}

	sources, err := resolveSources(cfg, opts.args)
	if err != nil {
		return err
	}
	var logger *log.Logger
	if opts.dump || opts.snapshot != "" {
		logger = log.New(os.Stderr, "", 0)
	}
	load := sourceLoader(sources, logger)

	t, err := ui.NewTreeModel(cfg.View, ui.TreeStatePath(config.StateDir()))
	if err != nil {
		return err
	}
	defer t.Close()

	if opts.dump || opts.snapshot != "" {
		return renderOnce(t, load, cfg, opts)
	}

	var w *watcher.Watcher
	if cfg.Watch.Enabled {
		w, err = watcher.NewWatcher(sourcePaths(sources),
			watcher.WithDebounceDuration(cfg.Watch.Debounce),
			watcher.WithPollInterval(cfg.Watch.PollInterval),
			watcher.WithForcePoll(cfg.Watch.ForcePoll),
		)
		if err != nil {
			return fmt.Errorf("creating watcher: %w", err)
		}
	}

	worker := ui.NewBackgroundWorker(load, w)
	defer worker.Stop()

	return runTUIProgram(ui.NewModel(t, worker, title(sources)))
}

func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

// resolveSources maps arguments, or the configured sources when there are
// none, to loadable files.
func resolveSources(cfg config.Config, args []string) ([]datasource.Source, error) {
	var paths []string
	for _, arg := range args {
		paths = append(paths, cfg.Resolve(arg))
	}
	if len(paths) == 0 {
		for _, s := range cfg.Sources {
			paths = append(paths, s.Path)
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no sources given and none configured in %s", config.ConfigPath())
	}
	sources, err := datasource.Resolve(paths)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, datasource.ErrEmpty
	}
	return sources, nil
}

func sourcePaths(sources []datasource.Source) []string {
	paths := make([]string, len(sources))
	for i, s := range sources {
		paths[i] = s.Path
	}
	return paths
}

// sourceLoader reloads every source. It fails only when none of them load.
// A nil logger keeps partial failures quiet.
func sourceLoader(sources []datasource.Source, logger *log.Logger) ui.LoadFunc {
	loader := datasource.NewLoader()
	if logger != nil {
		loader.SetLogger(logger)
	}
	return func(ctx context.Context) (datasource.Item, error) {
		root, results, err := loader.LoadAll(ctx, sources)
		if err != nil {
			return datasource.Item{}, err
		}
		failed := 0
		for _, r := range results {
			if r.Error != nil {
				debug.Log("load: %s: %v", r.Source.Path, r.Error)
				failed++
			}
		}
		if failed == len(results) {
			return datasource.Item{}, datasource.FirstError(results)
		}
		return root, nil
	}
}

func title(sources []datasource.Source) string {
	if len(sources) == 1 {
		return sources[0].Name()
	}
	return fmt.Sprintf("%d sources", len(sources))
}

// renderOnce loads, reconciles and prints or exports without starting the
// TUI.
func renderOnce(t *ui.TreeModel, load ui.LoadFunc, cfg config.Config, opts options) error {
	root, err := load(context.Background())
	if err != nil {
		return err
	}
	if err := t.SetRoot(root); err != nil {
		return err
	}
	for _, e := range t.Errors() {
		fmt.Fprintf(os.Stderr, "warning: %v\n", e)
	}

	exportOpts := export.Options{
		Indent: float64(cfg.View.Indent),
		Title:  root.Title(),
	}
	if opts.snapshot != "" {
		exportOpts.Path = opts.snapshot
		if err := export.Save(t.Root(), exportOpts); err != nil {
			return fmt.Errorf("writing snapshot: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Wrote %s\n", opts.snapshot)
	}
	if opts.dump {
		exportOpts.Rows = terminalRows()
		return printLines(os.Stdout, export.Lines(t.Root(), exportOpts))
	}
	return nil
}

func terminalRows() int {
	if _, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil && h > 0 {
		return h
	}
	return defaultDumpRows
}

func printLines(w io.Writer, lines []string) error {
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

// serveMetrics exposes the reconciler metrics over HTTP until stop is
// called.
func serveMetrics(addr string) (stop func(), err error) {
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}
	metrics.SetEnabled(true)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			debug.Log("metrics: %v", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func runTUIProgram(m ui.Model) error {
	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithoutSignalHandler(),
	)

	runDone := make(chan struct{})
	defer close(runDone)

	// Graceful shutdown on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-runDone:
			return
		case <-sigCh:
		}

		p.Quit()

		select {
		case <-runDone:
			return
		case <-sigCh:
		case <-time.After(5 * time.Second):
		}

		p.Kill()
	}()

	// Optional auto-quit for automated tests: set VIEWTREE_TUI_AUTOCLOSE_MS.
	if v := os.Getenv("VIEWTREE_TUI_AUTOCLOSE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			go func() {
				timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
				defer timer.Stop()

				select {
				case <-runDone:
				case <-timer.C:
					p.Quit()
				}
			}()
		}
	}

	_, err := p.Run()
	return err
}
