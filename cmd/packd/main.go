package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"packd/internal/config"
	"packd/internal/downloads"
	"packd/internal/httpapi"
	"packd/internal/library"
	"packd/internal/orchestrator"
	"packd/internal/packages"
	"packd/internal/supervisor"
	"packd/internal/venv"
)

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// splitCSV splits a comma-separated flag value, trimming blanks.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func main() {
	// Flags with environment variable defaults
	addr := flag.String("addr", envStr("PACKD_ADDR", ":8080"), "HTTP listen address, e.g. :8080")
	libraryDir := flag.String("library-dir", envStr("PACKD_LIBRARY_DIR", ""), "Library root directory (overrides portable/persisted location)")
	configPath := flag.String("config", envStr("PACKD_CONFIG", ""), "Optional config file (.yaml/.json/.toml)")
	logLevel := flag.String("log-level", envStr("PACKD_LOG_LEVEL", "info"), "Log level: debug|info|warn|error")
	pythonBin := flag.String("python", envStr("PACKD_PYTHON", ""), "Base Python interpreter for virtual environments")
	shutdownTimeout := flag.Int("shutdown-timeout-sec", 10, "Seconds to wait for graceful HTTP shutdown")
	disposeTimeout := flag.Int("dispose-timeout-sec", 15, "Seconds to wait for package stop and download disposal")
	corsOrigins := flag.String("cors-origins", envStr("PACKD_CORS_ORIGINS", ""), "Comma-separated CORS origins (empty disables CORS)")
	flag.Parse()

	// flags set on the command line win over config file values
	setFlags := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	zerolog.SetGlobalLevel(parseZerologLevel(*logLevel))
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("load config")
		}
		if cfg.Addr != "" && !setFlags["addr"] {
			*addr = cfg.Addr
		}
		if cfg.LibraryDir != "" && !setFlags["library-dir"] {
			*libraryDir = cfg.LibraryDir
		}
		if cfg.PythonBin != "" && !setFlags["python"] {
			*pythonBin = cfg.PythonBin
		}
		if cfg.ShutdownTimeoutSec > 0 && !setFlags["shutdown-timeout-sec"] {
			*shutdownTimeout = cfg.ShutdownTimeoutSec
		}
		if cfg.DisposeTimeoutSec > 0 && !setFlags["dispose-timeout-sec"] {
			*disposeTimeout = cfg.DisposeTimeoutSec
		}
		if cfg.LogLevel != "" && !setFlags["log-level"] {
			zerolog.SetGlobalLevel(parseZerologLevel(cfg.LogLevel))
		}
	}

	lib := library.New()
	venvs := venv.NewManager(*pythonBin)
	sup := supervisor.New(venvs, log)
	tracker := downloads.NewTracker(downloads.NewHTTPTransport(), lib.DownloadsDir, log)
	ins := packages.NewInstaller(venvs)
	orch := orchestrator.New(lib, tracker, sup, ins, nil, time.Duration(*shutdownTimeout)*time.Second, log)

	// Crash-left download records are reloaded as soon as a root exists, but
	// never auto-resumed.
	lib.OnRootSet(func(root string) {
		loaded, err := tracker.LoadPending()
		if err != nil {
			log.Warn().Err(err).Msg("reload pending downloads")
			return
		}
		if len(loaded) > 0 {
			log.Info().Int("count", len(loaded)).Msg("pending downloads reloaded; resume them explicitly")
		}
	})

	root, err := library.ResolveRoot(*libraryDir)
	if err != nil {
		log.Fatal().Err(err).Msg("resolve library root")
	}
	if root != "" {
		if err := lib.SetRoot(root); err != nil {
			log.Fatal().Err(err).Str("root", root).Msg("open library")
		}
		if err := library.PersistRoot(root); err != nil {
			log.Warn().Err(err).Msg("persist library pointer")
		}
		log.Info().Str("root", root).Msg("library opened")
	} else {
		log.Warn().Msg("no library configured; set --library-dir to enable package operations")
	}

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)
	httpapi.SetLogger(log)
	if origins := splitCSV(*corsOrigins); len(origins) > 0 {
		httpapi.SetCORSOptions(true, origins, []string{"GET", "POST", "OPTIONS"}, []string{"Content-Type"})
	}

	srv := &http.Server{Addr: *addr, Handler: httpapi.NewMux(orch)}
	go func() {
		log.Info().Str("addr", *addr).Msg("packd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")
	cancelBase()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*shutdownTimeout)*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}

	dispCtx, dispCancel := context.WithTimeout(context.Background(), time.Duration(*disposeTimeout)*time.Second)
	defer dispCancel()
	orch.Shutdown(dispCtx)

	// any detached process the supervisor no longer owns still gets stopped
	if err := venvs.StopAll(5 * time.Second); err != nil {
		log.Warn().Err(err).Msg("stray process disposal failed")
	}
}

func parseZerologLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
