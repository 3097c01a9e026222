package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"jobscout-backend/lib/configutil"
	"jobscout-backend/lib/scrapers/linkedin/core"
	"jobscout-backend/lib/serviceutil"
	"jobscout-backend/lib/telemetry"
	"jobscout-backend/services/jobscout"

	"github.com/joho/godotenv"
)

func initTelemetry(ctx context.Context, verbose bool) {
	telemetry.InitSlog(verbose)
	err := telemetry.SetupFromEnv(ctx, "jobscoutd")
	if os.IsNotExist(err) {
		slog.Info("no telemetry.json5 found, exporters disabled")
		return
	}
	if err != nil {
		serviceutil.Fatal("setup telemetry", err)
	}
	telemetry.InstrumentPerfStats(ctx)
}

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging/instrumentation.")
	configPath := flag.String("config", "config.json5", "Path to the scraper config.")
	flag.Parse()

	godotenv.Load()
	debug := *verbose || os.Getenv("DEBUG_MODE") == "true"

	ctx := serviceutil.SignalContext()
	initTelemetry(ctx, debug)
	defer telemetry.Shutdown(context.Background())

	cfg, err := configutil.ReadConfig[jobscout.Config](*configPath)
	if err != nil {
		serviceutil.Fatal("read config", err)
	}

	engine, err := jobscout.NewEngine(ctx, cfg, core.CredentialsFromEnv())
	if err != nil {
		serviceutil.Fatal("init engine", err)
	}

	// authentication is process-fatal: a daemon that can't reach the
	// session is useless and should fail loudly at startup
	if err := engine.Client.Login(ctx); err != nil {
		serviceutil.Fatal("authenticate", err)
	}
	slog.InfoContext(ctx, "authenticated, starting api server")

	port := cfg.ListenPort
	if port == 0 {
		port = 8000
	}

	server := NewServer(engine, cfg)
	go serviceutil.StartHttpServer(port, server.Router())
	<-ctx.Done()
}
