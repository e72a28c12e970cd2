package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"

	relay "github.com/bt-bridge/twilio-realtime"
	"github.com/bt-bridge/twilio-realtime/server"
	"github.com/bt-bridge/twilio-realtime/shared"
	"github.com/bt-bridge/twilio-realtime/triage"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	// A .env file is a local development convenience; missing is fine.
	_ = godotenv.Load()

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		shared.NewStdLogger().Error("loading configuration", err)
		os.Exit(1)
	}

	logger := shared.NewFileLogger(
		cfg.Log.File, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups, cfg.Log.MaxAgeDays, cfg.Log.Compress,
	).With(
		zap.String("component", "relay"),
		zap.String("version", shared.Version),
	)

	srv, err := server.New(logger, cfg)
	if err != nil {
		logger.Error("creating server", err)
		os.Exit(1)
	}

	if cfg.Triage.Enabled {
		if err := wireTriage(logger, cfg, srv); err != nil {
			logger.Error("wiring triage consumer", err)
			os.Exit(1)
		}
	}

	errC := make(chan error, 1)
	go func() {
		errC <- srv.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	defer close(sig)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errC:
		if err != nil {
			logger.Error("server stopped", err)
			os.Exit(1)
		}
	case <-sig:
		logger.Info("shutting down...")
		if err := srv.Shutdown(); err != nil {
			logger.Error("shutting down server", err)
			os.Exit(1)
		}
		logger.Info("graceful shutdown complete")
	}
}

// wireTriage attaches a fresh triage agent to every call's transcript, with
// conclusions printed to stdout.
func wireTriage(logger shared.LoggerAdapter, cfg *server.Config, srv *server.Server) error {
	roster, err := triage.LoadRoster(cfg.Triage.ScheduleFile)
	if err != nil {
		return err
	}
	client := openai.NewClient(option.WithAPIKey(cfg.Model.APIKey))

	printer, err := shared.NewPrinter("  ", shared.NewWriteCloser(os.Stdout))
	if err != nil {
		return err
	}

	srv.SetTranscriptFactory(func() relay.TranscriptHandler {
		agent, err := triage.NewAgent(logger, roster)
		if err != nil {
			logger.Error("creating triage agent", err)
			return nil
		}
		agent.AttachModel(client)
		conclude := agent.TranscriptHandler(func(line string) {
			if err := printer.Speech("triage", line); err != nil {
				logger.Error("printing triage summary", err)
			}
		})
		return func(role, text string) {
			if err := printer.Speech(role, text); err != nil {
				logger.Error("printing transcript line", err)
			}
			conclude(role, text)
		}
	})
	return nil
}
