package main

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"

	"engagehub/aidispatch"

	"github.com/caarlos0/env/v10"
	slogmulti "github.com/samber/slog-multi"
)

type DispatchEnv struct {
	Port    int    `env:"DISPATCH_PORT" envDefault:"8010"`
	LogFile string `env:"DISPATCH_LOG_FILE"`
}

/**
 * ==========================================================================
 * ==== All variables used by the dispatch service must be loaded here.  ====
 * ==== This is to make the data flow clear so that a user can see what  ====
 * ==== variables are exposed, and how the values are propagated through ====
 * ==== the system.                                                      ====
 * ==========================================================================
 */
func loadEnv() (*DispatchEnv, error) {
	cfg := &DispatchEnv{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func initLogging(cfg *DispatchEnv) {
	textHandler := slog.NewTextHandler(os.Stderr, nil)

	if cfg.LogFile == "" {
		slog.SetDefault(slog.New(textHandler))
		return
	}

	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		log.Fatalf("error opening log file '%v': %v", cfg.LogFile, err)
	}

	jsonHandler := slog.NewJSONHandler(logFile, nil).
		WithAttrs([]slog.Attr{slog.String("service_type", "aidispatch")})

	slog.SetDefault(slog.New(slogmulti.Fanout(jsonHandler, textHandler)))
}

func main() {
	cfg, err := loadEnv()
	if err != nil {
		log.Fatalf("error loading env: %v", err)
	}

	initLogging(cfg)

	slog.Info("starting ai dispatch service", "port", cfg.Port)

	router := aidispatch.NewRouter()
	if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.Port), router); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
