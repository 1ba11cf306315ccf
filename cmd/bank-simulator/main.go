// cmd/bank-simulator/main.go
package main

import (
	"net/http"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"stockpay/internal/pkg/bootstrap"
)

func main() {
	cfg, err := bootstrap.LoadConfig(bootstrap.GetEnv("CONFIG_PATH", "configs/bank-simulator.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	err = bootstrap.StartService(cfg, bootstrap.AppInfo{
		ServiceName: cfg.App.ServiceName,
		Port:        cfg.App.Port,
		RegisterHandlers: func(appCtx *bootstrap.AppCtx) error {
			h := &bankHandler{
				tracer:     otel.Tracer(cfg.App.ServiceName),
				latency:    cfg.Bank.Latency,
				resultCode: cfg.Bank.ResultCode,
			}
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.HandleFunc("POST /pay", h.pay)
			return nil
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("bank simulator exited with error")
	}
}
