package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/SafeCheck/config"
	"github.com/BearBump/SafeCheck/internal/services/monitor"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Админский HTTP поднимаем после того, как runner собран.
	onRunner := func(r *monitor.Runner) {
		go func() {
			err := runWorkerHTTPServer(ctx, workerHTTPOpts{
				httpAddr:    cfg.SafeCheck.WorkerHTTPAddr,
				swaggerPath: os.Getenv("swaggerPath"),
				runner:      r,
				cfg:         cfg,
			})
			if err != nil && err != context.Canceled {
				slog.Error("worker http server", "error", err.Error())
			}
		}()
	}

	if err := RunSafeCheckWorker(ctx, cfg, defaultWorkerFactories(), onRunner); err != nil && err != context.Canceled {
		panic(err)
	}
}
