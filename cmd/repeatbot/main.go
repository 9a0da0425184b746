package main

import (
	"context"
	"log/slog"
	"time"

	"repeatbot/cmd/repeatbot/commands"
	"repeatbot/lib/osutil"
	"repeatbot/lib/telemetry"
)

func main() {
	ctx, stop := osutil.SignalContext()
	defer stop()

	tel, err := telemetry.SetupFromEnv(ctx, "repeatbot")
	if err != nil {
		slog.Warn("failed to set up telemetry", "err", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("failed to flush telemetry", "err", err)
		}
	}()

	commands.ExecuteContext(ctx)
}
