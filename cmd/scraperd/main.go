package main

import (
	"context"

	"hwscraper-backend/cmd/scraperd/commands"
	"hwscraper-backend/lib/serviceutil"
	"hwscraper-backend/lib/telemetry"
)

func main() {
	ctx := serviceutil.SignalContext()

	tel, err := telemetry.SetupFromEnv(ctx, "scraperd")
	if err != nil {
		serviceutil.Fatal("setup telemetry", err)
	}
	defer tel.Shutdown(context.Background())
	telemetry.InstrumentPerfStats(ctx)

	commands.ExecuteContext(ctx)
}
