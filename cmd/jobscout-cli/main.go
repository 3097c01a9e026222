package main

import (
	"context"

	"jobscout-backend/cmd/jobscout-cli/commands"
	"jobscout-backend/lib/telemetry"
)

func main() {
	telemetry.InitSlog(true)
	telemetry.SetupFromEnv(context.Background(), "jobscout-cli")
	commands.ExecuteContext(context.Background())
}
