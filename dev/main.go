package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"repeatbot/lib/configutil"
	"repeatbot/services/tourney"
)

const localTelemetry = `// exports to a collector on this machine, e.g.
// docker run -p 4317:4317 -p 4318:4318 otel/opentelemetry-collector
{
  traces: { url: "http://localhost:4318/v1/traces" },
  metrics: { url: "http://localhost:4318/v1/metrics" },
  environment: "dev",
}
`

// writeIfMissing never overwrites, local edits survive a rerun.
func writeIfMissing(path string, contents []byte) error {
	_, err := os.Stat(path)
	if err == nil {
		fmt.Println("already exists:", path)
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	fmt.Println("writing", path)
	return os.WriteFile(path, contents, 0600)
}

func create(recreate, telemetry bool) error {
	if _, err := os.Stat("go.mod"); os.IsNotExist(err) {
		return fmt.Errorf("the dev environment must be created in the repository root (the same directory as the 'go.mod' file)")
	}

	state, err := configutil.StateDir()
	if err != nil {
		return err
	}
	if recreate {
		if err := os.RemoveAll(state); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(state, 0700); err != nil {
		return err
	}

	example, err := os.ReadFile("repeatbot.example.json5")
	if err != nil {
		return err
	}
	if err := writeIfMissing(tourney.ConfigFile, example); err != nil {
		return err
	}
	if telemetry {
		if err := writeIfMissing("telemetry.json5", []byte(localTelemetry)); err != nil {
			return err
		}
	}

	slog.Info("state directory ready", "dir", state)
	slog.Info("run `go run ./cmd/repeatbot login` once to sign in to the automation profile")
	return nil
}

func main() {
	recreate := flag.Bool("recreate", false, "delete the state directory (profiles, vault, exports) first")
	telemetry := flag.Bool("telemetry", false, "also write a telemetry.json5 that exports to a local collector")
	flag.Parse()

	if err := create(*recreate, *telemetry); err != nil {
		slog.Error("failed to create dev environment", "err", err.Error())
		os.Exit(1)
	}
	slog.Info("dev environment created successfully!")
}
