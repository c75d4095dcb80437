package main

import (
	"context"
	"fmt"
	"os"

	"github.com/cfoust/kbsync/pkg/config"
)

func simulateCommand(configs []string, path string) error {
	ctx := context.Background()

	cfg, err := config.Process(configs)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	e, script, preferences, err := setup(ctx, cfg, path)
	if err != nil {
		return err
	}
	defer preferences.Close()
	defer e.Shutdown()

	report, err := script.Run(ctx, e)
	if err != nil {
		return err
	}

	data, err := report.YAML()
	if err != nil {
		return err
	}

	_, err = os.Stdout.Write(data)
	return err
}
