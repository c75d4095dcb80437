package main

import (
	"context"
	"fmt"

	"github.com/cfoust/kbsync/pkg/config"
	"github.com/cfoust/kbsync/pkg/store"
)

func toggleCommand(entity string, configs []string) error {
	cfg, err := config.Process(configs)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if cfg.Store.Type == string(store.TypeMemory) {
		return fmt.Errorf("the memory store does not persist preferences")
	}

	preferences, err := store.Open(cfg.StoreSettings())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer preferences.Close()

	ctx := context.Background()
	disabled, err := preferences.Disabled(ctx, entity)
	if err != nil {
		return err
	}

	err = preferences.SetDisabled(ctx, entity, !disabled)
	if err != nil {
		return err
	}

	state := "enabled"
	if !disabled {
		state = "disabled"
	}
	fmt.Printf("compensation %s for %s\n", state, entity)
	return nil
}
