package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	. "github.com/streamingfast/cli"
	"github.com/streamingfast/dockbox"
)

var ConfigCommand = Command(configE,
	"config [key] [value]",
	"View or edit configuration settings",
	Description(`
		Without arguments, displays the current configuration.
		With a key, displays that setting's value.
		With key and value, sets the configuration option.

		envs takes a comma separated list, an empty value clears it.
	`),
)

// configE views or edits configuration
func configE(cmd *cobra.Command, args []string) error {
	config, err := dockbox.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if len(args) == 0 {
		cmd.Println("Global configuration:")
		cmd.Printf("  data_dir: %s\n", config.DataDir)
		cmd.Printf("  backend: %s\n", config.Backend)
		cmd.Printf("  default_base_image: %s\n", config.DefaultBaseImage)
		cmd.Printf("  map_user: %t\n", config.MapUser)
		cmd.Printf("  envs: %v\n", config.Envs)
		return nil
	}

	key := args[0]

	if len(args) == 1 {
		switch key {
		case "data_dir":
			cmd.Println(config.DataDir)
		case "backend":
			cmd.Println(config.Backend)
		case "default_base_image":
			cmd.Println(config.DefaultBaseImage)
		case "map_user":
			cmd.Println(config.MapUser)
		case "envs":
			cmd.Printf("%v\n", config.Envs)
		default:
			return fmt.Errorf("unknown config key: %s", key)
		}
		return nil
	}

	if len(args) > 2 {
		return fmt.Errorf("expected at most a key and a value, received %d arguments", len(args))
	}

	value := args[1]
	switch key {
	case "backend":
		if err := dockbox.ValidateBackend(value); err != nil {
			return err
		}
		config.Backend = value
	case "default_base_image":
		config.DefaultBaseImage = value
	case "map_user":
		mapUser, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("map_user must be true or false")
		}
		config.MapUser = mapUser
	case "envs":
		config.Envs = nil
		for _, env := range strings.Split(value, ",") {
			if env = strings.TrimSpace(env); env != "" {
				config.Envs = append(config.Envs, env)
			}
		}
	default:
		return fmt.Errorf("cannot set config key: %s (read-only or unknown)", key)
	}

	if err := dockbox.SaveConfig(config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	cmd.Printf("Set %s = %s\n", key, value)
	return nil
}
