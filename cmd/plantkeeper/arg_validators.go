package main

import (
	"errors"

	"github.com/spf13/cobra"
)

func requireAtLeastArgs(min int, message string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) < min {
			return errors.New(message)
		}
		return nil
	}
}

func requireExactlyArgs(count int, message string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != count {
			return errors.New(message)
		}
		return nil
	}
}

// requirePlantID runs check and then parses the first argument as a plant
// id, so usage errors surface before any server is contacted.
func requirePlantID(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return err
		}
		_, err := parsePlantIDArg(args[0])
		return err
	}
}
