package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const defaultEnvFile = ".env"

// globalOptions are shared by every subcommand.
type globalOptions struct {
	configPath string
	envFile    string
}

func (o *globalOptions) addFlags(flags *pflag.FlagSet) {
	flags.StringVarP(&o.configPath, "config", "c", "", "path to the YAML config file (default: $GATEKEEPER_CONFIG, ./config.yaml, /etc/gatekeeper/config.yaml)")
	flags.StringVar(&o.envFile, "env-file", defaultEnvFile, "dotenv file loaded into the environment before reading configuration")
}

// loadEnvFile loads the dotenv file. A missing default file is not an error.
func (o *globalOptions) loadEnvFile(explicit bool) error {
	if o.envFile == "" {
		return nil
	}
	err := godotenv.Load(o.envFile)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return nil
	}
	return fmt.Errorf("loading %s: %w", o.envFile, err)
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:          "gatekeeper",
		Short:        "Authentication gateway built on pluggable strategies",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.loadEnvFile(cmd.Flags().Changed("env-file"))
		},
	}
	opts.addFlags(cmd.PersistentFlags())

	cmd.AddCommand(newServeCmd(opts), newStrategiesCmd(opts), newKeysCmd(opts))
	return cmd
}
