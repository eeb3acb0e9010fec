package main

import (
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/rhuss/gatekeeper/pkg/config"
	"github.com/rhuss/gatekeeper/pkg/server"
	"github.com/spf13/cobra"
)

func newStrategiesCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List registered strategies and their position in the chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(global.configPath)
			if err != nil {
				return err
			}
			store, err := server.NewKeyStore(cmd.Context(), cfg.Auth.KeyStore)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
			}
			reg, err := server.NewRegistry(cfg.Auth, store)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "LABEL\tCHAIN\tTYPE")
			all := reg.Strategies()
			for _, label := range reg.Labels() {
				pos := "-"
				if i := slices.Index(cfg.Auth.Strategies, string(label)); i >= 0 {
					pos = fmt.Sprint(i + 1)
				}
				fmt.Fprintf(w, "%s\t%s\t%T\n", label, pos, all[label])
			}
			return w.Flush()
		},
	}
}
