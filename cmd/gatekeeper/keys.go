package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/rhuss/gatekeeper/pkg/auth"
	"github.com/rhuss/gatekeeper/pkg/config"
	"github.com/rhuss/gatekeeper/pkg/server"
	"github.com/rhuss/gatekeeper/pkg/storage"
	"github.com/spf13/cobra"
)

var errNoPersistentStore = errors.New("keys commands require auth.key_store.type: postgres")

func newKeysCmd(global *globalOptions) *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys in the persistent key store",
	}
	cmd.PersistentFlags().StringVar(&tenantID, "tenant", "", "restrict the operation to one tenant")

	var withStore storeRunner = func(cmd *cobra.Command, fn func(ctx context.Context, store storage.KeyStore) error) error {
		cfg, err := config.Load(global.configPath)
		if err != nil {
			return err
		}
		if cfg.Auth.KeyStore.Type != "postgres" {
			return errNoPersistentStore
		}
		store, err := server.NewKeyStore(cmd.Context(), cfg.Auth.KeyStore)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		if tenantID != "" {
			ctx = storage.SetTenant(ctx, tenantID)
		}
		return fn(ctx, store)
	}

	cmd.AddCommand(
		newKeysCreateCmd(withStore, &tenantID),
		newKeysListCmd(withStore),
		newKeysRevokeCmd(withStore),
	)
	return cmd
}

type storeRunner func(cmd *cobra.Command, fn func(ctx context.Context, store storage.KeyStore) error) error

func newKeysCreateCmd(withStore storeRunner, tenantID *string) *cobra.Command {
	var (
		subject string
		tier    string
		scopes  []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue a new API key and print its secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			identity := auth.Identity{Subject: subject, ServiceTier: tier, Scopes: scopes}
			if *tenantID != "" {
				identity.Metadata = map[string]string{"tenant_id": *tenantID}
			}

			return withStore(cmd, func(ctx context.Context, store storage.KeyStore) error {
				rec, secret, err := storage.NewKeyRecord(identity)
				if err != nil {
					return fmt.Errorf("generating key: %w", err)
				}
				if err := store.SaveKey(ctx, rec); err != nil {
					return fmt.Errorf("saving key: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "id:     %s\nsecret: %s\n", rec.ID, secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "subject the key authenticates as (required)")
	cmd.Flags().StringVar(&tier, "tier", "", "service tier used for rate limiting")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "granted scope (repeatable)")
	cmd.MarkFlagRequired("subject")
	return cmd
}

func newKeysListCmd(withStore storeRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store storage.KeyStore) error {
				keys, err := store.ListKeys(ctx)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tSUBJECT\tTENANT\tTIER\tCREATED\tREVOKED")
				for _, k := range keys {
					revoked := "-"
					if k.RevokedAt != nil {
						revoked = k.RevokedAt.Format(time.RFC3339)
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
						k.ID, k.Identity.Subject, orDash(k.Identity.TenantID()), orDash(k.Identity.ServiceTier),
						k.CreatedAt.Format(time.RFC3339), revoked)
				}
				return w.Flush()
			})
		},
	}
}

func newKeysRevokeCmd(withStore storeRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke ID",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store storage.KeyStore) error {
				if err := store.RevokeKey(ctx, args[0]); err != nil {
					return fmt.Errorf("revoking %s: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
				return nil
			})
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
