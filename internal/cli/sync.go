package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"inventario-backend/internal/capture"
	"inventario-backend/internal/syncclient"
)

func newSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Send captured entries to the server",
		Long: `Send every captured entry in sequential chunks. Each chunk is retried with
exponential backoff. Local entries are only removed after every chunk was accepted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			return opts.withStore(func(s *capture.Store) error {
				sess, err := s.ActiveSession(ctx)
				if err != nil {
					return err
				}

				client := syncclient.New(s, opts.api(), syncclient.Options{
					ChunkSize: opts.Device.ChunkSize,
					Policy:    opts.policy(),
					Now:       opts.Now,
				})
				res, err := client.Sync(ctx, sess)

				var syncErr *syncclient.SyncError
				if errors.As(err, &syncErr) {
					printFail(out, "Sync failed after %d of %d chunks (%d of %d records). Local entries were kept.",
						res.ChunksCommitted, res.ChunksTotal, res.RecordsCommitted, res.RecordsTotal)
					return err
				}
				if err != nil {
					return err
				}
				if res.RecordsTotal == 0 {
					printWarn(out, "Nothing to sync")
					return nil
				}
				printOK(out, "Synced %d records in %d chunks", res.RecordsCommitted, res.ChunksCommitted)
				return nil
			})
		},
	}
}

func newCatalogCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the offline copy of the master catalog",
	}

	var tenant uint
	pull := &cobra.Command{
		Use:   "pull",
		Short: "Download the full tenant catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tenantID, err := opts.resolveTenant(ctx, tenant)
			if err != nil {
				return err
			}
			return opts.withStore(func(s *capture.Store) error {
				n, err := syncclient.PullCatalog(ctx, opts.api(), s, tenantID, syncclient.DefaultCatalogPageSize, opts.policy())
				if err != nil {
					printFail(cmd.OutOrStdout(), "Catalog download failed, the local copy was kept")
					return err
				}
				printOK(cmd.OutOrStdout(), "Catalog updated with %d products", n)
				return nil
			})
		},
	}
	pull.Flags().UintVar(&tenant, "tenant", 0, "tenant id (defaults to the token's tenant)")

	cmd.AddCommand(pull)
	return cmd
}
