package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"inventario-backend/internal/capture"
	"inventario-backend/internal/syncclient"
)

func newVerifyCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a control batch against the master catalog",
	}
	cmd.AddCommand(newVerifyOpenCommand(opts))
	cmd.AddCommand(newVerifySetCommand(opts))
	cmd.AddCommand(newVerifyShowCommand(opts))
	cmd.AddCommand(newVerifyCommitCommand(opts))
	cmd.AddCommand(newVerifyAbandonCommand(opts))
	return cmd
}

func newVerifyOpenCommand(opts *RootOptions) *cobra.Command {
	var tenant uint

	cmd := &cobra.Command{
		Use:   "open <control-batch-id>",
		Short: "Fetch the reconciled view of a batch for editing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tenantID, err := opts.resolveTenant(ctx, tenant)
			if err != nil {
				return err
			}
			return opts.withStore(func(s *capture.Store) error {
				ws, err := syncclient.OpenVerification(ctx, opts.api(), s, tenantID, args[0])
				if syncclient.IsConflict(err) {
					printFail(cmd.OutOrStdout(), "Control batch %s is already verified", args[0])
					return err
				}
				if err != nil {
					return err
				}
				printOK(cmd.OutOrStdout(), "Opened %s with %d products", ws.ControlBatchID, len(ws.Items))
				return printWorkspace(cmd, ws)
			})
		},
	}
	cmd.Flags().UintVar(&tenant, "tenant", 0, "tenant id (defaults to the token's tenant)")
	return cmd
}

func newVerifySetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <code> <quantity>",
		Short: "Set the verified quantity of a product",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := strconv.Atoi(args[1])
			if err != nil || qty < 0 {
				return fmt.Errorf("invalid quantity %q", args[1])
			}
			return opts.withStore(func(s *capture.Store) error {
				if err := s.SetVerified(cmd.Context(), args[0], qty); err != nil {
					return err
				}
				printOK(cmd.OutOrStdout(), "%s verified at %d", args[0], qty)
				return nil
			})
		},
	}
}

func newVerifyShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the open verification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(func(s *capture.Store) error {
				ws, err := s.CurrentWorkspace(cmd.Context())
				if err != nil {
					return err
				}
				return printWorkspace(cmd, ws)
			})
		},
	}
}

func newVerifyCommitCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "commit",
		Short: "Send the verified quantities and close the batch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			api := opts.api()
			me, err := api.Me(ctx)
			if err != nil {
				return fmt.Errorf("could not identify the verifier: %w", err)
			}

			return opts.withStore(func(s *capture.Store) error {
				n, err := syncclient.CommitVerification(ctx, api, s, capture.Actor{ID: me.ID, Name: me.Name}, opts.Now())
				if err != nil {
					printFail(cmd.OutOrStdout(), "Commit failed, your edits are kept: %v", err)
					return err
				}
				printOK(cmd.OutOrStdout(), "Batch verified with %d products", n)
				return nil
			})
		},
	}
}

func newVerifyAbandonCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "abandon",
		Short: "Discard the open verification without sending it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(func(s *capture.Store) error {
				if err := s.CloseWorkspace(cmd.Context()); err != nil {
					return err
				}
				printWarn(cmd.OutOrStdout(), "Verification discarded")
				return nil
			})
		},
	}
}

func printWorkspace(cmd *cobra.Command, ws capture.Workspace) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Batch %s (tenant %d), opened %s\n", ws.ControlBatchID, ws.TenantID, ws.OpenedAt.Format("2006-01-02 15:04"))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tDESCRIPTION\tSYSTEM\tCOUNTED\tVERIFIED\tVARIANCE\tLOCATION")
	for _, it := range ws.Items {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			it.ProductCode, it.Description, it.SystemQuantity, it.CountedQuantity,
			it.VerifiedQuantity, varianceLabel(it.Variance()), locationLabel(it.Location))
	}
	return w.Flush()
}
