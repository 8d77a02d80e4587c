package cli

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"inventario-backend/internal/capture"
)

type startOptions struct {
	Batch     string
	Area      string
	Location  string
	Dynamic   bool
	Tenant    uint
	ActorID   uint
	ActorName string
}

func newStartCommand(opts *RootOptions) *cobra.Command {
	so := &startOptions{}

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a capture session for a control batch",
		Long: `Start a capture session. The session survives restarts until it is ended.

In fixed mode every scan is stored under --location (which may be empty).
In dynamic mode (--dynamic) every scan must name its location with --at.

Example:
  capture start --batch M-001 --area Bodega --location A1
  capture start --batch M-002 --area Patio --dynamic`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if so.Dynamic && so.Location != "" {
				return fmt.Errorf("--location and --dynamic cannot be combined")
			}
			ctx := cmd.Context()

			actor := capture.Actor{ID: so.ActorID, Name: so.ActorName}
			tenantID := so.Tenant
			if actor.ID == 0 {
				me, err := opts.api().Me(ctx)
				if err != nil {
					return fmt.Errorf("could not identify the counter, pass --actor-id and --tenant to work offline: %w", err)
				}
				actor = capture.Actor{ID: me.ID, Name: me.Name}
				if tenantID == 0 && me.TenantID != nil {
					tenantID = *me.TenantID
				}
			}
			if tenantID == 0 {
				return fmt.Errorf("--tenant is required")
			}

			info, err := capture.NewSessionInfo(so.Batch, so.Area, tenantID, actor, opts.Now())
			if err != nil {
				return err
			}
			var sess capture.Session = capture.FixedLocationSession{SessionInfo: info, Location: so.Location}
			if so.Dynamic {
				sess = capture.DynamicLocationSession{SessionInfo: info}
			}

			return opts.withStore(func(s *capture.Store) error {
				if err := s.StartSession(ctx, sess); err != nil {
					return err
				}
				printOK(cmd.OutOrStdout(), "Session started for %s in %s (%s)", info.ControlBatchID, info.Area, modeLabel(sess))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&so.Batch, "batch", "", "control batch id (marbete)")
	cmd.Flags().StringVar(&so.Area, "area", "", "area being counted")
	cmd.Flags().StringVar(&so.Location, "location", "", "fixed location for every scan")
	cmd.Flags().BoolVar(&so.Dynamic, "dynamic", false, "require a location with every scan")
	cmd.Flags().UintVar(&so.Tenant, "tenant", 0, "tenant id (defaults to the token's tenant)")
	cmd.Flags().UintVar(&so.ActorID, "actor-id", 0, "counter id when starting offline")
	cmd.Flags().StringVar(&so.ActorName, "actor-name", "", "counter name when starting offline")
	_ = cmd.MarkFlagRequired("batch")
	_ = cmd.MarkFlagRequired("area")

	return cmd
}

func newScanCommand(opts *RootOptions) *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "scan <code>...",
		Short: "Record one unit per product code",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			return opts.withStore(func(s *capture.Store) error {
				sess, err := s.ActiveSession(ctx)
				if err != nil {
					return err
				}
				for _, code := range args {
					entry, err := s.RecordScan(ctx, sess, code, at)
					if errors.Is(err, capture.ErrBatchLimitReached) {
						printFail(out, "%s rejected: %v", code, err)
						return err
					}
					if err != nil {
						return err
					}

					desc := "not in local catalog"
					if p, ok, err := s.LookupCatalog(ctx, entry.ProductCode); err == nil && ok {
						desc = p.Description
					}
					printOK(out, "%s x%d @ %s  %s", entry.ProductCode, entry.Quantity, locationLabel(entry.Location), desc)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "location of the scan (dynamic sessions)")
	return cmd
}

func newEditCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <entry-id> <quantity>",
		Short: "Overwrite the quantity of a captured entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid entry id %q", args[0])
			}
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[1])
			}
			return opts.withStore(func(s *capture.Store) error {
				if err := s.EditQuantity(cmd.Context(), id, qty); err != nil {
					return err
				}
				printOK(cmd.OutOrStdout(), "Entry %d set to %d", id, qty)
				return nil
			})
		},
	}
}

func newListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List captured entries waiting for sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			return opts.withStore(func(s *capture.Store) error {
				sess, err := s.ActiveSession(ctx)
				if err != nil {
					return err
				}
				entries, err := s.ListAll(ctx)
				if err != nil {
					return err
				}

				info := sess.Info()
				fmt.Fprintf(out, "Batch %s, area %s, %s, %d/%d entries\n",
					info.ControlBatchID, info.Area, modeLabel(sess), len(entries), s.MaxEntries())
				if len(entries) == 0 {
					return nil
				}

				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tCODE\tLOCATION\tQTY")
				total := 0
				for _, e := range entries {
					fmt.Fprintf(w, "%d\t%s\t%s\t%d\n", e.ID, e.ProductCode, locationLabel(e.Location), e.Quantity)
					total += e.Quantity
				}
				if err := w.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(out, "%d pieces\n", total)
				return nil
			})
		},
	}
}

func newEndCommand(opts *RootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "end",
		Short: "End the capture session",
		Long:  "End the capture session. Unsynced entries block this unless --force discards them.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(func(s *capture.Store) error {
				err := s.EndSession(cmd.Context(), force)
				if errors.Is(err, capture.ErrUnsyncedEntries) {
					printWarn(cmd.OutOrStdout(), "Unsynced entries remain. Run 'capture sync' or end with --force to discard them.")
					return err
				}
				if err != nil {
					return err
				}
				printOK(cmd.OutOrStdout(), "Session ended")
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "discard unsynced entries")
	return cmd
}

func modeLabel(sess capture.Session) string {
	switch v := sess.(type) {
	case capture.FixedLocationSession:
		return "fixed location " + locationLabel(v.Location)
	default:
		return "dynamic location"
	}
}

func locationLabel(loc string) string {
	if loc == "" {
		return "-"
	}
	return loc
}
