package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"inventario-backend/internal/capture"
	"inventario-backend/internal/config"
	"inventario-backend/internal/retry"
	"inventario-backend/internal/syncclient"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Device *config.DeviceConfig

	// HTTPClient overrides the transport to the server (for testing).
	HTTPClient *http.Client
	// Now overrides the clock (for testing).
	Now func() time.Time
}

// NewRootCommand creates the capture CLI with settings from the environment.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWith(&RootOptions{Device: config.LoadDevice()})
}

// NewRootCommandWith creates the capture CLI over explicit options.
func NewRootCommandWith(opts *RootOptions) *cobra.Command {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	dev := opts.Device

	cmd := &cobra.Command{
		Use:           "capture",
		Short:         "Offline inventory capture and verification",
		Long:          "Count products offline, sync them in chunks to the server and verify control batches.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&dev.DatabasePath, "db", dev.DatabasePath, "path to the local capture database")
	cmd.PersistentFlags().StringVar(&dev.ServerURL, "server", dev.ServerURL, "server base URL")
	cmd.PersistentFlags().StringVar(&dev.Token, "token", dev.Token, "API token")

	cmd.AddCommand(newStartCommand(opts))
	cmd.AddCommand(newScanCommand(opts))
	cmd.AddCommand(newEditCommand(opts))
	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newEndCommand(opts))
	cmd.AddCommand(newCatalogCommand(opts))
	cmd.AddCommand(newVerifyCommand(opts))

	return cmd
}

func (o *RootOptions) openStore() (*capture.Store, error) {
	s, err := capture.Open(o.Device.DatabasePath, o.Device.BatchLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture database: %w", err)
	}
	return s, nil
}

func (o *RootOptions) api() *syncclient.APIClient {
	c := syncclient.NewAPIClient(o.Device.ServerURL, o.Device.Token, o.Device.HTTPTimeout)
	if o.HTTPClient != nil {
		c.WithHTTPClient(o.HTTPClient)
	}
	return c
}

func (o *RootOptions) policy() retry.Policy {
	return retry.Policy{
		MaxAttempts: o.Device.MaxRetries,
		BaseDelay:   o.Device.BackoffBase,
		MaxDelay:    30 * time.Second,
	}
}

// withStore runs fn against the capture database and closes it afterwards.
func (o *RootOptions) withStore(fn func(*capture.Store) error) error {
	s, err := o.openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

// resolveTenant returns the tenant flag or the tenant of the token owner.
func (o *RootOptions) resolveTenant(ctx context.Context, flag uint) (uint, error) {
	if flag != 0 {
		return flag, nil
	}
	me, err := o.api().Me(ctx)
	if err != nil {
		return 0, fmt.Errorf("could not resolve tenant from server, pass --tenant: %w", err)
	}
	if me.TenantID == nil {
		return 0, fmt.Errorf("user %s has no tenant, pass --tenant", me.Email)
	}
	return *me.TenantID, nil
}
