package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"estatecrm.org/internal/auth"
	"estatecrm.org/internal/obs"
)

var bootstrapAdminCmd = &cobra.Command{
	Use:   "bootstrap-admin",
	Short: "Provision the primary platform administrator",
	Long: `Creates the PLATFORM_ADMIN account described by the admin section of the
configuration (env: CRM_ADMIN_USERNAME, CRM_ADMIN_EMAIL, CRM_ADMIN_PASSWORD).
Running it again for an existing email is a no-op.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Admin.Password == "" {
			return errors.New("admin password is required (env: CRM_ADMIN_PASSWORD)")
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		svc, err := openServices(cfg)
		if err != nil {
			return err
		}
		defer svc.close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		user, created, err := svc.auth.BootstrapAdmin(ctx, auth.BootstrapInput{
			Username: cfg.Admin.Username,
			Email:    cfg.Admin.Email,
			Password: cfg.Admin.Password,
		})
		if err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
		obs.Logger().WithFields(logrus.Fields{
			"user_id": user.ID.String(),
			"email":   user.Email,
			"created": created,
		}).Info("admin_bootstrap")
		if created {
			fmt.Fprintf(cmd.OutOrStdout(), "Created platform admin %s\n", user.Email)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Platform admin %s already exists\n", user.Email)
		}
		return nil
	},
}
