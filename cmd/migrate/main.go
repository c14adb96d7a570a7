package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"estatecrm.org/internal/migrate"
	"estatecrm.org/internal/obs"
	"estatecrm.org/internal/store/pg"
)

var (
	dsn     string
	timeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:          "migrate",
	Short:        "Apply CRM database migrations and seeds",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", os.Getenv("CRM_PG_DSN"), "PostgreSQL DSN (env: CRM_PG_DSN)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall operation timeout")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			RunE: withManager(func(ctx context.Context, m *migrate.Manager) error {
				applied, err := m.Up(ctx)
				report("migrated", applied)
				return err
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: withManager(func(ctx context.Context, m *migrate.Manager) error {
				name, err := m.Down(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("rolled back %s\n", name)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "seed",
			Short: "Load pending seed data",
			RunE: withManager(func(ctx context.Context, m *migrate.Manager) error {
				applied, err := m.Seed(ctx)
				report("seeded", applied)
				return err
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "List applied migrations",
			RunE: withManager(func(ctx context.Context, m *migrate.Manager) error {
				history, err := m.Status(ctx)
				if err != nil {
					return err
				}
				for _, item := range history {
					fmt.Println(item)
				}
				return nil
			}),
		},
	)
}

func withManager(fn func(context.Context, *migrate.Manager) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if dsn == "" {
			return errors.New("missing DSN: provide via --dsn or CRM_PG_DSN")
		}
		store, err := pg.Open(dsn)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer store.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		mgr := migrate.NewManager(store.DB(), migrate.Migrations(), migrate.WithSeeds(migrate.Seeds()))
		if err := fn(ctx, mgr); err != nil {
			obs.Logger().WithFields(logrus.Fields{"command": cmd.Name()}).WithError(err).Error("migrate_failed")
			return err
		}
		return nil
	}
}

func report(verb string, names []string) {
	if len(names) == 0 {
		fmt.Println("nothing to apply")
		return
	}
	for _, n := range names {
		fmt.Printf("%s %s\n", verb, n)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
