package main

import (
	"fmt"
	"time"

	"github.com/kartshart/kartshart-backend/config"
	"github.com/kartshart/kartshart-backend/internal/app/model"
	"github.com/kartshart/kartshart-backend/internal/app/repository"
	"github.com/kartshart/kartshart-backend/internal/app/service"
	"github.com/kartshart/kartshart-backend/internal/db"
	"github.com/kartshart/kartshart-backend/pkg/logger"
	"github.com/kartshart/kartshart-backend/pkg/util"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// app bundles the services a command needs.
type app struct {
	cfg           *config.Config
	cartRepo      repository.CartRepository
	productRepo   repository.ProductRepository
	cart          service.CartService
	consolidation service.ConsolidationService
}

func newApp(gdb *gorm.DB, cfg *config.Config) *app {
	cartRepo := repository.NewCartRepository(gdb)
	productRepo := repository.NewProductRepository(gdb)
	validator := service.NewStockValidator(cartRepo, productRepo)
	consolidation := service.NewConsolidationService(cartRepo, validator)
	return &app{
		cfg:           cfg,
		cartRepo:      cartRepo,
		productRepo:   productRepo,
		cart:          service.NewCartService(cartRepo, productRepo, validator, consolidation),
		consolidation: consolidation,
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Initialize(logger.Config{
		Level:       cfg.Log.Level,
		Format:      "console",
		EnableColor: true,
	})
	return cfg, nil
}

// withApp connects to the database and runs fn against the wired services.
func withApp(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := db.Initialize(&cfg.Database); err != nil {
			return err
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Error("Failed to close database connection", err)
			}
		}()
		return fn(cmd, newApp(db.GetDB(), cfg), args)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "cartctl",
		Short:         "Administrative tasks for the cart service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		newMigrateCmd(),
		newConsolidateCmd(),
		newCheckStockCmd(),
		newRefreshSnapshotsCmd(),
		newReportCmd(),
		newTokenCmd(),
	)
	return rootCmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			if err := db.Migrate(cmd.Context(), a.cfg.Cart.EnforceSingleActive, a.consolidation.ConsolidateAll); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied.")
			return nil
		}),
	}
}

func newConsolidateCmd() *cobra.Command {
	var ownerKey string
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Merge duplicate active carts into each owner's canonical cart",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			var (
				merged int
				err    error
			)
			if ownerKey != "" {
				owner, parseErr := model.ParseOwnerKey(ownerKey)
				if parseErr != nil {
					return parseErr
				}
				merged, err = a.consolidation.Consolidate(cmd.Context(), owner)
			} else {
				merged, err = a.consolidation.ConsolidateAll(cmd.Context())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Carts merged: %d\n", merged)
			return err
		}),
	}
	cmd.Flags().StringVar(&ownerKey, "owner", "", "owner key (user:<id> or session:<token>); all owners when empty")
	return cmd
}

func newCheckStockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-stock",
		Short: "Recompute the stock status of every cart item",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			updated, err := a.cart.RevalidateAll(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "Items updated: %d\n", updated)
			return err
		}),
	}
}

func newRefreshSnapshotsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-snapshots",
		Short: "Rewrite price and stock snapshots from the live catalog",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			refreshed, err := a.cart.RefreshSnapshots(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "Items refreshed: %d\n", refreshed)
			return err
		}),
	}
}

func newReportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Export carts, items and catalog stock to an xlsx workbook",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			carts, err := a.cartRepo.FindAllCarts(cmd.Context())
			if err != nil {
				return err
			}
			products, err := a.productRepo.FindAll(cmd.Context())
			if err != nil {
				return err
			}
			if err := writeCartReport(out, carts, products); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d carts and %d products to %s\n", len(carts), len(products), out)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&out, "out", "o", "carts.xlsx", "output file")
	return cmd
}

// newTokenCmd mints a token pair for local testing of authenticated routes.
func newTokenCmd() *cobra.Command {
	var (
		userID uint
		email  string
		role   string
		expiry time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development access token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID == 0 {
				return fmt.Errorf("--user is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if expiry == 0 {
				expiry = cfg.JWT.AccessTokenExpiry
			}
			pair, err := util.GenerateTokenPair(userID, email, role, cfg.JWT.Secret, expiry, cfg.JWT.RefreshTokenExpiry)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "access_token:  %s\nrefresh_token: %s\nexpires_in:    %d\n",
				pair.AccessToken, pair.RefreshToken, pair.ExpiresIn)
			return nil
		},
	}
	cmd.Flags().UintVar(&userID, "user", 0, "user id")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().StringVar(&role, "role", "user", "role claim")
	cmd.Flags().DurationVar(&expiry, "expiry", 0, "access token lifetime (defaults to JWT_ACCESS_TOKEN_EXPIRY)")
	return cmd
}
