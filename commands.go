package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"game-mission-service/config"
	"game-mission-service/database"
	"game-mission-service/handlers"
	"game-mission-service/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jedib0t/go-pretty/v6/table"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newRootCmd() *cobra.Command {
	var cfg *config.Config

	root := &cobra.Command{
		Use:           "game-mission-service",
		Short:         "Missions, rewards and progression for the game platform",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			loaded.SetupLogging()
			cfg = loaded
			return nil
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API together with the task runner and scheduler",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cfg, true)
			},
		},
		&cobra.Command{
			Use:   "worker",
			Short: "Run only the task runner and scheduler",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cfg, false)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or update the database schema",
			RunE: func(cmd *cobra.Command, args []string) error {
				_, err := openDatabase(cfg)
				if err == nil {
					log.Info("✅ Schema migrated")
				}
				return err
			},
		},
		newSeedCmd(&cfg),
		newLevelsCmd(&cfg),
		newLedgerCmd(&cfg),
	)
	return root
}

func runServe(cfg *config.Config, withHTTP bool) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	a := buildApplication(cfg, db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.validate(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Runner.Start(ctx) })
	g.Go(func() error { return a.Scheduler.Run(ctx) })

	if withHTTP {
		app := newFiberApp(cfg, a)
		g.Go(func() error {
			log.WithField("addr", cfg.HTTPAddr).Info("✅ Server running")
			return app.Listen(cfg.HTTPAddr)
		})
		g.Go(func() error {
			<-ctx.Done()
			log.Info("Shutting down server...")
			return app.Shutdown()
		})
	}

	return g.Wait()
}

func newFiberApp(cfg *config.Config, a *application) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	app.Use(recover.New())

	// 🔐❗ GLOBAL: Only Gateway requests allowed: no exceptions
	app.Use(middleware.GatewayAuthMiddleware(cfg.GatewayToken))

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Origins(),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, Cache-Control, X-User-ID, X-User-Roles, X-Username",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	handlers.SetupRoutes(app, a.Services)
	log.WithField("origins", cfg.Origins()).Info("✅ CORS configured")
	return app
}

func newSeedCmd(cfg **config.Config) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load levels, titles and missions from a YAML catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = bytes.NewReader(database.DefaultSeed())
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			cat, err := database.ParseCatalog(r)
			if err != nil {
				return err
			}

			db, err := openDatabase(*cfg)
			if err != nil {
				return err
			}
			res, err := database.Seed(db, cat)
			if err != nil {
				return err
			}
			a := buildApplication(*cfg, db)
			if err := a.validate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d levels, %d titles, %d missions, %d users\n",
				res.Levels, res.Titles, res.Missions, res.Users)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "catalog YAML (defaults to the built-in catalog)")
	return cmd
}

func newLevelsCmd(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "levels",
		Short: "Print the level threshold table",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase(*cfg)
			if err != nil {
				return err
			}
			a := buildApplication(*cfg, db)
			levels, err := a.Services.Leveling.Levels(db)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleRounded)
			t.AppendHeader(table.Row{"Level", "Experience", "Bonus coins"})
			for _, l := range levels {
				t.AppendRow(table.Row{l.Level, l.Experience, l.Coins})
			}
			t.Render()
			return nil
		},
	}
}

func newLedgerCmd(cfg **config.Config) *cobra.Command {
	var userID string
	var size int
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Print a user's wallet balance and latest transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			db, err := openDatabase(*cfg)
			if err != nil {
				return err
			}
			wallet := buildApplication(*cfg, db).Services.Wallet

			ctx := cmd.Context()
			balance, err := wallet.Balance(ctx, userID)
			if err != nil {
				return err
			}
			sum, err := wallet.LedgerSum(ctx, userID)
			if err != nil {
				return err
			}
			items, total, err := wallet.Transactions(ctx, userID, 1, size)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleRounded)
			t.SetTitle(fmt.Sprintf("Wallet %s", userID))
			t.AppendHeader(table.Row{"When", "Type", "Amount", "Description"})
			for _, tx := range items {
				t.AppendRow(table.Row{tx.CreatedAt.Format("2006-01-02 15:04:05"), tx.Type, tx.Amount, tx.Description})
			}
			t.AppendFooter(table.Row{"", "Balance", balance, fmt.Sprintf("%d of %d transactions shown", len(items), total)})
			t.Render()

			if sum != balance {
				return fmt.Errorf("ledger mismatch: balance %d, transactions sum to %d", balance, sum)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().IntVar(&size, "size", 20, "number of transactions to show")
	return cmd
}
