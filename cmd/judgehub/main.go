package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/terra-clan/judgehub/internal/auth"
	"github.com/terra-clan/judgehub/internal/config"
	"github.com/terra-clan/judgehub/internal/export"
	"github.com/terra-clan/judgehub/internal/judging"
	"github.com/terra-clan/judgehub/internal/models"
	"github.com/terra-clan/judgehub/internal/scoring"
	"github.com/terra-clan/judgehub/internal/seed"
	"github.com/terra-clan/judgehub/internal/storage"
)

func main() {
	app := &cli.App{
		Name:  "judgehub",
		Usage: "weighted-criteria judging and live leaderboards",
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			seedCommand(),
			createUserCommand(),
			leaderboardCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// setup loads configuration and installs the default logger
func setup() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(newLogger(cfg.Log))
	return cfg, nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// openRepository connects the configured storage backend. Postgres is
// migrated before use.
func openRepository(ctx context.Context, cfg *config.Config) (storage.Repository, error) {
	if cfg.Storage.Backend == "memory" {
		slog.Warn("using in-memory storage, data is lost on exit")
		return storage.NewMemoryRepository(), nil
	}

	slog.Info("running database migrations", "dir", cfg.Database.MigrationsDir)
	if err := storage.MigrateFromDSN(ctx, cfg.Database.DSN, cfg.Database.MigrationsDir); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	repo, err := storage.NewPostgresRepository(ctx, storage.PostgresConfig{
		DSN:          cfg.Database.DSN,
		MaxOpenConns: int32(cfg.Database.MaxOpenConns),
		MaxIdleConns: int32(cfg.Database.MaxIdleConns),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create database repository: %w", err)
	}
	slog.Info("database connected successfully")
	return repo, nil
}

// offlineService builds a service for one-shot commands; it publishes nothing
func offlineService(cfg *config.Config, repo storage.Repository) (*judging.Service, error) {
	policy, err := scoring.ParsePolicy(cfg.Scoring.Aggregation)
	if err != nil {
		return nil, err
	}
	return judging.NewService(repo, nil, judging.Options{
		Policy: policy,
		Tokens: auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
	}), nil
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply pending SQL migrations",
		Action: func(c *cli.Context) error {
			cfg, err := setup()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(c.Context, time.Minute)
			defer cancel()

			if err := storage.MigrateFromDSN(ctx, cfg.Database.DSN, cfg.Database.MigrationsDir); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "load users and competitions from YAML fixtures",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Usage: "fixture directory (defaults to SEED_DIR)"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := setup()
			if err != nil {
				return err
			}

			dir := c.String("dir")
			if dir == "" {
				dir = cfg.Seed.Dir
			}
			if dir == "" {
				return fmt.Errorf("no fixture directory: pass --dir or set SEED_DIR")
			}

			repo, err := openRepository(c.Context, cfg)
			if err != nil {
				return err
			}
			defer repo.Close()

			svc, err := offlineService(cfg, repo)
			if err != nil {
				return err
			}

			res, err := loadSeed(c.Context, svc, dir)
			if err != nil {
				return err
			}
			fmt.Printf("seeded %d users and %d competitions\n", res.Users, res.Competitions)
			return nil
		},
	}
}

func loadSeed(ctx context.Context, svc *judging.Service, dir string) (seed.Result, error) {
	files, err := seed.LoadDir(dir)
	if err != nil {
		return seed.Result{}, err
	}
	return seed.Apply(ctx, svc, files)
}

func createUserCommand() *cli.Command {
	return &cli.Command{
		Name:  "create-user",
		Usage: "create an admin, judge or viewer account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Required: true},
			&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"JUDGEHUB_PASSWORD"}},
			&cli.StringFlag{Name: "role", Value: string(models.RoleJudge), Usage: "admin, judge or viewer"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := setup()
			if err != nil {
				return err
			}

			repo, err := openRepository(c.Context, cfg)
			if err != nil {
				return err
			}
			defer repo.Close()

			svc, err := offlineService(cfg, repo)
			if err != nil {
				return err
			}

			u, err := svc.Register(c.Context, judging.RegisterInput{
				Username: c.String("username"),
				Password: c.String("password"),
				Role:     models.Role(c.String("role")),
			})
			if err != nil {
				return fmt.Errorf("%s", judging.Message(err))
			}
			fmt.Printf("created %s %s (%s)\n", u.Role, u.Username, u.ID)
			return nil
		},
	}
}

func leaderboardCommand() *cli.Command {
	return &cli.Command{
		Name:      "leaderboard",
		Usage:     "print a competition's leaderboard or export it as XLSX",
		ArgsUsage: "<competition-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "write an .xlsx workbook to this path"},
		},
		Action: func(c *cli.Context) error {
			id := c.Args().First()
			if id == "" {
				return fmt.Errorf("competition id is required")
			}

			cfg, err := setup()
			if err != nil {
				return err
			}

			repo, err := openRepository(c.Context, cfg)
			if err != nil {
				return err
			}
			defer repo.Close()

			svc, err := offlineService(cfg, repo)
			if err != nil {
				return err
			}

			comp, err := svc.GetCompetition(c.Context, id)
			if err != nil {
				return fmt.Errorf("%s", judging.Message(err))
			}
			lb, err := svc.BuildLeaderboard(c.Context, id)
			if err != nil {
				return fmt.Errorf("%s", judging.Message(err))
			}

			if out := c.String("output"); out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				if err := export.WriteLeaderboardXLSX(f, comp, lb); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Printf("wrote %s\n", out)
				return nil
			}

			fmt.Printf("%s (%s, %s)\n", comp.Name, comp.Status, lb.Aggregation)
			for _, e := range lb.Entries {
				marker := ""
				if e.Degraded {
					marker = " *"
				}
				fmt.Printf("%3d  %-30s %6.1f  judges=%d%s\n", e.Rank, e.ParticipantName, e.DisplayScore(), e.JudgeCount, marker)
			}
			return nil
		},
	}
}
