package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"qrauth/codehub/internal/config"
	"qrauth/codehub/internal/model"
	jwtpkg "qrauth/codehub/pkg/jwt"
)

// Version is set at build time through ldflags.
var Version = "dev"

func main() {
	cmd := &cli.Command{
		Name:    "codehub",
		Usage:   "QR product authentication code service",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "path to the YAML config file",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "optional .env file loaded before the config",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "create or update the database schema",
				Action: migrate,
			},
			{
				Name:  "token",
				Usage: "mint an access token for an account (development)",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "account",
						Usage: "account uuid; a new one is generated when empty",
					},
				},
				Action: mintToken,
			},
		},
		DefaultCommand: "serve",
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatalf("codehub: %v", err)
	}
}

func loadConfig(cmd *cli.Command) (*config.Config, error) {
	if _, err := config.LoadDotEnv(cmd.String("env-file")); err != nil {
		return nil, err
	}
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func migrate(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	db, err := config.NewPostgresDB(cfg.Database.Postgres)
	if err != nil {
		return err
	}
	if err := model.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("database migration completed")
	return nil
}

func mintToken(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	accountID := uuid.New()
	if raw := cmd.String("account"); raw != "" {
		if accountID, err = uuid.Parse(raw); err != nil {
			return fmt.Errorf("invalid account id: %w", err)
		}
	}

	manager := jwtpkg.NewManager(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.AccessTokenTTL)
	token, err := manager.GenerateAccessToken(accountID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.Root().Writer, "account: %s\ntoken:   %s\n", accountID, token)
	return nil
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.Format == "json" {
		zcfg = zap.NewProductionConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("log.level: %w", err)
		}
		zcfg.Level = level
	}
	return zcfg.Build()
}
