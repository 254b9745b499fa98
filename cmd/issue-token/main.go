package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/sentinel/ledger/internal/auth"
	"github.com/sentinel/ledger/internal/infra"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("issue token failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("issue-token", flag.ContinueOnError)
	realmFlag := fs.String("realm", string(auth.RealmBot), "token realm: bot or admin")
	subject := fs.String("subject", "", "token subject (bot name or admin email)")
	role := fs.String("role", "", "admin role: viewer, admin or superadmin")
	if err := fs.Parse(args); err != nil {
		return err
	}

	realm, err := auth.ParseRealm(*realmFlag)
	if err != nil {
		return err
	}

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTBotExpiry, cfg.JWTAdminExpiry)
	token, err := jwtMgr.GenerateToken(realm, *subject, *role)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
