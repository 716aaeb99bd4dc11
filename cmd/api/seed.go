package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"procureflow/internal/config"
	"procureflow/internal/database"
	"procureflow/internal/middleware"
	"procureflow/internal/model"
	"procureflow/internal/repository"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

type seedOptions struct {
	password    string
	departments []string
	tokenTTL    time.Duration
}

func newSeedCommand() *cobra.Command {
	opts := &seedOptions{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the system approver and one reviewer per department",
		Long: `Create the system approver (admin) and one manager per department, skipping
users that already exist. Prints the admin id to use as SYSTEM_APPROVER_ID and
an access token for each seeded user.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.password, "password", "changeme", "password for every seeded user")
	cmd.Flags().StringSliceVar(&opts.departments, "departments", []string{"IT", "Finance", "HR", "Operations"}, "departments to create reviewers for")
	cmd.Flags().DurationVar(&opts.tokenTTL, "token-ttl", 24*time.Hour, "lifetime of the printed access tokens")
	return cmd
}

func runSeed(cmd *cobra.Command, opts *seedOptions) error {
	ctx := cmd.Context()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	db, err := database.NewConnection(cfg.DB.DSN())
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(opts.password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	users := repository.NewUserRepository(db)
	auth := middleware.NewAuth(cfg.JWT.Secret)
	out := cmd.OutOrStdout()

	seed := func(username, role, department string) (*model.User, error) {
		existing, err := users.GetByUsername(ctx, username)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		user := &model.User{
			Username:   username,
			Email:      username + "@procureflow.local",
			Password:   string(hashed),
			Role:       role,
			Department: department,
			IsActive:   true,
		}
		if err := users.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", username, err)
		}
		return user, nil
	}

	admin, err := seed("admin", model.RoleAdmin, "Administration")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "SYSTEM_APPROVER_ID=%s\n", admin.ID)
	if err := printToken(out, auth, admin, opts.tokenTTL); err != nil {
		return err
	}

	for _, dept := range opts.departments {
		dept = strings.TrimSpace(dept)
		if dept == "" {
			continue
		}
		username := "manager." + strings.ToLower(strings.ReplaceAll(dept, " ", "-"))
		manager, err := seed(username, model.RoleManager, dept)
		if err != nil {
			return err
		}
		if err := printToken(out, auth, manager, opts.tokenTTL); err != nil {
			return err
		}
	}
	return nil
}

func printToken(out io.Writer, auth *middleware.Auth, user *model.User, ttl time.Duration) error {
	token, err := auth.IssueToken(user.ID, user.Role, ttl)
	if err != nil {
		return fmt.Errorf("failed to issue token for %s: %w", user.Username, err)
	}
	_, err = fmt.Fprintf(out, "%-28s %-8s %s\n", user.Username, user.Role, token)
	return err
}
