package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"selefli/internal/auth"
	"selefli/internal/config"
	"selefli/internal/database"
	"selefli/internal/models"
	"selefli/internal/service"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Fixtures is a local catalog of users and their listings.
type Fixtures struct {
	Users []struct {
		Username string `yaml:"username"`
		Email    string `yaml:"email"`
		Items    []struct {
			Title          string `yaml:"title"`
			Category       string `yaml:"category"`
			Description    string `yaml:"description"`
			EstimatedValue string `yaml:"estimated_value"`
			DepositAmount  string `yaml:"deposit_amount"`
		} `yaml:"items"`
	} `yaml:"users"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		configPath   = flag.String("config", "configs/config.yaml", "path to config.yaml")
		fixturesPath = flag.String("fixtures", "configs/fixtures.yaml", "path to fixtures.yaml")
		tokenTTL     = flag.Duration("token-ttl", 0, "print a signed access token per user, valid for this long")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	data, err := os.ReadFile(*fixturesPath)
	if err != nil {
		return fmt.Errorf("read fixtures: %w", err)
	}
	var fixtures Fixtures
	if err = yaml.Unmarshal(data, &fixtures); err != nil {
		return fmt.Errorf("parse fixtures: %w", err)
	}
	if len(fixtures.Users) == 0 {
		return fmt.Errorf("no users in fixtures")
	}

	db, err := database.NewDB(cfg.Database, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	verifier := auth.NewVerifier(cfg.API.Auth)
	usersCreated, itemsCreated := 0, 0
	for _, fu := range fixtures.Users {
		user, err := db.GetUserByUsername(ctx, fu.Username)
		if errors.Is(err, database.ErrNotFound) {
			user = &models.User{Username: fu.Username}
			if fu.Email != "" {
				email := fu.Email
				user.Email = &email
			}
			if err = db.CreateUser(ctx, user); err != nil {
				return fmt.Errorf("create user %s: %w", fu.Username, err)
			}
			usersCreated++
		} else if err != nil {
			return fmt.Errorf("get user %s: %w", fu.Username, err)
		}

		existing, _, err := db.ListItems(ctx, models.ItemFilter{OwnerID: user.ID, PageSize: models.MaxPageSize})
		if err != nil {
			return fmt.Errorf("list items of %s: %w", fu.Username, err)
		}
		titles := make(map[string]bool, len(existing))
		for _, it := range existing {
			titles[it.Title] = true
		}

		for _, fi := range fu.Items {
			if fi.Title == "" || titles[fi.Title] {
				continue
			}
			item := &models.Item{
				OwnerID:     user.ID,
				Title:       fi.Title,
				Category:    fi.Category,
				Description: fi.Description,
				IsAvailable: true,
			}
			if item.EstimatedValue, err = parseAmount(fi.EstimatedValue); err != nil {
				return fmt.Errorf("item %s: estimated_value: %w", fi.Title, err)
			}
			if item.DepositAmount, err = parseAmount(fi.DepositAmount); err != nil {
				return fmt.Errorf("item %s: deposit_amount: %w", fi.Title, err)
			}
			if err = db.CreateItem(ctx, item); err != nil {
				return fmt.Errorf("create %s: %w", fi.Title, err)
			}
			itemsCreated++
		}

		if *tokenTTL > 0 {
			token, err := verifier.Issue(service.Identity{UserID: user.ID, Username: user.Username}, *tokenTTL)
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\n", user.Username, token)
		}
	}

	fmt.Printf("done: users_created=%d items_created=%d\n", usersCreated, itemsCreated)
	return nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}
