/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/friendsincode/dagr/internal/db"
	"github.com/friendsincode/dagr/internal/models"
)

var (
	resetForce     bool
	resetKeepUsers int
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the database to a fresh state",
	Long: `Reset Dagr to a fresh state.

This command will:
- Drop all tables from the database (except optionally preserved users)
- Re-create empty tables

WARNING: This action is irreversible! All data will be lost.

Examples:
  # Interactive reset (will prompt for confirmation)
  dagr reset

  # Force reset without confirmation
  dagr reset --force

  # Reset but keep up to 3 admin users
  dagr reset --force --keep-users=3
`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVarP(&resetForce, "force", "f", false, "Skip confirmation prompt")
	resetCmd.Flags().IntVar(&resetKeepUsers, "keep-users", 0, "Number of admin users to preserve (0 = delete all)")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	if !resetForce {
		fmt.Println()
		fmt.Println("WARNING: this will DELETE ALL DATA from Dagr:")
		if resetKeepUsers > 0 {
			fmt.Printf("  - all users EXCEPT the first %d admin user(s)\n", resetKeepUsers)
		} else {
			fmt.Println("  - all users and accounts")
		}
		fmt.Println("  - all day plans and time windows")
		fmt.Println("  - all tasks and categories")
		fmt.Println()
		fmt.Println("This action CANNOT be undone!")
		fmt.Println()

		fmt.Print("Type 'yes' to confirm reset: ")
		reader := bufio.NewReader(os.Stdin)
		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		response = strings.TrimSpace(strings.ToLower(response))
		if response != "yes" {
			fmt.Println("Reset cancelled.")
			return nil
		}
	}

	logger.Info().
		Int("keep_users", resetKeepUsers).
		Msg("Starting database reset")

	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	defer sqlDB.Close()

	// If keeping users, preserve them first
	var preservedUsers []models.User
	if resetKeepUsers > 0 {
		logger.Info().Int("count", resetKeepUsers).Msg("Preserving admin users")

		database.Where("role = ?", models.RoleAdmin).
			Order("created_at ASC").
			Limit(resetKeepUsers).
			Find(&preservedUsers)

		// If we don't have enough admins, fall back to the oldest accounts
		if len(preservedUsers) < resetKeepUsers {
			remaining := resetKeepUsers - len(preservedUsers)
			var ids []string
			for _, u := range preservedUsers {
				ids = append(ids, u.ID)
			}

			var moreUsers []models.User
			query := database.Order("created_at ASC").Limit(remaining)
			if len(ids) > 0 {
				query = query.Where("id NOT IN ?", ids)
			}
			query.Find(&moreUsers)
			preservedUsers = append(preservedUsers, moreUsers...)
		}

		for _, u := range preservedUsers {
			logger.Info().
				Str("user_id", u.ID).
				Str("email", u.Email).
				Str("role", string(u.Role)).
				Msg("Preserving user")
		}
	}

	// Drop all tables in reverse order of dependencies
	tables := []interface{}{
		&models.Task{},
		&models.TimeWindow{},
		&models.DayPlan{},
		&models.Category{},
		&models.User{},
	}

	logger.Info().Msg("Dropping all tables")
	for _, table := range tables {
		if err := database.Migrator().DropTable(table); err != nil {
			// Table might not exist
			logger.Debug().Err(err).Msgf("drop table (may not exist)")
		}
	}

	logger.Info().Msg("Creating fresh database schema")
	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	if len(preservedUsers) > 0 {
		logger.Info().Int("count", len(preservedUsers)).Msg("Restoring preserved users")
		for _, u := range preservedUsers {
			u.UpdatedAt = u.CreatedAt

			if err := database.Create(&u).Error; err != nil {
				logger.Error().Err(err).Str("email", u.Email).Msg("failed to restore user")
			} else {
				logger.Info().
					Str("user_id", u.ID).
					Str("email", u.Email).
					Msg("User restored")
			}
		}
	}

	logger.Info().Msg("Reset complete")
	fmt.Println()
	fmt.Println("Dagr has been reset to a fresh state.")
	fmt.Println("Start the server with: dagr serve")
	fmt.Println()

	return nil
}
