package main

import (
	"fmt"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/capigrid/capigrid/internal/auth"
	"github.com/capigrid/capigrid/internal/config"
	"github.com/capigrid/capigrid/internal/db"
	"github.com/capigrid/capigrid/internal/models"
	"github.com/capigrid/capigrid/internal/repository"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "User management commands",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new user",
	RunE:  runUserAdd,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all users",
	RunE:  runUserList,
}

var (
	userEmail    string
	userPassword string
	userName     string
	userAdmin    bool
)

func init() {
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "User email")
	userAddCmd.Flags().StringVar(&userPassword, "password", "", "User password (will prompt if not provided)")
	userAddCmd.Flags().StringVar(&userName, "name", "", "User display name")
	userAddCmd.Flags().BoolVar(&userAdmin, "admin", false, "Grant admin privileges")
	userAddCmd.MarkFlagRequired("email")

	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userListCmd)

	userCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/capigrid/capigrid.yaml", "Path to configuration file")
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		return err
	}

	password := userPassword
	if password == "" {
		if password, err = promptPassword(); err != nil {
			return err
		}
	}
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	users := repository.NewUserRepository(database.DB)
	u := &models.User{
		Email:        userEmail,
		PasswordHash: hash,
		Name:         userName,
		IsAdmin:      userAdmin,
		IsVerified:   true,
	}
	if err := users.Create(u); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("user with email %s already exists", userEmail)
		}
		return err
	}

	fmt.Printf("User %s created (%s)\n", u.Email, u.ID)
	return nil
}

func promptPassword() (string, error) {
	fmt.Print("Enter password: ")
	first, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()

	fmt.Print("Confirm password: ")
	second, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()

	if string(first) != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(first), nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	users := repository.NewUserRepository(database.DB)

	page := 1
	fmt.Printf("%-36s  %-30s  %-20s  %-6s  %-8s  %s\n", "ID", "Email", "Name", "Admin", "Active", "Created")
	fmt.Println(strings.Repeat("-", 120))
	for {
		batch, total, err := users.ListPaged(page, 100)
		if err != nil {
			return err
		}
		for _, u := range batch {
			fmt.Printf("%-36s  %-30s  %-20s  %-6v  %-8v  %s\n",
				u.ID, u.Email, u.Name, u.IsAdmin, u.IsActive, u.CreatedAt.Format("2006-01-02 15:04"))
		}
		if page*100 >= total || len(batch) == 0 {
			break
		}
		page++
	}

	return nil
}
