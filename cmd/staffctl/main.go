// Command staffctl creates staff accounts for the reservation desk.  It
// needs the DB_* variables and optionally BCRYPT_COST.
//
//	staffctl -email host@example.com -password '...' -role STAFF
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/iliyamo/restaurant-reservations/internal/config"
	"github.com/iliyamo/restaurant-reservations/internal/database"
	"github.com/iliyamo/restaurant-reservations/internal/model"
	"github.com/iliyamo/restaurant-reservations/internal/repository"
)

type account struct {
	Email    string
	Password string
	Role     string
}

func main() {
	acc, err := parseArgs(os.Args[1:])
	if err == nil {
		err = create(acc)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "staffctl:", err)
		os.Exit(1)
	}
}

func parseArgs(args []string) (account, error) {
	fs := flag.NewFlagSet("staffctl", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password (8 to 72 bytes)")
	role := fs.String("role", model.RoleStaff, "ADMIN or STAFF")
	if err := fs.Parse(args); err != nil {
		return account{}, err
	}
	acc := account{
		Email:    strings.ToLower(strings.TrimSpace(*email)),
		Password: *password,
		Role:     strings.ToUpper(strings.TrimSpace(*role)),
	}
	if acc.Email == "" || acc.Password == "" {
		return account{}, errors.New("-email and -password are required")
	}
	if !slices.Contains(model.StaffRoles, acc.Role) {
		return account{}, fmt.Errorf("role must be one of %v", model.StaffRoles)
	}
	return acc, nil
}

func create(acc account) error {
	cfg, err := config.LoadAccounts()
	if err != nil {
		return err
	}
	db, err := database.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.DB.Migrate {
		if err := database.RunMigrations(db); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	id, err := repository.NewUserRepo(db).Create(ctx, acc.Email, acc.Password, acc.Role, cfg.BcryptCost)
	if errors.Is(err, repository.ErrEmailExists) {
		return fmt.Errorf("%s is already registered", acc.Email)
	}
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	fmt.Printf("created %s account %d for %s\n", acc.Role, id, acc.Email)
	return nil
}
