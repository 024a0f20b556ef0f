// Command ops provides operational maintenance tasks for the records
// service. The create-admin subcommand seeds an administrator account
// directly in the database, bypassing the verification flow.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/medscan/hospital-records/internal/core/domain"
	"github.com/medscan/hospital-records/internal/infra/config"
	"github.com/medscan/hospital-records/internal/infra/database"
	"github.com/medscan/hospital-records/internal/infra/logger"
	"github.com/medscan/hospital-records/internal/infra/security"
	postgresrepo "github.com/medscan/hospital-records/internal/repository/postgres"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "create-admin":
		if err := createAdmin(os.Args[2:]); err != nil {
			log.Fatalf("create-admin: %v", err)
		}
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: ops <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  create-admin    seed an administrator account")
}

func createAdmin(args []string) error {
	fs := flag.NewFlagSet("create-admin", flag.ExitOnError)
	adminID := fs.String("id", "", "administrator id used to sign in")
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "contact email")
	if err := fs.Parse(args); err != nil {
		return err
	}

	reader := bufio.NewReader(os.Stdin)
	if *adminID == "" {
		*adminID = prompt(reader, "Admin id: ")
	}
	if *name == "" {
		*name = prompt(reader, "Name: ")
	}
	if *email == "" {
		*email = prompt(reader, "Email: ")
	}
	if *adminID == "" || *name == "" {
		return fmt.Errorf("admin id and name are required")
	}

	password, err := promptPassword()
	if err != nil {
		return err
	}
	if err := security.NewPasswordValidatorWithContext(*adminID, *name, *email).Validate(password); err != nil {
		return fmt.Errorf("password rejected: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	zlog, err := logger.New(cfg.App.Env)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := security.ConfigureArgon2(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	}); err != nil {
		return fmt.Errorf("configure argon2: %w", err)
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, zlog)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	accounts := postgresrepo.NewRepositories(pool).Accounts

	exists, err := accounts.ExistsByIdentity(ctx, domain.AccountKindAdmin, *adminID)
	if err != nil {
		return fmt.Errorf("check admin id: %w", err)
	}
	if exists {
		return fmt.Errorf("admin id %q is already registered", *adminID)
	}

	account := domain.Account{
		ID:           uuid.NewString(),
		Kind:         domain.AccountKindAdmin,
		IdentityKey:  *adminID,
		Name:         *name,
		Email:        *email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := accounts.Create(ctx, account); err != nil {
		return fmt.Errorf("create account: %w", err)
	}

	fmt.Printf("administrator %q created\n", *adminID)
	return nil
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

// promptPassword reads the password twice without echo and requires the
// entries to match.
func promptPassword() (string, error) {
	fmt.Print("Password: ")
	first, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	fmt.Print("Repeat password: ")
	second, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	if string(first) != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(first), nil
}
