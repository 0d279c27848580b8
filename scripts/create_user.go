package main

import (
	"bufio"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/campusfin/clubsite/internal/config"
	"github.com/campusfin/clubsite/internal/db"
	"github.com/campusfin/clubsite/internal/models"
)

// Bootstraps an account for the admin panel. The server has no signup
// surface; every account is provisioned here by an operator.
func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	username := flag.String("username", "", "Login name for the account")
	password := flag.String("password", "", "Password (prefer -password-stdin)")
	role := flag.String("role", string(models.RoleEditor), "Access level: admin, editor or viewer")
	passwordStdin := flag.Bool("password-stdin", false, "Read the password from stdin instead of the command line")
	flag.Parse()

	name := strings.TrimSpace(*username)
	if name == "" {
		log.Fatal("username is required")
	}

	secret := *password
	if *passwordStdin {
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil && err.Error() != "EOF" {
			log.Fatalf("reading password from stdin: %v", err)
		}
		secret = strings.TrimSpace(line)
	}
	if secret == "" {
		log.Fatal("password is required")
	}

	accountRole := models.UserRole(strings.ToLower(strings.TrimSpace(*role)))
	if !accountRole.Valid() {
		log.Fatalf("role must be admin, editor or viewer, got %q", *role)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	store, err := db.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer store.Close()

	taken, err := usernameTaken(store.Conn(), name)
	if err != nil {
		log.Fatalf("checking existing account: %v", err)
	}
	if taken {
		log.Fatalf("account already exists: %s", name)
	}

	cost := cfg.Auth.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		log.Fatalf("hashing password: %v", err)
	}

	if _, err := store.Conn().Exec(
		"INSERT INTO users (username, password_hash, role) VALUES (?, ?, ?)",
		name, string(hash), accountRole,
	); err != nil {
		log.Fatalf("creating account: %v", err)
	}

	fmt.Printf("Created %s account: %s\n", accountRole, name)
}

func usernameTaken(conn *sql.DB, username string) (bool, error) {
	var existing string
	err := conn.QueryRow("SELECT username FROM users WHERE username = ?", username).Scan(&existing)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
