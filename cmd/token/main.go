// Command token mints a bearer token for local development:
//
//	JWT_SECRET=... go run ./cmd/token -user alice -ttl 1h
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/sakif/cofounder-match/internal/auth"
)

func main() {
	user := flag.String("user", "", "user id to put in the token subject")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	if err := run(*user, *ttl); err != nil {
		fmt.Fprintln(os.Stderr, "token:", err)
		os.Exit(1)
	}
}

func run(user string, ttl time.Duration) error {
	if user == "" {
		return errors.New("-user is required")
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reading .env: %w", err)
	}

	tokens, err := auth.NewTokenService(os.Getenv("JWT_SECRET"))
	if err != nil {
		return err
	}
	token, err := tokens.Issue(user, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
