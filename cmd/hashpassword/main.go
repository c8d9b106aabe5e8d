// cmd/hashpassword/main.go prints a bcrypt hash for seeding accounts by hand.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/your-org/quickcart-backend/internal/config"
	"github.com/your-org/quickcart-backend/internal/pkg/auth"
)

func main() {
	if len(os.Args) < 2 {
		logrus.Fatal("Usage: go run ./cmd/hashpassword <password>")
	}
	password := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	passwords := auth.NewPasswordManager(cfg)
	hash, err := passwords.HashPassword(password)
	if err != nil {
		logrus.Fatalf("Password rejected: %v", err)
	}

	if err := passwords.VerifyPassword(password, hash); err != nil {
		logrus.Fatalf("Hash verification failed: %v", err)
	}

	fmt.Println(hash)
}
