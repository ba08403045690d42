// Command token issues a JWT for local testing, signed with JWT_SECRET.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/hlabsdev/car-reservation-system/internal/auth"
	"github.com/hlabsdev/car-reservation-system/internal/config"
	"github.com/hlabsdev/car-reservation-system/internal/models"
	log "github.com/sirupsen/logrus"
)

func issue(cfg config.Config, userID, username, role string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("-user is required")
	}
	if username == "" {
		username = userID
	}
	return auth.NewService(cfg.JWTSecret, cfg.JWTExpiry).GenerateToken(userID, username, models.Role(role))
}

func main() {
	userID := flag.String("user", "", "user id placed in the token")
	username := flag.String("name", "", "username (defaults to the user id)")
	role := flag.String("role", string(models.RoleEmployee), "admin, manager, employee or viewer")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	token, err := issue(cfg, *userID, *username, *role)
	if err != nil {
		log.WithError(err).Error("Failed to issue token")
		os.Exit(1)
	}
	fmt.Println(token)
}
