package main

import (
	"testing"
	"time"

	"github.com/hlabsdev/car-reservation-system/internal/auth"
	"github.com/hlabsdev/car-reservation-system/internal/config"
	"github.com/hlabsdev/car-reservation-system/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssue(t *testing.T) {
	cfg := config.Config{JWTSecret: "test-secret", JWTExpiry: time.Hour}

	token, err := issue(cfg, "u1", "", "manager")
	require.NoError(t, err)

	claims, err := auth.NewService(cfg.JWTSecret, cfg.JWTExpiry).ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "u1", claims.Username)
	assert.Equal(t, models.RoleManager, claims.Role)
}

func TestIssue_Rejects(t *testing.T) {
	cfg := config.Config{JWTSecret: "test-secret", JWTExpiry: time.Hour}

	_, err := issue(cfg, "", "alice", "employee")
	assert.Error(t, err)

	_, err = issue(cfg, "u1", "alice", "superuser")
	assert.ErrorIs(t, err, auth.ErrInvalidRole)
}
