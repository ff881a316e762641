package seed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/Oscar-Santacruz/kusystem-sub001/internal/permissions"
)

const defaultOrganizationName = "kuSystem"

// Config contains the values required by startup seed.
type Config struct {
	AdminEmail        string
	AdminPassword     string
	AdminOrganization string
}

// Stats contains seed operation counters.
type Stats struct {
	Inserts int
	Updates int
}

// Run executes the startup seed in an idempotent way: it makes sure the admin
// user exists and owns at least one organization.
func Run(ctx context.Context, db *sqlx.DB, cfg Config) (Stats, error) {
	email := strings.ToLower(strings.TrimSpace(cfg.AdminEmail))
	if email == "" || cfg.AdminPassword == "" {
		return Stats{}, nil
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("begin seed transaction: %w", err)
	}

	stats := Stats{}

	userID, err := seedAdmin(ctx, tx, email, cfg.AdminPassword, &stats)
	if err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}

	orgName := strings.TrimSpace(cfg.AdminOrganization)
	if orgName == "" {
		orgName = defaultOrganizationName
	}
	if err := ensureOwnedOrganization(ctx, tx, userID, orgName, &stats); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}

	if err := tx.Commit(); err != nil {
		return Stats{}, fmt.Errorf("commit seed transaction: %w", err)
	}

	return stats, nil
}

func seedAdmin(ctx context.Context, tx *sqlx.Tx, email, password string, stats *Stats) (int64, error) {
	var id int64
	err := tx.GetContext(ctx, &id, tx.Rebind(`SELECT id FROM users WHERE email = ?`), email)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("check admin user existence: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash admin password: %w", err)
	}

	if err := tx.GetContext(ctx, &id, tx.Rebind(`
		INSERT INTO users (email, name, password_hash) VALUES (?, ?, ?) RETURNING id
	`), email, "Administrator", string(hash)); err != nil {
		return 0, fmt.Errorf("insert admin user: %w", err)
	}
	stats.Inserts++
	return id, nil
}

func ensureOwnedOrganization(ctx context.Context, tx *sqlx.Tx, userID int64, name string, stats *Stats) error {
	var exists bool
	if err := tx.GetContext(ctx, &exists, tx.Rebind(`
		SELECT EXISTS(SELECT 1 FROM members WHERE user_id = ? AND role = ?)
	`), userID, permissions.RoleOwner); err != nil {
		return fmt.Errorf("check admin organization existence: %w", err)
	}
	if exists {
		return nil
	}

	var orgID int64
	if err := tx.GetContext(ctx, &orgID, tx.Rebind(`
		INSERT INTO organizations (name) VALUES (?) RETURNING id
	`), name); err != nil {
		return fmt.Errorf("insert admin organization: %w", err)
	}
	stats.Inserts++

	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO members (organization_id, user_id, role) VALUES (?, ?, ?)
	`), orgID, userID, permissions.RoleOwner); err != nil {
		return fmt.Errorf("insert admin membership: %w", err)
	}
	stats.Inserts++
	return nil
}
