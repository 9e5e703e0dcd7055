package repository

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/domain"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func setupTestDB(t *testing.T) *sqlx.DB {
	_ = godotenv.Load("../../../.env")

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		getEnv("DB_USER", "kanso_user"),
		getEnv("DB_PASSWORD", "secret"),
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_NAME", "kanso_db"))

	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		t.Skipf("Skipping integration tests: database connection failed: %v", err)
	}
	require.NoError(t, Migrate(context.Background(), db))
	return db
}

func TestPostgresUserRepository_Integration(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewPostgresUserRepository(db)
	ctx := context.Background()

	t.Run("Success: Should create and read back a user", func(t *testing.T) {
		email := fmt.Sprintf("test_%s@example.com", uuid.NewString())
		user, err := domain.NewUser(uuid.NewString(), email)
		require.NoError(t, err)
		require.NoError(t, user.SetPassword("passwordStrong123"))

		require.NoError(t, repo.Create(ctx, user))

		byEmail, err := repo.GetByEmail(ctx, user.Email)
		require.NoError(t, err)
		assert.Equal(t, user.ID, byEmail.ID)
		assert.False(t, byEmail.CreatedAt.IsZero())

		byID, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, user.Email, byID.Email)
	})

	t.Run("Fail: Should reject a duplicate email", func(t *testing.T) {
		email := fmt.Sprintf("duplicate_%s@example.com", uuid.NewString())
		first, _ := domain.NewUser(uuid.NewString(), email)
		_ = first.SetPassword("password-one")
		require.NoError(t, repo.Create(ctx, first))

		second, _ := domain.NewUser(uuid.NewString(), email)
		_ = second.SetPassword("password-two")

		assert.ErrorIs(t, repo.Create(ctx, second), domain.ErrEmailAlreadyExists)
	})

	t.Run("Fail: Should return ErrUserNotFound", func(t *testing.T) {
		_, err := repo.GetByID(ctx, uuid.NewString())
		assert.ErrorIs(t, err, domain.ErrUserNotFound)

		_, err = repo.GetByEmail(ctx, "nonexistent@ghost.com")
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
	})
}
