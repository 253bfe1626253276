package identity_test

import (
	"context"
	"sync"
	"testing"
	"time"

	identity "github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStoredUser(t *testing.T, users identity.Users, email string) *identity.User {
	t.Helper()

	user, err := users.Register(context.Background(), &identity.User{
		Name:              "Alice",
		Email:             email,
		PasswordHash:      "$2a$04$placeholderplaceholderplaceholderplaceholderplace",
		IsActive:          true,
		VerificationToken: uuid.NewString(),
	})
	require.NoError(t, err)

	return user
}

func TestUsers_RegisterAndLookup(t *testing.T) {
	ctx := context.Background()
	repo := identity.NewRepositoryManager(newTestDB(t))
	require.NoError(t, repo.Validate())

	users := repo.Users()
	user := newStoredUser(t, users, "alice@example.com")

	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.Equal(t, identity.RoleUser, user.Role)
	assert.False(t, user.IsVerified)
	assert.NotNil(t, user.CreatedAt)

	byEmail, err := users.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)
	assert.Equal(t, identity.RoleUser, byEmail.Role)

	byID, err := users.GetByID(ctx, user.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", byID.Email)

	_, err = users.GetByEmail(ctx, "nobody@example.com")
	assert.Error(t, err)

	_, err = users.Register(ctx, &identity.User{
		Name:         "Other",
		Email:        "alice@example.com",
		PasswordHash: "hash",
		IsActive:     true,
	})
	assert.Error(t, err)
}

func TestUsers_ConsumeVerificationToken(t *testing.T) {
	ctx := context.Background()
	repo := identity.NewRepositoryManager(newTestDB(t))
	users := repo.Users()

	user := newStoredUser(t, users, "alice@example.com")

	verified, err := users.ConsumeVerificationToken(ctx, user.VerificationToken)
	require.NoError(t, err)
	assert.True(t, verified.IsVerified)
	assert.Empty(t, verified.VerificationToken)

	_, err = users.ConsumeVerificationToken(ctx, user.VerificationToken)
	assert.Error(t, err)

	_, err = users.ConsumeVerificationToken(ctx, "")
	assert.Error(t, err)
}

func TestUsers_ConsumeResetToken(t *testing.T) {
	ctx := context.Background()
	repo := identity.NewRepositoryManager(newTestDB(t))
	users := repo.Users()

	user := newStoredUser(t, users, "alice@example.com")
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, users.SetResetToken(ctx, user.ID, "reset-token", now.Add(time.Hour)))

	t.Run("expired", func(t *testing.T) {
		_, err := users.ConsumeResetToken(ctx, "reset-token", "new-hash", now.Add(time.Hour))
		assert.Error(t, err)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := users.ConsumeResetToken(ctx, "other-token", "new-hash", now)
		assert.Error(t, err)
	})

	t.Run("valid once", func(t *testing.T) {
		updated, err := users.ConsumeResetToken(ctx, "reset-token", "new-hash", now.Add(59*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, "new-hash", updated.PasswordHash)
		assert.Empty(t, updated.ResetToken)
		assert.Nil(t, updated.ResetTokenExpiry)

		_, err = users.ConsumeResetToken(ctx, "reset-token", "again", now)
		assert.Error(t, err)
	})
}

func TestUsers_ConsumeResetTokenConcurrently(t *testing.T) {
	ctx := context.Background()
	repo := identity.NewRepositoryManager(newTestDB(t))
	users := repo.Users()

	user := newStoredUser(t, users, "alice@example.com")
	now := time.Now().UTC()
	require.NoError(t, users.SetResetToken(ctx, user.ID, "race-token", now.Add(time.Hour)))

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := users.ConsumeResetToken(ctx, "race-token", "hash", now); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}

func TestUsers_Updates(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	repo := identity.NewRepositoryManager(newTestDB(t), identity.WithUsersClock(clock.Now))
	users := repo.Users()

	user := newStoredUser(t, users, "alice@example.com")
	missing := uuid.New()

	t.Run("name", func(t *testing.T) {
		updated, err := users.UpdateName(ctx, user.ID, "Alice B")
		require.NoError(t, err)
		assert.Equal(t, "Alice B", updated.Name)

		_, err = users.UpdateName(ctx, missing, "Ghost")
		assert.Error(t, err)
	})

	t.Run("role", func(t *testing.T) {
		updated, err := users.SetRole(ctx, user.ID, identity.RoleAdmin)
		require.NoError(t, err)
		assert.Equal(t, identity.RoleAdmin, updated.Role)
	})

	t.Run("toggle active", func(t *testing.T) {
		updated, err := users.ToggleActive(ctx, user.ID)
		require.NoError(t, err)
		assert.False(t, updated.IsActive)

		updated, err = users.ToggleActive(ctx, user.ID)
		require.NoError(t, err)
		assert.True(t, updated.IsActive)
	})

	t.Run("email change", func(t *testing.T) {
		_, err := users.ConsumeVerificationToken(ctx, user.VerificationToken)
		require.NoError(t, err)

		updated, err := users.ChangeEmail(ctx, user.ID, "", identity.EmailChange{
			Email:             "alice@new.example.com",
			VerificationToken: "fresh-token",
		})
		require.NoError(t, err)
		assert.Equal(t, "alice@new.example.com", updated.Email)
		assert.False(t, updated.IsVerified)
		assert.Equal(t, "fresh-token", updated.VerificationToken)
		assert.Equal(t, "Alice B", updated.Name)
	})

	t.Run("admin update", func(t *testing.T) {
		name := "Alice Admin"
		active := false
		updated, err := users.AdminUpdate(ctx, user.ID, identity.AdminUserUpdate{
			Name:     &name,
			IsActive: &active,
		})
		require.NoError(t, err)
		assert.Equal(t, name, updated.Name)
		assert.False(t, updated.IsActive)

		same, err := users.AdminUpdate(ctx, user.ID, identity.AdminUserUpdate{})
		require.NoError(t, err)
		assert.Equal(t, name, same.Name)
	})

	t.Run("password", func(t *testing.T) {
		require.NoError(t, users.UpdatePassword(ctx, user.ID, "other-hash"))
		assert.Error(t, users.UpdatePassword(ctx, missing, "other-hash"))
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, users.Remove(ctx, user.ID))
		assert.Error(t, users.Remove(ctx, user.ID))

		_, err := users.GetByEmail(ctx, "alice@new.example.com")
		assert.Error(t, err)
	})
}
