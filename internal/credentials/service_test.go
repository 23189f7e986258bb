package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	rows map[uuid.UUID]*Stored
	err  error
}

func newMemRepo() *memRepo { return &memRepo{rows: map[uuid.UUID]*Stored{}} }

func (m *memRepo) Get(_ context.Context, userID uuid.UUID) (*Stored, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.rows[userID], nil
}

func (m *memRepo) Upsert(_ context.Context, c *Stored) error {
	cp := *c
	m.rows[c.UserID] = &cp
	return nil
}

func (m *memRepo) Delete(_ context.Context, userID uuid.UUID) (bool, error) {
	_, ok := m.rows[userID]
	delete(m.rows, userID)
	return ok, nil
}

func TestService_SaveRevealRemove(t *testing.T) {
	repo := newMemRepo()
	ciphers := testCiphers(t)
	svc := NewService(repo, ciphers[1], ciphers[0])
	ctx := context.Background()
	userID := uuid.New()

	assert.False(t, svc.HasCredential(ctx, userID))

	status, err := svc.Save(ctx, userID, "  AIzaSy-secret-1234  ")
	require.NoError(t, err)
	assert.True(t, status.Present)
	assert.Equal(t, "****1234", status.Masked)
	assert.Equal(t, "aes-gcm", repo.rows[userID].Cipher)
	assert.NotContains(t, repo.rows[userID].Sealed, "secret")

	key, ok, err := svc.Reveal(ctx, userID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "AIzaSy-secret-1234", key)
	assert.True(t, svc.HasCredential(ctx, userID))

	removed, err := svc.Remove(ctx, userID)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, svc.HasCredential(ctx, userID))
}

func TestService_ReadsLegacyCipher(t *testing.T) {
	repo := newMemRepo()
	ciphers := testCiphers(t)
	userID := uuid.New()

	legacy := NewService(repo, ciphers[0])
	_, err := legacy.Save(ctx(), userID, "old-xor-key")
	require.NoError(t, err)

	upgraded := NewService(repo, ciphers[1], ciphers[0])
	key, ok, err := upgraded.Reveal(ctx(), userID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "old-xor-key", key)

	assert.Equal(t, "aes-gcm", repo.rows[userID].Cipher)
	key, _, err = upgraded.Reveal(ctx(), userID)
	require.NoError(t, err)
	assert.Equal(t, "old-xor-key", key)

	xorOnly := NewService(repo, ciphers[0])
	_, err = xorOnly.Save(ctx(), userID, "new-key-value")
	require.NoError(t, err)
	repo.rows[userID].Cipher = "rot13"
	_, _, err = xorOnly.Reveal(ctx(), userID)
	assert.Error(t, err)
}

func TestService_SaveRejectsBlank(t *testing.T) {
	svc := NewService(newMemRepo(), XORCipher{})
	_, err := svc.Save(ctx(), uuid.New(), "   ")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestService_LookupFailureMeansNoCredential(t *testing.T) {
	repo := newMemRepo()
	repo.err = errors.New("db down")
	svc := NewService(repo, XORCipher{})

	assert.False(t, svc.HasCredential(ctx(), uuid.New()))
}

func TestMask(t *testing.T) {
	assert.Equal(t, "****", mask("abc"))
	assert.Equal(t, "****wxyz", mask("abcdefwxyz"))
}

func ctx() context.Context { return context.Background() }
