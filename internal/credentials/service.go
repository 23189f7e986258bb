package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrEmptyKey = errors.New("api key must not be empty")

// Service stores each user's own AI key. New keys are sealed with the active
// cipher; rows sealed by any known cipher can still be opened.
type Service struct {
	repo    Repository
	active  Cipher
	ciphers map[string]Cipher
}

// NewService seals with active. Extra ciphers are accepted for reading only.
func NewService(repo Repository, active Cipher, legacy ...Cipher) *Service {
	ciphers := map[string]Cipher{active.Name(): active}
	for _, c := range legacy {
		ciphers[c.Name()] = c
	}
	return &Service{repo: repo, active: active, ciphers: ciphers}
}

func (s *Service) Save(ctx context.Context, userID uuid.UUID, apiKey string) (Status, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return Status{}, ErrEmptyKey
	}

	sealed, err := s.active.Seal(userID, apiKey)
	if err != nil {
		return Status{}, fmt.Errorf("sealing credential: %w", err)
	}

	now := time.Now().UTC()
	err = s.repo.Upsert(ctx, &Stored{UserID: userID, Sealed: sealed, Cipher: s.active.Name(), UpdatedAt: now})
	if err != nil {
		return Status{}, err
	}
	return Status{Present: true, Masked: mask(apiKey), UpdatedAt: &now}, nil
}

// Reveal returns the user's plaintext key. ok is false when none is stored.
func (s *Service) Reveal(ctx context.Context, userID uuid.UUID) (key string, ok bool, err error) {
	stored, err := s.repo.Get(ctx, userID)
	if err != nil {
		return "", false, err
	}
	if stored == nil {
		return "", false, nil
	}

	c, known := s.ciphers[stored.Cipher]
	if !known {
		return "", false, fmt.Errorf("credential sealed with unknown cipher %q", stored.Cipher)
	}
	key, err = c.Open(userID, stored.Sealed)
	if err != nil {
		return "", false, fmt.Errorf("opening credential: %w", err)
	}
	key = strings.TrimSpace(key)
	if key != "" && stored.Cipher != s.active.Name() {
		s.reseal(ctx, stored, key)
	}
	return key, key != "", nil
}

// reseal moves a legacy row to the active cipher. Failures are logged; the
// row stays readable under its old cipher.
func (s *Service) reseal(ctx context.Context, stored *Stored, key string) {
	sealed, err := s.active.Seal(stored.UserID, key)
	if err != nil {
		slog.Warn("credentials: re-sealing legacy key", "error", err, "user_id", stored.UserID)
		return
	}
	from := stored.Cipher
	err = s.repo.Upsert(ctx, &Stored{UserID: stored.UserID, Sealed: sealed, Cipher: s.active.Name(), UpdatedAt: stored.UpdatedAt})
	if err != nil {
		slog.Warn("credentials: storing re-sealed key", "error", err, "user_id", stored.UserID)
		return
	}
	slog.Info("credentials: re-sealed legacy key", "user_id", stored.UserID, "from", from, "to", s.active.Name())
}

// HasCredential reports whether a usable key is stored. Read failures count
// as no key, which routes the user through the metered path.
func (s *Service) HasCredential(ctx context.Context, userID uuid.UUID) bool {
	_, ok, err := s.Reveal(ctx, userID)
	if err != nil {
		slog.Warn("credentials: lookup failed, treating as absent", "error", err, "user_id", userID)
		return false
	}
	return ok
}

func (s *Service) Status(ctx context.Context, userID uuid.UUID) (Status, error) {
	stored, err := s.repo.Get(ctx, userID)
	if err != nil {
		return Status{}, err
	}
	if stored == nil {
		return Status{}, nil
	}
	key, ok, err := s.Reveal(ctx, userID)
	if err != nil || !ok {
		return Status{}, err
	}
	updated := stored.UpdatedAt
	return Status{Present: true, Masked: mask(key), UpdatedAt: &updated}, nil
}

func (s *Service) Remove(ctx context.Context, userID uuid.UUID) (bool, error) {
	return s.repo.Delete(ctx, userID)
}
