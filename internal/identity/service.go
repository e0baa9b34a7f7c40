package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"pv-go/internal/pv"
)

// Service maps an external authentication identity to one internal, stable
// account identifier, using the object store itself as a coordination-free
// key-value mapping. A mapping is created exactly once per external identity
// and never mutated; every sign-in reads it so the same person gets the
// same internal account on every device.
type Service struct {
	store  pv.ObjectStore
	idgen  pv.IDGenerator
	logger pv.Logger
}

// NewService creates an identity mapping service.
func NewService(store pv.ObjectStore, idgen pv.IDGenerator, logger pv.Logger) *Service {
	return &Service{store: store, idgen: idgen, logger: logger}
}

// GetOrCreateInternalID resolves the internal account ID for an external
// provider identity, creating the mapping on first sign-in.
//
// The race between concurrent first sign-ins from multiple devices is
// settled by the store's conditional create: whoever's write-if-absent lands
// first wins, and every loser re-reads the winner's value. The locally
// generated candidate ID is never trusted once the conditional write fails.
func (s *Service) GetOrCreateInternalID(ctx context.Context, provider, externalID string) (string, error) {
	if provider == "" || externalID == "" {
		return "", fmt.Errorf("provider and external ID are required")
	}

	key := pv.IdentityKey(provider, externalID)

	existing, err := s.readMapping(ctx, key)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pv.ErrNotFound) {
		return "", fmt.Errorf("reading identity mapping: %w", err)
	}

	candidate := s.idgen.New()
	created, err := s.store.PutIfAbsent(ctx, key, []byte(candidate))
	if err != nil {
		return "", fmt.Errorf("creating identity mapping: %w", err)
	}
	if created {
		s.logger.Info("identity mapping created", "provider", provider, "account", candidate)
		return candidate, nil
	}

	// A concurrent caller won the race. Invisible to the user: just account
	// resolution taking the read path.
	winner, err := s.readMapping(ctx, key)
	if err != nil {
		return "", fmt.Errorf("re-reading identity mapping after lost race: %w", err)
	}
	s.logger.Debug("identity race lost, using existing mapping", "provider", provider, "account", winner)
	return winner, nil
}

func (s *Service) readMapping(ctx context.Context, key string) (string, error) {
	r, err := s.store.Get(ctx, key)
	if err != nil {
		return "", err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading mapping value: %w", err)
	}

	id := strings.TrimSpace(string(data))
	if id == "" {
		return "", fmt.Errorf("identity mapping at %s is empty", key)
	}
	return id, nil
}
