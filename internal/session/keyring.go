package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const keyringService = "jobcard-cli"

var _ Store = (*KeyringStore)(nil)

// secrets is the subset of the keychain the store uses
type secrets interface {
	Get(service, user string) (string, error)
	Set(service, user, password string) error
	Delete(service, user string) error
}

type osKeyring struct{}

func (osKeyring) Get(service, user string) (string, error) { return keyring.Get(service, user) }
func (osKeyring) Set(service, user, password string) error { return keyring.Set(service, user, password) }
func (osKeyring) Delete(service, user string) error { return keyring.Delete(service, user) }

// KeyringStore keeps each entry as a separate secret in the OS
// keychain/credential manager. The keychain has no transactions, so a
// failed write puts back the entries that were there before it and Read
// treats any missing entry as no session.
type KeyringStore struct {
	namespace string
	secrets   secrets
}

// NewKeyringStore scopes the entries to namespace, typically the backend URL,
// so sessions for different backends do not collide.
func NewKeyringStore(namespace string) *KeyringStore {
	return &KeyringStore{namespace: namespace, secrets: osKeyring{}}
}

// getKeyringKey returns a unique account name for one entry
func (k *KeyringStore) getKeyringKey(entry string) string {
	return fmt.Sprintf("%s-%s", entry, k.namespace)
}

func (k *KeyringStore) Read(ctx context.Context) (*Session, error) {
	values := make(map[string]string, 3)
	for _, entry := range []string{KeyAccessToken, KeyRefreshToken, KeyUser} {
		v, err := k.secrets.Get(keyringService, k.getKeyringKey(entry))
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", entry, err)
		}
		values[entry] = v
	}
	return fromEntries(values)
}

func (k *KeyringStore) Write(ctx context.Context, s *Session) error {
	values, err := entries(s)
	if err != nil {
		return err
	}

	order := []string{KeyRefreshToken, KeyUser, KeyAccessToken}

	// nil marks an entry that did not exist
	previous := make(map[string]*string, len(order))
	for _, entry := range order {
		v, err := k.secrets.Get(keyringService, k.getKeyringKey(entry))
		switch {
		case errors.Is(err, keyring.ErrNotFound):
			previous[entry] = nil
		case err != nil:
			return fmt.Errorf("failed to load %s: %w", entry, err)
		default:
			previous[entry] = &v
		}
	}

	// Access token last: it is the entry callers treat as "logged in".
	for i, entry := range order {
		if err := k.secrets.Set(keyringService, k.getKeyringKey(entry), values[entry]); err != nil {
			k.restore(order[:i], previous)
			return fmt.Errorf("failed to save %s: %w", entry, err)
		}
	}
	return nil
}

// restore puts back the previous value of each entry a failed write
// already overwrote
func (k *KeyringStore) restore(written []string, previous map[string]*string) {
	for _, entry := range written {
		key := k.getKeyringKey(entry)
		if v := previous[entry]; v != nil {
			_ = k.secrets.Set(keyringService, key, *v)
		} else {
			_ = k.secrets.Delete(keyringService, key)
		}
	}
}

func (k *KeyringStore) Clear(ctx context.Context) error {
	var errs []error
	for _, entry := range []string{KeyAccessToken, KeyRefreshToken, KeyUser} {
		err := k.secrets.Delete(keyringService, k.getKeyringKey(entry))
		if err != nil && !errors.Is(err, keyring.ErrNotFound) {
			errs = append(errs, fmt.Errorf("failed to delete %s: %w", entry, err))
		}
	}
	return errors.Join(errs...)
}
