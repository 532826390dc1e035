package credentialengine

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrCorruptCachedToken = errors.New("cannot unmarshal cached session token")

// TokenClass selects which of the two vault-backed cache families an entry
// belongs to. Plain tokens amortise the MFA cost of a directly-keyed
// identity; truster tokens hold the parent session token that seeds an
// assume-role double jump. The assume-role result itself is never cached.
type TokenClass string

const (
	PlainToken   TokenClass = "plain-account"
	TrusterToken TokenClass = "truster-account"
)

func (c TokenClass) tokenKey(accountName string) string {
	return fmt.Sprintf("%s-session-token-%s", string(c), accountName)
}

func (c TokenClass) expirationKey(accountName string) string {
	return fmt.Sprintf("%s-session-token-expiration-%s", string(c), accountName)
}

// VaultApi is the store surface the cache needs.
type VaultApi interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// SessionTokenCache is a TTL-checked cache of session tokens over the secret
// vault, keyed by account name. Writes for the same account name are
// serialized so two truster sessions sharing one parent plain account cannot
// race on the shared entry.
type SessionTokenCache struct {
	vault VaultApi
	class TokenClass
	now   func() time.Time

	mu       sync.Mutex
	accounts map[string]*sync.Mutex
}

func NewSessionTokenCache(vault VaultApi, class TokenClass) *SessionTokenCache {
	return &SessionTokenCache{
		vault:    vault,
		class:    class,
		now:      time.Now,
		accounts: map[string]*sync.Mutex{},
	}
}

// WithClock overrides the wall clock, for tests.
func (c *SessionTokenCache) WithClock(now func() time.Time) *SessionTokenCache {
	c.now = now
	return c
}

func (c *SessionTokenCache) accountLock(accountName string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.accounts[accountName]
	if !ok {
		l = &sync.Mutex{}
		c.accounts[accountName] = l
	}
	return l
}

// Lookup returns the cached token for accountName while its stored
// expiration is still in the future. A missing entry, an expired entry or an
// unparseable expiration all report a miss; only vault faults are errors.
func (c *SessionTokenCache) Lookup(accountName string) (*AWSCredentials, bool, error) {
	l := c.accountLock(accountName)
	l.Lock()
	defer l.Unlock()

	expStr, err := c.vault.Get(c.class.expirationKey(accountName))
	if err != nil {
		if errors.Is(err, ErrVaultEntryNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}

	expires, err := time.Parse(time.RFC3339, expStr)
	if err != nil || !expires.After(c.now()) {
		return nil, false, nil
	}

	raw, err := c.vault.Get(c.class.tokenKey(accountName))
	if err != nil {
		if errors.Is(err, ErrVaultEntryNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}

	creds := &AWSCredentials{}
	if err := json.Unmarshal([]byte(raw), creds); err != nil {
		return nil, false, fmt.Errorf("%s, %w", err, ErrCorruptCachedToken)
	}
	return creds, true, nil
}

// Store writes the serialized token and its expiration as two vault entries.
func (c *SessionTokenCache) Store(accountName string, creds *AWSCredentials) error {
	l := c.accountLock(accountName)
	l.Lock()
	defer l.Unlock()

	raw, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	if err := c.vault.Set(c.class.tokenKey(accountName), string(raw)); err != nil {
		return err
	}
	return c.vault.Set(c.class.expirationKey(accountName), creds.Expires.Format(time.RFC3339))
}
