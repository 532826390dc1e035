package credentialengine

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/werf/lockgate"
	"github.com/werf/lockgate/pkg/file_locker"
	"github.com/zalando/go-keyring"
	ini "gopkg.in/ini.v1"
)

var (
	ErrVaultAccess         = errors.New("unable to access secret vault")
	ErrVaultEntryNotFound  = errors.New("vault entry not found")
	ErrCannotLockVault     = errors.New("cannot acquire vault lock")
	ErrUnableToClearVault  = errors.New("failed to clear secret storage on OS")
	ErrUnableToTrackEntry  = errors.New("unable to track vault entry")
	ErrUnableToListEntries = errors.New("unable to list tracked vault entries")
)

const vaultIndexSection = "entry"

// KeyringApi is the narrow surface of the OS keychain the vault depends on.
type KeyringApi interface {
	Set(service, user, password string) error
	Get(service, user string) (string, error)
	Delete(service, user string) error
}

// keyRingImpl is the default keyring implementation.
type keyRingImpl struct{}

func (k *keyRingImpl) Set(service, user, password string) error {
	return keyring.Set(service, user, password)
}
func (k *keyRingImpl) Get(service, user string) (string, error) {
	return keyring.Get(service, user)
}
func (k *keyRingImpl) Delete(service, user string) error {
	return keyring.Delete(service, user)
}

// SecretVault is a namespaced key->string store over the OS keychain. Writes
// are serialized behind a lockgate file lock so concurrent broker processes
// do not interleave save/track operations. Every key ever written is tracked
// in a local ini index so ClearAll can enumerate what the keychain cannot.
type SecretVault struct {
	namespace    string
	indexFile    string
	keyring      KeyringApi
	locker       lockgate.Locker
	lockResource string
}

func NewSecretVault(namespace, baseDir string) (*SecretVault, error) {
	lockDir := path.Join(baseDir, fmt.Sprintf(".%s-vault-lock", namespace))
	locker, err := file_locker.NewFileLocker(lockDir)
	if err != nil {
		return nil, fmt.Errorf("cannot setup lock dir: %s", lockDir)
	}

	indexFile := path.Join(baseDir, fmt.Sprintf(".%s.ini", namespace))
	if _, err := os.Stat(indexFile); os.IsNotExist(err) {
		if err := os.WriteFile(indexFile, []byte{}, 0600); err != nil {
			return nil, fmt.Errorf("%s, %w", err, ErrVaultAccess)
		}
	}

	return &SecretVault{
		namespace:    namespace,
		indexFile:    indexFile,
		keyring:      &keyRingImpl{},
		locker:       locker,
		lockResource: namespace,
	}, nil
}

func (v *SecretVault) WithKeyring(k KeyringApi) *SecretVault {
	v.keyring = k
	return v
}

func (v *SecretVault) ensureLock() (func(), error) {
	acquired, lock, err := v.locker.Acquire(v.lockResource, lockgate.AcquireOptions{Shared: false, Timeout: 1 * time.Minute})
	if err != nil || !acquired {
		return nil, fmt.Errorf("%s, %w", err, ErrCannotLockVault)
	}
	return func() {
		_ = v.locker.Release(lock)
	}, nil
}

// Get returns the stored value for key, or ErrVaultEntryNotFound.
func (v *SecretVault) Get(key string) (string, error) {
	val, err := v.keyring.Get(v.namespace, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%s, %w", key, ErrVaultEntryNotFound)
		}
		return "", fmt.Errorf("%s, %w", err, ErrVaultAccess)
	}
	return val, nil
}

// Set writes key=value and records the key in the local index.
func (v *SecretVault) Set(key, value string) error {
	release, err := v.ensureLock()
	if err != nil {
		return err
	}
	defer release()

	if err := v.trackEntry(key); err != nil {
		return err
	}
	if err := v.keyring.Set(v.namespace, key, value); err != nil {
		return fmt.Errorf("%s, %w", err, ErrVaultAccess)
	}
	return nil
}

func (v *SecretVault) Delete(key string) error {
	if err := v.keyring.Delete(v.namespace, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%s, %w", err, ErrVaultAccess)
	}
	return nil
}

// ClearAll removes every tracked entry from the OS keychain and resets the
// index file.
func (v *SecretVault) ClearAll() error {
	release, err := v.ensureLock()
	if err != nil {
		return err
	}
	defer release()

	keys, err := v.trackedEntries()
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := v.keyring.Delete(v.namespace, k); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("%s, %w", err, ErrUnableToClearVault)
		}
	}
	return os.WriteFile(v.indexFile, []byte{}, 0600)
}

func (v *SecretVault) trackEntry(key string) error {
	cfg, err := ini.Load(v.indexFile)
	if err != nil {
		return fmt.Errorf("%s, %w", err, ErrUnableToTrackEntry)
	}
	section := fmt.Sprintf("%s.%s", vaultIndexSection, EntryKeyConverter(key))
	if !cfg.HasSection(section) {
		sct, err := cfg.NewSection(section)
		if err != nil {
			return err
		}
		sct.Key("name").SetValue(key)
		return cfg.SaveTo(v.indexFile)
	}
	return nil
}

func (v *SecretVault) trackedEntries() ([]string, error) {
	keys := []string{}
	cfg, err := ini.Load(v.indexFile)
	if err != nil {
		return nil, fmt.Errorf("%s, %w", err, ErrUnableToListEntries)
	}
	for _, sct := range cfg.Section(vaultIndexSection).ChildSections() {
		if name := sct.Key("name").String(); name != "" {
			keys = append(keys, name)
		}
	}
	return keys, nil
}

// EntryKeyConverter flattens a vault key into an ini-section-safe token.
func EntryKeyConverter(key string) string {
	return strings.ReplaceAll(strings.ReplaceAll(key, ":", "_"), "/", "____")
}

// IamUserKeyNames derives the deterministic vault keys under which a plain
// account's long-lived access key pair is stored.
func IamUserKeyNames(accountName, user string) (accessKey string, secretKey string) {
	base := fmt.Sprintf("%s___%s", accountName, user)
	return base + "___access-key-id", base + "___secret-access-key"
}
