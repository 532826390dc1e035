package credentialengine

import (
	"errors"
	"fmt"
	"os"
	"path"
	"sync"

	ini "gopkg.in/ini.v1"
)

var ErrCredentialFile = errors.New("unable to write credential file")

// CredentialFileApi is the writer surface the engine drives. Write upserts
// exactly one profile section; Clear removes every section so a terminal
// failure never leaves stale active-looking credentials on disk.
type CredentialFileApi interface {
	Write(profileName string, creds *AWSCredentials, region string) error
	Clear() error
}

// IniCredentialFile writes the shared AWS credentials file. The file holds at
// most one section per profile name; a new write for a profile supersedes the
// previous one in place.
type IniCredentialFile struct {
	path string
	mu   sync.Mutex
}

func NewIniCredentialFile(filePath string) *IniCredentialFile {
	return &IniCredentialFile{path: filePath}
}

// DefaultCredentialFilePath honours AWS_SHARED_CREDENTIALS_FILE before
// falling back to ~/.aws/credentials.
func DefaultCredentialFilePath(homeDir string) string {
	if overridden, exists := os.LookupEnv("AWS_SHARED_CREDENTIALS_FILE"); exists {
		return overridden
	}
	return path.Join(homeDir, ".aws", "credentials")
}

func (f *IniCredentialFile) Write(profileName string, creds *AWSCredentials, region string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.ensureFile(); err != nil {
		return err
	}
	cfg, err := ini.Load(f.path)
	if err != nil {
		return fmt.Errorf("%s, %w", err, ErrCredentialFile)
	}

	cfg.DeleteSection(profileName)
	section := cfg.Section(profileName)
	section.Key("aws_access_key_id").SetValue(creds.AWSAccessKey)
	section.Key("aws_secret_access_key").SetValue(creds.AWSSecretKey)
	if creds.AWSSessionToken != "" {
		section.Key("aws_session_token").SetValue(creds.AWSSessionToken)
	}
	if region != "" && region != NO_REGION_REQUIRED {
		section.Key("region").SetValue(region)
	}

	if err := cfg.SaveTo(f.path); err != nil {
		return fmt.Errorf("%s, %w", err, ErrCredentialFile)
	}
	return nil
}

// Clear truncates the whole file, dropping all profile sections.
func (f *IniCredentialFile) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(path.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("%s, %w", err, ErrCredentialFile)
	}
	if err := os.WriteFile(f.path, []byte{}, 0600); err != nil {
		return fmt.Errorf("%s, %w", err, ErrCredentialFile)
	}
	return nil
}

func (f *IniCredentialFile) ensureFile() error {
	if err := os.MkdirAll(path.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("%s, %w", err, ErrCredentialFile)
	}
	if _, err := os.Stat(f.path); os.IsNotExist(err) {
		return os.WriteFile(f.path, []byte{}, 0600)
	}
	return nil
}
