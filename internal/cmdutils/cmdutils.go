package cmdutils

import (
	"context"
	"errors"
	"fmt"

	"github.com/dnitsch/aws-session-broker/internal/credentialengine"
	"github.com/dnitsch/aws-session-broker/internal/workspace"
)

var ErrNothingToRefresh = errors.New("no matching session")

// EngineApi is the derivation surface the commands drive.
type EngineApi interface {
	Refresh(ctx context.Context, sessionID string) credentialengine.Outcome
}

// RegistryApi is the workspace surface the commands consume.
type RegistryApi interface {
	GetWorkspace() (*workspace.Workspace, error)
	MutateSession(id string, fn func(*workspace.Session)) error
}

// SessionOutcome pairs a session with its derivation result for reporting.
type SessionOutcome struct {
	SessionID string
	Profile   string
	Outcome   credentialengine.Outcome
}

// RefreshActiveSessions runs one derivation per active session. A single
// failing or aborted entry never short-circuits the batch; each terminal
// state is reported alongside its session.
func RefreshActiveSessions(ctx context.Context, engine EngineApi, registry RegistryApi) ([]SessionOutcome, error) {
	ws, err := registry.GetWorkspace()
	if err != nil {
		return nil, err
	}

	results := []SessionOutcome{}
	for _, sess := range ws.Sessions {
		if !sess.Active {
			continue
		}
		results = append(results, SessionOutcome{
			SessionID: sess.ID,
			Profile:   ws.ProfileName(sess.ProfileID),
			Outcome:   engine.Refresh(ctx, sess.ID),
		})
	}
	return results, nil
}

// StartSession flags the slot as loading, persists that, then derives.
func StartSession(ctx context.Context, engine EngineApi, registry RegistryApi, sessionID string) (credentialengine.Outcome, error) {
	if err := registry.MutateSession(sessionID, func(s *workspace.Session) {
		s.Active = true
		s.Loading = true
		s.Complete = false
	}); err != nil {
		return credentialengine.Outcome{}, err
	}
	return engine.Refresh(ctx, sessionID), nil
}

// StopSession reverts the flag triple and persists it.
func StopSession(registry RegistryApi, sessionID string) error {
	return registry.MutateSession(sessionID, func(s *workspace.Session) {
		s.Active = false
		s.Loading = false
		s.Complete = false
	})
}

// FindSessionID resolves a user-supplied session id or account name against
// the workspace.
func FindSessionID(registry RegistryApi, idOrName string) (string, error) {
	ws, err := registry.GetWorkspace()
	if err != nil {
		return "", err
	}
	for _, s := range ws.Sessions {
		if s.ID == idOrName || s.Account.AccountName == idOrName {
			return s.ID, nil
		}
	}
	return "", fmt.Errorf("%s, %w", idOrName, ErrNothingToRefresh)
}
