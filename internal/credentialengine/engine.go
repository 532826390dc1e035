package credentialengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dnitsch/aws-session-broker/internal/workspace"
)

var (
	ErrSessionUnknown       = errors.New("session is not in the workspace")
	ErrNoFederatedRefresher = errors.New("no federated refresh collaborator wired")
	ErrNoSsoPortal          = errors.New("no sso portal client wired")
)

// Registry is the session registry collaborator: the shared workspace read
// and written by every pipeline. MutateSession must be atomic with respect
// to concurrent pipelines touching other sessions in the same collection.
type Registry interface {
	GetWorkspace() (*workspace.Workspace, error)
	MutateSession(id string, fn func(*workspace.Session)) error
	ParentSession(s *workspace.Session) (*workspace.Session, error)
}

// FederatedRefresher is the external collaborator the federated categories
// delegate to; the engine only wraps its result in uniform terminal-state
// handling and timer scheduling.
type FederatedRefresher interface {
	RefreshCredentials(ctx context.Context, s *workspace.Session) (*AWSCredentials, error)
}

// SsoPortal is the engine-facing surface of the Identity Center client.
type SsoPortal interface {
	GetPortalCredentials(ctx context.Context) (*PortalCredentials, error)
	GetRoleCredentials(ctx context.Context, accessToken, accountNumber, roleName string) (*AWSCredentials, error)
}

// RefreshScheduler re-invokes the engine for a session ahead of the given
// expiration.
type RefreshScheduler interface {
	ScheduleRefresh(sessionID string, expires time.Time)
}

type derivation struct {
	gen    uint64
	cancel context.CancelFunc
}

// Engine derives credentials per resolved category and drives the session
// state machine Idle -> Resolving -> (AwaitingMfa?) -> Issuing ->
// {Committed | Aborted | Failed}. At most one derivation is in flight per
// session: starting a new one cancels the prior one, and a superseded
// pipeline abandons all further side effects instead of racing the winner.
type Engine struct {
	cfg          EngineConfig
	vault        VaultApi
	plainCache   *SessionTokenCache
	trusterCache *SessionTokenCache
	credFile     CredentialFileApi
	registry     Registry
	mfa          MfaPrompter
	stsFactory   StsApiFactory
	sso          SsoPortal
	federated    FederatedRefresher
	scheduler    RefreshScheduler
	log          *log.Logger

	mu       sync.Mutex
	gen      uint64
	inflight map[string]*derivation
}

func NewEngine(cfg EngineConfig, vault VaultApi, credFile CredentialFileApi, registry Registry, mfa MfaPrompter, logger *log.Logger) *Engine {
	return &Engine{
		cfg:          cfg,
		vault:        vault,
		plainCache:   NewSessionTokenCache(vault, PlainToken),
		trusterCache: NewSessionTokenCache(vault, TrusterToken),
		credFile:     credFile,
		registry:     registry,
		mfa:          mfa,
		stsFactory:   NewStsApi,
		log:          logger,
		inflight:     map[string]*derivation{},
	}
}

func (e *Engine) WithStsFactory(f StsApiFactory) *Engine {
	e.stsFactory = f
	return e
}

func (e *Engine) WithSsoPortal(p SsoPortal) *Engine {
	e.sso = p
	return e
}

func (e *Engine) WithFederatedRefresher(f FederatedRefresher) *Engine {
	e.federated = f
	return e
}

func (e *Engine) WithScheduler(s RefreshScheduler) *Engine {
	e.scheduler = s
	return e
}

// Refresh runs one derivation for the named session. A raw provider error
// never escapes: every failure path lands in a single summarized Outcome,
// with flags and the on-disk credential file left consistent.
func (e *Engine) Refresh(ctx context.Context, sessionID string) Outcome {
	runCtx, cleanup := e.beginDerivation(ctx, sessionID)
	defer cleanup()

	ws, err := e.registry.GetWorkspace()
	if err != nil {
		return e.fail(runCtx, sessionID, err)
	}
	sess := ws.FindSession(sessionID)
	if sess == nil {
		return Outcome{Status: OutcomeFailed, Err: fmt.Errorf("%s, %w", sessionID, ErrSessionUnknown)}
	}
	profileName := ws.ProfileName(sess.ProfileID)

	category, err := ResolveCategory(sess, e.registry)
	if err != nil {
		return e.fail(runCtx, sessionID, err)
	}

	e.log.Debug("derivation resolved", "session", sessionID, "category", category.String())

	switch category {
	case CategoryPlain:
		return e.derivePlain(runCtx, sess, profileName)
	case CategoryTrusterFromPlain:
		return e.deriveTrusterFromPlain(runCtx, sess, profileName)
	case CategoryTrusterFromSso:
		return e.deriveTrusterFromSso(runCtx, sess, profileName)
	case CategoryFederated, CategoryTrusterFromFederated:
		return e.deriveFederated(runCtx, sess)
	}
	// out-of-scope variant: pass-through success, nothing touched
	return Outcome{Status: OutcomeSkipped}
}

// beginDerivation replaces any in-flight derivation for the session. The
// returned cleanup only evicts the slot if it still belongs to this run.
func (e *Engine) beginDerivation(ctx context.Context, sessionID string) (context.Context, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if prev, ok := e.inflight[sessionID]; ok {
		prev.cancel()
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.gen++
	d := &derivation{gen: e.gen, cancel: cancel}
	e.inflight[sessionID] = d

	return runCtx, func() {
		cancel()
		e.mu.Lock()
		defer e.mu.Unlock()
		if cur, ok := e.inflight[sessionID]; ok && cur.gen == d.gen {
			delete(e.inflight, sessionID)
		}
	}
}

func (e *Engine) derivePlain(ctx context.Context, sess *workspace.Session, profileName string) Outcome {
	keys, err := e.iamUserKeys(sess.Account)
	if err != nil {
		return e.fail(ctx, sess.ID, err)
	}

	if cached, hit, err := e.plainCache.Lookup(sess.Account.AccountName); err != nil {
		return e.fail(ctx, sess.ID, err)
	} else if hit {
		return e.commit(ctx, sess, profileName, cached)
	}

	mfaCode := ""
	if sess.Account.MfaRequired() {
		mfaCode, err = e.mfa.Challenge(ctx, sess.Account.MfaDevice)
		if err != nil {
			if errors.Is(err, ErrMfaCancelled) {
				return e.abort(ctx, sess.ID)
			}
			return e.fail(ctx, sess.ID, err)
		}
	}

	svc, err := e.stsFactory(ctx, sess.Account.Region, keys)
	if err != nil {
		return e.fail(ctx, sess.ID, err)
	}
	token, err := GetSessionToken(ctx, svc, e.cfg.sessionTokenDuration(), sess.Account.MfaDevice, mfaCode)
	if err != nil {
		return e.fail(ctx, sess.ID, err)
	}
	if err := e.plainCache.Store(sess.Account.AccountName, token); err != nil {
		return e.fail(ctx, sess.ID, err)
	}

	return e.commit(ctx, sess, profileName, token)
}

func (e *Engine) deriveTrusterFromPlain(ctx context.Context, sess *workspace.Session, profileName string) Outcome {
	parent, err := e.registry.ParentSession(sess)
	if err != nil {
		return e.fail(ctx, sess.ID, err)
	}

	basis, hit, err := e.trusterCache.Lookup(parent.Account.AccountName)
	if err != nil {
		return e.fail(ctx, sess.ID, err)
	}
	if !hit {
		keys, err := e.iamUserKeys(parent.Account)
		if err != nil {
			return e.fail(ctx, sess.ID, err)
		}

		mfaCode := ""
		if parent.Account.MfaRequired() {
			mfaCode, err = e.mfa.Challenge(ctx, parent.Account.MfaDevice)
			if err != nil {
				if errors.Is(err, ErrMfaCancelled) {
					return e.abort(ctx, sess.ID)
				}
				return e.fail(ctx, sess.ID, err)
			}
		}

		svc, err := e.stsFactory(ctx, sess.Account.Region, keys)
		if err != nil {
			return e.fail(ctx, sess.ID, err)
		}
		basis, err = GetSessionToken(ctx, svc, e.cfg.sessionTokenDuration(), parent.Account.MfaDevice, mfaCode)
		if err != nil {
			return e.fail(ctx, sess.ID, err)
		}
		// the parent token is the directly-produced artifact of a successful
		// step; the assume-role result below is never cached
		if err := e.trusterCache.Store(parent.Account.AccountName, basis); err != nil {
			return e.fail(ctx, sess.ID, err)
		}
	}

	creds, err := e.assumeTargetRole(ctx, sess, basis)
	if err != nil {
		return e.fail(ctx, sess.ID, err)
	}
	return e.commit(ctx, sess, profileName, creds)
}

func (e *Engine) deriveTrusterFromSso(ctx context.Context, sess *workspace.Session, profileName string) Outcome {
	if e.sso == nil {
		return e.fail(ctx, sess.ID, ErrNoSsoPortal)
	}
	parent, err := e.registry.ParentSession(sess)
	if err != nil {
		return e.fail(ctx, sess.ID, err)
	}

	portal, err := e.sso.GetPortalCredentials(ctx)
	if err != nil {
		return e.fail(ctx, sess.ID, err)
	}
	basis, err := e.sso.GetRoleCredentials(ctx, portal.AccessToken, parent.Account.AccountNumber, parent.Account.Role.Name)
	if err != nil {
		return e.fail(ctx, sess.ID, err)
	}

	creds, err := e.assumeTargetRole(ctx, sess, basis)
	if err != nil {
		return e.fail(ctx, sess.ID, err)
	}
	return e.commit(ctx, sess, profileName, creds)
}

func (e *Engine) deriveFederated(ctx context.Context, sess *workspace.Session) Outcome {
	if e.federated == nil {
		return e.fail(ctx, sess.ID, ErrNoFederatedRefresher)
	}
	creds, err := e.federated.RefreshCredentials(ctx, sess)
	if err != nil {
		return e.fail(ctx, sess.ID, err)
	}

	// the collaborator owns the credential write; only wrap its result in
	// uniform state handling and timer scheduling
	if err := ctx.Err(); err != nil {
		return Outcome{Status: OutcomeAborted}
	}
	if err := e.setFlags(sess.ID, true, false, true); err != nil {
		return e.fail(ctx, sess.ID, err)
	}
	e.schedule(sess.ID, creds)
	return Outcome{Status: OutcomeIssued, Credentials: creds}
}

func (e *Engine) assumeTargetRole(ctx context.Context, sess *workspace.Session, basis *AWSCredentials) (*AWSCredentials, error) {
	svc, err := e.stsFactory(ctx, sess.Account.Region, basis)
	if err != nil {
		return nil, err
	}
	return AssumeRole(ctx, svc,
		RoleArn(sess.Account.AccountNumber, sess.Account.Role.Name),
		RoleSessionName(sess.Account.Role.Name, e.cfg.selfName()),
		ASSUME_ROLE_DURATION)
}

func (e *Engine) iamUserKeys(acc workspace.Account) (*AWSCredentials, error) {
	accessName, secretName := IamUserKeyNames(acc.AccountName, acc.User)
	access, err := e.vault.Get(accessName)
	if err != nil {
		return nil, err
	}
	secret, err := e.vault.Get(secretName)
	if err != nil {
		return nil, err
	}
	return &AWSCredentials{AWSAccessKey: access, AWSSecretKey: secret}, nil
}

// commit persists the flag triple before the credential write becomes
// observable, then materializes the profile and schedules the next refresh.
func (e *Engine) commit(ctx context.Context, sess *workspace.Session, profileName string, creds *AWSCredentials) Outcome {
	if err := ctx.Err(); err != nil {
		// superseded: the successor owns session state and the file now
		return Outcome{Status: OutcomeAborted}
	}
	if err := e.setFlags(sess.ID, true, false, true); err != nil {
		return e.fail(ctx, sess.ID, err)
	}
	if err := e.credFile.Write(profileName, creds, sess.Account.Region); err != nil {
		return e.fail(ctx, sess.ID, err)
	}
	e.schedule(sess.ID, creds)
	e.log.Debug("derivation committed", "session", sess.ID, "profile", profileName)
	return Outcome{Status: OutcomeIssued, Credentials: creds}
}

// fail lands every provider or store error: flags cleared and persisted,
// then the credential file cleaned so no stale active-looking entry remains.
func (e *Engine) fail(ctx context.Context, sessionID string, summary error) Outcome {
	if err := ctx.Err(); err != nil {
		return Outcome{Status: OutcomeAborted}
	}
	if err := e.setFlags(sessionID, false, false, false); err != nil {
		e.log.Error("failed to persist session flags", "session", sessionID, "err", err)
	}
	if err := e.credFile.Clear(); err != nil {
		e.log.Error("failed to clean credential file", "session", sessionID, "err", err)
	}
	e.log.Error("derivation failed", "session", sessionID, "err", summary)
	return Outcome{Status: OutcomeFailed, Err: summary}
}

// abort is the MFA-cancellation path: same flag reversion as fail but the
// file stays untouched and nothing is surfaced as an error.
func (e *Engine) abort(ctx context.Context, sessionID string) Outcome {
	if err := ctx.Err(); err != nil {
		return Outcome{Status: OutcomeAborted}
	}
	if err := e.setFlags(sessionID, false, false, false); err != nil {
		e.log.Error("failed to persist session flags", "session", sessionID, "err", err)
	}
	e.log.Debug("derivation aborted by user", "session", sessionID)
	return Outcome{Status: OutcomeAborted}
}

func (e *Engine) setFlags(sessionID string, active, loading, complete bool) error {
	return e.registry.MutateSession(sessionID, func(s *workspace.Session) {
		s.Active = active
		s.Loading = loading
		s.Complete = complete
	})
}

func (e *Engine) schedule(sessionID string, creds *AWSCredentials) {
	if e.scheduler != nil && !creds.Expires.IsZero() {
		e.scheduler.ScheduleRefresh(sessionID, creds.Expires)
	}
}
