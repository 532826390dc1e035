package workspace

// AccountKind tags the credential topology of a session's account.
type AccountKind string

const (
	KindPlain     AccountKind = "plain"
	KindFederated AccountKind = "federated"
	KindTruster   AccountKind = "truster"
	KindSso       AccountKind = "sso"
)

// Role is the target role inside an account.
type Role struct {
	Name string `json:"name"`
}

// Account is a tagged union over the supported topologies. Which fields are
// meaningful depends on Kind: User/MfaDevice only for plain accounts,
// Role for federated/truster/sso, IdpURL/IdpArn only for federated accounts,
// ParentID only for truster accounts and holds the session id (not account
// name) of the seeding session.
type Account struct {
	Kind          AccountKind `json:"kind"`
	AccountName   string      `json:"accountName"`
	AccountNumber string      `json:"accountNumber"`
	User          string      `json:"user,omitempty"`
	MfaDevice     string      `json:"mfaDevice,omitempty"`
	Role          Role        `json:"role,omitempty"`
	IdpURL        string      `json:"idpUrl,omitempty"`
	IdpArn        string      `json:"idpArn,omitempty"`
	ParentID      string      `json:"parent,omitempty"`
	Region        string      `json:"region,omitempty"`
}

// MfaRequired reports whether the account declares an MFA device.
func (a Account) MfaRequired() bool {
	return a.MfaDevice != ""
}

// Session is one user-visible credential slot. The Active/Loading/Complete
// triple is always updated together and persisted before any terminal side
// effect of a derivation becomes observable.
type Session struct {
	ID        string  `json:"id"`
	ProfileID string  `json:"profileId"`
	Account   Account `json:"account"`
	Active    bool    `json:"active"`
	Loading   bool    `json:"loading"`
	Complete  bool    `json:"complete"`
}

// Profile maps a profile id to the section name written to the AWS
// credentials file.
type Profile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Workspace is the shared session list plus profile name table.
type Workspace struct {
	Sessions []Session `json:"sessions"`
	Profiles []Profile `json:"profiles"`
}

// ProfileName resolves a profile id to its credentials-file section name,
// falling back to "default" when the id is unknown or empty.
func (w *Workspace) ProfileName(profileID string) string {
	for _, p := range w.Profiles {
		if p.ID == profileID {
			return p.Name
		}
	}
	return "default"
}

// FindSession returns a pointer into the workspace's session slice, or nil.
func (w *Workspace) FindSession(id string) *Session {
	for i := range w.Sessions {
		if w.Sessions[i].ID == id {
			return &w.Sessions[i]
		}
	}
	return nil
}
