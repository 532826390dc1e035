package credentialengine

import (
	"errors"
	"fmt"

	"github.com/dnitsch/aws-session-broker/internal/workspace"
)

var ErrUnknownParentKind = errors.New("truster parent has no derivable category")

// Category is the derivation route a session resolves to.
type Category int

const (
	// CategoryPassthrough - variants this engine does not derive for (e.g. a
	// non-truster SSO session handled by the portal login flow). Needed so a
	// batch refresh over heterogeneous sessions never fails merely because
	// one entry is out of scope.
	CategoryPassthrough Category = iota
	CategoryPlain
	CategoryFederated
	CategoryTrusterFromFederated
	CategoryTrusterFromPlain
	CategoryTrusterFromSso
)

func (c Category) String() string {
	switch c {
	case CategoryPlain:
		return "plain"
	case CategoryFederated:
		return "federated"
	case CategoryTrusterFromFederated:
		return "truster-from-federated"
	case CategoryTrusterFromPlain:
		return "truster-from-plain"
	case CategoryTrusterFromSso:
		return "truster-from-sso"
	}
	return "passthrough"
}

// ParentResolver looks a truster session's seeding session up by reference.
type ParentResolver interface {
	ParentSession(s *workspace.Session) (*workspace.Session, error)
}

// ResolveCategory classifies a session by its account variant and, for
// truster accounts, by the variant of its parent session.
func ResolveCategory(s *workspace.Session, parents ParentResolver) (Category, error) {
	switch s.Account.Kind {
	case workspace.KindPlain:
		return CategoryPlain, nil
	case workspace.KindFederated:
		return CategoryFederated, nil
	case workspace.KindTruster:
		parent, err := parents.ParentSession(s)
		if err != nil {
			return CategoryPassthrough, err
		}
		switch parent.Account.Kind {
		case workspace.KindPlain:
			return CategoryTrusterFromPlain, nil
		case workspace.KindFederated:
			return CategoryTrusterFromFederated, nil
		case workspace.KindSso:
			return CategoryTrusterFromSso, nil
		}
		return CategoryPassthrough, fmt.Errorf("%s, %w", parent.Account.Kind, ErrUnknownParentKind)
	}
	return CategoryPassthrough, nil
}
