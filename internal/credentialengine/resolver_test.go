package credentialengine_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dnitsch/aws-session-broker/internal/credentialengine"
	"github.com/dnitsch/aws-session-broker/internal/workspace"
)

type stubParents struct {
	parent *workspace.Session
	err    error
}

func (p *stubParents) ParentSession(s *workspace.Session) (*workspace.Session, error) {
	return p.parent, p.err
}

func Test_ResolveCategory(t *testing.T) {
	ttests := map[string]struct {
		kind       workspace.AccountKind
		parentKind workspace.AccountKind
		parentErr  error
		want       credentialengine.Category
		wantErr    error
	}{
		"plain": {
			kind: workspace.KindPlain,
			want: credentialengine.CategoryPlain,
		},
		"federated": {
			kind: workspace.KindFederated,
			want: credentialengine.CategoryFederated,
		},
		"truster of plain": {
			kind:       workspace.KindTruster,
			parentKind: workspace.KindPlain,
			want:       credentialengine.CategoryTrusterFromPlain,
		},
		"truster of federated": {
			kind:       workspace.KindTruster,
			parentKind: workspace.KindFederated,
			want:       credentialengine.CategoryTrusterFromFederated,
		},
		"truster of sso": {
			kind:       workspace.KindTruster,
			parentKind: workspace.KindSso,
			want:       credentialengine.CategoryTrusterFromSso,
		},
		"truster of truster is not derivable": {
			kind:       workspace.KindTruster,
			parentKind: workspace.KindTruster,
			want:       credentialengine.CategoryPassthrough,
			wantErr:    credentialengine.ErrUnknownParentKind,
		},
		"truster with missing parent propagates resolution error": {
			kind:      workspace.KindTruster,
			parentErr: fmt.Errorf("gone, %w", workspace.ErrParentNotFound),
			want:      credentialengine.CategoryPassthrough,
			wantErr:   workspace.ErrParentNotFound,
		},
		"sso session itself passes through": {
			kind: workspace.KindSso,
			want: credentialengine.CategoryPassthrough,
		},
		"unknown kind passes through": {
			kind: workspace.AccountKind("azure"),
			want: credentialengine.CategoryPassthrough,
		},
	}

	for name, tt := range ttests {
		t.Run(name, func(t *testing.T) {
			sess := &workspace.Session{ID: "s1", Account: workspace.Account{Kind: tt.kind, ParentID: "p1"}}
			parents := &stubParents{err: tt.parentErr}
			if tt.parentKind != "" {
				parents.parent = &workspace.Session{ID: "p1", Account: workspace.Account{Kind: tt.parentKind}}
			}

			got, err := credentialengine.ResolveCategory(sess, parents)

			if got != tt.want {
				t.Errorf("wanted %s got %s", tt.want, got)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("wanted %v got %v", tt.wantErr, err)
			}
			if tt.wantErr == nil && err != nil {
				t.Errorf("unexpected error %v", err)
			}
		})
	}
}
