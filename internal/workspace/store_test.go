package workspace_test

import (
	"errors"
	"testing"

	"github.com/dnitsch/aws-session-broker/internal/workspace"
)

func newTestStore(t *testing.T) *workspace.FileStore {
	t.Helper()
	store, err := workspace.NewFileStore(t.TempDir(), "broker-test")
	if err != nil {
		t.Fatalf("cannot build store: %v", err)
	}
	return store
}

func Test_GetWorkspace_missing_file_yields_empty_workspace(t *testing.T) {
	store := newTestStore(t)

	ws, err := store.GetWorkspace()
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if len(ws.Sessions) != 0 || len(ws.Profiles) != 0 {
		t.Errorf("wanted empty workspace, got %+v", ws)
	}
}

func Test_AddSession_assigns_id_and_persists(t *testing.T) {
	store := newTestStore(t)

	id, err := store.AddSession(workspace.Session{
		ProfileID: "p1",
		Account:   workspace.Account{Kind: workspace.KindPlain, AccountName: "acc1", User: "gary"},
	})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if id == "" {
		t.Fatal("wanted an assigned id")
	}

	ws, err := store.GetWorkspace()
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	sess := ws.FindSession(id)
	if sess == nil {
		t.Fatalf("session %s not persisted", id)
	}
	if sess.Account.AccountName != "acc1" {
		t.Errorf("unexpected session %+v", sess)
	}
}

func Test_MutateSession_persists_flag_triple(t *testing.T) {
	store := newTestStore(t)
	id, err := store.AddSession(workspace.Session{Account: workspace.Account{Kind: workspace.KindPlain, AccountName: "acc1"}})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	err = store.MutateSession(id, func(s *workspace.Session) {
		s.Active = true
		s.Loading = false
		s.Complete = true
	})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	ws, _ := store.GetWorkspace()
	sess := ws.FindSession(id)
	if !sess.Active || sess.Loading || !sess.Complete {
		t.Errorf("flags not persisted: %+v", sess)
	}
}

func Test_MutateSession_unknown_id(t *testing.T) {
	store := newTestStore(t)

	err := store.MutateSession("no-such-session", func(s *workspace.Session) {})
	if !errors.Is(err, workspace.ErrSessionNotFound) {
		t.Errorf("wanted ErrSessionNotFound got %v", err)
	}
}

func Test_ParentSession(t *testing.T) {
	store := newTestStore(t)
	parentID, err := store.AddSession(workspace.Session{Account: workspace.Account{Kind: workspace.KindPlain, AccountName: "parent-acc"}})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	trusterID, err := store.AddSession(workspace.Session{Account: workspace.Account{
		Kind:        workspace.KindTruster,
		AccountName: "truster-acc",
		ParentID:    parentID,
	}})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	ws, _ := store.GetWorkspace()
	truster := ws.FindSession(trusterID)

	parent, err := store.ParentSession(truster)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if parent.Account.AccountName != "parent-acc" {
		t.Errorf("resolved wrong parent %+v", parent)
	}

	orphan := &workspace.Session{Account: workspace.Account{Kind: workspace.KindTruster, ParentID: "gone"}}
	if _, err := store.ParentSession(orphan); !errors.Is(err, workspace.ErrParentNotFound) {
		t.Errorf("wanted ErrParentNotFound got %v", err)
	}
}

func Test_ProfileName_falls_back_to_default(t *testing.T) {
	ws := &workspace.Workspace{Profiles: []workspace.Profile{{ID: "p1", Name: "work"}}}

	if got := ws.ProfileName("p1"); got != "work" {
		t.Errorf("got %s", got)
	}
	if got := ws.ProfileName("unknown"); got != "default" {
		t.Errorf("wanted default got %s", got)
	}
	if got := ws.ProfileName(""); got != "default" {
		t.Errorf("wanted default got %s", got)
	}
}
