package service

import (
	"context"
	"errors"
	"testing"

	"github.com/philboiv1n/todolist/internal/model"
)

func TestListCreateGrantsEdit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.user("alice", false)

	list, err := e.listSvc.Create(ctx, user.ID, "Groceries")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if list.CreatedBy == nil || *list.CreatedBy != user.ID {
		t.Errorf("created_by = %v, want %d", list.CreatedBy, user.ID)
	}
	access, err := e.listRepo.AccessRow(ctx, list.ID, user.ID)
	if err != nil {
		t.Fatalf("creator grant missing: %v", err)
	}
	if !access.CanEdit {
		t.Error("creator grant is not editable")
	}

	if _, err := e.listSvc.Create(ctx, user.ID, "  "); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank name err = %v, want ErrInvalidInput", err)
	}
}

func TestListDeleteCascades(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := e.user("alice", false)
	viewer := e.user("bob", false)

	doomed := e.list(owner.ID, "Doomed")
	kept := e.list(owner.ID, "Kept")
	e.grant(doomed.ID, viewer.ID, false)

	e.task(doomed.ID, owner.ID, "gone 1", "", "")
	e.task(doomed.ID, owner.ID, "gone 2", "2024-05-01", "")
	survivor := e.task(kept.ID, owner.ID, "stays", "", "")

	if err := e.listSvc.Delete(ctx, owner.ID, doomed.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	var taskCount int64
	if err := e.db.Model(&model.Task{}).Where("list_id = ?", doomed.ID).
		Count(&taskCount).Error; err != nil {
		t.Fatalf("count tasks: %v", err)
	}
	if taskCount != 0 {
		t.Errorf("tasks left in deleted list = %d, want 0", taskCount)
	}
	var grantCount int64
	if err := e.db.Model(&model.ListAccess{}).Where("list_id = ?", doomed.ID).
		Count(&grantCount).Error; err != nil {
		t.Fatalf("count grants: %v", err)
	}
	if grantCount != 0 {
		t.Errorf("grants left on deleted list = %d, want 0", grantCount)
	}

	// Same author, other list: untouched.
	if got := e.reload(survivor.ID); got.Title != "stays" {
		t.Errorf("survivor task damaged: %+v", got)
	}
	if _, err := e.listRepo.FindByID(ctx, kept.ID); err != nil {
		t.Errorf("kept list gone: %v", err)
	}
}

func TestListManageGating(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := e.user("alice", false)
	editor := e.user("bob", false)
	admin := e.user("root", true)
	list := e.list(owner.ID, "Shared")
	e.grant(list.ID, editor.ID, true)

	// An edit grant does not confer management.
	if err := e.listSvc.Rename(ctx, editor.ID, list.ID, "Hijacked"); !errors.Is(err, ErrForbidden) {
		t.Errorf("editor rename err = %v, want ErrForbidden", err)
	}
	if err := e.listSvc.Delete(ctx, editor.ID, list.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("editor delete err = %v, want ErrForbidden", err)
	}
	if err := e.listSvc.SetAccess(ctx, editor.ID, list.ID, admin.ID, true); !errors.Is(err, ErrForbidden) {
		t.Errorf("editor share err = %v, want ErrForbidden", err)
	}

	// Admins manage any list without holding a grant.
	if err := e.listSvc.Rename(ctx, admin.ID, list.ID, "Renamed"); err != nil {
		t.Errorf("admin rename: %v", err)
	}

	if err := e.listSvc.Rename(ctx, owner.ID, 9999, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing list err = %v, want ErrNotFound", err)
	}
}

func TestSetAccessOwnerKeepsEdit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := e.user("alice", false)
	list := e.list(owner.ID, "Mine")

	// Downgrading the creator to read-only is silently kept editable.
	if err := e.listSvc.SetAccess(ctx, owner.ID, list.ID, owner.ID, false); err != nil {
		t.Fatalf("SetAccess: %v", err)
	}
	access, err := e.listRepo.AccessRow(ctx, list.ID, owner.ID)
	if err != nil {
		t.Fatalf("AccessRow: %v", err)
	}
	if !access.CanEdit {
		t.Error("creator lost edit on own list")
	}
}

func TestRemoveAccessRejectsOwner(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := e.user("alice", false)
	viewer := e.user("bob", false)
	list := e.list(owner.ID, "Shared")
	e.grant(list.ID, viewer.ID, false)

	if err := e.listSvc.RemoveAccess(ctx, owner.ID, list.ID, owner.ID); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("remove own grant err = %v, want ErrInvalidInput", err)
	}
	if err := e.listSvc.RemoveAccess(ctx, owner.ID, list.ID, viewer.ID); err != nil {
		t.Fatalf("RemoveAccess: %v", err)
	}
	if _, err := e.listRepo.AccessRow(ctx, list.ID, viewer.ID); err == nil {
		t.Error("viewer grant still present after removal")
	}
}

func TestClearCompleted(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := e.user("alice", false)
	list := e.list(owner.ID, "Chores")

	open := e.task(list.ID, owner.ID, "open", "", "")
	done := e.task(list.ID, owner.ID, "done", "", "")
	if err := e.taskRepo.SetDone(ctx, done.ID, true); err != nil {
		t.Fatalf("SetDone: %v", err)
	}

	if err := e.listSvc.ClearCompleted(ctx, owner.ID, list.ID); err != nil {
		t.Fatalf("ClearCompleted: %v", err)
	}

	var remaining []model.Task
	if err := e.db.Where("list_id = ?", list.ID).Find(&remaining).Error; err != nil {
		t.Fatalf("load tasks: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != open.ID {
		t.Errorf("remaining = %+v, want only the open task", remaining)
	}
}

func TestSetOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.user("alice", false)
	a := e.list(user.ID, "A")
	b := e.list(user.ID, "B")
	c := e.list(user.ID, "C")

	if err := e.listSvc.SetOrder(ctx, user.ID, []uint{c.ID, a.ID, b.ID, 0}); err != nil {
		t.Fatalf("SetOrder: %v", err)
	}

	lists, err := e.listRepo.AccessibleTo(ctx, user.ID)
	if err != nil {
		t.Fatalf("AccessibleTo: %v", err)
	}
	var names []string
	for _, l := range lists {
		names = append(names, l.Name)
	}
	want := []string{"C", "A", "B"}
	for i := range want {
		if i >= len(names) || names[i] != want[i] {
			t.Fatalf("order = %v, want %v", names, want)
		}
	}
}

func TestSetOrderDisabled(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.user("alice", false)
	list := e.list(user.ID, "A")

	svc := NewListService(e.db, e.access, e.listRepo, e.userRepo, e.metaRepo, false)
	if err := svc.SetOrder(ctx, user.ID, []uint{list.ID}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("SetOrder err = %v, want ErrUnsupported", err)
	}
}

func TestChangeTokenAdvances(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.user("alice", false)

	before, err := e.listSvc.ChangeToken(ctx)
	if err != nil {
		t.Fatalf("ChangeToken: %v", err)
	}

	if _, err := e.listSvc.Create(ctx, user.ID, "Groceries"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	after, err := e.listSvc.ChangeToken(ctx)
	if err != nil {
		t.Fatalf("ChangeToken: %v", err)
	}
	if after <= before {
		t.Errorf("token did not advance: %d then %d", before, after)
	}

	// Back-to-back writes still move the token, even within one millisecond.
	var tokens []int64
	for i := 0; i < 3; i++ {
		if err := e.metaRepo.TouchChange(ctx); err != nil {
			t.Fatalf("TouchChange: %v", err)
		}
		tok, err := e.listSvc.ChangeToken(ctx)
		if err != nil {
			t.Fatalf("ChangeToken: %v", err)
		}
		tokens = append(tokens, tok)
	}
	for i := 1; i < len(tokens); i++ {
		if tokens[i] <= tokens[i-1] {
			t.Errorf("tokens not strictly increasing: %v", tokens)
		}
	}
}

func TestSetExpanded(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := e.user("alice", false)
	viewer := e.user("bob", false)
	stranger := e.user("carol", false)
	list := e.list(owner.ID, "Shared")
	e.grant(list.ID, viewer.ID, false)

	// Collapse state is per viewer and needs only view access.
	if err := e.listSvc.SetExpanded(ctx, viewer.ID, list.ID, false); err != nil {
		t.Fatalf("SetExpanded: %v", err)
	}
	if err := e.listSvc.SetExpanded(ctx, stranger.ID, list.ID, false); !errors.Is(err, ErrForbidden) {
		t.Errorf("stranger err = %v, want ErrForbidden", err)
	}

	access, err := e.listRepo.AccessRow(ctx, list.ID, viewer.ID)
	if err != nil {
		t.Fatalf("AccessRow: %v", err)
	}
	if access.IsExpanded {
		t.Error("viewer row still expanded")
	}
	ownerRow, err := e.listRepo.AccessRow(ctx, list.ID, owner.ID)
	if err != nil {
		t.Fatalf("AccessRow: %v", err)
	}
	if !ownerRow.IsExpanded {
		t.Error("collapse leaked onto the owner's row")
	}
}
