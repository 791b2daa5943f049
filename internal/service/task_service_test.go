package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/philboiv1n/todolist/internal/model"
)

func TestCreateTask(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := e.user("alice", false)
	list := e.list(owner.ID, "Groceries")

	t.Run("stores resolved preset rule", func(t *testing.T) {
		task, err := e.taskSvc.Create(ctx, owner.ID, CreateTaskInput{
			ListID:       list.ID,
			Title:        "Pay rent",
			DueDate:      "2024-01-31",
			RepeatPreset: "monthly",
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if task.RepeatRule == nil {
			t.Fatal("expected a stored repeat rule")
		}
		if got, want := *task.RepeatRule, `{"freq":"monthly","bymonthday":31}`; got != want {
			t.Errorf("rule = %s, want %s", got, want)
		}
		if task.DueDate == nil || *task.DueDate != "2024-01-31" {
			t.Errorf("due date = %v", task.DueDate)
		}
	})

	t.Run("no preset means no rule", func(t *testing.T) {
		task, err := e.taskSvc.Create(ctx, owner.ID, CreateTaskInput{
			ListID: list.ID, Title: "One-off",
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if task.RepeatRule != nil {
			t.Errorf("unexpected rule %s", *task.RepeatRule)
		}
	})

	t.Run("rejects empty title", func(t *testing.T) {
		_, err := e.taskSvc.Create(ctx, owner.ID, CreateTaskInput{ListID: list.ID, Title: "   "})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("err = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("rejects bad due date", func(t *testing.T) {
		_, err := e.taskSvc.Create(ctx, owner.ID, CreateTaskInput{
			ListID: list.ID, Title: "x", DueDate: "31/01/2024",
		})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("err = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("unknown list is not found", func(t *testing.T) {
		_, err := e.taskSvc.Create(ctx, owner.ID, CreateTaskInput{ListID: 9999, Title: "x"})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestToggleSpawnsSuccessor(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := e.user("alice", false)
	list := e.list(owner.ID, "Chores")

	// Weekly on Mon/Wed/Fri, due Wednesday 2024-01-03.
	task := e.task(list.ID, owner.ID, "Water plants", "2024-01-03",
		`{"freq":"weekly","byweekday":[1,3,5]}`)

	t.Run("early completion anchors to due date", func(t *testing.T) {
		e.fixedToday(2024, time.January, 2)
		listID, err := e.taskSvc.Toggle(ctx, owner.ID, task.ID)
		if err != nil {
			t.Fatalf("Toggle: %v", err)
		}
		if listID != list.ID {
			t.Errorf("affected list = %d, want %d", listID, list.ID)
		}
		if !e.reload(task.ID).IsDone {
			t.Error("task not marked done")
		}

		succ := e.successors(task.ID)
		if len(succ) != 1 {
			t.Fatalf("successors = %d, want 1", len(succ))
		}
		if succ[0].DueDate == nil || *succ[0].DueDate != "2024-01-05" {
			t.Errorf("successor due = %v, want 2024-01-05", succ[0].DueDate)
		}
		if succ[0].Title != task.Title {
			t.Errorf("successor title = %q", succ[0].Title)
		}
		if succ[0].RepeatRule == nil || *succ[0].RepeatRule != *task.RepeatRule {
			t.Error("successor did not inherit the rule")
		}
		if succ[0].IsDone {
			t.Error("successor created done")
		}
	})

	t.Run("undo retracts the open successor", func(t *testing.T) {
		if _, err := e.taskSvc.Toggle(ctx, owner.ID, task.ID); err != nil {
			t.Fatalf("Toggle: %v", err)
		}
		if e.reload(task.ID).IsDone {
			t.Error("task still done after undo")
		}
		if n := len(e.successors(task.ID)); n != 0 {
			t.Errorf("successors after undo = %d, want 0", n)
		}
	})

	t.Run("late completion anchors to completion day", func(t *testing.T) {
		e.fixedToday(2024, time.January, 10)
		if _, err := e.taskSvc.Toggle(ctx, owner.ID, task.ID); err != nil {
			t.Fatalf("Toggle: %v", err)
		}
		succ := e.successors(task.ID)
		if len(succ) != 1 {
			t.Fatalf("successors = %d, want 1", len(succ))
		}
		if *succ[0].DueDate != "2024-01-12" {
			t.Errorf("successor due = %s, want 2024-01-12", *succ[0].DueDate)
		}
	})
}

func TestToggleDuplicateCompletionSpawnsOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := e.user("alice", false)
	list := e.list(owner.ID, "Chores")
	task := e.task(list.ID, owner.ID, "Backup", "2024-03-01", `{"freq":"daily"}`)
	e.fixedToday(2024, time.March, 1)

	if _, err := e.taskSvc.Toggle(ctx, owner.ID, task.ID); err != nil {
		t.Fatalf("Toggle: %v", err)
	}

	// Simulate a duplicate completion request that lost the race: the flag
	// is reset out of band while the spawned successor stays put, so the
	// retry walks the to-done path again.
	if err := e.db.Model(&model.Task{}).Where("id = ?", task.ID).
		Update("is_done", false).Error; err != nil {
		t.Fatalf("reset flag: %v", err)
	}
	if _, err := e.taskSvc.Toggle(ctx, owner.ID, task.ID); err != nil {
		t.Fatalf("Toggle retry: %v", err)
	}

	if n := len(e.successors(task.ID)); n != 1 {
		t.Errorf("successors = %d, want exactly 1", n)
	}
}

func TestToggleUndoSymmetry(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := e.user("alice", false)
	list := e.list(owner.ID, "Chores")
	task := e.task(list.ID, owner.ID, "Sweep", "2024-03-01", `{"freq":"daily"}`)
	e.fixedToday(2024, time.March, 1)

	if _, err := e.taskSvc.Toggle(ctx, owner.ID, task.ID); err != nil {
		t.Fatalf("toggle done: %v", err)
	}
	if _, err := e.taskSvc.Toggle(ctx, owner.ID, task.ID); err != nil {
		t.Fatalf("toggle undo: %v", err)
	}

	if e.reload(task.ID).IsDone {
		t.Error("is_done not restored to false")
	}
	if n := len(e.successors(task.ID)); n != 0 {
		t.Errorf("successors = %d, want 0", n)
	}
}

func TestToggleUndoKeepsCompletedSuccessor(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := e.user("alice", false)
	list := e.list(owner.ID, "Chores")
	task := e.task(list.ID, owner.ID, "Laundry", "2024-03-01", `{"freq":"daily"}`)
	e.fixedToday(2024, time.March, 1)

	if _, err := e.taskSvc.Toggle(ctx, owner.ID, task.ID); err != nil {
		t.Fatalf("toggle done: %v", err)
	}
	succ := e.successors(task.ID)
	if len(succ) != 1 {
		t.Fatalf("successors = %d, want 1", len(succ))
	}

	// The user completes the successor in its own right, then undoes the
	// original. The completed successor must survive.
	if _, err := e.taskSvc.Toggle(ctx, owner.ID, succ[0].ID); err != nil {
		t.Fatalf("toggle successor: %v", err)
	}
	if _, err := e.taskSvc.Toggle(ctx, owner.ID, task.ID); err != nil {
		t.Fatalf("undo original: %v", err)
	}

	kept := e.successors(task.ID)
	if len(kept) != 1 || kept[0].ID != succ[0].ID {
		t.Fatalf("completed successor was deleted")
	}
	if !kept[0].IsDone {
		t.Error("successor lost its done state")
	}
}

func TestToggleNonRecurring(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := e.user("alice", false)
	list := e.list(owner.ID, "Inbox")
	task := e.task(list.ID, owner.ID, "Call plumber", "", "")

	if _, err := e.taskSvc.Toggle(ctx, owner.ID, task.ID); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if !e.reload(task.ID).IsDone {
		t.Error("not marked done")
	}
	if n := len(e.successors(task.ID)); n != 0 {
		t.Errorf("successors = %d, want 0", n)
	}
}

func TestToggleGarbageRuleTreatedAsNonRecurring(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := e.user("alice", false)
	list := e.list(owner.ID, "Inbox")
	task := e.task(list.ID, owner.ID, "Odd", "2024-03-01", `{"freq":"fortnightly"}`)

	if _, err := e.taskSvc.Toggle(ctx, owner.ID, task.ID); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if n := len(e.successors(task.ID)); n != 0 {
		t.Errorf("successors = %d, want 0", n)
	}
}

func TestToggleSuccessorAttribution(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := e.user("alice", false)
	other := e.user("bob", false)
	list := e.list(owner.ID, "Shared")
	e.grant(list.ID, other.ID, true)
	e.fixedToday(2024, time.March, 1)

	t.Run("keeps original creator", func(t *testing.T) {
		task := e.task(list.ID, owner.ID, "Weekly sync", "2024-03-01", `{"freq":"daily"}`)
		if _, err := e.taskSvc.Toggle(ctx, other.ID, task.ID); err != nil {
			t.Fatalf("Toggle: %v", err)
		}
		succ := e.successors(task.ID)
		if len(succ) != 1 || succ[0].CreatorID == nil || *succ[0].CreatorID != owner.ID {
			t.Fatalf("successor creator = %v, want %d", succ[0].CreatorID, owner.ID)
		}
	})

	t.Run("falls back to acting user when creator is gone", func(t *testing.T) {
		task := e.task(list.ID, owner.ID, "Orphaned", "2024-03-01", `{"freq":"daily"}`)
		if err := e.db.Model(&model.Task{}).Where("id = ?", task.ID).
			Update("creator_id", nil).Error; err != nil {
			t.Fatalf("null creator: %v", err)
		}
		if _, err := e.taskSvc.Toggle(ctx, other.ID, task.ID); err != nil {
			t.Fatalf("Toggle: %v", err)
		}
		succ := e.successors(task.ID)
		if len(succ) != 1 || succ[0].CreatorID == nil || *succ[0].CreatorID != other.ID {
			t.Fatalf("successor creator = %v, want %d", succ[0].CreatorID, other.ID)
		}
	})
}

func TestDanglingRepeatSourceIsHarmless(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := e.user("alice", false)
	list := e.list(owner.ID, "Chores")
	task := e.task(list.ID, owner.ID, "Stretch", "2024-03-01", `{"freq":"daily"}`)
	e.fixedToday(2024, time.March, 1)

	if _, err := e.taskSvc.Toggle(ctx, owner.ID, task.ID); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	succ := e.successors(task.ID)
	if len(succ) != 1 {
		t.Fatalf("successors = %d, want 1", len(succ))
	}

	// Deleting the source leaves the successor's back-reference dangling;
	// the successor must keep working as a normal recurring task.
	if _, err := e.taskSvc.Delete(ctx, owner.ID, task.ID); err != nil {
		t.Fatalf("delete source: %v", err)
	}
	if _, err := e.taskSvc.Toggle(ctx, owner.ID, succ[0].ID); err != nil {
		t.Fatalf("toggle successor after source deletion: %v", err)
	}
	if n := len(e.successors(succ[0].ID)); n != 1 {
		t.Errorf("successor's own successors = %d, want 1", n)
	}
}

func TestUpdateDueDate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := e.user("alice", false)
	list := e.list(owner.ID, "Inbox")
	task := e.task(list.ID, owner.ID, "Dentist", "2024-03-01", `{"freq":"daily"}`)

	if _, err := e.taskSvc.UpdateDueDate(ctx, owner.ID, task.ID, "2024-04-15"); err != nil {
		t.Fatalf("UpdateDueDate: %v", err)
	}
	got := e.reload(task.ID)
	if got.DueDate == nil || *got.DueDate != "2024-04-15" {
		t.Errorf("due date = %v, want 2024-04-15", got.DueDate)
	}
	if got.RepeatRule == nil {
		t.Error("rule must survive a due date change")
	}

	if _, err := e.taskSvc.UpdateDueDate(ctx, owner.ID, task.ID, ""); err != nil {
		t.Fatalf("clear due date: %v", err)
	}
	if e.reload(task.ID).DueDate != nil {
		t.Error("due date not cleared")
	}

	if _, err := e.taskSvc.UpdateDueDate(ctx, owner.ID, task.ID, "soon"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestAccessGating(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := e.user("alice", false)
	viewer := e.user("carol", false)
	stranger := e.user("mallory", false)
	list := e.list(owner.ID, "Team")
	e.grant(list.ID, viewer.ID, false)
	task := e.task(list.ID, owner.ID, "Review", "", "")

	t.Run("viewer can read the list", func(t *testing.T) {
		lists, err := e.taskSvc.ListForUser(ctx, viewer.ID)
		if err != nil {
			t.Fatalf("ListForUser: %v", err)
		}
		if len(lists) != 1 || lists[0].ID != list.ID {
			t.Fatalf("viewer sees %d lists", len(lists))
		}
		if len(lists[0].Tasks) != 1 {
			t.Errorf("viewer sees %d tasks", len(lists[0].Tasks))
		}
	})

	t.Run("viewer cannot mutate", func(t *testing.T) {
		if _, err := e.taskSvc.Create(ctx, viewer.ID, CreateTaskInput{ListID: list.ID, Title: "x"}); !errors.Is(err, ErrForbidden) {
			t.Errorf("Create err = %v, want ErrForbidden", err)
		}
		if _, err := e.taskSvc.Toggle(ctx, viewer.ID, task.ID); !errors.Is(err, ErrForbidden) {
			t.Errorf("Toggle err = %v, want ErrForbidden", err)
		}
		if _, err := e.taskSvc.Delete(ctx, viewer.ID, task.ID); !errors.Is(err, ErrForbidden) {
			t.Errorf("Delete err = %v, want ErrForbidden", err)
		}
		if _, err := e.taskSvc.UpdateDueDate(ctx, viewer.ID, task.ID, "2024-05-01"); !errors.Is(err, ErrForbidden) {
			t.Errorf("UpdateDueDate err = %v, want ErrForbidden", err)
		}
	})

	t.Run("no grant means no visibility", func(t *testing.T) {
		lists, err := e.taskSvc.ListForUser(ctx, stranger.ID)
		if err != nil {
			t.Fatalf("ListForUser: %v", err)
		}
		if len(lists) != 0 {
			t.Errorf("stranger sees %d lists", len(lists))
		}
		if _, err := e.taskSvc.Toggle(ctx, stranger.ID, task.ID); !errors.Is(err, ErrForbidden) {
			t.Errorf("Toggle err = %v, want ErrForbidden", err)
		}
	})
}

func TestListForUserOrdering(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := e.user("alice", false)
	list := e.list(owner.ID, "Mixed")

	// Insert out of display order on purpose.
	doneTask := e.task(list.ID, owner.ID, "done early", "2024-01-01", "")
	noDue := e.task(list.ID, owner.ID, "no due", "", "")
	dueLate := e.task(list.ID, owner.ID, "due late", "2024-06-01", "")
	dueSoon := e.task(list.ID, owner.ID, "due soon", "2024-02-01", "")
	if err := e.db.Model(&model.Task{}).Where("id = ?", doneTask.ID).
		Update("is_done", true).Error; err != nil {
		t.Fatalf("mark done: %v", err)
	}

	lists, err := e.taskSvc.ListForUser(ctx, owner.ID)
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(lists) != 1 {
		t.Fatalf("lists = %d, want 1", len(lists))
	}

	got := make([]uint, len(lists[0].Tasks))
	for i, task := range lists[0].Tasks {
		got[i] = task.ID
	}
	want := []uint{dueSoon.ID, dueLate.ID, noDue.ID, doneTask.ID}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("task order = %v, want %v", got, want)
		}
	}
}
