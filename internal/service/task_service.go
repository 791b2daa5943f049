package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"

	"github.com/philboiv1n/todolist/internal/model"
	"github.com/philboiv1n/todolist/internal/recur"
	"github.com/philboiv1n/todolist/internal/repository"
)

// CreateTaskInput carries the data for a new task. DueDate is an ISO date
// (YYYY-MM-DD) or empty; RepeatPreset is one of the recur presets or empty.
type CreateTaskInput struct {
	ListID       uint
	Title        string
	DueDate      string
	RepeatPreset string
}

// ListWithTasks is one accessible list together with its visible tasks,
// already ordered for display.
type ListWithTasks struct {
	repository.AccessibleList
	Tasks []model.Task
}

// TaskService is the task lifecycle state machine. Every mutation runs as a
// single immediate transaction against the store; the toggle operation also
// creates or retracts the next occurrence of a recurring task.
type TaskService struct {
	db       *gorm.DB
	access   *AccessService
	listRepo *repository.ListRepository
	taskRepo *repository.TaskRepository

	// today is swapped out by tests that need deterministic dates.
	today func() recur.Date
}

func NewTaskService(db *gorm.DB, access *AccessService, listRepo *repository.ListRepository, taskRepo *repository.TaskRepository) *TaskService {
	return &TaskService{
		db:       db,
		access:   access,
		listRepo: listRepo,
		taskRepo: taskRepo,
		today:    recur.Today,
	}
}

// Create adds a task to a list the acting user can edit and returns it.
// A repeat preset is resolved into a stored rule anchored on the due date,
// or on today when the task has none.
func (s *TaskService) Create(ctx context.Context, actingUserID uint, in CreateTaskInput) (*model.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" || in.ListID == 0 {
		return nil, fmt.Errorf("%w: title and list are required", ErrInvalidInput)
	}

	if _, err := s.listRepo.FindByID(ctx, in.ListID); err != nil {
		log.Printf("[info] create task: list %d not found", in.ListID)
		return nil, notFound(err)
	}
	ok, err := s.access.HasAccess(ctx, actingUserID, in.ListID, true)
	if err != nil {
		return nil, err
	}
	if !ok {
		log.Printf("[info] create task: user %d denied edit on list %d", actingUserID, in.ListID)
		return nil, ErrForbidden
	}

	var dueDate *string
	ref := s.today()
	if in.DueDate != "" {
		d, err := recur.ParseDate(in.DueDate)
		if err != nil {
			return nil, fmt.Errorf("%w: bad due date", ErrInvalidInput)
		}
		iso := d.String()
		dueDate = &iso
		ref = d
	}

	var repeatRule *string
	if rule := recur.FromPreset(in.RepeatPreset, ref); rule != nil {
		raw := rule.Serialize()
		repeatRule = &raw
	}

	task := model.Task{
		ListID:     in.ListID,
		CreatorID:  &actingUserID,
		Title:      title,
		DueDate:    dueDate,
		RepeatRule: repeatRule,
	}
	err = withBusyRetry(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := repository.NewTaskRepository(tx).Create(ctx, &task); err != nil {
				return err
			}
			return repository.NewMetaRepository(tx).TouchChange(ctx)
		})
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateDueDate sets or clears a task's due date. It never touches
// recurrence state; the stored rule keeps applying from the new date.
func (s *TaskService) UpdateDueDate(ctx context.Context, actingUserID, taskID uint, dueDate string) (uint, error) {
	task, err := s.requireEditable(ctx, actingUserID, taskID)
	if err != nil {
		return 0, err
	}

	var due *string
	if dueDate != "" {
		d, err := recur.ParseDate(dueDate)
		if err != nil {
			return 0, fmt.Errorf("%w: bad due date", ErrInvalidInput)
		}
		iso := d.String()
		due = &iso
	}

	err = withBusyRetry(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := repository.NewTaskRepository(tx).UpdateDueDate(ctx, taskID, due); err != nil {
				return err
			}
			return repository.NewMetaRepository(tx).TouchChange(ctx)
		})
	})
	if err != nil {
		return 0, notFound(err)
	}
	return task.ListID, nil
}

// Delete removes a task. Only the row itself goes away; a successor that
// points back at it keeps its now-dangling reference, which later lookups
// treat as "no linkage".
func (s *TaskService) Delete(ctx context.Context, actingUserID, taskID uint) (uint, error) {
	task, err := s.requireEditable(ctx, actingUserID, taskID)
	if err != nil {
		return 0, err
	}

	err = withBusyRetry(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := repository.NewTaskRepository(tx).Delete(ctx, taskID); err != nil {
				return err
			}
			return repository.NewMetaRepository(tx).TouchChange(ctx)
		})
	})
	if err != nil {
		return 0, err
	}
	return task.ListID, nil
}

// Toggle flips a task between open and done, and for recurring tasks
// creates or retracts the next occurrence. The flip, the change-token bump
// and any successor insert or delete commit as one transaction, so two
// concurrent toggles of the same task can never double-spawn a successor.
// Lock contention is retried once before surfacing as a conflict.
func (s *TaskService) Toggle(ctx context.Context, actingUserID, taskID uint) (uint, error) {
	task, err := s.requireEditable(ctx, actingUserID, taskID)
	if err != nil {
		return 0, err
	}
	listID := task.ListID

	err = withBusyRetry(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.toggleTx(ctx, tx, actingUserID, taskID)
		})
	})
	if err != nil {
		return 0, err
	}
	return listID, nil
}

// toggleTx runs inside one immediate transaction. The task state is re-read
// under the write lock so a concurrent toggle observes the committed flip.
func (s *TaskService) toggleTx(ctx context.Context, tx *gorm.DB, actingUserID, taskID uint) error {
	tasks := repository.NewTaskRepository(tx)
	meta := repository.NewMetaRepository(tx)

	task, err := tasks.FindByID(ctx, taskID)
	if err != nil {
		return notFound(err)
	}

	markDone := !task.IsDone
	if err := tasks.SetDone(ctx, taskID, markDone); err != nil {
		return err
	}
	if err := meta.TouchChange(ctx); err != nil {
		return err
	}

	var rule *recur.Rule
	if task.RepeatRule != nil {
		rule = recur.Parse(*task.RepeatRule)
	}
	if rule == nil {
		return nil
	}

	if !markDone {
		// Undo: retract the occurrence this completion spawned, unless the
		// user already completed it in its own right.
		return tasks.DeleteOpenSuccessor(ctx, taskID)
	}

	// Completing twice without an undo must not spawn twice.
	exists, err := tasks.HasSuccessor(ctx, taskID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	var due *recur.Date
	if task.DueDate != nil {
		if d, err := recur.ParseDate(*task.DueDate); err == nil {
			due = &d
		}
	}
	next, ok := recur.NextDue(rule, due, s.today())
	if !ok {
		return nil
	}

	creator := task.CreatorID
	if creator == nil {
		// Original creator is gone; attribute the occurrence to whoever
		// completed this one.
		creator = &actingUserID
	}
	nextDue := next.String()
	successor := model.Task{
		ListID:         task.ListID,
		CreatorID:      creator,
		Title:          task.Title,
		DueDate:        &nextDue,
		RepeatRule:     task.RepeatRule,
		RepeatSourceID: &task.ID,
	}
	return tasks.Create(ctx, &successor)
}

// ListForUser returns every list the user can see, with tasks grouped and
// ordered for display: open before done, due dates ascending with missing
// dates last, then newest first.
func (s *TaskService) ListForUser(ctx context.Context, userID uint) ([]ListWithTasks, error) {
	lists, err := s.listRepo.AccessibleTo(ctx, userID)
	if err != nil {
		return nil, err
	}

	listIDs := make([]uint, len(lists))
	for i, l := range lists {
		listIDs[i] = l.ID
	}
	tasksByList, err := s.taskRepo.ByLists(ctx, userID, listIDs)
	if err != nil {
		return nil, err
	}

	out := make([]ListWithTasks, len(lists))
	for i, l := range lists {
		out[i] = ListWithTasks{AccessibleList: l, Tasks: tasksByList[l.ID]}
	}
	return out, nil
}

// requireEditable resolves a task and checks the edit capability on its
// list. Missing tasks and denied access are logged apart but surface as the
// kinds the controller deliberately conflates.
func (s *TaskService) requireEditable(ctx context.Context, actingUserID, taskID uint) (*model.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		log.Printf("[info] task %d not found", taskID)
		return nil, notFound(err)
	}
	ok, err := s.access.HasAccess(ctx, actingUserID, task.ListID, true)
	if err != nil {
		return nil, err
	}
	if !ok {
		log.Printf("[info] user %d denied edit on list %d (task %d)", actingUserID, task.ListID, taskID)
		return nil, ErrForbidden
	}
	return task, nil
}

// withBusyRetry runs fn, retrying exactly once when the store reports lock
// contention. A second miss surfaces as ErrConflict; other errors are never
// retried.
func withBusyRetry(fn func() error) error {
	err := fn()
	if isBusy(err) {
		err = fn()
	}
	if isBusy(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
