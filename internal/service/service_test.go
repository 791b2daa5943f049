package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/philboiv1n/todolist/internal/model"
	"github.com/philboiv1n/todolist/internal/recur"
	"github.com/philboiv1n/todolist/internal/repository"
)

// env wires the full service stack against a throwaway SQLite file.
type env struct {
	t  *testing.T
	db *gorm.DB

	userRepo    *repository.UserRepository
	listRepo    *repository.ListRepository
	taskRepo    *repository.TaskRepository
	metaRepo    *repository.MetaRepository
	attemptRepo *repository.LoginAttemptRepository

	access  *AccessService
	taskSvc *TaskService
	listSvc *ListService
	userSvc *UserService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db, err := repository.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	e := &env{
		t:           t,
		db:          db,
		userRepo:    repository.NewUserRepository(db),
		listRepo:    repository.NewListRepository(db),
		taskRepo:    repository.NewTaskRepository(db),
		metaRepo:    repository.NewMetaRepository(db),
		attemptRepo: repository.NewLoginAttemptRepository(db),
	}
	e.access = NewAccessService(e.listRepo, e.userRepo)
	e.taskSvc = NewTaskService(db, e.access, e.listRepo, e.taskRepo)
	e.listSvc = NewListService(db, e.access, e.listRepo, e.userRepo, e.metaRepo, true)
	e.userSvc = NewUserService(e.userRepo, e.listRepo, e.attemptRepo, e.access)
	return e
}

func (e *env) user(name string, admin bool) *model.User {
	e.t.Helper()
	u := &model.User{Username: name, PasswordHash: "x", IsAdmin: admin}
	if err := e.userRepo.Create(context.Background(), u); err != nil {
		e.t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

// list creates a list owned by the user, with an edit grant for them.
func (e *env) list(owner uint, name string) *model.List {
	e.t.Helper()
	l := &model.List{Name: name, CreatedBy: &owner}
	if err := e.listRepo.Create(context.Background(), l); err != nil {
		e.t.Fatalf("create list %s: %v", name, err)
	}
	if err := e.listRepo.UpsertAccess(context.Background(), l.ID, owner, true); err != nil {
		e.t.Fatalf("grant list %s: %v", name, err)
	}
	return l
}

func (e *env) grant(listID, userID uint, canEdit bool) {
	e.t.Helper()
	if err := e.listRepo.UpsertAccess(context.Background(), listID, userID, canEdit); err != nil {
		e.t.Fatalf("grant: %v", err)
	}
}

// task inserts a task directly, bypassing the lifecycle service.
func (e *env) task(listID, creator uint, title, due, rule string) *model.Task {
	e.t.Helper()
	task := &model.Task{ListID: listID, CreatorID: &creator, Title: title}
	if due != "" {
		task.DueDate = &due
	}
	if rule != "" {
		task.RepeatRule = &rule
	}
	if err := e.taskRepo.Create(context.Background(), task); err != nil {
		e.t.Fatalf("create task %s: %v", title, err)
	}
	return task
}

func (e *env) reload(taskID uint) *model.Task {
	e.t.Helper()
	task, err := e.taskRepo.FindByID(context.Background(), taskID)
	if err != nil {
		e.t.Fatalf("reload task %d: %v", taskID, err)
	}
	return task
}

// successors returns the tasks spawned from the given source task.
func (e *env) successors(taskID uint) []model.Task {
	e.t.Helper()
	var tasks []model.Task
	if err := e.db.Where("repeat_source_id = ?", taskID).Find(&tasks).Error; err != nil {
		e.t.Fatalf("load successors: %v", err)
	}
	return tasks
}

// fixedToday pins the lifecycle clock for deterministic scheduling.
func (e *env) fixedToday(y int, m time.Month, d int) {
	e.taskSvc.today = func() recur.Date {
		return recur.Date{Year: y, Month: m, Day: d}
	}
}
