package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/philboiv1n/todolist/internal/model"
)

// TaskRepository handles CRUD for tasks.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *TaskRepository) FindByID(ctx context.Context, taskID uint) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).First(&task, taskID).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// FindAccessible returns the task only when the user holds a grant on its
// list; with requireEdit the grant must carry the edit bit. A task outside
// the user's grants is indistinguishable from a missing one.
func (r *TaskRepository) FindAccessible(ctx context.Context, userID, taskID uint, requireEdit bool) (*model.Task, error) {
	q := r.db.WithContext(ctx).
		Joins("INNER JOIN list_access ON list_access.list_id = tasks.list_id").
		Where("list_access.user_id = ? AND tasks.id = ?", userID, taskID)
	if requireEdit {
		q = q.Where("list_access.can_edit = ?", true)
	}
	var task model.Task
	if err := q.First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *TaskRepository) UpdateDueDate(ctx context.Context, taskID uint, dueDate *string) error {
	res := r.db.WithContext(ctx).Model(&model.Task{}).Where("id = ?", taskID).
		Update("due_date", dueDate)
	if res.Error != nil {
		return fmt.Errorf("update due date: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *TaskRepository) SetDone(ctx context.Context, taskID uint, done bool) error {
	res := r.db.WithContext(ctx).Model(&model.Task{}).Where("id = ?", taskID).
		Update("is_done", done)
	if res.Error != nil {
		return fmt.Errorf("set done: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *TaskRepository) Delete(ctx context.Context, taskID uint) error {
	if err := r.db.WithContext(ctx).Delete(&model.Task{}, taskID).Error; err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// HasSuccessor reports whether a next occurrence spawned from the task
// already exists.
func (r *TaskRepository) HasSuccessor(ctx context.Context, taskID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("repeat_source_id = ?", taskID).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check successor: %w", err)
	}
	return count > 0, nil
}

// DeleteOpenSuccessor removes the auto-generated next occurrence of a task,
// but only while it is still open. A successor the user already completed is
// left alone.
func (r *TaskRepository) DeleteOpenSuccessor(ctx context.Context, taskID uint) error {
	err := r.db.WithContext(ctx).
		Where("repeat_source_id = ? AND is_done = ?", taskID, false).
		Delete(&model.Task{}).Error
	if err != nil {
		return fmt.Errorf("delete successor: %w", err)
	}
	return nil
}

// ByLists returns the user's visible tasks grouped by list, each group
// ordered for display: open before done, then due date ascending with
// missing due dates last, then newest first.
func (r *TaskRepository) ByLists(ctx context.Context, userID uint, listIDs []uint) (map[uint][]model.Task, error) {
	grouped := make(map[uint][]model.Task, len(listIDs))
	if len(listIDs) == 0 {
		return grouped, nil
	}

	var tasks []model.Task
	err := r.db.WithContext(ctx).
		Joins("INNER JOIN list_access ON list_access.list_id = tasks.list_id").
		Where("list_access.user_id = ? AND tasks.list_id IN ?", userID, listIDs).
		Order("tasks.list_id, tasks.is_done ASC, (tasks.due_date IS NULL) ASC, tasks.due_date ASC, tasks.created_at DESC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("tasks by list: %w", err)
	}

	for _, task := range tasks {
		grouped[task.ListID] = append(grouped[task.ListID], task)
	}
	return grouped, nil
}

// ClearCompleted deletes every done task in a list.
func (r *TaskRepository) ClearCompleted(ctx context.Context, listID uint) error {
	err := r.db.WithContext(ctx).
		Where("list_id = ? AND is_done = ?", listID, true).
		Delete(&model.Task{}).Error
	if err != nil {
		return fmt.Errorf("clear completed: %w", err)
	}
	return nil
}
