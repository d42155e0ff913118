package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/replydesk/internal/interfaces"
	"github.com/ternarybob/replydesk/internal/models"
)

// QueuedMessage is the progress message of a task no worker has picked up
const QueuedMessage = "대기 중..."

// ProgressFunc records intermediate progress on the running task
type ProgressFunc func(models.TaskProgress)

// Handler performs the work of one task type. The returned value becomes
// the task result.
type Handler func(ctx context.Context, task *models.Task, report ProgressFunc) (interface{}, error)

// Service creates background tasks, runs them on the executor and keeps
// their documents current in task storage
type Service struct {
	storage  interfaces.TaskStorage
	executor *Executor
	logger   arbor.ILogger

	mu       sync.RWMutex
	handlers map[models.TaskType]Handler

	now  func() time.Time
	cron *cron.Cron
}

// NewService creates a task service over an executor the caller starts
func NewService(storage interfaces.TaskStorage, executor *Executor, logger arbor.ILogger) *Service {
	return &Service{
		storage:  storage,
		executor: executor,
		logger:   logger,
		handlers: make(map[models.TaskType]Handler),
		now:      time.Now,
	}
}

// RegisterHandler sets the handler for a task type
func (s *Service) RegisterHandler(taskType models.TaskType, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[taskType] = handler
	s.logger.Debug().Str("task_type", string(taskType)).Msg("Task handler registered")
}

func (s *Service) handler(taskType models.TaskType) (Handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[taskType]
	return h, ok
}

// Create persists a pending task and queues it behind the user's earlier
// work. The returned document is the pending snapshot.
func (s *Service) Create(ctx context.Context, taskType models.TaskType, userID string, params map[string]interface{}) (*models.Task, error) {
	h, ok := s.handler(taskType)
	if !ok {
		return nil, fmt.Errorf("no handler registered for task type %s", taskType)
	}

	now := s.now()
	task := &models.Task{
		ID:        uuid.New().String(),
		Type:      taskType,
		UserID:    userID,
		Params:    params,
		Status:    models.TaskStatusPending,
		Progress:  models.TaskProgress{Message: QueuedMessage},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.storage.SaveTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to save task: %w", err)
	}
	snapshot := *task

	taskID := task.ID
	_, err := s.executor.Submit(userID, string(taskType)+":"+taskID, func(ctx context.Context) (interface{}, error) {
		return s.run(ctx, taskID, h)
	})
	if err != nil {
		s.fail(context.Background(), task, err)
		return nil, fmt.Errorf("failed to queue task: %w", err)
	}

	s.logger.Info().
		Str("task_id", taskID).
		Str("task_type", string(taskType)).
		Str("user_id", userID).
		Msg("Task created")
	return &snapshot, nil
}

// Get returns the current task document
func (s *Service) Get(ctx context.Context, id string) (*models.Task, error) {
	return s.storage.GetTask(ctx, id)
}

// List returns the user's tasks, newest first
func (s *Service) List(ctx context.Context, userID string) ([]*models.Task, error) {
	return s.storage.ListTasksByUser(ctx, userID)
}

func (s *Service) run(ctx context.Context, id string, h Handler) (interface{}, error) {
	task, err := s.storage.GetTask(context.Background(), id)
	if err != nil {
		return nil, err
	}

	started := s.now()
	if err := s.transition(task, models.TaskStatusProcessing); err != nil {
		return nil, err
	}
	task.StartedAt = &started
	s.save(task)

	s.logger.Debug().Str("task_id", id).Str("task_type", string(task.Type)).Msg("Task started")

	result, err := h(ctx, task, func(p models.TaskProgress) {
		task.Progress = p
		s.save(task)
	})
	if err != nil {
		s.fail(context.Background(), task, err)
		return nil, err
	}

	completed := s.now()
	if err := s.transition(task, models.TaskStatusCompleted); err != nil {
		return nil, err
	}
	task.Result = result
	task.CompletedAt = &completed
	s.save(task)

	s.logger.Info().
		Str("task_id", id).
		Str("task_type", string(task.Type)).
		Dur("duration", completed.Sub(started)).
		Msg("Task completed")
	return result, nil
}

func (s *Service) fail(ctx context.Context, task *models.Task, cause error) {
	if err := s.transition(task, models.TaskStatusFailed); err != nil {
		s.logger.Warn().Err(err).Str("task_id", task.ID).Msg("Task failure not recorded")
		return
	}
	completed := s.now()
	task.CompletedAt = &completed
	task.Error = cause.Error()
	if err := s.storage.SaveTask(ctx, task); err != nil {
		s.logger.Error().Err(err).Str("task_id", task.ID).Msg("Failed to save failed task")
	}

	s.logger.Warn().
		Err(cause).
		Str("task_id", task.ID).
		Str("task_type", string(task.Type)).
		Msg("Task failed")
}

// transition moves the task forward; statuses never go backwards
func (s *Service) transition(task *models.Task, next models.TaskStatus) error {
	if !task.Status.CanTransition(next) {
		return fmt.Errorf("task %s cannot move from %s to %s", task.ID, task.Status, next)
	}
	task.Status = next
	task.UpdatedAt = s.now()
	return nil
}

func (s *Service) save(task *models.Task) {
	if err := s.storage.SaveTask(context.Background(), task); err != nil {
		s.logger.Warn().Err(err).Str("task_id", task.ID).Msg("Failed to save task")
	}
}

// ErrInterrupted marks tasks a previous run left unfinished
var ErrInterrupted = errors.New("interrupted before completion")

// RecoverStale fails every pending or processing task left by a previous
// run. Call it before any task is created; nothing can resume that work.
func (s *Service) RecoverStale(ctx context.Context) (int, error) {
	recovered := 0
	for _, status := range []models.TaskStatus{models.TaskStatusPending, models.TaskStatusProcessing} {
		stale, err := s.storage.ListTasksByStatus(ctx, status)
		if err != nil {
			return recovered, err
		}
		for _, task := range stale {
			s.fail(ctx, task, ErrInterrupted)
			recovered++
		}
	}
	if recovered > 0 {
		s.logger.Info().Int("recovered", recovered).Msg("Failed tasks left unfinished by the previous run")
	}
	return recovered, nil
}

// Cleanup deletes tasks created more than retention ago
func (s *Service) Cleanup(ctx context.Context, retention time.Duration) (int, error) {
	return s.storage.DeleteTasksBefore(ctx, s.now().Add(-retention))
}

// StartCleanup runs Cleanup on a cron schedule with a seconds field
func (s *Service) StartCleanup(schedule string, retention time.Duration) error {
	if s.cron != nil {
		return fmt.Errorf("task cleanup already scheduled")
	}
	c := cron.New(cron.WithSeconds())
	_, err := c.AddFunc(schedule, func() {
		deleted, err := s.Cleanup(context.Background(), retention)
		if err != nil {
			s.logger.Error().Err(err).Msg("Task cleanup failed")
			return
		}
		s.logger.Debug().Int("deleted", deleted).Str("retention", retention.String()).Msg("Task cleanup finished")
	})
	if err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	c.Start()
	s.cron = c

	s.logger.Info().Str("schedule", schedule).Str("retention", retention.String()).Msg("Task cleanup scheduled")
	return nil
}

// Stop halts the cleanup schedule. The executor is stopped by its owner.
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.cron = nil
	}
}
