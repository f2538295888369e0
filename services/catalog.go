package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"quest-service/apperr"
	"quest-service/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrTaskNotFound is returned by a TaskCatalog for unknown ids.
var ErrTaskNotFound = errors.New("task not found")

// TaskCatalog is the read side of the catalog the tracking flow depends on.
type TaskCatalog interface {
	GetTask(ctx context.Context, id string) (*models.Task, error)
	IncrementCompletionCount(ctx context.Context, id string) error
}

// maxSlugAttempts bounds the -2, -3, ... suffix search on create.
const maxSlugAttempts = 20

// --- Catalog request types ---
type CreateTaskRequest struct {
	Title            string          `json:"title" validate:"required,max=200"`
	Description      string          `json:"description" validate:"max=5000"`
	Type             models.TaskType `json:"type" validate:"required"`
	TargetURL        string          `json:"target_url" validate:"omitempty,url"`
	MinDwellSeconds  int             `json:"min_dwell_seconds" validate:"min=0"`
	RewardPoints     int64           `json:"reward_points" validate:"min=0"`
	RewardExperience int64           `json:"reward_experience" validate:"min=0"`
	RewardItemIDs    []string        `json:"reward_item_ids" validate:"dive,required,max=64"`
	IsActive         *bool           `json:"is_active"`
}

// UpdateTaskRequest defines the structure for partial updates
type UpdateTaskRequest struct {
	Title            *string   `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description      *string   `json:"description,omitempty" validate:"omitempty,max=5000"`
	TargetURL        *string   `json:"target_url,omitempty" validate:"omitempty,url"`
	MinDwellSeconds  *int      `json:"min_dwell_seconds,omitempty" validate:"omitempty,min=0"`
	RewardPoints     *int64    `json:"reward_points,omitempty" validate:"omitempty,min=0"`
	RewardExperience *int64    `json:"reward_experience,omitempty" validate:"omitempty,min=0"`
	RewardItemIDs    *[]string `json:"reward_item_ids,omitempty"`
	IsActive         *bool     `json:"is_active,omitempty"` // Crucial for toggling
}

// CatalogService is the GORM-backed task catalog.
type CatalogService struct {
	DB *gorm.DB
}

func NewCatalogService(db *gorm.DB) *CatalogService {
	return &CatalogService{DB: db}
}

func (s *CatalogService) GetTask(ctx context.Context, id string) (*models.Task, error) {
	var task models.Task
	if err := s.DB.WithContext(ctx).First(&task, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return &task, nil
}

func (s *CatalogService) IncrementCompletionCount(ctx context.Context, id string) error {
	res := s.DB.WithContext(ctx).
		Model(&models.Task{}).
		Where("id = ?", id).
		UpdateColumn("completion_count", gorm.Expr("completion_count + ?", 1))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// ListTasks returns the catalog, newest first. active filters on IsActive when non-nil.
func (s *CatalogService) ListTasks(ctx context.Context, active *bool) ([]models.Task, error) {
	query := s.DB.WithContext(ctx).Model(&models.Task{})
	if active != nil {
		query = query.Where("is_active = ?", *active)
	}
	var tasks []models.Task
	if err := query.Order("created_at DESC").Find(&tasks).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	return tasks, nil
}

// CreateTask adds a task with a slug derived from its title.
func (s *CatalogService) CreateTask(ctx context.Context, req CreateTaskRequest) (*models.Task, error) {
	if !req.Type.Valid() {
		return nil, apperr.InvalidTaskType(fmt.Sprintf("unknown task type %q", req.Type))
	}
	if req.Type == models.TaskTypeExternalVisit {
		if err := validateTargetURL(req.TargetURL); err != nil {
			return nil, err
		}
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	base := slug.Make(req.Title)
	if base == "" {
		base = "task"
	}

	task := &models.Task{
		Type:             req.Type,
		Title:            strings.TrimSpace(req.Title),
		Description:      req.Description,
		IsActive:         isActive,
		TargetURL:        strings.TrimSpace(req.TargetURL),
		MinDwellSeconds:  req.MinDwellSeconds,
		RewardPoints:     req.RewardPoints,
		RewardExperience: req.RewardExperience,
		RewardItemIDs:    datatypes.NewJSONSlice(req.RewardItemIDs),
	}

	for attempt := 1; attempt <= maxSlugAttempts; attempt++ {
		task.ID = uuid.NewString()
		task.Slug = base
		if attempt > 1 {
			task.Slug = fmt.Sprintf("%s-%d", base, attempt)
		}
		err := s.DB.WithContext(ctx).Create(task).Error
		if err == nil {
			log.Printf("✅ [CATALOG] Created task %s (%s, type=%s)", task.ID, task.Slug, task.Type)
			return task, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Internal(err)
		}
	}
	return nil, apperr.Validation("could not derive a unique slug from title")
}

// UpdateTask applies a partial update. Completions already granted keep
// their reward snapshots.
func (s *CatalogService) UpdateTask(ctx context.Context, id string, req UpdateTaskRequest) (*models.Task, error) {
	task, err := s.GetTask(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			return nil, apperr.NotFound("task not found")
		}
		return nil, apperr.Internal(err)
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		updates["title"] = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.TargetURL != nil {
		if task.Type == models.TaskTypeExternalVisit {
			if err := validateTargetURL(*req.TargetURL); err != nil {
				return nil, err
			}
		}
		updates["target_url"] = strings.TrimSpace(*req.TargetURL)
	}
	if req.MinDwellSeconds != nil {
		updates["min_dwell_seconds"] = *req.MinDwellSeconds
	}
	if req.RewardPoints != nil {
		updates["reward_points"] = *req.RewardPoints
	}
	if req.RewardExperience != nil {
		updates["reward_experience"] = *req.RewardExperience
	}
	if req.RewardItemIDs != nil {
		updates["reward_item_ids"] = datatypes.NewJSONSlice(*req.RewardItemIDs)
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if len(updates) == 0 {
		return task, nil
	}

	if err := s.DB.WithContext(ctx).Model(task).Updates(updates).Error; err != nil {
		log.Printf("DB Error updating task %s: %v", id, err)
		return nil, apperr.Internal(err)
	}
	return s.GetTask(ctx, id)
}

func validateTargetURL(raw string) error {
	if _, err := buildTrackingURL(raw, "t", "x"); err != nil {
		return apperr.Validation("target_url must be an absolute http(s) url").
			WithDetails(map[string]interface{}{"target_url": raw})
	}
	return nil
}
