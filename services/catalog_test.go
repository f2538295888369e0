package services

import (
	"context"
	"errors"
	"testing"

	"quest-service/apperr"
	"quest-service/models"
)

func TestCreateTaskSlugs(t *testing.T) {
	f := newFixture(t)
	a := f.createTask(t, CreateTaskRequest{Title: "Visit Our Partner!"})
	b := f.createTask(t, CreateTaskRequest{Title: "Visit our partner"})
	c := f.createTask(t, CreateTaskRequest{Title: "visit our partner"})

	if a.Slug != "visit-our-partner" || b.Slug != "visit-our-partner-2" || c.Slug != "visit-our-partner-3" {
		t.Fatalf("slugs = %q, %q, %q", a.Slug, b.Slug, c.Slug)
	}
	if !a.IsActive {
		t.Fatalf("tasks are active by default")
	}
}

func TestCreateTaskValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.catalog.CreateTask(ctx, CreateTaskRequest{Title: "x", Type: "TRIVIA"})
	wantCode(t, err, apperr.CodeInvalidTaskType)

	_, err = f.catalog.CreateTask(ctx, CreateTaskRequest{Title: "x", Type: models.TaskTypeExternalVisit, TargetURL: "/relative"})
	wantCode(t, err, apperr.CodeValidation)

	_, err = f.catalog.CreateTask(ctx, CreateTaskRequest{Title: "x", Type: models.TaskTypeExternalVisit, TargetURL: "ftp://files.example.com"})
	wantCode(t, err, apperr.CodeValidation)

	inactive := false
	task, err := f.catalog.CreateTask(ctx, CreateTaskRequest{Title: "Hidden", Type: models.TaskTypeInAppScore, IsActive: &inactive})
	if err != nil {
		t.Fatalf("create in-app task: %v", err)
	}
	if task.IsActive {
		t.Fatalf("expected inactive task")
	}
}

func TestUpdateTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.createTask(t, CreateTaskRequest{MinDwellSeconds: 10})

	title := "New title"
	dwell := 45
	items := []string{"sticker"}
	updated, err := f.catalog.UpdateTask(ctx, task.ID, UpdateTaskRequest{Title: &title, MinDwellSeconds: &dwell, RewardItemIDs: &items})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "New title" || updated.MinDwellSeconds != 45 || len(updated.RewardItemIDs) != 1 {
		t.Fatalf("unexpected task after update: %+v", updated)
	}

	bad := "not a url"
	_, err = f.catalog.UpdateTask(ctx, task.ID, UpdateTaskRequest{TargetURL: &bad})
	wantCode(t, err, apperr.CodeValidation)

	_, err = f.catalog.UpdateTask(ctx, "missing", UpdateTaskRequest{Title: &title})
	wantCode(t, err, apperr.CodeNotFound)
}

func TestListTasksFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createTask(t, CreateTaskRequest{Title: "On"})
	inactive := false
	f.createTask(t, CreateTaskRequest{Title: "Off", IsActive: &inactive})

	all, err := f.catalog.ListTasks(ctx, nil)
	if err != nil || len(all) != 2 {
		t.Fatalf("list all: %d (%v)", len(all), err)
	}
	active := true
	on, err := f.catalog.ListTasks(ctx, &active)
	if err != nil || len(on) != 1 || on[0].Title != "On" {
		t.Fatalf("list active: %+v (%v)", on, err)
	}
}

func TestIncrementCompletionCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.createTask(t, CreateTaskRequest{})

	for i := 0; i < 3; i++ {
		if err := f.catalog.IncrementCompletionCount(ctx, task.ID); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	got, _ := f.catalog.GetTask(ctx, task.ID)
	if got.CompletionCount != 3 {
		t.Fatalf("completion count = %d", got.CompletionCount)
	}

	if err := f.catalog.IncrementCompletionCount(ctx, "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
	if _, err := f.catalog.GetTask(ctx, "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}
