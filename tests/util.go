package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/trezcool/coursefactory/core/course"
)

// CreateCourse stores a course straight through the repository, bypassing the service's transitions.
func CreateCourse(
	t *testing.T,
	repo course.Repository,
	name, topic string,
	status course.Status,
	createdAt ...time.Time,
) course.Course {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	if name == "" {
		name = course.ProvisionalName(topic)
	}
	c, err := repo.CreateCourse(context.Background(), course.Course{
		Name:      name,
		Topic:     topic,
		Mode:      course.ModePreview,
		Status:    status,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return c
}
