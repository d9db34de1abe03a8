package sqlxrepos

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/coursefactory/core"
	"github.com/trezcool/coursefactory/core/course"
	"github.com/trezcool/coursefactory/storage/database"
	"github.com/trezcool/coursefactory/tests"
)

func TestOrderBy(t *testing.T) {
	tests := []struct {
		name     string
		ordering []core.DBOrdering
		want     string
	}{
		{name: "default", want: "created_at DESC, id ASC"},
		{
			name:     "fields",
			ordering: []core.DBOrdering{{Field: "name", Ascending: true}, {Field: "status"}},
			want:     "name ASC, status DESC, id ASC",
		},
		{
			name:     "unknown fields are dropped",
			ordering: []core.DBOrdering{{Field: "name; DROP TABLE course"}},
			want:     "created_at DESC, id ASC",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, orderBy(tt.ordering))
		})
	}
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\% go\_lang \\`, escapeLike(`100% go_lang \`))
}

func TestRowRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	c := course.Course{
		ID: "3f1c0c39-0f3f-4b38-9c8a-0f9cbd4ad2a1", Name: "Go", Topic: "go", Mode: course.ModePublish,
		Status: course.StatusPublished, CreatedAt: now, UpdatedAt: now, PublishedAt: &now,
		Modules: []course.Module{{Title: "Basics", Lessons: []string{"Types"}}},
	}
	row, err := toRow(c)
	require.NoError(t, err)
	assert.True(t, row.Modules.Valid)
	assert.False(t, row.Error.Valid)

	got, err := row.toCourse()
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

// openTestDB needs a running postgres; set TEST_DATABASE=1 to run the repository tests.
func openTestDB(t *testing.T) course.Repository {
	t.Helper()
	if os.Getenv("TEST_DATABASE") == "" {
		t.Skip("TEST_DATABASE not set")
	}
	conf, err := core.NewConfig()
	require.NoError(t, err)
	require.NoError(t, database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(db.DB, "up"))
	_, err = db.Exec("TRUNCATE course")
	require.NoError(t, err)
	return NewCourseRepository(db)
}

func TestCourseRepository(t *testing.T) {
	repo := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	goCourse := testutil.CreateCourse(t, repo, "", "Go", course.StatusGenerating, now)
	rust, err := repo.CreateCourse(ctx, course.Course{
		Name: "Rust 101", Topic: "Rust", Mode: course.ModePublish,
		Status: course.StatusDraft, CreatedAt: now.Add(time.Second), UpdatedAt: now,
		Modules: []course.Module{{Title: "Ownership"}},
	})
	require.NoError(t, err)

	got, err := repo.GetCourse(ctx, rust.ID)
	require.NoError(t, err)
	assert.Equal(t, "Rust 101", got.Name)
	assert.Len(t, got.Modules, 1)

	_, err = repo.GetCourse(ctx, "not-a-uuid")
	assert.Equal(t, course.ErrNotFound, errors.Cause(err))

	all, err := repo.QueryCourses(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, rust.ID, all[0].ID) // newest first

	found, err := repo.QueryCourses(ctx, &course.QueryFilter{Search: "rus", Status: []course.Status{course.StatusDraft}}, nil)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, rust.ID, found[0].ID)

	goCourse.Status = course.StatusError
	goCourse.Error = "timeout"
	_, err = repo.UpdateCourse(ctx, goCourse, course.StatusGenerating)
	require.NoError(t, err)
	// a second writer expecting the old status loses
	_, err = repo.UpdateCourse(ctx, goCourse, course.StatusGenerating)
	assert.Equal(t, course.ErrInvalidTransition, errors.Cause(err))
	_, err = repo.UpdateCourse(ctx, course.Course{ID: uuid.New().String()}, course.StatusGenerating)
	assert.Equal(t, course.ErrNotFound, errors.Cause(err))
	got, err = repo.GetCourse(ctx, goCourse.ID)
	require.NoError(t, err)
	assert.Equal(t, "timeout", got.Error)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[course.Status]int{course.StatusError: 1, course.StatusDraft: 1}, counts)

	require.NoError(t, repo.DeleteCourse(ctx, rust.ID))
	assert.Equal(t, course.ErrNotFound, errors.Cause(repo.DeleteCourse(ctx, rust.ID)))
}
