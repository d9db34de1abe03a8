package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/coursefactory/core"
	"github.com/trezcool/coursefactory/core/course"
)

const courseColumns = "id, name, topic, mode, status, modules, error, created_at, updated_at, published_at"

type courseRow struct {
	ID          string      `db:"id"`
	Name        string      `db:"name"`
	Topic       string      `db:"topic"`
	Mode        string      `db:"mode"`
	Status      string      `db:"status"`
	Modules     null.JSON   `db:"modules"`
	Error       null.String `db:"error"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
	PublishedAt null.Time   `db:"published_at"`
}

func toRow(c course.Course) (courseRow, error) {
	row := courseRow{
		ID:          c.ID,
		Name:        c.Name,
		Topic:       c.Topic,
		Mode:        string(c.Mode),
		Status:      string(c.Status),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
		PublishedAt: null.TimeFromPtr(c.PublishedAt),
	}
	if c.Error != "" {
		row.Error = null.StringFrom(c.Error)
	}
	if c.Modules != nil {
		if err := row.Modules.Marshal(c.Modules); err != nil {
			return courseRow{}, errors.Wrap(err, "encoding modules")
		}
	}
	return row, nil
}

func (row courseRow) toCourse() (course.Course, error) {
	c := course.Course{
		ID:          row.ID,
		Name:        row.Name,
		Topic:       row.Topic,
		Mode:        course.Mode(row.Mode),
		Status:      course.Status(row.Status),
		Error:       row.Error.String,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
		PublishedAt: row.PublishedAt.Ptr(),
	}
	if row.Modules.Valid {
		if err := row.Modules.Unmarshal(&c.Modules); err != nil {
			return course.Course{}, errors.Wrap(err, "decoding modules")
		}
	}
	return c, nil
}

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *sqlx.DB) course.Repository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) CreateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	c.ID = uuid.New().String()
	row, err := toRow(c)
	if err != nil {
		return course.Course{}, err
	}
	q := `INSERT INTO course (` + courseColumns + `)
		VALUES (:id, :name, :topic, :mode, :status, :modules, :error, :created_at, :updated_at, :published_at)`
	if _, err = repo.db.NamedExecContext(ctx, q, row); err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return c, nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, id string) (course.Course, error) {
	if _, err := uuid.Parse(id); err != nil {
		return course.Course{}, course.ErrNotFound // not a valid primary key
	}

	var row courseRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+courseColumns+` FROM course WHERE id = $1`, id)
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return course.Course{}, course.ErrNotFound
		}
		return course.Course{}, errors.Wrap(err, "selecting course")
	}
	return row.toCourse()
}

func (repo *courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter, ordering []core.DBOrdering) ([]course.Course, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter != nil {
		if filter.Search != "" {
			conds = append(conds, "(name ILIKE ? OR topic ILIKE ?)")
			pattern := "%" + escapeLike(filter.Search) + "%"
			args = append(args, pattern, pattern)
		}
		if len(filter.Status) > 0 {
			statuses := make([]string, 0, len(filter.Status))
			for _, s := range filter.Status {
				statuses = append(statuses, string(s))
			}
			conds = append(conds, "status IN (?)")
			args = append(args, statuses)
		}
	}

	q := `SELECT ` + courseColumns + ` FROM course`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY " + orderBy(ordering)

	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "expanding query")
	}

	var rows []courseRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "selecting courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, row := range rows {
		c, err := row.toCourse()
		if err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, nil
}

// updateRow carries the status the stored course must still be in for the update to apply.
type updateRow struct {
	courseRow
	From string `db:"from_status"`
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, c course.Course, from course.Status) (course.Course, error) {
	if _, err := uuid.Parse(c.ID); err != nil {
		return course.Course{}, course.ErrNotFound
	}
	row, err := toRow(c)
	if err != nil {
		return course.Course{}, err
	}
	q := `UPDATE course SET name = :name, topic = :topic, mode = :mode, status = :status, modules = :modules,
		error = :error, updated_at = :updated_at, published_at = :published_at
		WHERE id = :id AND status = :from_status`
	res, err := repo.db.NamedExecContext(ctx, q, updateRow{courseRow: row, From: string(from)})
	if err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	if n > 0 {
		return c, nil
	}

	// nothing matched: either the course is gone or its status moved on
	var exists bool
	if err = repo.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM course WHERE id = $1)`, c.ID); err != nil {
		return course.Course{}, errors.Wrap(err, "checking course")
	}
	if !exists {
		return course.Course{}, course.ErrNotFound
	}
	return course.Course{}, course.ErrInvalidTransition
}

func (repo *courseRepository) DeleteCourse(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return course.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM course WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting course")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return course.ErrNotFound
	}
	return nil
}

func (repo *courseRepository) CountByStatus(ctx context.Context) (map[course.Status]int, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	if err := repo.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS count FROM course GROUP BY status`); err != nil {
		return nil, errors.Wrap(err, "counting courses")
	}
	counts := make(map[course.Status]int, len(rows))
	for _, r := range rows {
		counts[course.Status(r.Status)] = r.Count
	}
	return counts, nil
}

// orderBy renders the ORDER BY clause. Fields are whitelisted upstream by core.ParseOrdering.
func orderBy(ordering []core.DBOrdering) string {
	allowed := make(map[string]bool, len(course.OrderableFields))
	for _, f := range course.OrderableFields {
		allowed[f] = true
	}
	parts := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if allowed[ord.Field] {
			parts = append(parts, ord.String())
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "created_at DESC")
	}
	return strings.Join(append(parts, "id ASC"), ", ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
