package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jmoiron/sqlx"

	"github.com/gurkanbulca/taskflow/internal/database"
	"github.com/gurkanbulca/taskflow/internal/models"
)

var taskColumns = []string{
	"id", "title", "description", "project_id", "created_by", "assigned_to",
	"status", "priority", "due_date", "remarks", "closed_by", "version",
	"created_at", "updated_at",
}

var historyColumns = []string{
	"task_id", "seq", "updated_by", "updated_at", "old_status", "new_status",
}

type taskRow struct {
	ID          string         `db:"id"`
	Title       string         `db:"title"`
	Description string         `db:"description"`
	ProjectID   string         `db:"project_id"`
	CreatedBy   string         `db:"created_by"`
	AssignedTo  string         `db:"assigned_to"`
	Status      string         `db:"status"`
	Priority    string         `db:"priority"`
	DueDate     sql.NullTime   `db:"due_date"`
	Remarks     string         `db:"remarks"`
	ClosedBy    sql.NullString `db:"closed_by"`
	Version     int64          `db:"version"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

type historyRow struct {
	TaskID    string         `db:"task_id"`
	Seq       int64          `db:"seq"`
	UpdatedBy sql.NullString `db:"updated_by"`
	UpdatedAt time.Time      `db:"updated_at"`
	OldStatus string         `db:"old_status"`
	NewStatus string         `db:"new_status"`
}

func (r taskRow) toModel() *models.Task {
	t := &models.Task{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		ProjectID:   r.ProjectID,
		CreatedBy:   r.CreatedBy,
		AssignedTo:  r.AssignedTo,
		Status:      models.Status(r.Status),
		Priority:    models.Priority(r.Priority),
		Remarks:     r.Remarks,
		Version:     r.Version,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		History:     []models.HistoryEntry{},
	}
	if r.DueDate.Valid {
		due := r.DueDate.Time
		t.DueDate = &due
	}
	if r.ClosedBy.Valid {
		closedBy := r.ClosedBy.String
		t.ClosedBy = &closedBy
	}
	return t
}

func (r historyRow) toModel() models.HistoryEntry {
	h := models.HistoryEntry{
		UpdatedAt: r.UpdatedAt,
		OldStatus: models.Status(r.OldStatus),
		NewStatus: models.Status(r.NewStatus),
	}
	if r.UpdatedBy.Valid {
		by := r.UpdatedBy.String
		h.UpdatedBy = &by
	}
	return h
}

// SQLTaskStore implements TaskStore on Postgres or SQLite. Statements are
// built with ent's dialect-aware builder and executed through sqlx.
type SQLTaskStore struct {
	db      *sqlx.DB
	dialect string
}

func NewSQLTaskStore(db *database.DB) *SQLTaskStore {
	return &SQLTaskStore{
		db:      db.X,
		dialect: db.Dialect(),
	}
}

func (s *SQLTaskStore) builder() *entsql.DialectBuilder {
	return entsql.Dialect(s.dialect)
}

func (s *SQLTaskStore) Create(ctx context.Context, t *models.Task) error {
	query, args := s.builder().Insert(database.TasksTable.Name).
		Columns(taskColumns...).
		Values(
			t.ID, t.Title, t.Description, t.ProjectID, t.CreatedBy, t.AssignedTo,
			string(t.Status), string(t.Priority), nullTime(t.DueDate), t.Remarks,
			nullString(t.ClosedBy), t.Version, t.CreatedAt, t.UpdatedAt,
		).
		Query()

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert task %s: %w", t.ID, err)
	}
	return nil
}

func (s *SQLTaskStore) Get(ctx context.Context, id string) (*models.Task, error) {
	return s.get(ctx, s.db, id)
}

func (s *SQLTaskStore) get(ctx context.Context, q sqlx.QueryerContext, id string) (*models.Task, error) {
	query, args := s.builder().Select(taskColumns...).
		From(entsql.Table(database.TasksTable.Name)).
		Where(entsql.EQ("id", id)).
		Query()

	var row taskRow
	if err := sqlx.GetContext(ctx, q, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}

	task := row.toModel()
	history, err := s.history(ctx, q, id)
	if err != nil {
		return nil, err
	}
	task.History = history[id]
	if task.History == nil {
		task.History = []models.HistoryEntry{}
	}
	return task, nil
}

// history loads the ordered history of the given tasks keyed by task id.
func (s *SQLTaskStore) history(ctx context.Context, q sqlx.QueryerContext, ids ...string) (map[string][]models.HistoryEntry, error) {
	out := make(map[string][]models.HistoryEntry, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query, qargs := s.builder().Select(historyColumns...).
		From(entsql.Table(database.TaskHistoryTable.Name)).
		Where(entsql.In("task_id", args...)).
		OrderBy("task_id", "seq").
		Query()

	var rows []historyRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, qargs...); err != nil {
		return nil, fmt.Errorf("load task history: %w", err)
	}
	for _, r := range rows {
		out[r.TaskID] = append(out[r.TaskID], r.toModel())
	}
	return out, nil
}

func (s *SQLTaskStore) ListByProject(ctx context.Context, projectID string) ([]*models.Task, error) {
	query, args := s.builder().Select(taskColumns...).
		From(entsql.Table(database.TasksTable.Name)).
		Where(entsql.EQ("project_id", projectID)).
		OrderBy("created_at", "id").
		Query()

	var rows []taskRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list tasks for project %s: %w", projectID, err)
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	history, err := s.history(ctx, s.db, ids...)
	if err != nil {
		return nil, err
	}

	tasks := make([]*models.Task, len(rows))
	for i, r := range rows {
		tasks[i] = r.toModel()
		if h := history[r.ID]; h != nil {
			tasks[i].History = h
		}
	}
	return tasks, nil
}

func (s *SQLTaskStore) CompareAndSwapStatus(ctx context.Context, id string, expectedVersion int64, update StatusUpdate) (*models.Task, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}

	ub := s.builder().Update(database.TasksTable.Name).
		Set("status", string(update.Status)).
		Set("updated_at", update.Entry.UpdatedAt).
		Add("version", 1).
		Where(entsql.And(
			entsql.EQ("id", id),
			entsql.EQ("version", expectedVersion),
		))
	if update.Remarks != nil {
		ub.Set("remarks", *update.Remarks)
	}
	if update.ClosedBy != nil {
		ub.Set("closed_by", *update.ClosedBy)
	}
	query, args := ub.Query()

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, rollback(tx, fmt.Errorf("update task %s: %w", id, err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, rollback(tx, fmt.Errorf("update task %s: %w", id, err))
	}
	if affected == 0 {
		if _, err := s.get(ctx, tx, id); err != nil {
			return nil, rollback(tx, err)
		}
		return nil, rollback(tx, fmt.Errorf("task %s expected version %d: %w", id, expectedVersion, ErrVersionConflict))
	}

	query, args = s.builder().Insert(database.TaskHistoryTable.Name).
		Columns(historyColumns...).
		Values(
			id, expectedVersion, nullString(update.Entry.UpdatedBy), update.Entry.UpdatedAt,
			string(update.Entry.OldStatus), string(update.Entry.NewStatus),
		).
		Query()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, rollback(tx, fmt.Errorf("append history for task %s: %w", id, err))
	}

	task, err := s.get(ctx, tx, id)
	if err != nil {
		return nil, rollback(tx, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition for task %s: %w", id, err)
	}
	return task, nil
}

func (s *SQLTaskStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}

	query, args := s.builder().Delete(database.TaskHistoryTable.Name).
		Where(entsql.EQ("task_id", id)).
		Query()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return rollback(tx, fmt.Errorf("delete history for task %s: %w", id, err))
	}

	query, args = s.builder().Delete(database.TasksTable.Name).
		Where(entsql.EQ("id", id)).
		Query()
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return rollback(tx, fmt.Errorf("delete task %s: %w", id, err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return rollback(tx, fmt.Errorf("task %s: %w", id, ErrNotFound))
	}
	return tx.Commit()
}

// Helper function for transaction rollback
func rollback(tx *sqlx.Tx, err error) error {
	if rerr := tx.Rollback(); rerr != nil {
		err = fmt.Errorf("%w: %v", err, rerr)
	}
	return err
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
