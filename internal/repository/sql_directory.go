package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jmoiron/sqlx"

	"github.com/gurkanbulca/taskflow/internal/database"
)

// SQLDirectory reads projects, teams and profiles from the shared SQL
// database. The write methods exist for seeding; project and team
// management lives outside this service.
type SQLDirectory struct {
	db      *sqlx.DB
	dialect string
}

func NewSQLDirectory(db *database.DB) *SQLDirectory {
	return &SQLDirectory{
		db:      db.X,
		dialect: db.Dialect(),
	}
}

func (d *SQLDirectory) builder() *entsql.DialectBuilder {
	return entsql.Dialect(d.dialect)
}

func (d *SQLDirectory) ProjectManager(ctx context.Context, projectID string) (string, error) {
	query, args := d.builder().Select("manager_id").
		From(entsql.Table(database.ProjectsTable.Name)).
		Where(entsql.EQ("id", projectID)).
		Query()

	var managerID string
	if err := sqlx.GetContext(ctx, d.db, &managerID, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("project %s: %w", projectID, ErrNotFound)
		}
		return "", fmt.Errorf("get project %s: %w", projectID, err)
	}
	return managerID, nil
}

func (d *SQLDirectory) TeamLeads(ctx context.Context, projectID, memberID string) ([]string, error) {
	teams := d.builder().Table(database.TeamsTable.Name).As("t")
	members := d.builder().Table(database.TeamMembersTable.Name).As("m")

	query, args := d.builder().Select(teams.C("lead_id")).
		From(teams).
		Join(members).
		On(teams.C("id"), members.C("team_id")).
		Where(entsql.And(
			entsql.EQ(teams.C("project_id"), projectID),
			entsql.EQ(members.C("user_id"), memberID),
		)).
		OrderBy(teams.C("lead_id")).
		Query()

	var leads []string
	if err := sqlx.SelectContext(ctx, d.db, &leads, query, args...); err != nil {
		return nil, fmt.Errorf("team leads of %s in project %s: %w", memberID, projectID, err)
	}
	return leads, nil
}

func (d *SQLDirectory) UserIDByExternalLogin(ctx context.Context, login string) (string, error) {
	query, args := d.builder().Select("user_id").
		From(entsql.Table(database.ProfilesTable.Name)).
		Where(entsql.EQ("external_login", login)).
		Query()

	var userID string
	if err := sqlx.GetContext(ctx, d.db, &userID, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("profile %s: %w", login, ErrNotFound)
		}
		return "", fmt.Errorf("get profile %s: %w", login, err)
	}
	return userID, nil
}

func (d *SQLDirectory) CreateProject(ctx context.Context, id, name, managerID string) error {
	return d.insert(ctx, database.ProjectsTable.Name, []string{"id", "name", "manager_id"}, id, name, managerID)
}

func (d *SQLDirectory) CreateTeam(ctx context.Context, id, projectID, name, leadID string) error {
	return d.insert(ctx, database.TeamsTable.Name, []string{"id", "project_id", "name", "lead_id"}, id, projectID, name, leadID)
}

func (d *SQLDirectory) AddTeamMember(ctx context.Context, teamID, userID string) error {
	return d.insert(ctx, database.TeamMembersTable.Name, []string{"team_id", "user_id"}, teamID, userID)
}

func (d *SQLDirectory) LinkProfile(ctx context.Context, userID, login string) error {
	return d.insert(ctx, database.ProfilesTable.Name, []string{"user_id", "external_login"}, userID, login)
}

func (d *SQLDirectory) insert(ctx context.Context, table string, columns []string, values ...any) error {
	query, args := d.builder().Insert(table).
		Columns(columns...).
		Values(values...).
		Query()
	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}
