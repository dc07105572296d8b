package database

import (
	"context"
	"fmt"
	"math"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"

	"github.com/gurkanbulca/taskflow/internal/log"
	"github.com/gurkanbulca/taskflow/internal/models"
)

func statusValues() []string {
	statuses := models.Statuses()
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	return values
}

var (
	// TasksColumns holds the columns for the "tasks" table.
	TasksColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 36},
		{Name: "title", Type: field.TypeString},
		{Name: "description", Type: field.TypeString, Size: math.MaxInt32, Default: ""},
		{Name: "project_id", Type: field.TypeString, Size: 36},
		{Name: "created_by", Type: field.TypeString, Size: 36},
		{Name: "assigned_to", Type: field.TypeString, Size: 36},
		{Name: "status", Type: field.TypeEnum, Enums: statusValues(), Default: string(models.InitialStatus)},
		{Name: "priority", Type: field.TypeEnum, Enums: []string{"Low", "Medium", "High"}, Default: "Medium"},
		{Name: "due_date", Type: field.TypeTime, Nullable: true},
		{Name: "remarks", Type: field.TypeString, Size: math.MaxInt32, Default: ""},
		{Name: "closed_by", Type: field.TypeString, Nullable: true},
		{Name: "version", Type: field.TypeInt64, Default: 1},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	// TasksTable holds the schema information for the "tasks" table.
	TasksTable = &schema.Table{
		Name:       "tasks",
		Columns:    TasksColumns,
		PrimaryKey: []*schema.Column{TasksColumns[0]},
		Indexes: []*schema.Index{
			{Name: "task_project_id", Unique: false, Columns: []*schema.Column{TasksColumns[3]}},
			{Name: "task_assigned_to", Unique: false, Columns: []*schema.Column{TasksColumns[5]}},
			{Name: "task_status", Unique: false, Columns: []*schema.Column{TasksColumns[6]}},
		},
	}

	// TaskHistoryColumns holds the columns for the "task_history" table.
	TaskHistoryColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "task_id", Type: field.TypeString, Size: 36},
		{Name: "seq", Type: field.TypeInt64},
		{Name: "updated_by", Type: field.TypeString, Size: 36, Nullable: true},
		{Name: "updated_at", Type: field.TypeTime},
		{Name: "old_status", Type: field.TypeEnum, Enums: statusValues()},
		{Name: "new_status", Type: field.TypeEnum, Enums: statusValues()},
	}
	// TaskHistoryTable holds the schema information for the "task_history" table.
	// The unique (task_id, seq) index rejects a second append at the same position.
	TaskHistoryTable = &schema.Table{
		Name:       "task_history",
		Columns:    TaskHistoryColumns,
		PrimaryKey: []*schema.Column{TaskHistoryColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "task_history_tasks_history",
				Columns:    []*schema.Column{TaskHistoryColumns[1]},
				RefColumns: []*schema.Column{TasksColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{Name: "taskhistory_task_id_seq", Unique: true, Columns: []*schema.Column{TaskHistoryColumns[1], TaskHistoryColumns[2]}},
		},
	}

	// ProjectsColumns holds the columns for the "projects" table.
	ProjectsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 36},
		{Name: "name", Type: field.TypeString},
		{Name: "manager_id", Type: field.TypeString, Size: 36},
	}
	// ProjectsTable holds the schema information for the "projects" table.
	ProjectsTable = &schema.Table{
		Name:       "projects",
		Columns:    ProjectsColumns,
		PrimaryKey: []*schema.Column{ProjectsColumns[0]},
	}

	// TeamsColumns holds the columns for the "teams" table.
	TeamsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 36},
		{Name: "project_id", Type: field.TypeString, Size: 36},
		{Name: "name", Type: field.TypeString},
		{Name: "lead_id", Type: field.TypeString, Size: 36},
	}
	// TeamsTable holds the schema information for the "teams" table.
	TeamsTable = &schema.Table{
		Name:       "teams",
		Columns:    TeamsColumns,
		PrimaryKey: []*schema.Column{TeamsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "teams_projects_teams",
				Columns:    []*schema.Column{TeamsColumns[1]},
				RefColumns: []*schema.Column{ProjectsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{Name: "team_project_id", Unique: false, Columns: []*schema.Column{TeamsColumns[1]}},
		},
	}

	// TeamMembersColumns holds the columns for the "team_members" table.
	TeamMembersColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "team_id", Type: field.TypeString, Size: 36},
		{Name: "user_id", Type: field.TypeString, Size: 36},
	}
	// TeamMembersTable holds the schema information for the "team_members" table.
	TeamMembersTable = &schema.Table{
		Name:       "team_members",
		Columns:    TeamMembersColumns,
		PrimaryKey: []*schema.Column{TeamMembersColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "team_members_teams_members",
				Columns:    []*schema.Column{TeamMembersColumns[1]},
				RefColumns: []*schema.Column{TeamsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{Name: "teammember_team_id_user_id", Unique: true, Columns: []*schema.Column{TeamMembersColumns[1], TeamMembersColumns[2]}},
			{Name: "teammember_user_id", Unique: false, Columns: []*schema.Column{TeamMembersColumns[2]}},
		},
	}

	// ProfilesColumns holds the columns for the "profiles" table. A profile
	// links an internal user to a source-control login.
	ProfilesColumns = []*schema.Column{
		{Name: "user_id", Type: field.TypeString, Size: 36},
		{Name: "external_login", Type: field.TypeString, Unique: true},
	}
	// ProfilesTable holds the schema information for the "profiles" table.
	ProfilesTable = &schema.Table{
		Name:       "profiles",
		Columns:    ProfilesColumns,
		PrimaryKey: []*schema.Column{ProfilesColumns[0]},
	}

	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		TasksTable,
		TaskHistoryTable,
		ProjectsTable,
		TeamsTable,
		TeamMembersTable,
		ProfilesTable,
	}
)

func init() {
	TaskHistoryTable.ForeignKeys[0].RefTable = TasksTable
	TeamsTable.ForeignKeys[0].RefTable = ProjectsTable
	TeamMembersTable.ForeignKeys[0].RefTable = TeamsTable
}

// Migrate creates or updates all tables.
func Migrate(ctx context.Context, drv dialect.Driver) error {
	log.GetLogger().Info("Running schema migration")
	m, err := schema.NewMigrate(
		drv,
		schema.WithDropIndex(true),
		schema.WithDropColumn(true),
		schema.WithForeignKeys(true),
	)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		return fmt.Errorf("run migration: %w", err)
	}
	log.GetLogger().Info("Schema migration completed")
	return nil
}
