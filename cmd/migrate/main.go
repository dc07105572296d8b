// cmd/migrate/main.go
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/gurkanbulca/taskflow/internal/config"
	"github.com/gurkanbulca/taskflow/internal/database"
	"github.com/gurkanbulca/taskflow/internal/log"
	"github.com/gurkanbulca/taskflow/internal/repository"
)

var rootCmd = &cobra.Command{
	Use:   "taskflow-migrate",
	Short: "Manage the taskflow SQL schema and directory data",
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update all tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := database.Migrate(cmd.Context(), db.Driver); err != nil {
			return err
		}
		fmt.Println("Migrations applied successfully")
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert project, team and profile records",
}

var seedProjectCmd = &cobra.Command{
	Use:   "project [id] [name] [manager-id]",
	Short: "Create a project",
	Args:  cobra.ExactArgs(3),
	RunE: withDirectory(func(ctx context.Context, dir *repository.SQLDirectory, args []string) error {
		return dir.CreateProject(ctx, args[0], args[1], args[2])
	}),
}

var seedTeamCmd = &cobra.Command{
	Use:   "team [id] [project-id] [name] [lead-id]",
	Short: "Create a team inside a project",
	Args:  cobra.ExactArgs(4),
	RunE: withDirectory(func(ctx context.Context, dir *repository.SQLDirectory, args []string) error {
		return dir.CreateTeam(ctx, args[0], args[1], args[2], args[3])
	}),
}

var seedMemberCmd = &cobra.Command{
	Use:   "member [team-id] [user-id]",
	Short: "Add a user to a team",
	Args:  cobra.ExactArgs(2),
	RunE: withDirectory(func(ctx context.Context, dir *repository.SQLDirectory, args []string) error {
		return dir.AddTeamMember(ctx, args[0], args[1])
	}),
}

var seedProfileCmd = &cobra.Command{
	Use:   "profile [user-id] [login]",
	Short: "Link a source-control login to a user",
	Args:  cobra.ExactArgs(2),
	RunE: withDirectory(func(ctx context.Context, dir *repository.SQLDirectory, args []string) error {
		return dir.LinkProfile(ctx, args[0], args[1])
	}),
}

func withDirectory(fn func(ctx context.Context, dir *repository.SQLDirectory, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := fn(cmd.Context(), repository.NewSQLDirectory(db), args); err != nil {
			return err
		}
		fmt.Printf("%s: ok\n", cmd.Name())
		return nil
	}
}

func openDB(cmd *cobra.Command) (*database.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	driver, _ := cmd.Flags().GetString("driver")
	if driver == "" {
		driver = cfg.Database.Driver
	}
	if driver == config.DriverMongo {
		// the directory tables always live in SQL
		driver = config.DriverPostgres
	}

	dbCfg := database.Config{
		Driver:   driver,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	}
	if dsn, _ := cmd.Flags().GetString("dsn"); dsn != "" {
		dbCfg.DSN = dsn
	} else if driver == config.DriverSQLite {
		dbCfg.DSN = cfg.Database.SQLiteDSN
	}

	log.GetLogger().WithField("driver", driver).Debug("Opening database")
	return database.Open(dbCfg)
}

func main() {
	// Load .env if present
	if err := godotenv.Load(); err != nil {
		log.GetLogger().Debug("No .env file found")
	}

	rootCmd.PersistentFlags().String("driver", "", "SQL driver (postgres or sqlite3); defaults to STORAGE_DRIVER")
	rootCmd.PersistentFlags().String("dsn", "", "Connection string overriding the DB_* variables")

	seedCmd.AddCommand(seedProjectCmd, seedTeamCmd, seedMemberCmd, seedProfileCmd)
	rootCmd.AddCommand(migrateCmd, seedCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
