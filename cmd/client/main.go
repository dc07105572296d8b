// cmd/client/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/gurkanbulca/taskflow/internal/config"
	"github.com/gurkanbulca/taskflow/internal/service"
	"github.com/gurkanbulca/taskflow/pkg/auth"
)

var rootCmd = &cobra.Command{
	Use:   "taskflow",
	Short: "Command line client for the taskflow workflow API",
}

var tokenCmd = &cobra.Command{
	Use:   "token [user-id]",
	Short: "Mint a development access token with the local JWT secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		role, _ := cmd.Flags().GetString("role")
		tm := auth.NewTokenManager(cfg.JWT.AccessSecret, cfg.JWT.AccessTokenDuration)
		token, expiresAt, err := tm.GenerateAccessToken(args[0], role)
		if err != nil {
			return err
		}
		fmt.Println(token)
		fmt.Fprintf(os.Stderr, "expires at %s\n", time.Unix(expiresAt, 0).Format(time.RFC3339))
		return nil
	},
}

var createCmd = &cobra.Command{
	Use:   "create [project-id] [assignee-id] [title]",
	Short: "Assign a new task",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		fields := map[string]interface{}{
			"project_id":  args[0],
			"assigned_to": args[1],
			"title":       args[2],
		}
		for _, name := range []string{"description", "priority", "due_date"} {
			if v, _ := cmd.Flags().GetString(name); v != "" {
				fields[name] = v
			}
		}
		return call(cmd, service.MethodCreateTask, fields)
	},
}

var getCmd = &cobra.Command{
	Use:   "get [task-id]",
	Short: "Show a task with its history and the moves open to you",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, service.MethodGetTask, map[string]interface{}{"task_id": args[0]})
	},
}

var listCmd = &cobra.Command{
	Use:   "list [project-id]",
	Short: "List the tasks of a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, service.MethodListTasks, map[string]interface{}{"project_id": args[0]})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [task-id]",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, service.MethodDeleteTask, map[string]interface{}{"task_id": args[0]})
	},
}

var transitionCmd = &cobra.Command{
	Use:   "transition [method] [task-id]",
	Short: "Invoke a workflow method such as StartProgress, Approve or RejectTaskByManager",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fields := map[string]interface{}{"task_id": args[1]}
		for _, name := range []string{"remarks", "reason", "feedback", "status", "closed_by"} {
			if v, _ := cmd.Flags().GetString(name); v != "" {
				fields[name] = v
			}
		}
		if cmd.Flags().Changed("approved") {
			approved, _ := cmd.Flags().GetBool("approved")
			fields["approved"] = approved
		}
		return call(cmd, args[0], fields)
	},
}

func call(cmd *cobra.Command, method string, fields map[string]interface{}) error {
	addr, _ := cmd.Flags().GetString("addr")
	token, _ := cmd.Flags().GetString("token")
	if token == "" {
		token = os.Getenv("TASKFLOW_TOKEN")
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	if token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
	}

	out, err := service.NewWorkflowServiceClient(conn).Call(ctx, method, fields)
	if err != nil {
		return err
	}
	reply, err := service.DecodeReply(out)
	if err != nil {
		return err
	}

	b, err := json.MarshalIndent(reply, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	if !reply.Success {
		return fmt.Errorf("%s: %s", reply.ErrorKind, reply.Message)
	}
	return nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found")
	}

	rootCmd.PersistentFlags().String("addr", "localhost:50051", "gRPC server address")
	rootCmd.PersistentFlags().String("token", "", "Access token (defaults to TASKFLOW_TOKEN)")
	rootCmd.SilenceUsage = true

	tokenCmd.Flags().String("role", "", "Role claim, e.g. integration")

	createCmd.Flags().String("description", "", "Task description")
	createCmd.Flags().String("priority", "", "Low, Medium or High")
	createCmd.Flags().String("due_date", "", "RFC 3339 due date")

	transitionCmd.Flags().String("remarks", "", "Approval or reopen remarks")
	transitionCmd.Flags().String("reason", "", "Rejection reason")
	transitionCmd.Flags().String("feedback", "", "Requested modifications")
	transitionCmd.Flags().String("status", "", "Target status for UpdateTaskStatus")
	transitionCmd.Flags().String("closed_by", "", "External login for CloseTask")
	transitionCmd.Flags().Bool("approved", false, "Decision for ApproveTaskCompletion")

	rootCmd.AddCommand(tokenCmd, createCmd, getCmd, listCmd, deleteCmd, transitionCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
