package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/quality-engine/internal/model"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Seed and inspect projects in the local store",
	Long:  "Local-deployment helpers for creating and viewing projects. In production the project service owns these records; the engine only reads status and writes it back.",
}

// -- project add --

var projectAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a draft project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		eventID, _ := cmd.Flags().GetString("event")

		now := time.Now().UTC()
		p := &model.Project{
			ID:        uuid.New().String(),
			Name:      args[0],
			EventID:   eventID,
			Status:    model.ProjectStatusDraft,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := env.store.CreateProject(ctx, p); err != nil {
			return eris.Wrap(err, "project add")
		}

		fmt.Println(p.ID)
		return nil
	},
}

// -- project show --

var projectShowCmd = &cobra.Command{
	Use:   "show <project-id>",
	Short: "Show a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		p, err := env.store.GetProject(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "project show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	},
}

func init() {
	projectAddCmd.Flags().String("event", "", "event id to associate with the project")

	projectCmd.AddCommand(projectAddCmd)
	projectCmd.AddCommand(projectShowCmd)
	rootCmd.AddCommand(projectCmd)
}
