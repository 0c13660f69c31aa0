package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"session-insights/pkg/registry"
)

var registryPath string

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Manage the activity registry",
}

var registryValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the registry file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := registry.LoadRegistry(registryPath)
		if err != nil {
			return fmt.Errorf("failed to load registry: %w", err)
		}
		if err := reg.Validate(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Registry validation passed. Found %d activities.\n", len(reg.Activities))
		return nil
	},
}

var addFlags struct {
	id, displayName, description, category, taskType, version, status, timeout string
}

var registryAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new activity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := registry.ParseStatus(addFlags.status)
		if err != nil {
			return err
		}
		reg, err := registry.LoadRegistry(registryPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("failed to load registry: %w", err)
			}
			reg = &registry.ActivityRegistry{Version: "1.0.0"}
		}

		a := registry.Activity{
			ID:                   addFlags.id,
			DisplayName:          addFlags.displayName,
			Description:          addFlags.description,
			Category:             addFlags.category,
			Version:              addFlags.version,
			TaskType:             addFlags.taskType,
			ImplementationStatus: status,
			InputSchema:          map[string]interface{}{"type": "object"},
			OutputSchema:         map[string]interface{}{"type": "object"},
			ErrorCodes:           []string{},
			Timeout:              addFlags.timeout,
			Workflows:            []string{},
			Tags:                 []string{},
		}
		if err := reg.Add(a, time.Now()); err != nil {
			return err
		}
		if err := reg.Save(registryPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added activity: %s\n", a.ID)
		return nil
	},
}

var updateFlags struct {
	id, field, value string
}

var registryUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update one field of an existing activity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := registry.LoadRegistry(registryPath)
		if err != nil {
			return fmt.Errorf("failed to load registry: %w", err)
		}
		if err := reg.Update(updateFlags.id, updateFlags.field, updateFlags.value, time.Now()); err != nil {
			return err
		}
		if err := reg.Save(registryPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated activity %s, field %s to %s\n", updateFlags.id, updateFlags.field, updateFlags.value)
		return nil
	},
}

func init() {
	registryCmd.PersistentFlags().StringVar(&registryPath, "path", "configs/activity-registry.json", "Path to registry file")

	f := registryAddCmd.Flags()
	f.StringVar(&addFlags.id, "id", "", "Activity ID (e.g. route-question)")
	f.StringVar(&addFlags.displayName, "display-name", "", "Display name")
	f.StringVar(&addFlags.description, "description", "", "Description")
	f.StringVar(&addFlags.category, "category", "", "Category (e.g. conversation)")
	f.StringVar(&addFlags.taskType, "task-type", "", "Zeebe task type")
	f.StringVar(&addFlags.version, "version", "1.0.0", "Version")
	f.StringVar(&addFlags.status, "status", "planned", "Implementation status (planned, in-progress, completed, verified)")
	f.StringVar(&addFlags.timeout, "timeout", "10s", "Job timeout")
	for _, name := range []string{"id", "display-name", "category", "task-type"} {
		_ = registryAddCmd.MarkFlagRequired(name)
	}

	u := registryUpdateCmd.Flags()
	u.StringVar(&updateFlags.id, "id", "", "Activity ID to update")
	u.StringVar(&updateFlags.field, "field", "", "Field to update (status, version, timeout, retries, ...)")
	u.StringVar(&updateFlags.value, "value", "", "New value")
	for _, name := range []string{"id", "field", "value"} {
		_ = registryUpdateCmd.MarkFlagRequired(name)
	}

	registryCmd.AddCommand(registryValidateCmd, registryAddCmd, registryUpdateCmd)
	rootCmd.AddCommand(registryCmd)
}
