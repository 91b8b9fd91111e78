package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// Service commands
var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage services",
}

var serviceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List services and their instances",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := apiClient(cmd).ListServices(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tDEPENDS ON\tINSTANCES\tSTATES")
		for _, svc := range services {
			states := make(map[string]int)
			for _, inst := range svc.Instances {
				states[string(inst.State)]++
			}
			fmt.Fprintf(w, "%s\t%v\t%d\t%v\n",
				svc.Definition.Name, svc.Definition.DependsOn, len(svc.Instances), states)
		}
		return w.Flush()
	},
}

var serviceStartCmd = &cobra.Command{
	Use:   "start NAME",
	Short: "Start a service",
	Args:  cobra.ExactArgs(1),
	RunE:  serviceTask("start"),
}

var serviceStopCmd = &cobra.Command{
	Use:   "stop NAME",
	Short: "Stop a service",
	Args:  cobra.ExactArgs(1),
	RunE:  serviceTask("stop"),
}

var serviceRestartCmd = &cobra.Command{
	Use:   "restart NAME",
	Short: "Restart a service",
	Args:  cobra.ExactArgs(1),
	RunE:  serviceTask("restart"),
}

// serviceTask submits one lifecycle task and optionally waits for it.
func serviceTask(verb string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c := apiClient(cmd)
		ctx := cmd.Context()
		name := args[0]

		var submit func() (taskID string, err error)
		switch verb {
		case "start":
			submit = func() (string, error) {
				task, err := c.StartService(ctx, name)
				return task.ID, err
			}
		case "stop":
			submit = func() (string, error) {
				task, err := c.StopService(ctx, name)
				return task.ID, err
			}
		case "restart":
			instance, _ := cmd.Flags().GetString("instance")
			submit = func() (string, error) {
				task, err := c.RestartService(ctx, name, instance)
				return task.ID, err
			}
		}

		id, err := submit()
		if err != nil {
			return err
		}
		fmt.Printf("Task %s submitted\n", id)

		if wait, _ := cmd.Flags().GetBool("wait"); wait {
			task, err := c.WaitTask(ctx, id, 0)
			if err != nil {
				return err
			}
			if task.Error != "" {
				return fmt.Errorf("task %s: %s", task.Status, task.Error)
			}
			fmt.Printf("✓ Task %s\n", task.Status)
		}
		return nil
	}
}

var serviceScaleCmd = &cobra.Command{
	Use:   "scale NAME REPLICAS",
	Short: "Scale a service",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		task, err := apiClient(cmd).ScaleService(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Task %s submitted\n", task.ID)
		return nil
	},
}

var serviceMaintenanceCmd = &cobra.Command{
	Use:   "maintenance NAME on|off",
	Short: "Toggle maintenance mode for a service",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[1] {
		case "on", "off":
		default:
			return fmt.Errorf("second argument must be 'on' or 'off'")
		}
		task, err := apiClient(cmd).SetMaintenance(cmd.Context(), args[0], args[1] == "on")
		if err != nil {
			return err
		}
		fmt.Printf("Task %s submitted\n", task.ID)
		return nil
	},
}

var serviceRemoveCmd = &cobra.Command{
	Use:   "remove NAME",
	Short: "Deregister a service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient(cmd).Deregister(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("✓ Service %s removed\n", args[0])
		return nil
	},
}

var serviceOrderCmd = &cobra.Command{
	Use:   "order",
	Short: "Show the catalog in dependency start order",
	RunE: func(cmd *cobra.Command, args []string) error {
		order, err := apiClient(cmd).TopologicalOrder(cmd.Context())
		if err != nil {
			return err
		}
		for i, name := range order {
			fmt.Printf("%d. %s\n", i+1, name)
		}
		return nil
	},
}

func init() {
	serviceCmd.AddCommand(serviceListCmd)
	serviceCmd.AddCommand(serviceStartCmd)
	serviceCmd.AddCommand(serviceStopCmd)
	serviceCmd.AddCommand(serviceRestartCmd)
	serviceCmd.AddCommand(serviceScaleCmd)
	serviceCmd.AddCommand(serviceMaintenanceCmd)
	serviceCmd.AddCommand(serviceRemoveCmd)
	serviceCmd.AddCommand(serviceOrderCmd)

	for _, c := range []*cobra.Command{serviceStartCmd, serviceStopCmd, serviceRestartCmd} {
		c.Flags().Bool("wait", false, "Wait for the task to finish")
	}
	serviceRestartCmd.Flags().String("instance", "", "Restart a single instance")
}

// Group commands
var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage service groups",
}

var groupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List groups",
	RunE: func(cmd *cobra.Command, args []string) error {
		groups, err := apiClient(cmd).ListGroups(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tMEMBERS")
		for _, group := range groups {
			fmt.Fprintf(w, "%s\t%v\n", group.Name, group.Members)
		}
		return w.Flush()
	},
}

var groupStartCmd = &cobra.Command{
	Use:   "start NAME",
	Short: "Start all members of a group in dependency order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := apiClient(cmd).StartGroup(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("✓ %d tasks submitted\n", len(ids))
		return nil
	},
}

var groupStopCmd = &cobra.Command{
	Use:   "stop NAME",
	Short: "Stop all members of a group in reverse order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := apiClient(cmd).StopGroup(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("✓ %d tasks submitted\n", len(ids))
		return nil
	},
}

var groupRemoveCmd = &cobra.Command{
	Use:   "remove NAME",
	Short: "Delete a group definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient(cmd).DeleteGroup(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("✓ Group %s removed\n", args[0])
		return nil
	},
}

func init() {
	groupCmd.AddCommand(groupListCmd)
	groupCmd.AddCommand(groupStartCmd)
	groupCmd.AddCommand(groupStopCmd)
	groupCmd.AddCommand(groupRemoveCmd)
}

// Task commands
var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect and cancel tasks",
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		tasks, err := apiClient(cmd).ListTasks(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tACTION\tSERVICE\tSTATUS\tCREATED BY\tERROR")
		for _, task := range tasks {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				task.ID, task.Action, task.ServiceName, task.Status, task.CreatedBy, task.Error)
		}
		return w.Flush()
	},
}

var taskCancelCmd = &cobra.Command{
	Use:   "cancel ID",
	Short: "Cancel a pending or running task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient(cmd).CancelTask(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("✓ Task %s cancelled\n", args[0])
		return nil
	},
}

func init() {
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskCancelCmd)
}
