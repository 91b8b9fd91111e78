package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/homebus/conductor/pkg/client"
	"github.com/homebus/conductor/pkg/types"
)

// catalogFile mirrors the on-disk catalog format: a services list plus
// an optional groups list.
type catalogFile struct {
	Services []*types.ServiceDefinition `yaml:"services"`
	Groups   []*types.ServiceGroup      `yaml:"groups"`
}

var applyCmd = &cobra.Command{
	Use:   "apply -f FILE",
	Short: "Register services and groups from a YAML file",
	Long: `Apply a YAML catalog to a running orchestrator.

The file may contain a 'services' list and a 'groups' list. Services
are registered as one atomic batch: a dependency cycle anywhere in the
file rejects the whole batch.

Example:

  services:
    - name: postgres
    - name: api
      depends_on: [postgres]
      healthcheck:
        type: http
        endpoint: http://127.0.0.1:3000/health
        interval: 30s
  groups:
    - name: backend
      members: [postgres, api]`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")
		if path == "" {
			return fmt.Errorf("--file is required")
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		var catalog catalogFile
		if err := yaml.Unmarshal(data, &catalog); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}

		c := apiClient(cmd)
		ctx := cmd.Context()

		if len(catalog.Services) > 0 {
			if err := c.Register(ctx, catalog.Services); err != nil {
				return fmt.Errorf("failed to register services: %w", err)
			}
			fmt.Printf("✓ Registered %d services\n", len(catalog.Services))
		}
		for _, group := range catalog.Groups {
			if err := c.DefineGroup(ctx, group); err != nil {
				return fmt.Errorf("failed to define group %s: %w", group.Name, err)
			}
			fmt.Printf("✓ Defined group %s (%d members)\n", group.Name, len(group.Members))
		}
		return nil
	},
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "Path to the catalog YAML file")
}

// apiClient builds a client from the persistent flags.
func apiClient(cmd *cobra.Command) *client.Client {
	addr, _ := cmd.Root().PersistentFlags().GetString("api")
	user, _ := cmd.Root().PersistentFlags().GetString("user")
	c := client.NewClient(addr)
	if user != "" {
		c = c.WithUser(user)
	}
	return c
}
