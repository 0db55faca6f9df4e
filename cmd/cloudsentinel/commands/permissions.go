package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DrSkyle/cloudsentinel/pkg/engine/permissions"
)

var permissionsCmd = &cobra.Command{
	Use:   "permissions",
	Short: "Generate Least-Privilege IAM Policy",
	Long: `Generates the IAM JSON policy each handler needs.

The first statement belongs on the function's execution role, the second on the
cross-account roles it assumes.

Example:
  cloudsentinel permissions --handler monitor`,
	RunE: func(cmd *cobra.Command, args []string) error {
		names, _ := cmd.Flags().GetStringSlice("handler")
		jsonBytes, err := permissions.GeneratePolicy(names)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(jsonBytes))
		return nil
	},
}

func init() {
	permissionsCmd.Flags().StringSlice("handler", nil, "Limit to handlers (reports, alerts, tagger, monitor)")
}
