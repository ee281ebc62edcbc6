package cmds

import (
	"github.com/spf13/cobra"
)

func AddCommands(root *cobra.Command) error {
	root.AddCommand(newContainersCmd())
	root.AddCommand(newPHPCmd())
	root.AddCommand(newSitesCmd())
	root.AddCommand(newServicesCmd())
	root.AddCommand(newSystemCmd())
	root.AddCommand(newTrayCmd())
	root.AddCommand(newConfigCmd())
	return nil
}
