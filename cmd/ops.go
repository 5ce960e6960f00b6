// File: cmd/ops.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mverte/visor-cli/api/schemas"
	"github.com/mverte/visor-cli/internal/dispatch"
)

// newOpsCmd creates the `ops` command, which lists the known operations and
// their execution modality.
func newOpsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ops",
		Short: "Lists the known operations grouped by execution modality",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := dispatch.DefaultRegistry()
			for _, m := range []schemas.Modality{
				schemas.ModalityStructured,
				schemas.ModalityVisual,
				schemas.ModalityHybrid,
			} {
				fmt.Printf("%s:\n", m)
				for _, name := range reg.NamesByModality(m) {
					fmt.Printf("  %s\n", name)
				}
			}
			fmt.Println("\nUnlisted operation names execute as hybrid.")
			return nil
		},
	}
}
