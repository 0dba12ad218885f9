// rulecheck проверяет легальность действия офлайн (снимок и действие из YAML)
// или через gRPC у запущенного gridrules.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rulecheck",
		Short:         "Check grid action legality against a rule set",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newCheckCmd(), newListCmd(), newRemoteCmd())
	return root
}
