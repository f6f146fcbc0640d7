package cli

import (
	"fmt"

	"github.com/cabinet-cloud/cabinet/internal/version"

	"github.com/spf13/cobra"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Get()
			fmt.Printf("cabinet %s", info.Version)
			if info.GitCommit != "" {
				fmt.Printf(" (%s)", info.GitCommit)
			}
			fmt.Printf("\n%s %s\n", info.GoVersion, info.Platform)
		},
	}
}
