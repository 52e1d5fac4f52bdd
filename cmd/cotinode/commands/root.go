package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

//RootCmd is the root command for cotinode
var RootCmd = &cobra.Command{
	Use:              "cotinode",
	Short:            "COTI network node",
	TraverseChildren: true,
}
