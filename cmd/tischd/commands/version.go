// Copyright © 2025 Tischnet contributors
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the version of tischd.
var Version = "unset"

// Copyright is the copyright including authors of tischd.
var Copyright = "Copyright © 2025 Tischnet contributors"

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of tischd",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tischd version %s\n%s\n", Version, Copyright)
	},
}

func init() {
	RootCmd.AddCommand(versionCmd)
}
