package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/parity/internal/version"
)

var (
	versionVerbose bool
	versionJSON    bool
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the parity version. --verbose adds the commit, build date, Go
version and platform; --json prints all of them as a JSON object.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeVersion(cmd.OutOrStdout(), version.GetInfo(), versionJSON, versionVerbose)
	},
}

func init() {
	versionCmd.Flags().BoolVarP(&versionVerbose, "verbose", "v", false, "show build details")
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "output as JSON")

	rootCmd.AddCommand(versionCmd)
}

func writeVersion(w io.Writer, info version.Info, asJSON, verbose bool) error {
	switch {
	case asJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	case verbose:
		_, err := fmt.Fprintln(w, info.String())
		return err
	default:
		_, err := fmt.Fprintf(w, "parity %s\n", info.Short())
		return err
	}
}
