// Command meshload loads triangle mesh files through the accelerated
// geometry pipeline and reports bounds, timing, and memory statistics.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/gogpu/meshload"
	// Enable GPU decoding; falls back to CPU when no device is available.
	_ "github.com/gogpu/meshload/gpu"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "meshload",
	Short: "meshload loads triangle meshes through the accelerated geometry pipeline",
	Long: `meshload reads binary STL files with chunked parallel decoding,
using GPU compute when a device is available and falling back to CPU
otherwise. It reports geometry bounds, progress, and memory usage.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			meshload.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			})))
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.meshload.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}
