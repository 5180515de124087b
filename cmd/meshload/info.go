package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gogpu/meshload"
)

var infoCmd = &cobra.Command{
	Use:   "info [file.stl]",
	Short: "Show file layout and detected hardware",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	backend := meshload.DetectHardware()
	fmt.Printf("cpu threads:  %d\n", backend.CPUThreads)
	if backend.GPUAvailable {
		name := "unknown"
		if p := meshload.Processor(); p != nil {
			name = p.Name()
		}
		fmt.Printf("gpu:          %s (%d MiB budget)\n", name, backend.GPUMemoryBytes>>20)
	} else {
		fmt.Printf("gpu:          not available\n")
	}

	if len(args) == 0 {
		return nil
	}

	path := args[0]
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return err
	}

	var stl meshload.STLBinary
	layout, err := stl.Probe(f, st.Size())
	if err != nil {
		return err
	}
	fmt.Printf("file:         %s\n", path)
	fmt.Printf("format:       binary STL\n")
	fmt.Printf("triangles:    %d\n", layout.RecordCount)
	fmt.Printf("payload:      %d bytes (%d-byte records after %d-byte header)\n",
		layout.PayloadBytes(), layout.RecordSize, layout.HeaderSize)
	return nil
}
