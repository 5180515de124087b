package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/gogpu/meshload"
	"github.com/gogpu/meshload/meshcore"
)

var (
	flagCPU         bool
	flagWorkers     int
	flagPreview     string
	flagPreviewSize int
)

var loadCmd = &cobra.Command{
	Use:   "load <file.stl>",
	Short: "Load a mesh file and report bounds and timing",
	Args:  cobra.ExactArgs(1),
	RunE:  runLoad,
}

func init() {
	loadCmd.Flags().BoolVar(&flagCPU, "cpu", false, "force CPU processing")
	loadCmd.Flags().IntVar(&flagWorkers, "workers", 0, "worker count (default: all CPU threads)")
	loadCmd.Flags().StringVar(&flagPreview, "preview", "", "write a PNG point-cloud preview to this path")
	loadCmd.Flags().IntVar(&flagPreviewSize, "preview-size", 512, "preview image edge length in pixels")
	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) error {
	opts, err := loadConfig()
	if err != nil {
		return err
	}
	if flagCPU {
		opts.DisableGPU = true
	}
	if flagWorkers > 0 {
		opts.Workers = flagWorkers
	}

	coord := meshload.NewCoordinator(opts)
	defer coord.Close()

	path := args[0]
	start := time.Now()
	id, err := coord.Submit("cli", path)
	if err != nil {
		return err
	}

	// Ctrl-C cancels the job instead of killing the process, so the
	// pipeline can wind down and report its final state.
	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, os.Interrupt)
	defer signal.Stop(sigC)
	go func() {
		<-sigC
		fmt.Fprintln(os.Stderr, "\ninterrupt: cancelling")
		_ = coord.Cancel(id)
	}()

	events, err := coord.Events(id)
	if err != nil {
		return err
	}
	progress, err := coord.Progress(id)
	if err != nil {
		return err
	}

	var preview *previewAccum
	if flagPreview != "" {
		preview = newPreviewAccum()
	}

	var (
		records int
		lodMax  int
	)
	for events != nil || progress != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			switch ev.Kind {
			case meshload.EventGeometry:
				records += ev.Geometry.Records
				if preview != nil {
					preview.add(ev.Geometry)
				}
			case meshload.EventLOD:
				if ev.LOD.Level > lodMax {
					lodMax = ev.LOD.Level
				}
			case meshload.EventCompleted:
				printSummary(path, records, lodMax, ev.Bounds, time.Since(start), coord, id)
				if preview != nil {
					if err := preview.write(flagPreview, flagPreviewSize, ev.Bounds); err != nil {
						return fmt.Errorf("write preview: %w", err)
					}
					fmt.Printf("preview:   %s\n", flagPreview)
				}
			case meshload.EventCancelled:
				fmt.Printf("cancelled after %s (%d triangles decoded)\n",
					time.Since(start).Round(time.Millisecond), records)
			case meshload.EventFailed:
				return ev.Err
			}
		case _, ok := <-progress:
			if !ok {
				progress = nil
				continue
			}
			if rep, err := coord.Report(id); err == nil && rep.TotalBytes > 0 {
				fmt.Fprintf(os.Stderr, "\r%-8s %5.1f%%", rep.Phase, rep.Percent)
			}
		}
	}
	fmt.Fprintln(os.Stderr)
	return nil
}

func printSummary(path string, records, lodMax int, b meshcore.Bounds, elapsed time.Duration, coord *meshload.Coordinator, id meshcore.JobID) {
	fmt.Fprintln(os.Stderr)
	fmt.Printf("file:      %s\n", path)
	fmt.Printf("triangles: %d\n", records)
	if !b.Empty() {
		size := b.Size()
		center := b.Center()
		fmt.Printf("bounds:    min(%.4g %.4g %.4g) max(%.4g %.4g %.4g)\n",
			b.Min[0], b.Min[1], b.Min[2], b.Max[0], b.Max[1], b.Max[2])
		fmt.Printf("size:      %.4g x %.4g x %.4g (center %.4g %.4g %.4g)\n",
			size[0], size[1], size[2], center[0], center[1], center[2])
	}
	fmt.Printf("lod:       %d levels\n", lodMax+1)
	fmt.Printf("elapsed:   %s\n", elapsed.Round(time.Millisecond))
	if rep, err := coord.Report(id); err == nil && rep.FellBackToCPU {
		fmt.Printf("note:      one or more chunks fell back to CPU\n")
	}
	mem := coord.MemoryUsage()
	fmt.Printf("memory:    %d / %d bytes host budget in use\n",
		mem.HostOutstandingBytes, mem.HostBudgetBytes)
}
