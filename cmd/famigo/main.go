// Command famigo runs the NES emulator: windowed by default, headless for
// automation, or under the terminal debugger.
package main

import (
	goflag "flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"famigo/internal/app"
	"famigo/internal/cartridge"
	"famigo/internal/console"
	"famigo/internal/debug"
	"famigo/internal/version"
)

func main() {
	defer glog.Flush()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		headless bool
		debugTUI bool
		noSleep  bool
		stopN    int
		scale    int
	)

	cmd := &cobra.Command{
		Use:     "famigo ROM",
		Short:   "NES emulator (NROM)",
		Args:    cobra.ExactArgs(1),
		Version: version.String(),
		// Runtime faults are not usage errors.
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], headless, debugTUI, noSleep, stopN, scale)
		},
	}

	cmd.Flags().BoolVar(&headless, "headless", false, "run without a window")
	cmd.Flags().BoolVar(&debugTUI, "debug", false, "run the terminal debugger instead of the window")
	cmd.Flags().BoolVar(&noSleep, "no-sleep", false, "disable idle-loop fast-forward")
	cmd.Flags().IntVar(&stopN, "stop", 0, "exit after N frames (0 = run until closed)")
	cmd.Flags().IntVar(&scale, "scale", 3, "window scale factor")

	// glog's -v / -logtostderr / -stderrthreshold.
	cmd.Flags().AddGoFlagSet(goflag.CommandLine)

	return cmd
}

func run(romPath string, headless, debugTUI, noSleep bool, stopN, scale int) error {
	cart, err := cartridge.LoadFile(romPath)
	if err != nil {
		return err
	}
	glog.Infof("%s: mapper %d, PRG %d KiB, CHR %d KiB, %s mirroring",
		filepath.Base(romPath), cart.MapperID(),
		cart.PRGSize()/1024, cart.CHRSize()/1024, cart.Mirroring())

	c := console.New(cart, console.Options{DisableIdleSleep: noSleep})

	switch {
	case debugTUI:
		return debug.Run(c)
	case headless:
		return c.Run(stopN, nil)
	default:
		title := fmt.Sprintf("famigo: %s", filepath.Base(romPath))
		return app.New(c, title, stopN).Run(scale)
	}
}
