package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	inputFile string
	variant   string
	minZoom   int
	maxZoom   int
)

var rootCmd = &cobra.Command{
	Use:   "stencil",
	Short: "Turn map tiles into two-tone stencil images",
	Long: `Reads entities from a CSV file, fetches an aerial tile for each one,
quantizes it to black and white and writes a keyed PNG stencil.`,
	SilenceUsage: true,
}

var areaCmd = &cobra.Command{
	Use:   "area",
	Short: "Fit each tile to the bounding box of the entity's sample points",
	RunE:  runMode(modeArea),
}

var pointCmd = &cobra.Command{
	Use:   "point",
	Short: "Center each tile on the entity's coordinate at the configured zoom",
	RunE:  runMode(modePoint),
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Render every city at each zoom level in a range",
	RunE:  runMode(modeSweep),
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&inputFile, "input", "i", "", "CSV file of entities")
	rootCmd.PersistentFlags().StringVar(&variant, "variant", "", "Quantize variant, overrides QUANTIZE_VARIANT")
	_ = rootCmd.MarkPersistentFlagRequired("input")

	sweepCmd.Flags().IntVar(&minZoom, "min-zoom", 3, "First zoom level")
	sweepCmd.Flags().IntVar(&maxZoom, "max-zoom", 19, "Last zoom level")

	rootCmd.AddCommand(areaCmd, pointCmd, sweepCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
