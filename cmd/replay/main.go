package main

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zwangde/pulsed-power-ml/internal/ml"
	"github.com/zwangde/pulsed-power-ml/internal/models"
	"github.com/zwangde/pulsed-power-ml/internal/nilm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Run recorded data points through the NILM detector",
		Long: `Replay reads data point files recorded from the acquisition chain
(little-endian float32, one data point after the other) and prints the state
vector or the switching events the detector produces.
`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.SetOutput(os.Stderr)
			if verbose {
				log.SetLevel(log.DebugLevel)
			}
		},
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	cmd.AddCommand(runCmd(), inspectCmd())
	return cmd
}

type replayOptions struct {
	format     string // csv, jsonl
	eventsOnly bool
}

type replayStats struct {
	frames  int
	events  int
	applied int
}

func runCmd() *cobra.Command {
	var (
		modelPath string
		inputPath string
		opts      replayOptions
	)
	cfg := nilm.DefaultConfig()
	var spectrumType string

	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Replay a data point file",
		Example: `replay run --model model.yaml --input frames.bin --events-only`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := ml.LoadModel(modelPath)
			if err != nil {
				return err
			}
			if cfg.SpectrumType, err = nilm.ParseSpectrumType(spectrumType); err != nil {
				return err
			}
			if err := model.Apply(&cfg); err != nil {
				return err
			}

			in, err := os.Open(inputPath)
			if err != nil {
				return fmt.Errorf("failed to open input: %w", err)
			}
			defer in.Close()

			out := bufio.NewWriter(cmd.OutOrStdout())
			defer out.Flush()

			stats, err := replay(out, in, cfg, model.Names(), opts)
			if err != nil {
				return err
			}
			log.Infof("Replayed %d frames: %d events, %d applied", stats.frames, stats.events, stats.applied)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&modelPath, "model", "", "reference model file (yaml or json)")
	flags.StringVar(&inputPath, "input", "", "data point file")
	flags.StringVar(&opts.format, "format", "csv", "output format: csv or jsonl")
	flags.BoolVar(&opts.eventsOnly, "events-only", false, "only print frames that classified an event")
	flags.IntVar(&cfg.WindowSize, "window-size", cfg.WindowSize, "frames per window region")
	flags.IntVar(&cfg.StepSize, "step-size", cfg.StepSize, "fill counter decrement per transient frame")
	flags.Float64Var(&cfg.SwitchThreshold, "switch-threshold", cfg.SwitchThreshold, "switch detection threshold in dB")
	flags.IntVar(&cfg.SpectrumLength, "spectrum-length", cfg.SpectrumLength, "bins per spectrum")
	flags.IntVar(&cfg.SampleRate, "sample-rate", cfg.SampleRate, "acquisition sample rate")
	flags.StringVar(&spectrumType, "spectrum", cfg.SpectrumType.String(), "classified spectrum: voltage, current or apparent_power")
	flags.IntVar(&cfg.Neighbors, "neighbors", cfg.Neighbors, "k of the nearest neighbour vote")
	flags.Float64Var(&cfg.DistanceThreshold, "distance-threshold", cfg.DistanceThreshold, "nearest distance above which events are other")
	flags.BoolVar(&cfg.PhysicalValidation, "validation", false, "check switches against the measured apparent power")
	flags.Float64Var(&cfg.ToleranceRatio, "tolerance", cfg.ToleranceRatio, "accepted relative deviation from nominal power")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

type jsonFrame struct {
	Frame     int       `json:"frame"`
	Values    []float64 `json:"values"`
	Power     float64   `json:"apparent_power"`
	Event     string    `json:"event,omitempty"`
	Appliance string    `json:"appliance,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	Reset     bool      `json:"reset,omitempty"`
}

// replay streams data points from r through a fresh detector and writes one
// record per frame (or per classified event) to w
func replay(w io.Writer, r io.Reader, cfg nilm.Config, names []string, opts replayOptions) (replayStats, error) {
	var stats replayStats

	detector, err := nilm.NewDetector(cfg, nil)
	if err != nil {
		return stats, err
	}

	var (
		csvOut  *csv.Writer
		jsonOut *json.Encoder
	)
	switch opts.format {
	case "csv":
		csvOut = csv.NewWriter(w)
		defer csvOut.Flush()
		header := append([]string{"frame"}, names...)
		header = append(header, "apparent_power", "event", "outcome")
		if err := csvOut.Write(header); err != nil {
			return stats, err
		}
	case "jsonl":
		jsonOut = json.NewEncoder(w)
	default:
		return stats, fmt.Errorf("unknown output format %q", opts.format)
	}

	frames := models.NewFrameReader(r, cfg.DataPointSize())
	for {
		values, err := frames.Next()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("failed to read frame %d: %w", stats.frames, err)
		}

		frame, err := detector.Step(nilm.ParseInput(values))
		if err != nil {
			return stats, fmt.Errorf("frame %d: %w", stats.frames, err)
		}
		index := stats.frames
		stats.frames++

		var event, appliance, outcome string
		if frame.Event != nil {
			stats.events++
			event = frame.Event.String()
			if frame.Event.Appliance >= 0 && frame.Event.Appliance < len(names)-1 {
				appliance = names[frame.Event.Appliance]
			}
			outcome = frameOutcome(frame)
			if frame.Applied {
				stats.applied++
			}
		}
		if opts.eventsOnly && frame.Event == nil {
			continue
		}

		if jsonOut != nil {
			if err := jsonOut.Encode(jsonFrame{
				Frame:     index,
				Values:    frame.State,
				Power:     frame.ApparentPower,
				Event:     event,
				Appliance: appliance,
				Outcome:   outcome,
				Reset:     frame.Reset,
			}); err != nil {
				return stats, err
			}
			continue
		}

		row := []string{strconv.Itoa(index)}
		for _, v := range frame.State {
			row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
		}
		row = append(row, strconv.FormatFloat(frame.ApparentPower, 'f', -1, 64), event, outcome)
		if err := csvOut.Write(row); err != nil {
			return stats, err
		}
	}
}

func frameOutcome(frame nilm.Frame) string {
	switch {
	case frame.Suppressed != nil:
		return models.OutcomeSuppressed
	case frame.Rejected != nil:
		return models.OutcomeRejected
	case frame.Applied:
		return models.OutcomeApplied
	default:
		return models.OutcomeIgnored
	}
}

func inspectCmd() *cobra.Command {
	var modelPath string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the appliance catalog and training set of a model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := ml.LoadModel(modelPath)
			if err != nil {
				return err
			}
			return inspect(cmd.OutOrStdout(), model)
		},
	}
	cmd.Flags().StringVar(&modelPath, "model", "", "reference model file (yaml or json)")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func inspect(w io.Writer, model *ml.Model) error {
	set := model.TrainingSet()
	counts := make([]int, 2*len(model.Appliances)+1)
	for _, row := range set.Labels {
		for c, v := range row {
			if v == 1 && c < len(counts) {
				counts[c]++
			}
		}
	}

	fmt.Fprintf(w, "model %q: %d training samples, %d features (%d peaks)\n",
		model.Version, len(set.Features), model.FeatureCount(), model.MaxPeaks())
	for i, a := range model.Appliances {
		on := nilm.Event{Kind: nilm.EventSwitchOn, Appliance: i}
		off := nilm.Event{Kind: nilm.EventSwitchOff, Appliance: i}
		n := len(model.Appliances)
		fmt.Fprintf(w, "%3d  %-24s %8.1f VA  samples on=%d off=%d\n",
			i, a.Name, a.ApparentPower, counts[on.Class(n)], counts[off.Class(n)])
	}
	fmt.Fprintf(w, "     %-24s %8s     samples=%d\n", "other", "", counts[len(counts)-1])
	for _, rule := range model.NoiseRules {
		fmt.Fprintf(w, "noise rule: %s(%d) when %s power > %g\n", rule.Event, rule.Appliance, rule.Probe, rule.Above)
	}
	return nil
}
