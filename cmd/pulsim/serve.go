package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/pulsim/internal/radio/goble"
	"github.com/srg/pulsim/internal/sensor"
	"github.com/srg/pulsim/internal/session"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the heart rate peripheral",
	Long: `Starts the Heart Rate Service peripheral: attaches the GATT service,
advertises until a central connects, and streams measurements to subscribed
centrals. Sensor sampling runs only while at least one central is subscribed.

Examples:
  # Advertise as "Pulsim HR" until Ctrl+C
  pulsim serve

  # Custom name, stop automatically after 10 minutes
  pulsim serve --name "Treadmill 3" --timeout 10m

  # Load options from a YAML file
  pulsim serve --config pulsim.yaml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveName        string
	serveTimeout     time.Duration
	serveConfigPath  string
	serveVerbose     bool
	serveSimulate    bool
	serveSimInterval time.Duration
)

func init() {
	serveCmd.Flags().StringVar(&serveName, "name", "", "Advertised local name (default \"Pulsim HR\")")
	serveCmd.Flags().DurationVar(&serveTimeout, "timeout", 0, "Stop automatically after this duration (0 = run until interrupted)")
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "YAML options file; flags override file values")
	serveCmd.Flags().BoolVar(&serveVerbose, "verbose", false, "Enable debug logging")
	serveCmd.Flags().BoolVar(&serveSimulate, "simulate", true, "Use the built-in simulated heart-rate source")
	serveCmd.Flags().DurationVar(&serveSimInterval, "sim-interval", sensor.DefaultSimInterval, "Sample period of the simulated source")
}

// loadServeOptions builds session options from the optional config file with
// flag overrides on top.
func loadServeOptions() (session.Options, error) {
	var opts session.Options

	if serveConfigPath != "" {
		data, err := os.ReadFile(serveConfigPath)
		if err != nil {
			return opts, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &opts); err != nil {
			return opts, fmt.Errorf("failed to parse config file %s: %w", serveConfigPath, err)
		}
	}

	if serveName != "" {
		opts.LocalName = serveName
	}
	if serveTimeout > 0 {
		opts.AutoStop = serveTimeout
	}
	return opts, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	opts, err := loadServeOptions()
	if err != nil {
		return err
	}

	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}

	if !serveSimulate {
		return fmt.Errorf("no hardware sensor source is available in this build; run with --simulate")
	}
	source := sensor.NewSimulator(logger)
	source.Interval = serveSimInterval

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	r := goble.NewRadio(logger)
	sess := session.New(r, source, opts, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		sess.Stop()
	}()

	if err := sess.Start(ctx); err != nil {
		return err
	}

	name := opts.LocalName
	if name == "" {
		name = "Pulsim HR"
	}

	interactive := term.IsTerminal(int(os.Stdout.Fd())) && !serveVerbose
	var status *StatusLine
	if interactive {
		if opts.AutoStop > 0 {
			status = NewCountdownStatusLine(name, "advertising", opts.AutoStop)
		} else {
			status = NewStatusLine(name, "advertising")
		}
		status.Start()
		defer status.Stop()
	} else {
		fmt.Fprintf(os.Stderr, "%s: advertising. Press Ctrl+C to stop...\n", name)
	}

	return renderEvents(sess, status)
}

// renderEvents drains the session event stream until the Stopped event,
// driving either the live status line or plain stderr lines.
func renderEvents(sess *session.Session, status *StatusLine) error {
	var (
		subscribers int
		bpm         int
		lastErr     error
	)

	phase := func() string {
		switch {
		case subscribers == 0:
			return "advertising"
		case bpm > 0:
			return fmt.Sprintf("%d subscribed · %d bpm", subscribers, bpm)
		default:
			return fmt.Sprintf("%d subscribed", subscribers)
		}
	}

	for ev := range sess.Events() {
		switch e := ev.(type) {
		case session.SubscriberCountChanged:
			subscribers = e.Count
			if subscribers == 0 {
				bpm = 0
			}
			if status != nil {
				status.SetPhase(phase())
			} else {
				fmt.Fprintf(os.Stderr, "Subscribers: %d\n", e.Count)
			}

		case session.BPMChanged:
			bpm = e.BPM
			if status != nil {
				status.SetPhase(phase())
			} else {
				fmt.Printf("%d\n", e.BPM)
			}

		case session.AdvertisingFailed:
			if e.Terminal {
				// The session stops itself on terminal failures; remember
				// the error so main() can report it after Stopped arrives.
				lastErr = e.Err
			} else if status != nil {
				status.SetPhase("advertising retry")
			} else {
				fmt.Fprintf(os.Stderr, "Advertising failed, retrying: %v\n", e.Err)
			}

		case session.Stopped:
			if status != nil {
				status.Stop()
			}
			switch {
			case lastErr != nil:
				// main() prints the formatted error
				color.New(color.FgRed).Fprintln(os.Stderr, "Stopped: advertising failed")
			case e.Reason == session.ReasonAutoStop:
				color.New(color.FgYellow).Fprintln(os.Stderr, "Stopped: timeout elapsed")
			default:
				color.New(color.FgGreen).Fprintln(os.Stderr, "Stopped")
			}
		}
	}

	return lastErr
}
