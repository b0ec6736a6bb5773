package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceBSC/internal/config"
	"github.com/OpenTraceLab/OpenTraceBSC/internal/logger"
	"github.com/OpenTraceLab/OpenTraceBSC/pkg/bsc"
	"github.com/OpenTraceLab/OpenTraceBSC/pkg/dongle"
	"github.com/OpenTraceLab/OpenTraceBSC/pkg/hexdump"
	"github.com/OpenTraceLab/OpenTraceBSC/pkg/line"
	"github.com/OpenTraceLab/OpenTraceBSC/pkg/script"
)

var (
	simController string
	simTerminal   string
	simRounds     int
	simTimeout    time.Duration
	simSend       []string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate SCRIPT",
	Short: "Drive the line against a scripted terminal",
	Long: `Run poll and select rounds against a simulated dongle whose terminal answers
from SCRIPT, without a TN3270 host. Records read from the terminal are dumped
to stdout. Use it to check a terminal script or to watch the line protocol
with -v.

Script steps read "on <frame> [cu dev] => <reply> [data] [flags] [* count]":
  on poll 0 3 => text "HELLO" etb
  on ack1     => text "WORLD"
  on ack0     => eot
  on select   => ack0
  on text     => ack1

Examples:
  bscbridge simulate terminal.bsc
  bscbridge simulate terminal.bsc --terminal 3 --send "C1C2" --rounds 4 -v`,
	Args: cobra.ExactArgs(1),
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().StringVar(&simController, "controller", "0", "control unit address")
	simulateCmd.Flags().StringVar(&simTerminal, "terminal", "0", "terminal address")
	simulateCmd.Flags().IntVarP(&simRounds, "rounds", "r", 10, "maximum number of line rounds")
	simulateCmd.Flags().DurationVar(&simTimeout, "timeout", 50*time.Millisecond, "response timeout")
	simulateCmd.Flags().StringSliceVar(&simSend, "send", nil, "hex payload to queue for the terminal (repeatable)")
}

// printSession prints what a host would receive.
type printSession struct {
	records int
}

func (p *printSession) SendRecord(data []byte) error {
	p.records++
	fmt.Printf("Record %d (%d bytes):\n", p.records, len(data))
	for _, l := range hexdump.Lines("  ", hexdump.DefaultWidth, data, true) {
		fmt.Println(l)
	}
	return nil
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cu, err := bsc.ParseAddress(simController)
	if err != nil {
		return fmt.Errorf("--controller: %w", err)
	}
	dev, err := bsc.ParseAddress(simTerminal)
	if err != nil {
		return fmt.Errorf("--terminal: %w", err)
	}

	log, levels := logger.Setup([]config.LoggerConfig{{Stdout: true, Level: "debug", HideTime: true}}, !verbose)
	defer levels.Close()

	responder, err := script.Load(args[0], log)
	if err != nil {
		return err
	}

	sim := dongle.NewSimTransport(responder.Respond)
	d := dongle.New(sim, log)
	defer d.Close()

	l := line.New(d, line.Config{ControllerAddress: cu, ResponseTimeout: simTimeout}, log)
	term, err := l.AddTerminal(dev, "")
	if err != nil {
		return err
	}
	sess := &printSession{}
	term.Attach(sess)

	for _, s := range simSend {
		payload, err := parseHexArgs([]string{s})
		if err != nil {
			return fmt.Errorf("--send %q: %w", s, err)
		}
		if err := term.Enqueue(payload); err != nil {
			return err
		}
	}

	fmt.Printf("Simulating %s with %s (%d steps)\n", term, args[0], responder.Remaining())

	ctx := context.Background()
	rounds := 0
	for rounds < simRounds && (!responder.Done() || term.Pending() > 0) {
		l.RunRound(ctx)
		rounds++
	}

	st := l.Stats()
	fmt.Printf("Rounds:            %d\n", rounds)
	fmt.Printf("Frames sent:       %d\n", st.FramesSent)
	fmt.Printf("Frames received:   %d\n", st.FramesReceived)
	fmt.Printf("Records delivered: %d\n", st.RecordsDelivered)
	fmt.Printf("Payloads sent:     %d\n", st.PayloadsSent)
	fmt.Printf("Timeouts:          %d\n", st.Timeouts)
	fmt.Printf("Script steps left: %d\n", responder.Remaining())

	if m := responder.Mismatches(); len(m) > 0 {
		fmt.Println("Mismatches:")
		for _, msg := range m {
			fmt.Printf("  %s\n", msg)
		}
		return fmt.Errorf("script did not match the line (%d mismatches)", len(m))
	}
	if !responder.Done() {
		return fmt.Errorf("script not finished after %d rounds", rounds)
	}
	return nil
}
