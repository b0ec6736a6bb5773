package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/encoding/charmap"

	"github.com/OpenTraceLab/OpenTraceBSC/pkg/bsc"
	"github.com/OpenTraceLab/OpenTraceBSC/pkg/hexdump"
)

var (
	frameETB         bool
	frameTransparent bool
	frameEBCDIC      bool
)

var frameCmd = &cobra.Command{
	Use:   "frame",
	Short: "Build or decode BSC frames",
	Long: `Print the bytes of BSC line frames as the bridge sends them, or decode a frame
captured from the line.

Examples:
  bscbridge frame poll 0 3
  bscbridge frame select 0x01 0x1F
  bscbridge frame text "HELLO" --ebcdic
  bscbridge frame decode 55 32 32 02 C8 C5 D3 D3 D6 03 0B 45 FF`,
}

var framePollCmd = &cobra.Command{
	Use:   "poll CU DEV",
	Short: "Specific poll sequence for a terminal",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printAddressed(args, bsc.MakeFramePollAddress)
	},
}

var frameSelectCmd = &cobra.Command{
	Use:   "select CU DEV",
	Short: "Select sequence for a terminal",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printAddressed(args, bsc.MakeFrameSelectAddress)
	},
}

var frameControlCmd = &cobra.Command{
	Use:       "control eot|nak|ack0|ack1",
	Short:     "Line control frame",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"eot", "nak", "ack0", "ack1"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var f *bsc.Frame
		switch strings.ToLower(args[0]) {
		case "eot":
			f = bsc.MakeFrameEot()
		case "nak":
			f = bsc.MakeFrameNak()
		case "ack0":
			f = bsc.MakeFrameAck(0)
		case "ack1":
			f = bsc.MakeFrameAck(1)
		default:
			return fmt.Errorf("unknown control frame %q", args[0])
		}
		printFrame(f)
		return nil
	},
}

var frameTextCmd = &cobra.Command{
	Use:   "text DATA",
	Short: "Text block with its BCC",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data := []byte(args[0])
		if frameEBCDIC {
			enc, err := charmap.CodePage037.NewEncoder().Bytes(data)
			if err != nil {
				return fmt.Errorf("encode EBCDIC: %w", err)
			}
			data = enc
		}
		printFrame(bsc.MakeFrameCommand(data, !frameETB, frameTransparent))
		return nil
	},
}

var frameDecodeCmd = &cobra.Command{
	Use:   "decode HEX...",
	Short: "Decode raw line bytes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := parseHexArgs(args)
		if err != nil {
			return err
		}
		f := bsc.CreateFrame(raw)
		printFrame(f)
		if typ := f.Type(); typ.IsText() {
			status := "ok"
			if !f.CheckBcc() {
				status = "BAD"
			}
			fmt.Printf("BCC:   %s\n", status)
			if f.HeaderBeforeText() {
				fmt.Println("Header block")
			}
		} else if typ == bsc.FramePollSelect {
			b := f.Bytes()
			if cu, ok := bsc.AddressOfPollChar(b[1]); ok {
				dev, _ := bsc.AddressOfPollChar(b[3])
				fmt.Printf("Poll:  cu %d dev %d\n", cu, dev)
			} else if cu, ok := bsc.AddressOfSelectChar(b[1]); ok {
				dev, _ := bsc.AddressOfPollChar(b[3])
				fmt.Printf("Select: cu %d dev %d\n", cu, dev)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(frameCmd)
	frameCmd.AddCommand(framePollCmd, frameSelectCmd, frameControlCmd, frameTextCmd, frameDecodeCmd)

	frameTextCmd.Flags().BoolVar(&frameETB, "etb", false, "end the block with ETB instead of ETX")
	frameTextCmd.Flags().BoolVar(&frameTransparent, "transparent", false, "transparent text (DLE STX ... DLE ETX)")
	frameTextCmd.Flags().BoolVar(&frameEBCDIC, "ebcdic", false, "encode DATA as EBCDIC code page 037")
}

func printAddressed(args []string, build func(cu, dev int) (*bsc.Frame, error)) error {
	cu, err := bsc.ParseAddress(args[0])
	if err != nil {
		return err
	}
	dev, err := bsc.ParseAddress(args[1])
	if err != nil {
		return err
	}
	f, err := build(cu, dev)
	if err != nil {
		return err
	}
	printFrame(f)
	return nil
}

func printFrame(f *bsc.Frame) {
	fmt.Printf("Frame: %s\n", f)
	fmt.Printf("Type:  %s\n", f.Type())
	if f.Type().IsText() {
		for _, line := range hexdump.Lines("Text: ", hexdump.DefaultWidth, f.TextBytes(), true) {
			fmt.Println(line)
		}
	}
}

// parseHexArgs accepts "0255", "02 55", "02:55" and "0x02 0x55".
func parseHexArgs(args []string) ([]byte, error) {
	var sb strings.Builder
	for _, a := range args {
		for _, field := range strings.FieldsFunc(a, func(r rune) bool { return r == ' ' || r == ':' || r == ',' }) {
			field = strings.TrimPrefix(strings.ToLower(field), "0x")
			if len(field)%2 == 1 {
				field = "0" + field
			}
			sb.WriteString(field)
		}
	}
	raw, err := hex.DecodeString(sb.String())
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("no bytes given")
	}
	return raw, nil
}
