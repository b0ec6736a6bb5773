// Package hexdump formats line and socket traffic for diagnostics.
package hexdump

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"golang.org/x/text/encoding/charmap"
)

// DefaultWidth is the number of bytes shown per line.
const DefaultWidth = 0x20

// Lines formats data as "prefix 0xOFFS - hexbytes" lines, width bytes per
// line. With ebcdic set each line also carries the bytes decoded as EBCDIC
// code page 037, non-printables shown as '.'.
func Lines(prefix string, width int, data []byte, ebcdic bool) []string {
	if width <= 0 {
		width = DefaultWidth
	}

	lines := make([]string, 0, (len(data)+width-1)/width)
	for off := 0; off < len(data); off += width {
		end := off + width
		if end > len(data) {
			end = len(data)
		}
		chunk := data[off:end]

		line := fmt.Sprintf("%s 0x%04x - %x", prefix, off, chunk)
		if ebcdic {
			pad := strings.Repeat("  ", width-len(chunk))
			line += pad + "  |" + Text(chunk) + "|"
		}
		lines = append(lines, line)
	}
	return lines
}

// Text decodes EBCDIC bytes for display.
func Text(data []byte) string {
	var sb strings.Builder
	sb.Grow(len(data))
	for _, b := range data {
		r := charmap.CodePage037.DecodeByte(b)
		if !unicode.IsPrint(r) || r > unicode.MaxASCII {
			r = '.'
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Log writes the dump of data to logger at level, one record per line.
func Log(logger *slog.Logger, level slog.Level, prefix string, data []byte) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx := context.Background()
	if !logger.Enabled(ctx, level) {
		return
	}
	for _, line := range Lines(prefix, DefaultWidth, data, true) {
		logger.Log(ctx, level, line)
	}
}
