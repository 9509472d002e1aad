package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/sioly123/Lazarus-Ground-Station/internal/capture"
	"github.com/sioly123/Lazarus-Ground-Station/internal/radio"
)

func printCaptureSummary(w io.Writer, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}

	recs, err := capture.ReadFile(path)
	if err != nil {
		return err
	}
	s := capture.Summarize(recs)

	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "segments: %d\n", s.Segments)
	fmt.Fprintf(w, "lines: %s (%s)\n", humanize.Comma(int64(s.Lines)), humanize.Bytes(s.Bytes))
	fmt.Fprintf(w, "max_duration: %s\n", s.MaxDuration)
	fmt.Fprintf(w, "telemetry: %s\n", humanize.Comma(int64(s.Telemetry)))
	fmt.Fprintf(w, "transmission: %s\n", humanize.Comma(int64(s.Transmission)))
	fmt.Fprintf(w, "unrecognized: %s\n", humanize.Comma(int64(s.Unrecognized)))
	fmt.Fprintf(w, "rejected: %s\n", humanize.Comma(int64(s.Rejected())))
	fmt.Fprintf(w, "  malformed: %d\n", s.Malformed)
	fmt.Fprintf(w, "  partial: %d\n", s.Partial)
	fmt.Fprintf(w, "  numeric: %d\n", s.NumericParse)
	return nil
}

func printPorts(w io.Writer) error {
	ports, err := radio.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Fprintln(w, "no serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Fprintln(w, p.String())
	}
	return nil
}
