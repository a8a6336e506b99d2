package stats

import (
	"context"
	"log/slog"
	"strings"
)

// LineReader runs a read command on the router and returns its output lines.
// *rci.Client satisfies it.
type LineReader interface {
	ReadLines(ctx context.Context, command string) ([]string, error)
}

// Source fetches the driver dump and extracts a Snapshot from it.
type Source struct {
	reader  LineReader
	command string
	defs    []Definition
	logger  *slog.Logger
}

// NewSource builds a Source issuing command through reader. A nil defs uses
// DefaultDefinitions.
func NewSource(reader LineReader, command string, defs []Definition, logger *slog.Logger) (*Source, error) {
	if defs == nil {
		defs = DefaultDefinitions()
	}
	if err := Validate(defs); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{reader: reader, command: command, defs: defs, logger: logger}, nil
}

// Fetch reads the dump and extracts it. An empty snapshot is not an error:
// the driver may simply not report the metrics yet.
func (s *Source) Fetch(ctx context.Context) (Snapshot, error) {
	lines, err := s.reader.ReadLines(ctx, s.command)
	if err != nil {
		return nil, err
	}
	snap := Extract(strings.Join(lines, "\n"), s.defs)
	if len(snap) == 0 {
		s.logger.Warn("stats: no metrics matched", "command", s.command, "lines", len(lines))
	}
	return snap, nil
}
