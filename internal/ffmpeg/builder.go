package ffmpeg

import (
	"strconv"
	"strings"
)

// Input is one -i source together with the options that precede it.
type Input struct {
	Options []string
	Path    string
}

// OutputGroup is one output file of a multi-output command: the streams
// mapped into it, its encoding arguments and its destination.
type OutputGroup struct {
	Maps []string
	Args []string
	Path string
}

// CommandBuilder builds FFmpeg commands with a fluent API.
// A single invocation may carry several inputs, one complex filter graph
// and any number of output groups.
type CommandBuilder struct {
	binary      string
	globalArgs  []string
	inputs      []Input
	filterGraph []string
	outputs     []OutputGroup
	logLevel    string
	overwrite   bool
	threads     int
}

// NewCommandBuilder creates a new FFmpeg command builder.
// The default log level is info: the HLS muxer reports segment opens at that level.
func NewCommandBuilder(ffmpegPath string) *CommandBuilder {
	return &CommandBuilder{
		binary:   ffmpegPath,
		logLevel: "info",
	}
}

// LogLevel sets the FFmpeg log level.
func (b *CommandBuilder) LogLevel(level string) *CommandBuilder {
	if level != "" {
		b.logLevel = level
	}
	return b
}

// HideBanner hides the FFmpeg banner.
func (b *CommandBuilder) HideBanner() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-hide_banner")
	return b
}

// Overwrite enables output file overwriting.
func (b *CommandBuilder) Overwrite() *CommandBuilder {
	b.overwrite = true
	return b
}

// Stats enables progress stats output.
func (b *CommandBuilder) Stats() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-stats")
	return b
}

// Threads limits the number of encoder threads (0 leaves the choice to ffmpeg).
func (b *CommandBuilder) Threads(n int) *CommandBuilder {
	b.threads = n
	return b
}

// GlobalArgs adds arbitrary global arguments.
func (b *CommandBuilder) GlobalArgs(args ...string) *CommandBuilder {
	b.globalArgs = append(b.globalArgs, args...)
	return b
}

// Input adds an input source with optional per-input options.
func (b *CommandBuilder) Input(path string, options ...string) *CommandBuilder {
	b.inputs = append(b.inputs, Input{Options: append([]string(nil), options...), Path: path})
	return b
}

// FilterClause appends one clause to the complex filter graph,
// e.g. "[0]scale=640:360[v0_hls_1]".
func (b *CommandBuilder) FilterClause(clause string) *CommandBuilder {
	if clause != "" {
		b.filterGraph = append(b.filterGraph, clause)
	}
	return b
}

// Output adds an output group.
func (b *CommandBuilder) Output(group OutputGroup) *CommandBuilder {
	b.outputs = append(b.outputs, OutputGroup{
		Maps: append([]string(nil), group.Maps...),
		Args: append([]string(nil), group.Args...),
		Path: group.Path,
	})
	return b
}

// Inputs returns the inputs added so far.
func (b *CommandBuilder) Inputs() []Input {
	return b.inputs
}

// FilterGraph returns the complex filter clauses added so far.
func (b *CommandBuilder) FilterGraph() []string {
	return b.filterGraph
}

// Outputs returns the output groups added so far.
func (b *CommandBuilder) Outputs() []OutputGroup {
	return b.outputs
}

// Build builds the command.
func (b *CommandBuilder) Build() *Command {
	var args []string

	args = append(args, "-loglevel", b.logLevel)
	args = append(args, b.globalArgs...)

	if b.overwrite {
		args = append(args, "-y")
	}

	inputs := make([]string, 0, len(b.inputs))
	for _, in := range b.inputs {
		args = append(args, in.Options...)
		args = append(args, "-i", in.Path)
		inputs = append(inputs, in.Path)
	}

	if len(b.filterGraph) > 0 {
		args = append(args, "-filter_complex", strings.Join(b.filterGraph, ";"))
	}

	if b.threads > 0 {
		args = append(args, "-threads", strconv.Itoa(b.threads))
	}

	outputs := make([]string, 0, len(b.outputs))
	for _, out := range b.outputs {
		for _, m := range out.Maps {
			args = append(args, "-map", m)
		}
		args = append(args, out.Args...)
		args = append(args, out.Path)
		outputs = append(outputs, out.Path)
	}

	return &Command{
		Binary:  b.binary,
		Args:    args,
		Inputs:  inputs,
		Outputs: outputs,
	}
}

// ParseOptionsString splits an options string respecting quotes,
// e.g. `-preset veryfast -metadata title="My Show"`.
func ParseOptionsString(s string) []string {
	var result []string
	var current strings.Builder
	inQuote := false
	quoteChar := rune(0)
	escaped := false

	for _, r := range s {
		if escaped {
			current.WriteRune(r)
			escaped = false
			continue
		}

		if r == '\\' {
			escaped = true
			continue
		}

		if r == '"' || r == '\'' {
			switch {
			case !inQuote:
				inQuote = true
				quoteChar = r
			case r == quoteChar:
				inQuote = false
			default:
				current.WriteRune(r)
			}
			continue
		}

		if r == ' ' && !inQuote {
			if current.Len() > 0 {
				result = append(result, current.String())
				current.Reset()
			}
			continue
		}

		current.WriteRune(r)
	}

	if current.Len() > 0 {
		result = append(result, current.String())
	}

	return result
}
