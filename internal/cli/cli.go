// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdChat
	CmdStatus
	CmdPull
	CmdServe
	CmdConfig
	CmdVersion
	CmdHelp
)

// String returns the command name as typed on the command line.
func (c Command) String() string {
	switch c {
	case CmdTUI:
		return "tui"
	case CmdChat:
		return "chat"
	case CmdStatus:
		return "status"
	case CmdPull:
		return "pull"
	case CmdServe:
		return "serve"
	case CmdConfig:
		return "config"
	case CmdVersion:
		return "version"
	default:
		return "help"
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet      bool
	Verbose    bool
	JSON       bool
	Model      string
	Backend    string
	ConfigPath string

	// Voice input (tui, serve)
	Voice          bool
	TranscriptFile string

	// serve
	Addr string

	// config
	Subcommand string
	ConfigKey  string
	ConfigVal  string
	Force      bool

	// Unknown is set when the command word was not recognized.
	Unknown string

	// Raw args (remaining after the command word)
	Raw []string
}

const usageText = `localtalk - chat with an on-device language model

localtalk runs one conversation against a local inference engine (Ollama or
any OpenAI-compatible local server). Typed text and speech transcripts feed
the same conversation, one turn at a time. Nothing is written to disk.

Usage:
  localtalk [flags]                  Start the full-screen chat (default)
  localtalk chat [flags]             Line-oriented chat
  localtalk status                   Show engine and model availability
  localtalk pull                     Download the model and follow progress
  localtalk serve [--addr ADDR]      Serve the local HTTP API
  localtalk config [subcommand]      Configuration
  localtalk version                  Show version
  localtalk help                     Show this help

Global flags:
  -m, --model NAME        Model name (overrides config)
  -b, --backend NAME      Engine backend: ollama, openai, none
  -c, --config PATH       Config file (default ~/.localtalk/config.toml)
  --json                  JSON output (status, config, version)
  -q, --quiet             Minimal output
  -v, --verbose           Debug logging

Voice flags (tui, serve):
  --transcript PATH       Tail PATH for "interim<TAB>text" / "final<TAB>text" lines
  --voice                 Start with voice input on

Config subcommands:
  init [--force]          Write the default config file
  show                    Print the effective configuration
  get KEY                 Print one value (e.g. engine.model)
  set KEY VALUE           Change one value and save
  path                    Print the config file path
  keys                    List all keys

Environment:
  LOCALTALK_BACKEND, LOCALTALK_MODEL, LOCALTALK_OLLAMA_URL,
  LOCALTALK_OPENAI_URL, LOCALTALK_OPENAI_KEY, LOCALTALK_LOG_LEVEL,
  LOCALTALK_LOG_FILE, LOCALTALK_TRANSCRIPT_FILE, NO_COLOR

Chat commands:
  /help /reset /status /check /download /detail /log /quit

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage() {
	fmt.Printf(usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("localtalk version %s\n", Version)
	fmt.Printf("  Git commit: %s\n", GitCommit)
	fmt.Printf("  Build date: %s\n", BuildDate)
	fmt.Printf("  Go:         %s\n", runtime.Version())
}

// Parse parses os.Args.
func Parse() (Command, Args) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses command-line arguments and returns the command and args.
// Global flags may appear before or after the command word.
func ParseArgs(argv []string) (Command, Args) {
	remaining, parsed := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		return CmdTUI, parsed
	}

	word := remaining[0]
	if !strings.HasPrefix(word, "-") {
		word = strings.ToLower(word)
	}
	rest := remaining[1:]
	parsed.Raw = rest

	switch word {
	case "tui":
		parseVoiceArgs(&parsed, rest)
		return CmdTUI, parsed
	case "chat":
		return CmdChat, parsed
	case "status", "s":
		return CmdStatus, parsed
	case "pull", "download":
		return CmdPull, parsed
	case "serve", "server":
		parseServeArgs(&parsed, rest)
		return CmdServe, parsed
	case "config":
		parseConfigArgs(&parsed, rest)
		return CmdConfig, parsed
	case "version", "-V", "--version":
		return CmdVersion, parsed
	case "help", "-h", "--help":
		return CmdHelp, parsed
	}

	// Voice flags are accepted without an explicit "tui"
	if strings.HasPrefix(word, "-") {
		parseVoiceArgs(&parsed, remaining)
		if len(parsed.Raw) == 0 {
			return CmdTUI, parsed
		}
	}
	parsed.Unknown = remaining[0]
	return CmdHelp, parsed
}

// parseGlobalFlags extracts global flags from args and returns remaining args.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	var parsed Args

	takeValue := func(i *int, target *string) {
		if *i+1 < len(args) {
			*i++
			*target = args[*i]
		}
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch arg {
		case "-q", "--quiet":
			parsed.Quiet = true
		case "-v", "--verbose":
			parsed.Verbose = true
		case "--json":
			parsed.JSON = true
		case "-m", "--model":
			takeValue(&i, &parsed.Model)
		case "-b", "--backend":
			takeValue(&i, &parsed.Backend)
		case "-c", "--config":
			takeValue(&i, &parsed.ConfigPath)
		default:
			switch {
			case strings.HasPrefix(arg, "--model="):
				parsed.Model = strings.TrimPrefix(arg, "--model=")
			case strings.HasPrefix(arg, "--backend="):
				parsed.Backend = strings.TrimPrefix(arg, "--backend=")
			case strings.HasPrefix(arg, "--config="):
				parsed.ConfigPath = strings.TrimPrefix(arg, "--config=")
			default:
				remaining = append(remaining, arg)
			}
		}
	}

	parsed.Backend = strings.ToLower(parsed.Backend)
	return remaining, parsed
}

// parseVoiceArgs reads --voice and --transcript. Anything else is left in
// args.Raw.
func parseVoiceArgs(args *Args, rest []string) {
	p := NewArgParser(rest, "voice")
	args.Voice = p.BoolFlag("voice")
	args.TranscriptFile = p.Flag("transcript", "t")
	args.Raw = p.PositionalFrom(0)
}

func parseServeArgs(args *Args, rest []string) {
	parseVoiceArgs(args, rest)
	args.Addr = NewArgParser(rest, "voice").Flag("addr", "a")
}

// parseConfigArgs parses config command specific arguments.
func parseConfigArgs(args *Args, rest []string) {
	p := NewArgParser(rest, "force", "f")
	args.Subcommand = strings.ToLower(p.Subcommand())
	args.ConfigKey = p.Positional(1)
	args.ConfigVal = strings.Join(p.PositionalFrom(2), " ")
	args.Force = p.BoolFlag("force", "f")
}

// =============================================================================
// DISPATCH
// =============================================================================

// Run executes cmd.
func Run(cmd Command, args Args) error {
	switch cmd {
	case CmdTUI:
		return HandleTUI(args)
	case CmdChat:
		return HandleChat(args)
	case CmdStatus:
		return HandleStatus(args)
	case CmdPull:
		return HandlePull(args)
	case CmdServe:
		return HandleServe(args)
	case CmdConfig:
		return HandleConfig(args)
	case CmdVersion:
		HandleVersion(args)
		return nil
	default:
		if args.Unknown != "" {
			PrintUsage()
			return NewValidationErrorWithExample("command", args.Unknown, "unknown command", "localtalk help")
		}
		PrintUsage()
		return nil
	}
}

// HandleVersion handles the "version" command with JSON output support.
func HandleVersion(args Args) {
	if args.JSON {
		data := VersionData{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
		}
		_ = NewJSONResponse("version", data).Print()
		return
	}
	PrintVersion()
}
