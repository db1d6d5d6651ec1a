// Package cli parses the parakeet command line.
package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandWrap    Command = "wrap"
	CommandServe   Command = "serve"
	CommandKbd     Command = "kbd"
	CommandToggle  Command = "toggle"
	CommandStatus  Command = "status"
	CommandPing    Command = "ping"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandWrap:    {},
	CommandServe:   {},
	CommandKbd:     {},
	CommandToggle:  {},
	CommandStatus:  {},
	CommandPing:    {},
	CommandDoctor:  {},
	CommandVersion: {},
	CommandHelp:    {},
}

type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool

	// WrapArgv is the child command line for wrap mode. Everything after the
	// wrap keyword belongs to the child, flags included.
	WrapArgv []string
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			if _, ok := validCommands[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp

			if cmd == CommandWrap {
				parsed.WrapArgv = args[i+1:]
				return parsed, nil
			}
			if i != len(args)-1 {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q", arg)
			}
		}
	}

	return parsed, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] <command>

Commands:
  wrap [cmd args...]   Run a program under the dictation proxy (default: claude)
  serve                Run the inference server with a resident engine
  kbd                  Run the window-mode daemon (global hotkey + xdotool)
  toggle               Toggle recording in a running kbd daemon
  status               Print the kbd daemon's session state
  ping                 Health-check the inference server
  doctor               Run configuration and environment checks
  version              Print version information
  help                 Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/parakeet/config.conf)
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
