package nowplaying

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DefaultSkipInterval is the skip forward/backward step in seconds.
const DefaultSkipInterval = 5.0

var (
	// ErrUnknownCommand is returned by ParseCommand for unknown names.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrBadArgument is returned by ParseCommand when the argument is
	// missing or not a number.
	ErrBadArgument = errors.New("bad command argument")
)

// CommandKind identifies a remote command.
type CommandKind int

const (
	CommandPlay CommandKind = iota
	CommandPause
	CommandToggle
	CommandSeekTo
	CommandNext
	CommandPrevious
	CommandSkipForward
	CommandSkipBackward
)

var commandNames = map[CommandKind]string{
	CommandPlay:         "play",
	CommandPause:        "pause",
	CommandToggle:       "toggle",
	CommandSeekTo:       "seek",
	CommandNext:         "next",
	CommandPrevious:     "previous",
	CommandSkipForward:  "forward",
	CommandSkipBackward: "backward",
}

func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return "unknown"
}

// Command is a remote-control request. Value carries the absolute position
// for CommandSeekTo and the step for skips; a zero step means the default
// skip interval.
type Command struct {
	Kind  CommandKind
	Value float64
}

// SkipSeconds returns the signed relative seek of a skip command.
func (c Command) SkipSeconds() float64 {
	step := c.Value
	if step <= 0 {
		step = DefaultSkipInterval
	}
	switch c.Kind {
	case CommandSkipForward:
		return step
	case CommandSkipBackward:
		return -step
	default:
		return 0
	}
}

// ParseCommand builds a command from its name and an optional numeric
// argument, as sent by remote clients.
func ParseCommand(name, arg string) (Command, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for kind, n := range commandNames {
		if n != name {
			continue
		}
		cmd := Command{Kind: kind}
		if arg = strings.TrimSpace(arg); arg != "" {
			v, err := strconv.ParseFloat(arg, 64)
			if err != nil {
				return Command{}, fmt.Errorf("%s: %w %q: %w", name, ErrBadArgument, arg, err)
			}
			cmd.Value = v
		} else if kind == CommandSeekTo {
			return Command{}, fmt.Errorf("%s: %w: position required", name, ErrBadArgument)
		}
		return cmd, nil
	}
	return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
}
