package app

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrQuit is returned by the quit command
	ErrQuit = errors.New("quit")
	// ErrUnknownCommand is returned for unrecognised input
	ErrUnknownCommand = errors.New("unknown command")
)

// Command is one parsed line of user input
type Command struct {
	Name string
	Args []string
}

// usage lists the commands and how many arguments each takes at most. The
// last argument keeps any remaining text.
var usage = map[string]struct {
	min, max int
	help     string
}{
	"join":   {1, 3, "/join <room> [nick] [password]"},
	"leave":  {1, 2, "/leave <room> [reason]"},
	"say":    {2, 2, "/say <room> <text>"},
	"msg":    {3, 3, "/msg <room> <nick> <text>"},
	"rooms":  {0, 0, "/rooms"},
	"remove": {1, 1, "/remove <room>"},
	"help":   {0, 0, "/help"},
	"quit":   {0, 0, "/quit"},
}

// Help returns the usage line of every command
func Help() []string {
	return []string{
		usage["join"].help,
		usage["leave"].help,
		usage["say"].help,
		usage["msg"].help,
		usage["rooms"].help,
		usage["remove"].help,
		usage["help"].help,
		usage["quit"].help,
	}
}

// CommandNames returns the sorted command names, without the leading slash
func CommandNames() []string {
	names := make([]string, 0, len(usage))
	for name := range usage {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseCommand parses a line like "/say room@conference.example.org hi all"
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return Command{}, fmt.Errorf("%w: commands start with /", ErrUnknownCommand)
	}

	name, rest, _ := strings.Cut(line[1:], " ")
	name = strings.ToLower(name)
	if name == "q" {
		name = "quit"
	}

	u, ok := usage[name]
	if !ok {
		return Command{}, fmt.Errorf("%w: /%s", ErrUnknownCommand, name)
	}

	args := splitArgs(rest, u.max)
	if len(args) < u.min || len(args) > u.max {
		return Command{}, fmt.Errorf("usage: %s", u.help)
	}

	return Command{Name: name, Args: args}, nil
}

// splitArgs splits s on whitespace into at most n fields
func splitArgs(s string, n int) []string {
	var out []string
	s = strings.TrimSpace(s)
	for s != "" && len(out) < n-1 {
		i := strings.IndexAny(s, " \t")
		if i < 0 {
			break
		}
		out = append(out, s[:i])
		s = strings.TrimLeft(s[i:], " \t")
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

// ExecuteCommand runs a parsed command. Results that are not errors are
// reported as events.
func (a *App) ExecuteCommand(cmd Command) error {
	arg := func(i int) string {
		if i < len(cmd.Args) {
			return cmd.Args[i]
		}
		return ""
	}

	switch cmd.Name {
	case "quit":
		return ErrQuit

	case "help":
		a.sendEvent(EventMsg{Type: EventHelp, Data: Help()})
		return nil

	case "join":
		return a.JoinRoom(arg(0), arg(1), arg(2))

	case "leave":
		return a.LeaveRoom(arg(0), arg(1))

	case "say":
		_, err := a.SendRoomMessage(arg(0), arg(1))
		return err

	case "msg":
		_, err := a.SendPrivateMessage(arg(0), arg(1), arg(2))
		return err

	case "rooms":
		a.sendEvent(EventMsg{Type: EventRoomList, Data: a.Rooms()})
		return nil

	case "remove":
		return a.RemoveRoom(arg(0))
	}

	return fmt.Errorf("%w: /%s", ErrUnknownCommand, cmd.Name)
}

// Execute parses and runs one line of input
func (a *App) Execute(line string) error {
	cmd, err := ParseCommand(line)
	if err != nil {
		return err
	}
	return a.ExecuteCommand(cmd)
}
