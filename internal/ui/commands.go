package ui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type commandKind int

const (
	cmdSearch commandKind = iota
	cmdAdd
	cmdQueueKey
	cmdNext
	cmdPause
	cmdResume
	cmdSkip
	cmdMove
	cmdClear
	cmdHistory
	cmdClearCache
	cmdReload
	cmdReset
	cmdHelp
	cmdQuit
)

// command is a parsed input line. Positions are zero-based.
type command struct {
	kind     commandKind
	query    string
	provider string // search only, "" for every provider
	key      string
	index    int
	to       int
}

var errEmptyCommand = errors.New("empty command")

const helpText = "search [provider:] <query> · add <n> · queue <provider>:<id> · next · pause · resume · " +
	"skip <n> · move <from> <to> · clear · history · clear-cache · reload · reset · quit"

// parseCommand parses one line of user input. Numbers typed by the user
// are one-based.
func parseCommand(line string) (command, error) {
	name, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)
	args := strings.Fields(rest)

	switch strings.ToLower(name) {
	case "":
		return command{}, errEmptyCommand
	case "search", "s":
		if rest == "" {
			return command{}, errors.New("usage: search [provider:] <query>")
		}
		c := command{kind: cmdSearch, query: rest}
		if first, query, ok := strings.Cut(rest, " "); ok && strings.HasSuffix(first, ":") && len(first) > 1 {
			c.provider = strings.TrimSuffix(first, ":")
			c.query = strings.TrimSpace(query)
		}
		return c, nil
	case "add", "a":
		n, err := position(args, 0, "add <n>")
		return command{kind: cmdAdd, index: n}, err
	case "queue", "q":
		if len(args) != 1 || !strings.Contains(args[0], ":") {
			return command{}, errors.New("usage: queue <provider>:<id>")
		}
		return command{kind: cmdQueueKey, key: args[0]}, nil
	case "next", "n":
		return command{kind: cmdNext}, nil
	case "pause":
		return command{kind: cmdPause}, nil
	case "resume", "play":
		return command{kind: cmdResume}, nil
	case "skip":
		n, err := position(args, 0, "skip <n>")
		return command{kind: cmdSkip, index: n}, err
	case "move", "mv":
		from, err := position(args, 0, "move <from> <to>")
		if err != nil {
			return command{}, err
		}
		to, err := position(args, 1, "move <from> <to>")
		return command{kind: cmdMove, index: from, to: to}, err
	case "clear":
		return command{kind: cmdClear}, nil
	case "history", "h":
		return command{kind: cmdHistory}, nil
	case "clear-cache":
		return command{kind: cmdClearCache}, nil
	case "reload":
		return command{kind: cmdReload}, nil
	case "reset":
		return command{kind: cmdReset}, nil
	case "help", "?":
		return command{kind: cmdHelp}, nil
	case "quit", "exit":
		return command{kind: cmdQuit}, nil
	}
	return command{}, fmt.Errorf("unknown command %q, type help", name)
}

func position(args []string, i int, usage string) (int, error) {
	if i >= len(args) {
		return 0, errors.New("usage: " + usage)
	}
	n, err := strconv.Atoi(args[i])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid position %q", args[i])
	}
	return n - 1, nil
}
