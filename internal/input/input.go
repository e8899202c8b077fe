// Package input maps physical keys to game commands.
// Key repeat is not debounced here.
package input

import "github.com/DoyleJ11/tetris-together/internal/engine"

var keymap = map[string]engine.CommandType{
	"ArrowLeft":  engine.CmdMoveLeft,
	"ArrowRight": engine.CmdMoveRight,
	"ArrowDown":  engine.CmdSoftDrop,
	"ArrowUp":    engine.CmdRotate,
	" ":          engine.CmdRotate,
	"p":          engine.CmdTogglePause,
	"P":          engine.CmdTogglePause,

	// terminal aliases
	"h": engine.CmdMoveLeft,
	"l": engine.CmdMoveRight,
	"j": engine.CmdSoftDrop,
	"k": engine.CmdRotate,
}

// Command returns the command bound to key, if any. Reset is not bound to a key.
func Command(key string) (engine.Command, bool) {
	t, ok := keymap[key]
	if !ok {
		return engine.Command{}, false
	}
	return engine.Command{Type: t}, true
}

// Describe is the action-log text for a command. paused is the state before the command.
func Describe(cmd engine.CommandType, paused bool) string {
	switch cmd {
	case engine.CmdMoveLeft:
		return "moved left"
	case engine.CmdMoveRight:
		return "moved right"
	case engine.CmdSoftDrop:
		return "soft dropped"
	case engine.CmdRotate:
		return "rotated piece"
	case engine.CmdTogglePause:
		if paused {
			return "resumed game"
		}
		return "paused game"
	case engine.CmdReset:
		return "started a new round"
	default:
		return string(cmd)
	}
}
