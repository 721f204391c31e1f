package ui

import (
	"io"
	"os"

	"golang.org/x/term"
)

// Key is a decoded keyboard command.
type Key int

const (
	KeyNone Key = iota
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeyFineLeft
	KeyFineRight
	KeyToggle
	KeyReset
	KeyQuit
)

const (
	keyEsc   = 0x1b
	keyCtrlC = 0x03
)

// decodeKeys appends the commands found in b to dst. Arrow keys arrive as
// ESC [ A..D; an ESC that ends the buffer is a lone Escape and quits.
func decodeKeys(b []byte, dst []Key) []Key {
	for i := 0; i < len(b); i++ {
		c := b[i]
		if c == keyEsc {
			if i+2 < len(b) && b[i+1] == '[' {
				switch b[i+2] {
				case 'A':
					dst = append(dst, KeyUp)
				case 'B':
					dst = append(dst, KeyDown)
				case 'C':
					dst = append(dst, KeyRight)
				case 'D':
					dst = append(dst, KeyLeft)
				}
				i += 2
				continue
			}
			if i == len(b)-1 {
				dst = append(dst, KeyQuit)
			}
			continue
		}
		if k := keyFor(c); k != KeyNone {
			dst = append(dst, k)
		}
	}
	return dst
}

func keyFor(c byte) Key {
	switch c {
	case 'k', 'w':
		return KeyUp
	case 'j', 's':
		return KeyDown
	case 'h', 'a':
		return KeyLeft
	case 'l', 'd':
		return KeyRight
	case '[', ',':
		return KeyFineLeft
	case ']', '.':
		return KeyFineRight
	case ' ', '\r', '\n':
		return KeyToggle
	case 'r':
		return KeyReset
	case 'q', 'Q', keyCtrlC:
		return KeyQuit
	default:
		return KeyNone
	}
}

// Terminal puts a terminal in raw mode for single key input and reports its
// size. Non-terminal files are used as they are.
type Terminal struct {
	in    *os.File
	out   io.Writer
	outFd int
	state *term.State
}

// OpenTerminal switches in to raw mode when it is a terminal. Call Restore
// before exiting.
func OpenTerminal(in, out *os.File) (*Terminal, error) {
	t := &Terminal{in: in, out: out, outFd: int(out.Fd())}
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return t, nil
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	t.state = state
	// hide the cursor while drawing
	_, _ = io.WriteString(out, "\x1b[?25l")
	return t, nil
}

// Input returns the key source.
func (t *Terminal) Input() io.Reader { return t.in }

// Output returns the frame sink.
func (t *Terminal) Output() io.Writer { return t.out }

// Size returns the terminal size, or 80x24 when it is unknown.
func (t *Terminal) Size() (width, height int) {
	w, h, err := term.GetSize(t.outFd)
	if err != nil || w <= 0 || h <= 0 {
		return 80, 24
	}
	return w, h
}

// Restore leaves raw mode and shows the cursor again.
func (t *Terminal) Restore() error {
	if t.state == nil {
		return nil
	}
	_, _ = io.WriteString(t.out, "\x1b[?25h\r\n")
	err := term.Restore(int(t.in.Fd()), t.state)
	t.state = nil
	return err
}
