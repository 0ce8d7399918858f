// Package termview is the terminal front end of the client. It draws the
// mirrored entity list once per frame and samples the keyboard into input
// flags.
package termview

import (
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rotisserie/eris"

	"rtype/pkg/protocol"
	"rtype/pkg/world"
)

// DefaultHold is how long a key counts as held after its last press.
// Terminals report presses and repeats but never releases.
const DefaultHold = 150 * time.Millisecond

var (
	stylePlayer  = tcell.StyleDefault.Foreground(tcell.ColorAqua)
	styleLocal   = tcell.StyleDefault.Foreground(tcell.ColorGreen).Bold(true)
	styleEnemy   = tcell.StyleDefault.Foreground(tcell.ColorRed)
	styleShot    = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	styleHostile = tcell.StyleDefault.Foreground(tcell.ColorPurple)
	styleStatus  = tcell.StyleDefault.Reverse(true)
)

// Status is the line drawn under the arena.
type Status struct {
	Name   string
	State  string
	Server string
	Tick   uint32
}

type View struct {
	screen tcell.Screen
	hold   time.Duration

	mu      sync.Mutex
	pressed map[protocol.InputFlags]time.Time
	quit    bool
}

// Open initializes the controlling terminal.
func Open() (*View, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, eris.Wrap(err, "open terminal")
	}
	if err := screen.Init(); err != nil {
		return nil, eris.Wrap(err, "init terminal")
	}
	return New(screen), nil
}

// New wraps an initialized screen.
func New(screen tcell.Screen) *View {
	screen.HideCursor()
	return &View{
		screen:  screen,
		hold:    DefaultHold,
		pressed: make(map[protocol.InputFlags]time.Time),
	}
}

func (v *View) Close() {
	v.screen.Fini()
}

// Events forwards terminal events to HandleEvent until the screen is
// finalized or the player quits. Run it on its own goroutine.
func (v *View) Events() {
	for {
		ev := v.screen.PollEvent()
		if ev == nil || !v.HandleEvent(ev, time.Now()) {
			return
		}
	}
}

// HandleEvent records a key press or a resize. It returns false once the
// player asked to quit.
func (v *View) HandleEvent(ev tcell.Event, now time.Time) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		return v.press(ev.Key(), ev.Rune(), now)
	case *tcell.EventResize:
		v.screen.Sync()
	}
	return !v.Quit()
}

func (v *View) press(key tcell.Key, r rune, now time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	var flag protocol.InputFlags
	switch key {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		v.quit = true
	case tcell.KeyUp:
		flag = protocol.InputUp
	case tcell.KeyDown:
		flag = protocol.InputDown
	case tcell.KeyLeft:
		flag = protocol.InputLeft
	case tcell.KeyRight:
		flag = protocol.InputRight
	case tcell.KeyRune:
		switch r {
		case 'q', 'Q':
			v.quit = true
		case 'w', 'W':
			flag = protocol.InputUp
		case 's', 'S':
			flag = protocol.InputDown
		case 'a', 'A':
			flag = protocol.InputLeft
		case 'd', 'D':
			flag = protocol.InputRight
		case ' ':
			flag = protocol.InputFire
		}
	}
	if flag != 0 {
		v.pressed[flag] = now
	}
	return !v.quit
}

// Input returns the flags whose key was pressed within the hold window.
func (v *View) Input(now time.Time) protocol.InputFlags {
	v.mu.Lock()
	defer v.mu.Unlock()

	var flags protocol.InputFlags
	for flag, at := range v.pressed {
		if now.Sub(at) <= v.hold {
			flags |= flag
		}
	}
	return flags
}

func (v *View) Quit() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.quit
}

// Draw renders one frame. The arena is scaled to the screen minus the
// status line.
func (v *View) Draw(entities []protocol.EntityDescriptor, status Status) {
	v.screen.Clear()
	width, height := v.screen.Size()
	rows := height - 1

	for _, d := range entities {
		col, row, ok := project(d.X, d.Y, width, rows)
		if !ok {
			continue
		}
		glyph, style := appearance(d)
		v.screen.SetContent(col, row, glyph, nil, style)
	}

	line := fmt.Sprintf(" %s | %s | %s | tick %d | %d entities ",
		status.Name, status.State, status.Server, status.Tick, len(entities))
	for i, r := range []rune(line) {
		if i >= width {
			break
		}
		v.screen.SetContent(i, rows, r, nil, styleStatus)
	}
	v.screen.Show()
}

// project maps arena coordinates to a cell.
func project(x, y float32, width, rows int) (col, row int, ok bool) {
	if width <= 0 || rows <= 0 || x < 0 || y < 0 || x >= world.ArenaWidth || y >= world.ArenaHeight {
		return 0, 0, false
	}
	col = int(x / world.ArenaWidth * float32(width))
	row = int(y / world.ArenaHeight * float32(rows))
	return col, row, true
}

func appearance(d protocol.EntityDescriptor) (rune, tcell.Style) {
	var glyph rune
	var style tcell.Style

	switch d.Kind {
	case protocol.KindPlayer:
		glyph, style = '>', stylePlayer
		if d.Flags&protocol.StateLocal != 0 {
			style = styleLocal
		}
	case protocol.KindEnemy:
		glyph, style = '<', styleEnemy
	case protocol.KindProjectile:
		glyph, style = '-', styleShot
		if d.Flags&protocol.StateHostile != 0 {
			glyph, style = '*', styleHostile
		}
	default:
		glyph, style = '?', tcell.StyleDefault
	}

	if d.Flags&protocol.StateRespawning != 0 {
		style = style.Dim(true)
	}
	return glyph, style
}
