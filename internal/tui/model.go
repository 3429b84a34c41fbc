// Package tui renders the joystick in a terminal and drives it with the mouse.
package tui

import (
	"errors"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/frudas24/raspacar/internal/joystick"
	"github.com/guptarohit/asciigraph"
)

// Terminal cells are roughly twice as tall as they are wide, so a row covers
// twice the units of a column and the stick travel stays round.
const (
	unitsPerCol = 5.0
	unitsPerRow = 10.0

	widgetCol = 2
	widgetRow = 2

	historyLen = 60
	knobRadius = 9.0
)

var (
	title    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	dim      = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	ring     = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	knob     = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	online   = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	offline  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	readoutS = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
)

// StateMsg carries a transport state change into the program.
type StateMsg joystick.ConnState

// Options configures the terminal joystick.
type Options struct {
	// Sender delivers commands. Required.
	Sender joystick.Sender
	// States streams transport state changes; may be nil.
	States <-chan joystick.ConnState
	// MaxRadius is the stick travel in widget units.
	MaxRadius float64
	// Server is shown in the header.
	Server string
}

// layout sizes the widget around the stick travel. The ring sits one knob
// diameter outside the clamp radius.
type layout struct {
	cols, rows int
	ring       float64
}

func newLayout(radius float64) layout {
	ring := radius + 2*knobRadius
	halfCols := int(math.Ceil((ring + unitsPerCol) / unitsPerCol))
	halfRows := int(math.Ceil(ring / unitsPerRow))
	return layout{cols: 2*halfCols + 1, rows: 2*halfRows + 1, ring: ring}
}

// bounds is the stick area in widget units.
func (l layout) bounds() joystick.Rect {
	return joystick.Rect{
		Left:   widgetCol * unitsPerCol,
		Top:    widgetRow * unitsPerRow,
		Width:  float64(l.cols) * unitsPerCol,
		Height: float64(l.rows) * unitsPerRow,
	}
}

// centre returns the cell holding the stick origin.
func (l layout) centre() (col, row int) {
	return widgetCol + l.cols/2, widgetRow + l.rows/2
}

// Model is the bubbletea model for the terminal joystick.
type Model struct {
	mapper *joystick.Mapper
	layout layout
	stick  *stickView
	states <-chan joystick.ConnState
	state  joystick.ConnState
	server string
}

// stickView receives indicator and readout updates from the mapper.
type stickView struct {
	dx, dy  float64
	last    joystick.Command
	sent    bool
	history []float64
}

// MoveStick records the knob offset.
func (s *stickView) MoveStick(dx, dy float64) {
	s.dx, s.dy = dx, dy
}

// ShowCommand records the last command that went out.
func (s *stickView) ShowCommand(cmd joystick.Command) {
	s.last = cmd
	s.sent = true
	s.history = append(s.history, cmd.Y)
	if len(s.history) > historyLen {
		s.history = s.history[len(s.history)-historyLen:]
	}
}

// New builds the model.
func New(opts Options) (*Model, error) {
	if opts.Sender == nil {
		return nil, errors.New("tui: sender is required")
	}
	radius := opts.MaxRadius
	if radius <= 0 {
		radius = joystick.DefaultMaxRadius
	}
	lay := newLayout(radius)
	view := &stickView{}
	mapper, err := joystick.New(joystick.Options{
		MaxRadius: radius,
		Bounds:    lay.bounds,
		Sender:    opts.Sender,
		Indicator: view,
		Readout:   view,
	})
	if err != nil {
		return nil, err
	}
	state := joystick.Disconnected
	if opts.Sender.Open() {
		state = joystick.Connected
	}
	return &Model{
		mapper: mapper,
		layout: lay,
		stick:  view,
		states: opts.States,
		state:  state,
		server: opts.Server,
	}, nil
}

// cellPoint maps a terminal cell to the centre of its area in widget units.
func cellPoint(col, row int) (float64, float64) {
	return float64(col)*unitsPerCol + unitsPerCol/2, float64(row)*unitsPerRow + unitsPerRow/2
}

// Init starts listening for transport state changes.
func (m *Model) Init() tea.Cmd {
	return m.waitState()
}

// waitState blocks on the next state change.
func (m *Model) waitState() tea.Cmd {
	if m.states == nil {
		return nil
	}
	ch := m.states
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return StateMsg(s)
	}
}

// Update handles mouse, keyboard and state messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case StateMsg:
		m.state = joystick.ConnState(msg)
		return m, m.waitState()
	case tea.MouseMsg:
		m.handleMouse(msg)
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.mapper.EndDrag()
			return m, tea.Quit
		case " ", "space":
			m.mapper.EndDrag()
		}
	}
	return m, nil
}

// handleMouse forwards cell-motion mouse reports to the mapper.
func (m *Model) handleMouse(msg tea.MouseMsg) {
	x, y := cellPoint(msg.X, msg.Y)
	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button == tea.MouseButtonLeft {
			m.mapper.PointerDown(x, y)
		}
	case tea.MouseActionMotion:
		m.mapper.PointerMove(x, y)
	case tea.MouseActionRelease:
		m.mapper.PointerUp()
	}
}

// View renders header, stick, readout and throttle history.
func (m *Model) View() string {
	var b strings.Builder
	status := offline.Render(m.state.String())
	if m.state == joystick.Connected {
		status = online.Render(m.state.String())
	}
	header := title.Render("raspacar") + "  " + status
	if m.server != "" {
		header += "  " + dim.Render(m.server)
	}
	b.WriteString(header + "\n\n")
	b.WriteString(m.renderWidget())

	readout := "X: -.-- | Y: -.--"
	if m.stick.sent {
		readout = m.stick.last.String()
	}
	b.WriteString("\n" + readoutS.Render(readout) + "\n")
	if len(m.stick.history) > 1 {
		chart := asciigraph.Plot(m.stick.history,
			asciigraph.Height(5),
			asciigraph.Width(historyLen),
			asciigraph.LowerBound(-1),
			asciigraph.UpperBound(1),
			asciigraph.Caption("throttle"))
		b.WriteString("\n" + chart + "\n")
	}
	b.WriteString("\n" + dim.Render("drag with the mouse · space: centre · q: quit") + "\n")
	return b.String()
}

// renderWidget draws the base ring and the knob.
func (m *Model) renderWidget() string {
	lay := m.layout
	center := lay.bounds().Center()
	knobX, knobY := center.X+m.stick.dx, center.Y+m.stick.dy
	var b strings.Builder
	for row := widgetRow; row < widgetRow+lay.rows; row++ {
		b.WriteString(strings.Repeat(" ", widgetCol))
		for col := widgetCol; col < widgetCol+lay.cols; col++ {
			x, y := cellPoint(col, row)
			switch {
			case math.Hypot(x-knobX, y-knobY) <= knobRadius:
				b.WriteString(knob.Render("●"))
			case math.Abs(math.Hypot(x-center.X, y-center.Y)-lay.ring) < unitsPerCol:
				b.WriteString(ring.Render("·"))
			case x == center.X && y == center.Y:
				b.WriteString(dim.Render("+"))
			default:
				b.WriteByte(' ')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Readout returns the last sent command formatted for display.
func (m *Model) Readout() string {
	if !m.stick.sent {
		return ""
	}
	return m.stick.last.String()
}
