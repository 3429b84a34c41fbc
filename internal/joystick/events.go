package joystick

// Handler is the surface a platform event layer (DOM listeners, terminal
// mouse reports) drives.
type Handler interface {
	PointerDown(x, y float64)
	PointerMove(x, y float64)
	PointerUp()
}

var _ Handler = (*Mapper)(nil)

// PointerDown begins a mouse drag.
func (m *Mapper) PointerDown(x, y float64) {
	m.BeginDrag(x, y)
}

// PointerMove forwards mouse motion while a drag is active.
func (m *Mapper) PointerMove(x, y float64) {
	m.UpdateDrag(x, y)
}

// PointerUp releases the stick only if a mouse drag was active, since the
// button-up listener sees every click on the page.
func (m *Mapper) PointerUp() {
	if m.dragging {
		m.EndDrag()
	}
}

// TouchStart begins a drag at the first touch point. Empty touch lists are ignored.
func (m *Mapper) TouchStart(touches []Point) {
	if len(touches) == 0 {
		return
	}
	m.BeginDrag(touches[0].X, touches[0].Y)
}

// TouchMove follows the first touch point. Empty touch lists are ignored.
func (m *Mapper) TouchMove(touches []Point) {
	if len(touches) == 0 {
		return
	}
	m.UpdateDrag(touches[0].X, touches[0].Y)
}

// TouchEnd always recentres the stick.
func (m *Mapper) TouchEnd() {
	m.EndDrag()
}
