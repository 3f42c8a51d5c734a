// Package interaction turns pointer input into annotation store mutations.
//
// The Machine has three modes. Idle is the resting state. Placing is armed by
// the "add text" affordance and consumes exactly one pointer-down on the
// raster. Dragging lasts from a pointer-down on an annotation until the next
// pointer-up anywhere; for that span, and only that span, the machine holds a
// listener on the document-level Bus.
package interaction

import (
	"fmt"

	"pdf-text-overlay/internal/annotation"
	"pdf-text-overlay/internal/domain"
	"pdf-text-overlay/internal/geometry"
)

// Mode is the machine's state.
type Mode int

const (
	Idle Mode = iota
	Placing
	Dragging
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Placing:
		return "placing"
	case Dragging:
		return "dragging"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// TargetKind says what a pointer-down or click landed on.
type TargetKind int

const (
	// TargetOutside is anywhere outside the raster and its annotations.
	TargetOutside TargetKind = iota
	// TargetRaster is the page image, not covered by an annotation.
	TargetRaster
	// TargetAnnotation is an annotation's hit region.
	TargetAnnotation
)

// Target is the element under the pointer.
type Target struct {
	Kind TargetKind
	ID   annotation.ID
}

// OnRaster targets the page image.
func OnRaster() Target { return Target{Kind: TargetRaster} }

// OnAnnotation targets an annotation.
func OnAnnotation(id annotation.ID) Target { return Target{Kind: TargetAnnotation, ID: id} }

// Effect reports what a pointer-down did.
type Effect int

const (
	EffectNone Effect = iota
	EffectCreated
	EffectDragStarted
)

type dragState struct {
	id     annotation.ID
	offset geometry.Point // screen units, pointer minus annotation origin
	sub    *Subscription
}

// Machine is the interaction state machine for one page. It is not safe for
// concurrent use.
type Machine struct {
	store *annotation.Store
	view  *geometry.Viewport
	bus   *Bus
	mode  Mode
	drag  *dragState
}

// NewMachine wires a machine to its store, viewport and pointer bus.
func NewMachine(store *annotation.Store, view *geometry.Viewport, bus *Bus) *Machine {
	return &Machine{store: store, view: view, bus: bus, mode: Idle}
}

// Mode returns the current mode.
func (m *Machine) Mode() Mode { return m.mode }

// Adding reports whether placement is armed.
func (m *Machine) Adding() bool { return m.mode == Placing }

// DragTarget returns the annotation being dragged.
func (m *Machine) DragTarget() (annotation.ID, bool) {
	if m.drag == nil {
		return "", false
	}
	return m.drag.id, true
}

// Bus returns the pointer bus the machine listens on while dragging.
func (m *Machine) Bus() *Bus { return m.bus }

// SetAddingMode arms or disarms placement.
func (m *Machine) SetAddingMode(on bool) error {
	if m.mode == Dragging {
		return domain.ErrDragInProgress
	}
	if !on {
		m.mode = Idle
		return nil
	}
	if _, ok := m.view.Transform(); !ok {
		return domain.ErrNotReady
	}
	m.mode = Placing
	return nil
}

// SetZoom changes the display zoom. Stored annotation state is unaffected.
func (m *Machine) SetZoom(percent int) error {
	return m.view.SetZoom(percent)
}

// PointerDown handles a pointer press at screen position p over target.
func (m *Machine) PointerDown(target Target, p geometry.Point) (Effect, error) {
	if m.mode == Dragging {
		return EffectNone, domain.ErrDragInProgress
	}
	tr, ok := m.view.Transform()
	if !ok {
		return EffectNone, domain.ErrNotReady
	}

	switch {
	case m.mode == Placing && target.Kind == TargetRaster:
		m.store.Create(tr.ScreenToRaster(p))
		m.mode = Idle
		return EffectCreated, nil

	case m.mode == Idle && target.Kind == TargetAnnotation:
		a, ok := m.store.Get(target.ID)
		if !ok {
			return EffectNone, nil
		}
		m.store.Select(a.ID)
		d := &dragState{
			id:     a.ID,
			offset: p.Sub(tr.RasterToScreen(a.Position)),
		}
		d.sub = m.bus.Subscribe(m.onPointer)
		m.drag = d
		m.mode = Dragging
		return EffectDragStarted, nil
	}
	return EffectNone, nil
}

// PointerMove forwards a document-level move to the bus.
func (m *Machine) PointerMove(p geometry.Point) {
	m.bus.Dispatch(PointerEvent{Kind: PointerMove, Screen: p})
}

// PointerUp forwards a document-level release to the bus.
func (m *Machine) PointerUp(p geometry.Point) {
	m.bus.Dispatch(PointerEvent{Kind: PointerUp, Screen: p})
}

func (m *Machine) onPointer(ev PointerEvent) {
	if m.drag == nil {
		return
	}
	switch ev.Kind {
	case PointerMove:
		tr, ok := m.view.Transform()
		if !ok {
			return
		}
		pos := tr.ScreenToRaster(ev.Screen.Sub(m.drag.offset))
		m.store.Update(m.drag.id, annotation.Patch{Position: &pos})
	case PointerUp:
		m.endDrag()
	}
}

func (m *Machine) endDrag() {
	if m.drag == nil {
		return
	}
	m.drag.sub.Release()
	m.drag = nil
	m.mode = Idle
}

// Click selects the clicked annotation unless it is the one being dragged.
// Clicks on the raster do not change the selection.
func (m *Machine) Click(target Target) bool {
	if target.Kind != TargetAnnotation {
		return false
	}
	if id, ok := m.DragTarget(); ok && id == target.ID {
		return false
	}
	return m.store.Select(target.ID)
}

// UpdateActive patches the selected annotation.
func (m *Machine) UpdateActive(patch annotation.Patch) bool {
	id := m.store.SelectedID()
	if id == "" {
		return false
	}
	return m.store.Update(id, patch)
}

// DeleteActive removes the selected annotation, ending its drag if one is in
// progress.
func (m *Machine) DeleteActive() bool {
	id := m.store.SelectedID()
	if id == "" {
		return false
	}
	if dragID, ok := m.DragTarget(); ok && dragID == id {
		m.endDrag()
	}
	return m.store.Delete(id)
}

// Reset abandons any drag or armed placement and returns to Idle.
func (m *Machine) Reset() {
	m.endDrag()
	m.mode = Idle
}
