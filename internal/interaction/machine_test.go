package interaction

import (
	"errors"
	"fmt"
	"slices"
	"testing"

	"pdf-text-overlay/internal/annotation"
	"pdf-text-overlay/internal/domain"
	"pdf-text-overlay/internal/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var a4 = geometry.Frame{
	Native: geometry.Size{Width: 595, Height: 842},
	Raster: geometry.Size{Width: 892.5, Height: 1263},
}

type fixture struct {
	store   *annotation.Store
	view    *geometry.Viewport
	bus     *Bus
	machine *Machine
}

func newFixture(t *testing.T, ready bool) *fixture {
	t.Helper()
	opts := annotation.DefaultOptions()
	n := 0
	opts.NewID = func() annotation.ID {
		n++
		return annotation.ID(fmt.Sprintf("a%d", n))
	}
	store := annotation.NewStore(opts)
	view, err := geometry.NewViewport(100)
	require.NoError(t, err)
	if ready {
		require.NoError(t, view.SetFrame(a4))
	}
	bus := NewBus()
	return &fixture{store: store, view: view, bus: bus, machine: NewMachine(store, view, bus)}
}

// place arms placement and clicks the raster so the new annotation's
// top-left lands on want.
func (f *fixture) place(t *testing.T, want geometry.Point) annotation.ID {
	t.Helper()
	require.NoError(t, f.machine.SetAddingMode(true))
	tr, ok := f.view.Transform()
	require.True(t, ok)
	screen := tr.RasterToScreen(want.Add(f.store.Options().PlacementOffset))
	effect, err := f.machine.PointerDown(OnRaster(), screen)
	require.NoError(t, err)
	require.Equal(t, EffectCreated, effect)
	id := f.store.SelectedID()
	a, _ := f.store.Get(id)
	require.InDelta(t, want.X, a.Position.X, 1e-9)
	require.InDelta(t, want.Y, a.Position.Y, 1e-9)
	return id
}

func TestPlacement_IsOneShot(t *testing.T) {
	f := newFixture(t, true)

	require.NoError(t, f.machine.SetAddingMode(true))
	assert.Equal(t, Placing, f.machine.Mode())

	effect, err := f.machine.PointerDown(OnRaster(), geometry.Point{X: 300, Y: 200})
	require.NoError(t, err)
	assert.Equal(t, EffectCreated, effect)
	assert.Equal(t, Idle, f.machine.Mode())
	assert.Equal(t, 1, f.store.Len())

	effect, err = f.machine.PointerDown(OnRaster(), geometry.Point{X: 50, Y: 50})
	require.NoError(t, err)
	assert.Equal(t, EffectNone, effect)
	assert.Equal(t, 1, f.store.Len(), "second click without re-arming must not create")
}

func TestPlacement_UsesZoom(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.machine.SetZoom(200))
	require.NoError(t, f.machine.SetAddingMode(true))

	_, err := f.machine.PointerDown(OnRaster(), geometry.Point{X: 400, Y: 200})
	require.NoError(t, err)

	a, ok := f.store.Selected()
	require.True(t, ok)
	assert.Equal(t, geometry.Point{X: 200 - 60, Y: 100 - 16}, a.Position)
}

func TestSetAddingMode_Toggle(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.machine.SetAddingMode(true))
	require.NoError(t, f.machine.SetAddingMode(false))
	assert.Equal(t, Idle, f.machine.Mode())

	_, err := f.machine.PointerDown(OnRaster(), geometry.Point{X: 1, Y: 1})
	require.NoError(t, err)
	assert.Equal(t, 0, f.store.Len())
}

func TestNotReady_BlocksCreationAndDrag(t *testing.T) {
	f := newFixture(t, false)

	assert.True(t, errors.Is(f.machine.SetAddingMode(true), domain.ErrNotReady))
	_, err := f.machine.PointerDown(OnRaster(), geometry.Point{X: 1, Y: 1})
	assert.True(t, errors.Is(err, domain.ErrNotReady))
	_, err = f.machine.PointerDown(OnAnnotation("a1"), geometry.Point{X: 1, Y: 1})
	assert.True(t, errors.Is(err, domain.ErrNotReady))
	assert.NoError(t, f.machine.SetAddingMode(false), "disarming is always allowed")
}

func TestDrag_PreservesGrabPoint(t *testing.T) {
	f := newFixture(t, true)
	id := f.place(t, geometry.Point{X: 100, Y: 100})

	effect, err := f.machine.PointerDown(OnAnnotation(id), geometry.Point{X: 110, Y: 110})
	require.NoError(t, err)
	assert.Equal(t, EffectDragStarted, effect)
	assert.Equal(t, Dragging, f.machine.Mode())

	f.machine.PointerMove(geometry.Point{X: 130, Y: 110})

	a, _ := f.store.Get(id)
	assert.Equal(t, geometry.Point{X: 120, Y: 100}, a.Position)

	f.machine.PointerUp(geometry.Point{X: 130, Y: 110})
	assert.Equal(t, Idle, f.machine.Mode())
	assert.Equal(t, 0, f.bus.Len())
}

func TestDrag_AtZoom150(t *testing.T) {
	f := newFixture(t, true)
	id := f.place(t, geometry.Point{X: 100, Y: 100})
	require.NoError(t, f.machine.SetZoom(150))

	// annotation origin on screen is (150,150); grab 15px in.
	_, err := f.machine.PointerDown(OnAnnotation(id), geometry.Point{X: 165, Y: 165})
	require.NoError(t, err)
	f.machine.PointerMove(geometry.Point{X: 195, Y: 165})
	f.machine.PointerUp(geometry.Point{X: 195, Y: 165})

	a, _ := f.store.Get(id)
	assert.InDelta(t, 120, a.Position.X, 1e-9)
	assert.InDelta(t, 100, a.Position.Y, 1e-9)
}

func TestDrag_EveryMoveApplied(t *testing.T) {
	f := newFixture(t, true)
	id := f.place(t, geometry.Point{X: 0, Y: 0})

	_, err := f.machine.PointerDown(OnAnnotation(id), geometry.Point{X: 0, Y: 0})
	require.NoError(t, err)

	var seen []geometry.Point
	for i := 1; i <= 120; i++ {
		f.machine.PointerMove(geometry.Point{X: float64(i), Y: float64(2 * i)})
		a, _ := f.store.Get(id)
		seen = append(seen, a.Position)
	}
	f.machine.PointerUp(geometry.Point{})

	require.Len(t, seen, 120)
	for i, p := range seen {
		assert.Equal(t, geometry.Point{X: float64(i + 1), Y: float64(2 * (i + 1))}, p)
	}
}

func TestDrag_NoListenerLeaks(t *testing.T) {
	f := newFixture(t, true)
	id := f.place(t, geometry.Point{X: 10, Y: 10})

	for i := 0; i < 50; i++ {
		_, err := f.machine.PointerDown(OnAnnotation(id), geometry.Point{X: 20, Y: 20})
		require.NoError(t, err)
		require.Equal(t, 1, f.bus.Len())
		f.machine.PointerMove(geometry.Point{X: 21, Y: 20})
		f.machine.PointerUp(geometry.Point{X: 21, Y: 20})
		require.Equal(t, 0, f.bus.Len(), "cycle %d", i)
	}

	// moves after the drag ended do nothing
	before, _ := f.store.Get(id)
	f.machine.PointerMove(geometry.Point{X: 500, Y: 500})
	after, _ := f.store.Get(id)
	assert.Equal(t, before, after)
}

func TestDrag_SecondPointerDownRejected(t *testing.T) {
	f := newFixture(t, true)
	a := f.place(t, geometry.Point{X: 10, Y: 10})
	b := f.place(t, geometry.Point{X: 300, Y: 300})

	_, err := f.machine.PointerDown(OnAnnotation(a), geometry.Point{X: 70, Y: 26})
	require.NoError(t, err)

	_, err = f.machine.PointerDown(OnAnnotation(b), geometry.Point{X: 360, Y: 316})
	assert.True(t, errors.Is(err, domain.ErrDragInProgress))
	assert.Equal(t, 1, f.bus.Len())
	id, ok := f.machine.DragTarget()
	require.True(t, ok)
	assert.Equal(t, a, id)
	assert.True(t, errors.Is(f.machine.SetAddingMode(true), domain.ErrDragInProgress))
}

func TestPointerDownOnAnnotation_SelectsIt(t *testing.T) {
	f := newFixture(t, true)
	a := f.place(t, geometry.Point{X: 10, Y: 10})
	b := f.place(t, geometry.Point{X: 300, Y: 300})
	require.Equal(t, b, f.store.SelectedID())

	_, err := f.machine.PointerDown(OnAnnotation(a), geometry.Point{X: 15, Y: 15})
	require.NoError(t, err)
	assert.Equal(t, a, f.store.SelectedID())
	f.machine.PointerUp(geometry.Point{})
}

func TestPointerDownOnMissingAnnotation_IsBenign(t *testing.T) {
	f := newFixture(t, true)
	effect, err := f.machine.PointerDown(OnAnnotation("gone"), geometry.Point{})
	require.NoError(t, err)
	assert.Equal(t, EffectNone, effect)
	assert.Equal(t, Idle, f.machine.Mode())
	assert.Equal(t, 0, f.bus.Len())
}

func TestPointerDownOnAnnotation_WhilePlacingIsIgnored(t *testing.T) {
	f := newFixture(t, true)
	a := f.place(t, geometry.Point{X: 10, Y: 10})
	require.NoError(t, f.machine.SetAddingMode(true))

	effect, err := f.machine.PointerDown(OnAnnotation(a), geometry.Point{X: 15, Y: 15})
	require.NoError(t, err)
	assert.Equal(t, EffectNone, effect)
	assert.Equal(t, Placing, f.machine.Mode(), "placement stays armed")
}

func TestClick(t *testing.T) {
	f := newFixture(t, true)
	a := f.place(t, geometry.Point{X: 10, Y: 10})
	b := f.place(t, geometry.Point{X: 300, Y: 300})

	assert.True(t, f.machine.Click(OnAnnotation(a)))
	assert.Equal(t, a, f.store.SelectedID())

	assert.False(t, f.machine.Click(OnRaster()), "raster clicks do not change selection")
	assert.Equal(t, a, f.store.SelectedID())

	assert.False(t, f.machine.Click(OnAnnotation("gone")))
	assert.Equal(t, a, f.store.SelectedID())

	_, err := f.machine.PointerDown(OnAnnotation(b), geometry.Point{X: 305, Y: 305})
	require.NoError(t, err)
	require.True(t, f.store.Select(a))
	assert.False(t, f.machine.Click(OnAnnotation(b)), "the dragged annotation ignores clicks")
	assert.Equal(t, a, f.store.SelectedID())
	f.machine.PointerUp(geometry.Point{})

	assert.True(t, f.machine.Click(OnAnnotation(b)))
	assert.Equal(t, b, f.store.SelectedID())
}

func TestZoomIndependence(t *testing.T) {
	f := newFixture(t, true)
	f.place(t, geometry.Point{X: 10, Y: 10})
	f.place(t, geometry.Point{X: 333.3, Y: 777.7})
	id := f.store.SelectedID()
	size := 31.0
	require.True(t, f.machine.UpdateActive(annotation.Patch{FontSize: &size}))

	before := slices.Collect(f.store.All())
	require.NoError(t, f.machine.SetZoom(150))
	require.NoError(t, f.machine.SetZoom(100))
	assert.Equal(t, before, slices.Collect(f.store.All()))

	assert.Error(t, f.machine.SetZoom(33))
	a, _ := f.store.Get(id)
	assert.Equal(t, 31.0, a.FontSize)
}

func TestActiveOperations(t *testing.T) {
	f := newFixture(t, true)

	text := "nobody selected"
	assert.False(t, f.machine.UpdateActive(annotation.Patch{Text: &text}))
	assert.False(t, f.machine.DeleteActive())

	id := f.place(t, geometry.Point{X: 10, Y: 10})
	text = "Kim"
	require.True(t, f.machine.UpdateActive(annotation.Patch{Text: &text}))
	a, _ := f.store.Get(id)
	assert.Equal(t, "Kim", a.Text)

	require.True(t, f.machine.DeleteActive())
	assert.Equal(t, 0, f.store.Len())
	assert.False(t, f.machine.DeleteActive())
}

func TestDeleteActive_EndsDrag(t *testing.T) {
	f := newFixture(t, true)
	id := f.place(t, geometry.Point{X: 10, Y: 10})

	_, err := f.machine.PointerDown(OnAnnotation(id), geometry.Point{X: 15, Y: 15})
	require.NoError(t, err)
	require.True(t, f.machine.DeleteActive())

	assert.Equal(t, Idle, f.machine.Mode())
	assert.Equal(t, 0, f.bus.Len())
}

func TestReset(t *testing.T) {
	f := newFixture(t, true)
	id := f.place(t, geometry.Point{X: 10, Y: 10})
	_, err := f.machine.PointerDown(OnAnnotation(id), geometry.Point{X: 15, Y: 15})
	require.NoError(t, err)

	f.machine.Reset()
	assert.Equal(t, Idle, f.machine.Mode())
	assert.Equal(t, 0, f.bus.Len())
}

func TestBus_ReleaseIsIdempotent(t *testing.T) {
	bus := NewBus()
	var got []PointerKind
	sub := bus.Subscribe(func(ev PointerEvent) { got = append(got, ev.Kind) })
	other := bus.Subscribe(func(PointerEvent) {})

	bus.Dispatch(PointerEvent{Kind: PointerMove})
	sub.Release()
	sub.Release()
	assert.Equal(t, 1, bus.Len())

	bus.Dispatch(PointerEvent{Kind: PointerUp})
	assert.Equal(t, []PointerKind{PointerMove}, got)

	other.Release()
	assert.Equal(t, 0, bus.Len())
}
