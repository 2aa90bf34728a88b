package inventory

// Occupancy is a rasterized view of a container grid. It is rebuilt from the
// entries whenever a placement decision is needed and can be marked
// incrementally while repacking.
type Occupancy struct {
	w, h  int
	cells []bool
}

// NewOccupancy returns an empty occupancy grid of the given size.
func NewOccupancy(grid Size) *Occupancy {
	w, h := grid.W, grid.H
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return &Occupancy{w: w, h: h, cells: make([]bool, w*h)}
}

// Mark reserves every cell of size anchored at pos. Cells outside the grid
// are ignored.
func (o *Occupancy) Mark(pos Point, size Size) {
	for y := pos.Y; y < pos.Y+size.H; y++ {
		for x := pos.X; x < pos.X+size.W; x++ {
			if x < 0 || y < 0 || x >= o.w || y >= o.h {
				continue
			}
			o.cells[y*o.w+x] = true
		}
	}
}

// Fits checks grid bounds and collisions for size anchored at pos.
func (o *Occupancy) Fits(pos Point, size Size) bool {
	if size.W <= 0 || size.H <= 0 {
		return false
	}
	if pos.X < 0 || pos.Y < 0 || pos.X+size.W > o.w || pos.Y+size.H > o.h {
		return false
	}
	for y := pos.Y; y < pos.Y+size.H; y++ {
		row := y * o.w
		for x := pos.X; x < pos.X+size.W; x++ {
			if o.cells[row+x] {
				return false
			}
		}
	}
	return true
}

// FindFree scans the grid row-major and returns the first anchor where the
// item fits. At each anchor the unrotated footprint is tried first, then the
// rotated one when the footprint is not square.
func (o *Occupancy) FindFree(size Size) (pos Point, rotated bool, ok bool) {
	size = size.normalized()
	for y := 0; y < o.h; y++ {
		for x := 0; x < o.w; x++ {
			p := Point{X: x, Y: y}
			if o.Fits(p, size) {
				return p, false, true
			}
			if !size.Square() && o.Fits(p, size.Rotated()) {
				return p, true, true
			}
		}
	}
	return Point{}, false, false
}
