// Package board encodes ship placements and occupancy grids for the 8x8
// battle board and enforces fleet legality.
package board

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// Size is the side length of the square board.
	Size = 8
	// Cells is the number of cells on the board.
	Cells = Size * Size
	// FleetCells is the number of cells covered by a complete fleet.
	FleetCells = 17
	// shipWireLen is the length of one ship in the placement wire format.
	shipWireLen = 4
)

// Fleet lists the ship lengths every placement must contain, in any order.
var Fleet = [...]int{5, 4, 3, 3, 2}

// ErrInvalidPlacement reports a malformed or illegal fleet placement.
var ErrInvalidPlacement = errors.New("invalid placement")

// Index returns the cell index of (row, col).
func Index(row, col int) int { return row*Size + col }

// RowCol splits a cell index into row and column.
func RowCol(i int) (row, col int) { return i / Size, i % Size }

// InBounds reports whether (row, col) lies on the board.
func InBounds(row, col int) bool {
	return row >= 0 && row < Size && col >= 0 && col < Size
}

// Direction is the orientation of a ship.
type Direction byte

const (
	Horizontal Direction = 'H'
	Vertical   Direction = 'V'
)

// Ship is one entry of a placement. For a horizontal ship Fixed is the row
// and Start the first column; for a vertical ship Fixed is the column and
// Start the first row.
type Ship struct {
	Dir    Direction `json:"dir"`
	Fixed  int       `json:"fixed"`
	Start  int       `json:"start"`
	Length int       `json:"length"`
}

// String returns the 4-character wire form of the ship.
func (s Ship) String() string {
	return fmt.Sprintf("%c%d%d%d", s.Dir, s.Fixed, s.Start, s.Length)
}

// Cells returns the indices covered by the ship. The ship must be in bounds.
func (s Ship) Cells() []int {
	cells := make([]int, 0, s.Length)
	for k := 0; k < s.Length; k++ {
		if s.Dir == Horizontal {
			cells = append(cells, Index(s.Fixed, s.Start+k))
		} else {
			cells = append(cells, Index(s.Start+k, s.Fixed))
		}
	}
	return cells
}

func (s Ship) inBounds() bool {
	if s.Length <= 0 || s.Fixed < 0 || s.Fixed >= Size || s.Start < 0 {
		return false
	}
	return s.Start+s.Length <= Size
}

// Placement is an ordered fleet. Order is significant: it is part of the
// ships commitment and is never canonicalised.
type Placement []Ship

// ParsePlacement decodes the concatenated wire form. It checks syntax only;
// call Validate for fleet legality.
func ParsePlacement(s string) (Placement, error) {
	if len(s) == 0 || len(s)%shipWireLen != 0 {
		return nil, fmt.Errorf("%w: length %d is not a multiple of %d", ErrInvalidPlacement, len(s), shipWireLen)
	}
	p := make(Placement, 0, len(s)/shipWireLen)
	for i := 0; i < len(s); i += shipWireLen {
		chunk := s[i : i+shipWireLen]
		dir := Direction(chunk[0])
		if dir != Horizontal && dir != Vertical {
			return nil, fmt.Errorf("%w: ship %d has direction %q", ErrInvalidPlacement, i/shipWireLen, chunk[0])
		}
		var nums [3]int
		for k := 0; k < 3; k++ {
			c := chunk[k+1]
			if c < '0' || c > '9' {
				return nil, fmt.Errorf("%w: ship %d has non-digit %q", ErrInvalidPlacement, i/shipWireLen, c)
			}
			nums[k] = int(c - '0')
		}
		p = append(p, Ship{Dir: dir, Fixed: nums[0], Start: nums[1], Length: nums[2]})
	}
	return p, nil
}

// String concatenates the ships' wire forms in insertion order.
func (p Placement) String() string {
	var b strings.Builder
	for _, s := range p {
		b.WriteString(s.String())
	}
	return b.String()
}

// Validate checks ship count, the fleet's length multiset, bounds, and overlap.
func (p Placement) Validate() error {
	_, err := p.Layout()
	return err
}

// Layout maps every cell to the index of the ship covering it, or -1.
func (p Placement) Layout() (Layout, error) {
	var l Layout
	for i := range l {
		l[i] = -1
	}
	if len(p) != len(Fleet) {
		return l, fmt.Errorf("%w: %d ships, want %d", ErrInvalidPlacement, len(p), len(Fleet))
	}
	remaining := make(map[int]int, len(Fleet))
	for _, n := range Fleet {
		remaining[n]++
	}
	for si, s := range p {
		if s.Dir != Horizontal && s.Dir != Vertical {
			return l, fmt.Errorf("%w: ship %d has direction %q", ErrInvalidPlacement, si, byte(s.Dir))
		}
		if remaining[s.Length] == 0 {
			return l, fmt.Errorf("%w: unexpected ship of length %d", ErrInvalidPlacement, s.Length)
		}
		remaining[s.Length]--
		if !s.inBounds() {
			return l, fmt.Errorf("%w: ship %d (%s) out of bounds", ErrInvalidPlacement, si, s)
		}
		for _, c := range s.Cells() {
			if l[c] != -1 {
				return l, fmt.Errorf("%w: ship %d overlaps ship %d", ErrInvalidPlacement, si, l[c])
			}
			l[c] = int8(si)
		}
	}
	return l, nil
}

// Occupancy validates the placement and returns its occupancy grid.
func (p Placement) Occupancy() (Occupancy, error) {
	l, err := p.Layout()
	if err != nil {
		return Occupancy{}, err
	}
	return l.Occupancy(), nil
}

// Layout records which ship covers each cell (-1 for water).
type Layout [Cells]int8

// Occupancy flattens the layout to 0/1 cells.
func (l Layout) Occupancy() Occupancy {
	var o Occupancy
	for i, s := range l {
		if s >= 0 {
			o[i] = 1
		}
	}
	return o
}

// Occupancy is the 0/1 board committed to by a player.
type Occupancy [Cells]uint8

// FromCells builds an Occupancy from a slice of exactly Cells 0/1 values.
func FromCells(cells []int) (Occupancy, error) {
	var o Occupancy
	if len(cells) != Cells {
		return o, fmt.Errorf("%w: board has %d cells, want %d", ErrInvalidPlacement, len(cells), Cells)
	}
	for i, v := range cells {
		if v != 0 && v != 1 {
			return o, fmt.Errorf("%w: cell %d has value %d", ErrInvalidPlacement, i, v)
		}
		o[i] = uint8(v)
	}
	return o, nil
}

// ParseOccupancy decodes the 64-character '0'/'1' form.
func ParseOccupancy(s string) (Occupancy, error) {
	var o Occupancy
	if len(s) != Cells {
		return o, fmt.Errorf("%w: board string has %d cells, want %d", ErrInvalidPlacement, len(s), Cells)
	}
	for i := 0; i < Cells; i++ {
		switch s[i] {
		case '0':
		case '1':
			o[i] = 1
		default:
			return o, fmt.Errorf("%w: cell %d has %q", ErrInvalidPlacement, i, s[i])
		}
	}
	return o, nil
}

// String returns the 64-character '0'/'1' form.
func (o Occupancy) String() string {
	b := make([]byte, Cells)
	for i, v := range o {
		b[i] = '0' + v
	}
	return string(b)
}

// Cells returns the board as a slice of ints, the form used in payloads.
func (o Occupancy) Cells() []int {
	out := make([]int, Cells)
	for i, v := range o {
		out[i] = int(v)
	}
	return out
}

// Count returns the number of occupied cells.
func (o Occupancy) Count() int {
	n := 0
	for _, v := range o {
		n += int(v)
	}
	return n
}
