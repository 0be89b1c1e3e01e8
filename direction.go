package peps

import "fmt"

// Direction is a side of the square lattice, ordered clockwise from North.
type Direction int

const (
	North Direction = iota
	East
	South
	West
)

func (d Direction) String() string {
	switch d {
	case North:
		return "north"
	case East:
		return "east"
	case South:
		return "south"
	case West:
		return "west"
	}
	panic(fmt.Sprintf("%d", int(d)))
}

// CornerPos is a corner of the square lattice, ordered clockwise from
// NorthWest.
type CornerPos int

const (
	NorthWest CornerPos = iota
	NorthEast
	SouthEast
	SouthWest
)

func (c CornerPos) String() string {
	switch c {
	case NorthWest:
		return "northwest"
	case NorthEast:
		return "northeast"
	case SouthEast:
		return "southeast"
	case SouthWest:
		return "southwest"
	}
	panic(fmt.Sprintf("%d", int(c)))
}
