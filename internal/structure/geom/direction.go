package geom

import "fmt"

type Direction uint8

const (
	Down Direction = iota
	Up
	North
	South
	West
	East
)

var Directions = [...]Direction{Down, Up, North, South, West, East}

var directionNames = [...]string{"down", "up", "north", "south", "west", "east"}

func (d Direction) String() string {
	if int(d) < len(directionNames) {
		return directionNames[d]
	}
	return fmt.Sprintf("direction(%d)", d)
}

func DirectionByName(name string) (Direction, bool) {
	for i, n := range directionNames {
		if n == name {
			return Direction(i), true
		}
	}
	return 0, false
}

func (d Direction) Step() BlockPos {
	switch d {
	case Down:
		return BlockPos{0, -1, 0}
	case Up:
		return BlockPos{0, 1, 0}
	case North:
		return BlockPos{0, 0, -1}
	case South:
		return BlockPos{0, 0, 1}
	case West:
		return BlockPos{-1, 0, 0}
	default:
		return BlockPos{1, 0, 0}
	}
}

func (d Direction) Opposite() Direction {
	switch d {
	case Down:
		return Up
	case Up:
		return Down
	case North:
		return South
	case South:
		return North
	case West:
		return East
	default:
		return West
	}
}

// Clockwise turns a horizontal direction a quarter turn, viewed from above.
func (d Direction) Clockwise() Direction {
	switch d {
	case North:
		return East
	case East:
		return South
	case South:
		return West
	case West:
		return North
	}
	return d
}

func (d Direction) Horizontal() bool { return d >= North }

// Axis returns 'x', 'y' or 'z'.
func (d Direction) Axis() byte {
	switch d {
	case Down, Up:
		return 'y'
	case North, South:
		return 'z'
	default:
		return 'x'
	}
}
