package deck

import (
	"fmt"
	"strings"
)

// Layout is how many panes are shown and how they are arranged.
type Layout string

const (
	LayoutSingle Layout = "1"
	Layout2H     Layout = "2h"
	Layout2V     Layout = "2v"
	LayoutThree  Layout = "3"
	LayoutFour   Layout = "4"
)

// Layouts lists every layout in cycling order.
var Layouts = []Layout{LayoutSingle, Layout2H, Layout2V, LayoutThree, LayoutFour}

// ParseLayout accepts the short names plus a few spelled-out aliases.
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "single":
		return LayoutSingle, nil
	case "2h", "two-horizontal", "horizontal":
		return Layout2H, nil
	case "2v", "two-vertical", "vertical":
		return Layout2V, nil
	case "3", "three":
		return LayoutThree, nil
	case "4", "four", "grid":
		return LayoutFour, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLayout, s)
}

// Required is the number of panes the layout shows.
func (l Layout) Required() int {
	switch l {
	case Layout2H, Layout2V:
		return 2
	case LayoutThree:
		return 3
	case LayoutFour:
		return 4
	default:
		return 1
	}
}

func (l Layout) Valid() bool {
	for _, known := range Layouts {
		if l == known {
			return true
		}
	}
	return false
}

// Next returns the following layout in cycling order.
func (l Layout) Next() Layout {
	for i, known := range Layouts {
		if l == known {
			return Layouts[(i+1)%len(Layouts)]
		}
	}
	return LayoutSingle
}

// fitLayout keeps current when count can fill it, otherwise steps down to
// the largest layout count can fill. Two panes keep their orientation.
func fitLayout(current Layout, count int) Layout {
	if current.Required() <= count {
		return current
	}
	switch {
	case count >= 3:
		return LayoutThree
	case count == 2:
		if current == Layout2V {
			return Layout2V
		}
		return Layout2H
	default:
		return LayoutSingle
	}
}
