package lidar

import (
	"fmt"
	"strings"
)

// Family groups sensor models that share a packet layout.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyVelodyne
	FamilyOuster
)

func (f Family) String() string {
	switch f {
	case FamilyVelodyne:
		return "velodyne"
	case FamilyOuster:
		return "ouster"
	default:
		return "unknown"
	}
}

// Model is the closed set of supported sensor models.
type Model int

const (
	ModelUnknown Model = iota
	ModelVLP16
	ModelPuckLite
	ModelPuckHiRes
	ModelVLP32C
	ModelOS1_64
)

var modelNames = map[Model]string{
	ModelVLP16:     "vlp16",
	ModelPuckLite:  "puck-lite",
	ModelPuckHiRes: "puck-hires",
	ModelVLP32C:    "vlp32c",
	ModelOS1_64:    "os1-64",
}

func (m Model) String() string {
	if name, ok := modelNames[m]; ok {
		return name
	}
	return "unknown"
}

// ParseModel accepts the names produced by Model.String (case-insensitive).
func ParseModel(s string) (Model, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for m, name := range modelNames {
		if name == s {
			return m, nil
		}
	}
	return ModelUnknown, fmt.Errorf("unknown sensor model %q", s)
}

// Family returns the packet family of the model.
func (m Model) Family() Family {
	switch m {
	case ModelVLP16, ModelPuckLite, ModelPuckHiRes, ModelVLP32C:
		return FamilyVelodyne
	case ModelOS1_64:
		return FamilyOuster
	default:
		return FamilyUnknown
	}
}

// Channels returns the number of physical lasers, which is also the frame height.
func (m Model) Channels() int {
	switch m {
	case ModelVLP16, ModelPuckLite, ModelPuckHiRes:
		return 16
	case ModelVLP32C:
		return 32
	case ModelOS1_64:
		return 64
	default:
		return 0
	}
}

// ProductID is the factory byte Velodyne sensors write at the end of each
// data packet. Zero for models that do not report one.
func (m Model) ProductID() byte {
	switch m {
	case ModelVLP16, ModelPuckLite:
		return 0x22
	case ModelPuckHiRes:
		return 0x24
	case ModelVLP32C:
		return 0x28
	default:
		return 0
	}
}

// ReturnMode is the return-mode byte of a Velodyne packet. It also tags
// which return a Point represents.
type ReturnMode byte

const (
	ReturnStrongest ReturnMode = 0x37
	ReturnLast      ReturnMode = 0x38
	ReturnDual      ReturnMode = 0x39
)

// ParseReturnMode reports whether b is one of the documented return modes.
func ParseReturnMode(b byte) (ReturnMode, bool) {
	switch ReturnMode(b) {
	case ReturnStrongest, ReturnLast, ReturnDual:
		return ReturnMode(b), true
	}
	return 0, false
}

func (r ReturnMode) String() string {
	switch r {
	case ReturnStrongest:
		return "strongest"
	case ReturnLast:
		return "last"
	case ReturnDual:
		return "dual"
	default:
		return fmt.Sprintf("0x%02x", byte(r))
	}
}

// ReturnPolicy selects the shape of converter output.
type ReturnPolicy int

const (
	PolicyLast ReturnPolicy = iota
	PolicyStrongest
	PolicyDual
	// PolicyDynamic picks single or dual shape per packet from its return-mode byte.
	PolicyDynamic
)

func (p ReturnPolicy) String() string {
	switch p {
	case PolicyLast:
		return "last"
	case PolicyStrongest:
		return "strongest"
	case PolicyDual:
		return "dual"
	case PolicyDynamic:
		return "dynamic"
	default:
		return "unknown"
	}
}

// ParseReturnPolicy parses "last", "strongest", "dual" or "dynamic".
func ParseReturnPolicy(s string) (ReturnPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "last":
		return PolicyLast, nil
	case "strongest":
		return PolicyStrongest, nil
	case "dual":
		return PolicyDual, nil
	case "dynamic":
		return PolicyDynamic, nil
	}
	return PolicyLast, fmt.Errorf("unknown return policy %q", s)
}
