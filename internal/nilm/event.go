package nilm

import (
	"fmt"
	"strings"
)

// EventKind is the decoded outcome of a classified switching event.
type EventKind int

const (
	EventOther EventKind = iota
	EventSwitchOn
	EventSwitchOff
)

func (k EventKind) String() string {
	switch k {
	case EventSwitchOn:
		return "on"
	case EventSwitchOff:
		return "off"
	default:
		return "other"
	}
}

// ParseEventKind accepts "on", "off" and "other" (case insensitive).
func ParseEventKind(s string) (EventKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "switch_on":
		return EventSwitchOn, nil
	case "off", "switch_off":
		return EventSwitchOff, nil
	case "other", "unknown":
		return EventOther, nil
	}
	return EventOther, fmt.Errorf("unknown event kind %q", s)
}

// Event is a switch of one appliance, or Other when the event does not belong
// to any known appliance.
type Event struct {
	Kind      EventKind
	Appliance int
}

// DecodeEvent maps a class index of a 2N+1 wide class vector onto an event:
// [0, N) switch on, [N, 2N) switch off, anything else Other.
func DecodeEvent(class, appliances int) Event {
	switch {
	case class >= 0 && class < appliances:
		return Event{Kind: EventSwitchOn, Appliance: class}
	case class >= appliances && class < 2*appliances:
		return Event{Kind: EventSwitchOff, Appliance: class - appliances}
	default:
		return Event{Kind: EventOther, Appliance: -1}
	}
}

// Class is the inverse of DecodeEvent.
func (e Event) Class(appliances int) int {
	switch e.Kind {
	case EventSwitchOn:
		return e.Appliance
	case EventSwitchOff:
		return appliances + e.Appliance
	default:
		return 2 * appliances
	}
}

func (e Event) String() string {
	if e.Kind == EventOther {
		return "other"
	}
	return fmt.Sprintf("%s(%d)", e.Kind, e.Appliance)
}
