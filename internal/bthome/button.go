package bthome

// ButtonEvent is the decoded value of a button object.
type ButtonEvent uint8

const (
	ButtonNone ButtonEvent = iota
	ButtonPress
	ButtonDoublePress
	ButtonTriplePress
	ButtonLongPress
	ButtonLongDoublePress
	ButtonLongTriplePress
	ButtonHoldPress
	ButtonUnknown
)

// ButtonFromCode maps a wire code to an event. Codes outside the table
// become ButtonUnknown.
func ButtonFromCode(code uint8) ButtonEvent {
	switch code {
	case 0x00:
		return ButtonNone
	case 0x01:
		return ButtonPress
	case 0x02:
		return ButtonDoublePress
	case 0x03:
		return ButtonTriplePress
	case 0x04:
		return ButtonLongPress
	case 0x05:
		return ButtonLongDoublePress
	case 0x06:
		return ButtonLongTriplePress
	case 0x80:
		return ButtonHoldPress
	default:
		return ButtonUnknown
	}
}

func (b ButtonEvent) String() string {
	switch b {
	case ButtonNone:
		return "none"
	case ButtonPress:
		return "press"
	case ButtonDoublePress:
		return "double_press"
	case ButtonTriplePress:
		return "triple_press"
	case ButtonLongPress:
		return "long_press"
	case ButtonLongDoublePress:
		return "long_double_press"
	case ButtonLongTriplePress:
		return "long_triple_press"
	case ButtonHoldPress:
		return "hold_press"
	default:
		return "unknown"
	}
}
