package protocol

import (
	"fmt"
)

const (
	// alreadyInState is byte 1 of a wrong-mode frame when the device is
	// already in the requested state.
	alreadyInState = 0xFF

	infoFrameLen  = 10
	flagsIndex    = 9
	dualModeFlag  = 0x10
	inverseFlag   = 0x01
	firmwareScale = 10.0
)

// DeviceState is the device configuration reported by an info query.
type DeviceState struct {
	Battery     int    // percent, 0-100
	Firmware    string // e.g. "4.9"
	DualMode    bool
	InverseMode bool
}

// Outcome is the result of one command exchange, or of a whole retry cycle.
type Outcome struct {
	Success bool
	Status  Status
	State   *DeviceState // set for successful info queries
	Cause   error        // transport or decode error behind a failure
}

// NoResponse is the outcome when no notification arrived in time.
func NoResponse() Outcome {
	return Outcome{Status: StatusNoResponse}
}

// ConnectFailed is the outcome when the transport session could not be
// established or used.
func ConnectFailed(cause error) Outcome {
	return Outcome{Status: StatusConnectFailed, Cause: cause}
}

// Interpret decodes a notification frame received in reply to a command
// of the given kind.
func Interpret(kind CommandKind, frame []byte) (Outcome, error) {
	if len(frame) == 0 {
		return Outcome{}, fmt.Errorf("%w: empty", ErrShortFrame)
	}
	status, err := StatusFromCode(frame[0])
	if err != nil {
		return Outcome{}, err
	}

	switch kind {
	case KindAction, KindMode:
		if status == StatusDeviceWrongMode && len(frame) > 1 && frame[1] == alreadyInState {
			return Outcome{Success: true, Status: StatusComplete}, nil
		}
		return Outcome{Success: status == StatusComplete, Status: status}, nil

	case KindInfo:
		if status != StatusComplete {
			return Outcome{Status: status}, nil
		}
		if len(frame) < infoFrameLen {
			return Outcome{}, fmt.Errorf("%w: info frame has %d bytes, want %d", ErrShortFrame, len(frame), infoFrameLen)
		}
		flags := frame[flagsIndex]
		state := &DeviceState{
			Battery:     int(frame[1]),
			Firmware:    fmt.Sprintf("%.1f", float64(frame[2])/firmwareScale),
			DualMode:    flags&dualModeFlag != 0,
			InverseMode: flags&inverseFlag != 0,
		}
		return Outcome{Success: true, Status: StatusComplete, State: state}, nil

	default:
		return Outcome{}, fmt.Errorf("protocol: unknown command kind %d", int(kind))
	}
}
