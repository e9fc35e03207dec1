package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrUnrecognizedStatus is returned for a status byte outside the code
	// table. It points at a firmware/format mismatch and is never retried.
	ErrUnrecognizedStatus = errors.New("protocol: unrecognized status")

	// ErrShortFrame is returned when a frame is too short to decode.
	ErrShortFrame = errors.New("protocol: short notification frame")
)

// Status is the outcome of one exchange with the device.
type Status int

const (
	// StatusUnknown is the zero value: no command has run, or the reply
	// could not be decoded.
	StatusUnknown Status = iota
	StatusComplete
	StatusDeviceBusy
	StatusDeviceWrongMode
	StatusDeviceUnreachable
	StatusDeviceEncrypted
	StatusDeviceUnencrypted
	StatusWrongPassword
	StatusNoResponse
	StatusConnectFailed
)

var statusNames = [...]string{
	StatusUnknown:           "unknown",
	StatusComplete:          "complete",
	StatusDeviceBusy:        "device_busy",
	StatusDeviceWrongMode:   "device_wrong_mode",
	StatusDeviceUnreachable: "device_unreachable",
	StatusDeviceEncrypted:   "device_encrypted",
	StatusDeviceUnencrypted: "device_unencrypted",
	StatusWrongPassword:     "wrong_password",
	StatusNoResponse:        "no_response",
	StatusConnectFailed:     "connect_failed",
}

var statusMessages = [...]string{
	StatusUnknown:           "no decodable reply",
	StatusComplete:          "action complete",
	StatusDeviceBusy:        "switchbot is busy",
	StatusDeviceWrongMode:   "switchbot is in the wrong mode for this action",
	StatusDeviceUnreachable: "switchbot is unreachable",
	StatusDeviceEncrypted:   "switchbot is encrypted, a password is required",
	StatusDeviceUnencrypted: "switchbot is not encrypted, remove the password",
	StatusWrongPassword:     "switchbot rejected the password",
	StatusNoResponse:        "no response from switchbot",
	StatusConnectFailed:     "failed to connect to switchbot",
}

// statusCodes maps byte 0 of a notification frame to a Status.
var statusCodes = map[byte]Status{
	1:  StatusComplete,
	3:  StatusDeviceBusy,
	5:  StatusDeviceWrongMode,
	7:  StatusDeviceEncrypted,
	8:  StatusDeviceUnencrypted,
	9:  StatusWrongPassword,
	11: StatusDeviceUnreachable,
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// Message returns the human-readable description of s.
func (s Status) Message() string {
	if s < 0 || int(s) >= len(statusMessages) {
		return "unknown status"
	}
	return statusMessages[s]
}

// StatusFromCode decodes a frame status byte.
func StatusFromCode(code byte) (Status, error) {
	s, ok := statusCodes[code]
	if !ok {
		return StatusUnknown, fmt.Errorf("%w: code %d", ErrUnrecognizedStatus, code)
	}
	return s, nil
}
