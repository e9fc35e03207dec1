// Package protocol implements the SwitchBot BLE command encoding and
// notification frame decoding. It performs no I/O.
package protocol

import (
	"encoding/hex"
	"fmt"
	"hash/crc32"
)

// Command prefixes. The *Pwd variants are followed by the password digest.
const (
	actionPrefix    = "5701"
	actionPwdPrefix = "5711"
	infoPrefix      = "5702"
	infoPwdPrefix   = "5712"
	modePrefix      = "570364"
	modePwdPrefix   = "571364"
)

// CommandKind selects how a command is encoded and how its reply is read.
type CommandKind int

const (
	KindAction CommandKind = iota
	KindMode
	KindInfo
)

func (k CommandKind) String() string {
	switch k {
	case KindAction:
		return "action"
	case KindMode:
		return "mode"
	case KindInfo:
		return "info"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Action is the payload suffix of an action command.
type Action string

const (
	ActionPress Action = ""
	ActionOn    Action = "01"
	ActionOff   Action = "02"
)

func (a Action) String() string {
	switch a {
	case ActionPress:
		return "press"
	case ActionOn:
		return "on"
	case ActionOff:
		return "off"
	default:
		return "action(" + string(a) + ")"
	}
}

// Command is a single request to the device.
type Command struct {
	Kind     CommandKind
	Action   Action // KindAction only
	DualMode bool   // KindMode only
	Inverse  bool   // KindMode only, ignored unless DualMode
}

// ActionCommand returns a press/on/off command.
func ActionCommand(a Action) Command {
	return Command{Kind: KindAction, Action: a}
}

// ModeCommand returns a command switching between press and on/off mode.
func ModeCommand(dualMode, inverse bool) Command {
	return Command{Kind: KindMode, DualMode: dualMode, Inverse: inverse}
}

// InfoCommand returns a settings/battery query.
func InfoCommand() Command {
	return Command{Kind: KindInfo}
}

func (c Command) String() string {
	switch c.Kind {
	case KindAction:
		return c.Action.String()
	case KindMode:
		return fmt.Sprintf("mode(dual=%t, inverse=%t)", c.DualMode, c.Inverse)
	default:
		return c.Kind.String()
	}
}

// Identity addresses one peripheral and carries its password digest.
type Identity struct {
	Address string
	digest  uint32
	hasPwd  bool
}

// NewIdentity builds an Identity. An empty password means commands are
// sent unauthenticated. The digest is computed here once.
func NewIdentity(address, password string) Identity {
	id := Identity{Address: address}
	if password != "" {
		id.digest = PasswordDigest(password)
		id.hasPwd = true
	}
	return id
}

// PasswordDigest is the CRC32 (IEEE) of the passphrase bytes.
func PasswordDigest(password string) uint32 {
	return crc32.ChecksumIEEE([]byte(password))
}

// Authenticated reports whether commands carry a password digest.
func (id Identity) Authenticated() bool {
	return id.hasPwd
}

// Digest returns the password digest as lowercase hex without padding,
// or "" for an unauthenticated identity.
func (id Identity) Digest() string {
	if !id.hasPwd {
		return ""
	}
	return fmt.Sprintf("%x", id.digest)
}

// Encode returns the hex command string for cmd.
func Encode(cmd Command, id Identity) string {
	return encode(cmd, id.hasPwd, id.Digest())
}

// EncodeBytes returns the bytes written to the command characteristic.
// The digest is always rendered as four bytes on the wire.
func EncodeBytes(cmd Command, id Identity) []byte {
	var digest string
	if id.hasPwd {
		digest = fmt.Sprintf("%08x", id.digest)
	}
	b, err := hex.DecodeString(encode(cmd, id.hasPwd, digest))
	if err != nil {
		// Every prefix and suffix is an even number of hex digits.
		panic("protocol: invalid command encoding: " + err.Error())
	}
	return b
}

func encode(cmd Command, authenticated bool, digest string) string {
	switch cmd.Kind {
	case KindMode:
		prefix := modePrefix
		if authenticated {
			prefix = modePwdPrefix + digest
		}
		if !cmd.DualMode {
			return prefix + "00"
		}
		if cmd.Inverse {
			return prefix + "11"
		}
		return prefix + "10"
	case KindInfo:
		if authenticated {
			return infoPwdPrefix + digest
		}
		return infoPrefix
	default:
		if authenticated {
			return actionPwdPrefix + digest + string(cmd.Action)
		}
		return actionPrefix + string(cmd.Action)
	}
}
