package protocol

import (
	"bytes"
	"testing"
)

func testIdentity(digest uint32) Identity {
	return Identity{Address: "E4:8F:12:34:56:78", digest: digest, hasPwd: true}
}

func TestEncodeActions(t *testing.T) {
	plain := NewIdentity("E4:8F:12:34:56:78", "")
	authed := testIdentity(0xdeadbeef)

	tests := []struct {
		name string
		cmd  Command
		id   Identity
		want string
	}{
		{"press", ActionCommand(ActionPress), plain, "5701"},
		{"on", ActionCommand(ActionOn), plain, "570101"},
		{"off", ActionCommand(ActionOff), plain, "570102"},
		{"press with password", ActionCommand(ActionPress), authed, "5711deadbeef"},
		{"on with password", ActionCommand(ActionOn), authed, "5711deadbeef01"},
		{"off with password", ActionCommand(ActionOff), authed, "5711deadbeef02"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Encode(tt.cmd, tt.id); got != tt.want {
				t.Errorf("Encode(%v) = %q, want %q", tt.cmd, got, tt.want)
			}
		})
	}
}

func TestEncodeMode(t *testing.T) {
	plain := NewIdentity("E4:8F:12:34:56:78", "")
	authed := testIdentity(0xdeadbeef)

	tests := []struct {
		name string
		cmd  Command
		id   Identity
		want string
	}{
		{"press mode", ModeCommand(false, false), plain, "57036400"},
		{"press mode ignores inverse", ModeCommand(false, true), plain, "57036400"},
		{"dual mode", ModeCommand(true, false), plain, "57036410"},
		{"dual mode inverse", ModeCommand(true, true), plain, "57036411"},
		{"dual mode with password", ModeCommand(true, false), authed, "571364deadbeef10"},
		{"press mode with password", ModeCommand(false, false), authed, "571364deadbeef00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Encode(tt.cmd, tt.id); got != tt.want {
				t.Errorf("Encode(%v) = %q, want %q", tt.cmd, got, tt.want)
			}
		})
	}
}

func TestEncodeInfo(t *testing.T) {
	if got := Encode(InfoCommand(), NewIdentity("E4:8F:12:34:56:78", "")); got != "5702" {
		t.Errorf("Encode(info) = %q, want %q", got, "5702")
	}
	if got := Encode(InfoCommand(), testIdentity(0xdeadbeef)); got != "5712deadbeef" {
		t.Errorf("Encode(info, password) = %q, want %q", got, "5712deadbeef")
	}
}

func TestPasswordDigest(t *testing.T) {
	// CRC32/IEEE check value.
	if got := PasswordDigest("123456789"); got != 0xcbf43926 {
		t.Errorf("PasswordDigest(%q) = %08x, want cbf43926", "123456789", got)
	}

	id := NewIdentity("E4:8F:12:34:56:78", "123456789")
	if !id.Authenticated() {
		t.Fatal("identity with password should be authenticated")
	}
	if id.Digest() != "cbf43926" {
		t.Errorf("Digest() = %q, want %q", id.Digest(), "cbf43926")
	}
	if got := Encode(ActionCommand(ActionOn), id); got != "5711cbf4392601" {
		t.Errorf("Encode(on) = %q, want %q", got, "5711cbf4392601")
	}
}

func TestNewIdentityEmptyPassword(t *testing.T) {
	id := NewIdentity("E4:8F:12:34:56:78", "")
	if id.Authenticated() {
		t.Error("identity without password should not be authenticated")
	}
	if id.Digest() != "" {
		t.Errorf("Digest() = %q, want empty", id.Digest())
	}
}

func TestDigestHasNoPadding(t *testing.T) {
	id := testIdentity(0x0badf00d)
	if id.Digest() != "badf00d" {
		t.Errorf("Digest() = %q, want %q", id.Digest(), "badf00d")
	}
	if got := Encode(ActionCommand(ActionOff), id); got != "5711badf00d02" {
		t.Errorf("Encode(off) = %q, want %q", got, "5711badf00d02")
	}
}

func TestEncodeBytes(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		id   Identity
		want []byte
	}{
		{"on", ActionCommand(ActionOn), NewIdentity("x", ""), []byte{0x57, 0x01, 0x01}},
		{"info", InfoCommand(), NewIdentity("x", ""), []byte{0x57, 0x02}},
		{"off with password", ActionCommand(ActionOff), testIdentity(0xdeadbeef),
			[]byte{0x57, 0x11, 0xde, 0xad, 0xbe, 0xef, 0x02}},
		{"short digest padded on the wire", ActionCommand(ActionOff), testIdentity(0x0badf00d),
			[]byte{0x57, 0x11, 0x0b, 0xad, 0xf0, 0x0d, 0x02}},
		{"dual mode inverse", ModeCommand(true, true), NewIdentity("x", ""), []byte{0x57, 0x03, 0x64, 0x11}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EncodeBytes(tt.cmd, tt.id); !bytes.Equal(got, tt.want) {
				t.Errorf("EncodeBytes(%v) = %x, want %x", tt.cmd, got, tt.want)
			}
		})
	}
}
