package lighting

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, d := range Devices() {
		for _, a := range []Action{ActionOn, ActionOff} {
			frame, err := Encode(d, a)
			if err != nil {
				t.Fatalf("Encode(%s, %s) error: %v", d, a, err)
			}
			cmd, ok := Decode(frame)
			if !ok {
				t.Fatalf("Decode(%s) not recognised", frame)
			}
			if cmd.Device != d || cmd.Action != a {
				t.Errorf("Decode(Encode(%s, %s)) = %v", d, a, cmd)
			}
		}
	}
}

func TestEncodeReferenceFrames(t *testing.T) {
	tests := []struct {
		device Device
		action Action
		want   Frame
	}{
		{DeviceEntrance, ActionOn, "EE0006060F8000360001C6FE"},
		{DeviceDiningMain, ActionOff, "EE0006060F8000190000A8FE"},
		{DeviceLivingRoomStrip, ActionOn, "EE0006060F80001D0001ADFE"},
		{DeviceCorridor, ActionOff, "EE0006060F80001C0000ABFE"},
	}

	for _, tt := range tests {
		t.Run(string(tt.device)+"_"+string(tt.action), func(t *testing.T) {
			got, err := Encode(tt.device, tt.action)
			if err != nil {
				t.Fatalf("Encode() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Encode() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestEncodeUnknownCommand(t *testing.T) {
	tests := []struct {
		name   string
		device Device
		action Action
	}{
		{"unknown device", Device("garage"), ActionOn},
		{"unknown action", DeviceEntrance, Action("toggle")},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.device, tt.action)
			if !errors.Is(err, ErrUnknownCommand) {
				t.Errorf("Encode() error = %v, want ErrUnknownCommand", err)
			}
		})
	}
}

func TestDecodeUnrecognised(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
	}{
		{"keep-alive", KeepAliveFrame},
		{"empty", ""},
		{"garbage", "not hex at all"},
		{"truncated", "EE0006060F8000360001C6"},
		{"two frames", "EE0006060F8000360001C6FEEE0006060F8000360001C6FE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if cmd, ok := Decode(tt.frame); ok {
				t.Errorf("Decode(%q) = %v, want not recognised", tt.frame, cmd)
			}
		})
	}
}

func TestDecodeIgnoresCase(t *testing.T) {
	cmd, ok := Decode("ee0006060f8000190000a8fe")
	if !ok {
		t.Fatal("Decode() lower-case frame not recognised")
	}
	if cmd.Device != DeviceDiningMain || cmd.Action != ActionOff {
		t.Errorf("Decode() = %v, want dining_main off", cmd)
	}
}

func TestDecodeBytes(t *testing.T) {
	raw := []byte{0xEE, 0x00, 0x06, 0x06, 0x0F, 0x80, 0x00, 0x19, 0x00, 0x00, 0xA8, 0xFE}

	cmd, ok := DecodeBytes(raw)
	if !ok {
		t.Fatal("DecodeBytes() not recognised")
	}
	if cmd.Device != DeviceDiningMain || cmd.Action != ActionOff {
		t.Errorf("DecodeBytes() = %v, want dining_main off", cmd)
	}

	if _, ok := DecodeBytes(nil); ok {
		t.Error("DecodeBytes(nil) recognised")
	}
	if _, ok := DecodeBytes([]byte{0x01, 0x02}); ok {
		t.Error("DecodeBytes(noise) recognised")
	}
}

func TestFrameBytes(t *testing.T) {
	b, err := KeepAliveFrame.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error: %v", err)
	}
	want := []byte{0xEE, 0x00, 0x06, 0x06, 0x0F, 0x80, 0x00, 0x00, 0x00, 0x00, 0xA0, 0xFE}
	if !bytes.Equal(b, want) {
		t.Errorf("Bytes() = %X, want %X", b, want)
	}
	if got := FrameFromBytes(b); got != KeepAliveFrame {
		t.Errorf("FrameFromBytes() = %s, want %s", got, KeepAliveFrame)
	}

	if _, err := Frame("XYZ").Bytes(); !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("Bytes() invalid frame error = %v, want ErrInvalidFrame", err)
	}
}

func TestParseFrame(t *testing.T) {
	tests := []struct {
		in      string
		want    Frame
		wantErr bool
	}{
		{in: "ee0006060f8000360001c6fe", want: "EE0006060F8000360001C6FE"},
		{in: "  ee00 ", want: "EE00"},
		{in: "EE 00", wantErr: true},
		{in: "EE0", wantErr: true},
		{in: "", wantErr: true},
		{in: "ZZ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFrame(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidFrame) {
					t.Errorf("ParseFrame(%q) error = %v, want ErrInvalidFrame", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFrame(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseFrame(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseDevice(t *testing.T) {
	if d, err := ParseDevice("living_room_spot"); err != nil || d != DeviceLivingRoomSpot {
		t.Errorf("ParseDevice(living_room_spot) = %v, %v", d, err)
	}
	for _, s := range []string{"unknown_room", "Entrance", ""} {
		if _, err := ParseDevice(s); !errors.Is(err, ErrUnknownDevice) {
			t.Errorf("ParseDevice(%q) error = %v, want ErrUnknownDevice", s, err)
		}
	}
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		in      string
		want    Action
		wantErr bool
	}{
		{in: "on", want: ActionOn},
		{in: "OFF", want: ActionOff},
		{in: " On\n", want: ActionOn},
		{in: "toggle", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseAction(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownAction) {
				t.Errorf("ParseAction(%q) error = %v, want ErrUnknownAction", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseAction(%q) = %v, %v, want %v", tt.in, got, err, tt.want)
		}
	}
}

func TestDisplayName(t *testing.T) {
	if got := DeviceLivingRoomStrip.DisplayName(); got != "Living Room Strip" {
		t.Errorf("DisplayName() = %q, want %q", got, "Living Room Strip")
	}
}

func TestBuildReverseTablePanicsOnDuplicate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("buildReverseTable() did not panic on duplicate frame")
		}
	}()
	buildReverseTable(map[Command]Frame{
		{DeviceEntrance, ActionOn}: "EE01",
		{DeviceCorridor, ActionOn}: "ee01",
	})
}

func TestCommandTableComplete(t *testing.T) {
	if len(commandTable) != len(allDevices)*2 {
		t.Errorf("commandTable has %d entries, want %d", len(commandTable), len(allDevices)*2)
	}
	if len(reverseTable) != len(commandTable) {
		t.Errorf("reverseTable has %d entries, want %d", len(reverseTable), len(commandTable))
	}
	if _, ok := reverseTable[KeepAliveFrame]; ok {
		t.Error("keep-alive frame must not decode to a command")
	}
}
