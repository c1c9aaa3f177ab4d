package lighting

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Device identifies one of the lighting zones wired to the controller.
type Device string

// The closed set of zones known to the controller.
const (
	DeviceEntrance        Device = "entrance"
	DeviceDiningMain      Device = "dining_main"
	DeviceDiningSpot      Device = "dining_spot"
	DeviceLivingRoom      Device = "living_room"
	DeviceLivingRoomSpot  Device = "living_room_spot"
	DeviceLivingRoomStrip Device = "living_room_strip"
	DeviceCorridor        Device = "corridor"
)

// allDevices preserves declaration order for discovery and listings.
var allDevices = []Device{
	DeviceEntrance,
	DeviceDiningMain,
	DeviceDiningSpot,
	DeviceLivingRoom,
	DeviceLivingRoomSpot,
	DeviceLivingRoomStrip,
	DeviceCorridor,
}

// Devices returns every known device in a stable order.
func Devices() []Device {
	out := make([]Device, len(allDevices))
	copy(out, allDevices)
	return out
}

// ParseDevice converts a topic segment into a Device.
// Matching is exact; device identifiers are lower-case snake case.
func ParseDevice(s string) (Device, error) {
	for _, d := range allDevices {
		if string(d) == s {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDevice, s)
}

// DisplayName returns a human readable name, e.g. "Living Room Spot".
func (d Device) DisplayName() string {
	words := strings.Split(string(d), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Action is the binary state of a light.
type Action string

// Supported actions. These are also the MQTT payloads.
const (
	ActionOn  Action = "on"
	ActionOff Action = "off"
)

// ParseAction converts a payload into an Action. Case is ignored.
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionOn:
		return ActionOn, nil
	case ActionOff:
		return ActionOff, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
}

// Frame is a controller command in upper-case hexadecimal form.
type Frame string

// KeepAliveFrame is written periodically on the command link.
// It is deliberately absent from the command table.
const KeepAliveFrame Frame = "EE0006060F8000000000A0FE"

// ParseFrame validates a hex string and normalises it to upper case.
func ParseFrame(s string) (Frame, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" || len(s)%2 != 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidFrame, s)
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidFrame, err)
	}
	return Frame(s), nil
}

// FrameFromBytes renders raw bytes as a Frame.
func FrameFromBytes(b []byte) Frame {
	return Frame(strings.ToUpper(hex.EncodeToString(b)))
}

// Bytes returns the raw bytes to put on the wire.
func (f Frame) Bytes() ([]byte, error) {
	b, err := hex.DecodeString(string(f))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFrame, err)
	}
	return b, nil
}

// String implements fmt.Stringer.
func (f Frame) String() string {
	return string(f)
}

// Command is a (device, action) pair.
type Command struct {
	Device Device
	Action Action
}

// commandTable maps every supported command to its frame.
// Captured from the controller; do not edit without a capture.
var commandTable = map[Command]Frame{
	{DeviceEntrance, ActionOn}:         "EE0006060F8000360001C6FE",
	{DeviceEntrance, ActionOff}:        "EE0006060F8000360000C5FE",
	{DeviceDiningMain, ActionOn}:       "EE0006060F8000190001A9FE",
	{DeviceDiningMain, ActionOff}:      "EE0006060F8000190000A8FE",
	{DeviceDiningSpot, ActionOn}:       "EE0006060F8000170001A7FE",
	{DeviceDiningSpot, ActionOff}:      "EE0006060F8000170000A6FE",
	{DeviceLivingRoom, ActionOn}:       "EE0006060F8000160001A6FE",
	{DeviceLivingRoom, ActionOff}:      "EE0006060F8000160000A5FE",
	{DeviceLivingRoomSpot, ActionOn}:   "EE0006060F8000180001A8FE",
	{DeviceLivingRoomSpot, ActionOff}:  "EE0006060F8000180000A7FE",
	{DeviceLivingRoomStrip, ActionOn}:  "EE0006060F80001D0001ADFE",
	{DeviceLivingRoomStrip, ActionOff}: "EE0006060F80001D0000ACFE",
	{DeviceCorridor, ActionOn}:         "EE0006060F80001C0001ACFE",
	{DeviceCorridor, ActionOff}:        "EE0006060F80001C0000ABFE",
}

// reverseTable is derived from commandTable once and never mutated.
var reverseTable = buildReverseTable(commandTable)

// buildReverseTable inverts the command table. It panics if two commands
// share a frame, since decoding would then be ambiguous.
func buildReverseTable(table map[Command]Frame) map[Frame]Command {
	rev := make(map[Frame]Command, len(table))
	for cmd, frame := range table {
		key := Frame(strings.ToUpper(string(frame)))
		if other, dup := rev[key]; dup {
			panic(fmt.Sprintf("lighting: frame %s maps to both %v and %v", key, other, cmd))
		}
		rev[key] = cmd
	}
	return rev
}

// Encode looks up the frame for a device and action.
func Encode(device Device, action Action) (Frame, error) {
	frame, ok := commandTable[Command{Device: device, Action: action}]
	if !ok {
		return "", fmt.Errorf("%w: %s -> %s", ErrUnknownCommand, device, action)
	}
	return frame, nil
}

// Decode maps a frame back to its command. Comparison ignores case.
// The boolean is false for frames outside the table.
func Decode(frame Frame) (Command, bool) {
	cmd, ok := reverseTable[Frame(strings.ToUpper(string(frame)))]
	return cmd, ok
}

// DecodeBytes decodes a raw read from the status link.
func DecodeBytes(b []byte) (Command, bool) {
	if len(b) == 0 {
		return Command{}, false
	}
	return Decode(FrameFromBytes(b))
}
