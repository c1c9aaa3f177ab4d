// Package lighting implements the bridge between the MQTT bus and the
// lighting controller's binary TCP protocol.
//
// # Architecture
//
// The controller speaks fixed 12-byte frames over TCP. The bridge keeps two
// independent connections to it:
//
//	                 ┌──────────────┐  command link (write)
//	MQTT ◄─────────► │    Bridge    │ ───────────────────────► controller
//	home/light/#     │              │ ◄─────────────────────── :5555
//	                 └──────────────┘  status link (read)
//
//   - CommandLink owns the command socket. All writes (commands and the
//     heartbeat) are serialised by its mutex.
//   - StatusListener owns the status socket and turns recognised frames
//     into state events.
//   - Heartbeat writes a keep-alive frame through CommandLink every 30s.
//   - Bridge subscribes to home/light/+/set, encodes commands, publishes
//     retained state and the online/offline liveness marker.
//
// # Frames
//
// Frames are never computed: they are looked up in a static table keyed by
// (Device, Action). The table is injective, so a reverse table decodes
// status frames received from the controller:
//
//	frame, err := lighting.Encode(lighting.DeviceEntrance, lighting.ActionOn)
//	// frame == "EE0006060F8000360001C6FE"
//
//	cmd, ok := lighting.Decode("ee0006060f8000190000a8fe")
//	// cmd == Command{Device: DeviceDiningMain, Action: ActionOff}, ok == true
//
// Unrecognised frames are expected noise and are dropped without error.
//
// # Delivery semantics
//
// Commands are at-most-once. A send that fails after its single retry is
// logged and the retained state on the bus is left untouched.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
package lighting
