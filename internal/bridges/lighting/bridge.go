package lighting

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Bridge operation constants.
const (
	// defaultBusReconnectDelay is the wait before each manual bus reconnect.
	defaultBusReconnectDelay = 5 * time.Second

	// defaultBusReconnectAttempts bounds the manual bus reconnect loop.
	defaultBusReconnectAttempts = 5

	// disconnectQuiesce is the grace period in ms for the final disconnect.
	disconnectQuiesce = 250
)

// State sources recorded alongside each published state.
const (
	SourceCommand = "command"
	SourceStatus  = "status"
)

// BusClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type BusClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool

	// Reconnect makes a single connection attempt to the broker.
	Reconnect() error

	// Disconnect closes the connection gracefully.
	Disconnect(quiesce uint)
}

// Link is the command path to the controller. *CommandLink implements it.
type Link interface {
	Send(ctx context.Context, frame Frame) error
	Close() error
}

// StatusSource delivers decoded status frames. *StatusListener implements it.
type StatusSource interface {
	SetOnStatus(fn func(Command))
	Run(ctx context.Context)
}

// Runner is a background task that stops when ctx is cancelled.
type Runner interface {
	Run(ctx context.Context)
}

// StateRecorder persists published light states. It is optional.
type StateRecorder interface {
	RecordState(ctx context.Context, device Device, action Action, source string) error
}

// Recorders fans a state change out to several recorders. Every recorder is
// called even if an earlier one fails.
type Recorders []StateRecorder

// RecordState implements StateRecorder.
func (rs Recorders) RecordState(ctx context.Context, device Device, action Action, source string) error {
	var errs []error
	for _, r := range rs {
		if err := r.RecordState(ctx, device, action, source); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// Bus is the MQTT client.
	Bus BusClient

	// Link sends frames to the controller.
	Link Link

	// Listener is optional. Its decoded frames become state publishes.
	Listener StatusSource

	// Heartbeat is optional and runs alongside the listener.
	Heartbeat Runner

	// Recorder is optional state persistence.
	Recorder StateRecorder

	// Logger is optional structured logger.
	Logger Logger

	// Metrics is optional.
	Metrics Metrics

	// Topics overrides the topic layout. Zero value means DefaultTopics.
	Topics Topics

	// Discovery controls Home Assistant discovery publishing.
	Discovery DiscoveryConfig

	// QoS for subscriptions and publishes.
	QoS byte

	// ReconnectDelay is the wait before each manual bus reconnect. Default: 5s.
	ReconnectDelay time.Duration

	// ReconnectAttempts bounds the manual bus reconnect loop. Default: 5.
	ReconnectAttempts int
}

// Bridge connects the MQTT bus to the lighting controller.
//
// Inbound "<prefix>/<device>/set" messages are encoded and sent over the
// command link; a successful send is echoed as a retained state. Status
// frames from the listener are published as retained state as well.
//
// Delivery is at-most-once: a failed send is logged and the retained state
// is left as it was.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	observer

	bus       BusClient
	link      Link
	listener  StatusSource
	heartbeat Runner
	recorder  StateRecorder
	topics    Topics
	discovery DiscoveryConfig
	qos       byte

	reconnectDelay    time.Duration
	reconnectAttempts int
	reconnecting      atomic.Bool
	sleep             sleepFunc

	// Last published action per device, used to suppress repeats.
	// Devices in seeded hold a stored value that has not been published
	// by this process yet, so they never suppress a status.
	stateCache   map[Device]Action
	seeded       map[Device]bool
	stateCacheMu sync.RWMutex

	// Shutdown coordination
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	ctx       context.Context    // Bridge-level context, cancelled on Stop()
	ctxCancel context.CancelFunc // Cancel function for ctx
}

// NewBridge creates a new bridge instance.
// Call Start() to run the listener and heartbeat.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Bus == nil {
		return nil, errors.New("bus client is required")
	}
	if opts.Link == nil {
		return nil, errors.New("command link is required")
	}

	topics := opts.Topics
	if topics == (Topics{}) {
		topics = DefaultTopics()
	}
	delay := opts.ReconnectDelay
	if delay <= 0 {
		delay = defaultBusReconnectDelay
	}
	attempts := opts.ReconnectAttempts
	if attempts <= 0 {
		attempts = defaultBusReconnectAttempts
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		bus:               opts.Bus,
		link:              opts.Link,
		listener:          opts.Listener,
		heartbeat:         opts.Heartbeat,
		recorder:          opts.Recorder,
		topics:            topics,
		discovery:         opts.Discovery,
		qos:               opts.QoS,
		reconnectDelay:    delay,
		reconnectAttempts: attempts,
		sleep:             sleepContext,
		stateCache:        make(map[Device]Action),
		seeded:            make(map[Device]bool),
		ctx:               ctx,
		ctxCancel:         ctxCancel,
	}
	b.SetLogger(opts.Logger)
	b.SetMetrics(opts.Metrics)

	return b, nil
}

// Topics returns the topic layout in use.
func (b *Bridge) Topics() Topics {
	return b.topics
}

// Start launches the status listener and heartbeat. Both stop on Stop()
// or when ctx is cancelled.
func (b *Bridge) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		context.AfterFunc(b.ctx, cancel)

		if b.listener != nil {
			b.listener.SetOnStatus(b.handleStatus)
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.listener.Run(runCtx)
			}()
		}
		if b.heartbeat != nil {
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.heartbeat.Run(runCtx)
			}()
		}
		b.logInfo("bridge started", "command_topic", b.topics.CommandSubscribe())
	})
}

// OnBusConnect subscribes to command topics, publishes discovery configs
// and marks the bridge online. Call it from the MQTT on-connect callback.
func (b *Bridge) OnBusConnect() {
	topic := b.topics.CommandSubscribe()
	if err := b.bus.Subscribe(topic, b.qos, b.handleCommand); err != nil {
		b.logError("failed to subscribe to commands", "topic", topic, "error", err)
	} else {
		b.logInfo("subscribed to commands", "topic", topic)
	}

	b.publishDiscovery()

	if err := b.bus.Publish(b.topics.Status(), []byte(PayloadOnline), b.qos, true); err != nil {
		b.logError("failed to publish online status", "error", err)
	}
}

// OnBusDisconnect runs the manual reconnect loop: wait, try once, repeat up
// to the configured number of attempts. Only one loop runs at a time.
func (b *Bridge) OnBusDisconnect(cause error) {
	b.logWarn("bus connection lost", "error", cause)

	if !b.reconnecting.CompareAndSwap(false, true) {
		return
	}
	defer b.reconnecting.Store(false)

	for attempt := 1; attempt <= b.reconnectAttempts; attempt++ {
		if err := b.sleep(b.ctx, b.reconnectDelay); err != nil {
			return
		}

		err := b.bus.Reconnect()
		b.m().BusReconnect(err == nil)
		if err == nil {
			b.logInfo("bus reconnected", "attempt", attempt)
			return
		}
		b.logWarn("bus reconnect failed",
			"attempt", attempt,
			"max", b.reconnectAttempts,
			"error", err)
	}

	b.logError("bus reconnect failed, max retries reached", "max", b.reconnectAttempts)
}

// handleCommand processes a "<prefix>/<device>/set" message.
func (b *Bridge) handleCommand(topic string, payload []byte) {
	commandID := uuid.NewString()

	segment, ok := deviceFromTopic(topic)
	if !ok {
		b.m().CommandHandled(resultUnknownDevice)
		b.logWarn("invalid command topic", "command_id", commandID, "topic", topic)
		return
	}

	device, err := ParseDevice(segment)
	if err != nil {
		b.m().CommandHandled(resultUnknownDevice)
		b.logWarn("unknown device", "command_id", commandID, "device", segment)
		return
	}

	action, err := ParseAction(string(payload))
	if err != nil {
		b.m().CommandHandled(resultUnknownAction)
		b.logWarn("invalid command", "command_id", commandID, "device", device, "payload", string(payload))
		return
	}

	frame, err := Encode(device, action)
	if err != nil {
		b.m().CommandHandled(resultUnknownAction)
		b.logWarn("invalid command", "command_id", commandID, "device", device, "action", action)
		return
	}

	b.logDebug("received command",
		"command_id", commandID,
		"device", device,
		"action", action,
		"frame", frame)

	if err := b.link.Send(b.ctx, frame); err != nil {
		b.m().CommandHandled(resultFailed)
		b.logWarn("command send failed",
			"command_id", commandID,
			"device", device,
			"action", action,
			"error", err)
		return
	}

	b.m().CommandHandled(resultOK)
	b.publishState(device, action, SourceCommand)
	b.logInfo("device controlled",
		"command_id", commandID,
		"device", device,
		"action", action)
}

// handleStatus publishes a state decoded from the status link.
// Repeats of the last published action are suppressed. A seeded value
// does not count as published.
func (b *Bridge) handleStatus(cmd Command) {
	b.stateCacheMu.RLock()
	last, seen := b.stateCache[cmd.Device]
	seeded := b.seeded[cmd.Device]
	b.stateCacheMu.RUnlock()

	if seen && !seeded && last == cmd.Action {
		b.logDebug("status unchanged", "device", cmd.Device, "action", cmd.Action)
		return
	}

	b.publishState(cmd.Device, cmd.Action, SourceStatus)
}

// publishState publishes a retained state and records it.
func (b *Bridge) publishState(device Device, action Action, source string) {
	topic := b.topics.State(device)
	if err := b.bus.Publish(topic, []byte(action), b.qos, true); err != nil {
		b.logWarn("failed to publish state",
			"device", device,
			"action", action,
			"error", err)
		return
	}

	b.stateCacheMu.Lock()
	b.stateCache[device] = action
	delete(b.seeded, device)
	b.stateCacheMu.Unlock()

	if b.recorder != nil {
		if err := b.recorder.RecordState(b.ctx, device, action, source); err != nil {
			b.logWarn("failed to record state", "device", device, "error", err)
		}
	}
}

// SeedState loads last-known states into the cache without publishing.
// Seeded values are reported by States but the first status for each
// device is still published. Devices already published are left alone.
func (b *Bridge) SeedState(states map[Device]Action) {
	b.stateCacheMu.Lock()
	defer b.stateCacheMu.Unlock()
	for d, a := range states {
		if _, live := b.stateCache[d]; live && !b.seeded[d] {
			continue
		}
		b.stateCache[d] = a
		b.seeded[d] = true
	}
	if len(states) > 0 {
		b.logInfo("seeded state cache", "devices", len(states))
	}
}

// States returns a copy of the last published action per device.
func (b *Bridge) States() map[Device]Action {
	b.stateCacheMu.RLock()
	defer b.stateCacheMu.RUnlock()
	out := make(map[Device]Action, len(b.stateCache))
	for d, a := range b.stateCache {
		out[d] = a
	}
	return out
}

// BusConnected reports whether the MQTT bus is connected.
func (b *Bridge) BusConnected() bool {
	return b.bus.IsConnected()
}

// Stop publishes the offline marker, disconnects the bus and closes the
// command link. Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.ctxCancel()
		b.wg.Wait()

		if b.bus.IsConnected() {
			if err := b.bus.Publish(b.topics.Status(), []byte(PayloadOffline), b.qos, true); err != nil {
				b.logWarn("failed to publish offline status", "error", err)
			}
		}
		b.bus.Disconnect(disconnectQuiesce)

		if err := b.link.Close(); err != nil {
			b.logWarn("failed to close command link", "error", err)
		}

		b.logInfo("bridge stopped")
	})
}
