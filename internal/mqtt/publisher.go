package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/buildinfo"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/callstate"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/config"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/events"
)

// Call status sensor values.
const (
	StatusIdle       = "idle"
	StatusIncoming   = "incoming"
	StatusActive     = "active"
	StatusForwarding = "forwarding"
)

// commandRateLimit bounds inbound commands per minute.
const commandRateLimit = 30

// connection is the publishing half of [autopaho.ConnectionManager].
type connection interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
}

// Publisher manages the MQTT connection, publishes HA discovery config
// messages on (re-)connect, and pushes sensor states whenever the call
// state changes.
type Publisher struct {
	cfg        config.MQTTConfig
	instanceID string
	device     DeviceInfo
	store      *callstate.Store
	bus        *events.Bus
	daily      *DailyCalls
	commands   CommandTarget
	logger     *slog.Logger
	cm         *autopaho.ConnectionManager

	mu   sync.Mutex
	last map[string]string // last value published per entity
}

// New creates a Publisher but does not connect. commands may be nil,
// in which case no buttons are announced and no topic is subscribed.
// Call [Publisher.Start] to begin the connection and publish loop.
func New(cfg config.MQTTConfig, instanceID string, store *callstate.Store, bus *events.Bus, commands CommandTarget, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		cfg:        cfg,
		instanceID: instanceID,
		device:     NewDeviceInfo(instanceID, cfg.DeviceName),
		store:      store,
		bus:        bus,
		daily:      NewDailyCalls(nil),
		commands:   commands,
		logger:     logger,
		last:       make(map[string]string),
	}
}

// Start connects to the MQTT broker and mirrors the call state until
// ctx is cancelled. On every (re-)connect it publishes discovery
// configs, a birth message and the full state.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	limiter := newMessageRateLimiter(commandRateLimit, time.Minute, p.logger)
	go limiter.start(ctx)

	var onCommand MessageHandler
	if p.commands != nil {
		onCommand = commandHandler(p.commands, limiter, p.logger)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   p.availabilityTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected to broker", "broker", p.cfg.Broker)
			p.publishDiscovery(ctx, cm)
			p.publishAvailability(ctx, cm, "online")
			p.forget()
			p.publishCallState(ctx, cm, p.store.State())
			p.publishDaily(ctx, cm)
			if onCommand != nil {
				p.subscribeCommands(ctx, cm)
			}
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "voicewizard-" + p.cfg.DeviceName,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					if onCommand != nil && pr.Packet.Topic == p.commandTopic() {
						onCommand(pr.Packet.Topic, pr.Packet.Payload)
					}
					return true, nil
				},
			},
		},
	}

	// Enable TLS for mqtts:// or ssl:// schemes.
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.cm = cm

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// autopaho keeps retrying in the background.
		p.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	p.runLoop(ctx, cm)
	return nil
}

// Stop gracefully disconnects by publishing an "offline" availability
// message before closing the MQTT connection.
func (p *Publisher) Stop(ctx context.Context) error {
	if p.cm == nil {
		return nil
	}
	p.publishAvailability(ctx, p.cm, "offline")
	return p.cm.Disconnect(ctx)
}

// --- Topic helpers ---

func (p *Publisher) baseTopic() string {
	return "voicewizard/" + p.cfg.DeviceName
}

func (p *Publisher) availabilityTopic() string {
	return p.baseTopic() + "/availability"
}

func (p *Publisher) commandTopic() string {
	return p.baseTopic() + "/command"
}

func (p *Publisher) stateTopic(entity string) string {
	return p.baseTopic() + "/" + entity + "/state"
}

func (p *Publisher) discoveryTopic(component, entity string) string {
	return p.cfg.DiscoveryPrefix + "/" + component + "/" + p.cfg.DeviceName + "/" + entity + "/config"
}

// --- Discovery ---

type sensorDef struct {
	entity string
	config SensorConfig
}

type buttonDef struct {
	entity string
	config ButtonConfig
}

func (p *Publisher) sensor(entity, name, icon string) SensorConfig {
	return SensorConfig{
		Name:              p.device.Name + " " + name,
		UniqueID:          p.instanceID + "_" + entity,
		StateTopic:        p.stateTopic(entity),
		AvailabilityTopic: p.availabilityTopic(),
		Device:            p.device,
		Icon:              icon,
	}
}

func (p *Publisher) sensorDefinitions() []sensorDef {
	callsToday := p.sensor("calls_today", "Calls Today", "mdi:phone-log")
	callsToday.StateClass = "total_increasing"
	callsToday.UnitOfMeasurement = "calls"

	missedToday := p.sensor("missed_today", "Missed Calls Today", "mdi:phone-missed")
	missedToday.StateClass = "total_increasing"
	missedToday.UnitOfMeasurement = "calls"

	uptime := p.sensor("uptime", "Uptime", "mdi:clock-outline")
	uptime.EntityCategory = "diagnostic"

	version := p.sensor("version", "Version", "mdi:tag")
	version.EntityCategory = "diagnostic"

	return []sensorDef{
		{"call_status", p.sensor("call_status", "Call Status", "mdi:phone-in-talk")},
		{"caller", p.sensor("caller", "Caller", "mdi:account-voice")},
		{"agent", p.sensor("agent", "Agent", "mdi:robot")},
		{"calls_today", callsToday},
		{"missed_today", missedToday},
		{"uptime", uptime},
		{"version", version},
	}
}

func (p *Publisher) buttonDefinitions() []buttonDef {
	if p.commands == nil {
		return nil
	}
	button := func(cmd, name, icon string) buttonDef {
		return buttonDef{cmd, ButtonConfig{
			Name:              p.device.Name + " " + name,
			UniqueID:          p.instanceID + "_" + cmd,
			CommandTopic:      p.commandTopic(),
			PayloadPress:      cmd,
			AvailabilityTopic: p.availabilityTopic(),
			Device:            p.device,
			Icon:              icon,
		}}
	}
	return []buttonDef{
		button(CommandAccept, "Accept Call", "mdi:phone"),
		button(CommandIntervene, "Take Over Call", "mdi:account-switch"),
		button(CommandForward, "Forward Call", "mdi:phone-forward"),
		button(CommandEnd, "End Call", "mdi:phone-hangup"),
		button(CommandMute, "Toggle Mute", "mdi:microphone-off"),
	}
}

func (p *Publisher) publishDiscovery(ctx context.Context, conn connection) {
	for _, s := range p.sensorDefinitions() {
		p.publishConfig(ctx, conn, p.discoveryTopic("sensor", s.entity), s.entity, s.config)
	}
	for _, b := range p.buttonDefinitions() {
		p.publishConfig(ctx, conn, p.discoveryTopic("button", b.entity), b.entity, b.config)
	}
}

func (p *Publisher) publishConfig(ctx context.Context, conn connection, topic, entity string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.logger.Error("mqtt marshal discovery payload", "entity", entity, "error", err)
		return
	}
	if _, err := conn.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt discovery publish failed", "entity", entity, "topic", topic, "error", err)
		return
	}
	p.logger.Debug("mqtt discovery published", "entity", entity, "topic", topic)
}

func (p *Publisher) publishAvailability(ctx context.Context, conn connection, status string) {
	if _, err := conn.Publish(ctx, &paho.Publish{
		Topic:   p.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt availability publish failed", "status", status, "error", err)
		return
	}
	p.logger.Info("mqtt availability published", "status", status)
}

func (p *Publisher) subscribeCommands(ctx context.Context, cm *autopaho.ConnectionManager) {
	if _, err := cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: p.commandTopic(), QoS: 1}},
	}); err != nil {
		p.logger.Warn("mqtt command subscribe failed", "topic", p.commandTopic(), "error", err)
		return
	}
	p.logger.Info("mqtt subscribed to commands", "topic", p.commandTopic())
}

// --- State publishing ---

// callSensorStates maps the call state to sensor values.
func callSensorStates(st callstate.State) map[string]string {
	call := st.ActiveCall
	if call == nil {
		return map[string]string{"call_status": StatusIdle, "caller": "none", "agent": "none"}
	}

	status := StatusIncoming
	if call.Status == callstate.StatusActive {
		status = StatusActive
	}
	if st.IsForwarding {
		status = StatusForwarding
	}

	caller := call.ContactName
	if caller == "" {
		caller = call.Number
	}

	agent := "none"
	switch {
	case call.AgentID != "":
		agent = call.AgentID
	case call.Status == callstate.StatusActive:
		agent = "human"
	}
	return map[string]string{"call_status": status, "caller": caller, "agent": agent}
}

func (p *Publisher) publishCallState(ctx context.Context, conn connection, st callstate.State) {
	for entity, value := range callSensorStates(st) {
		p.publishState(ctx, conn, entity, value, false)
	}
}

func (p *Publisher) publishDaily(ctx context.Context, conn connection) {
	snap := p.daily.Snapshot()
	p.publishState(ctx, conn, "calls_today", strconv.FormatInt(snap.Total, 10), false)
	p.publishState(ctx, conn, "missed_today", strconv.FormatInt(snap.Missed, 10), false)
}

func (p *Publisher) publishDiagnostics(ctx context.Context, conn connection) {
	p.publishState(ctx, conn, "uptime", buildinfo.Uptime().Truncate(time.Second).String(), true)
	p.publishState(ctx, conn, "version", buildinfo.Version, false)
}

// publishState publishes value to the entity's state topic unless it
// equals the last published value and force is false.
func (p *Publisher) publishState(ctx context.Context, conn connection, entity, value string, force bool) {
	p.mu.Lock()
	if !force && p.last[entity] == value {
		p.mu.Unlock()
		return
	}
	p.last[entity] = value
	p.mu.Unlock()

	if _, err := conn.Publish(ctx, &paho.Publish{
		Topic:   p.stateTopic(entity),
		Payload: []byte(value),
		QoS:     0,
		Retain:  true,
	}); err != nil {
		p.logger.Debug("mqtt state publish failed", "entity", entity, "error", err)
		p.mu.Lock()
		delete(p.last, entity)
		p.mu.Unlock()
	}
}

// forget drops the remembered values so the next publish sends all.
func (p *Publisher) forget() {
	p.mu.Lock()
	clear(p.last)
	p.mu.Unlock()
}

// runLoop follows the call state store and the event bus until ctx is
// cancelled, republishing everything every PublishIntervalSec.
func (p *Publisher) runLoop(ctx context.Context, conn connection) {
	listener, states := callstate.Latest()
	unsubscribe := p.store.Subscribe(listener)
	defer unsubscribe()

	var evs <-chan events.Event
	if p.bus != nil {
		evs = p.bus.Subscribe(64)
		defer p.bus.Unsubscribe(evs)
	}

	interval := time.Duration(p.cfg.PublishIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.publishDiagnostics(ctx, conn)

	for {
		select {
		case <-ctx.Done():
			return
		case st := <-states:
			p.publishCallState(ctx, conn, st)
		case e := <-evs:
			if p.daily.Observe(e) {
				p.publishDaily(ctx, conn)
			}
		case <-ticker.C:
			p.forget()
			p.publishCallState(ctx, conn, p.store.State())
			p.publishDaily(ctx, conn)
			p.publishDiagnostics(ctx, conn)
		}
	}
}
