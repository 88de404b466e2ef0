// Package mqtt mirrors the call state into Home Assistant over MQTT.
// Voice Wizard appears as a native HA device with availability
// tracking, sensors for the call in flight and buttons that drive the
// call controller.
//
// The publisher uses Eclipse Paho v2's [autopaho] package for
// connection management with automatic reconnection. On every
// (re-)connect it publishes retained discovery config payloads for
// each entity, a birth message ("online") to the availability topic,
// the current sensor states, and re-subscribes to the command topic. A
// will message ensures the availability topic transitions to "offline"
// on unexpected disconnects.
package mqtt
