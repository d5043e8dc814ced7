// Package mqtt connects curaflow to an MQTT broker: run events are
// published per run, and graphs published to the command topic are
// executed.
package mqtt
