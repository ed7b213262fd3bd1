// Package ws streams ability manager events over websockets.
//
// Frames are JSON objects with a "type" field. Outbound types: hello, user,
// user_switch, user_switch_done, mission, pong, error. Inbound types: ping,
// observe_switch, continue_switch.
package ws
