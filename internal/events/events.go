// Package events turns raw backend messages into the small closed set of
// events the relay acts on.
package events

import "callbridge.app/bridge/internal/model"

// Event is one of UtteranceStarted, UtteranceText, AudioFrameOut, StreamEnded
// or Unrecognized.
type Event interface {
	isEvent()
}

// UtteranceStarted means the caller started speaking over the agent.
type UtteranceStarted struct{}

type UtteranceText struct {
	Role   model.Role
	Text   string
	ItemID string
}

// AudioFrameOut carries one base64 audio chunk bound for the caller.
type AudioFrameOut struct {
	Payload string
}

type StreamEnded struct {
	Reason string
}

type Unrecognized struct {
	Type   string
	Reason string
}

func (UtteranceStarted) isEvent() {}
func (UtteranceText) isEvent()    {}
func (AudioFrameOut) isEvent()    {}
func (StreamEnded) isEvent()      {}
func (Unrecognized) isEvent()     {}
