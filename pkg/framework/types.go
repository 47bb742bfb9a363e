package framework

import (
	"context"
	"time"
)

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Runnable defines a generic interface for background runners.
type Runnable interface {
	Run(context.Context) error
}

// RunFunc is the func form of Runnable.
type RunFunc func(context.Context) error

// Run implements Runnable.
func (f RunFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Message is anything passed between controllers of a Loop.
type Message interface {
	String() string
}

// Controller runs once per loop iteration at its priority level.
type Controller interface {
	Control(ControlContext) error
}

// ControlFunc defines the func form of Controller.
type ControlFunc func(ControlContext) error

// Control implements Controller.
func (f ControlFunc) Control(cc ControlContext) error {
	return f(cc)
}

// ControlContext provides the context of current control iteration.
type ControlContext interface {
	// Context retrieves context.Context.
	Context() context.Context
	// Time is when the iteration started.
	Time() time.Time
	// PriorityLevel gets the current priority level.
	PriorityLevel() int
	// Messages retrieves the messages of this iteration.
	Messages() MessageStore

	LoopControl
}

// LoopControl exposes access to the controlling loop.
type LoopControl interface {
	// PostMessage enqueues the message for the next iteration.
	PostMessage(Message)
	// TriggerNext runs the next iteration without waiting for the interval.
	TriggerNext()
}

// MessageStore provides read/write access to the messages of an iteration.
type MessageStore interface {
	// ProcessMessages visits the messages in order.
	ProcessMessages(MessageProcessor)
	// AddMessages appends messages visible to lower priority levels of
	// the same iteration.
	AddMessages(msgs ...Message)
	// Len is the number of messages left.
	Len() int
}

// MessageProcessor is used by MessageStore to process messages.
type MessageProcessor interface {
	ProcessMessage(MessageProcessingContext)
}

// ProcessMessageFunc is the func form of MessageProcessor.
type ProcessMessageFunc func(MessageProcessingContext)

// ProcessMessage implements MessageProcessor.
func (f ProcessMessageFunc) ProcessMessage(mc MessageProcessingContext) {
	f(mc)
}

// MessageProcessingContext provides context for current message.
type MessageProcessingContext interface {
	// CurrentMessage gets the current message being processed.
	CurrentMessage() Message
	// MessageTaken removes the message from the store.
	MessageTaken()
	// StopProcessing skips the remaining messages.
	StopProcessing()
}

// PriorityLevels is the total levels of priorities.
const PriorityLevels int = 16

// Predefined priority levels, lower runs first.
const (
	PrLvTop    int = 0
	PrLvHigh   int = 4
	PrLvNormal int = 8
	PrLvLow    int = 12
	PrLvIdle   int = PriorityLevels - 1

	// PrLvSense is where input is collected.
	PrLvSense = PrLvHigh
	// PrLvControl is where messages are handled.
	PrLvControl = PrLvNormal
	// PrLvActuate is where output is produced.
	PrLvActuate = PrLvLow
	// PrLvPostProc is for cleaning up left-over messages.
	PrLvPostProc = PrLvIdle - 1
)
