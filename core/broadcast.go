package core

import "strconv"

// AllEventsChannel reaches every connected client; BlockChannel scopes
// delivery to the members of one block.
const AllEventsChannel = "all-events"

func BlockChannel(blockID int) string {
	return "block-" + strconv.Itoa(blockID)
}

// Broadcaster fans a named event out to all subscribers of a channel.
// Delivery is fire-and-forget: implementations must never block the caller
// and publish failures must never surface as operation failures.
type Broadcaster interface {
	Publish(channel, event string, payload interface{})
}
