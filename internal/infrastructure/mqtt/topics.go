package mqtt

import "strings"

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "garagebridge"

// Topics builds the bridge's topic names under a common prefix.
type Topics struct {
	prefix string
}

// NewTopics returns topic builders for prefix. Surrounding slashes are
// trimmed and an empty prefix falls back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the root of the topic tree.
func (t Topics) Prefix() string {
	return t.prefix
}

// Status returns the retained bridge health topic, also used for the LWT.
//
// Example: garagebridge/status
func (t Topics) Status() string {
	return t.prefix + "/status"
}

// State returns the retained state topic for a door.
//
// Example: garagebridge/state/CG0812345
func (t Topics) State(doorID string) string {
	return t.prefix + "/state/" + doorID
}

// Event returns the transition event topic for a door.
//
// Example: garagebridge/event/CG0812345
func (t Topics) Event(doorID string) string {
	return t.prefix + "/event/" + doorID
}

// Command returns the command topic for a door.
//
// Example: garagebridge/command/CG0812345
func (t Topics) Command(doorID string) string {
	return t.prefix + "/command/" + doorID
}

// AllCommands returns a wildcard matching every door's command topic.
func (t Topics) AllCommands() string {
	return t.prefix + "/command/+"
}

// CommandDoorID extracts the door ID from a command topic.
func (t Topics) CommandDoorID(topic string) (string, bool) {
	id, ok := strings.CutPrefix(topic, t.prefix+"/command/")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
