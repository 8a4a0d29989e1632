package mqtt

import "strings"

// DefaultTopicPrefix roots every topic when no prefix is configured.
const DefaultTopicPrefix = "keyrhythm"

// Topics builds KeyRhythm topic names under a configurable prefix:
//
//	keyrhythm/system/status      retained online/offline
//	keyrhythm/auth/register      one message per registration attempt
//	keyrhythm/auth/login         one message per login attempt
type Topics struct {
	prefix string
}

// NewTopics returns builders rooted at prefix. Surrounding slashes are
// trimmed; an empty prefix falls back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Status returns the retained service status topic.
func (t Topics) Status() string {
	return t.prefix + "/system/status"
}

// Attempt returns the topic for one kind of attempt ("register", "login").
func (t Topics) Attempt(action string) string {
	return t.prefix + "/auth/" + action
}

// AllAttempts matches every attempt topic.
func (t Topics) AllAttempts() string {
	return t.prefix + "/auth/+"
}
