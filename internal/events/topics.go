package events

import "strings"

// AllTopics matches every topic the engine publishes on.
const AllTopics = "stock.>"

// Topics lists every topic the engine publishes on.
var Topics = []string{
	TopicSessionStarted,
	TopicSessionStopped,
	TopicSessionDeviceSwitched,
	TopicSessionFailed,
	TopicScanRecorded,
	TopicScanUnmatched,
	TopicLookupResolved,
	TopicCatalogRefreshed,
	TopicCatalogRefreshFailed,
	TopicCatalogImported,
	TopicDeviceLost,
}

// MatchTopic matches a dot-separated topic against a pattern.
// Supports "*" as a single-segment wildcard and ">" as a multi-segment
// suffix wildcard (NATS-style).
func MatchTopic(pattern, topic string) bool {
	if pattern == topic {
		return true
	}

	patParts := strings.Split(pattern, ".")
	topParts := strings.Split(topic, ".")

	for i, pp := range patParts {
		if pp == ">" {
			// ">" matches one or more remaining segments.
			return i < len(topParts)
		}
		if i >= len(topParts) {
			return false
		}
		if pp != "*" && pp != topParts[i] {
			return false
		}
	}

	return len(patParts) == len(topParts)
}
