package domain

import "sort"

type MessageID string

// Message is a directed, append-only record. Ts is assigned by the
// server at persist time, in integer milliseconds since epoch.
type Message struct {
	ID   MessageID `json:"id"`
	From UserID    `json:"from"`
	To   UserID    `json:"to"`
	Text string    `json:"text"`
	Ts   int64     `json:"ts"`
}

// ConversationKey derives the order-independent key for a pair of
// participants: the sorted pair joined with "::". Two messages belong
// to the same conversation iff their participant sets are equal.
func ConversationKey(a, b UserID) string {
	pair := []string{string(a), string(b)}
	sort.Strings(pair)
	return pair[0] + "::" + pair[1]
}
