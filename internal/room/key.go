// Package room defines the addressing and message types shared between the
// relay core and the history store.
package room

import "strings"

// Key addresses one chat room: a city (or geographic bucket) crossed with a
// circle (sub-topic or age group). Both components are stored lower-cased so
// that two keys are equal exactly when their normalized components match.
type Key struct {
	City   string
	Circle string
}

// NewKey builds a normalized Key from raw city and circle identifiers.
func NewKey(city, circle string) Key {
	return Key{
		City:   strings.ToLower(city),
		Circle: strings.ToLower(circle),
	}
}

// String renders the key in its canonical "city::circle" form, used for
// logging and as a storage prefix.
func (k Key) String() string {
	return k.City + "::" + k.Circle
}

// Message is one chat message as it exists inside the relay and in durable
// history. Immutable once created.
type Message struct {
	Nick string `json:"nick"`
	Text string `json:"text"`
	TS   int64  `json:"ts"`
}
