// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "encoding/json"

// TopicSet is an insertion-ordered set of topic labels. The zero value is
// an empty set. Values are treated as immutable once shared; use Add on a
// Clone.
type TopicSet struct {
	order []string
	seen  map[string]struct{}
}

// NewTopicSet builds a set from topics, dropping duplicates.
func NewTopicSet(topics ...string) TopicSet {
	var s TopicSet
	for _, t := range topics {
		s.Add(t)
	}
	return s
}

// Add inserts topic if absent and reports whether it was added.
func (s *TopicSet) Add(topic string) bool {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, ok := s.seen[topic]; ok {
		return false
	}
	s.seen[topic] = struct{}{}
	s.order = append(s.order, topic)
	return true
}

// Contains reports set membership.
func (s TopicSet) Contains(topic string) bool {
	_, ok := s.seen[topic]
	return ok
}

// Len returns the number of topics.
func (s TopicSet) Len() int { return len(s.order) }

// List returns the topics in insertion order.
func (s TopicSet) List() []string {
	return append([]string(nil), s.order...)
}

// Clone returns an independent copy.
func (s TopicSet) Clone() TopicSet {
	return NewTopicSet(s.order...)
}

// Equal reports set equality, ignoring order.
func (s TopicSet) Equal(o TopicSet) bool {
	if s.Len() != o.Len() {
		return false
	}
	for _, t := range s.order {
		if !o.Contains(t) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the set as an array.
func (s TopicSet) MarshalJSON() ([]byte, error) {
	if s.order == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.order)
}

// ConversationContext is what the assistant has learned about the user.
type ConversationContext struct {
	// UserName is set once and only cleared by a reset.
	UserName string   `json:"userName,omitempty"`
	Topics   TopicSet `json:"topics"`
}

// Clone returns an independent copy.
func (c ConversationContext) Clone() ConversationContext {
	return ConversationContext{UserName: c.UserName, Topics: c.Topics.Clone()}
}
