// Package domain contains core concepts of the chat system.
// This file defines Message entities and related rules.
// A message's identity and creation timestamp never change after append;
// edits only touch the body, reactions only touch the reaction sets.
package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"realtalk/errors"
)

// MaxBodyLength is counted in code points, not bytes.
const MaxBodyLength = 500

// Emoji is one symbol of the fixed reaction set.
type Emoji string

const (
	EmojiThumbsUp Emoji = "👍"
	EmojiJoy      Emoji = "😂"
	EmojiHeart    Emoji = "❤️"
	EmojiFire     Emoji = "🔥"
	EmojiWow      Emoji = "😮"
	EmojiSad      Emoji = "😢"
)

// ReactionSet lists every emoji a client may react with.
var ReactionSet = []Emoji{EmojiThumbsUp, EmojiJoy, EmojiHeart, EmojiFire, EmojiWow, EmojiSad}

func (e Emoji) Valid() bool {
	for _, known := range ReactionSet {
		if e == known {
			return true
		}
	}
	return false
}

// Snapshot captures a user's display identity at the time of an action.
// It is deliberately not live-joined to the current profile so history
// stays stable when a user renames or changes avatar.
type Snapshot struct {
	UserID      string
	DisplayName string
	PhotoRef    string
}

// UserSet holds user ids with at-most-once membership.
type UserSet map[string]struct{}

func (s UserSet) Has(userID string) bool {
	_, ok := s[userID]
	return ok
}

func (s UserSet) Add(userID string)    { s[userID] = struct{}{} }
func (s UserSet) Remove(userID string) { delete(s, userID) }

// Message is one entry of a room's append-only log.
type Message struct {
	ID     uuid.UUID
	RoomID uuid.UUID
	// Seq is assigned by the sequencer and is unique and increasing
	// within the room.
	Seq       uint64
	Author    Snapshot
	Body      string
	CreatedAt time.Time
	Edited    bool
	Reactions map[Emoji]UserSet
}

// ReactedBy reports whether the user already reacted with the emoji.
func (m Message) ReactedBy(userID string, emoji Emoji) bool {
	set, ok := m.Reactions[emoji]
	return ok && set.Has(userID)
}

// ValidateBody checks emptiness and the code-point budget. It runs before
// the rate limiter so an oversized body never consumes rate budget.
func ValidateBody(body string, maxLen int) error {
	if strings.TrimSpace(body) == "" {
		return errors.ValidationError{Reason: errors.ErrEmptyBody}
	}
	if utf8.RuneCountInString(body) > maxLen {
		return errors.ValidationError{Reason: errors.ErrBodyTooLong}
	}
	return nil
}
