package models

import (
	"errors"
	"fmt"
)

// Event is one impression, optionally carrying a click. Events are
// immutable once appended to the event store.
type Event struct {
	ID        string     `json:"id"`
	AdID      string     `json:"ad_id"`
	Timestamp int64      `json:"timestamp"` // epoch millis
	Device    string     `json:"device,omitempty"`
	Region    string     `json:"region,omitempty"`
	IsClick   bool       `json:"is_click"`
	Extension *Extension `json:"extension,omitempty"`
}

// Validate checks that required fields are present.
func (e *Event) Validate() error {
	if e == nil {
		return errors.New("event is nil")
	}
	if e.AdID == "" {
		return errors.New("ad_id is required")
	}
	if e.Timestamp < 0 {
		return errors.New("timestamp must not be negative")
	}
	if e.Extension != nil {
		if err := e.Extension.Validate(); err != nil {
			return fmt.Errorf("extension: %w", err)
		}
	}
	return nil
}

// ExtensionKind tags which payload an Extension carries.
type ExtensionKind string

const (
	ExtensionVideo     ExtensionKind = "video"
	ExtensionAnimation ExtensionKind = "animation"
)

// Extension holds format specific playback data. Exactly one payload is
// set and it must match Kind.
type Extension struct {
	Kind      ExtensionKind       `json:"kind"`
	Video     *VideoExtension     `json:"video,omitempty"`
	Animation *AnimationExtension `json:"animation,omitempty"`
}

type VideoExtension struct {
	DurationMs         int64 `json:"duration_ms"`
	WatchedMs          int64 `json:"watched_ms"`
	CompletedQuartiles int   `json:"completed_quartiles"`
	Muted              bool  `json:"muted"`
}

type AnimationExtension struct {
	Frames int  `json:"frames"`
	Loops  int  `json:"loops"`
	Looped bool `json:"looped"`
}

func (x *Extension) Validate() error {
	switch x.Kind {
	case ExtensionVideo:
		if x.Video == nil || x.Animation != nil {
			return errors.New("video extension requires exactly the video payload")
		}
		if x.Video.DurationMs < 0 || x.Video.WatchedMs < 0 {
			return errors.New("video durations must not be negative")
		}
		if x.Video.CompletedQuartiles < 0 || x.Video.CompletedQuartiles > 4 {
			return errors.New("completed_quartiles must be between 0 and 4")
		}
	case ExtensionAnimation:
		if x.Animation == nil || x.Video != nil {
			return errors.New("animation extension requires exactly the animation payload")
		}
		if x.Animation.Frames < 0 || x.Animation.Loops < 0 {
			return errors.New("animation counters must not be negative")
		}
	default:
		return fmt.Errorf("unknown extension kind %q", x.Kind)
	}
	return nil
}

// MatchesAdType reports whether the extension kind is valid for ads of
// type t. Static and gif ads never carry an extension.
func (x *Extension) MatchesAdType(t AdType) bool {
	switch x.Kind {
	case ExtensionVideo:
		return t == AdTypeVideo
	case ExtensionAnimation:
		return t == AdTypeAnimation
	}
	return false
}
