package models

import "time"

// GenerationMode is the kind of edit applied to the room photo.
type GenerationMode string

const (
	ModeCurtains  GenerationMode = "curtains"
	ModeWallpaper GenerationMode = "wallpaper"
	ModeCarpet    GenerationMode = "carpet"
	ModeFurniture GenerationMode = "furniture"
	ModeWallPaint GenerationMode = "wall_paint"
)

// Valid reports whether m is one of the supported modes.
func (m GenerationMode) Valid() bool {
	switch m {
	case ModeCurtains, ModeWallpaper, ModeCarpet, ModeFurniture, ModeWallPaint:
		return true
	}
	return false
}

// Generation is a record of one successful visualization, stored under
// users/{uid}/generations.
type Generation struct {
	ID           string         `json:"id" firestore:"-"`
	OwnerID      string         `json:"ownerId" firestore:"ownerId"`
	Mode         GenerationMode `json:"mode" firestore:"mode"`
	Instructions string         `json:"instructions,omitempty" firestore:"instructions,omitempty"`
	ArtifactURL  string         `json:"artifactUrl" firestore:"artifactUrl"`
	Charged      bool           `json:"charged" firestore:"charged"` // false for pro plans and failed deductions
	CreatedAt    time.Time      `json:"createdAt" firestore:"createdAt"`
}
