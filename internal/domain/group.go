package domain

import "time"

// GroupStatus is the coarse workflow state of a group. The generation core
// is the only writer of the processing/completed transitions and of the
// rollback to collecting; everything else about a group belongs to outside
// collaborators.
type GroupStatus string

const (
	GroupStatusCollecting GroupStatus = "collecting"
	GroupStatusProcessing GroupStatus = "processing"
	GroupStatusCompleted  GroupStatus = "completed"
)

// MemberPhoto is one member's submitted portrait reference.
type MemberPhoto struct {
	Name     string
	PhotoURL string
}

// BackgroundImage is an optional scene the group photo is composed into.
type BackgroundImage struct {
	Name     string
	ImageURL string
}

// Group is the slice of the group entity this core reads and partially owns.
type Group struct {
	ID                string
	Name              string
	Status            GroupStatus
	GeneratedPhotoURL string
	Members           []MemberPhoto
	Backgrounds       []BackgroundImage
	CreatedAt         time.Time
}
