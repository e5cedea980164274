package entity

// EventType identifies the kind of change carried by an Event
type EventType string

const (
	EventMessageAppended     EventType = "message_appended"
	EventRosterChanged       EventType = "roster_changed"
	EventConversationRenamed EventType = "conversation_renamed"
	EventConversationDeleted EventType = "conversation_deleted"
)

// RosterAction describes what happened to the roster
type RosterAction string

const (
	RosterCreated RosterAction = "created"
	RosterAdded   RosterAction = "added"
	RosterRemoved RosterAction = "removed"
	RosterBlocked RosterAction = "blocked"
	RosterLeft    RosterAction = "left"
)

// RosterChange is the payload of an EventRosterChanged
type RosterChange struct {
	Action   RosterAction `json:"action"`
	ActorId  string       `json:"actor_id"`
	UserIds  []string     `json:"user_ids"`
	Promoted string       `json:"promoted,omitempty"` // New admin after the last admin left
}

// Event is a committed state change delivered to sessions and the dispatcher
type Event struct {
	Id             string        `json:"id"`
	Type           EventType     `json:"type"`
	ConversationId string        `json:"conversation_id"`
	Seq            int64         `json:"seq,omitempty"`
	Message        *Message      `json:"message,omitempty"`
	Roster         *RosterChange `json:"roster,omitempty"`
	Name           string        `json:"name,omitempty"`
	At             int64         `json:"at"`
}

// ActorId returns the user who caused the event, if known
func (e *Event) ActorId() string {
	switch {
	case e.Message != nil:
		return e.Message.SenderId
	case e.Roster != nil:
		return e.Roster.ActorId
	}
	return ""
}
