package actions

// EventType names a notification delivered to note owners.
type EventType string

const (
	EventAnswerPosted   EventType = "answer-posted"
	EventAnswerAccepted EventType = "answer-accepted"
	EventNoteLiked      EventType = "note-liked"
)

// Event describes a committed action that another user may want to hear about.
type Event struct {
	Type        EventType
	RecipientID string
	ActorID     string
	NoteID      string
	QuestionID  string
}

// Notifier receives events after their transaction committed. Implementations must
// not block.
type Notifier interface {
	Publish(event Event)
}

type noopNotifier struct{}

func (noopNotifier) Publish(Event) {}

func (s *Service) publish(event Event) {
	if event.RecipientID == "" || event.RecipientID == event.ActorID {
		return
	}
	s.notifier.Publish(event)
}
