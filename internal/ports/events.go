package ports

type EventBus interface {
	Publish(topic string, payload []byte)
	// Subscribe sans topic reçoit tous les évènements.
	Subscribe(topics ...string) (ch <-chan Event, cancel func())
}

type Event struct {
	Topic   string
	Payload []byte
}

const (
	TopicSyncCompleted  = "sync.completed"
	TopicSyncFailed     = "sync.failed"
	TopicPlayerStarted  = "player.started"
	TopicPlayerExited   = "player.exited"
	TopicSchedulePolled = "schedule.polled"
)
