package eventbus

// Event types published by praypal components.
const (
	TaskStarted  = "task.started"
	TaskFailed   = "task.failed"
	TaskFinished = "task.finished"
	TaskDropped  = "task.dropped"

	ReminderScheduled = "reminder.scheduled"
	ReminderDelivered = "reminder.delivered"
	ReminderFailed    = "reminder.failed"

	SubscriberDeactivated = "subscriber.deactivated"
	ReinitFinished        = "reinit.finished"

	NotifierSent   = "notifier.sent"
	NotifierFailed = "notifier.failed"
)
