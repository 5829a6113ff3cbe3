package engine

func containsEvent(events []Event, eventType EventType) bool {
	_, ok := findEvent(events, eventType)
	return ok
}

func findEvent(events []Event, eventType EventType) (Event, bool) {
	for _, event := range events {
		if event.Type == eventType {
			return event, true
		}
	}
	return Event{}, false
}
