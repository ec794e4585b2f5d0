package catalog

// Event names the catalog collection that changed.
type Event string

const (
	EventSettings  Event = "settings"
	EventPages     Event = "pages"
	EventWorkflows Event = "workflows"
	EventBackends  Event = "backends"
	EventUsers     Event = "users"
	EventComments  Event = "comments"
)

// Subscribe registers a listener for change events published after each
// committed write. A subscriber whose buffer is full misses the event; the
// returned function unregisters and closes the channel.
func (s *Store) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	s.mu.Unlock()

	var once bool
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if once {
			return
		}
		once = true
		if existing, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(existing)
		}
	}
}

func (s *Store) publish(events ...Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subscribers {
		for _, ev := range events {
			select {
			case ch <- ev:
			default:
			}
		}
	}
}
