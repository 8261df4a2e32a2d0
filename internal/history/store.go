package history

import (
	"slices"
	"sync"
)

// Store holds the per-chat message lists. Lists grow by merge-by-id and are
// kept ascending by timestamp; the only in-place mutation is the delivery
// status.
type Store struct {
	mu    sync.RWMutex
	chats map[string]*thread
}

type thread struct {
	msgs  []Message
	index map[string]int
}

func (t *thread) reindex() {
	t.index = make(map[string]int, len(t.msgs))
	for i, m := range t.msgs {
		t.index[m.ID] = i
	}
}

func (t *thread) sort() {
	slices.SortStableFunc(t.msgs, func(a, b Message) int {
		switch {
		case a.Timestamp < b.Timestamp:
			return -1
		case a.Timestamp > b.Timestamp:
			return 1
		}
		return 0
	})
	t.reindex()
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{chats: map[string]*thread{}}
}

func (s *Store) thread(chatID string) *thread {
	t, ok := s.chats[chatID]
	if !ok {
		t = &thread{index: map[string]int{}}
		s.chats[chatID] = t
	}
	return t
}

// Merge adds the messages of batch whose ids are not yet retained and
// advances the delivery status of those that are. It returns the added
// messages. No retained message is ever dropped.
func (s *Store) Merge(chatID string, batch []Message) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.thread(chatID)

	var added []Message
	for _, m := range batch {
		if i, ok := t.index[m.ID]; ok {
			if m.DeliveryStatus.rank() > t.msgs[i].DeliveryStatus.rank() {
				t.msgs[i].DeliveryStatus = m.DeliveryStatus
			}
			continue
		}
		m.ChatID = chatID
		t.index[m.ID] = len(t.msgs)
		t.msgs = append(t.msgs, m)
		added = append(added, m)
	}
	if len(added) > 0 {
		t.sort()
	}
	return added
}

// Resync replaces the list of chatID with batch, keeping local messages that
// were not confirmed by the bridge yet. It returns the messages that were not
// present before.
func (s *Store) Resync(chatID string, batch []Message) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.thread(chatID)

	next := &thread{index: map[string]int{}}
	var added []Message
	for _, m := range batch {
		if _, dup := next.index[m.ID]; dup {
			continue
		}
		m.ChatID = chatID
		if _, ok := old.index[m.ID]; !ok {
			added = append(added, m)
		}
		next.index[m.ID] = len(next.msgs)
		next.msgs = append(next.msgs, m)
	}
	for _, m := range old.msgs {
		if _, ok := next.index[m.ID]; ok {
			continue
		}
		if m.DeliveryStatus == StatusSending || m.DeliveryStatus == StatusFailed {
			next.index[m.ID] = len(next.msgs)
			next.msgs = append(next.msgs, m)
		}
	}
	next.sort()
	s.chats[chatID] = next
	return added
}

// Append adds one message, typically an optimistic outgoing one. It reports
// false when the id is already present.
func (s *Store) Append(m Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.thread(m.ChatID)
	if _, ok := t.index[m.ID]; ok {
		return false
	}
	t.index[m.ID] = len(t.msgs)
	t.msgs = append(t.msgs, m)
	if n := len(t.msgs); n > 1 && t.msgs[n-2].Timestamp > m.Timestamp {
		t.sort()
	}
	return true
}

// SetStatus overwrites the delivery status of one message. Unlike Merge it
// may move backwards, which is how a send is marked failed.
func (s *Store) SetStatus(chatID, id string, st Status) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.chats[chatID]
	if !ok {
		return Message{}, false
	}
	i, ok := t.index[id]
	if !ok {
		return Message{}, false
	}
	t.msgs[i].DeliveryStatus = st
	return t.msgs[i], true
}

// Rekey renames a local message id to the id the bridge assigned, so the
// server copy merges into it instead of appearing twice. If the server id is
// already present the local copy is dropped.
func (s *Store) Rekey(chatID, localID, serverID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.chats[chatID]
	if !ok || localID == serverID {
		return false
	}
	i, ok := t.index[localID]
	if !ok {
		return false
	}
	if _, exists := t.index[serverID]; exists {
		t.msgs = slices.Delete(t.msgs, i, i+1)
	} else {
		t.msgs[i].ID = serverID
	}
	t.reindex()
	return true
}

// Get returns one message.
func (s *Store) Get(chatID, id string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.chats[chatID]
	if !ok {
		return Message{}, false
	}
	i, ok := t.index[id]
	if !ok {
		return Message{}, false
	}
	return t.msgs[i], true
}

// List returns a copy of the messages of chatID, oldest first.
func (s *Store) List(chatID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.chats[chatID]
	if !ok {
		return nil
	}
	return slices.Clone(t.msgs)
}

// Len returns the number of messages retained for chatID.
func (s *Store) Len(chatID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.chats[chatID]; ok {
		return len(t.msgs)
	}
	return 0
}

// Clear drops the messages of one chat.
func (s *Store) Clear(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chats, chatID)
}

// Reset drops every chat.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats = map[string]*thread{}
}
