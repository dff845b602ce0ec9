package docstore

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps every document in process. It backs tests and the
// "memory" backend for single-node development.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]Document
	subs map[string]map[*mailbox]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]Document),
		subs: make(map[string]map[*mailbox]struct{}),
	}
}

func (s *MemoryStore) Get(ctx context.Context, key Key) (Fields, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[key.Path()]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneFields(doc.Fields), nil
}

func (s *MemoryStore) Exists(ctx context.Context, key Key) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.docs[key.Path()]
	return ok, nil
}

func (s *MemoryStore) MergeWrite(ctx context.Context, key Key, fields Fields) error {
	if err := key.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	path := key.Path()
	doc, ok := s.docs[path]
	if !ok {
		doc = Document{Key: key, Fields: Fields{}}
	}
	for k, v := range fields {
		doc.Fields[k] = v
	}
	s.docs[path] = doc
	s.notifyLocked(Snapshot{Key: key, Exists: true, Fields: cloneFields(doc.Fields)})
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	path := key.Path()
	if _, ok := s.docs[path]; !ok {
		return nil
	}
	delete(s.docs, path)
	s.notifyLocked(Snapshot{Key: key, Exists: false})
	return nil
}

func (s *MemoryStore) List(ctx context.Context, collection, partition string) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Document, 0)
	for _, doc := range s.docs {
		if doc.Key.Collection == collection && doc.Key.Partition == partition {
			items = append(items, Document{Key: doc.Key, Fields: cloneFields(doc.Fields)})
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key.ID < items[j].Key.ID })
	return items, nil
}

func (s *MemoryStore) Partitions(ctx context.Context, collection string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{})
	for _, doc := range s.docs {
		if doc.Key.Collection == collection && doc.Key.Partition != "" {
			seen[doc.Key.Partition] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for partition := range seen {
		out = append(out, partition)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, key Key, fn func(Snapshot)) (Subscription, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	path := key.Path()
	box := newMailbox(fn)
	box.onClose = func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[path], box)
		if len(s.subs[path]) == 0 {
			delete(s.subs, path)
		}
	}
	if s.subs[path] == nil {
		s.subs[path] = make(map[*mailbox]struct{})
	}
	s.subs[path][box] = struct{}{}

	initial := Snapshot{Key: key}
	if doc, ok := s.docs[path]; ok {
		initial.Exists = true
		initial.Fields = cloneFields(doc.Fields)
	}
	box.push(initial)
	go box.run()
	return box, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	boxes := make([]*mailbox, 0)
	for _, set := range s.subs {
		for box := range set {
			boxes = append(boxes, box)
		}
	}
	s.mu.Unlock()
	for _, box := range boxes {
		_ = box.Close()
	}
	return nil
}

func (s *MemoryStore) notifyLocked(snap Snapshot) {
	for box := range s.subs[snap.Key.Path()] {
		box.push(Snapshot{Key: snap.Key, Exists: snap.Exists, Fields: cloneFields(snap.Fields)})
	}
}

// mailbox delivers snapshots to one subscriber in order on its own
// goroutine, so writers never run subscriber code while holding locks.
type mailbox struct {
	fn      func(Snapshot)
	onClose func()

	mu    sync.Mutex
	queue []Snapshot
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func newMailbox(fn func(Snapshot)) *mailbox {
	return &mailbox{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (m *mailbox) push(snap Snapshot) {
	m.mu.Lock()
	m.queue = append(m.queue, snap)
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mailbox) run() {
	for {
		select {
		case <-m.done:
			return
		case <-m.wake:
		}
		for {
			m.mu.Lock()
			if len(m.queue) == 0 {
				m.mu.Unlock()
				break
			}
			snap := m.queue[0]
			m.queue = m.queue[1:]
			m.mu.Unlock()

			select {
			case <-m.done:
				return
			default:
			}
			m.fn(snap)
		}
	}
}

func (m *mailbox) Close() error {
	m.once.Do(func() {
		close(m.done)
		if m.onClose != nil {
			m.onClose()
		}
	})
	return nil
}
