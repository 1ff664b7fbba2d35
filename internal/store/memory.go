package store

import (
	"context"
	"fmt"
	"sync"

	apperrors "friendfinder-backend/pkg/errors"
)

// MemoryStore is an in-process Store used by tests and local development.
// Create is atomic under the store lock, giving the same first-writer-wins
// guarantee as the Redis SETNX path.
type MemoryStore struct {
	mu        sync.Mutex
	docs      map[string]Document
	children  map[string][]ChildEvent
	childSeq  int
	watchers  map[string][]chan Snapshot
	childSubs map[string][]chan ChildEvent
	failErr   error
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:      make(map[string]Document),
		children:  make(map[string][]ChildEvent),
		watchers:  make(map[string][]chan Snapshot),
		childSubs: make(map[string][]chan ChildEvent),
	}
}

// FailWith makes every subsequent operation fail with a TransportError
// wrapping err. Pass nil to restore normal operation. Test hook.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	s.failErr = err
	s.mu.Unlock()
}

func (s *MemoryStore) checkFail() error {
	if s.failErr != nil {
		return apperrors.TransportError(s.failErr)
	}
	return nil
}

func cloneDoc(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

// Get reads the current document at path
func (s *MemoryStore) Get(ctx context.Context, path string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkFail(); err != nil {
		return Snapshot{}, err
	}
	doc, ok := s.docs[path]
	return Snapshot{Path: path, Exists: ok, Data: cloneDoc(doc)}, nil
}

// Create writes the document only if the path is vacant
func (s *MemoryStore) Create(ctx context.Context, path string, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkFail(); err != nil {
		return err
	}
	if _, ok := s.docs[path]; ok {
		return ErrExists
	}
	s.docs[path] = cloneDoc(doc)
	s.fanoutLocked(path)
	return nil
}

// Put overwrites the document at path unconditionally
func (s *MemoryStore) Put(ctx context.Context, path string, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkFail(); err != nil {
		return err
	}
	s.docs[path] = cloneDoc(doc)
	s.fanoutLocked(path)
	return nil
}

// Update merges the partial document into the existing one
func (s *MemoryStore) Update(ctx context.Context, path string, partial Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkFail(); err != nil {
		return err
	}
	doc, ok := s.docs[path]
	if !ok {
		doc = Document{}
	} else {
		doc = cloneDoc(doc)
	}
	for k, v := range partial {
		doc[k] = v
	}
	s.docs[path] = doc
	s.fanoutLocked(path)
	return nil
}

// UpdateIfAbsent merges the partial document only while guardField is unset
func (s *MemoryStore) UpdateIfAbsent(ctx context.Context, path, guardField string, partial Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkFail(); err != nil {
		return err
	}
	doc, ok := s.docs[path]
	if ok {
		if _, set := doc[guardField]; set {
			return ErrExists
		}
		doc = cloneDoc(doc)
	} else {
		doc = Document{}
	}
	for k, v := range partial {
		doc[k] = v
	}
	s.docs[path] = doc
	s.fanoutLocked(path)
	return nil
}

// Delete removes the document and its sub-collection
func (s *MemoryStore) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkFail(); err != nil {
		return err
	}
	delete(s.docs, path)
	delete(s.children, path)
	s.fanoutLocked(path)
	return nil
}

// AddChild appends a record to the path's sub-collection
func (s *MemoryStore) AddChild(ctx context.Context, path string, doc Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkFail(); err != nil {
		return "", err
	}
	s.childSeq++
	ev := ChildEvent{Parent: path, ID: fmt.Sprintf("c%06d", s.childSeq), Data: cloneDoc(doc)}
	s.children[path] = append(s.children[path], ev)
	for _, ch := range s.childSubs[path] {
		select {
		case ch <- ev:
		default: // slow subscriber, drop rather than deadlock under the lock
		}
	}
	return ev.ID, nil
}

// Subscribe streams full snapshots of the path, starting with its current state
func (s *MemoryStore) Subscribe(ctx context.Context, path string) (<-chan Snapshot, error) {
	s.mu.Lock()
	if err := s.checkFail(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	ch := make(chan Snapshot, 64)
	doc, ok := s.docs[path]
	ch <- Snapshot{Path: path, Exists: ok, Data: cloneDoc(doc)}
	s.watchers[path] = append(s.watchers[path], ch)
	s.mu.Unlock()

	out := make(chan Snapshot, 64)
	go func() {
		defer func() {
			s.removeWatcher(path, ch)
			close(out)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- snap:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// SubscribeChildren streams sub-collection additions, starting with the
// existing children
func (s *MemoryStore) SubscribeChildren(ctx context.Context, path string) (<-chan ChildEvent, error) {
	s.mu.Lock()
	if err := s.checkFail(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	ch := make(chan ChildEvent, 256)
	for _, ev := range s.children[path] {
		ch <- ev
	}
	s.childSubs[path] = append(s.childSubs[path], ch)
	s.mu.Unlock()

	out := make(chan ChildEvent, 256)
	go func() {
		defer func() {
			s.removeChildSub(path, ch)
			close(out)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *MemoryStore) fanoutLocked(path string) {
	doc, ok := s.docs[path]
	snap := Snapshot{Path: path, Exists: ok, Data: cloneDoc(doc)}
	for _, ch := range s.watchers[path] {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (s *MemoryStore) removeWatcher(path string, ch chan Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.watchers[path]
	for i, c := range subs {
		if c == ch {
			s.watchers[path] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

func (s *MemoryStore) removeChildSub(path string, ch chan ChildEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.childSubs[path]
	for i, c := range subs {
		if c == ch {
			s.childSubs[path] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}
