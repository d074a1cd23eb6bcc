package queue

import "sync"

// MemoryStore is the default backend: a single ordered in-memory list
// guarded by a mutex. Records live only for the lifetime of the process.
type MemoryStore struct {
	mu      sync.Mutex
	records []*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, record.clone())
	return nil
}

func (s *MemoryStore) List() ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make([]*Record, 0, len(s.records))
	for _, record := range s.records {
		snapshot = append(snapshot, record.clone())
	}
	return snapshot, nil
}

func (s *MemoryStore) Get(id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.find(id)
	if record == nil {
		return nil, ErrNotFound
	}
	return record.clone(), nil
}

func (s *MemoryStore) SetQuality(id string, quality int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.find(id)
	if record == nil {
		return ErrNotFound
	}
	record.Quality = quality
	return nil
}

func (s *MemoryStore) SetCompressed(id string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.find(id)
	if record == nil {
		return ErrNotFound
	}
	record.Compressed = data
	record.CompressedSize = int64(len(data))
	record.CompressedType = contentType
	record.Status = StatusCompressed
	return nil
}

func (s *MemoryStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, record := range s.records {
		if record.ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	return nil
}

func (s *MemoryStore) Len() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.records), nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// find returns the live record for id, or nil. Caller must hold the mutex.
func (s *MemoryStore) find(id string) *Record {
	for _, record := range s.records {
		if record.ID == id {
			return record
		}
	}
	return nil
}
