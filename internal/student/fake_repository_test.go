package student_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"student-records/internal/student"
)

// memoryRepository is an in-memory Repository that enforces the username
// unique constraint the way the students table does.
type memoryRepository struct {
	mu      sync.Mutex
	nextID  int
	records map[int]student.Student
	failErr error
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		nextID:  1,
		records: make(map[int]student.Student),
	}
}

func (m *memoryRepository) Create(_ context.Context, s *student.Student) (*student.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failErr != nil {
		return nil, m.failErr
	}
	for _, existing := range m.records {
		if existing.Username == s.Username {
			return nil, student.ErrUsernameTaken
		}
	}

	s.ID = m.nextID
	m.nextID++
	s.CreatedAt = time.Now().UTC()
	s.UpdatedAt = s.CreatedAt
	m.records[s.ID] = *s

	out := *s
	return &out, nil
}

func (m *memoryRepository) GetAll(_ context.Context) ([]student.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failErr != nil {
		return nil, m.failErr
	}

	out := make([]student.Student, 0, len(m.records))
	for _, s := range m.records {
		s.Password = ""
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryRepository) GetByID(_ context.Context, id int) (*student.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failErr != nil {
		return nil, m.failErr
	}
	s, ok := m.records[id]
	if !ok {
		return nil, student.ErrStudentNotFound
	}
	return &s, nil
}

func (m *memoryRepository) GetByUsername(_ context.Context, username string) (*student.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failErr != nil {
		return nil, m.failErr
	}
	for _, s := range m.records {
		if s.Username == username {
			out := s
			return &out, nil
		}
	}
	return nil, student.ErrStudentNotFound
}

func (m *memoryRepository) Update(_ context.Context, id int, changes []student.Change) (*student.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failErr != nil {
		return nil, m.failErr
	}
	s, ok := m.records[id]
	if !ok {
		return nil, student.ErrStudentNotFound
	}

	for _, c := range changes {
		switch c.Column {
		case "username":
			username := c.Value.(string)
			for otherID, other := range m.records {
				if otherID != id && other.Username == username {
					return nil, student.ErrUsernameTaken
				}
			}
			s.Username = username
		case "password":
			s.Password = c.Value.(string)
		case "profile_photo":
			s.ProfilePhoto = c.Value.(string)
		case "phone":
			s.Phone = c.Value.(string)
		case "dob":
			s.Dob = c.Value.(time.Time)
		case "student_class":
			s.StudentClass = c.Value.(string)
		case "name":
			s.Name = c.Value.(string)
		default:
			return nil, errors.New("unknown column " + c.Column)
		}
	}
	s.UpdatedAt = time.Now().UTC()
	m.records[id] = s

	return &s, nil
}

func (m *memoryRepository) Delete(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failErr != nil {
		return m.failErr
	}
	if _, ok := m.records[id]; !ok {
		return student.ErrStudentNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *memoryRepository) stored(id int) (student.Student, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.records[id]
	return s, ok
}

type recordingPublisher struct {
	mu     sync.Mutex
	keys   []string
	events []student.Event
	err    error
}

func (p *recordingPublisher) SendMessage(_ context.Context, key string, value interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, key)
	p.events = append(p.events, value.(student.Event))
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}
