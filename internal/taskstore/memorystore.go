package taskstore

import (
	"sync"
	"time"

	"github.com/dwizi/databridge/internal/task"
)

// MemoryStore is the reference Store implementation: one slice behind
// one mutex. Mutation proceeds by a replaceAll-style traversal so no
// pointer into the live slice ever escapes the lock; readers outside
// the lock only ever see task.Clone copies.
type MemoryStore struct {
	mu    sync.Mutex
	tasks []task.Task
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Initialize(basePath string) error { return nil }

func (s *MemoryStore) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = nil
	return nil
}

func (s *MemoryStore) AddTask(t task.Task) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := t.GetHeader().Code
	for _, existing := range s.tasks {
		if existing.GetHeader().Code == code {
			return true, nil
		}
	}
	s.tasks = append(s.tasks, task.Clone(t))
	return true, nil
}

func (s *MemoryStore) ProcessTask(taskCode int64, nodeIdentity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.tasks {
		header := existing.GetHeader()
		if header.Code != taskCode {
			continue
		}
		if header.Status == task.StatusProcessing && header.IdentifyCode == nodeIdentity {
			return nil
		}
		if header.Status != task.StatusCreated || header.IdentifyCode != nodeIdentity {
			return nil
		}
		header.Status = task.StatusProcessing
		header.StartTime = time.Now().UTC()
		existing.SetHeader(header)
		s.tasks[i] = existing
		return nil
	}
	return ErrNotFound
}

func (s *MemoryStore) NextTask(nodeIdentity string) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.tasks {
		header := existing.GetHeader()
		if header.Status == task.StatusProcessing && header.IdentifyCode == nodeIdentity {
			return task.Clone(existing), nil
		}
		_ = i
	}

	for i, existing := range s.tasks {
		header := existing.GetHeader()
		if header.Status != task.StatusCreated || header.Claimed() {
			continue
		}
		header.IdentifyCode = nodeIdentity
		existing.SetHeader(header)
		s.tasks[i] = existing
		return task.Clone(existing), nil
	}
	return nil, nil
}

func (s *MemoryStore) FinishTask(taskCode int64, hasError bool, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.tasks {
		header := existing.GetHeader()
		if header.Code != taskCode {
			continue
		}
		if header.Status != task.StatusProcessing {
			return nil
		}
		header.Status = task.StatusFinished
		header.EndTime = time.Now().UTC()
		header.HasError = hasError
		if errorMessage != "" {
			header.AppendError(errorMessage)
		}
		existing.SetHeader(header)
		s.tasks[i] = existing
		return nil
	}
	return ErrNotFound
}

func (s *MemoryStore) DropTask(userCode string, taskCode int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]task.Task, 0, len(s.tasks))
	found := false
	for _, existing := range s.tasks {
		header := existing.GetHeader()
		if header.Code == taskCode && header.UserCode == userCode {
			found = true
			continue
		}
		kept = append(kept, existing)
	}
	if !found {
		return false, nil
	}
	s.tasks = kept
	return true, nil
}

// DropExpired removes FINISHED tasks whose EndTime is before now +
// expireMillis: the cutoff is additive, not subtractive. A task
// qualifies once EndTime < now.Add(expireMillis), so a non-negative
// expireMillis deletes every finished task immediately (EndTime is
// never after now); this is the literal contract, not a guessed one.
func (s *MemoryStore) DropExpired(expireMillis int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	cutoff := now.Add(time.Duration(expireMillis) * time.Millisecond)

	kept := make([]task.Task, 0, len(s.tasks))
	removed := 0
	for _, existing := range s.tasks {
		header := existing.GetHeader()
		if header.Status == task.StatusFinished && !header.EndTime.IsZero() && header.EndTime.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, existing)
	}
	s.tasks = kept
	return removed, nil
}

func (s *MemoryStore) TaskList(userCode string, pageNo, limitSize int) ([]task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pageNo <= 0 {
		pageNo = DefaultPageNo
	}
	if limitSize <= 0 {
		limitSize = DefaultPageSize
	}

	var matching []task.Task
	for _, existing := range s.tasks {
		if existing.GetHeader().UserCode == userCode {
			matching = append(matching, existing)
		}
	}

	start := (pageNo - 1) * limitSize
	if start >= len(matching) {
		return nil, nil
	}
	end := start + limitSize
	if end > len(matching) {
		end = len(matching)
	}

	page := make([]task.Task, 0, end-start)
	for _, existing := range matching[start:end] {
		page = append(page, task.Clone(existing))
	}
	return page, nil
}

func (s *MemoryStore) TaskInfo(userCode string, taskCode int64) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.tasks {
		header := existing.GetHeader()
		if header.Code == taskCode && header.UserCode == userCode {
			return task.Clone(existing), nil
		}
	}
	return nil, ErrNotFound
}
