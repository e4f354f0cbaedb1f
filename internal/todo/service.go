package todo

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-todo-app/internal/event"
	"go-todo-app/internal/metrics"
	"go-todo-app/internal/model"
	"go-todo-app/pkg/apierror"
)

const (
	minTitleLength = 3
	maxTitleLength = 100
	maxPageLimit   = 100

	// Provisional ids start far above anything the remote collection
	// hands out, so locally created items never shadow a real one.
	provisionalIDBase = 1_000_000
)

// RemoteAPI is the slice of the remote todo client the façade needs.
type RemoteAPI interface {
	List(ctx context.Context) ([]model.Todo, error)
	Create(ctx context.Context, t model.Todo) (model.Todo, error)
	Update(ctx context.Context, t model.Todo) (model.Todo, error)
	Delete(ctx context.Context, id int) error
}

// Service exposes the todo collection as paginated queries and
// optimistic mutations. The remote returns the full collection; List
// slices it locally. Mutations apply to the cache before the remote
// call and roll back to the pre-dispatch snapshot if the call fails.
//
// The mutation mutex holds across the remote round trip, so at most one
// optimistic effect is visible per cache key at any time.
type Service struct {
	remote       RemoteAPI
	cache        *PageCache
	bus          event.Bus
	recorder     metrics.Recorder
	defaultLimit int

	mu             sync.Mutex
	provisionalSeq int
}

func NewService(remote RemoteAPI, cache *PageCache, bus event.Bus, recorder metrics.Recorder, defaultLimit int) *Service {
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	return &Service{
		remote:       remote,
		cache:        cache,
		bus:          bus,
		recorder:     recorder,
		defaultLimit: defaultLimit,
	}
}

// List returns one page of the collection, serving from the page cache
// when possible.
func (s *Service) List(ctx context.Context, page int, limit int) (model.TodoPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = s.defaultLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	if cached, ok := s.cache.Get(page, limit); ok {
		s.recorder.RecordCacheHit()
		return cached, nil
	}
	s.recorder.RecordCacheMiss()

	started := time.Now()
	todos, err := s.remote.List(ctx)
	s.recorder.RecordUpstreamLatency(time.Since(started))
	if err != nil {
		s.recorder.RecordUpstreamError()
		return model.TodoPage{}, err
	}

	start := (page - 1) * limit
	end := start + limit
	if start > len(todos) {
		start = len(todos)
	}
	if end > len(todos) {
		end = len(todos)
	}

	result := model.TodoPage{
		Data:  todos[start:end],
		Total: len(todos),
		Page:  page,
		Limit: limit,
	}
	s.cache.Put(result)
	return result, nil
}

// Create dispatches an optimistic create. The new item keeps a locally
// assigned id and stays provisional even after the remote acknowledges:
// remote APIs of this shape fabricate ids without persisting the item,
// so later operations on it must stay cache-only.
func (s *Service) Create(ctx context.Context, actorID string, req model.CreateTodoRequest) (model.Todo, error) {
	if err := validateTodoInput(req.Title, req.UserID); err != nil {
		return model.Todo{}, err
	}

	userID := req.UserID
	if userID == 0 {
		userID = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.provisionalSeq++
	optimistic := model.Todo{
		ID:          provisionalIDBase + s.provisionalSeq,
		Title:       req.Title,
		Completed:   req.Completed,
		UserID:      userID,
		Provisional: true,
	}

	snap := s.cache.Snapshot()
	s.cache.ApplyCreate(optimistic)

	payload := optimistic
	payload.ID = 0
	payload.Provisional = false

	started := time.Now()
	confirmed, err := s.remote.Create(ctx, payload)
	s.recorder.RecordUpstreamLatency(time.Since(started))
	if err != nil {
		s.recorder.RecordUpstreamError()
		s.cache.Restore(snap)
		s.recorder.RecordCacheRollback()
		return model.Todo{}, err
	}

	// Merge the server-confirmed fields but keep the local id: the
	// remote's fabricated id is not unique across creates.
	merged := model.Todo{
		ID:          optimistic.ID,
		Title:       confirmed.Title,
		Completed:   confirmed.Completed,
		UserID:      confirmed.UserID,
		Provisional: true,
	}
	s.cache.ReplaceID(optimistic.ID, merged)

	s.publish(event.TypeTodoCreated, merged, actorID)
	return merged, nil
}

// Update dispatches an optimistic update. Provisional items never reach
// the remote: the mutation is applied to the cache only.
func (s *Service) Update(ctx context.Context, actorID string, id int, req model.UpdateTodoRequest) (model.Todo, error) {
	if err := validateTodoInput(req.Title, req.UserID); err != nil {
		return model.Todo{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, cached := s.cache.Find(id)

	userID := req.UserID
	if userID == 0 {
		if cached {
			userID = current.UserID
		} else {
			userID = 1
		}
	}

	updated := model.Todo{
		ID:          id,
		Title:       req.Title,
		Completed:   req.Completed,
		UserID:      userID,
		Provisional: cached && current.Provisional,
	}

	snap := s.cache.Snapshot()
	s.cache.ApplyUpdate(updated)

	if updated.Provisional {
		s.publish(event.TypeTodoUpdated, updated, actorID)
		return updated, nil
	}

	started := time.Now()
	confirmed, err := s.remote.Update(ctx, updated)
	s.recorder.RecordUpstreamLatency(time.Since(started))
	if err != nil {
		if !errors.Is(err, model.ErrTodoNotFound) {
			s.recorder.RecordUpstreamError()
		}
		s.cache.Restore(snap)
		s.recorder.RecordCacheRollback()
		return model.Todo{}, err
	}

	confirmed.Provisional = false
	s.cache.ApplyUpdate(confirmed)

	s.publish(event.TypeTodoUpdated, confirmed, actorID)
	return confirmed, nil
}

// Delete dispatches an optimistic delete. A provisional item is removed
// from the cache only, mirroring the update bypass.
func (s *Service) Delete(ctx context.Context, actorID string, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, cached := s.cache.Find(id)

	snap := s.cache.Snapshot()
	s.cache.ApplyDelete(id)

	if cached && current.Provisional {
		s.publish(event.TypeTodoDeleted, map[string]int{"id": id}, actorID)
		return nil
	}

	started := time.Now()
	err := s.remote.Delete(ctx, id)
	s.recorder.RecordUpstreamLatency(time.Since(started))
	if err != nil {
		if !errors.Is(err, model.ErrTodoNotFound) {
			s.recorder.RecordUpstreamError()
		}
		s.cache.Restore(snap)
		s.recorder.RecordCacheRollback()
		return err
	}

	s.publish(event.TypeTodoDeleted, map[string]int{"id": id}, actorID)
	return nil
}

func (s *Service) publish(t event.Type, payload any, actorID string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event.Event{
		ID:        uuid.NewString(),
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		ActorID:   actorID,
	})
}

func validateTodoInput(title string, userID int) error {
	var fields []apierror.Field
	if len(title) < minTitleLength {
		fields = append(fields, apierror.Field{Field: "title", Message: "Title must be at least 3 characters long"})
	}
	if len(title) > maxTitleLength {
		fields = append(fields, apierror.Field{Field: "title", Message: "Title must not exceed 100 characters"})
	}
	if userID < 0 {
		fields = append(fields, apierror.Field{Field: "userId", Message: "userId must be positive"})
	}
	if len(fields) > 0 {
		return apierror.NewValidation("invalid input data", fields)
	}
	return nil
}
