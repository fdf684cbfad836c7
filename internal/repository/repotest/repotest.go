// Package repotest provides in-memory implementations of the repository
// interfaces for handler, notification and worker tests.
package repotest

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/statusify/statusify/internal/models"
	"github.com/statusify/statusify/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// Store holds every table in memory. The zero value is not usable; call NewStore.
type Store struct {
	mu          sync.Mutex
	nextID      int64
	clock       time.Time
	users       map[int64]models.User
	incidents   map[int64]models.Incident
	events      map[int64]models.Event
	subscribers map[int64]models.Subscriber
	jobs        map[int64]models.DelayedJob

	// Err, when set, is returned by every repository call.
	Err error
}

func NewStore() *Store {
	return &Store{
		clock:       time.Date(2015, 10, 16, 13, 24, 17, 0, time.UTC),
		users:       make(map[int64]models.User),
		incidents:   make(map[int64]models.Incident),
		events:      make(map[int64]models.Event),
		subscribers: make(map[int64]models.Subscriber),
		jobs:        make(map[int64]models.DelayedJob),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *Store) Users() repository.UserRepository             { return &userRepo{s} }
func (s *Store) Incidents() repository.IncidentRepository     { return &incidentRepo{s} }
func (s *Store) Subscribers() repository.SubscriberRepository { return &subscriberRepo{s} }
func (s *Store) Jobs() repository.JobRepository               { return &jobRepo{s} }

// IncidentCount returns the number of stored incidents.
func (s *Store) IncidentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.incidents)
}

// EventCount returns the number of stored events.
func (s *Store) EventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Incident returns a stored incident with its events.
func (s *Store) Incident(id int64) (models.Incident, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	incident, ok := s.incidents[id]
	if !ok {
		return models.Incident{}, false
	}
	incident.Events = s.eventsFor(id)
	return incident, true
}

// PendingJobs returns the payloads of every job row, ordered by id.
func (s *Store) PendingJobs() []models.JobPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var payloads []models.JobPayload
	for _, id := range ids {
		var p models.JobPayload
		if err := json.Unmarshal([]byte(s.jobs[id].Handler), &p); err == nil {
			payloads = append(payloads, p)
		}
	}
	return payloads
}

// Job returns a job row by id.
func (s *Store) Job(id int64) (models.DelayedJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	return job, ok
}

// SeedIncident inserts an incident directly, bypassing validation.
func (s *Store) SeedIncident(incident models.Incident, events ...models.Event) models.Incident {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.tick()
	incident.ID = s.id()
	incident.CreatedAt, incident.UpdatedAt = now, now
	incident.Events = nil
	s.incidents[incident.ID] = incident
	for _, evt := range events {
		evt.ID = s.id()
		evt.IncidentID = incident.ID
		evt.CreatedAt, evt.UpdatedAt = s.tick(), now
		s.events[evt.ID] = evt
	}
	incident.Events = s.eventsFor(incident.ID)
	return incident
}

// SeedSubscriber inserts a subscriber directly.
func (s *Store) SeedSubscriber(email string, activated bool, key string) models.Subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.tick()
	sub := models.Subscriber{ID: s.id(), Email: email, Activated: activated, CreatedAt: now, UpdatedAt: now}
	if key != "" {
		sub.ActivationKey = &key
	}
	s.subscribers[sub.ID] = sub
	return sub
}

func (s *Store) eventsFor(incidentID int64) []models.Event {
	var events []models.Event
	for _, evt := range s.events {
		if evt.IncidentID == incidentID {
			events = append(events, evt)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
	return events
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

type userRepo struct{ s *Store }

func (r *userRepo) CreateUser(_ context.Context, email, password string, admin bool) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return models.User{}, r.s.Err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return models.User{}, err
	}
	now := r.s.tick()
	user := models.User{
		ID:                r.s.id(),
		Email:             repository.NormalizeEmail(email),
		EncryptedPassword: string(hash),
		Admin:             admin,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	r.s.users[user.ID] = user
	return user, nil
}

func (r *userRepo) AuthenticateUser(ctx context.Context, email, password string) (models.User, error) {
	user, err := r.GetUserByEmail(ctx, email)
	if err != nil {
		return models.User{}, repository.ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.EncryptedPassword), []byte(password)) != nil {
		return models.User{}, repository.ErrInvalidCredentials
	}
	return user, nil
}

func (r *userRepo) GetUserByID(_ context.Context, userID int64) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[userID]
	if !ok {
		return models.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (r *userRepo) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	email = repository.NormalizeEmail(email)
	for _, user := range r.s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, sql.ErrNoRows
}

func (r *userRepo) GetUserByAPIToken(_ context.Context, token string) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	token = strings.TrimSpace(token)
	for _, user := range r.s.users {
		if token != "" && user.APIToken != nil && *user.APIToken == token {
			return user, nil
		}
	}
	return models.User{}, sql.ErrNoRows
}

func (r *userRepo) TrackSignIn(_ context.Context, userID int64, remoteIP string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	now := r.s.tick()
	user.SignInCount++
	user.LastSignInAt, user.LastSignInIP = user.CurrentSignInAt, user.CurrentSignInIP
	user.CurrentSignInAt = &now
	if remoteIP != "" {
		ip := remoteIP
		user.CurrentSignInIP = &ip
	}
	r.s.users[userID] = user
	return nil
}

func (r *userRepo) SetAPIToken(_ context.Context, email, token string) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	email = repository.NormalizeEmail(email)
	for id, user := range r.s.users {
		if user.Email == email {
			user.APIToken = &token
			r.s.users[id] = user
			return user, nil
		}
	}
	return models.User{}, sql.ErrNoRows
}

// ---------------------------------------------------------------------------
// Incidents
// ---------------------------------------------------------------------------

type incidentRepo struct{ s *Store }

func (r *incidentRepo) List(_ context.Context, publicOnly bool) ([]models.Incident, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	var incidents []models.Incident
	for _, incident := range r.s.incidents {
		if publicOnly && !incident.Public {
			continue
		}
		incident.Events = r.s.eventsFor(incident.ID)
		incidents = append(incidents, incident)
	}
	sort.Slice(incidents, func(i, j int) bool { return incidents[i].ID > incidents[j].ID })
	return incidents, nil
}

func (r *incidentRepo) ListStates(ctx context.Context) ([]models.Incident, error) {
	return r.List(ctx, false)
}

func (r *incidentRepo) Get(_ context.Context, id int64) (models.Incident, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return models.Incident{}, r.s.Err
	}
	incident, ok := r.s.incidents[id]
	if !ok {
		return models.Incident{}, sql.ErrNoRows
	}
	incident.Events = r.s.eventsFor(id)
	return incident, nil
}

func (r *incidentRepo) Create(_ context.Context, params repository.CreateIncidentParams) (models.Incident, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return models.Incident{}, r.s.Err
	}
	now := r.s.tick()
	incident := models.Incident{
		ID:        r.s.id(),
		Name:      params.Name,
		Component: params.Component,
		Severity:  params.Severity,
		Public:    params.Public,
		Active:    true,
		UserID:    params.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.s.incidents[incident.ID] = incident
	r.s.addEvent(incident.ID, params.Event)
	incident.Events = r.s.eventsFor(incident.ID)
	return incident, nil
}

func (r *incidentRepo) Update(_ context.Context, id int64, params repository.UpdateIncidentParams) (models.Incident, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return models.Incident{}, r.s.Err
	}
	incident, ok := r.s.incidents[id]
	if !ok {
		return models.Incident{}, sql.ErrNoRows
	}
	if params.Name != nil {
		incident.Name = *params.Name
	}
	if params.Component != nil {
		incident.Component = *params.Component
	}
	if params.Severity != nil {
		incident.Severity = *params.Severity
	}
	if params.Public != nil {
		incident.Public = *params.Public
	}
	incident.UpdatedAt = r.s.tick()
	r.s.incidents[id] = incident
	if params.Event != nil {
		r.s.addEvent(id, *params.Event)
	}
	incident.Events = r.s.eventsFor(id)
	return incident, nil
}

func (r *incidentRepo) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return r.s.Err
	}
	if _, ok := r.s.incidents[id]; !ok {
		return sql.ErrNoRows
	}
	for evtID, evt := range r.s.events {
		if evt.IncidentID == id {
			delete(r.s.events, evtID)
		}
	}
	delete(r.s.incidents, id)
	return nil
}

func (r *incidentRepo) Deactivate(_ context.Context, id int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return false, r.s.Err
	}
	incident, ok := r.s.incidents[id]
	if !ok {
		return false, sql.ErrNoRows
	}
	wasActive := incident.Active
	incident.Active = false
	incident.UpdatedAt = r.s.tick()
	r.s.incidents[id] = incident
	return wasActive, nil
}

func (s *Store) addEvent(incidentID int64, params repository.EventParams) {
	now := s.tick()
	evt := models.Event{
		ID:         s.id(),
		IncidentID: incidentID,
		Message:    params.Message,
		Status:     params.Status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.events[evt.ID] = evt
}

// ---------------------------------------------------------------------------
// Subscribers
// ---------------------------------------------------------------------------

type subscriberRepo struct{ s *Store }

func (r *subscriberRepo) Subscribe(_ context.Context, email, activationKey string) (models.Subscriber, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return models.Subscriber{}, false, r.s.Err
	}
	email = repository.NormalizeEmail(email)
	for _, sub := range r.s.subscribers {
		if sub.Email == email {
			return sub, false, nil
		}
	}
	now := r.s.tick()
	key := activationKey
	sub := models.Subscriber{ID: r.s.id(), Email: email, ActivationKey: &key, CreatedAt: now, UpdatedAt: now}
	r.s.subscribers[sub.ID] = sub
	return sub, true, nil
}

func (r *subscriberRepo) Activate(_ context.Context, activationKey string) (models.Subscriber, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return models.Subscriber{}, r.s.Err
	}
	for id, sub := range r.s.subscribers {
		if activationKey != "" && !sub.Activated && sub.ActivationKey != nil && *sub.ActivationKey == activationKey {
			sub.Activated = true
			sub.ActivationKey = nil
			sub.UpdatedAt = r.s.tick()
			r.s.subscribers[id] = sub
			return sub, nil
		}
	}
	return models.Subscriber{}, sql.ErrNoRows
}

func (r *subscriberRepo) GetByID(_ context.Context, id int64) (models.Subscriber, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.subscribers[id]
	if !ok {
		return models.Subscriber{}, sql.ErrNoRows
	}
	return sub, nil
}

func (r *subscriberRepo) ListActivated(_ context.Context) ([]models.Subscriber, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	var subs []models.Subscriber
	for _, sub := range r.s.subscribers {
		if sub.Activated {
			subs = append(subs, sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })
	return subs, nil
}

// ---------------------------------------------------------------------------
// Delayed jobs
// ---------------------------------------------------------------------------

type jobRepo struct{ s *Store }

func (r *jobRepo) Enqueue(_ context.Context, payload models.JobPayload, opts repository.EnqueueOptions) (models.DelayedJob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return models.DelayedJob{}, r.s.Err
	}
	handler, err := json.Marshal(payload)
	if err != nil {
		return models.DelayedJob{}, err
	}
	now := r.s.tick()
	runAt := now.Add(opts.Delay)
	job := models.DelayedJob{
		ID:        r.s.id(),
		Priority:  opts.Priority,
		Handler:   string(handler),
		RunAt:     &runAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if q := strings.TrimSpace(opts.Queue); q != "" {
		job.Queue = &q
	}
	r.s.jobs[job.ID] = job
	return job, nil
}

// ClaimNext ignores run_at so tests can drive retries without waiting.
func (r *jobRepo) ClaimNext(_ context.Context, workerName, queue string, _ time.Duration) (models.DelayedJob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return models.DelayedJob{}, r.s.Err
	}
	var candidates []models.DelayedJob
	for _, job := range r.s.jobs {
		if job.FailedAt != nil || job.LockedAt != nil {
			continue
		}
		if queue != "" && (job.Queue == nil || *job.Queue != queue) {
			continue
		}
		candidates = append(candidates, job)
	}
	if len(candidates) == 0 {
		return models.DelayedJob{}, sql.ErrNoRows
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority < candidates[j].Priority
		}
		return candidates[i].ID < candidates[j].ID
	})
	job := candidates[0]
	now := r.s.tick()
	name := workerName
	job.LockedAt, job.LockedBy = &now, &name
	r.s.jobs[job.ID] = job
	return job, nil
}

func (r *jobRepo) Complete(_ context.Context, jobID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.jobs, jobID)
	return nil
}

func (r *jobRepo) Reschedule(_ context.Context, jobID int64, attempts int, lastError string, delay time.Duration) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	job, ok := r.s.jobs[jobID]
	if !ok {
		return sql.ErrNoRows
	}
	now := r.s.tick()
	runAt := now.Add(delay)
	job.Attempts, job.LastError, job.RunAt, job.UpdatedAt = attempts, &lastError, &runAt, now
	job.LockedAt, job.LockedBy = nil, nil
	r.s.jobs[jobID] = job
	return nil
}

func (r *jobRepo) MarkFailed(_ context.Context, jobID int64, attempts int, lastError string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	job, ok := r.s.jobs[jobID]
	if !ok {
		return sql.ErrNoRows
	}
	now := r.s.tick()
	job.Attempts, job.LastError, job.FailedAt = attempts, &lastError, &now
	job.LockedAt, job.LockedBy = nil, nil
	r.s.jobs[jobID] = job
	return nil
}
