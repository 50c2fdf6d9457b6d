package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/terra-clan/judgehub/internal/models"
)

type scoreKey struct {
	competitionID string
	participantID string
	judgeID       string
}

// MemoryRepository implements Repository in process memory.
// It is used for local development and tests.
type MemoryRepository struct {
	mu           sync.RWMutex
	users        map[string]*models.User
	competitions map[string]*models.Competition
	scores       map[scoreKey]*models.ScoreEntry
	scoreOrder   []scoreKey
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:        make(map[string]*models.User),
		competitions: make(map[string]*models.Competition),
		scores:       make(map[scoreKey]*models.ScoreEntry),
	}
}

// Ping always succeeds
func (r *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (r *MemoryRepository) Close() error {
	return nil
}

// --- Users ---

func (r *MemoryRepository) CreateUser(ctx context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if strings.EqualFold(existing.Username, u.Username) {
			return ErrDuplicateUsername
		}
	}
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetUser(ctx context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *MemoryRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Username, username) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) ListUsers(ctx context.Context) ([]*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]*models.User, 0, len(r.users))
	for _, u := range r.users {
		cp := *u
		users = append(users, &cp)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users, nil
}

// --- Competitions ---

func (r *MemoryRepository) CreateCompetition(ctx context.Context, c *models.Competition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.competitions[c.ID] = cloneCompetition(c)
	return nil
}

func (r *MemoryRepository) GetCompetition(ctx context.Context, id string) (*models.Competition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.competitions[id]
	if !ok {
		return nil, nil
	}
	return cloneCompetition(c), nil
}

func (r *MemoryRepository) ListCompetitions(ctx context.Context, filters models.CompetitionFilters) ([]*models.Competition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var list []*models.Competition
	for _, c := range r.competitions {
		if filters.Status != "" && c.Status != filters.Status {
			continue
		}
		list = append(list, cloneCompetition(c))
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})

	if filters.Offset > 0 {
		if filters.Offset >= len(list) {
			return nil, nil
		}
		list = list[filters.Offset:]
	}
	if filters.Limit > 0 && len(list) > filters.Limit {
		list = list[:filters.Limit]
	}
	return list, nil
}

func (r *MemoryRepository) UpdateCompetitionStatus(ctx context.Context, id string, status models.CompetitionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.competitions[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	return nil
}

func (r *MemoryRepository) ReplaceCriteria(ctx context.Context, competitionID string, criteria []models.Criterion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.competitions[competitionID]
	if !ok {
		return ErrNotFound
	}
	for k := range r.scores {
		if k.competitionID == competitionID {
			return ErrScoresExist
		}
	}
	c.Criteria = append([]models.Criterion(nil), criteria...)
	return nil
}

func (r *MemoryRepository) AddParticipant(ctx context.Context, competitionID string, p *models.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.competitions[competitionID]
	if !ok {
		return ErrNotFound
	}
	p.Position = nextPosition(c.Participants)
	c.Participants = append(c.Participants, *p)
	return nil
}

func (r *MemoryRepository) RemoveParticipant(ctx context.Context, competitionID, participantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.competitions[competitionID]
	if !ok {
		return ErrNotFound
	}
	for k := range r.scores {
		if k.competitionID == competitionID && k.participantID == participantID {
			return ErrScoresExist
		}
	}
	for i, p := range c.Participants {
		if p.ID == participantID {
			c.Participants = append(c.Participants[:i], c.Participants[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (r *MemoryRepository) AddJudge(ctx context.Context, competitionID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.competitions[competitionID]
	if !ok {
		return ErrNotFound
	}
	if !c.HasJudge(userID) {
		c.Judges = append(c.Judges, userID)
	}
	return nil
}

// --- Scores ---

func (r *MemoryRepository) CreateScore(ctx context.Context, e *models.ScoreEntry) error {
	key := scoreKey{e.CompetitionID, e.ParticipantID, e.JudgeID}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.competitions[e.CompetitionID]
	if !ok || c.Participant(e.ParticipantID) == nil {
		return ErrNotFound
	}
	if _, exists := r.scores[key]; exists {
		return ErrDuplicateScore
	}

	ids := make([]string, 0, len(c.Criteria))
	for _, cr := range c.Criteria {
		ids = append(ids, cr.ID)
	}
	if !coversCriteria(ids, e.Scores) {
		return ErrStaleCriteria
	}
	r.scores[key] = cloneScore(e)
	r.scoreOrder = append(r.scoreOrder, key)
	return nil
}

func (r *MemoryRepository) GetScore(ctx context.Context, competitionID, participantID, judgeID string) (*models.ScoreEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.scores[scoreKey{competitionID, participantID, judgeID}]
	if !ok {
		return nil, nil
	}
	return cloneScore(e), nil
}

func (r *MemoryRepository) ListScores(ctx context.Context, competitionID string) ([]*models.ScoreEntry, error) {
	return r.listScores(func(k scoreKey) bool {
		return k.competitionID == competitionID
	}), nil
}

func (r *MemoryRepository) ListParticipantScores(ctx context.Context, competitionID, participantID string) ([]*models.ScoreEntry, error) {
	return r.listScores(func(k scoreKey) bool {
		return k.competitionID == competitionID && k.participantID == participantID
	}), nil
}

func (r *MemoryRepository) listScores(match func(scoreKey) bool) []*models.ScoreEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.ScoreEntry
	for _, k := range r.scoreOrder {
		if match(k) {
			out = append(out, cloneScore(r.scores[k]))
		}
	}
	return out
}

// Helper functions

func nextPosition(participants []models.Participant) int {
	next := 0
	for _, p := range participants {
		if p.Position >= next {
			next = p.Position + 1
		}
	}
	return next
}

func cloneCompetition(c *models.Competition) *models.Competition {
	cp := *c
	cp.Criteria = append([]models.Criterion(nil), c.Criteria...)
	cp.Participants = append([]models.Participant(nil), c.Participants...)
	cp.Judges = append([]string(nil), c.Judges...)
	return &cp
}

func cloneScore(e *models.ScoreEntry) *models.ScoreEntry {
	cp := *e
	cp.Scores = append([]models.CriterionScore(nil), e.Scores...)
	return &cp
}
