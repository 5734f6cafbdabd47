package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"devmemory-be/internal/entity"
	"devmemory-be/internal/repository/contract"
	"devmemory-be/pkg/vector"

	"github.com/google/uuid"
)

func sameProject(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func matchesScope(rowSession uuid.UUID, rowProject *uuid.UUID, wantSession, wantProject *uuid.UUID) bool {
	if wantSession != nil && rowSession != *wantSession {
		return false
	}
	if wantProject != nil && (rowProject == nil || *rowProject != *wantProject) {
		return false
	}
	return true
}

func idLess(a, b uuid.UUID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

// createdDesc orders newest first, id descending on ties.
func createdDesc(ai, bi time.Time, aid, bid uuid.UUID) bool {
	if !ai.Equal(bi) {
		return ai.After(bi)
	}
	return idLess(bid, aid)
}

// eventMatches applies the window and cursor bound of an EventQuery.
func eventMatches(at time.Time, id uuid.UUID, q contract.EventQuery) bool {
	if at.Before(q.From) || at.After(q.Until) {
		return false
	}
	if q.After == nil {
		return true
	}
	switch {
	case q.After.TieId != nil:
		return at.After(q.After.At) || (at.Equal(q.After.At) && idLess(*q.After.TieId, id))
	case q.After.Inclusive:
		return !at.Before(q.After.At)
	default:
		return at.After(q.After.At)
	}
}

func sortEvents(rows []*contract.EventRow, limit int) []*contract.EventRow {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].At.Equal(rows[j].At) {
			return rows[i].At.Before(rows[j].At)
		}
		return idLess(rows[i].Id, rows[j].Id)
	})
	return paginate(rows, limit, 0)
}

// ContextRepository

type ContextRepository struct {
	access access
}

func cloneContext(e *entity.ContextEntry) *entity.ContextEntry {
	if e == nil {
		return nil
	}
	cp := *e
	if e.ProjectId != nil {
		id := *e.ProjectId
		cp.ProjectId = &id
	}
	cp.Tags = append([]string{}, e.Tags...)
	if e.Embedding != nil {
		cp.Embedding = append([]float32{}, e.Embedding...)
	}
	return &cp
}

func (r *ContextRepository) Create(ctx context.Context, entry *entity.ContextEntry) error {
	return r.access.run(func(d *dataset) error {
		if _, ok := d.sessions[entry.SessionId]; !ok {
			return fmt.Errorf("context entry references unknown session %s", entry.SessionId)
		}
		if entry.Id == uuid.Nil {
			entry.Id = uuid.New()
		}
		if entry.Tags == nil {
			entry.Tags = []string{}
		}
		d.contexts[entry.Id] = cloneContext(entry)
		return nil
	})
}

func (r *ContextRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.ContextEntry, error) {
	var found *entity.ContextEntry
	err := r.access.run(func(d *dataset) error {
		found = cloneContext(d.contexts[id])
		return nil
	})
	return found, err
}

func contextMatches(e *entity.ContextEntry, sessionId, projectId *uuid.UUID, contextType *entity.ContextType) bool {
	if !matchesScope(e.SessionId, e.ProjectId, sessionId, projectId) {
		return false
	}
	return contextType == nil || e.Type == *contextType
}

func (r *ContextRepository) List(ctx context.Context, filter contract.ContextFilter) ([]*entity.ContextEntry, error) {
	var entries []*entity.ContextEntry
	err := r.access.run(func(d *dataset) error {
		for _, e := range d.contexts {
			if contextMatches(e, filter.SessionId, filter.ProjectId, filter.Type) {
				entries = append(entries, cloneContext(e))
			}
		}
		return nil
	})
	sort.Slice(entries, func(i, j int) bool {
		return createdDesc(entries[i].CreatedAt, entries[j].CreatedAt, entries[i].Id, entries[j].Id)
	})
	return paginate(entries, filter.Limit, filter.Offset), err
}

func (r *ContextRepository) CountBySession(ctx context.Context, sessionId uuid.UUID) (int64, error) {
	var count int64
	err := r.access.run(func(d *dataset) error {
		for _, e := range d.contexts {
			if e.SessionId == sessionId {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (r *ContextRepository) SearchSimilar(ctx context.Context, embedding []float32, query contract.SimilarityQuery) ([]*contract.ScoredContextEntry, error) {
	var results []*contract.ScoredContextEntry
	err := r.access.run(func(d *dataset) error {
		for _, e := range d.contexts {
			if e.Embedding == nil || !contextMatches(e, query.SessionId, query.ProjectId, query.Type) {
				continue
			}
			similarity := vector.Cosine(embedding, e.Embedding)
			if query.MinSimilarity != nil && similarity < *query.MinSimilarity {
				continue
			}
			results = append(results, &contract.ScoredContextEntry{Entry: cloneContext(e), Similarity: similarity})
		}
		return nil
	})
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Entry.CreatedAt.After(results[j].Entry.CreatedAt)
	})
	return paginate(results, query.Limit, 0), err
}

func (r *ContextRepository) UpdateEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) (bool, error) {
	var ok bool
	err := r.access.run(func(d *dataset) error {
		current, found := d.contexts[id]
		if !found {
			return nil
		}
		cp := cloneContext(current)
		cp.Embedding = append([]float32{}, embedding...)
		d.contexts[id] = cp
		ok = true
		return nil
	})
	return ok, err
}

func (r *ContextRepository) ListIDsForReembed(ctx context.Context, onlyMissing bool) ([]uuid.UUID, error) {
	var entries []*entity.ContextEntry
	err := r.access.run(func(d *dataset) error {
		for _, e := range d.contexts {
			if onlyMissing && e.Embedding != nil {
				continue
			}
			entries = append(entries, e)
		}
		return nil
	})
	sort.Slice(entries, func(i, j int) bool {
		return createdDesc(entries[j].CreatedAt, entries[i].CreatedAt, entries[j].Id, entries[i].Id)
	})

	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.Id
	}
	return ids, err
}

func (r *ContextRepository) ResetEmbeddings(ctx context.Context, dimension int) error {
	return r.access.run(func(d *dataset) error {
		for id, e := range d.contexts {
			if e.Embedding == nil {
				continue
			}
			cp := cloneContext(e)
			cp.Embedding = nil
			d.contexts[id] = cp
		}
		return nil
	})
}

func (r *ContextRepository) ListEvents(ctx context.Context, query contract.EventQuery) ([]*contract.EventRow, error) {
	var rows []*contract.EventRow
	err := r.access.run(func(d *dataset) error {
		for _, e := range d.contexts {
			if e.SessionId != query.SessionId || !eventMatches(e.CreatedAt, e.Id, query) {
				continue
			}
			rows = append(rows, &contract.EventRow{
				Id:      e.Id,
				At:      e.CreatedAt,
				Summary: contract.ContextSummary(e.Type, e.Content),
			})
		}
		return nil
	})
	return sortEvents(rows, query.Limit), err
}

// DecisionRepository

type DecisionRepository struct {
	access access
}

func cloneDecision(dec *entity.Decision) *entity.Decision {
	if dec == nil {
		return nil
	}
	cp := *dec
	if dec.ProjectId != nil {
		id := *dec.ProjectId
		cp.ProjectId = &id
	}
	return &cp
}

func (r *DecisionRepository) Create(ctx context.Context, decision *entity.Decision) error {
	return r.access.run(func(d *dataset) error {
		if _, ok := d.sessions[decision.SessionId]; !ok {
			return fmt.Errorf("decision references unknown session %s", decision.SessionId)
		}
		if decision.Id == uuid.Nil {
			decision.Id = uuid.New()
		}
		if decision.UpdatedAt.IsZero() {
			decision.UpdatedAt = decision.CreatedAt
		}
		d.decisions[decision.Id] = cloneDecision(decision)
		return nil
	})
}

func (r *DecisionRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Decision, error) {
	var found *entity.Decision
	err := r.access.run(func(d *dataset) error {
		found = cloneDecision(d.decisions[id])
		return nil
	})
	return found, err
}

func (r *DecisionRepository) List(ctx context.Context, filter contract.ArtifactFilter) ([]*entity.Decision, error) {
	var decisions []*entity.Decision
	err := r.access.run(func(d *dataset) error {
		for _, dec := range d.decisions {
			if !matchesScope(dec.SessionId, dec.ProjectId, filter.SessionId, filter.ProjectId) {
				continue
			}
			if filter.Status != "" && string(dec.Status) != filter.Status {
				continue
			}
			decisions = append(decisions, cloneDecision(dec))
		}
		return nil
	})
	sort.Slice(decisions, func(i, j int) bool {
		return createdDesc(decisions[i].CreatedAt, decisions[j].CreatedAt, decisions[i].Id, decisions[j].Id)
	})
	return paginate(decisions, filter.Limit, filter.Offset), err
}

func (r *DecisionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status entity.DecisionStatus, at time.Time) (bool, error) {
	var ok bool
	err := r.access.run(func(d *dataset) error {
		current, found := d.decisions[id]
		if !found {
			return nil
		}
		cp := cloneDecision(current)
		cp.Status = status
		cp.UpdatedAt = at
		d.decisions[id] = cp
		ok = true
		return nil
	})
	return ok, err
}

func (r *DecisionRepository) CountBySession(ctx context.Context, sessionId uuid.UUID) (int64, error) {
	var count int64
	err := r.access.run(func(d *dataset) error {
		for _, dec := range d.decisions {
			if dec.SessionId == sessionId {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (r *DecisionRepository) ListEvents(ctx context.Context, query contract.EventQuery) ([]*contract.EventRow, error) {
	var rows []*contract.EventRow
	err := r.access.run(func(d *dataset) error {
		for _, dec := range d.decisions {
			if dec.SessionId != query.SessionId || !eventMatches(dec.CreatedAt, dec.Id, query) {
				continue
			}
			rows = append(rows, &contract.EventRow{Id: dec.Id, At: dec.CreatedAt, Summary: dec.Title})
		}
		return nil
	})
	return sortEvents(rows, query.Limit), err
}

// TaskRepository

type TaskRepository struct {
	access access
}

func cloneTask(t *entity.Task) *entity.Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.ProjectId != nil {
		id := *t.ProjectId
		cp.ProjectId = &id
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}

func (r *TaskRepository) Create(ctx context.Context, task *entity.Task) error {
	return r.access.run(func(d *dataset) error {
		if _, ok := d.sessions[task.SessionId]; !ok {
			return fmt.Errorf("task references unknown session %s", task.SessionId)
		}
		if task.Id == uuid.Nil {
			task.Id = uuid.New()
		}
		if task.UpdatedAt.IsZero() {
			task.UpdatedAt = task.CreatedAt
		}
		d.tasks[task.Id] = cloneTask(task)
		return nil
	})
}

func (r *TaskRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Task, error) {
	var found *entity.Task
	err := r.access.run(func(d *dataset) error {
		found = cloneTask(d.tasks[id])
		return nil
	})
	return found, err
}

func (r *TaskRepository) List(ctx context.Context, filter contract.ArtifactFilter) ([]*entity.Task, error) {
	var tasks []*entity.Task
	err := r.access.run(func(d *dataset) error {
		for _, t := range d.tasks {
			if !matchesScope(t.SessionId, t.ProjectId, filter.SessionId, filter.ProjectId) {
				continue
			}
			if filter.Status != "" && string(t.Status) != filter.Status {
				continue
			}
			tasks = append(tasks, cloneTask(t))
		}
		return nil
	})
	sort.Slice(tasks, func(i, j int) bool {
		return createdDesc(tasks[i].CreatedAt, tasks[j].CreatedAt, tasks[i].Id, tasks[j].Id)
	})
	return paginate(tasks, filter.Limit, filter.Offset), err
}

func (r *TaskRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status entity.TaskStatus, at time.Time) (bool, error) {
	var ok bool
	err := r.access.run(func(d *dataset) error {
		current, found := d.tasks[id]
		if !found || current.Status == entity.TaskStatusCompleted {
			return nil
		}
		cp := cloneTask(current)
		cp.Status = status
		cp.UpdatedAt = at
		if status == entity.TaskStatusCompleted {
			completedAt := at
			cp.CompletedAt = &completedAt
		}
		d.tasks[id] = cp
		ok = true
		return nil
	})
	return ok, err
}

func (r *TaskRepository) count(sessionId uuid.UUID, match func(t *entity.Task) bool) (int64, error) {
	var count int64
	err := r.access.run(func(d *dataset) error {
		for _, t := range d.tasks {
			if t.SessionId == sessionId && match(t) {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (r *TaskRepository) CountBySession(ctx context.Context, sessionId uuid.UUID) (int64, error) {
	return r.count(sessionId, func(*entity.Task) bool { return true })
}

func (r *TaskRepository) CountCompletedBySession(ctx context.Context, sessionId uuid.UUID) (int64, error) {
	return r.count(sessionId, func(t *entity.Task) bool { return t.Status == entity.TaskStatusCompleted })
}

func (r *TaskRepository) listEvents(query contract.EventQuery, at func(t *entity.Task) *time.Time) ([]*contract.EventRow, error) {
	var rows []*contract.EventRow
	err := r.access.run(func(d *dataset) error {
		for _, t := range d.tasks {
			ts := at(t)
			if t.SessionId != query.SessionId || ts == nil || !eventMatches(*ts, t.Id, query) {
				continue
			}
			rows = append(rows, &contract.EventRow{Id: t.Id, At: *ts, Summary: t.Title})
		}
		return nil
	})
	return sortEvents(rows, query.Limit), err
}

func (r *TaskRepository) ListCreatedEvents(ctx context.Context, query contract.EventQuery) ([]*contract.EventRow, error) {
	return r.listEvents(query, func(t *entity.Task) *time.Time { return &t.CreatedAt })
}

func (r *TaskRepository) ListCompletedEvents(ctx context.Context, query contract.EventQuery) ([]*contract.EventRow, error) {
	return r.listEvents(query, func(t *entity.Task) *time.Time { return t.CompletedAt })
}

// NamingRepository

type NamingRepository struct {
	access access
}

func cloneNaming(n *entity.NamingEntry) *entity.NamingEntry {
	if n == nil {
		return nil
	}
	cp := *n
	if n.ProjectId != nil {
		id := *n.ProjectId
		cp.ProjectId = &id
	}
	return &cp
}

func (r *NamingRepository) Create(ctx context.Context, entry *entity.NamingEntry) error {
	return r.access.run(func(d *dataset) error {
		if _, ok := d.sessions[entry.SessionId]; !ok {
			return fmt.Errorf("naming entry references unknown session %s", entry.SessionId)
		}
		for _, existing := range d.naming {
			if existing.CanonicalName == entry.CanonicalName && sameProject(existing.ProjectId, entry.ProjectId) {
				return fmt.Errorf("naming_project_name: %w", contract.ErrDuplicate)
			}
		}
		if entry.Id == uuid.Nil {
			entry.Id = uuid.New()
		}
		d.naming[entry.Id] = cloneNaming(entry)
		return nil
	})
}

func (r *NamingRepository) FindByName(ctx context.Context, projectId *uuid.UUID, canonicalName string) (*entity.NamingEntry, error) {
	var found *entity.NamingEntry
	err := r.access.run(func(d *dataset) error {
		for _, n := range d.naming {
			if n.CanonicalName == canonicalName && sameProject(n.ProjectId, projectId) {
				found = cloneNaming(n)
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (r *NamingRepository) List(ctx context.Context, filter contract.ArtifactFilter) ([]*entity.NamingEntry, error) {
	var entries []*entity.NamingEntry
	err := r.access.run(func(d *dataset) error {
		for _, n := range d.naming {
			if !matchesScope(n.SessionId, n.ProjectId, filter.SessionId, filter.ProjectId) {
				continue
			}
			if filter.Status != "" && string(n.Status) != filter.Status {
				continue
			}
			entries = append(entries, cloneNaming(n))
		}
		return nil
	})
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CanonicalName < entries[j].CanonicalName
	})
	return paginate(entries, filter.Limit, filter.Offset), err
}

// ProjectRepository

type ProjectRepository struct {
	access access
}

func cloneProject(p *entity.Project) *entity.Project {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

func (r *ProjectRepository) Create(ctx context.Context, project *entity.Project) error {
	return r.access.run(func(d *dataset) error {
		for _, existing := range d.projects {
			if existing.Name == project.Name {
				return fmt.Errorf("projects_name: %w", contract.ErrDuplicate)
			}
		}
		if project.Id == uuid.Nil {
			project.Id = uuid.New()
		}
		now := time.Now().UTC()
		if project.CreatedAt.IsZero() {
			project.CreatedAt = now
		}
		project.UpdatedAt = now
		d.projects[project.Id] = cloneProject(project)
		return nil
	})
}

func (r *ProjectRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Project, error) {
	var found *entity.Project
	err := r.access.run(func(d *dataset) error {
		found = cloneProject(d.projects[id])
		return nil
	})
	return found, err
}

func (r *ProjectRepository) FindByName(ctx context.Context, name string) (*entity.Project, error) {
	var found *entity.Project
	err := r.access.run(func(d *dataset) error {
		for _, p := range d.projects {
			if p.Name == name {
				found = cloneProject(p)
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (r *ProjectRepository) List(ctx context.Context) ([]*entity.Project, error) {
	var projects []*entity.Project
	err := r.access.run(func(d *dataset) error {
		for _, p := range d.projects {
			projects = append(projects, cloneProject(p))
		}
		return nil
	})
	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })
	return projects, err
}

func (r *ProjectRepository) MostRecent(ctx context.Context) (*entity.Project, error) {
	var latest *entity.Project
	err := r.access.run(func(d *dataset) error {
		for _, p := range d.projects {
			if latest == nil || createdDesc(p.CreatedAt, latest.CreatedAt, p.Id, latest.Id) {
				latest = p
			}
		}
		return nil
	})
	return cloneProject(latest), err
}
