package operation

import (
	"context"

	"devmemory-be/internal/dto"
	"devmemory-be/internal/service"
)

// Services is everything the catalog dispatches to.
type Services struct {
	Sessions    service.ISessionService
	Projects    service.IProjectRegistry
	Contexts    service.IContextService
	Reembed     service.IReembedService
	Correlation service.ICorrelationService
	Analytics   service.IAnalyticsService
	Decisions   service.IDecisionService
	Tasks       service.ITaskService
	Naming      service.INamingService
}

// Catalog lists every operation exposed through the registry.
func Catalog(s Services) []Operation {
	return []Operation{
		Define("session.start", "End the active session and start a new one", false,
			func(ctx context.Context, in *dto.StartSessionRequest) (*dto.StartSessionResponse, error) {
				return s.Sessions.StartSession(ctx, in)
			}),
		Define("session.getActive", "Resolve the active session, demoting a stale one and creating one lazily", false,
			func(ctx context.Context, _ *Empty) (*dto.GetActiveSessionResponse, error) {
				return s.Sessions.GetActiveSession(ctx)
			}),
		Define("session.get", "Get a session by id or display id", true,
			func(ctx context.Context, in *dto.SessionRefRequest) (*dto.SessionResponse, error) {
				return s.Sessions.GetSession(ctx, in.SessionId)
			}),
		Define("session.list", "List sessions", true,
			func(ctx context.Context, in *dto.ListSessionsRequest) (*dto.ListSessionsResponse, error) {
				return s.Sessions.ListSessions(ctx, in)
			}),
		Define("session.end", "End a session; ending an inactive session is a no-op", false,
			func(ctx context.Context, in *dto.EndSessionRequest) (*dto.EndSessionResponse, error) {
				return s.Sessions.EndSession(ctx, in)
			}),
		Define("session.rename", "Set the display name of a session", true,
			func(ctx context.Context, in *dto.RenameSessionRequest) (*dto.SessionResponse, error) {
				return s.Sessions.RenameSession(ctx, in)
			}),
		Define("session.reassignProject", "Move a session to another project (two-step, needs confirm)", true,
			func(ctx context.Context, in *dto.ReassignProjectRequest) (*dto.ReassignProjectResponse, error) {
				return s.Sessions.ReassignProject(ctx, in)
			}),
		Define("session.recordActivity", "Bump last activity of a session", false,
			func(ctx context.Context, in *dto.RecordActivityRequest) (*dto.RecordActivityResponse, error) {
				return s.Sessions.RecordActivity(ctx, in)
			}),
		Define("session.update", "Update description, goal or tags of a session", true,
			func(ctx context.Context, in *dto.UpdateSessionRequest) (*dto.SessionResponse, error) {
				return s.Sessions.UpdateDetails(ctx, in)
			}),
		Define("session.rate", "Rate a session from 1 to 5", true,
			func(ctx context.Context, in *dto.RateSessionRequest) (*dto.SessionResponse, error) {
				return s.Sessions.RateSession(ctx, in)
			}),
		Define("session.recordTokens", "Add token usage to a session", false,
			func(ctx context.Context, in *dto.RecordTokensRequest) (*dto.RecordTokensResponse, error) {
				return s.Sessions.RecordTokenUsage(ctx, in)
			}),

		Define("context.store", "Store a context entry with its embedding", false,
			func(ctx context.Context, in *dto.StoreContextRequest) (*dto.StoreContextResponse, error) {
				return s.Contexts.Store(ctx, in)
			}),
		Define("context.search", "Semantic search over stored context", true,
			func(ctx context.Context, in *dto.SearchContextRequest) (*dto.SearchContextResponse, error) {
				return s.Contexts.Search(ctx, in)
			}),
		Define("context.get", "Get a context entry", true,
			func(ctx context.Context, in *dto.GetContextRequest) (*dto.ContextResponse, error) {
				return s.Contexts.Get(ctx, in.Id)
			}),
		Define("context.reembed", "Regenerate embeddings in bulk (administrative)", false,
			func(ctx context.Context, in *dto.ReembedRequest) (*dto.ReembedResponse, error) {
				return s.Reembed.Enqueue(ctx, in)
			}),

		Define("correlation.onArtifactCreated", "Attribute an externally created artifact to its session", false,
			func(ctx context.Context, in *dto.ArtifactCreatedRequest) (*dto.CountersResponse, error) {
				return s.Correlation.OnArtifactCreated(ctx, in)
			}),
		Define("correlation.getTimeline", "Page through the ordered events of a session", true,
			func(ctx context.Context, in *dto.TimelineRequest) (*dto.TimelineResponse, error) {
				return s.Correlation.Timeline(ctx, in)
			}),
		Define("correlation.getCounters", "Counters, tokens, elapsed time and productivity score", true,
			func(ctx context.Context, in *dto.CountersRequest) (*dto.CountersResponse, error) {
				return s.Correlation.Counters(ctx, in)
			}),
		Define("correlation.reconcile", "Recompute session counters from artifact rows", false,
			func(ctx context.Context, in *dto.ReconcileRequest) (*dto.ReconcileResponse, error) {
				return s.Correlation.Reconcile(ctx, in)
			}),

		Define("analytics.projectSummary", "Aggregate sessions of a project", true,
			func(ctx context.Context, in *dto.ProjectSummaryRequest) (*dto.ProjectSummaryResponse, error) {
				return s.Analytics.ProjectSummary(ctx, in)
			}),
		Define("analytics.sessionSummary", "Session with counters and event span", true,
			func(ctx context.Context, in *dto.SessionRefRequest) (*dto.SessionSummaryResponse, error) {
				return s.Analytics.SessionSummary(ctx, in)
			}),

		Define("decision.record", "Record a decision in the active or given session", false,
			func(ctx context.Context, in *dto.RecordDecisionRequest) (*dto.DecisionResponse, error) {
				return s.Decisions.Record(ctx, in)
			}),
		Define("decision.list", "List decisions", true,
			func(ctx context.Context, in *dto.ListArtifactsRequest) ([]*dto.DecisionResponse, error) {
				return s.Decisions.List(ctx, in)
			}),
		Define("decision.updateStatus", "Change the status of a decision", true,
			func(ctx context.Context, in *dto.UpdateDecisionStatusRequest) (*dto.DecisionResponse, error) {
				return s.Decisions.UpdateStatus(ctx, in)
			}),
		Define("task.create", "Create a task in the active or given session", false,
			func(ctx context.Context, in *dto.CreateTaskRequest) (*dto.TaskResponse, error) {
				return s.Tasks.Create(ctx, in)
			}),
		Define("task.list", "List tasks", true,
			func(ctx context.Context, in *dto.ListArtifactsRequest) ([]*dto.TaskResponse, error) {
				return s.Tasks.List(ctx, in)
			}),
		Define("task.updateStatus", "Change the status of a task; completion is counted once", true,
			func(ctx context.Context, in *dto.UpdateTaskStatusRequest) (*dto.TaskResponse, error) {
				return s.Tasks.UpdateStatus(ctx, in)
			}),
		Define("naming.register", "Register a canonical name", false,
			func(ctx context.Context, in *dto.RegisterNamingRequest) (*dto.NamingResponse, error) {
				return s.Naming.Register(ctx, in)
			}),
		Define("naming.list", "List naming entries", true,
			func(ctx context.Context, in *dto.ListArtifactsRequest) ([]*dto.NamingResponse, error) {
				return s.Naming.List(ctx, in)
			}),

		Define("project.create", "Create a project", false,
			func(ctx context.Context, in *dto.CreateProjectRequest) (*dto.ProjectResponse, error) {
				return s.Projects.Create(ctx, in)
			}),
		Define("project.list", "List projects", false,
			func(ctx context.Context, _ *Empty) ([]*dto.ProjectResponse, error) {
				return s.Projects.List(ctx)
			}),
	}
}
