package ports

import "context"

// ProposalCategory classifies the kind of improvement a proposal targets.
type ProposalCategory string

const (
	CategorySecurity ProposalCategory = "security"
	CategoryFix      ProposalCategory = "fix"
	CategoryPerf     ProposalCategory = "perf"
	CategoryRefactor ProposalCategory = "refactor"
	CategoryTest     ProposalCategory = "test"
	CategoryTypes    ProposalCategory = "types"
	CategoryCleanup  ProposalCategory = "cleanup"
	CategoryDocs     ProposalCategory = "docs"
	CategoryOther    ProposalCategory = "other"
)

// Complexity is the surveyor's rough size estimate for a proposal.
type Complexity string

const (
	ComplexityTrivial  Complexity = "trivial"
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Proposal is a single candidate improvement surfaced by a survey.
type Proposal struct {
	ID                   string
	Category             ProposalCategory
	Title                string
	Description          string
	AcceptanceCriteria   []string
	VerificationCommands []string
	AllowedPaths         []string
	PrimaryFiles         []string
	Confidence           int // [0,100]
	Impact               int // [0,10]
	Rationale            string
	Complexity           Complexity
	HitCount             int // dedup rejection count, used for escalation
	FailureReason        string
}

// SurveyRequest bounds a single survey invocation.
type SurveyRequest struct {
	Scope           string
	AllowCategories []ProposalCategory
	BlockCategories []ProposalCategory
	ConfidenceFloor int
	ProtectedPaths  []string
	TokenBudget     int
	ModuleGroup     string

	// IncludeClaudeMD tells the surveyor to fold CLAUDE.md-style repo
	// guidance into its scan context, when the repository has one.
	IncludeClaudeMD bool
}

// SurveyProgress is a streaming progress callback payload.
type SurveyProgress struct {
	BatchIndex     int
	BatchTotal     int
	ProposalsSoFar int
	Status         string
}

// SurveyResult carries whatever proposals were produced even on failure.
type SurveyResult struct {
	Proposals []Proposal
	Err       error
}

// Surveyor scans a repository for improvement proposals (spec.md §6).
type Surveyor interface {
	Survey(ctx context.Context, req SurveyRequest, onProgress func(SurveyProgress)) (SurveyResult, error)
}

// TrajectoryContext bundles everything the trajectory generator needs
// beyond the raw proposal list: history, diversity, sector, taste,
// learnings, dedup, goal, metrics, dependency graph, causal, escalation,
// arc guidance, convergence, analysis.
type TrajectoryContext struct {
	HistorySummary    string
	DiversityScores   map[string]float64
	SectorSummary     string
	TasteNotes        string
	Learnings         []string
	DedupNotes        string
	GoalSummary       string
	MetricsHint       string
	DependencySubgraph map[string][]string
	ReverseSubgraph    map[string][]string
	HubAnnotations     []string
	CausalChain        []string
	ArcGuidance        []string
	ConvergenceHint    string
	AnalysisContext    string
}

// TrajectoryGenerationRequest is the full input to the external generator.
type TrajectoryGenerationRequest struct {
	Proposals    []Proposal
	Context      TrajectoryContext
	Ambition     string
	SessionPhase string
}

// TrajectoryGenerator turns a curated proposal set into a Trajectory value
// object (spec.md §6). Implementations must never return a trajectory with
// an empty step list.
type TrajectoryGenerator interface {
	Generate(ctx context.Context, req TrajectoryGenerationRequest) (interface{}, error)
}

// AgentOutcome is the terminal disposition of one ticket dispatch.
type AgentOutcome string

const (
	AgentCompleted      AgentOutcome = "completed"
	AgentNoChanges      AgentOutcome = "no_changes"
	AgentFailed         AgentOutcome = "failed"
	AgentScopeViolation AgentOutcome = "scope_violation"
	AgentSpindleAbort   AgentOutcome = "spindle_abort"
)

// Ticket is a single unit of work dispatched to an external code-modification agent.
type Ticket struct {
	Title                string
	Description          string
	AllowedPaths         []string
	ForbiddenPaths       []string
	VerificationCommands []string
	MaxRetries           int
}

// AgentInvoker dispatches tickets to an external code-modification agent
// (spec.md §6). Retry policy is owned by the invoker, not the core.
type AgentInvoker interface {
	Invoke(ctx context.Context, ticket Ticket) (AgentOutcome, error)
}

// GraphMetrics summarizes structural properties of the dependency graph.
type GraphMetrics struct {
	HubModules []string
}

// CodebaseIndex exposes structural facts about the repository (spec.md §6).
type CodebaseIndex interface {
	Modules(ctx context.Context) ([]string, error)
	DependencyEdges(ctx context.Context) (map[string][]string, error)
	ReverseEdges(ctx context.Context) (map[string][]string, error)
	DeadExports(ctx context.Context) ([]string, error)
	StructuralIssues(ctx context.Context) ([]string, error)
	ASTFindings(ctx context.Context) ([]string, error)
	GraphMetrics(ctx context.Context) (GraphMetrics, error)
	// HasStructuralChanges reports whether the index should be refreshed.
	HasStructuralChanges(ctx context.Context) (bool, error)
}

// SectorSummary is a persisted per-sector snapshot consulted by the
// scheduler for convergence and scope decisions.
type SectorSummary struct {
	Name              string
	MinConfidence     int
	CompletionRate    float64
	SuggestedAction   string // continue | widen_scope | deepen | stop
}

// SectorStore persists and rotates multi-repo/multi-sector state.
type SectorStore interface {
	CurrentSector(ctx context.Context) (SectorSummary, bool, error)
	RotateSector(ctx context.Context) error
	SaveSectorState(ctx context.Context, summary SectorSummary) error
}
