// Package swarmtypes defines the shared data model of the swarm runtime:
// goals, tasks, agent identity, personality, outputs, memory records, and
// the consensus/conflict vocabulary. Every other internal/swarm package
// imports this one; it imports none of them.
package swarmtypes

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// GoalHash is the 256-bit content hash of a Goal, used as the deterministic
// seed for agent-id derivation and personality sampling.
type GoalHash [32]byte

// HashGoal content-hashes goal text into a GoalHash.
func HashGoal(text string) GoalHash {
	return sha256.Sum256([]byte(text))
}

// Goal is the natural-language input to the swarm.
type Goal struct {
	Text string
	Hash GoalHash
}

// NewGoal builds a Goal and computes its hash.
func NewGoal(text string) Goal {
	return Goal{Text: text, Hash: HashGoal(text)}
}

// Capability is a closed-set tag identifying what an agent specializes in.
// The source material spells some of these inconsistently (AuthArchitect vs
// Refactoring for a design task); CanonicalizeCapability maps legacy spellings onto
// this fixed set rather than leaving call sites to guess intent.
type Capability string

const (
	CapabilityArchitecture  Capability = "architecture"
	CapabilityAPIDesign     Capability = "api_design"
	CapabilityCodeGen       Capability = "code_generation"
	CapabilityTesting       Capability = "testing"
	CapabilityDocumentation Capability = "documentation"
	CapabilityRefactoring   Capability = "refactoring"
	CapabilitySecurityAudit Capability = "security_audit"
)

// legacyCapabilityAliases maps historically inconsistent spellings (seen
// across the source material's modules) to the canonical set above.
var legacyCapabilityAliases = map[string]Capability{
	"autharchitect":    CapabilityArchitecture,
	"auth_architect":   CapabilityArchitecture,
	"design":           CapabilityArchitecture,
	"apicoder":         CapabilityAPIDesign,
	"api_coder":        CapabilityAPIDesign,
	"coder":            CapabilityCodeGen,
	"implementation":   CapabilityCodeGen,
	"testwriter":       CapabilityTesting,
	"test_writer":      CapabilityTesting,
	"docwriter":        CapabilityDocumentation,
	"doc_writer":       CapabilityDocumentation,
	"securityauditor":  CapabilitySecurityAudit,
	"security_auditor": CapabilitySecurityAudit,

	// "Refactoring" used as the label of a design task.
	"refactoring_design": CapabilityArchitecture,
}

// CanonicalizeCapability maps a raw capability string (possibly a legacy
// spelling) onto the canonical Capability set. Unknown strings pass through
// in normalized form (lower-cased, spaces and hyphens turned into
// underscores) as a Capability so new capabilities can still be
// introduced without a code change at every call site.
func CanonicalizeCapability(raw string) Capability {
	if c, ok := legacyCapabilityAliases[normalizeCapabilityKey(raw)]; ok {
		return c
	}
	for _, c := range []Capability{
		CapabilityArchitecture, CapabilityAPIDesign, CapabilityCodeGen,
		CapabilityTesting, CapabilityDocumentation, CapabilityRefactoring,
		CapabilitySecurityAudit,
	} {
		if string(c) == normalizeCapabilityKey(raw) {
			return c
		}
	}
	return Capability(normalizeCapabilityKey(raw))
}

func normalizeCapabilityKey(raw string) string {
	out := make([]byte, 0, len(raw))
	for _, r := range raw {
		switch {
		case r >= 'A' && r <= 'Z':
			out = append(out, byte(r-'A'+'a'))
		case r == ' ' || r == '-':
			out = append(out, '_')
		default:
			out = append(out, byte(r))
		}
	}
	return string(out)
}

// TaskState is the terminal/non-terminal lifecycle of a Task.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskBlocked   TaskState = "blocked"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
	TaskAbandoned TaskState = "abandoned"
)

// IsTerminal reports whether a TaskState is one of the three terminal states
// named in the data model's invariant: every Task reaches exactly one of
// Completed, Failed, Abandoned.
func (s TaskState) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskAbandoned
}

// Task is a unit of scheduled work with dependency constraints.
type Task struct {
	ID                 string
	Description        string
	Capability         Capability
	Priority           float64
	EstimatedDuration  time.Duration
	DependsOn          []string
	AntiDependsOn       []string
	State              TaskState
	AssignedAgent       AgentID
	AssignedAt          time.Time
}

// AgentID is a deterministic function of (goal-hash, capability,
// replica-index). It is never a random identifier: stability across re-runs
// on the same goal is required so logs and stored episodes stay comparable.
type AgentID [32]byte

// DeriveAgentID computes the deterministic agent identity. The
// Coordinator's spawnAgent passes the lowest replica index not yet taken,
// so each replica of the same (goal, capability) pair gets its own AgentID.
func DeriveAgentID(goalHash GoalHash, capability Capability, replica int) AgentID {
	h := sha256.New()
	h.Write(goalHash[:])
	h.Write([]byte(capability))
	h.Write([]byte{byte(replica >> 24), byte(replica >> 16), byte(replica >> 8), byte(replica)})
	var id AgentID
	copy(id[:], h.Sum(nil))
	return id
}

func (a AgentID) String() string {
	return hex.EncodeToString(a[:8])
}

// Less gives AgentID a total order, used for the Coordinator's stable
// lower-agent-id tie-break rule.
func (a AgentID) Less(b AgentID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// CollaborationStyle governs how an agent participates beyond its own task.
type CollaborationStyle string

const (
	StyleLeader      CollaborationStyle = "leader"
	StyleContributor CollaborationStyle = "contributor"
	StyleSpecialist  CollaborationStyle = "specialist"
	StyleReviewer    CollaborationStyle = "reviewer"
)

// AgentPersonality is derived pseudorandomly from goal-hash XOR
// capability-tag, so distinct capabilities yield distinct personalities on
// the same goal while staying reproducible.
type AgentPersonality struct {
	Creativity         float64
	Thoroughness       float64
	RiskTolerance      float64
	CollaborationStyle CollaborationStyle
}

// DerivePersonality samples a personality deterministically from the goal
// hash and capability. It XORs the goal hash with a hash of the capability
// string to diverge per-capability, then draws four fixed byte-offsets from
// the resulting digest as its entropy source.
func DerivePersonality(goalHash GoalHash, capability Capability) AgentPersonality {
	capHash := sha256.Sum256([]byte(capability))
	var mixed [32]byte
	for i := range mixed {
		mixed[i] = goalHash[i] ^ capHash[i]
	}
	byteToUnit := func(b byte) float64 { return float64(b) / 255.0 }
	styles := []CollaborationStyle{StyleLeader, StyleContributor, StyleSpecialist, StyleReviewer}
	return AgentPersonality{
		Creativity:         byteToUnit(mixed[0]),
		Thoroughness:       byteToUnit(mixed[1]),
		RiskTolerance:      byteToUnit(mixed[2]),
		CollaborationStyle: styles[int(mixed[3])%len(styles)],
	}
}

// AgentStatus is the lifecycle state of a live Agent, owned exclusively by
// the Coordinator and mutated only by the agent's own task loop and by the
// Balancer during replacement.
type AgentStatus string

const (
	AgentIdle        AgentStatus = "idle"
	AgentRunning     AgentStatus = "running"
	AgentBlocked     AgentStatus = "blocked"
	AgentCompleted   AgentStatus = "completed"
	AgentFailed      AgentStatus = "failed"
	AgentQuarantined AgentStatus = "quarantined"
)

// AgentRecord is the Coordinator's bookkeeping view of a live agent.
type AgentRecord struct {
	ID                  AgentID
	Capability          Capability
	Personality         AgentPersonality
	AssignedTask        string
	Status              AgentStatus
	LastHeartbeat       time.Time
	TaskCompletionCount int
	TaskFailureCount    int
	MovingAvgLatencyMs  float64
	ReplicaIndex        int
}

// ExtractedFile is one file recovered from an LLM response by the parser.
type ExtractedFile struct {
	Path     string
	Language string
	Body     string
	Partial  bool
}

// AgentOutput is the full result of one Agent's execution of its Task.
type AgentOutput struct {
	AgentID       AgentID
	TaskID        string
	Content       string
	Files         []ExtractedFile
	ThinkingTrace string
	TokenCount    int
	WallDuration  time.Duration
}

// MemoryEntry is a working-layer record: opaque bytes with a TTL and
// provenance, removed by the background sweeper once expired.
type MemoryEntry struct {
	Key       string
	Value     []byte
	WrittenBy AgentID
	WrittenAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the entry is past its TTL as of now.
func (e MemoryEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Episode is an episodic-memory record: one event in execution history.
type Episode struct {
	ID             string
	Timestamp      time.Time
	Category       string
	Description    string
	AgentsInvolved []AgentID
	Outcome        string
}

// Concept is a semantic-memory record: an accepted design decision or fact.
type Concept struct {
	ID         string
	Name       string
	Definition string
	Related    []string
	Confidence float64
}

// Pattern is a procedural-memory record: a reusable strategy with tracked
// success statistics.
type Pattern struct {
	ID            string
	Title         string
	Description   string
	CodeTemplate  string
	ApplicableTo  []string
	SuccessRate   float64
	UsageCount    int
}

// Vote is an append-only ballot cast on a Proposal.
type VoteChoice string

const (
	VoteApprove VoteChoice = "approve"
	VoteReject  VoteChoice = "reject"
	VoteAbstain VoteChoice = "abstain"
)

type Vote struct {
	ProposalID     string
	Voter          AgentID
	Choice         VoteChoice
	AuthorityWeight float64
	CastAt         time.Time
}

// ProposalOutcome is the terminal decision of a Proposal.
type ProposalOutcome string

const (
	ProposalOpen      ProposalOutcome = "open"
	ProposalAccepted  ProposalOutcome = "accepted"
	ProposalRejected  ProposalOutcome = "rejected"
	ProposalAbandoned ProposalOutcome = "abandoned"
)

// Proposal carries a design choice up for continuous-consensus vote.
type Proposal struct {
	ID        string
	Issuer    AgentID
	Topic     string
	Payload   string
	OpenedAt  time.Time
	Outcome   ProposalOutcome
	DecidedAt time.Time
}

// ConflictType is the closed set of conflict kinds the engine detects.
type ConflictType string

const (
	ConflictSharedFileWrite           ConflictType = "shared_file_write"
	ConflictConflictingLibraryChoice  ConflictType = "conflicting_library_choice"
	ConflictIncompatibleAPIShape      ConflictType = "incompatible_api_shape"
	ConflictAntiDependencyCooccurrence ConflictType = "anti_dependency_cooccurrence"
)

// Conflict is a detected resource conflict between two or more agents.
type Conflict struct {
	ID              string
	DetectingAgent  AgentID
	Type            ConflictType
	Participants    []AgentID
	Evidence        string
	Timestamp       time.Time
	Resolved        bool
	ResolutionNote  string
}

// ExecutionResult is the top-level output of a swarm run.
type ExecutionResult struct {
	AgentCount        int
	Outputs           []AgentOutput // ordered by AgentID
	ConflictsDetected int
	ConflictsResolved int
	ConsensusRounds   int
	ElapsedMs         int64
	BlockedTasks      []string
	Abandoned         bool
}

// GoString renders an AgentID-keyed identity for logging without leaking the
// full 32-byte digest.
func (a AgentID) GoString() string {
	return fmt.Sprintf("AgentID(%s)", a.String())
}
