// Package types defines the core data structures for the mnemo memory layer:
// memory units, the association graph between them, and the quality scores
// attached to generated responses.
package types

import "time"

// Role identifies what kind of content a memory unit was created from.
type Role string

const (
	// RoleUser is a conversation turn written by the user.
	RoleUser Role = "user"

	// RoleAssistant is a generated response. Only assistant units enter the
	// quality refinement pipeline.
	RoleAssistant Role = "assistant"

	// RoleDocument is a chunk of an uploaded document.
	RoleDocument Role = "document"
)

// Category is a content category derived from rule-based heuristics.
type Category string

const (
	// CategoryPersonal covers identity facts: name, job, family, location.
	CategoryPersonal Category = "personal"

	// CategoryPreference covers likes, dislikes, and opinions.
	CategoryPreference Category = "preference"

	// CategoryFactual covers specific details: dates, numbers, addresses.
	CategoryFactual Category = "factual"

	// CategoryTemporal covers content referencing future events or reminders.
	CategoryTemporal Category = "temporal"

	// CategoryGeneral is the fallback for everything else.
	CategoryGeneral Category = "general"
)

// Importance is a coarse tag recomputed during consolidation from access
// patterns. High-importance units are protected from pruning.
type Importance string

const (
	ImportanceNormal Importance = "normal"
	ImportanceMedium Importance = "medium"
	ImportanceHigh   Importance = "high"
)

// AssociationType classifies how an association edge was created.
type AssociationType string

const (
	// AssociationAuto is created during consolidation when two units'
	// embeddings exceed the similarity threshold.
	AssociationAuto AssociationType = "auto"

	// AssociationTopicBased is created when two units share explicit topics.
	AssociationTopicBased AssociationType = "topic_based"

	// AssociationContextual is created by contextual clustering around a
	// query embedding.
	AssociationContextual AssociationType = "contextual"

	// AssociationCoAccess is created or strengthened when two units are
	// accessed within a short time window of each other.
	AssociationCoAccess AssociationType = "co_access"
)

// ValidAssociationTypes lists all valid association types for validation.
var ValidAssociationTypes = []AssociationType{
	AssociationAuto,
	AssociationTopicBased,
	AssociationContextual,
	AssociationCoAccess,
}

// IsValidAssociationType checks if the given association type is valid.
func IsValidAssociationType(t AssociationType) bool {
	for _, valid := range ValidAssociationTypes {
		if valid == t {
			return true
		}
	}
	return false
}

// MemoryUnit is one stored piece of content with its embedding and usage
// metadata. Every unit belongs to exactly one owner; cross-owner access is
// forbidden by construction (every store query is parameterized by owner).
type MemoryUnit struct {
	// ID is the unique identifier (UUID).
	ID string

	// OwnerID scopes the unit to a single user.
	OwnerID string

	// Content is the raw text of the conversation turn or document chunk.
	Content string

	// Role records what the content came from (user, assistant, document).
	Role Role

	// Embedding is the fixed-length vector for the content. An all-zero
	// vector is the documented sentinel for a failed embedding call: the
	// unit stays stored but is effectively unretrievable by similarity.
	Embedding []float64

	// Category is derived from content heuristics at store time and
	// recomputed during consolidation.
	Category Category

	// Importance is recomputed during consolidation from access-count bands.
	Importance Importance

	// Topics are explicit topic tags extracted from the content, used for
	// topic-based association linking.
	Topics []string

	// Confidence is in [0.0, 1.0]. It trends upward with sustained use and
	// decays otherwise; recomputed as a weighted blend during consolidation.
	Confidence float64

	// AccessCount is incremented each time the unit is returned from
	// retrieval. Never negative.
	AccessCount int

	CreatedAt      time.Time
	LastAccessedAt *time.Time

	// Quality holds the R(t)/H(t) scores for assistant units. Nil for units
	// that have never entered the scoring pipeline.
	Quality *QualityScore
}

// Touch records an access at the given instant.
func (u *MemoryUnit) Touch(now time.Time) {
	u.AccessCount++
	u.LastAccessedAt = &now
}

// QualityState identifies where a response sits in the refinement pipeline.
type QualityState string

const (
	// QualityUnscored means no automated evaluation has happened yet.
	QualityUnscored QualityState = "unscored"

	// QualityRScored means the automated R(t) score is present but no final
	// score has been derived.
	QualityRScored QualityState = "r_scored"

	// QualityFinalScored means a final quality score has been computed from
	// R(t) and, when present, H(t).
	QualityFinalScored QualityState = "final_scored"
)

// QualityScore holds the two-stage refinement scores for a generated
// response. FinalScore is always derived from RTScore and HTScore, never set
// directly.
type QualityScore struct {
	// RTScore is the automated evaluator rating on the 1-10 scale.
	RTScore *float64

	// HTScore is the optional delayed human feedback rating, same scale.
	HTScore *float64

	// FinalScore is the fused quality score, recomputed whenever RTScore or
	// HTScore changes.
	FinalScore *float64

	EvaluatedAt *time.Time
	FeedbackAt  *time.Time
	FinalizedAt *time.Time
}

// State derives the pipeline state from which scores are populated.
func (q *QualityScore) State() QualityState {
	switch {
	case q == nil || q.RTScore == nil:
		return QualityUnscored
	case q.FinalScore == nil:
		return QualityRScored
	default:
		return QualityFinalScored
	}
}

// AssociationEdge is a weighted, undirected link between two memory units
// owned by the same user. Edges are stored in canonical order (UnitA < UnitB)
// so there is at most one edge per pair; re-creation merges rather than
// duplicates.
type AssociationEdge struct {
	OwnerID string

	// UnitA and UnitB are the endpoint unit IDs in canonical order.
	UnitA string
	UnitB string

	// Strength is in [0.0, 1.0]. It decays multiplicatively each maintenance
	// cycle and the edge is deleted when it falls below the weak floor.
	Strength float64

	Type AssociationType

	// SharedTopics is the topic overlap count for topic_based edges, zero
	// otherwise.
	SharedTopics int

	CreatedAt          time.Time
	LastStrengthenedAt *time.Time
}

// Other returns the endpoint opposite to id, or "" when id is not an
// endpoint of this edge.
func (e *AssociationEdge) Other(id string) string {
	switch id {
	case e.UnitA:
		return e.UnitB
	case e.UnitB:
		return e.UnitA
	default:
		return ""
	}
}

// CanonicalPair orders two unit IDs so edge storage is symmetric:
// strength(A,B) and strength(B,A) always resolve to the same row.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// OwnerStats is the per-user aggregate recomputed at the end of each
// consolidation pass.
type OwnerStats struct {
	TotalUnits          int
	TotalEdges          int
	HighImportanceUnits int
	FrequentlyAccessed  int
	StrongEdges         int
	AvgConfidence       float64
	AvgAccessCount      float64
	TotalAccesses       int
	UpdatedAt           time.Time
}
