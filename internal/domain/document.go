package domain

import "time"

// Metadata carries the bibliographic fields attached to a Normativa.
type Metadata struct {
	Titulo       string
	FechaPub     time.Time
	Rango        string // code into the Rango taxonomy
	Departamento string // code into the Departamento taxonomy
	Materias     []string
}

// AnalysisRef is one directional reference recorded in a document's
// analytical metadata (as opposed to an inline textual citation).
type AnalysisRef struct {
	TargetDocID string
	Relation    string // e.g. "deroga", "modifica", "afecta"
}

// Analysis groups a document's prior/posterior analytical references.
type Analysis struct {
	Prior     []AnalysisRef
	Posterior []AnalysisRef
}

// Document is a single BOE law, already reconciled to its latest version at
// parse time; version history against earlier ingests lives in ChangeEvents.
type Document struct {
	ID          string
	Metadata    Metadata
	Analysis    Analysis
	ContentTree *ContentTree
}

// ChangeKind classifies how a source document affected an article in a
// target document. Ordered so that the zero value is the lowest-precedence
// kind, matching "removed > modified > added".
type ChangeKind int

const (
	ChangeAdded ChangeKind = iota
	ChangeModified
	ChangeRemoved
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeModified:
		return "modified"
	case ChangeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Precedence returns the relative precedence of k; higher wins when an
// article carries more than one kind against the same event.
func (k ChangeKind) Precedence() int { return int(k) }

// ChangeEvent records that SourceDocID altered articles in TargetDocID.
// Its ID is derived deterministically from (target, source) so repeated
// ingests of the same pair merge onto one event instead of duplicating it.
type ChangeEvent struct {
	ID                string
	SourceDocID       string
	TargetDocID       string
	AffectedArticleID map[string]ChangeKind // article id -> winning kind
}

// ChangeEventID derives the deterministic id for a (target, source) pair.
func ChangeEventID(targetDocID, sourceDocID string) string {
	return "chg:" + targetDocID + ":" + sourceDocID
}

// RecordChange folds a change kind for an article into the event, applying
// the removed > modified > added precedence when the article already has a
// recorded kind.
func (e *ChangeEvent) RecordChange(articleID string, kind ChangeKind) {
	if e.AffectedArticleID == nil {
		e.AffectedArticleID = make(map[string]ChangeKind)
	}
	if existing, ok := e.AffectedArticleID[articleID]; !ok || kind.Precedence() > existing.Precedence() {
		e.AffectedArticleID[articleID] = kind
	}
}

// TaxonomyClass names one of the three closed taxonomies preloaded before
// ingestion starts.
type TaxonomyClass string

const (
	TaxonomyMateria      TaxonomyClass = "Materia"
	TaxonomyDepartamento TaxonomyClass = "Departamento"
	TaxonomyRango        TaxonomyClass = "Rango"
)

// TaxonomyEntry is one closed-vocabulary dictionary node.
type TaxonomyEntry struct {
	Code  int
	Label string
}
