package workers

import (
	"github.com/boe-ingest/pipeline/internal/domain"
)

// DiffVersions compares successive versions of the same document's content
// tree and folds added/modified/removed article changes into event,
// applying the removed > modified > added precedence when an article
// already carries a recorded kind. oldTree may be nil for a document's
// first-seen version, in which case every article counts as added.
//
// Grounded on change_handler.py's _detect_changes: articles are matched by
// (type, name) rather than by position, since reflowed documents can
// reorder or renumber siblings between versions.
func DiffVersions(oldTree, newTree *domain.ContentTree, event *domain.ChangeEvent) {
	if newTree == nil {
		return
	}
	if oldTree == nil {
		for _, h := range newTree.Articles() {
			n := newTree.Node(h)
			event.RecordChange(articleKey(n), domain.ChangeAdded)
		}
		return
	}

	oldByKey := make(map[string]domain.NodeHandle)
	for _, h := range oldTree.Articles() {
		oldByKey[articleKey(oldTree.Node(h))] = h
	}
	newByKey := make(map[string]domain.NodeHandle)
	for _, h := range newTree.Articles() {
		newByKey[articleKey(newTree.Node(h))] = h
	}

	for key, newH := range newByKey {
		newNode := newTree.Node(newH)
		oldH, existed := oldByKey[key]
		if !existed {
			event.RecordChange(key, domain.ChangeAdded)
			continue
		}
		oldNode := oldTree.Node(oldH)
		if oldNode.Text != newNode.Text {
			event.RecordChange(key, domain.ChangeModified)
		}
	}

	for key := range oldByKey {
		if _, stillPresent := newByKey[key]; !stillPresent {
			event.RecordChange(key, domain.ChangeRemoved)
		}
	}
}

// articleKey identifies an article across versions by its structural
// identity (type + name), the same matching rule change_handler.py uses
// ("c.name == n_child.name and c.node_type == n_child.node_type").
func articleKey(n *domain.Node) string {
	return n.Type.String() + ":" + n.Name
}

// ReconcileVersions diffs each successor against its predecessor in the
// order versions are given, returning one ChangeEvent per (target, source)
// pair with every affected article folded in. It does not sort versions;
// the order of the slice is taken as the chronological order.
func ReconcileVersions(targetDocID string, versions []*domain.Document) []*domain.ChangeEvent {
	var events []*domain.ChangeEvent
	if len(versions) < 2 {
		return events
	}
	for i := 1; i < len(versions); i++ {
		prev, cur := versions[i-1], versions[i]
		event := &domain.ChangeEvent{
			ID:          domain.ChangeEventID(targetDocID, cur.ID),
			SourceDocID: cur.ID,
			TargetDocID: targetDocID,
		}
		DiffVersions(prev.ContentTree, cur.ContentTree, event)
		events = append(events, event)
	}
	return events
}
