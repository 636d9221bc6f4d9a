package engine

import "sort"

// Decision is the notification tracker's verdict for one observed
// snapshot. The zero value means "do not notify".
type Decision struct {
	Notify bool
	Count  int
	NewIDs []int64
}

// Tracker decides, once per accepted snapshot, whether genuinely new
// unread messages arrived. It remembers the unread ids it has already
// seen so the same message can never trigger two notifications.
//
// The tracker must only ever observe successful snapshots. Skipping
// failed polls is what keeps a transient outage from turning old
// messages into a notification burst on recovery.
type Tracker struct {
	seen        map[int64]struct{}
	initialized bool
}

// NewTracker returns an uninitialized tracker. Its first observation is
// treated as the session's cold start and never notifies.
func NewTracker() *Tracker {
	return &Tracker{seen: make(map[int64]struct{})}
}

// Restore seeds the seen set from persisted state, marking the tracker
// initialized. A restored session therefore skips cold-start suppression:
// ids that were unread before the restart are already known, and anything
// beyond them notifies normally.
func (t *Tracker) Restore(ids []int64) {
	t.seen = make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		t.seen[id] = struct{}{}
	}
	t.initialized = true
}

// Observe diffs the current unread-id set against everything seen so far.
//
// The first observation of an uninitialized tracker records the set and
// stays silent: pre-existing unread messages must not fire a storm on
// login. Afterwards, any id not previously seen notifies exactly once.
// The seen set is always replaced with the current set, so ids that were
// read elsewhere drop out instead of accumulating forever.
func (t *Tracker) Observe(unreadIDs []int64) Decision {
	current := make(map[int64]struct{}, len(unreadIDs))
	for _, id := range unreadIDs {
		current[id] = struct{}{}
	}

	if !t.initialized {
		t.seen = current
		t.initialized = true
		return Decision{}
	}

	var newIDs []int64
	for id := range current {
		if _, ok := t.seen[id]; !ok {
			newIDs = append(newIDs, id)
		}
	}
	t.seen = current

	if len(newIDs) == 0 {
		return Decision{}
	}

	sort.Slice(newIDs, func(i, j int) bool { return newIDs[i] < newIDs[j] })
	return Decision{Notify: true, Count: len(newIDs), NewIDs: newIDs}
}

// SeenIDs returns the currently remembered unread ids, sorted, for
// handing to a persistence collaborator.
func (t *Tracker) SeenIDs() []int64 {
	ids := make([]int64, 0, len(t.seen))
	for id := range t.seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
