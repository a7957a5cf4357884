// Package todo tracks outstanding task items parsed from assistant text
// and gates session termination on them.
package todo

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/atreides/internal/session"
)

// Status of a tracked item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Item is one tracked task.
type Item struct {
	// ID is a stable hash of the normalized description.
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// checkboxLine matches markdown task-list lines with any indentation and
// -, *, + bullets. Group 1 is the status cell, group 2 the description.
var checkboxLine = regexp.MustCompile(`^\s*[-*+]\s*\[([ xX✓✔\-~])\]\s*(.+?)\s*$`)

// completionPhrases capture natural-language completion claims. Group 1
// is the phrase fuzzy-matched against pending items.
var completionPhrases = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:i(?:'ve| have)?\s+)?completed\s+(?:the\s+)?(.{3,80}?)(?:\s+task)?\s*(?:[.!\n]|$)`),
	regexp.MustCompile(`(?i)\b(?:i(?:'ve| have)?\s+)?finished\s+(?:the\s+)?(.{3,80}?)(?:\s+task)?\s*(?:[.!\n]|$)`),
	regexp.MustCompile(`(?i)\bmarked\s+(.{3,80}?)\s+as\s+(?:done|complete[d]?)\b`),
	regexp.MustCompile(`(?i)\b(.{3,80}?)\s+is\s+(?:now\s+)?(?:done|complete[d]?)\s*(?:[.!\n]|$)`),
	regexp.MustCompile(`(?i)\bdone\s+with\s+(?:the\s+)?(.{3,80}?)\s*(?:[.!\n]|$)`),
}

// stopWords are excluded from the word-overlap heuristic.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "to": true, "for": true,
	"of": true, "in": true, "on": true, "and": true, "with": true,
	"task": true, "item": true, "todo": true,
}

// Gate is the verdict on whether a session may stop.
type Gate struct {
	Allow   bool   `json:"allow"`
	Reason  string `json:"reason,omitempty"`
	Pending int    `json:"pending"`
}

// Tracker maintains per-session task lists.
type Tracker struct {
	store  *session.Store
	logger *zap.Logger

	mu    sync.Mutex
	lists map[string][]*Item
	index map[string]map[string]*Item // session id → item id → item
}

// NewTracker creates a tracker over the given store.
func NewTracker(store *session.Store, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		store:  store,
		logger: logger.Named("todo"),
		lists:  make(map[string][]*Item),
		index:  make(map[string]map[string]*Item),
	}
}

// ItemID returns the stable content hash for a description: sha256 of
// the lower-cased, whitespace-collapsed text.
func ItemID(description string) string {
	sum := sha256.Sum256([]byte(normalizeDescription(description)))
	return hex.EncodeToString(sum[:8])
}

func normalizeDescription(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Detect scans assistant text for checkbox items and completion phrases.
// Any internal failure fails open: the scan reports zero changes and the
// panic is logged. Returns counts of created and completed items.
func (t *Tracker) Detect(sessionID, text string) (created, completed int) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("todo detection panicked, failing open",
				zap.Any("panic", r),
				zap.String("session_id", sessionID))
			created, completed = 0, 0
		}
	}()

	if strings.TrimSpace(text) == "" {
		return 0, 0
	}

	t.mu.Lock()
	created, completed = t.scanCheckboxes(sessionID, text)
	completed += t.scanCompletionPhrases(sessionID, text)
	total, done := t.countsLocked(sessionID)
	t.mu.Unlock()

	if created > 0 || completed > 0 {
		t.store.UpdateTodos(sessionID, total, done)
		t.logger.Debug("todo scan",
			zap.String("session_id", sessionID),
			zap.Int("created", created),
			zap.Int("completed", completed))
	}
	return created, completed
}

// scanCheckboxes handles markdown task lines. Caller holds the lock.
func (t *Tracker) scanCheckboxes(sessionID, text string) (created, completed int) {
	for _, line := range strings.Split(text, "\n") {
		m := checkboxLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		cell, desc := m[1], m[2]
		switch cell {
		case " ":
			if t.addLocked(sessionID, desc, StatusPending) {
				created++
			}
		case "-", "~":
			if t.addLocked(sessionID, desc, StatusInProgress) {
				created++
			}
		default: // x, X, checkmark glyphs
			if t.completeByDescriptionLocked(sessionID, desc) {
				completed++
			}
		}
	}
	return created, completed
}

// scanCompletionPhrases handles natural-language completion claims.
// Caller holds the lock.
func (t *Tracker) scanCompletionPhrases(sessionID, text string) int {
	completed := 0
	for _, re := range completionPhrases {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			phrase := strings.TrimSpace(m[1])
			if phrase == "" {
				continue
			}
			if item := t.fuzzyMatchPendingLocked(sessionID, phrase); item != nil {
				t.markCompleteLocked(item)
				completed++
			}
		}
	}
	return completed
}

// addLocked creates an item unless a duplicate exists, deduplicated both
// by content-hash id and by case-insensitive exact description.
func (t *Tracker) addLocked(sessionID, description string, status Status) bool {
	idx, ok := t.index[sessionID]
	if !ok {
		idx = make(map[string]*Item)
		t.index[sessionID] = idx
	}

	id := ItemID(description)
	if _, exists := idx[id]; exists {
		return false
	}
	norm := normalizeDescription(description)
	for _, item := range t.lists[sessionID] {
		if normalizeDescription(item.Description) == norm {
			return false
		}
	}

	item := &Item{
		ID:          id,
		Description: description,
		Status:      status,
		CreatedAt:   time.Now(),
	}
	t.lists[sessionID] = append(t.lists[sessionID], item)
	idx[id] = item
	return true
}

// completeByDescriptionLocked marks the first item whose normalized
// description matches exactly.
func (t *Tracker) completeByDescriptionLocked(sessionID, description string) bool {
	norm := normalizeDescription(description)
	for _, item := range t.lists[sessionID] {
		if item.Status == StatusCompleted {
			continue
		}
		if normalizeDescription(item.Description) == norm {
			t.markCompleteLocked(item)
			return true
		}
	}
	return false
}

// fuzzyMatchPendingLocked returns the first pending item matching the
// phrase by bidirectional substring containment or ≥50% overlap of the
// smaller significant-word set.
func (t *Tracker) fuzzyMatchPendingLocked(sessionID, phrase string) *Item {
	normPhrase := normalizeDescription(phrase)
	phraseWords := significantWords(normPhrase)

	for _, item := range t.lists[sessionID] {
		if item.Status == StatusCompleted {
			continue
		}
		normItem := normalizeDescription(item.Description)
		if strings.Contains(normItem, normPhrase) || strings.Contains(normPhrase, normItem) {
			return item
		}
		if wordOverlap(phraseWords, significantWords(normItem)) {
			return item
		}
	}
	return nil
}

func (t *Tracker) markCompleteLocked(item *Item) {
	now := time.Now()
	item.Status = StatusCompleted
	item.CompletedAt = &now
}

func significantWords(normalized string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(normalized) {
		if len(w) > 2 && !stopWords[w] {
			words[w] = true
		}
	}
	return words
}

// wordOverlap reports whether at least half of the smaller set's words
// appear in the other set.
func wordOverlap(a, b map[string]bool) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	smaller, larger := a, b
	if len(b) < len(a) {
		smaller, larger = b, a
	}
	shared := 0
	for w := range smaller {
		if larger[w] {
			shared++
		}
	}
	return shared*2 >= len(smaller)
}

// Complete marks an item done by id or description. Returns false when
// no matching pending item exists.
func (t *Tracker) Complete(sessionID, idOrDescription string) bool {
	t.mu.Lock()
	var done bool
	if idx, ok := t.index[sessionID]; ok {
		if item, ok := idx[idOrDescription]; ok && item.Status != StatusCompleted {
			t.markCompleteLocked(item)
			done = true
		}
	}
	if !done {
		done = t.completeByDescriptionLocked(sessionID, idOrDescription)
	}
	total, completed := t.countsLocked(sessionID)
	t.mu.Unlock()

	if done {
		t.store.UpdateTodos(sessionID, total, completed)
	}
	return done
}

// Cancel removes an item by id or description. Returns false when no
// matching item exists.
func (t *Tracker) Cancel(sessionID, idOrDescription string) bool {
	t.mu.Lock()
	id := idOrDescription
	if _, ok := t.index[sessionID][id]; !ok {
		id = ItemID(idOrDescription)
	}
	item, ok := t.index[sessionID][id]
	if !ok {
		t.mu.Unlock()
		return false
	}
	delete(t.index[sessionID], id)
	list := t.lists[sessionID]
	for i, it := range list {
		if it == item {
			t.lists[sessionID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	total, completed := t.countsLocked(sessionID)
	t.mu.Unlock()

	t.store.UpdateTodos(sessionID, total, completed)
	return true
}

// Items returns a copy of a session's items in creation order.
func (t *Tracker) Items(sessionID string) []Item {
	t.mu.Lock()
	defer t.mu.Unlock()
	list := t.lists[sessionID]
	out := make([]Item, len(list))
	for i, item := range list {
		out[i] = *item
	}
	return out
}

// Pending returns a session's pending and in-progress items.
func (t *Tracker) Pending(sessionID string) []Item {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Item
	for _, item := range t.lists[sessionID] {
		if item.Status != StatusCompleted {
			out = append(out, *item)
		}
	}
	return out
}

// CheckPending gates session termination: allow when there are no items
// or none pending. Any internal failure fails open; task tracking must
// never be the reason a session cannot end.
func (t *Tracker) CheckPending(sessionID string) (gate Gate) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("todo gate panicked, failing open",
				zap.Any("panic", r),
				zap.String("session_id", sessionID))
			gate = Gate{Allow: true}
		}
	}()

	pending := t.Pending(sessionID)
	if len(pending) == 0 {
		return Gate{Allow: true}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d task(s) still pending:\n", len(pending))
	for _, item := range pending {
		fmt.Fprintf(&b, "- [ ] %s\n", item.Description)
	}
	return Gate{
		Allow:   false,
		Reason:  strings.TrimRight(b.String(), "\n"),
		Pending: len(pending),
	}
}

// Restore recreates preserved pending items after compaction, keeping
// existing items intact.
func (t *Tracker) Restore(sessionID string, items []Item) {
	t.mu.Lock()
	for _, item := range items {
		status := item.Status
		if status == "" {
			status = StatusPending
		}
		if status != StatusCompleted {
			t.addLocked(sessionID, item.Description, status)
		}
	}
	total, completed := t.countsLocked(sessionID)
	t.mu.Unlock()

	t.store.UpdateTodos(sessionID, total, completed)
}

// Sweep removes all state for a session.
func (t *Tracker) Sweep(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lists, sessionID)
	delete(t.index, sessionID)
}

func (t *Tracker) countsLocked(sessionID string) (total, completed int) {
	for _, item := range t.lists[sessionID] {
		total++
		if item.Status == StatusCompleted {
			completed++
		}
	}
	return total, completed
}
