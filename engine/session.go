package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"designdeck/core"
)

// SessionState is the connection lifecycle of an editor session.
type SessionState string

const (
	StateDisconnected SessionState = "disconnected"
	StateJoining      SessionState = "joining"
	StateSynced       SessionState = "synced"
	StateRejoining    SessionState = "rejoining"
)

// DesignFetcher is the persistence collaborator the session consumes on
// initial load and on every post-reconnect reconciliation.
type DesignFetcher interface {
	FetchDesign(ctx context.Context, id string) (*core.Design, error)
}

// DesignSaver persists the current design on explicit user save triggers.
// Saving never happens as a side effect of applying a remote patch.
type DesignSaver interface {
	SaveDesign(ctx context.Context, design *core.Design) error
}

// ReconcileReport describes one completed authoritative reconciliation.
// DroppedLocalPatches counts local mutations made while not synced that were
// never broadcast and are gone after the wholesale replace. The session's
// policy is discard-and-report: queued offline edits are not rebroadcast.
type ReconcileReport struct {
	DesignID            string
	Elements            int
	DroppedLocalPatches int
}

// SessionConfig wires an EditorSession to its design and collaborators.
type SessionConfig struct {
	DesignID     string
	Collaborator core.Presence // local identity: id, display name, color
	Transport    Transport
	Fetcher      DesignFetcher
	Saver        DesignSaver // optional; Save returns an error without one
	Options      Options

	// OnStateChange and OnReconcile fire outside the session's internal
	// lock; they may call back into the session.
	OnStateChange func(SessionState)
	OnReconcile   func(ReconcileReport)
}

// EditorSession binds the element store, history, presence tracker and sync
// channel to one open design.
//
// All mutation entry points — local intents, inbound patches, presence
// updates, reconciliation — are serialized through one mutex, so no two
// mutations ever race on the in-memory state. The authoritative fetch runs
// outside the lock (user edits keep flowing during the await); the wholesale
// replacement itself holds the lock, so a renderer can never observe a
// half-replaced element set.
//
// gen is a connection-epoch counter: it advances on every connect,
// disconnect and close, and in-flight reconciliations from an older epoch
// check it before touching state. That is what keeps a dangling callback
// from mutating a torn-down session.
type EditorSession struct {
	cfg  SessionConfig
	opts Options

	mu         sync.Mutex
	gen        uint64
	state      SessionState
	closed     bool
	everSynced bool
	dirty      bool
	pending    int // local patches made while not synced, never broadcast

	meta      *core.Design // metadata from the last successful fetch
	store     *ElementStore
	history   *HistoryManager
	presence  *PresenceTracker
	channel   *SyncChannel
	selection map[string]struct{}

	sweepOnce sync.Once
	sweepStop chan struct{}
}

// NewEditorSession builds a session in the Disconnected state. Call Join to
// connect; Close releases the transport.
func NewEditorSession(cfg SessionConfig) (*EditorSession, error) {
	if cfg.DesignID == "" {
		return nil, fmt.Errorf("design id is required")
	}
	if cfg.Collaborator.CollaboratorID == "" {
		return nil, fmt.Errorf("local collaborator id is required")
	}
	if cfg.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("design fetcher is required")
	}
	opts := cfg.Options.withDefaults()

	store := NewElementStore()
	s := &EditorSession{
		cfg:       cfg,
		opts:      opts,
		state:     StateDisconnected,
		store:     store,
		history:   NewHistoryManager(store.Snapshot(), opts.HistoryLimit),
		presence:  NewPresenceTracker(opts.PresenceTTL),
		channel:   NewSyncChannel(cfg.Transport, cfg.Collaborator.CollaboratorID, opts),
		selection: make(map[string]struct{}),
		sweepStop: make(chan struct{}),
	}
	s.channel.Bind(SyncCallbacks{
		OnPatch:         s.handleRemotePatch,
		OnPresence:      s.handleRemotePresence,
		OnPresenceLeave: s.handlePresenceLeave,
		OnConnect:       s.handleConnect,
		OnDisconnect:    s.handleDisconnect,
	})
	return s, nil
}

// Join dials the relay. The session reaches Synced asynchronously, once the
// transport reports connected and the authoritative fetch succeeds.
func (s *EditorSession) Join(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return core.ErrSessionClosed
	}
	s.state = StateJoining
	s.mu.Unlock()
	s.notifyState(StateJoining)

	s.sweepOnce.Do(func() { go s.sweepLoop() })

	if err := s.channel.Connect(ctx); err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		s.notifyState(StateDisconnected)
		return fmt.Errorf("connect to relay: %w", err)
	}
	return nil
}

// Close leaves the design, tears down the transport and invalidates every
// outstanding callback. Idempotent.
func (s *EditorSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.gen++
	s.state = StateDisconnected
	close(s.sweepStop)
	s.mu.Unlock()

	s.channel.BroadcastLeave()
	if err := s.channel.Leave(); err != nil {
		logrus.WithError(err).Debug("Leave on close failed")
	}
	return s.channel.Close()
}

// --- local intents -------------------------------------------------------

// CreateElement places a new element. An empty id is assigned a fresh ULID.
// Opacity defaults to fully opaque when left zero.
func (s *EditorSession) CreateElement(el core.Element) (core.Element, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return core.Element{}, core.ErrSessionClosed
	}
	if el.ID == "" {
		el.ID = ulid.Make().String()
	}
	if el.Opacity == 0 {
		el.Opacity = 1
	}
	s.store.Create(el)
	patch := core.Patch{Kind: core.PatchCreate, ElementID: el.ID, Element: &el}
	s.afterLocalMutation(patch)
	s.mu.Unlock()
	return el, nil
}

// UpdateElement merges a field set into an element. Returns false without
// error when the element is unknown — under concurrent editing that is an
// expected race with a remote delete, not a failure.
func (s *EditorSession) UpdateElement(id string, fields core.FieldSet) (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, core.ErrSessionClosed
	}
	if !s.store.Update(id, fields) {
		s.mu.Unlock()
		logrus.WithField("element_id", id).Debug("Update of unknown element ignored")
		return false, nil
	}
	f := fields
	patch := core.Patch{Kind: core.PatchUpdate, ElementID: id, Fields: &f}
	s.afterLocalMutation(patch)
	s.mu.Unlock()
	return true, nil
}

// DeleteElement removes an element. Unknown ids are a no-op.
func (s *EditorSession) DeleteElement(id string) (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, core.ErrSessionClosed
	}
	if !s.store.Delete(id) {
		s.mu.Unlock()
		logrus.WithField("element_id", id).Debug("Delete of unknown element ignored")
		return false, nil
	}
	delete(s.selection, id)
	s.afterLocalMutation(core.Patch{Kind: core.PatchDelete, ElementID: id})
	s.mu.Unlock()
	return true, nil
}

// ReorderElements replaces the layer order. A non-permutation is rejected
// with core.ErrInvalidReorder and the state is untouched.
func (s *EditorSession) ReorderElements(order []string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return core.ErrSessionClosed
	}
	if err := s.store.Reorder(order); err != nil {
		s.mu.Unlock()
		return err
	}
	s.afterLocalMutation(core.Patch{Kind: core.PatchReorder, Order: append([]string(nil), order...)})
	s.mu.Unlock()
	return nil
}

// afterLocalMutation records history and broadcasts while synced; while
// disconnected or joining the edit stays local and is counted so the next
// reconciliation can report what it discarded. Caller holds s.mu.
func (s *EditorSession) afterLocalMutation(p core.Patch) {
	s.history.Record(s.store.Snapshot())
	s.dirty = true
	if s.state == StateSynced {
		if err := s.channel.BroadcastPatch(p); err != nil {
			logrus.WithError(err).Warn("Patch broadcast failed")
		}
		return
	}
	s.pending++
}

// Undo restores the previous history entry. The restoration is local only;
// history is per-user and never travels over the relay.
func (s *EditorSession) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	snap, ok := s.history.Undo()
	if !ok {
		return false
	}
	s.store.Restore(snap)
	s.pruneSelection()
	s.dirty = true
	return true
}

// Redo restores the entry undone last.
func (s *EditorSession) Redo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	snap, ok := s.history.Redo()
	if !ok {
		return false
	}
	s.store.Restore(snap)
	s.pruneSelection()
	s.dirty = true
	return true
}

// MoveCursor publishes the local collaborator's cursor position. Throttled
// by the channel; dropped updates are superseded by the next one.
func (s *EditorSession) MoveCursor(p core.Point) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return core.ErrSessionClosed
	}
	synced := s.state == StateSynced
	me := s.cfg.Collaborator.Clone()
	s.mu.Unlock()

	if !synced {
		return nil
	}
	me.Cursor = &p
	me.LastActive = time.Now()
	return s.channel.BroadcastPresence(me)
}

// Save persists the current design through the configured saver. Explicit
// trigger only; remote patches never cause a save.
func (s *EditorSession) Save(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return core.ErrSessionClosed
	}
	if s.cfg.Saver == nil {
		s.mu.Unlock()
		return fmt.Errorf("no design saver configured")
	}
	design := s.buildDesignLocked()
	s.mu.Unlock()

	if err := s.cfg.Saver.SaveDesign(ctx, design); err != nil {
		return fmt.Errorf("save design %s: %w", design.ID, err)
	}
	s.mu.Lock()
	s.dirty = false
	s.mu.Unlock()
	return nil
}

func (s *EditorSession) buildDesignLocked() *core.Design {
	design := &core.Design{
		ID:       s.cfg.DesignID,
		Elements: s.store.Elements(),
		Order:    s.store.Order(),
	}
	if s.meta != nil {
		design.Name = s.meta.Name
		design.Width = s.meta.Width
		design.Height = s.meta.Height
		design.CreatedAt = s.meta.CreatedAt
	}
	design.UpdatedAt = time.Now()
	return design
}

// --- selection -----------------------------------------------------------

// Select marks an element as selected. Unknown ids are ignored.
func (s *EditorSession) Select(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.store.Get(id); !ok {
		return false
	}
	s.selection[id] = struct{}{}
	return true
}

// Deselect removes an element from the selection.
func (s *EditorSession) Deselect(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.selection, id)
}

// ClearSelection empties the selection.
func (s *EditorSession) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection = make(map[string]struct{})
}

// SelectedIDs returns the selected element ids, sorted.
func (s *EditorSession) SelectedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.selection))
	for id := range s.selection {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// pruneSelection drops selected ids that no longer exist. Caller holds s.mu.
func (s *EditorSession) pruneSelection() {
	for id := range s.selection {
		if _, ok := s.store.Get(id); !ok {
			delete(s.selection, id)
		}
	}
}

// --- read surface for renderers ------------------------------------------

// CurrentElements returns a copy of the element map.
func (s *EditorSession) CurrentElements() map[string]core.Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Elements()
}

// CurrentOrder returns a copy of the layer order.
func (s *EditorSession) CurrentOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Order()
}

// Collaborators returns the tracked remote collaborators.
func (s *EditorSession) Collaborators() []core.Presence {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presence.All()
}

// State returns the current session state.
func (s *EditorSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dirty reports whether there are local changes not yet saved. The
// presentation layer drives its "unsaved changes" indicator from this.
func (s *EditorSession) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// CanUndo reports whether an undo is available.
func (s *EditorSession) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.CanUndo()
}

// CanRedo reports whether a redo is available.
func (s *EditorSession) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.CanRedo()
}

// PendingLocal reports how many local edits are queued unsent while not
// synced. They will be discarded and reported by the next reconciliation.
func (s *EditorSession) PendingLocal() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// --- inbound from the sync channel ---------------------------------------

func (s *EditorSession) handleRemotePatch(p core.Patch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	applied, err := s.store.ApplyPatch(p)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"origin": p.Origin,
			"error":  err,
		}).Warn("Remote reorder rejected, state unchanged")
		return
	}
	if !applied {
		logrus.WithFields(logrus.Fields{
			"origin":     p.Origin,
			"kind":       p.Kind,
			"element_id": p.ElementID,
		}).Debug("Remote patch was a no-op")
		return
	}
	if p.Kind == core.PatchDelete {
		delete(s.selection, p.ElementID)
	}
	// Remote mutations never touch history: recording them would clobber
	// the local user's redo branch.
}

func (s *EditorSession) handleRemotePresence(p core.Presence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	p.LastActive = time.Now()
	s.presence.Upsert(p)
}

func (s *EditorSession) handlePresenceLeave(collaboratorID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.presence.Remove(collaboratorID)
}

// --- connection lifecycle ------------------------------------------------

func (s *EditorSession) handleConnect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.gen++
	myGen := s.gen
	next := StateJoining
	if s.everSynced {
		next = StateRejoining
	}
	s.state = next
	s.mu.Unlock()
	s.notifyState(next)

	if err := s.channel.Join(s.cfg.DesignID); err != nil {
		logrus.WithFields(logrus.Fields{
			"design_id": s.cfg.DesignID,
			"error":     err,
		}).Warn("Room join failed, waiting for reconnect")
		return
	}
	go s.reconcile(myGen)
}

func (s *EditorSession) handleDisconnect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.state = StateDisconnected
	s.mu.Unlock()
	s.notifyState(StateDisconnected)
	logrus.WithField("design_id", s.cfg.DesignID).Info("Relay disconnected, edits queue locally")
}

// reconcile fetches the authoritative persisted document and replaces local
// state wholesale. The fetch runs without the session lock — local and
// remote mutations keep flowing while the request is in flight — but the
// replacement is one atomic step under the lock. On fetch failure the
// session keeps its local state and retries with exponential backoff until
// this connection epoch is invalidated.
func (s *EditorSession) reconcile(gen uint64) {
	backoff := s.opts.ReconcileMinBackoff
	for {
		if !s.epochValid(gen) {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		design, err := s.cfg.Fetcher.FetchDesign(ctx, s.cfg.DesignID)
		cancel()
		if err == nil {
			s.finishReconcile(gen, design)
			return
		}

		logrus.WithFields(logrus.Fields{
			"design_id": s.cfg.DesignID,
			"backoff":   backoff,
			"error":     err,
		}).Warn("Reconciliation fetch failed, retrying")
		time.Sleep(backoff)
		backoff *= 2
		if backoff > s.opts.ReconcileMaxBackoff {
			backoff = s.opts.ReconcileMaxBackoff
		}
	}
}

func (s *EditorSession) epochValid(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.gen == gen
}

func (s *EditorSession) finishReconcile(gen uint64, design *core.Design) {
	s.mu.Lock()
	if s.closed || s.gen != gen {
		s.mu.Unlock()
		return
	}
	dropped := s.pending
	s.pending = 0
	s.meta = design.Meta()
	s.store.Replace(design.Elements, design.Order)
	// Old snapshots predate the authoritative replace; undoing into them
	// would resurrect the very edits the replace just discarded.
	s.history.Reset(s.store.Snapshot())
	s.pruneSelection()
	s.dirty = false
	s.everSynced = true
	s.state = StateSynced
	report := ReconcileReport{
		DesignID:            design.ID,
		Elements:            s.store.Len(),
		DroppedLocalPatches: dropped,
	}
	s.mu.Unlock()

	if dropped > 0 {
		logrus.WithFields(logrus.Fields{
			"design_id":      design.ID,
			"dropped_edits":  dropped,
			"fetch_elements": report.Elements,
		}).Warn("Reconciliation discarded never-broadcast local edits")
	}
	s.notifyState(StateSynced)
	if s.cfg.OnReconcile != nil {
		s.cfg.OnReconcile(report)
	}

	// Announce ourselves to the room.
	me := s.cfg.Collaborator.Clone()
	me.LastActive = time.Now()
	if err := s.channel.BroadcastPresence(me); err != nil {
		logrus.WithError(err).Debug("Presence announce failed")
	}
}

func (s *EditorSession) notifyState(st SessionState) {
	if s.cfg.OnStateChange != nil {
		s.cfg.OnStateChange(st)
	}
}

func (s *EditorSession) sweepLoop() {
	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.sweepStop:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				return
			}
			stale := s.presence.Sweep(now)
			s.mu.Unlock()
			if len(stale) > 0 {
				logrus.WithField("collaborators", stale).Info("Purged stale presence entries")
			}
		}
	}
}
