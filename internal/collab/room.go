package collab

import (
	"context"
	"encoding/json"
	"time"

	"github.com/collab-docs/backend/internal/apperr"
	"github.com/collab-docs/backend/internal/cache"
	"github.com/collab-docs/backend/internal/consistency"
	"github.com/collab-docs/backend/internal/crdt"
	"github.com/collab-docs/backend/internal/logger"
	"github.com/collab-docs/backend/internal/models"
	"github.com/collab-docs/backend/internal/store"
)

// roomState is the live document's state machine.
type roomState int

const (
	stateEmpty roomState = iota
	stateLoading
	stateReady
	stateDraining
	stateGone
)

// Room is one document's live, in-memory state: a single actor owning a
// CRDT replica exclusively. All mutation happens inside Run's select
// loop via closures pushed onto mailbox, so nothing below needs its own
// lock.
type Room struct {
	id         string
	instanceID string

	store *store.Store
	cache *cache.Cache
	cfg   RoomConfig

	state     roomState
	replica   *crdt.RGA
	clients   map[string]*Client
	awareness *awarenessTable

	dirty              bool
	debounceTimer      *time.Timer
	retryAttempt       int
	drainTimer         *time.Timer
	lastActivity       time.Time
	rejectFurtherEdits bool // set once the replica exceeds its memory ceiling

	mailbox chan func()
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// RoomConfig carries the configuration knobs the room loop consults.
type RoomConfig struct {
	PersistenceDebounce time.Duration
	AwarenessTimeout    time.Duration
	DrainGrace          time.Duration
	PerConnectionRate   int
	MaxReplicaBytes     int
	MarkdownRefresh     bool
}

func newRoom(ctx context.Context, id, instanceID string, st *store.Store, ca *cache.Cache, cfg RoomConfig) *Room {
	roomCtx, cancel := context.WithCancel(ctx)
	return &Room{
		id:           id,
		instanceID:   instanceID,
		store:        st,
		cache:        ca,
		cfg:          cfg,
		state:        stateEmpty,
		replica:      crdt.New(instanceID),
		clients:      make(map[string]*Client),
		awareness:    newAwarenessTable(),
		lastActivity: time.Now(),
		mailbox:      make(chan func(), 64),
		ctx:          roomCtx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

// Run is the actor's single-goroutine loop. Every field access above this
// point happens only from inside Run (or synchronously before Run starts),
// so the replica needs no mutex of its own here.
func (r *Room) Run() {
	defer close(r.done)

	r.state = stateLoading
	if err := r.load(); err != nil {
		logger.Error("[room %s] load failed: %v", r.id, err)
		r.state = stateGone
		return
	}
	r.state = stateReady

	r.cache.Subscribe(r.id, func(msg cache.FanoutMessage) {
		select {
		case r.mailbox <- func() { r.handleFanout(msg) }:
		case <-r.ctx.Done():
		}
	})

	gcTicker := time.NewTicker(r.cfg.AwarenessTimeout / 2)
	defer gcTicker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			r.forceFlush()
			r.teardown()
			return

		case fn := <-r.mailbox:
			fn()

		case <-r.debounceFireC():
			r.handleDebounceFire()

		case <-r.drainFireC():
			r.handleDrainTick()

		case <-gcTicker.C:
			r.handleAwarenessGC()
		}
	}
}

// debounceFireC and drainFireC return the active timer's channel, or a
// nil channel (which blocks forever in a select) when no timer is armed.
func (r *Room) debounceFireC() <-chan time.Time {
	if r.debounceTimer == nil {
		return nil
	}
	return r.debounceTimer.C
}

func (r *Room) drainFireC() <-chan time.Time {
	if r.drainTimer == nil {
		return nil
	}
	return r.drainTimer.C
}

func (r *Room) load() error {
	if state, err := r.cache.GetState(r.ctx, r.id); err == nil && len(state) > 0 {
		if err := r.replica.LoadSnapshot(state); err == nil {
			return nil
		}
	}
	doc, err := r.store.EnsureBlank(r.ctx, r.id)
	if err != nil {
		return err
	}
	if len(doc.CRDTState) > 0 {
		return r.replica.LoadSnapshot(doc.CRDTState)
	}
	return nil
}

// Attach registers client synchronously, running the initial sync
// handshake before returning — this must complete before the client sees
// any edits forwarded from other peers.
func (r *Room) Attach(client *Client) error {
	result := make(chan error, 1)
	select {
	case r.mailbox <- func() { result <- r.handleAttach(client) }:
	case <-r.ctx.Done():
		return apperr.New(apperr.KindOverloaded, "room is shutting down")
	}
	select {
	case err := <-result:
		return err
	case <-r.ctx.Done():
		return apperr.New(apperr.KindOverloaded, "room is shutting down")
	}
}

func (r *Room) handleAttach(client *Client) error {
	if r.state == stateDraining {
		r.cancelDrain()
		r.state = stateReady
	}

	r.clients[client.ID] = client
	r.lastActivity = time.Now()

	sv := r.replica.StateVector()
	client.WriteFrame(TagSyncStep1, crdt.EncodeStateVector(sv))
	client.WriteFrame(TagSyncStep2, r.replica.Snapshot())

	for _, p := range r.awareness.Snapshot() {
		if diff, err := encodeAwarenessDiff(p); err == nil {
			client.WriteFrame(TagAwareness, diff)
		}
	}

	logger.Info("[room %s] client %s attached (%d total)", r.id, client.ID, len(r.clients))
	return nil
}

// Detach removes client from the room. Safe to call from any goroutine.
func (r *Room) Detach(client *Client) {
	select {
	case r.mailbox <- func() { r.handleDetach(client) }:
	case <-r.ctx.Done():
	}
}

func (r *Room) handleDetach(client *Client) {
	if _, ok := r.clients[client.ID]; !ok {
		return
	}
	delete(r.clients, client.ID)
	r.awareness.MarkDetached(client.ID)
	r.broadcastAwarenessRemoval(client.ID)
	logger.Info("[room %s] client %s detached (%d remain)", r.id, client.ID, len(r.clients))

	if len(r.clients) == 0 {
		r.armDrain()
	}
}

// ClientFrame delivers one inbound frame for processing by the room loop.
func (r *Room) ClientFrame(client *Client, tag FrameTag, data []byte) {
	select {
	case r.mailbox <- func() { r.handleClientFrame(client, tag, data) }:
	case <-r.ctx.Done():
	}
}

func (r *Room) handleClientFrame(client *Client, tag FrameTag, data []byte) {
	switch tag {
	case TagSyncStep1:
		sv, err := crdt.DecodeStateVector(data)
		if err != nil {
			r.closeProtocolError(client, err)
			return
		}
		client.WriteFrame(TagSyncStep2, crdt.EncodeOps(r.replica.OpsSince(sv)))

	case TagSyncStep2:
		// A client only ever receives SYNC_STEP_2 from the server during
		// the initial handshake; this protocol has no offline-edit upload
		// path for a client to send one back, so it's validated (to still
		// catch a malformed frame) but never applied or fanned out like a
		// live edit.
		if _, err := crdt.DecodeOps(data); err != nil {
			r.closeProtocolError(client, err)
		}

	case TagUpdate:
		if r.rejectFurtherEdits {
			r.closeProtocolError(client, apperr.New(apperr.KindFatal, "document frozen: memory ceiling reached"))
			return
		}
		if !client.limiter.Allow() {
			client.rateViolations++
			logger.Warn("[room %s] client %s exceeded update rate (%d/%d), throttling", r.id, client.ID, client.rateViolations, maxRateViolations)
			if client.rateViolations >= maxRateViolations {
				r.closeRateLimited(client)
			}
			return
		}
		client.rateViolations = 0
		ops, err := crdt.DecodeOps(data)
		if err != nil {
			r.closeProtocolError(client, err)
			return
		}
		if r.replica.ApplyBatch(ops) == 0 {
			return
		}
		r.broadcastExcept(client.ID, TagUpdate, data)
		r.cache.Publish(r.id, cache.FanoutMessage{
			Kind:     cache.MessageCRDTUpdate,
			OriginID: r.instanceID,
			Payload:  encodeFramePayload(data),
		})
		r.markDirty()
		if r.replica.ApproxBytes() > r.cfg.MaxReplicaBytes {
			r.rejectFurtherEdits = true
			logger.Error("[room %s] memory ceiling exceeded, rejecting further edits", r.id)
		}

	case TagAwareness:
		presence, err := decodeAwarenessDiff(data)
		if err != nil {
			r.closeProtocolError(client, err)
			return
		}
		if !r.awareness.Apply(presence, true) {
			return
		}
		r.broadcastExcept(client.ID, TagAwareness, data)
		r.cache.Publish(r.id, cache.FanoutMessage{
			Kind:     cache.MessageAwareness,
			OriginID: r.instanceID,
			PeerID:   presence.PeerID,
			Payload:  encodeFramePayload(data),
		})

	case TagQueryAwareness:
		for _, p := range r.awareness.Snapshot() {
			if diff, err := encodeAwarenessDiff(p); err == nil {
				client.WriteFrame(TagAwareness, diff)
			}
		}

	default:
		logger.Warn("[room %s] dropping unknown frame tag %v from client %s", r.id, tag, client.ID)
	}
	r.lastActivity = time.Now()
}

func (r *Room) handleFanout(msg cache.FanoutMessage) {
	if msg.OriginID == r.instanceID {
		return // we already applied this locally before publishing it
	}
	data, err := decodeFramePayload(msg.Payload)
	if err != nil {
		logger.Warn("[room %s] dropping malformed fan-out payload: %v", r.id, err)
		return
	}

	switch msg.Kind {
	case cache.MessageCRDTUpdate:
		ops, err := crdt.DecodeOps(data)
		if err != nil {
			logger.Warn("[room %s] dropping malformed fan-out update: %v", r.id, err)
			return
		}
		if r.replica.ApplyBatch(ops) == 0 {
			return
		}
		r.broadcastExcept("", TagUpdate, data)
		r.markDirty()

	case cache.MessageAwareness:
		presence, err := decodeAwarenessDiff(data)
		if err != nil {
			return
		}
		if !r.awareness.Apply(presence, false) {
			return
		}
		r.broadcastExcept("", TagAwareness, data)
	}
}

func (r *Room) broadcastExcept(skipClientID string, tag FrameTag, payload []byte) {
	frame := EncodeFrame(tag, payload)
	for id, c := range r.clients {
		if id == skipClientID {
			continue
		}
		select {
		case c.Send <- frame:
		default:
			logger.Warn("[room %s] dropping slow client %s (send queue full)", r.id, c.ID)
			delete(r.clients, id)
			go c.closeOverloaded()
		}
	}
}

func (r *Room) broadcastAwarenessRemoval(peerID string) {
	r.awareness.Remove(peerID)
	removal := models.Presence{PeerID: peerID, Clock: ^uint64(0)}
	diff, err := encodeAwarenessDiff(removal)
	if err != nil {
		return
	}
	r.broadcastExcept("", TagAwareness, diff)
	r.cache.Publish(r.id, cache.FanoutMessage{
		Kind:     cache.MessageAwareness,
		OriginID: r.instanceID,
		PeerID:   peerID,
		Payload:  encodeFramePayload(diff),
	})
}

func (r *Room) handleAwarenessGC() {
	for _, id := range r.awareness.GCStale(r.cfg.AwarenessTimeout) {
		logger.Debug("[room %s] GC'd stale awareness entry %s", r.id, id)
	}
}

func (r *Room) closeProtocolError(client *Client, cause error) {
	logger.Warn("[room %s] protocol error from client %s: %v", r.id, client.ID, cause)
	delete(r.clients, client.ID)
	go client.closeProtocolError()
}

// maxRateViolations bounds how many consecutive throttled UPDATE frames a
// client gets before the hub gives up and disconnects it.
const maxRateViolations = 5

func (r *Room) closeRateLimited(client *Client) {
	logger.Warn("[room %s] disconnecting client %s for persistent rate-limit violations", r.id, client.ID)
	delete(r.clients, client.ID)
	go client.closeRateLimited()
}

// markDirty arms the persistence debounce timer if not already running.
func (r *Room) markDirty() {
	r.dirty = true
	if r.debounceTimer == nil {
		r.debounceTimer = time.NewTimer(r.cfg.PersistenceDebounce)
	}
}

func (r *Room) handleDebounceFire() {
	r.debounceTimer = nil
	if !r.dirty {
		return
	}
	if err := r.persist(); err != nil {
		r.retryAttempt++
		backoff := retryBackoff(r.retryAttempt)
		logger.Warn("[room %s] persistence failed, retrying in %s: %v", r.id, backoff, err)
		r.debounceTimer = time.NewTimer(backoff)
		return
	}
	r.retryAttempt = 0
	r.dirty = false
}

// persist snapshots the replica and writes it through the store,
// refreshing the hot cache on success.
func (r *Room) persist() error {
	snapshot := r.replica.Snapshot()

	var refreshed *string
	if r.cfg.MarkdownRefresh {
		text := consistency.RefreshMarkdownFromText(r.replica.Text())
		refreshed = &text
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := r.store.SaveCRDT(ctx, r.id, snapshot, refreshed); err != nil {
		if kind, ok := apperr.KindOf(err); ok && kind == apperr.KindNotFound {
			// Row was deleted out from under us; the save is discarded
			// rather than recreating the document.
			return nil
		}
		return err
	}
	_ = r.cache.SetState(ctx, r.id, snapshot)
	return nil
}

func retryBackoff(attempt int) time.Duration {
	backoffs := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	if attempt <= 0 {
		return backoffs[0]
	}
	if attempt > len(backoffs) {
		return 30 * time.Second
	}
	return backoffs[attempt-1]
}

// forceFlush is the forced-flush path: server shutdown or drain timeout.
// It retries synchronously up to a bound rather than
// arming a timer, since the caller is waiting on it.
func (r *Room) forceFlush() {
	if !r.dirty {
		return
	}
	const maxAttempts = 5
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := r.persist(); err == nil {
			r.dirty = false
			return
		}
		time.Sleep(retryBackoff(attempt + 1))
	}
	logger.Error("[room %s] forced flush exhausted retries, dirty state may be lost", r.id)
}

func (r *Room) armDrain() {
	r.state = stateDraining
	r.drainTimer = time.NewTimer(r.cfg.DrainGrace)
}

func (r *Room) cancelDrain() {
	if r.drainTimer != nil {
		r.drainTimer.Stop()
		r.drainTimer = nil
	}
}

func (r *Room) handleDrainTick() {
	r.drainTimer = nil
	if len(r.clients) > 0 {
		// A client re-attached before the timer fired; stay Ready.
		r.state = stateReady
		return
	}
	r.forceFlush()
	r.cancel()
}

func (r *Room) teardown() {
	r.cache.Unsubscribe(r.id)
	for _, c := range r.clients {
		c.Close()
	}
	r.state = stateGone
	logger.Info("[room %s] torn down", r.id)
}

// Drain forces this room through its Draining → Gone flush path
// immediately, bounded by ctx — used by graceful shutdown
// (RoomManager.DrainAll).
func (r *Room) Drain(ctx context.Context) {
	r.cancel()
	select {
	case <-r.done:
	case <-ctx.Done():
	}
}

// ClientCount reports the number of locally attached clients, for the
// stats endpoint.
func (r *Room) ClientCount() int {
	count := make(chan int, 1)
	select {
	case r.mailbox <- func() { count <- len(r.clients) }:
	case <-r.ctx.Done():
		return 0
	}
	select {
	case n := <-count:
		return n
	case <-r.ctx.Done():
		return 0
	}
}

// encodeFramePayload and decodeFramePayload carry a binary frame payload
// (CRDT ops or an awareness diff) inside a FanoutMessage's JSON envelope.
// json.Marshal of a []byte already base64-encodes it as a JSON string, so
// this is just that encoding made explicit at the call site.
func encodeFramePayload(data []byte) json.RawMessage {
	encoded, _ := json.Marshal(data)
	return encoded
}

func decodeFramePayload(raw json.RawMessage) ([]byte, error) {
	var data []byte
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}
