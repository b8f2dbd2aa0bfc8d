package sheet

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/riftlands/engine/internal/chat"
	"github.com/riftlands/engine/internal/telemetry"
)

// rebuildConcurrency bounds how many sheet channels rebuild at once.
const rebuildConcurrency = 4

// ModifierSource identifies where a lookup's modifier came from.
type ModifierSource int

const (
	// SourceExplicit means the player supplied the modifier directly.
	SourceExplicit ModifierSource = iota
	// SourceSheet means the modifier was derived from the player's sheet.
	SourceSheet
	// SourceDefault means no data was available and 0 was used. Callers
	// send the player a private reminder on this source.
	SourceDefault
)

// LookupResult is the resolved modifier for one action submission.
type LookupResult struct {
	Modifier int
	Source   ModifierSource
}

// Index owns the mapping from player to modifier record. Entries exist only
// for players whose pinned sheet parsed to at least one field; absence is
// the signal that defaults plus a reminder apply.
type Index struct {
	pins    chat.PinReader
	emitter *telemetry.Emitter
	clock   func() time.Time

	mu          sync.Mutex
	entries     map[string]Record
	channels    map[string]*channelState
	lastRebuild time.Time
}

// channelState tracks rebuild sequencing for one sheet channel. A rebuild
// takes a sequence number when it starts and commits only if no rebuild
// with a higher sequence has committed first, so a stale in-flight rebuild
// can never overwrite a newer completed one.
type channelState struct {
	nextSeq      uint64
	committedSeq uint64
}

// NewIndex creates an empty sheet index reading pins from the platform.
func NewIndex(pins chat.PinReader, emitter *telemetry.Emitter) *Index {
	return &Index{
		pins:     pins,
		emitter:  emitter,
		clock:    time.Now,
		entries:  make(map[string]Record),
		channels: make(map[string]*channelState),
	}
}

// Rebuild re-scans every sheet channel and replaces affected entries.
// Per-channel failures are logged and emitted as telemetry, never
// propagated: one broken sheet must not block the rest.
func (i *Index) Rebuild(ctx context.Context) error {
	channels, err := i.pins.SheetChannels(ctx)
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(rebuildConcurrency)
	for _, channel := range channels {
		group.Go(func() error {
			if err := i.rebuildOne(groupCtx, channel.ID, channel.Name); err != nil {
				log.Printf("rebuild sheet channel %s: %v", channel.Name, err)
				_ = i.emitter.Emit(groupCtx, telemetry.SeverityWarn, telemetry.ComponentSheetIndex,
					"sheet_rebuild_failed", map[string]string{"channel": channel.Name, "error": err.Error()})
			}
			return nil
		})
	}
	_ = group.Wait()

	i.mu.Lock()
	i.lastRebuild = i.clock().UTC()
	i.mu.Unlock()
	return nil
}

// RebuildChannel refreshes a single channel's entry, typically in response
// to a pin-change event. Channels outside the sheet naming convention are
// ignored.
func (i *Index) RebuildChannel(ctx context.Context, channelID, channelName string) error {
	if _, ok := chat.PlayerForSheetChannel(channelName); !ok {
		return nil
	}
	if err := i.rebuildOne(ctx, channelID, channelName); err != nil {
		_ = i.emitter.Emit(ctx, telemetry.SeverityWarn, telemetry.ComponentSheetIndex,
			"sheet_rebuild_failed", map[string]string{"channel": channelName, "error": err.Error()})
		return err
	}
	return nil
}

// rebuildOne fetches and parses one channel's pinned document, then commits
// the outcome under the channel's sequence discipline.
func (i *Index) rebuildOne(ctx context.Context, channelID, channelName string) error {
	player, ok := chat.PlayerForSheetChannel(channelName)
	if !ok {
		return nil
	}

	seq := i.takeSeq(channelID)

	doc, err := i.pins.PinnedDocument(ctx, channelID)
	if errors.Is(err, chat.ErrNoPin) {
		i.commit(channelID, seq, player, nil)
		return nil
	}
	if err != nil {
		// Fetch failures leave the existing entry in place.
		return err
	}

	record, err := Parse(doc.Content)
	if errors.Is(err, ErrNoData) {
		i.commit(channelID, seq, player, nil)
		return nil
	}
	if err != nil {
		return err
	}
	record.Revision = doc.Revision

	i.commit(channelID, seq, player, &record)
	return nil
}

// takeSeq allocates the next rebuild sequence number for a channel.
func (i *Index) takeSeq(channelID string) uint64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	state := i.channels[channelID]
	if state == nil {
		state = &channelState{}
		i.channels[channelID] = state
	}
	state.nextSeq++
	return state.nextSeq
}

// commit applies a rebuild outcome unless a newer rebuild already committed.
// A nil record removes the player's entry.
func (i *Index) commit(channelID string, seq uint64, player string, record *Record) {
	i.mu.Lock()
	defer i.mu.Unlock()
	state := i.channels[channelID]
	if state == nil || seq <= state.committedSeq {
		return
	}
	state.committedSeq = seq
	if record == nil {
		delete(i.entries, player)
		return
	}
	i.entries[player] = *record
}

// Lookup resolves the effective modifier for a check. Resolution order is
// explicit > sheet-derived > default 0; the Source field tells the caller
// which branch applied, out-of-band of the numeric result.
func (i *Index) Lookup(playerID string, explicit *int, key string) LookupResult {
	if explicit != nil {
		return LookupResult{Modifier: *explicit, Source: SourceExplicit}
	}

	i.mu.Lock()
	record, ok := i.entries[playerID]
	i.mu.Unlock()
	if ok {
		if bonus, has := record.Modifier(key); has {
			return LookupResult{Modifier: bonus, Source: SourceSheet}
		}
	}
	return LookupResult{Source: SourceDefault}
}

// LookupAttack resolves a to-hit modifier. A named weapon entry wins over
// the sheet's generic attack bonus; resolution otherwise follows Lookup.
func (i *Index) LookupAttack(playerID string, explicit *int, weapon string) LookupResult {
	if explicit != nil {
		return LookupResult{Modifier: *explicit, Source: SourceExplicit}
	}

	i.mu.Lock()
	record, ok := i.entries[playerID]
	i.mu.Unlock()
	if ok {
		if bonus, has := record.Modifier(weapon); has && bonus != 0 {
			return LookupResult{Modifier: bonus, Source: SourceSheet}
		}
		if record.AttackBonus != nil {
			return LookupResult{Modifier: *record.AttackBonus, Source: SourceSheet}
		}
		if _, has := record.Modifier(weapon); has {
			return LookupResult{Modifier: 0, Source: SourceSheet}
		}
	}
	return LookupResult{Source: SourceDefault}
}

// Record returns the player's current modifier record, if any.
func (i *Index) Record(playerID string) (Record, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	record, ok := i.entries[playerID]
	return record, ok
}

// Snapshot returns a copy of every entry, for GM status visibility.
func (i *Index) Snapshot() map[string]Record {
	i.mu.Lock()
	defer i.mu.Unlock()
	snapshot := make(map[string]Record, len(i.entries))
	for player, record := range i.entries {
		snapshot[player] = record
	}
	return snapshot
}

// LastRebuild reports when the last full rebuild completed.
func (i *Index) LastRebuild() time.Time {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lastRebuild
}
