// Package scheduler tracks the configured GPU slots and turns one
// image count into a set of per-device sub-allocations. It never touches processes or RPC; the Task Coordinator,
// the HTTP handlers and server startup are its callers.
package scheduler

import (
	"sort"
	"sync"

	"fooocus-orchestrator/pkg/types"
)

// Scheduler owns the ordered GPU slot table and the weighted
// round-robin cursor (currentWeight) baked into each slot.
type Scheduler struct {
	mu         sync.Mutex
	slots      []*types.GPUSlot
	distribute bool
}

// New builds a Scheduler from the GPU configuration document.
// Declaration order is preserved; it is the tie-break order used by
// PickOne. A config with Enabled false loads no slots at all,
// regardless of what GPUs lists, mirroring a scheduler that never ran
// its GPU discovery.
func New(cfg types.GPUConfig) *Scheduler {
	distribute := true
	if cfg.Distribute != nil {
		distribute = *cfg.Distribute
	}

	if !cfg.Enabled {
		return &Scheduler{distribute: distribute}
	}

	slots := make([]*types.GPUSlot, 0, len(cfg.GPUs))
	for _, g := range cfg.GPUs {
		weight := g.Weight
		if weight < 1 {
			weight = 1
		}
		slots = append(slots, &types.GPUSlot{
			Device:        g.Device,
			DisplayName:   g.Name,
			Weight:        weight,
			Port:          g.Port,
			CurrentWeight: weight,
		})
	}

	return &Scheduler{slots: slots, distribute: distribute}
}

// Slots returns a snapshot copy of every configured GPU slot.
func (s *Scheduler) Slots() []types.GPUSlot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.GPUSlot, len(s.slots))
	for i, slot := range s.slots {
		out[i] = *slot
	}
	return out
}

// PickOne selects a single slot by weighted round-robin: the
// non-busy slot with the highest currentWeight, or (if every slot is
// busy) the highest currentWeight regardless of busy state. Ties
// break by declaration order. The chosen slot's currentWeight is
// decremented; once every slot has reached 0 the whole table refills
// to its configured weight. Returns nil if no slots are configured.
func (s *Scheduler) PickOne() *types.GPUSlot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.slots) == 0 {
		return nil
	}

	chosen := s.bestCandidate(false)
	if chosen == nil {
		chosen = s.bestCandidate(true)
	}
	if chosen == nil {
		return nil
	}

	chosen.CurrentWeight--
	s.refillIfExhausted()

	out := *chosen
	return &out
}

// bestCandidate returns the slot with the highest currentWeight among
// eligible slots, in declaration order. When includeBusy is false,
// busy slots are skipped.
func (s *Scheduler) bestCandidate(includeBusy bool) *types.GPUSlot {
	var best *types.GPUSlot
	for _, slot := range s.slots {
		if !includeBusy && slot.Busy {
			continue
		}
		if best == nil || slot.CurrentWeight > best.CurrentWeight {
			best = slot
		}
	}
	return best
}

func (s *Scheduler) refillIfExhausted() {
	for _, slot := range s.slots {
		if slot.CurrentWeight > 0 {
			return
		}
	}
	for _, slot := range s.slots {
		slot.CurrentWeight = slot.Weight
	}
}

// Distribute splits totalImages across available GPU slots
// proportional to weight. The sum of returned counts
// always equals totalImages; zero-count allocations are dropped.
func (s *Scheduler) Distribute(totalImages int) []types.GPUAssignment {
	s.mu.Lock()
	defer s.mu.Unlock()

	available := s.availableLocked()

	if !s.distribute || totalImages <= 1 || len(available) <= 1 {
		target := s.bestCandidate(false)
		if target == nil {
			target = s.bestCandidate(true)
		}
		if target == nil {
			return nil
		}
		return []types.GPUAssignment{{Slot: *target, ImageCount: totalImages}}
	}

	sort.SliceStable(available, func(i, j int) bool {
		return available[i].CurrentWeight > available[j].CurrentWeight
	})

	sumWeight := 0
	for _, slot := range available {
		sumWeight += slot.Weight
	}

	assignments := make([]types.GPUAssignment, 0, len(available))
	allocated := 0
	for i := 0; i < len(available)-1; i++ {
		count := totalImages * available[i].Weight / sumWeight
		allocated += count
		if count > 0 {
			assignments = append(assignments, types.GPUAssignment{Slot: *available[i], ImageCount: count})
		}
	}

	remainder := totalImages - allocated
	if remainder > 0 {
		last := available[len(available)-1]
		assignments = append(assignments, types.GPUAssignment{Slot: *last, ImageCount: remainder})
	}

	return assignments
}

func (s *Scheduler) availableLocked() []*types.GPUSlot {
	out := make([]*types.GPUSlot, 0, len(s.slots))
	for _, slot := range s.slots {
		if !slot.Busy {
			out = append(out, slot)
		}
	}
	return out
}

// MarkBusy flips the busy flag of the slot for the given device, if
// it exists.
func (s *Scheduler) MarkBusy(device int, busy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, slot := range s.slots {
		if slot.Device == device {
			slot.Busy = busy
			return
		}
	}
}
