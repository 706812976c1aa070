package world

import "voxelworld.ai/internal/voxel"

// CoarseHeight returns the chunk z above which col is known to be air. A
// missing value is estimated from the generators and stored when defined.
func (w *World) CoarseHeight(col voxel.MapPos) (voxel.Height, error) {
	h, err := w.cache.GetHeight(col)
	if err != nil || h.Defined() {
		return h, err
	}
	est := w.EstimateHeight(col)
	if !est.Defined() {
		return est, nil
	}

	w.heightMu.Lock()
	h, err = w.cache.GetHeight(col)
	if err == nil && !h.Defined() {
		w.cache.StoreHeight(col, est)
		h = est
	}
	w.heightMu.Unlock()
	return h, err
}

// EstimateHeight asks every terrain generator in turn, each refining the
// previous answer.
func (w *World) EstimateHeight(col voxel.MapPos) voxel.Height {
	p := w.pipeline()
	acc := &genAccess{w: w}
	h := voxel.UndefinedHeight
	for _, g := range p.gens {
		h = voxel.MaxHeight(h, g.EstimateHeight(acc, col, h))
	}
	return h
}

// adjustHeight keeps the coarse height consistent with a committed chunk:
// raised above non-air chunks at or over it, lowered when the topmost chunk
// turns out to be air.
func (w *World) adjustHeight(pos voxel.ChunkPos, c *voxel.Chunk) error {
	col := pos.Column()
	air := c.IsAir()
	if air {
		// An unknown height cannot be lowered, so avoid estimating it.
		if h, err := w.cache.GetHeight(col); err != nil || !h.Defined() {
			return err
		}
	} else if _, err := w.CoarseHeight(col); err != nil {
		return err
	}

	w.heightMu.Lock()
	h, err := w.cache.GetHeight(col)
	if err != nil {
		w.heightMu.Unlock()
		return err
	}
	next := h
	switch {
	case !air && voxel.NeedsHeightAdjustment(pos, h):
		next = voxel.Height(pos.Z + 1)
	case air && h.Defined() && pos.Z == int(h)-1:
		next = voxel.Height(pos.Z)
	}
	if next == h {
		w.heightMu.Unlock()
		return nil
	}
	w.cache.StoreHeight(col, next)
	w.heightChanges[col] = next
	w.heightMu.Unlock()

	w.logger.Printf("height %v: %d -> %d", col, h, next)
	if fn := w.currentHooks().OnHeight; fn != nil {
		fn(col, next)
	}
	return nil
}

// DrainHeightChanges returns every column whose coarse height changed since
// the last call, with its latest value.
func (w *World) DrainHeightChanges() map[voxel.MapPos]voxel.Height {
	w.heightMu.Lock()
	out := w.heightChanges
	w.heightChanges = make(map[voxel.MapPos]voxel.Height)
	w.heightMu.Unlock()
	return out
}
