package recording

import (
	"fmt"
	"maps"
	"slices"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/cmdemu/descriptor"
	"github.com/gogpu/cmdemu/hal"
	"github.com/gogpu/cmdemu/pipeline"
	"github.com/gogpu/cmdemu/resource"
	"github.com/gogpu/cmdemu/shader"
)

// useSet collects the uses of one command, merging repeated accesses to
// the same resource.
type useSet struct {
	list []Use
}

func (s *useSet) reset() { s.list = s.list[:0] }

func (s *useSet) add(u Use) error {
	for i := range s.list {
		e := &s.list[i]
		if e.Resource != u.Resource {
			continue
		}
		if e.State != u.State {
			return fmt.Errorf("%v used as %s and %s by one command: %w",
				u.Resource, e.State, u.State, hal.ErrInvalidCommand)
		}
		e.Access |= u.Access
		e.Stage |= u.Stage
		return nil
	}
	s.list = append(s.list, u)
	return nil
}

// track resolves h for a command: it records the reference and returns the
// tracked resource with the metadata of h.
func (cb *CommandBuffer) track(h resource.Handle) (resource.Handle, resource.Info, error) {
	info, err := cb.tbl.Lookup(h)
	if err != nil {
		return resource.Handle{}, info, err
	}
	cb.refs[h] = struct{}{}
	if info.Kind.IsView() {
		cb.refs[info.Parent] = struct{}{}
		return info.Parent, info, nil
	}
	return h, info, nil
}

// lookup adapts track to descriptor.Lookup.
func (cb *CommandBuffer) lookup(h resource.Handle) (resource.Info, error) {
	_, info, err := cb.track(h)
	return info, err
}

// buffer tracks h and checks it is a whole buffer.
func (cb *CommandBuffer) buffer(t CommandType, h resource.Handle) (resource.Handle, resource.Info, error) {
	tracked, info, err := cb.track(h)
	if err != nil {
		return tracked, info, cb.fail(t.String(), err)
	}
	if info.Kind != resource.KindBuffer {
		return tracked, info, cb.invalid(t, "%v is a %s, not a buffer", h, info.Kind)
	}
	return tracked, info, nil
}

// image tracks h and checks it is an image or image view.
func (cb *CommandBuffer) image(t CommandType, h resource.Handle) (resource.Handle, resource.Info, error) {
	tracked, info, err := cb.track(h)
	if err != nil {
		return tracked, info, cb.fail(t.String(), err)
	}
	if info.Kind != resource.KindImage && info.Kind != resource.KindImageView {
		return tracked, info, cb.invalid(t, "%v is a %s, not an image", h, info.Kind)
	}
	return tracked, info, nil
}

// setUses derives the uses of runs bound at bp.
func (cb *CommandBuffer) setUses(runs []descriptor.Run) ([]Use, error) {
	var set useSet
	for _, r := range runs {
		if r.Class == shader.ClassSampler {
			continue
		}
		for _, it := range r.Items {
			if !it.Resource.IsValid() {
				continue
			}
			tracked, _, err := cb.track(it.Resource)
			if err != nil {
				return nil, err
			}
			err = set.add(Use{
				Resource: tracked,
				State:    descriptor.ClassState(r.Class),
				Access:   descriptor.ClassAccess(r.Class),
				Stage:    r.Stage.Pipeline(),
			})
			if err != nil {
				return nil, err
			}
		}
	}
	return slices.Clone(set.list), nil
}

// workUses gathers the resources reachable from a draw or dispatch into
// cb.scratch.
func (cb *CommandBuffer) workUses(t CommandType, bp pipeline.BindPoint, layout *descriptor.PipelineLayout) error {
	cb.scratch.reset()
	for _, idx := range slices.Sorted(maps.Keys(cb.sets[bp])) {
		if int(idx) >= layout.SetCount() {
			continue
		}
		for _, u := range cb.sets[bp][idx].uses {
			if err := cb.scratch.add(u); err != nil {
				return cb.fail(t.String(), err)
			}
		}
	}
	if bp != pipeline.BindGraphics {
		return nil
	}
	for _, slot := range slices.Sorted(maps.Keys(cb.vertex)) {
		vb := cb.vertex[slot]
		tracked, _, err := cb.track(vb.Buffer)
		if err != nil {
			return cb.fail(t.String(), err)
		}
		err = cb.scratch.add(Use{Resource: tracked, State: hal.StateVertexBuffer, Access: hal.AccessRead, Stage: hal.StageVertexInput})
		if err != nil {
			return cb.fail(t.String(), err)
		}
	}
	return nil
}

// addUse adds one use to cb.scratch.
func (cb *CommandBuffer) addUse(t CommandType, u Use) error {
	if err := cb.scratch.add(u); err != nil {
		return cb.fail(t.String(), err)
	}
	return nil
}

// checkFeedback rejects work inside a render pass that reads an attachment
// of the pass in another state.
func (cb *CommandBuffer) checkFeedback(t CommandType) error {
	if cb.pass == nil {
		return nil
	}
	for _, u := range cb.scratch.list {
		if st, ok := cb.pass.attachments[u.Resource]; ok && st != u.State {
			return cb.invalid(t, "%v is a %s attachment of the open render pass and cannot be used as %s", u.Resource, st, u.State)
		}
	}
	return nil
}

// mipExtent returns the extent of mip level mip.
func mipExtent(info resource.Info, mip uint32) gputypes.Extent3D {
	e := info.Extent
	out := gputypes.Extent3D{
		Width:              max(e.Width>>mip, 1),
		Height:             max(e.Height>>mip, 1),
		DepthOrArrayLayers: e.DepthOrArrayLayers,
	}
	if info.Dimension == gputypes.TextureDimension3D {
		out.DepthOrArrayLayers = max(e.DepthOrArrayLayers>>mip, 1)
	}
	return out
}

// checkImageRegion validates a region of an image subresource.
func checkImageRegion(info resource.Info, mip uint32, o hal.Origin3D, e gputypes.Extent3D) error {
	if e.Width == 0 || e.Height == 0 || e.DepthOrArrayLayers == 0 {
		return fmt.Errorf("empty region %dx%dx%d", e.Width, e.Height, e.DepthOrArrayLayers)
	}
	if mip >= info.MipLevelCount {
		return fmt.Errorf("mip %d of %d", mip, info.MipLevelCount)
	}
	m := mipExtent(info, mip)
	if uint64(o.X)+uint64(e.Width) > uint64(m.Width) ||
		uint64(o.Y)+uint64(e.Height) > uint64(m.Height) ||
		uint64(o.Z)+uint64(e.DepthOrArrayLayers) > uint64(m.DepthOrArrayLayers) {
		return fmt.Errorf("region at (%d,%d,%d) size %dx%dx%d outside mip %d of %dx%dx%d",
			o.X, o.Y, o.Z, e.Width, e.Height, e.DepthOrArrayLayers, mip, m.Width, m.Height, m.DepthOrArrayLayers)
	}
	return nil
}

// bufferFootprint returns the bytes a buffer-image region spans.
func bufferFootprint(r BufferImageCopy, format gputypes.TextureFormat) uint64 {
	rowBytes := uint64(r.BytesPerRow)
	if rowBytes == 0 {
		rowBytes = uint64(r.Extent.Width) * resource.BytesPerTexel(format)
	}
	rows := uint64(r.RowsPerImage)
	if rows == 0 {
		rows = uint64(r.Extent.Height)
	}
	return rowBytes * rows * uint64(r.Extent.DepthOrArrayLayers)
}
