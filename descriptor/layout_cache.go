package descriptor

import "github.com/gogpu/cmdemu/cache"

// LayoutCache deduplicates pipeline layouts: identical descriptors return
// the same *PipelineLayout.
type LayoutCache struct {
	layouts *cache.Sharded[string, *PipelineLayout]
}

// NewLayoutCache creates an empty cache.
func NewLayoutCache() *LayoutCache {
	return &LayoutCache{layouts: cache.NewSharded[string, *PipelineLayout](cache.StringHasher)}
}

// Get returns the layout for desc, creating it on first use.
func (c *LayoutCache) Get(desc *LayoutDescriptor) (*PipelineLayout, error) {
	limits := DefaultLimits()
	if desc.Limits != nil {
		limits = *desc.Limits
	}
	pl, _, err := c.layouts.GetOrCreate(layoutKey(desc, limits), func() (*PipelineLayout, error) {
		return NewPipelineLayout(desc)
	})
	return pl, err
}

// Len returns the number of distinct layouts.
func (c *LayoutCache) Len() int {
	return c.layouts.Len()
}

// Stats returns hit and miss counts.
func (c *LayoutCache) Stats() cache.Stats {
	return c.layouts.Stats()
}
