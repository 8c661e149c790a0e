package jam

// Cache maps poll ids to polls. It is not safe for concurrent use; Service
// confines it to its Run goroutine.
type Cache struct {
	polls map[string]*Poll
}

func NewCache() *Cache {
	return &Cache{polls: map[string]*Poll{}}
}

func (c *Cache) Get(id string) (*Poll, bool) {
	p, ok := c.polls[id]
	return p, ok
}

func (c *Cache) Put(p *Poll) {
	if p == nil || p.ID == "" {
		return
	}
	c.polls[p.ID] = p
}

func (c *Cache) Len() int { return len(c.polls) }

// All returns copies of every poll ordered by scheduled time.
func (c *Cache) All() []Poll {
	out := make([]Poll, 0, len(c.polls))
	for _, p := range c.polls {
		out = append(out, p.Clone())
	}
	sortPolls(out)
	return out
}
