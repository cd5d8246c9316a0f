package gpu

// Cleanup is a LIFO list of release functions. Constructors push a release
// for every object they create and call Release on the error path, so a
// failure part-way through never leaks what came before it.
type Cleanup struct {
	fns []func()
}

func (c *Cleanup) Push(fn func()) {
	c.fns = append(c.fns, fn)
}

// Release runs the pushed functions newest first, then forgets them.
func (c *Cleanup) Release() {
	for i := len(c.fns) - 1; i >= 0; i-- {
		c.fns[i]()
	}
	c.fns = nil
}

// Disarm forgets the pushed functions without running them. Call it once
// ownership has passed to a longer-lived object.
func (c *Cleanup) Disarm() {
	c.fns = nil
}

func (c *Cleanup) Len() int {
	return len(c.fns)
}
