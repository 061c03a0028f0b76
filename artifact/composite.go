package artifact

import (
	"fmt"
	"strings"
)

// Composite is a prompt decomposed into named factors. Insertion order is the
// default render order; every factor has exactly one FactorStats record.
// A Composite is not safe for concurrent mutation.
type Composite struct {
	taskDescription string
	order           []string
	factors         map[string]string
	stats           map[string]*FactorStats
}

// New creates an empty composite for a task.
func New(taskDescription string) *Composite {
	return &Composite{
		taskDescription: taskDescription,
		factors:         make(map[string]string),
		stats:           make(map[string]*FactorStats),
	}
}

// TaskDescription returns the task the composite was built for.
func (c *Composite) TaskDescription() string {
	return c.taskDescription
}

// AddFactor appends a factor with fresh statistics. An existing factor of the
// same name is left untouched.
func (c *Composite) AddFactor(name, content string) {
	if _, ok := c.factors[name]; ok {
		return
	}
	c.factors[name] = content
	st := NewFactorStats()
	c.stats[name] = &st
	c.order = append(c.order, name)
}

// UpdateFactor replaces the content of an existing factor. Statistics are not
// touched.
func (c *Composite) UpdateFactor(name, content string) error {
	if _, ok := c.factors[name]; !ok {
		return &UnknownFactorError{Name: name}
	}
	c.factors[name] = content
	return nil
}

// Content returns the content of a factor.
func (c *Composite) Content(name string) (string, bool) {
	content, ok := c.factors[name]
	return content, ok
}

// Stats returns a copy of a factor's statistics.
func (c *Composite) Stats(name string) (FactorStats, bool) {
	st, ok := c.stats[name]
	if !ok {
		return FactorStats{}, false
	}
	return *st, true
}

// UpdateStats applies fn to a factor's statistics in place.
func (c *Composite) UpdateStats(name string, fn func(*FactorStats)) error {
	st, ok := c.stats[name]
	if !ok {
		return &UnknownFactorError{Name: name}
	}
	fn(st)
	return nil
}

// FactorNames returns the current render order.
func (c *Composite) FactorNames() []string {
	names := make([]string, len(c.order))
	copy(names, c.order)
	return names
}

// Len returns the number of factors.
func (c *Composite) Len() int {
	return len(c.order)
}

// Render joins the factors named in order (default: insertion order) into
// one prompt. Each factor becomes a "--- NAME ---" header line followed by its
// content and a blank line; unknown names are skipped and leading and
// trailing whitespace is trimmed from the result.
func (c *Composite) Render(order ...string) string {
	if len(order) == 0 {
		order = c.order
	}
	var b strings.Builder
	for _, name := range order {
		content, ok := c.factors[name]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "--- %s ---\n", strings.ToUpper(name))
		b.WriteString(content)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

// Clone returns an independent copy, statistics included. Candidate
// evaluation renders clones so the live composite is never touched.
func (c *Composite) Clone() *Composite {
	out := &Composite{
		taskDescription: c.taskDescription,
		order:           make([]string, len(c.order)),
		factors:         make(map[string]string, len(c.factors)),
		stats:           make(map[string]*FactorStats, len(c.stats)),
	}
	copy(out.order, c.order)
	for k, v := range c.factors {
		out.factors[k] = v
	}
	for k, v := range c.stats {
		st := *v
		out.stats[k] = &st
	}
	return out
}

// WithFactor returns a clone whose factor name carries content.
func (c *Composite) WithFactor(name, content string) (*Composite, error) {
	out := c.Clone()
	if err := out.UpdateFactor(name, content); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Composite) String() string {
	return fmt.Sprintf("Composite(task=%q, factors=%v)", c.taskDescription, c.order)
}
