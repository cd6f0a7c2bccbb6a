// Package census tracks living organisms grouped by genotype, the hash of
// the genome an organism was born with.
package census

import (
	"github.com/cespare/xxhash/v2"

	"evita/internal/sim/isa"
)

// Genotype identifies a genome by content.
type Genotype uint64

// Of hashes the allocated instructions of g.
func Of(g isa.Genome) Genotype {
	return Genotype(xxhash.Sum64(g.Bytes()))
}

// Population describes the living members of one genotype. First and Last
// record the timeslice of the first sighting and of the extinction.
type Population struct {
	Genotype Genotype
	Len      int
	Count    int
	First    uint64
	Last     uint64
}

// Census is owned by the world loop and is not safe for concurrent use.
type Census struct {
	seen        map[Genotype]*Population
	count       int
	countAll    int
	distinctAll int
}

func New() *Census {
	return &Census{seen: map[Genotype]*Population{}}
}

func (c *Census) Get(g Genotype) (Population, bool) {
	p, ok := c.seen[g]
	if ok {
		return *p, true
	}
	return Population{}, false
}

// Add records one more living organism of genotype g with genome length n.
func (c *Census) Add(when uint64, g Genotype, n int) Population {
	p, ok := c.seen[g]
	if !ok {
		p = &Population{Genotype: g, Len: n, First: when}
		c.seen[g] = p
		c.distinctAll++
	}
	p.Count++
	c.count++
	c.countAll++
	return *p
}

// Remove records the death of one organism of genotype g. Removing an
// unknown genotype is a no-op.
func (c *Census) Remove(when uint64, g Genotype) Population {
	p, ok := c.seen[g]
	if !ok {
		return Population{Genotype: g}
	}
	p.Count--
	c.count--
	if p.Count == 0 {
		delete(c.seen, g)
		p.Last = when
	}
	return *p
}

// Count returns the number of organisms presently tracked.
func (c *Census) Count() int { return c.count }

// CountAllTime returns the number of organisms ever added.
func (c *Census) CountAllTime() int { return c.countAll }

// Distinct returns the number of genotypes currently alive.
func (c *Census) Distinct() int { return len(c.seen) }

// DistinctAllTime returns the number of genotypes ever seen.
func (c *Census) DistinctAllTime() int { return c.distinctAll }

// Dominant returns the most abundant living genotype. Ties go to the lower
// hash so the answer does not depend on map order.
func (c *Census) Dominant() (Population, bool) {
	var best *Population
	for _, p := range c.seen {
		if best == nil || p.Count > best.Count || (p.Count == best.Count && p.Genotype < best.Genotype) {
			best = p
		}
	}
	if best == nil {
		return Population{}, false
	}
	return *best, true
}
