package tasks

// Match is one task satisfied by an output value.
type Match struct {
	Task  string
	Merit int64
}

// Table maps candidate output values to the tasks they satisfy for one fixed
// set of inputs. It is built once per organism and never modified.
type Table struct {
	byValue map[uint32][]Match
}

// Build evaluates every checker of every task over the inputs: unary checkers
// over each input, binary checkers over each ordered pair of distinct inputs.
// A task is listed at most once per value no matter how many of its checkers
// produce it.
func Build(c *Catalog, inputs [3]uint32) *Table {
	t := &Table{byValue: map[uint32][]Match{}}
	if c == nil {
		return t
	}
	for _, d := range c.Defs {
		switch d.Arity {
		case 1:
			for _, f := range d.Unary {
				for _, a := range inputs {
					t.add(f(a), d)
				}
			}
		case 2:
			for _, f := range d.Binary {
				for i, a := range inputs {
					for j, b := range inputs {
						if i == j {
							continue
						}
						t.add(f(a, b), d)
					}
				}
			}
		}
	}
	return t
}

func (t *Table) add(v uint32, d Def) {
	for _, m := range t.byValue[v] {
		if m.Task == d.Name {
			return
		}
	}
	t.byValue[v] = append(t.byValue[v], Match{Task: d.Name, Merit: d.Merit})
}

// Lookup returns the tasks satisfied by an output value. The result must not
// be modified.
func (t *Table) Lookup(v uint32) []Match {
	if t == nil {
		return nil
	}
	return t.byValue[v]
}

// Len is the number of distinct matching values.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.byValue)
}
