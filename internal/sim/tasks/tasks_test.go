package tasks

import "testing"

func notOnly(t *testing.T) *Catalog {
	t.Helper()
	c, err := NewCatalog(Logic9(), []Override{{Name: "NOT"}})
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	return c
}

func TestBuild_NotTaskMatchesComplementOfEachInput(t *testing.T) {
	inputs := [3]uint32{0x0f0f0f0f, 0x12345678, 0xdeadbeef}
	tab := Build(notOnly(t), inputs)

	for _, in := range inputs {
		ms := tab.Lookup(^in)
		if len(ms) != 1 || ms[0].Task != "NOT" || ms[0].Merit != 2 {
			t.Fatalf("Lookup(^%08x)=%v want [NOT/2]", in, ms)
		}
	}
	if ms := tab.Lookup(inputs[0]); len(ms) != 0 {
		t.Fatalf("raw input should not match: %v", ms)
	}
}

func TestBuild_EquivalentCheckersCreditOnce(t *testing.T) {
	c, err := NewCatalog(Logic9(), []Override{{Name: "NAND"}})
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	inputs := [3]uint32{0xff00ff00, 0x0ff00ff0, 0x00000001}
	tab := Build(c, inputs)
	ms := tab.Lookup(^(inputs[0] & inputs[1]))
	if len(ms) != 1 {
		t.Fatalf("NAND credited %d times, want 1: %v", len(ms), ms)
	}
	if ms[0].Merit != 2 {
		t.Fatalf("NAND merit=%d want default 2", ms[0].Merit)
	}
}

func TestBuild_ValueSatisfyingSeveralTasks(t *testing.T) {
	c, err := NewCatalog(Logic9(), nil)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	// With a == b, AND and OR both reduce to a.
	inputs := [3]uint32{7, 7, 9}
	tab := Build(c, inputs)
	got := map[string]bool{}
	for _, m := range tab.Lookup(7) {
		if got[m.Task] {
			t.Fatalf("task %s listed twice", m.Task)
		}
		got[m.Task] = true
	}
	if !got["AND"] || !got["OR"] {
		t.Fatalf("expected AND and OR for value 7, got %v", got)
	}
}

func TestNewCatalog_Overrides(t *testing.T) {
	cases := []struct {
		name    string
		ovr     []Override
		wantErr bool
		wantN   int
	}{
		{name: "default", wantN: 9},
		{name: "subset", ovr: []Override{{Name: "xor", Merit: merit(5)}, {Name: "NOT"}}, wantN: 2},
		{name: "unknown", ovr: []Override{{Name: "MUL"}}, wantErr: true},
		{name: "duplicate", ovr: []Override{{Name: "OR"}, {Name: "or"}}, wantErr: true},
		{name: "negative", ovr: []Override{{Name: "OR", Merit: merit(-1)}}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewCatalog(Logic9(), tc.ovr)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewCatalog: %v", err)
			}
			if len(c.Defs) != tc.wantN {
				t.Fatalf("defs=%d want %d", len(c.Defs), tc.wantN)
			}
			if c.Digest == "" {
				t.Fatalf("empty digest")
			}
		})
	}

	c, _ := NewCatalog(Logic9(), []Override{{Name: "xor", Merit: merit(5)}})
	if c.Defs[0].Name != "XOR" || c.Defs[0].Merit != 5 {
		t.Fatalf("override not applied: %+v", c.Defs[0])
	}
}

func merit(v int64) *int64 { return &v }

func TestNewCatalog_ZeroMeritListsTaskWithoutReward(t *testing.T) {
	c, err := NewCatalog(Logic9(), []Override{{Name: "NOT", Merit: merit(0)}, {Name: "AND"}})
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	if len(c.Defs) != 2 || c.Defs[0].Name != "NOT" || c.Defs[0].Merit != 0 {
		t.Fatalf("NOT: %+v", c.Defs)
	}
	if c.Defs[1].Merit != 4 {
		t.Fatalf("AND kept merit %d, want built-in 4", c.Defs[1].Merit)
	}

	tab := Build(c, [3]uint32{1, 2, 3})
	ms := tab.Lookup(^uint32(1))
	if len(ms) != 1 || ms[0].Task != "NOT" || ms[0].Merit != 0 {
		t.Fatalf("zero-merit task still matches: %+v", ms)
	}
}
