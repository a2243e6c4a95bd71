package identity

import "testing"

func mustVisitorID(t *testing.T, value string) VisitorID {
	t.Helper()
	id, err := NewVisitorID(value)
	if err != nil {
		t.Fatalf("unexpected visitor id error: %v", err)
	}
	return id
}

type staticIDGenerator struct {
	ids   []string
	index int
}

func (g *staticIDGenerator) NewID() (string, error) {
	id := g.ids[g.index%len(g.ids)]
	g.index++
	return id, nil
}
