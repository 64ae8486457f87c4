package testutil

// FixedRunID returns the same run ID every time.
//
// Unlike engine.FixedGenerator, which walks a list, this never runs out,
// so a scenario can be exported any number of times with byte-identical
// databases.
//
// Thread-safety: stateless and safe for concurrent use.
type FixedRunID struct {
	id string
}

// NewFixedRunID creates a generator for id. An empty id becomes
// "test-run-default".
func NewFixedRunID(id string) *FixedRunID {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedRunID{id: id}
}

// Generate returns the fixed run ID.
//
// Implements engine.RunIDGenerator.
func (g *FixedRunID) Generate() string {
	return g.id
}
