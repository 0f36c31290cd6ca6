package findings

// Parser converts one tool's raw output into normalized findings. Parsers
// must tolerate empty or malformed input and return an empty list instead of
// failing: scanner tools interleave banners and progress noise with payload.
type Parser interface {
	Tool() string
	Parse(stdout, stderr string) []Finding
}

// Registry maps tool names to parsers. It is populated once at startup;
// lookups at scan time never mutate it.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry returns a registry preloaded with every built-in parser.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	r.Register(&PingParser{})
	r.Register(&NmapParser{})
	r.Register(&NucleiParser{})
	return r
}

// Register adds a parser, replacing any previous parser for the same tool.
func (r *Registry) Register(p Parser) {
	r.parsers[p.Tool()] = p
}

// Parse dispatches raw output to the tool's parser. Unknown tools yield no
// findings rather than an error; the raw output stays on the ledger either way.
func (r *Registry) Parse(tool, stdout, stderr string) []Finding {
	p, ok := r.parsers[tool]
	if !ok {
		return nil
	}
	return p.Parse(stdout, stderr)
}
