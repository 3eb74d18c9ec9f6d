package parsers

// WebSpherePattern matches WebSphere SystemOut style session lines.
// Example: [5/14/24 9:12:01:337 EDT] 0000003a [WebContainer : 7] [2024-05-14T09:12:01.337 - ERROR] LOGIN user=alice
// The bracketed timestamp may also close directly before the level:
// [WebContainer : 7] [2024-01-01T00:00:00] ERROR] LOGIN
const WebSpherePattern = `\[(?P<container>\w+) : (?P<thread>\d+)\] \[(?P<timestamp>\S{19,23})(?: -|\]) (?P<level>[\w ]{5})\] (?P<event>\w*)`

// NewWebSphereParser returns the default session parser.
func NewWebSphereParser() *RegexParser {
	p, err := NewRegexParser("websphere", WebSpherePattern)
	if err != nil {
		panic(err)
	}
	return p
}

// New returns the parser for pattern, or the WebSphere parser when pattern
// is empty or equal to WebSpherePattern.
func New(pattern string) (*RegexParser, error) {
	if pattern == "" || pattern == WebSpherePattern {
		return NewWebSphereParser(), nil
	}
	return NewRegexParser("custom", pattern)
}
