package ustar

// Option configures a Reader.
type Option interface {
	applyOption(r *Reader)
}

type maxLinkDepthOption struct {
	depth int
}

func (opt maxLinkDepthOption) applyOption(r *Reader) {
	if opt.depth > 0 {
		r.maxLinkDepth = opt.depth
	}
}

// OptMaxLinkDepth limits the number of links followed while resolving a path. Values below 1 keep
// the default of 40.
func OptMaxLinkDepth(depth int) Option {
	return maxLinkDepthOption{depth: depth}
}

type indexOption struct {
	entries []Entry
}

func (opt indexOption) applyOption(r *Reader) {
	r.index = opt.entries
	r.indexed = true
}

// OptIndex makes the Reader answer lookups from entries instead of re-reading headers. entries
// must be the complete, ordered result of Entries (or tarindex.ReadIndex) for the same archive.
// Validate still reads every header from the source.
func OptIndex(entries []Entry) Option {
	return indexOption{entries: entries}
}
