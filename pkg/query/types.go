// Package query parses the REST query micro-language (query string plus
// request headers) into a ParsedQuery that the SQL builder compiles.
//
// Parsing is lenient: a single malformed token is dropped and reported in
// ParsedQuery.Warnings instead of failing the whole request.
package query

// CountMode selects how the total row count is computed for Content-Range.
type CountMode string

const (
	CountNone      CountMode = ""
	CountExact     CountMode = "exact"
	CountPlanned   CountMode = "planned"
	CountEstimated CountMode = "estimated"
)

// ReturnPreference is the client's Prefer: return= choice.
type ReturnPreference string

const (
	ReturnRepresentation ReturnPreference = "representation"
	ReturnMinimal        ReturnPreference = "minimal"
)

// Resolution is the client's Prefer: resolution= choice for upserts.
type Resolution string

const (
	ResolutionNone             Resolution = ""
	ResolutionMergeDuplicates  Resolution = "merge-duplicates"
	ResolutionIgnoreDuplicates Resolution = "ignore-duplicates"
)

// SingleObjectMediaType is the Accept media type requesting a bare object
// instead of an array.
const SingleObjectMediaType = "application/vnd.pgrst.object+json"

// ParsedQuery is the structured form of one REST request.
type ParsedQuery struct {
	// Schema is the target schema from Accept-Profile/Content-Profile.
	// Empty means the builder's default schema.
	Schema string

	// Select holds plain select tokens (columns, alias:column, JSON paths).
	// Nil means all columns.
	Select []string

	// Embeds holds one entry per embedded table, in request order.
	Embeds []EmbedSpec

	Filters []Filter
	Order   []OrderSpec

	// Limit and Offset are nil when absent and never negative when set.
	Limit  *int
	Offset *int

	Count            CountMode
	PreferReturn     ReturnPreference
	PreferResolution Resolution

	// OnConflict is the raw on_conflict parameter (comma separated columns).
	OnConflict string

	ReturnSingle bool

	// Warnings lists every token that was dropped or reinterpreted.
	Warnings []Warning
}

// Embed returns the embed spec addressed by name (alias or table name).
func (q *ParsedQuery) Embed(name string) (*EmbedSpec, bool) {
	for i := range q.Embeds {
		if q.Embeds[i].Name() == name {
			return &q.Embeds[i], true
		}
	}
	return nil, false
}

// HasInnerEmbed reports whether any embed requests INNER JOIN semantics.
func (q *ParsedQuery) HasInnerEmbed() bool {
	for _, e := range q.Embeds {
		if e.Inner {
			return true
		}
	}
	return false
}

// OffsetOrZero returns the offset, treating an absent offset as 0.
func (q *ParsedQuery) OffsetOrZero() int {
	if q.Offset == nil {
		return 0
	}
	return *q.Offset
}

// Clone returns a deep copy so callers can derive ownership queries without
// mutating the request's query.
func (q *ParsedQuery) Clone() *ParsedQuery {
	c := *q
	if q.Select != nil {
		c.Select = append([]string(nil), q.Select...)
	}
	c.Embeds = make([]EmbedSpec, len(q.Embeds))
	for i, e := range q.Embeds {
		e.Columns = append([]string(nil), e.Columns...)
		c.Embeds[i] = e
	}
	c.Filters = append([]Filter(nil), q.Filters...)
	c.Order = append([]OrderSpec(nil), q.Order...)
	c.Warnings = append([]Warning(nil), q.Warnings...)
	if q.Limit != nil {
		v := *q.Limit
		c.Limit = &v
	}
	if q.Offset != nil {
		v := *q.Offset
		c.Offset = &v
	}
	return &c
}

// Filter is one WHERE condition.
type Filter struct {
	// Column may be dotted (embed.column) to address an embedded table.
	Column   string
	Operator Operator
	// Value is string, int64, float64, nil (is.null) or []string (in, ov).
	Value   any
	Negated bool
}

// EmbedSpec describes one embedded (joined) table.
type EmbedSpec struct {
	Table string
	// Alias renames the embedded key in the response (alias:table(...)).
	Alias string
	// Columns is ["*"] for all columns. Never contains embedding syntax.
	Columns []string
	// FKHint is an explicit relationship column. A hint containing "_id" is a
	// column on the embedded table, anything else a column on the main table.
	FKHint string
	// Inner is set by the "!inner" hint: INNER JOIN with single-object rows.
	Inner bool
}

// Name is the key the embed appears under in each result row.
func (e EmbedSpec) Name() string {
	if e.Alias != "" {
		return e.Alias
	}
	return e.Table
}

// OrderSpec is one ORDER BY term.
type OrderSpec struct {
	Column     string
	Ascending  bool
	NullsFirst bool
	NullsLast  bool
}

// Warning records a dropped or reinterpreted token.
type Warning struct {
	Token  string `json:"token"`
	Reason string `json:"reason"`
}
