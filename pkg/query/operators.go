package query

// Operator is a filter operator code as written in the query string.
type Operator string

const (
	OpEqual          Operator = "eq"
	OpNotEqual       Operator = "neq"
	OpGreaterThan    Operator = "gt"
	OpGreaterOrEqual Operator = "gte"
	OpLessThan       Operator = "lt"
	OpLessOrEqual    Operator = "lte"
	OpLike           Operator = "like"
	OpILike          Operator = "ilike"
	OpIn             Operator = "in"
	OpIs             Operator = "is"
	OpContains       Operator = "cs" // @>
	OpContainedBy    Operator = "cd" // <@
	OpOverlap        Operator = "ov" // &&
)

// Coercion is how a filter value's text is turned into a typed value.
type Coercion int

const (
	// CoerceText keeps the value as a string.
	CoerceText Coercion = iota
	// CoerceNumeric parses integers and decimals, falling back to string.
	CoerceNumeric
	// CoerceList splits a comma separated (optionally parenthesised) list.
	CoerceList
	// CoerceIs accepts null (typed nil), true, false and unknown.
	CoerceIs
	// CoerceRangeOrArray keeps range literals verbatim and splits {a,b} arrays.
	CoerceRangeOrArray
)

// OperatorInfo is the static definition of an operator.
type OperatorInfo struct {
	// SQL is the condition operator placed between column and value.
	SQL      string
	Coercion Coercion
}

var operatorTable = map[Operator]OperatorInfo{
	OpEqual:          {SQL: "=", Coercion: CoerceNumeric},
	OpNotEqual:       {SQL: "<>", Coercion: CoerceNumeric},
	OpGreaterThan:    {SQL: ">", Coercion: CoerceNumeric},
	OpGreaterOrEqual: {SQL: ">=", Coercion: CoerceNumeric},
	OpLessThan:       {SQL: "<", Coercion: CoerceNumeric},
	OpLessOrEqual:    {SQL: "<=", Coercion: CoerceNumeric},
	OpLike:           {SQL: "LIKE", Coercion: CoerceText},
	OpILike:          {SQL: "ILIKE", Coercion: CoerceText},
	OpIn:             {SQL: "IN", Coercion: CoerceList},
	OpIs:             {SQL: "IS", Coercion: CoerceIs},
	OpContains:       {SQL: "@>", Coercion: CoerceText},
	OpContainedBy:    {SQL: "<@", Coercion: CoerceText},
	OpOverlap:        {SQL: "&&", Coercion: CoerceRangeOrArray},
}

// LookupOperator returns the operator for a code, or false if the code is
// not in the operator table.
func LookupOperator(code string) (Operator, bool) {
	op := Operator(code)
	return op, op.Valid()
}

// Info returns the operator's table entry.
func (o Operator) Info() (OperatorInfo, bool) {
	info, ok := operatorTable[o]
	return info, ok
}

// Valid reports whether the operator exists in the operator table.
func (o Operator) Valid() bool {
	_, ok := operatorTable[o]
	return ok
}
