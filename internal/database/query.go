package database

import (
	"fmt"

	"gorm.io/gorm"
)

// FilterOperator identifies a SQL comparison operator.
type FilterOperator int

// FilterOperator values.
const (
	OpEqual FilterOperator = iota
	OpNotEqual
	OpGreaterThan
	OpGreaterThanOrEqual
	OpLessThan
	OpLessThanOrEqual
	OpLike
	OpILike
	OpIn
	OpNotIn
	OpIsNull
	OpIsNotNull
	OpBetween
)

// operatorSpec carries the SQL spelling and placeholder count of an operator.
type operatorSpec struct {
	sql      string
	operands int
}

var operatorSpecs = map[FilterOperator]operatorSpec{
	OpEqual:              {"=", 1},
	OpNotEqual:           {"!=", 1},
	OpGreaterThan:        {">", 1},
	OpGreaterThanOrEqual: {">=", 1},
	OpLessThan:           {"<", 1},
	OpLessThanOrEqual:    {"<=", 1},
	OpLike:               {"LIKE", 1},
	OpILike:              {"ILIKE", 1},
	OpIn:                 {"IN", 1},
	OpNotIn:              {"NOT IN", 1},
	OpIsNull:             {"IS NULL", 0},
	OpIsNotNull:          {"IS NOT NULL", 0},
	OpBetween:            {"BETWEEN", 2},
}

// String returns the SQL spelling of the operator.
func (o FilterOperator) String() string {
	if spec, ok := operatorSpecs[o]; ok {
		return spec.sql
	}
	return "="
}

// Filter is one WHERE condition.
type Filter struct {
	field    string
	operator FilterOperator
	value    any
	value2   any // upper bound for BETWEEN
}

// NewFilter creates a single-operand Filter.
func NewFilter(field string, operator FilterOperator, value any) Filter {
	return Filter{field: field, operator: operator, value: value}
}

// NewBetweenFilter creates a BETWEEN Filter over [low, high].
func NewBetweenFilter(field string, low, high any) Filter {
	return Filter{field: field, operator: OpBetween, value: low, value2: high}
}

// Field returns the column the filter applies to.
func (f Filter) Field() string { return f.field }

// Operator returns the comparison operator.
func (f Filter) Operator() FilterOperator { return f.operator }

// Value returns the bound value (the lower bound for BETWEEN).
func (f Filter) Value() any { return f.value }

func (f Filter) apply(db *gorm.DB) *gorm.DB {
	spec, ok := operatorSpecs[f.operator]
	if !ok {
		spec = operatorSpecs[OpEqual]
	}
	switch spec.operands {
	case 0:
		return db.Where(fmt.Sprintf("%s %s", f.field, spec.sql))
	case 2:
		return db.Where(fmt.Sprintf("%s %s ? AND ?", f.field, spec.sql), f.value, f.value2)
	default:
		return db.Where(fmt.Sprintf("%s %s ?", f.field, spec.sql), f.value)
	}
}

// SortDirection is an ORDER BY direction.
type SortDirection int

// SortDirection values.
const (
	SortAsc SortDirection = iota
	SortDesc
)

// String returns the SQL spelling of the direction.
func (s SortDirection) String() string {
	if s == SortDesc {
		return "DESC"
	}
	return "ASC"
}

// OrderBy is one ORDER BY term.
type OrderBy struct {
	field     string
	direction SortDirection
}

// NewOrderBy creates an OrderBy.
func NewOrderBy(field string, direction SortDirection) OrderBy {
	return OrderBy{field: field, direction: direction}
}

// Field returns the column to sort by.
func (o OrderBy) Field() string { return o.field }

// Direction returns the sort direction.
func (o OrderBy) Direction() SortDirection { return o.direction }

// Query is an immutable builder for filters, ordering and pagination. Each
// method returns a copy, so partially built queries can be shared.
type Query struct {
	filters []Filter
	orderBy []OrderBy
	limit   int
	offset  int
}

// NewQuery returns an empty Query.
func NewQuery() Query {
	return Query{}
}

// Where adds an arbitrary filter condition.
func (q Query) Where(field string, operator FilterOperator, value any) Query {
	q.filters = append(q.filters, NewFilter(field, operator, value))
	return q
}

// WhereBetween adds a BETWEEN condition over [low, high].
func (q Query) WhereBetween(field string, low, high any) Query {
	q.filters = append(q.filters, NewBetweenFilter(field, low, high))
	return q
}

// Equal adds field = value.
func (q Query) Equal(field string, value any) Query {
	return q.Where(field, OpEqual, value)
}

// NotEqual adds field != value.
func (q Query) NotEqual(field string, value any) Query {
	return q.Where(field, OpNotEqual, value)
}

// GreaterThan adds field > value.
func (q Query) GreaterThan(field string, value any) Query {
	return q.Where(field, OpGreaterThan, value)
}

// GreaterThanOrEqual adds field >= value.
func (q Query) GreaterThanOrEqual(field string, value any) Query {
	return q.Where(field, OpGreaterThanOrEqual, value)
}

// LessThan adds field < value.
func (q Query) LessThan(field string, value any) Query {
	return q.Where(field, OpLessThan, value)
}

// LessThanOrEqual adds field <= value.
func (q Query) LessThanOrEqual(field string, value any) Query {
	return q.Where(field, OpLessThanOrEqual, value)
}

// Like adds field LIKE pattern.
func (q Query) Like(field string, pattern string) Query {
	return q.Where(field, OpLike, pattern)
}

// ILike adds a case-insensitive LIKE (postgres only).
func (q Query) ILike(field string, pattern string) Query {
	return q.Where(field, OpILike, pattern)
}

// In adds field IN values.
func (q Query) In(field string, values any) Query {
	return q.Where(field, OpIn, values)
}

// NotIn adds field NOT IN values.
func (q Query) NotIn(field string, values any) Query {
	return q.Where(field, OpNotIn, values)
}

// IsNull adds field IS NULL.
func (q Query) IsNull(field string) Query {
	return q.Where(field, OpIsNull, nil)
}

// IsNotNull adds field IS NOT NULL.
func (q Query) IsNotNull(field string) Query {
	return q.Where(field, OpIsNotNull, nil)
}

// Order appends an ORDER BY term.
func (q Query) Order(field string, direction SortDirection) Query {
	q.orderBy = append(q.orderBy, NewOrderBy(field, direction))
	return q
}

// OrderAsc appends an ascending ORDER BY term.
func (q Query) OrderAsc(field string) Query {
	return q.Order(field, SortAsc)
}

// OrderDesc appends a descending ORDER BY term.
func (q Query) OrderDesc(field string) Query {
	return q.Order(field, SortDesc)
}

// Limit caps the number of results. Zero means unlimited.
func (q Query) Limit(limit int) Query {
	q.limit = limit
	return q
}

// Offset skips the first offset results.
func (q Query) Offset(offset int) Query {
	q.offset = offset
	return q
}

// Paginate sets limit and offset from a 1-based page number. Invalid pages
// fall back to page 1; invalid page sizes fall back to 10.
func (q Query) Paginate(page, pageSize int) Query {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	q.limit = pageSize
	q.offset = (page - 1) * pageSize
	return q
}

// Filters returns a copy of the filter conditions.
func (q Query) Filters() []Filter {
	out := make([]Filter, len(q.filters))
	copy(out, q.filters)
	return out
}

// Orders returns a copy of the ORDER BY terms.
func (q Query) Orders() []OrderBy {
	out := make([]OrderBy, len(q.orderBy))
	copy(out, q.orderBy)
	return out
}

// LimitValue returns the configured limit (0 means unlimited).
func (q Query) LimitValue() int { return q.limit }

// OffsetValue returns the configured offset.
func (q Query) OffsetValue() int { return q.offset }

// Apply attaches every condition, ordering and pagination clause to db.
func (q Query) Apply(db *gorm.DB) *gorm.DB {
	result := q.applyConditions(db)

	for _, order := range q.orderBy {
		result = result.Order(order.field + " " + order.direction.String())
	}
	if q.limit > 0 {
		result = result.Limit(q.limit)
	}
	if q.offset > 0 {
		result = result.Offset(q.offset)
	}
	return result
}

// applyConditions attaches only the WHERE conditions, for COUNT, UPDATE and
// DELETE statements where ordering and pagination do not apply.
func (q Query) applyConditions(db *gorm.DB) *gorm.DB {
	result := db
	for _, filter := range q.filters {
		result = filter.apply(result)
	}
	return result
}
