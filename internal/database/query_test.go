package database

import (
	"context"
	"testing"
)

func TestFilterOperator_String(t *testing.T) {
	tests := []struct {
		op   FilterOperator
		want string
	}{
		{OpEqual, "="},
		{OpNotEqual, "!="},
		{OpGreaterThan, ">"},
		{OpGreaterThanOrEqual, ">="},
		{OpLessThan, "<"},
		{OpLessThanOrEqual, "<="},
		{OpLike, "LIKE"},
		{OpILike, "ILIKE"},
		{OpIn, "IN"},
		{OpNotIn, "NOT IN"},
		{OpIsNull, "IS NULL"},
		{OpIsNotNull, "IS NOT NULL"},
		{OpBetween, "BETWEEN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.op.String(); got != tt.want {
				t.Errorf("String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSortDirection_String(t *testing.T) {
	if SortAsc.String() != "ASC" {
		t.Errorf("SortAsc.String() = %v", SortAsc.String())
	}
	if SortDesc.String() != "DESC" {
		t.Errorf("SortDesc.String() = %v", SortDesc.String())
	}
}

func TestNewFilter(t *testing.T) {
	f := NewFilter("model", OpEqual, "gpt_4")

	if f.Field() != "model" {
		t.Errorf("Field() = %v", f.Field())
	}
	if f.Operator() != OpEqual {
		t.Errorf("Operator() = %v", f.Operator())
	}
	if f.Value() != "gpt_4" {
		t.Errorf("Value() = %v", f.Value())
	}
}

func TestNewBetweenFilter(t *testing.T) {
	f := NewBetweenFilter("hit_count", 5, 50)

	if f.Field() != "hit_count" {
		t.Errorf("Field() = %v", f.Field())
	}
	if f.Operator() != OpBetween {
		t.Errorf("Operator() = %v", f.Operator())
	}
	if f.Value() != 5 {
		t.Errorf("Value() = %v", f.Value())
	}
}

func TestNewOrderBy(t *testing.T) {
	o := NewOrderBy("created_at", SortDesc)

	if o.Field() != "created_at" {
		t.Errorf("Field() = %v", o.Field())
	}
	if o.Direction() != SortDesc {
		t.Errorf("Direction() = %v", o.Direction())
	}
}

func TestQuery_Chaining(t *testing.T) {
	q := NewQuery().
		Equal("model", "gpt_4").
		GreaterThan("hit_count", 3).
		In("answer_type", []string{"text", "object"}).
		OrderDesc("created_at").
		Limit(10).
		Offset(20)

	if got := len(q.Filters()); got != 3 {
		t.Errorf("expected 3 filters, got %d", got)
	}
	if got := len(q.Orders()); got != 1 {
		t.Errorf("expected 1 order, got %d", got)
	}
	if q.LimitValue() != 10 {
		t.Errorf("LimitValue() = %v", q.LimitValue())
	}
	if q.OffsetValue() != 20 {
		t.Errorf("OffsetValue() = %v", q.OffsetValue())
	}
}

func TestQuery_Paginate(t *testing.T) {
	tests := []struct {
		page     int
		pageSize int
		wantLim  int
		wantOff  int
	}{
		{1, 10, 10, 0},
		{2, 10, 10, 10},
		{3, 25, 25, 50},
		{0, 10, 10, 0},  // page < 1 defaults to 1
		{1, 0, 10, 0},   // pageSize < 1 defaults to 10
		{-1, -5, 10, 0}, // both invalid default
	}

	for _, tt := range tests {
		q := NewQuery().Paginate(tt.page, tt.pageSize)
		if q.LimitValue() != tt.wantLim {
			t.Errorf("Paginate(%d, %d) limit = %d, want %d", tt.page, tt.pageSize, q.LimitValue(), tt.wantLim)
		}
		if q.OffsetValue() != tt.wantOff {
			t.Errorf("Paginate(%d, %d) offset = %d, want %d", tt.page, tt.pageSize, q.OffsetValue(), tt.wantOff)
		}
	}
}

func TestQuery_AllFilterTypes(t *testing.T) {
	q := NewQuery().
		Equal("a", 1).
		NotEqual("b", 2).
		GreaterThan("c", 3).
		GreaterThanOrEqual("d", 4).
		LessThan("e", 5).
		LessThanOrEqual("f", 6).
		Like("g", "%what%").
		ILike("h", "%WHAT%").
		In("i", []int{1, 2, 3}).
		NotIn("j", []int{4, 5, 6}).
		IsNull("k").
		IsNotNull("l").
		WhereBetween("m", 10, 20)

	filters := q.Filters()
	expectedOps := []FilterOperator{
		OpEqual, OpNotEqual, OpGreaterThan, OpGreaterThanOrEqual,
		OpLessThan, OpLessThanOrEqual, OpLike, OpILike,
		OpIn, OpNotIn, OpIsNull, OpIsNotNull, OpBetween,
	}
	if len(filters) != len(expectedOps) {
		t.Fatalf("expected %d filters, got %d", len(expectedOps), len(filters))
	}
	for i, filter := range filters {
		if filter.Operator() != expectedOps[i] {
			t.Errorf("filter %d: Operator() = %v, want %v", i, filter.Operator(), expectedOps[i])
		}
	}
}

func TestQuery_OrderMethods(t *testing.T) {
	q := NewQuery().
		OrderAsc("model").
		OrderDesc("created_at").
		Order("updated_at", SortAsc)

	orders := q.Orders()
	if len(orders) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(orders))
	}
	if orders[0].Field() != "model" || orders[0].Direction() != SortAsc {
		t.Errorf("order 0: got %s %v", orders[0].Field(), orders[0].Direction())
	}
	if orders[1].Field() != "created_at" || orders[1].Direction() != SortDesc {
		t.Errorf("order 1: got %s %v", orders[1].Field(), orders[1].Direction())
	}
	if orders[2].Field() != "updated_at" || orders[2].Direction() != SortAsc {
		t.Errorf("order 2: got %s %v", orders[2].Field(), orders[2].Direction())
	}
}

type entryRow struct {
	ID       int64
	Model    string
	HitCount int
}

func seedEntryRows(t *testing.T, db Database) {
	t.Helper()
	ctx := context.Background()
	err := db.Session(ctx).Exec(`
		CREATE TABLE entry_rows (
			id INTEGER PRIMARY KEY,
			model TEXT,
			hit_count INTEGER
		)
	`).Error
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	err = db.Session(ctx).Exec(`
		INSERT INTO entry_rows (model, hit_count) VALUES
		('gpt_4', 12),
		('gpt_4', 3),
		('codellama', 7)
	`).Error
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func TestQuery_Apply(t *testing.T) {
	db := openTestDB(t)
	seedEntryRows(t, db)

	q := NewQuery().
		Equal("model", "gpt_4").
		GreaterThan("hit_count", 2).
		OrderDesc("hit_count").
		Limit(10)

	var rows []entryRow
	result := q.Apply(db.Session(context.Background()).Table("entry_rows")).Find(&rows)
	if result.Error != nil {
		t.Fatalf("query: %v", result.Error)
	}

	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].HitCount != 12 || rows[1].HitCount != 3 {
		t.Errorf("expected hit_count DESC order, got %d then %d", rows[0].HitCount, rows[1].HitCount)
	}
}

func TestQuery_ApplyWithBetween(t *testing.T) {
	db := openTestDB(t)
	seedEntryRows(t, db)

	q := NewQuery().WhereBetween("hit_count", 3, 7)

	var rows []entryRow
	result := q.Apply(db.Session(context.Background()).Table("entry_rows")).Find(&rows)
	if result.Error != nil {
		t.Fatalf("query: %v", result.Error)
	}
	if len(rows) != 2 {
		t.Errorf("expected 2 rows in range, got %d", len(rows))
	}
}

func TestQuery_ApplyWithIn(t *testing.T) {
	db := openTestDB(t)
	seedEntryRows(t, db)

	q := NewQuery().In("model", []string{"codellama"})

	var rows []entryRow
	result := q.Apply(db.Session(context.Background()).Table("entry_rows")).Find(&rows)
	if result.Error != nil {
		t.Fatalf("query: %v", result.Error)
	}
	if len(rows) != 1 {
		t.Errorf("expected 1 row, got %d", len(rows))
	}
}
