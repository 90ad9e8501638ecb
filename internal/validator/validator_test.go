package validator

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightdelivered/bank-statement-agent/internal/models"
)

func reference() *models.Table {
	return &models.Table{
		Columns: []string{"date", "amount"},
		Rows: [][]string{
			{"01-08-2024", "10.00"},
			{"02-08-2024", "-5.50"},
			{"03-08-2024", "7.00"},
		},
	}
}

func TestValidateIdentical(t *testing.T) {
	tables := []*models.Table{
		reference(),
		{Columns: []string{"only"}},
		{Columns: []string{"Date", "Narration", "Withdrawal Amt", "Deposit Amt", "Balance"},
			Rows: [][]string{{"01/08/24", "UPI-SWIGGY", "250.00", "", "9,750.00"}}},
	}
	for i, tbl := range tables {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			r := Validate(tbl, tbl)
			assert.True(t, r.Pass, r.Diff)
			assert.Empty(t, r.Diff)
		})
	}
}

func TestValidateReports(t *testing.T) {
	tests := []struct {
		name     string
		result   *models.Table
		want     Report
		wantDiff []string
	}{
		{
			name:     "missing amount column",
			result:   &models.Table{Columns: []string{"date"}, Rows: [][]string{{"01-08-2024"}, {"02-08-2024"}, {"03-08-2024"}}},
			want:     Report{MissingColumns: []string{"amount"}, RowCountGot: 3, RowCountWant: 3},
			wantDiff: []string{`missing columns: "amount"`},
		},
		{
			name: "extra column",
			result: &models.Table{Columns: []string{"date", "amount", "balance"}, Rows: [][]string{
				{"01-08-2024", "10.00", "1"}, {"02-08-2024", "-5.50", "2"}, {"03-08-2024", "7.00", "3"}}},
			want:     Report{ExtraColumns: []string{"balance"}, RowCountGot: 3, RowCountWant: 3},
			wantDiff: []string{`unexpected columns: "balance"`},
		},
		{
			name: "column order",
			result: &models.Table{Columns: []string{"amount", "date"}, Rows: [][]string{
				{"10.00", "01-08-2024"}, {"-5.50", "02-08-2024"}, {"7.00", "03-08-2024"}}},
			want:     Report{ColumnOrder: true, RowCountGot: 3, RowCountWant: 3},
			wantDiff: []string{"column order differs"},
		},
		{
			name:     "row count",
			result:   &models.Table{Columns: []string{"date", "amount"}, Rows: [][]string{{"01-08-2024", "10.00"}, {"02-08-2024", "-5.50"}}},
			want:     Report{RowCountGot: 2, RowCountWant: 3},
			wantDiff: []string{"row count differs: got 2, want 3"},
		},
		{
			name: "cell mismatch",
			result: &models.Table{Columns: []string{"date", "amount"}, Rows: [][]string{
				{"01-08-2024", "10.00"}, {"02-08-2024", "5.50"}, {"03-08-2024", "7.00"}}},
			want:     Report{RowCountGot: 3, RowCountWant: 3, CellMismatches: 1},
			wantDiff: []string{`row 2, column "amount": got "5.50", want "-5.50"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Validate(tt.result, reference())
			assert.False(t, got.Pass)
			for _, d := range tt.wantDiff {
				assert.Contains(t, got.Diff, d)
			}
			if diff := cmp.Diff(tt.want, got, cmpopts.IgnoreFields(Report{}, "Diff")); diff != "" {
				t.Errorf("report mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidateNil(t *testing.T) {
	r := Validate(nil, reference())
	assert.False(t, r.Pass)
	assert.Contains(t, r.Diff, "no table")

	r = Validate(reference(), nil)
	assert.False(t, r.Pass)
	assert.Contains(t, r.Diff, "reference")
}

func TestValidateSymmetric(t *testing.T) {
	others := []*models.Table{
		reference(),
		{Columns: []string{"Date ", "AMOUNT"}, Rows: [][]string{{"01-08-2024", "10"}, {"02-08-2024", "-5.5"}, {" 03-08-2024", "7"}}},
		{Columns: []string{"date"}, Rows: [][]string{{"01-08-2024"}}},
		{Columns: []string{"amount", "date"}},
		{Columns: []string{"date", "amount"}, Rows: [][]string{{"x", "y"}, {"02-08-2024", "-5.50"}, {"03-08-2024", "7.00"}}},
	}
	for i, o := range others {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			assert.Equal(t, Validate(o, reference()).Pass, Validate(reference(), o).Pass)
		})
	}
}

func TestValidateNormalizesColumnNames(t *testing.T) {
	result := &models.Table{
		Columns: []string{" Date", "AMOUNT "},
		Rows:    reference().Rows,
	}
	r := Validate(result, reference())
	assert.True(t, r.Pass, r.Diff)
}

func TestCellsEqual(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"100.00", "100", true},
		{"1,000.50", "1000.5", true},
		{"1,00,000", "100000.00", true},
		{"12,34,567.50", "1234567.5", true},
		{"1,00", "100", false},
		{"1,0000", "10000", false},
		{"12,34", "1234", false},
		{"-5.50", "-5.5", true},
		{"-5.50", "5.50", false},
		{"", "nan", true},
		{"None", "null", true},
		{"NaN", "", true},
		{"0", "", false},
		{"  UPI   Swiggy ", "UPI Swiggy", true},
		{"Cafe\u0301", "Caf\u00e9", true},
		{"upi", "UPI", false},
		{"01-08-2024", "01-08-2024", true},
		{"01-08-2024", "1-8-2024", false},
		{"1,2", "12", false},
	}
	for _, tt := range tests {
		t.Run(tt.a+"|"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, CellsEqual(tt.a, tt.b))
			assert.Equal(t, tt.want, CellsEqual(tt.b, tt.a))
		})
	}
}

func TestDiffLimitsExamples(t *testing.T) {
	ref := &models.Table{Columns: []string{"n"}}
	got := &models.Table{Columns: []string{"n"}}
	for i := 0; i < 12; i++ {
		ref.Rows = append(ref.Rows, []string{fmt.Sprint(i)})
		got.Rows = append(got.Rows, []string{fmt.Sprint(i + 100)})
	}

	r := Validate(got, ref)
	assert.Equal(t, 12, r.CellMismatches)
	assert.Equal(t, 5, strings.Count(r.Diff, "row "))
	assert.Contains(t, r.Diff, "and 7 more differing cells (12 total)")
}

func TestDiffSizeCap(t *testing.T) {
	long := strings.Repeat("x", 900)
	ref := &models.Table{Columns: []string{"a", "b", "c"}, Rows: [][]string{{long, long, long}}}
	got := &models.Table{Columns: []string{"a", "b", "c"}, Rows: [][]string{{"1", "2", "3"}}}

	v := Validator{MaxDiffBytes: 2048}
	r := v.Validate(got, ref)
	require.False(t, r.Pass)
	assert.LessOrEqual(t, len(r.Diff), 2048)
	assert.True(t, strings.HasSuffix(r.Diff, "[diff truncated]"))
	assert.Equal(t, 3, r.CellMismatches)
}
