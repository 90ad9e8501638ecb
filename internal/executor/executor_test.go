package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightdelivered/bank-statement-agent/internal/models"
)

const childEnv = "BANKAGENT_EXECUTOR_TEST_CHILD"

// TestMain doubles as the exec-parser child when the helper env var is set.
func TestMain(m *testing.M) {
	if os.Getenv(childEnv) == "1" {
		n := len(os.Args)
		if err := RunChildStdout(context.Background(), os.Args[n-2], os.Args[n-1], zerolog.Nop()); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

const statement = `ICICI Bank statement of account
Date        Narration              Amount
01-08-2024  UPI/Swiggy             -250.00
02-08-2024  NEFT Salary            50,000.00
03-08-2024  ATM withdrawal         (1,000.00)
`

const goodParser = `package main

import (
	"strings"

	"bankagent/stmt"
)

func Parse(path string) ([]string, [][]string, error) {
	pages, err := stmt.Pages(path)
	if err != nil {
		return nil, nil, err
	}
	var rows [][]string
	for _, line := range stmt.Lines(pages) {
		if !stmt.StartsWithDate(line) {
			continue
		}
		cols := stmt.SplitColumns(line)
		amt, err := stmt.ParseAmount(cols[len(cols)-1])
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, []string{stmt.ExtractDate(line), strings.ToUpper(cols[1]), stmt.FormatAmount(amt)})
	}
	return []string{"date", "description", "amount"}, rows, nil
}
`

var wantTable = &models.Table{
	Columns: []string{"date", "description", "amount"},
	Rows: [][]string{
		{"01-08-2024", "UPI/SWIGGY", "-250.00"},
		{"02-08-2024", "NEFT SALARY", "50000.00"},
		{"03-08-2024", "ATM WITHDRAWAL", "-1000.00"},
	},
}

func writeStatement(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "icici_sample.txt")
	require.NoError(t, os.WriteFile(path, []byte(statement), 0o644))
	return path
}

func writeArtifact(t *testing.T, src string) models.Artifact {
	t.Helper()
	path := filepath.Join(t.TempDir(), "icici_parser.go")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return models.Artifact{Target: "icici", Path: path, Source: src}
}

func parserReturning(body string) string {
	return "package main\n\nimport \"errors\"\n\nvar _ = errors.New\n\nfunc Parse(path string) ([]string, [][]string, error) {\n" + body + "\n}\n"
}

func TestInterpreterExecute(t *testing.T) {
	in := &Interpreter{Timeout: 10 * time.Second, Logger: zerolog.Nop()}

	got, err := in.Execute(context.Background(), models.Artifact{Source: goodParser}, writeStatement(t))
	require.NoError(t, err)
	assert.Equal(t, wantTable, got)
}

func TestInterpreterFailures(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "forbidden import",
			src:  "package main\n\nimport \"os\"\n\nfunc Parse(path string) ([]string, [][]string, error) {\n\tos.Exit(1)\n\treturn nil, nil, nil\n}\n",
			want: "forbidden imports os",
		},
		{
			name: "compile error",
			src:  parserReturning("\treturn undefinedThing, nil, nil"),
			want: "failed to compile",
		},
		{
			name: "returned error",
			src:  parserReturning("\treturn nil, nil, errors.New(\"no transactions table found\")"),
			want: "no transactions table found",
		},
		{
			name: "panic",
			src:  parserReturning("\tvar rows [][]string\n\treturn []string{rows[3][0]}, nil, nil"),
			want: "panic",
		},
		{
			name: "ragged rows",
			src:  parserReturning("\treturn []string{\"date\", \"amount\"}, [][]string{{\"01-08-2024\"}}, nil"),
			want: "row 1 has 1 cells, expected 2",
		},
		{
			name: "no columns",
			src:  parserReturning("\treturn nil, nil, nil"),
			want: "no columns",
		},
		{
			name: "wrong signature",
			src:  "package main\n\nfunc Parse(path string) []string {\n\treturn nil\n}\n",
			want: "signature",
		},
	}

	in := &Interpreter{Timeout: 10 * time.Second, Logger: zerolog.Nop()}
	input := writeStatement(t)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := in.Execute(context.Background(), models.Artifact{Source: tt.src}, input)
			require.Error(t, err)

			var ee *ExecutionError
			require.ErrorAs(t, err, &ee)
			assert.Contains(t, ee.Detail, tt.want)
			assert.False(t, ee.TimedOut)
		})
	}
}

func TestInterpreterTimeout(t *testing.T) {
	src := "package main\n\nimport \"time\"\n\nfunc Parse(path string) ([]string, [][]string, error) {\n\ttime.Sleep(300 * time.Millisecond)\n\treturn []string{\"a\"}, nil, nil\n}\n"
	in := &Interpreter{Timeout: 20 * time.Millisecond, Logger: zerolog.Nop()}

	_, err := in.Execute(context.Background(), models.Artifact{Source: src}, writeStatement(t))
	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.True(t, ee.TimedOut)
}

func TestCheckImports(t *testing.T) {
	require.NoError(t, CheckImports(goodParser))

	err := CheckImports("package main\n\nimport (\n\t\"net/http\"\n\t\"os/exec\"\n\t\"strings\"\n)\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "net/http, os/exec")
	assert.NotContains(t, strings.SplitN(err.Error(), "(allowed", 2)[0], "strings")
}

func newSubprocess(timeout time.Duration, maxOut int64) *Subprocess {
	return &Subprocess{
		Command:        os.Args[0],
		Env:            []string{childEnv + "=1"},
		Timeout:        timeout,
		MaxOutputBytes: maxOut,
		Logger:         zerolog.Nop(),
	}
}

func TestSubprocessExecute(t *testing.T) {
	s := newSubprocess(30*time.Second, 8<<20)

	got, err := s.Execute(context.Background(), writeArtifact(t, goodParser), writeStatement(t))
	require.NoError(t, err)
	assert.Equal(t, wantTable, got)
}

func TestSubprocessParserError(t *testing.T) {
	s := newSubprocess(30*time.Second, 8<<20)
	art := writeArtifact(t, parserReturning("\treturn nil, nil, errors.New(\"header row not found\")"))

	_, err := s.Execute(context.Background(), art, writeStatement(t))
	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Contains(t, ee.Detail, "header row not found")
}

func TestSubprocessParserPrintsDoNotCorruptOutput(t *testing.T) {
	src := "package main\n\nimport \"fmt\"\n\nfunc Parse(path string) ([]string, [][]string, error) {\n\tfmt.Println(\"debugging\")\n\treturn []string{\"a\"}, [][]string{{\"1\"}}, nil\n}\n"
	s := newSubprocess(30*time.Second, 8<<20)

	got, err := s.Execute(context.Background(), writeArtifact(t, src), writeStatement(t))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1"}}, got.Rows)
}

func TestSubprocessTimeout(t *testing.T) {
	src := "package main\n\nimport \"time\"\n\nfunc Parse(path string) ([]string, [][]string, error) {\n\ttime.Sleep(time.Minute)\n\treturn nil, nil, nil\n}\n"
	s := newSubprocess(300*time.Millisecond, 8<<20)

	start := time.Now()
	_, err := s.Execute(context.Background(), writeArtifact(t, src), writeStatement(t))
	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.True(t, ee.TimedOut)
	assert.Contains(t, ee.Detail, "timed out after 300ms")
	assert.Less(t, time.Since(start), 30*time.Second)
}

func TestSubprocessOutputCap(t *testing.T) {
	s := newSubprocess(30*time.Second, 16)

	_, err := s.Execute(context.Background(), writeArtifact(t, goodParser), writeStatement(t))
	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Contains(t, ee.Detail, "exceeded 16 bytes")
}

func TestSubprocessChildFailure(t *testing.T) {
	s := newSubprocess(30*time.Second, 8<<20)
	art := models.Artifact{Path: filepath.Join(t.TempDir(), "missing_parser.go")}

	_, err := s.Execute(context.Background(), art, writeStatement(t))
	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Contains(t, ee.Detail, "read artifact")
}

func TestCapWriter(t *testing.T) {
	w := &capWriter{max: 4}
	n, err := w.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.True(t, w.overflow)
	assert.Equal(t, "abcd", w.buf.String())
}
