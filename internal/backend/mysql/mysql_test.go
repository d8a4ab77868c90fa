package mysql

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func testClient(t *testing.T, readOnly bool) *Client {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	c, err := NewClient("test-db", map[string]any{
		"host":      "localhost",
		"port":      float64(3306),
		"database":  "testdb",
		"read_only": readOnly,
	}, map[string]string{
		"username": "reader",
		"password": "pw",
	}, logger)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestViolatesReadOnly(t *testing.T) {
	cases := []struct {
		sql      string
		violates bool
	}{
		{"SELECT * FROM users", false},
		{"  select id from orders  ", false},
		{"\n\tSELECT 1", false},
		{"UPDATE users SET name='x'", true},
		{"DELETE FROM users", true},
		{"INSERT INTO users VALUES (1)", true},
		{"DROP TABLE users", true},
		{"", true},
	}
	for _, tc := range cases {
		if got := violatesReadOnly(tc.sql); got != tc.violates {
			t.Errorf("violatesReadOnly(%q) = %v, want %v", tc.sql, got, tc.violates)
		}
	}
}

func TestCallToolNotConnected(t *testing.T) {
	c := testClient(t, true)

	result, err := c.CallTool(context.Background(), "query", map[string]any{"sql": "SELECT 1"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Fatal("expected failure without a connection")
	}
	if !strings.Contains(result.Error, "not connected") {
		t.Fatalf("unexpected error: %s", result.Error)
	}
}

// mustOpenStub opens a lazy pool handle that never dials. Paths that fail
// before executing a statement can run against it.
func mustOpenStub(t *testing.T, c *Client) *sql.DB {
	t.Helper()
	db, err := sql.Open("mysql", c.dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCallToolUnknownTool(t *testing.T) {
	c := testClient(t, true)
	c.db = mustOpenStub(t, c)

	result, err := c.CallTool(context.Background(), "drop_database", nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Fatal("expected failure for unknown tool")
	}
	if !strings.Contains(result.Error, "unknown tool") {
		t.Fatalf("unexpected error: %s", result.Error)
	}
}

func TestCallToolSchemaValidation(t *testing.T) {
	c := testClient(t, true)
	c.db = mustOpenStub(t, c)

	// query requires "sql"
	result, err := c.CallTool(context.Background(), "query", map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Fatal("expected validation failure for missing sql parameter")
	}
	if !strings.Contains(result.Error, "invalid parameters") {
		t.Fatalf("unexpected error: %s", result.Error)
	}

	// describe_table requires "table" as a string
	result, err = c.CallTool(context.Background(), "describe_table", map[string]any{"table": 42})
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Fatal("expected validation failure for non-string table")
	}
}

func TestReadOnlyCheckedBeforeExecution(t *testing.T) {
	c := testClient(t, true)
	c.db = mustOpenStub(t, c)

	// The DSN points nowhere; a rejected statement must fail on the
	// read-only rule, not on a connection error.
	result, err := c.CallTool(context.Background(), "query", map[string]any{"sql": "UPDATE users SET a=1"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Fatal("expected read-only rejection")
	}
	if !strings.Contains(result.Error, "read-only") {
		t.Fatalf("expected read-only error, got: %s", result.Error)
	}
}

func TestToolCatalog(t *testing.T) {
	c := testClient(t, false)
	tools, err := c.ListTools(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(tools) != 3 {
		t.Fatalf("expected 3 tools, got %d", len(tools))
	}
	names := []string{tools[0].Name, tools[1].Name, tools[2].Name}
	want := []string{"query", "list_tables", "describe_table"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected tool order %v, got %v", want, names)
		}
	}
	for _, tool := range tools {
		if tool.Parameters["type"] != "object" {
			t.Fatalf("tool %s: parameter schema must be an object schema", tool.Name)
		}
	}
}

func TestCompileToolSchemas(t *testing.T) {
	schemas, err := compileToolSchemas()
	if err != nil {
		t.Fatal(err)
	}
	if len(schemas) != 3 {
		t.Fatalf("expected 3 compiled schemas, got %d", len(schemas))
	}
	if issue := schemas["query"].validate(map[string]any{"sql": "SELECT 1"}); issue != "" {
		t.Fatalf("expected valid params, got: %s", issue)
	}
	if issue := schemas["query"].validate(map[string]any{"sql": 7}); issue == "" {
		t.Fatal("expected validation issue for non-string sql")
	}
}
