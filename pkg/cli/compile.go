package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-rest/pkg/engine"
	"github.com/ekaya-inc/ekaya-rest/pkg/query"
	restsql "github.com/ekaya-inc/ekaya-rest/pkg/sql"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Method  string
	Headers []string
	Body    string
	Inline  bool
	JSON    bool
}

// CompiledOutput is the JSON form of a compiled request.
type CompiledOutput struct {
	Operation  string          `json:"operation"`
	SQL        string          `json:"sql"`
	Parameters []any           `json:"parameters"`
	CountSQL   string          `json:"count_sql,omitempty"`
	Warnings   []query.Warning `json:"warnings,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <table> [query-string]",
		Short: "Print the SQL a REST request compiles to",
		Long: `Compile a REST request into SQL without touching the database.

Examples:
  ekaya-rest compile instruments 'select=name,orchestral_sections(name)&name=like.v*'
  ekaya-rest compile instruments --method PATCH 'id=eq.1' --body '{"name":"viola"}' --inline`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rawQuery := ""
			if len(args) == 2 {
				rawQuery = strings.TrimPrefix(args[1], "?")
			}
			return runCompile(opts, args[0], rawQuery, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.Method, "method", "X", http.MethodGet, "HTTP method")
	cmd.Flags().StringArrayVarP(&opts.Headers, "header", "H", nil, `request header as "Name: value" (repeatable)`)
	cmd.Flags().StringVarP(&opts.Body, "body", "d", "", "JSON request body")
	cmd.Flags().BoolVar(&opts.Inline, "inline", false, "embed parameters as literals")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print JSON instead of text")

	return cmd
}

func runCompile(opts *CompileOptions, table, rawQuery string, out io.Writer) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	headers, err := parseHeaders(opts.Headers)
	if err != nil {
		return err
	}

	var body []byte
	if opts.Body != "" {
		body = []byte(opts.Body)
	}

	eng := engine.New(nil, nil, engineConfig(cfg), zap.NewNop())
	p, err := eng.Compile(opts.Method, table, rawQuery, headers, body)
	if err != nil {
		return fmt.Errorf("compile failed: %w", err)
	}

	return writeCompiled(out, p, opts.Inline, opts.JSON)
}

func writeCompiled(out io.Writer, p *engine.Plan, inline, asJSON bool) error {
	result := CompiledOutput{
		Operation:  string(p.Operation),
		SQL:        p.Statement.SQL,
		Parameters: p.Statement.Parameters,
		Warnings:   p.Query.Warnings,
	}
	if result.Parameters == nil {
		result.Parameters = []any{}
	}
	if p.Count != nil {
		result.CountSQL = p.Count.SQL
	}
	if inline {
		result.SQL = p.Statement.Inline()
		result.Parameters = []any{}
		if p.Count != nil {
			result.CountSQL = p.Count.Inline()
		}
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Fprintf(out, "-- %s\n%s;\n", result.Operation, result.SQL)
	for i, v := range result.Parameters {
		fmt.Fprintf(out, "-- $%d = %s\n", i+1, restsql.Literal(v))
	}
	if result.CountSQL != "" {
		fmt.Fprintf(out, "-- count\n%s;\n", result.CountSQL)
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(out, "-- dropped %q: %s\n", w.Token, w.Reason)
	}
	return nil
}

// parseHeaders turns "Name: value" strings into a header set.
func parseHeaders(raw []string) (http.Header, error) {
	headers := http.Header{}
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q: expected \"Name: value\"", h)
		}
		headers.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	return headers, nil
}
