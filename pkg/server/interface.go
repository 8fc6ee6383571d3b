/*
Package server implements msgpack IPC between an editor extension and the
CodeServe engine.

Requests and responses are consecutive msgpack maps over stdin/stdout.
Every request carries an id and an action; every response echoes the id and
the time taken in microseconds under "t".

On start the server writes a ready frame:

	{"id": "", "status": "ready", "t": 0}

The editor reports edits so the engine can learn while the user types:

	{"id": "e1", "action": "edit", "uri": "file:///a.js", "lang": "javascript", "text": "...", "change": ";"}

and asks for predictions for the line being typed:

	{"id": "p1", "action": "predict", "lang": "javascript", "line": "if (ready) {", "ctx": "..."}
	{"id": "p1", "kind": "conditional_statement", "code": "\n  \n}", "conf": 0.6, "t": 42}

Supported actions: edit, predict, decorate, complete, hover, learn,
snippet.save, snippet.list, snippet.delete, snippet.match, report, stats
and health.

Failures produce an error frame with an HTTP-like code:

	{"id": "p1", "e": "line exceeds maximum length of 400", "c": 400, "t": 3}
*/
package server

import (
	"github.com/bastiangx/codeserve/pkg/patterns"
	"github.com/bastiangx/codeserve/pkg/report"
	"github.com/bastiangx/codeserve/pkg/snippets"
	"github.com/bastiangx/codeserve/pkg/suggest"
)

// Actions.
const (
	ActionEdit          = "edit"
	ActionPredict       = "predict"
	ActionDecorate      = "decorate"
	ActionComplete      = "complete"
	ActionHover         = "hover"
	ActionLearn         = "learn"
	ActionSnippetSave   = "snippet.save"
	ActionSnippetList   = "snippet.list"
	ActionSnippetDelete = "snippet.delete"
	ActionSnippetMatch  = "snippet.match"
	ActionReport        = "report"
	ActionStats         = "stats"
	ActionHealth        = "health"
)

// Request is the union of all request fields; each action reads the
// subset it needs.
type Request struct {
	ID       string `msgpack:"id"`
	Action   string `msgpack:"action"`
	URI      string `msgpack:"uri,omitempty"`
	Language string `msgpack:"lang,omitempty"`
	// Text is the full document.
	Text   string `msgpack:"text,omitempty"`
	Change string `msgpack:"change,omitempty"`
	// Line is the current line as typed; LineNumber is 1-indexed.
	Line       string           `msgpack:"line,omitempty"`
	LineNumber int              `msgpack:"ln,omitempty"`
	Context    string           `msgpack:"ctx,omitempty"`
	Limit      int              `msgpack:"l,omitempty"`
	Code       string           `msgpack:"code,omitempty"`
	Snippet    *suggest.Snippet `msgpack:"snippet,omitempty"`
	SnippetID  string           `msgpack:"sid,omitempty"`
	Root       string           `msgpack:"root,omitempty"`
	// Format selects the report rendering: "md" or "yaml". Empty returns
	// the structured report only.
	Format string `msgpack:"fmt,omitempty"`
}

// StatusResponse answers ready and health frames and acknowledges
// mutations without a payload.
type StatusResponse struct {
	ID        string `msgpack:"id"`
	Status    string `msgpack:"status"`
	TimeTaken int64  `msgpack:"t"`
}

// PredictionResponse carries a quick prediction. Kind is empty when there
// is nothing to insert.
type PredictionResponse struct {
	ID         string  `msgpack:"id"`
	Kind       string  `msgpack:"kind"`
	Code       string  `msgpack:"code,omitempty"`
	Confidence float64 `msgpack:"conf,omitempty"`
	PatternID  string  `msgpack:"pid,omitempty"`
	TimeTaken  int64   `msgpack:"t"`
}

// SnippetsResponse carries ranked snippets.
type SnippetsResponse struct {
	ID        string            `msgpack:"id"`
	Snippets  []suggest.Snippet `msgpack:"s"`
	Count     int               `msgpack:"c"`
	TimeTaken int64             `msgpack:"t"`
}

// PassResponse reports a learning pass. Learned is false when an edit did
// not trigger one.
type PassResponse struct {
	ID         string         `msgpack:"id"`
	Learned    bool           `msgpack:"learned"`
	Extracted  int            `msgpack:"extracted,omitempty"`
	Accepted   int            `msgpack:"accepted,omitempty"`
	Inserted   int            `msgpack:"inserted,omitempty"`
	Reinforced int            `msgpack:"reinforced,omitempty"`
	Evicted    int            `msgpack:"evicted,omitempty"`
	Rejected   map[string]int `msgpack:"rejected,omitempty"`
	ParseError string         `msgpack:"parse_error,omitempty"`
	TimeTaken  int64          `msgpack:"t"`
}

// RecordsResponse carries saved snippets.
type RecordsResponse struct {
	ID        string            `msgpack:"id"`
	Records   []snippets.Record `msgpack:"records"`
	Count     int               `msgpack:"c"`
	TimeTaken int64             `msgpack:"t"`
}

// ReportResponse carries a workspace report, rendered when asked.
type ReportResponse struct {
	ID        string         `msgpack:"id"`
	Report    *report.Report `msgpack:"report"`
	Rendered  string         `msgpack:"rendered,omitempty"`
	TimeTaken int64          `msgpack:"t"`
}

// StatsResponse summarizes the pattern store.
type StatsResponse struct {
	ID        string         `msgpack:"id"`
	Stats     patterns.Stats `msgpack:"stats"`
	Pending   bool           `msgpack:"pending"`
	Activity  string         `msgpack:"activity"`
	TimeTaken int64          `msgpack:"t"`
}

// ErrorResponse reports a failed request.
type ErrorResponse struct {
	ID        string `msgpack:"id"`
	Error     string `msgpack:"e"`
	Code      int    `msgpack:"c"`
	TimeTaken int64  `msgpack:"t"`
}
