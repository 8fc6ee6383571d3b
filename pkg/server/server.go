package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/bastiangx/codeserve/internal/logger"
	"github.com/bastiangx/codeserve/pkg/config"
	"github.com/bastiangx/codeserve/pkg/learning"
	"github.com/bastiangx/codeserve/pkg/predict"
	"github.com/bastiangx/codeserve/pkg/report"
	"github.com/bastiangx/codeserve/pkg/snippets"
	"github.com/bastiangx/codeserve/pkg/storage"
	"github.com/bastiangx/codeserve/pkg/suggest"
	"github.com/bastiangx/codeserve/pkg/syntax"
	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"
)

// Deps are the engine components a Server dispatches to.
type Deps struct {
	Config     *config.Config
	Parser     *syntax.Parser
	Controller *learning.Controller
	Engine     *predict.Engine
	Snippets   *snippets.Store
	Suggester  suggest.Suggester // answers complete; nil means Engine
	// KV is closed by Stop.
	KV         storage.KV
}

// Server handles msgpack IPC for one editor session.
type Server struct {
	Deps
	activity *predict.Activity
	log      *log.Logger
	now      func() time.Time

	dec *msgpack.Decoder

	wmu sync.Mutex
	enc *msgpack.Encoder
	w   *bufio.Writer

	stopOnce sync.Once
	stopErr  error
}

// NewServer creates a server reading requests from r and writing responses
// to w.
func NewServer(deps Deps, r io.Reader, w io.Writer) *Server {
	bw := bufio.NewWriter(w)
	if deps.Suggester == nil {
		deps.Suggester = deps.Engine
	}
	return &Server{
		Deps:     deps,
		activity: predict.NewActivity(deps.Config.Engine.IdleAfter()),
		log:      logger.New("server"),
		now:      time.Now,
		dec:      msgpack.NewDecoder(bufio.NewReader(r)),
		enc:      msgpack.NewEncoder(bw),
		w:        bw,
	}
}

// NewStdioServer creates a server on stdin/stdout.
func NewStdioServer(deps Deps) *Server {
	return NewServer(deps, os.Stdin, os.Stdout)
}

// Start writes the ready frame, starts the learning controller and serves
// requests until the input ends or ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	s.log.Debug("Starting Server.")
	s.Controller.Start(ctx)
	s.send(StatusResponse{Status: "ready"})

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		var raw msgpack.RawMessage
		if err := s.dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				s.log.Debug("client disconnected")
				return nil
			}
			s.log.Errorf("Reading request: %v", err)
			return err
		}
		var req Request
		if err := msgpack.Unmarshal(raw, &req); err != nil {
			s.log.Warn("invalid request", "error", err)
			s.sendError("", "invalid msgpack request", 400, time.Now())
			continue
		}
		s.Handle(ctx, req)
	}
}

// Stop halts the learning ticker, flushes the pattern store and closes the
// KV. It is safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.Controller.Stop()
		var errs []error
		if err := s.Controller.Store().Persist(ctx); err != nil {
			errs = append(errs, err)
		}
		if s.KV != nil {
			if err := s.KV.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		s.stopErr = errors.Join(errs...)
		if s.stopErr != nil {
			s.log.Warn("shutdown flush failed", "error", s.stopErr)
		}
	})
	return s.stopErr
}

// Handle dispatches one request and writes its response.
func (s *Server) Handle(ctx context.Context, req Request) {
	start := time.Now()
	if msg := s.validate(req); msg != "" {
		s.log.Debug("rejected request", "id", req.ID, "reason", msg)
		s.sendError(req.ID, msg, 400, start)
		return
	}

	switch req.Action {
	case ActionEdit:
		s.handleEdit(ctx, req, start)
	case ActionPredict:
		p := s.Engine.Predict(s.predictRequest(req))
		s.sendPrediction(req.ID, p, start)
	case ActionDecorate:
		p := s.Engine.Decorate(s.predictRequest(req), s.activity, s.now())
		s.sendPrediction(req.ID, p, start)
	case ActionComplete:
		out := s.Suggester.Suggest(req.Line, req.Context, req.Language, req.Limit)
		s.send(SnippetsResponse{ID: req.ID, Snippets: out, Count: len(out), TimeTaken: micros(start)})
	case ActionHover:
		resp := SnippetsResponse{ID: req.ID}
		if sn := s.Engine.Hover(ctx, req.Text, req.Language, req.LineNumber); sn != nil {
			resp.Snippets = append(resp.Snippets, *sn)
		}
		resp.Count = len(resp.Snippets)
		resp.TimeTaken = micros(start)
		s.send(resp)
	case ActionLearn:
		pass, err := s.Controller.LearnText(ctx, req.URI, req.Language, req.Text)
		if err != nil && pass.PersistErr == nil {
			s.sendError(req.ID, err.Error(), 422, start)
			return
		}
		s.sendPass(req.ID, pass, true, start)
	case ActionSnippetSave:
		s.handleSnippetSave(ctx, req, start)
	case ActionSnippetList:
		recs, err := s.Snippets.List(ctx)
		if err != nil {
			s.sendError(req.ID, err.Error(), 500, start)
			return
		}
		s.send(RecordsResponse{ID: req.ID, Records: recs, Count: len(recs), TimeTaken: micros(start)})
	case ActionSnippetDelete:
		if err := s.Snippets.Delete(ctx, req.SnippetID); err != nil {
			code := 500
			if errors.Is(err, snippets.ErrUnknownSnippet) {
				code = 404
			}
			s.sendError(req.ID, err.Error(), code, start)
			return
		}
		s.send(StatusResponse{ID: req.ID, Status: "ok", TimeTaken: micros(start)})
	case ActionSnippetMatch:
		out, err := s.Snippets.Match(ctx, req.Code, req.Language, s.limit(req))
		if err != nil {
			s.sendError(req.ID, err.Error(), 500, start)
			return
		}
		s.send(SnippetsResponse{ID: req.ID, Snippets: out, Count: len(out), TimeTaken: micros(start)})
	case ActionReport:
		s.handleReport(ctx, req, start)
	case ActionStats:
		s.send(StatsResponse{
			ID:        req.ID,
			Stats:     s.Controller.Store().Stats(),
			Pending:   s.Controller.Pending(),
			Activity:  s.activity.State(s.now()).String(),
			TimeTaken: micros(start),
		})
	case ActionHealth:
		s.send(StatusResponse{ID: req.ID, Status: "ok", TimeTaken: micros(start)})
	default:
		s.sendError(req.ID, fmt.Sprintf("Unknown action: %s", req.Action), 400, start)
	}
}

// validate returns why req is malformed, or "".
func (s *Server) validate(req Request) string {
	maxLine := s.Config.Server.MaxLineLength
	if len(req.Line) > maxLine {
		return fmt.Sprintf("line exceeds maximum length of %d", maxLine)
	}
	if req.Limit < 0 {
		return "limit must not be negative"
	}
	switch req.Action {
	case ActionEdit, ActionLearn:
		if req.Language == "" {
			return "missing 'lang'"
		}
	case ActionHover:
		if req.LineNumber < 1 {
			return "'ln' must be at least 1"
		}
	case ActionSnippetSave:
		if req.Code == "" && (req.Snippet == nil || req.Snippet.Code == "") {
			return "missing 'code'"
		}
	case ActionSnippetDelete:
		if req.SnippetID == "" {
			return "missing 'sid'"
		}
	case ActionSnippetMatch:
		if req.Code == "" {
			return "missing 'code'"
		}
	case ActionReport:
		if req.Root == "" {
			return "missing 'root'"
		}
		if req.Format != "" && req.Format != "md" && req.Format != "yaml" {
			return fmt.Sprintf("unknown format %q", req.Format)
		}
	}
	return ""
}

func (s *Server) predictRequest(req Request) predict.Request {
	return predict.Request{Line: req.Line, Context: req.Context, Language: req.Language}
}

func (s *Server) limit(req Request) int {
	if req.Limit > 0 {
		return req.Limit
	}
	return s.Config.Engine.MaxResults
}

func (s *Server) handleEdit(ctx context.Context, req Request, start time.Time) {
	s.activity.OnEdit(req.Change, s.now())
	doc := learning.Document{URI: req.URI, LanguageID: req.Language, Text: req.Text}
	pass, ok := s.Controller.OnEdit(ctx, doc, req.Change)
	s.sendPass(req.ID, pass, ok, start)
}

func (s *Server) handleSnippetSave(ctx context.Context, req Request, start time.Time) {
	var sn suggest.Snippet
	if req.Snippet != nil {
		sn = *req.Snippet
		if sn.Code == "" {
			sn.Code = req.Code
		}
	} else {
		sn = snippets.FromCode(ctx, s.Parser, req.Code, req.Language)
	}
	rec, err := s.Snippets.Save(ctx, sn)
	if err != nil {
		s.sendError(req.ID, err.Error(), 500, start)
		return
	}
	s.send(RecordsResponse{ID: req.ID, Records: []snippets.Record{rec}, Count: 1, TimeTaken: micros(start)})
}

func (s *Server) handleReport(ctx context.Context, req Request, start time.Time) {
	r, err := report.Scan(ctx, req.Root, s.Parser, s.Config.Report)
	if err != nil {
		s.sendError(req.ID, err.Error(), 500, start)
		return
	}
	resp := ReportResponse{ID: req.ID, Report: r}
	switch req.Format {
	case "md":
		resp.Rendered = report.Markdown(r)
	case "yaml":
		out, err := report.YAML(r)
		if err != nil {
			s.sendError(req.ID, err.Error(), 500, start)
			return
		}
		resp.Rendered = string(out)
	}
	resp.TimeTaken = micros(start)
	s.send(resp)
}

func (s *Server) sendPrediction(id string, p *predict.Prediction, start time.Time) {
	resp := PredictionResponse{ID: id}
	if p != nil {
		resp.Kind = string(p.Kind)
		resp.Code = p.Code
		resp.Confidence = p.Confidence
		resp.PatternID = p.PatternID
	}
	resp.TimeTaken = micros(start)
	s.send(resp)
}

func (s *Server) sendPass(id string, pass learning.Pass, learned bool, start time.Time) {
	resp := PassResponse{
		ID:         id,
		Learned:    learned,
		Extracted:  pass.Extracted,
		Accepted:   pass.Accepted,
		Inserted:   pass.Inserted,
		Reinforced: pass.Reinforced,
		Evicted:    pass.Evicted,
		Rejected:   pass.Rejected,
	}
	if pass.ParseError != nil {
		resp.ParseError = pass.ParseError.Error()
	}
	resp.TimeTaken = micros(start)
	s.send(resp)
}

// send encodes response and flushes it.
func (s *Server) send(response any) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := s.enc.Encode(response); err != nil {
		s.log.Errorf("Encoding response: %v", err)
		return
	}
	if err := s.w.Flush(); err != nil {
		s.log.Errorf("Writing response: %v", err)
	}
}

func (s *Server) sendError(id, message string, code int, start time.Time) {
	s.send(ErrorResponse{ID: id, Error: message, Code: code, TimeTaken: micros(start)})
}

func micros(start time.Time) int64 {
	return time.Since(start).Microseconds()
}
