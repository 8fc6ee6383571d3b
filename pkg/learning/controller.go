// Package learning decides when to learn from the active document and what
// to admit into the pattern store.
//
// Two triggers start a pass: an edit that inserts a newline, semicolon or
// closing brace, or a quiet period after typing while the typing buffer
// holds unlearned input. The quiet period is checked by a poll ticker owned
// by the controller between Start and Stop.
package learning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bastiangx/codeserve/internal/logger"
	"github.com/bastiangx/codeserve/pkg/config"
	"github.com/bastiangx/codeserve/pkg/fragment"
	"github.com/bastiangx/codeserve/pkg/metrics"
	"github.com/bastiangx/codeserve/pkg/patterns"
	"github.com/bastiangx/codeserve/pkg/syntax"
	"github.com/charmbracelet/log"
)

// MaxFragmentLines is the longest fragment the policy admits.
const MaxFragmentLines = 50

// Rejection reasons reported in a Pass and in metrics.
const (
	ReasonTooShort  = "too_short"
	ReasonTooLong   = "too_long"
	ReasonTooSimple = "too_simple"
	ReasonDuplicate = "duplicate"
	ReasonFailed    = "failed"
)

// significant are the characters whose insertion triggers a pass at once.
const significant = "\n;}"

// Document is a snapshot of an editor document.
type Document struct {
	URI        string
	LanguageID string
	Text       string
}

// Pass reports one extraction and learning pass.
type Pass struct {
	URI        string
	Extracted  int
	Accepted   int
	Inserted   int
	Reinforced int
	Evicted    int
	Rejected   map[string]int
	ParseError error
	PersistErr error
	Duration   time.Duration
}

// Controller is the learning state machine. It is safe for concurrent use;
// passes are serialized.
type Controller struct {
	cfg       config.EngineConfig
	parser    *syntax.Parser
	extractor *fragment.Extractor
	store     *patterns.Store
	now       func() time.Time
	log       *log.Logger

	mu       sync.Mutex
	buffer   strings.Builder
	lastEdit time.Time
	active   *Document

	passMu sync.Mutex

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// New creates a Controller feeding store.
func New(cfg config.EngineConfig, parser *syntax.Parser, store *patterns.Store, opts ...Option) *Controller {
	c := &Controller{
		cfg:       cfg,
		parser:    parser,
		extractor: fragment.New(cfg.MinFragmentLength),
		store:     store,
		now:       time.Now,
		log:       logger.New("learn"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the pattern store the controller feeds.
func (c *Controller) Store() *patterns.Store {
	return c.store
}

// OnEdit records an edit of doc that inserted change. Documents outside the
// language allow-list are ignored. If change is structurally significant a
// pass runs immediately and is returned with ok set.
func (c *Controller) OnEdit(ctx context.Context, doc Document, change string) (pass Pass, ok bool) {
	if !c.cfg.SupportsLanguage(doc.LanguageID) {
		return Pass{}, false
	}

	c.mu.Lock()
	c.buffer.WriteString(change)
	c.lastEdit = c.now()
	d := doc
	c.active = &d
	immediate := strings.ContainsAny(change, significant)
	if immediate {
		c.buffer.Reset()
	}
	c.mu.Unlock()

	if !immediate {
		return Pass{}, false
	}
	pass, _ = c.LearnDocument(ctx, doc)
	return pass, true
}

// Tick runs a pass when the buffer holds input and no edit happened for the
// typing pause.
func (c *Controller) Tick(ctx context.Context, now time.Time) (pass Pass, ok bool) {
	c.mu.Lock()
	if c.buffer.Len() == 0 || c.active == nil || now.Sub(c.lastEdit) < c.cfg.TypingPause() {
		c.mu.Unlock()
		return Pass{}, false
	}
	c.buffer.Reset()
	doc := *c.active
	c.mu.Unlock()

	pass, _ = c.LearnDocument(ctx, doc)
	return pass, true
}

// Pending reports whether the typing buffer holds unlearned input.
func (c *Controller) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffer.Len() > 0
}

// Start begins polling for the typing pause. Calling Start twice is a no-op.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	stop, done := make(chan struct{}), make(chan struct{})
	c.stopCh, c.doneCh = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(c.cfg.PollInterval())
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				if pass, ok := c.Tick(ctx, c.now()); ok {
					c.log.Debug("pause pass", "uri", pass.URI, "accepted", pass.Accepted)
				}
			}
		}
	}()
}

// Stop halts the poll ticker and waits for it to exit.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stopCh)
	done := c.doneCh
	c.mu.Unlock()
	<-done
}

// LearnDocument runs one extraction and learning pass over doc and
// persists the store. Parse failures yield an empty pass. The returned
// error is the persistence error, also recorded in Pass.PersistErr.
func (c *Controller) LearnDocument(ctx context.Context, doc Document) (Pass, error) {
	start := time.Now()
	pass := Pass{URI: doc.URI, Rejected: make(map[string]int)}
	if !c.cfg.SupportsLanguage(doc.LanguageID) {
		return pass, nil
	}

	c.passMu.Lock()
	defer c.passMu.Unlock()

	tree, err := c.parser.Parse(ctx, doc.Text, doc.LanguageID)
	if err != nil {
		if IsParseFailure(err) {
			c.log.Debug("skipping unparsable document", "uri", doc.URI, "error", err)
		} else {
			c.log.Warn("parse aborted", "uri", doc.URI, "error", err)
		}
		pass.ParseError = err
		pass.Duration = time.Since(start)
		return pass, nil
	}

	frags := c.extractor.Extract(tree, doc.Text)
	pass.Extracted = len(frags)
	metrics.FragmentsExtracted.Add(float64(len(frags)))

	for _, f := range frags {
		c.learnOne(f, doc.LanguageID, &pass)
	}

	if err := c.store.Persist(ctx); err != nil {
		c.log.Warn("failed to persist patterns", "error", err)
		pass.PersistErr = err
	}
	pass.Duration = time.Since(start)
	c.log.Debug("learning pass", "uri", doc.URI, "extracted", pass.Extracted,
		"accepted", pass.Accepted, "inserted", pass.Inserted, "reinforced", pass.Reinforced)
	return pass, pass.PersistErr
}

// learnOne applies the worth-learning policy to f and learns it. A failure
// is confined to this fragment.
func (c *Controller) learnOne(f fragment.Fragment, language string, pass *Pass) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("fragment learning failed", "kind", f.Kind, "panic", r)
			c.reject(pass, ReasonFailed)
		}
	}()

	if reason := c.Rejection(f); reason != "" {
		c.reject(pass, reason)
		return
	}

	res := c.store.Learn(f, language)
	pass.Accepted++
	metrics.FragmentsAccepted.Inc()
	if res.Inserted {
		pass.Inserted++
	}
	if res.Reinforced {
		pass.Reinforced++
	}
	pass.Evicted += res.Evicted
}

func (c *Controller) reject(pass *Pass, reason string) {
	pass.Rejected[reason]++
	metrics.FragmentsRejected.WithLabelValues(reason).Inc()
}

// Rejection returns why f is not worth learning, or "" to admit it.
// Fragments too short, too long or too simple are rejected, as are
// fragments textually close to a different stored pattern.
func (c *Controller) Rejection(f fragment.Fragment) string {
	switch {
	case len(f.Content) < c.cfg.MinFragmentLength:
		return ReasonTooShort
	case f.LineCount > MaxFragmentLines:
		return ReasonTooLong
	case f.Complexity < 1:
		return ReasonTooSimple
	}
	if _, _, dup := c.store.FindSimilar(f.Content, c.cfg.DuplicateThreshold, patterns.ID(f.Content)); dup {
		return ReasonDuplicate
	}
	return ""
}

// LearnText is a convenience wrapper learning from raw text.
func (c *Controller) LearnText(ctx context.Context, uri, languageID, text string) (Pass, error) {
	if !c.cfg.SupportsLanguage(languageID) {
		return Pass{URI: uri}, fmt.Errorf("language %q is not supported", languageID)
	}
	return c.LearnDocument(ctx, Document{URI: uri, LanguageID: languageID, Text: text})
}

// IsParseFailure reports whether err is a recoverable parse failure.
func IsParseFailure(err error) bool {
	return errors.Is(err, syntax.ErrParseFailure) || errors.Is(err, syntax.ErrTooLarge)
}
