// Package cli handles cmd line input for debugging predictions and
// learning in real time.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/bastiangx/codeserve/internal/utils"
	"github.com/bastiangx/codeserve/pkg/learning"
	"github.com/bastiangx/codeserve/pkg/predict"
	"github.com/bastiangx/codeserve/pkg/suggest"
	"github.com/bastiangx/codeserve/pkg/syntax"
	"github.com/bastiangx/codeserve/pkg/workspace"
	"github.com/charmbracelet/log"
)

// Result is what the engine answered for one typed line.
type Result struct {
	Kind       predict.Kind
	Prediction *predict.Prediction
	Snippets   []suggest.Snippet
	Elapsed    time.Duration
}

// InputHandler reads lines of code from stdin, treats each as the line
// being typed and prints the engine's answer. Previous lines form the
// context. Lines starting with ':' are commands:
//
//	:learn <file>   learn from a source file
//	:lang <id>      switch the language tag
//	:stats          print pattern store stats
//	:reset          clear the context
type InputHandler struct {
	engine       *predict.Engine
	controller   *learning.Controller
	language     string
	contextLines int
	history      []string
}

// NewInputHandler creates a handler typing in language.
func NewInputHandler(engine *predict.Engine, controller *learning.Controller, language string, contextLines int) *InputHandler {
	return &InputHandler{
		engine:       engine,
		controller:   controller,
		language:     language,
		contextLines: contextLines,
	}
}

// Start begins the interface loop on stdin. It returns nil at end of input.
func (h *InputHandler) Start(ctx context.Context) error {
	log.Print("CodeServe CLI [BETA]")
	log.Print("type a line of code and press Enter to see predictions (Ctrl+C to exit):")
	return h.Run(ctx, os.Stdin)
}

// Run processes every line of r.
func (h *InputHandler) Run(ctx context.Context, r io.Reader) error {
	reader := bufio.NewReader(r)
	for {
		log.Print("> ")
		line, err := reader.ReadString('\n')
		if line = strings.TrimRight(line, "\r\n"); line != "" {
			if strings.HasPrefix(line, ":") {
				h.command(ctx, line)
			} else {
				h.print(line, h.Evaluate(line))
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Evaluate predicts and completes line against the current context, then
// appends line to the context.
func (h *InputHandler) Evaluate(line string) Result {
	start := time.Now()
	req := predict.Request{Line: line, Context: strings.Join(h.history, "\n"), Language: h.language}
	res := Result{
		Kind:       predict.Classify(req.Line, req.Context),
		Prediction: h.engine.Predict(req),
		Snippets:   h.engine.Complete(req),
	}
	res.Elapsed = time.Since(start)

	h.history = append(h.history, line)
	if len(h.history) > h.contextLines {
		h.history = h.history[len(h.history)-h.contextLines:]
	}
	return res
}

func (h *InputHandler) print(line string, res Result) {
	log.Debugf("Took [ %v ] for line '%s'", res.Elapsed, line)
	if res.Kind == predict.KindNone {
		log.Info("no edit pattern recognized")
	} else {
		log.Info("classified", "kind", res.Kind)
	}
	if p := res.Prediction; p != nil {
		clCode := fmt.Sprintf("\033[38;5;75m%s\033[0m", p.Code)
		log.Printf("prediction (%s): %s", utils.FormatPercent(p.Confidence), clCode)
	}
	for i, sn := range res.Snippets {
		log.Printf("%2d. %-40s %s", i+1, sn.Title, sn.Description)
	}
}

func (h *InputHandler) command(ctx context.Context, line string) {
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, ":"), " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "learn":
		pass, err := h.LearnFile(ctx, arg)
		if err != nil {
			log.Errorf("Learning %s: %v", arg, err)
			return
		}
		log.Info("learned", "file", arg, "accepted", pass.Accepted, "inserted", pass.Inserted,
			"reinforced", pass.Reinforced, "rejected", pass.Rejected)
	case "lang":
		if !syntax.Supports(arg) {
			log.Errorf("Unsupported language: %q", arg)
			return
		}
		h.language = arg
	case "stats":
		st := h.controller.Store().Stats()
		log.Info("store", "patterns", utils.FormatWithCommas(st.Patterns), "capacity", st.Capacity,
			"triggers", st.Triggers, "by_kind", st.ByKind)
	case "reset":
		h.history = nil
	default:
		log.Warnf("Unknown command: %s", name)
	}
}

// LearnFile learns from the source file at path.
func (h *InputHandler) LearnFile(ctx context.Context, path string) (learning.Pass, error) {
	lang := workspace.LanguageForPath(path)
	if lang == "" {
		return learning.Pass{}, fmt.Errorf("%s is not a JS/TS source file", path)
	}
	text, err := utils.ReadTextFile(path, syntax.MaxTextSize)
	if err != nil {
		return learning.Pass{}, err
	}
	return h.controller.LearnText(ctx, "file://"+path, lang, text)
}
