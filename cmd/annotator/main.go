package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/japaniel/annotator/pkg/annotate"
	"github.com/japaniel/annotator/pkg/config"
	"github.com/japaniel/annotator/pkg/db"
	"github.com/japaniel/annotator/pkg/extract"
	"github.com/japaniel/annotator/pkg/glossary"
	"github.com/japaniel/annotator/pkg/ingest"
	"github.com/japaniel/annotator/pkg/llm"
	"github.com/japaniel/annotator/pkg/loop"
)

func main() {
	// Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

type options struct {
	url        string
	file       string
	out        string
	dbPath     string
	configPath string
	tuples     string
	glossary   string
	selection  string
	setAPIKey  string
	clearFirst bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("annotator", flag.ContinueOnError)
	fs.StringVar(&o.url, "url", "", "URL of the page to annotate")
	fs.StringVar(&o.file, "file", "", "Path of a saved HTML page to annotate")
	fs.StringVar(&o.out, "out", "annotated.html", "Where to write the annotated page (- for stdout)")
	fs.StringVar(&o.dbPath, "db", "", "Path to SQLite database (overrides config)")
	fs.StringVar(&o.configPath, "config", "", "Path to YAML config file")
	fs.StringVar(&o.tuples, "tuples", "", "JSON file of annotations to apply instead of asking the model")
	fs.StringVar(&o.glossary, "glossary", "", "Glossary JSON file to annotate from instead of asking the model")
	fs.StringVar(&o.selection, "selection", "", "Only analyze this text instead of the whole page")
	fs.StringVar(&o.setAPIKey, "set-api-key", "", "Store the Gemini API key and exit")
	fs.BoolVar(&o.clearFirst, "clear-first", false, "Remove existing annotations from the page before applying")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	return o, nil
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg := config.Default()
	if opts.configPath != "" {
		if cfg, err = config.Load(opts.configPath); err != nil {
			return err
		}
	}
	if opts.dbPath != "" {
		cfg.Database = opts.dbPath
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	conn, err := db.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer conn.Close()

	if opts.setAPIKey != "" {
		if err := db.SetSetting(conn, db.SettingAPIKey, opts.setAPIKey); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "API key saved.")
		return nil
	}

	if (opts.url == "") == (opts.file == "") {
		return errors.New("please provide exactly one of -url or -file")
	}

	pageURL, body, err := readPage(ctx, opts)
	if err != nil {
		return err
	}
	doc, err := extract.Parse(bytes.NewReader(body))
	if err != nil {
		return err
	}

	l := loop.New(64, logger)
	l.Start(ctx)
	defer l.Close()

	p := &pipeline{
		ctx:    ctx,
		opts:   opts,
		cfg:    cfg,
		conn:   conn,
		logger: logger,
		loop:   l,
		doc:    doc,
		url:    pageURL,
	}
	applied, err := p.run()
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Processing complete. Annotated %d phrase(s).\n", applied)
	return nil
}

func readPage(ctx context.Context, opts options) (string, []byte, error) {
	if opts.file != "" {
		body, err := os.ReadFile(opts.file)
		if err != nil {
			return "", nil, fmt.Errorf("read page: %w", err)
		}
		abs, err := filepath.Abs(opts.file)
		if err != nil {
			return "", nil, err
		}
		return "file://" + filepath.ToSlash(abs), body, nil
	}
	body, err := extract.Fetch(ctx, nil, opts.url)
	if err != nil {
		return "", nil, err
	}
	return opts.url, body, nil
}

// pipeline drives one annotation run. Every document access happens on the loop.
type pipeline struct {
	ctx    context.Context
	opts   options
	cfg    *config.Config
	conn   *sql.DB
	logger *zap.Logger
	loop   *loop.Loop
	doc    *html.Node
	url    string

	engine *annotate.Engine
}

func (p *pipeline) do(t loop.Task) error {
	return p.loop.Do(p.ctx, t)
}

func (p *pipeline) run() (int, error) {
	msg := "Processing page content..."
	if p.opts.selection != "" {
		msg = "Processing selected text..."
	}

	var (
		outcome annotate.Outcome
		art     extract.Article
		textErr error
		busyErr error
	)
	err := p.do(func() {
		// Read the page before the processing banner becomes part of it.
		art, textErr = extract.Text(p.doc, p.url, p.opts.selection)
		if art.Fallback {
			p.logger.Info("readability found no article; annotating the whole body")
		}
		p.engine = annotate.New(p.doc, art.Root, p.loop, viewport{}, p.cfg.EngineOptions(p.logger))
		if p.opts.clearFirst {
			p.engine.Clear()
		}
		busyErr = p.engine.ShowProcessing(msg)
	})
	if err != nil {
		return 0, err
	}
	if busyErr != nil {
		return 0, busyErr
	}

	tuples, err := p.tuples(art.TextContent, textErr)
	if err != nil {
		_ = p.do(func() { p.engine.ShowError(err.Error()) })
		return 0, err
	}

	var applyErr error
	var rendered bytes.Buffer
	err = p.do(func() {
		outcome, applyErr = p.engine.ApplyAnnotations(tuples)
		if applyErr != nil {
			return
		}
		applyErr = render(&rendered, p.doc)
	})
	if err != nil {
		return 0, err
	}
	if applyErr != nil {
		return 0, applyErr
	}
	p.logger.Info("annotation outcome", zap.String("message", outcome.Message),
		zap.Int("spans", outcome.Occurrences), zap.Int("skipped", outcome.Skipped))

	if err := p.write(rendered.Bytes()); err != nil {
		return 0, err
	}
	if err := p.record(art, tuples, outcome); err != nil {
		return 0, err
	}
	return outcome.Applied, nil
}

// tuples returns the annotations to apply: from a file, a glossary, or the model.
func (p *pipeline) tuples(text string, textErr error) ([]annotate.Tuple, error) {
	switch {
	case p.opts.tuples != "":
		data, err := os.ReadFile(p.opts.tuples)
		if err != nil {
			return nil, fmt.Errorf("read tuples: %w", err)
		}
		return llm.Parse(string(data), p.logger)

	case p.opts.glossary != "":
		entries, err := glossary.Load(p.opts.glossary)
		if err != nil {
			return nil, fmt.Errorf("load glossary: %w", err)
		}
		if textErr != nil {
			return nil, textErr
		}
		analyzer, err := glossary.NewAnalyzer()
		if err != nil {
			return nil, fmt.Errorf("create analyzer: %w", err)
		}
		return glossary.NewIndex(entries, analyzer, p.logger).Find(text), nil
	}

	key, ok, err := db.GetSetting(p.conn, db.SettingAPIKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("API key not configured; run with -set-api-key first")
	}
	if textErr != nil {
		return nil, textErr
	}
	client, err := llm.New(key, p.cfg.LLMOptions(p.logger)...)
	if err != nil {
		return nil, err
	}
	return client.Annotations(p.ctx, text)
}

func (p *pipeline) write(page []byte) error {
	if p.opts.out == "-" {
		_, err := os.Stdout.Write(page)
		return err
	}
	if err := os.WriteFile(p.opts.out, page, 0o644); err != nil {
		return fmt.Errorf("write annotated page: %w", err)
	}
	return nil
}

func (p *pipeline) record(art extract.Article, tuples []annotate.Tuple, out annotate.Outcome) error {
	sourceID, err := db.CreateOrGetSource(p.conn, p.url, art.Title, art.Byline, art.SiteName)
	if err != nil {
		return fmt.Errorf("persist source: %w", err)
	}
	rec := ingest.NewRecorder(p.conn, p.cfg.Store.BatchSize, p.cfg.Store.FlushInterval, p.logger)
	if err := rec.AddOutcome(sourceID, tuples, out, p.cfg.Annotate.RequireTranslation); err != nil {
		rec.Close()
		return err
	}
	if err := rec.Close(); err != nil {
		return fmt.Errorf("record phrases: %w", err)
	}
	return nil
}
