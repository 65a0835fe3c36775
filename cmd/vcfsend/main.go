package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/smileynet/vcfsend"
	"github.com/smileynet/vcfsend/internal/config"
	"github.com/smileynet/vcfsend/internal/logging"
	"github.com/smileynet/vcfsend/internal/phone"
	"github.com/smileynet/vcfsend/internal/sendsim"
	"github.com/smileynet/vcfsend/internal/store"
	"github.com/smileynet/vcfsend/internal/tui"
	"github.com/smileynet/vcfsend/internal/vcard"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// ErrNotVCard indicates an import source without a .vcf extension.
var ErrNotVCard = errors.New("please provide a .vcf file")

// errNoContacts indicates a send was requested over an empty import.
var errNoContacts = errors.New("no contacts to send (the last import found none)")

// Globals holds flags shared by every command.
type Globals struct {
	Debug bool `help:"Write a structured debug log to log.file."`
}

// CLI is the top-level command structure for vcfsend.
type CLI struct {
	Globals

	Version kong.VersionFlag `help:"Show version." short:"V"`
	Import  ImportCmd        `cmd:"" help:"Import contacts from a vCard file, replacing any previous import."`
	List    ListCmd          `cmd:"" help:"List imported contacts."`
	Export  ExportCmd        `cmd:"" help:"Write imported contacts to a vCard file."`
	Send    SendCmd          `cmd:"" help:"Simulate sending a message to imported contacts."`
	Clear   ClearCmd         `cmd:"" help:"Forget imported contacts."`
}

// env bundles the dependencies every command builds from config.
type env struct {
	cfg      *config.Config
	store    *store.FileStore
	log      *zap.Logger
	closeLog func() error
}

func (e *env) close() {
	_ = e.closeLog()
}

// loadConfig loads layered config from user and project paths with env overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadLayered(
		os.ExpandEnv("$HOME/.config/vcfsend/config.yaml"),
		".vcfsend/config.yaml",
	)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newEnv loads and validates config, then builds the store and logger.
func newEnv(g *Globals) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, closeLog := logging.New(logging.Options{
		Enabled:    g.Debug,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})

	return &env{
		cfg:      cfg,
		store:    store.NewFileStore(cfg.Store.Dir),
		log:      logger,
		closeLog: closeLog,
	}, nil
}

// batchStore abstracts store.FileStore for testing.
type batchStore interface {
	Save(b store.Batch) error
	Require() (store.Batch, error)
	Clear() error
}

// --- Import command ---

// ImportCmd parses a vCard file and stores the deduplicated contacts.
type ImportCmd struct {
	File string `arg:"" help:"Path to a .vcf file."`
}

// Run executes the import command.
func (c *ImportCmd) Run(g *Globals) error {
	e, err := newEnv(g)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	defer e.close()

	return c.run(os.Stdout, e.store, e.log, time.Now())
}

// run imports c.File into st, enabling testable wiring.
func (c *ImportCmd) run(w io.Writer, st batchStore, log *zap.Logger, now time.Time) error {
	if !strings.EqualFold(filepath.Ext(c.File), ".vcf") {
		return fmt.Errorf("import: %w: %s", ErrNotVCard, c.File)
	}

	f, err := os.Open(c.File)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	defer func() { _ = f.Close() }()

	contacts, err := vcard.ParseReader(f)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}

	batch := store.NewBatch(filepath.Base(c.File), contacts, now)
	if err := st.Save(batch); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	log.Debug("imported vcard",
		zap.String("batch", batch.ID),
		zap.String("source", c.File),
		zap.Int("contacts", len(contacts)))

	if len(contacts) == 0 {
		_, _ = fmt.Fprintln(w, "No contacts found")
	} else {
		_, _ = fmt.Fprintf(w, "Loaded %d contacts\n", len(contacts))
	}
	_, _ = fmt.Fprintf(w, "Contacts: %d\n", len(contacts))
	return nil
}

// --- List command ---

// ListCmd prints the imported contacts.
type ListCmd struct {
	Format string `help:"Output format (text, json, yaml)." enum:"text,json,yaml" default:"text"`
	Check  bool   `help:"Check each number against libphonenumber metadata."`
	Region string `help:"Region for numbers without a leading + (overrides phone.region)."`
}

// listEntry is one row of list output.
type listEntry struct {
	Name  string        `json:"name" yaml:"name"`
	Phone string        `json:"phone" yaml:"phone"`
	Check *phone.Result `json:"check,omitempty" yaml:"check,omitempty"`
}

// Run executes the list command.
func (c *ListCmd) Run(g *Globals) error {
	e, err := newEnv(g)
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}
	defer e.close()

	if c.Region == "" {
		c.Region = e.cfg.Phone.Region
	}
	return c.run(os.Stdout, e.store)
}

// run prints the stored batch, enabling testable wiring.
func (c *ListCmd) run(w io.Writer, st batchStore) error {
	batch, err := st.Require()
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}

	entries := make([]listEntry, len(batch.Contacts))
	for i, ct := range batch.Contacts {
		entries[i] = listEntry{Name: ct.Name, Phone: ct.Phone}
		if c.Check {
			res := phone.Check(ct.Phone, c.Region)
			entries[i].Check = &res
		}
	}

	switch c.Format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(entries); err != nil {
			return fmt.Errorf("list: encoding json: %w", err)
		}
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return fmt.Errorf("list: encoding yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("list: encoding yaml: %w", err)
		}
	default:
		renderTable(w, batch, entries, c.Check)
	}
	return nil
}

// renderTable writes entries as a bordered table with a summary line.
func renderTable(w io.Writer, batch store.Batch, entries []listEntry, check bool) {
	headers := []string{"#", "NAME", "PHONE"}
	if check {
		headers = append(headers, "VALID", "E.164")
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...)
	for i, e := range entries {
		row := []string{strconv.Itoa(i + 1), e.Name, e.Phone}
		if e.Check != nil {
			valid := "no"
			if e.Check.Valid {
				valid = "yes"
			}
			row = append(row, valid, e.Check.E164)
		}
		t.Row(row...)
	}

	if len(entries) > 0 {
		_, _ = fmt.Fprintln(w, t.Render())
	}
	_, _ = fmt.Fprintf(w, "Contacts: %d (from %s, imported %s)\n",
		len(entries), batch.Source, batch.ImportedAt.Local().Format("2006-01-02 15:04"))
}

// --- Export command ---

// ExportCmd writes the imported contacts back out as vCard.
type ExportCmd struct {
	File string `arg:"" help:"Destination .vcf file, or - for stdout."`
}

// Run executes the export command.
func (c *ExportCmd) Run(g *Globals) error {
	e, err := newEnv(g)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	defer e.close()

	templates := vcfsend.OverlayFS(filepath.Join(e.cfg.Store.Dir, "templates"), vcfsend.Templates)
	exp, err := vcard.NewExporter(templates)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return c.run(os.Stdout, e.store, exp)
}

// run writes the stored batch through exp, enabling testable wiring.
func (c *ExportCmd) run(w io.Writer, st batchStore, exp *vcard.Exporter) error {
	batch, err := st.Require()
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	if c.File == "-" {
		if err := exp.Write(w, batch.Contacts); err != nil {
			return fmt.Errorf("export: %w", err)
		}
		return nil
	}

	f, err := os.Create(c.File)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := exp.Write(f, batch.Contacts); err != nil {
		_ = f.Close()
		return fmt.Errorf("export: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("export: closing %s: %w", c.File, err)
	}

	_, _ = fmt.Fprintf(w, "Exported %d contacts to %s\n", len(batch.Contacts), c.File)
	return nil
}

// --- Send command ---

// SendCmd drives the send simulation over the imported contacts.
// No message leaves the machine.
type SendCmd struct {
	Message  string        `help:"Message text shown while sending." short:"m"`
	Interval time.Duration `help:"Delay between send ticks (overrides send.interval)."`
	Antiban  bool          `help:"Insert occasional random pauses."`
	NoTUI    bool          `help:"Force plain text output even if stdout is a TTY." default:"false"`
}

// Run executes the send command.
func (s *SendCmd) Run(g *Globals) error {
	e, err := newEnv(g)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer e.close()

	batch, err := e.store.Require()
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}

	// The cancel func is passed to the TUI so a stop keypress ends the run.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	display := tui.NewDisplay(tui.DisplayOptions{
		Writer:     os.Stdout,
		ForcePlain: s.NoTUI,
		Total:      len(batch.Contacts),
		Message:    strings.TrimSpace(s.Message),
		CancelFunc: cancel,
	})

	simCfg := s.simConfig(e.cfg.Send, len(batch.Contacts))
	return s.run(ctx, batch, simCfg, display, tui.NewBridge(), e.log)
}

// simConfig maps config and flag overrides onto simulator pacing.
func (s *SendCmd) simConfig(c config.Send, contacts int) sendsim.Config {
	cfg := sendsim.Config{
		Interval:         c.Interval,
		ProgressDuration: c.ProgressDuration,
		Increment:        c.Increment,
		Cap:              c.Cap,
		Antiban:          c.Antiban || s.Antiban,
		PauseChance:      c.PauseChance,
		MinPause:         c.MinPause,
		MaxPause:         c.MaxPause,
	}
	if cfg.Cap == 0 {
		cfg.Cap = contacts
	}
	if s.Interval > 0 {
		cfg.Interval = s.Interval
	}
	return cfg
}

// run executes the simulation with display lifecycle management, enabling testable wiring.
func (s *SendCmd) run(parentCtx context.Context, batch store.Batch, simCfg sendsim.Config, display tui.Display, bridge *tui.Bridge, log *zap.Logger) error {
	if len(batch.Contacts) == 0 {
		return fmt.Errorf("send: %w", errNoContacts)
	}

	// Wrap with OS signal handling so Ctrl+C in non-TUI mode still works.
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt)
	defer stop()

	displayDone := make(chan error, 1)
	go func() {
		displayDone <- display.Run(context.Background(), bridge.Events())
	}()

	log.Debug("send started",
		zap.String("batch", batch.ID),
		zap.Int("contacts", len(batch.Contacts)),
		zap.Int("cap", simCfg.Cap),
		zap.Duration("interval", simCfg.TickInterval()),
		zap.Bool("antiban", simCfg.Antiban))

	final, err := sendsim.New(simCfg).Run(ctx, bridge.Report)
	if err != nil {
		bridge.Error(err)
	} else {
		bridge.Done()
	}

	// Wait for display to finish (so it releases the terminal).
	<-displayDone

	log.Debug("send finished",
		zap.Int("successful", final.Successful),
		zap.Duration("elapsed", final.Elapsed),
		zap.Error(err))

	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// --- Clear command ---

// ClearCmd removes the stored import.
type ClearCmd struct{}

// Run executes the clear command.
func (c *ClearCmd) Run(g *Globals) error {
	e, err := newEnv(g)
	if err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	defer e.close()

	return c.run(os.Stdout, e.store)
}

// run clears st, enabling testable wiring.
func (c *ClearCmd) run(w io.Writer, st batchStore) error {
	if err := st.Clear(); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	_, _ = fmt.Fprintln(w, "Cleared imported contacts")
	return nil
}

// Exit codes.
const (
	exitSuccess = 0
	exitStopped = 1
	exitSetup   = 2
)

// exitCode maps an error to the appropriate exit code.
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	if errors.Is(err, sendsim.ErrStopped) {
		return exitStopped
	}
	return exitSetup
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Description("Import vCard contacts, deduplicate them by phone, and simulate a bulk send."),
		kong.Vars{"version": version + " " + commit + " " + date},
	)
	err := ctx.Run(&cli.Globals)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(exitCode(err))
	}
}
