// Command outreach runs one agent role (target discovery, contact finding,
// email drafting) or one of the campaign-tracking roles (delivery event
// ingest, status report, follow-up listing).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"outreach/pkg/agent"
	"outreach/pkg/clients"
	"outreach/pkg/config"
	"outreach/pkg/finder"
	"outreach/pkg/llm"
	"outreach/pkg/llm/anthropicimpl"
	"outreach/pkg/llm/openaiimpl"
	"outreach/pkg/logx"
	"outreach/pkg/mailer"
	"outreach/pkg/metrics"
	"outreach/pkg/persistence"
	"outreach/pkg/prospector"
)

// options collects every flag; which ones matter depends on the role.
type options struct {
	role       string
	task       string
	taskFile   string
	companies  string
	feedback   string
	campaign   string
	recipient  int64
	kind       string
	detail     string
	stage      int
	days       int
	configPath string
	debug      bool
}

func main() {
	var opts options
	flag.StringVar(&opts.role, "role", "", "role: prospect | find | mail | event | report | followup")
	flag.StringVar(&opts.task, "task", "", "task text (agent roles)")
	flag.StringVar(&opts.taskFile, "task-file", "", "file containing the task text")
	flag.StringVar(&opts.companies, "companies", "", "comma-separated target companies (find role)")
	flag.StringVar(&opts.feedback, "feedback", "", "feedback from a previous round (prospect role)")
	flag.StringVar(&opts.campaign, "campaign", "", "campaign name (report role)")
	flag.Int64Var(&opts.recipient, "recipient", 0, "recipient id (event role)")
	flag.StringVar(&opts.kind, "kind", "", "delivery event: sent | open | reply | bounce (event role)")
	flag.StringVar(&opts.detail, "detail", "", "optional event detail (event role)")
	flag.IntVar(&opts.stage, "stage", 1, "sequence stage to check (followup role)")
	flag.IntVar(&opts.days, "days", 4, "minimum days since the last send (followup role)")
	flag.StringVar(&opts.configPath, "config", "", "path to outreach.config.json")
	flag.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flag.Parse()

	if err := run(&opts); err != nil {
		fmt.Fprintf(os.Stderr, "outreach: %v\n", err)
		os.Exit(1)
	}
}

func run(opts *options) error {
	if opts.debug {
		logx.SetDebug(true)
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		metrics.Serve(cfg.MetricsAddr)
	}

	store, err := persistence.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	switch opts.role {
	case "prospect", "find", "mail":
		return runAgent(ctx, cfg, store, opts)
	case "event":
		return runEvent(store, opts)
	case "report":
		return runReport(store, opts.campaign)
	case "followup":
		return runFollowup(store, opts.stage, opts.days)
	default:
		return fmt.Errorf("unknown role %q (want prospect, find, mail, event, report or followup)", opts.role)
	}
}

func runAgent(ctx context.Context, cfg *config.Config, store *persistence.Store, opts *options) error {
	task := opts.task
	if opts.taskFile != "" {
		raw, err := os.ReadFile(opts.taskFile)
		if err != nil {
			return fmt.Errorf("read task file: %w", err)
		}
		task = string(raw)
	}
	task = strings.TrimSpace(task)
	if task == "" {
		return fmt.Errorf("the %s role needs a task (-task or -task-file)", opts.role)
	}

	observer := agent.WriterObserver{W: os.Stdout}
	research := clients.NewResearch()
	sessionID := uuid.NewString()

	switch opts.role {
	case "prospect":
		p := prospector.New(modelClient(cfg, cfg.Models.Prospector), research, observer)
		result, err := p.Run(ctx, task, opts.feedback)
		if err != nil {
			return err
		}
		fmt.Println(result.JSON())
		return nil

	case "find":
		companyList := splitCompanies(opts.companies)
		if len(companyList) == 0 {
			return fmt.Errorf("the find role needs -companies")
		}
		f, err := finder.New(finder.Config{
			Client:    modelClient(cfg, cfg.Models.Finder),
			Store:     store,
			Hunter:    clients.NewHunter(cfg.Keys.Hunter),
			Findymail: clients.NewFindymail(cfg.Keys.Findymail),
			Whois:     clients.NewWhois(),
			Research:  research,
			Observer:  observer,
			Policy:    cfg.Policy,
			DataDir:   cfg.DataDir,
		})
		if err != nil {
			return err
		}
		out, err := f.Run(ctx, sessionID, task, companyList)
		if err != nil {
			return err
		}
		fmt.Printf("%s\n\nsearch id: %d, %d contacts saved\n", out, f.SearchID(), len(f.Contacts()))
		return nil

	default: // mail
		m, err := mailer.New(mailer.Config{
			Client:      modelClient(cfg, cfg.Models.Mailer),
			Store:       store,
			Research:    research,
			Sheets:      clients.NewSheets(cfg.SheetsURL),
			GMass:       clients.NewGMass(cfg.Keys.GMass, os.Getenv("GMASS_FROM_EMAIL")),
			Observer:    observer,
			DataDir:     cfg.DataDir,
			OutputDir:   cfg.OutputDir,
			ToolWorkers: cfg.Policy.ToolWorkers,
		})
		if err != nil {
			return err
		}
		out, err := m.Run(ctx, task)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	}
}

// runEvent ingests one delivery event, as reported by the sending vendor's
// dashboard or webhook relay.
func runEvent(store *persistence.Store, opts *options) error {
	if opts.recipient <= 0 {
		return fmt.Errorf("the event role needs -recipient")
	}
	if opts.kind == "" {
		return fmt.Errorf("the event role needs -kind (sent, open, reply or bounce)")
	}
	if err := store.LogEvent(opts.recipient, opts.kind, opts.detail); err != nil {
		return err
	}
	fmt.Printf("recorded %s for recipient %d\n", opts.kind, opts.recipient)
	return nil
}

// runReport prints a campaign's recipients with their delivery state.
func runReport(store *persistence.Store, name string) error {
	if name == "" {
		return fmt.Errorf("the report role needs -campaign")
	}
	campaign, err := store.GetCampaign(name)
	if err != nil {
		return err
	}
	if campaign == nil {
		return fmt.Errorf("no campaign named %q", name)
	}
	recipients, err := store.GetRecipients(campaign.ID)
	if err != nil {
		return err
	}

	fmt.Printf("campaign %q (%s), %d recipients\n", campaign.Name, campaign.Status, len(recipients))
	if campaign.SheetURL != "" {
		fmt.Printf("sheet: %s\n", campaign.SheetURL)
	}
	byStatus := make(map[string]int)
	for i := range recipients {
		r := &recipients[i]
		byStatus[r.Status]++
		fmt.Printf("  %5d  %-28s %-32s stage %d  %s\n", r.ID, r.ContactName, r.Email, r.Stage, r.Status)
	}
	for _, status := range []string{"pending", "sent", "opened", "replied", "bounced"} {
		if n := byStatus[status]; n > 0 {
			fmt.Printf("%s: %d  ", status, n)
		}
	}
	fmt.Println()
	return nil
}

// runFollowup lists recipients due for the next sequence stage.
func runFollowup(store *persistence.Store, stage, days int) error {
	recipients, err := store.RecipientsNeedingFollowup(stage, days)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		fmt.Printf("no stage-%d recipients idle for %d+ days\n", stage, days)
		return nil
	}
	fmt.Printf("%d recipient(s) due for follow-up:\n", len(recipients))
	for i := range recipients {
		r := &recipients[i]
		fmt.Printf("  %5d  %-28s %-32s %s (%s)\n", r.ID, r.ContactName, r.Email, r.Company, r.Status)
	}
	return nil
}

// modelClient picks the provider from the model name: Anthropic models run on
// the Messages API, everything else goes to the OpenAI-compatible client.
func modelClient(cfg *config.Config, model string) llm.Client {
	if strings.HasPrefix(model, "claude") && cfg.Keys.Anthropic != "" {
		return anthropicimpl.New(cfg.Keys.Anthropic, model)
	}
	return openaiimpl.New(cfg.Keys.OpenAI, model)
}

func splitCompanies(arg string) []string {
	var out []string
	for _, c := range strings.Split(arg, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
