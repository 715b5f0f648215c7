// Command dispatch sends one campaign from a JSON file and exits. Ctrl-C
// pauses the run and leaves it resumable with -resume.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/campaign-dispatch/internal/app"
	"github.com/ignite/campaign-dispatch/internal/config"
	"github.com/ignite/campaign-dispatch/internal/dispatch"
	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// campaignFile is the JSON accepted by -campaign.
type campaignFile struct {
	CampaignID  string                 `json:"campaign_id"`
	Subject     string                 `json:"subject"`
	Body        string                 `json:"body"`
	Signature   string                 `json:"signature"`
	Recipients  []domain.Recipient     `json:"recipients"`
	Attachments []domain.AttachmentRef `json:"attachments"`
}

func main() {
	configPath := flag.String("config", "", "path to config.yaml (defaults and environment when empty)")
	campaignPath := flag.String("campaign", "", "campaign JSON file to send")
	resume := flag.Bool("resume", false, "resume the saved campaign")
	retry := flag.Bool("retry-failed", false, "after the run, resend recipients that failed once")
	discard := flag.Bool("discard", false, "discard the saved campaign and exit")
	delay := flag.Duration("delay", 0, "delay between emails in direct mode (default 1s)")
	noBulk := flag.Bool("no-bulk", false, "send one at a time regardless of size")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize dispatch session: %v", err)
	}
	defer a.Close()

	if *discard {
		if err := a.Session.ClearSavedCampaign(ctx); err != nil {
			log.Fatalf("Failed to discard saved campaign: %v", err)
		}
		log.Println("Saved campaign discarded")
		return
	}

	opts := dispatch.Options{
		DelayBetweenEmails:      *delay,
		DisableBulkOptimization: *noBulk,
		OnProgress:              printProgress(),
	}

	// First signal pauses gracefully, a second one aborts
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Println("Pausing after the current group, press Ctrl-C again to abort")
		a.Session.Pause()
		<-sigs
		cancel()
	}()

	var summary *domain.Summary
	switch {
	case *resume:
		summary, err = a.Session.ResumeWithOptions(ctx, opts)
	case *campaignPath != "":
		var c *campaignFile
		c, err = readCampaign(*campaignPath)
		if err != nil {
			log.Fatalf("Failed to read campaign: %v", err)
		}
		a.LogSavedCampaign(ctx)
		summary, err = a.Session.SendCampaign(ctx, c.Recipients, dispatch.Content{
			CampaignID:  c.CampaignID,
			Subject:     c.Subject,
			Body:        c.Body,
			Signature:   c.Signature,
			Attachments: c.Attachments,
		}, opts)
	default:
		a.LogSavedCampaign(ctx)
		flag.Usage()
		os.Exit(2)
	}

	if err == nil && *retry && summary != nil && summary.Failed > 0 && summary.Status == domain.CampaignCompleted {
		log.Printf("Retrying %d failed email(s)", summary.Failed)
		summary, err = a.Session.RetryFailedEmails(ctx)
	}

	if summary != nil {
		printSummary(os.Stdout, summary)
	}
	if err != nil {
		if errors.Is(err, dispatch.ErrNoSavedCampaign) {
			log.Fatalf("Nothing to resume")
		}
		log.Fatalf("Dispatch failed: %v", err)
	}
	if summary != nil && summary.Status == domain.CampaignPaused {
		log.Println("Campaign paused, run again with -resume to continue")
	}
}

func readCampaign(path string) (*campaignFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c campaignFile
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(c.Recipients) == 0 {
		return nil, dispatch.ErrNoRecipients
	}
	for i := range c.Attachments {
		if c.Attachments[i].Source == "" {
			c.Attachments[i].Source = domain.SourceObjectStore
		}
	}
	return &c, nil
}

// printProgress logs status changes and every tenth percent.
func printProgress() func(domain.Progress) {
	lastPct := -10
	lastText := ""
	return func(p domain.Progress) {
		if p.StatusText == lastText && p.Percentage < lastPct+10 && p.Current != p.Total {
			return
		}
		lastText = p.StatusText
		lastPct = p.Percentage
		eta := ""
		if p.ETA != nil {
			eta = fmt.Sprintf(", eta %s", p.ETA.Round(time.Second))
		}
		log.Printf("[%3d%%] %d/%d %s%s", p.Percentage, p.Current, p.Total, p.StatusText, eta)
	}
}

func printSummary(w io.Writer, s *domain.Summary) {
	fmt.Fprintf(w, "\nCampaign %s (%s): %s\n", s.CampaignID, s.Strategy, s.Status)
	fmt.Fprintf(w, "  sent:    %d\n", s.Sent)
	fmt.Fprintf(w, "  failed:  %d\n", s.Failed)
	fmt.Fprintf(w, "  skipped: %d\n", s.Skipped)
	fmt.Fprintf(w, "  total:   %d\n", s.Total)
	fmt.Fprintf(w, "  took:    %s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	for _, r := range s.Results {
		if r.Outcome == domain.OutcomeError {
			fmt.Fprintf(w, "  failed #%d %s: %s\n", r.Index, logger.RedactEmail(r.Address), r.Error)
		}
	}
	if s.Error != "" {
		fmt.Fprintf(w, "  error:   %s\n", s.Error)
	}
}
