package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"qingbu/internal/amqp"
	"qingbu/internal/log"
	"qingbu/internal/recurring"
)

func (a *app) engine() *recurring.Engine {
	return recurring.NewEngine(a.store, a.loc,
		recurring.WithLookahead(a.cfg.LookaheadDays),
		recurring.WithLogger(a.logger.WithComponent(log.ComponentRecurring)))
}

func (a *app) runSweep(ctx context.Context, args []string) error {
	fs := a.flagSet("sweep")
	policyFlag := fs.String("policy", a.cfg.DuplicatePolicy, "skip, create or replace for days that already have a record")
	ask := fs.Bool("ask", false, "ask what to do with each day that already has a record")
	dryRun := fs.Bool("dry-run", false, "only list the pending days")
	if err := fs.Parse(args); err != nil {
		return err
	}
	policy, err := recurring.ParseDecision(*policyFlag)
	if err != nil {
		return err
	}

	e := a.engine()
	pending, err := e.FindPending(ctx, a.now())
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Fprintln(a.out, "Nothing due")
		return nil
	}

	if *dryRun {
		tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "模板\t日期\t金额\t已有记录")
		for _, p := range pending {
			existing := "-"
			if p.Duplicate() {
				existing = fmt.Sprintf("#%d", p.ExistingRecordID)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Template.Name, p.TargetDate.Format(dateLayout), p.Template.Amount, existing)
		}
		return tw.Flush()
	}

	decide := func(recurring.Pending) recurring.Decision { return policy }
	if *ask {
		decide = a.prompt(policy)
	}

	res := e.Resolve(ctx, pending, decide)
	fmt.Fprintf(a.out, "Created %d, skipped %d, failed %d\n", res.Created, res.Skipped, res.Errors)
	if res.Errors > 0 {
		return fmt.Errorf("%d recurring records failed", res.Errors)
	}
	return nil
}

// prompt asks on a.in about every duplicate day. Unreadable or empty
// answers fall back to def.
func (a *app) prompt(def recurring.Decision) func(recurring.Pending) recurring.Decision {
	sc := bufio.NewScanner(a.in)
	return func(p recurring.Pending) recurring.Decision {
		fmt.Fprintf(a.out, "%s on %s already has record #%d. [s]kip, [c]reate, [r]eplace (default %s): ",
			p.Template.Name, p.TargetDate.Format(dateLayout), p.ExistingRecordID, def)
		if !sc.Scan() {
			fmt.Fprintln(a.out)
			return def
		}
		switch strings.ToLower(strings.TrimSpace(sc.Text())) {
		case "s", "skip":
			return recurring.Skip
		case "c", "create":
			return recurring.Create
		case "r", "replace":
			return recurring.Replace
		}
		return def
	}
}

func (a *app) runTrigger(ctx context.Context, args []string) error {
	fs := a.flagSet("trigger")
	policyFlag := fs.String("policy", "", "skip, create or replace (default: the worker's)")
	force := fs.Bool("force", false, "sweep even if the worker already checked today")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *policyFlag != "" {
		if _, err := recurring.ParseDecision(*policyFlag); err != nil {
			return err
		}
	}
	if a.sweeps == nil {
		return errors.New("AMQP is not configured, set AMQP_URL")
	}

	msg := amqp.NewSweepRequest(*policyFlag, *force)
	if err := a.sweeps.PublishSweepRequest(ctx, msg); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Sweep request %s queued\n", msg.ID)
	return nil
}
