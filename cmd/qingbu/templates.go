package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"qingbu/internal/core"
	"qingbu/internal/recurring"
)

func (a *app) runTemplate(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(a.out, "Usage: qingbu template <add|list|update|enable|disable|delete|quick-add> [options]")
		return errUsage
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "add":
		return a.templateAdd(ctx, rest)
	case "list":
		return a.templateList(ctx, rest)
	case "update":
		return a.templateUpdate(ctx, rest)
	case "enable":
		return a.templateToggle(ctx, rest, true)
	case "disable":
		return a.templateToggle(ctx, rest, false)
	case "delete":
		return a.templateDelete(ctx, rest)
	case "quick-add":
		return a.templateQuickAdd(ctx, rest)
	}
	fmt.Fprintf(a.out, "Unknown template command: %s\n", sub)
	return errUsage
}

func (a *app) templateAdd(ctx context.Context, args []string) error {
	fs := a.flagSet("template add")
	name := fs.String("name", "", "template name")
	typ := fs.String("type", "expense", "income or expense")
	amount := fs.String("amount", "", "amount")
	cat := fs.String("category", "", "category")
	period := fs.String("period", "monthly", "daily, weekly or monthly")
	day := fs.Int("day", 0, "day of month 1-31 (monthly only)")
	note := fs.String("note", "", "note given to produced records")
	disabled := fs.Bool("disabled", false, "create the template disabled")
	if err := fs.Parse(args); err != nil {
		return err
	}

	t := core.Template{
		Name:       strings.TrimSpace(*name),
		Category:   strings.TrimSpace(*cat),
		PeriodType: core.PeriodType(strings.ToLower(*period)),
		PeriodDay:  *day,
		Note:       *note,
		Enabled:    !*disabled,
	}
	var err error
	if t.Type, err = core.ParseRecordType(*typ); err != nil {
		return err
	}
	if t.Amount, err = core.ParseMoney(*amount); err != nil {
		return fmt.Errorf("amount %q: %w", *amount, err)
	}
	if t.PeriodType != core.Monthly {
		t.PeriodDay = 0
	}
	if err := t.Validate(); err != nil {
		return err
	}

	id, err := a.store.AddTemplate(ctx, t)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Added template #%d %s\n", id, t.Name)
	return nil
}

func (a *app) templateList(ctx context.Context, args []string) error {
	fs := a.flagSet("template list")
	typ := fs.String("type", "", "only income or expense")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var filter *core.RecordType
	if *typ != "" {
		t, err := core.ParseRecordType(*typ)
		if err != nil {
			return err
		}
		filter = &t
	}

	ts, err := a.store.Templates(ctx, filter)
	if err != nil {
		return err
	}
	if len(ts) == 0 {
		fmt.Fprintln(a.out, "No templates")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\t名称\t类型\t金额\t分类\t周期\t状态")
	for _, t := range ts {
		state := "启用"
		if !t.Enabled {
			state = "停用"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Name, t.Type.Label(), t.Amount, t.Category, periodLabel(t), state)
	}
	return tw.Flush()
}

func periodLabel(t core.Template) string {
	switch t.PeriodType {
	case core.Daily:
		return "每天"
	case core.Weekly:
		return "每周"
	case core.Monthly:
		return fmt.Sprintf("每月%d日", t.PeriodDay)
	}
	return string(t.PeriodType)
}

func (a *app) loadTemplate(ctx context.Context, idFlag string) (*core.Template, error) {
	id, err := parseID(idFlag)
	if err != nil {
		return nil, err
	}
	t, err := a.store.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("template #%d not found", id)
	}
	return t, nil
}

func (a *app) templateUpdate(ctx context.Context, args []string) error {
	fs := a.flagSet("template update")
	idFlag := fs.String("id", "", "template id")
	name := fs.String("name", "", "template name")
	typ := fs.String("type", "", "income or expense")
	amount := fs.String("amount", "", "amount")
	cat := fs.String("category", "", "category")
	period := fs.String("period", "", "daily, weekly or monthly")
	day := fs.Int("day", 0, "day of month 1-31")
	note := fs.String("note", "", "note")
	if err := fs.Parse(args); err != nil {
		return err
	}
	t, err := a.loadTemplate(ctx, *idFlag)
	if err != nil {
		return err
	}

	// patch and a merged copy, so the result is validated as a whole
	var patch core.TemplatePatch
	merged := *t
	var perr error
	fs.Visit(func(f *flag.Flag) {
		if perr != nil {
			return
		}
		switch f.Name {
		case "name":
			patch.Name, merged.Name = name, *name
		case "type":
			rt, err := core.ParseRecordType(*typ)
			patch.Type, merged.Type, perr = &rt, rt, err
		case "amount":
			m, err := core.ParseMoney(*amount)
			patch.Amount, merged.Amount, perr = &m, m, err
		case "category":
			patch.Category, merged.Category = cat, *cat
		case "period":
			p := core.PeriodType(strings.ToLower(*period))
			patch.PeriodType, merged.PeriodType = &p, p
		case "day":
			patch.PeriodDay, merged.PeriodDay = day, *day
		case "note":
			patch.Note, merged.Note = note, *note
		}
	})
	if perr != nil {
		return perr
	}
	if err := merged.Validate(); err != nil {
		return err
	}

	if err := a.store.UpdateTemplate(ctx, t.ID, patch); err != nil {
		return err
	}
	if patch.IsEmpty() {
		fmt.Fprintln(a.out, "Nothing to update")
		return nil
	}
	fmt.Fprintf(a.out, "Updated template #%d\n", t.ID)
	return nil
}

func (a *app) templateToggle(ctx context.Context, args []string, enabled bool) error {
	fs := a.flagSet("template toggle")
	idFlag := fs.String("id", "", "template id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	t, err := a.loadTemplate(ctx, *idFlag)
	if err != nil {
		return err
	}
	if err := a.store.ToggleTemplate(ctx, t.ID, enabled); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Template #%d enabled=%s\n", t.ID, strconv.FormatBool(enabled))
	return nil
}

func (a *app) templateDelete(ctx context.Context, args []string) error {
	fs := a.flagSet("template delete")
	idFlag := fs.String("id", "", "template id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	t, err := a.loadTemplate(ctx, *idFlag)
	if err != nil {
		return err
	}
	if err := a.store.DeleteTemplate(ctx, t.ID); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Deleted template #%d %s\n", t.ID, t.Name)
	return nil
}

func (a *app) templateQuickAdd(ctx context.Context, args []string) error {
	fs := a.flagSet("template quick-add")
	idFlag := fs.String("id", "", "template id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	t, err := a.loadTemplate(ctx, *idFlag)
	if err != nil {
		return err
	}

	now := a.now()
	id, err := a.engine().QuickAdd(ctx, *t, now)
	if err != nil {
		return err
	}
	date := recurring.QuickAddDate(*t, now, a.loc)
	fmt.Fprintf(a.out, "Added record #%d from %s on %s\n", id, t.Name, date.Format(dateLayout))
	return nil
}
