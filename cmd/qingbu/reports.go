package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"qingbu/internal/category"
	"qingbu/internal/core"
	"qingbu/internal/export"
	"qingbu/internal/stats"
)

func (a *app) runSummary(ctx context.Context, args []string) error {
	fs := a.flagSet("summary")
	month := fs.String("month", "", "YYYY-MM (default current month)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	y, m, err := parseMonth(*month, a.now(), a.loc)
	if err != nil {
		return err
	}

	o, err := a.stats.MonthOverview(ctx, y, m)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%d年%d月\n", o.Range.Start.Year(), int(o.Range.Start.Month()))
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "收入\t%s\t%s\t\n", o.Summary.Income, percent(o.Comparison.IncomeChangePercent))
	fmt.Fprintf(tw, "支出\t%s\t%s\t\n", o.Summary.Expense, percent(o.Comparison.ExpenseChangePercent))
	fmt.Fprintf(tw, "结余\t%s\t%s\t\n", o.Summary.Balance, percent(o.Comparison.BalanceChangePercent))
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(o.Expense) > 0 {
		fmt.Fprintln(a.out, "\n支出分类")
		if err := printCategoryStats(a.out, o.Expense); err != nil {
			return err
		}
	}
	if len(o.Income) > 0 {
		fmt.Fprintln(a.out, "\n收入分类")
		if err := printCategoryStats(a.out, o.Income); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) runCategories(ctx context.Context, args []string) error {
	fs := a.flagSet("categories")
	month := fs.String("month", "", "YYYY-MM (default current month)")
	typ := fs.String("type", "expense", "income or expense")
	known := fs.Bool("known", false, "list the built-in categories instead of totals")
	if err := fs.Parse(args); err != nil {
		return err
	}
	t, err := core.ParseRecordType(*typ)
	if err != nil {
		return err
	}

	if *known {
		for _, p := range category.Parents(t) {
			subs := category.Subcategories(p, t)
			fmt.Fprintf(a.out, "%s %s", category.Icon(p), p)
			if len(subs) > 0 {
				fmt.Fprintf(a.out, ": %s", strings.Join(subs, " "))
			}
			fmt.Fprintln(a.out)
		}
		return nil
	}

	y, m, err := parseMonth(*month, a.now(), a.loc)
	if err != nil {
		return err
	}
	r := core.MonthRange(y, m, a.loc)
	cs, err := a.stats.CategoryStats(ctx, r.Start, r.End, t)
	if err != nil {
		return err
	}
	if len(cs) == 0 {
		fmt.Fprintln(a.out, "No records")
		return nil
	}
	return printCategoryStats(a.out, cs)
}

func printCategoryStats(w io.Writer, cs []core.CategoryStat) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, c := range cs {
		fmt.Fprintf(tw, "%s %s\t%s\t%.1f%%\t%d笔\n", category.Icon(c.Category), c.Category, c.Amount, c.Percentage, c.Count)
	}
	return tw.Flush()
}

func (a *app) runDaily(ctx context.Context, args []string) error {
	fs := a.flagSet("daily")
	month := fs.String("month", "", "YYYY-MM (default current month)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	y, m, err := parseMonth(*month, a.now(), a.loc)
	if err != nil {
		return err
	}
	r := core.MonthRange(y, m, a.loc)
	days, err := a.stats.DailyStats(ctx, r.Start, r.End)
	if err != nil {
		return err
	}
	if len(days) == 0 {
		fmt.Fprintln(a.out, "No records")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "日期\t收入\t支出\t结余")
	for _, d := range days {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Day.Format(dateLayout), d.Income, d.Expense, d.Balance)
	}
	return tw.Flush()
}

func (a *app) runCompare(ctx context.Context, args []string) error {
	fs := a.flagSet("compare")
	month := fs.String("month", "", "YYYY-MM (default current month)")
	modeFlag := fs.String("mode", "month", "month or year")
	if err := fs.Parse(args); err != nil {
		return err
	}
	mode, err := stats.ParseMode(*modeFlag)
	if err != nil {
		return err
	}
	y, m, err := parseMonth(*month, a.now(), a.loc)
	if err != nil {
		return err
	}

	c, err := a.stats.ComparisonStats(ctx, y, m, mode)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\t本期\t上期\t变化\t")
	fmt.Fprintf(tw, "收入\t%s\t%s\t%s\t\n", c.Current.Income, c.Previous.Income, percent(c.IncomeChangePercent))
	fmt.Fprintf(tw, "支出\t%s\t%s\t%s\t\n", c.Current.Expense, c.Previous.Expense, percent(c.ExpenseChangePercent))
	fmt.Fprintf(tw, "结余\t%s\t%s\t%s\t\n", c.Current.Balance, c.Previous.Balance, percent(c.BalanceChangePercent))
	return tw.Flush()
}

func percent(p float64) string {
	return fmt.Sprintf("%+.1f%%", p)
}

func (a *app) runExport(ctx context.Context, args []string) error {
	fs := a.flagSet("export")
	rangeFlag := fs.String("range", "all", "all, month or year")
	dir := fs.String("dir", a.cfg.ExportDir, "output directory")
	stdout := fs.Bool("stdout", false, "print the CSV instead of writing a file")
	sheets := fs.Bool("sheets", false, "also push the records to Google Sheets")
	if err := fs.Parse(args); err != nil {
		return err
	}
	label, err := export.ParseRangeLabel(*rangeFlag)
	if err != nil {
		return err
	}

	e := export.NewExporter(a.store, a.loc,
		export.WithBOM(a.cfg.ExportBOM && !*stdout),
		export.WithAppName(a.cfg.AppName))
	now := a.now()

	if *stdout {
		r, err := export.RangeFor(label, now, a.loc)
		if err != nil {
			return err
		}
		content, err := e.CSV(ctx, r)
		if err != nil {
			return err
		}
		fmt.Fprint(a.out, content)
	} else {
		path, err := e.WriteFile(ctx, *dir, label, now)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Exported %s to %s\n", label, path)
	}

	if *sheets {
		return a.pushSheets(ctx, e, label, now)
	}
	return nil
}

func (a *app) pushSheets(ctx context.Context, e *export.Exporter, label export.RangeLabel, now time.Time) error {
	p, err := a.openSheets(ctx)
	if err != nil {
		return err
	}
	r, err := export.RangeFor(label, now, a.loc)
	if err != nil {
		return err
	}
	ref, err := e.Push(ctx, p, r)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Pushed to Google Sheets: %s\n", ref)
	return nil
}
