package nutrilog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/saadjs/nutrilog/internal/model"
	"github.com/saadjs/nutrilog/internal/service"
)

// runSteps answers prompts from in until the step finishes. End of input
// cancels whatever is being asked.
func runSteps(ctx context.Context, in io.Reader, out io.Writer, step *service.Step) (*service.Outcome, error) {
	r := bufio.NewReader(in)
	for !step.Done() {
		ans, err := ask(r, out, step.Prompt)
		if err != nil {
			return nil, err
		}
		next, err := step.Resume(ctx, ans)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if errors.Is(err, service.ErrStepClosed) {
				return nil, err
			}
			fmt.Fprintf(out, "  %v\n", err)
			continue
		}
		step = next
	}
	return step.Result, nil
}

func ask(r *bufio.Reader, out io.Writer, p *service.Prompt) (service.Answer, error) {
	switch p.Kind {
	case service.PromptGrams:
		return askGrams(r, out, p)
	case service.PromptChoice, service.PromptCorrection:
		return askChoice(r, out, p)
	case service.PromptManual:
		return askManual(r, out, p)
	default:
		return service.Answer{}, fmt.Errorf("unsupported prompt %q", p.Kind)
	}
}

func askGrams(r *bufio.Reader, out io.Writer, p *service.Prompt) (service.Answer, error) {
	quick := make([]string, 0, len(p.QuickGrams))
	for _, g := range p.QuickGrams {
		quick = append(quick, formatGrams(g))
	}
	fmt.Fprintf(out, "How many grams of %s? [%s] (quick: %s, q to skip): ", p.Label, formatGrams(p.DefaultGrams), strings.Join(quick, " / "))
	line, err := readLine(r)
	if errors.Is(err, io.EOF) || isCancel(line) {
		return service.Answer{Cancel: true}, nil
	}
	if err != nil {
		return service.Answer{}, err
	}
	if line == "" {
		return service.Answer{Grams: p.DefaultGrams}, nil
	}
	g, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(line, "g")), 64)
	if err != nil {
		return service.Answer{Grams: -1}, nil
	}
	return service.Answer{Grams: g}, nil
}

func askChoice(r *bufio.Reader, out io.Writer, p *service.Prompt) (service.Answer, error) {
	if p.Kind == service.PromptCorrection {
		fmt.Fprintf(out, "No confident match for %q.\n", p.Label)
	} else {
		fmt.Fprintf(out, "Which %s did you mean?\n", p.Label)
	}
	for i, c := range p.Choices {
		fmt.Fprintf(out, "  %d) %s  [%s, %.2f]\n", i+1, c.Product.Label(), c.Provider, c.Confidence)
	}
	if p.Kind == service.PromptCorrection {
		fmt.Fprint(out, "Type a better name, pick a number, or q to log it as unresolved: ")
	} else {
		fmt.Fprint(out, "Pick a number, type a different name, or q to skip: ")
	}
	line, err := readLine(r)
	if errors.Is(err, io.EOF) || isCancel(line) {
		return service.Answer{Cancel: true}, nil
	}
	if err != nil {
		return service.Answer{}, err
	}
	if n, err := strconv.Atoi(line); err == nil {
		return service.Answer{Choice: n}, nil
	}
	return service.Answer{Text: line}, nil
}

func askManual(r *bufio.Reader, out io.Writer, p *service.Prompt) (service.Answer, error) {
	fmt.Fprintf(out, "Could not look up %q, enter it by hand (q to cancel).\n", p.Label)
	mi := &service.ManualInput{}
	fields := []struct {
		label string
		def   string
		set   func(string) error
	}{
		{"Name", p.DefaultName, func(v string) error { mi.Name = v; return nil }},
		{"Grams", formatGrams(p.DefaultGrams), floatSetter(&mi.Grams)},
		{"Calories (kcal)", "0", floatSetter(&mi.Kcal)},
		{"Protein (g)", "0", floatSetter(&mi.ProteinG)},
		{"Carbs (g)", "0", floatSetter(&mi.CarbsG)},
		{"Fat (g)", "0", floatSetter(&mi.FatG)},
		{"Fiber (g)", "0", floatSetter(&mi.FiberG)},
	}
	for _, f := range fields {
		for {
			fmt.Fprintf(out, "  %s [%s]: ", f.label, f.def)
			line, err := readLine(r)
			if errors.Is(err, io.EOF) || isCancel(line) {
				return service.Answer{Cancel: true}, nil
			}
			if err != nil {
				return service.Answer{}, err
			}
			if line == "" {
				line = f.def
			}
			if err := f.set(line); err != nil {
				fmt.Fprintf(out, "  %v\n", err)
				continue
			}
			break
		}
	}
	fmt.Fprint(out, "  Remember this phrase? [y/N]: ")
	line, err := readLine(r)
	if err != nil && !errors.Is(err, io.EOF) {
		return service.Answer{}, err
	}
	mi.SaveAlias = strings.EqualFold(line, "y") || strings.EqualFold(line, "yes")
	return service.Answer{Manual: mi}, nil
}

func floatSetter(dst *float64) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(v, "g")), 64)
		if err != nil {
			return fmt.Errorf("%q is not a number", v)
		}
		*dst = f
		return nil
	}
}

// readLine returns io.EOF only when the input ended before any text.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	line = strings.TrimSpace(line)
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return line, nil
		}
		return line, err
	}
	return line, nil
}

func isCancel(line string) bool {
	return strings.EqualFold(line, "q")
}

func formatGrams(g float64) string {
	return strconv.FormatFloat(g, 'f', -1, 64) + "g"
}

func printOutcome(out io.Writer, o *service.Outcome) {
	if o.Cancelled {
		fmt.Fprintln(out, "Nothing logged.")
		return
	}
	source := ""
	if o.AliasHit {
		source = " (remembered)"
	}
	fmt.Fprintf(out, "Logged %d item(s) for %s%s\n", len(o.Items), o.Entry.DateLocal, source)
	for _, it := range o.Items {
		fmt.Fprintf(out, "  - %s\n", formatItem(it))
	}
	if o.Learned != nil {
		fmt.Fprintf(out, "Remembered %q for next time.\n", o.Learned.Phrase)
	}
	if o.AliasSkipped {
		fmt.Fprintln(out, "Phrase has several foods, not remembered.")
	}
	t := o.Totals
	fmt.Fprintf(out, "Today: %d kcal  P %.1fg  C %.1fg  F %.1fg  fiber %.1fg\n", t.Kcal, t.ProteinG, t.CarbsG, t.FatG, t.FiberG)
}

func formatItem(it model.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s", it.DisplayName, formatGrams(it.Grams))
	m := it.Macros
	if m.Kcal != nil {
		fmt.Fprintf(&b, "  %d kcal", *m.Kcal)
	}
	for _, part := range []struct {
		name string
		v    *float64
	}{{"P", m.ProteinG}, {"C", m.CarbsG}, {"F", m.FatG}, {"fiber", m.FiberG}} {
		if part.v != nil {
			fmt.Fprintf(&b, "  %s %.1fg", part.name, *part.v)
		}
	}
	if it.Note != "" {
		fmt.Fprintf(&b, "  (%s)", it.Note)
	}
	return b.String()
}
