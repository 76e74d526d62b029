package engine

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNilWriter — в экспорт передан nil writer.
var ErrNilWriter = errors.New("nil writer")

// DOTOption настраивает ExportDOT.
type DOTOption func(*dotConfig)

type dotConfig struct {
	graphName string
	rankDir   string
}

// DOTWithGraphName переопределяет имя графа (по умолчанию имя flow).
func DOTWithGraphName(name string) DOTOption {
	return func(cfg *dotConfig) {
		if name != "" {
			cfg.graphName = name
		}
	}
}

// DOTWithRankDir задаёт направление раскладки ("LR", "TB").
func DOTWithRankDir(rankDir string) DOTOption {
	return func(cfg *dotConfig) {
		if rankDir != "" {
			cfg.rankDir = rankDir
		}
	}
}

// ExportDOT выводит граф шагов flow в формате Graphviz DOT.
//
// Зависимости — сплошные рёбра, переходы к fallback — пунктир.
// Шаги веток связаны цепочкой от родительского шага.
func ExportDOT(w io.Writer, spec *FlowSpec, opts ...DOTOption) error {
	if w == nil {
		return ErrNilWriter
	}
	if err := Validate(spec); err != nil {
		return err
	}
	var plan *stepPlan
	if !spec.IsStaged() {
		plan, _ = planSteps(spec)
	}

	cfg := dotConfig{graphName: flowName(spec), rankDir: "LR"}
	for _, opt := range opts {
		opt(&cfg)
	}

	d := &dotWriter{w: bufio.NewWriter(w)}
	d.printf("digraph %s {\n", dotQuoteIdentifier(cfg.graphName))
	if cfg.rankDir != "" {
		d.printf("    rankdir=%s;\n", cfg.rankDir)
	}

	if spec.IsStaged() {
		d.stages(spec.Stages)
	} else {
		for _, id := range plan.order {
			d.step(id, plan.steps[id])
			for _, dep := range plan.prereqs[id] {
				d.edge(dep, id, "")
			}
		}
	}

	d.printf("}\n")
	if d.err != nil {
		return d.err
	}
	return d.w.Flush()
}

type dotWriter struct {
	w   *bufio.Writer
	err error
}

func (d *dotWriter) printf(format string, args ...any) {
	if d.err != nil {
		return
	}
	_, d.err = fmt.Fprintf(d.w, format, args...)
}

// step выводит узел шага, его ветки и fallback.
func (d *dotWriter) step(id string, step *StepDef) {
	d.printf("    %s [label=%s];\n", dotQuoteIdentifier(id),
		dotQuoteIdentifier(stepName(step)+"\n"+step.Type))

	for i := range step.Branches {
		branch := &step.Branches[i]
		prev := id
		for j := range branch.Steps {
			bs := &branch.Steps[j]
			bid := branchStepID(id, branch.ID, bs.ID)
			d.step(bid, bs)
			d.edge(prev, bid, "")
			prev = bid
		}
	}

	for i := range step.Fallback {
		fb := &step.Fallback[i]
		fid := fallbackID(id, fb.ID)
		d.step(fid, fb)
		d.edge(id, fid, "dashed")
	}
}

// stages выводит стадии: каждая стадия зависит от всех шагов
// предыдущей, включая её fallback.
func (d *dotWriter) stages(stages []Stage) {
	var prev []string
	for i := range stages {
		stage := &stages[i]
		var ids []string
		for j := range stage.Steps {
			s := &stage.Steps[j]
			d.step(s.ID, s)
			for _, p := range prev {
				d.edge(p, s.ID, "")
			}
			ids = append(ids, s.ID)
		}

		var fallbacks []string
		for j := range stage.Fallback {
			fb := &stage.Fallback[j]
			d.step(fb.ID, fb)
			for _, id := range ids {
				d.edge(id, fb.ID, "dashed")
			}
			fallbacks = append(fallbacks, fb.ID)
		}
		prev = append(ids, fallbacks...)
	}
}

func (d *dotWriter) edge(from, to, style string) {
	if style != "" {
		d.printf("    %s -> %s [style=%s];\n", dotQuoteIdentifier(from), dotQuoteIdentifier(to), style)
		return
	}
	d.printf("    %s -> %s;\n", dotQuoteIdentifier(from), dotQuoteIdentifier(to))
}

func dotQuoteIdentifier(name string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range name {
		switch r {
		case '\\', '"':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
