package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/blocksim/internal/framework"
	"github.com/san-kum/blocksim/internal/vector"
)

var (
	cyan    = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	green   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	magenta = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
	red     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

const historyLen = 60

type node struct {
	sys   framework.System
	ctx   framework.Context
	depth int
}

// Inspector browses the subsystems of a built system and shows the values
// of their ports and state at the current context time.
type Inspector struct {
	ctx     framework.Context
	nodes   []node
	cursor  int
	start   float64
	dt      float64
	playing bool
	history []float64

	width  int
	height int
}

func NewInspector(sys framework.System, ctx framework.Context, dt float64) *Inspector {
	m := &Inspector{
		ctx:     ctx,
		start:   ctx.Time(),
		dt:      dt,
		history: make([]float64, 0, historyLen),
		width:   80,
		height:  24,
	}
	m.nodes = flatten(nil, sys, ctx, 0)
	m.record()
	return m
}

func flatten(nodes []node, sys framework.System, ctx framework.Context, depth int) []node {
	nodes = append(nodes, node{sys: sys, ctx: ctx, depth: depth})
	if d, ok := sys.(*framework.Diagram); ok {
		for _, child := range d.Subsystems() {
			nodes = flatten(nodes, child, d.SubsystemContext(ctx, child), depth+1)
		}
	}
	return nodes
}

// Run starts the inspector on the terminal.
func Run(sys framework.System, ctx framework.Context, dt float64) error {
	p := tea.NewProgram(NewInspector(sys, ctx, dt), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m *Inspector) Init() tea.Cmd { return nil }

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(50*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Inspector) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		if m.playing {
			m.advance(m.dt)
			return m, tick()
		}
	}
	return m, nil
}

func (m *Inspector) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q", "ctrl+c":
		return tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
			m.history = m.history[:0]
			m.record()
		}
	case "down", "j":
		if m.cursor < len(m.nodes)-1 {
			m.cursor++
			m.history = m.history[:0]
			m.record()
		}
	case "right", "l":
		m.advance(m.dt)
	case "left", "h":
		m.advance(-m.dt)
	case "r":
		m.setTime(m.start)
		m.history = m.history[:0]
		m.record()
	case " ":
		m.playing = !m.playing
		if m.playing {
			return tick()
		}
	}
	return nil
}

func (m *Inspector) Time() float64 { return m.ctx.Time() }

func (m *Inspector) Selected() framework.System { return m.nodes[m.cursor].sys }

func (m *Inspector) advance(dt float64) {
	m.setTime(m.ctx.Time() + dt)
	m.record()
}

func (m *Inspector) setTime(t float64) {
	m.ctx.SetTime(t)
	m.ctx.MarkCachesOutOfDate()
}

// record appends the first element of the selected system's first vector
// output to the sparkline history.
func (m *Inspector) record() {
	n := m.nodes[m.cursor]
	for i := range n.sys.NumOutputPorts() {
		out := n.sys.OutputPort(framework.OutputPortIndex(i))
		if out.DataType() != framework.VectorValued || out.Size() == 0 {
			continue
		}
		text, y := evalOutput(out, n.ctx)
		if text != "" {
			return
		}
		if len(m.history) == historyLen {
			m.history = append(m.history[:0], m.history[1:]...)
		}
		m.history = append(m.history, y[0])
		return
	}
}

func (m *Inspector) View() string {
	var b strings.Builder
	status := yellow.Render("○ paused")
	if m.playing {
		status = green.Render("● playing")
	}
	fmt.Fprintf(&b, "\n   %s  %s  %s\n", cyan.Render(m.nodes[0].sys.Name()), status, dim.Render(fmt.Sprintf("t=%.3f", m.ctx.Time())))
	b.WriteString(dimmer.Render("   "+strings.Repeat("─", 40)) + "\n\n")

	for i, n := range m.nodes {
		indent := strings.Repeat("  ", n.depth)
		label := fmt.Sprintf("%s%-16s", indent, n.sys.Name())
		kind := "leaf"
		if _, ok := n.sys.(*framework.Diagram); ok {
			kind = "diagram"
		}
		if i == m.cursor {
			b.WriteString("   " + cyan.Render("▸ ") + white.Render(label) + magenta.Render(kind) + "\n")
		} else {
			b.WriteString("     " + dim.Render(label) + dimmer.Render(kind) + "\n")
		}
	}
	b.WriteString("\n")
	b.WriteString(m.viewDetail())

	if len(m.history) > 1 {
		fmt.Fprintf(&b, "\n   %s %s\n", dim.Render("y0"), cyan.Render(sparkline(m.history, 40)))
	}
	b.WriteString("\n" + dim.Render("   ↑↓ select  ←→ step time  space play  r reset  q quit") + "\n")
	return b.String()
}

func (m *Inspector) viewDetail() string {
	n := m.nodes[m.cursor]
	var b strings.Builder
	sizes := n.sys.ContextSizes()
	fmt.Fprintf(&b, "   %s  %s\n", white.Render(n.sys.Name()),
		dim.Render(fmt.Sprintf("q=%d v=%d z=%d  inputs=%d outputs=%d cache=%d",
			sizes.NumPositions, sizes.NumVelocities, sizes.NumMisc,
			n.sys.NumInputPorts(), n.sys.NumOutputPorts(), n.sys.NumCacheEntries())))

	for i := range n.sys.NumInputPorts() {
		in := n.sys.InputPort(framework.InputPortIndex(i))
		b.WriteString(row("in ", in.Name(), evalInput(in, n.ctx)))
	}
	for i := range n.sys.NumOutputPorts() {
		out := n.sys.OutputPort(framework.OutputPortIndex(i))
		text, y := evalOutput(out, n.ctx)
		if text == "" {
			text = formatVector(y)
		}
		b.WriteString(row("out", out.Name(), text))
	}
	if n.sys.NumContinuousStates() > 0 {
		b.WriteString(row("x  ", "state", formatVector(n.ctx.ContinuousState().Vector())))
		b.WriteString(row("ẋ  ", "derivs", evalDerivatives(n.sys, n.ctx)))
	}
	return b.String()
}

func row(kind, name, value string) string {
	return "     " + dimmer.Render(kind) + " " + dim.Render(fmt.Sprintf("%-16s", name)) + value + "\n"
}

// evalInput formats the value of in, or the reason it cannot be evaluated.
func evalInput(in *framework.InputPort, ctx framework.Context) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = red.Render(fmt.Sprint(r))
		}
	}()
	if in.DataType() == framework.VectorValued {
		return formatVector(in.EvalVector(ctx))
	}
	return fmt.Sprintf("%v", in.EvalAbstract(ctx).Interface())
}

// evalOutput returns the vector value of out, or a non-empty text for
// abstract values and evaluation failures.
func evalOutput(out framework.OutputPort, ctx framework.Context) (text string, y vector.Vector) {
	defer func() {
		if r := recover(); r != nil {
			text, y = red.Render(fmt.Sprint(r)), nil
		}
	}()
	if out.DataType() == framework.VectorValued {
		return "", framework.Eval[vector.Vector](out, ctx)
	}
	return fmt.Sprintf("%v", out.EvalAbstract(ctx).Interface()), nil
}

func evalDerivatives(sys framework.System, ctx framework.Context) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = red.Render(fmt.Sprint(r))
		}
	}()
	derivs := sys.AllocateTimeDerivatives()
	sys.CalcTimeDerivatives(ctx, derivs)
	return formatVector(derivs.Vector())
}

func formatVector(v vector.Vector) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%.3f", x)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func sparkline(data []float64, width int) string {
	if len(data) == 0 {
		return ""
	}
	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	minVal, maxVal := data[0], data[0]
	for _, v := range data {
		minVal = min(minVal, v)
		maxVal = max(maxVal, v)
	}
	span := maxVal - minVal
	if span == 0 {
		span = 1
	}
	step := max(len(data)/width, 1)

	var sb strings.Builder
	for i := 0; i < width && i*step < len(data); i++ {
		idx := int((data[i*step] - minVal) / span * 7)
		sb.WriteRune(chars[min(max(idx, 0), 7)])
	}
	return sb.String()
}
