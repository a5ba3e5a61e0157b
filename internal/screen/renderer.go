// pattern: Functional Core

package screen

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/watermeter/ruwmd/internal/keepalive"
	"github.com/watermeter/ruwmd/internal/valve"
)

// Renderer is the "draw engine" capability of spec.md §4.11, narrowed to
// a pure function over a DrawRequest: given the active page it produces
// the full displayable content (clearing and redrawing rather than
// tracking per-shape dirtiness, since a string framebuffer has no
// meaningful partial-redraw cost).
type Renderer struct {
	fb     FrameBuffer
	styles *Styles
}

// NewRenderer constructs a Renderer bound to a frame size and theme.
func NewRenderer(fb FrameBuffer, styles *Styles) *Renderer {
	return &Renderer{fb: fb, styles: styles}
}

// Render produces the frame content for req's active page.
func (r *Renderer) Render(req DrawRequest) string {
	switch req.ActivePage {
	case Battery:
		return r.renderBattery(req)
	default:
		return r.renderSummary(req)
	}
}

func (r *Renderer) renderSummary(req DrawRequest) string {
	lines := []string{
		r.styles.TitleStyle().Render("Summary"),
		r.styles.LabelStyle().Render("valve:") + " " + r.valveValue(req),
		r.styles.LabelStyle().Render("edges:") + " " + r.styles.ValueStyle().Render(fmt.Sprintf("%d", req.WaterMeter.EdgesCount)),
		r.styles.LabelStyle().Render("armed:") + " " + r.boolValue(req.WaterMeter.Armed),
		r.styles.LabelStyle().Render("leak:") + " " + r.leakValue(req.WaterMeter.Leaking),
		r.styles.LabelStyle().Render("remaining:") + " " + r.remainingValue(req.RemainingTime),
	}
	return r.frame(lines)
}

func (r *Renderer) renderBattery(req DrawRequest) string {
	pct := req.Battery.Percentage()
	lines := []string{
		r.styles.TitleStyle().Render("Battery"),
		r.styles.LabelStyle().Render("pct:") + " " + r.styles.ValueStyle().Render(fmt.Sprintf("%d%%", pct)),
		r.styles.LabelStyle().Render("powered:") + " " + r.boolValue(req.Battery.Powered),
	}
	if !req.Battery.VoltageKnown {
		lines[1] = r.styles.LabelStyle().Render("pct:") + " " + r.styles.ValueStyle().Render("?")
	}
	return r.frame(lines)
}

func (r *Renderer) valveValue(req DrawRequest) string {
	if !req.ValveKnown || req.ValveState.Phase == valve.Unknown {
		return r.styles.ValueStyle().Render("?")
	}
	return r.styles.ValueStyle().Render(req.ValveState.Phase.String())
}

func (r *Renderer) boolValue(b bool) string {
	if b {
		return r.styles.OkStyle().Render("yes")
	}
	return r.styles.ValueStyle().Render("no")
}

func (r *Renderer) leakValue(leaking bool) string {
	if leaking {
		return r.styles.WarnStyle().Render("LEAK")
	}
	return r.styles.OkStyle().Render("ok")
}

func (r *Renderer) remainingValue(rt keepalive.RemainingTime) string {
	if rt.Indefinite {
		return r.styles.ValueStyle().Render("--")
	}
	return r.styles.ValueStyle().Render(rt.Duration.Round(time.Second).String())
}

func (r *Renderer) frame(lines []string) string {
	body := strings.Join(lines, "\n")
	return r.styles.FrameStyle().Width(r.fb.Width).Render(lipgloss.NewStyle().Render(body))
}
