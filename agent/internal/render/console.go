package render

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/fleetpulse/fleetpulse/agent/internal/compute"
	"github.com/fleetpulse/fleetpulse/pkg/types"
)

const (
	pageWidth   = 80
	barSegments = 20
	listLimit   = 3
)

// Console renders each report as a text dashboard.
type Console struct {
	mu  sync.Mutex
	w   io.Writer
	max int
}

// NewConsole writes to w. maxIterations is only used for the
// "Refresh n/max" footer; 0 omits the bound.
func NewConsole(w io.Writer, maxIterations int) *Console {
	return &Console{w: w, max: maxIterations}
}

// Emit renders r. Output for one report is written in a single Write so
// concurrent log lines cannot interleave with it.
func (c *Console) Emit(_ context.Context, r *types.Report) error {
	var b strings.Builder
	Dashboard(&b, r)
	if c.max > 0 {
		fmt.Fprintf(&b, "\n[Refresh %d/%d]\n", r.Cycle, c.max)
	} else if r.Cycle > 1 {
		fmt.Fprintf(&b, "\n[Refresh %d]\n", r.Cycle)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := io.WriteString(c.w, b.String())
	return err
}

// Dashboard writes the full text dashboard for r to w.
func Dashboard(w io.Writer, r *types.Report) {
	rule := strings.Repeat("=", pageWidth)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, center("FLEET HEALTH DASHBOARD"))
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Generated: %s\n", r.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	if r.AgentID != "" {
		fmt.Fprintf(w, "Agent:     %s\n", r.AgentID)
	}

	health(w, r.Health)
	if len(r.Alerts) > 0 {
		alertList(w, r.Alerts)
	}
	s := &r.Snapshot
	anomalies(w, s.Anomalies)
	clusters(w, s.Clusters)
	insights(w, s.Insights)
	connectivity(w, s)

	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, center("END OF REPORT"))
	fmt.Fprintln(w, rule)
}

func section(w io.Writer, title string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("-", pageWidth))
	fmt.Fprintln(w, " "+title)
	fmt.Fprintln(w, strings.Repeat("-", pageWidth))
}

func center(s string) string {
	pad := (pageWidth - len(s)) / 2
	if pad < 0 {
		pad = 0
	}
	return strings.Repeat(" ", pad) + s
}

// Bar draws score (0–100) as a fixed-width bar, one segment per 5 points.
func Bar(score float64) string {
	n := int(score / (100 / barSegments))
	n = max(0, min(n, barSegments))
	return strings.Repeat("#", n) + strings.Repeat(".", barSegments-n)
}

func health(w io.Writer, h types.FleetHealth) {
	section(w, "FLEET HEALTH")
	fmt.Fprintf(w, "\n  Overall: [%s] %.1f/100 (%s)\n", Bar(h.OverallScore), h.OverallScore, h.Status)
	fmt.Fprintln(w, "\n  Component Scores:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, name := range compute.Components() {
		v, ok := h.ComponentScores[name]
		if !ok {
			continue
		}
		fmt.Fprintf(tw, "    %s\t%.0f/100\n", titleCase(name), v)
	}
	tw.Flush()
}

func alertList(w io.Writer, alerts []types.Alert) {
	section(w, "ACTIVE ALERTS")
	for _, a := range alerts {
		icon := "!"
		if a.Level == types.LevelCritical {
			icon = "!!"
		}
		fmt.Fprintf(w, "\n  [%s] %s\n", icon, a.Title)
		fmt.Fprintf(w, "      %s\n", a.Description)
	}
}

func anomalies(w io.Writer, a types.AnomalySnapshot) {
	section(w, "ANOMALY DETECTION")
	fmt.Fprintf(w, "\n  Total Anomalies: %d\n", a.Summary.Total)
	if len(a.Summary.BySeverity) == 0 {
		return
	}
	fmt.Fprintln(w, "  By Severity:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, sev := range sortedKeys(a.Summary.BySeverity) {
		fmt.Fprintf(tw, "    %s\t%d\n", titleCase(sev), a.Summary.BySeverity[sev])
	}
	tw.Flush()
}

func clusters(w io.Writer, c types.ClustersSnapshot) {
	section(w, "PATTERN RECOGNITION")
	fmt.Fprintf(w, "\n  Clusters: %d\n", len(c.Clusters))
	fmt.Fprintf(w, "  Silhouette Score: %.3f\n", c.SilhouetteScore)
	for _, cl := range c.Clusters {
		fmt.Fprintf(w, "\n    Cluster %d: %d devices\n", cl.ID, cl.DeviceCount)
		if len(cl.Characteristics) > 0 {
			fmt.Fprintf(w, "      Mean: %.2f, StdDev: %.2f\n",
				cl.Characteristics["mean"], cl.Characteristics["std_dev"])
		}
	}
	if len(c.Outliers) > 0 {
		fmt.Fprintf(w, "\n  Outliers: %d devices\n", len(c.Outliers))
	}
}

func insights(w io.Writer, s types.InsightsSnapshot) {
	section(w, "INSIGHTS")
	fmt.Fprintf(w, "\n  Total Insights: %d\n", len(s.Insights))

	var critical, actionable []types.Insight
	for _, in := range s.Insights {
		if in.Severity == "critical" {
			critical = append(critical, in)
		}
		if in.Actionable {
			actionable = append(actionable, in)
		}
	}
	if len(critical) > 0 {
		fmt.Fprintln(w, "\n  Critical Insights:")
		for _, in := range critical[:min(len(critical), listLimit)] {
			fmt.Fprintf(w, "    ! %s\n", in.Title)
		}
	}
	if len(actionable) > 0 {
		fmt.Fprintf(w, "\n  Actionable Recommendations (%d):\n", len(actionable))
		for _, in := range actionable[:min(len(actionable), listLimit)] {
			fmt.Fprintf(w, "    - %s\n", in.Title)
		}
	}
}

func connectivity(w io.Writer, s *types.DashboardSnapshot) {
	section(w, "CONNECTIVITY")
	c := s.Connectivity.Summary
	fmt.Fprintf(w, "\n  Devices: %d/%d online", c.OnlineCount, c.TotalDevices)
	if c.OfflineCount > 0 {
		fmt.Fprintf(w, ", %d offline", c.OfflineCount)
	}
	fmt.Fprintln(w)

	l := s.Latency.Summary
	fmt.Fprintln(w, "\n  Latency:")
	fmt.Fprintf(w, "    Average: %.1f ms\n", l.OverallAvgMs)
	fmt.Fprintf(w, "    P95: %.1f ms\n", l.OverallP95Ms)

	t := s.Throughput.Summary
	fmt.Fprintln(w, "\n  Throughput:")
	fmt.Fprintf(w, "    Total Messages: %s\n", thousands(t.TotalMessagesIn))
	fmt.Fprintf(w, "    Avg/Minute: %.1f\n", t.AvgMessagesPerMinute)

	q := s.Quality.Summary
	fmt.Fprintf(w, "\n  Connection Quality: %.0f/100\n", q.AverageQualityScore)
	d := q.Distribution
	fmt.Fprintf(w, "    Excellent %d, Good %d, Fair %d, Poor %d\n", d.Excellent, d.Good, d.Fair, d.Poor)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// thousands formats n with comma separators.
func thousands(n int64) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
