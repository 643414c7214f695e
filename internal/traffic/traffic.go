// Package traffic enriches a deal with SEMrush and Similarweb data and
// renders it as the Slack markdown sections the report embeds. SEMrush
// estimates potential traffic from indexed keywords while Similarweb
// measures real visits, so both are shown side by side.
package traffic

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/growthops/deal-qualifier/pkg/semrush"
	"github.com/growthops/deal-qualifier/pkg/similarweb"
)

// Regional SEMrush databases checked for the country split.
var countryDatabases = []struct{ code, name string }{
	{"it", "Italy"},
	{"us", "USA"},
	{"uk", "UK"},
	{"fr", "France"},
	{"de", "Germany"},
	{"es", "Spain"},
}

// Enricher fetches and formats traffic data. Either client may be nil, in
// which case its section is skipped.
type Enricher struct {
	semrush    semrush.Client
	similarweb similarweb.Client
	now        func() time.Time
	logger     *zap.Logger
}

// NewEnricher creates an Enricher.
func NewEnricher(sr semrush.Client, sw similarweb.Client) *Enricher {
	return &Enricher{
		semrush:    sr,
		similarweb: sw,
		now:        time.Now,
		logger:     zap.L(),
	}
}

// Sections returns the formatted traffic sections for a domain, one per
// provider. Failures degrade to warning lines rather than errors.
func (e *Enricher) Sections(ctx context.Context, domain string) []string {
	domain = CleanDomain(domain)
	if domain == "" {
		return nil
	}

	var sections []string
	if e.semrush != nil {
		sections = append(sections, e.semrushSection(ctx, domain))
	}
	if e.similarweb != nil {
		if s := e.similarwebSection(ctx, domain); s != "" {
			sections = append(sections, s)
		}
	}
	return sections
}

// CleanDomain strips scheme, www prefix and path from a domain field.
func CleanDomain(domain string) string {
	if domain == "" || domain == "N/A" {
		return ""
	}
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	domain = strings.TrimPrefix(domain, "www.")
	if i := strings.Index(domain, "/"); i >= 0 {
		domain = domain[:i]
	}
	return domain
}

type countryTraffic struct {
	name    string
	code    string
	organic int64
	paid    int64
	total   int64
}

func (e *Enricher) semrushSection(ctx context.Context, domain string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*SEMRUSH DATA*\n• Domain: %s\n", domain)

	metrics, err := e.semrush.DomainRank(ctx, domain, "it")
	switch {
	case err != nil && strings.Contains(err.Error(), "NOTHING FOUND"):
		b.WriteString("• :warning: Domain not present in the SEMrush IT database")
	case err != nil:
		e.logger.Warn("semrush domain rank failed", zap.String("domain", domain), zap.Error(err))
		b.WriteString("• :warning: SEMrush data unavailable")
	default:
		total := metrics.Total()
		fmt.Fprintf(&b, "• *Monthly Traffic (IT):* %s visits/month\n", groupInt(total))
		if total > 0 {
			orgPct := float64(metrics.OrganicTraffic) / float64(total) * 100
			paidPct := float64(metrics.AdwordsTraffic) / float64(total) * 100
			fmt.Fprintf(&b, "• Split: Organic %.0f%% (%s) | Paid %.0f%% (%s)\n",
				orgPct, groupInt(metrics.OrganicTraffic), paidPct, groupInt(metrics.AdwordsTraffic))
		}
	}

	countries := e.countrySplit(ctx, domain)

	var international []countryTraffic
	for _, c := range countries {
		if c.code != "it" && c.total >= 1000 {
			international = append(international, c)
		}
	}
	if len(international) > 0 {
		b.WriteString("\n:globe_with_meridians: *Significant international traffic:*")
		for i, c := range international {
			if i == 5 {
				break
			}
			fmt.Fprintf(&b, "\n• %s: %s visits/month", c.name, groupInt(c.total))
		}
	}

	b.WriteString("\n\n*Country split (Top 5):*")
	if len(countries) == 0 {
		b.WriteString("\n• No data available for other countries")
	}
	for i, c := range countries {
		if i == 5 {
			break
		}
		fmt.Fprintf(&b, "\n• %s (%s): %s visits/month (Organic: %s, Paid: %s)",
			c.name, strings.ToUpper(c.code), groupInt(c.total), groupInt(c.organic), groupInt(c.paid))
	}

	if keywords, err := e.semrush.TopKeywords(ctx, domain, 5); err == nil && len(keywords) > 0 {
		b.WriteString("\n\n*Top organic keywords:*")
		for _, kw := range keywords {
			fmt.Fprintf(&b, "\n• \"%s\" - Pos: %d, Vol: %d, Traffic: %.2f%%",
				kw.Phrase, kw.Position, kw.Volume, kw.TrafficPct)
		}
	}
	return b.String()
}

func (e *Enricher) countrySplit(ctx context.Context, domain string) []countryTraffic {
	var out []countryTraffic
	for _, db := range countryDatabases {
		m, err := e.semrush.DomainRank(ctx, domain, db.code)
		if err != nil || m.Total() == 0 {
			continue
		}
		out = append(out, countryTraffic{
			name:    db.name,
			code:    db.code,
			organic: m.OrganicTraffic,
			paid:    m.AdwordsTraffic,
			total:   m.Total(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].total > out[j].total })
	return out
}

func (e *Enricher) similarwebSection(ctx context.Context, domain string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*SIMILARWEB DATA*\n• Domain: %s\n", domain)

	overview, err := e.similarweb.GeneralData(ctx, domain)
	if err != nil {
		e.logger.Warn("similarweb general data failed", zap.String("domain", domain), zap.Error(err))
		b.WriteString("• :warning: Similarweb data unavailable")
		return b.String()
	}

	category := overview.Category
	if category == "" {
		category = "N/D"
	}
	fmt.Fprintf(&b, "• Category: %s", category)

	monthlyVisits := overview.Engagements.Visits
	if t := overview.Engagements.TimeOnSite; t > 0 {
		fmt.Fprintf(&b, "\n• Avg Time on Site: %dm %ds", int(t)/60, int(t)%60)
	}
	if p := overview.Engagements.PagesPerVisit; p > 0 {
		fmt.Fprintf(&b, "\n• Pages/Visit: %.1f", p)
	}
	if r := overview.Engagements.BounceRate; r > 0 {
		fmt.Fprintf(&b, "\n• Bounce Rate: %.1f%%", r*100)
	}

	if split := e.visitsSplit(ctx, domain); split != "" {
		b.WriteString(split)
	}

	if len(overview.TrafficSources) > 0 {
		b.WriteString("\n\n*Channel split (Top 5):*")
		for i, src := range sortedSources(overview.TrafficSources) {
			if i == 5 || src.share <= 0 {
				break
			}
			abs := ""
			if monthlyVisits > 0 {
				abs = fmt.Sprintf(" (~%s)", groupInt(int64(monthlyVisits*src.share)))
			}
			fmt.Fprintf(&b, "\n• %s: %.1f%%%s", src.name, src.share*100, abs)
		}
	}

	if len(overview.TopCountryShares) > 0 {
		b.WriteString("\n\n*Country split (Top 5):*")
		for i, cs := range overview.TopCountryShares {
			if i == 5 {
				break
			}
			if cs.Share <= 0 {
				continue
			}
			abs := ""
			if monthlyVisits > 0 {
				abs = fmt.Sprintf(" (~%s/month)", groupInt(int64(monthlyVisits*cs.Share)))
			}
			fmt.Fprintf(&b, "\n• %s: %.1f%%%s", strings.ToUpper(cs.Country), cs.Share*100, abs)
		}
	}

	b.WriteString(e.competitors(ctx, domain))
	b.WriteString("\n\n_Note: SEMrush estimates potential traffic from indexed keywords while Similarweb measures real visits. For seasonal businesses the Similarweb yearly average can read lower._")
	return b.String()
}

// visitsSplit renders the Italy vs abroad visit comparison with
// year-over-year change, computed on two trailing 12-month windows.
func (e *Enricher) visitsSplit(ctx context.Context, domain string) string {
	curStart, curEnd, prevStart, prevEnd := yearWindows(e.now())

	itCur, itPrev := e.rangePair(ctx, domain, "it", curStart, curEnd, prevStart, prevEnd)
	totalCur, totalPrev := e.rangePair(ctx, domain, "", curStart, curEnd, prevStart, prevEnd)

	if totalCur.Total() > 0 {
		nonITMonthly := max0(totalCur.MonthlyAverage() - itCur.MonthlyAverage())
		nonITAnnual := max0(totalCur.Total() - itCur.Total())
		prevNonITAnnual := max0(totalPrev.Total() - itPrev.Total())

		var b strings.Builder
		b.WriteString("\n\n*Detailed traffic (real visits):*")
		fmt.Fprintf(&b, "\n• :it: *Italy:* ~%s/month | ~%s/year | YoY: %s",
			fmtVisits(itCur.MonthlyAverage()), fmtVisits(itCur.Total()),
			fmtYoY(yoy(itCur.Total(), itPrev.Total()), itCur.Total()))
		fmt.Fprintf(&b, "\n• :earth_americas: *Abroad:* ~%s/month | ~%s/year | YoY: %s",
			fmtVisits(nonITMonthly), fmtVisits(nonITAnnual),
			fmtYoY(yoy(nonITAnnual, prevNonITAnnual), nonITAnnual))
		fmt.Fprintf(&b, "\n• :globe_with_meridians: *Total:* ~%s/month | ~%s/year | YoY: %s",
			fmtVisits(totalCur.MonthlyAverage()), fmtVisits(totalCur.Total()),
			fmtYoY(yoy(totalCur.Total(), totalPrev.Total()), totalCur.Total()))
		return b.String()
	}
	if itCur.Total() > 0 {
		return fmt.Sprintf("\n\n*Italy traffic (real visits):*\n• :it: *Italy:* ~%s/month | ~%s/year | YoY: %s",
			fmtVisits(itCur.MonthlyAverage()), fmtVisits(itCur.Total()),
			fmtYoY(yoy(itCur.Total(), itPrev.Total()), -1))
	}
	return ""
}

func (e *Enricher) rangePair(ctx context.Context, domain, country string, curStart, curEnd, prevStart, prevEnd time.Time) (cur, prev *similarweb.VisitsResponse) {
	cur = e.rangeOrEmpty(ctx, domain, country, curStart, curEnd)
	prev = e.rangeOrEmpty(ctx, domain, country, prevStart, prevEnd)
	return cur, prev
}

func (e *Enricher) rangeOrEmpty(ctx context.Context, domain, country string, start, end time.Time) *similarweb.VisitsResponse {
	const layout = "2006-01-02"
	res, err := e.similarweb.VisitsRange(ctx, domain, country, start.Format(layout), end.Format(layout))
	if err != nil {
		e.logger.Debug("similarweb visits range failed",
			zap.String("domain", domain), zap.String("country", country), zap.Error(err))
		return &similarweb.VisitsResponse{}
	}
	return res
}

func (e *Enricher) competitors(ctx context.Context, domain string) string {
	sites, err := e.similarweb.SimilarSites(ctx, domain)
	if err != nil || len(sites) == 0 {
		return ""
	}

	var strong []similarweb.SimilarSite
	for _, s := range sites {
		if s.Score >= 0.90 {
			strong = append(strong, s)
		}
	}

	var b strings.Builder
	if len(strong) > 0 {
		if len(strong) > 7 {
			strong = strong[:7]
		}
		b.WriteString("\n\n*Competitors / Similar sites (score >= 0.90):*")
		for _, s := range strong {
			fmt.Fprintf(&b, "\n• %s (score: %.2f)", s.URL, s.Score)
		}
		return b.String()
	}

	if len(sites) > 5 {
		sites = sites[:5]
	}
	b.WriteString("\n\n*Competitors / Similar sites (top 5):*")
	for _, s := range sites {
		fmt.Fprintf(&b, "\n• %s (score: %.2f)", s.URL, s.Score)
	}
	return b.String()
}

// yearWindows computes the two trailing 12-month comparison windows.
// Similarweb data lags about two months, so the current window ends on the
// last day of two months ago.
func yearWindows(now time.Time) (curStart, curEnd, prevStart, prevEnd time.Time) {
	firstOfThisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	firstOfPrevMonth := firstOfThisMonth.AddDate(0, -1, 0)
	curEnd = firstOfPrevMonth.AddDate(0, 0, -1)
	curStart = time.Date(curEnd.Year(), curEnd.Month()-11, 1, 0, 0, 0, 0, time.UTC)
	prevStart = curStart.AddDate(-1, 0, 0)
	prevEnd = curStart.AddDate(0, 0, -1)
	return curStart, curEnd, prevStart, prevEnd
}

func yoy(current, previous float64) float64 {
	if previous <= 0 {
		return 0
	}
	return (current - previous) / previous * 100
}

// fmtVisits renders a visit count compactly (1.2M, 45K).
func fmtVisits(n float64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", n/1_000_000)
	case n >= 1000:
		return fmt.Sprintf("%.0fK", n/1000)
	default:
		return fmt.Sprintf("%.0f", n)
	}
}

// fmtYoY renders a year-over-year change. A tiny annual base makes the
// percentage meaningless, so it shows N/D instead; pass annual < 0 to skip
// the base check.
func fmtYoY(change, annual float64) string {
	if annual >= 0 && annual < 100 {
		return "N/D"
	}
	switch {
	case change > 0:
		return fmt.Sprintf("+%.1f%%", change)
	case change < 0:
		return fmt.Sprintf("%.1f%%", change)
	default:
		return "0%"
	}
}

type trafficSource struct {
	name  string
	share float64
}

var sourceNames = map[string]string{
	"search":         "Search",
	"social":         "Social",
	"direct":         "Direct",
	"referrals":      "Referral",
	"mail":           "Email",
	"paid_referrals": "Paid",
}

func sortedSources(sources map[string]float64) []trafficSource {
	out := make([]trafficSource, 0, len(sourceNames))
	for key, name := range sourceNames {
		out = append(out, trafficSource{name: name, share: sources[key]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].share > out[j].share })
	return out
}

// groupInt renders an integer with thousands separators (12,345).
func groupInt(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteString(",")
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

func max0(f float64) float64 {
	if f < 0 {
		return 0
	}
	return f
}
