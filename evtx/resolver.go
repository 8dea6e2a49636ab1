package evtx

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

// DiagnosticsLevel gates how much of the resolution lifecycle is retained
// on a MessageResolution (§4.9).
type DiagnosticsLevel int

const (
	DiagnosticsNone DiagnosticsLevel = iota
	DiagnosticsBasic
	DiagnosticsFull
)

// MessageStrategy is the escalation policy when no template is found.
type MessageStrategy int

const (
	StrategyNone MessageStrategy = iota
	StrategyBestEffort
	StrategyRequired
)

// Attempt records one provider-name lookup made during resolution.
type Attempt struct {
	Provider       string
	CandidateCount int
	Reason         string // "no-candidates", "best-fit", "alias-fallback"
	Selected       bool
}

// Selection is the winning candidate template and its fit assessment.
type Selection struct {
	TemplateText string
	Placeholders int
	Fit          string // "exact", "underflow", "overflow"
	ArgsUsed     []string
}

// FallbackInfo records how a fallback message was built when no template
// resolved (§4.10).
type FallbackInfo struct {
	BuiltFrom string
	ItemCount int
	Message   string
}

// FinalMessage is the resolver's terminal output, tagged by origin.
type FinalMessage struct {
	Message string
	From    string // "template" or "fallback"
}

// MessageResolution is the full diagnostic lifecycle record of one
// resolution attempt, shaped by the resolver's DiagnosticsLevel (§4.9).
type MessageResolution struct {
	Status   string // "resolved", "fallback", "unresolved"
	Attempts []Attempt
	Selection *Selection
	Fallback  *FallbackInfo
	Warnings  []string
	Errors    []string
	Final     *FinalMessage
}

// ResolverConfig mirrors the relevant subset of §6's public Config.
type ResolverConfig struct {
	EnableAliasLookup bool
	CandidateLimit    int
	DefaultLocale     string
	Diagnostics       DiagnosticsLevel
	Strategy          MessageStrategy
}

// MessageResolver implements §4.9/§4.10: provider/alias lookup, candidate
// scoring, placeholder substitution, provider-specific reordering, and the
// fallback line builder.
type MessageResolver struct {
	catalog CatalogProvider
	cfg     ResolverConfig
	cache   *lru.Cache // "provider|eventId|locale" -> []string candidates
}

// NewMessageResolver builds a resolver over catalog. A nil catalog makes
// every resolution immediately fall through to the fallback builder (or to
// StrategyRequired's error), matching message_strategy=none's collaborator
// being absent.
func NewMessageResolver(catalog CatalogProvider, cfg ResolverConfig) *MessageResolver {
	if cfg.DefaultLocale == "" {
		cfg.DefaultLocale = "en-US"
	}
	cache, _ := lru.New(256)
	return &MessageResolver{catalog: catalog, cfg: cfg, cache: cache}
}

var placeholderRe = regexp.MustCompile(`%(\d+)(!.*?!)?`)

// maxPlaceholderIndex scans t for %N (N >= 1) references and returns the
// highest N seen, or 0 if none.
func maxPlaceholderIndex(t string) int {
	max := 0
	for _, m := range placeholderRe.FindAllStringSubmatch(t, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max
}

// deriveAlias implements §4.9's alias rule: an explicit EventSourceName
// attribute (taken from System/Provider by the assembler) wins; otherwise
// strip the Microsoft-Windows- prefix.
func deriveAlias(providerName string, eventSourceName string) string {
	if eventSourceName != "" {
		return eventSourceName
	}
	const prefix = "Microsoft-Windows-"
	if strings.HasPrefix(providerName, prefix) {
		return strings.TrimPrefix(providerName, prefix)
	}
	return ""
}

// Resolve runs the full §4.9 pipeline for one record.
func (r *MessageResolver) Resolve(ctx context.Context, providerName, eventSourceName string, eventID uint32, locale string, layout []LayoutEntry, subs []Substitution) (*MessageResolution, error) {
	res := &MessageResolution{Status: "unresolved"}
	if r.cfg.Strategy == StrategyNone || r.catalog == nil {
		return r.finishNoTemplate(res, layout, subs, "strategy=none or no catalog configured")
	}
	if locale == "" {
		locale = r.cfg.DefaultLocale
	}

	names := []string{providerName}
	if r.cfg.EnableAliasLookup {
		if alias := deriveAlias(providerName, eventSourceName); alias != "" && alias != providerName {
			names = append(names, alias)
		}
	}

	baselineArgs := BuildArgsFromLayout(layout, subs, 0)
	layoutCount := len(layout)

	var best *Selection
	var bestScore int
	var bestAttemptIdx = -1

	for _, name := range names {
		candidates, err := r.candidatesFor(ctx, name, eventID, locale)
		if err != nil {
			res.Errors = append(res.Errors, err.Error())
			candidates = nil
		}
		if r.cfg.CandidateLimit > 0 && len(candidates) > r.cfg.CandidateLimit {
			candidates = candidates[:r.cfg.CandidateLimit]
		}
		a := Attempt{Provider: name, CandidateCount: len(candidates)}
		if len(candidates) == 0 {
			a.Reason = "no-candidates"
			res.Attempts = append(res.Attempts, a)
			continue
		}
		res.Attempts = append(res.Attempts, a)
		bestAttemptIdx = len(res.Attempts) - 1

		for _, t := range candidates {
			need := maxPlaceholderIndex(t)
			score := scoreCandidate(need, layoutCount, len(baselineArgs))
			if best == nil || score > bestScore {
				bestScore = score
				best = &Selection{TemplateText: t, Placeholders: need, Fit: fitOf(need, len(baselineArgs))}
			}
		}
		break // stop at the first provider yielding >=1 candidate
	}

	if best == nil {
		return r.finishNoTemplate(res, layout, subs, "no provider yielded candidates")
	}

	args := r.buildFinalArgs(providerName, eventID, layout, subs, baselineArgs, best.Placeholders)
	best.ArgsUsed = args
	res.Selection = best
	if best.Placeholders != layoutCount {
		res.Warnings = append(res.Warnings, fmt.Sprintf("template expects %d placeholders, layout has %d entries", best.Placeholders, layoutCount))
	}

	message := applyTemplate(best.TemplateText, args)
	reason := "best-fit"
	if bestAttemptIdx > 0 {
		reason = "alias-fallback"
	}
	res.Attempts[bestAttemptIdx].Selected = true
	res.Attempts[bestAttemptIdx].Reason = reason
	res.Status = "resolved"
	res.Final = &FinalMessage{Message: message, From: "template"}

	r.applyDiagnosticsGate(res)
	return res, nil
}

func (r *MessageResolver) candidatesFor(ctx context.Context, name string, eventID uint32, locale string) ([]string, error) {
	key := fmt.Sprintf("%s|%d|%s", name, eventID, locale)
	if v, ok := r.cache.Get(key); ok {
		return v.([]string), nil
	}
	var out []string
	if cp, ok := r.catalog.(CandidateProvider); ok {
		cands, err := cp.GetCandidates(ctx, name, eventID, locale)
		if err != nil {
			return nil, errors.Wrapf(err, "get_candidates(%s,%d,%s)", name, eventID, locale)
		}
		out = append(out, cands...)
	}
	if t, ok, err := r.catalog.Get(ctx, name, eventID, locale); err != nil {
		return nil, errors.Wrapf(err, "get(%s,%d,%s)", name, eventID, locale)
	} else if ok && !containsString(out, t) {
		out = append(out, t)
	}
	r.cache.Add(key, out)
	return out, nil
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// scoreCandidate implements §4.9's scoring function.
func scoreCandidate(need, layoutCount, argsLen int) int {
	if need == layoutCount {
		return 1000
	}
	if need == argsLen {
		return 500
	}
	if need <= argsLen {
		return 200 + need
	}
	d := need - argsLen
	if d < 0 {
		d = -d
	}
	return 50 - d
}

func fitOf(need, argsLen int) string {
	switch {
	case need == argsLen:
		return "exact"
	case need > argsLen:
		return "underflow"
	default:
		return "overflow"
	}
}

// buildFinalArgs applies §4.10's provider-specific reordering (if any),
// then pads/truncates to need.
func (r *MessageResolver) buildFinalArgs(provider string, eventID uint32, layout []LayoutEntry, subs []Substitution, baseline []string, need int) []string {
	args := baseline
	if reordered := reorderArgs(provider, eventID, layout, subs); reordered != nil {
		args = reordered
	}
	out := make([]string, need)
	for i := range out {
		if i < len(args) {
			out[i] = args[i]
		}
	}
	return out
}

// applyTemplate implements §4.9 step 4's substitution rules.
func applyTemplate(t string, args []string) string {
	out := placeholderRe.ReplaceAllStringFunc(t, func(m string) string {
		sub := placeholderRe.FindStringSubmatch(m)
		n, err := strconv.Atoi(sub[1])
		if err != nil || n < 1 || n > len(args) {
			return ""
		}
		return args[n-1]
	})
	out = strings.ReplaceAll(out, "%n", "\n")
	out = braceRe.ReplaceAllStringFunc(out, func(m string) string {
		sub := braceRe.FindStringSubmatch(m)
		n, err := strconv.Atoi(sub[1])
		if err != nil || n < 0 || n >= len(args) {
			return ""
		}
		return args[n]
	})
	out = residualFormatRe.ReplaceAllString(out, "")
	return out
}

var braceRe = regexp.MustCompile(`\{(\d+)\}`)
var residualFormatRe = regexp.MustCompile(`!.*?!`)

// finishNoTemplate runs the §4.10 fallback builder and sets res.Status
// accordingly, honoring message_strategy=required.
func (r *MessageResolver) finishNoTemplate(res *MessageResolution, layout []LayoutEntry, subs []Substitution, warning string) (*MessageResolution, error) {
	res.Warnings = append(res.Warnings, warning)
	fb := buildFallbackMessage(layout, subs)
	if fb.Message != "" {
		res.Status = "fallback"
		res.Fallback = fb
		res.Final = &FinalMessage{Message: fb.Message, From: "fallback"}
	} else {
		res.Status = "unresolved"
	}
	r.applyDiagnosticsGate(res)
	if r.cfg.Strategy == StrategyRequired && res.Status != "resolved" {
		return res, newErr(KindMessageRequiredMissing, "no message template for required strategy")
	}
	return res, nil
}

// buildFallbackMessage joins up to 10 layout entries as "Name=Value" or
// "Value" per §4.10, skipping empty values.
func buildFallbackMessage(layout []LayoutEntry, subs []Substitution) *FallbackInfo {
	var parts []string
	n := len(layout)
	if n > 10 {
		n = 10
	}
	for _, e := range layout[:n] {
		val := entryDisplayValue(e, subs)
		if val == "" {
			continue
		}
		if e.Name != "" {
			parts = append(parts, e.Name+"="+val)
		} else {
			parts = append(parts, val)
		}
	}
	return &FallbackInfo{BuiltFrom: "data.source", ItemCount: len(layout), Message: strings.Join(parts, " | ")}
}

// entryDisplayValue renders a LayoutEntry's value for the fallback line:
// literal text joined as-is, substitution references resolved and joined
// with ", " (mirrors BuildArgsFromLayout's array-expansion for a single
// entry, without the positional-arg splitting that needs).
func entryDisplayValue(e LayoutEntry, subs []Substitution) string {
	var sb strings.Builder
	for _, p := range e.Parts {
		if p.Literal {
			sb.WriteString(p.Text)
			continue
		}
		if p.Index >= len(subs) {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(subs[p.Index].Value.FormatForRender())
	}
	return sb.String()
}

// applyDiagnosticsGate trims res in place to the configured detail level.
func (r *MessageResolver) applyDiagnosticsGate(res *MessageResolution) {
	switch r.cfg.Diagnostics {
	case DiagnosticsNone:
		res.Attempts = nil
		res.Selection = nil
	case DiagnosticsBasic:
		if res.Selection != nil {
			res.Selection.ArgsUsed = nil
		}
		if len(res.Warnings) > 1 {
			res.Warnings = res.Warnings[:1]
		}
		res.Errors = nil
	case DiagnosticsFull:
		// keep everything
	}
}
