// Package sentiment scores chat messages on sentiment, risk, and quality,
// and classifies them as call / alert / discussion / spam.
package sentiment

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/signal-tracker/pkg/types"
)

// Weighted lexicons. Single-word entries match on word boundaries; entries
// containing a space match as substrings of the lowercased text.
var bullishLexicon = map[string]float64{
	"moon": 1.5, "mooning": 1.5, "bullish": 2.0, "pump": 1.0, "pumping": 1.2,
	"ape": 1.5, "aped": 1.5, "aping": 1.5, "gem": 1.5, "alpha": 1.0,
	"early": 1.0, "send it": 1.5, "lfg": 1.2, "buy": 1.0, "buying": 1.2,
	"bought": 1.0, "loaded": 1.2, "long": 0.8, "breakout": 1.2, "runner": 1.0,
	"cooking": 1.0, "based": 0.8, "legit": 0.8, "printing": 1.2,
}

var bearishLexicon = map[string]float64{
	"dump": 1.5, "dumping": 1.5, "rug": 2.0, "rugged": 2.0, "scam": 2.0,
	"bearish": 2.0, "sell": 1.0, "selling": 1.2, "sold": 1.0, "exit": 1.0,
	"crash": 1.5, "dead": 1.2, "rekt": 1.2, "honeypot": 2.0, "avoid": 1.2,
	"short": 0.8, "bleeding": 1.2, "down bad": 1.2, "exit scam": 2.0,
}

var neutralLexicon = map[string]float64{
	"watching": 0.5, "chart": 0.3, "update": 0.3, "volume": 0.3,
	"holding": 0.5, "sideways": 0.5, "waiting": 0.4, "range": 0.3,
}

var riskLexicon = map[string]float64{
	"rug": 30, "rugged": 35, "scam": 30, "honeypot": 35, "dev sold": 25,
	"sketchy": 15, "anon dev": 15, "no lp": 20, "lp unlocked": 20,
	"unverified": 15, "insider": 15, "sniped": 10, "bundled": 15,
	"guaranteed": 20, "risk free": 25, "airdrop": 10, "giveaway": 15,
}

var qualityLexicon = map[string]float64{
	"analysis": 15, "chart": 10, "liquidity": 10, "locked": 15, "audit": 20,
	"audited": 20, "team": 10, "roadmap": 10, "holders": 10, "renounced": 15,
	"volume": 5, "utility": 10, "backed": 10, "doxxed": 15,
}

// Classification pattern tables, evaluated in spec order:
// spam (needs >=2 hits), call, alert, discussion.
var spamPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bgiveaway\b`),
	regexp.MustCompile(`(?i)\bairdrop\b`),
	regexp.MustCompile(`(?i)free\s+(tokens?|money|crypto)`),
	regexp.MustCompile(`(?i)click\s+(here|the\s+link)`),
	regexp.MustCompile(`(?i)(verify|connect|validate)\s+(your\s+)?wallet`),
	regexp.MustCompile(`(?i)\bdm\s+me\b`),
	regexp.MustCompile(`(?i)join\s+(now|fast|quick)`),
	regexp.MustCompile(`(?i)100%\s*(guaranteed|profit|safe)`),
	regexp.MustCompile(`(?i)limited\s+time`),
	regexp.MustCompile(`(?i)first\s+\d+\s+(people|users|members)`),
}

var callPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(buy|buying|bought)\b`),
	regexp.MustCompile(`(?i)\bape[ds]?\b|\baping\b`),
	regexp.MustCompile(`(?i)\bentry\b|\bentered\b`),
	regexp.MustCompile(`(?i)\b(load(ed|ing)?|scooped|full\s*port)\b`),
	regexp.MustCompile(`(?i)\bsend(ing)?\s+it\b|\blfg\b`),
	regexp.MustCompile(`(?i)\b(gem|alpha)\b`),
	regexp.MustCompile(`(?i)\b\d+x\s+(potential|play|gem)\b`),
}

var alertPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\balert\b|\bwarning\b`),
	regexp.MustCompile(`(?i)\b(careful|caution)\b`),
	regexp.MustCompile(`(?i)\brug(ged|ging)?\b`),
	regexp.MustCompile(`(?i)\bscam(mer)?\b|\bhoneypot\b`),
	regexp.MustCompile(`(?i)\bdump(ing|ed)?\b`),
	regexp.MustCompile(`(?i)\bred\s+flag\b`),
	regexp.MustCompile(`(?i)\bdev\s+(sold|dumped|bailed)\b`),
}

var wordSplitRe = regexp.MustCompile(`[a-z0-9]+`)

// Analyze scores text on sentiment (-1..1), risk (0..100) and quality
// (0..100, baseline 50). Pure and total.
func Analyze(text string) types.SentimentVerdict {
	lower := strings.ToLower(text)
	words := map[string]bool{}
	for _, w := range wordSplitRe.FindAllString(lower, -1) {
		words[w] = true
	}
	matches := func(entry string) bool {
		if strings.Contains(entry, " ") {
			return strings.Contains(lower, entry)
		}
		return words[entry]
	}

	var bull, bear, neut float64
	var signals []string
	for entry, w := range bullishLexicon {
		if matches(entry) {
			bull += w
			signals = append(signals, "+"+entry)
		}
	}
	for entry, w := range bearishLexicon {
		if matches(entry) {
			bear += w
			signals = append(signals, "-"+entry)
		}
	}
	for entry, w := range neutralLexicon {
		if matches(entry) {
			neut += w
		}
	}

	var risk float64
	var riskFactors []string
	for entry, w := range riskLexicon {
		if matches(entry) {
			risk += w
			riskFactors = append(riskFactors, entry)
		}
	}

	quality := 50.0
	var qualityFactors []string
	for entry, w := range qualityLexicon {
		if matches(entry) {
			quality += w
			qualityFactors = append(qualityFactors, entry)
		}
	}

	risk = clamp(risk, 0, 100)
	if risk > 50 {
		quality -= 0.5 * (risk - 50)
	}
	quality = clamp(quality, 0, 100)

	v := types.SentimentVerdict{
		RiskScore:      risk,
		QualityScore:   quality,
		MatchedSignals: capList(sorted(signals), 10),
		RiskFactors:    capList(sorted(riskFactors), 5),
		QualityFactors: capList(sorted(qualityFactors), 5),
	}

	if bull+bear > 0 {
		ratio := (bull - bear) / (bull + bear)
		v.Score = clamp(ratio, -1, 1)
		switch {
		case ratio > 0.2:
			v.Polarity = types.Bullish
		case ratio < -0.2:
			v.Polarity = types.Bearish
		default:
			v.Polarity = types.Neutral
		}
	} else {
		v.Polarity = types.Neutral
	}
	v.Confidence = math.Min((bull+bear+neut)/5, 1)
	return v
}

// Classify assigns one of the four message classes with a confidence.
func Classify(text string) (types.Classification, float64) {
	if n := countMatches(spamPatterns, text); n >= 2 {
		return types.ClassSpam, math.Min(0.5+0.15*float64(n), 0.95)
	}
	if n := countMatches(callPatterns, text); n >= 1 {
		return types.ClassCall, math.Min(0.5+0.15*float64(n), 0.95)
	}
	if n := countMatches(alertPatterns, text); n >= 1 {
		return types.ClassAlert, math.Min(0.5+0.15*float64(n), 0.95)
	}
	return types.ClassDiscussion, 0.5
}

func countMatches(patterns []*regexp.Regexp, text string) int {
	n := 0
	for _, re := range patterns {
		if re.MatchString(text) {
			n++
		}
	}
	return n
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func capList(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func sorted(s []string) []string {
	// Map iteration order is random; sort so repeated runs of Analyze
	// yield identical verdicts.
	sort.Strings(s)
	return s
}
