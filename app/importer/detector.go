package importer

import (
	"regexp"
	"sort"
	"strings"

	"github.com/textwave/textwave/utils"
)

// Confidence tiers for detected columns
const (
	ConfidenceHigh    = "high"
	ConfidenceMedium  = "medium"
	ConfidenceLow     = "low"
	ConfidenceVeryLow = "very_low"
)

var (
	phoneHeaderRe = regexp.MustCompile(`(?i)(phone|mobile|cell|tel|contact|whatsapp|number|ph|mob|telephone|fone|fon)`)
	nameHeaderRe  = regexp.MustCompile(`(?i)(name|contact|person|client|customer|full_name|first_name|last_name)`)
	alphaNameRe   = regexp.MustCompile(`^[a-zA-Z\s'\-.]+$`)
	pureAlphaRe   = regexp.MustCompile(`^[a-zA-Z\s]+$`)
	titleWordRe   = regexp.MustCompile(`^[A-Z][a-z]+(\s[A-Z][a-z]+)*$`)
	shortCapsRe   = regexp.MustCompile(`^[A-Z]{2,10}$`)
	hasDigitRe    = regexp.MustCompile(`\d`)
)

// ColumnScore is one column's detection outcome.
type ColumnScore struct {
	Column     string  `json:"column"`
	Index      int     `json:"index"`
	Score      float64 `json:"score"`
	Confidence string  `json:"confidence"`
}

// Detection is the full column analysis for a file.
type Detection struct {
	Phone           *ColumnScore  `json:"phone"`
	Name            *ColumnScore  `json:"name"`
	PhoneCandidates []ColumnScore `json:"phone_candidates"`
	Guidance        string        `json:"guidance"`
}

// confidenceTier maps a score to a human tier.
func confidenceTier(score float64) string {
	switch {
	case score >= 80:
		return ConfidenceHigh
	case score >= 50:
		return ConfidenceMedium
	case score >= 20:
		return ConfidenceLow
	default:
		return ConfidenceVeryLow
	}
}

func guidanceFor(tier string) string {
	switch tier {
	case ConfidenceHigh:
		return "Phone column detected with high confidence."
	case ConfidenceMedium:
		return "Phone column detected. Review the column preview before importing."
	case ConfidenceLow:
		return "Phone column detection has low confidence. Consider providing an explicit column mapping."
	default:
		return "No phone column could be reliably detected. Provide an explicit column mapping."
	}
}

// scorePhoneColumn scores how likely a column holds phone numbers. Header
// naming earns a fixed bonus; the rest comes from the share of sampled
// values that validate as phones. Columns dominated by suspicious values
// (emails, URLs, free text) have their data score discounted.
func scorePhoneColumn(header string, samples []string, phones *utils.PhoneValidator) float64 {
	var headerBonus float64
	if phoneHeaderRe.MatchString(header) {
		headerBonus = 20
	}

	var nonEmpty, valid, suspicious int
	for _, raw := range samples {
		v := strings.TrimSpace(raw)
		if v == "" {
			continue
		}
		nonEmpty++

		if len(v) > 25 || len(v) < 5 ||
			strings.Contains(v, "@") || strings.Contains(strings.ToLower(v), "http") ||
			pureAlphaRe.MatchString(v) {
			suspicious++
			continue
		}
		if phones.Validate(v).Valid {
			valid++
		}
	}

	if nonEmpty == 0 {
		return headerBonus * 0.1
	}

	validityRatio := float64(valid) / float64(nonEmpty)
	dataScore := validityRatio * 80
	if float64(suspicious)/float64(nonEmpty) > 0.5 {
		dataScore *= 0.3
	}

	return headerBonus + dataScore
}

// scoreNameColumn scores how likely a column holds person names using
// length, whitespace, character class and casing signals, with a penalty
// for values that look like emails or numbers.
func scoreNameColumn(header string, samples []string) float64 {
	var score float64
	if nameHeaderRe.MatchString(header) {
		score += 30
	}

	var values []string
	for _, raw := range samples {
		if v := strings.TrimSpace(raw); v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return score * 0.1
	}

	var totalLen int
	var withSpace, alphaLike int
	for _, v := range values {
		totalLen += len(v)
		if strings.Contains(v, " ") {
			withSpace++
		}
		if alphaNameRe.MatchString(v) {
			alphaLike++
		}
	}

	avgLen := float64(totalLen) / float64(len(values))
	switch {
	case avgLen >= 3 && avgLen <= 50:
		score += 20
	case avgLen > 50:
		score -= 10
	}

	spaceRatio := float64(withSpace) / float64(len(values))
	switch {
	case spaceRatio > 0.3:
		score += 15
	case spaceRatio > 0.1:
		score += 8
	}

	alphaRatio := float64(alphaLike) / float64(len(values))
	switch {
	case alphaRatio > 0.7:
		score += 25
	case alphaRatio > 0.5:
		score += 15
	}

	patternSample := values
	if len(patternSample) > 100 {
		patternSample = patternSample[:100]
	}
	var patterned int
	for _, v := range patternSample {
		if titleWordRe.MatchString(v) || shortCapsRe.MatchString(v) {
			patterned++
		}
	}
	patternRatio := float64(patterned) / float64(len(patternSample))
	switch {
	case patternRatio > 0.3:
		score += 10
	case patternRatio > 0.1:
		score += 5
	}

	penaltySample := values
	if len(penaltySample) > 50 {
		penaltySample = penaltySample[:50]
	}
	var bad int
	for _, v := range penaltySample {
		if strings.Contains(v, "@") || isAllDigits(v) || len(v) < 2 {
			bad++
		}
	}
	score -= float64(bad) / float64(len(penaltySample)) * 30

	if score < 0 {
		score = 0
	}
	return score
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// DetectColumns scores every column against the phone and name heuristics
// over the sampled rows and returns the best matches plus runner-up phone
// candidates. Sample values go through the same validator the row pipeline
// uses so detection and processing cannot disagree on what a phone is.
func DetectColumns(headers []string, sampleRows [][]string, phones *utils.PhoneValidator) Detection {
	columns := make([][]string, len(headers))
	for _, row := range sampleRows {
		for i := range headers {
			if i < len(row) {
				columns[i] = append(columns[i], row[i])
			}
		}
	}

	phoneScores := make([]ColumnScore, 0, len(headers))
	for i, h := range headers {
		ps := scorePhoneColumn(h, columns[i], phones)
		phoneScores = append(phoneScores, ColumnScore{
			Column:     h,
			Index:      i,
			Score:      ps,
			Confidence: confidenceTier(ps),
		})
	}

	sort.SliceStable(phoneScores, func(a, b int) bool {
		return phoneScores[a].Score > phoneScores[b].Score
	})

	det := Detection{}
	if len(phoneScores) > 0 && phoneScores[0].Score >= utils.MinPhoneConfidence {
		best := phoneScores[0]
		det.Phone = &best
	}

	// The phone column is excluded from name candidates.
	var name *ColumnScore
	for i, h := range headers {
		if det.Phone != nil && i == det.Phone.Index {
			continue
		}
		ns := scoreNameColumn(h, columns[i])
		if ns >= utils.MinNameConfidence && (name == nil || ns > name.Score) {
			name = &ColumnScore{Column: h, Index: i, Score: ns, Confidence: confidenceTier(ns)}
		}
	}
	det.Name = name

	// Runner-up columns a caller can offer as alternatives.
	for _, cs := range phoneScores {
		if det.Phone != nil && cs.Index == det.Phone.Index {
			continue
		}
		if cs.Score >= utils.MinPhoneConfidence && len(det.PhoneCandidates) < utils.MaxPhoneCandidates {
			det.PhoneCandidates = append(det.PhoneCandidates, cs)
		}
	}

	if det.Phone != nil {
		det.Guidance = guidanceFor(det.Phone.Confidence)
	} else {
		det.Guidance = guidanceFor(ConfidenceVeryLow)
	}
	return det
}
