package stats

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Report is the raw JSON object returned by the analysis model for one chunk.
//
// Two shapes are accepted. The current prompt asks for nested player1/player2
// objects. Older prompts returned a flat object with player1Score,
// player2Score, pointsWon, pointsLost and player-1 counters at the top level;
// those counters are read through the embedded ReportPlayer.
type Report struct {
	TotalPoints    Number         `json:"totalPoints"`
	TotalRallies   Number         `json:"totalRallies"`
	AvgRallyLength Number         `json:"avgRallyLength"`
	LongestRally   Number         `json:"longestRally"`
	ServeSpeed     Text           `json:"serveSpeed"`
	Player1Color   Text           `json:"player1Color"`
	Player2Color   Text           `json:"player2Color"`
	Player1Score   Number         `json:"player1Score"`
	Player2Score   Number         `json:"player2Score"`
	PointsWon      Number         `json:"pointsWon"`
	PointsLost     Number         `json:"pointsLost"`
	Player1        *ReportPlayer  `json:"player1"`
	Player2        *ReportPlayer  `json:"player2"`
	Summary        Text           `json:"summary"`
	Player1Insight *PlayerInsight `json:"player1Insight"`
	Player2Insight *PlayerInsight `json:"player2Insight"`

	ReportPlayer
}

// ReportPlayer mirrors PlayerStats with tolerant number decoding.
type ReportPlayer struct {
	Score                  Number `json:"score"`
	PointsWonOnServe       Number `json:"pointsWonOnServe"`
	PointsWonOnReturn      Number `json:"pointsWonOnReturn"`
	ForehandWinners        Number `json:"forehandWinners"`
	BackhandWinners        Number `json:"backhandWinners"`
	TopspinShots           Number `json:"topspinShots"`
	NetPoints              Number `json:"netPoints"`
	UnforcedErrors         Number `json:"unforcedErrors"`
	ForcedErrors           Number `json:"forcedErrors"`
	UnderPressureErrors    Number `json:"underPressureErrors"`
	TacticalErrors         Number `json:"tacticalErrors"`
	FHForcedErrorsCreated  Number `json:"fhForcedErrorsCreated"`
	FHOpeningAttacks       Number `json:"fhOpeningAttacks"`
	FHOpeningAttackSuccess Number `json:"fhOpeningAttackSuccess"`
	BHOpeningAttacks       Number `json:"bhOpeningAttacks"`
	BHOpeningAttackSuccess Number `json:"bhOpeningAttackSuccess"`
}

func (p ReportPlayer) stats() PlayerStats {
	return PlayerStats{
		Score:                  p.Score.Count(),
		PointsWonOnServe:       p.PointsWonOnServe.Count(),
		PointsWonOnReturn:      p.PointsWonOnReturn.Count(),
		ForehandWinners:        p.ForehandWinners.Count(),
		BackhandWinners:        p.BackhandWinners.Count(),
		TopspinShots:           p.TopspinShots.Count(),
		NetPoints:              p.NetPoints.Count(),
		UnforcedErrors:         p.UnforcedErrors.Count(),
		ForcedErrors:           p.ForcedErrors.Count(),
		UnderPressureErrors:    p.UnderPressureErrors.Count(),
		TacticalErrors:         p.TacticalErrors.Count(),
		FHForcedErrorsCreated:  p.FHForcedErrorsCreated.Count(),
		FHOpeningAttacks:       p.FHOpeningAttacks.Count(),
		FHOpeningAttackSuccess: p.FHOpeningAttackSuccess.Percent(),
		BHOpeningAttacks:       p.BHOpeningAttacks.Count(),
		BHOpeningAttackSuccess: p.BHOpeningAttackSuccess.Percent(),
	}
}

// FromReport normalizes a model reply into an Analysis.
func FromReport(r Report) Analysis {
	player1 := r.ReportPlayer
	if r.Player1 != nil {
		player1 = *r.Player1
	}
	var player2 ReportPlayer
	if r.Player2 != nil {
		player2 = *r.Player2
	}

	a := Analysis{
		TotalRallies:   r.TotalRallies.Count(),
		AvgRallyLength: r.AvgRallyLength.Seconds(),
		LongestRally:   r.LongestRally.Seconds(),
		ServeSpeed:     strings.TrimSpace(string(r.ServeSpeed)),
		Player1Color:   normalizeColor(string(r.Player1Color)),
		Player2Color:   normalizeColor(string(r.Player2Color)),
		Player1:        player1.stats(),
		Player2:        player2.stats(),
		Summary:        strings.TrimSpace(string(r.Summary)),
		Player1Insight: normalizeInsight(r.Player1Insight),
		Player2Insight: normalizeInsight(r.Player2Insight),
	}
	if r.Player1Score.Set {
		a.Player1.Score = r.Player1Score.Count()
	}
	if r.Player2Score.Set {
		a.Player2.Score = r.Player2Score.Count()
	}

	switch {
	case r.TotalPoints.Set:
		a.TotalPoints = r.TotalPoints.Count()
	case r.PointsWon.Set || r.PointsLost.Set:
		a.TotalPoints = r.PointsWon.Count() + r.PointsLost.Count()
	default:
		a.TotalPoints = a.Player1.Score + a.Player2.Score
	}
	if a.LongestRally < a.AvgRallyLength && a.TotalRallies > 0 {
		a.LongestRally = a.AvgRallyLength
	}
	return a
}

// ParseReport decodes a JSON object into an Analysis.
func ParseReport(data []byte) (Analysis, error) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return Analysis{}, fmt.Errorf("decode report: %w", err)
	}
	return FromReport(r), nil
}

// Recognized reports whether the object carried at least one field of either
// schema. Replies that decode but share no keys with the schema are rejected by
// callers rather than merged as zeros.
func (r Report) Recognized() bool {
	numbers := []Number{
		r.TotalPoints, r.TotalRallies, r.AvgRallyLength, r.LongestRally,
		r.Player1Score, r.Player2Score, r.PointsWon, r.PointsLost,
		r.ReportPlayer.Score, r.ReportPlayer.ForehandWinners, r.ReportPlayer.UnforcedErrors,
	}
	for _, n := range numbers {
		if n.Set {
			return true
		}
	}
	return r.Player1 != nil || r.Player2 != nil || r.Summary != "" || r.ServeSpeed != ""
}

var titleCaser = cases.Title(language.Und)

func normalizeColor(value string) string {
	value = strings.Join(strings.Fields(value), " ")
	if value == "" {
		return ""
	}
	return titleCaser.String(strings.ToLower(value))
}

func normalizeInsight(in *PlayerInsight) PlayerInsight {
	if in == nil {
		return PlayerInsight{}
	}
	return PlayerInsight{
		Strength: strings.TrimSpace(in.Strength),
		Weakness: strings.TrimSpace(in.Weakness),
	}
}

// Number decodes JSON numbers, numeric strings ("12", "~4.5s") and null.
// Set is false when the field was absent or null.
type Number struct {
	Value float64
	Set   bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = Number{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		value, ok := leadingFloat(s)
		*n = Number{Value: value, Set: ok}
		return nil
	}
	value, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("number: %w", err)
	}
	*n = Number{Value: value, Set: true}
	return nil
}

// Count returns the value as a non-negative integer.
func (n Number) Count() int {
	if !n.Set || math.IsNaN(n.Value) || n.Value <= 0 {
		return 0
	}
	if n.Value > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Round(n.Value))
}

// Percent returns the value as an integer clamped to [0,100].
func (n Number) Percent() int {
	value := n.Count()
	if value > 100 {
		return 100
	}
	return value
}

// Seconds returns the value as a non-negative duration in seconds with one
// decimal place.
func (n Number) Seconds() float64 {
	if !n.Set || math.IsNaN(n.Value) || math.IsInf(n.Value, 0) || n.Value <= 0 {
		return 0
	}
	return math.Round(n.Value*10) / 10
}

// leadingFloat extracts the first decimal number from s, tolerating prefixes
// like "~" and unit suffixes.
func leadingFloat(s string) (float64, bool) {
	start := strings.IndexFunc(s, func(r rune) bool { return r >= '0' && r <= '9' })
	if start < 0 {
		return 0, false
	}
	end := start
	seenDot := false
	for end < len(s) {
		c := s[end]
		if c == '.' && !seenDot {
			seenDot = true
			end++
			continue
		}
		if c < '0' || c > '9' {
			break
		}
		end++
	}
	value, err := strconv.ParseFloat(strings.TrimSuffix(s[start:end], "."), 64)
	if err != nil {
		return 0, false
	}
	if start > 0 && s[start-1] == '-' {
		value = -value
	}
	return value, true
}

// Text decodes JSON strings, numbers and null into a string.
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*t = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
	default:
		*t = Text(string(data))
	}
	return nil
}
