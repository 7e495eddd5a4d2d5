package dashboard

import (
	"fmt"
	"strconv"
	"strings"

	"pinganalyst/internal/analyzer"
	"pinganalyst/internal/stats"
)

// Stat is one card on the dashboard. Match-wide stats set Value; per-player
// stats set Player1 and Player2 instead.
type Stat struct {
	Label       string
	Value       string
	Player1     string
	Player2     string
	Player1Note string
	Player2Note string
	Subtitle    string
	Color       string
}

// PerPlayer reports whether the stat has a value for each player.
func (s Stat) PerPlayer() bool {
	return s.Value == ""
}

// Section is a titled group of stats.
type Section struct {
	Title string
	Stats []Stat
}

// Insight is the model's read on one player.
type Insight struct {
	Player   string
	Strength string
	Weakness string
}

// View is everything the dashboard shows for one analysis.
type View struct {
	Player1  string
	Player2  string
	Sections []Section
	Summary  string
	Insights []Insight
}

// PlayerLabels names the players, adding their shirt colors when known.
func PlayerLabels(a stats.Analysis) (string, string) {
	return playerLabel("Player 1", a.Player1Color), playerLabel("Player 2", a.Player2Color)
}

func playerLabel(base, color string) string {
	color = strings.TrimSpace(color)
	if color == "" {
		return base
	}
	return fmt.Sprintf("%s (%s)", base, color)
}

// NewView builds the full dashboard for a.
func NewView(a stats.Analysis) View {
	p1, p2 := PlayerLabels(a)
	view := View{
		Player1:  p1,
		Player2:  p2,
		Sections: Sections(a),
		Summary:  strings.TrimSpace(a.Summary),
	}
	for _, in := range []struct {
		player  string
		insight stats.PlayerInsight
	}{{p1, a.Player1Insight}, {p2, a.Player2Insight}} {
		if in.insight.Empty() && in.insight.Weakness == "" {
			continue
		}
		view.Insights = append(view.Insights, Insight{
			Player:   in.player,
			Strength: in.insight.Strength,
			Weakness: in.insight.Weakness,
		})
	}
	return view
}

// Sections lists the dashboard cards in display order.
func Sections(a stats.Analysis) []Section {
	p1, p2 := a.Player1, a.Player2
	return []Section{
		{
			Title: "Match Score",
			Stats: []Stat{players("Score", p1.Score, p2.Score, "primary")},
		},
		{
			Title: "Points Breakdown",
			Stats: []Stat{
				players("Points Won", p1.Score, p2.Score, "green"),
				players("Points Lost", p2.Score, p1.Score, "red"),
				players("Won on Serve", p1.PointsWonOnServe, p2.PointsWonOnServe, "primary"),
				players("Won on Return", p1.PointsWonOnReturn, p2.PointsWonOnReturn, "blue"),
				matchWide("Total Points", strconv.Itoa(a.TotalPoints), "", "primary"),
			},
		},
		{
			Title: "Rally Analysis",
			Stats: []Stat{
				matchWide("Total Rallies", strconv.Itoa(a.TotalRallies), "", "primary"),
				matchWide("Avg Rally Length", seconds(a.AvgRallyLength), "", "blue"),
				matchWide("Longest Rally", seconds(a.LongestRally), "", "green"),
			},
		},
		{
			Title: "Error Analysis",
			Stats: []Stat{
				players("Unforced Errors", p1.UnforcedErrors, p2.UnforcedErrors, "red"),
				players("Forced Errors", p1.ForcedErrors, p2.ForcedErrors, "amber"),
				players("Under Pressure", p1.UnderPressureErrors, p2.UnderPressureErrors, "red"),
				players("Tactical Errors", p1.TacticalErrors, p2.TacticalErrors, "amber"),
			},
		},
		{
			Title: "Shot Breakdown",
			Stats: []Stat{
				players("FH Winners", p1.ForehandWinners, p2.ForehandWinners, "green"),
				players("BH Winners", p1.BackhandWinners, p2.BackhandWinners, "blue"),
				players("Topspin Shots", p1.TopspinShots, p2.TopspinShots, "amber"),
				players("Net Points", p1.NetPoints, p2.NetPoints, "primary"),
			},
		},
		{
			Title: "Attacking Play",
			Stats: []Stat{
				withSubtitle(players("FH Forced Errors", p1.FHForcedErrorsCreated, p2.FHForcedErrorsCreated, "green"), "Created via forehand"),
				withNotes(players("FH Opening Atk", p1.FHOpeningAttacks, p2.FHOpeningAttacks, "primary"),
					successNote(p1.FHOpeningAttackSuccess), successNote(p2.FHOpeningAttackSuccess)),
				withNotes(players("BH Opening Atk", p1.BHOpeningAttacks, p2.BHOpeningAttacks, "blue"),
					successNote(p1.BHOpeningAttackSuccess), successNote(p2.BHOpeningAttackSuccess)),
			},
		},
		{
			Title: "Serve",
			Stats: []Stat{matchWide("Est. Serve Speed", serveSpeed(a.ServeSpeed), "Based on motion analysis", "primary")},
		},
	}
}

func players(label string, v1, v2 int, color string) Stat {
	return Stat{Label: label, Player1: strconv.Itoa(v1), Player2: strconv.Itoa(v2), Color: color}
}

func matchWide(label, value, subtitle, color string) Stat {
	return Stat{Label: label, Value: value, Subtitle: subtitle, Color: color}
}

func withSubtitle(s Stat, subtitle string) Stat {
	s.Subtitle = subtitle
	return s
}

func withNotes(s Stat, n1, n2 string) Stat {
	s.Player1Note = n1
	s.Player2Note = n2
	return s
}

func successNote(pct int) string {
	return fmt.Sprintf("%d%% success", pct)
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "s"
}

func serveSpeed(v string) string {
	if strings.TrimSpace(v) == "" {
		return stats.NoServeSpeed
	}
	return v
}

// LoadingState is shown while a match is still being analyzed.
type LoadingState struct {
	Title        string
	Status       string
	Placeholders int
}

// Loading returns the loading state for status. An empty status falls back to
// a generic line.
func Loading(status string) LoadingState {
	status = strings.TrimSpace(status)
	if status == "" {
		status = "Processing video frames"
	}
	return LoadingState{Title: "Analyzing Match...", Status: status, Placeholders: 9}
}

// FailureState is shown when analysis stops with an error.
type FailureState struct {
	Title   string
	Message string
}

// Failure returns the error state for err.
func Failure(err error) FailureState {
	message := analyzer.PublicMessage(err)
	if strings.TrimSpace(message) == "" {
		message = "Analysis failed"
	}
	return FailureState{Title: "Analysis Failed", Message: message}
}

// FailureMessage returns the error state for an already rendered message.
func FailureMessage(message string) FailureState {
	if strings.TrimSpace(message) == "" {
		message = "Analysis failed"
	}
	return FailureState{Title: "Analysis Failed", Message: message}
}
