package stats

// NoServeSpeed is displayed until a chunk reports an estimate.
const NoServeSpeed = "—"

// PlayerStats holds the per-player counters estimated for a match or chunk.
// Success fields are percentages in [0,100].
type PlayerStats struct {
	Score                  int `json:"score" yaml:"score"`
	PointsWonOnServe       int `json:"pointsWonOnServe" yaml:"points_won_on_serve"`
	PointsWonOnReturn      int `json:"pointsWonOnReturn" yaml:"points_won_on_return"`
	ForehandWinners        int `json:"forehandWinners" yaml:"forehand_winners"`
	BackhandWinners        int `json:"backhandWinners" yaml:"backhand_winners"`
	TopspinShots           int `json:"topspinShots" yaml:"topspin_shots"`
	NetPoints              int `json:"netPoints" yaml:"net_points"`
	UnforcedErrors         int `json:"unforcedErrors" yaml:"unforced_errors"`
	ForcedErrors           int `json:"forcedErrors" yaml:"forced_errors"`
	UnderPressureErrors    int `json:"underPressureErrors" yaml:"under_pressure_errors"`
	TacticalErrors         int `json:"tacticalErrors" yaml:"tactical_errors"`
	FHForcedErrorsCreated  int `json:"fhForcedErrorsCreated" yaml:"fh_forced_errors_created"`
	FHOpeningAttacks       int `json:"fhOpeningAttacks" yaml:"fh_opening_attacks"`
	FHOpeningAttackSuccess int `json:"fhOpeningAttackSuccess" yaml:"fh_opening_attack_success"`
	BHOpeningAttacks       int `json:"bhOpeningAttacks" yaml:"bh_opening_attacks"`
	BHOpeningAttackSuccess int `json:"bhOpeningAttackSuccess" yaml:"bh_opening_attack_success"`
}

// PlayerInsight is the model's qualitative read on a player.
type PlayerInsight struct {
	Strength string `json:"strength" yaml:"strength"`
	Weakness string `json:"weakness" yaml:"weakness"`
}

// Empty reports whether the insight carries no strength. Merges only replace an
// accumulated insight with one that names a strength.
func (p PlayerInsight) Empty() bool {
	return p.Strength == ""
}

// Analysis is the match summary shown on the dashboard. The same shape is used
// for a single chunk estimate and for the merged accumulator.
type Analysis struct {
	TotalPoints    int           `json:"totalPoints" yaml:"total_points"`
	TotalRallies   int           `json:"totalRallies" yaml:"total_rallies"`
	AvgRallyLength float64       `json:"avgRallyLength" yaml:"avg_rally_length"`
	LongestRally   float64       `json:"longestRally" yaml:"longest_rally"`
	ServeSpeed     string        `json:"serveSpeed" yaml:"serve_speed"`
	Player1Color   string        `json:"player1Color" yaml:"player1_color"`
	Player2Color   string        `json:"player2Color" yaml:"player2_color"`
	Player1        PlayerStats   `json:"player1" yaml:"player1"`
	Player2        PlayerStats   `json:"player2" yaml:"player2"`
	Summary        string        `json:"summary" yaml:"summary"`
	Player1Insight PlayerInsight `json:"player1Insight" yaml:"player1_insight"`
	Player2Insight PlayerInsight `json:"player2Insight" yaml:"player2_insight"`
}

// Empty returns the zero accumulator.
func Empty() Analysis {
	return Analysis{ServeSpeed: NoServeSpeed}
}
