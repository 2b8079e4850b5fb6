package questionnaire

var suggestions = map[Category]map[Level]string{
	CategoryMedication: {
		LevelLow:    "You're missing doses or timing. Set reminders and talk with your provider about barriers.",
		LevelMedium: "Good consistency. Tighten timing windows and log doses to spot patterns.",
		LevelHigh:   "Great adherence. Keep logging and follow your plan.",
	},
	CategoryNutrition: {
		LevelLow:    "Reduce sugary drinks and refined carbs; add fiber and lean protein to each meal.",
		LevelMedium: "Portions are okay. Tweak snacks and reduce late-night eating.",
		LevelHigh:   "Balanced intake. Keep hydration and regular meals.",
	},
	CategorySleep: {
		LevelLow:    "Aim for a stable schedule and a dark, cool room; cut screens before bed.",
		LevelMedium: "You're close. Try consistent bed and wake times and brief daytime light exposure.",
		LevelHigh:   "Solid routine. Maintain consistency and wind-down habits.",
	},
}

// Suggestion returns the built-in advice for a category at a level, used when
// the scorer did not send one.
func Suggestion(c Category, l Level) string {
	return suggestions[c][l]
}
