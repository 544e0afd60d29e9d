package config

// Command categories. Limits rules and help output are keyed by these names.
const (
	CategoryInformation = "information"
	CategoryModeration  = "moderation"
	CategoryUtilities   = "utilities"
	CategorySettings    = "settings"
	CategoryDeveloper   = "developer"
)

var CategoryWeights = map[string]int{
	CategoryInformation: 0,
	CategoryUtilities:   10,
	CategoryModeration:  20,
	CategorySettings:    50,
	CategoryDeveloper:   60,
}

// Categories returns category names ordered by weight.
func Categories() []string {
	return []string{
		CategoryInformation,
		CategoryUtilities,
		CategoryModeration,
		CategorySettings,
		CategoryDeveloper,
	}
}
