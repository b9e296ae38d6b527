// internal/filter/vars.go
package filter

import (
	"strings"

	"github.com/AnotherFoxGuy/sogeBot/internal/types"
)

// Globals is the stream-wide snapshot exposed to every filter.
type Globals struct {
	Viewers         int
	Followers       int
	Subscribers     int
	Game            string
	Title           string
	IsBotSubscriber bool
	IsStreamOnline  bool
}

// attributeVars maps filter variables to attribute keys. Missing attributes
// read as null unless listed in falseDefaults.
var attributeVars = map[string]string{
	"$username":                     "username",
	"$source":                       "source",
	"$months":                       "months",
	"$monthsName":                   "monthsName",
	"$message":                      "message",
	"$command":                      "command",
	"$count":                        "count",
	"$bits":                         "bits",
	"$reason":                       "reason",
	"$target":                       "target",
	"$duration":                     "duration",
	"$hostViewers":                  "hostViewers",
	"$method":                       "method",
	"$tier":                         "tier",
	"$subStreakShareEnabled":        "subStreakShareEnabled",
	"$subStreak":                    "subStreak",
	"$subCumulativeMonths":          "subCumulativeMonths",
	"$level":                        "level",
	"$total":                        "total",
	"$goal":                         "goal",
	"$topContributionsBitsUserId":   "topContributionsBitsUserId",
	"$topContributionsBitsUsername": "topContributionsBitsUsername",
	"$topContributionsBitsTotal":    "topContributionsBitsTotal",
	"$topContributionsSubsUserId":   "topContributionsSubsUserId",
	"$topContributionsSubsUsername": "topContributionsSubsUsername",
	"$topContributionsSubsTotal":    "topContributionsSubsTotal",
	"$lastContributionType":         "lastContributionType",
	"$lastContributionUserId":       "lastContributionUserId",
	"$lastContributionUsername":     "lastContributionUsername",
	"$lastContributionTotal":        "lastContributionTotal",
	"$oldGame":                      "oldGame",
	"$userInput":                    "userInput",
}

var falseDefaults = map[string]bool{
	"$subStreak":           true,
	"$subCumulativeMonths": true,
}

var capabilityKeys = []string{"moderator", "subscriber", "vip", "broadcaster", "bot", "owner"}

// BuildVars assembles the variable table for one rule evaluation.
// Custom variables are exposed under their "$_name" key; a name given
// without the prefix gets one.
func BuildVars(attrs types.Attributes, g Globals, custom map[string]string) Vars {
	vars := make(Vars, len(attributeVars)+len(custom)+10)

	for name, key := range attributeVars {
		v, ok := attrs.Get(key)
		if !ok || v == nil {
			if falseDefaults[name] {
				vars[name] = false
			} else {
				vars[name] = nil
			}
			continue
		}
		vars[name] = v
	}

	is := make(map[string]any, len(capabilityKeys))
	for _, k := range capabilityKeys {
		v, ok := attrs.Get(types.AttrIs + "." + k)
		is[k] = ok && types.Truthy(v)
	}
	vars["$is"] = is

	vars["$viewers"] = float64(g.Viewers)
	vars["$game"] = g.Game
	vars["$title"] = g.Title
	vars["$followers"] = float64(g.Followers)
	vars["$subscribers"] = float64(g.Subscribers)
	vars["$isBotSubscriber"] = g.IsBotSubscriber
	vars["$isStreamOnline"] = g.IsStreamOnline

	for name, value := range custom {
		if !strings.HasPrefix(name, "$_") {
			name = "$_" + strings.TrimPrefix(name, "$")
		}
		vars[name] = value
	}
	return vars
}
