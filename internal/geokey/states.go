package geokey

import (
	"sort"
	"strings"
)

// State describes one of the 50 states or the District of Columbia.
type State struct {
	FIPS string
	Abbr string
	Name string
}

// States lists the 50 states + DC in FIPS order.
var States = []State{
	{"01", "AL", "Alabama"}, {"02", "AK", "Alaska"}, {"04", "AZ", "Arizona"},
	{"05", "AR", "Arkansas"}, {"06", "CA", "California"}, {"08", "CO", "Colorado"},
	{"09", "CT", "Connecticut"}, {"10", "DE", "Delaware"}, {"11", "DC", "District of Columbia"},
	{"12", "FL", "Florida"}, {"13", "GA", "Georgia"}, {"15", "HI", "Hawaii"},
	{"16", "ID", "Idaho"}, {"17", "IL", "Illinois"}, {"18", "IN", "Indiana"},
	{"19", "IA", "Iowa"}, {"20", "KS", "Kansas"}, {"21", "KY", "Kentucky"},
	{"22", "LA", "Louisiana"}, {"23", "ME", "Maine"}, {"24", "MD", "Maryland"},
	{"25", "MA", "Massachusetts"}, {"26", "MI", "Michigan"}, {"27", "MN", "Minnesota"},
	{"28", "MS", "Mississippi"}, {"29", "MO", "Missouri"}, {"30", "MT", "Montana"},
	{"31", "NE", "Nebraska"}, {"32", "NV", "Nevada"}, {"33", "NH", "New Hampshire"},
	{"34", "NJ", "New Jersey"}, {"35", "NM", "New Mexico"}, {"36", "NY", "New York"},
	{"37", "NC", "North Carolina"}, {"38", "ND", "North Dakota"}, {"39", "OH", "Ohio"},
	{"40", "OK", "Oklahoma"}, {"41", "OR", "Oregon"}, {"42", "PA", "Pennsylvania"},
	{"44", "RI", "Rhode Island"}, {"45", "SC", "South Carolina"}, {"46", "SD", "South Dakota"},
	{"47", "TN", "Tennessee"}, {"48", "TX", "Texas"}, {"49", "UT", "Utah"},
	{"50", "VT", "Vermont"}, {"51", "VA", "Virginia"}, {"53", "WA", "Washington"},
	{"54", "WV", "West Virginia"}, {"55", "WI", "Wisconsin"}, {"56", "WY", "Wyoming"},
}

var (
	stateByFIPS map[string]State
	stateByAbbr map[string]State
)

func init() {
	stateByFIPS = make(map[string]State, len(States))
	stateByAbbr = make(map[string]State, len(States))
	for _, s := range States {
		stateByFIPS[s.FIPS] = s
		stateByAbbr[s.Abbr] = s
	}
}

// StateByFIPS looks up a state by its 2-digit FIPS code.
func StateByFIPS(fips string) (State, bool) {
	s, ok := stateByFIPS[fips]
	return s, ok
}

// LookupState resolves a USPS abbreviation (any case) or a FIPS code.
func LookupState(code string) (State, bool) {
	code = strings.TrimSpace(code)
	if s, ok := stateByAbbr[strings.ToUpper(code)]; ok {
		return s, true
	}
	if fips, err := NormalizeState(code); err == nil {
		s, ok := stateByFIPS[fips]
		return s, ok
	}
	return State{}, false
}

// AllStateFIPS returns a sorted list of all state FIPS codes.
func AllStateFIPS() []string {
	codes := make([]string, 0, len(States))
	for _, s := range States {
		codes = append(codes, s.FIPS)
	}
	sort.Strings(codes)
	return codes
}

// AllStateAbbrs returns the lowercase USPS abbreviations in FIPS order.
func AllStateAbbrs() []string {
	abbrs := make([]string, 0, len(States))
	for _, s := range States {
		abbrs = append(abbrs, strings.ToLower(s.Abbr))
	}
	return abbrs
}
