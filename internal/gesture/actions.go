package gesture

import (
	"fmt"
	"strconv"
)

// Action is a committed roll sequence: the face digits visited since the
// last steady state, most significant first.
type Action int64

// Known roll patterns. A bow or bank tips the die onto a side face and back;
// a flip or roll goes all the way round.
const (
	NoAction     Action = 0
	Undocumented Action = 99

	BackBow   Action = 121
	RightBank Action = 131
	LeftBank  Action = 141
	FrontBow  Action = 151

	BackFlip  Action = 12651
	RightRoll Action = 13641
	LeftRoll  Action = 14631
	FrontFlip Action = 15621

	BackSemiFlip  Action = 12621
	RightSemiRoll Action = 13631
	LeftSemiRoll  Action = 14641
	FrontSemiFlip Action = 15651

	Back2Flip  Action = 126512651
	Right2Roll Action = 136413641
	Left2Roll  Action = 146314631
	Front2Flip Action = 156215621
)

var actionNames = map[Action]string{
	NoAction:      "NOACTION",
	Undocumented:  "UNDOCUMENTED",
	BackBow:       "BACKBOW",
	RightBank:     "RIGHTBANK",
	LeftBank:      "LEFTBANK",
	FrontBow:      "FRONTBOW",
	BackFlip:      "BACKFLIP",
	RightRoll:     "RIGHTROLL",
	LeftRoll:      "LEFTROLL",
	FrontFlip:     "FRONTFLIP",
	BackSemiFlip:  "BACKSEMIFLIP",
	RightSemiRoll: "RIGHTSEMIROLL",
	LeftSemiRoll:  "LEFTSEMIROLL",
	FrontSemiFlip: "FRONTSEMIFLIP",
	Back2Flip:     "BACK2FLIP",
	Right2Roll:    "RIGHT2ROLL",
	Left2Roll:     "LEFT2ROLL",
	Front2Flip:    "FRONT2FLIP",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return strconv.FormatInt(int64(a), 10)
}

// Lookup reports whether code is one of the known roll patterns.
func Lookup(code int64) (Action, bool) {
	a := Action(code)
	_, ok := actionNames[a]
	return a, ok
}

// Known lists every entry of the action table.
func Known() []Action {
	out := make([]Action, 0, len(actionNames))
	for a := range actionNames {
		out = append(out, a)
	}
	return out
}

// ParseAction decodes a digit string such as "156215621" into its action
// code. Digits outside 1-6 are accepted; they just never match the table.
func ParseAction(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty action code")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("action code %q: non-digit %q", s, r)
		}
	}
	code, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("action code %q: %w", s, err)
	}
	return code, nil
}

// FormatAction is the inverse of ParseAction.
func FormatAction(code int64) string {
	return strconv.FormatInt(code, 10)
}
