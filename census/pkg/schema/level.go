package schema

import (
	"fmt"
)

// Level is a geographic aggregation level.
type Level string

const (
	LevelShrid                Level = "shrid"
	LevelConstituencyPre2008  Level = "constituency_pre_2008"
	LevelConstituencyPost2008 Level = "constituency_post_2008"
	LevelDistrict             Level = "district"
	LevelSubdistrict          Level = "subdistrict"
)

// Levels lists every aggregation level, finest first.
var Levels = []Level{
	LevelShrid,
	LevelConstituencyPre2008,
	LevelConstituencyPost2008,
	LevelDistrict,
	LevelSubdistrict,
}

// ParseLevel converts a level tag into a Level.
func ParseLevel(s string) (Level, error) {
	for _, l := range Levels {
		if string(l) == s {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: unknown aggregation level %q", ErrUnsupportedLevel, s)
}

func (l Level) String() string {
	return string(l)
}
