package main

import (
	"fmt"
	"strconv"
	"strings"
)

// clnVersionXpay is the first lightningd release shipping the xpay command.
const clnVersionXpay = "24.11"

// clnVersionOffers is the first release with BOLT12 offers enabled by
// default.
const clnVersionOffers = "24.08"

// atOrAboveVersion reports whether a lightningd version string such as
// "v24.11.1" (vendor builds may prefix it) is at or above minVersion, given
// as bare dotted numbers like "24.11". Suffixes like "-modded" or "rc1" are
// ignored.
func atOrAboveVersion(myVersion, minVersion string) (bool, error) {
	_, after, found := strings.Cut(myVersion, "v")
	if !found {
		return false, fmt.Errorf("no 'v' found in version string %q", myVersion)
	}
	digits := after
	if i := strings.IndexFunc(after, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	}); i >= 0 {
		digits = after[:i]
	}

	mine := strings.Split(digits, ".")
	if len(mine) <= 1 || len(mine) > 3 {
		return false, fmt.Errorf("cannot parse version string %q", myVersion)
	}
	minParts := strings.Split(minVersion, ".")

	for i := 0; i < len(mine) && i < len(minParts); i++ {
		myNum, err := strconv.Atoi(mine[i])
		if err != nil {
			return false, fmt.Errorf("cannot parse version string %q", myVersion)
		}
		minNum, err := strconv.Atoi(minParts[i])
		if err != nil {
			return false, fmt.Errorf("cannot parse minimum version %q", minVersion)
		}
		if myNum != minNum {
			return myNum > minNum, nil
		}
	}
	return len(mine) >= len(minParts), nil
}
