package umaproto

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// SupportedMajorVersions lists the protocol majors this service speaks,
// highest first.
var SupportedMajorVersions = []int{1, 0}

var versionStrings = map[int]string{
	1: "1.0",
	0: "0.3",
}

var ErrNoCommonVersion = errors.New("no mutually supported protocol version")

// CurrentMajorVersion is the version requests are built with unless a
// counterparty negotiates down.
func CurrentMajorVersion() int { return SupportedMajorVersions[0] }

// VersionString returns the full version for a supported major.
func VersionString(major int) string {
	if v, ok := versionStrings[major]; ok {
		return v
	}
	return fmt.Sprintf("%d.0", major)
}

// MajorVersion parses the major component of "1.0".
func MajorVersion(version string) (int, error) {
	major, _, _ := strings.Cut(version, ".")
	n, err := strconv.Atoi(major)
	if err != nil {
		return 0, fmt.Errorf("invalid protocol version %q", version)
	}
	return n, nil
}

// SelectHighestSupportedVersion picks the highest major present both in
// theirs and in SupportedMajorVersions.
func SelectHighestSupportedVersion(theirs []int) (int, error) {
	best := -1
	for _, v := range theirs {
		if slices.Contains(SupportedMajorVersions, v) && v > best {
			best = v
		}
	}
	if best < 0 {
		return 0, ErrNoCommonVersion
	}
	return best, nil
}

// UnsupportedVersion is the 412 body a counterparty returns when it cannot
// handle the requested version.
type UnsupportedVersion struct {
	SupportedMajorVersions []int  `json:"supportedMajorVersions"`
	UnsupportedVersion     string `json:"unsupportedVersion"`
}

func ParseUnsupportedVersion(body []byte) (*UnsupportedVersion, error) {
	var u UnsupportedVersion
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("parse unsupported version response: %w", err)
	}
	if len(u.SupportedMajorVersions) == 0 {
		return nil, errors.New("unsupported version response lists no versions")
	}
	return &u, nil
}
