// Package scalarunit implements spec §4.A: parsing and normalizing
// scalar-unit values ("10 GB", "500 ms", ...) and evaluating constraint
// clauses against them and against plain values.
package scalarunit

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/opentosca/tosca-template/errs"
)

// Family identifies which unit table a ScalarUnit was parsed against.
type Family string

const (
	FamilySize      Family = "size"
	FamilyTime      Family = "time"
	FamilyFrequency Family = "frequency"
	FamilyBitrate   Family = "bitrate"
)

// unit describes one recognized suffix: its family and its multiplier
// against the family's canonical base (bytes, seconds, Hz, bits/s).
type unit struct {
	family     Family
	multiplier float64
}

// units is the full recognized-suffix table from spec §4.A. Keys are
// lowercase and every lookup is case-insensitive; the binary vs SI
// distinction (kB vs KiB) is carried by distinct suffixes, not by case.
var units = map[string]unit{
	// size: base bytes
	"b":   {FamilySize, 1},
	"kb":  {FamilySize, 1000},
	"kib": {FamilySize, 1024},
	"mb":  {FamilySize, 1000 * 1000},
	"mib": {FamilySize, 1024 * 1024},
	"gb":  {FamilySize, 1000 * 1000 * 1000},
	"gib": {FamilySize, 1024 * 1024 * 1024},
	"tb":  {FamilySize, 1000 * 1000 * 1000 * 1000},
	"tib": {FamilySize, 1024 * 1024 * 1024 * 1024},

	// time: base seconds
	"d":  {FamilyTime, 86400},
	"h":  {FamilyTime, 3600},
	"m":  {FamilyTime, 60},
	"s":  {FamilyTime, 1},
	"ms": {FamilyTime, 1e-3},
	"us": {FamilyTime, 1e-6},
	"ns": {FamilyTime, 1e-9},

	// frequency: base Hz
	"hz":  {FamilyFrequency, 1},
	"khz": {FamilyFrequency, 1000},
	"mhz": {FamilyFrequency, 1000 * 1000},
	"ghz": {FamilyFrequency, 1000 * 1000 * 1000},

	// bitrate: base bits/s
	"bps":   {FamilyBitrate, 1},
	"kbps":  {FamilyBitrate, 1000},
	"kibps": {FamilyBitrate, 1024},
	"mbps":  {FamilyBitrate, 1000 * 1000},
	"mibps": {FamilyBitrate, 1024 * 1024},
	"gbps":  {FamilyBitrate, 1000 * 1000 * 1000},
	"gibps": {FamilyBitrate, 1024 * 1024 * 1024},
	"tbps":  {FamilyBitrate, 1000 * 1000 * 1000 * 1000},
	"tibps": {FamilyBitrate, 1024 * 1024 * 1024 * 1024},
}

// suffixPreference lists the spellings used in spec §4.A; canonicalSpelling
// maps an accepted suffix to the entry here that matches it
// case-insensitively, so re-emission (4.H) uses that spelling.
var suffixPreference = []string{
	"B", "kB", "KiB", "MB", "MiB", "GB", "GiB", "TB", "TiB",
	"d", "h", "m", "s", "ms", "us", "ns",
	"Hz", "kHz", "MHz", "GHz",
	"bps", "Kbps", "Kibps", "Mbps", "Mibps", "Gbps", "Gibps", "Tbps", "Tibps",
}

var scalarPattern = regexp.MustCompile(`^\s*(-?[0-9]+(?:\.[0-9]+)?)\s*([A-Za-z]+)\s*$`)

// ScalarUnit is a magnitude plus a recognized unit, normalized to its
// family's canonical base for comparison (spec §3 "ScalarUnit").
type ScalarUnit struct {
	Magnitude float64
	Unit      string // original (spelling as given, case-normalized to the canonical suffix)
	Family    Family
	Base      float64 // Magnitude expressed in the family's base unit
}

// Parse parses a scalar-unit string such as "10 GB" or "500ms".
func Parse(loc errs.Location, s string) (ScalarUnit, error) {
	m := scalarPattern.FindStringSubmatch(s)
	if m == nil {
		return ScalarUnit{}, errs.New(errs.InvalidScalarUnitError, loc, "%q is not a valid scalar-unit value", s)
	}
	mag, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return ScalarUnit{}, errs.Wrap(errs.InvalidScalarUnitError, loc, err, "invalid magnitude in %q", s)
	}
	u, ok := units[strings.ToLower(m[2])]
	if !ok {
		return ScalarUnit{}, errs.New(errs.InvalidScalarUnitError, loc, "unrecognized unit %q in %q", m[2], s)
	}
	canon := canonicalSpelling(m[2])
	return ScalarUnit{
		Magnitude: mag,
		Unit:      canon,
		Family:    u.family,
		Base:      mag * u.multiplier,
	}, nil
}

func canonicalSpelling(given string) string {
	low := strings.ToLower(given)
	for _, s := range suffixPreference {
		if strings.ToLower(s) == low {
			return s
		}
	}
	return given
}

// String renders the canonical form "<magnitude> <unit>", satisfying the
// round-trip law of spec §8 ("10 GB" parses and re-emits as "10 GB").
func (s ScalarUnit) String() string {
	if s.Magnitude == float64(int64(s.Magnitude)) {
		return fmt.Sprintf("%d %s", int64(s.Magnitude), s.Unit)
	}
	return fmt.Sprintf("%g %s", s.Magnitude, s.Unit)
}

// Compare returns -1, 0, or 1 comparing s against other's normalized Base.
// Family mismatch is a type error per spec §4.A ("unit mismatch is a type
// error").
func (s ScalarUnit) Compare(loc errs.Location, other ScalarUnit) (int, error) {
	if s.Family != other.Family {
		return 0, errs.New(errs.TypeMismatchError, loc, "cannot compare scalar-unit families %q and %q", s.Family, other.Family)
	}
	switch {
	case s.Base < other.Base:
		return -1, nil
	case s.Base > other.Base:
		return 1, nil
	default:
		return 0, nil
	}
}
