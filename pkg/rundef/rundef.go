// Package rundef loads daily aircraft route sequences and turns them into
// executable job graphs.
//
// A sequence is one aircraft's day: an ordered list of routes that starts
// and ends at its home airport. Each sequence becomes a linear chain of
// route-delay jobs, and every chain feeds a single aggregation job, so a
// whole day's fleet is one run.
package rundef

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

var (
	// ErrNoRoutes marks a sequence without any routes.
	ErrNoRoutes = errors.New("rundef: sequence has no routes")
	// ErrNotReturnToHome marks a sequence whose last route does not land at
	// the home airport.
	ErrNotReturnToHome = errors.New("rundef: sequence does not return to home airport")
	// ErrBrokenSequence marks a route whose origin is not the previous
	// route's destination.
	ErrBrokenSequence = errors.New("rundef: route does not depart from previous destination")
	// ErrDuplicateSequence marks two sequences sharing an ID within a run.
	ErrDuplicateSequence = errors.New("rundef: duplicate sequence id")
)

// timeLayout is the wire format for times of day in sequence files.
const timeLayout = "15:04:05"

// Route is one flight leg within a daily sequence.
type Route struct {
	OriginIATA            string `json:"origin_iata"`
	DestinationIATA       string `json:"destination_iata"`
	EstimatedGateOpenTime string `json:"estimated_gate_open_time"`
	EstimatedTakeoffTime  string `json:"estimated_takeoff_time"`
	EstimatedArrivalTime  string `json:"estimated_arrival_time"`
}

// GroundMinutes returns the scheduled gate-open-to-takeoff window.
func (r *Route) GroundMinutes() (float64, error) {
	return minutesBetween(r.EstimatedGateOpenTime, r.EstimatedTakeoffTime)
}

// FlightMinutes returns the scheduled takeoff-to-arrival duration.
func (r *Route) FlightMinutes() (float64, error) {
	return minutesBetween(r.EstimatedTakeoffTime, r.EstimatedArrivalTime)
}

func minutesBetween(from, to string) (float64, error) {
	start, err := time.Parse(timeLayout, from)
	if err != nil {
		return 0, fmt.Errorf("rundef: parse time %q: %w", from, err)
	}
	end, err := time.Parse(timeLayout, to)
	if err != nil {
		return 0, fmt.Errorf("rundef: parse time %q: %w", to, err)
	}
	d := end.Sub(start)
	if d < 0 {
		// Past-midnight legs wrap around.
		d += 24 * time.Hour
	}
	return d.Minutes(), nil
}

// Sequence is one aircraft's daily route sequence.
type Sequence struct {
	SequenceID      int     `json:"sequence_id"`
	HomeAirportIATA string  `json:"home_airport_iata"`
	Routes          []Route `json:"routes"`
}

// Validate checks structural integrity: at least one route, an unbroken
// chain of airports, and a final landing back home.
func (s *Sequence) Validate() error {
	if len(s.Routes) == 0 {
		return fmt.Errorf("%w: sequence %d", ErrNoRoutes, s.SequenceID)
	}
	for i := 1; i < len(s.Routes); i++ {
		if s.Routes[i].OriginIATA != s.Routes[i-1].DestinationIATA {
			return fmt.Errorf("%w: sequence %d route %d departs %s after landing at %s",
				ErrBrokenSequence, s.SequenceID, i, s.Routes[i].OriginIATA, s.Routes[i-1].DestinationIATA)
		}
	}
	last := s.Routes[len(s.Routes)-1]
	if last.DestinationIATA != s.HomeAirportIATA {
		return fmt.Errorf("%w: sequence %d ends at %s, home is %s",
			ErrNotReturnToHome, s.SequenceID, last.DestinationIATA, s.HomeAirportIATA)
	}
	return nil
}

// Decode parses sequence JSON. Both a single sequence object and an array
// of sequences are accepted.
func Decode(data []byte) ([]*Sequence, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var seqs []*Sequence
		if err := json.Unmarshal(data, &seqs); err != nil {
			return nil, err
		}
		return seqs, nil
	}
	var seq Sequence
	if err := json.Unmarshal(data, &seq); err != nil {
		return nil, err
	}
	return []*Sequence{&seq}, nil
}

// LoadDir reads every *.json file under dir, in name order. Files that do
// not parse or do not validate are logged and skipped; a day's run should
// not be held up by one corrupt sequence file.
func LoadDir(dir string, logger *slog.Logger) ([]*Sequence, error) {
	if logger == nil {
		logger = slog.Default()
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("rundef: scan %s: %w", dir, err)
	}
	sort.Strings(paths)

	var out []*Sequence
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("rundef: read %s: %w", path, err)
		}
		seqs, err := Decode(data)
		if err != nil {
			logger.Warn("skipping malformed sequence file", "path", path, "error", err)
			continue
		}
		for _, seq := range seqs {
			if err := seq.Validate(); err != nil {
				logger.Warn("skipping invalid sequence", "path", path, "error", err)
				continue
			}
			out = append(out, seq)
		}
	}
	return out, nil
}
