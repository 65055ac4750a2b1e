package lexicon

import (
	"fmt"
	"os"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Category is the semantic bucket a trigger phrase belongs to.
type Category string

const (
	CategoryArrival         Category = "arrival"
	CategoryDeparture       Category = "departure"
	CategoryComplaint       Category = "complaint"
	CategoryScheduleRequest Category = "schedule_request"
	CategoryNone            Category = "none"
)

// scanOrder is the fixed category scan order. A message containing triggers
// from more than one category classifies as the first category in this list
// that matches.
var scanOrder = []Category{
	CategoryArrival,
	CategoryDeparture,
	CategoryComplaint,
	CategoryScheduleRequest,
}

// Match is the result of classifying a message body against the lexicon.
// Offset and Length are byte positions in the original body, so slicing
// body[Offset:Offset+Length] is always valid.
type Match struct {
	Category Category
	Trigger  string // the trigger phrase that matched, as listed in the table
	Offset   int    // byte offset of the match in the message body
	Length   int    // byte length of the matched text in the message body
}

// Lexicon holds ordered trigger tables per category. Tables are append-only
// data: the table author must not list a phrase under two categories with
// contradictory semantics (e.g. "out" must not be both an arrival and a
// departure trigger). That invariant is editorial, not enforced at runtime.
type Lexicon struct {
	tables map[Category][]string
}

// defaultTables is the built-in trigger data. Word triggers are listed ahead
// of emoji within each category so notes extraction splits on the phrase, not
// the emoji, when both appear.
var defaultTables = map[Category][]string{
	CategoryArrival: {
		"arrived",
		"arriving",
		"on site",
		"onsite",
		"checking in",
		"clocking in",
		"🚗",
		"📍",
	},
	CategoryDeparture: {
		"all done",
		"done for the day",
		"finished",
		"leaving",
		"heading out",
		"checking out",
		"clocking out",
		"wrapped up",
		"✅",
		"🏁",
	},
	CategoryComplaint: {
		"complaint",
		"unhappy",
		"no show",
		"no-show",
		"damaged",
		"damage",
		"broke",
		"issue",
		"problem",
		"⚠️",
	},
	CategoryScheduleRequest: {
		"reschedule",
		"move my appointment",
		"change my appointment",
		"different time",
		"another day",
		"can we do",
	},
}

// Default returns a lexicon backed by the built-in trigger tables.
func Default() *Lexicon {
	return &Lexicon{tables: defaultTables}
}

// lexiconFile is the on-disk YAML shape: one list of triggers per category.
type lexiconFile struct {
	Arrival         []string `yaml:"arrival"`
	Departure       []string `yaml:"departure"`
	Complaint       []string `yaml:"complaint"`
	ScheduleRequest []string `yaml:"schedule_request"`
}

// Load reads trigger tables from a YAML file. Categories missing from the
// file fall back to the built-in tables, so a deployment can override just
// one category.
func Load(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon file: %w", err)
	}

	var f lexiconFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse lexicon file: %w", err)
	}

	tables := map[Category][]string{
		CategoryArrival:         defaultTables[CategoryArrival],
		CategoryDeparture:       defaultTables[CategoryDeparture],
		CategoryComplaint:       defaultTables[CategoryComplaint],
		CategoryScheduleRequest: defaultTables[CategoryScheduleRequest],
	}
	if len(f.Arrival) > 0 {
		tables[CategoryArrival] = f.Arrival
	}
	if len(f.Departure) > 0 {
		tables[CategoryDeparture] = f.Departure
	}
	if len(f.Complaint) > 0 {
		tables[CategoryComplaint] = f.Complaint
	}
	if len(f.ScheduleRequest) > 0 {
		tables[CategoryScheduleRequest] = f.ScheduleRequest
	}

	return &Lexicon{tables: tables}, nil
}

// Classify scans the message body against each category's trigger table in
// fixed scan order. Within a category the first trigger in table order that
// appears anywhere in the body wins, not the longest match and not the
// earliest offset. Matching is case-insensitive substring search.
func (l *Lexicon) Classify(text string) Match {
	for _, cat := range scanOrder {
		for _, trigger := range l.tables[cat] {
			if idx, n := indexFold(text, trigger); idx >= 0 {
				return Match{Category: cat, Trigger: trigger, Offset: idx, Length: n}
			}
		}
	}
	return Match{Category: CategoryNone, Offset: -1}
}

// indexFold finds the first case-insensitive occurrence of substr in s and
// returns its byte offset and length measured against s. Lowering a string
// can change its byte length ("İ" shrinks, "Ⱥ" grows), so offsets from a
// lowered copy are not safe to use on the original; this scan compares rune
// by rune against s itself. Returns (-1, 0) when absent.
func indexFold(s, substr string) (int, int) {
	for i := range s {
		if n, ok := foldPrefixLen(s[i:], substr); ok {
			return i, n
		}
	}
	return -1, 0
}

// foldPrefixLen reports how many bytes at the start of s case-fold-match the
// whole of substr.
func foldPrefixLen(s, substr string) (int, bool) {
	n := 0
	for _, tr := range substr {
		sr, size := utf8.DecodeRuneInString(s[n:])
		if size == 0 {
			return 0, false
		}
		if sr != tr && unicode.ToLower(sr) != unicode.ToLower(tr) {
			return 0, false
		}
		n += size
	}
	return n, true
}

// Triggers returns the trigger table for a category. Exposed for the
// operator API and for table-driven tests.
func (l *Lexicon) Triggers(cat Category) []string {
	return l.tables[cat]
}
