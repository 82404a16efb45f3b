package password

import (
	"math"
	"strings"
	"unicode/utf8"
)

// Symbols lists the characters accepted by the special-character requirement.
const Symbols = `!@#$%^&*()_+-=[]{};':"\|,.<>/?`

// MinLength is the minimum number of characters a valid password carries.
const MinLength = 8

// MaxScore is the highest strength score Assess reports.
const MaxScore = 4

// Colour tags rendered next to the strength meter.
const (
	ColorGray   = "gray"
	ColorRed    = "red"
	ColorOrange = "orange"
	ColorYellow = "yellow"
	ColorGreen  = "green"
)

// Requirement is one policy rule and whether the candidate satisfies it.
type Requirement struct {
	Label string `json:"label"`
	Met   bool   `json:"met"`
}

// Assessment describes the strength of a candidate password.
type Assessment struct {
	Score        int           `json:"score"`
	Label        string        `json:"label"`
	Color        string        `json:"color"`
	Requirements []Requirement `json:"requirements"`
	Valid        bool          `json:"valid"`

	empty bool
}

// ShowRequirements reports whether the requirement checklist should be displayed.
// Empty input hides it entirely.
func (a Assessment) ShowRequirements() bool {
	return !a.empty
}

// Percent maps the score onto a 0-100 meter width.
func (a Assessment) Percent() int {
	return a.Score * 100 / MaxScore
}

// Result is the submission-time verdict produced by Validate.
type Result struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

type rule struct {
	label string
	test  func(string) bool
}

// rules are evaluated in display order.
var rules = []rule{
	{label: "At least 8 characters", test: func(p string) bool { return utf8.RuneCountInString(p) >= MinLength }},
	{label: "One uppercase letter", test: func(p string) bool { return containsRange(p, 'A', 'Z') }},
	{label: "One lowercase letter", test: func(p string) bool { return containsRange(p, 'a', 'z') }},
	{label: "One number", test: func(p string) bool { return containsRange(p, '0', '9') }},
	{label: "One special character", test: func(p string) bool { return strings.ContainsAny(p, Symbols) }},
}

type band struct {
	score int
	label string
	color string
}

// bands is indexed by the number of satisfied requirements.
var bands = [...]band{
	{0, "Very Weak", ColorRed},
	{1, "Weak", ColorRed},
	{1, "Weak", ColorRed},
	{2, "Medium", ColorOrange},
	{3, "Strong", ColorYellow},
	{4, "Very Strong", ColorGreen},
}

// Assess classifies the strength of password.
func Assess(password string) Assessment {
	requirements := make([]Requirement, len(rules))
	if password == "" {
		for i, r := range rules {
			requirements[i] = Requirement{Label: r.label}
		}
		return Assessment{Label: "No password", Color: ColorGray, Requirements: requirements, empty: true}
	}

	met := 0
	for i, r := range rules {
		ok := r.test(password)
		requirements[i] = Requirement{Label: r.label, Met: ok}
		if ok {
			met++
		}
	}

	b := bands[met]
	return Assessment{
		Score:        withLengthBonus(b.score, utf8.RuneCountInString(password)),
		Label:        b.label,
		Color:        b.color,
		Requirements: requirements,
		Valid:        met == len(rules),
	}
}

// Validate re-runs Assess and lists the labels of every unmet requirement.
func Validate(password string) Result {
	assessment := Assess(password)
	errs := make([]string, 0, len(rules))
	for _, req := range assessment.Requirements {
		if !req.Met {
			errs = append(errs, req.Label)
		}
	}
	return Result{Valid: assessment.Valid, Errors: errs}
}

// Check returns a *ValidationError when password does not satisfy the policy.
func Check(password string) error {
	res := Validate(password)
	if res.Valid {
		return nil
	}
	return &ValidationError{Unmet: res.Errors}
}

func withLengthBonus(score, length int) int {
	adjusted := float64(score)
	if length >= 12 {
		adjusted = math.Min(adjusted+0.5, MaxScore)
	}
	if length >= 16 {
		adjusted = math.Min(adjusted+0.5, MaxScore)
	}
	return int(math.Floor(adjusted))
}

func containsRange(s string, lo, hi byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= lo && s[i] <= hi {
			return true
		}
	}
	return false
}
