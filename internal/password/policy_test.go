package password

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssessEmpty(t *testing.T) {
	got := Assess("")

	assert.Equal(t, 0, got.Score)
	assert.Equal(t, "No password", got.Label)
	assert.Equal(t, ColorGray, got.Color)
	assert.False(t, got.Valid)
	assert.False(t, got.ShowRequirements())
	require.Len(t, got.Requirements, 5)
	for _, req := range got.Requirements {
		assert.False(t, req.Met, req.Label)
	}
}

func TestAssessBands(t *testing.T) {
	tests := []struct {
		name     string
		password string
		score    int
		label    string
		color    string
		valid    bool
	}{
		{name: "nothing met", password: "é", score: 0, label: "Very Weak", color: ColorRed},
		{name: "single class", password: "abc", score: 1, label: "Weak", color: ColorRed},
		{name: "lowercase eight chars", password: "abcdefgh", score: 1, label: "Weak", color: ColorRed},
		{name: "symbols only", password: "!!!!", score: 1, label: "Weak", color: ColorRed},
		{name: "three met", password: "abcdefg1", score: 2, label: "Medium", color: ColorOrange},
		{name: "four met", password: "Abcdefg1", score: 3, label: "Strong", color: ColorYellow},
		{name: "all met", password: "Abcdefg1!", score: 4, label: "Very Strong", color: ColorGreen, valid: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Assess(tt.password)
			assert.Equal(t, tt.score, got.Score)
			assert.Equal(t, tt.label, got.Label)
			assert.Equal(t, tt.color, got.Color)
			assert.Equal(t, tt.valid, got.Valid)
			assert.True(t, got.ShowRequirements())
		})
	}
}

func TestAssessRequirementOrder(t *testing.T) {
	got := Assess("abcdefgh")

	labels := make([]string, 0, len(got.Requirements))
	for _, req := range got.Requirements {
		labels = append(labels, req.Label)
	}
	assert.Equal(t, []string{
		"At least 8 characters",
		"One uppercase letter",
		"One lowercase letter",
		"One number",
		"One special character",
	}, labels)
	assert.Equal(t, []bool{true, false, true, false, false}, metFlags(got))
}

func TestAssessLengthBonusIsFloored(t *testing.T) {
	// 12 chars, three requirements: 2 + 0.5 floors back to 2.
	twelve := Assess("abcdefghijk1")
	assert.Equal(t, 2, twelve.Score)
	assert.Equal(t, "Medium", twelve.Label)

	// 16 chars, three requirements: 2 + 1.0 = 3.
	sixteen := Assess("abcdefghijklmno1")
	assert.Equal(t, 3, sixteen.Score)
	assert.Equal(t, "Medium", sixteen.Label)
	assert.False(t, sixteen.Valid)

	// 16 chars, four requirements: 3 + 1.0 = 4.
	strong := Assess("Abcdefghijklmno1")
	assert.Equal(t, 4, strong.Score)
	assert.Equal(t, "Strong", strong.Label)
	assert.False(t, strong.Valid)
}

func TestAssessBonusClampsAtMax(t *testing.T) {
	got := Assess("Abcdefghijklmn1!xyz")
	assert.Equal(t, MaxScore, got.Score)
	assert.True(t, got.Valid)
}

func TestAssessProperties(t *testing.T) {
	alphabet := []rune("abcXYZ019!@#[]\\\" éß")
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		n := rng.Intn(24)
		buf := make([]rune, n)
		for j := range buf {
			buf[j] = alphabet[rng.Intn(len(alphabet))]
		}
		p := string(buf)
		got := Assess(p)

		assert.GreaterOrEqual(t, got.Score, 0, p)
		assert.LessOrEqual(t, got.Score, MaxScore, p)
		allMet := true
		for _, req := range got.Requirements {
			allMet = allMet && req.Met
		}
		assert.Equal(t, allMet, got.Valid, p)
		assert.Equal(t, got, Assess(p), "assess must be deterministic")
	}
}

func TestValidate(t *testing.T) {
	res := Validate("abcdefgh")
	assert.False(t, res.Valid)
	assert.Equal(t, []string{"One uppercase letter", "One number", "One special character"}, res.Errors)

	ok := Validate("Abcdefg1!")
	assert.True(t, ok.Valid)
	assert.Empty(t, ok.Errors)

	empty := Validate("")
	assert.False(t, empty.Valid)
	assert.Len(t, empty.Errors, 5)
}

func TestCheck(t *testing.T) {
	require.NoError(t, Check("Abcdefg1!"))

	err := Check("short")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWeakPassword))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Unmet, "At least 8 characters")
}

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("Abcdefg1!")
	require.NoError(t, err)
	require.NoError(t, Verify(hash, "Abcdefg1!"))
	assert.Error(t, Verify(hash, "wrong"))

	_, err = Hash("")
	assert.Error(t, err)
	assert.Error(t, Verify("", "x"))
}

func metFlags(a Assessment) []bool {
	out := make([]bool, len(a.Requirements))
	for i, req := range a.Requirements {
		out[i] = req.Met
	}
	return out
}
