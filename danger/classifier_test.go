package danger_test

import (
	"testing"

	"github.com/reglet-dev/finguard/danger"
	"github.com/reglet-dev/finguard/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	evilID    = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	hijackID  = "cccccccccccccccccccccccccccccccc"
	benignID  = "dddddddddddddddddddddddddddddddd"
	evilName  = "Crypto Wallet Helper"
	otherName = "Tab Organizer"
)

func newClassifier(t *testing.T) *danger.Classifier {
	t.Helper()
	c, err := danger.NewClassifier([]danger.Signature{
		{Name: evilName, ID: evilID},
		{Name: "Hijacked Notes", ID: hijackID, Versions: ">= 2.1.0, < 2.3.0"},
	})
	require.NoError(t, err)
	return c
}

func TestClassifier_IsDangerous(t *testing.T) {
	c := newClassifier(t)

	tests := []struct {
		name string
		info host.ExtensionInfo
		want bool
	}{
		{"id match", host.ExtensionInfo{ID: evilID, Name: otherName}, true},
		{"id match with innocent name", host.ExtensionInfo{ID: evilID, Name: "uBlock Origin"}, true},
		{"name only is a hint", host.ExtensionInfo{ID: benignID, Name: evilName}, false},
		{"unknown extension", host.ExtensionInfo{ID: benignID, Name: otherName}, false},
		{"compromised version", host.ExtensionInfo{ID: hijackID, Version: "2.2.1"}, true},
		{"clean version", host.ExtensionInfo{ID: hijackID, Version: "2.3.0"}, false},
		{"unknown version", host.ExtensionInfo{ID: hijackID}, true},
		{"unparsable version", host.ExtensionInfo{ID: hijackID, Version: "beta"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.IsDangerous(tt.info))
		})
	}
}

func TestClassifier_ClassifyReport(t *testing.T) {
	c := newClassifier(t)

	report := c.Classify(host.ExtensionInfo{ID: evilID, Name: evilName})
	assert.Equal(t, danger.RiskCritical, report.Level)
	require.Len(t, report.Factors, 1)
	assert.Equal(t, evilID, report.Factors[0].Signature)

	hint := c.Classify(host.ExtensionInfo{ID: benignID, Name: "  crypto wallet HELPER "})
	assert.Equal(t, danger.RiskLow, hint.Level)
	assert.False(t, hint.Dangerous())

	none := c.Classify(host.ExtensionInfo{ID: benignID, Name: otherName})
	assert.Equal(t, danger.RiskNone, none.Level)
	assert.Empty(t, none.Factors)
}

func TestNewClassifier_InvalidConstraint(t *testing.T) {
	_, err := danger.NewClassifier([]danger.Signature{{ID: evilID, Versions: "not a range"}})
	assert.Error(t, err)
}

func TestClassifier_NilAndEmpty(t *testing.T) {
	var nilClassifier *danger.Classifier
	assert.False(t, nilClassifier.IsDangerous(host.ExtensionInfo{ID: evilID}))

	empty, err := danger.NewClassifier(nil)
	require.NoError(t, err)
	assert.False(t, empty.IsDangerous(host.ExtensionInfo{ID: evilID, Name: evilName}))
}

func TestRiskLevel_String(t *testing.T) {
	assert.Equal(t, "critical", danger.RiskCritical.String())
	assert.Equal(t, "none", danger.RiskNone.String())
	assert.Equal(t, "unknown", danger.RiskLevel(42).String())
}
