package scanner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const snykSampleOutput = `{
	"vulnerabilities": [
		{
			"id": "SNYK-JS-LODASH-567746",
			"title": "Prototype Pollution",
			"severity": "high",
			"packageName": "lodash",
			"version": "4.17.15",
			"identifiers": {"CVE": ["CVE-2020-8203"]},
			"fixedIn": ["4.17.16"],
			"description": "lodash is vulnerable to prototype pollution."
		},
		{
			"id": "SNYK-JS-MINIMIST-559764",
			"title": "Prototype Pollution",
			"severity": "medium",
			"packageName": "minimist",
			"version": "1.2.0",
			"identifiers": {},
			"description": "minimist is vulnerable to prototype pollution."
		}
	]
}`

func TestSnykScanParsesFindings(t *testing.T) {
	stubCommands(t, true, []byte(snykSampleOutput), nil)

	result := NewSnyk().Scan(context.Background(), "/tmp/checkout")

	require.Empty(t, result.Error)
	require.Len(t, result.Findings, 2)

	first := result.Findings[0]
	assert.Equal(t, "CVE-2020-8203", first.RuleID)
	assert.Equal(t, "Prototype Pollution", first.Title)
	assert.Equal(t, SeverityHigh, first.Severity)
	assert.Equal(t, "lodash@4.17.15", first.File)
	assert.Equal(t, "Fixed in 4.17.16", first.Remediation)

	second := result.Findings[1]
	assert.Equal(t, "SNYK-JS-MINIMIST-559764", second.RuleID)
	assert.Empty(t, second.Remediation)

	assert.Equal(t, SeverityHigh, result.Severity)
	assert.Equal(t, "Found 2 vulnerabilities", result.Summary)
}

func TestSnykCriticalDrivesOverallSeverity(t *testing.T) {
	out := `{"vulnerabilities": [
		{"title": "RCE", "severity": "critical", "packageName": "left-pad", "version": "1.0.0"},
		{"title": "Low issue", "severity": "low", "packageName": "pad", "version": "0.1.0"}
	]}`
	stubCommands(t, true, []byte(out), nil)

	result := NewSnyk().Scan(context.Background(), "/tmp/checkout")

	require.Len(t, result.Findings, 2)
	assert.Equal(t, SeverityCritical, result.Severity)
}

func TestSnykNotInstalled(t *testing.T) {
	stubCommands(t, false, nil, nil)

	result := NewSnyk().Scan(context.Background(), "/tmp/checkout")

	assert.Equal(t, "snyk CLI not installed", result.Error)
	assert.Empty(t, result.Findings)
	assert.Equal(t, SeverityInfo, result.Severity)
}

func TestSnykMalformedOutput(t *testing.T) {
	stubCommands(t, true, []byte("{truncated"), nil)

	result := NewSnyk().Scan(context.Background(), "/tmp/checkout")

	assert.Contains(t, result.Error, "failed to parse snyk output")
	assert.Equal(t, SeverityError, result.Severity)
}

func TestSnykCleanRun(t *testing.T) {
	stubCommands(t, true, nil, nil)

	result := NewSnyk().Scan(context.Background(), "/tmp/checkout")

	assert.Empty(t, result.Error)
	assert.Equal(t, SeverityInfo, result.Severity)
	assert.Equal(t, "No vulnerabilities found", result.Summary)
}

func TestProbeNotInstalled(t *testing.T) {
	stubCommands(t, false, nil, nil)

	assert.False(t, NewSnyk().Probe(context.Background()))
	assert.False(t, NewSemgrep(nil).Probe(context.Background()))
}
