package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

func TestPrintSummary_RedactsFailedAddresses(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, &domain.Summary{
		CampaignID: "spring",
		Status:     domain.CampaignCompleted,
		Sent:       1,
		Failed:     1,
		Total:      2,
		Results: []domain.SendResult{
			{Index: 0, Address: "ann.smith@example.com", Outcome: domain.OutcomeSuccess},
			{Index: 1, Address: "bob.jones@example.com", Outcome: domain.OutcomeError, Error: "invalid-recipient: rejected"},
		},
	})

	out := buf.String()
	assert.NotContains(t, out, "bob.jones@example.com")
	assert.Contains(t, out, "failed #1")
	assert.Contains(t, out, "@example.com: invalid-recipient: rejected")
	assert.NotContains(t, out, "ann.smith")
}
