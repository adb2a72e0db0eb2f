package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaymentStatus_Categories(t *testing.T) {
	assert.Equal(t, CategoryWaiting, PaymentPending.Category())
	assert.Equal(t, CategoryWaiting, PaymentPartial.Category())
	for _, s := range []PaymentStatus{PaymentProcessed, PaymentPaid, PaymentCancelled, PaymentRefunded, PaymentWrittenOff} {
		assert.Equal(t, CategoryCompleted, s.Category(), s)
	}
	for _, s := range []PaymentStatus{PaymentOverdue, PaymentDisputed, PaymentFailed, PaymentInCollection} {
		assert.True(t, s.IsProblematic(), s)
	}
	assert.Equal(t, "In Collection", PaymentInCollection.DisplayName())
	assert.False(t, PaymentStatus("UNKNOWN").IsValid())
}

func TestTransitionCode(t *testing.T) {
	tests := []struct {
		from PaymentStatus
		to   PaymentStatus
		code string
	}{
		{PaymentPending, PaymentPartial, ""},
		{PaymentPending, PaymentCancelled, ""},
		{PaymentDisputed, PaymentPending, ""},
		{PaymentPartial, PaymentOverdue, ""},
		{PaymentProcessed, PaymentPending, CodeInvalidStatusTransition},
		{PaymentCancelled, PaymentPending, CodeInvalidStatusTransition},
		{PaymentOverdue, PaymentInCollection, CodeInvalidStatusTransition},
		{PaymentOverdue, PaymentOverdue, ""},

		{PaymentPending, PaymentPaid, ""},
		{PaymentOverdue, PaymentPaid, ""},
		{PaymentDisputed, PaymentPaid, ""},
		{PaymentProcessed, PaymentPaid, CodeCannotMarkPaid},
		{PaymentPaid, PaymentPaid, CodeCannotMarkPaid},

		{PaymentPending, PaymentDisputed, ""},
		{PaymentOverdue, PaymentDisputed, ""},
		{PaymentDisputed, PaymentDisputed, CodeCannotDispute},
		{PaymentProcessed, PaymentDisputed, CodeCannotDispute},

		{PaymentPending, PaymentStatus("BOGUS"), CodeInvalidPaymentStatus},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.code, TransitionCode(tt.from, tt.to))
			assert.Equal(t, tt.code == "", CanTransition(tt.from, tt.to))
		})
	}
}

func TestValidateTransition_ReturnsRuleViolation(t *testing.T) {
	err := ValidateTransition(PaymentCancelled, PaymentPaid)
	v, ok := AsRuleViolation(err)
	assert.True(t, ok)
	assert.Equal(t, CodeCannotMarkPaid, v.Code)
	assert.Equal(t, RuleStatus, v.Rule)

	assert.NoError(t, ValidateTransition(PaymentPartial, PaymentPending))
}

func TestPaymentStatus_GuardSets(t *testing.T) {
	assert.True(t, PaymentDisputed.CanBeUpdated())
	assert.False(t, PaymentOverdue.CanBeUpdated())
	assert.True(t, PaymentOverdue.CanBeDisputed())
	assert.False(t, PaymentDisputed.CanBeDisputed())
	assert.True(t, PaymentDisputed.CanBePaid())
	assert.False(t, PaymentRefunded.CanBePaid())
	assert.False(t, PaymentCancelled.AcceptsApplications())
	assert.False(t, PaymentFailed.AcceptsApplications())
	assert.True(t, PaymentOverdue.AcceptsApplications())
}
