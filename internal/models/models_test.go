package models

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&SIPTrunk{}, &DispatchRule{}, &CallRecord{}))
	return db
}

func TestDispatchRuleMatches(t *testing.T) {
	exact := DispatchRule{NumberPattern: "+4930123456"}
	assert.True(t, exact.Matches("+4930123456"))
	assert.False(t, exact.Matches("+4930123457"))

	prefix := DispatchRule{NumberPattern: "+4930*"}
	assert.True(t, prefix.Matches("+4930123456"))
	assert.False(t, prefix.Matches("+4989123456"))

	empty := DispatchRule{}
	assert.False(t, empty.Matches("+4930123456"))
}

func TestMatchDispatchRulePriority(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, CreateDispatchRule(db, &DispatchRule{
		Name: "catch-all", NumberPattern: "+49*", Priority: 200, Enabled: true, AgentName: "generic",
	}))
	require.NoError(t, CreateDispatchRule(db, &DispatchRule{
		Name: "berlin", NumberPattern: "+4930*", Priority: 100, Enabled: true, AgentName: "berlin-agent",
	}))
	require.NoError(t, CreateDispatchRule(db, &DispatchRule{
		Name: "disabled", NumberPattern: "+4930123456", Priority: 1, Enabled: false, AgentName: "never",
	}))

	rule, err := MatchDispatchRule(db, "+4930123456")
	require.NoError(t, err)
	assert.Equal(t, "berlin-agent", rule.AgentName)

	rule, err = MatchDispatchRule(db, "+4989999999")
	require.NoError(t, err)
	assert.Equal(t, "generic", rule.AgentName)

	_, err = MatchDispatchRule(db, "+1555000111")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestSIPTrunkPhoneNumbers(t *testing.T) {
	db := newTestDB(t)

	trunk := &SIPTrunk{
		Name:         "main",
		Provider:     SIPTrunkProviderTwilio,
		Status:       SIPTrunkStatusActive,
		PhoneNumbers: PhoneNumbers{"+4930123456", "+4930123457"},
		Enabled:      true,
		IsDefault:    true,
	}
	require.NoError(t, CreateSIPTrunk(db, trunk))

	loaded, err := GetSIPTrunkByPhoneNumber(db, "+4930123457")
	require.NoError(t, err)
	assert.Equal(t, "main", loaded.Name)
	assert.True(t, loaded.IsActive())

	_, err = GetSIPTrunkByPhoneNumber(db, "+1000")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	def, err := GetDefaultSIPTrunk(db)
	require.NoError(t, err)
	assert.Equal(t, trunk.ID, def.ID)
}

func TestCallRecordLifecycle(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, CreateCallRecord(db, &CallRecord{
		CallSid: "CA123",
		From:    "+4930111111",
		To:      "+4930123456",
		Path:    CallPathFallback,
	}))

	require.NoError(t, IncrementCallTurns(db, "CA123"))
	require.NoError(t, IncrementCallTurns(db, "CA123"))

	active, err := GetActiveCallRecords(db)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	require.NoError(t, FinishCallRecord(db, "CA123", CallStatusCompleted, "caller hung up"))

	record, err := GetCallRecordBySid(db, "CA123")
	require.NoError(t, err)
	assert.Equal(t, CallStatusCompleted, record.Status)
	assert.Equal(t, 2, record.TurnCount)
	require.NotNil(t, record.EndedAt)

	active, err = GetActiveCallRecords(db)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestSoftDeleteKeepsRows(t *testing.T) {
	db := newTestDB(t)

	trunk := &SIPTrunk{
		Name:         "main",
		Provider:     SIPTrunkProviderTwilio,
		Status:       SIPTrunkStatusActive,
		PhoneNumbers: PhoneNumbers{"+4930123456"},
		Enabled:      true,
	}
	require.NoError(t, CreateSIPTrunk(db, trunk))
	rule := &DispatchRule{Name: "berlin", NumberPattern: "+4930*", Enabled: true}
	require.NoError(t, CreateDispatchRule(db, rule))

	require.NoError(t, DeleteSIPTrunk(db, trunk.ID))
	require.NoError(t, DeleteDispatchRule(db, rule.ID))

	_, err := GetSIPTrunkByPhoneNumber(db, "+4930123456")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	rules, err := ListDispatchRules(db)
	require.NoError(t, err)
	assert.Empty(t, rules)

	// Rows survive for auditing and can still be reached unscoped.
	var deletedTrunk SIPTrunk
	require.NoError(t, db.Unscoped().First(&deletedTrunk, trunk.ID).Error)
	assert.True(t, deletedTrunk.DeletedAt.Valid)
	var deletedRule DispatchRule
	require.NoError(t, db.Unscoped().First(&deletedRule, rule.ID).Error)
	assert.True(t, deletedRule.DeletedAt.Valid)
}

func TestCallRecordDuplicateSid(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, CreateCallRecord(db, &CallRecord{CallSid: "CA123"}))
	assert.Error(t, CreateCallRecord(db, &CallRecord{CallSid: "CA123"}))
}
