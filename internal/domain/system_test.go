package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemState_SeverityOrdering(t *testing.T) {
	assert.Less(t, StateRunning.Severity(), StateDegraded.Severity())
	assert.Less(t, StateDegraded.Severity(), StateHaltedSoft.Severity())
	assert.Less(t, StateHaltedSoft.Severity(), StateHaltedHard.Severity())
	assert.Less(t, StateHaltedHard.Severity(), StateEmergencyLockdown.Severity())
}

func TestSystemState_RequiresManualResume(t *testing.T) {
	assert.False(t, StateRunning.RequiresManualResume())
	assert.False(t, StateDegraded.RequiresManualResume())
	assert.False(t, StateHaltedSoft.RequiresManualResume())
	assert.True(t, StateHaltedHard.RequiresManualResume())
	assert.True(t, StateEmergencyLockdown.RequiresManualResume())
}

func TestSystemState_AllowsTrading(t *testing.T) {
	assert.True(t, StateRunning.AllowsTrading())
	assert.True(t, StateDegraded.AllowsTrading())
	assert.False(t, StateHaltedSoft.AllowsTrading())
	assert.False(t, StateHaltedHard.AllowsTrading())
	assert.False(t, StateEmergencyLockdown.AllowsTrading())
}

func TestSystemState_JSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(StateHaltedHard)
	require.NoError(t, err)
	assert.Equal(t, `"HALTED_HARD"`, string(data))

	var state SystemState
	require.NoError(t, json.Unmarshal(data, &state))
	assert.Equal(t, StateHaltedHard, state)
}

func TestParseSystemState_Unknown(t *testing.T) {
	_, err := ParseSystemState("WEDGED")
	assert.Error(t, err)
}

func TestHaltLevel_TargetState(t *testing.T) {
	assert.Equal(t, StateHaltedSoft, HaltSoft.TargetState())
	assert.Equal(t, StateHaltedHard, HaltHard.TargetState())
	assert.Equal(t, StateEmergencyLockdown, HaltEmergency.TargetState())
}

func TestHaltLevel_SeverityOrdering(t *testing.T) {
	assert.Less(t, HaltSoft.Severity(), HaltHard.Severity())
	assert.Less(t, HaltHard.Severity(), HaltEmergency.Severity())
}

func TestMonitorResult_MoreSevere(t *testing.T) {
	healthy := MonitorResult{MonitorID: "a", Healthy: true}
	soft := MonitorResult{
		MonitorID: "b",
		Trigger:   &HaltTrigger{Trigger: TriggerStaleData, Level: HaltSoft},
	}
	emergency := MonitorResult{
		MonitorID: "c",
		Trigger:   &HaltTrigger{Trigger: TriggerDrawdownExceeded, Level: HaltEmergency},
	}

	assert.True(t, soft.MoreSevere(healthy))
	assert.True(t, emergency.MoreSevere(soft))
	assert.False(t, healthy.MoreSevere(soft))
	assert.False(t, soft.MoreSevere(soft))
}
