package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nativeConfig() SimulationConfig {
	return SimulationConfig{
		SimStep:     0.5,
		Seed:        42,
		MaxVehicles: 5,
		InflowRate:  5,
	}
}

func nativeEnv(t *testing.T, cfg SimulationConfig) *Environment {
	t.Helper()
	env, err := NewEnvironment(BackendNative, ringNetwork(t), cfg)
	require.NoError(t, err)
	t.Cleanup(env.Terminate)
	return env
}

func TestEnvironment_ResetStartsBackendLazily(t *testing.T) {
	env := nativeEnv(t, nativeConfig())

	state, err := env.Reset()
	require.NoError(t, err)
	assert.Zero(t, state.Time)
	assert.Empty(t, state.IDs)
}

func TestEnvironment_StepAdvancesAndRewardsMeanSpeed(t *testing.T) {
	env := nativeEnv(t, nativeConfig())
	_, err := env.Reset()
	require.NoError(t, err)

	state, reward, done, err := env.Step(nil)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 0.5, state.Time)
	assert.Equal(t, state.MeanSpeed(), reward)
	assert.Len(t, state.Speeds, len(state.IDs))
}

func TestEnvironment_RewardIsZeroWithNoVehicles(t *testing.T) {
	cfg := nativeConfig()
	cfg.InflowRate = 1e-12 // effectively no demand
	env := nativeEnv(t, cfg)
	_, err := env.Reset()
	require.NoError(t, err)

	state, reward, _, err := env.Step(nil)
	require.NoError(t, err)
	assert.Empty(t, state.IDs)
	assert.Zero(t, reward, "empty network must not divide by zero")
}

func TestEnvironment_StaleActionForDepartedVehicleIsRecoverable(t *testing.T) {
	env := nativeEnv(t, nativeConfig())
	_, err := env.Reset()
	require.NoError(t, err)

	// Command a vehicle that was never observed: dropped, not fatal.
	_, _, _, err = env.Step(Action{"ghost": 3.0})
	assert.NoError(t, err)
}

func TestEnvironment_ActionCapsVehicleSpeed(t *testing.T) {
	cfg := nativeConfig()
	cfg.InflowRate = 1000 // deterministic injection on the first step
	cfg.MaxVehicles = 1
	env := nativeEnv(t, cfg)
	state, err := env.Reset()
	require.NoError(t, err)

	state, _, _, err = env.Step(NoOpAction(state))
	require.NoError(t, err)
	require.Len(t, state.IDs, 1)
	id := state.IDs[0]

	state, _, _, err = env.Step(Action{id: 1.0})
	require.NoError(t, err)
	require.Len(t, state.Speeds, 1)
	assert.InDelta(t, 1.0, state.Speeds[0], 1e-9)
}

func TestEnvironment_ResetAfterRunsRestoresInitialState(t *testing.T) {
	env := nativeEnv(t, nativeConfig())
	_, err := env.Reset()
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		_, _, _, err = env.Step(nil)
		require.NoError(t, err)
	}

	state, err := env.Reset()
	require.NoError(t, err)
	assert.Zero(t, state.Time)
	assert.Empty(t, state.IDs)
}

func TestEnvironment_TerminateIsIdempotentAndFinal(t *testing.T) {
	env := nativeEnv(t, nativeConfig())
	_, err := env.Reset()
	require.NoError(t, err)

	env.Terminate()
	env.Terminate() // must not panic

	_, err = env.Reset()
	assert.Error(t, err, "a terminated environment cannot be reset")
}

func TestState_MeanSpeed(t *testing.T) {
	assert.Zero(t, State{}.MeanSpeed())
	assert.Equal(t, 2.0, State{Speeds: []float64{1, 2, 3}}.MeanSpeed())
}
