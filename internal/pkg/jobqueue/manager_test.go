package jobqueue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetManager(t *testing.T) {
	// Reset the singleton for testing
	globalManager = nil
	managerOnce = sync.Once{}

	manager1 := GetManager()
	manager2 := GetManager()

	assert.NotNil(t, manager1)
	assert.Same(t, manager1, manager2, "GetManager should return the same instance")

	assert.NotNil(t, manager1.queue)
	assert.NotNil(t, manager1.stopCh)
	assert.False(t, manager1.running)
}

func TestManager_GetQueue(t *testing.T) {
	// Reset the singleton for testing
	globalManager = nil
	managerOnce = sync.Once{}

	manager := GetManager()
	queue := manager.GetQueue()

	assert.NotNil(t, queue)
	assert.Same(t, manager.queue, queue)
}

func TestManager_IsRunning(t *testing.T) {
	// Reset the singleton for testing
	globalManager = nil
	managerOnce = sync.Once{}

	manager := GetManager()

	assert.False(t, manager.IsRunning())

	manager.mu.Lock()
	manager.running = true
	manager.mu.Unlock()
	assert.True(t, manager.IsRunning())

	manager.mu.Lock()
	manager.running = false
	manager.mu.Unlock()
	assert.False(t, manager.IsRunning())
}

func TestEnvInt(t *testing.T) {
	assert.Equal(t, 5, envInt("DOES_NOT_EXIST_FOR_SURE", 5))
}

func TestManager_StopCompletesAndLeavesStopChannelUsable(t *testing.T) {
	// Reset the singleton for testing
	globalManager = nil
	managerOnce = sync.Once{}

	manager := GetManager()
	manager.Start()
	assert.True(t, manager.IsRunning())

	done := make(chan struct{})
	go func() {
		manager.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Stop did not return; a worker is blocked on the stop channel")
	}

	assert.False(t, manager.IsRunning())

	// Workers re-read the field on every loop iteration, so after Stop it
	// must still be the closed channel rather than nil.
	require.NotNil(t, manager.stopCh)
	select {
	case <-manager.stopCh:
	default:
		t.Fatal("stop channel is not closed after Stop")
	}
}
