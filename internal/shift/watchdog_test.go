package shift

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/clock"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/memstore"
)

func TestWatchdogAutoEndsOvertimeShift(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := clock.NewFake(scheduleStart)
	store := memstore.New(clk)
	require.NoError(t, store.CreateSchedule(ctx, &domain.Schedule{
		StaffID:    cashierID,
		BusinessID: businessID,
		StartTime:  scheduleStart,
		EndTime:    scheduleEnd,
	}))

	m, err := NewManager(store, clk, DefaultPolicy(), cashierID, businessID)
	require.NoError(t, err)
	_, err = m.Start(ctx, StartOptions{StartingCash: "100"})
	require.NoError(t, err)

	var autoEnded atomic.Bool
	w := NewWatchdog(m, clk, 30*time.Second, time.Minute, WithOvertimeHook(func(o Overtime) {
		if o.AutoEnded {
			autoEnded.Store(true)
		}
	}))

	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx)
	}()

	clk.Set(scheduleEnd.Add(119 * time.Minute))
	require.Eventually(t, func() bool {
		clk.Advance(time.Minute)
		return autoEnded.Load()
	}, 2*time.Second, 5*time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, StateNoShift, snap.State)
	require.NotNil(t, snap.LastEnded)
	assert.True(t, snap.LastEnded.RequiresApproval)
	assert.Equal(t, *snap.LastEnded.ExpectedCashDrawer, *snap.LastEnded.FinalCashDrawer)

	cancel()
	require.NoError(t, <-done)
}

func TestWatchdogMarksMissedSchedule(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := clock.NewFake(scheduleStart)
	store := memstore.New(clk)
	schedule := &domain.Schedule{
		StaffID:    cashierID,
		BusinessID: businessID,
		StartTime:  scheduleStart,
		EndTime:    scheduleEnd,
	}
	require.NoError(t, store.CreateSchedule(ctx, schedule))

	m, err := NewManager(store, clk, DefaultPolicy(), cashierID, businessID)
	require.NoError(t, err)

	w := NewWatchdog(m, clk, 30*time.Second, time.Minute)
	go func() {
		_ = w.Run(ctx)
	}()

	clk.Set(scheduleEnd)
	require.Eventually(t, func() bool {
		clk.Advance(30 * time.Second)
		s, err := store.GetSchedule(ctx, schedule.ID)
		return err == nil && s.Status == domain.ScheduleMissed
	}, 2*time.Second, 5*time.Millisecond)
}
