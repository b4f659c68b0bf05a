package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockSentinel/internal/domain/models"
	xhttp "StockSentinel/pkg/http"
	applogger "StockSentinel/pkg/logger"
)

type countingDaily struct{ runs int }

func (d *countingDaily) Run(_ context.Context, force bool) models.CycleReport {
	d.runs++
	return models.CycleReport{CycleID: "daily-x", Ran: !force, PublishErr: "broker down"}
}

type countingMonthly struct {
	runs    int
	tickers []string
}

func (m *countingMonthly) Run(_ context.Context, tickers []string) models.RegenerationSummary {
	m.runs++
	m.tickers = tickers
	return models.RegenerationSummary{RunID: "monthly-x"}
}

func TestRunModes(t *testing.T) {
	daily, monthly := &countingDaily{}, &countingMonthly{}
	app := New(applogger.Nop(), daily, monthly, nil, Schedule{}, time.Second)

	require.NoError(t, app.Run(ModeDaily))
	assert.Equal(t, 1, daily.runs)

	require.NoError(t, app.Run(ModeMonthly))
	assert.Equal(t, 1, monthly.runs)
	assert.Nil(t, monthly.tickers)

	assert.Error(t, app.Run("weekly"))
}

func TestServeRequiresServer(t *testing.T) {
	app := New(applogger.Nop(), &countingDaily{}, &countingMonthly{}, nil, Schedule{}, time.Second)
	assert.Error(t, app.Serve(context.Background()))
}

func TestStartCronRejectsBadSpec(t *testing.T) {
	app := New(applogger.Nop(), &countingDaily{}, &countingMonthly{}, nil,
		Schedule{Enabled: true, Daily: "not a cron spec"}, time.Second)
	err := app.startCron(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "register daily job")
}

func TestServeStopsOnCancel(t *testing.T) {
	srv := xhttp.NewServer(applogger.Nop(), nil, xhttp.WithHost("127.0.0.1"), xhttp.WithPort(0), xhttp.WithMetricsPath(""))
	app := New(applogger.Nop(), &countingDaily{}, &countingMonthly{}, srv,
		Schedule{Enabled: true, Daily: "0 */30 9-16 * * MON-FRI", Monthly: "0 0 6 1 * *", Location: time.UTC}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
	require.NotNil(t, app.cron)
	assert.Len(t, app.cron.Entries(), 2)
}

func TestKVFields(t *testing.T) {
	fields := kvFields([]interface{}{"entry", 1, "next", "soon", "dangling"})
	require.Len(t, fields, 2)
	k, v := fields[0].GetKeyValue()
	assert.Equal(t, "entry", k)
	assert.Equal(t, 1, v)
}
