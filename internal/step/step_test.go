package step

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func init() {
	color.NoColor = true
}

func TestStepSucceedPrintsDetail(t *testing.T) {
	var out syncBuffer
	r := NewReporter(&out)
	s := r.Start("fetching quote")
	s.Succeed("fee: 0.05 USDC", "")
	s.Succeed("ignored")

	text := out.String()
	assert.Contains(t, text, "- fetching quote\n")
	assert.Contains(t, text, "✔ fetching quote\n")
	assert.Contains(t, text, "  fee: 0.05 USDC\n")
	assert.NotContains(t, text, "ignored")
}

func TestStepSoftTimeoutMarksLine(t *testing.T) {
	var out syncBuffer
	r := NewReporter(&out, WithSoftTimeout(10*time.Millisecond))
	s := r.Start("waiting for confirmation")
	require.Eventually(t, s.TimedOut, time.Second, 5*time.Millisecond)
	s.Fail()

	text := out.String()
	assert.Contains(t, text, "… waiting for confirmation | timed out\n")
	assert.Contains(t, text, "✖ waiting for confirmation | timed out\n")
}

func TestRunFailsStepOnError(t *testing.T) {
	var out syncBuffer
	r := NewReporter(&out)
	boom := errors.New("boom")
	_, err := Run(r, "reading balances", func(*Step) (int, error) { return 0, boom })
	require.ErrorIs(t, err, boom)
	assert.Contains(t, out.String(), "✖ reading balances")

	v, err := Run(r, "deriving accounts", func(*Step) (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 1, strings.Count(out.String(), "✔ deriving accounts"))
}

func TestStepUpdatePrintsChangedDetailOnly(t *testing.T) {
	var out syncBuffer
	s := NewReporter(&out).Start("waiting for confirmation")
	s.Update("PENDING")
	s.Update("PENDING")
	s.Update("SUBMITTED")
	s.Succeed()
	s.Update("late")

	text := out.String()
	assert.Equal(t, 1, strings.Count(text, "  PENDING\n"))
	assert.Contains(t, text, "  SUBMITTED\n")
	assert.NotContains(t, text, "late")
}

func spinnerSuffix(s *Step) string {
	s.spin.Lock()
	defer s.spin.Unlock()
	return s.spin.Suffix
}

func TestInteractiveStepRewritesSpinnerSuffix(t *testing.T) {
	var out syncBuffer
	s := NewReporter(&out, WithInteractive(true)).Start("waiting for confirmation")
	require.NotNil(t, s.spin)
	s.Update("PENDING")
	assert.Equal(t, " waiting for confirmation (PENDING)", spinnerSuffix(s))
	s.Succeed("status [MINED_SUCCESS]")

	text := out.String()
	assert.NotContains(t, text, "- waiting for confirmation")
	assert.Contains(t, text, "✔ waiting for confirmation\n")
	assert.Contains(t, text, "  status [MINED_SUCCESS]\n")

	var timed syncBuffer
	s = NewReporter(&timed, WithInteractive(true), WithSoftTimeout(10*time.Millisecond)).Start("waiting for confirmation")
	require.Eventually(t, s.TimedOut, time.Second, 5*time.Millisecond)
	assert.Equal(t, " waiting for confirmation | timed out", spinnerSuffix(s))
	s.Fail()
	assert.Contains(t, timed.String(), "✖ waiting for confirmation | timed out\n")
}

