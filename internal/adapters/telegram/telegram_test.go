package telegram

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"campbot/internal/dispatch"
	logx "campbot/pkg/logx"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	require.NoError(t, classify(nil))

	// Client-side API rejections are final for the target.
	for _, err := range []error{
		tele.ErrChatNotFound,
		tele.ErrBlockedByUser,
		tele.NewError(403, "Forbidden: bot was kicked"),
	} {
		got := classify(err)
		require.True(t, dispatch.IsPermanent(got), "want permanent for %v", err)
	}

	// Flood control and server errors are retried.
	flood := tele.FloodError{RetryAfter: 3}
	require.True(t, dispatch.IsTransient(classify(flood)))
	require.True(t, dispatch.IsTransient(classify(tele.NewError(502, "Bad Gateway"))))

	// Unclassified network failures default to transient.
	require.True(t, dispatch.IsTransient(classify(errors.New("dial tcp: timeout"))))
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()
	_, err := New(Config{}, logx.Nop())
	require.Error(t, err)
}
